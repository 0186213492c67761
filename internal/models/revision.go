package models

import "strings"

// TagRefPrefix is the reference prefix git uses for tags.
const TagRefPrefix = "refs/tags/"

// Event identifies what kind of source event triggered a run.
type Event string

const (
	EventPush        Event = "push"
	EventPullRequest Event = "pull_request"
)

// Valid reports whether e is a supported trigger event.
func (e Event) Valid() bool {
	return e == EventPush || e == EventPullRequest
}

// Revision identifies the source snapshot processed by a run.
type Revision struct {
	Ref    string `json:"ref"`
	Commit string `json:"commit,omitempty"`
}

// IsTag returns true if the reference points at a tag.
func (r Revision) IsTag() bool {
	return strings.HasPrefix(r.Ref, TagRefPrefix)
}

// TagName returns the tag name without the refs/tags/ prefix, or "" for non-tag refs.
func (r Revision) TagName() string {
	if !r.IsTag() {
		return ""
	}
	return strings.TrimPrefix(r.Ref, TagRefPrefix)
}

// Trigger is the source event that starts a pipeline run.
type Trigger struct {
	Event    Event    `json:"event"`
	Revision Revision `json:"revision"`
}
