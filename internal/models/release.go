package models

// ContentTypeZip is the content type of every uploaded release archive.
const ContentTypeZip = "application/zip"

// BuildArtifact is the packaged output of one build for one platform.
type BuildArtifact struct {
	Platform string `json:"platform"`
	Name     string `json:"name"`
	Binary   string `json:"binary"`
	Readme   string `json:"readme"`
	Size     int    `json:"size"`
	SHA256   string `json:"sha256"`
	Archive  []byte `json:"-"`
}

// ReleaseDraft is the handle to a not-yet-public release. It is passed explicitly
// from the draft stage to every publish instance.
type ReleaseDraft struct {
	ID         string `json:"id"`
	TagRef     string `json:"tag_ref"`
	Name       string `json:"name"`
	UploadURL  string `json:"upload_url"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
	// RecordName is the artifact store name the draft record was persisted under.
	RecordName string `json:"record_name,omitempty"`
}

// ReleaseAsset is a published archive attached to a draft release.
type ReleaseAsset struct {
	Name        string `json:"name"`
	Platform    string `json:"platform"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	DraftID     string `json:"draft_id"`
	URL         string `json:"url,omitempty"`
}
