package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/spachava753/releasepipe/internal/artifact"
	"github.com/spachava753/releasepipe/internal/models"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRunSummary(w io.Writer, res *models.RunResult) {
	fmt.Fprintf(w, "\nRun: %s\n", res.RunID)
	fmt.Fprintf(w, "Trigger: %s %s\n", res.Trigger.Event, res.Trigger.Revision.Ref)
	if res.State.Terminal() || res.ReleaseGated || res.Failed {
		fmt.Fprintf(w, "State: %s\n", res.State)
	} else {
		fmt.Fprintf(w, "State: %s (incomplete)\n", res.State)
	}
	if res.ReleaseGated {
		fmt.Fprintln(w, "Release: skipped (reference is not a release tag)")
	} else if res.Draft != nil {
		fmt.Fprintf(w, "Release: %s (draft %s)\n", res.Draft.Name, res.Draft.ID)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Stage", "Platform", "Status", "Artifact", "Duration", "Error"})
	appendStage := func(sr models.StageResult) {
		errMsg := ""
		if sr.Error != nil {
			errMsg = errorLabel(sr.Error.Type)
		}
		tw.AppendRow(table.Row{sr.Stage, sr.Platform, sr.Status, sr.Artifact, fmt.Sprintf("%.1fs", sr.DurationSec), errMsg})
	}
	for _, sr := range res.Builds {
		appendStage(sr)
	}
	if res.DraftStage != nil {
		appendStage(*res.DraftStage)
	}
	for _, sr := range res.Publishes {
		appendStage(sr)
	}
	tw.Render()

	fmt.Fprintf(w, "Assets: %d\n", len(res.Assets))
	fmt.Fprintf(w, "Duration: %.2fs\n", res.TotalDurationSec)
	if res.Cancelled {
		fmt.Fprintln(w, "Cancelled: yes")
	}
	if res.Failed {
		fmt.Fprintln(w, "Result: FAILED")
	} else {
		fmt.Fprintln(w, "Result: OK")
	}
}

// errorLabel prefixes an error type with the collaborator that caused it.
func errorLabel(t models.ErrorType) string {
	switch {
	case t.IsToolchain():
		return "toolchain: " + string(t)
	case t.IsRegistry():
		return "registry: " + string(t)
	default:
		return string(t)
	}
}

func printPlan(w io.Writer, product string, plan models.Plan) {
	fmt.Fprintf(w, "Trigger: %s %s\n", plan.Trigger.Event, plan.Trigger.Revision.Ref)
	fmt.Fprintf(w, "Release stages: %s\n", map[bool]string{true: "scheduled", false: "skipped"}[plan.Release])

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Platform", "Target", "Image", "Archive", "Publish"})
	for _, p := range plan.Platforms {
		tw.AppendRow(table.Row{p.Label, p.Target, p.Image, artifact.ArchiveName(product, p.Label), plan.Release})
	}
	tw.Render()
}
