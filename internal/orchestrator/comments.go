package orchestrator

import (
	"fmt"
	"strings"

	"github.com/stackdraft/pkg/models"
)

// Markdown rendering for the bot's PR comments. The interactive comment is
// always rewritten in place as the workflow advances, so a developer never
// sees a stale "processing" message after the run has finished.

func renderFileList(files []models.ChangedFile) string {
	var b strings.Builder
	b.WriteString("### Changed files\n\n")
	if len(files) == 0 {
		b.WriteString("_No changed files detected._\n")
		return b.String()
	}
	b.WriteString("| File | Status | +/- |\n")
	b.WriteString("|------|--------|-----|\n")
	for _, f := range files {
		fmt.Fprintf(&b, "| `%s` | %s | +%d/-%d |\n", f.Path, f.Status, f.Additions, f.Deletions)
	}
	return b.String()
}

func renderInitialComment(prNumber int, files []models.ChangedFile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Automated analysis for PR #%d\n\n", prNumber)
	b.WriteString(renderFileList(files))
	b.WriteString("\n**Pick an analysis mode** (check exactly one box, then save the comment):\n\n")
	fmt.Fprintf(&b, "- [ ] %s\n", OptionCreatePR)
	fmt.Fprintf(&b, "- [ ] %s\n", OptionAddComments)
	return b.String()
}

func renderProcessingComment(prNumber int, files []models.ChangedFile, mode models.WorkflowMode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Automated analysis for PR #%d\n\n", prNumber)
	b.WriteString(renderFileList(files))
	fmt.Fprintf(&b, "\n:hourglass_flowing_sand: Processing in `%s` mode. This comment will update when the run finishes.\n", mode)
	return b.String()
}

func renderCreatePRDone(prNumber int, files []models.ChangedFile, prURL, branch string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Automated analysis for PR #%d\n\n", prNumber)
	b.WriteString(renderFileList(files))
	fmt.Fprintf(&b, "\n:white_check_mark: Analysis complete. Generated files were pushed to `%s` and opened as a draft PR: %s\n", branch, prURL)
	b.WriteString("\nRe-check a box to run the analysis again.\n")
	return b.String()
}

func renderAddCommentsDone(prNumber int, files []models.ChangedFile, artifactCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Automated analysis for PR #%d\n\n", prNumber)
	b.WriteString(renderFileList(files))
	fmt.Fprintf(&b, "\n:white_check_mark: Analysis complete. Posted %d generated file(s) as comments below.\n", artifactCount)
	b.WriteString("\nRe-check a box to run the analysis again.\n")
	return b.String()
}

func renderSkipped(prNumber int, files []models.ChangedFile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Automated analysis for PR #%d\n\n", prNumber)
	b.WriteString(renderFileList(files))
	b.WriteString("\n:information_source: Analysis produced no files to generate, so nothing was created.\n")
	b.WriteString("\nRe-check a box to run the analysis again.\n")
	return b.String()
}

func renderFailed(prNumber int, files []models.ChangedFile, errMsg string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Automated analysis for PR #%d\n\n", prNumber)
	b.WriteString(renderFileList(files))
	fmt.Fprintf(&b, "\n:x: Analysis failed: `%s`\n", errMsg)
	b.WriteString("\nRe-check a box to try again.\n")
	return b.String()
}

func renderArtifactComment(a models.AnalysisArtifact) string {
	action := "create"
	if a.FileExists {
		action = "update"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Generated file** `%s` (%s, %s):\n\n", a.Path, a.Type, action)
	fmt.Fprintf(&b, "```\n%s\n```\n", a.Content)
	return b.String()
}

func renderSummaryComment(prNumber int, artifacts []models.AnalysisArtifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Analysis summary for PR #%d**: %d generated file(s)\n\n", prNumber, len(artifacts))
	for _, a := range artifacts {
		action := "create"
		if a.FileExists {
			action = "update"
		}
		fmt.Fprintf(&b, "- `%s` (%s, %s)\n", a.Path, a.Type, action)
	}
	return b.String()
}
