package models

import "time"

// ChangedFile is one file touched by the pull request under analysis.
// It is a snapshot taken when the workflow starts and is never refreshed
// mid-run.
type ChangedFile struct {
	Path      string `json:"path"`
	Status    string `json:"status"` // added|modified|deleted|renamed
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

// AnalysisArtifact is one generated file returned by the analysis service.
// FileExists reports whether the service believes the file is already
// present on the head branch; it drives create-vs-update handling.
type AnalysisArtifact struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	Type       string `json:"type"`
	FileExists bool   `json:"fileExists"`
}

// WorkflowMode is the analysis mode the developer picked via checkbox.
type WorkflowMode string

const (
	ModeCreatePR    WorkflowMode = "create_pr"
	ModeAddComments WorkflowMode = "add_comments"
)

// WorkflowStatus tracks a run through its terminal state.
type WorkflowStatus string

const (
	WorkflowPending WorkflowStatus = "pending"
	WorkflowSuccess WorkflowStatus = "success"
	WorkflowError   WorkflowStatus = "error"
)

// WorkflowRun is the in-memory record of one checkbox-triggered run.
// There is no persistence; a run lives only as long as its webhook
// delivery is being handled.
type WorkflowRun struct {
	ID              string
	PRNumber        int
	HeadBranch      string
	BaseBranch      string
	Mode            WorkflowMode
	GeneratedBranch string
	Status          WorkflowStatus
	StartedAt       time.Time
}
