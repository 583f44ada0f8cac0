// Package orchestrator drives the end-to-end analysis workflow:
//
//	Idle -> AwaitingChoice -> Processing -> Completed | Failed
//
// A PR-opened event posts the interactive comment (AwaitingChoice); an
// edit checking exactly one box runs the chosen mode (Processing); the
// run ends by rewriting the comment and reporting a commit status.
// Failure is terminal for a run — re-editing the comment starts over.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stackdraft/internal/githubclient"
	"github.com/stackdraft/pkg/models"
)

// BranchPrefix marks branches generated by this bot. It is the sole
// loop-prevention signal: PRs whose head carries it never trigger a new
// workflow.
const BranchPrefix = "auto-analysis-pr-"

// maxErrorStatusLen caps the error text placed into a commit status
// description before the 140-character API truncation is applied.
const maxErrorStatusLen = 80

// GitHub is the slice of the repository client the orchestrator uses.
type GitHub interface {
	GetRef(ctx context.Context, owner, repo, branch string) (string, error)
	CreateRef(ctx context.Context, owner, repo, branch, sha string) error
	GetFileSHA(ctx context.Context, owner, repo, path, ref string) (string, error)
	CreateOrUpdateFile(ctx context.Context, owner, repo, path, branch, message string, content []byte, sha string) error
	CreatePullRequest(ctx context.Context, owner, repo string, params githubclient.PullRequestParams) (*githubclient.PullRequest, error)
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*models.WorkflowRun, error)
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) (int64, error)
	UpdateIssueComment(ctx context.Context, owner, repo string, commentID int64, body string) error
	SetCommitStatus(ctx context.Context, owner, repo, sha, state, description, targetURL string) error
	ListPullRequestFiles(ctx context.Context, owner, repo string, number int) ([]models.ChangedFile, error)
}

// Analyzer is the external analysis collaborator.
type Analyzer interface {
	AnalyzeFiles(ctx context.Context, changed []models.ChangedFile) ([]models.AnalysisArtifact, error)
}

// PullRequestOpened is the orchestrator's view of a pull_request/opened
// delivery.
type PullRequestOpened struct {
	Owner      string
	Repo       string
	Number     int
	HeadBranch string
	HeadSHA    string
}

// CommentEdited is the orchestrator's view of an issue_comment/edited
// delivery on a PR.
type CommentEdited struct {
	Owner     string
	Repo      string
	PRNumber  int
	CommentID int64
	Body      string
}

// Result reports what a handler did, for the webhook response and logs.
type Result struct {
	Skipped bool
	Message string
	Mode    models.WorkflowMode
}

// Orchestrator wires the GitHub façade and the analysis collaborator into
// the workflow state machine. It holds no per-PR state; everything lives
// in the handler call.
type Orchestrator struct {
	gh       GitHub
	analyzer Analyzer
	log      zerolog.Logger
	now      func() time.Time
}

// New creates an Orchestrator.
func New(gh GitHub, analyzer Analyzer, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		gh:       gh,
		analyzer: analyzer,
		log:      log.With().Str("component", "orchestrator").Logger(),
		now:      time.Now,
	}
}

// HandlePullRequestOpened is the Idle -> AwaitingChoice transition: post
// the interactive comment listing changed files and mark the head commit
// pending. Self-generated PRs short-circuit before any API call.
func (o *Orchestrator) HandlePullRequestOpened(ctx context.Context, ev PullRequestOpened) (Result, error) {
	log := o.log.With().Str("repo", ev.Owner+"/"+ev.Repo).Int("pr", ev.Number).Logger()

	if strings.HasPrefix(ev.HeadBranch, BranchPrefix) {
		log.Info().Str("head", ev.HeadBranch).Msg("ignoring self-generated pull request")
		return Result{Skipped: true, Message: "self-generated PR"}, nil
	}

	files, err := o.gh.ListPullRequestFiles(ctx, ev.Owner, ev.Repo, ev.Number)
	if err != nil {
		return Result{}, fmt.Errorf("listing changed files: %w", err)
	}

	if _, err := o.gh.CreateIssueComment(ctx, ev.Owner, ev.Repo, ev.Number,
		renderInitialComment(ev.Number, files)); err != nil {
		return Result{}, fmt.Errorf("posting interactive comment: %w", err)
	}

	o.setStatus(ctx, ev.Owner, ev.Repo, ev.HeadSHA, "pending", "Awaiting analysis mode selection", "")

	log.Info().Int("changed_files", len(files)).Msg("posted analysis offer")
	return Result{Message: "awaiting choice"}, nil
}

// HandleCommentEdited is the AwaitingChoice -> Processing transition and
// everything after it. Zero or two checked boxes is an acknowledged no-op.
func (o *Orchestrator) HandleCommentEdited(ctx context.Context, ev CommentEdited) (Result, error) {
	log := o.log.With().Str("repo", ev.Owner+"/"+ev.Repo).Int("pr", ev.PRNumber).Logger()

	choice := DetectChoice(ev.Body)
	switch choice {
	case ChoiceNone, ChoiceConflicting:
		log.Debug().Stringer("choice", choice).Msg("no actionable selection")
		return Result{Skipped: true, Message: "no selection"}, nil
	}

	mode := models.ModeCreatePR
	if choice == ChoiceAddComments {
		mode = models.ModeAddComments
	}

	pr, err := o.gh.GetPullRequest(ctx, ev.Owner, ev.Repo, ev.PRNumber)
	if err != nil {
		return Result{}, fmt.Errorf("loading pull request: %w", err)
	}

	headSHA, err := o.gh.GetRef(ctx, ev.Owner, ev.Repo, pr.HeadBranch)
	if err != nil {
		return Result{}, fmt.Errorf("resolving head sha: %w", err)
	}

	files, err := o.gh.ListPullRequestFiles(ctx, ev.Owner, ev.Repo, ev.PRNumber)
	if err != nil {
		return Result{}, fmt.Errorf("listing changed files: %w", err)
	}

	run := &models.WorkflowRun{
		ID:         uuid.NewString(),
		PRNumber:   ev.PRNumber,
		HeadBranch: pr.HeadBranch,
		BaseBranch: pr.BaseBranch,
		Mode:       mode,
		Status:     models.WorkflowPending,
		StartedAt:  o.now(),
	}
	log = log.With().Str("run_id", run.ID).Str("mode", string(mode)).Logger()

	if err := o.gh.UpdateIssueComment(ctx, ev.Owner, ev.Repo, ev.CommentID,
		renderProcessingComment(ev.PRNumber, files, mode)); err != nil {
		return Result{}, fmt.Errorf("marking comment as processing: %w", err)
	}
	o.setStatus(ctx, ev.Owner, ev.Repo, headSHA, "pending", "Running analysis", "")

	var result Result
	switch mode {
	case models.ModeCreatePR:
		result, err = o.runCreatePR(ctx, ev, run, files, headSHA)
	case models.ModeAddComments:
		result, err = o.runAddComments(ctx, ev, run, files, headSHA)
	}
	if err != nil {
		run.Status = models.WorkflowError
		log.Error().Err(err).Msg("workflow failed")
		o.setStatus(ctx, ev.Owner, ev.Repo, headSHA, "error", truncateError(err), "")
		if uerr := o.gh.UpdateIssueComment(ctx, ev.Owner, ev.Repo, ev.CommentID,
			renderFailed(ev.PRNumber, files, err.Error())); uerr != nil {
			log.Error().Err(uerr).Msg("could not rewrite comment after failure")
		}
		return Result{}, err
	}

	run.Status = models.WorkflowSuccess
	log.Info().Bool("skipped", result.Skipped).Msg("workflow completed")
	return result, nil
}

// runCreatePR executes create_pr mode: push every artifact to a fresh
// branch stacked on the PR's head, then open a draft PR whose base is that
// head branch.
func (o *Orchestrator) runCreatePR(ctx context.Context, ev CommentEdited, run *models.WorkflowRun, files []models.ChangedFile, headSHA string) (Result, error) {
	artifacts, err := o.analyzer.AnalyzeFiles(ctx, files)
	if err != nil {
		return Result{}, err
	}

	if len(artifacts) == 0 {
		o.setStatus(ctx, ev.Owner, ev.Repo, headSHA, "success", "Analysis skipped: nothing to generate", "")
		if err := o.gh.UpdateIssueComment(ctx, ev.Owner, ev.Repo, ev.CommentID,
			renderSkipped(ev.PRNumber, files)); err != nil {
			return Result{}, err
		}
		return Result{Skipped: true, Mode: run.Mode, Message: "no artifacts"}, nil
	}

	baseSHA, err := o.gh.GetRef(ctx, ev.Owner, ev.Repo, run.HeadBranch)
	if err != nil {
		return Result{}, err
	}

	run.GeneratedBranch = fmt.Sprintf("%s%d-%d", BranchPrefix, ev.PRNumber, o.now().UnixMilli())
	if err := o.gh.CreateRef(ctx, ev.Owner, ev.Repo, run.GeneratedBranch, baseSHA); err != nil {
		return Result{}, err
	}

	for _, artifact := range artifacts {
		sha := ""
		if artifact.FileExists {
			// The service may believe the file exists when it does not; a
			// missing blob downgrades to create semantics instead of failing.
			sha, err = o.gh.GetFileSHA(ctx, ev.Owner, ev.Repo, artifact.Path, run.GeneratedBranch)
			if err != nil {
				return Result{}, err
			}
		}
		verb := "Add"
		if sha != "" {
			verb = "Update"
		}
		message := fmt.Sprintf("%s %s from automated analysis of PR #%d", verb, artifact.Path, ev.PRNumber)
		if err := o.gh.CreateOrUpdateFile(ctx, ev.Owner, ev.Repo,
			artifact.Path, run.GeneratedBranch, message, []byte(artifact.Content), sha); err != nil {
			return Result{}, err
		}
	}

	pr, err := o.gh.CreatePullRequest(ctx, ev.Owner, ev.Repo, githubclient.PullRequestParams{
		Title: fmt.Sprintf("Automated analysis for PR #%d", ev.PRNumber),
		Body: fmt.Sprintf("Generated files from the automated analysis of #%d.\n\nThis PR is stacked on `%s`; merge or close it before merging #%d.",
			ev.PRNumber, run.HeadBranch, ev.PRNumber),
		Head:  run.GeneratedBranch,
		Base:  run.HeadBranch,
		Draft: true,
	})
	if err != nil {
		return Result{}, err
	}

	o.setStatus(ctx, ev.Owner, ev.Repo, headSHA, "success", fmt.Sprintf("Analysis PR #%d created", pr.Number), pr.HTMLURL)
	if err := o.gh.UpdateIssueComment(ctx, ev.Owner, ev.Repo, ev.CommentID,
		renderCreatePRDone(ev.PRNumber, files, pr.HTMLURL, run.GeneratedBranch)); err != nil {
		return Result{}, err
	}

	return Result{Mode: run.Mode, Message: pr.HTMLURL}, nil
}

// runAddComments executes add_comments mode: one comment per artifact plus
// a summary, no branch or PR creation.
func (o *Orchestrator) runAddComments(ctx context.Context, ev CommentEdited, run *models.WorkflowRun, files []models.ChangedFile, headSHA string) (Result, error) {
	artifacts, err := o.analyzer.AnalyzeFiles(ctx, files)
	if err != nil {
		return Result{}, err
	}

	if len(artifacts) == 0 {
		o.setStatus(ctx, ev.Owner, ev.Repo, headSHA, "success", "Analysis skipped: nothing to generate", "")
		if err := o.gh.UpdateIssueComment(ctx, ev.Owner, ev.Repo, ev.CommentID,
			renderSkipped(ev.PRNumber, files)); err != nil {
			return Result{}, err
		}
		return Result{Skipped: true, Mode: run.Mode, Message: "no artifacts"}, nil
	}

	for _, artifact := range artifacts {
		if _, err := o.gh.CreateIssueComment(ctx, ev.Owner, ev.Repo, ev.PRNumber,
			renderArtifactComment(artifact)); err != nil {
			return Result{}, err
		}
	}
	if _, err := o.gh.CreateIssueComment(ctx, ev.Owner, ev.Repo, ev.PRNumber,
		renderSummaryComment(ev.PRNumber, artifacts)); err != nil {
		return Result{}, err
	}

	o.setStatus(ctx, ev.Owner, ev.Repo, headSHA, "success", fmt.Sprintf("Analysis added %d comment(s)", len(artifacts)), "")
	if err := o.gh.UpdateIssueComment(ctx, ev.Owner, ev.Repo, ev.CommentID,
		renderAddCommentsDone(ev.PRNumber, files, len(artifacts))); err != nil {
		return Result{}, err
	}

	return Result{Mode: run.Mode, Message: fmt.Sprintf("%d comments", len(artifacts))}, nil
}

// setStatus reports progress on the head commit. Status submission is
// best-effort telemetry: a failure here is logged and never escalates an
// otherwise healthy run.
func (o *Orchestrator) setStatus(ctx context.Context, owner, repo, sha, state, description, targetURL string) {
	if err := o.gh.SetCommitStatus(ctx, owner, repo, sha, state, description, targetURL); err != nil {
		o.log.Warn().Err(err).Str("state", state).Msg("could not set commit status")
	}
}

// truncateError shortens an error for the commit status description.
func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > maxErrorStatusLen {
		msg = msg[:maxErrorStatusLen] + "..."
	}
	return msg
}
