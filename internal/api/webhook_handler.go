package api

import (
	"io"
	"net/http"

	"github.com/google/go-github/v84/github"
	"github.com/labstack/echo/v4"

	"github.com/stackdraft/internal/orchestrator"
	"github.com/stackdraft/internal/webhookutils"
)

// webhookResponse is the JSON body returned for every delivery. GitHub
// ignores it, but it makes redelivery debugging from the App dashboard
// much easier.
type webhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Skipped bool   `json:"skipped,omitempty"`
}

const ackMessage = "Webhook processed successfully"

// webhookHandler dispatches GitHub webhook deliveries. Only two
// event/action combinations do anything: pull_request/opened and
// issue_comment/edited on a PR. Everything else is acknowledged with no
// side effects so GitHub does not mark deliveries as failed.
func (s *Server) webhookHandler(c echo.Context) error {
	req := c.Request()

	deliveryID, _ := webhookutils.GetHeaderCaseInsensitive(req.Header, "X-GitHub-Delivery")
	eventType, _ := webhookutils.GetHeaderCaseInsensitive(req.Header, "X-GitHub-Event")
	log := s.log.With().Str("delivery_id", deliveryID).Str("event", eventType).Logger()

	var payload []byte
	var err error
	if s.webhookSecret != "" {
		payload, err = github.ValidatePayload(req, []byte(s.webhookSecret))
		if err != nil {
			log.Warn().Err(err).Msg("rejecting delivery with bad signature")
			return c.JSON(http.StatusUnauthorized, webhookResponse{
				Success: false,
				Message: "invalid webhook signature",
			})
		}
	} else {
		payload, err = io.ReadAll(req.Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, webhookResponse{
				Success: false,
				Message: "could not read payload",
			})
		}
	}

	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		// Unknown or unparseable event types are not our problem; ack them.
		log.Debug().Err(err).Msg("ignoring unparseable event")
		return c.JSON(http.StatusOK, webhookResponse{Success: true, Message: ackMessage})
	}

	ctx := req.Context()

	switch ev := event.(type) {
	case *github.PullRequestEvent:
		if ev.GetAction() != "opened" {
			break
		}
		res, err := s.orchestrator.HandlePullRequestOpened(ctx, orchestrator.PullRequestOpened{
			Owner:      ev.GetRepo().GetOwner().GetLogin(),
			Repo:       ev.GetRepo().GetName(),
			Number:     ev.GetPullRequest().GetNumber(),
			HeadBranch: ev.GetPullRequest().GetHead().GetRef(),
			HeadSHA:    ev.GetPullRequest().GetHead().GetSHA(),
		})
		if err != nil {
			log.Error().Err(err).Msg("pull_request handler failed")
			return c.JSON(http.StatusInternalServerError, webhookResponse{
				Success: false,
				Message: err.Error(),
			})
		}
		return c.JSON(http.StatusOK, webhookResponse{Success: true, Message: res.Message, Skipped: res.Skipped})

	case *github.IssueCommentEvent:
		// Issue comments on plain issues have no PR to analyze.
		if ev.GetAction() != "edited" || !ev.GetIssue().IsPullRequest() {
			break
		}
		res, err := s.orchestrator.HandleCommentEdited(ctx, orchestrator.CommentEdited{
			Owner:     ev.GetRepo().GetOwner().GetLogin(),
			Repo:      ev.GetRepo().GetName(),
			PRNumber:  ev.GetIssue().GetNumber(),
			CommentID: ev.GetComment().GetID(),
			Body:      ev.GetComment().GetBody(),
		})
		if err != nil {
			log.Error().Err(err).Msg("issue_comment handler failed")
			return c.JSON(http.StatusInternalServerError, webhookResponse{
				Success: false,
				Message: err.Error(),
			})
		}
		return c.JSON(http.StatusOK, webhookResponse{Success: true, Message: res.Message, Skipped: res.Skipped})
	}

	return c.JSON(http.StatusOK, webhookResponse{Success: true, Message: ackMessage})
}
