package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"

	"runboat/internal/resolver"
	"runboat/pkg/logging"
)

// maxPayloadSize caps webhook bodies; GitHub documents 25MB but push and
// pull_request payloads are far smaller.
const maxPayloadSize = 5 << 20

const (
	branchRefPrefix = "refs/heads/"
	zeroCommit      = "0000000000000000000000000000000000000000"
)

func (s *Server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadSize)

	var (
		payload []byte
		err     error
	)
	if len(s.webhookSecret) > 0 {
		payload, err = github.ValidatePayload(r, s.webhookSecret)
		if err != nil {
			logging.Warn("APIServer", "Rejected webhook delivery: %v", err)
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid signature"))
			return
		}
	} else {
		payload, err = io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read payload: %w", err))
			return
		}
	}

	eventType := github.WebHookType(r)
	if eventType == "ping" {
		writeJSON(w, http.StatusOK, WebhookResponse{Event: eventType})
		return
	}

	parsed, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		// Unknown event types are acknowledged so GitHub does not keep
		// reporting failed deliveries for hooks subscribed to more events.
		logging.Debug("APIServer", "Ignoring webhook %q: %v", eventType, err)
		writeJSON(w, http.StatusAccepted, WebhookResponse{Event: eventType})
		return
	}

	events := translateWebhook(parsed)

	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()
	for i, ev := range events {
		if err := s.controller.SubmitEvent(ctx, ev); err != nil {
			logging.Error("APIServer", err, "Failed to queue %s (delivery %s)", ev, github.DeliveryID(r))
			writeJSON(w, http.StatusServiceUnavailable, WebhookResponse{Event: eventType, Queued: i})
			return
		}
	}

	logging.Debug("APIServer", "Webhook %s (delivery %s) queued %d events", eventType, github.DeliveryID(r), len(events))
	writeJSON(w, http.StatusAccepted, WebhookResponse{Event: eventType, Queued: len(events)})
}

// translateWebhook maps a parsed GitHub event to repository events. Events
// that do not affect builds translate to nothing.
func translateWebhook(event interface{}) []resolver.Event {
	switch e := event.(type) {
	case *github.PushEvent:
		return translatePush(e)
	case *github.PullRequestEvent:
		return translatePullRequest(e)
	default:
		return nil
	}
}

func translatePush(e *github.PushEvent) []resolver.Event {
	ref := e.GetRef()
	if !strings.HasPrefix(ref, branchRefPrefix) {
		// Tags do not get builds.
		return nil
	}
	ev := resolver.Event{
		Repo: e.GetRepo().GetFullName(),
		Ref:  strings.TrimPrefix(ref, branchRefPrefix),
	}

	if e.GetDeleted() || e.GetAfter() == zeroCommit {
		ev.Kind = resolver.EventClosed
		return []resolver.Event{ev}
	}

	ev.Kind = resolver.EventPushed
	ev.Commit = e.GetAfter()
	return []resolver.Event{ev}
}

// PullRequestRef is the ref under which pull request builds are tracked.
// Git forbids ":" in branch names, so it never equals a branch ref.
func PullRequestRef(number int) string {
	return fmt.Sprintf("pr:%d", number)
}

func translatePullRequest(e *github.PullRequestEvent) []resolver.Event {
	pr := e.GetPullRequest()
	ev := resolver.Event{
		Repo:   e.GetRepo().GetFullName(),
		Ref:    PullRequestRef(e.GetNumber()),
		Target: pr.GetBase().GetRef(),
	}
	if ev.Ref == PullRequestRef(0) {
		ev.Ref = PullRequestRef(pr.GetNumber())
	}

	switch e.GetAction() {
	case "opened", "synchronize":
		ev.Kind = resolver.EventPushed
		ev.Commit = pr.GetHead().GetSHA()
	case "reopened":
		ev.Kind = resolver.EventReopened
		ev.Commit = pr.GetHead().GetSHA()
	case "closed":
		ev.Kind = resolver.EventClosed
	default:
		return nil
	}
	return []resolver.Event{ev}
}
