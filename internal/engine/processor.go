package engine

import (
	"context"
	"errors"
	"fmt"

	"reactboard/internal/domain"
	"reactboard/internal/repo"
	"reactboard/internal/slack"
)

// Outcome classifies what processing one event did. Skips are expected
// steady-state behavior, not faults.
type Outcome string

const (
	Applied                  Outcome = "applied"
	SkippedUnlinkedUser      Outcome = "skipped_unlinked_user"
	SkippedUnrecognizedEmoji Outcome = "skipped_unrecognized_emoji"
	SkippedNoOp              Outcome = "skipped_noop"
	Failed                   Outcome = "failed"
)

// Handle processes one reaction event for a workspace: resolve the
// reactor, map the emoji, capture the message, upsert the task. Both live
// and replayed events come through here.
func (e *Engine) Handle(ctx context.Context, workspace string, ev slack.Event) (Outcome, error) {
	if ev.MemberID == "" || ev.Channel == "" || ev.MessageTS == "" {
		return Failed, fmt.Errorf("event missing user or message reference")
	}

	link, err := e.Repo.GetLinkByMember(ctx, workspace, ev.MemberID)
	if errors.Is(err, repo.ErrNotFound) {
		e.log.Debug().Str("workspace", workspace).Str("member", ev.MemberID).Msg("reaction from unlinked member")
		return SkippedUnlinkedUser, nil
	}
	if err != nil {
		return Failed, fmt.Errorf("resolve member %s: %w", ev.MemberID, err)
	}

	mapping, ok := e.Registry.Mapping(workspace)
	if !ok {
		return Failed, fmt.Errorf("workspace %s not registered", workspace)
	}

	var target domain.Status
	if ev.Type == "reaction_removed" {
		target, ok = e.remainingStatus(ctx, workspace, link.PersonID, ev)
		if !ok {
			e.log.Debug().Str("workspace", workspace).Str("emoji", ev.Emoji).Msg("no mapped reactions remain")
			return SkippedNoOp, nil
		}
	} else {
		target, ok = mapping.Resolve(ev.Emoji)
		if !ok {
			e.log.Debug().Str("workspace", workspace).Str("emoji", ev.Emoji).Msg("unrecognized emoji")
			return SkippedUnrecognizedEmoji, nil
		}
	}

	msg, err := e.ensureMessage(ctx, workspace, ev)
	if err != nil {
		return Failed, fmt.Errorf("capture message: %w", err)
	}

	assignedBy := e.initiatorFor(msg, link.PersonID)
	res, err := e.Upsert(ctx, workspace, msg.ID, link.PersonID, assignedBy, target)
	if err != nil {
		return Failed, err
	}
	if res == UpsertNoOp {
		return SkippedNoOp, nil
	}
	e.log.Info().Str("workspace", workspace).Str("message", msg.ExternalID).
		Str("person", link.PersonID).Str("status", string(target)).Str("result", string(res)).
		Msg("reaction applied")
	return Applied, nil
}

// remainingStatus re-evaluates the member's surviving reactions on the
// message after a removal. Completed outranks Blocked outranks InProgress.
func (e *Engine) remainingStatus(ctx context.Context, workspace, personID string, ev slack.Event) (domain.Status, bool) {
	mapping, ok := e.Registry.Mapping(workspace)
	if !ok {
		return "", false
	}
	creds, ok := e.Registry.Credentials(workspace)
	if !ok {
		return "", false
	}
	reactions, err := e.Slack.FetchReactions(ctx, creds.BotToken, ev.Channel, ev.MessageTS)
	if err != nil {
		e.log.Warn().Err(err).Str("workspace", workspace).Msg("fetch reactions after removal")
		return "", false
	}
	var have [3]bool
	for _, reaction := range reactions {
		mine := false
		for _, u := range reaction.Users {
			if u == ev.MemberID {
				mine = true
				break
			}
		}
		if !mine {
			continue
		}
		if status, ok := mapping.Resolve(reaction.Name); ok {
			switch status {
			case domain.StatusInProgress:
				have[0] = true
			case domain.StatusBlocked:
				have[1] = true
			case domain.StatusCompleted:
				have[2] = true
			}
		}
	}
	switch {
	case have[2]:
		return domain.StatusCompleted, true
	case have[1]:
		return domain.StatusBlocked, true
	case have[0]:
		return domain.StatusInProgress, true
	}
	return "", false
}

// ensureMessage returns the stored message row for the event's target,
// capturing a snapshot on first sight.
func (e *Engine) ensureMessage(ctx context.Context, workspace string, ev slack.Event) (domain.Message, error) {
	externalID := ev.ExternalMessageID()
	msg, err := e.Repo.GetMessageByExternalID(ctx, workspace, externalID)
	if err == nil {
		return msg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Message{}, err
	}

	creds, ok := e.Registry.Credentials(workspace)
	if !ok {
		return domain.Message{}, fmt.Errorf("workspace %s not registered", workspace)
	}
	fetched, err := e.Slack.FetchMessage(ctx, creds.BotToken, ev.Channel, ev.MessageTS)
	if err != nil {
		return domain.Message{}, err
	}
	permalink, err := e.Slack.Permalink(ctx, creds.BotToken, ev.Channel, ev.MessageTS)
	if err != nil {
		// Deep link is nice to have; fall back to the slack:// form.
		permalink = fmt.Sprintf("slack://channel?id=%s&message=%s", ev.Channel, ev.MessageTS)
	}

	var authorID *string
	if fetched.User != "" {
		if authorLink, err := e.Repo.GetLinkByMember(ctx, workspace, fetched.User); err == nil {
			authorID = &authorLink.PersonID
		}
	}
	return e.Repo.EnsureMessage(ctx, domain.Message{
		WorkspaceName: workspace,
		ExternalID:    externalID,
		Content:       fetched.Text,
		Channel:       ev.Channel,
		Timestamp:     ev.MessageTS,
		Permalink:     permalink,
		AuthorID:      authorID,
	})
}

// initiatorFor records the message author as the task initiator when they
// are a known person other than the assignee.
func (e *Engine) initiatorFor(msg domain.Message, assigneeID string) *string {
	if msg.AuthorID == nil || *msg.AuthorID == assigneeID {
		return nil
	}
	return msg.AuthorID
}
