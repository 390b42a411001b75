package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"reactboard/internal/engine"
	"reactboard/internal/logging"
	"reactboard/internal/registry"
	"reactboard/internal/slack"
)

const fetchAttempts = 4

// Syncer backfills historical reactions by paging channel history and
// replaying synthesized events through the same processing lanes as live
// traffic. Live ingestion is never paused while it runs.
type Syncer struct {
	Registry *registry.Registry
	Client   slack.Client
	Engine   *engine.Engine
	Lanes    *engine.Lanes

	log zerolog.Logger
}

func New(reg *registry.Registry, client slack.Client, eng *engine.Engine, lanes *engine.Lanes) *Syncer {
	return &Syncer{
		Registry: reg,
		Client:   client,
		Engine:   eng,
		Lanes:    lanes,
		log:      logging.Component("syncer"),
	}
}

// Run walks every relevant channel of a workspace and replays each
// existing reaction. Progress is published on the workspace status; sync
// state returns to idle on completion, and a failure is recorded in the
// workspace error field.
func (s *Syncer) Run(ctx context.Context, workspace string) error {
	log := s.log.With().Str("workspace", workspace).Logger()
	creds, ok := s.Registry.Credentials(workspace)
	if !ok {
		return fmt.Errorf("workspace %s not registered", workspace)
	}
	s.Registry.SetSyncing(workspace, "enumerating channels")
	defer s.Registry.SetSyncDone(workspace)

	channels := s.Registry.ChannelsFor(workspace)
	if len(channels) == 0 {
		var err error
		channels, err = s.listChannels(ctx, creds.BotToken)
		if err != nil {
			log.Error().Err(err).Msg("initial sync failed enumerating channels")
			s.Registry.SetSyncFailed(workspace, err.Error())
			return err
		}
	}

	for i, channel := range channels {
		if err := s.syncChannel(ctx, workspace, creds.BotToken, channel, i+1, len(channels)); err != nil {
			log.Error().Err(err).Str("channel", channel).Msg("initial sync failed")
			s.Registry.SetSyncFailed(workspace, err.Error())
			return err
		}
	}
	log.Info().Int("channels", len(channels)).Msg("initial sync complete")
	return nil
}

func (s *Syncer) syncChannel(ctx context.Context, workspace, botToken, channel string, n, total int) error {
	cursor := ""
	seen := 0
	for {
		var page slack.HistoryPage
		err := s.withRetry(ctx, func() error {
			var err error
			// Retries land on the same cursor; a rate-limited page is
			// refetched, never skipped.
			page, err = s.Client.FetchChannelHistory(ctx, botToken, channel, cursor)
			return err
		})
		if err != nil {
			return fmt.Errorf("history for %s: %w", channel, err)
		}
		// History pages arrive newest first; walking each page backwards
		// keeps the replay within a page in chronological order.
		for i := len(page.Messages) - 1; i >= 0; i-- {
			seen++
			s.Registry.SetSyncing(workspace, fmt.Sprintf("channel %d/%d: %d messages", n, total, seen))
			if err := s.replayMessage(ctx, workspace, botToken, channel, page.Messages[i].TS); err != nil {
				return err
			}
		}
		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

func (s *Syncer) replayMessage(ctx context.Context, workspace, botToken, channel, ts string) error {
	var reactions []slack.Reaction
	err := s.withRetry(ctx, func() error {
		var err error
		reactions, err = s.Client.FetchReactions(ctx, botToken, channel, ts)
		return err
	})
	if err != nil {
		return fmt.Errorf("reactions for %s/%s: %w", channel, ts, err)
	}
	for _, reaction := range reactions {
		for _, member := range reaction.Users {
			ev := slack.Event{
				Type:      "reaction_added",
				MemberID:  member,
				Emoji:     reaction.Name,
				Channel:   channel,
				MessageTS: ts,
			}
			// Same lanes as live events so per-tuple order holds within
			// the replay itself.
			if _, err := s.Lanes.DispatchWait(ctx, workspace, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Backfill re-evaluates reactions on every message already captured for a
// workspace. Run at startup to catch reactions made while offline.
func (s *Syncer) Backfill(ctx context.Context, workspace string) error {
	creds, ok := s.Registry.Credentials(workspace)
	if !ok {
		return fmt.Errorf("workspace %s not registered", workspace)
	}
	messages, err := s.Engine.Repo.ListMessagesByWorkspace(ctx, workspace)
	if err != nil {
		return err
	}
	s.Registry.SetSyncing(workspace, fmt.Sprintf("backfill: %d messages", len(messages)))
	defer s.Registry.SetSyncDone(workspace)
	for _, msg := range messages {
		if err := s.replayMessage(ctx, workspace, creds.BotToken, msg.Channel, msg.Timestamp); err != nil {
			return err
		}
	}
	s.log.Info().Str("workspace", workspace).Int("messages", len(messages)).Msg("backfill complete")
	return nil
}

func (s *Syncer) listChannels(ctx context.Context, botToken string) ([]string, error) {
	var channels []string
	err := s.withRetry(ctx, func() error {
		var err error
		channels, err = s.Client.ListChannels(ctx, botToken)
		return err
	})
	return channels, err
}

// withRetry retries transient failures. Rate limits wait the advertised
// interval; other errors back off exponentially for a few attempts.
func (s *Syncer) withRetry(ctx context.Context, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 0

	failures := 0
	for {
		err := fn()
		if err == nil {
			return nil
		}
		var wait time.Duration
		var rle *slack.RateLimitError
		if errors.As(err, &rle) {
			// Rate limits are not failures; wait as told and try again.
			wait = rle.RetryAfter
		} else {
			failures++
			if failures >= fetchAttempts {
				return err
			}
			wait = policy.NextBackOff()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
