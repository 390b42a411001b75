package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"reactboard/internal/engine"
	"reactboard/internal/logging"
	"reactboard/internal/registry"
	"reactboard/internal/slack"
)

const maxReconnectInterval = time.Minute

// Supervisor owns one workspace's event-stream connection: connect, read,
// ack, heartbeat, reconnect with backoff. It runs until its context is
// cancelled and never takes another workspace down with it.
type Supervisor struct {
	Workspace string
	Registry  *registry.Registry
	Client    slack.Client
	Lanes     *engine.Lanes

	log zerolog.Logger
}

func New(workspace string, reg *registry.Registry, client slack.Client, lanes *engine.Lanes) *Supervisor {
	return &Supervisor{
		Workspace: workspace,
		Registry:  reg,
		Client:    client,
		Lanes:     lanes,
		log:       logging.Component("supervisor").With().Str("workspace", workspace).Logger(),
	}
}

// Run drives the connect/receive/reconnect cycle. It returns only on
// context cancellation; connection failures, including revoked
// credentials, are retried forever at the backoff cap so a fix applied
// externally picks up without a restart.
func (s *Supervisor) Run(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = maxReconnectInterval
	policy.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			s.Registry.SetDisconnected(s.Workspace)
			return
		}
		err := s.runOnce(ctx, policy)
		if ctx.Err() != nil {
			s.Registry.SetDisconnected(s.Workspace)
			return
		}
		cause := "connection closed"
		if err != nil {
			cause = err.Error()
		}
		s.Registry.SetError(s.Workspace, cause)
		wait := policy.NextBackOff()
		s.log.Warn().Err(err).Dur("retry_in", wait).Msg("event stream down, reconnecting")
		select {
		case <-ctx.Done():
			s.Registry.SetDisconnected(s.Workspace)
			return
		case <-time.After(wait):
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context, policy *backoff.ExponentialBackOff) error {
	s.Registry.SetConnecting(s.Workspace)
	creds, ok := s.Registry.Credentials(s.Workspace)
	if !ok {
		return fmt.Errorf("workspace %s removed from registry", s.Workspace)
	}
	stream, err := s.Client.OpenEventStream(ctx, creds.AppToken)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	defer stream.Close()

	s.Registry.SetConnected(s.Workspace)
	policy.Reset()
	s.log.Info().Msg("connected to event stream")

	return s.readLoop(ctx, stream)
}

func (s *Supervisor) readLoop(ctx context.Context, stream slack.Stream) error {
	channels := s.Registry.ChannelsFor(s.Workspace)
	for {
		env, err := stream.Read(ctx)
		if err != nil {
			return err
		}
		// Any successful exchange proves the connection is alive.
		s.Registry.Heartbeat(s.Workspace)

		if env.EnvelopeID != "" {
			if err := stream.Ack(ctx, env.EnvelopeID); err != nil {
				return fmt.Errorf("ack %s: %w", env.EnvelopeID, err)
			}
		}
		switch env.Type {
		case "disconnect":
			return fmt.Errorf("server requested disconnect: %s", env.Reason)
		case "events_api":
			if env.Event == nil {
				continue
			}
			if !channelAllowed(channels, env.Event.Channel) {
				s.log.Debug().Str("channel", env.Event.Channel).Msg("event outside configured channels")
				continue
			}
			s.Lanes.Dispatch(ctx, s.Workspace, *env.Event)
		}
	}
}

func channelAllowed(allowlist []string, channel string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, c := range allowlist {
		if c == channel {
			return true
		}
	}
	return false
}
