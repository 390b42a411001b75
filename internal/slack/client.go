package slack

import "context"

// Stream is one live Socket Mode connection. Read blocks until the next
// envelope; every envelope carrying an id must be acked promptly or Slack
// redelivers it.
type Stream interface {
	Read(ctx context.Context) (Envelope, error)
	Ack(ctx context.Context, envelopeID string) error
	Close() error
}

// Client is the messaging-platform surface the engine, supervisor and
// syncer consume. Implementations take tokens per call so one client
// serves every workspace.
type Client interface {
	// OpenEventStream negotiates a Socket Mode URL and dials it.
	OpenEventStream(ctx context.Context, appToken string) (Stream, error)

	// FetchChannelHistory pages messages; pages and the messages within
	// them arrive newest first.
	FetchChannelHistory(ctx context.Context, botToken, channel, cursor string) (HistoryPage, error)

	// FetchMessage fetches the single message at ts in channel.
	FetchMessage(ctx context.Context, botToken, channel, ts string) (HistoryMessage, error)

	// FetchReactions lists existing reactions on one message.
	FetchReactions(ctx context.Context, botToken, channel, ts string) ([]Reaction, error)

	// ResolveMemberByEmail maps an email to a workspace member id and
	// display name. Used by the linking flow.
	ResolveMemberByEmail(ctx context.Context, botToken, email string) (memberID, name string, err error)

	// ListChannels enumerates channels the bot can read.
	ListChannels(ctx context.Context, botToken string) ([]string, error)

	// Permalink returns a deep link to one message, or "" when unavailable.
	Permalink(ctx context.Context, botToken, channel, ts string) (string, error)
}
