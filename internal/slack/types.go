package slack

import (
	"fmt"
	"time"
)

// Event is one decoded reaction event from a workspace's stream or from
// historical replay. MessageTS doubles as the message identifier within a
// channel.
type Event struct {
	Type      string `json:"type"` // reaction_added | reaction_removed
	MemberID  string `json:"user"`
	Emoji     string `json:"reaction"`
	Channel   string `json:"channel"`
	MessageTS string `json:"message_ts"`
	EventTS   string `json:"event_ts"`
}

// ExternalMessageID builds the datastore key for the message a reaction
// points at.
func (e Event) ExternalMessageID() string {
	return fmt.Sprintf("slack:%s:%s", e.Channel, e.MessageTS)
}

// Envelope is one Socket Mode frame.
type Envelope struct {
	Type       string // hello | events_api | disconnect | ...
	EnvelopeID string
	Event      *Event // set for events_api reaction events
	Reason     string // set for disconnect
}

// HistoryMessage is one message from conversations.history.
type HistoryMessage struct {
	TS       string `json:"ts"`
	User     string `json:"user"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// HistoryPage is one page of channel history plus the cursor for the next.
type HistoryPage struct {
	Messages   []HistoryMessage
	NextCursor string
}

// Reaction is one emoji with everyone who reacted with it.
type Reaction struct {
	Name  string   `json:"name"`
	Users []string `json:"users"`
}

// RateLimitError signals a Slack 429. The caller waits RetryAfter and
// retries the same call.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// APIError is a Slack "ok": false response.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}
