package slack

import (
	"context"
	"encoding/json"
	"fmt"

	"nhooyr.io/websocket"
)

// wsStream decodes Socket Mode frames off one websocket connection.
// Protocol-level pings are answered by the websocket library during Read,
// so every successful Read doubles as a liveness signal.
type wsStream struct {
	conn *websocket.Conn
}

type socketEnvelope struct {
	Type       string `json:"type"`
	EnvelopeID string `json:"envelope_id"`
	Reason     string `json:"reason"`
	Payload    struct {
		Event *rawEvent `json:"event"`
	} `json:"payload"`
}

type rawEvent struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	Reaction string `json:"reaction"`
	EventTS  string `json:"event_ts"`
	Item     struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	} `json:"item"`
}

func (s *wsStream) Read(ctx context.Context) (Envelope, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return Envelope{}, fmt.Errorf("socket read: %w", err)
	}
	return decodeEnvelope(data)
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var raw socketEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	env := Envelope{
		Type:       raw.Type,
		EnvelopeID: raw.EnvelopeID,
		Reason:     raw.Reason,
	}
	if raw.Type == "events_api" && raw.Payload.Event != nil {
		ev := raw.Payload.Event
		if (ev.Type == "reaction_added" || ev.Type == "reaction_removed") && ev.Item.Type == "message" {
			env.Event = &Event{
				Type:      ev.Type,
				MemberID:  ev.User,
				Emoji:     ev.Reaction,
				Channel:   ev.Item.Channel,
				MessageTS: ev.Item.TS,
				EventTS:   ev.EventTS,
			}
		}
	}
	return env, nil
}

func (s *wsStream) Ack(ctx context.Context, envelopeID string) error {
	ack, err := json.Marshal(map[string]string{"envelope_id": envelopeID})
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, ack)
}

func (s *wsStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "shutting down")
}
