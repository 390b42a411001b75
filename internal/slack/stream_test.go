package slack

import "testing"

func TestDecodeReactionEnvelope(t *testing.T) {
	data := []byte(`{
		"type": "events_api",
		"envelope_id": "env-1",
		"payload": {
			"event": {
				"type": "reaction_added",
				"user": "U100",
				"reaction": "eyes",
				"event_ts": "1700.0002",
				"item": {"type": "message", "channel": "C1", "ts": "1700.0001"}
			}
		}
	}`)
	env, err := decodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != "events_api" || env.EnvelopeID != "env-1" {
		t.Fatalf("envelope = %+v", env)
	}
	if env.Event == nil {
		t.Fatalf("event missing")
	}
	want := Event{Type: "reaction_added", MemberID: "U100", Emoji: "eyes", Channel: "C1", MessageTS: "1700.0001", EventTS: "1700.0002"}
	if *env.Event != want {
		t.Fatalf("event = %+v, want %+v", *env.Event, want)
	}
}

func TestDecodeIgnoresNonMessageReactions(t *testing.T) {
	data := []byte(`{
		"type": "events_api",
		"envelope_id": "env-2",
		"payload": {
			"event": {
				"type": "reaction_added",
				"user": "U100",
				"reaction": "eyes",
				"item": {"type": "file", "channel": "C1"}
			}
		}
	}`)
	env, err := decodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Event != nil {
		t.Fatalf("file reaction produced an event: %+v", env.Event)
	}
	if env.EnvelopeID != "env-2" {
		t.Fatalf("envelope id lost: %+v", env)
	}
}

func TestDecodeDisconnect(t *testing.T) {
	env, err := decodeEnvelope([]byte(`{"type":"disconnect","reason":"refresh_requested"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != "disconnect" || env.Reason != "refresh_requested" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	if _, err := decodeEnvelope([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
