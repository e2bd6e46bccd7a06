package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/example/nats-chat-client/internal/chat"
)

func TestDecodeEvent_Added(t *testing.T) {
	payload, _ := json.Marshal(wireMessage{
		AuthorID:    "author-1",
		AuthorName:  "Alice",
		Body:        "hi",
		Kind:        chat.KindText,
		DisplayTime: "12:30",
		ReplyRef:    &chat.ReplyRef{MessageID: "7", AuthorName: "Bob", Snippet: "yo"},
	})

	ev, err := decodeEvent("chat.room.ROOM-AB12CD", payload, 42, time.Now())
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if ev.Kind != chat.EventAdded {
		t.Fatalf("Kind = %v, want added", ev.Kind)
	}
	m := ev.Message
	if m.ID != "42" || m.ServerTime != 42 {
		t.Errorf("id/serverTime = %s/%d, want 42/42", m.ID, m.ServerTime)
	}
	if m.RoomID != "ROOM-AB12CD" || m.AuthorName != "Alice" || m.Body != "hi" {
		t.Errorf("message = %+v", m)
	}
	if m.ReplyRef == nil || m.ReplyRef.MessageID != "7" {
		t.Errorf("ReplyRef = %+v", m.ReplyRef)
	}
}

func TestDecodeEvent_AddedDefaults(t *testing.T) {
	ts := time.Date(2026, 8, 28, 9, 5, 0, 0, time.UTC)
	payload, _ := json.Marshal(wireMessage{AuthorID: "a", Body: "x"})

	ev, err := decodeEvent("chat.room.R1", payload, 1, ts)
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if ev.Message.Kind != chat.KindText {
		t.Errorf("Kind = %q, want text default", ev.Message.Kind)
	}
	if ev.Message.DisplayTime != "09:05" {
		t.Errorf("DisplayTime = %q, want 09:05", ev.Message.DisplayTime)
	}
}

func TestDecodeEvent_Edit(t *testing.T) {
	payload, _ := json.Marshal(wireEdit{Message: chat.Message{
		ID: "42", Body: "edited", Kind: chat.KindText, ServerTime: 42,
	}})

	ev, err := decodeEvent("chat.room.R1.edit", payload, 50, time.Now())
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if ev.Kind != chat.EventModified {
		t.Fatalf("Kind = %v, want modified", ev.Kind)
	}
	// The edit keeps the target's identity and ordering key, not the edit
	// event's own sequence.
	if ev.Message.ID != "42" || ev.Message.ServerTime != 42 {
		t.Errorf("id/serverTime = %s/%d, want 42/42", ev.Message.ID, ev.Message.ServerTime)
	}
	if ev.Message.RoomID != "R1" {
		t.Errorf("RoomID = %q, want R1", ev.Message.RoomID)
	}
}

func TestDecodeEvent_Delete(t *testing.T) {
	payload, _ := json.Marshal(wireDelete{ID: "42"})

	ev, err := decodeEvent("chat.room.R1.delete", payload, 51, time.Now())
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if ev.Kind != chat.EventRemoved || ev.ID != "42" {
		t.Errorf("event = %+v, want removed 42", ev)
	}
}

func TestDecodeEvent_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
	}{
		{"foreign subject", "presence.room.R1", `{}`},
		{"unknown op", "chat.room.R1.react", `{}`},
		{"empty room", "chat.room.", `{}`},
		{"bad json message", "chat.room.R1", `{`},
		{"bad json delete", "chat.room.R1.delete", `{`},
		{"delete without id", "chat.room.R1.delete", `{}`},
		{"edit without id", "chat.room.R1.edit", `{"message":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeEvent(tt.subject, []byte(tt.data), 1, time.Now()); err == nil {
				t.Errorf("decodeEvent(%q) succeeded, want error", tt.subject)
			}
		})
	}
}

func TestValidateRoomID(t *testing.T) {
	tests := []struct {
		roomID string
		ok     bool
	}{
		{"ROOM-AB12CD", true},
		{"general", true},
		{"", false},
		{"a.b", false},
		{"room *", false},
		{"room>", false},
	}
	for _, tt := range tests {
		err := validateRoomID(tt.roomID)
		if (err == nil) != tt.ok {
			t.Errorf("validateRoomID(%q) = %v, want ok=%v", tt.roomID, err, tt.ok)
		}
	}
}
