// Package store implements the remote collaborators of the sync engine on
// NATS JetStream: the per-room ordered change stream, message creation,
// edits and deletes, and the media blob bucket.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/example/nats-chat-client/internal/chat"
	"github.com/example/nats-chat-client/pkg/otelhelper"
)

const (
	streamName    = "CHAT_MESSAGES"
	subjectPrefix = "chat.room."

	opEdit   = "edit"
	opDelete = "delete"
)

// wireMessage is the payload of a new-message event. The backend assigns
// id and ordering key: subscribers derive both from the stream sequence.
type wireMessage struct {
	AuthorID    string         `json:"authorId"`
	AuthorName  string         `json:"authorName"`
	Body        string         `json:"body"`
	Kind        chat.Kind      `json:"kind"`
	DisplayTime string         `json:"displayTime,omitempty"`
	ReplyRef    *chat.ReplyRef `json:"replyRef,omitempty"`
}

// wireEdit carries the full updated message, including the original id and
// serverTime, so subscribers can replace the entry without extra lookups.
type wireEdit struct {
	Message chat.Message `json:"message"`
}

type wireDelete struct {
	ID string `json:"id"`
}

// JetStreamStore is the Message Store collaborator. All rooms share one
// stream; each room's history is the sequence of events on its subjects.
type JetStreamStore struct {
	js         jetstream.JetStream
	pubLatency metric.Float64Histogram
}

// NewJetStreamStore binds to (or creates) the chat stream.
func NewJetStreamStore(ctx context.Context, js jetstream.JetStream) (*JetStreamStore, error) {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ">"},
		Retention: jetstream.LimitsPolicy,
		MaxMsgs:   100000,
		MaxAge:    30 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", streamName, err)
	}
	slog.Info("JetStream stream ready", "stream", streamName)

	hist, _ := otelhelper.NewDurationHistogram(otel.Meter("nats-chat-client"),
		"message_publish_duration_seconds", "Latency of change event publishes")
	return &JetStreamStore{js: js, pubLatency: hist}, nil
}

// publish wraps the traced publish with a latency measurement.
func (s *JetStreamStore) publish(ctx context.Context, subject string, payload []byte) (*jetstream.PubAck, error) {
	start := time.Now()
	ack, err := otelhelper.TracedJetStreamPublish(ctx, s.js, subject, payload)
	if err == nil {
		s.pubLatency.Record(ctx, time.Since(start).Seconds())
	}
	return ack, err
}

type consumeSubscription struct {
	cc jetstream.ConsumeContext
}

func (s *consumeSubscription) Cancel() { s.cc.Stop() }

// Subscribe opens an ordered consumer over the room's events, replaying
// the full history in stream order before delivering live events. The
// handler runs on the consumer's dispatch goroutine, one event at a time.
func (s *JetStreamStore) Subscribe(ctx context.Context, roomID string, h func(chat.ChangeEvent)) (chat.Subscription, error) {
	if err := validateRoomID(roomID); err != nil {
		return nil, err
	}
	base := subjectPrefix + roomID
	cons, err := s.js.OrderedConsumer(ctx, streamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{base, base + "." + opEdit, base + "." + opDelete},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("ordered consumer for %s: %w", roomID, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		meta, err := msg.Metadata()
		if err != nil {
			slog.Warn("Change event without metadata", "subject", msg.Subject(), "error", err)
			return
		}
		spanCtx, span := otelhelper.StartConsumerSpan(context.Background(), msg.Headers(), msg.Subject(), "room change event", len(msg.Data()))
		defer span.End()

		ev, err := decodeEvent(msg.Subject(), msg.Data(), meta.Sequence.Stream, meta.Timestamp)
		if err != nil {
			span.RecordError(err)
			slog.WarnContext(spanCtx, "Dropping undecodable change event", "subject", msg.Subject(), "error", err)
			return
		}
		h(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", roomID, err)
	}
	return &consumeSubscription{cc: cc}, nil
}

// CreateMessage publishes a new-message event and returns the id the
// backend assigned (the stream sequence of the event).
func (s *JetStreamStore) CreateMessage(ctx context.Context, out chat.Outgoing) (string, error) {
	if err := validateRoomID(out.RoomID); err != nil {
		return "", err
	}
	payload, err := json.Marshal(wireMessage{
		AuthorID:    out.AuthorID,
		AuthorName:  out.AuthorName,
		Body:        out.Body,
		Kind:        out.Kind,
		DisplayTime: out.DisplayTime,
		ReplyRef:    out.ReplyRef,
	})
	if err != nil {
		return "", err
	}
	ack, err := s.publish(ctx, subjectPrefix+out.RoomID, payload)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(ack.Sequence, 10), nil
}

// EditMessage publishes a modified event carrying the full updated message.
func (s *JetStreamStore) EditMessage(ctx context.Context, msg chat.Message) error {
	if err := validateRoomID(msg.RoomID); err != nil {
		return err
	}
	payload, err := json.Marshal(wireEdit{Message: msg})
	if err != nil {
		return err
	}
	_, err = s.publish(ctx, subjectPrefix+msg.RoomID+"."+opEdit, payload)
	return err
}

// DeleteMessage publishes a removed event for id. The event, replayed to
// every subscriber, is the authoritative signal to drop the message.
func (s *JetStreamStore) DeleteMessage(ctx context.Context, roomID, id string) error {
	if err := validateRoomID(roomID); err != nil {
		return err
	}
	payload, err := json.Marshal(wireDelete{ID: id})
	if err != nil {
		return err
	}
	_, err = s.publish(ctx, subjectPrefix+roomID+"."+opDelete, payload)
	return err
}

// decodeEvent maps one stream entry to a change event. seq is the entry's
// stream sequence (the backend-assigned ordering key) and ts its
// server-side receive time.
func decodeEvent(subject string, data []byte, seq uint64, ts time.Time) (chat.ChangeEvent, error) {
	rest, ok := strings.CutPrefix(subject, subjectPrefix)
	if !ok {
		return chat.ChangeEvent{}, fmt.Errorf("unexpected subject %q", subject)
	}
	roomID, op, _ := strings.Cut(rest, ".")
	if roomID == "" {
		return chat.ChangeEvent{}, fmt.Errorf("unexpected subject %q", subject)
	}

	switch op {
	case "":
		var w wireMessage
		if err := json.Unmarshal(data, &w); err != nil {
			return chat.ChangeEvent{}, fmt.Errorf("decode message event: %w", err)
		}
		display := w.DisplayTime
		if display == "" {
			display = ts.Format("15:04")
		}
		kind := w.Kind
		if kind == "" {
			kind = chat.KindText
		}
		return chat.ChangeEvent{
			Kind: chat.EventAdded,
			Message: chat.Message{
				ID:          strconv.FormatUint(seq, 10),
				RoomID:      roomID,
				AuthorID:    w.AuthorID,
				AuthorName:  w.AuthorName,
				Body:        w.Body,
				Kind:        kind,
				ServerTime:  seq,
				DisplayTime: display,
				ReplyRef:    w.ReplyRef,
			},
		}, nil
	case opEdit:
		var w wireEdit
		if err := json.Unmarshal(data, &w); err != nil {
			return chat.ChangeEvent{}, fmt.Errorf("decode edit event: %w", err)
		}
		if w.Message.ID == "" {
			return chat.ChangeEvent{}, fmt.Errorf("edit event without target id")
		}
		w.Message.RoomID = roomID
		return chat.ChangeEvent{Kind: chat.EventModified, Message: w.Message}, nil
	case opDelete:
		var w wireDelete
		if err := json.Unmarshal(data, &w); err != nil {
			return chat.ChangeEvent{}, fmt.Errorf("decode delete event: %w", err)
		}
		if w.ID == "" {
			return chat.ChangeEvent{}, fmt.Errorf("delete event without target id")
		}
		return chat.ChangeEvent{Kind: chat.EventRemoved, ID: w.ID}, nil
	default:
		return chat.ChangeEvent{}, fmt.Errorf("unknown event subject %q", subject)
	}
}

// validateRoomID rejects ids that would break subject routing. Room codes
// are short uppercase tokens; anything with NATS subject syntax in it is
// refused outright.
func validateRoomID(roomID string) error {
	if roomID == "" || len(roomID) > 64 {
		return fmt.Errorf("invalid room id %q", roomID)
	}
	if strings.ContainsAny(roomID, ". *>\t\n") {
		return fmt.Errorf("invalid room id %q", roomID)
	}
	return nil
}
