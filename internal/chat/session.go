package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Subscription is a cancellable handle on one room's change stream.
// Cancel stops further callbacks; events already in flight are discarded
// by the session's generation filter.
type Subscription interface {
	Cancel()
}

// MessageStore is the remote ordered message history. Subscribe must
// replay the room's full history in ServerTime order before delivering
// live events.
type MessageStore interface {
	Subscribe(ctx context.Context, roomID string, h func(ChangeEvent)) (Subscription, error)
	CreateMessage(ctx context.Context, out Outgoing) (string, error)
	EditMessage(ctx context.Context, msg Message) error
	DeleteMessage(ctx context.Context, roomID, id string) error
}

// BlobStore stores message attachments before the message referencing
// them is created.
type BlobStore interface {
	Upload(ctx context.Context, roomID string, data []byte) (string, error)
}

var (
	errNoActiveRoom = errors.New("no active room")
	errEmptyBody    = errors.New("empty message body")
	errUnknownID    = errors.New("message not in current room")
)

// Session is the per-client synchronization context: the single active
// room subscription, the room's ordered message list, and the optimistic
// UI state reconciled against the stream. All mutation of the list flows
// through Apply; the stream is the single source of truth, so deletes are
// only reflected once the backend's removed event arrives.
type Session struct {
	store    MessageStore
	blobs    BlobStore
	authorID string
	notify   func(Notice)

	mu         sync.Mutex
	authorName string
	gen        uint64
	sub        Subscription
	roomID     string
	messages   []Message
	sel        selectionState
	draft      *ReplyRef

	eventsApplied metric.Int64Counter
	staleDropped  metric.Int64Counter
	sends         metric.Int64Counter
	deletes       metric.Int64Counter
	subErrors     metric.Int64Counter
}

// NewSession creates a session for one author. onNotice receives transient
// operation failures and may be nil.
func NewSession(store MessageStore, blobs BlobStore, authorID, authorName string, onNotice func(Notice)) *Session {
	meter := otel.Meter("nats-chat-client")
	s := &Session{
		store:      store,
		blobs:      blobs,
		authorID:   authorID,
		authorName: authorName,
		notify:     onNotice,
	}
	s.eventsApplied, _ = meter.Int64Counter("sync_events_applied_total",
		metric.WithDescription("Change events folded into the local list"))
	s.staleDropped, _ = meter.Int64Counter("sync_stale_events_dropped_total",
		metric.WithDescription("Events discarded by the generation filter"))
	s.sends, _ = meter.Int64Counter("messages_sent_total")
	s.deletes, _ = meter.Int64Counter("message_deletes_requested_total")
	s.subErrors, _ = meter.Int64Counter("subscription_errors_total")
	return s
}

// SwitchRoom retires the current subscription and opens a new one scoped
// to roomID. The old generation is retired before the new stream is
// requested, so an in-flight event from the old room can never reach the
// new room's list regardless of arrival timing. Selection and reply draft
// are cleared unconditionally; the new room's list starts empty and is
// populated solely by the stream's replay. An open failure leaves neither a
// current subscription nor an active room.
func (s *Session) SwitchRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	old := s.sub
	s.sub = nil
	s.roomID = roomID
	s.messages = nil
	s.sel.exit()
	s.draft = nil
	s.mu.Unlock()

	if old != nil {
		old.Cancel()
	}

	sub, err := s.store.Subscribe(ctx, roomID, func(ev ChangeEvent) {
		s.apply(gen, ev)
	})
	if err != nil {
		// No subscription means no active room: sends are refused until a
		// retry succeeds, so nothing is published into a room whose list
		// cannot update.
		s.mu.Lock()
		if s.gen == gen {
			s.roomID = ""
		}
		s.mu.Unlock()
		s.subErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("room", roomID)))
		serr := &SubscriptionError{RoomID: roomID, Err: err}
		s.notice(Notice{Text: "Could not open room " + roomID, Err: serr})
		return serr
	}

	s.mu.Lock()
	if s.gen == gen {
		s.sub = sub
		s.mu.Unlock()
		slog.InfoContext(ctx, "Subscribed to room", "room", roomID, "generation", gen)
		return nil
	}
	s.mu.Unlock()
	// Another switch won while the stream was opening; this subscription
	// was never current.
	sub.Cancel()
	return nil
}

// Close cancels the current subscription and retires its generation.
func (s *Session) Close() {
	s.mu.Lock()
	s.gen++
	old := s.sub
	s.sub = nil
	s.roomID = ""
	s.messages = nil
	s.sel.exit()
	s.draft = nil
	s.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
}

// apply folds one inbound event into the list unless its generation has
// been retired by a room switch.
func (s *Session) apply(gen uint64, ev ChangeEvent) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.staleDropped.Add(context.Background(), 1)
		slog.Debug("Dropped stale change event", "kind", ev.Kind.String(), "generation", gen)
		return
	}
	s.messages = Apply(s.messages, ev)
	if ev.Kind == EventRemoved {
		s.sel.discard(ev.ID)
	}
	room := s.roomID
	s.mu.Unlock()

	s.eventsApplied.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("room", room),
		attribute.String("kind", ev.Kind.String()),
	))
}

// Room returns the active room id, or "" when none is open.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Messages returns a snapshot of the active room's ordered message list.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return nil
	}
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// SetAuthorName updates the display name attached to outgoing messages.
func (s *Session) SetAuthorName(name string) {
	s.mu.Lock()
	s.authorName = name
	s.mu.Unlock()
}

// SendText creates a text message in the active room. The reply draft, if
// any, is attached and cleared before the send; a failed send surfaces a
// SendError and does not restore the draft.
func (s *Session) SendText(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return errEmptyBody
	}

	s.mu.Lock()
	roomID := s.roomID
	if roomID == "" {
		s.mu.Unlock()
		return errNoActiveRoom
	}
	draft := s.draft
	s.draft = nil
	name := s.authorName
	s.mu.Unlock()

	out := Outgoing{
		RoomID:      roomID,
		AuthorID:    s.authorID,
		AuthorName:  name,
		Body:        body,
		Kind:        KindText,
		DisplayTime: time.Now().Format("15:04"),
		ReplyRef:    draft,
	}
	if _, err := s.store.CreateMessage(ctx, out); err != nil {
		serr := &SendError{RoomID: roomID, Err: err}
		s.notice(Notice{Text: "Message not sent", Err: serr})
		return serr
	}
	s.sends.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(KindText))))
	return nil
}

// SendImage uploads the attachment first and only then creates an
// image-kind message whose body is the blob URL. A failed upload produces
// no message record.
func (s *Session) SendImage(ctx context.Context, data []byte) error {
	s.mu.Lock()
	roomID := s.roomID
	name := s.authorName
	s.mu.Unlock()
	if roomID == "" {
		return errNoActiveRoom
	}

	url, err := s.blobs.Upload(ctx, roomID, data)
	if err != nil {
		uerr := &UploadError{RoomID: roomID, Err: err}
		s.notice(Notice{Text: "Upload failed", Err: uerr})
		return uerr
	}

	out := Outgoing{
		RoomID:      roomID,
		AuthorID:    s.authorID,
		AuthorName:  name,
		Body:        url,
		Kind:        KindImage,
		DisplayTime: time.Now().Format("15:04"),
	}
	if _, err := s.store.CreateMessage(ctx, out); err != nil {
		serr := &SendError{RoomID: roomID, Err: err}
		s.notice(Notice{Text: "Message not sent", Err: serr})
		return serr
	}
	s.sends.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(KindImage))))
	return nil
}

// EditMessage replaces the body of one of the author's messages. The local
// list is updated only when the modified event comes back on the stream.
func (s *Session) EditMessage(ctx context.Context, id, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return errEmptyBody
	}

	s.mu.Lock()
	roomID := s.roomID
	var target *Message
	for i := range s.messages {
		if s.messages[i].ID == id {
			m := s.messages[i]
			target = &m
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return errUnknownID
	}
	target.Body = body
	if err := s.store.EditMessage(ctx, *target); err != nil {
		serr := &SendError{RoomID: roomID, Err: err}
		s.notice(Notice{Text: "Edit not saved", Err: serr})
		return serr
	}
	return nil
}

// EnterSelection switches to selecting mode.
func (s *Session) EnterSelection() {
	s.mu.Lock()
	s.sel.enter()
	s.mu.Unlock()
}

// ExitSelection leaves selecting mode and clears all marks.
func (s *Session) ExitSelection() {
	s.mu.Lock()
	s.sel.exit()
	s.mu.Unlock()
}

// Selecting reports whether selection mode is active.
func (s *Session) Selecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.selecting
}

// ToggleSelect flips the deletion mark on id. It is a no-op outside
// selection mode or when id is not in the active room's list.
func (s *Session) ToggleSelect(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	present := false
	for i := range s.messages {
		if s.messages[i].ID == id {
			present = true
			break
		}
	}
	return s.sel.toggle(id, present)
}

// Selected returns a sorted snapshot of the marked message ids.
func (s *Session) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.snapshot()
}

// ConfirmDelete issues one independent delete request per marked message
// and exits selection mode. A failure on one id does not block the others.
// The local list is left untouched: removal happens when the authoritative
// removed event arrives on the stream.
func (s *Session) ConfirmDelete(ctx context.Context) {
	s.mu.Lock()
	roomID := s.roomID
	ids := s.sel.drain()
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.store.DeleteMessage(ctx, roomID, id); err != nil {
			derr := &DeleteError{RoomID: roomID, MessageID: id, Err: err}
			s.notice(Notice{Text: "Could not delete message", Err: derr})
			continue
		}
		s.deletes.Add(ctx, 1, metric.WithAttributes(attribute.String("room", roomID)))
	}
}

// SetReplyDraft snapshots the message with the given id as the reply
// target for the next outgoing message. Returns false if the id is not in
// the active room's list.
func (s *Session) SetReplyDraft(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.draft = newReplyRef(s.messages[i])
			return true
		}
	}
	return false
}

// ClearReplyDraft abandons the pending reply target.
func (s *Session) ClearReplyDraft() {
	s.mu.Lock()
	s.draft = nil
	s.mu.Unlock()
}

// ReplyDraft returns a copy of the pending reply target, or nil.
func (s *Session) ReplyDraft() *ReplyRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return nil
	}
	d := *s.draft
	return &d
}

func (s *Session) notice(n Notice) {
	if s.notify != nil {
		s.notify(n)
	}
}
