// Package chat implements the room synchronization engine: it folds a
// room's remote change stream into an ordered local message list and owns
// the session state (active subscription, selection, reply draft) that the
// rendering layer reads as snapshots.
package chat

// Kind distinguishes message body types.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// ReplyRef is a denormalized snapshot of a quoted message, embedded into
// the replying message at send time. It is never updated if the quoted
// message is later edited or removed.
type ReplyRef struct {
	MessageID  string `json:"messageId"`
	AuthorName string `json:"authorName"`
	Snippet    string `json:"snippet"`
}

// Message is one entry in a room's ordered history. ID and ServerTime are
// assigned by the backend when the message is created; ServerTime is the
// stream sequence, strictly ascending within a room.
type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	Body        string    `json:"body"`
	Kind        Kind      `json:"kind"`
	ServerTime  uint64    `json:"serverTime"`
	DisplayTime string    `json:"displayTime"`
	ReplyRef    *ReplyRef `json:"replyRef,omitempty"`
}

// EventKind is the type of a change stream event.
type EventKind int

const (
	EventAdded EventKind = iota
	EventModified
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventModified:
		return "modified"
	case EventRemoved:
		return "removed"
	}
	return "unknown"
}

// ChangeEvent is one inbound mutation from a room's change stream.
// Message is set for added and modified events, ID for removed events.
type ChangeEvent struct {
	Kind    EventKind
	Message Message
	ID      string
}

// Outgoing is a message as handed to the store, before the backend assigns
// its ID and ordering key.
type Outgoing struct {
	RoomID      string
	AuthorID    string
	AuthorName  string
	Body        string
	Kind        Kind
	DisplayTime string
	ReplyRef    *ReplyRef
}
