package chat

import "fmt"

// SubscriptionError reports that a room's change stream could not be
// opened or maintained. Retryable; the session is left with no current
// subscription.
type SubscriptionError struct {
	RoomID string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe to room %s: %v", e.RoomID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// SendError reports a failed message creation. The caller's input is
// untouched and may be re-sent.
type SendError struct {
	RoomID string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to room %s: %v", e.RoomID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// UploadError reports a failed attachment upload. No message record is
// created when the upload fails.
type UploadError struct {
	RoomID string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload to room %s: %v", e.RoomID, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// DeleteError reports a failed delete request for a single message.
// Deletes are independent: other deletions in the same batch proceed.
type DeleteError struct {
	RoomID    string
	MessageID string
	Err       error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete message %s in room %s: %v", e.MessageID, e.RoomID, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// Notice is a transient, user-visible report of a failed operation. The
// rendering layer decides how to show it; the session never retries on
// its own.
type Notice struct {
	Text string
	Err  error
}
