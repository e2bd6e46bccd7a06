package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

const blobBucket = "CHAT_MEDIA"

// ObjectBlobStore is the Blob Store collaborator, backed by a JetStream
// object store bucket. Uploads happen before the message referencing the
// blob is created; a failed upload therefore leaves no dangling message.
type ObjectBlobStore struct {
	obs jetstream.ObjectStore
}

// NewObjectBlobStore binds to (or creates) the media bucket.
func NewObjectBlobStore(ctx context.Context, js jetstream.JetStream) (*ObjectBlobStore, error) {
	obs, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:  blobBucket,
		Storage: jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure object store %s: %w", blobBucket, err)
	}
	return &ObjectBlobStore{obs: obs}, nil
}

// Upload stores the blob under a room-scoped name and returns the URL to
// embed as the message body.
func (b *ObjectBlobStore) Upload(ctx context.Context, roomID string, data []byte) (string, error) {
	if err := validateRoomID(roomID); err != nil {
		return "", err
	}
	name := roomID + "-" + uuid.NewString()
	info, err := b.obs.PutBytes(ctx, name, data)
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", name, err)
	}
	slog.Debug("Uploaded attachment", "object", info.Name, "bytes", info.Size)
	return "natsobj://" + blobBucket + "/" + info.Name, nil
}
