// Package firestore contains a checkpoint.Store implementation
// backed by Google Cloud Firestore.
package firestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/get-eventually/go-projections/checkpoint"
)

// DefaultCollection is the collection used by a CheckpointStore if none is specified.
const DefaultCollection = "ProjectionCheckpoints"

var _ checkpoint.Store = CheckpointStore{}

// CheckpointStore persists checkpoints as Firestore documents,
// one per checkpoint name, in the specified Collection.
type CheckpointStore struct {
	Client     *firestore.Client
	Collection string
}

type checkpointDocument struct {
	Checkpoint string    `firestore:"checkpoint"`
	UpdatedAt  time.Time `firestore:"updated_at"`
}

func (s CheckpointStore) document(name string) (*firestore.DocumentRef, error) {
	name, err := checkpoint.ValidateName(name)
	if err != nil {
		return nil, err
	}

	if strings.Contains(name, "/") {
		return nil, fmt.Errorf("checkpoint name '%s' cannot contain '/'", name)
	}

	collection := s.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	return s.Client.Collection(collection).Doc(name), nil
}

// Get implements the checkpoint.Store interface.
func (s CheckpointStore) Get(ctx context.Context, name string) (checkpoint.Token, error) {
	doc, err := s.document(name)
	if err != nil {
		return checkpoint.Beginning, fmt.Errorf("firestore.CheckpointStore.Get: %w", err)
	}

	snapshot, err := doc.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return checkpoint.Beginning, nil
	}

	if err != nil {
		return checkpoint.Beginning, fmt.Errorf("firestore.CheckpointStore.Get: failed to get document, %w", err)
	}

	var data checkpointDocument
	if err := snapshot.DataTo(&data); err != nil {
		return checkpoint.Beginning, fmt.Errorf("firestore.CheckpointStore.Get: failed to decode document, %w", err)
	}

	return checkpoint.Token(data.Checkpoint), nil
}

// Put implements the checkpoint.Store interface.
func (s CheckpointStore) Put(ctx context.Context, name string, token checkpoint.Token) error {
	doc, err := s.document(name)
	if err != nil {
		return fmt.Errorf("firestore.CheckpointStore.Put: %w", err)
	}

	if _, err := doc.Set(ctx, checkpointDocument{
		Checkpoint: token.String(),
		UpdatedAt:  time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("firestore.CheckpointStore.Put: failed to set document, %w", err)
	}

	return nil
}
