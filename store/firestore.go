package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alimasry/go-page-editor/schema"
)

// FirestoreStore is a Firestore-backed implementation of PageStore. Each page
// is one document; the schema is kept as its JSON encoding so field names
// match the export format.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a new FirestoreStore using the given Firestore client.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = "pages"
	}
	return &FirestoreStore{
		client:     client,
		collection: collection,
	}
}

func (s *FirestoreStore) docRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreStore) Create(ctx context.Context, id string, cs schema.ContentSchema) error {
	data, err := cs.Encode()
	if err != nil {
		return fmt.Errorf("create %q: %w", id, err)
	}
	now := time.Now()
	_, err = s.docRef(id).Create(ctx, map[string]interface{}{
		"schema":       string(data),
		"status":       string(StatusDraft),
		"revision":     int64(1),
		"lastEditedBy": cs.Metadata.LastEditedBy,
		"createdAt":    now,
		"updatedAt":    now,
	})
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("create %q: %w", id, ErrExists)
	}
	return err
}

func (s *FirestoreStore) Load(ctx context.Context, id string) (*Page, error) {
	snap, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("load %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return snapshotToPage(id, snap)
}

func snapshotToPage(id string, snap *firestore.DocumentSnapshot) (*Page, error) {
	data := snap.Data()
	raw, _ := data["schema"].(string)
	cs, err := schema.Decode([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("page %q: %w", id, err)
	}
	st, _ := data["status"].(string)
	revision, _ := data["revision"].(int64)
	createdAt, _ := data["createdAt"].(time.Time)
	updatedAt, _ := data["updatedAt"].(time.Time)
	return &Page{
		ID:        id,
		Schema:    cs,
		Status:    Status(st),
		Revision:  revision,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// List reads only the listing fields, not the schema.
func (s *FirestoreStore) List(ctx context.Context) ([]PageInfo, error) {
	iter := s.client.Collection(s.collection).
		Select("status", "revision", "lastEditedBy", "updatedAt").
		Documents(ctx)
	defer iter.Stop()

	var result []PageInfo
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		data := snap.Data()
		st, _ := data["status"].(string)
		revision, _ := data["revision"].(int64)
		by, _ := data["lastEditedBy"].(string)
		updatedAt, _ := data["updatedAt"].(time.Time)
		result = append(result, PageInfo{
			ID:           snap.Ref.ID,
			Status:       Status(st),
			Revision:     revision,
			LastEditedBy: by,
			UpdatedAt:    updatedAt,
		})
	}
	return result, nil
}

// Save checks the revision and writes the schema in one transaction.
func (s *FirestoreStore) Save(ctx context.Context, id string, cs schema.ContentSchema, expectedRevision int64) (int64, error) {
	data, err := cs.Encode()
	if err != nil {
		return 0, fmt.Errorf("save %q: %w", id, err)
	}
	ref := s.docRef(id)
	var next int64
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("save %q: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		current, _ := snap.Data()["revision"].(int64)
		if current != expectedRevision {
			return fmt.Errorf("save %q at revision %d (current %d): %w", id, expectedRevision, current, ErrConflict)
		}
		next = current + 1
		return tx.Update(ref, []firestore.Update{
			{Path: "schema", Value: string(data)},
			{Path: "revision", Value: next},
			{Path: "lastEditedBy", Value: cs.Metadata.LastEditedBy},
			{Path: "updatedAt", Value: time.Now()},
		})
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}
