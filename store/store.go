package store

import (
	"context"
	"errors"
	"time"

	"github.com/alimasry/go-page-editor/schema"
)

var (
	ErrNotFound = errors.New("page not found")
	ErrExists   = errors.New("page already exists")
	// ErrConflict means the page changed since the revision the caller read.
	ErrConflict = errors.New("page revision conflict")
)

// Status is the moderation state of a page. The editor never changes it.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusPublished Status = "published"
)

// Page is a stored page with its durable schema.
type Page struct {
	ID        string               `json:"id"`
	Schema    schema.ContentSchema `json:"schema"`
	Status    Status               `json:"status"`
	Revision  int64                `json:"revision"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// PageInfo is the listing view of a page.
type PageInfo struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	Revision     int64     `json:"revision"`
	LastEditedBy string    `json:"lastEditedBy"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PageStore abstracts page persistence.
// Implementations: MemoryStore, FirestoreStore, PostgresStore, CachedStore.
//
// Revisions start at 1 on Create and increase by one on every Save. Save
// succeeds only when expectedRevision is the current revision.
type PageStore interface {
	Create(ctx context.Context, id string, cs schema.ContentSchema) error
	Load(ctx context.Context, id string) (*Page, error)
	List(ctx context.Context) ([]PageInfo, error)
	Save(ctx context.Context, id string, cs schema.ContentSchema, expectedRevision int64) (int64, error)
}

func (p *Page) info() PageInfo {
	return PageInfo{
		ID:           p.ID,
		Status:       p.Status,
		Revision:     p.Revision,
		LastEditedBy: p.Schema.Metadata.LastEditedBy,
		UpdatedAt:    p.UpdatedAt,
	}
}
