package database

import (
	"context"
	"errors"
)

// Collection names. The ephemeral fallback mirrors the same logical
// collections in memory.
const (
	CollectionVideos   = "videos"
	CollectionFrames   = "frames"
	CollectionSegments = "segments"
)

// ErrNotFound is returned by Get, Update and Delete for an unknown id.
var ErrNotFound = errors.New("document not found")

// Doc is one stored document. Patches passed to Update may use dotted paths
// ("face_stage.status") to set nested fields.
type Doc = map[string]any

// Store is the uniform document access contract shared by the durable and
// the ephemeral backend. All call sites are backend-agnostic; which backend
// is active is decided once, at Connect time.
//
// Ordering: Find returns insertion order on the ephemeral backend and
// created_at ascending on the durable one. Callers must not depend on
// cross-backend ordering beyond that key.
type Store interface {
	Create(ctx context.Context, collection string, doc Doc) (string, error)
	CreateMany(ctx context.Context, collection string, docs []Doc) error
	Get(ctx context.Context, collection, id string) (Doc, error)
	Find(ctx context.Context, collection string, filter Doc, skip, limit int64) ([]Doc, error)
	Count(ctx context.Context, collection string, filter Doc) (int64, error)
	Update(ctx context.Context, collection, id string, patch Doc) (Doc, error)
	Delete(ctx context.Context, collection, id string) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter Doc) (int64, error)

	// Fallback reports whether the store is the in-process ephemeral backend.
	Fallback() bool
	Close(ctx context.Context) error
}
