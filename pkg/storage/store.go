package storage

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by the Store methods when the lazy
// connection has not succeeded. Callers must treat it as "no data"
// rather than a fatal condition. FindAll and Count do not return it:
// FindAll returns nil and leaves out unchanged, Count returns 0 and nil.
var ErrUnavailable = errors.New("storage: store unavailable")

// Filter is a MongoDB-style query document. A nil or empty Filter
// matches every document in the collection.
type Filter map[string]any

// Patch is a MongoDB-style update document, e.g. {"$set": {...}}.
type Patch map[string]any

// Projection restricts which fields a find operation returns, e.g.
// {"state": 1}.
type Projection map[string]any

// Cursor iterates a FindCursor result set without loading every
// document into memory at once.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(v any) error
	Close(ctx context.Context) error
	Err() error
}

// Store is the document-store abstraction C1 describes: a handful of
// collections (crons, jobs) addressed through a generic filter/patch
// API rather than typed per-entity methods, so the scheduler and
// worker can share one client implementation across both collections.
type Store interface {
	InsertOne(ctx context.Context, collection string, doc any) error
	InsertMany(ctx context.Context, collection string, docs []any) error
	FindOne(ctx context.Context, collection string, filter Filter, projection Projection, out any) error
	FindAll(ctx context.Context, collection string, filter Filter, out any) error
	FindCursor(ctx context.Context, collection string, filter Filter) (Cursor, error)
	UpdateOne(ctx context.Context, collection string, filter Filter, patch Patch, upsert bool) error
	UpdateMany(ctx context.Context, collection string, filter Filter, patch Patch) error
	DeleteOne(ctx context.Context, collection string, filter Filter) error
	DeleteMany(ctx context.Context, collection string, filter Filter) error
	Count(ctx context.Context, collection string, filter Filter) (int64, error)
	Close(ctx context.Context) error
}
