// Package storage provides the document-store abstraction used by the
// scheduler and worker: a generic filter/patch collection API backed
// by go.mongodb.org/mongo-driver, plus an in-memory fake satisfying the
// same Store interface for tests. Connection is lazy and degrades to
// ErrUnavailable rather than panicking when Mongo cannot be reached.
package storage
