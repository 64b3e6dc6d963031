package queue

import "context"

// Storage is the transactional key-value layer under the queue. Each call is
// a single-entry transaction; implementations never batch a read with a
// later write.
type Storage interface {
	// Open provisions every category container declared by the schema.
	Open(ctx context.Context) error
	// GetAll returns the entries of one category in storage order.
	GetAll(ctx context.Context, category string) ([]Entry, error)
	// Put inserts an entry. An entry with the same id already present is left untouched.
	Put(ctx context.Context, entry Entry) error
	// Delete removes an entry by id. Removing an absent id is not an error.
	Delete(ctx context.Context, category, id string) error
	Close() error
}
