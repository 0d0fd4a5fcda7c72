package ports

import (
	"context"
	"errors"
)

// ErrNotFound is returned by StoreTx.Get when no object exists under a key.
var ErrNotFound = errors.New("key not found")

// Record is a stored object in encoded form.
type Record struct {
	ID   string
	Body []byte
}

// EventRecord is an entry of the append-only event log.
type EventRecord struct {
	Seq  uint64
	Body []byte
}

// Store is the ledger's persistence. Update runs fn as one atomic unit under
// a single writer: if fn returns an error nothing it wrote is kept.
type Store interface {
	Update(ctx context.Context, fn func(tx StoreTx) error) error
	View(ctx context.Context, fn func(tx StoreTx) error) error
	Events(ctx context.Context, after uint64, limit int) ([]EventRecord, error)
}

// StoreTx addresses objects by (kind, id).
type StoreTx interface {
	Get(ctx context.Context, kind, id string) ([]byte, error)
	Put(ctx context.Context, kind, id string, body []byte) error
	Delete(ctx context.Context, kind, id string) error
	// Scan returns up to limit records of kind with id > after, in id order.
	Scan(ctx context.Context, kind, after string, limit int) ([]Record, error)
	// AppendEvent adds body to the event log and returns its sequence number.
	AppendEvent(ctx context.Context, body []byte) (uint64, error)
}
