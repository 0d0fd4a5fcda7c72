package ports

import "context"

// BatchJob processes at most limit due items per call and is safe to call
// again; it reports how many items it handled.
type BatchJob interface {
	Name() string
	RunBatch(ctx context.Context, limit int) (processed int, err error)
}
