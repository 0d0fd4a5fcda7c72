package ports

import (
	"context"

	"trustflow/internal/domain"
)

// Clock supplies the ledger's notion of time in milliseconds. Implementations
// never return a value lower than one they already returned.
type Clock interface {
	NowMillis() int64
}

// EventSink receives events after the transaction that produced them commits.
type EventSink interface {
	Publish(ctx context.Context, events []domain.Event)
}
