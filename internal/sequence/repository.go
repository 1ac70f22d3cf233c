package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var errEmptyPartition = errors.New("empty partition key")

type Store interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Counter hands out gapless per-handle event numbers from the
// event_sequence table. Numbering starts at 1.
type Counter struct {
	store Store
}

func NewCounter(store Store) *Counter {
	return &Counter{store: store}
}

func (c *Counter) NextSequence(ctx context.Context, handle string) (int64, error) {
	if handle == "" {
		return 0, errEmptyPartition
	}

	var next int64
	err := c.store.QueryRow(ctx, `
		INSERT INTO event_sequence AS s (partition_key, last_sequence)
		VALUES ($1, 1)
		ON CONFLICT (partition_key) DO UPDATE
		SET last_sequence = s.last_sequence + 1, updated_at = now()
		RETURNING s.last_sequence
	`, handle).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("advance sequence %q: %w", handle, err)
	}
	return next, nil
}
