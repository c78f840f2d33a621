package ingest

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
)

// SliceLock serializes writers of one (metric, date) slice through a
// Postgres advisory lock. Session-scoped, so it spans the multiple
// transactions of an import (supersede, delete, bulk insert) and is
// released automatically if the session dies mid-import.
type SliceLock struct {
	conn *pgxpool.Conn
	key  int64
}

// sliceLockKey derives a stable 64-bit advisory lock key for a slice.
func sliceLockKey(metricTypeID int64, date time.Time) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "slice:%d:%s", metricTypeID, date.Format("2006-01-02"))
	return int64(h.Sum64())
}

// AcquireSliceLock takes the advisory lock for a slice on a dedicated
// pool connection. Returns ErrSliceBusy without blocking when another
// session holds it.
func AcquireSliceLock(ctx context.Context, pool *pgxpool.Pool, metricTypeID int64, date time.Time) (*SliceLock, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	key := sliceLockKey(metricTypeID, date)

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, contracts.ErrSliceBusy
	}

	return &SliceLock{conn: conn, key: key}, nil
}

// Release unlocks the slice and returns the connection to the pool.
// Safe to call more than once.
func (l *SliceLock) Release(ctx context.Context) {
	if l.conn == nil {
		return
	}
	// ignore the unlock result: if the session already dropped, the
	// lock is gone anyway
	_, _ = l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
	l.conn = nil
}
