package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
)

// AdvisoryLocker elects one sweeper among instances sharing a database. The
// session lock lives on a dedicated connection held until Unlock.
type AdvisoryLocker struct {
	pool *db.Pool
	key  int64
	conn *pgxpool.Conn
}

func NewAdvisoryLocker(pool *db.Pool, key int64) *AdvisoryLocker {
	if key == 0 {
		key = 4242101
	}
	return &AdvisoryLocker{pool: pool, key: key}
}

// TryLock reports whether this instance leads. A held session is pinged
// first: Postgres drops the lock with the session, so a dead connection is
// discarded and the lock contested again.
func (l *AdvisoryLocker) TryLock(ctx context.Context) (bool, error) {
	if l.conn != nil {
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		_ = l.conn.Conn().Close(ctx)
		l.conn.Release()
		l.conn = nil
	}
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&locked); err != nil {
		conn.Release()
		return false, err
	}
	if !locked {
		conn.Release()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *AdvisoryLocker) Unlock(ctx context.Context) {
	if l.conn == nil {
		return
	}
	_, _ = l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
	l.conn = nil
}
