// Package pgstore implements store.Store on Postgres through pgx.
//
// TryInsert takes a transaction-scoped advisory lock keyed by
// (tenant, resource) before checking for overlap, so concurrent inserts for
// the same resource are serialized while other resources proceed in parallel.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func New(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}

var _ store.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{}, true, fn)
}

func (s *Store) Read(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, false, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, writable bool, fn func(ctx context.Context, tx store.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if err := fn(ctx, &tx{tx: pgTx, outbox: s.outbox, writable: writable}); err != nil {
		return classify(err)
	}
	return classify(pgTx.Commit(ctx))
}

func (s *Store) Schedules() store.ScheduleReader {
	return schedules{pool: s.pool}
}

type tx struct {
	tx       pgx.Tx
	outbox   *outbox.Repository
	writable bool
}

func (t *tx) Commitments() store.Commitments { return commitments{t} }
func (t *tx) Bookings() store.Bookings       { return bookings{t} }
func (t *tx) Waitlist() store.Waitlist       { return waitlist{t} }
func (t *tx) Outbox() store.Outbox           { return outboxWriter{t} }

// forUpdate locks selected rows in read-write transactions only.
func (t *tx) forUpdate() string {
	if t.writable {
		return " FOR UPDATE"
	}
	return ""
}

type outboxWriter struct{ *tx }

func (w outboxWriter) Append(ctx context.Context, evt outbox.Event) error {
	return w.outbox.Insert(ctx, w.tx.tx, evt)
}

func lockKey(parts ...string) string {
	return strings.Join(parts, "/")
}

func advisoryXactLock(ctx context.Context, q pgx.Tx, key string) error {
	_, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

// IsConflict reports a violation of the deferred exclusion constraint that
// backs confirmed and checked-in commitments. It surfaces at commit.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// classify maps lock contention, serialization failures and statement
// timeouts to model.ErrUnavailable. Domain errors pass through.
func classify(err error) error {
	if err == nil || model.IsExpected(err) {
		return err
	}
	if IsConflict(err) {
		return &model.ConflictError{}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57014":
			return fmt.Errorf("%w: %s", model.ErrUnavailable, pgErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", model.ErrUnavailable, err)
	}
	return err
}

var locations sync.Map

func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	if v, ok := locations.Load(name); ok {
		return v.(*time.Location)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	locations.Store(name, loc)
	return loc
}

func statusStrings(statuses []model.CommitmentStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, s.String())
	}
	return out
}
