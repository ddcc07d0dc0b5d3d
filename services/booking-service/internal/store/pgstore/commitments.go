package pgstore

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
)

const commitmentColumns = `id::text, tenant_id, resource_id, start_at, end_at, timezone, kind, status,
	customer_id, buffer_before_seconds, buffer_after_seconds, expires_at, created_at, updated_at`

const defaultExpireBatch = 500

type commitments struct{ *tx }

func (r commitments) QueryOccupancy(ctx context.Context, tenantID, resourceID string, window interval.Interval, now time.Time) ([]model.Commitment, error) {
	query, args, err := psql.Select(commitmentColumns).
		From("commitments").
		Where(sq.Eq{"tenant_id": tenantID, "resource_id": resourceID}).
		Where("status = ANY(?)", statusStrings(model.OccupyingStatuses())).
		Where(sq.Lt{"start_at": window.End.UTC()}).
		Where(sq.Gt{"end_at": window.Start.UTC()}).
		Where(sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": now.UTC()}}).
		OrderBy("start_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build occupancy query: %w", err)
	}
	rows, err := r.tx.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectCommitments(rows)
}

func (r commitments) TryInsert(ctx context.Context, c model.Commitment, now time.Time, opts ...store.InsertOption) (model.Commitment, error) {
	if err := store.ValidateCommitment(c); err != nil {
		return model.Commitment{}, err
	}
	o := store.ApplyInsertOptions(opts)

	if err := advisoryXactLock(ctx, r.tx.tx, lockKey("commitment", c.TenantID, c.ResourceID)); err != nil {
		return model.Commitment{}, err
	}

	row := r.tx.tx.QueryRow(ctx, `
		SELECT `+commitmentColumns+`
		FROM commitments
		WHERE tenant_id = $1
			AND resource_id = $2
			AND status = ANY($3)
			AND start_at < $5
			AND end_at > $4
			AND (expires_at IS NULL OR expires_at > $6)
			AND ($7 = '' OR id::text <> $7)
		ORDER BY start_at
		LIMIT 1
	`, c.TenantID, c.ResourceID, statusStrings(model.OccupyingStatuses()),
		c.Interval.Start.UTC(), c.Interval.End.UTC(), now.UTC(), o.Supersedes)
	existing, err := scanCommitment(row)
	if err == nil {
		return model.Commitment{}, &model.ConflictError{With: existing}
	}
	if !IsNotFound(err) {
		return model.Commitment{}, err
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	row = r.tx.tx.QueryRow(ctx, `
		INSERT INTO commitments
			(id, tenant_id, resource_id, start_at, end_at, timezone, kind, status, customer_id,
			 buffer_before_seconds, buffer_after_seconds, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING `+commitmentColumns,
		c.ID, c.TenantID, c.ResourceID, c.Interval.Start.UTC(), c.Interval.End.UTC(), c.Interval.TZ(),
		c.Kind.String(), c.Status.String(), c.CustomerID,
		int64(c.BufferBefore/time.Second), int64(c.BufferAfter/time.Second), utcPtr(c.ExpiresAt), c.CreatedAt.UTC())
	return scanCommitment(row)
}

func (r commitments) Get(ctx context.Context, tenantID, id string) (model.Commitment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Commitment{}, fmt.Errorf("%w: commitment %s", model.ErrNotFound, id)
	}
	row := r.tx.tx.QueryRow(ctx, `
		SELECT `+commitmentColumns+`
		FROM commitments
		WHERE id = $1 AND tenant_id = $2`+r.forUpdate(), id, tenantID)
	c, err := scanCommitment(row)
	if IsNotFound(err) {
		return model.Commitment{}, fmt.Errorf("%w: commitment %s", model.ErrNotFound, id)
	}
	return c, err
}

func (r commitments) Transition(ctx context.Context, tenantID, id string, to model.CommitmentStatus, expiresAt *time.Time) (model.Commitment, error) {
	c, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return model.Commitment{}, err
	}
	if err := c.Status.CheckTransition(to); err != nil {
		return model.Commitment{}, err
	}
	kind := c.Kind
	if kind == model.KindHold && to == model.CommitmentPending {
		kind = model.KindBooking
	}
	row := r.tx.tx.QueryRow(ctx, `
		UPDATE commitments
		SET status = $3,
			kind = $4,
			expires_at = $5,
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+commitmentColumns,
		id, tenantID, to.String(), kind.String(), utcPtr(expiresAt))
	return scanCommitment(row)
}

func (r commitments) ExpireDue(ctx context.Context, now time.Time, limit int) ([]model.Commitment, error) {
	if limit <= 0 {
		limit = defaultExpireBatch
	}
	rows, err := r.tx.tx.Query(ctx, `
		WITH due AS (
			SELECT id
			FROM commitments
			WHERE status IN ('held', 'pending')
				AND expires_at IS NOT NULL
				AND expires_at <= $1
			ORDER BY expires_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE commitments c
		SET status = CASE WHEN c.status = 'held' THEN 'expired' ELSE 'failed' END,
			updated_at = $1
		FROM due
		WHERE c.id = due.id
		RETURNING c.id::text, c.tenant_id, c.resource_id, c.start_at, c.end_at, c.timezone, c.kind, c.status,
			c.customer_id, c.buffer_before_seconds, c.buffer_after_seconds, c.expires_at, c.created_at, c.updated_at
	`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collectCommitments(rows)
}

func collectCommitments(rows pgx.Rows) ([]model.Commitment, error) {
	defer rows.Close()
	var out []model.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanCommitment(row pgx.Row) (model.Commitment, error) {
	var (
		c            model.Commitment
		tz           string
		kind, status string
		before       int64
		after        int64
		expiresAt    *time.Time
	)
	if err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.ResourceID,
		&c.Interval.Start,
		&c.Interval.End,
		&tz,
		&kind,
		&status,
		&c.CustomerID,
		&before,
		&after,
		&expiresAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return model.Commitment{}, err
	}
	var err error
	if c.Kind, err = model.ParseKind(kind); err != nil {
		return model.Commitment{}, err
	}
	if c.Status, err = model.ParseCommitmentStatus(status); err != nil {
		return model.Commitment{}, err
	}
	c.Interval = c.Interval.In(location(tz))
	c.BufferBefore = time.Duration(before) * time.Second
	c.BufferAfter = time.Duration(after) * time.Second
	c.ExpiresAt = expiresAt
	return c, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
