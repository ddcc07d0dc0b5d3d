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
)

const waitlistColumns = `id::text, tenant_id, resource_id, service_id, customer_id, preferred_start, preferred_end,
	timezone, priority, status, created_at, updated_at`

type waitlist struct{ *tx }

func (r waitlist) Insert(ctx context.Context, e model.WaitlistEntry) (model.WaitlistEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row := r.tx.tx.QueryRow(ctx, `
		INSERT INTO waitlist_entries
			(id, tenant_id, resource_id, service_id, customer_id, preferred_start, preferred_end, timezone,
			 priority, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING `+waitlistColumns,
		e.ID, e.TenantID, e.ResourceID, e.ServiceID, e.CustomerID,
		e.PreferredInterval.Start.UTC(), e.PreferredInterval.End.UTC(), e.PreferredInterval.TZ(),
		e.Priority, e.Status.String(), createdAt(e.CreatedAt))
	return scanWaitlistEntry(row)
}

func (r waitlist) Get(ctx context.Context, tenantID, id string) (model.WaitlistEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.WaitlistEntry{}, fmt.Errorf("%w: waitlist entry %s", model.ErrNotFound, id)
	}
	row := r.tx.tx.QueryRow(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE id = $1 AND tenant_id = $2`+r.forUpdate(), id, tenantID)
	e, err := scanWaitlistEntry(row)
	if IsNotFound(err) {
		return model.WaitlistEntry{}, fmt.Errorf("%w: waitlist entry %s", model.ErrNotFound, id)
	}
	return e, err
}

func (r waitlist) Waiting(ctx context.Context, tenantID, resourceID string, iv interval.Interval) ([]model.WaitlistEntry, error) {
	q := psql.Select(waitlistColumns).
		From("waitlist_entries").
		Where(sq.Eq{"tenant_id": tenantID, "resource_id": resourceID, "status": model.WaitlistWaiting.String()}).
		Where(sq.Lt{"preferred_start": iv.End.UTC()}).
		Where(sq.Gt{"preferred_end": iv.Start.UTC()}).
		OrderBy("priority DESC", "created_at ASC", "id ASC")
	if r.writable {
		q = q.Suffix("FOR UPDATE SKIP LOCKED")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build waitlist query: %w", err)
	}
	rows, err := r.tx.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectWaitlist(rows)
}

func (r waitlist) Notified(ctx context.Context, tenantID, resourceID, customerID string, iv interval.Interval) ([]model.WaitlistEntry, error) {
	rows, err := r.tx.tx.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE tenant_id = $1
			AND resource_id = $2
			AND customer_id = $3
			AND status = 'notified'
			AND preferred_start < $5
			AND preferred_end > $4
		ORDER BY created_at, id
	`, tenantID, resourceID, customerID, iv.Start.UTC(), iv.End.UTC())
	if err != nil {
		return nil, err
	}
	return collectWaitlist(rows)
}

func (r waitlist) SetStatus(ctx context.Context, tenantID, id string, status model.WaitlistStatus, now time.Time) error {
	tag, err := r.tx.tx.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = $3, updated_at = $4
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, status.String(), now.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: waitlist entry %s", model.ErrNotFound, id)
	}
	return nil
}

func (r waitlist) ExpireEnded(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.tx.tx.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = 'expired', updated_at = $1
		WHERE status = 'waiting' AND preferred_end <= $1
	`, now.UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func collectWaitlist(rows pgx.Rows) ([]model.WaitlistEntry, error) {
	defer rows.Close()
	var out []model.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanWaitlistEntry(row pgx.Row) (model.WaitlistEntry, error) {
	var (
		e      model.WaitlistEntry
		tz     string
		status string
	)
	if err := row.Scan(
		&e.ID,
		&e.TenantID,
		&e.ResourceID,
		&e.ServiceID,
		&e.CustomerID,
		&e.PreferredInterval.Start,
		&e.PreferredInterval.End,
		&tz,
		&e.Priority,
		&status,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return model.WaitlistEntry{}, err
	}
	var err error
	if e.Status, err = model.ParseWaitlistStatus(status); err != nil {
		return model.WaitlistEntry{}, err
	}
	e.PreferredInterval = e.PreferredInterval.In(location(tz))
	return e, nil
}
