package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

const bookingColumns = `id::text, tenant_id, customer_id, resource_id, commitment_id::text, service_snapshot,
	start_at, end_at, timezone, status, client_generated_id, requires_payment,
	COALESCE(cancel_reason, ''), COALESCE(last_actor_id, ''), created_at, updated_at`

type bookings struct{ *tx }

func (r bookings) LockClientID(ctx context.Context, tenantID, clientGeneratedID string) error {
	return advisoryXactLock(ctx, r.tx.tx, lockKey("booking", tenantID, clientGeneratedID))
}

func (r bookings) Insert(ctx context.Context, b model.Booking) (model.Booking, error) {
	snapshot, err := json.Marshal(b.Service)
	if err != nil {
		return model.Booking{}, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	row := r.tx.tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, tenant_id, customer_id, resource_id, commitment_id, service_snapshot, start_at, end_at, timezone,
			 status, client_generated_id, requires_payment, last_actor_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING `+bookingColumns,
		b.ID, b.TenantID, b.CustomerID, b.ResourceID, b.CommitmentID, snapshot,
		b.Interval.Start.UTC(), b.Interval.End.UTC(), b.Interval.TZ(),
		b.Status.String(), b.ClientGeneratedID, b.RequiresPayment, b.LastActorID, createdAt(b.CreatedAt))
	inserted, err := scanBooking(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return model.Booking{}, fmt.Errorf("%w: %s", model.ErrDuplicate, b.ClientGeneratedID)
		}
		return model.Booking{}, err
	}
	return inserted, nil
}

func (r bookings) Get(ctx context.Context, tenantID, id string) (model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Booking{}, fmt.Errorf("%w: booking %s", model.ErrNotFound, id)
	}
	return r.getOne(ctx, "id = $1 AND tenant_id = $2", id, tenantID)
}

func (r bookings) GetByClientID(ctx context.Context, tenantID, clientGeneratedID string) (model.Booking, error) {
	return r.getOne(ctx, "client_generated_id = $1 AND tenant_id = $2", clientGeneratedID, tenantID)
}

func (r bookings) GetByCommitment(ctx context.Context, tenantID, commitmentID string) (model.Booking, error) {
	if _, err := uuid.Parse(commitmentID); err != nil {
		return model.Booking{}, fmt.Errorf("%w: booking for commitment %s", model.ErrNotFound, commitmentID)
	}
	return r.getOne(ctx, "commitment_id = $1 AND tenant_id = $2", commitmentID, tenantID)
}

func (r bookings) getOne(ctx context.Context, where string, args ...any) (model.Booking, error) {
	row := r.tx.tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE `+where+r.forUpdate(), args...)
	b, err := scanBooking(row)
	if IsNotFound(err) {
		return model.Booking{}, fmt.Errorf("%w: booking", model.ErrNotFound)
	}
	return b, err
}

func (r bookings) Update(ctx context.Context, b model.Booking) error {
	tag, err := r.tx.tx.Exec(ctx, `
		UPDATE bookings
		SET commitment_id = $3,
			start_at = $4,
			end_at = $5,
			timezone = $6,
			status = $7,
			cancel_reason = NULLIF($8, ''),
			last_actor_id = NULLIF($9, ''),
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, b.ID, b.TenantID, b.CommitmentID, b.Interval.Start.UTC(), b.Interval.End.UTC(), b.Interval.TZ(),
		b.Status.String(), b.CancelReason, b.LastActorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: booking %s", model.ErrNotFound, b.ID)
	}
	return nil
}

func (r bookings) List(ctx context.Context, tenantID string, f model.BookingFilter) ([]model.Booking, error) {
	q := psql.Select(bookingColumns).
		From("bookings").
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("start_at ASC", "id ASC")
	if f.ResourceID != "" {
		q = q.Where(sq.Eq{"resource_id": f.ResourceID})
	}
	if f.CustomerID != "" {
		q = q.Where(sq.Eq{"customer_id": f.CustomerID})
	}
	if len(f.Statuses) > 0 {
		names := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			names = append(names, s.String())
		}
		q = q.Where(sq.Eq{"status": names})
	}
	if !f.From.IsZero() {
		q = q.Where(sq.Gt{"end_at": f.From.UTC()})
	}
	if !f.To.IsZero() {
		q = q.Where(sq.Lt{"start_at": f.To.UTC()})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build booking list query: %w", err)
	}
	rows, err := r.tx.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var (
		b        model.Booking
		snapshot []byte
		tz       string
		status   string
	)
	if err := row.Scan(
		&b.ID,
		&b.TenantID,
		&b.CustomerID,
		&b.ResourceID,
		&b.CommitmentID,
		&snapshot,
		&b.Interval.Start,
		&b.Interval.End,
		&tz,
		&status,
		&b.ClientGeneratedID,
		&b.RequiresPayment,
		&b.CancelReason,
		&b.LastActorID,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return model.Booking{}, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &b.Service); err != nil {
			return model.Booking{}, fmt.Errorf("decode service snapshot: %w", err)
		}
	}
	var err error
	if b.Status, err = model.ParseBookingStatus(status); err != nil {
		return model.Booking{}, err
	}
	b.Interval = b.Interval.In(location(tz))
	return b, nil
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
