package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/hold"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/payment"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store/memstore"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/waitlist"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/workinghours"
)

// Monday.
var day = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func newServer(t *testing.T) http.Handler {
	t.Helper()
	clock := func() time.Time { return at(8, 0) }
	s := memstore.New(memstore.WithClock(clock))
	s.PutResource(model.Resource{ID: "R1", TenantID: "A", Location: time.UTC},
		model.WorkingHoursRule{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60})

	wl := waitlist.NewManager(s, time.Second, waitlist.WithClock(clock))
	api := New(Deps{
		Holds:     hold.NewManager(s, hold.Config{}, hold.WithClock(clock)),
		Bookings:  booking.NewController(s, wl, &payment.StaticChecker{}, booking.Config{}, booking.WithClock(clock)),
		Waitlist:  wl,
		Slots:     availability.NewGenerator(s, workinghours.NewResolver(s.Schedules()), availability.Config{MaxRangeDays: 31}),
		Schedules: s.Schedules(),
		Clock:     clock,
	})
	r := mux.NewRouter()
	api.Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(TenantHeader, "A")
	req.Header.Set(ActorHeader, "user-1")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func window(sh, eh int) map[string]any {
	return map[string]any{
		"resource_id": "R1",
		"start":       at(sh, 0).Format(time.RFC3339),
		"end":         at(eh, 0).Format(time.RFC3339),
	}
}

func with(base map[string]any, kv ...any) map[string]any {
	out := map[string]any{}
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

func TestRequiresTenantHeader(t *testing.T) {
	h := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/slots?resource_id=R1&from=2026-02-02&duration_minutes=60", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestSlots_FullDayThenBooked(t *testing.T) {
	h := newServer(t)
	rec := do(t, h, http.MethodGet, "/api/v1/slots?resource_id=R1&from=2026-02-02&duration_minutes=60", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[slotsResponse](t, rec).Slots; len(got) != 8 {
		t.Fatalf("expected 8 slots, got %d", len(got))
	}

	rec = do(t, h, http.MethodPost, "/api/v1/bookings", with(window(10, 11), "client_generated_id", "abc"))
	expectStatus(t, rec, http.StatusCreated)

	rec = do(t, h, http.MethodGet, "/api/v1/slots?resource_id=R1&from=2026-02-02&duration_minutes=60", nil)
	expectStatus(t, rec, http.StatusOK)
	for _, s := range decode[slotsResponse](t, rec).Slots {
		if s.Start.Equal(at(10, 0)) {
			t.Fatalf("booked slot still offered")
		}
	}

	rec = do(t, h, http.MethodGet, "/api/v1/slots?resource_id=R1&from=2026-02-02", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestHolds_ConflictCarriesAlternatives(t *testing.T) {
	h := newServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/holds", with(window(10, 11), "ttl_minutes", 15))
	expectStatus(t, rec, http.StatusCreated)
	created := decode[holdJSON](t, rec)
	if created.Status != "held" || !created.ExpiresAt.Equal(at(8, 15)) {
		t.Fatalf("unexpected hold %+v", created)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/holds", map[string]any{
		"resource_id": "R1",
		"start":       at(10, 30).Format(time.RFC3339),
		"end":         at(11, 30).Format(time.RFC3339),
	})
	expectStatus(t, rec, http.StatusConflict)
	body := decode[errorBody](t, rec)
	if body.Code != "conflict" || len(body.Alternatives) == 0 {
		t.Fatalf("expected conflict with alternatives, got %+v", body)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/holds", with(window(12, 13), "ttl_minutes", 0))
	expectStatus(t, rec, http.StatusBadRequest)

	rec = do(t, h, http.MethodDelete, "/api/v1/holds/"+created.HoldKey, nil)
	expectStatus(t, rec, http.StatusNoContent)
	rec = do(t, h, http.MethodDelete, "/api/v1/holds/"+created.HoldKey, nil)
	expectStatus(t, rec, http.StatusNoContent)
}

func TestBookings_Lifecycle(t *testing.T) {
	h := newServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/bookings", window(14, 15), IdempotencyHeader, "abc")
	expectStatus(t, rec, http.StatusCreated)
	first := decode[bookingJSON](t, rec)
	rec = do(t, h, http.MethodPost, "/api/v1/bookings", window(14, 15), IdempotencyHeader, "abc")
	expectStatus(t, rec, http.StatusCreated)
	if again := decode[bookingJSON](t, rec); again.ID != first.ID {
		t.Fatalf("idempotent create returned %s and %s", first.ID, again.ID)
	}

	path := "/api/v1/bookings/" + first.ID
	rec = do(t, h, http.MethodPost, path+"/confirm", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[bookingJSON](t, rec); got.Status != "confirmed" {
		t.Fatalf("expected confirmed, got %s", got.Status)
	}

	rec = do(t, h, http.MethodPost, path+"/no-show", nil)
	expectStatus(t, rec, http.StatusConflict)

	rec = do(t, h, http.MethodPost, path+"/reschedule", map[string]any{
		"start": at(15, 0).Format(time.RFC3339),
		"end":   at(16, 0).Format(time.RFC3339),
	})
	expectStatus(t, rec, http.StatusOK)

	rec = do(t, h, http.MethodPost, path+"/cancel", map[string]any{"reason": "customer request"})
	expectStatus(t, rec, http.StatusOK)
	canceled := decode[bookingJSON](t, rec)
	if canceled.Status != "canceled" || canceled.CancelReason != "customer request" || canceled.LastActorID != "user-1" {
		t.Fatalf("unexpected cancel result %+v", canceled)
	}

	rec = do(t, h, http.MethodPost, path+"/status", map[string]any{"status": "confirmed"})
	expectStatus(t, rec, http.StatusConflict)

	rec = do(t, h, http.MethodGet, "/api/v1/bookings?status=canceled", nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]bookingJSON](t, rec); len(list) != 1 {
		t.Fatalf("expected one canceled booking, got %d", len(list))
	}

	rec = do(t, h, http.MethodGet, "/api/v1/bookings/missing", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestBookings_PaymentRequired(t *testing.T) {
	h := newServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/bookings", with(window(10, 11), "client_generated_id", "pay", "requires_payment", true))
	expectStatus(t, rec, http.StatusCreated)
	b := decode[bookingJSON](t, rec)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings/"+b.ID+"/confirm", nil)
	expectStatus(t, rec, http.StatusPaymentRequired)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings/"+b.ID+"/confirm", map[string]any{"require_payment": false})
	expectStatus(t, rec, http.StatusOK)
}

func TestWaitlist_JoinLeave(t *testing.T) {
	h := newServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/waitlist", with(window(13, 16), "priority", 2))
	expectStatus(t, rec, http.StatusCreated)
	entry := decode[waitlistJSON](t, rec)
	if entry.Status != "waiting" || entry.CustomerID != "user-1" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/waitlist/"+entry.ID, nil)
	expectStatus(t, rec, http.StatusNoContent)
	rec = do(t, h, http.MethodDelete, "/api/v1/waitlist/"+entry.ID, nil)
	expectStatus(t, rec, http.StatusNoContent)

	rec = do(t, h, http.MethodDelete, "/api/v1/waitlist/unknown", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestStatusOf_Unavailable(t *testing.T) {
	if code, _ := statusOf(model.ErrUnavailable); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if code, _ := statusOf(model.ErrExpired); code != http.StatusGone {
		t.Fatalf("expected 410, got %d", code)
	}
}
