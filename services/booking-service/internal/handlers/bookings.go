package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type serviceJSON struct {
	ServiceID           string `json:"service_id"`
	Name                string `json:"name,omitempty"`
	BufferBeforeMinutes int    `json:"buffer_before_minutes,omitempty"`
	BufferAfterMinutes  int    `json:"buffer_after_minutes,omitempty"`
	PriceCents          int64  `json:"price_cents,omitempty"`
	Currency            string `json:"currency,omitempty"`
}

type createBookingRequest struct {
	ClientGeneratedID string      `json:"client_generated_id"`
	HoldKey           string      `json:"hold_key"`
	ResourceID        string      `json:"resource_id"`
	CustomerID        string      `json:"customer_id"`
	Start             time.Time   `json:"start"`
	End               time.Time   `json:"end"`
	Service           serviceJSON `json:"service"`
	RequiresPayment   bool        `json:"requires_payment"`
}

type confirmRequest struct {
	// RequirePayment defaults to the booking's own requires_payment flag.
	RequirePayment *bool `json:"require_payment"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type rescheduleRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type bookingJSON struct {
	ID                string      `json:"id"`
	ClientGeneratedID string      `json:"client_generated_id"`
	ResourceID        string      `json:"resource_id"`
	CustomerID        string      `json:"customer_id,omitempty"`
	Service           serviceJSON `json:"service"`
	Start             time.Time   `json:"start"`
	End               time.Time   `json:"end"`
	Timezone          string      `json:"timezone"`
	Status            string      `json:"status"`
	RequiresPayment   bool        `json:"requires_payment"`
	CancelReason      string      `json:"cancel_reason,omitempty"`
	LastActorID       string      `json:"last_actor_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

func newBookingJSON(b model.Booking) bookingJSON {
	return bookingJSON{
		ID:                b.ID,
		ClientGeneratedID: b.ClientGeneratedID,
		ResourceID:        b.ResourceID,
		CustomerID:        b.CustomerID,
		Service: serviceJSON{
			ServiceID:           b.Service.ServiceID,
			Name:                b.Service.Name,
			BufferBeforeMinutes: int(b.Service.BufferBefore / time.Minute),
			BufferAfterMinutes:  int(b.Service.BufferAfter / time.Minute),
			PriceCents:          b.Service.PriceCents,
			Currency:            b.Service.Currency,
		},
		Start:           b.Interval.Start,
		End:             b.Interval.End,
		Timezone:        b.Interval.TZ(),
		Status:          b.Status.String(),
		RequiresPayment: b.RequiresPayment,
		CancelReason:    b.CancelReason,
		LastActorID:     b.LastActorID,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func (a *API) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.ClientGeneratedID == "" {
		req.ClientGeneratedID = strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	}
	tenant := tenantID(r)
	iv, err := a.localize(r.Context(), tenant, req.ResourceID, interval.Interval{Start: req.Start, End: req.End})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	customer := req.CustomerID
	if customer == "" {
		customer = actorID(r)
	}

	b, err := a.bookings.CreateBooking(r.Context(), tenant, booking.CreateRequest{
		ClientGeneratedID: req.ClientGeneratedID,
		HoldKey:           req.HoldKey,
		ResourceID:        req.ResourceID,
		CustomerID:        customer,
		Interval:          iv,
		Service: model.ServiceSnapshot{
			ServiceID:    req.Service.ServiceID,
			Name:         req.Service.Name,
			Duration:     iv.Duration(),
			BufferBefore: minutes(req.Service.BufferBeforeMinutes),
			BufferAfter:  minutes(req.Service.BufferAfterMinutes),
			PriceCents:   req.Service.PriceCents,
			Currency:     req.Service.Currency,
		},
		RequiresPayment: req.RequiresPayment,
		ActorID:         actorID(r),
	})
	if err != nil {
		a.fail(w, r, tenant, req.ResourceID, iv, err)
		return
	}
	a.cache.Invalidate(r.Context(), tenant, b.ResourceID)
	writeJSON(w, http.StatusCreated, newBookingJSON(b))
}

func (a *API) listBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.BookingFilter{
		ResourceID: strings.TrimSpace(q.Get("resource_id")),
		CustomerID: strings.TrimSpace(q.Get("customer_id")),
		Limit:      defaultListLimit,
	}
	for _, raw := range splitList(q["status"]) {
		s, err := model.ParseBookingStatus(raw)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		filter.Statuses = append(filter.Statuses, s)
	}
	for name, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "validation", name+" must be RFC3339")
			return
		}
		*dst = t
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= maxListLimit {
			filter.Limit = n
		}
	}

	list, err := a.bookings.ListBookings(r.Context(), tenantID(r), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	items := make([]bookingJSON, 0, len(list))
	for _, b := range list {
		items = append(items, newBookingJSON(b))
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := a.bookings.GetBooking(r.Context(), tenantID(r), mux.Vars(r)["bookingId"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingJSON(b))
}

func (a *API) confirmBooking(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	tenant, id := tenantID(r), mux.Vars(r)["bookingId"]
	var requirePayment bool
	if req.RequirePayment != nil {
		requirePayment = *req.RequirePayment
	} else {
		current, err := a.bookings.GetBooking(r.Context(), tenant, id)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		requirePayment = current.RequiresPayment
	}
	b, err := a.bookings.ConfirmBooking(r.Context(), tenant, id, requirePayment, actorID(r))
	a.respondBooking(w, r, b, err, false)
}

func (a *API) cancelBooking(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	b, err := a.bookings.CancelBooking(r.Context(), tenantID(r), mux.Vars(r)["bookingId"], strings.TrimSpace(req.Reason), actorID(r))
	a.respondBooking(w, r, b, err, true)
}

func (a *API) rescheduleBooking(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	tenant, id := tenantID(r), mux.Vars(r)["bookingId"]
	current, err := a.bookings.GetBooking(r.Context(), tenant, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	iv, err := a.localize(r.Context(), tenant, current.ResourceID, interval.Interval{Start: req.Start, End: req.End})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	b, err := a.bookings.RescheduleBooking(r.Context(), tenant, id, iv, actorID(r))
	if err != nil {
		a.fail(w, r, tenant, current.ResourceID, iv, err)
		return
	}
	a.cache.Invalidate(r.Context(), tenant, b.ResourceID)
	writeJSON(w, http.StatusOK, newBookingJSON(b))
}

func (a *API) markNoShow(w http.ResponseWriter, r *http.Request) {
	b, err := a.bookings.MarkNoShow(r.Context(), tenantID(r), mux.Vars(r)["bookingId"], actorID(r))
	a.respondBooking(w, r, b, err, true)
}

func (a *API) checkIn(w http.ResponseWriter, r *http.Request) {
	b, err := a.bookings.CheckIn(r.Context(), tenantID(r), mux.Vars(r)["bookingId"], actorID(r))
	a.respondBooking(w, r, b, err, false)
}

func (a *API) complete(w http.ResponseWriter, r *http.Request) {
	b, err := a.bookings.Complete(r.Context(), tenantID(r), mux.Vars(r)["bookingId"], actorID(r))
	a.respondBooking(w, r, b, err, true)
}

func (a *API) applyStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	status, err := model.ParseBookingStatus(req.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	b, err := a.bookings.ApplyStatus(r.Context(), tenantID(r), mux.Vars(r)["bookingId"], status, actorID(r))
	a.respondBooking(w, r, b, err, true)
}

// respondBooking writes the outcome of a status change. frees marks changes
// that may release the interval, which invalidates cached slots.
func (a *API) respondBooking(w http.ResponseWriter, r *http.Request, b model.Booking, err error, frees bool) {
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if frees {
		a.cache.Invalidate(r.Context(), b.TenantID, b.ResourceID)
	}
	writeJSON(w, http.StatusOK, newBookingJSON(b))
}
