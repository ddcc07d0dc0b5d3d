// Package handlers exposes the reservation engine over HTTP.
//
// Tenant and actor identities arrive in the X-Tenant-Id and X-Actor-Id
// headers, set by the gateway after authentication, and are trusted as is.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/hold"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/slotcache"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/waitlist"
)

const (
	TenantHeader = "X-Tenant-Id"
	ActorHeader  = "X-Actor-Id"
	// IdempotencyHeader stands in for client_generated_id when the body omits it.
	IdempotencyHeader = "Idempotency-Key"

	maxAlternatives = 10
)

type Deps struct {
	Holds     *hold.Manager
	Bookings  *booking.Controller
	Waitlist  *waitlist.Manager
	Slots     *availability.Generator
	Cache     *slotcache.Cache
	Schedules store.ScheduleReader
	Logger    *slog.Logger
	Clock     func() time.Time
}

type API struct {
	holds     *hold.Manager
	bookings  *booking.Controller
	waitlist  *waitlist.Manager
	slots     *availability.Generator
	cache     *slotcache.Cache
	schedules store.ScheduleReader
	logger    *slog.Logger
	clock     func() time.Time
}

func New(d Deps) *API {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return &API{
		holds:     d.Holds,
		bookings:  d.Bookings,
		waitlist:  d.Waitlist,
		slots:     d.Slots,
		cache:     d.Cache,
		schedules: d.Schedules,
		logger:    d.Logger,
		clock:     d.Clock,
	}
}

// Register mounts the API under /api/v1 on r.
func (a *API) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(requireTenant)

	api.HandleFunc("/slots", a.getSlots).Methods(http.MethodGet)

	api.HandleFunc("/holds", a.createHold).Methods(http.MethodPost)
	api.HandleFunc("/holds/{holdKey}", a.getHold).Methods(http.MethodGet)
	api.HandleFunc("/holds/{holdKey}/extend", a.extendHold).Methods(http.MethodPost)
	api.HandleFunc("/holds/{holdKey}", a.releaseHold).Methods(http.MethodDelete)

	api.HandleFunc("/bookings", a.createBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings", a.listBookings).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{bookingId}", a.getBooking).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{bookingId}/confirm", a.confirmBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{bookingId}/cancel", a.cancelBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{bookingId}/reschedule", a.rescheduleBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{bookingId}/no-show", a.markNoShow).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{bookingId}/check-in", a.checkIn).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{bookingId}/complete", a.complete).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{bookingId}/status", a.applyStatus).Methods(http.MethodPost)

	api.HandleFunc("/waitlist", a.joinWaitlist).Methods(http.MethodPost)
	api.HandleFunc("/waitlist/{entryId}", a.getWaitlistEntry).Methods(http.MethodGet)
	api.HandleFunc("/waitlist/{entryId}", a.leaveWaitlist).Methods(http.MethodDelete)
}

type ctxKey int

const (
	ctxKeyTenant ctxKey = iota
	ctxKeyActor
)

func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(TenantHeader))
		if tenantID == "" {
			writeMessage(w, http.StatusBadRequest, "validation", TenantHeader+" header required")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyTenant, tenantID)
		ctx = context.WithValue(ctx, ctxKeyActor, strings.TrimSpace(r.Header.Get(ActorHeader)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantID(r *http.Request) string {
	v, _ := r.Context().Value(ctxKeyTenant).(string)
	return v
}

func actorID(r *http.Request) string {
	v, _ := r.Context().Value(ctxKeyActor).(string)
	return v
}

// localize moves iv into the resource's zone so stored intervals carry it.
// Unknown resources keep the offset the client sent.
func (a *API) localize(ctx context.Context, tenantID, resourceID string, iv interval.Interval) (interval.Interval, error) {
	if a.schedules == nil || resourceID == "" {
		return iv, nil
	}
	res, err := a.schedules.Resource(ctx, tenantID, resourceID)
	if errors.Is(err, model.ErrNotFound) {
		return iv, nil
	}
	if err != nil {
		return interval.Interval{}, err
	}
	return iv.In(res.Location), nil
}

// conflict answers a 409 with fresh slots of the same length on the day the
// client asked for, so the caller can pick again without another round trip.
func (a *API) conflict(w http.ResponseWriter, r *http.Request, tenantID, resourceID string, iv interval.Interval, err error) {
	body := errorBody{Error: err.Error(), Code: "conflict"}
	if a.slots != nil {
		q := availability.Query{
			TenantID:   tenantID,
			ResourceID: resourceID,
			Service:    availability.Service{Duration: iv.Duration()},
			Now:        a.clock(),
		}
		day, dayErr := a.slots.Day(r.Context(), q, iv.Start)
		if dayErr != nil {
			a.logger.Warn("conflict alternatives failed", "resource_id", resourceID, "err", dayErr)
		}
		for _, s := range day {
			if len(body.Alternatives) == maxAlternatives {
				break
			}
			body.Alternatives = append(body.Alternatives, newSlotJSON(resourceID, s))
		}
	}
	writeJSON(w, http.StatusConflict, body)
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, tenantID, resourceID string, iv interval.Interval, err error) {
	if errors.Is(err, model.ErrConflict) && resourceID != "" {
		a.conflict(w, r, tenantID, resourceID, iv, err)
		return
	}
	a.writeError(w, r, err)
}

type slotJSON struct {
	ResourceID string    `json:"resource_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Timezone   string    `json:"timezone"`
}

func newSlotJSON(resourceID string, iv interval.Interval) slotJSON {
	return slotJSON{ResourceID: resourceID, Start: iv.Start, End: iv.End, Timezone: iv.TZ()}
}
