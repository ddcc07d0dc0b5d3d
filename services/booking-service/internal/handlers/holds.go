package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/hold"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

type createHoldRequest struct {
	ResourceID          string    `json:"resource_id"`
	CustomerID          string    `json:"customer_id"`
	Start               time.Time `json:"start"`
	End                 time.Time `json:"end"`
	TTLMinutes          *int      `json:"ttl_minutes"`
	BufferBeforeMinutes int       `json:"buffer_before_minutes"`
	BufferAfterMinutes  int       `json:"buffer_after_minutes"`
}

type extendHoldRequest struct {
	AdditionalMinutes int `json:"additional_minutes"`
}

type holdJSON struct {
	HoldKey    string    `json:"hold_key"`
	ResourceID string    `json:"resource_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Timezone   string    `json:"timezone"`
	Status     string    `json:"status"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func newHoldJSON(h model.Hold) holdJSON {
	return holdJSON{
		HoldKey:    h.HoldKey,
		ResourceID: h.ResourceID,
		CustomerID: h.CustomerID,
		Start:      h.Interval.Start,
		End:        h.Interval.End,
		Timezone:   h.Interval.TZ(),
		Status:     h.Status.String(),
		ExpiresAt:  h.ExpiresAt,
		CreatedAt:  h.CreatedAt,
	}
}

func (a *API) createHold(w http.ResponseWriter, r *http.Request) {
	var req createHoldRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	tenant := tenantID(r)
	iv, err := a.localize(r.Context(), tenant, req.ResourceID, interval.Interval{Start: req.Start, End: req.End})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	ttl := a.holds.DefaultTTL()
	if req.TTLMinutes != nil {
		ttl = minutes(*req.TTLMinutes)
	}
	customer := req.CustomerID
	if customer == "" {
		customer = actorID(r)
	}

	h, err := a.holds.CreateHold(r.Context(), hold.CreateRequest{
		TenantID:     tenant,
		ResourceID:   req.ResourceID,
		CustomerID:   customer,
		Interval:     iv,
		TTL:          ttl,
		BufferBefore: minutes(req.BufferBeforeMinutes),
		BufferAfter:  minutes(req.BufferAfterMinutes),
	})
	if err != nil {
		a.fail(w, r, tenant, req.ResourceID, iv, err)
		return
	}
	a.cache.Invalidate(r.Context(), tenant, h.ResourceID)
	writeJSON(w, http.StatusCreated, newHoldJSON(h))
}

func (a *API) getHold(w http.ResponseWriter, r *http.Request) {
	h, err := a.holds.GetHold(r.Context(), tenantID(r), mux.Vars(r)["holdKey"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newHoldJSON(h))
}

func (a *API) extendHold(w http.ResponseWriter, r *http.Request) {
	var req extendHoldRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	h, err := a.holds.ExtendHold(r.Context(), tenantID(r), mux.Vars(r)["holdKey"], minutes(req.AdditionalMinutes))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newHoldJSON(h))
}

func (a *API) releaseHold(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	key := mux.Vars(r)["holdKey"]
	h, err := a.holds.GetHold(r.Context(), tenant, key)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.holds.ReleaseHold(r.Context(), tenant, key); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.cache.Invalidate(r.Context(), tenant, h.ResourceID)
	w.WriteHeader(http.StatusNoContent)
}
