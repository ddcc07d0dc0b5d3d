package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/waitlist"
)

type joinWaitlistRequest struct {
	ResourceID string    `json:"resource_id"`
	ServiceID  string    `json:"service_id"`
	CustomerID string    `json:"customer_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Priority   int       `json:"priority"`
}

type waitlistJSON struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	ServiceID  string    `json:"service_id,omitempty"`
	CustomerID string    `json:"customer_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Timezone   string    `json:"timezone"`
	Priority   int       `json:"priority"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func newWaitlistJSON(e model.WaitlistEntry) waitlistJSON {
	return waitlistJSON{
		ID:         e.ID,
		ResourceID: e.ResourceID,
		ServiceID:  e.ServiceID,
		CustomerID: e.CustomerID,
		Start:      e.PreferredInterval.Start,
		End:        e.PreferredInterval.End,
		Timezone:   e.PreferredInterval.TZ(),
		Priority:   e.Priority,
		Status:     e.Status.String(),
		CreatedAt:  e.CreatedAt,
	}
}

func (a *API) joinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req joinWaitlistRequest
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
	customer := req.CustomerID
	if customer == "" {
		customer = actorID(r)
	}
	e, err := a.waitlist.Join(r.Context(), waitlist.JoinRequest{
		TenantID:          tenant,
		ResourceID:        req.ResourceID,
		ServiceID:         req.ServiceID,
		CustomerID:        customer,
		PreferredInterval: iv,
		Priority:          req.Priority,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newWaitlistJSON(e))
}

func (a *API) getWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	e, err := a.waitlist.Get(r.Context(), tenantID(r), mux.Vars(r)["entryId"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newWaitlistJSON(e))
}

func (a *API) leaveWaitlist(w http.ResponseWriter, r *http.Request) {
	if err := a.waitlist.Leave(r.Context(), tenantID(r), mux.Vars(r)["entryId"]); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
