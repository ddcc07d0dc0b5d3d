package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

type slotsResponse struct {
	Slots []slotJSON `json:"slots"`
}

// getSlots serves GET /slots?resource_id=..&from=YYYY-MM-DD&to=YYYY-MM-DD
// &duration_minutes=..[&step_minutes&buffer_before_minutes&buffer_after_minutes].
// Several resource_id values are merged in the order given.
func (a *API) getSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resources := splitList(q["resource_id"])
	if len(resources) == 0 {
		writeMessage(w, http.StatusBadRequest, "validation", "resource_id required")
		return
	}

	base, err := parseSlotQuery(q.Get("from"), q.Get("to"), q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	base.TenantID = tenantID(r)
	base.Now = a.clock()

	lists := make([]availability.StaffSlots, 0, len(resources))
	for _, resourceID := range resources {
		query := base
		query.ResourceID = resourceID
		slots, err := a.cache.Slots(r.Context(), query, func(ctx context.Context) ([]interval.Interval, error) {
			return availability.Collect(a.slots.Slots(ctx, query))
		})
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		lists = append(lists, availability.StaffSlots{ResourceID: resourceID, Slots: slots})
	}

	resp := slotsResponse{Slots: []slotJSON{}}
	for _, s := range availability.MergeByStaff(lists...) {
		resp.Slots = append(resp.Slots, newSlotJSON(s.ResourceID, s.Interval))
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseSlotQuery(from, to string, q map[string][]string) (availability.Query, error) {
	var out availability.Query
	start, err := time.Parse(model.DateLayout, strings.TrimSpace(from))
	if err != nil {
		return out, fmt.Errorf("%w: from must be YYYY-MM-DD", model.ErrValidation)
	}
	end := start
	if strings.TrimSpace(to) != "" {
		if end, err = time.Parse(model.DateLayout, strings.TrimSpace(to)); err != nil {
			return out, fmt.Errorf("%w: to must be YYYY-MM-DD", model.ErrValidation)
		}
	}
	out.From, out.To = start, end

	ints := map[string]*time.Duration{
		"duration_minutes":      &out.Service.Duration,
		"step_minutes":          &out.Step,
		"buffer_before_minutes": &out.Service.BufferBefore,
		"buffer_after_minutes":  &out.Service.BufferAfter,
	}
	for name, dst := range ints {
		raw := ""
		if v := q[name]; len(v) > 0 {
			raw = strings.TrimSpace(v[0])
		}
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return out, fmt.Errorf("%w: %s must be an integer", model.ErrValidation, name)
		}
		*dst = minutes(n)
	}
	return out, nil
}
