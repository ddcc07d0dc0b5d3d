package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

type errorBody struct {
	Error        string     `json:"error"`
	Code         string     `json:"code"`
	Alternatives []slotJSON `json:"alternatives,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeMessage(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// statusOf maps the engine's error taxonomy onto HTTP. Anything outside it is
// an infrastructure failure.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidInterval):
		return http.StatusBadRequest, "invalid_interval"
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrDuplicate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, model.ErrExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, model.ErrPaymentRequired):
		return http.StatusPaymentRequired, "payment_required"
	case errors.Is(err, model.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	switch status {
	case http.StatusInternalServerError:
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeMessage(w, status, code, "internal error")
		return
	case http.StatusServiceUnavailable:
		a.logger.Warn("request unavailable", "method", r.Method, "path", r.URL.Path, "err", err)
		w.Header().Set("Retry-After", "1")
	}
	writeMessage(w, status, code, err.Error())
}

// decodeJSON reads a single JSON object. An empty body decodes to the zero
// value so action endpoints may omit it.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid json body: %v", model.ErrValidation, err)
	}
	return nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
