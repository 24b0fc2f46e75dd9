// Package api serves the charging status and the session journal over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/drgrieve/TeslaChargingManager/core/model"
)

// Session describes the running or last control session.
type Session struct {
	ID     string `json:"id"`
	Curve  string `json:"curve"`
	Mode   string `json:"mode"`
	Active bool   `json:"active"`
	Reason string `json:"reason"`
}

// Status is the JSON view of the site and the vehicle.
type Status struct {
	Telemetry model.Telemetry    `json:"telemetry"`
	Charge    *model.ChargeState `json:"charge,omitempty"`
	Session   *Session           `json:"session,omitempty"`
}

// StatusFunc reads the current status.
type StatusFunc func(ctx context.Context) (Status, error)

// authorized checks the bearer token when one is configured.
func authorized(w http.ResponseWriter, r *http.Request, token string) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// NewStatusHandler exposes the status via GET /api/status.
func NewStatusHandler(fn StatusFunc, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		st, err := fn(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, st)
	})
}
