package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ignite/outreach-scheduler/internal/service/campaign"
)

type ctxKey int

const accountKey ctxKey = iota

// requireAccount rejects control API calls without a resolved tenant.
func requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := r.Header.Get("X-Account-ID")
		if accountID == "" {
			writeJSONError(w, "missing X-Account-ID header", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey, accountID)))
	})
}

func accountFrom(r *http.Request) string {
	id, _ := r.Context().Value(accountKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeCampaignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		writeJSONError(w, "campaign not found", http.StatusNotFound)
	case errors.Is(err, campaign.ErrInvalidTransition):
		writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, campaign.ErrInvalidSchedule):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}
