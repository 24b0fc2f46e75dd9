package api

import (
	"net/http"
	"time"

	"github.com/drgrieve/TeslaChargingManager/core/journal"
	"github.com/drgrieve/TeslaChargingManager/infra/report"
)

func parseQuery(r *http.Request) (journal.Query, error) {
	v := r.URL.Query()
	q := journal.Query{SessionID: v.Get("session_id"), Kind: v.Get("kind")}
	for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
		s := v.Get(name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, err
		}
		*dst = t
	}
	return q, nil
}

func queryStore(w http.ResponseWriter, r *http.Request, store journal.Store) ([]journal.Record, bool) {
	q, err := parseQuery(r)
	if err != nil {
		http.Error(w, "invalid time: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	recs, err := store.Query(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if recs == nil {
		recs = []journal.Record{}
	}
	return recs, true
}

// NewJournalHandler exposes journal records via GET /api/journal. It
// accepts start, end, session_id and kind filters.
func NewJournalHandler(store journal.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		if recs, ok := queryStore(w, r, store); ok {
			writeJSON(w, recs)
		}
	})
}

// NewSessionsHandler summarises journalled sessions via GET /api/sessions.
func NewSessionsHandler(store journal.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		recs, ok := queryStore(w, r, store)
		if !ok {
			return
		}
		writeJSON(w, report.Summarize(recs))
	})
}
