package ledger

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	coreledger "github.com/kilianp07/gridmarket/core/ledger"
	"github.com/kilianp07/gridmarket/pkg/export"
)

// Querier reads committed postings back.
type Querier interface {
	Query(ctx context.Context, q coreledger.Query) ([]coreledger.Posting, error)
}

// NewPostingsHandler returns an HTTP handler exposing committed postings via
// GET /api/ledger/postings. Requests must include an Authorization header
// with "Bearer <token>" when token is non-empty. format=csv selects CSV.
func NewPostingsHandler(store Querier, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		params := r.URL.Query()
		q := coreledger.Query{
			Broker: params.Get("broker"),
			Type:   coreledger.PostingType(params.Get("type")),
		}
		if s := params.Get("timeslot"); s != "" {
			ts, err := strconv.Atoi(s)
			if err != nil {
				http.Error(w, "invalid timeslot", http.StatusBadRequest)
				return
			}
			q.Timeslot = &ts
		}
		postings, err := store.Query(r.Context(), q)
		if errors.Is(err, coreledger.ErrWriteOnly) {
			http.Error(w, err.Error(), http.StatusNotImplemented)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if params.Get("format") == "csv" {
			w.Header().Set("Content-Type", "text/csv")
			err = export.WriteCSV(w, postings)
		} else {
			w.Header().Set("Content-Type", "application/json")
			err = export.WriteJSON(w, postings)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
