package market

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/tariff"
)

// Clearing exposes the published clearing results.
type Clearing interface {
	Orderbook(ts int) (model.Orderbook, bool)
	ClearedTrade(ts int) (model.ClearedTrade, bool)
}

// TariffLister lists the tariffs known to the market.
type TariffLister interface {
	List() []*tariff.Tariff
}

// BalanceReader reports committed broker cash.
type BalanceReader interface {
	Balances() map[string]decimal.Decimal
}

// TimeslotView is the clearing result of one timeslot.
type TimeslotView struct {
	Orderbook *model.Orderbook    `json:"orderbook,omitempty"`
	Trade     *model.ClearedTrade `json:"trade,omitempty"`
}

// TariffView is a tariff with its market state.
type TariffView struct {
	Spec      model.TariffSpecification `json:"spec"`
	State     tariff.State              `json:"state"`
	OfferedAt *time.Time                `json:"offered_at,omitempty"`
}

func viewOf(t *tariff.Tariff) TariffView {
	v := TariffView{Spec: t.Spec(), State: t.State()}
	if at := t.OfferedAt(); !at.IsZero() {
		v.OfferedAt = &at
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func getOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// NewTimeslotHandler serves GET /api/market/timeslot?ts=N.
func NewTimeslotHandler(c Clearing) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !getOnly(w, r) {
			return
		}
		ts, err := strconv.Atoi(r.URL.Query().Get("ts"))
		if err != nil {
			http.Error(w, "invalid ts", http.StatusBadRequest)
			return
		}
		var view TimeslotView
		if b, ok := c.Orderbook(ts); ok {
			view.Orderbook = &b
		}
		if t, ok := c.ClearedTrade(ts); ok {
			view.Trade = &t
		}
		if view.Orderbook == nil {
			http.Error(w, "timeslot not cleared", http.StatusNotFound)
			return
		}
		writeJSON(w, view)
	})
}

// NewTariffsHandler serves GET /api/market/tariffs, optionally filtered by
// broker and state.
func NewTariffsHandler(repo TariffLister) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !getOnly(w, r) {
			return
		}
		broker := r.URL.Query().Get("broker")
		state := tariff.State(r.URL.Query().Get("state"))
		out := make([]TariffView, 0)
		for _, t := range repo.List() {
			if broker != "" && t.Broker() != broker {
				continue
			}
			if state != "" && t.State() != state {
				continue
			}
			out = append(out, viewOf(t))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Spec.ID < out[j].Spec.ID })
		writeJSON(w, out)
	})
}

// NewBalancesHandler serves GET /api/market/balances.
func NewBalancesHandler(b BalanceReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !getOnly(w, r) {
			return
		}
		writeJSON(w, b.Balances())
	})
}
