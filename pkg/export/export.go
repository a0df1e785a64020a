// Package export writes ledger postings for offline settlement.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/gridmarket/core/ledger"
)

var csvHeader = []string{"id", "type", "timeslot", "broker", "kind", "tariff_id", "customer", "count", "quantity", "price", "cash", "posted"}

// WriteJSON writes postings to w as a JSON array.
func WriteJSON(w io.Writer, postings []ledger.Posting) error {
	if postings == nil {
		postings = []ledger.Posting{}
	}
	return json.NewEncoder(w).Encode(postings)
}

// WriteCSV writes postings to w, one row per posting after a header row.
func WriteCSV(w io.Writer, postings []ledger.Posting) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range postings {
		rec := []string{
			p.ID,
			string(p.Type),
			strconv.Itoa(p.Timeslot),
			p.Broker,
			string(p.Kind),
			strconv.FormatInt(p.TariffID, 10),
			p.Customer,
			strconv.Itoa(p.Count),
			strconv.FormatFloat(p.Quantity, 'f', -1, 64),
			strconv.FormatFloat(p.Price, 'f', -1, 64),
			strconv.FormatFloat(p.Cash, 'f', -1, 64),
			p.Posted.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
