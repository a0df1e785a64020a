package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	apiledger "github.com/kilianp07/gridmarket/api/ledger"
	"github.com/kilianp07/gridmarket/api/market"
)

// Handler returns the read-only HTTP API of the service.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/ledger/postings", apiledger.NewPostingsHandler(s.Ledger, s.cfg.API.Token))
	mux.Handle("/api/market/timeslot", market.NewTimeslotHandler(s.Engine))
	mux.Handle("/api/market/tariffs", market.NewTariffsHandler(s.Tariffs))
	mux.Handle("/api/market/balances", market.NewBalancesHandler(s.Ledger))
	return mux
}

// serveAPI serves Handler on addr until ctx is canceled.
func (s *Service) serveAPI(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("api server shutdown: %v", err)
		}
		cancel()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
