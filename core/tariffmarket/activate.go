package tariffmarket

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/gridmarket/core/events"
	"github.com/kilianp07/gridmarket/core/ledger"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/monitoring"
	"github.com/kilianp07/gridmarket/core/tariff"
)

// onCadence reports whether ts runs a publication cycle. The first
// activation always does.
func (m *Market) onCadence(ts int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.published {
		m.published = true
		return true
	}
	return ts%m.cfg.PublicationInterval == m.cfg.PublicationOffset
}

// Activate applies queued rate updates and, on publication timeslots,
// revocations, expirations, publication and subscription changes.
func (m *Market) Activate(ctx context.Context, ts int) error {
	var errs []error
	m.applyRateUpdates()
	if !m.onCadence(ts) {
		return nil
	}
	m.revokeDisabledBrokers()
	if err := m.processRevocations(); err != nil {
		errs = append(errs, err)
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(append(errs, err)...)
	}
	m.processExpirations()
	if err := m.publishPending(ts); err != nil {
		errs = append(errs, err)
	}
	m.processSubscriptions()
	return errors.Join(errs...)
}

func (m *Market) applyRateUpdates() {
	now := m.slots.Now()
	for _, vru := range m.rateUpdates.Drain() {
		_ = monitoring.Guard("tariffmarket.rate_update", func() error {
			t, ok := m.repo.Get(vru.TariffID)
			var err error
			if !ok {
				err = fmt.Errorf("%w: %d", ErrNoSuchTariff, vru.TariffID)
			} else {
				err = t.AddHourlyCharge(vru.Payload, vru.RateID, now)
			}
			if err == nil {
				return nil
			}
			m.log.Warnf("tariff market: rate update %d on tariff %d failed: %v", vru.ID, vru.TariffID, err)
			st := model.TariffStatus{
				Broker: vru.Broker, TariffID: vru.TariffID, UpdateID: vru.ID,
				Status: model.StatusInvalidUpdate, Message: err.Error(),
			}
			if serr := m.transport.Send(vru.Broker, st); serr != nil {
				return fmt.Errorf("send rate update status: %w", serr)
			}
			return nil
		})
	}
}

// revokeDisabledBrokers queues the live tariffs of brokers seen disabled
// for the first time.
func (m *Market) revokeDisabledBrokers() {
	if m.brokers == nil {
		return
	}
	for _, b := range m.brokers.List() {
		if b.Enabled {
			continue
		}
		m.mu.Lock()
		seen := m.disabledSeen[b.ID]
		m.disabledSeen[b.ID] = true
		m.mu.Unlock()
		if seen {
			continue
		}
		n := 0
		for _, t := range m.repo.ByBroker(b.ID) {
			if !t.State().Terminal() {
				m.revokes.Push(t.ID())
				n++
			}
		}
		m.log.Infof("tariff market: broker %s disabled, revoking %d tariffs", b.ID, n)
	}
}

func (m *Market) processRevocations() error {
	var errs []error
	seen := make(map[int64]bool)
	for _, id := range m.revokes.Drain() {
		if seen[id] {
			continue
		}
		seen[id] = true
		err := monitoring.Guard("tariffmarket.revoke", func() error {
			t, ok := m.repo.Get(id)
			if !ok {
				m.log.Errorf("tariff market: revoked tariff %d no longer exists", id)
				return nil
			}
			if err := t.Kill(); err != nil {
				m.log.Warnf("tariff market: revoke %d: %v", id, err)
				return nil
			}
			m.dropBalancingOrders(id)
			if len(m.repo.CommittedSubscriptions(id)) > 0 {
				m.ledger.PostTariffTransaction(ledger.TxRevoke, id, t.Broker(), "", 0, 0, m.revocationFee)
			}
			m.publish(events.TariffEvent{TariffID: id, Broker: t.Broker(), Action: events.TariffRevoked, Time: m.slots.Now()})
			m.log.Infof("tariff %d of %s revoked", id, t.Broker())
			if err := m.transport.Broadcast(model.TariffRevoke{Broker: t.Broker(), TariffID: id}); err != nil {
				return fmt.Errorf("broadcast revoke %d: %w", id, err)
			}
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Market) processExpirations() {
	now := m.slots.Now()
	for _, state := range []tariff.State{tariff.Pending, tariff.Offered} {
		for _, t := range m.repo.InState(state) {
			if !t.IsExpiredAt(now) {
				continue
			}
			if err := t.Expire(); err != nil {
				m.log.Warnf("tariff market: expire %d: %v", t.ID(), err)
				continue
			}
			m.publish(events.TariffEvent{TariffID: t.ID(), Broker: t.Broker(), Action: events.TariffExpired, Time: now})
			m.log.Infof("tariff %d of %s expired", t.ID(), t.Broker())
		}
	}
}

func (m *Market) publishPending(ts int) error {
	pending := m.repo.InState(tariff.Pending)
	if len(pending) == 0 {
		return nil
	}
	now := m.slots.Now()
	offered := make([]*tariff.Tariff, 0, len(pending))
	batch := model.TariffSpecBatch{Timeslot: ts}
	for _, t := range pending {
		if err := t.MarkOffered(now); err != nil {
			m.log.Warnf("tariff market: offer %d: %v", t.ID(), err)
			continue
		}
		offered = append(offered, t)
		batch.Specs = append(batch.Specs, t.Spec())
		m.publish(events.TariffEvent{TariffID: t.ID(), Broker: t.Broker(), Action: events.TariffOffered, Time: now})
	}

	m.mu.Lock()
	listeners := append([]NewTariffListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		_ = monitoring.Guard("tariffmarket.listener", func() error {
			fn(offered)
			return nil
		})
	}
	m.log.Infof("tariff market: offered %d tariffs in timeslot %d", len(offered), ts)
	if err := m.transport.Broadcast(batch); err != nil {
		return fmt.Errorf("broadcast tariff specs: %w", err)
	}
	return nil
}

func (m *Market) processSubscriptions() {
	for _, ev := range m.subscriptions.Drain() {
		_ = monitoring.Guard("tariffmarket.subscription", func() error {
			m.applySubscription(ev)
			return nil
		})
	}
}

// RemoveRevokedTariffs deletes killed tariffs whose customers have all
// left, together with their subscriptions.
func (m *Market) RemoveRevokedTariffs() int {
	removed := 0
	for _, t := range m.repo.InState(tariff.Killed) {
		if len(m.repo.CommittedSubscriptions(t.ID())) > 0 {
			continue
		}
		m.repo.Remove(t.ID())
		m.publish(events.TariffEvent{TariffID: t.ID(), Broker: t.Broker(), Action: events.TariffRemoved, Time: m.slots.Now()})
		removed++
	}
	return removed
}
