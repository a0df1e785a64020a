// Package tariffmarket runs the retail tariff market: it validates broker
// tariff messages, publishes tariffs on a fixed cadence and applies
// customer subscription changes.
package tariffmarket

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/gridmarket/core/broker"
	"github.com/kilianp07/gridmarket/core/events"
	"github.com/kilianp07/gridmarket/core/ledger"
	"github.com/kilianp07/gridmarket/core/logger"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/tariff"
	"github.com/kilianp07/gridmarket/core/timeslot"
	"github.com/kilianp07/gridmarket/internal/eventbus"
	"github.com/kilianp07/gridmarket/internal/queue"
)

var (
	ErrNoSuchTariff    = errors.New("no such tariff")
	ErrNotSubscribable = errors.New("tariff not open for subscription")
)

// EconomicControlSink receives validated economic control events.
type EconomicControlSink interface {
	PostEconomicControl(evt model.EconomicControlEvent) error
}

// NewTariffListener is notified of the tariffs offered in a publication
// cycle.
type NewTariffListener func(offered []*tariff.Tariff)

type subscriptionEvent struct {
	tariffID int64
	customer string
	count    int
}

// Market is the tariff market service.
type Market struct {
	cfg       Config
	repo      *tariff.Repo
	brokers   broker.Repo
	slots     timeslot.Repo
	ledger    ledger.Ledger
	transport broker.Transport
	control   EconomicControlSink
	bus       eventbus.EventBus
	log       logger.Logger

	publicationFee float64
	revocationFee  float64

	revokes       *queue.Queue[int64]
	rateUpdates   *queue.Queue[model.VariableRateUpdate]
	subscriptions *queue.Queue[subscriptionEvent]

	orderSeq atomic.Int64

	mu              sync.Mutex
	listeners       []NewTariffListener
	balancingOrders []model.BalancingOrder
	disabledSeen    map[string]bool
	defaults        map[model.PowerType]int64
	published       bool
}

// Option customizes a Market.
type Option func(*Market)

// WithEventBus publishes tariff and rejection events.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(m *Market) { m.bus = bus }
}

// WithEconomicControl forwards accepted economic controls to sink.
func WithEconomicControl(sink EconomicControlSink) Option {
	return func(m *Market) { m.control = sink }
}

// NewMarket creates a tariff market. Fees are drawn once here.
func NewMarket(cfg Config, repo *tariff.Repo, brokers broker.Repo, slots timeslot.Repo, led ledger.Ledger, tr broker.Transport, log logger.Logger, opts ...Option) *Market {
	if tr == nil {
		tr = broker.NopTransport{}
	}
	src := rand.NewPCG(cfg.Seed, cfg.Seed)
	m := &Market{
		cfg:            cfg,
		repo:           repo,
		brokers:        brokers,
		slots:          slots,
		ledger:         led,
		transport:      tr,
		log:            log,
		publicationFee: cfg.PublicationFee.draw(src),
		revocationFee:  cfg.RevocationFee.draw(src),
		revokes:        queue.New[int64](),
		rateUpdates:    queue.New[model.VariableRateUpdate](),
		subscriptions:  queue.New[subscriptionEvent](),
		disabledSeen:   make(map[string]bool),
		defaults:       make(map[model.PowerType]int64),
	}
	for _, o := range opts {
		o(m)
	}
	log.Infof("tariff market: publication fee %.2f, revocation fee %.2f", m.publicationFee, m.revocationFee)
	return m
}

func (m *Market) PublicationFee() float64 { return m.publicationFee }
func (m *Market) RevocationFee() float64  { return m.revocationFee }

// Repo exposes the tariff registry for read-only consumers.
func (m *Market) Repo() *tariff.Repo { return m.repo }

// Tariff returns the tariff with the given id.
func (m *Market) Tariff(id int64) (*tariff.Tariff, bool) { return m.repo.Get(id) }

// ActiveTariffs lists the offered tariffs for power type pt.
func (m *Market) ActiveTariffs(pt model.PowerType) []*tariff.Tariff {
	var out []*tariff.Tariff
	for _, t := range m.repo.ByPowerType(pt) {
		if t.State() == tariff.Offered {
			out = append(out, t)
		}
	}
	return out
}

func (m *Market) publish(evt eventbus.Event) {
	if m.bus != nil {
		m.bus.Publish(evt)
	}
}

func (m *Market) reject(st model.TariffStatus, kind model.MessageKind) model.TariffStatus {
	fields := map[string]any{
		"broker": st.Broker, "tariff": st.TariffID, "update": st.UpdateID,
		"status": string(st.Status), "reason": st.Message,
	}
	if st.Status == model.StatusNoSuchTariff {
		m.log.Errorf("tariff market: %s from %s references unknown tariff %d", kind, st.Broker, st.TariffID)
	} else {
		m.log.Warnw("tariff message rejected", fields)
	}
	m.publish(events.RejectionEvent{Broker: st.Broker, Kind: string(kind), Reason: string(st.Status), Time: m.slots.Now()})
	return st
}

// owned resolves a tariff and checks that broker owns it.
func (m *Market) owned(brokerID string, id, update int64, kind model.MessageKind) (*tariff.Tariff, model.TariffStatus, bool) {
	st := model.TariffStatus{Broker: brokerID, TariffID: id, UpdateID: update, Status: model.StatusSuccess}
	t, ok := m.repo.Get(id)
	if !ok {
		st.Status = model.StatusNoSuchTariff
		st.Message = ErrNoSuchTariff.Error()
		return nil, m.reject(st, kind), false
	}
	if t.Broker() != brokerID {
		st.Status = model.StatusInvalidTariff
		st.Message = fmt.Sprintf("tariff %d is owned by %s", id, t.Broker())
		return nil, m.reject(st, kind), false
	}
	return t, st, true
}

// Publish validates a new tariff specification and registers it as
// pending. Nothing is mutated when validation fails.
func (m *Market) Publish(spec model.TariffSpecification) model.TariffStatus {
	st := model.TariffStatus{Broker: spec.Broker, TariffID: spec.ID, UpdateID: spec.ID, Status: model.StatusSuccess}
	fail := func(code model.TariffStatusCode, msg string) model.TariffStatus {
		st.Status, st.Message = code, msg
		return m.reject(st, model.KindTariffSpecification)
	}
	if _, dup := m.repo.Get(spec.ID); dup {
		return fail(model.StatusDuplicateTariff, fmt.Sprintf("tariff %d already published", spec.ID))
	}
	if len(spec.Rates) == 0 {
		return fail(model.StatusInvalidTariff, "no rates")
	}
	for _, r := range spec.Rates {
		if err := r.Valid(); err != nil {
			return fail(model.StatusInvalidTariff, err.Error())
		}
	}
	for _, id := range spec.Supersedes {
		old, ok := m.repo.Get(id)
		if !ok || old.Broker() != spec.Broker {
			return fail(model.StatusInvalidTariff, fmt.Sprintf("cannot supersede tariff %d", id))
		}
	}
	if !spec.PowerType.Valid() {
		return fail(model.StatusInvalidPowerType, fmt.Sprintf("unknown power type %q", spec.PowerType))
	}
	for _, rr := range spec.RegulationRates {
		if !finite(rr.UpRegulationPayment) || !finite(rr.DownRegulationPayment) {
			return fail(model.StatusInvalidTariff, fmt.Sprintf("regulation rate %d has a non-finite payment", rr.ID))
		}
	}
	t := tariff.New(spec)
	if !t.IsCovered() {
		return fail(model.StatusInvalidTariff, "incomplete coverage")
	}
	if err := m.repo.Add(t); err != nil {
		return fail(model.StatusDuplicateTariff, err.Error())
	}
	m.mirrorRegulationRates(t)
	m.ledger.PostTariffTransaction(ledger.TxPublish, t.ID(), t.Broker(), "", 0, 0, m.publicationFee)
	m.publish(events.TariffEvent{TariffID: t.ID(), Broker: t.Broker(), Action: events.TariffPublished, Time: m.slots.Now()})
	m.log.Infof("tariff %d published by %s for %s", t.ID(), t.Broker(), t.PowerType())
	return st
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// mirrorRegulationRates turns the regulation rates of interruptible and
// storage tariffs into standing balancing orders.
func (m *Market) mirrorRegulationRates(t *tariff.Tariff) {
	if !t.IsInterruptible() {
		return
	}
	up := 1.0
	if t.PowerType().IsStorage() {
		up = 2.0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rr := range t.Spec().RegulationRates {
		if rr.UpRegulationPayment != 0 {
			m.balancingOrders = append(m.balancingOrders, model.BalancingOrder{
				ID: m.orderSeq.Add(-1), Broker: t.Broker(), TariffID: t.ID(),
				ExerciseRatio: up, Price: rr.UpRegulationPayment,
			})
		}
		if rr.DownRegulationPayment != 0 {
			m.balancingOrders = append(m.balancingOrders, model.BalancingOrder{
				ID: m.orderSeq.Add(-1), Broker: t.Broker(), TariffID: t.ID(),
				ExerciseRatio: -1.0, Price: rr.DownRegulationPayment,
			})
		}
	}
}

// Expire moves a tariff's expiration date. Dates in the past are refused.
func (m *Market) Expire(msg model.TariffExpire) model.TariffStatus {
	t, st, ok := m.owned(msg.Broker, msg.TariffID, msg.ID, model.KindTariffExpire)
	if !ok {
		return st
	}
	if msg.NewExpiration.Before(m.slots.Now()) {
		st.Status, st.Message = model.StatusInvalidUpdate, "expiration in the past"
		return m.reject(st, model.KindTariffExpire)
	}
	if err := t.SetExpiration(msg.NewExpiration); err != nil {
		st.Status, st.Message = model.StatusInvalidUpdate, err.Error()
		return m.reject(st, model.KindTariffExpire)
	}
	return st
}

// Revoke schedules a tariff for revocation at the next publication cycle.
func (m *Market) Revoke(msg model.TariffRevoke) model.TariffStatus {
	t, st, ok := m.owned(msg.Broker, msg.TariffID, msg.ID, model.KindTariffRevoke)
	if !ok {
		return st
	}
	if t.State() == tariff.Killed {
		st.Status, st.Message = model.StatusInvalidUpdate, "tariff already revoked"
		return m.reject(st, model.KindTariffRevoke)
	}
	m.revokes.Push(t.ID())
	return st
}

// UpdateRate validates a variable rate update and queues it.
func (m *Market) UpdateRate(vru model.VariableRateUpdate) model.TariffStatus {
	t, st, ok := m.owned(vru.Broker, vru.TariffID, vru.ID, model.KindVariableRateUpdate)
	if !ok {
		return st
	}
	fail := func(msg string) model.TariffStatus {
		st.Status, st.Message = model.StatusInvalidUpdate, msg
		return m.reject(st, model.KindVariableRateUpdate)
	}
	r, found := t.RateByID(vru.RateID)
	if !found || r.TariffID != vru.TariffID {
		return fail(fmt.Sprintf("rate %d not on tariff %d", vru.RateID, vru.TariffID))
	}
	if err := r.ValidCharge(vru.Payload.Value); err != nil {
		return fail(err.Error())
	}
	notice := time.Duration(r.NoticeInterval) * time.Hour
	if vru.Payload.AtTime.Sub(m.slots.Now()) < notice {
		return fail(model.ErrNoticeTooLate.Error())
	}
	m.rateUpdates.Push(vru)
	return st
}

// PostEconomicControl validates a curtailment request and forwards it to
// capacity control.
func (m *Market) PostEconomicControl(evt model.EconomicControlEvent) model.TariffStatus {
	_, st, ok := m.owned(evt.Broker, evt.TariffID, evt.ID, model.KindEconomicControl)
	if !ok {
		return st
	}
	if evt.Timeslot < m.slots.Current() {
		st.Status, st.Message = model.StatusInvalidUpdate, fmt.Sprintf("timeslot %d has passed", evt.Timeslot)
		return m.reject(st, model.KindEconomicControl)
	}
	if m.control == nil {
		st.Status, st.Message = model.StatusUnsupported, "no capacity control"
		return m.reject(st, model.KindEconomicControl)
	}
	if err := m.control.PostEconomicControl(evt); err != nil {
		st.Status, st.Message = model.StatusInvalidUpdate, err.Error()
		return m.reject(st, model.KindEconomicControl)
	}
	return st
}

// AddBalancingOrder registers a broker's offer of curtailable capacity.
func (m *Market) AddBalancingOrder(o model.BalancingOrder) model.TariffStatus {
	t, st, ok := m.owned(o.Broker, o.TariffID, o.ID, model.KindBalancingOrder)
	if !ok {
		return st
	}
	fail := func(msg string) model.TariffStatus {
		st.Status, st.Message = model.StatusUnsupported, msg
		return m.reject(st, model.KindBalancingOrder)
	}
	switch {
	case t.HasRegulationRate():
		return fail("tariff has regulation rates")
	case !t.HasCurtailment():
		return fail("tariff allows no curtailment")
	case o.ExerciseRatio <= 0 || o.ExerciseRatio > 1:
		return fail(fmt.Sprintf("exercise ratio %.3f outside (0,1]", o.ExerciseRatio))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.balancingOrders {
		if b.ID == o.ID && b.TariffID == o.TariffID {
			m.balancingOrders[i] = o
			return st
		}
	}
	m.balancingOrders = append(m.balancingOrders, o)
	return st
}

// BalancingOrders lists the standing balancing orders by tariff.
func (m *Market) BalancingOrders() []model.BalancingOrder {
	m.mu.Lock()
	out := append([]model.BalancingOrder(nil), m.balancingOrders...)
	m.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].TariffID < out[j].TariffID })
	return out
}

func (m *Market) dropBalancingOrders(tariffID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.balancingOrders[:0]
	for _, b := range m.balancingOrders {
		if b.TariffID != tariffID {
			kept = append(kept, b)
		}
	}
	m.balancingOrders = kept
}

// Subscribe changes the number of customers subscribed to a tariff. A
// positive count subscribes, a negative one unsubscribes. Changes apply
// at the next publication cycle, except a customer's first subscription.
func (m *Market) Subscribe(tariffID int64, customer string, count int) error {
	t, ok := m.repo.Get(tariffID)
	if !ok {
		m.log.Errorf("tariff market: subscription of %s to unknown tariff %d", customer, tariffID)
		return fmt.Errorf("%w: %d", ErrNoSuchTariff, tariffID)
	}
	if count == 0 {
		return nil
	}
	if count > 0 && !t.IsSubscribable(m.slots.Now()) {
		m.log.Warnf("tariff market: %s cannot subscribe to %s tariff %d", customer, t.State(), tariffID)
		return fmt.Errorf("%w: %d", ErrNotSubscribable, tariffID)
	}
	ev := subscriptionEvent{tariffID: tariffID, customer: customer, count: count}
	if count > 0 && !m.repo.HasSubscriptions(customer) {
		m.applySubscription(ev)
		return nil
	}
	m.subscriptions.Push(ev)
	return nil
}

func (m *Market) applySubscription(ev subscriptionEvent) {
	t, ok := m.repo.Get(ev.tariffID)
	if !ok {
		m.log.Errorf("tariff market: tariff %d vanished before subscription of %s applied", ev.tariffID, ev.customer)
		return
	}
	now := m.slots.Now()
	if ev.count > 0 {
		sub := m.repo.FindOrCreateSubscription(ev.customer, t)
		sub.Subscribe(ev.count, now)
		m.ledger.PostTariffTransaction(ledger.TxSignup, t.ID(), t.Broker(), ev.customer, ev.count, 0,
			float64(ev.count)*-t.SignupPayment())
		return
	}
	sub, ok := m.repo.Subscription(ev.customer, t.ID())
	if !ok {
		m.log.Warnf("tariff market: %s has no subscription to tariff %d", ev.customer, t.ID())
		return
	}
	if n := -ev.count; n > sub.Committed() {
		m.log.Errorf("tariff market: %s withdraws %d of %d customers from tariff %d", ev.customer, n, sub.Committed(), t.ID())
	}
	w := sub.DeferredUnsubscribe(-ev.count, now)
	if w.Count == 0 {
		return
	}
	killed := t.State() == tariff.Killed
	penalty := 0.0
	if !killed {
		penalty = float64(w.Penalized) * -t.EarlyWithdrawPayment()
	}
	m.ledger.PostTariffTransaction(ledger.TxWithdraw, t.ID(), t.Broker(), ev.customer, -w.Count, 0, penalty)
	if !killed && w.Penalized > 0 && t.SignupPayment() < 0 {
		m.ledger.PostTariffTransaction(ledger.TxRefund, t.ID(), t.Broker(), ev.customer, w.Penalized, 0,
			float64(w.Penalized)*t.SignupPayment())
	}
}

// AddNewTariffListener registers fn for every publication cycle.
func (m *Market) AddNewTariffListener(fn NewTariffListener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// ResetListeners drops every registered listener.
func (m *Market) ResetListeners() {
	m.mu.Lock()
	m.listeners = nil
	m.mu.Unlock()
}

// SetDefaultTariff installs the tariff offered by the market itself for a
// power type. It is offered immediately and charges no fee.
func (m *Market) SetDefaultTariff(spec model.TariffSpecification) error {
	t := tariff.New(spec)
	if !t.IsCovered() {
		return tariff.ErrIncompleteCoverage
	}
	if err := m.repo.Add(t); err != nil {
		return err
	}
	if err := t.MarkOffered(m.slots.Now()); err != nil {
		return err
	}
	m.mu.Lock()
	m.defaults[spec.PowerType] = spec.ID
	m.mu.Unlock()
	return nil
}

// DefaultTariff returns the default tariff for pt, falling back to the
// generic consumption or production default.
func (m *Market) DefaultTariff(pt model.PowerType) (*tariff.Tariff, bool) {
	m.mu.Lock()
	id, ok := m.defaults[pt]
	if !ok {
		generic := model.Consumption
		if pt.IsProduction() {
			generic = model.Production
		}
		id, ok = m.defaults[generic]
	}
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return m.repo.Get(id)
}
