package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"go.uber.org/zap"

	"laundry-engine/internal/db"
	"laundry-engine/internal/repository"
)

// In-memory doubles for the db and storage layers. They replicate the SQL
// semantics the postgresql package promises (conditional admit, saturating
// release, row pruning) so engine tests exercise the real decision paths.

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(_ context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

func (t *fakeTx) Exec(_ context.Context, _ string, _ ...interface{}) (pgconn.CommandTag, error) {
	return nil, nil
}

func (t *fakeTx) Get(_ context.Context, _ interface{}, _ string, _ ...interface{}) error {
	return nil
}

func (t *fakeTx) Select(_ context.Context, _ interface{}, _ string, _ ...interface{}) error {
	return nil
}

type fakeDB struct {
	txs []*fakeTx
}

func (d *fakeDB) BeginTx(_ context.Context) (db.Tx, error) {
	tx := &fakeTx{}
	d.txs = append(d.txs, tx)
	return tx, nil
}

func (d *fakeDB) Get(_ context.Context, _ interface{}, _ string, _ ...interface{}) error {
	return nil
}

func (d *fakeDB) Select(_ context.Context, _ interface{}, _ string, _ ...interface{}) error {
	return nil
}

func (d *fakeDB) Exec(_ context.Context, _ string, _ ...interface{}) (pgconn.CommandTag, error) {
	return nil, nil
}

func (d *fakeDB) ExecQueryRow(_ context.Context, _ string, _ ...interface{}) pgx.Row {
	return nil
}

// fakeOrderStore hands out copies so mutations on a loaded record never leak
// into the store before UpdateTx, matching transactional visibility.
type fakeOrderStore struct {
	orders map[string]*repository.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]*repository.Order)}
}

func (s *fakeOrderStore) put(o *repository.Order) {
	c := *o
	s.orders[o.ID] = &c
}

func (s *fakeOrderStore) stored(id string) *repository.Order {
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	c := *o
	return &c
}

func (s *fakeOrderStore) CreateTx(_ context.Context, _ db.Tx, order *repository.Order) error {
	s.put(order)
	return nil
}

func (s *fakeOrderStore) GetByID(_ context.Context, id string) (*repository.Order, error) {
	o := s.stored(id)
	if o == nil {
		return nil, repository.ErrObjectNotFound
	}
	return o, nil
}

func (s *fakeOrderStore) GetByIDTx(ctx context.Context, _ db.Tx, id string) (*repository.Order, error) {
	return s.GetByID(ctx, id)
}

func (s *fakeOrderStore) Update(_ context.Context, order *repository.Order) error {
	if _, ok := s.orders[order.ID]; !ok {
		return repository.ErrObjectNotFound
	}
	s.put(order)
	return nil
}

func (s *fakeOrderStore) UpdateTx(ctx context.Context, _ db.Tx, order *repository.Order) error {
	return s.Update(ctx, order)
}

func (s *fakeOrderStore) DeleteTx(_ context.Context, _ db.Tx, id string) error {
	if _, ok := s.orders[id]; !ok {
		return repository.ErrObjectNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *fakeOrderStore) ExpiredTimerOrders(_ context.Context, now time.Time) ([]*repository.Order, error) {
	var out []*repository.Order
	for _, o := range s.orders {
		if o.TimerEnd != nil && !o.TimerEnd.After(now) && !o.IsDeleted {
			c := *o
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *fakeOrderStore) ActiveCountByDate(_ context.Context, date time.Time) (int, error) {
	n := 0
	for _, o := range s.orders {
		if o.PickupDate.Equal(date) && o.Status.IsActive() && !o.IsDeleted {
			n++
		}
	}
	return n, nil
}

type fakeCounterStore struct {
	counts map[string]int
	quotas map[string]int
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{
		counts: make(map[string]int),
		quotas: make(map[string]int),
	}
}

func (s *fakeCounterStore) TryAdmitTx(_ context.Context, _ db.Tx, date time.Time, defaultQuota int) (bool, error) {
	key := repository.DateKey(date)
	quota, ok := s.quotas[key]
	if !ok {
		quota = defaultQuota
	}
	if s.counts[key] >= quota {
		return false, nil
	}
	s.counts[key]++
	s.quotas[key] = quota
	return true, nil
}

func (s *fakeCounterStore) ReleaseTx(_ context.Context, _ db.Tx, date time.Time) error {
	key := repository.DateKey(date)
	if s.counts[key] > 0 {
		s.counts[key]--
	}
	if s.counts[key] == 0 {
		delete(s.counts, key)
		delete(s.quotas, key)
	}
	return nil
}

func (s *fakeCounterStore) Counts(_ context.Context, dates []time.Time) (map[string]int, error) {
	out := make(map[string]int, len(dates))
	for _, d := range dates {
		out[repository.DateKey(d)] = s.counts[repository.DateKey(d)]
	}
	return out, nil
}

func (s *fakeCounterStore) SetCountTx(_ context.Context, _ db.Tx, date time.Time, count, defaultQuota int) error {
	key := repository.DateKey(date)
	if count == 0 {
		delete(s.counts, key)
		delete(s.quotas, key)
		return nil
	}
	s.counts[key] = count
	if _, ok := s.quotas[key]; !ok {
		s.quotas[key] = defaultQuota
	}
	return nil
}

type captureHook struct {
	name   string
	err    error
	events []Event
}

func (h *captureHook) Name() string { return h.name }

func (h *captureHook) AfterCommit(_ context.Context, ev Event) error {
	h.events = append(h.events, ev)
	return h.err
}

const stageDuration = time.Hour

type fixture struct {
	db       *fakeDB
	orders   *fakeOrderStore
	counters *fakeCounterStore
	machine  *StateMachine
	timers   *TimerCoordinator
	ledger   *CapacityLedger
	eng      *Engine
	now      time.Time
}

func newFixture(t *testing.T, quota int) *fixture {
	t.Helper()

	f := &fixture{
		db:       &fakeDB{},
		orders:   newFakeOrderStore(),
		counters: newFakeCounterStore(),
		now:      time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.machine = NewStateMachine(map[repository.Kind]*StageConfig{
		repository.KindOrder:   OrderStages(TimedStageDurations(stageDuration)),
		repository.KindBooking: BookingStages(TimedStageDurations(stageDuration)),
	})
	f.timers = NewTimerCoordinator(f.machine, clock)
	f.ledger = NewCapacityLedger(f.db, f.counters, quota)
	f.eng = New(f.db, f.orders, f.ledger, f.machine, f.timers, zap.NewNop()).WithClock(clock)
	return f
}

func (f *fixture) advanceClock(d time.Duration) {
	f.now = f.now.Add(d)
}

// seedOrder plants an order directly in the store and, when it is active,
// occupies its capacity slot, mirroring what CreateOrder would have done.
func (f *fixture) seedOrder(t *testing.T, kind repository.Kind, status repository.Status, date time.Time) *repository.Order {
	t.Helper()

	date = repository.Midnight(date)
	order := &repository.Order{
		ID:            uuid.New().String(),
		Kind:          kind,
		CustomerName:  "Iris Chen",
		CustomerEmail: "iris@example.com",
		PickupDate:    date,
		Status:        status,
		CreatedAt:     f.now,
		UpdatedAt:     f.now,
	}
	f.orders.put(order)
	if status.IsActive() {
		key := repository.DateKey(date)
		f.counters.counts[key]++
	}
	return order
}

func (f *fixture) count(date time.Time) int {
	return f.counters.counts[repository.DateKey(repository.Midnight(date))]
}
