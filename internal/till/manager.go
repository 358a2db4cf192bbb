package till

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"restopos/internal/domain"
	"restopos/internal/money"
	"restopos/internal/report"
	"restopos/internal/store"
	"restopos/internal/xid"
)

const defaultRetryDelay = 5 * time.Second

// Store is the slice of the repository the till needs.
type Store interface {
	store.ShiftStore
	store.Feed
	ListOrders(ctx context.Context, businessDate string) ([]domain.Order, error)
	ListExpenses(ctx context.Context, businessDate string) ([]domain.Expense, error)
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLocation sets the timezone used to derive business dates.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// WithRetryDelay sets how long a failed feed waits before resubscribing.
func WithRetryDelay(delay time.Duration) Option {
	return func(m *Manager) {
		if delay > 0 {
			m.retryDelay = delay
		}
	}
}

// Manager owns the open shift, keeps the live order and expense lists for its
// business date and recomputes the aggregates whenever either feed delivers.
type Manager struct {
	store      Store
	now        func() time.Time
	loc        *time.Location
	retryDelay time.Duration

	lifecycle sync.Mutex

	mu           sync.RWMutex
	current      *domain.Shift
	orders       []domain.Order
	expenses     []domain.Expense
	aggregates   domain.ShiftAggregates
	ordersLive   bool
	expensesLive bool
	updatedAt    time.Time
	stopWatch    context.CancelFunc
	watchDone    chan struct{}

	listenersMu sync.Mutex
	listeners   map[chan domain.TillState]struct{}
}

func NewManager(s Store, opts ...Option) *Manager {
	m := &Manager{
		store:      s,
		now:        time.Now,
		loc:        time.Local,
		retryDelay: defaultRetryDelay,
		listeners:  make(map[chan domain.TillState]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore picks up a shift that was left open by a previous process.
func (m *Manager) Restore(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	shift, err := m.store.GetOpenShift(ctx)
	if errors.Is(err, store.ErrNoOpenShift) {
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("[till] resuming open shift id=%s date=%s", shift.ID, shift.BusinessDate)
	m.startWatching(*shift)
	return nil
}

func (m *Manager) OpenShift(ctx context.Context, openingFloatCents int64, actor domain.Actor) (*domain.Shift, error) {
	if openingFloatCents < 0 {
		return nil, store.NewValidationError("opening_float_cents", "must not be negative")
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	now := m.now()
	created, err := m.store.CreateShift(ctx, domain.Shift{
		ID:                xid.New("shift"),
		Status:            domain.ShiftStatusOpen,
		OpeningFloatCents: openingFloatCents,
		BusinessDate:      money.BusinessDate(now, m.loc),
		OpenedBy:          actor.Username,
		OpenedAt:          now.UTC(),
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[till] shift opened id=%s date=%s float=%d by=%s", created.ID, created.BusinessDate, created.OpeningFloatCents, created.OpenedBy)
	m.startWatching(*created)
	return created, nil
}

// CloseShift freezes the current numbers into the shift document and stops
// following its business date.
func (m *Manager) CloseShift(ctx context.Context, actor domain.Actor) (*domain.Shift, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	confirmed, err := m.confirmOpenShift(ctx)
	if err != nil {
		return nil, err
	}
	shift := *confirmed

	orders, expenses := m.movementsForClose(ctx, shift)
	closedAt := m.now().UTC()
	snapshot := BuildSnapshot(orders, expenses, shift.OpeningFloatCents, actor.Username, closedAt)

	closed, err := m.store.CloseShift(ctx, shift.ID, snapshot, closedAt)
	if errors.Is(err, store.ErrShiftClosed) {
		// Closed elsewhere; drop the stale local view.
		m.stopWatching()
		m.publish()
		return nil, fmt.Errorf("close shift %s: %w", shift.ID, store.ErrNoOpenShift)
	}
	if err != nil {
		return nil, err
	}

	m.stopWatching()
	m.publish()
	log.Printf("[till] shift closed id=%s date=%s gross=%d cash_on_hand=%d by=%s",
		closed.ID, closed.BusinessDate, snapshot.Aggregates.GrossCollectedCents, snapshot.Aggregates.CashOnHandCents, actor.Username)
	return closed, nil
}

// RequireOpenShift confirms the open shift with the store. A shift closed by
// another process drops the local view, and a shift opened elsewhere is
// adopted. When the store cannot be reached the followed shift is returned.
func (m *Manager) RequireOpenShift(ctx context.Context) (*domain.Shift, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.confirmOpenShift(ctx)
}

func (m *Manager) CurrentShift() (domain.Shift, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return domain.Shift{}, false
	}
	return *m.current, true
}

func (m *Manager) State() domain.TillState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

// Subscribe returns a channel that always holds the most recent state. The
// returned func unregisters and closes it.
func (m *Manager) Subscribe() (<-chan domain.TillState, func()) {
	ch := make(chan domain.TillState, 1)

	m.listenersMu.Lock()
	ch <- m.State()
	m.listeners[ch] = struct{}{}
	m.listenersMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.listenersMu.Lock()
			delete(m.listeners, ch)
			m.listenersMu.Unlock()
			close(ch)
		})
	}
}

// ExportReport builds the report document for a shift. An empty id means the
// currently open shift. An open shift is re-queried from the store, falling
// back to the live lists. A closed shift is rendered from its snapshot and
// only re-queried when the snapshot carries no movements.
func (m *Manager) ExportReport(ctx context.Context, shiftID string) (report.Document, error) {
	var shift *domain.Shift
	var err error
	if shiftID == "" {
		shift, err = m.RequireOpenShift(ctx)
	} else {
		shift, err = m.store.GetShift(ctx, shiftID)
	}
	if err != nil {
		return report.Document{}, err
	}

	if !shift.IsOpen() && shift.ClosingSnapshot != nil {
		return m.exportClosed(ctx, *shift), nil
	}

	orders, expenses, err := m.exportMovements(ctx, *shift)
	if err != nil {
		return report.Document{}, err
	}
	agg := ComputeAggregates(orders, expenses, shift.OpeningFloatCents)
	return report.Build(*shift, agg, OrderMovements(orders), ExpenseMovements(expenses), m.now()), nil
}

// Stop cancels the feeds. The manager can be restarted with Restore.
func (m *Manager) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.stopWatching()
}

func (m *Manager) exportClosed(ctx context.Context, shift domain.Shift) report.Document {
	snap := shift.ClosingSnapshot
	movements := snap.Movements
	// Snapshots written without frozen movements still carry their counts.
	if len(movements) == 0 && snap.Aggregates.PaidOrders > 0 {
		orders, err := m.store.ListOrders(ctx, shift.BusinessDate)
		if err != nil {
			log.Printf("[till] WARN: export shift=%s: live orders unavailable: %v", shift.ID, err)
		} else {
			movements = OrderMovements(ordersForDate(orders, shift.BusinessDate))
		}
	}
	return report.Build(shift, snap.Aggregates, movements, snap.Expenses, m.now())
}

// exportMovements queries the store directly and falls back to the live lists
// when the store cannot be reached.
func (m *Manager) exportMovements(ctx context.Context, shift domain.Shift) ([]domain.Order, []domain.Expense, error) {
	orders, orderErr := m.store.ListOrders(ctx, shift.BusinessDate)
	expenses, expenseErr := m.store.ListExpenses(ctx, shift.BusinessDate)
	if orderErr == nil && expenseErr == nil {
		return ordersForDate(orders, shift.BusinessDate), expensesForDate(expenses, shift.BusinessDate), nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || m.current.ID != shift.ID {
		return nil, nil, errors.Join(orderErr, expenseErr)
	}
	if orderErr != nil {
		log.Printf("[till] WARN: export shift=%s: using live orders: %v", shift.ID, orderErr)
		orders = slices.Clone(m.orders)
	}
	if expenseErr != nil {
		log.Printf("[till] WARN: export shift=%s: using live expenses: %v", shift.ID, expenseErr)
		expenses = slices.Clone(m.expenses)
	}
	return ordersForDate(orders, shift.BusinessDate), expensesForDate(expenses, shift.BusinessDate), nil
}

func (m *Manager) movementsForClose(ctx context.Context, shift domain.Shift) ([]domain.Order, []domain.Expense) {
	orders, expenses, err := m.exportMovements(ctx, shift)
	if err == nil {
		return orders, expenses
	}
	log.Printf("[till] WARN: close shift=%s: using last known lists: %v", shift.ID, err)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.orders), slices.Clone(m.expenses)
}

// confirmOpenShift must be called with lifecycle held.
func (m *Manager) confirmOpenShift(ctx context.Context) (*domain.Shift, error) {
	m.mu.RLock()
	var current *domain.Shift
	if m.current != nil {
		shift := *m.current
		current = &shift
	}
	m.mu.RUnlock()

	shift, err := m.store.GetOpenShift(ctx)
	switch {
	case errors.Is(err, store.ErrNoOpenShift):
		if current != nil {
			log.Printf("[till] shift id=%s was closed elsewhere", current.ID)
			m.stopWatching()
			m.publish()
		}
		return nil, err
	case err != nil:
		if current != nil && errors.Is(err, store.ErrUnavailable) {
			log.Printf("[till] WARN: confirm shift id=%s: %v", current.ID, err)
			return current, nil
		}
		return nil, err
	}

	if current == nil || current.ID != shift.ID {
		log.Printf("[till] adopting open shift id=%s date=%s", shift.ID, shift.BusinessDate)
		m.startWatching(*shift)
	}
	return shift, nil
}

func (m *Manager) startWatching(shift domain.Shift) {
	m.stopWatching()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.current = &shift
	m.orders = nil
	m.expenses = nil
	m.ordersLive = false
	m.expensesLive = false
	m.stopWatch = cancel
	m.watchDone = done
	m.recomputeLocked()
	m.mu.Unlock()
	m.publish()

	date := shift.BusinessDate
	go func() {
		defer close(done)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return follow(gctx, m, "orders", func(ctx context.Context) (<-chan store.OrdersEvent, error) {
				return m.store.WatchOrders(ctx, date)
			}, func(event store.OrdersEvent) error {
				if event.Err != nil {
					return event.Err
				}
				m.applyOrders(shift.ID, event.Orders)
				return nil
			})
		})
		g.Go(func() error {
			return follow(gctx, m, "expenses", func(ctx context.Context) (<-chan store.ExpensesEvent, error) {
				return m.store.WatchExpenses(ctx, date)
			}, func(event store.ExpensesEvent) error {
				if event.Err != nil {
					return event.Err
				}
				m.applyExpenses(shift.ID, event.Expenses)
				return nil
			})
		})
		_ = g.Wait()
	}()
}

func (m *Manager) stopWatching() {
	m.mu.Lock()
	cancel, done := m.stopWatch, m.watchDone
	m.stopWatch, m.watchDone = nil, nil
	m.current = nil
	m.orders = nil
	m.expenses = nil
	m.ordersLive = false
	m.expensesLive = false
	m.aggregates = domain.ShiftAggregates{}
	m.updatedAt = m.now().UTC()
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// follow keeps one feed subscribed until ctx is done. A feed error keeps the
// last delivered list, marks the feed offline and resubscribes after the
// retry delay.
func follow[E any](ctx context.Context, m *Manager, name string, watch func(context.Context) (<-chan E, error), handle func(E) error) error {
	for {
		feed, err := watch(ctx)
		if err != nil {
			log.Printf("[till] WARN: %s feed unavailable: %v", name, err)
		} else {
			for event := range feed {
				if err := handle(event); err != nil {
					log.Printf("[till] WARN: %s feed error: %v", name, err)
				}
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.setLive(name, false)

		timer := time.NewTimer(m.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *Manager) applyOrders(shiftID string, orders []domain.Order) {
	m.mu.Lock()
	if m.current == nil || m.current.ID != shiftID {
		m.mu.Unlock()
		return
	}
	m.orders = ordersForDate(orders, m.current.BusinessDate)
	m.ordersLive = true
	m.recomputeLocked()
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) applyExpenses(shiftID string, expenses []domain.Expense) {
	m.mu.Lock()
	if m.current == nil || m.current.ID != shiftID {
		m.mu.Unlock()
		return
	}
	m.expenses = expensesForDate(expenses, m.current.BusinessDate)
	m.expensesLive = true
	m.recomputeLocked()
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) setLive(name string, live bool) {
	m.mu.Lock()
	switch name {
	case "orders":
		m.ordersLive = live
	case "expenses":
		m.expensesLive = live
	}
	m.updatedAt = m.now().UTC()
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) recomputeLocked() {
	var openingFloat int64
	if m.current != nil {
		openingFloat = m.current.OpeningFloatCents
	}
	m.aggregates = ComputeAggregates(m.orders, m.expenses, openingFloat)
	m.updatedAt = m.now().UTC()
}

func (m *Manager) stateLocked() domain.TillState {
	state := domain.TillState{
		Aggregates:       m.aggregates,
		PendingOrders:    pendingOrders(m.orders),
		OrdersFeedLive:   m.ordersLive,
		ExpensesFeedLive: m.expensesLive,
		UpdatedAt:        m.updatedAt,
	}
	if m.current != nil {
		shift := *m.current
		state.Shift = &shift
	}
	return state
}

// publish hands the latest state to every subscriber, replacing any value
// the subscriber has not read yet. The state is read under listenersMu so
// concurrent publishers deliver in the order they observed it.
func (m *Manager) publish() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	state := m.State()
	for ch := range m.listeners {
		select {
		case ch <- state:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- state:
		default:
		}
	}
}
