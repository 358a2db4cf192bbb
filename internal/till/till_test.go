package till

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"restopos/internal/domain"
	"restopos/internal/store"
	"restopos/internal/store/memory"
)

const testDate = "2026-10-17"

var cashier = domain.Actor{Username: "kasir", Role: domain.RoleCashier}

func fixedClock() time.Time {
	return time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
}

func newTestManager(s Store) *Manager {
	return NewManager(s, WithClock(fixedClock), WithLocation(time.UTC), WithRetryDelay(20*time.Millisecond))
}

func paidOrder(id string, number int, total, fee int64, payments ...domain.PaymentSplit) domain.Order {
	return domain.Order{
		ID:               id,
		OrderNumber:      number,
		BusinessDate:     testDate,
		CustomerName:     "Budi",
		DeliveryType:     domain.DeliveryDelivery,
		DeliveryFeeCents: fee,
		Items:            []domain.LineItem{{Name: "Nasi Goreng", Quantity: 1, UnitPriceCents: total - fee}},
		TotalCents:       total,
		PaymentStatus:    domain.OrderStatusPaid,
		Payments:         payments,
	}
}

func TestComputeAggregatesIsOrderIndependent(t *testing.T) {
	orders := []domain.Order{
		paidOrder("o1", 1, 25000, 5000, domain.PaymentSplit{Method: domain.PaymentCash, AmountCents: 25000}),
		paidOrder("o2", 2, 15000, 0,
			domain.PaymentSplit{Method: domain.PaymentCash, AmountCents: 5000},
			domain.PaymentSplit{Method: domain.PaymentTransfer, AmountCents: 10000}),
		paidOrder("o3", 3, 40000, 0, domain.PaymentSplit{Method: domain.PaymentCard, AmountCents: 40000}),
		{ID: "o4", OrderNumber: 4, BusinessDate: testDate, TotalCents: 9000, PaymentStatus: domain.OrderStatusPending},
	}
	expenses := []domain.Expense{
		{ID: "e1", BusinessDate: testDate, AmountCents: 12000, Category: domain.ExpenseGeneral},
		{ID: "e2", BusinessDate: testDate, AmountCents: 50000, Category: domain.ExpenseWage, WorkerName: "Sari"},
	}

	want := ComputeAggregates(orders, expenses, 100000)
	if want.GrossCollectedCents != 80000 || want.DeliveryFeesTotalCents != 5000 {
		t.Fatalf("unexpected gross/fees: %+v", want)
	}
	if want.NetProfitCents != want.GrossCollectedCents-want.DeliveryFeesTotalCents-want.ExpensesTotalCents {
		t.Fatalf("net profit does not reconcile: %+v", want)
	}
	if want.CashOnHandCents != 100000+30000-62000 {
		t.Fatalf("unexpected cash on hand: %d", want.CashOnHandCents)
	}
	if want.CardCollectedCents != 40000 || want.TransferCollectedCents != 10000 || want.CashCollectedCents != 30000 {
		t.Fatalf("unexpected payment buckets: %+v", want)
	}
	if want.WagesTotalCents != 50000 || want.PendingOrders != 1 || want.PaidOrders != 3 {
		t.Fatalf("unexpected counts: %+v", want)
	}

	permutations := [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	for _, perm := range permutations {
		shuffled := make([]domain.Order, 0, len(orders))
		for _, i := range perm {
			shuffled = append(shuffled, orders[i])
		}
		got := ComputeAggregates(shuffled, []domain.Expense{expenses[1], expenses[0]}, 100000)
		if got != want {
			t.Fatalf("aggregates changed with input order %v: got %+v want %+v", perm, got, want)
		}
	}
}

func TestComputeAggregatesUsesCollectedAmount(t *testing.T) {
	order := paidOrder("o1", 1, 10000, 0, domain.PaymentSplit{Method: domain.PaymentOther, AmountCents: 9000})
	order.DiscountCents = 1000

	agg := ComputeAggregates([]domain.Order{order}, nil, 0)
	if agg.GrossCollectedCents != 9000 || agg.DiscountTotalCents != 1000 {
		t.Fatalf("expected collected amount net of discount, got %+v", agg)
	}
	if agg.OtherCollectedCents != 9000 || agg.CardCollectedCents != 0 {
		t.Fatalf("expected other bucket to stay separate from card, got %+v", agg)
	}
}

func TestOpenThenCloseKeepsOpeningFloat(t *testing.T) {
	m := newTestManager(memory.New())
	defer m.Stop()
	ctx := context.Background()

	shift, err := m.OpenShift(ctx, 10000, cashier)
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}
	if shift.BusinessDate != testDate || !shift.IsOpen() {
		t.Fatalf("unexpected shift: %+v", shift)
	}

	closed, err := m.CloseShift(ctx, cashier)
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.ClosingSnapshot == nil || closed.ClosingSnapshot.Aggregates.CashOnHandCents != 10000 {
		t.Fatalf("expected cash on hand 10000, got %+v", closed.ClosingSnapshot)
	}
	if _, ok := m.CurrentShift(); ok {
		t.Fatalf("expected no current shift after close")
	}
}

func TestOpenShiftRejectsSecondOpen(t *testing.T) {
	m := newTestManager(memory.New())
	defer m.Stop()
	ctx := context.Background()

	if _, err := m.OpenShift(ctx, 10000, cashier); err != nil {
		t.Fatalf("open shift: %v", err)
	}
	if _, err := m.OpenShift(ctx, 0, cashier); !errors.Is(err, store.ErrShiftAlreadyOpen) {
		t.Fatalf("expected ErrShiftAlreadyOpen, got %v", err)
	}
}

func TestOpenShiftRejectsNegativeFloat(t *testing.T) {
	m := newTestManager(memory.New())
	var verr *store.ValidationError
	if _, err := m.OpenShift(context.Background(), -1, cashier); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCloseWithoutOpenShift(t *testing.T) {
	m := newTestManager(memory.New())
	if _, err := m.CloseShift(context.Background(), cashier); !errors.Is(err, store.ErrNoOpenShift) {
		t.Fatalf("expected ErrNoOpenShift, got %v", err)
	}
}

func TestClosedShiftReportSurvivesOrderDeletion(t *testing.T) {
	s := memory.New()
	m := newTestManager(s)
	defer m.Stop()
	ctx := context.Background()

	shift, err := m.OpenShift(ctx, 50000, cashier)
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}
	if _, err := s.CreateOrder(ctx, paidOrder("o1", 1, 30000, 0, domain.PaymentSplit{Method: domain.PaymentCash, AmountCents: 30000})); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := s.CreateExpense(ctx, domain.Expense{ID: "e1", ShiftID: shift.ID, BusinessDate: testDate, Description: "Gas", AmountCents: 5000, Category: domain.ExpenseGeneral}); err != nil {
		t.Fatalf("create expense: %v", err)
	}

	closed, err := m.CloseShift(ctx, cashier)
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	before, err := m.ExportReport(ctx, closed.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if err := s.DeleteOrder(ctx, "o1"); err != nil {
		t.Fatalf("delete order: %v", err)
	}
	if err := s.DeleteExpense(ctx, "e1"); err != nil {
		t.Fatalf("delete expense: %v", err)
	}

	stored, err := s.GetShift(ctx, closed.ID)
	if err != nil {
		t.Fatalf("get shift: %v", err)
	}
	if len(stored.ClosingSnapshot.Movements) != 1 || stored.ClosingSnapshot.Movements[0].CollectedCents != 30000 {
		t.Fatalf("snapshot movements changed: %+v", stored.ClosingSnapshot.Movements)
	}

	after, err := m.ExportReport(ctx, closed.ID)
	if err != nil {
		t.Fatalf("export after delete: %v", err)
	}
	if after.Aggregates != before.Aggregates || len(after.Orders) != 1 || len(after.Expenses) != 1 {
		t.Fatalf("report changed after deleting sources: before %+v after %+v", before, after)
	}
	if after.Aggregates.CashOnHandCents != 75000 {
		t.Fatalf("unexpected cash on hand: %d", after.Aggregates.CashOnHandCents)
	}
}

func TestStateFollowsOrderFeed(t *testing.T) {
	s := memory.New()
	m := newTestManager(s)
	defer m.Stop()
	ctx := context.Background()

	if _, err := m.OpenShift(ctx, 0, cashier); err != nil {
		t.Fatalf("open shift: %v", err)
	}
	if _, err := s.CreateOrder(ctx, paidOrder("o1", 1, 20000, 0, domain.PaymentSplit{Method: domain.PaymentCash, AmountCents: 20000})); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := s.CreateOrder(ctx, domain.Order{ID: "o2", OrderNumber: 2, BusinessDate: testDate, TotalCents: 7000, Items: []domain.LineItem{{Name: "Kopi", Quantity: 1, UnitPriceCents: 7000}}}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	state := waitForState(t, m, func(st domain.TillState) bool {
		return st.Aggregates.GrossCollectedCents == 20000 && len(st.PendingOrders) == 1
	})
	if !state.OrdersFeedLive || !state.ExpensesFeedLive {
		t.Fatalf("expected both feeds live, got %+v", state)
	}
}

func TestFeedErrorKeepsLastKnownAggregates(t *testing.T) {
	s := &flakyStore{Store: memory.New()}
	s.failOrders.Store(true)
	m := newTestManager(s)
	defer m.Stop()
	ctx := context.Background()

	if _, err := s.CreateOrder(ctx, paidOrder("o1", 1, 20000, 0, domain.PaymentSplit{Method: domain.PaymentCard, AmountCents: 20000})); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := m.OpenShift(ctx, 1000, cashier); err != nil {
		t.Fatalf("open shift: %v", err)
	}

	state := waitForState(t, m, func(st domain.TillState) bool {
		return !st.OrdersFeedLive && st.Aggregates.CardCollectedCents == 20000
	})
	if state.Shift == nil {
		t.Fatalf("expected shift to stay open while feed is down")
	}

	s.failOrders.Store(false)
	waitForState(t, m, func(st domain.TillState) bool {
		return st.OrdersFeedLive && st.Aggregates.CardCollectedCents == 20000
	})
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	m := newTestManager(memory.New())
	defer m.Stop()

	updates, cancel := m.Subscribe()
	defer cancel()
	initial := <-updates
	if initial.Shift != nil {
		t.Fatalf("expected no shift initially")
	}

	if _, err := m.OpenShift(context.Background(), 2500, cashier); err != nil {
		t.Fatalf("open shift: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-updates:
			if st.Shift != nil && st.Aggregates.OpeningFloatCents == 2500 {
				return
			}
		case <-deadline:
			t.Fatalf("no update after opening shift")
		}
	}
}

func TestShiftClosedByAnotherManagerIsDropped(t *testing.T) {
	s := memory.New()
	first := newTestManager(s)
	defer first.Stop()
	second := newTestManager(s)
	defer second.Stop()
	ctx := context.Background()

	shift, err := first.OpenShift(ctx, 10000, cashier)
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}
	adopted, err := second.RequireOpenShift(ctx)
	if err != nil || adopted.ID != shift.ID {
		t.Fatalf("expected second manager to adopt %s, got %+v %v", shift.ID, adopted, err)
	}

	if _, err := first.CloseShift(ctx, cashier); err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if _, err := second.RequireOpenShift(ctx); !errors.Is(err, store.ErrNoOpenShift) {
		t.Fatalf("expected ErrNoOpenShift after close elsewhere, got %v", err)
	}
	if _, ok := second.CurrentShift(); ok {
		t.Fatalf("expected second manager to drop the closed shift")
	}

	reopened, err := first.OpenShift(ctx, 0, cashier)
	if err != nil {
		t.Fatalf("reopen shift: %v", err)
	}
	current, err := second.RequireOpenShift(ctx)
	if err != nil || current.ID != reopened.ID {
		t.Fatalf("expected second manager to follow the new shift, got %+v %v", current, err)
	}
}

func TestOpenShiftExportFallsBackToLiveLists(t *testing.T) {
	s := &partitionedStore{Store: memory.New()}
	m := newTestManager(s)
	defer m.Stop()
	ctx := context.Background()

	shift, err := m.OpenShift(ctx, 20000, cashier)
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}
	if _, err := s.CreateOrder(ctx, paidOrder("o1", 1, 30000, 0, domain.PaymentSplit{Method: domain.PaymentCash, AmountCents: 30000})); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := s.CreateExpense(ctx, domain.Expense{ID: "e1", ShiftID: shift.ID, BusinessDate: testDate, Description: "Gas", AmountCents: 5000, Category: domain.ExpenseGeneral}); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	live := waitForState(t, m, func(st domain.TillState) bool {
		return st.Aggregates.PaidOrders == 1 && st.Aggregates.ExpensesTotalCents == 5000
	})

	s.failLists.Store(true)

	doc, err := m.ExportReport(ctx, "")
	if err != nil {
		t.Fatalf("export while lists are unavailable: %v", err)
	}
	if doc.Aggregates != live.Aggregates || len(doc.Orders) != 1 || len(doc.Expenses) != 1 {
		t.Fatalf("expected export from live lists %+v, got %+v", live.Aggregates, doc)
	}

	closed, err := m.CloseShift(ctx, cashier)
	if err != nil {
		t.Fatalf("close while lists are unavailable: %v", err)
	}
	snap := closed.ClosingSnapshot
	if snap == nil || snap.Aggregates.CashOnHandCents != 45000 || len(snap.Movements) != 1 || len(snap.Expenses) != 1 {
		t.Fatalf("expected snapshot of last known lists, got %+v", snap)
	}
}

func TestSubscriberEndsOnLatestState(t *testing.T) {
	m := newTestManager(memory.New())
	defer m.Stop()
	ctx := context.Background()

	shift, err := m.OpenShift(ctx, 0, cashier)
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}
	waitForState(t, m, func(st domain.TillState) bool {
		return st.OrdersFeedLive && st.ExpensesFeedLive
	})

	updates, cancel := m.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	for i := 1; i <= 40; i++ {
		orders := make([]domain.Order, 0, i)
		for n := 1; n <= i; n++ {
			orders = append(orders, paidOrder("o", n, 1000, 0, domain.PaymentSplit{Method: domain.PaymentCash, AmountCents: 1000}))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				m.applyOrders(shift.ID, orders)
			} else {
				m.applyExpenses(shift.ID, []domain.Expense{{ID: "e", BusinessDate: testDate, AmountCents: int64(i), Category: domain.ExpenseGeneral}})
			}
		}()
	}
	wg.Wait()

	select {
	case got := <-updates:
		want := m.State()
		if got.Aggregates != want.Aggregates {
			t.Fatalf("subscriber holds stale aggregates %+v, latest %+v", got.Aggregates, want.Aggregates)
		}
	default:
		t.Fatalf("expected a pending state for the subscriber")
	}
}

func waitForState(t *testing.T, m *Manager, ok func(domain.TillState) bool) domain.TillState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := m.State(); ok(st) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never matched: %+v", m.State())
	return domain.TillState{}
}

// flakyStore delivers one orders snapshot and then fails while failOrders is set.
type flakyStore struct {
	*memory.Store
	failOrders atomic.Bool
}

func (f *flakyStore) WatchOrders(ctx context.Context, businessDate string) (<-chan store.OrdersEvent, error) {
	if !f.failOrders.Load() {
		return f.Store.WatchOrders(ctx, businessDate)
	}
	orders, err := f.Store.ListOrders(ctx, businessDate)
	if err != nil {
		return nil, err
	}
	out := make(chan store.OrdersEvent, 2)
	out <- store.OrdersEvent{Orders: orders}
	out <- store.OrdersEvent{Err: store.Unavailable("watch orders", errors.New("connection reset"))}
	close(out)
	return out, nil
}

// partitionedStore serves feeds normally but fails direct list queries while
// failLists is set.
type partitionedStore struct {
	*memory.Store
	failLists atomic.Bool
}

func (p *partitionedStore) ListOrders(ctx context.Context, businessDate string) ([]domain.Order, error) {
	if p.failLists.Load() {
		return nil, store.Unavailable("list orders", errors.New("network partition"))
	}
	return p.Store.ListOrders(ctx, businessDate)
}

func (p *partitionedStore) ListExpenses(ctx context.Context, businessDate string) ([]domain.Expense, error) {
	if p.failLists.Load() {
		return nil, store.Unavailable("list expenses", errors.New("network partition"))
	}
	return p.Store.ListExpenses(ctx, businessDate)
}
