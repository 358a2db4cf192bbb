package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"restopos/internal/domain"
	"restopos/internal/store"
)

func TestCreateShiftRejectsSecondOpenShift(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.CreateShift(ctx, domain.Shift{OpeningFloatCents: 10000, BusinessDate: "2026-10-17", OpenedBy: "kasir"})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}

	_, err = s.CreateShift(ctx, domain.Shift{OpeningFloatCents: 5000, BusinessDate: "2026-10-17", OpenedBy: "other"})
	if !errors.Is(err, store.ErrShiftAlreadyOpen) {
		t.Fatalf("expected ErrShiftAlreadyOpen, got %v", err)
	}

	open, err := s.GetOpenShift(ctx)
	if err != nil {
		t.Fatalf("get open shift: %v", err)
	}
	if open.ID != first.ID || open.OpeningFloatCents != 10000 {
		t.Fatalf("expected first shift to stay open, got %+v", open)
	}
}

func TestCloseShiftOnlyOnce(t *testing.T) {
	s := New()
	ctx := context.Background()

	shift, err := s.CreateShift(ctx, domain.Shift{OpeningFloatCents: 10000, BusinessDate: "2026-10-17"})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}

	snapshot := domain.ClosingSnapshot{Aggregates: domain.ShiftAggregates{CashOnHandCents: 10000}}
	closed, err := s.CloseShift(ctx, shift.ID, snapshot, time.Now().UTC())
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.Status != domain.ShiftStatusClosed || closed.ClosedAt == nil || closed.ClosingSnapshot == nil {
		t.Fatalf("expected closed shift with snapshot, got %+v", closed)
	}

	_, err = s.CloseShift(ctx, shift.ID, domain.ClosingSnapshot{}, time.Now().UTC())
	if !errors.Is(err, store.ErrShiftClosed) {
		t.Fatalf("expected ErrShiftClosed on second close, got %v", err)
	}
	if _, err := s.GetOpenShift(ctx); !errors.Is(err, store.ErrNoOpenShift) {
		t.Fatalf("expected no open shift after close, got %v", err)
	}

	stored, err := s.GetShift(ctx, shift.ID)
	if err != nil {
		t.Fatalf("get shift: %v", err)
	}
	if stored.ClosingSnapshot.Aggregates.CashOnHandCents != 10000 {
		t.Fatalf("snapshot was rewritten: %+v", stored.ClosingSnapshot)
	}
}

func TestNextOrderNumberIsPerDate(t *testing.T) {
	s := New()
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := s.NextOrderNumber(ctx, "2026-10-17")
		if err != nil {
			t.Fatalf("next order number: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	got, err := s.NextOrderNumber(ctx, "2026-10-18")
	if err != nil {
		t.Fatalf("next order number: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected counter reset for a new date, got %d", got)
	}
}

func TestMarkOrderPaidRejectsPaidOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, domain.Order{
		BusinessDate: "2026-10-17",
		OrderNumber:  1,
		Items:        []domain.LineItem{{Name: "Mie Ayam", Quantity: 1, UnitPriceCents: 20000}},
		TotalCents:   20000,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.PaymentStatus != domain.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", order.PaymentStatus)
	}

	order.Payments = []domain.PaymentSplit{{Method: domain.PaymentCash, AmountCents: 20000}}
	paid, err := s.MarkOrderPaid(ctx, *order)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if !paid.IsPaid() || paid.PaidAt == nil {
		t.Fatalf("expected paid order, got %+v", paid)
	}

	if _, err := s.MarkOrderPaid(ctx, *order); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected second payment to be rejected, got %v", err)
	}
}

func TestWatchOrdersDeliversFullListOnChange(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := s.WatchOrders(ctx, "2026-10-17")
	if err != nil {
		t.Fatalf("watch orders: %v", err)
	}

	first := receiveOrders(t, feed)
	if len(first.Orders) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d", len(first.Orders))
	}

	for i := 1; i <= 2; i++ {
		_, err := s.CreateOrder(ctx, domain.Order{
			BusinessDate: "2026-10-17",
			OrderNumber:  i,
			Items:        []domain.LineItem{{Name: "Es Teh", Quantity: 1, UnitPriceCents: 5000}},
			TotalCents:   5000,
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
	}
	// Other dates must not leak into the feed.
	_, _ = s.CreateOrder(ctx, domain.Order{
		BusinessDate: "2026-10-16",
		Items:        []domain.LineItem{{Name: "Es Teh", Quantity: 1, UnitPriceCents: 5000}},
	})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-feed:
			if event.Err != nil {
				t.Fatalf("unexpected feed error: %v", event.Err)
			}
			if len(event.Orders) == 2 {
				if event.Orders[0].OrderNumber != 1 || event.Orders[1].OrderNumber != 2 {
					t.Fatalf("expected orders sorted by number, got %+v", event.Orders)
				}
				return
			}
			if len(event.Orders) > 2 {
				t.Fatalf("feed leaked orders from another date: %d", len(event.Orders))
			}
		case <-deadline:
			t.Fatalf("timed out waiting for feed update")
		}
	}
}

func TestWatchExpensesClosesOnCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	feed, err := s.WatchExpenses(ctx, "2026-10-17")
	if err != nil {
		t.Fatalf("watch expenses: %v", err)
	}
	<-feed
	cancel()

	select {
	case _, ok := <-feed:
		if ok {
			// A final snapshot may race with cancellation; the next read must see the close.
			if _, ok := <-feed; ok {
				t.Fatalf("expected feed to close after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("feed did not close after cancel")
	}
}

func receiveOrders(t *testing.T, feed <-chan store.OrdersEvent) store.OrdersEvent {
	t.Helper()
	select {
	case event := <-feed:
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for orders event")
	}
	return store.OrdersEvent{}
}

func TestCreateExpenseRequiresOpenShift(t *testing.T) {
	s := New()
	ctx := context.Background()

	shift, err := s.CreateShift(ctx, domain.Shift{OpeningFloatCents: 10000, BusinessDate: "2026-10-17"})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	expense := domain.Expense{ShiftID: shift.ID, BusinessDate: "2026-10-17", Description: "Gas", AmountCents: 5000, Category: domain.ExpenseGeneral}
	if _, err := s.CreateExpense(ctx, expense); err != nil {
		t.Fatalf("create expense on open shift: %v", err)
	}

	if _, err := s.CloseShift(ctx, shift.ID, domain.ClosingSnapshot{}, time.Now().UTC()); err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if _, err := s.CreateExpense(ctx, expense); !errors.Is(err, store.ErrNoOpenShift) {
		t.Fatalf("expected ErrNoOpenShift after close, got %v", err)
	}

	expenses, err := s.ListExpenses(ctx, "2026-10-17")
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	if len(expenses) != 1 {
		t.Fatalf("expected only the first expense, got %d", len(expenses))
	}
}
