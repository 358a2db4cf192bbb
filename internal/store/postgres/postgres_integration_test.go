package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"restopos/internal/domain"
	"restopos/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("RESTOPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set RESTOPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	namespace := fmt.Sprintf("restopos_it_%d", time.Now().UnixNano())
	s, err := New(ctx, databaseURL, namespace)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(context.Background(), `DROP SCHEMA IF EXISTS `+namespace+` CASCADE`)
		_ = s.Close()
	})
	return s
}

func TestShiftLifecycleAgainstPostgres(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	shift, err := s.CreateShift(ctx, domain.Shift{OpeningFloatCents: 10000, BusinessDate: "2026-10-17", OpenedBy: "kasir"})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	if _, err := s.CreateShift(ctx, domain.Shift{BusinessDate: "2026-10-17"}); !errors.Is(err, store.ErrShiftAlreadyOpen) {
		t.Fatalf("expected ErrShiftAlreadyOpen, got %v", err)
	}

	snapshot := domain.ClosingSnapshot{
		Aggregates: domain.ShiftAggregates{OpeningFloatCents: 10000, CashOnHandCents: 10000},
		Movements:  []domain.OrderMovement{{OrderID: "order-x", OrderNumber: 1, CollectedCents: 5000}},
		ClosedBy:   "kasir",
	}
	closed, err := s.CloseShift(ctx, shift.ID, snapshot, time.Now().UTC())
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.ClosingSnapshot == nil || len(closed.ClosingSnapshot.Movements) != 1 {
		t.Fatalf("expected stored snapshot, got %+v", closed.ClosingSnapshot)
	}
	if _, err := s.CloseShift(ctx, shift.ID, snapshot, time.Now().UTC()); !errors.Is(err, store.ErrShiftClosed) {
		t.Fatalf("expected ErrShiftClosed, got %v", err)
	}
	if _, err := s.GetOpenShift(ctx); !errors.Is(err, store.ErrNoOpenShift) {
		t.Fatalf("expected ErrNoOpenShift, got %v", err)
	}
}

func TestOrderCounterAndFeedAgainstPostgres(t *testing.T) {
	s := newIntegrationStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := s.WatchOrders(ctx, "2026-10-17")
	if err != nil {
		t.Fatalf("watch orders: %v", err)
	}
	select {
	case event := <-feed:
		if event.Err != nil || len(event.Orders) != 0 {
			t.Fatalf("unexpected initial event %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no initial orders event")
	}

	for want := 1; want <= 2; want++ {
		number, err := s.NextOrderNumber(ctx, "2026-10-17")
		if err != nil {
			t.Fatalf("next order number: %v", err)
		}
		if number != want {
			t.Fatalf("expected order number %d, got %d", want, number)
		}
		_, err = s.CreateOrder(ctx, domain.Order{
			OrderNumber:  number,
			BusinessDate: "2026-10-17",
			DeliveryType: domain.DeliveryOnSite,
			Items:        []domain.LineItem{{Name: "Es Teh", Quantity: 1, UnitPriceCents: 5000}},
			TotalCents:   5000,
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case event := <-feed:
			if event.Err != nil {
				t.Fatalf("feed error: %v", event.Err)
			}
			if len(event.Orders) == 2 {
				return
			}
		case <-deadline:
			t.Fatalf("feed did not deliver both orders")
		}
	}
}
