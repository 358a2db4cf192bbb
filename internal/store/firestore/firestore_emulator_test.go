package firestore

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

func newEmulatorStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("set FIRESTORE_EMULATOR_HOST to run firestore emulator tests")
	}
	s, err := New(context.Background(), "restopos-test", fmt.Sprintf("it%d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateShiftIsExclusive(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()

	shift, err := s.CreateShift(ctx, domain.Shift{OpeningFloatCents: 10000, BusinessDate: "2026-10-17"})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	if _, err := s.CreateShift(ctx, domain.Shift{BusinessDate: "2026-10-17"}); !errors.Is(err, store.ErrShiftAlreadyOpen) {
		t.Fatalf("expected ErrShiftAlreadyOpen, got %v", err)
	}

	closed, err := s.CloseShift(ctx, shift.ID, domain.ClosingSnapshot{Aggregates: domain.ShiftAggregates{CashOnHandCents: 10000}}, time.Now().UTC())
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.ClosingSnapshot.Aggregates.CashOnHandCents != 10000 {
		t.Fatalf("unexpected snapshot %+v", closed.ClosingSnapshot)
	}
	if _, err := s.CloseShift(ctx, shift.ID, domain.ClosingSnapshot{}, time.Now().UTC()); !errors.Is(err, store.ErrShiftClosed) {
		t.Fatalf("expected ErrShiftClosed, got %v", err)
	}
}

func TestOrderFeedAndCounter(t *testing.T) {
	s := newEmulatorStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := s.WatchOrders(ctx, "2026-10-17")
	if err != nil {
		t.Fatalf("watch orders: %v", err)
	}

	for want := 1; want <= 2; want++ {
		number, err := s.NextOrderNumber(ctx, "2026-10-17")
		if err != nil {
			t.Fatalf("next order number: %v", err)
		}
		if number != want {
			t.Fatalf("expected %d, got %d", want, number)
		}
		if _, err := s.CreateOrder(ctx, domain.Order{
			OrderNumber:  number,
			BusinessDate: "2026-10-17",
			DeliveryType: domain.DeliveryOnSite,
			Items:        []domain.LineItem{{Name: "Kopi", Quantity: 1, UnitPriceCents: 7000}},
			TotalCents:   7000,
		}); err != nil {
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
				if event.Orders[0].OrderNumber != 1 {
					t.Fatalf("expected orders sorted by number")
				}
				return
			}
		case <-deadline:
			t.Fatalf("feed did not deliver both orders")
		}
	}
}

func TestGetMissingOrder(t *testing.T) {
	s := newEmulatorStore(t)
	if _, err := s.GetOrder(context.Background(), "order-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
