// Package firestore keeps shifts, orders, expenses and the menu in Cloud
// Firestore collections and streams order/expense changes with query
// snapshots.
package firestore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"restopos/internal/domain"
	"restopos/internal/store"
	"restopos/internal/xid"
)

type Store struct {
	client *firestore.Client
	prefix string
}

type counter struct {
	LastNumber int `firestore:"last_number"`
}

// New opens a client for projectID. A non-empty namespace prefixes every
// collection name, e.g. "test_orders".
func New(ctx context.Context, projectID string, namespace string) (*Store, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("firestore: project id is required")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, store.Unavailable("firestore client", err)
	}
	return NewWithClient(client, namespace), nil
}

func NewWithClient(client *firestore.Client, namespace string) *Store {
	prefix := ""
	if ns := strings.TrimSpace(namespace); ns != "" {
		prefix = ns + "_"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) collection(name string) *firestore.CollectionRef {
	return s.client.Collection(s.prefix + name)
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.BusinessDate) == "" || shift.OpeningFloatCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil
	shift.ClosingSnapshot = nil

	shifts := s.collection("shifts")
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		open, err := tx.Documents(shifts.Where("status", "==", domain.ShiftStatusOpen).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return store.ErrShiftAlreadyOpen
		}
		return tx.Create(shifts.Doc(shift.ID), shift)
	})
	if err != nil {
		return nil, wrapErr("create shift", err)
	}
	saved := shift
	return &saved, nil
}

func (s *Store) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	snap, err := s.collection("shifts").Doc(id).Get(ctx)
	if err != nil {
		return nil, wrapErr("get shift", err)
	}
	return decodeShift(snap)
}

func (s *Store) GetOpenShift(ctx context.Context) (*domain.Shift, error) {
	iter := s.collection("shifts").Where("status", "==", domain.ShiftStatusOpen).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, store.ErrNoOpenShift
	}
	if err != nil {
		return nil, wrapErr("get open shift", err)
	}
	return decodeShift(snap)
}

func (s *Store) CloseShift(ctx context.Context, id string, snapshot domain.ClosingSnapshot, closedAt time.Time) (*domain.Shift, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	ref := s.collection("shifts").Doc(id)

	var closed domain.Shift
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		shift, err := decodeShift(snap)
		if err != nil {
			return err
		}
		if !shift.IsOpen() {
			return store.ErrShiftClosed
		}
		shift.Status = domain.ShiftStatusClosed
		shift.ClosedAt = &closedAt
		shift.ClosingSnapshot = &snapshot
		closed = *shift
		return tx.Set(ref, shift)
	})
	if err != nil {
		return nil, wrapErr("close shift", err)
	}
	return &closed, nil
}

func (s *Store) ListShifts(ctx context.Context, limit int) ([]domain.Shift, error) {
	if limit < 1 {
		limit = 30
	}
	docs, err := s.collection("shifts").OrderBy("opened_at", firestore.Desc).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapErr("list shifts", err)
	}
	shifts := make([]domain.Shift, 0, len(docs))
	for _, doc := range docs {
		shift, err := decodeShift(doc)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, *shift)
	}
	return shifts, nil
}

func (s *Store) NextOrderNumber(ctx context.Context, businessDate string) (int, error) {
	if businessDate == "" {
		return 0, store.ErrInvalidTransaction
	}
	ref := s.collection("order_counters").Doc(businessDate)

	var next int
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var c counter
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&c); err != nil {
				return err
			}
		}
		next = c.LastNumber + 1
		return tx.Set(ref, counter{LastNumber: next})
	})
	if err != nil {
		return 0, wrapErr("next order number", err)
	}
	return next, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.BusinessDate == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if order.ID == "" {
		order.ID = xid.New("order")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = domain.OrderStatusPending
	}
	if _, err := s.collection("orders").Doc(order.ID).Create(ctx, order); err != nil {
		return nil, wrapErr("create order", err)
	}
	created := order
	return &created, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	snap, err := s.collection("orders").Doc(id).Get(ctx)
	if err != nil {
		return nil, wrapErr("get order", err)
	}
	return decodeOrder(snap)
}

func (s *Store) ListOrders(ctx context.Context, businessDate string) ([]domain.Order, error) {
	docs, err := s.ordersQuery(businessDate).Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapErr("list orders", err)
	}
	return decodeOrders(docs)
}

func (s *Store) MarkOrderPaid(ctx context.Context, order domain.Order) (*domain.Order, error) {
	ref := s.collection("orders").Doc(order.ID)
	paidAt := time.Now().UTC()
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}

	var updated domain.Order
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		existing, err := decodeOrder(snap)
		if err != nil {
			return err
		}
		if existing.IsPaid() {
			return store.ErrInvalidTransaction
		}
		existing.PaymentStatus = domain.OrderStatusPaid
		existing.Payments = order.Payments
		existing.DiscountCents = order.DiscountCents
		existing.CashTenderedCents = order.CashTenderedCents
		existing.ChangeCents = order.ChangeCents
		existing.PaidAt = &paidAt
		updated = *existing
		return tx.Set(ref, existing)
	})
	if err != nil {
		return nil, wrapErr("mark order paid", err)
	}
	return &updated, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	_, err := s.collection("orders").Doc(id).Delete(ctx, firestore.Exists)
	return wrapErr("delete order", err)
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.BusinessDate == "" || expense.ShiftID == "" || expense.AmountCents < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if expense.ID == "" {
		expense.ID = xid.New("expense")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	shiftRef := s.collection("shifts").Doc(expense.ShiftID)
	expenseRef := s.collection("expenses").Doc(expense.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(shiftRef)
		if status.Code(err) == codes.NotFound {
			return store.ErrNoOpenShift
		}
		if err != nil {
			return err
		}
		shift, err := decodeShift(snap)
		if err != nil {
			return err
		}
		if !shift.IsOpen() {
			return store.ErrNoOpenShift
		}
		return tx.Create(expenseRef, expense)
	})
	if err != nil {
		return nil, wrapErr("create expense", err)
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, businessDate string) ([]domain.Expense, error) {
	docs, err := s.expensesQuery(businessDate).Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapErr("list expenses", err)
	}
	return decodeExpenses(docs)
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	_, err := s.collection("expenses").Doc(id).Delete(ctx, firestore.Exists)
	return wrapErr("delete expense", err)
}

func (s *Store) ListMenuItems(ctx context.Context) ([]domain.MenuItem, error) {
	docs, err := s.collection("menu").Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapErr("list menu", err)
	}
	items := make([]domain.MenuItem, 0, len(docs))
	for _, doc := range docs {
		var item domain.MenuItem
		if err := doc.DataTo(&item); err != nil {
			return nil, fmt.Errorf("decode menu item %s: %w", doc.Ref.ID, err)
		}
		item.ID = doc.Ref.ID
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.MenuItem) int {
		return cmp.Or(cmp.Compare(a.Category, b.Category), cmp.Compare(a.Name, b.Name))
	})
	return items, nil
}

func (s *Store) GetMenuItem(ctx context.Context, id string) (*domain.MenuItem, error) {
	snap, err := s.collection("menu").Doc(id).Get(ctx)
	if err != nil {
		return nil, wrapErr("get menu item", err)
	}
	var item domain.MenuItem
	if err := snap.DataTo(&item); err != nil {
		return nil, err
	}
	item.ID = snap.Ref.ID
	return &item, nil
}

func (s *Store) CreateMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	if item.Name == "" || item.Category == "" || item.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if item.ID == "" {
		item.ID = xid.New("menu")
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	if _, err := s.collection("menu").Doc(item.ID).Create(ctx, item); err != nil {
		return nil, wrapErr("create menu item", err)
	}
	created := item
	return &created, nil
}

func (s *Store) UpdateMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	if item.Name == "" || item.Category == "" || item.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.collection("menu").Doc(item.ID).Update(ctx, []firestore.Update{
		{Path: "name", Value: item.Name},
		{Path: "category", Value: item.Category},
		{Path: "price_cents", Value: item.PriceCents},
		{Path: "description", Value: item.Description},
		{Path: "available", Value: item.Available},
		{Path: "updated_at", Value: item.UpdatedAt},
	})
	if err != nil {
		return nil, wrapErr("update menu item", err)
	}
	updated := item
	return &updated, nil
}

func (s *Store) DeleteMenuItem(ctx context.Context, id string) error {
	_, err := s.collection("menu").Doc(id).Delete(ctx, firestore.Exists)
	return wrapErr("delete menu item", err)
}

func (s *Store) ordersQuery(businessDate string) firestore.Query {
	return s.collection("orders").Where("business_date", "==", businessDate)
}

func (s *Store) expensesQuery(businessDate string) firestore.Query {
	return s.collection("expenses").Where("business_date", "==", businessDate)
}

func decodeShift(snap *firestore.DocumentSnapshot) (*domain.Shift, error) {
	var shift domain.Shift
	if err := snap.DataTo(&shift); err != nil {
		return nil, fmt.Errorf("decode shift %s: %w", snap.Ref.ID, err)
	}
	shift.ID = snap.Ref.ID
	return &shift, nil
}

func decodeOrder(snap *firestore.DocumentSnapshot) (*domain.Order, error) {
	var order domain.Order
	if err := snap.DataTo(&order); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	order.ID = snap.Ref.ID
	return &order, nil
}

// decodeOrders sorts client side so the query needs no composite index.
func decodeOrders(docs []*firestore.DocumentSnapshot) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := decodeOrder(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		return cmp.Or(cmp.Compare(a.OrderNumber, b.OrderNumber), a.CreatedAt.Compare(b.CreatedAt))
	})
	return orders, nil
}

func decodeExpenses(docs []*firestore.DocumentSnapshot) ([]domain.Expense, error) {
	expenses := make([]domain.Expense, 0, len(docs))
	for _, doc := range docs {
		var expense domain.Expense
		if err := doc.DataTo(&expense); err != nil {
			return nil, fmt.Errorf("decode expense %s: %w", doc.Ref.ID, err)
		}
		expense.ID = doc.Ref.ID
		expenses = append(expenses, expense)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return expenses, nil
}

// wrapErr maps gRPC status codes onto the store sentinels.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{store.ErrShiftAlreadyOpen, store.ErrShiftClosed, store.ErrNoOpenShift, store.ErrInvalidTransaction, store.ErrNotFound} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	switch status.Code(err) {
	case codes.NotFound:
		return store.ErrNotFound
	case codes.AlreadyExists:
		return store.ErrInvalidTransaction
	case codes.Unavailable, codes.DeadlineExceeded:
		return store.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
