package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"restopos/internal/domain"
	"restopos/internal/store"
	"restopos/internal/xid"
)

type feedKind int

const (
	feedOrders feedKind = iota
	feedExpenses
)

type subscription struct {
	kind   feedKind
	date   string
	notify chan struct{}
}

type Store struct {
	mu            sync.RWMutex
	shiftsByID    map[string]domain.Shift
	openShiftID   string
	ordersByID    map[string]domain.Order
	orderCounters map[string]int
	expensesByID  map[string]domain.Expense
	menuByID      map[string]domain.MenuItem

	subMu sync.Mutex
	subs  map[*subscription]struct{}
}

func New() *Store {
	return &Store{
		shiftsByID:    make(map[string]domain.Shift),
		ordersByID:    make(map[string]domain.Order),
		orderCounters: make(map[string]int),
		expensesByID:  make(map[string]domain.Expense),
		menuByID:      make(map[string]domain.MenuItem),
		subs:          make(map[*subscription]struct{}),
	}
}

// NewSeeded returns a store with a small demo menu.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, item := range []domain.MenuItem{
		{ID: "menu-nasi-goreng", Name: "Nasi Goreng Spesial", Category: "food", PriceCents: 25000, Description: "Fried rice, egg, chicken"},
		{ID: "menu-mie-ayam", Name: "Mie Ayam", Category: "food", PriceCents: 20000, Description: "Chicken noodles"},
		{ID: "menu-sate", Name: "Sate Ayam 10 tusuk", Category: "food", PriceCents: 30000, Description: "Chicken satay with peanut sauce"},
		{ID: "menu-es-teh", Name: "Es Teh Manis", Category: "drink", PriceCents: 5000},
		{ID: "menu-jeruk", Name: "Es Jeruk", Category: "drink", PriceCents: 8000},
		{ID: "menu-kopi", Name: "Kopi Tubruk", Category: "drink", PriceCents: 7000},
	} {
		item.Available = true
		item.UpdatedAt = now
		s.menuByID[item.ID] = item
	}
	return s
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.BusinessDate) == "" || shift.OpeningFloatCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openShiftID != "" {
		return nil, store.ErrShiftAlreadyOpen
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

	s.shiftsByID[shift.ID] = shift
	s.openShiftID = shift.ID
	saved := cloneShift(shift)
	return &saved, nil
}

func (s *Store) GetShift(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneShift(shift)
	return &dup, nil
}

func (s *Store) GetOpenShift(_ context.Context) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.openShiftID == "" {
		return nil, store.ErrNoOpenShift
	}
	shift, ok := s.shiftsByID[s.openShiftID]
	if !ok || !shift.IsOpen() {
		return nil, store.ErrNoOpenShift
	}
	dup := cloneShift(shift)
	return &dup, nil
}

func (s *Store) CloseShift(_ context.Context, id string, snapshot domain.ClosingSnapshot, closedAt time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !shift.IsOpen() {
		return nil, store.ErrShiftClosed
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	frozen := cloneSnapshot(snapshot)
	shift.Status = domain.ShiftStatusClosed
	shift.ClosedAt = &closedAt
	shift.ClosingSnapshot = &frozen

	s.shiftsByID[id] = shift
	if s.openShiftID == id {
		s.openShiftID = ""
	}
	dup := cloneShift(shift)
	return &dup, nil
}

func (s *Store) ListShifts(_ context.Context, limit int) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Shift, 0, len(s.shiftsByID))
	for _, shift := range s.shiftsByID {
		result = append(result, cloneShift(shift))
	}
	slices.SortFunc(result, func(a, b domain.Shift) int {
		if a.OpenedAt.Equal(b.OpenedAt) {
			return cmp.Compare(b.ID, a.ID)
		}
		return b.OpenedAt.Compare(a.OpenedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) NextOrderNumber(_ context.Context, businessDate string) (int, error) {
	if businessDate == "" {
		return 0, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.orderCounters[businessDate]++
	return s.orderCounters[businessDate], nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if order.BusinessDate == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	if order.ID == "" {
		order.ID = xid.New("order")
	}
	if _, exists := s.ordersByID[order.ID]; exists {
		s.mu.Unlock()
		return nil, store.ErrInvalidTransaction
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = domain.OrderStatusPending
	}
	s.ordersByID[order.ID] = cloneOrder(order)
	s.mu.Unlock()

	s.signal(feedOrders, order.BusinessDate)
	created := cloneOrder(order)
	return &created, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneOrder(order)
	return &dup, nil
}

func (s *Store) ListOrders(_ context.Context, businessDate string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ordersForDate(businessDate), nil
}

func (s *Store) MarkOrderPaid(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	existing, ok := s.ordersByID[order.ID]
	if !ok {
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}
	if existing.IsPaid() {
		s.mu.Unlock()
		return nil, store.ErrInvalidTransaction
	}
	paidAt := time.Now().UTC()
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}
	existing.PaymentStatus = domain.OrderStatusPaid
	existing.Payments = slices.Clone(order.Payments)
	existing.DiscountCents = order.DiscountCents
	existing.CashTenderedCents = order.CashTenderedCents
	existing.ChangeCents = order.ChangeCents
	existing.PaidAt = &paidAt
	s.ordersByID[order.ID] = existing
	s.mu.Unlock()

	s.signal(feedOrders, existing.BusinessDate)
	updated := cloneOrder(existing)
	return &updated, nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	order, ok := s.ordersByID[id]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(s.ordersByID, id)
	s.mu.Unlock()

	s.signal(feedOrders, order.BusinessDate)
	return nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.BusinessDate == "" || expense.ShiftID == "" || expense.AmountCents < 1 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	if s.openShiftID == "" || s.openShiftID != expense.ShiftID {
		s.mu.Unlock()
		return nil, store.ErrNoOpenShift
	}
	if expense.ID == "" {
		expense.ID = xid.New("expense")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	s.expensesByID[expense.ID] = expense
	s.mu.Unlock()

	s.signal(feedExpenses, expense.BusinessDate)
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, businessDate string) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.expensesForDate(businessDate), nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	expense, ok := s.expensesByID[id]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(s.expensesByID, id)
	s.mu.Unlock()

	s.signal(feedExpenses, expense.BusinessDate)
	return nil
}

func (s *Store) ListMenuItems(_ context.Context) ([]domain.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.MenuItem, 0, len(s.menuByID))
	for _, item := range s.menuByID {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.MenuItem) int {
		if a.Category == b.Category {
			return cmp.Compare(a.Name, b.Name)
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return items, nil
}

func (s *Store) GetMenuItem(_ context.Context, id string) (*domain.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.menuByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) CreateMenuItem(_ context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	if item.Name == "" || item.Category == "" || item.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = xid.New("menu")
	}
	if _, exists := s.menuByID[item.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	s.menuByID[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) UpdateMenuItem(_ context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	if item.Name == "" || item.Category == "" || item.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.menuByID[item.ID]; !exists {
		return nil, store.ErrNotFound
	}
	item.UpdatedAt = time.Now().UTC()
	s.menuByID[item.ID] = item
	updated := item
	return &updated, nil
}

func (s *Store) DeleteMenuItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.menuByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.menuByID, id)
	return nil
}

func (s *Store) WatchOrders(ctx context.Context, businessDate string) (<-chan store.OrdersEvent, error) {
	if businessDate == "" {
		return nil, store.ErrInvalidTransaction
	}
	sub := s.subscribe(feedOrders, businessDate)
	out := make(chan store.OrdersEvent)

	go func() {
		defer close(out)
		defer s.unsubscribe(sub)
		for {
			s.mu.RLock()
			orders := s.ordersForDate(businessDate)
			s.mu.RUnlock()

			select {
			case out <- store.OrdersEvent{Orders: orders}:
			case <-ctx.Done():
				return
			}
			select {
			case <-sub.notify:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Store) WatchExpenses(ctx context.Context, businessDate string) (<-chan store.ExpensesEvent, error) {
	if businessDate == "" {
		return nil, store.ErrInvalidTransaction
	}
	sub := s.subscribe(feedExpenses, businessDate)
	out := make(chan store.ExpensesEvent)

	go func() {
		defer close(out)
		defer s.unsubscribe(sub)
		for {
			s.mu.RLock()
			expenses := s.expensesForDate(businessDate)
			s.mu.RUnlock()

			select {
			case out <- store.ExpensesEvent{Expenses: expenses}:
			case <-ctx.Done():
				return
			}
			select {
			case <-sub.notify:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Store) subscribe(kind feedKind, date string) *subscription {
	sub := &subscription{kind: kind, date: date, notify: make(chan struct{}, 1)}
	s.subMu.Lock()
	s.subs[sub] = struct{}{}
	s.subMu.Unlock()
	return sub
}

func (s *Store) unsubscribe(sub *subscription) {
	s.subMu.Lock()
	delete(s.subs, sub)
	s.subMu.Unlock()
}

// signal wakes matching subscribers without blocking; pending wake-ups coalesce.
func (s *Store) signal(kind feedKind, date string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for sub := range s.subs {
		if sub.kind != kind || sub.date != date {
			continue
		}
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

// ordersForDate expects s.mu to be held.
func (s *Store) ordersForDate(businessDate string) []domain.Order {
	orders := make([]domain.Order, 0, 32)
	for _, order := range s.ordersByID {
		if order.BusinessDate != businessDate {
			continue
		}
		orders = append(orders, cloneOrder(order))
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if a.OrderNumber == b.OrderNumber {
			return cmp.Compare(a.ID, b.ID)
		}
		return cmp.Compare(a.OrderNumber, b.OrderNumber)
	})
	return orders
}

func (s *Store) expensesForDate(businessDate string) []domain.Expense {
	expenses := make([]domain.Expense, 0, 16)
	for _, expense := range s.expensesByID {
		if expense.BusinessDate != businessDate {
			continue
		}
		expenses = append(expenses, expense)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmp.Compare(a.ID, b.ID)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return expenses
}

func cloneOrder(src domain.Order) domain.Order {
	dup := src
	dup.Items = slices.Clone(src.Items)
	dup.Payments = slices.Clone(src.Payments)
	if src.PaidAt != nil {
		paidAt := *src.PaidAt
		dup.PaidAt = &paidAt
	}
	return dup
}

func cloneShift(src domain.Shift) domain.Shift {
	dup := src
	if src.ClosedAt != nil {
		closedAt := *src.ClosedAt
		dup.ClosedAt = &closedAt
	}
	if src.ClosingSnapshot != nil {
		snapshot := cloneSnapshot(*src.ClosingSnapshot)
		dup.ClosingSnapshot = &snapshot
	}
	return dup
}

func cloneSnapshot(src domain.ClosingSnapshot) domain.ClosingSnapshot {
	dup := src
	dup.Movements = make([]domain.OrderMovement, len(src.Movements))
	for i, movement := range src.Movements {
		movement.Items = slices.Clone(movement.Items)
		movement.Payments = slices.Clone(movement.Payments)
		dup.Movements[i] = movement
	}
	dup.Expenses = slices.Clone(src.Expenses)
	return dup
}
