package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restopos/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrNoOpenShift        = errors.New("no open shift")
	ErrShiftAlreadyOpen   = errors.New("a shift is already open")
	ErrShiftClosed        = errors.New("shift already closed")
	ErrUnavailable        = errors.New("store unavailable")
)

// FieldError describes a single rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for input that is rejected before it reaches a backend.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func NewValidationError(field string, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Unavailable wraps a backend connectivity failure so callers can match ErrUnavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

type ShiftStore interface {
	// CreateShift must fail with ErrShiftAlreadyOpen when any shift is open.
	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetShift(ctx context.Context, id string) (*domain.Shift, error)
	// GetOpenShift returns ErrNoOpenShift when no shift is open.
	GetOpenShift(ctx context.Context) (*domain.Shift, error)
	// CloseShift writes the snapshot and flips the status in one update.
	// It returns ErrShiftClosed if the shift is no longer open.
	CloseShift(ctx context.Context, id string, snapshot domain.ClosingSnapshot, closedAt time.Time) (*domain.Shift, error)
	ListShifts(ctx context.Context, limit int) ([]domain.Shift, error)
}

type OrderStore interface {
	// NextOrderNumber atomically increments the per-date counter and returns the new value.
	NextOrderNumber(ctx context.Context, businessDate string) (int, error)
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, businessDate string) ([]domain.Order, error)
	// MarkOrderPaid only succeeds for a pending order.
	MarkOrderPaid(ctx context.Context, order domain.Order) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error
}

type ExpenseStore interface {
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, businessDate string) ([]domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}

type MenuStore interface {
	ListMenuItems(ctx context.Context) ([]domain.MenuItem, error)
	GetMenuItem(ctx context.Context, id string) (*domain.MenuItem, error)
	CreateMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error)
	UpdateMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error)
	DeleteMenuItem(ctx context.Context, id string) error
}

// OrdersEvent carries the complete order list for a business date, or a feed error.
type OrdersEvent struct {
	Orders []domain.Order
	Err    error
}

type ExpensesEvent struct {
	Expenses []domain.Expense
	Err      error
}

// Feed delivers realtime snapshots. Each channel emits the current full list
// right away and again after every change; it is closed when ctx is done or
// after an event carrying Err.
type Feed interface {
	WatchOrders(ctx context.Context, businessDate string) (<-chan OrdersEvent, error)
	WatchExpenses(ctx context.Context, businessDate string) (<-chan ExpensesEvent, error)
}

type Repository interface {
	ShiftStore
	OrderStore
	ExpenseStore
	MenuStore
	Feed
}
