package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"restopos/internal/domain"
	"restopos/internal/store"
	"restopos/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db     *sql.DB
	schema string
}

// New connects and migrates. A non-empty namespace becomes the search_path so
// test and live data can share one database.
func New(ctx context.Context, databaseURL string, namespace string) (*Store, error) {
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	namespace = strings.TrimSpace(namespace)
	if namespace != "" {
		cfg.RuntimeParams["search_path"] = namespace
	}

	db := stdlib.OpenDB(*cfg)
	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, store.Unavailable("ping", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx, namespace); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context, namespace string) error {
	if namespace != "" {
		if _, err := s.db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{namespace}.Sanitize()); err != nil {
			return err
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}
	return s.db.QueryRowContext(ctx, `SELECT current_schema()`).Scan(&s.schema)
}

func (s *Store) Close() error {
	return s.db.Close()
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (id, status, opening_float_cents, business_date, opened_by, opened_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, shift.ID, shift.Status, shift.OpeningFloatCents, shift.BusinessDate, shift.OpenedBy, shift.OpenedAt)
	if err != nil {
		if isUniqueViolation(err, "shifts_single_open") {
			return nil, store.ErrShiftAlreadyOpen
		}
		if isUniqueViolation(err, "") {
			return nil, store.ErrInvalidTransaction
		}
		return nil, wrapErr("create shift", err)
	}
	saved := shift
	return &saved, nil
}

const shiftColumns = `id, status, opening_float_cents, business_date, opened_by, opened_at, closed_at, closing_snapshot`

func (s *Store) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get shift", err)
	}
	return shift, nil
}

func (s *Store) GetOpenShift(ctx context.Context) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE status = 'open' LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoOpenShift
	}
	if err != nil {
		return nil, wrapErr("get open shift", err)
	}
	return shift, nil
}

func (s *Store) CloseShift(ctx context.Context, id string, snapshot domain.ClosingSnapshot, closedAt time.Time) (*domain.Shift, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}

	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		UPDATE shifts
		SET status = 'closed', closed_at = $2, closing_snapshot = $3
		WHERE id = $1 AND status = 'open'
		RETURNING `+shiftColumns, id, closedAt, snapshotJSON))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetShift(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, store.ErrShiftClosed
	}
	if err != nil {
		return nil, wrapErr("close shift", err)
	}
	return shift, nil
}

func (s *Store) ListShifts(ctx context.Context, limit int) ([]domain.Shift, error) {
	if limit < 1 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+shiftColumns+` FROM shifts ORDER BY opened_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrapErr("list shifts", err)
	}
	defer rows.Close()

	shifts := make([]domain.Shift, 0, limit)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, *shift)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list shifts", err)
	}
	return shifts, nil
}

func (s *Store) NextOrderNumber(ctx context.Context, businessDate string) (int, error) {
	if businessDate == "" {
		return 0, store.ErrInvalidTransaction
	}
	var next int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO order_counters (business_date, last_number)
		VALUES ($1, 1)
		ON CONFLICT (business_date)
		DO UPDATE SET last_number = order_counters.last_number + 1
		RETURNING last_number
	`, businessDate).Scan(&next)
	if err != nil {
		return 0, wrapErr("next order number", err)
	}
	return next, nil
}

const orderColumns = `id, order_number, business_date, shift_id, customer_name, phone, address, note,
	delivery_type, delivery_fee_cents, items, subtotal_cents, total_cents, discount_cents,
	payment_status, payments, cash_tendered_cents, change_cents, created_by, created_at, paid_at`

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
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}
	paymentsJSON, err := json.Marshal(nonNilPayments(order.Payments))
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, order.ID, order.OrderNumber, order.BusinessDate, order.ShiftID, order.CustomerName, order.Phone, order.Address, order.Note,
		order.DeliveryType, order.DeliveryFeeCents, itemsJSON, order.SubtotalCents, order.TotalCents, order.DiscountCents,
		order.PaymentStatus, paymentsJSON, order.CashTenderedCents, order.ChangeCents, order.CreatedBy, order.CreatedAt, nullTime(order.PaidAt))
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, store.ErrInvalidTransaction
		}
		return nil, wrapErr("create order", err)
	}
	created := order
	return &created, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get order", err)
	}
	return order, nil
}

func (s *Store) ListOrders(ctx context.Context, businessDate string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE business_date = $1
		ORDER BY order_number, created_at
	`, businessDate)
	if err != nil {
		return nil, wrapErr("list orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 64)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list orders", err)
	}
	return orders, nil
}

func (s *Store) MarkOrderPaid(ctx context.Context, order domain.Order) (*domain.Order, error) {
	paidAt := time.Now().UTC()
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}
	paymentsJSON, err := json.Marshal(nonNilPayments(order.Payments))
	if err != nil {
		return nil, err
	}

	updated, err := scanOrder(s.db.QueryRowContext(ctx, `
		UPDATE orders
		SET payment_status = 'paid', payments = $2, discount_cents = $3,
			cash_tendered_cents = $4, change_cents = $5, paid_at = $6
		WHERE id = $1 AND payment_status = 'pending'
		RETURNING `+orderColumns,
		order.ID, paymentsJSON, order.DiscountCents, order.CashTenderedCents, order.ChangeCents, paidAt))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetOrder(ctx, order.ID); getErr != nil {
			return nil, getErr
		}
		return nil, store.ErrInvalidTransaction
	}
	if err != nil {
		return nil, wrapErr("mark order paid", err)
	}
	return updated, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "delete order", `DELETE FROM orders WHERE id = $1`, id)
}

const expenseColumns = `id, shift_id, business_date, description, amount_cents, category, worker_name, created_by, created_at`

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

	// Only booked while the referenced shift is still open.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		SELECT $1::text, $2::text, $3::text, $4::text, $5::bigint, $6::text, $7::text, $8::text, $9::timestamptz
		WHERE EXISTS (SELECT 1 FROM shifts WHERE id = $2::text AND status = 'open')
	`, expense.ID, expense.ShiftID, expense.BusinessDate, expense.Description, expense.AmountCents,
		expense.Category, expense.WorkerName, expense.CreatedBy, expense.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, store.ErrInvalidTransaction
		}
		return nil, wrapErr("create expense", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, store.ErrNoOpenShift
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, businessDate string) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE business_date = $1
		ORDER BY created_at
	`, businessDate)
	if err != nil {
		return nil, wrapErr("list expenses", err)
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 16)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.ShiftID, &e.BusinessDate, &e.Description, &e.AmountCents,
			&e.Category, &e.WorkerName, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list expenses", err)
	}
	return expenses, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "delete expense", `DELETE FROM expenses WHERE id = $1`, id)
}

const menuColumns = `id, name, category, price_cents, description, available, updated_at`

func (s *Store) ListMenuItems(ctx context.Context) ([]domain.MenuItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+menuColumns+` FROM menu_items ORDER BY category, name`)
	if err != nil {
		return nil, wrapErr("list menu", err)
	}
	defer rows.Close()

	items := make([]domain.MenuItem, 0, 64)
	for rows.Next() {
		item, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list menu", err)
	}
	return items, nil
}

func (s *Store) GetMenuItem(ctx context.Context, id string) (*domain.MenuItem, error) {
	item, err := scanMenuItem(s.db.QueryRowContext(ctx, `SELECT `+menuColumns+` FROM menu_items WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get menu item", err)
	}
	return item, nil
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO menu_items (`+menuColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, item.ID, item.Name, item.Category, item.PriceCents, item.Description, item.Available, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, store.ErrInvalidTransaction
		}
		return nil, wrapErr("create menu item", err)
	}
	created := item
	return &created, nil
}

func (s *Store) UpdateMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	if item.Name == "" || item.Category == "" || item.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	updated, err := scanMenuItem(s.db.QueryRowContext(ctx, `
		UPDATE menu_items
		SET name = $2, category = $3, price_cents = $4, description = $5, available = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+menuColumns,
		item.ID, item.Name, item.Category, item.PriceCents, item.Description, item.Available))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("update menu item", err)
	}
	return updated, nil
}

func (s *Store) DeleteMenuItem(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "delete menu item", `DELETE FROM menu_items WHERE id = $1`, id)
}

func (s *Store) deleteByID(ctx context.Context, op string, query string, id string) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return wrapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShift(row rowScanner) (*domain.Shift, error) {
	var shift domain.Shift
	var closedAt sql.NullTime
	var snapshotRaw []byte
	if err := row.Scan(&shift.ID, &shift.Status, &shift.OpeningFloatCents, &shift.BusinessDate,
		&shift.OpenedBy, &shift.OpenedAt, &closedAt, &snapshotRaw); err != nil {
		return nil, err
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		shift.ClosedAt = &at
	}
	if len(snapshotRaw) > 0 {
		var snapshot domain.ClosingSnapshot
		if err := json.Unmarshal(snapshotRaw, &snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot for shift %s: %w", shift.ID, err)
		}
		shift.ClosingSnapshot = &snapshot
	}
	return &shift, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var itemsRaw, paymentsRaw []byte
	var paidAt sql.NullTime
	if err := row.Scan(&order.ID, &order.OrderNumber, &order.BusinessDate, &order.ShiftID, &order.CustomerName,
		&order.Phone, &order.Address, &order.Note, &order.DeliveryType, &order.DeliveryFeeCents, &itemsRaw,
		&order.SubtotalCents, &order.TotalCents, &order.DiscountCents, &order.PaymentStatus, &paymentsRaw,
		&order.CashTenderedCents, &order.ChangeCents, &order.CreatedBy, &order.CreatedAt, &paidAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsRaw, &order.Items); err != nil {
		return nil, fmt.Errorf("decode items for order %s: %w", order.ID, err)
	}
	if len(paymentsRaw) > 0 {
		if err := json.Unmarshal(paymentsRaw, &order.Payments); err != nil {
			return nil, fmt.Errorf("decode payments for order %s: %w", order.ID, err)
		}
	}
	if len(order.Payments) == 0 {
		order.Payments = nil
	}
	order.CreatedAt = order.CreatedAt.UTC()
	if paidAt.Valid {
		at := paidAt.Time.UTC()
		order.PaidAt = &at
	}
	return &order, nil
}

func scanMenuItem(row rowScanner) (*domain.MenuItem, error) {
	var item domain.MenuItem
	if err := row.Scan(&item.ID, &item.Name, &item.Category, &item.PriceCents, &item.Description,
		&item.Available, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func nonNilPayments(payments []domain.PaymentSplit) []domain.PaymentSplit {
	if payments == nil {
		return []domain.PaymentSplit{}
	}
	return payments
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// isUniqueViolation matches any unique violation when constraint is empty.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	return false
}

// wrapErr marks connectivity failures as store.ErrUnavailable.
func wrapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return store.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
