package domain

import "time"

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// UserAccount is an internal model for seeded auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

// Shift is one business day of till activity. ClosingSnapshot is only set
// once the shift is closed and is never rewritten afterwards.
type Shift struct {
	ID                string           `json:"id" firestore:"-"`
	Status            string           `json:"status" firestore:"status"`
	OpeningFloatCents int64            `json:"opening_float_cents" firestore:"opening_float_cents"`
	BusinessDate      string           `json:"business_date" firestore:"business_date"`
	OpenedBy          string           `json:"opened_by" firestore:"opened_by"`
	OpenedAt          time.Time        `json:"opened_at" firestore:"opened_at"`
	ClosedAt          *time.Time       `json:"closed_at,omitempty" firestore:"closed_at"`
	ClosingSnapshot   *ClosingSnapshot `json:"closing_snapshot,omitempty" firestore:"closing_snapshot"`
}

func (s Shift) IsOpen() bool {
	return s.Status == ShiftStatusOpen
}

type ShiftAggregates struct {
	GrossCollectedCents    int64 `json:"gross_collected_cents" firestore:"gross_collected_cents"`
	DeliveryFeesTotalCents int64 `json:"delivery_fees_total_cents" firestore:"delivery_fees_total_cents"`
	NetSalesCents          int64 `json:"net_sales_cents" firestore:"net_sales_cents"`
	ExpensesTotalCents     int64 `json:"expenses_total_cents" firestore:"expenses_total_cents"`
	WagesTotalCents        int64 `json:"wages_total_cents" firestore:"wages_total_cents"`
	NetProfitCents         int64 `json:"net_profit_cents" firestore:"net_profit_cents"`
	OpeningFloatCents      int64 `json:"opening_float_cents" firestore:"opening_float_cents"`
	CashCollectedCents     int64 `json:"cash_collected_cents" firestore:"cash_collected_cents"`
	CardCollectedCents     int64 `json:"card_collected_cents" firestore:"card_collected_cents"`
	TransferCollectedCents int64 `json:"transfer_collected_cents" firestore:"transfer_collected_cents"`
	OtherCollectedCents    int64 `json:"other_collected_cents" firestore:"other_collected_cents"`
	DiscountTotalCents     int64 `json:"discount_total_cents" firestore:"discount_total_cents"`
	CashOnHandCents        int64 `json:"cash_on_hand_cents" firestore:"cash_on_hand_cents"`
	PaidOrders             int   `json:"paid_orders" firestore:"paid_orders"`
	PendingOrders          int   `json:"pending_orders" firestore:"pending_orders"`
	ExpenseCount           int   `json:"expense_count" firestore:"expense_count"`
}

// OrderMovement is the frozen summary of a paid order kept inside a closing snapshot.
type OrderMovement struct {
	OrderID          string         `json:"order_id" firestore:"order_id"`
	OrderNumber      int            `json:"order_number" firestore:"order_number"`
	CustomerName     string         `json:"customer_name" firestore:"customer_name"`
	Items            []LineItem     `json:"items" firestore:"items"`
	DeliveryType     string         `json:"delivery_type" firestore:"delivery_type"`
	DeliveryFeeCents int64          `json:"delivery_fee_cents" firestore:"delivery_fee_cents"`
	TotalCents       int64          `json:"total_cents" firestore:"total_cents"`
	DiscountCents    int64          `json:"discount_cents" firestore:"discount_cents"`
	CollectedCents   int64          `json:"collected_cents" firestore:"collected_cents"`
	PaymentMethod    string         `json:"payment_method" firestore:"payment_method"`
	Payments         []PaymentSplit `json:"payments" firestore:"payments"`
	PaidAt           *time.Time     `json:"paid_at,omitempty" firestore:"paid_at"`
}

type ExpenseMovement struct {
	ExpenseID   string    `json:"expense_id" firestore:"expense_id"`
	Description string    `json:"description" firestore:"description"`
	Category    string    `json:"category" firestore:"category"`
	WorkerName  string    `json:"worker_name,omitempty" firestore:"worker_name"`
	AmountCents int64     `json:"amount_cents" firestore:"amount_cents"`
	CreatedAt   time.Time `json:"created_at" firestore:"created_at"`
}

type ClosingSnapshot struct {
	Aggregates ShiftAggregates   `json:"aggregates" firestore:"aggregates"`
	Movements  []OrderMovement   `json:"movements" firestore:"movements"`
	Expenses   []ExpenseMovement `json:"expenses" firestore:"expenses"`
	ClosedBy   string            `json:"closed_by" firestore:"closed_by"`
	CapturedAt time.Time         `json:"captured_at" firestore:"captured_at"`
}

type LineItem struct {
	MenuItemID     string `json:"menu_item_id,omitempty" firestore:"menu_item_id"`
	Name           string `json:"name" firestore:"name"`
	Quantity       int    `json:"quantity" firestore:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents" firestore:"unit_price_cents"`
	Note           string `json:"note,omitempty" firestore:"note"`
}

func (l LineItem) LineTotalCents() int64 {
	return int64(l.Quantity) * l.UnitPriceCents
}

type PaymentSplit struct {
	Method      string `json:"method" firestore:"method"`
	AmountCents int64  `json:"amount_cents" firestore:"amount_cents"`
}

type Order struct {
	ID                string         `json:"id" firestore:"-"`
	OrderNumber       int            `json:"order_number" firestore:"order_number"`
	BusinessDate      string         `json:"business_date" firestore:"business_date"`
	ShiftID           string         `json:"shift_id" firestore:"shift_id"`
	CustomerName      string         `json:"customer_name" firestore:"customer_name"`
	Phone             string         `json:"phone,omitempty" firestore:"phone"`
	Address           string         `json:"address,omitempty" firestore:"address"`
	Note              string         `json:"note,omitempty" firestore:"note"`
	DeliveryType      string         `json:"delivery_type" firestore:"delivery_type"`
	DeliveryFeeCents  int64          `json:"delivery_fee_cents" firestore:"delivery_fee_cents"`
	Items             []LineItem     `json:"items" firestore:"items"`
	SubtotalCents     int64          `json:"subtotal_cents" firestore:"subtotal_cents"`
	TotalCents        int64          `json:"total_cents" firestore:"total_cents"`
	DiscountCents     int64          `json:"discount_cents" firestore:"discount_cents"`
	PaymentStatus     string         `json:"payment_status" firestore:"payment_status"`
	Payments          []PaymentSplit `json:"payments,omitempty" firestore:"payments"`
	CashTenderedCents int64          `json:"cash_tendered_cents,omitempty" firestore:"cash_tendered_cents"`
	ChangeCents       int64          `json:"change_cents,omitempty" firestore:"change_cents"`
	CreatedBy         string         `json:"created_by" firestore:"created_by"`
	CreatedAt         time.Time      `json:"created_at" firestore:"created_at"`
	PaidAt            *time.Time     `json:"paid_at,omitempty" firestore:"paid_at"`
}

// CollectedCents is the amount actually taken for the order, after discount.
func (o Order) CollectedCents() int64 {
	return o.TotalCents - o.DiscountCents
}

func (o Order) IsPaid() bool {
	return o.PaymentStatus == OrderStatusPaid
}

type Expense struct {
	ID           string    `json:"id" firestore:"-"`
	ShiftID      string    `json:"shift_id" firestore:"shift_id"`
	BusinessDate string    `json:"business_date" firestore:"business_date"`
	Description  string    `json:"description" firestore:"description"`
	AmountCents  int64     `json:"amount_cents" firestore:"amount_cents"`
	Category     string    `json:"category" firestore:"category"`
	WorkerName   string    `json:"worker_name,omitempty" firestore:"worker_name"`
	CreatedBy    string    `json:"created_by" firestore:"created_by"`
	CreatedAt    time.Time `json:"created_at" firestore:"created_at"`
}

type MenuItem struct {
	ID          string    `json:"id" firestore:"-"`
	Name        string    `json:"name" firestore:"name"`
	Category    string    `json:"category" firestore:"category"`
	PriceCents  int64     `json:"price_cents" firestore:"price_cents"`
	Description string    `json:"description" firestore:"description"`
	Available   bool      `json:"available" firestore:"available"`
	UpdatedAt   time.Time `json:"updated_at" firestore:"updated_at"`
}

type ShiftOpenRequest struct {
	OpeningFloatCents int64 `json:"opening_float_cents"`
}

type ShiftCloseRequest struct {
	Confirm bool `json:"confirm"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type ShiftListResponse struct {
	Shifts []Shift `json:"shifts"`
}

// TillState is what the front-end renders for the till screen.
type TillState struct {
	Shift            *Shift          `json:"shift,omitempty"`
	Aggregates       ShiftAggregates `json:"aggregates"`
	PendingOrders    []Order         `json:"pending_orders"`
	OrdersFeedLive   bool            `json:"orders_feed_live"`
	ExpensesFeedLive bool            `json:"expenses_feed_live"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type OrderItemRequest struct {
	MenuItemID     string `json:"menu_item_id,omitempty"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Note           string `json:"note,omitempty"`
}

type OrderCreateRequest struct {
	CustomerName     string             `json:"customer_name"`
	Phone            string             `json:"phone,omitempty"`
	Address          string             `json:"address,omitempty"`
	Note             string             `json:"note,omitempty"`
	DeliveryType     string             `json:"delivery_type"`
	DeliveryFeeCents int64              `json:"delivery_fee_cents"`
	Items            []OrderItemRequest `json:"items"`
}

// PaymentRequest carries either a single Method or a Payments breakdown.
type PaymentRequest struct {
	Method            string         `json:"method,omitempty"`
	Payments          []PaymentSplit `json:"payments,omitempty"`
	ApplyDiscount     bool           `json:"apply_discount"`
	CashTenderedCents int64          `json:"cash_tendered_cents,omitempty"`
}

type OrderResponse struct {
	Order Order `json:"order"`
}

type OrderListResponse struct {
	BusinessDate string  `json:"business_date"`
	Orders       []Order `json:"orders"`
}

type ExpenseCreateRequest struct {
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	WorkerName  string `json:"worker_name,omitempty"`
}

type ExpenseResponse struct {
	Expense Expense `json:"expense"`
}

type ExpenseListResponse struct {
	BusinessDate string    `json:"business_date"`
	Expenses     []Expense `json:"expenses"`
}

type MenuItemCreateRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	PriceCents  int64  `json:"price_cents"`
	Description string `json:"description"`
}

type MenuItemUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Category    *string `json:"category,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	Description *string `json:"description,omitempty"`
	Available   *bool   `json:"available,omitempty"`
}

type InventoryPrintRequest struct {
	Items []string `json:"items"`
}

type PrintResponse struct {
	Queued  bool   `json:"queued"`
	Preview string `json:"preview"`
}

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
)

const (
	DeliveryOnSite   = "on_site"
	DeliveryDelivery = "delivery"
)

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
	PaymentOther    = "other"
	PaymentSplitTag = "split"
)

const (
	ExpenseGeneral = "general"
	ExpenseWage    = "wage"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
