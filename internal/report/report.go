// Package report turns shift aggregates and movement lists into exportable
// documents. It holds no state of its own.
package report

import (
	"fmt"
	"strings"
	"time"

	"restopos/internal/domain"
	"restopos/internal/money"
)

// Line is one labelled amount in the summary or payment sections.
type Line struct {
	Label       string `json:"label"`
	AmountCents int64  `json:"amount_cents"`
}

type OrderRow struct {
	OrderNumber      int    `json:"order_number"`
	CustomerName     string `json:"customer_name"`
	Items            string `json:"items"`
	DeliveryType     string `json:"delivery_type"`
	DeliveryFeeCents int64  `json:"delivery_fee_cents"`
	DiscountCents    int64  `json:"discount_cents"`
	CollectedCents   int64  `json:"collected_cents"`
	PaymentMethod    string `json:"payment_method"`
}

type ExpenseRow struct {
	Description string    `json:"description"`
	Category    string    `json:"category"`
	WorkerName  string    `json:"worker_name,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

type Document struct {
	Title        string                 `json:"title"`
	ShiftID      string                 `json:"shift_id"`
	BusinessDate string                 `json:"business_date"`
	Status       string                 `json:"status"`
	OpenedBy     string                 `json:"opened_by"`
	OpenedAt     time.Time              `json:"opened_at"`
	ClosedAt     *time.Time             `json:"closed_at,omitempty"`
	GeneratedAt  time.Time              `json:"generated_at"`
	Aggregates   domain.ShiftAggregates `json:"aggregates"`
	Summary      []Line                 `json:"summary"`
	Payments     []Line                 `json:"payments"`
	Orders       []OrderRow             `json:"orders"`
	Expenses     []ExpenseRow           `json:"expenses"`
}

// Build lays out the report sections. Expenses are listed only when present.
func Build(shift domain.Shift, agg domain.ShiftAggregates, orders []domain.OrderMovement, expenses []domain.ExpenseMovement, generatedAt time.Time) Document {
	doc := Document{
		Title:        "Till Report " + shift.BusinessDate,
		ShiftID:      shift.ID,
		BusinessDate: shift.BusinessDate,
		Status:       shift.Status,
		OpenedBy:     shift.OpenedBy,
		OpenedAt:     shift.OpenedAt,
		ClosedAt:     shift.ClosedAt,
		GeneratedAt:  generatedAt.UTC(),
		Aggregates:   agg,
		Summary: []Line{
			{Label: "Opening float", AmountCents: agg.OpeningFloatCents},
			{Label: "Gross collected", AmountCents: agg.GrossCollectedCents},
			{Label: "Discounts", AmountCents: agg.DiscountTotalCents},
			{Label: "Delivery fees", AmountCents: agg.DeliveryFeesTotalCents},
			{Label: "Net sales", AmountCents: agg.NetSalesCents},
			{Label: "Expenses", AmountCents: agg.ExpensesTotalCents},
			{Label: "Wages", AmountCents: agg.WagesTotalCents},
			{Label: "Net profit", AmountCents: agg.NetProfitCents},
			{Label: "Cash on hand", AmountCents: agg.CashOnHandCents},
		},
		Payments: []Line{
			{Label: "Cash", AmountCents: agg.CashCollectedCents},
			{Label: "Card", AmountCents: agg.CardCollectedCents},
			{Label: "Transfer", AmountCents: agg.TransferCollectedCents},
			{Label: "Other", AmountCents: agg.OtherCollectedCents},
		},
		Orders:   make([]OrderRow, 0, len(orders)),
		Expenses: make([]ExpenseRow, 0, len(expenses)),
	}

	for _, movement := range orders {
		doc.Orders = append(doc.Orders, OrderRow{
			OrderNumber:      movement.OrderNumber,
			CustomerName:     movement.CustomerName,
			Items:            itemsSummary(movement.Items),
			DeliveryType:     movement.DeliveryType,
			DeliveryFeeCents: movement.DeliveryFeeCents,
			DiscountCents:    movement.DiscountCents,
			CollectedCents:   movement.CollectedCents,
			PaymentMethod:    movement.PaymentMethod,
		})
	}
	for _, expense := range expenses {
		doc.Expenses = append(doc.Expenses, ExpenseRow{
			Description: expense.Description,
			Category:    expense.Category,
			WorkerName:  expense.WorkerName,
			AmountCents: expense.AmountCents,
			CreatedAt:   expense.CreatedAt,
		})
	}
	return doc
}

func (d Document) HasExpenses() bool {
	return len(d.Expenses) > 0
}

// FileName is keyed by business date, e.g. till-report-2026-10-17.csv.
func (d Document) FileName(ext string) string {
	return fmt.Sprintf("till-report-%s.%s", d.BusinessDate, strings.TrimPrefix(ext, "."))
}

func itemsSummary(items []domain.LineItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%dx %s", item.Quantity, item.Name))
	}
	return strings.Join(parts, ", ")
}

func formatAmount(cents int64) string {
	return money.FormatCurrency(cents)
}
