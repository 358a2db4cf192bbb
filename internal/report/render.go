package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// ToCSV writes one section,key,value row per figure followed by the
// itemized orders and expenses.
func ToCSV(doc Document) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "business_date", doc.BusinessDate},
		{"summary", "shift_id", doc.ShiftID},
		{"summary", "status", doc.Status},
		{"summary", "paid_orders", strconv.Itoa(doc.Aggregates.PaidOrders)},
	}
	for _, line := range doc.Summary {
		rows = append(rows, []string{"summary", line.Label, strconv.FormatInt(line.AmountCents, 10)})
	}
	for _, line := range doc.Payments {
		rows = append(rows, []string{"payment", line.Label, strconv.FormatInt(line.AmountCents, 10)})
	}
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write csv summary: %w", err)
	}

	orderRows := [][]string{{}, {"order_number", "customer", "items", "delivery_type", "delivery_fee_cents", "discount_cents", "collected_cents", "payment_method"}}
	for _, row := range doc.Orders {
		orderRows = append(orderRows, []string{
			strconv.Itoa(row.OrderNumber),
			row.CustomerName,
			row.Items,
			row.DeliveryType,
			strconv.FormatInt(row.DeliveryFeeCents, 10),
			strconv.FormatInt(row.DiscountCents, 10),
			strconv.FormatInt(row.CollectedCents, 10),
			row.PaymentMethod,
		})
	}
	if doc.HasExpenses() {
		orderRows = append(orderRows, []string{}, []string{"expense", "category", "worker", "amount_cents", "created_at"})
		for _, row := range doc.Expenses {
			orderRows = append(orderRows, []string{
				row.Description,
				row.Category,
				row.WorkerName,
				strconv.FormatInt(row.AmountCents, 10),
				row.CreatedAt.Format(time.RFC3339),
			})
		}
	}
	if err := w.WriteAll(orderRows); err != nil {
		return "", fmt.Errorf("write csv movements: %w", err)
	}
	return buf.String(), nil
}

// tillReportHTMLTmpl renders a printable report; each section starts on a
// new page when printed.
var tillReportHTMLTmpl = template.Must(template.New("till-report").Funcs(template.FuncMap{
	"money":    formatAmount,
	"datetime": formatTime,
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>{{.Title}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    h2, h3 { margin-bottom: 4px; }
    section.page { page-break-after: always; }
    section.page:last-child { page-break-after: auto; }
  </style>
</head>
<body>
  <section class="page">
    <h2>{{.Title}}</h2>
    <p>Shift: {{.ShiftID}} ({{.Status}}) | Opened by {{.OpenedBy}} at {{datetime .OpenedAt}}{{if .ClosedAt}} | Closed at {{datetime .ClosedAt}}{{end}}</p>
    <h3>Summary</h3>
    <table>
      <tbody>{{range .Summary}}<tr><td>{{.Label}}</td><td class="num">{{money .AmountCents}}</td></tr>{{end}}</tbody>
    </table>
    <h3>By Payment</h3>
    <table>
      <tbody>{{range .Payments}}<tr><td>{{.Label}}</td><td class="num">{{money .AmountCents}}</td></tr>{{end}}</tbody>
    </table>
  </section>
  <section class="page">
    <h3>Paid Orders</h3>
    <table>
      <thead><tr><th>#</th><th>Customer</th><th>Items</th><th>Type</th><th>Delivery</th><th>Discount</th><th>Collected</th><th>Payment</th></tr></thead>
      <tbody>{{range .Orders}}<tr><td>{{.OrderNumber}}</td><td>{{.CustomerName}}</td><td>{{.Items}}</td><td>{{.DeliveryType}}</td><td class="num">{{money .DeliveryFeeCents}}</td><td class="num">{{money .DiscountCents}}</td><td class="num">{{money .CollectedCents}}</td><td>{{.PaymentMethod}}</td></tr>{{else}}<tr><td colspan="8">No paid orders.</td></tr>{{end}}</tbody>
    </table>
  </section>
  {{if .HasExpenses}}<section class="page">
    <h3>Expenses</h3>
    <table>
      <thead><tr><th>Description</th><th>Category</th><th>Worker</th><th>Amount</th><th>Time</th></tr></thead>
      <tbody>{{range .Expenses}}<tr><td>{{.Description}}</td><td>{{.Category}}</td><td>{{.WorkerName}}</td><td class="num">{{money .AmountCents}}</td><td>{{datetime .CreatedAt}}</td></tr>{{end}}</tbody>
    </table>
  </section>{{end}}
</body>
</html>
`))

func formatTime(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02 15:04")
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	default:
		return ""
	}
}

func ToHTML(doc Document) (string, error) {
	var buf bytes.Buffer
	if err := tillReportHTMLTmpl.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("render till report: %w", err)
	}
	return buf.String(), nil
}

const (
	summarySheet  = "Summary"
	ordersSheet   = "Orders"
	expensesSheet = "Expenses"
)

// ToXLSX renders the report as a workbook with one sheet per section.
func ToXLSX(doc Document) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	summary := [][]any{
		{doc.Title},
		{"Shift", doc.ShiftID},
		{"Status", doc.Status},
		{"Paid orders", doc.Aggregates.PaidOrders},
		{},
	}
	for _, line := range doc.Summary {
		summary = append(summary, []any{line.Label, line.AmountCents})
	}
	summary = append(summary, []any{}, []any{"Payment", "Amount"})
	for _, line := range doc.Payments {
		summary = append(summary, []any{line.Label, line.AmountCents})
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(summarySheet, "A1", "A1", header); err != nil {
		return nil, err
	}

	orders := [][]any{{"#", "Customer", "Items", "Type", "Delivery fee", "Discount", "Collected", "Payment"}}
	for _, row := range doc.Orders {
		orders = append(orders, []any{row.OrderNumber, row.CustomerName, row.Items, row.DeliveryType, row.DeliveryFeeCents, row.DiscountCents, row.CollectedCents, row.PaymentMethod})
	}
	if _, err := f.NewSheet(ordersSheet); err != nil {
		return nil, err
	}
	if err := writeRows(f, ordersSheet, orders); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(ordersSheet, "A1", "H1", header); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(ordersSheet, "B", "C", 28); err != nil {
		return nil, err
	}

	if doc.HasExpenses() {
		expenses := [][]any{{"Description", "Category", "Worker", "Amount", "Time"}}
		for _, row := range doc.Expenses {
			expenses = append(expenses, []any{row.Description, row.Category, row.WorkerName, row.AmountCents, row.CreatedAt.Format(time.RFC3339)})
		}
		if _, err := f.NewSheet(expensesSheet); err != nil {
			return nil, err
		}
		if err := writeRows(f, expensesSheet, expenses); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(expensesSheet, "A1", "E1", header); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
