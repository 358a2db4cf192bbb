package printer

import (
	"fmt"

	"restopos/internal/domain"
	"restopos/internal/money"
)

// Ticket is the kitchen/customer slip for one order.
type Ticket struct {
	OrderNumber      int
	BusinessDate     string
	CustomerName     string
	Items            []domain.LineItem
	TotalCents       int64
	DeliveryFeeCents int64
	DeliveryType     string
	Address          string
	Phone            string
	Note             string
}

func TicketFromOrder(order domain.Order) Ticket {
	return Ticket{
		OrderNumber:      order.OrderNumber,
		BusinessDate:     order.BusinessDate,
		CustomerName:     order.CustomerName,
		Items:            order.Items,
		TotalCents:       order.TotalCents,
		DeliveryFeeCents: order.DeliveryFeeCents,
		DeliveryType:     order.DeliveryType,
		Address:          order.Address,
		Phone:            order.Phone,
		Note:             order.Note,
	}
}

// InventoryList is a plain checklist, e.g. items to restock.
type InventoryList struct {
	Items []string
	Date  string
}

func RenderTicket(t Ticket, width int) *Document {
	d := NewDocument(width)
	d.heading(fmt.Sprintf("ORDER #%d", t.OrderNumber))
	d.line(t.BusinessDate)
	d.labelled("Customer", t.CustomerName)
	if t.DeliveryType == domain.DeliveryDelivery {
		d.line("DELIVERY")
		d.labelled("Address", t.Address)
		d.labelled("Phone", t.Phone)
	} else {
		d.line("ON SITE")
	}
	d.separator("-")
	for _, item := range t.Items {
		d.pair(fmt.Sprintf("%dx %s", item.Quantity, item.Name), money.FormatCurrency(item.LineTotalCents()))
		if item.Note != "" {
			d.line("   * " + item.Note)
		}
	}
	d.separator("-")
	if t.DeliveryFeeCents > 0 {
		d.pair("Delivery", money.FormatCurrency(t.DeliveryFeeCents))
	}
	d.bold(true).pair("TOTAL", money.FormatCurrency(t.TotalCents)).bold(false)
	d.labelled("Note", t.Note)
	return d.feed(3).cut()
}

func RenderInventory(list InventoryList, width int) *Document {
	d := NewDocument(width)
	d.heading("INVENTORY")
	d.line(list.Date)
	d.separator("=")
	for _, item := range list.Items {
		d.line("[ ] " + item)
	}
	return d.feed(3).cut()
}
