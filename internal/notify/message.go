package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
)

var methodLabels = map[domain.PaymentMethod]string{
	domain.PaymentMethodPix:  "💳 PIX",
	domain.PaymentMethodCash: "💰 Cash",
	domain.PaymentMethodCard: "💳 Card",
}

var paymentStatusLabels = map[domain.PaymentStatus]string{
	domain.PaymentStatusPending:   "⏳ Status: Pending",
	domain.PaymentStatusPaid:      "✅ Status: Paid",
	domain.PaymentStatusCancelled: "❌ Status: Cancelled",
}

func money(d decimal.Decimal) string {
	return "R$ " + d.StringFixed(2)
}

func paymentBlock(e domain.OrderEvent) string {
	method, ok := methodLabels[e.PaymentMethod]
	if !ok {
		method = "💳 " + string(e.PaymentMethod)
	}
	status, ok := paymentStatusLabels[e.PaymentStatus]
	if !ok {
		status = paymentStatusLabels[domain.PaymentStatusPending]
	}

	var b strings.Builder
	b.WriteString(method)
	b.WriteString("\n")
	b.WriteString(status)
	if e.PaymentMethod == domain.PaymentMethodCash && e.CashValue != nil {
		fmt.Fprintf(&b, "\nCash received: %s", money(*e.CashValue))
		fmt.Fprintf(&b, "\nChange: %s", money(e.ChangeAmount))
	}
	return b.String()
}

// AdminMessage is the new-order alert sent to the shop.
func AdminMessage(e domain.OrderEvent) string {
	items := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		items = append(items, fmt.Sprintf("  • %s (x%d)", item.ProductName, item.Quantity))
	}

	return fmt.Sprintf("🚨 *NEW ORDER RECEIVED!*\n\n"+
		"*Customer:* %s\n"+
		"*Phone:* %s\n"+
		"*Address:* %s\n\n"+
		"*Items:*\n%s\n\n"+
		"*Total:* %s\n\n"+
		"*Payment:*\n%s\n\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━",
		e.Customer.Name, e.Customer.Phone, e.Customer.Address,
		strings.Join(items, "\n"), money(e.TotalPrice), paymentBlock(e))
}

// CustomerMessage confirms the order to the customer.
func CustomerMessage(e domain.OrderEvent) string {
	return fmt.Sprintf("✅ *Order confirmed!*\n\n"+
		"Hi *%s*, your order was confirmed.\n\n"+
		"*Summary:*\n"+
		"Total: %s\n"+
		"Payment: %s\n\n"+
		"We will contact you soon to arrange delivery.\n\n"+
		"Thank you!",
		e.Customer.Name, money(e.TotalPrice), paymentBlock(e))
}

// CustomerNumber prefixes the Brazilian country code to a local phone number.
func CustomerNumber(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	return "55" + digits
}
