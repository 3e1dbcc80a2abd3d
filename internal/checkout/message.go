package checkout

import (
	"fmt"
	"net/url"
	"strings"

	"orderflow/internal/model"
)

// MessageData is everything the order summary message renders.
// The template is fixed: field order never changes, and empty optional
// fields are omitted entirely rather than rendered blank.
type MessageData struct {
	OrderCode      string // registered flow only, after creation
	Form           model.OrderForm
	Items          []model.OrderItem
	TotalGross     int64
	DiscountCode   string
	DiscountAmount int64
	TotalNet       int64 // equals TotalGross when no discount applied
	PromoAccepted  bool
	SenderName     string
}

// BuildMessage renders the deterministic human-readable order summary
// that rides on the messaging deep link.
func BuildMessage(d MessageData) string {
	var b strings.Builder

	if d.OrderCode != "" {
		fmt.Fprintf(&b, "*New order %s*\n", d.OrderCode)
	} else {
		b.WriteString("*New order*\n")
	}

	fmt.Fprintf(&b, "Customer: %s\n", d.Form.Name)
	if d.Form.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", d.Form.Email)
	}
	if d.Form.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", d.Form.Phone)
	}
	fmt.Fprintf(&b, "Address: %s\n", d.Form.Address)
	if d.Form.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", d.Form.Notes)
	}

	b.WriteString("\nItems:\n")
	for _, it := range d.Items {
		label := it.Label
		if it.Side != "" {
			label += " (" + it.Side + ")"
		}
		if it.OriginalUnitPrice > it.UnitPrice {
			// WhatsApp renders ~text~ struck through.
			fmt.Fprintf(&b, "- %dx %s: %s ~%s~\n",
				it.Quantity, label,
				model.FormatPrice(it.LineTotal),
				model.FormatPrice(it.OriginalUnitPrice*int64(it.Quantity)))
		} else {
			fmt.Fprintf(&b, "- %dx %s: %s\n",
				it.Quantity, label, model.FormatPrice(it.LineTotal))
		}
	}

	fmt.Fprintf(&b, "\nTotal: %s\n", model.FormatPrice(d.TotalGross))
	if d.DiscountCode != "" && d.DiscountAmount > 0 {
		fmt.Fprintf(&b, "Discount %s: -%s\n", d.DiscountCode, model.FormatPrice(d.DiscountAmount))
		fmt.Fprintf(&b, "Total to pay: %s\n", model.FormatPrice(d.TotalNet))
	}
	if d.PromoAccepted {
		b.WriteString("Includes promo item\n")
	}
	fmt.Fprintf(&b, "Payment: %s\n", d.Form.PaymentMethod)
	if d.SenderName != "" {
		fmt.Fprintf(&b, "Sent by: %s\n", d.SenderName)
	}

	return b.String()
}

// DeepLink builds the wa.me link carrying the message. The phone
// number keeps digits only; the leading "+" never appears in a
// wa.me path.
func DeepLink(phone, message string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return "https://wa.me/" + digits.String() + "?text=" + url.QueryEscape(message)
}
