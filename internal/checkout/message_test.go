package checkout

import (
	"net/url"
	"strings"
	"testing"

	"orderflow/internal/model"
)

func baseMessageData() MessageData {
	return MessageData{
		Form: model.OrderForm{
			Name:          "Ana Torres",
			Address:       "Calle 12 #3-45",
			Email:         "ana@example.com",
			PaymentMethod: "Cash",
		},
		Items: []model.OrderItem{
			{Label: "Classic Combo", Side: "fries", Quantity: 1, UnitPrice: 24000, LineTotal: 24000},
		},
		TotalGross: 24000,
		TotalNet:   24000,
		SenderName: "Ana Torres",
	}
}

func TestMessageFieldOrder(t *testing.T) {
	d := baseMessageData()
	d.Form.Phone = "3001234567"
	d.Form.Notes = "ring twice"
	d.DiscountCode = "PROMO10"
	d.DiscountAmount = 2400
	d.TotalNet = 21600
	d.PromoAccepted = true

	msg := BuildMessage(d)

	markers := []string{
		"*New order*",
		"Customer: Ana Torres",
		"Email: ana@example.com",
		"Phone: 3001234567",
		"Address: Calle 12 #3-45",
		"Notes: ring twice",
		"Items:",
		"- 1x Classic Combo (fries): $ 24.000",
		"Total: $ 24.000",
		"Discount PROMO10: -$ 2.400",
		"Total to pay: $ 21.600",
		"Includes promo item",
		"Payment: Cash",
		"Sent by: Ana Torres",
	}
	pos := -1
	for _, marker := range markers {
		idx := strings.Index(msg, marker)
		if idx < 0 {
			t.Fatalf("message missing %q:\n%s", marker, msg)
		}
		if idx <= pos {
			t.Fatalf("marker %q out of order:\n%s", marker, msg)
		}
		pos = idx
	}
}

func TestMessageOmitsEmptyOptionals(t *testing.T) {
	msg := BuildMessage(baseMessageData())

	for _, absent := range []string{"Phone:", "Notes:", "Discount", "Total to pay", "promo item"} {
		if strings.Contains(msg, absent) {
			t.Errorf("message contains %q for empty optional:\n%s", absent, msg)
		}
	}
}

func TestMessageOrderCodeHeader(t *testing.T) {
	d := baseMessageData()
	d.OrderCode = "BGR-00042"

	msg := BuildMessage(d)
	if !strings.HasPrefix(msg, "*New order BGR-00042*\n") {
		t.Fatalf("header = %q", strings.SplitN(msg, "\n", 2)[0])
	}
}

func TestMessageStruckOriginalPrice(t *testing.T) {
	d := baseMessageData()
	d.Items = append(d.Items, model.OrderItem{
		Label: "Brownie", Quantity: 2, UnitPrice: 2500,
		OriginalUnitPrice: 3500, DiscountValue: 1000, LineTotal: 5000,
	})

	msg := BuildMessage(d)
	if !strings.Contains(msg, "- 2x Brownie: $ 5.000 ~$ 7.000~") {
		t.Fatalf("promo line not rendered with struck original:\n%s", msg)
	}
}

func TestDeepLinkStripsPlusAndEncodes(t *testing.T) {
	link := DeepLink("+57 300 123 4567", "hola mundo & total $ 21.600")

	if !strings.HasPrefix(link, "https://wa.me/573001234567?text=") {
		t.Fatalf("link = %q", link)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parsing link: %v", err)
	}
	if got := u.Query().Get("text"); got != "hola mundo & total $ 21.600" {
		t.Fatalf("decoded text = %q", got)
	}
}
