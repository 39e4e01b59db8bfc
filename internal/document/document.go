// Package document projects a supply into its delivery challan and invoice,
// renders both to PDF and records the stored artifacts on the supply.
package document

import (
	"fmt"
	"strings"
	"time"

	"procurement-backend/internal/models"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindChallan Kind = "dc"
	KindInvoice Kind = "invoice"
)

const dateLayout = "02/01/2006"

type Field struct {
	Label string
	Value string
}

type Party struct {
	Name    string
	Address string
	Email   string
	Phone   string
}

type Line struct {
	No        int
	Name      string
	BatchNo   string
	MfgDate   string
	ExpDate   string
	Quantity  int
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
}

// Document is everything a renderer needs; it holds no references back to
// the database models.
type Document struct {
	Kind       Kind
	Title      string
	Number     string
	Issuer     string
	Currency   string
	Info       []Field
	PartyTitle string
	Party      Party
	Lines      []Line
	Subtotal   decimal.Decimal
	TaxLabel   string
	Tax        decimal.Decimal
	Total      decimal.Decimal
	Notes      []Field
	Terms      []string
	Signatures []string
}

// Options carry the values that do not come from the supply itself.
type Options struct {
	Issuer   string
	Currency string
}

// ChallanNumber is "DC-<id>-<YYYYMMDD of supply date>".
func ChallanNumber(s *models.Supply) string {
	return fmt.Sprintf("DC-%d-%s", s.ID, s.SupplyDate.Format("20060102"))
}

func InvoiceNumber(s *models.Supply) string {
	return fmt.Sprintf("INV-%d-%s", s.ID, s.SupplyDate.Format("20060102"))
}

// Challan builds the delivery challan. s must have PurchaseOrder, User and
// Items.POItem loaded.
func Challan(s *models.Supply, opts Options) *Document {
	lines, total := buildLines(s)
	return &Document{
		Kind:     KindChallan,
		Title:    "DELIVERY CHALLAN",
		Number:   ChallanNumber(s),
		Issuer:   opts.Issuer,
		Currency: currency(opts),
		Info: []Field{
			{"DC No", ChallanNumber(s)},
			{"DC Date", s.SupplyDate.Format(dateLayout)},
			{"PO No", s.PurchaseOrder.PONumber},
			{"Supply Date", s.SupplyDate.Format(dateLayout)},
			{"Supplied By", s.User.Name},
		},
		PartyTitle: "Delivery To",
		Party:      partyOf(&s.PurchaseOrder),
		Lines:      lines,
		Subtotal:   total,
		Total:      total,
		Terms: []string{
			"Goods once delivered will not be taken back.",
			"All disputes are subject to local jurisdiction.",
			"Payment terms as per agreement.",
		},
		Signatures: []string{"Receiver's Signature", "Authorized Signatory"},
	}
}

// Invoice builds the invoice with a zero-rated tax line.
func Invoice(s *models.Supply, opts Options) *Document {
	lines, subtotal := buildLines(s)
	tax := decimal.Zero
	return &Document{
		Kind:     KindInvoice,
		Title:    "INVOICE",
		Number:   InvoiceNumber(s),
		Issuer:   opts.Issuer,
		Currency: currency(opts),
		Info: []Field{
			{"Invoice No", InvoiceNumber(s)},
			{"Invoice Date", s.SupplyDate.Format(dateLayout)},
			{"PO No", s.PurchaseOrder.PONumber},
			{"PO Date", s.PurchaseOrder.PODate.Format(dateLayout)},
			{"Supply Date", s.SupplyDate.Format(dateLayout)},
			{"DC No", ChallanNumber(s)},
		},
		PartyTitle: "Bill To",
		Party:      partyOf(&s.PurchaseOrder),
		Lines:      lines,
		Subtotal:   subtotal,
		TaxLabel:   "Tax (0%)",
		Tax:        tax,
		Total:      subtotal.Add(tax),
		Notes: []Field{
			{"Payment Terms", "As per agreement"},
			{"Note", "This is a computer generated invoice."},
		},
		Signatures: []string{"Customer Signature", "Authorized Signatory"},
	}
}

func buildLines(s *models.Supply) ([]Line, decimal.Decimal) {
	lines := make([]Line, 0, len(s.Items))
	total := decimal.Zero
	for i, it := range s.Items {
		lineTotal := it.TotalAmount()
		lines = append(lines, Line{
			No:        i + 1,
			Name:      it.POItem.Name,
			BatchNo:   orDash(it.POItem.BatchNo),
			MfgDate:   formatDate(it.POItem.MfgDate),
			ExpDate:   formatDate(it.POItem.ExpDate),
			Quantity:  it.Quantity,
			UnitPrice: it.POItem.Price,
			Total:     lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return lines, total
}

func partyOf(po *models.PurchaseOrder) Party {
	return Party{
		Name:    po.InstitutionName,
		Address: po.InstitutionAddress,
		Email:   po.InstitutionEmail,
		Phone:   po.InstitutionPhone,
	}
}

func currency(opts Options) string {
	if opts.Currency == "" {
		return "PKR"
	}
	return opts.Currency
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// FormatMoney prints d with two decimals and thousands separators,
// e.g. "PKR 1,234.50".
func FormatMoney(currency string, d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	if currency == "" {
		return out
	}
	return currency + " " + out
}
