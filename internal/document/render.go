package document

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"
)

type Renderer interface {
	Render(doc *Document) ([]byte, error)
}

// PDFRenderer lays a Document out on A4 pages with the core Helvetica font.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer { return &PDFRenderer{} }

type column struct {
	title string
	width float64
	align string
	value func(l Line, currency string) string
}

func challanColumns() []column {
	return []column{
		{"S.No", 12, "C", func(l Line, _ string) string { return strconv.Itoa(l.No) }},
		{"Item Name", 44, "L", func(l Line, _ string) string { return l.Name }},
		{"Batch No", 22, "L", func(l Line, _ string) string { return l.BatchNo }},
		{"Mfg Date", 20, "C", func(l Line, _ string) string { return l.MfgDate }},
		{"Exp Date", 20, "C", func(l Line, _ string) string { return l.ExpDate }},
		{"Qty", 14, "R", func(l Line, _ string) string { return strconv.Itoa(l.Quantity) }},
		{"Rate", 28, "R", func(l Line, c string) string { return FormatMoney(c, l.UnitPrice) }},
		{"Amount", 30, "R", func(l Line, c string) string { return FormatMoney(c, l.Total) }},
	}
}

func invoiceColumns() []column {
	return []column{
		{"S.No", 12, "C", func(l Line, _ string) string { return strconv.Itoa(l.No) }},
		{"Description", 78, "L", func(l Line, _ string) string { return describe(l) }},
		{"Batch No", 22, "L", func(l Line, _ string) string { return l.BatchNo }},
		{"Qty", 14, "R", func(l Line, _ string) string { return strconv.Itoa(l.Quantity) }},
		{"Rate", 30, "R", func(l Line, c string) string { return FormatMoney(c, l.UnitPrice) }},
		{"Amount", 34, "R", func(l Line, c string) string { return FormatMoney(c, l.Total) }},
	}
}

func describe(l Line) string {
	s := l.Name
	if l.MfgDate != "-" {
		s += " Mfg: " + l.MfgDate
	}
	if l.ExpDate != "-" {
		s += " Exp: " + l.ExpDate
	}
	return s
}

func (r *PDFRenderer) Render(doc *Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(doc.Number, true)
	pdf.SetCreator(doc.Issuer, true)
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// header
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "C", false, 0, "")
	if doc.Issuer != "" {
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 6, tr(doc.Issuer), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	for _, f := range doc.Info {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(35, 6, tr(f.Label+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, tr(f.Value), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, tr(doc.PartyTitle+":"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, tr(doc.Party.Name), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	if doc.Party.Address != "" {
		pdf.MultiCell(0, 5, tr(doc.Party.Address), "", "L", false)
	}
	if doc.Party.Email != "" {
		pdf.CellFormat(0, 5, tr("Email: "+doc.Party.Email), "", 1, "L", false, 0, "")
	}
	if doc.Party.Phone != "" {
		pdf.CellFormat(0, 5, tr("Phone: "+doc.Party.Phone), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	cols := challanColumns()
	if doc.Kind == KindInvoice {
		cols = invoiceColumns()
	}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range cols {
		pdf.CellFormat(c.width, 7, tr(c.title), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, l := range doc.Lines {
		for _, c := range cols {
			pdf.CellFormat(c.width, 7, tr(c.value(l, doc.Currency)), "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	// totals
	var tableWidth float64
	for _, c := range cols {
		tableWidth += c.width
	}
	labelWidth := tableWidth - cols[len(cols)-1].width
	amountWidth := cols[len(cols)-1].width
	totals := []Field{{"Total", FormatMoney(doc.Currency, doc.Total)}}
	if doc.Kind == KindInvoice {
		totals = []Field{
			{"Subtotal", FormatMoney(doc.Currency, doc.Subtotal)},
			{doc.TaxLabel, FormatMoney(doc.Currency, doc.Tax)},
			{"Total", FormatMoney(doc.Currency, doc.Total)},
		}
	}
	pdf.SetFont("Helvetica", "B", 9)
	for _, t := range totals {
		pdf.CellFormat(labelWidth, 7, tr(t.Label+":"), "1", 0, "R", false, 0, "")
		pdf.CellFormat(amountWidth, 7, tr(t.Value), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(6)

	if len(doc.Terms) > 0 {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, "Terms & Conditions:", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for _, t := range doc.Terms {
			pdf.CellFormat(0, 5, tr("- "+t), "", 1, "L", false, 0, "")
		}
	}
	for _, n := range doc.Notes {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(30, 5, tr(n.Label+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 5, tr(n.Value), "", 1, "L", false, 0, "")
	}
	pdf.Ln(18)

	pdf.SetFont("Helvetica", "", 10)
	for i := range doc.Signatures {
		ln := 0
		if i == len(doc.Signatures)-1 {
			ln = 1
		}
		pdf.CellFormat(95, 5, "_____________________", "", ln, "C", false, 0, "")
	}
	for i, s := range doc.Signatures {
		ln := 0
		if i == len(doc.Signatures)-1 {
			ln = 1
		}
		pdf.CellFormat(95, 5, tr(s), "", ln, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", doc.Number, err)
	}
	return buf.Bytes(), nil
}
