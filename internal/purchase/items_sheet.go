package purchase

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// SheetIssue reports a row that could not be turned into an item.
type SheetIssue struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

var sheetDateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "01-02-06", "02-01-2006"}

// ParseItemsSheet reads purchase order items from the first sheet of an
// .xlsx file. Columns: name, price, quantity, batch_no, mfg_date, exp_date.
// A header row is detected and skipped. Bad rows are reported, not fatal.
func ParseItemsSheet(r io.Reader) ([]ItemInput, []SheetIssue, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	start := 0
	if len(rows) > 0 && isHeaderRow(rows[0]) {
		start = 1
	}

	items := make([]ItemInput, 0, len(rows))
	var issues []SheetIssue
	for i := start; i < len(rows); i++ {
		row := rows[i]
		rowNo := i + 1
		name := cell(row, 0)
		if name == "" {
			continue
		}

		price, err := parseSheetPrice(cell(row, 1))
		if err != nil {
			issues = append(issues, SheetIssue{Row: rowNo, Message: "price: " + err.Error()})
			continue
		}
		qty, err := strconv.Atoi(strings.TrimSuffix(cell(row, 2), ".0"))
		if err != nil {
			issues = append(issues, SheetIssue{Row: rowNo, Message: fmt.Sprintf("quantity %q is not a whole number", cell(row, 2))})
			continue
		}
		mfg, err := parseSheetDate(cell(row, 4))
		if err != nil {
			issues = append(issues, SheetIssue{Row: rowNo, Message: "mfg_date: " + err.Error()})
			continue
		}
		exp, err := parseSheetDate(cell(row, 5))
		if err != nil {
			issues = append(issues, SheetIssue{Row: rowNo, Message: "exp_date: " + err.Error()})
			continue
		}

		items = append(items, ItemInput{
			Name:     name,
			Price:    price,
			Quantity: qty,
			BatchNo:  cell(row, 3),
			MfgDate:  mfg,
			ExpDate:  exp,
		})
	}
	return items, issues, nil
}

func isHeaderRow(row []string) bool {
	first := strings.ToLower(cell(row, 0))
	return strings.Contains(first, "name") || strings.Contains(first, "item") || strings.Contains(first, "description")
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseSheetPrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(s), "PKR"))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("missing")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", s)
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, fmt.Errorf("%q has more than 2 decimal places", s)
	}
	return d, nil
}

// parseSheetDate returns "" for an empty cell, otherwise YYYY-MM-DD.
func parseSheetDate(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	for _, layout := range sheetDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(dateLayout), nil
		}
	}
	// unformatted date cells come through as the serial number
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.Format(dateLayout), nil
		}
	}
	return "", fmt.Errorf("%q is not a date", s)
}
