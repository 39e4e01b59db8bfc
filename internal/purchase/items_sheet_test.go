package purchase

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildSheet(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, addr, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParseItemsSheet(t *testing.T) {
	buf := buildSheet(t, [][]any{
		{"Item Name", "Price", "Quantity", "Batch No", "Mfg Date", "Exp Date"},
		{"Gloves", "1,250.50", 100, "B-1", "2024-01-15", "15/01/2026"},
		{"Masks", 3, 10, "", "", ""},
		{"", "", "", "", "", ""},
		{"Syringes", "abc", 5},
		{"Vials", "2.00", "ten"},
	})

	items, issues, err := ParseItemsSheet(buf)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Gloves", items[0].Name)
	assert.Equal(t, "1250.5", items[0].Price.String())
	assert.Equal(t, 100, items[0].Quantity)
	assert.Equal(t, "B-1", items[0].BatchNo)
	assert.Equal(t, "2024-01-15", items[0].MfgDate)
	assert.Equal(t, "2026-01-15", items[0].ExpDate)

	assert.Equal(t, "Masks", items[1].Name)
	assert.Empty(t, items[1].MfgDate)

	require.Len(t, issues, 2)
	assert.Equal(t, 5, issues[0].Row)
	assert.Contains(t, issues[0].Message, "price")
	assert.Equal(t, 6, issues[1].Row)
	assert.Contains(t, issues[1].Message, "quantity")
}

func TestParseItemsSheetWithoutHeader(t *testing.T) {
	buf := buildSheet(t, [][]any{
		{"Caps", "4.75", 2},
	})
	items, issues, err := ParseItemsSheet(buf)
	require.NoError(t, err)
	assert.Empty(t, issues)
	require.Len(t, items, 1)
	assert.Equal(t, "Caps", items[0].Name)
}

func TestParseSheetDate(t *testing.T) {
	got, err := parseSheetDate("45366")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", got)

	_, err = parseSheetDate("soon")
	assert.Error(t, err)
}

func TestParseItemsSheetRejectsGarbage(t *testing.T) {
	_, _, err := ParseItemsSheet(bytes.NewReader([]byte("not a spreadsheet")))
	assert.Error(t, err)
}

func TestParseSheetPrice(t *testing.T) {
	got, err := parseSheetPrice("PKR 1,200.25")
	require.NoError(t, err)
	assert.Equal(t, "1200.25", got.String())

	_, err = parseSheetPrice("1.005")
	assert.Error(t, err)
	_, err = parseSheetPrice("")
	assert.Error(t, err)
}
