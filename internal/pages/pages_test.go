package pages

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/nursery-suite/internal/errs"
)

func TestParseStockOption(t *testing.T) {
	tests := []struct {
		text  string
		name  string
		stock int
		ok    bool
	}{
		{"Rose (Stock: 12)", "Rose", 12, true},
		{"  Moth Orchid (stock:3) ", "Moth Orchid", 3, true},
		{"Aloe (Vera) (Stock: 0)", "Aloe (Vera)", 0, true},
		{"-- Select Plant --", "", 0, false},
		{"Rose (Stock: many)", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, stock, ok := ParseStockOption(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.stock, stock)
		})
	}
}

func testParseStockOption_RoundTrip(t *rapid.T) {
	name := rapid.StringMatching(`[A-Za-z][A-Za-z ]{0,18}[A-Za-z]`).Draw(t, "name")
	stock := rapid.IntRange(0, 100000).Draw(t, "stock")

	gotName, gotStock, ok := ParseStockOption(fmt.Sprintf("%s (Stock: %d)", name, stock))
	if !ok || gotName != name || gotStock != stock {
		t.Fatalf("ParseStockOption(%q, %d) = %q, %d, %v", name, stock, gotName, gotStock, ok)
	}
}

func TestParseStockOption_RoundTrip(t *testing.T) {
	rapid.Check(t, testParseStockOption_RoundTrip)
}

func TestColumnIndex(t *testing.T) {
	idx, err := ColumnIndex(PlantColumns, "stock")
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	idx, err = ColumnIndex(PlantColumns, "Quantity")
	require.NoError(t, err)
	assert.Equal(t, 3, idx, "Quantity maps to the Stock header")

	idx, err = ColumnIndex(SaleColumns, "Quantity")
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "sales render their own Quantity column")

	idx, err = ColumnIndex(SaleColumns, " sold at ")
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	_, err = ColumnIndex(SaleColumns, "Colour")
	assert.True(t, errs.Is(err, errs.Configuration))
}

func TestHeaderFor(t *testing.T) {
	h, err := HeaderFor(PlantColumns, "quantity")
	require.NoError(t, err)
	assert.Equal(t, "Stock", h)

	h, err = HeaderFor(SaleColumns, "total price")
	require.NoError(t, err)
	assert.Equal(t, "Total Price", h)
}

func TestParsePlantRow(t *testing.T) {
	row, err := parsePlantRow([]string{"Moth Orchid", "Orchids", "45.00", "3 Low", "Edit Delete"})
	require.NoError(t, err)
	assert.Equal(t, PlantRow{Name: "Moth Orchid", Category: "Orchids", Price: "45.00", Stock: 3, LowStock: true}, row)

	_, err = parsePlantRow([]string{"No plants found"})
	assert.True(t, errs.Is(err, errs.Assertion))

	_, err = parsePlantRow([]string{"Rose", "Roses", "9.99", "n/a"})
	assert.True(t, errs.Is(err, errs.Assertion))
}

func TestFirstWithStock(t *testing.T) {
	options := []PlantOption{
		{Value: "4", Name: "Moth Orchid", Stock: 3},
		{Value: "1", Name: "Red Rose", Stock: 40},
		{Value: "2", Name: "White Rose", Stock: 50},
	}
	opt, ok := firstWithStock(options, 10)
	require.True(t, ok)
	assert.Equal(t, "Red Rose", opt.Name)

	_, ok = firstWithStock(options, 51)
	assert.False(t, ok)
}
