package pages

import (
	"strconv"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/nursery-suite/internal/errs"
)

// SalesPage is the read-only sales table at /ui/sales.
type SalesPage struct {
	base
}

// NewSalesPage wraps page.
func NewSalesPage(page playwright.Page, baseURL string) *SalesPage {
	return &SalesPage{base: newBase(page, baseURL)}
}

func (p *SalesPage) Open() error {
	return p.open("/ui/sales")
}

func (p *SalesPage) Table() playwright.Locator {
	return p.page.Locator("table.table")
}

func (p *SalesPage) EmptyState() playwright.Locator {
	return p.page.Locator("text=No sales found")
}

// IsEmpty reports whether the empty state is shown instead of a table.
func (p *SalesPage) IsEmpty() bool {
	return p.isVisible(p.EmptyState())
}

// RowCount returns the number of rendered sale rows.
func (p *SalesPage) RowCount() (int, error) {
	n, err := p.TableRows().Count()
	if err != nil {
		return 0, errs.Wrap(errs.Assertion, "failed to count sale rows", err)
	}
	return n, nil
}

// VerifyRowsOrEmptyState requires either rows or the empty state.
func (p *SalesPage) VerifyRowsOrEmptyState() error {
	if p.IsEmpty() {
		return nil
	}
	if !p.isVisible(p.Table()) {
		return errs.New(errs.Assertion, "sales page shows neither a table nor the empty state")
	}
	n, err := p.RowCount()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.New(errs.Assertion, "sales page shows neither rows nor the empty state")
	}
	return nil
}

// SortByColumn sorts by a sales column header.
func (p *SalesPage) SortByColumn(name string) error {
	header, err := HeaderFor(SaleColumns, name)
	if err != nil {
		return err
	}
	return p.base.SortByColumn(header)
}

// ColumnValues returns the values rendered in a named column.
func (p *SalesPage) ColumnValues(name string) ([]string, error) {
	idx, err := ColumnIndex(SaleColumns, name)
	if err != nil {
		return nil, err
	}
	if p.IsEmpty() {
		return nil, nil
	}
	return p.base.ColumnValues(idx)
}

// SortState is the sort and page reflected in the URL.
type SortState struct {
	Page      int
	SortField string
	SortDir   string
}

// SortState reads the query parameters the table links carry.
func (p *SalesPage) SortState() SortState {
	q := p.Query()
	return SortState{Page: p.CurrentPage(), SortField: q.Get("sortField"), SortDir: q.Get("sortDir")}
}

// SalesAdminPage covers the admin-only sales actions: the sell form and
// per-row deletion.
type SalesAdminPage struct {
	base
}

// NewSalesAdminPage wraps page.
func NewSalesAdminPage(page playwright.Page, baseURL string) *SalesAdminPage {
	return &SalesAdminPage{base: newBase(page, baseURL)}
}

func (p *SalesAdminPage) OpenSales() error {
	return p.open("/ui/sales")
}

func (p *SalesAdminPage) OpenSellForm() error {
	return p.open("/ui/sales/new")
}

func (p *SalesAdminPage) SellPlantButton() playwright.Locator {
	return p.page.Locator("a:has-text('Sell Plant'), button:has-text('Sell Plant')")
}

func (p *SalesAdminPage) ActionsHeader() playwright.Locator {
	return p.page.Locator("table thead th:text-is('Actions')")
}

func (p *SalesAdminPage) PlantSelect() playwright.Locator {
	return p.page.Locator("select#plantId")
}

func (p *SalesAdminPage) QuantityInput() playwright.Locator {
	return p.page.Locator("input#quantity")
}

func (p *SalesAdminPage) SellButton() playwright.Locator {
	return p.page.Locator("form button[type='submit']")
}

// PlantOptions parses the sell form's dropdown, skipping the placeholder.
func (p *SalesAdminPage) PlantOptions() ([]PlantOption, error) {
	options := p.page.Locator("select#plantId option")
	n, err := options.Count()
	if err != nil {
		return nil, errs.Wrap(errs.Assertion, "failed to read plant options", err)
	}
	var out []PlantOption
	for i := 0; i < n; i++ {
		opt := options.Nth(i)
		value, err := opt.GetAttribute("value")
		if err != nil {
			return nil, errs.Wrap(errs.Assertion, "failed to read option value", err)
		}
		if value == "" {
			continue
		}
		text, err := opt.TextContent()
		if err != nil {
			return nil, errs.Wrap(errs.Assertion, "failed to read option text", err)
		}
		name, stock, ok := ParseStockOption(text)
		if !ok {
			continue
		}
		out = append(out, PlantOption{Value: value, Name: name, Stock: stock})
	}
	return out, nil
}

// SelectFirstPlantWithStockAtLeast picks the first dropdown plant whose stock
// is at least min and selects it.
func (p *SalesAdminPage) SelectFirstPlantWithStockAtLeast(min int) (PlantOption, error) {
	options, err := p.PlantOptions()
	if err != nil {
		return PlantOption{}, err
	}
	opt, ok := firstWithStock(options, min)
	if !ok {
		return PlantOption{}, errs.Newf(errs.Setup, "no plant found with stock >= %d", min)
	}
	if err := p.SelectPlant(opt.Value); err != nil {
		return PlantOption{}, err
	}
	return opt, nil
}

func firstWithStock(options []PlantOption, min int) (PlantOption, bool) {
	for _, o := range options {
		if o.Stock >= min {
			return o, true
		}
	}
	return PlantOption{}, false
}

// SelectPlant selects a dropdown option by value.
func (p *SalesAdminPage) SelectPlant(value string) error {
	_, err := p.PlantSelect().SelectOption(playwright.SelectOptionValues{
		Values: playwright.StringSlice(value),
	})
	if err != nil {
		return errs.Wrap(errs.Assertion, "plant option "+value+" not selectable", err)
	}
	return nil
}

// Sell enters quantity and submits the sell form.
func (p *SalesAdminPage) Sell(quantity int) error {
	if err := p.QuantityInput().Fill(strconv.Itoa(quantity)); err != nil {
		return errs.Wrap(errs.Assertion, "quantity field not fillable", err)
	}
	return p.clickAndWait(p.SellButton(), "sell button")
}

// FindSaleRow returns rows containing both the plant name and quantity.
func (p *SalesAdminPage) FindSaleRow(plantName string, quantity int) playwright.Locator {
	return p.TableRows().
		Filter(playwright.LocatorFilterOptions{HasText: plantName}).
		Filter(playwright.LocatorFilterOptions{HasText: strconv.Itoa(quantity)})
}

// RowCount returns the number of rendered sale rows.
func (p *SalesAdminPage) RowCount() (int, error) {
	n, err := p.TableRows().Count()
	if err != nil {
		return 0, errs.Wrap(errs.Assertion, "failed to count sale rows", err)
	}
	return n, nil
}

// DeleteFirstSale deletes the first row and returns its sale id.
func (p *SalesAdminPage) DeleteFirstSale() (string, error) {
	row := p.TableRows().First()
	id, err := row.GetAttribute("data-sale-id")
	if err != nil {
		return "", errs.Wrap(errs.Setup, "no sale row to delete", err)
	}
	if err := p.clickAndWait(row.Locator("button[title='Delete']"), "delete button"); err != nil {
		return "", err
	}
	return strings.TrimSpace(id), nil
}
