package pages

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/nursery-suite/internal/errs"
)

// PlantsListPage is the searchable, sortable plant table at /ui/plants.
type PlantsListPage struct {
	base
}

// NewPlantsListPage wraps page.
func NewPlantsListPage(page playwright.Page, baseURL string) *PlantsListPage {
	return &PlantsListPage{base: newBase(page, baseURL)}
}

func (p *PlantsListPage) Open() error {
	return p.open("/ui/plants")
}

func (p *PlantsListPage) SearchInput() playwright.Locator {
	return p.page.Locator(`input[placeholder*="Search"]`)
}

func (p *PlantsListPage) SearchButton() playwright.Locator {
	return p.page.Locator("button:has-text('Search')")
}

func (p *PlantsListPage) ResetLink() playwright.Locator {
	return p.page.Locator(".search-form a:has-text('Reset')")
}

func (p *PlantsListPage) CategoryDropdown() playwright.Locator {
	return p.page.Locator(`.search-form select[name="categoryId"]`)
}

func (p *PlantsListPage) AddPlantButton() playwright.Locator {
	return p.page.Locator("a.btn:has-text('Add a Plant')")
}

func (p *PlantsListPage) EditButtons() playwright.Locator {
	return p.page.Locator("table tbody a[title='Edit']")
}

func (p *PlantsListPage) DeleteButtons() playwright.Locator {
	return p.page.Locator("table tbody button[title='Delete']")
}

// SearchPlants submits a name search.
func (p *PlantsListPage) SearchPlants(term string) error {
	if err := p.SearchInput().Fill(term); err != nil {
		return errs.Wrap(errs.Assertion, "search box not fillable", err)
	}
	return p.clickAndWait(p.SearchButton(), "search button")
}

// FilterByCategory selects a category by its label and searches.
func (p *PlantsListPage) FilterByCategory(label string) error {
	_, err := p.CategoryDropdown().SelectOption(playwright.SelectOptionValues{
		Labels: playwright.StringSlice(label),
	})
	if err != nil {
		return errs.Wrap(errs.Assertion, "category "+label+" not selectable", err)
	}
	return p.clickAndWait(p.SearchButton(), "search button")
}

// ResetFilters clears search and category filters.
func (p *PlantsListPage) ResetFilters() error {
	return p.clickAndWait(p.ResetLink(), "reset link")
}

// HasNoResults reports whether the table shows its empty state.
func (p *PlantsListPage) HasNoResults() bool {
	return p.isVisible(p.page.Locator("table tbody td:has-text('No plants found')"))
}

// SortByColumn sorts by a column name; "Quantity" targets the Stock header.
func (p *PlantsListPage) SortByColumn(name string) error {
	header, err := HeaderFor(PlantColumns, name)
	if err != nil {
		return err
	}
	return p.base.SortByColumn(header)
}

// ColumnValues returns the values rendered in a named column. An empty table
// yields no values.
func (p *PlantsListPage) ColumnValues(name string) ([]string, error) {
	idx, err := ColumnIndex(PlantColumns, name)
	if err != nil {
		return nil, err
	}
	if p.HasNoResults() {
		return nil, nil
	}
	return p.base.ColumnValues(idx)
}

// PlantRow is one parsed row of the plants table.
type PlantRow struct {
	Name     string
	Category string
	Price    string
	Stock    int
	LowStock bool
}

// Rows parses every rendered row.
func (p *PlantsListPage) Rows() ([]PlantRow, error) {
	if p.HasNoResults() {
		return nil, nil
	}
	rows := p.TableRows()
	n, err := rows.Count()
	if err != nil {
		return nil, errs.Wrap(errs.Assertion, "failed to count plant rows", err)
	}
	out := make([]PlantRow, 0, n)
	for i := 0; i < n; i++ {
		cells, err := rows.Nth(i).Locator("td").AllInnerTexts()
		if err != nil {
			return nil, errs.Wrap(errs.Assertion, "failed to read plant row", err)
		}
		row, err := parsePlantRow(cells)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func parsePlantRow(cells []string) (PlantRow, error) {
	if len(cells) < len(PlantColumns) {
		return PlantRow{}, errs.Newf(errs.Assertion, "plant row has %d cells, want at least %d", len(cells), len(PlantColumns))
	}
	stockCell := strings.TrimSpace(cells[PlantColumns["Stock"]])
	stock, ok := parseLeadingInt(stockCell)
	if !ok {
		return PlantRow{}, errs.Newf(errs.Assertion, "stock cell %q is not a number", stockCell)
	}
	return PlantRow{
		Name:     strings.TrimSpace(cells[PlantColumns["Name"]]),
		Category: strings.TrimSpace(cells[PlantColumns["Category"]]),
		Price:    strings.TrimSpace(cells[PlantColumns["Price"]]),
		Stock:    stock,
		LowStock: strings.Contains(stockCell, "Low"),
	}, nil
}

// FindPlantByName returns the first row whose name matches exactly.
func (p *PlantsListPage) FindPlantByName(name string) (PlantRow, error) {
	rows, err := p.Rows()
	if err != nil {
		return PlantRow{}, err
	}
	for _, r := range rows {
		if r.Name == name {
			return r, nil
		}
	}
	return PlantRow{}, errs.Newf(errs.Assertion, "plant %q not found in table", name)
}

// VerifyRowsContain requires every row to contain term, case-insensitively.
// An empty result is accepted.
func (p *PlantsListPage) VerifyRowsContain(term string) error {
	rows, err := p.Rows()
	if err != nil {
		return err
	}
	needle := strings.ToLower(term)
	for _, r := range rows {
		if !strings.Contains(strings.ToLower(r.Name), needle) {
			return errs.Newf(errs.Assertion, "plant %q does not match search %q", r.Name, term)
		}
	}
	return nil
}

// PlantForm is the add/edit plant form input.
type PlantForm struct {
	Name     string
	Category string // option label
	Price    string
	Quantity string
}

// PlantsPage is the plant add/edit form plus lookups in the plant list.
type PlantsPage struct {
	base
}

// NewPlantsPage wraps page.
func NewPlantsPage(page playwright.Page, baseURL string) *PlantsPage {
	return &PlantsPage{base: newBase(page, baseURL)}
}

func (p *PlantsPage) OpenAdd() error {
	return p.open("/ui/plants/add")
}

func (p *PlantsPage) OpenList() error {
	return p.open("/ui/plants")
}

func (p *PlantsPage) SaveButton() playwright.Locator {
	return p.page.Locator("button:has-text('Save')")
}

// FillPlantForm fills every non-empty field of f.
func (p *PlantsPage) FillPlantForm(f PlantForm) error {
	fill := func(selector, value string) error {
		if err := p.page.Locator(selector).Fill(value); err != nil {
			return errs.Wrap(errs.Assertion, "field "+selector+" not fillable", err)
		}
		return nil
	}
	if err := fill(`input[name="name"]`, f.Name); err != nil {
		return err
	}
	if f.Category != "" {
		_, err := p.page.Locator(`select[name="categoryId"]`).SelectOption(playwright.SelectOptionValues{
			Labels: playwright.StringSlice(f.Category),
		})
		if err != nil {
			return errs.Wrap(errs.Assertion, "category "+f.Category+" not selectable", err)
		}
	}
	if err := fill(`input[name="price"]`, f.Price); err != nil {
		return err
	}
	return fill(`input[name="quantity"]`, f.Quantity)
}

// Save submits the form.
func (p *PlantsPage) Save() error {
	return p.clickAndWait(p.SaveButton(), "save button")
}

// FindPlantByName opens the plant list filtered by name and returns the
// matching row.
func (p *PlantsPage) FindPlantByName(name string) (PlantRow, error) {
	if err := p.open("/ui/plants?" + url.Values{"name": {name}}.Encode()); err != nil {
		return PlantRow{}, err
	}
	list := &PlantsListPage{base: p.base}
	row, err := list.FindPlantByName(name)
	if err != nil {
		return PlantRow{}, fmt.Errorf("after searching: %w", err)
	}
	return row, nil
}
