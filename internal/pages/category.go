package pages

import (
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/nursery-suite/internal/errs"
)

// MainCategory is the parent dropdown label for a top-level category.
const MainCategory = "Main Category"

// CategoryPage covers the category list and the add/edit form.
type CategoryPage struct {
	base
}

// NewCategoryPage wraps page.
func NewCategoryPage(page playwright.Page, baseURL string) *CategoryPage {
	return &CategoryPage{base: newBase(page, baseURL)}
}

func (p *CategoryPage) OpenList() error {
	return p.open("/ui/categories")
}

func (p *CategoryPage) OpenAdd() error {
	return p.open("/ui/categories/add")
}

func (p *CategoryPage) NameInput() playwright.Locator {
	return p.page.Locator(`input[name="name"]`)
}

func (p *CategoryPage) ParentDropdown() playwright.Locator {
	return p.page.Locator(`select[name="parentId"]`)
}

func (p *CategoryPage) SaveButton() playwright.Locator {
	return p.page.Locator("button:has-text('Save')")
}

func (p *CategoryPage) SearchInput() playwright.Locator {
	return p.page.Locator(`input[placeholder*="Search"]`)
}

func (p *CategoryPage) SearchButton() playwright.Locator {
	return p.page.Locator("button:has-text('Search')")
}

func (p *CategoryPage) AddButton() playwright.Locator {
	return p.page.Locator("a.btn:has-text('Add A Category')")
}

// Row returns the table row whose name cell is exactly name.
func (p *CategoryPage) Row(name string) playwright.Locator {
	return p.TableRows().Filter(playwright.LocatorFilterOptions{
		Has: p.page.Locator("td:text-is('" + name + "')"),
	})
}

func (p *CategoryPage) DeleteIcon(name string) playwright.Locator {
	return p.Row(name).Locator("button.btn-outline-danger")
}

// FillCategoryForm enters name and picks parent by label. An empty parent or
// MainCategory leaves the category top-level.
func (p *CategoryPage) FillCategoryForm(name, parent string) error {
	if err := p.NameInput().Fill(name); err != nil {
		return errs.Wrap(errs.Assertion, "category name field not fillable", err)
	}
	if parent == "" {
		parent = MainCategory
	}
	_, err := p.ParentDropdown().SelectOption(playwright.SelectOptionValues{
		Labels: playwright.StringSlice(parent),
	})
	if err != nil {
		return errs.Wrap(errs.Assertion, "parent "+parent+" not selectable", err)
	}
	return nil
}

// Save submits the form.
func (p *CategoryPage) Save() error {
	return p.clickAndWait(p.SaveButton(), "save button")
}

// Create opens the add form, fills it and saves.
func (p *CategoryPage) Create(name, parent string) error {
	if err := p.OpenAdd(); err != nil {
		return err
	}
	if err := p.FillCategoryForm(name, parent); err != nil {
		return err
	}
	return p.Save()
}

// Search filters the list by name.
func (p *CategoryPage) Search(term string) error {
	if err := p.SearchInput().Fill(term); err != nil {
		return errs.Wrap(errs.Assertion, "search box not fillable", err)
	}
	return p.clickAndWait(p.SearchButton(), "search button")
}

// Delete deletes the named category from the list.
func (p *CategoryPage) Delete(name string) error {
	return p.clickAndWait(p.DeleteIcon(name).First(), "delete icon for "+name)
}

// Names returns the category names shown in the list.
func (p *CategoryPage) Names() ([]string, error) {
	values, err := p.ColumnValues(1)
	if err != nil {
		return nil, err
	}
	out := values[:0]
	for _, v := range values {
		if !strings.EqualFold(v, "No category found") {
			out = append(out, v)
		}
	}
	return out, nil
}

// HasCategory reports whether the list shows a row named name.
func (p *CategoryPage) HasCategory(name string) bool {
	n, err := p.Row(name).Count()
	return err == nil && n > 0
}
