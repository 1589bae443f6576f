// Package pages holds playwright page objects for the nursery UI. Each page
// object wraps a playwright.Page and the application base URL and exposes
// locators plus the composite actions step definitions need.
package pages

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/ordering"
)

// DefaultTimeoutMS bounds every wait a page object performs.
const DefaultTimeoutMS = 5000

// Column indexes of the plants table.
var PlantColumns = map[string]int{
	"Name":     0,
	"Category": 1,
	"Price":    2,
	"Stock":    3,
}

// Column indexes of the sales table.
var SaleColumns = map[string]int{
	"Plant":       0,
	"Quantity":    1,
	"Total Price": 2,
	"Sold At":     3,
}

// columnAliases maps names used in scenarios to the rendered header.
var columnAliases = map[string]string{
	"quantity": "Stock",
}

// ColumnIndex resolves a column name against columns, case-insensitively.
func ColumnIndex(columns map[string]int, name string) (int, error) {
	name = strings.TrimSpace(name)
	for header, idx := range columns {
		if strings.EqualFold(header, name) {
			return idx, nil
		}
	}
	if alias, ok := columnAliases[strings.ToLower(name)]; ok {
		if idx, ok := columns[alias]; ok {
			return idx, nil
		}
	}
	return 0, errs.Newf(errs.Configuration, "unknown column %q", name)
}

// HeaderFor returns the rendered header for a column name, applying aliases.
func HeaderFor(columns map[string]int, name string) (string, error) {
	idx, err := ColumnIndex(columns, name)
	if err != nil {
		return "", err
	}
	for header, i := range columns {
		if i == idx {
			return header, nil
		}
	}
	return "", errs.Newf(errs.Configuration, "unknown column %q", name)
}

// PlantOption is one entry of the sell form's plant dropdown.
type PlantOption struct {
	Value string
	Name  string
	Stock int
}

var stockOption = regexp.MustCompile(`(?i)^\s*(.*?)\s*\(Stock:\s*(\d+)\)\s*$`)

// ParseStockOption parses dropdown text such as "Rose (Stock: 12)".
func ParseStockOption(text string) (name string, stock int, ok bool) {
	m := stockOption.FindStringSubmatch(text)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], n, true
}

var leadingInt = regexp.MustCompile(`^\s*(-?\d+)`)

// parseLeadingInt reads cells such as "3 Low".
func parseLeadingInt(s string) (int, bool) {
	m := leadingInt.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

// base carries what every page object needs.
type base struct {
	page    playwright.Page
	baseURL string
}

func newBase(page playwright.Page, baseURL string) base {
	return base{page: page, baseURL: strings.TrimRight(baseURL, "/")}
}

// Page returns the underlying playwright page.
func (b base) Page() playwright.Page {
	return b.page
}

func (b base) open(path string) error {
	_, err := b.page.Goto(b.baseURL+path, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(DefaultTimeoutMS),
	})
	if err != nil {
		return errs.Wrap(errs.Setup, "failed to open "+path, err)
	}
	return nil
}

func (b base) waitLoaded() error {
	return b.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: playwright.Float(DefaultTimeoutMS),
	})
}

// clickAndWait clicks a locator that triggers navigation.
func (b base) clickAndWait(l playwright.Locator, what string) error {
	if err := l.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(DefaultTimeoutMS)}); err != nil {
		return errs.Wrap(errs.Assertion, "could not click "+what, err)
	}
	if err := b.waitLoaded(); err != nil {
		return errs.Wrap(errs.Assertion, "page did not load after clicking "+what, err)
	}
	return nil
}

// Path returns the path of the current URL.
func (b base) Path() string {
	u, err := url.Parse(b.page.URL())
	if err != nil {
		return ""
	}
	return u.Path
}

// Query returns the query parameters of the current URL.
func (b base) Query() url.Values {
	u, err := url.Parse(b.page.URL())
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}

// Heading is the page title rendered above the content.
func (b base) Heading() playwright.Locator {
	return b.page.Locator("h3.mb-4")
}

// FlashMessage is the success banner.
func (b base) FlashMessage() playwright.Locator {
	return b.page.Locator(".alert-success")
}

// ErrorMessage is the error banner.
func (b base) ErrorMessage() playwright.Locator {
	return b.page.Locator(".alert-danger, .error-message")
}

// FieldError is the validation message under a form field.
func (b base) FieldError(field string) playwright.Locator {
	return b.page.Locator("#" + field + " ~ .invalid-feedback")
}

// Screenshot captures the full page as PNG.
func (b base) Screenshot() ([]byte, error) {
	return b.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
}

// TableRows are the body rows of the page's table.
func (b base) TableRows() playwright.Locator {
	return b.page.Locator("table tbody tr")
}

// TableHeaders are the header cells of the page's table.
func (b base) TableHeaders() playwright.Locator {
	return b.page.Locator("table thead th")
}

// SortByColumn clicks a sortable column header.
func (b base) SortByColumn(header string) error {
	return b.clickAndWait(b.page.Locator("table thead a:text-is('"+header+"')").First(), "column header "+header)
}

// ColumnValues returns the trimmed, non-empty texts of column idx across the
// rendered rows.
func (b base) ColumnValues(idx int) ([]string, error) {
	cells := b.page.Locator("table tbody tr td:nth-child(" + strconv.Itoa(idx+1) + ")")
	texts, err := cells.AllInnerTexts()
	if err != nil {
		return nil, errs.Wrap(errs.Assertion, "failed to read table column", err)
	}
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// VerifyColumnOrder checks that column idx is sorted in dir, comparing values
// the way header's type dictates.
func (b base) VerifyColumnOrder(idx int, header string, dir ordering.Direction) error {
	values, err := b.ColumnValues(idx)
	if err != nil {
		return err
	}
	return ordering.Verify(values, ordering.KindForColumn(header), dir)
}

// Pagination is the pager below the table.
func (b base) Pagination() playwright.Locator {
	return b.page.Locator("ul.pagination")
}

// GoToNextPage clicks the enabled "Next" pager link. It reports false when
// there is no further page.
func (b base) GoToNextPage() (bool, error) {
	next := b.page.Locator("ul.pagination li:not(.disabled) a.page-link:text-is('Next')")
	n, err := next.Count()
	if err != nil {
		return false, errs.Wrap(errs.Assertion, "failed to inspect pagination", err)
	}
	if n == 0 {
		return false, nil
	}
	return true, b.clickAndWait(next.First(), "next page")
}

// CurrentPage returns the zero-based page query parameter, 0 when absent.
func (b base) CurrentPage() int {
	n, err := strconv.Atoi(b.Query().Get("page"))
	if err != nil {
		return 0
	}
	return n
}

// NavLink is a link in the top navigation bar.
func (b base) NavLink(label string) playwright.Locator {
	return b.page.Locator("nav a.nav-link:text-is('" + label + "')")
}

// Logout follows the navigation bar's logout link.
func (b base) Logout() error {
	return b.clickAndWait(b.NavLink("Logout"), "logout")
}

func (b base) isVisible(l playwright.Locator) bool {
	ok, err := l.First().IsVisible()
	return err == nil && ok
}
