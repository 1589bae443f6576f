package pages

import (
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/nursery-suite/internal/errs"
)

// DashboardPage is /ui/dashboard.
type DashboardPage struct {
	base
}

// NewDashboardPage wraps page.
func NewDashboardPage(page playwright.Page, baseURL string) *DashboardPage {
	return &DashboardPage{base: newBase(page, baseURL)}
}

func (p *DashboardPage) Open() error {
	return p.open("/ui/dashboard")
}

// Card returns a summary card by name: categories, plants, sales or
// inventory.
func (p *DashboardPage) Card(name string) playwright.Locator {
	return p.page.Locator("#" + strings.ToLower(strings.TrimSpace(name)) + "-card")
}

// CardText returns the summary line of a card.
func (p *DashboardPage) CardText(name string) (string, error) {
	text, err := p.Card(name).Locator(".card-text").InnerText()
	if err != nil {
		return "", errs.Wrap(errs.Assertion, "dashboard card "+name+" not found", err)
	}
	return strings.TrimSpace(text), nil
}

// IsDisplayed reports whether the dashboard heading is visible.
func (p *DashboardPage) IsDisplayed() bool {
	return p.Path() == "/ui/dashboard" && p.isVisible(p.Heading())
}

// Navigate follows a navigation bar link.
func (p *DashboardPage) Navigate(label string) error {
	return p.clickAndWait(p.NavLink(label), label+" navigation link")
}
