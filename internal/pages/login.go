package pages

import (
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/nursery-suite/internal/credentials"
	"github.com/kuitang/nursery-suite/internal/errs"
)

// LoginPage is /ui/login.
type LoginPage struct {
	base
}

// NewLoginPage wraps page.
func NewLoginPage(page playwright.Page, baseURL string) *LoginPage {
	return &LoginPage{base: newBase(page, baseURL)}
}

func (p *LoginPage) Open() error {
	return p.open("/ui/login")
}

func (p *LoginPage) UsernameInput() playwright.Locator {
	return p.page.Locator(`input[name="username"]`)
}

func (p *LoginPage) PasswordInput() playwright.Locator {
	return p.page.Locator(`input[name="password"]`)
}

func (p *LoginPage) SubmitButton() playwright.Locator {
	return p.page.Locator(`button[type="submit"]`)
}

func (p *LoginPage) Form() playwright.Locator {
	return p.page.Locator("form")
}

// Submit fills the form and submits it without checking the outcome.
func (p *LoginPage) Submit(username, password string) error {
	if err := p.UsernameInput().Fill(username); err != nil {
		return errs.Wrap(errs.Assertion, "username field not fillable", err)
	}
	if err := p.PasswordInput().Fill(password); err != nil {
		return errs.Wrap(errs.Assertion, "password field not fillable", err)
	}
	return p.clickAndWait(p.SubmitButton(), "login button")
}

// Login opens the login page, submits the credentials and requires that the
// browser leaves the login page.
func (p *LoginPage) Login(username, password string) error {
	if err := p.Open(); err != nil {
		return err
	}
	if err := p.Submit(username, password); err != nil {
		return err
	}
	if !p.LoggedIn() {
		msg, _ := p.ErrorMessage().First().InnerText()
		return errs.Newf(errs.AuthenticationSetup, "UI login as %s failed: %s", username, strings.TrimSpace(msg))
	}
	return nil
}

// LoginAs logs in with a resolved credential.
func (p *LoginPage) LoginAs(cred credentials.Credential) error {
	return p.Login(cred.Username, cred.Password)
}

// LoggedIn reports whether the browser is on a /ui page other than login.
func (p *LoginPage) LoggedIn() bool {
	path := p.Path()
	return strings.HasPrefix(path, "/ui") && !strings.Contains(path, "/login")
}

// IsDisplayed reports whether the login form is shown.
func (p *LoginPage) IsDisplayed() bool {
	return strings.Contains(p.Path(), "/login") && p.isVisible(p.Form())
}
