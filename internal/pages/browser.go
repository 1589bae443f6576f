package pages

import (
	"errors"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/nursery-suite/internal/errs"
)

// Browser owns one playwright driver and one Chromium instance shared by all
// scenarios. Each scenario gets its own browser context so cookies never leak
// between scenarios.
type Browser struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// Launch starts playwright and Chromium. It fails with a setup error when the
// driver or browsers are not installed.
func Launch(headless bool) (*Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Setup, "playwright not available", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Setup, "could not launch browser", err)
	}
	return &Browser{pw: pw, browser: browser}, nil
}

// Session is one scenario's browser context and page.
type Session struct {
	Context playwright.BrowserContext
	Page    playwright.Page
}

// NewSession opens a fresh context and page with the default timeouts.
// Confirmation dialogs are accepted so delete forms submit.
func (b *Browser) NewSession() (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil, errs.New(errs.Setup, "browser is closed")
	}

	ctx, err := b.browser.NewContext()
	if err != nil {
		return nil, errs.Wrap(errs.Setup, "could not create browser context", err)
	}
	ctx.SetDefaultTimeout(DefaultTimeoutMS)
	ctx.SetDefaultNavigationTimeout(DefaultTimeoutMS)

	page, err := ctx.NewPage()
	if err != nil {
		_ = ctx.Close()
		return nil, errs.Wrap(errs.Setup, "could not create page", err)
	}
	page.OnDialog(func(d playwright.Dialog) {
		_ = d.Accept()
	})
	return &Session{Context: ctx, Page: page}, nil
}

// Close closes the scenario's context.
func (s *Session) Close() error {
	if s == nil || s.Context == nil {
		return nil
	}
	return s.Context.Close()
}

// Close stops the browser and the driver.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errList []error
	if b.browser != nil {
		errList = append(errList, b.browser.Close())
		b.browser = nil
	}
	if b.pw != nil {
		errList = append(errList, b.pw.Stop())
		b.pw = nil
	}
	return errors.Join(errList...)
}
