// Package steps binds the feature files to the suite: godog step definitions
// over a per-scenario World, plus the hooks that capture artifacts and record
// each scenario in the run report.
package steps

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cucumber/godog"

	"github.com/kuitang/nursery-suite/internal/apiclient"
	"github.com/kuitang/nursery-suite/internal/artifacts"
	"github.com/kuitang/nursery-suite/internal/config"
	"github.com/kuitang/nursery-suite/internal/credentials"
	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/fixtures"
	"github.com/kuitang/nursery-suite/internal/nursery"
	"github.com/kuitang/nursery-suite/internal/obs"
	"github.com/kuitang/nursery-suite/internal/pages"
	"github.com/kuitang/nursery-suite/internal/report"
	"github.com/kuitang/nursery-suite/internal/session"
)

// UITag marks scenarios that drive a browser.
const UITag = "@ui"

// Suite holds what scenarios share: the HTTP client, configuration, the
// artifact store, the report and a lazily launched browser.
type Suite struct {
	cfg       *config.Config
	client    *apiclient.Client
	artifacts *artifacts.Store
	report    *report.Builder
	reset     func(context.Context) error

	browserOnce sync.Once
	browser     *pages.Browser
	browserErr  error
}

// Option configures a Suite.
type Option func(*Suite)

// WithArtifacts stores failure evidence in store.
func WithArtifacts(store *artifacts.Store) Option {
	return func(s *Suite) {
		s.artifacts = store
	}
}

// WithReport records every scenario in b.
func WithReport(b *report.Builder) Option {
	return func(s *Suite) {
		s.report = b
	}
}

// WithScenarioReset runs fn before each scenario, typically restoring a
// twin's seeded state.
func WithScenarioReset(fn func(context.Context) error) Option {
	return func(s *Suite) {
		s.reset = fn
	}
}

// NewSuite creates a suite against client.
func NewSuite(cfg *config.Config, client *apiclient.Client, opts ...Option) *Suite {
	s := &Suite{cfg: cfg, client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the feature files selected by opts and returns godog's exit
// status.
func (s *Suite) Run(opts godog.Options) int {
	return godog.TestSuite{
		Name:                "nursery",
		ScenarioInitializer: s.InitializeScenario,
		Options:             &opts,
	}.Run()
}

// Close releases the browser.
func (s *Suite) Close() error {
	if s.browser != nil {
		return s.browser.Close()
	}
	return nil
}

func (s *Suite) launchBrowser() (*pages.Browser, error) {
	s.browserOnce.Do(func() {
		s.browser, s.browserErr = pages.Launch(s.cfg.Headless)
		if s.browserErr != nil {
			obs.Pkg("steps").Warn("browser_unavailable", "error", s.browserErr)
		}
	})
	return s.browser, s.browserErr
}

// openUI gives a browser scenario its own context. When no browser can be
// launched the scenario's UI steps skip.
func (s *Suite) openUI(ctx context.Context, w *World) {
	browser, err := s.launchBrowser()
	if err != nil {
		w.uiErr = err
		return
	}
	ui, err := browser.NewSession()
	if err != nil {
		obs.From(ctx).Warn("browser_context_failed", "pkg", "steps", "error", err)
		w.uiErr = err
		return
	}
	w.ui = ui
}

func (s *Suite) newWorld(sc *godog.Scenario) *World {
	api := nursery.NewAPI(s.client)
	sessions := session.NewCache(s.client)
	var opts []fixtures.ResolverOption
	if cred, ok := credentials.SetupAdmin(s.cfg); ok {
		opts = append(opts, fixtures.WithSetupAdmin(cred))
	}
	return &World{
		ScenarioID: obs.NewScenarioID(),
		Scenario:   sc.Name,
		Feature:    featureName(sc.Uri),
		started:    time.Now(),
		client:     s.client,
		baseURL:    s.client.BaseURL(),
		api:        api,
		sessions:   sessions,
		resolver:   fixtures.NewResolver(api, sessions, opts...),
	}
}

func featureName(uri string) string {
	base := strings.TrimSuffix(filepath.Base(uri), filepath.Ext(uri))
	return strings.ReplaceAll(base, "_", " ")
}

func hasTag(sc *godog.Scenario, tag string) bool {
	for _, t := range sc.Tags {
		if t.Name == tag {
			return true
		}
	}
	return false
}

// InitializeScenario registers hooks and step definitions.
func (s *Suite) InitializeScenario(sc *godog.ScenarioContext) {
	sc.Before(s.beforeScenario)
	sc.After(s.afterScenario)
	sc.StepContext().Before(func(ctx context.Context, st *godog.Step) (context.Context, error) {
		ctx = obs.WithStep(ctx, st.Text)
		obs.From(ctx).Debug("step_started", "pkg", "steps")
		return ctx, nil
	})

	registerAPISteps(sc)
	registerUISteps(sc)
}

func (s *Suite) beforeScenario(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
	w := s.newWorld(sc)
	ctx = obs.WithCorrelation(ctx, obs.Correlation{
		ScenarioID: w.ScenarioID,
		Scenario:   w.Scenario,
		Feature:    w.Feature,
	})
	ctx = withWorld(ctx, w)
	if s.reset != nil {
		if err := s.reset(ctx); err != nil {
			return ctx, errs.Wrap(errs.Setup, "failed to reset application state", err)
		}
	}
	if hasTag(sc, UITag) {
		s.openUI(ctx, w)
	}
	obs.From(ctx).Info("scenario_started", "pkg", "steps")
	return ctx, nil
}

func (s *Suite) afterScenario(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
	w, werr := WorldFrom(ctx)
	if werr != nil {
		return ctx, werr
	}
	status := scenarioStatus(err)
	if w.skipped && (status == report.Passed || status == report.Skipped) {
		status = report.Skipped
	}
	if status == report.Failed {
		s.captureEvidence(ctx, w)
	}
	if w.ui != nil {
		if cerr := w.ui.Close(); cerr != nil {
			obs.From(ctx).Warn("browser_context_close_failed", "pkg", "steps", "error", cerr)
		}
		w.ui = nil
	}
	w.sessions.Reset()

	elapsed := time.Since(w.started)
	logger := obs.From(ctx).With("pkg", "steps", "status", string(status), "duration_ms", elapsed.Milliseconds())
	if status == report.Failed {
		logger.Error("scenario_failed", "code", string(errs.CodeOf(err)), "error", err)
	} else {
		logger.Info("scenario_finished")
	}
	if s.report != nil {
		s.report.Add(report.ScenarioResult{
			Feature:   w.Feature,
			Name:      w.Scenario,
			Status:    status,
			Err:       err,
			Duration:  elapsed,
			Artifacts: w.saved,
		})
	}
	return ctx, nil
}

func scenarioStatus(err error) report.Status {
	switch {
	case err == nil:
		return report.Passed
	case errors.Is(err, godog.ErrSkip):
		return report.Skipped
	case errors.Is(err, godog.ErrUndefined):
		return report.Undefined
	case errors.Is(err, godog.ErrPending):
		return report.Pending
	default:
		return report.Failed
	}
}

// captureEvidence saves the last response and, for browser scenarios, a
// screenshot. Failures here are logged, never raised.
func (s *Suite) captureEvidence(ctx context.Context, w *World) {
	if s.artifacts == nil {
		return
	}
	logger := obs.From(ctx).With("pkg", "steps")
	if w.last != nil {
		a, err := s.artifacts.SaveResponse(ctx, w.ScenarioID, w.last)
		if err != nil {
			logger.Warn("response_dump_failed", "error", err)
		} else {
			w.saved = append(w.saved, a)
		}
	}
	if w.ui != nil {
		png, err := w.ui.Page.Screenshot()
		if err != nil {
			logger.Warn("screenshot_failed", "error", err)
			return
		}
		a, err := s.artifacts.SaveScreenshot(ctx, w.ScenarioID, "failure", png)
		if err != nil {
			logger.Warn("screenshot_save_failed", "error", err)
			return
		}
		w.saved = append(w.saved, a)
	}
}
