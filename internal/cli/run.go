package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cucumber/godog"
	"github.com/spf13/cobra"

	"github.com/kuitang/nursery-suite/internal/apiclient"
	"github.com/kuitang/nursery-suite/internal/artifacts"
	"github.com/kuitang/nursery-suite/internal/config"
	"github.com/kuitang/nursery-suite/internal/credentials"
	"github.com/kuitang/nursery-suite/internal/report"
	"github.com/kuitang/nursery-suite/internal/steps"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	BaseURL     string
	Features    string
	Tags        string
	Format      string
	Concurrency int
	Report      string
	Headed      bool
	Twin        bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the feature suite",
		Long: `Run the Gherkin features against the nursery application.

Failures are attributed either to the product (an assertion on its behaviour
failed) or to the suite setup (a fixture, login or configuration problem).
Failure evidence is written to the artifacts directory and a summary report
to --report when given.

Exit codes:
  0 - all scenarios passed
  1 - at least one scenario failed
  2 - configuration error or the suite could not start`,
		Example: `  nursery run --base-url http://localhost:8080
  nursery run --tags '@ui && ~@wip' --headed
  nursery run --twin --report out/report.md`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "application base URL (default NURSERY_BASE_URL)")
	cmd.Flags().StringVar(&opts.Features, "features", "", "comma-separated feature paths (default NURSERY_FEATURES)")
	cmd.Flags().StringVar(&opts.Tags, "tags", "", "tag expression selecting scenarios")
	cmd.Flags().StringVar(&opts.Format, "format", "", "godog formatter (pretty|progress|cucumber|junit)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "scenarios run in parallel")
	cmd.Flags().StringVar(&opts.Report, "report", "", "write a run report (.md or .html)")
	cmd.Flags().BoolVar(&opts.Headed, "headed", false, "show the browser window")
	cmd.Flags().BoolVar(&opts.Twin, "twin", false, "run against an in-process twin instead of --base-url")

	return cmd
}

func runSuite(cmd *cobra.Command, opts *RunOptions) error {
	cfg, err := config.Load(config.Overrides{
		BaseURL:      opts.BaseURL,
		FeaturesPath: opts.Features,
		Tags:         opts.Tags,
		Format:       opts.Format,
		Concurrency:  opts.Concurrency,
		ReportPath:   opts.Report,
		Headed:       opts.Headed,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "configuration", err)
	}
	applyLogLevel(opts.RootOptions, cfg)
	// The twin is reset before every scenario, so its scenarios must not overlap.
	if opts.Twin && cfg.Concurrency > 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--twin requires concurrency 1, got %d", cfg.Concurrency))
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var suiteOpts []steps.Option
	if opts.Twin {
		reset, shutdown, err := startTwin(ctx, cfg)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start twin", err)
		}
		defer shutdown()
		suiteOpts = append(suiteOpts, steps.WithScenarioReset(reset))
	}
	cfg.PrintSummary()

	metrics := apiclient.NewMetrics()
	client := apiclient.NewFromConfig(cfg, metrics)

	store, err := artifacts.NewFromConfig(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "artifacts", err)
	}
	rep := report.NewBuilder("nursery suite", time.Now())
	suiteOpts = append(suiteOpts, steps.WithArtifacts(store), steps.WithReport(rep))

	suite := steps.NewSuite(cfg, client, suiteOpts...)
	defer func() { _ = suite.Close() }()

	status := suite.Run(godog.Options{
		Format:      cfg.Format,
		Paths:       splitPaths(cfg.FeaturesPath),
		Tags:        cfg.Tags,
		Concurrency: cfg.Concurrency,
		Strict:      true,
		Output:      cmd.OutOrStdout(),
	})

	if stats, err := metrics.Summary(); err == nil {
		rep.SetEndpoints(stats)
	}
	rep.Finish(time.Now())
	if cfg.ReportPath != "" {
		if err := rep.WriteFile(cfg.ReportPath); err != nil {
			return WrapExitError(ExitCommandError, "report", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "report written to %s\n", cfg.ReportPath)
	}

	if status != 0 {
		c := rep.Counts()
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed (%d product, %d setup)",
			c.Failed, c.Total, c.ProductDefects, c.SetupFailures))
	}
	return nil
}

// startTwin serves a seeded twin on a loopback port and points cfg at it.
func startTwin(ctx context.Context, cfg *config.Config) (func(context.Context) error, func(), error) {
	srv, err := newTwin(cfg)
	if err != nil {
		return nil, nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		srv.Close()
		return nil, nil, err
	}
	cfg.BaseURL = "http://" + ln.Addr().String()
	if !cfg.HasSetupAdmin() {
		if admin, err := credentials.Resolve(string(credentials.Admin)); err == nil {
			cfg.AdminUsername, cfg.AdminPassword = admin.Username, admin.Password
		}
	}

	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ServeTwin(serveCtx, srv, ln)
	}()

	shutdown := func() {
		cancel()
		<-done
		srv.Close()
	}
	reset := func(context.Context) error { return srv.Reset() }
	return reset, shutdown, nil
}

func splitPaths(raw string) []string {
	var paths []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
