package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuitang/nursery-suite/internal/config"
	"github.com/kuitang/nursery-suite/internal/obs"
	"github.com/kuitang/nursery-suite/internal/twin"
)

const shutdownTimeout = 10 * time.Second

// TwinOptions holds flags for the twin command.
type TwinOptions struct {
	*RootOptions
	Addr string
	Seed string
}

// NewTwinCommand creates the twin command.
func NewTwinCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TwinOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "twin",
		Short: "Serve an in-memory twin of the nursery application",
		Long: `Serve the nursery API under /api and its UI under /ui from memory.

The twin is seeded from --seed (YAML) or a built-in data set. POST /admin/reset
restores the seeded state.`,
		Example: `  nursery twin --addr :8080
  nursery twin --seed testdata/seed.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTwin(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default TWIN_LISTEN_ADDR or :8080)")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "seed data file (YAML)")

	return cmd
}

func runTwin(cmd *cobra.Command, opts *TwinOptions) error {
	cfg, err := config.Load(config.Overrides{ListenAddr: opts.Addr, SeedFile: opts.Seed})
	if err != nil {
		return WrapExitError(ExitCommandError, "configuration", err)
	}
	applyLogLevel(opts.RootOptions, cfg)

	srv, err := newTwin(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start twin", err)
	}
	defer srv.Close()

	ln, err := net.Listen("tcp", cfg.TwinListenAddr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "twin listening on %s\n", ln.Addr())

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ServeTwin(ctx, srv, ln); err != nil {
		return WrapExitError(ExitFailure, "twin server", err)
	}
	return nil
}

func newTwin(cfg *config.Config) (*twin.Server, error) {
	opts, err := twin.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return twin.New(opts)
}

// ServeTwin serves srv on ln until ctx is cancelled, then shuts down
// gracefully. It closes ln.
func ServeTwin(ctx context.Context, srv *twin.Server, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	obs.Pkg("cli").Info("twin_shutdown", "addr", ln.Addr().String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func applyLogLevel(opts *RootOptions, cfg *config.Config) {
	if opts != nil && opts.LogLevel != "" {
		return
	}
	obs.SetLevel(obs.ParseLevel(cfg.LogLevel))
}
