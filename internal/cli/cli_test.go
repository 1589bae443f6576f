package cli

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/nursery-suite/internal/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "nursery", cmd.Use)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "twin"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"base-url", "features", "tags", "format", "concurrency", "report", "headed", "twin"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "flag --%s", name)
	}
	assert.Equal(t, "false", runCmd.Flags().Lookup("twin").DefValue)
	assert.Equal(t, "0", runCmd.Flags().Lookup("concurrency").DefValue)
}

func TestTwinCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	twinCmd, _, err := cmd.Find([]string{"twin"})
	require.NoError(t, err)
	assert.NotNil(t, twinCmd.Flags().Lookup("addr"))
	assert.NotNil(t, twinCmd.Flags().Lookup("seed"))
}

func TestSplitPaths(t *testing.T) {
	assert.Equal(t, []string{"features/a.feature", "features/b"}, splitPaths(" features/a.feature, ,features/b "))
	assert.Nil(t, splitPaths(""))
}

// isolateEnv clears the variables config.Load reads.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"NURSERY_BASE_URL", "API_BASE_URL", "NURSERY_FEATURES", "NURSERY_TAGS", "NURSERY_FORMAT",
		"NURSERY_CONCURRENCY", "NURSERY_REPORT_PATH", "NURSERY_REQUEST_TIMEOUT", "NURSERY_REQUESTS_PER_SECOND",
		"ADMIN_USERNAME", "ADMIN_PASSWORD", "ARTIFACTS_BUCKET", "TWIN_SEED_FILE", "TWIN_LISTEN_ADDR",
		"TWIN_RATE_LIMIT_RPS", "TWIN_RATE_LIMIT_BURST",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("NURSERY_HEADLESS", "true")
	t.Setenv("NURSERY_ARTIFACTS_DIR", t.TempDir())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const passingFeature = `Feature: Smoke

  Scenario: Listing sales as a user
    Given I am authenticated to the API as "user"
    When I request all sales
    Then the response status code should be 200
`

const failingFeature = `Feature: Smoke

  Scenario: Expecting a server error
    Given I am authenticated to the API as "user"
    When I request all sales
    Then the response status code should be 500
`

func writeFeature(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "smoke.feature")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRun_AgainstTwinWritesReport(t *testing.T) {
	isolateEnv(t)
	feature := writeFeature(t, passingFeature)
	reportPath := filepath.Join(t.TempDir(), "out", "report.md")

	_, err := execute(t, "run", "--twin", "--features", feature, "--format", "progress", "--report", reportPath)
	require.NoError(t, err)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Listing sales as a user")
	assert.Contains(t, string(data), "/api/sales")
}

func TestRun_FailingScenarioExitsWithFailure(t *testing.T) {
	isolateEnv(t)
	feature := writeFeature(t, failingFeature)

	_, err := execute(t, "run", "--twin", "--features", feature, "--format", "progress")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.Contains(t, err.Error(), "1 of 1 scenarios failed (1 product, 0 setup)")
}

func TestRun_InvalidConfiguration(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "run", "--base-url", "ftp://nursery.invalid")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, err.Error(), "NURSERY_BASE_URL must start with http")
}

func TestRun_TwinRejectsParallelScenarios(t *testing.T) {
	isolateEnv(t)
	feature := writeFeature(t, passingFeature)

	_, err := execute(t, "run", "--twin", "--concurrency", "2", "--features", feature, "--format", "progress")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, err.Error(), "--twin requires concurrency 1")

	t.Setenv("NURSERY_CONCURRENCY", "4")
	_, err = execute(t, "run", "--twin", "--features", feature, "--format", "progress")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

func TestServeTwin_ShutsDownOnCancel(t *testing.T) {
	isolateEnv(t)
	cfg, err := config.Load(config.Overrides{})
	require.NoError(t, err)
	srv, err := newTwin(cfg)
	require.NoError(t, err)
	defer srv.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeTwin(ctx, srv, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("twin did not shut down")
	}
}
