package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vnykmshr/elasticpool/internal/config"
	"github.com/vnykmshr/elasticpool/internal/testutil"
)

// executeCommand runs a fresh root command with args and returns captured
// stdout and stderr.
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := newRootCmd()
	out := testutil.NewMockWriter()
	errOut := testutil.NewMockWriter()
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetArgs(args)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	err = root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// fastPoolFlags keeps the manager ticking quickly in tests.
var fastPoolFlags = []string{"--max-workers", "4", "--min-workers", "1", "--queue-capacity", "8", "--manager-interval", "10ms"}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	testutil.AssertEqual(t, root.Use, "elasticpool")

	cmds := map[string]bool{}
	for _, c := range root.Commands() {
		cmds[c.Name()] = true
	}
	for _, want := range []string{"search", "demo", "status", "config"} {
		if !cmds[want] {
			t.Errorf("expected subcommand %q", want)
		}
	}

	for flag := range flagKeys {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("flag --%s is mapped but not defined", flag)
		}
	}
}

func TestConfigShow(t *testing.T) {
	stdout, _, err := executeCommand(t, "config", "show", "--max-workers", "12", "--manager-schedule", "@every 5s")
	testutil.AssertNoError(t, err)

	var cfg config.Config
	testutil.AssertNoError(t, yaml.Unmarshal([]byte(stdout), &cfg))
	testutil.AssertEqual(t, cfg.Pool.MaxWorkers, 12)
	testutil.AssertEqual(t, cfg.Pool.MinWorkers, 3)
	testutil.AssertEqual(t, cfg.Pool.ManagerSchedule, "@every 5s")
	testutil.AssertEqual(t, cfg.Pool.ManagerInterval, 3*time.Second)
	testutil.AssertEqual(t, cfg.Redis.KeyTTL, time.Minute)
}

func TestConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	testutil.AssertNoError(t, os.WriteFile(path, []byte("pool:\n  max_workers: 7\n  queue_capacity: 9\n"), 0o644))
	t.Setenv("ELASTICPOOL_POOL_QUEUE_CAPACITY", "11")

	stdout, _, err := executeCommand(t, "config", "show", "--config", path)
	testutil.AssertNoError(t, err)

	var cfg config.Config
	testutil.AssertNoError(t, yaml.Unmarshal([]byte(stdout), &cfg))
	testutil.AssertEqual(t, cfg.Pool.MaxWorkers, 7)
	testutil.AssertEqual(t, cfg.Pool.QueueCapacity, 11)
}

func TestConfigRejectsInvalid(t *testing.T) {
	_, _, err := executeCommand(t, "config", "show", "--min-workers", "50")
	testutil.AssertError(t, err)

	_, _, err = executeCommand(t, "config", "show", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	testutil.AssertError(t, err)
}

func TestConfigPath(t *testing.T) {
	stdout, _, err := executeCommand(t, "config", "path")
	testutil.AssertNoError(t, err)
	if !strings.HasSuffix(strings.TrimSpace(stdout), filepath.Join("elasticpool", "config.yaml")) {
		t.Errorf("unexpected path %q", stdout)
	}
}

func TestSearchCommand(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{"a.go", "b.txt", "sub/c.go", "sub/deeper/d.go", "other/e.md"} {
		path := filepath.Join(root, f)
		testutil.AssertNoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		testutil.AssertNoError(t, os.WriteFile(path, nil, 0o644))
	}
	results := filepath.Join(t.TempDir(), "results.txt")

	args := append([]string{"search", "--path", root, "--regex", `\.go$`, "--output", results}, fastPoolFlags...)
	stdout, _, err := executeCommand(t, args...)
	testutil.AssertNoError(t, err)
	if !strings.Contains(stdout, "[Time] Spent:") {
		t.Errorf("expected timing line, got %q", stdout)
	}

	data, err := os.ReadFile(results)
	testutil.AssertNoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	testutil.AssertEqual(t, len(lines), 3)
	for _, want := range []string{
		"Successfully matched the file: " + root + " : a.go",
		"Successfully matched the file: " + filepath.Join(root, "sub") + " : c.go",
		"Successfully matched the file: " + filepath.Join(root, "sub", "deeper") + " : d.go",
	} {
		if !strings.Contains(string(data), want+"\n") {
			t.Errorf("missing %q in output:\n%s", want, data)
		}
	}

	// The output file is appended to, not truncated.
	_, _, err = executeCommand(t, args...)
	testutil.AssertNoError(t, err)
	data, err = os.ReadFile(results)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, strings.Count(string(data), "\n"), 6)
}

func TestSearchToStdout(t *testing.T) {
	root := t.TempDir()
	testutil.AssertNoError(t, os.WriteFile(filepath.Join(root, "match.log"), nil, 0o644))

	args := append([]string{"search", "-p", root, "-r", `^match`}, fastPoolFlags...)
	stdout, _, err := executeCommand(t, args...)
	testutil.AssertNoError(t, err)
	if !strings.Contains(stdout, "Successfully matched the file: "+root+" : match.log\n") {
		t.Errorf("unexpected stdout %q", stdout)
	}
}

func TestSearchRequiresRegex(t *testing.T) {
	_, _, err := executeCommand(t, "search", "--path", t.TempDir())
	testutil.AssertError(t, err)

	_, _, err = executeCommand(t, "search", "--path", t.TempDir(), "--regex", "(unclosed")
	testutil.AssertError(t, err)
}

func TestDemoCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "demo.txt")
	args := append([]string{"demo", "--tasks", "12", "--task-duration", "5ms", "--output", out}, fastPoolFlags...)

	_, stderr, err := executeCommand(t, args...)
	testutil.AssertNoError(t, err)
	if !strings.Contains(stderr, "[Time] Spent:") {
		t.Errorf("expected timing line, got %q", stderr)
	}

	data, err := os.ReadFile(out)
	testutil.AssertNoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	testutil.AssertEqual(t, len(lines), 12)
	for _, line := range lines {
		if !strings.HasPrefix(line, "write from id ") {
			t.Errorf("unexpected line %q", line)
		}
	}
}

func TestStatusRequiresRedis(t *testing.T) {
	_, _, err := executeCommand(t, "status")
	if err == nil || !strings.Contains(err.Error(), "redis") {
		t.Errorf("expected redis error, got %v", err)
	}
}

func TestStatusWithRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	key := fmt.Sprintf("elasticpool-cmd-test-%d", time.Now().UnixNano())

	stdout, _, err := executeCommand(t, "status", "--redis-addr", addr, "--redis-key", key)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, strings.TrimSpace(stdout), "No pools reporting")
}

func TestRunServesMetrics(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cmd := &cobra.Command{}
	root := newRootCmd()
	root.AddCommand(cmd)
	root.SetErr(io.Discard)
	testutil.AssertNoError(t, root.PersistentFlags().Set("metrics-addr", "127.0.0.1:0"))

	a, err := newApp(cmd)
	testutil.AssertNoError(t, err)
	defer a.close("")

	pool, err := a.newPool(nil)
	testutil.AssertNoError(t, err)
	defer pool.Shutdown()

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	err = a.run(ctx, func(ctx context.Context) error {
		addr := <-a.metricsAddr
		resp, err := http.Get("http://" + addr.String() + "/metrics")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if !strings.Contains(string(body), "elasticpool_workerpool_live_workers") {
			return fmt.Errorf("pool gauges missing from /metrics")
		}
		if !strings.Contains(string(body), "go_goroutines") {
			return fmt.Errorf("runtime collectors missing from /metrics")
		}
		return nil
	})
	testutil.AssertNoError(t, err)
}
