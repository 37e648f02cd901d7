package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/twwat/imxup-sub002/internal/driver"
	"github.com/twwat/imxup-sub002/internal/engine"
	"github.com/twwat/imxup-sub002/internal/ipc"
	"github.com/twwat/imxup-sub002/internal/logging"
	"github.com/twwat/imxup-sub002/internal/queue"
	"github.com/twwat/imxup-sub002/internal/scanner"
	"github.com/twwat/imxup-sub002/internal/testsupport"
	"github.com/twwat/imxup-sub002/internal/uploader"
)

type noopScans struct{}

func (noopScans) Enqueue(string) {}

type cliTestEnv struct {
	mgr        *queue.Manager
	socketPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	// Isolate the CLI's config lookup from the host environment: the root
	// command loads ~/.config/imxup/config.toml and requires an API key.
	t.Setenv("HOME", t.TempDir())
	t.Setenv("IMXUP_API_KEY", "test")

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := queue.NewManager(st, noopScans{}, cfg, logging.NewNop())
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("manager start: %v", err)
	}
	t.Cleanup(func() { mgr.Stop(context.Background()) })

	pool, err := uploader.NewPool(uploader.Options{
		Endpoint:       "http://127.0.0.1:1",
		APIKey:         "test",
		ConnectTimeout: time.Second,
		ReadTimeout:    time.Second,
	}, 1)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	drv := driver.New(mgr, st, engine.NewSlotPool(pool), nil, cfg, logging.NewNop())

	// Unix socket paths have a short length cap, so avoid t.TempDir here.
	dir, err := os.MkdirTemp("", "imx")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	socketPath := filepath.Join(dir, "ctl.sock")

	srv, err := ipc.NewServer(context.Background(), socketPath, mgr, drv, st, logging.NewNop())
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	return &cliTestEnv{mgr: mgr, socketPath: socketPath}
}

func runCLI(t *testing.T, args []string, socket string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--socket", socket}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestCLIAddListRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()

	out, _, err := runCLI(t, []string{"add", dir, "--name", "My Gallery"}, env.socketPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "My Gallery")

	out, _, err = runCLI(t, []string{"list"}, env.socketPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "My Gallery")
	requireContains(t, out, "validating")

	out, _, err = runCLI(t, []string{"remove", dir}, env.socketPath)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	requireContains(t, out, "Removed 1 galleries")

	out, _, err = runCLI(t, []string{"list"}, env.socketPath)
	if err != nil {
		t.Fatalf("list after remove: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestCLIListRejectsUnknownStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"list", "--status", "bogus"}, env.socketPath)
	if err == nil || !strings.Contains(err.Error(), "unknown status") {
		t.Fatalf("err = %v", err)
	}
}

func TestCLIStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()
	if _, _, err := runCLI(t, []string{"add", dir}, env.socketPath); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.socketPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "== Queue ==")
	requireContains(t, out, "validating")
}

func TestCLITabs(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"tabs", "create", "Archive"}, env.socketPath)
	if err != nil {
		t.Fatalf("tabs create: %v", err)
	}
	requireContains(t, out, "Archive")

	out, _, err = runCLI(t, []string{"tabs", "list"}, env.socketPath)
	if err != nil {
		t.Fatalf("tabs list: %v", err)
	}
	requireContains(t, out, "Default")
	requireContains(t, out, "Archive")

	if _, _, err := runCLI(t, []string{"tabs", "delete", "1"}, env.socketPath); err == nil {
		t.Fatal("deleting the system tab succeeded")
	}
}

func TestCLIStopQueuedItem(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()
	testsupport.WriteImageFolder(t, dir, 2, 8, 8)

	if _, _, err := runCLI(t, []string{"add", dir}, env.socketPath); err != nil {
		t.Fatalf("add: %v", err)
	}
	path, _ := filepath.Abs(dir)
	env.mgr.ScanSucceeded(path, &scanner.Result{
		Files:       []scanner.FileInfo{{Name: "img_001.png", Size: 64}, {Name: "img_002.png", Size: 64}},
		TotalImages: 2,
		TotalBytes:  128,
		WidthAgg:    8,
		HeightAgg:   8,
	})

	out, _, err := runCLI(t, []string{"start", dir}, env.socketPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Started 1 galleries")

	if _, _, err := runCLI(t, []string{"stop", dir}, env.socketPath); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestConfigInit(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, filepath.Join(tmp, "none.sock"))
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
}
