package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatlist/internal/api"
	"github.com/matheus3301/chatlist/internal/bus"
	"github.com/matheus3301/chatlist/internal/chatlist"
	"github.com/matheus3301/chatlist/internal/config"
	"github.com/matheus3301/chatlist/internal/lock"
	"github.com/matheus3301/chatlist/internal/session"
	"github.com/matheus3301/chatlist/internal/status"
	intsync "github.com/matheus3301/chatlist/internal/sync"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

// testHome points CHATLIST_HOME at a short temp dir, since Unix socket paths
// are limited to 104 chars on macOS.
func testHome(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "chatlist-d-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv(session.HomeEnv, dir)
	return dir
}

func dialSession(t *testing.T, name string) *api.Client {
	t.Helper()
	conn, err := api.Dial(session.SocketPath(name))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return api.NewClient(conn)
}

func waitState(t *testing.T, c *api.Client, want status.State) api.Status {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var st api.Status
	for time.Now().Before(deadline) {
		var err error
		st, err = c.Status(context.Background())
		if err == nil && st.State == string(want) {
			return st
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("status = %+v, want %s", st, want)
	return st
}

func TestDaemonStartsSignedOut(t *testing.T) {
	testHome(t)

	app := fxtest.New(t, Module(Params{SessionName: "test"}))
	app.RequireStart()
	defer app.RequireStop()

	client := dialSession(t, "test")
	st := waitState(t, client, status.SignedOut)
	if st.Session != "test" {
		t.Errorf("session = %q, want test", st.Session)
	}

	// Signing in through the API brings the list up.
	g, err := client.CreateGroup(context.Background(), "Eng", []string{"u1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.SignIn(context.Background(), "u1", "Alice"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	waitState(t, client, status.Ready)

	entries, err := client.ListEntries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].GroupID != g.ID {
		t.Errorf("entries = %+v", entries)
	}
}

func TestDaemonAutoSignIn(t *testing.T) {
	home := testHome(t)

	cfg := config.Default()
	cfg.Profile = config.Profile{UserID: "u1", DisplayName: "Alice"}
	if err := config.Save(filepath.Join(home, "config.toml"), cfg); err != nil {
		t.Fatal(err)
	}

	app := fxtest.New(t, Module(Params{SessionName: "auto"}))
	app.RequireStart()
	defer app.RequireStop()

	st := waitState(t, dialSession(t, "auto"), status.Ready)
	if st.UserID != "u1" || st.DisplayName != "Alice" {
		t.Errorf("status = %+v", st)
	}
}

func TestDaemonHoldsSessionLock(t *testing.T) {
	testHome(t)

	app := fxtest.New(t, Module(Params{SessionName: "locked"}))
	app.RequireStart()

	_, err := lock.Acquire(session.LockPath("locked"), "locked")
	var held *lock.LockHeldError
	if !errors.As(err, &held) {
		t.Fatalf("Acquire() while daemon runs = %v, want LockHeldError", err)
	}
	if held.PID != os.Getpid() {
		t.Errorf("holder PID = %d, want %d", held.PID, os.Getpid())
	}

	app.RequireStop()

	l, err := lock.Acquire(session.LockPath("locked"), "locked")
	if err != nil {
		t.Fatalf("Acquire() after stop error = %v", err)
	}
	_ = l.Release()

	if _, err := os.Stat(session.SocketPath("locked")); !os.IsNotExist(err) {
		t.Errorf("socket left behind after stop: %v", err)
	}
}

// TestNewServerUsesSocketOverride verifies NewServer honours Params.SocketPath.
func TestNewServerUsesSocketOverride(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "chatlist-fx-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	socketPath := filepath.Join(tmpDir, "d.sock")

	p := Params{SessionName: "fxtest", SocketPath: socketPath}
	srv, err := NewServer(
		p,
		zap.NewNop(),
		api.NewChatListService(nil, nil, nil),
		api.NewSessionService("fxtest", status.NewMachine(nil), nil, nil),
		api.NewGroupService(nil),
		api.NewMessageService(nil, nil),
	)
	if err != nil {
		t.Fatalf("NewServer() with Params failed: %v", err)
	}

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permission = %o, want 0600", perm)
	}

	srv.Stop(context.Background())
}

// startWatch runs WatchSnapshots in the background and returns a channel that
// fires on the first snapshot and one that carries the watch result.
func startWatch(t *testing.T, c *api.Client) (<-chan struct{}, <-chan error) {
	t.Helper()
	first := make(chan struct{})
	done := make(chan error, 1)
	var seen bool
	go func() {
		done <- c.WatchSnapshots(context.Background(), func(string, []chatlist.Entry) {
			if !seen {
				seen = true
				close(first)
			}
		})
	}()
	return first, done
}

func TestDaemonStopsWithWatcherAttached(t *testing.T) {
	home := testHome(t)

	cfg := config.Default()
	cfg.Profile = config.Profile{UserID: "u1"}
	if err := config.Save(filepath.Join(home, "config.toml"), cfg); err != nil {
		t.Fatal(err)
	}

	app := fxtest.New(t, Module(Params{SessionName: "watched"}))
	app.RequireStart()

	client := dialSession(t, "watched")
	waitState(t, client, status.Ready)

	first, done := startWatch(t, client)
	select {
	case <-first:
	case <-time.After(3 * time.Second):
		t.Fatal("no snapshot from WatchSnapshots")
	}

	start := time.Now()
	app.RequireStop()
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("stop took %v with a watcher attached", elapsed)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("WatchSnapshots did not return after stop")
	}

	l, err := lock.Acquire(session.LockPath("watched"), "watched")
	if err != nil {
		t.Fatalf("lock not released after stop: %v", err)
	}
	_ = l.Release()
}

func TestServerStopCancelsStreamsAfterDeadline(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "chatlist-fx-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	socketPath := filepath.Join(tmpDir, "d.sock")

	b := bus.New()
	machine := status.NewMachine(b)
	runner := intsync.NewRunner(nil, b, machine, chatlist.Options{}, nil)
	srv, err := NewServer(
		Params{SessionName: "fxtest", SocketPath: socketPath},
		zap.NewNop(),
		api.NewChatListService(runner, b, nil),
		api.NewSessionService("fxtest", machine, runner, nil),
		api.NewGroupService(nil),
		api.NewMessageService(nil, runner),
	)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()

	conn, err := api.Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	// Signed out, so the stream only sees what is published.
	first, done := startWatch(t, api.NewClient(conn))
	deadline := time.After(3 * time.Second)
	for waiting := true; waiting; {
		b.Publish(bus.NewEvent(bus.KindSnapshot, intsync.Snapshot{UserID: "u1"}))
		select {
		case <-first:
			waiting = false
		case <-deadline:
			t.Fatal("stream never delivered a snapshot")
		case <-time.After(20 * time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	srv.Stop(ctx)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop() took %v, want it bounded by ctx", elapsed)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("WatchSnapshots did not return after Stop")
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket left behind after Stop: %v", err)
	}
}
