package sync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatlist/internal/bus"
	"github.com/matheus3301/chatlist/internal/chatlist"
	"github.com/matheus3301/chatlist/internal/remote"
	"github.com/matheus3301/chatlist/internal/status"
	"github.com/matheus3301/chatlist/internal/store"
	"go.uber.org/zap"
)

func testRemote(t *testing.T) *remote.Local {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return remote.NewLocal(db, nil)
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func startEngine(t *testing.T, svc remote.Service, userID string) (*Engine, *chatlist.Reconciler) {
	t.Helper()
	list := chatlist.New(chatlist.Options{CurrentUserID: userID}, nil)
	logger, _ := zap.NewDevelopment()
	e := NewEngine(svc, list, bus.New(), nil, logger)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Stop)
	return e, list
}

func TestEngineAppliesBacklogAndLiveMessages(t *testing.T) {
	ctx := context.Background()
	svc := testRemote(t)
	g, err := svc.CreateGroup(ctx, "Eng", []string{"u1", "u2"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.PushMessage(ctx, g.ID, remote.Record{SenderID: "u2", SenderName: "Bob", Text: "backlog", Timestamp: 100}); err != nil {
		t.Fatal(err)
	}

	_, list := startEngine(t, svc, "u1")

	waitUntil(t, "backlog applied", func() bool {
		e, ok := list.Entry(g.ID)
		return ok && e.LastMessageAt == 100
	})
	e, _ := list.Entry(g.ID)
	if e.GroupName != "Eng" || e.UnreadCount != 1 || e.LastMessageSender != "Bob" {
		t.Errorf("entry = %+v", e)
	}

	if _, err := svc.PushMessage(ctx, g.ID, remote.Record{SenderID: "u1", SenderName: "Me", Text: "reply", Timestamp: 200}); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, "own message applied", func() bool {
		e, _ := list.Entry(g.ID)
		return e.LastMessageAt == 200
	})
	e, _ = list.Entry(g.ID)
	if e.UnreadCount != 1 {
		t.Errorf("unread = %d after own message, want 1", e.UnreadCount)
	}
}

func TestEngineFollowsRoster(t *testing.T) {
	ctx := context.Background()
	svc := testRemote(t)
	a, _ := svc.CreateGroup(ctx, "A", []string{"u1"})
	b, _ := svc.CreateGroup(ctx, "B", []string{"u1"})

	_, list := startEngine(t, svc, "u1")
	waitUntil(t, "roster applied", func() bool { return list.Len() == 2 })

	if err := svc.RenameGroup(ctx, a.ID, "Alpha"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, "rename applied", func() bool {
		e, _ := list.Entry(a.ID)
		return e.GroupName == "Alpha"
	})

	if err := svc.RemoveMember(ctx, b.ID, "u1"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, "removal applied", func() bool { return list.Len() == 1 })

	// Messages to a group the user left must not bring it back.
	if _, err := svc.PushMessage(ctx, b.ID, remote.Record{Text: "ghost", Timestamp: 500}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, ok := list.Entry(b.ID); ok {
		t.Error("left group revived by a late message")
	}
}

func TestEngineMentionForcesUnreadOnce(t *testing.T) {
	ctx := context.Background()
	svc := testRemote(t)
	g, _ := svc.CreateGroup(ctx, "Eng", []string{"u1", "u2"})

	_, list := startEngine(t, svc, "u1")
	waitUntil(t, "roster applied", func() bool { return list.Len() == 1 })

	if _, err := svc.PushMessage(ctx, g.ID, remote.Record{SenderID: "u2", Text: "newer", Timestamp: 300}); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, "message applied", func() bool {
		e, _ := list.Entry(g.ID)
		return e.LastMessageAt == 300
	})

	// Empty, but it mentions u1.
	if _, err := svc.PushMessage(ctx, g.ID, remote.Record{SenderID: "u2", Timestamp: 400, Mentions: []string{"u1"}}); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, "mention applied", func() bool {
		e, _ := list.Entry(g.ID)
		return e.UnreadCount == 2
	})
	e, _ := list.Entry(g.ID)
	if e.LastMessageText != chatlist.DefaultAttachmentText {
		t.Errorf("text = %q, want placeholder", e.LastMessageText)
	}
}

func TestEngineStopPreventsRevival(t *testing.T) {
	ctx := context.Background()
	svc := testRemote(t)
	g, _ := svc.CreateGroup(ctx, "Eng", []string{"u1", "u2"})

	e, list := startEngine(t, svc, "u1")
	waitUntil(t, "roster applied", func() bool { return list.Len() == 1 })

	e.Stop()
	list.Clear()

	if _, err := svc.PushMessage(ctx, g.ID, remote.Record{SenderID: "u2", Text: "late", Timestamp: 900}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if list.Len() != 0 {
		t.Errorf("Len() = %d after stop+clear, want 0", list.Len())
	}
	e.Stop() // idempotent
}

func TestEngineReadyAfterFirstRoster(t *testing.T) {
	svc := testRemote(t)
	m := status.NewMachine(nil)
	_ = m.Transition(status.Connecting)
	_ = m.Transition(status.Syncing)

	list := chatlist.New(chatlist.Options{CurrentUserID: "u1"}, nil)
	e := NewEngine(svc, list, bus.New(), m, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	waitUntil(t, "READY", func() bool { return m.Current() == status.Ready })
}

// failingRemote rejects roster subscriptions.
type failingRemote struct{ remote.Service }

func (failingRemote) SubscribeRoster(string, func([]remote.Group)) (func(), error) {
	return nil, errors.New("unavailable")
}

func TestEngineStartError(t *testing.T) {
	list := chatlist.New(chatlist.Options{CurrentUserID: "u1"}, nil)
	e := NewEngine(failingRemote{}, list, nil, nil, nil)
	if err := e.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail when the roster cannot be subscribed")
	}
	e.Stop()
}
