package remote

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chatlist/internal/store"
)

func testLocal(t *testing.T) *Local {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "remote.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewLocal(db, nil)
}

// collector gathers callback values from a background goroutine.
type collector[T any] struct {
	mu    sync.Mutex
	items []T
	ch    chan struct{}
}

func newCollector[T any]() *collector[T] {
	return &collector[T]{ch: make(chan struct{}, 128)}
}

func (c *collector[T]) add(v T) {
	c.mu.Lock()
	c.items = append(c.items, v)
	c.mu.Unlock()
	select {
	case c.ch <- struct{}{}:
	default:
	}
}

func (c *collector[T]) waitFor(t *testing.T, n int) []T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.items) >= n {
			out := append([]T(nil), c.items...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.ch:
		case <-deadline:
			t.Fatalf("timeout waiting for %d deliveries", n)
		}
	}
}

func TestRosterSubscription(t *testing.T) {
	ctx := context.Background()
	s := testLocal(t)

	rosters := newCollector[[]Group]()
	unsub, err := s.SubscribeRoster("u1", rosters.add)
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	got := rosters.waitFor(t, 1)
	if len(got[0]) != 0 {
		t.Fatalf("initial roster = %v, want empty", got[0])
	}

	g, err := s.CreateGroup(ctx, " Eng ", []string{"u1", "u2"})
	if err != nil {
		t.Fatal(err)
	}
	got = rosters.waitFor(t, 2)
	if len(got[1]) != 1 || got[1][0].ID != g.ID || got[1][0].Name != "Eng" {
		t.Fatalf("roster after create = %v", got[1])
	}

	if err := s.RenameGroup(ctx, g.ID, "Engineering"); err != nil {
		t.Fatal(err)
	}
	got = rosters.waitFor(t, 3)
	if got[2][0].Name != "Engineering" {
		t.Errorf("roster after rename = %v", got[2])
	}

	if err := s.RemoveMember(ctx, g.ID, "u1"); err != nil {
		t.Fatal(err)
	}
	got = rosters.waitFor(t, 4)
	if len(got[3]) != 0 {
		t.Errorf("roster after removal = %v, want empty", got[3])
	}
}

func TestMessageSubscriptionDeliversBacklogThenLive(t *testing.T) {
	ctx := context.Background()
	s := testLocal(t)
	g, err := s.CreateGroup(ctx, "Eng", []string{"u1", "u2"})
	if err != nil {
		t.Fatal(err)
	}

	id1, err := s.PushMessage(ctx, g.ID, Record{SenderID: "u2", Text: "old", Timestamp: 100})
	if err != nil {
		t.Fatal(err)
	}
	if id1 == "" {
		t.Fatal("PushMessage returned empty id")
	}

	recs := newCollector[Record]()
	unsub, err := s.SubscribeMessages(g.ID, recs.add)
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	got := recs.waitFor(t, 1)
	if got[0].ID != id1 || got[0].Text != "old" || got[0].GroupID != g.ID {
		t.Errorf("backlog record = %+v", got[0])
	}

	if _, err := s.PushMessage(ctx, g.ID, Record{SenderID: "u1", Text: "new", Mentions: []string{"u2"}}); err != nil {
		t.Fatal(err)
	}
	got = recs.waitFor(t, 2)
	live := got[len(got)-1]
	if live.Text != "new" || live.Timestamp <= 0 {
		t.Errorf("live record = %+v, want text new with stamped timestamp", live)
	}
	if !live.Mentioning("u2") || live.Mentioning("u1") {
		t.Errorf("mentions = %v", live.Mentions)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := testLocal(t)
	g, _ := s.CreateGroup(ctx, "Eng", []string{"u1"})

	recs := newCollector[Record]()
	unsub, err := s.SubscribeMessages(g.ID, recs.add)
	if err != nil {
		t.Fatal(err)
	}
	unsub()
	unsub()

	if _, err := s.PushMessage(ctx, g.ID, Record{SenderID: "u1", Text: "late"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	recs.mu.Lock()
	defer recs.mu.Unlock()
	if len(recs.items) != 0 {
		t.Errorf("got %d deliveries after unsubscribe", len(recs.items))
	}
}

func TestPushErrors(t *testing.T) {
	ctx := context.Background()
	s := testLocal(t)

	if _, err := s.PushMessage(ctx, "missing", Record{Text: "x"}); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("push to missing group err = %v, want ErrUnknownGroup", err)
	}

	g, _ := s.CreateGroup(ctx, "Eng", []string{"u1"})
	if _, err := s.PushMessage(ctx, g.ID, Record{SenderID: "intruder", Text: "x"}); !errors.Is(err, ErrNotMember) {
		t.Errorf("push by non-member err = %v, want ErrNotMember", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.PushMessage(cancelled, g.ID, Record{SenderID: "u1", Text: "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("push with cancelled ctx err = %v", err)
	}
}

func TestServerTimestampsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	s := testLocal(t)
	s.now = func() int64 { return 1000 } // every push lands in the same millisecond

	g, _ := s.CreateGroup(ctx, "Eng", []string{"u1"})
	recs := newCollector[Record]()
	unsub, err := s.SubscribeMessages(g.ID, recs.add)
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	for range 3 {
		if _, err := s.PushMessage(ctx, g.ID, Record{SenderID: "u1", Text: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	got := recs.waitFor(t, 3)
	for i, r := range got {
		if want := int64(1000 + i); r.Timestamp != want {
			t.Errorf("record %d timestamp = %d, want %d", i, r.Timestamp, want)
		}
	}

	// Caller-supplied timestamps are kept as given.
	if _, err := s.PushMessage(ctx, g.ID, Record{SenderID: "u1", Text: "y", Timestamp: 7}); err != nil {
		t.Fatal(err)
	}
	if r := recs.waitFor(t, 4)[3]; r.Timestamp != 7 {
		t.Errorf("explicit timestamp = %d, want 7", r.Timestamp)
	}
}

func TestGroupAdminErrors(t *testing.T) {
	ctx := context.Background()
	s := testLocal(t)

	if _, err := s.SubscribeMessages("missing", func(Record) {}); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("SubscribeMessages err = %v, want ErrUnknownGroup", err)
	}
	if err := s.RenameGroup(ctx, "missing", "x"); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("RenameGroup err = %v, want ErrUnknownGroup", err)
	}
	if err := s.DeleteGroup(ctx, "missing"); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("DeleteGroup err = %v, want ErrUnknownGroup", err)
	}
	if err := s.AddMember(ctx, "missing", "u1"); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("AddMember err = %v, want ErrUnknownGroup", err)
	}
	g, _ := s.CreateGroup(ctx, "Eng", nil)
	if err := s.RemoveMember(ctx, g.ID, "u9"); !errors.Is(err, ErrNotMember) {
		t.Errorf("RemoveMember err = %v, want ErrNotMember", err)
	}
	if _, err := s.SubscribeRoster("", func([]Group) {}); err == nil {
		t.Error("SubscribeRoster with empty user id should fail")
	}
}

func TestDeleteGroupRefreshesRoster(t *testing.T) {
	ctx := context.Background()
	s := testLocal(t)
	g, _ := s.CreateGroup(ctx, "Eng", []string{"u1"})

	rosters := newCollector[[]Group]()
	unsub, _ := s.SubscribeRoster("u1", rosters.add)
	defer unsub()
	if got := rosters.waitFor(t, 1); len(got[0]) != 1 {
		t.Fatalf("initial roster = %v", got[0])
	}

	if err := s.DeleteGroup(ctx, g.ID); err != nil {
		t.Fatal(err)
	}
	got := rosters.waitFor(t, 2)
	if len(got[1]) != 0 {
		t.Errorf("roster after delete = %v, want empty", got[1])
	}
}
