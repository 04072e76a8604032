package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate once.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != SchemaVersion {
		t.Errorf("version = %d, want %d", result.Version, SchemaVersion)
	}
}

// TestMigrateSchemaHasRequiredColumns verifies the columns the remote store
// and the outbox depend on.
func TestMigrateSchemaHasRequiredColumns(t *testing.T) {
	db := testDB(t)

	requiredOps := []struct {
		desc  string
		query string
		args  []any
	}{
		{"insert group", "INSERT INTO chat_groups (id, name, created_at) VALUES (?, ?, ?)", []any{"g", "Eng", 1}},
		{"insert member", "INSERT INTO members (group_id, user_id) VALUES (?, ?)", []any{"g", "u1"}},
		{"insert message", "INSERT INTO messages (id, group_id, sender_id, sender_name, text, mentions, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)", []any{"m1", "g", "u1", "Alice", "hi", "", 1000}},
		{"queue outbox", "INSERT INTO outbox (client_msg_id, group_id, body, status) VALUES (?, ?, ?, ?)", []any{"cid", "g", "text", "queued"}},
	}
	for _, op := range requiredOps {
		t.Run(op.desc, func(t *testing.T) {
			if _, err := db.Exec(op.query, op.args...); err != nil {
				t.Fatalf("%s failed: %v", op.desc, err)
			}
		})
	}
}

func TestGroupLifecycle(t *testing.T) {
	db := testDB(t)

	if err := db.CreateGroup(&Group{ID: "g1", Name: "Eng"}, []string{"u1", "u2"}); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateGroup(&Group{ID: "g2", Name: "Ops"}, []string{"u2"}); err != nil {
		t.Fatal(err)
	}

	roster, err := db.GroupsForUser("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(roster) != 1 || roster[0].ID != "g1" {
		t.Fatalf("u1 roster = %+v, want [g1]", roster)
	}

	if err := db.RenameGroup("g1", "Engineering"); err != nil {
		t.Fatal(err)
	}
	g, err := db.GetGroup("g1")
	if err != nil {
		t.Fatal(err)
	}
	if g == nil || g.Name != "Engineering" {
		t.Errorf("group = %+v, want name Engineering", g)
	}

	if err := db.AddMember("g2", "u1"); err != nil {
		t.Fatal(err)
	}
	roster, _ = db.GroupsForUser("u1")
	if len(roster) != 2 {
		t.Errorf("u1 roster has %d groups, want 2", len(roster))
	}

	if err := db.RemoveMember("g1", "u1"); err != nil {
		t.Fatal(err)
	}
	ok, err := db.IsMember("g1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("u1 still a member of g1")
	}

	if err := db.DeleteGroup("g2"); err != nil {
		t.Fatal(err)
	}
	if g, _ := db.GetGroup("g2"); g != nil {
		t.Error("g2 still exists after delete")
	}
	if members, _ := db.Members("g2"); len(members) != 0 {
		t.Errorf("members of deleted group = %v, want none (cascade)", members)
	}
}

func TestMissingGroupMutations(t *testing.T) {
	db := testDB(t)

	if err := db.RenameGroup("nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RenameGroup err = %v, want ErrNotFound", err)
	}
	if err := db.DeleteGroup("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteGroup err = %v, want ErrNotFound", err)
	}
	if g, err := db.GetGroup("nope"); err != nil || g != nil {
		t.Errorf("GetGroup = %v, %v; want nil, nil", g, err)
	}
}

func TestMessagesOrderedAndIdempotent(t *testing.T) {
	db := testDB(t)
	if err := db.CreateGroup(&Group{ID: "g", Name: "G"}, nil); err != nil {
		t.Fatal(err)
	}

	msgs := []*Message{
		{ID: "b", GroupID: "g", Text: "second", Timestamp: 2000},
		{ID: "a", GroupID: "g", Text: "first", Timestamp: 1000, Mentions: []string{"u1", "u3"}},
	}
	for _, m := range msgs {
		if err := db.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.InsertMessage(&Message{ID: "a", GroupID: "g", Text: "dup", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListMessages("g", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].ID != "a" || got[0].Text != "first" {
		t.Errorf("first = %+v, want id a text first", got[0])
	}
	if len(got[0].Mentions) != 2 || got[0].Mentions[1] != "u3" {
		t.Errorf("mentions = %v, want [u1 u3]", got[0].Mentions)
	}
	if got[1].Mentions != nil {
		t.Errorf("mentions = %v, want nil", got[1].Mentions)
	}
}

func TestMessageRequiresGroup(t *testing.T) {
	db := testDB(t)
	if err := db.InsertMessage(&Message{ID: "x", GroupID: "missing", Timestamp: 1}); err == nil {
		t.Error("InsertMessage into missing group should fail (foreign key)")
	}
}

func TestOutbox(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox(&OutboxEntry{ClientMsgID: "client1", GroupID: "g", SenderID: "u1", Body: "test msg"}); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	if pending[0].ClientMsgID != "client1" || pending[0].SenderID != "u1" {
		t.Errorf("entry = %+v", pending[0])
	}

	if err := db.MarkOutboxSending("client1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent("client1", "server1"); err != nil {
		t.Fatal(err)
	}

	pending, err = db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending after sent, want 0", len(pending))
	}

	e, err := db.GetOutbox("client1")
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || e.Status != "sent" || e.ServerMsgID != "server1" {
		t.Errorf("entry = %+v, want sent/server1", e)
	}

	if err := db.MarkOutboxFailed("unknown", "boom"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkOutboxFailed(unknown) err = %v, want ErrNotFound", err)
	}
}

func TestDuplicateClientMsgIDRejected(t *testing.T) {
	db := testDB(t)
	e := &OutboxEntry{ClientMsgID: "c", GroupID: "g", Body: "x"}
	if err := db.QueueOutbox(e); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox(e); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second QueueOutbox error = %v, want ErrDuplicate", err)
	}
}
