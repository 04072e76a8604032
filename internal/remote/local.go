package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatlist/internal/store"
	"go.uber.org/zap"
)

// Local implements Service on top of the SQLite store, fanning changes out to
// in-process listeners. It stands in for the hosted realtime database.
type Local struct {
	db     *store.DB
	logger *zap.Logger
	now    func() int64

	mu         sync.Mutex
	next       int
	lastStamp  int64 // last server-issued timestamp
	rosterSubs map[string]map[int]*sub // by user id
	msgSubs    map[string]map[int]*sub // by group id
}

// sub is one live subscription; exactly one of roster or msg is set.
type sub struct {
	l      *listener
	roster func([]Group)
	msg    func(Record)
}

var _ Service = (*Local)(nil)

// NewLocal creates a local realtime store backed by db.
func NewLocal(db *store.DB, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		db:         db,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
		rosterSubs: make(map[string]map[int]*sub),
		msgSubs:    make(map[string]map[int]*sub),
	}
}

func (s *Local) register(subs map[string]map[int]*sub, key string, sb *sub) func() {
	sb.l = newListener()
	s.mu.Lock()
	id := s.next
	s.next++
	if subs[key] == nil {
		subs[key] = make(map[int]*sub)
	}
	subs[key][id] = sb
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(subs[key], id)
			if len(subs[key]) == 0 {
				delete(subs, key)
			}
			s.mu.Unlock()
			sb.l.close()
		})
	}
}

func (s *Local) subscribers(subs map[string]map[int]*sub, key string) []*sub {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*sub, 0, len(subs[key]))
	for _, sb := range subs[key] {
		out = append(out, sb)
	}
	return out
}

// SubscribeRoster implements Service.
func (s *Local) SubscribeRoster(userID string, fn func([]Group)) (func(), error) {
	if userID == "" {
		return nil, errors.New("subscribe roster: empty user id")
	}
	sb := &sub{roster: fn}
	unsub := s.register(s.rosterSubs, userID, sb)
	sb.l.post(s.rosterDelivery(userID, fn))
	return unsub, nil
}

// rosterDelivery reads the roster at delivery time so a listener always sees
// the latest state.
func (s *Local) rosterDelivery(userID string, fn func([]Group)) func() {
	return func() {
		groups, err := s.db.GroupsForUser(userID)
		if err != nil {
			s.logger.Error("load roster", zap.Error(err), zap.String("user_id", userID))
			return
		}
		out := make([]Group, 0, len(groups))
		for _, g := range groups {
			out = append(out, Group{ID: g.ID, Name: g.Name})
		}
		fn(out)
	}
}

func (s *Local) notifyRoster(userIDs ...string) {
	for _, uid := range userIDs {
		for _, sb := range s.subscribers(s.rosterSubs, uid) {
			sb.l.post(s.rosterDelivery(uid, sb.roster))
		}
	}
}

// SubscribeMessages implements Service.
func (s *Local) SubscribeMessages(groupID string, fn func(Record)) (func(), error) {
	g, err := s.db.GetGroup(groupID)
	if err != nil {
		return nil, fmt.Errorf("subscribe messages: %w", err)
	}
	if g == nil {
		return nil, fmt.Errorf("subscribe messages %q: %w", groupID, ErrUnknownGroup)
	}

	sb := &sub{msg: fn}
	unsub := s.register(s.msgSubs, groupID, sb)
	sb.l.post(func() {
		msgs, err := s.db.ListMessages(groupID, 0)
		if err != nil {
			s.logger.Error("load messages", zap.Error(err), zap.String("group_id", groupID))
			return
		}
		for _, m := range msgs {
			fn(recordFromStore(m))
		}
	})
	return unsub, nil
}

// PushMessage implements Service.
func (s *Local) PushMessage(ctx context.Context, groupID string, rec Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g, err := s.db.GetGroup(groupID)
	if err != nil {
		return "", fmt.Errorf("push message: %w", err)
	}
	if g == nil {
		return "", fmt.Errorf("push message to %q: %w", groupID, ErrUnknownGroup)
	}
	if rec.SenderID != "" {
		ok, err := s.db.IsMember(groupID, rec.SenderID)
		if err != nil {
			return "", fmt.Errorf("push message: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("push message as %q: %w", rec.SenderID, ErrNotMember)
		}
	}

	rec.ID = uuid.NewString()
	rec.GroupID = groupID
	if rec.Timestamp <= 0 {
		rec.Timestamp = s.stamp()
	}
	if err := s.db.InsertMessage(&store.Message{
		ID:         rec.ID,
		GroupID:    groupID,
		SenderID:   rec.SenderID,
		SenderName: rec.SenderName,
		Text:       rec.Text,
		Mentions:   rec.Mentions,
		Timestamp:  rec.Timestamp,
	}); err != nil {
		return "", fmt.Errorf("push message: %w", err)
	}

	for _, sb := range s.subscribers(s.msgSubs, groupID) {
		fn, r := sb.msg, rec
		sb.l.post(func() { fn(r) })
	}
	return rec.ID, nil
}

// stamp issues a server timestamp. Stamps are strictly increasing so two
// pushes in the same millisecond still order.
func (s *Local) stamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStamp = max(s.now(), s.lastStamp+1)
	return s.lastStamp
}

// CreateGroup creates a group with a generated id and the given members.
func (s *Local) CreateGroup(ctx context.Context, name string, memberIDs []string) (Group, error) {
	if err := ctx.Err(); err != nil {
		return Group{}, err
	}
	g := Group{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	if err := s.db.CreateGroup(&store.Group{ID: g.ID, Name: g.Name}, memberIDs); err != nil {
		return Group{}, fmt.Errorf("create group: %w", err)
	}
	s.notifyRoster(memberIDs...)
	return g, nil
}

// RenameGroup renames a group and refreshes its members' rosters.
func (s *Local) RenameGroup(ctx context.Context, groupID, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.RenameGroup(groupID, strings.TrimSpace(name)); err != nil {
		return s.groupErr("rename group", groupID, err)
	}
	return s.notifyMembers(groupID)
}

// DeleteGroup removes a group and everything stored under it.
func (s *Local) DeleteGroup(ctx context.Context, groupID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	members, err := s.db.Members(groupID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if err := s.db.DeleteGroup(groupID); err != nil {
		return s.groupErr("delete group", groupID, err)
	}
	s.notifyRoster(members...)
	return nil
}

// AddMember adds userID to a group.
func (s *Local) AddMember(ctx context.Context, groupID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g, err := s.db.GetGroup(groupID)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if g == nil {
		return fmt.Errorf("add member to %q: %w", groupID, ErrUnknownGroup)
	}
	if err := s.db.AddMember(groupID, userID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	s.notifyRoster(userID)
	return nil
}

// RemoveMember removes userID from a group.
func (s *Local) RemoveMember(ctx context.Context, groupID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.RemoveMember(groupID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("remove %q from %q: %w", userID, groupID, ErrNotMember)
		}
		return fmt.Errorf("remove member: %w", err)
	}
	s.notifyRoster(userID)
	return nil
}

func (s *Local) notifyMembers(groupID string) error {
	members, err := s.db.Members(groupID)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	s.notifyRoster(members...)
	return nil
}

func (s *Local) groupErr(op, groupID string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %q: %w", op, groupID, ErrUnknownGroup)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func recordFromStore(m store.Message) Record {
	return Record{
		ID:         m.ID,
		GroupID:    m.GroupID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		Mentions:   m.Mentions,
		Timestamp:  m.Timestamp,
	}
}
