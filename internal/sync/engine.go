package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/matheus3301/chatlist/internal/bus"
	"github.com/matheus3301/chatlist/internal/chatlist"
	"github.com/matheus3301/chatlist/internal/remote"
	"github.com/matheus3301/chatlist/internal/status"
	"go.uber.org/zap"
)

// inbound is one callback delivery waiting to be applied.
type inbound struct {
	roster   []remote.Group
	isRoster bool
	record   remote.Record
	token    int
}

// groupSub is a live message subscription for one rostered group.
type groupSub struct {
	token int
	name  string
	unsub func()
}

// Engine feeds a chat list from the remote store. Remote callbacks only
// enqueue; a single goroutine drains the queue and applies every delivery to
// the reconciler, so ordering decisions happen in one place.
type Engine struct {
	remote  remote.Service
	list    *chatlist.Reconciler
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	userID  string

	qmu     gosync.Mutex
	queue   []inbound
	stopped bool
	wake    chan struct{}

	// Owned by the drain goroutine.
	subs        map[string]*groupSub
	nextToken   int
	rosterSeen  bool
	rosterUnsub func()

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates an engine that feeds list with userID's groups.
func NewEngine(svc remote.Service, list *chatlist.Reconciler, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		remote:  svc,
		list:    list,
		bus:     b,
		machine: machine,
		logger:  logger,
		userID:  list.CurrentUserID(),
		wake:    make(chan struct{}, 1),
		subs:    make(map[string]*groupSub),
		done:    make(chan struct{}),
	}
}

// Start subscribes to the user's roster and begins draining deliveries.
func (e *Engine) Start(ctx context.Context) error {
	unsub, err := e.remote.SubscribeRoster(e.userID, func(groups []remote.Group) {
		e.enqueue(inbound{roster: groups, isRoster: true})
	})
	if err != nil {
		return fmt.Errorf("subscribe roster: %w", err)
	}
	e.rosterUnsub = unsub

	ctx, e.cancel = context.WithCancel(ctx)
	go e.loop(ctx)
	return nil
}

// Stop unsubscribes from the remote store and waits for the drain goroutine.
// No delivery reaches the reconciler after Stop returns.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Engine) enqueue(in inbound) {
	e.qmu.Lock()
	if e.stopped {
		e.qmu.Unlock()
		return
	}
	e.queue = append(e.queue, in)
	e.qmu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) drain() []inbound {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	batch := e.queue
	e.queue = nil
	return batch
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	defer e.shutdown()

	for {
		select {
		case <-e.wake:
			for _, in := range e.drain() {
				if ctx.Err() != nil {
					return
				}
				e.handle(in)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) shutdown() {
	e.qmu.Lock()
	e.stopped = true
	e.queue = nil
	e.qmu.Unlock()

	if e.rosterUnsub != nil {
		e.rosterUnsub()
	}
	for id, s := range e.subs {
		s.unsub()
		delete(e.subs, id)
	}
	e.logger.Info("sync engine stopped", zap.String("user_id", e.userID))
}

func (e *Engine) handle(in inbound) {
	if in.isRoster {
		e.handleRoster(in.roster)
		return
	}
	e.handleRecord(in.record, in.token)
}

func (e *Engine) handleRoster(groups []remote.Group) {
	items := make([]chatlist.Group, 0, len(groups))
	live := make(map[string]string, len(groups))
	for _, g := range groups {
		items = append(items, chatlist.Group{ID: g.ID, Name: g.Name})
		live[g.ID] = g.Name
	}
	e.list.SyncRoster(items)

	for id, s := range e.subs {
		if _, ok := live[id]; !ok {
			s.unsub()
			delete(e.subs, id)
			e.logger.Debug("group left roster", zap.String("group_id", id))
		}
	}
	for id, name := range live {
		if s, ok := e.subs[id]; ok {
			s.name = name
			continue
		}
		e.subscribeGroup(id, name)
	}

	e.bus.Publish(bus.NewEvent(bus.KindRosterSynced, len(groups)))
	if !e.rosterSeen {
		e.rosterSeen = true
		if e.machine != nil && e.machine.Current() == status.Syncing {
			_ = e.machine.Transition(status.Ready)
		}
		e.logger.Info("roster synced", zap.Int("groups", len(groups)))
	}
}

func (e *Engine) subscribeGroup(id, name string) {
	e.nextToken++
	token := e.nextToken
	unsub, err := e.remote.SubscribeMessages(id, func(rec remote.Record) {
		e.enqueue(inbound{record: rec, token: token})
	})
	if err != nil {
		e.logger.Warn("subscribe messages failed", zap.Error(err), zap.String("group_id", id))
		return
	}
	e.subs[id] = &groupSub{token: token, name: name, unsub: unsub}
}

func (e *Engine) handleRecord(rec remote.Record, token int) {
	s, ok := e.subs[rec.GroupID]
	if !ok || s.token != token {
		// Delivered by a subscription that has since been dropped.
		return
	}
	// A mention forces the group unread once; redeliveries at or below the
	// watermark were already counted.
	force := rec.SenderID != e.userID && rec.Mentioning(e.userID)
	if entry, ok := e.list.Entry(rec.GroupID); force && ok && rec.Timestamp <= entry.UnreadWatermark() {
		force = false
	}
	e.list.ApplyMessage(chatlist.MessageEvent{
		GroupID:     rec.GroupID,
		GroupName:   s.name,
		Text:        rec.Text,
		Timestamp:   rec.Timestamp,
		SenderName:  rec.SenderName,
		SenderID:    rec.SenderID,
		ForceUnread: force,
	})
}
