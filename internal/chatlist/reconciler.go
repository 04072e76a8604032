package chatlist

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Options configures a Reconciler.
type Options struct {
	// CurrentUserID identifies the signed-in user. Messages sent by this user
	// never count as unread.
	CurrentUserID string

	AttachmentText  string // preview for events without text
	GroupNameFormat string // fmt pattern taking the group id

	// OnSnapshot is called with a freshly built, sorted snapshot after every
	// state-changing operation. Calls are made in mutation order. It must not
	// call back into mutating methods of the Reconciler.
	OnSnapshot func([]Entry)
}

// Reconciler merges roster updates and message events into a deduplicated,
// unread-aware chat list. All methods are safe for concurrent use; mutations
// are serialized.
type Reconciler struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string // insertion order of entries
	last    []Entry

	// pubMu is taken before mu is released so observers see snapshots in the
	// order the mutations happened.
	pubMu sync.Mutex

	opts   Options
	logger *zap.Logger
}

// New creates an empty reconciler for one signed-in session.
func New(opts Options, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AttachmentText == "" {
		opts.AttachmentText = DefaultAttachmentText
	}
	if !ValidGroupNameFormat(opts.GroupNameFormat) {
		if opts.GroupNameFormat != "" {
			logger.Warn("group name format ignored", zap.String("format", opts.GroupNameFormat))
		}
		opts.GroupNameFormat = DefaultGroupNameFormat
	}
	return &Reconciler{
		entries: make(map[string]*Entry),
		last:    []Entry{},
		opts:    opts,
		logger:  logger,
	}
}

// CurrentUserID returns the user this reconciler was created for.
func (r *Reconciler) CurrentUserID() string {
	return r.opts.CurrentUserID
}

// SyncRoster makes the tracked groups match groups exactly: unknown groups are
// added with empty message state, renamed groups are updated and groups missing
// from the list are dropped.
func (r *Reconciler) SyncRoster(groups []Group) {
	r.mu.Lock()

	live := make(map[string]struct{}, len(groups))
	changed := false
	for _, g := range groups {
		if g.ID == "" {
			r.logger.Debug("roster item without id ignored", zap.String("name", g.Name))
			continue
		}
		if _, dup := live[g.ID]; dup {
			continue
		}
		live[g.ID] = struct{}{}

		e, ok := r.entries[g.ID]
		if !ok {
			r.insertLocked(&Entry{GroupID: g.ID, GroupName: g.Name})
			changed = true
			continue
		}
		if e.GroupName != g.Name {
			e.GroupName = g.Name
			changed = true
		}
	}

	if len(live) < len(r.order) {
		kept := r.order[:0]
		for _, id := range r.order {
			if _, ok := live[id]; ok {
				kept = append(kept, id)
				continue
			}
			delete(r.entries, id)
			changed = true
		}
		clear(r.order[len(kept):])
		r.order = kept
	}

	if !changed {
		r.mu.Unlock()
		return
	}
	r.publishAndUnlock()
}

// ApplyMessage folds one message event into the list.
func (r *Reconciler) ApplyMessage(evt MessageEvent) {
	if evt.GroupID == "" {
		r.logger.Debug("message event without group id ignored", zap.Int64("ts", evt.Timestamp))
		return
	}

	r.mu.Lock()

	changed := false
	e, ok := r.entries[evt.GroupID]
	if !ok {
		name := evt.GroupName
		if name == "" {
			name = fmt.Sprintf(r.opts.GroupNameFormat, evt.GroupID)
		}
		e = &Entry{GroupID: evt.GroupID, GroupName: name}
		r.insertLocked(e)
		changed = true
	}

	if evt.Timestamp > e.LastMessageAt {
		text := evt.Text
		if text == "" {
			text = r.opts.AttachmentText
		}
		e.LastMessageText = text
		e.LastMessageAt = evt.Timestamp
		e.LastMessageSender = evt.SenderName
		changed = true
	}

	if evt.GroupName != "" && evt.GroupName != e.GroupName {
		e.GroupName = evt.GroupName
		changed = true
	}

	if r.countsAsUnread(e, evt) {
		e.UnreadCount++
		e.unreadWatermark = max(e.unreadWatermark, evt.Timestamp)
		changed = true
	}

	if !changed {
		r.mu.Unlock()
		return
	}
	r.publishAndUnlock()
}

// countsAsUnread decides whether evt increments e's unread count. The first
// matching rule wins.
func (r *Reconciler) countsAsUnread(e *Entry, evt MessageEvent) bool {
	switch {
	case evt.ForceUnread:
		return true
	case r.opts.CurrentUserID != "" && evt.SenderID == r.opts.CurrentUserID:
		return false
	case evt.Text == "":
		return false
	}
	// Only the event that currently owns the preview may count; a late event
	// that lost the race to a newer message must not.
	return evt.Timestamp > e.unreadWatermark && evt.Timestamp == e.LastMessageAt
}

// MarkRead clears the unread count of a group. It is a no-op when the group
// is unknown or already read.
func (r *Reconciler) MarkRead(groupID string) {
	r.mu.Lock()
	e, ok := r.entries[groupID]
	if !ok || e.UnreadCount == 0 {
		r.mu.Unlock()
		return
	}
	e.UnreadCount = 0
	e.unreadWatermark = max(e.unreadWatermark, e.LastMessageAt)
	r.publishAndUnlock()
}

// Entry returns a copy of the entry for groupID.
func (r *Reconciler) Entry(groupID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[groupID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of tracked groups.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Snapshot returns a copy of the most recently published snapshot.
func (r *Reconciler) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.last)
}

// Clear drops every entry and publishes an empty snapshot.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]*Entry)
	r.order = nil
	r.publishAndUnlock()
}

func (r *Reconciler) insertLocked(e *Entry) {
	r.entries[e.GroupID] = e
	r.order = append(r.order, e.GroupID)
}

// publishAndUnlock builds a snapshot, releases mu and hands the snapshot to
// the observer. Must be called with mu held.
func (r *Reconciler) publishAndUnlock() {
	snap := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		snap = append(snap, *r.entries[id])
	}
	slices.SortStableFunc(snap, func(a, b Entry) int {
		return cmp.Compare(b.LastMessageAt, a.LastMessageAt)
	})
	r.last = snap

	r.pubMu.Lock()
	r.mu.Unlock()
	defer r.pubMu.Unlock()

	if r.opts.OnSnapshot != nil {
		r.opts.OnSnapshot(slices.Clone(snap))
	}
}
