package model

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/chatlist/internal/api"
	"github.com/matheus3301/chatlist/internal/chatlist"
	"github.com/matheus3301/chatlist/internal/remote"
)

// Daemon is the subset of the daemon API the TUI uses.
type Daemon interface {
	Status(ctx context.Context) (api.Status, error)
	SignIn(ctx context.Context, userID, displayName string) (api.Status, error)
	SignOut(ctx context.Context) error
	MarkRead(ctx context.Context, groupID string) error
	SendText(ctx context.Context, groupID, text string) (string, error)
	CreateGroup(ctx context.Context, name string, members []string) (remote.Group, error)
	WatchSnapshots(ctx context.Context, fn func(userID string, entries []chatlist.Entry)) error
}

// ViewModel caches daemon state and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	daemon  Daemon
	status  api.Status
	userID  string
	entries []chatlist.Entry
	filter  string
	Flash   Flash

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{
		daemon:    d,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the current session status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.daemon.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Watch applies streamed snapshots until ctx is done, reconnecting after
// retry when the stream breaks.
func (vm *ViewModel) Watch(ctx context.Context, retry time.Duration) {
	for ctx.Err() == nil {
		err := vm.daemon.WatchSnapshots(ctx, vm.applySnapshot)
		if err != nil {
			vm.Flash.Error("Watch failed: "+err.Error(), 5*time.Second)
			vm.signalRefresh()
		}
		select {
		case <-ctx.Done():
		case <-time.After(retry):
		}
	}
}

func (vm *ViewModel) applySnapshot(userID string, entries []chatlist.Entry) {
	vm.mu.Lock()
	vm.userID = userID
	vm.entries = entries
	vm.mu.Unlock()
	vm.signalRefresh()
}

// MarkRead clears a group's unread count. The list refreshes through the
// snapshot stream.
func (vm *ViewModel) MarkRead(ctx context.Context, groupID string) error {
	return vm.daemon.MarkRead(ctx, groupID)
}

// SendText queues a message for a group.
func (vm *ViewModel) SendText(ctx context.Context, groupID, text string) error {
	if _, err := vm.daemon.SendText(ctx, groupID, text); err != nil {
		return err
	}
	vm.Flash.Set("Message queued", 3*time.Second)
	vm.signalRefresh()
	return nil
}

// SignIn signs a user in and refreshes the status.
func (vm *ViewModel) SignIn(ctx context.Context, userID, displayName string) error {
	st, err := vm.daemon.SignIn(ctx, userID, displayName)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	vm.Flash.Set("Signed in as "+userID, 3*time.Second)
	vm.signalRefresh()
	return nil
}

// SignOut ends the session and drops the cached list.
func (vm *ViewModel) SignOut(ctx context.Context) error {
	if err := vm.daemon.SignOut(ctx); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.userID = ""
	vm.entries = nil
	vm.mu.Unlock()
	vm.Flash.Set("Signed out", 3*time.Second)
	vm.signalRefresh()
	return nil
}

// CreateGroup creates a group that includes the signed-in user.
func (vm *ViewModel) CreateGroup(ctx context.Context, name string, members []string) error {
	vm.mu.RLock()
	self := vm.userID
	vm.mu.RUnlock()
	if self != "" && !slices.Contains(members, self) {
		members = append(members, self)
	}
	g, err := vm.daemon.CreateGroup(ctx, name, members)
	if err != nil {
		return err
	}
	vm.Flash.Set("Created "+g.Name, 3*time.Second)
	vm.signalRefresh()
	return nil
}

// SetFilter keeps only entries whose name contains filter, ignoring case.
func (vm *ViewModel) SetFilter(filter string) {
	vm.mu.Lock()
	vm.filter = strings.ToLower(strings.TrimSpace(filter))
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Entries returns the visible entries in snapshot order.
func (vm *ViewModel) Entries() []chatlist.Entry {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.filter == "" {
		return vm.entries
	}
	var out []chatlist.Entry
	for _, e := range vm.entries {
		if strings.Contains(strings.ToLower(e.GroupName), vm.filter) {
			out = append(out, e)
		}
	}
	return out
}

// Status returns the last fetched session status.
func (vm *ViewModel) Status() api.Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// UnreadGroups counts groups with unread messages in the latest snapshot.
func (vm *ViewModel) UnreadGroups() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	n := 0
	for _, e := range vm.entries {
		if e.Unread() {
			n++
		}
	}
	return n
}
