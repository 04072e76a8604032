package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"

	"github.com/matheus3301/chatlist/internal/bus"
	"github.com/matheus3301/chatlist/internal/chatlist"
	"github.com/matheus3301/chatlist/internal/remote"
	"github.com/matheus3301/chatlist/internal/status"
	"go.uber.org/zap"
)

// ErrSignedOut is returned when an operation needs a signed-in user.
var ErrSignedOut = errors.New("no user signed in")

// Identity is the signed-in user.
type Identity struct {
	UserID      string
	DisplayName string
}

// Snapshot is the payload of bus.KindSnapshot events.
type Snapshot struct {
	UserID  string
	Entries []chatlist.Entry
}

// Runner owns the chat list of the active session. Each sign-in gets a fresh
// reconciler and engine; sign-out stops the engine and clears the list.
type Runner struct {
	remote  remote.Service
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	opts    chatlist.Options

	mu     gosync.Mutex
	ident  Identity
	list   *chatlist.Reconciler
	engine *Engine
}

// NewRunner creates a runner. opts supplies placeholders; CurrentUserID and
// OnSnapshot are set per session.
func NewRunner(svc remote.Service, b *bus.Bus, machine *status.Machine, opts chatlist.Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		remote:  svc,
		bus:     b,
		machine: machine,
		logger:  logger,
		opts:    opts,
	}
}

// SignIn starts a session for userID. Signing in as the already active user
// is a no-op; signing in as someone else ends the current session first.
func (r *Runner) SignIn(ctx context.Context, userID, displayName string) error {
	if userID == "" {
		return errors.New("sign in: empty user id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.list != nil {
		if r.ident.UserID == userID {
			r.ident.DisplayName = displayName
			return nil
		}
		r.signOutLocked()
	}
	if r.machine.Current() == status.Error {
		r.machine.Reset()
	}
	if err := r.machine.Transition(status.Connecting); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	opts := r.opts
	opts.CurrentUserID = userID
	opts.OnSnapshot = func(entries []chatlist.Entry) {
		r.bus.Publish(bus.NewEvent(bus.KindSnapshot, Snapshot{UserID: userID, Entries: entries}))
	}
	list := chatlist.New(opts, r.logger.Named("chatlist"))
	engine := NewEngine(r.remote, list, r.bus, r.machine, r.logger.Named("sync"))

	if err := r.machine.Transition(status.Syncing); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	// The engine outlives the caller's request.
	if err := engine.Start(context.WithoutCancel(ctx)); err != nil {
		_ = r.machine.Transition(status.Error)
		return fmt.Errorf("sign in: %w", err)
	}

	r.ident = Identity{UserID: userID, DisplayName: displayName}
	r.list = list
	r.engine = engine
	r.logger.Info("signed in", zap.String("user_id", userID))
	r.bus.Publish(bus.NewEvent(bus.KindSignedIn, r.ident))
	return nil
}

// SignOut ends the active session. It is a no-op when nobody is signed in.
func (r *Runner) SignOut() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signOutLocked()
}

func (r *Runner) signOutLocked() {
	if r.list == nil {
		r.machine.Reset()
		return
	}
	// Stop before Clear so no late delivery revives the list.
	r.engine.Stop()
	r.list.Clear()

	ident := r.ident
	r.ident = Identity{}
	r.list = nil
	r.engine = nil
	r.machine.Reset()
	r.logger.Info("signed out", zap.String("user_id", ident.UserID))
	r.bus.Publish(bus.NewEvent(bus.KindSignedOut, ident))
}

// Current returns the active chat list and identity, or ErrSignedOut.
func (r *Runner) Current() (*chatlist.Reconciler, Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.list == nil {
		return nil, Identity{}, ErrSignedOut
	}
	return r.list, r.ident, nil
}

// MarkRead clears the unread count of a group in the active chat list.
func (r *Runner) MarkRead(groupID string) error {
	list, _, err := r.Current()
	if err != nil {
		return err
	}
	list.MarkRead(groupID)
	return nil
}
