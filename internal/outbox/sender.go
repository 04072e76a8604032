package outbox

import (
	"context"
	"time"

	"github.com/matheus3301/chatlist/internal/bus"
	"github.com/matheus3301/chatlist/internal/remote"
	"github.com/matheus3301/chatlist/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Pusher writes a message to the remote store.
type Pusher interface {
	PushMessage(ctx context.Context, groupID string, rec remote.Record) (string, error)
}

// Options tunes the sender loop.
type Options struct {
	PollInterval   time.Duration
	SendsPerSecond float64
}

// Ack is the payload of bus.KindSendAck and bus.KindSendFailed events.
type Ack struct {
	ClientMsgID string
	GroupID     string
	ServerMsgID string
	Error       string
}

// Sender drains the outbox and pushes messages to the remote store.
type Sender struct {
	db      *store.DB
	pusher  Pusher
	bus     *bus.Bus
	limiter *rate.Limiter
	poll    time.Duration
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, pusher Pusher, b *bus.Bus, opts Options, logger *zap.Logger) *Sender {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	limit := rate.Inf
	if opts.SendsPerSecond > 0 {
		limit = rate.Limit(opts.SendsPerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:      db,
		pusher:  pusher,
		bus:     b,
		limiter: rate.NewLimiter(limit, 1),
		poll:    opts.PollInterval,
		logger:  logger,
	}
}

// Start begins polling the outbox for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for it to exit.
func (s *Sender) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		s.send(ctx, entry)
	}
}

func (s *Sender) send(ctx context.Context, entry store.OutboxEntry) {
	if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		return
	}

	serverMsgID, err := s.pusher.PushMessage(ctx, entry.GroupID, remote.Record{
		SenderID:   entry.SenderID,
		SenderName: entry.SenderName,
		Text:       entry.Body,
	})
	if err != nil {
		s.logger.Error("failed to push message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		if markErr := s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error()); markErr != nil {
			s.logger.Error("failed to mark failed", zap.Error(markErr), zap.String("client_msg_id", entry.ClientMsgID))
		}
		s.bus.Publish(bus.NewEvent(bus.KindSendFailed, Ack{
			ClientMsgID: entry.ClientMsgID,
			GroupID:     entry.GroupID,
			Error:       err.Error(),
		}))
		return
	}

	if err := s.db.MarkOutboxSent(entry.ClientMsgID, serverMsgID); err != nil {
		s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	}
	s.logger.Info("message sent", zap.String("client_msg_id", entry.ClientMsgID), zap.String("server_msg_id", serverMsgID))
	s.bus.Publish(bus.NewEvent(bus.KindSendAck, Ack{
		ClientMsgID: entry.ClientMsgID,
		GroupID:     entry.GroupID,
		ServerMsgID: serverMsgID,
	}))
}
