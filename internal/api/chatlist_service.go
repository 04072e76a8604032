package api

import (
	"context"
	gosync "sync"

	"github.com/matheus3301/chatlist/internal/bus"
	"github.com/matheus3301/chatlist/internal/chatlist"
	intsync "github.com/matheus3301/chatlist/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const defaultWatchBuffer = 64

// ChatListService implements the ChatListService gRPC service.
type ChatListService struct {
	runner *intsync.Runner
	bus    *bus.Bus
	logger *zap.Logger

	watchBuffer int
	done        chan struct{}
	closeOnce   gosync.Once
}

// NewChatListService creates a chat list service backed by the runner.
func NewChatListService(runner *intsync.Runner, b *bus.Bus, logger *zap.Logger) *ChatListService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatListService{
		runner:      runner,
		bus:         b,
		logger:      logger,
		watchBuffer: defaultWatchBuffer,
		done:        make(chan struct{}),
	}
}

// Close ends every open WatchSnapshots stream. Streams opened afterwards
// return immediately.
func (s *ChatListService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *ChatListService) ListEntries(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	list, ident, err := s.runner.Current()
	if err != nil {
		return nil, toStatus("list entries", err)
	}
	return SnapshotToStruct(ident.UserID, list.Snapshot()), nil
}

func (s *ChatListService) GetEntry(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "group id is required")
	}
	list, _, err := s.runner.Current()
	if err != nil {
		return nil, toStatus("get entry", err)
	}
	e, ok := list.Entry(req.GetValue())
	if !ok {
		return nil, grpcstatus.Errorf(codes.NotFound, "group %q not in chat list", req.GetValue())
	}
	return EntryToStruct(e), nil
}

func (s *ChatListService) MarkRead(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.runner.MarkRead(req.GetValue()); err != nil {
		return nil, toStatus("mark read", err)
	}
	return &emptypb.Empty{}, nil
}

// WatchSnapshots sends the current snapshot, then every published one until
// the client goes away or the service is closed. Queued snapshots are
// coalesced to the newest. When the bus dropped events the current list is
// re-read, so a slow client never stays behind the last change.
func (s *ChatListService) WatchSnapshots(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ch, unsub := s.bus.Subscribe(bus.KindSnapshot, s.watchBuffer)
	defer unsub()
	dropped := s.bus.Dropped()

	if list, ident, err := s.runner.Current(); err == nil {
		if err := stream.Send(SnapshotToStruct(ident.UserID, list.Snapshot())); err != nil {
			return err
		}
	}

	for {
		select {
		case evt := <-ch:
			evt = newest(ch, evt)
			snap, ok := evt.Payload.(intsync.Snapshot)
			if !ok {
				s.logger.Warn("unexpected snapshot payload", zap.String("kind", evt.Kind))
				continue
			}
			if d := s.bus.Dropped(); d != dropped {
				dropped = d
				snap = s.currentSnapshot()
			}
			if err := stream.Send(SnapshotToStruct(snap.UserID, snap.Entries)); err != nil {
				return err
			}
		case <-s.done:
			return nil
		case <-stream.Context().Done():
			return nil
		}
	}
}

// newest drains whatever is already queued on ch and returns the last event.
func newest(ch <-chan bus.Event, evt bus.Event) bus.Event {
	for {
		select {
		case next := <-ch:
			evt = next
		default:
			return evt
		}
	}
}

func (s *ChatListService) currentSnapshot() intsync.Snapshot {
	list, ident, err := s.runner.Current()
	if err != nil {
		return intsync.Snapshot{Entries: []chatlist.Entry{}}
	}
	return intsync.Snapshot{UserID: ident.UserID, Entries: list.Snapshot()}
}
