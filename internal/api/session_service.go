package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatlist/internal/session"
	"github.com/matheus3301/chatlist/internal/status"
	"github.com/matheus3301/chatlist/internal/store"
	intsync "github.com/matheus3301/chatlist/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// SessionService implements the SessionService gRPC service.
type SessionService struct {
	sessionName string
	startedAt   time.Time
	machine     *status.Machine
	runner      *intsync.Runner
	db          *store.DB
}

// NewSessionService creates a new session service.
func NewSessionService(sessionName string, machine *status.Machine, runner *intsync.Runner, db *store.DB) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		machine:     machine,
		runner:      runner,
		db:          db,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return s.statusStruct(), nil
}

func (s *SessionService) SignIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID := stringField(req, fieldUserID)
	if err := session.ValidateUserID(userID); err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.runner.SignIn(ctx, userID, stringField(req, fieldDisplayName)); err != nil {
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "%v", err)
	}
	return s.statusStruct(), nil
}

func (s *SessionService) SignOut(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.runner.SignOut()
	return &emptypb.Empty{}, nil
}

func (s *SessionService) statusStruct() *structpb.Struct {
	current := s.machine.Current()
	fields := map[string]*structpb.Value{
		"session":   structpb.NewStringValue(s.sessionName),
		"status":    structpb.NewStringValue(string(current)),
		"uptime_ms": structpb.NewNumberValue(float64(time.Since(s.startedAt).Milliseconds())),
	}

	if list, ident, err := s.runner.Current(); err == nil {
		fields[fieldUserID] = structpb.NewStringValue(ident.UserID)
		fields[fieldDisplayName] = structpb.NewStringValue(ident.DisplayName)
		unread := 0
		for _, e := range list.Snapshot() {
			if e.Unread() {
				unread++
			}
		}
		fields["group_count"] = structpb.NewNumberValue(float64(list.Len()))
		fields["unread_groups"] = structpb.NewNumberValue(float64(unread))
	}

	if s.db != nil {
		if pending, err := s.db.PendingOutbox(); err == nil {
			fields["pending_outbox"] = structpb.NewNumberValue(float64(len(pending)))
		}
	}

	return &structpb.Struct{Fields: fields}
}
