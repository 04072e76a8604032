package api

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/chatlist/internal/store"
	intsync "github.com/matheus3301/chatlist/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// MessageService implements the MessageService gRPC service.
type MessageService struct {
	db     *store.DB
	runner *intsync.Runner
}

// NewMessageService creates a new message service backed by the outbox.
func NewMessageService(db *store.DB, runner *intsync.Runner) *MessageService {
	return &MessageService{db: db, runner: runner}
}

// SendText queues a message from the signed-in user. Delivery happens in the
// outbox sender; the result is reported on the bus as message.send_ack or
// message.send_failed.
func (s *MessageService) SendText(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	groupID, err := requireField(req, fieldGroupID)
	if err != nil {
		return nil, err
	}
	text := stringField(req, fieldText)
	if strings.TrimSpace(text) == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%s is required", fieldText)
	}

	_, ident, err := s.runner.Current()
	if err != nil {
		return nil, toStatus("send text", err)
	}

	clientMsgID := stringField(req, fieldClientMsgID)
	if clientMsgID == "" {
		clientMsgID = uuid.NewString()
	}
	err = s.db.QueueOutbox(&store.OutboxEntry{
		ClientMsgID: clientMsgID,
		GroupID:     groupID,
		SenderID:    ident.UserID,
		SenderName:  ident.DisplayName,
		Body:        text,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, grpcstatus.Errorf(codes.AlreadyExists, "client message id %q already queued", clientMsgID)
	}
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "queue outbox: %v", err)
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldClientMsgID: structpb.NewStringValue(clientMsgID),
		"accepted":       structpb.NewBoolValue(true),
	}}, nil
}
