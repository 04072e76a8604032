package api

import (
	"context"
	"strings"

	"github.com/matheus3301/chatlist/internal/remote"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GroupService implements the GroupService gRPC service.
type GroupService struct {
	remote *remote.Local
}

// NewGroupService creates a group admin service over the local remote store.
func NewGroupService(svc *remote.Local) *GroupService {
	return &GroupService{remote: svc}
}

func (s *GroupService) CreateGroup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := strings.TrimSpace(stringField(req, fieldName))
	if name == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%s is required", fieldName)
	}
	g, err := s.remote.CreateGroup(ctx, name, stringList(req, fieldMembers))
	if err != nil {
		return nil, toStatus("create group", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldGroupID: structpb.NewStringValue(g.ID),
		fieldName:    structpb.NewStringValue(g.Name),
	}}, nil
}

func (s *GroupService) RenameGroup(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	groupID, err := requireField(req, fieldGroupID)
	if err != nil {
		return nil, err
	}
	if err := s.remote.RenameGroup(ctx, groupID, stringField(req, fieldName)); err != nil {
		return nil, toStatus("rename group", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GroupService) DeleteGroup(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "group id is required")
	}
	if err := s.remote.DeleteGroup(ctx, req.GetValue()); err != nil {
		return nil, toStatus("delete group", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GroupService) AddMember(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	groupID, userID, err := membership(req)
	if err != nil {
		return nil, err
	}
	if err := s.remote.AddMember(ctx, groupID, userID); err != nil {
		return nil, toStatus("add member", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GroupService) RemoveMember(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	groupID, userID, err := membership(req)
	if err != nil {
		return nil, err
	}
	if err := s.remote.RemoveMember(ctx, groupID, userID); err != nil {
		return nil, toStatus("remove member", err)
	}
	return &emptypb.Empty{}, nil
}

func membership(req *structpb.Struct) (groupID, userID string, err error) {
	if groupID, err = requireField(req, fieldGroupID); err != nil {
		return "", "", err
	}
	if userID, err = requireField(req, fieldUserID); err != nil {
		return "", "", err
	}
	return groupID, userID, nil
}
