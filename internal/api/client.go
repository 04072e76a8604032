package api

import (
	"context"
	"errors"
	"io"

	"github.com/matheus3301/chatlist/internal/chatlist"
	"github.com/matheus3301/chatlist/internal/remote"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Status is the decoded reply of SessionService.GetStatus.
type Status struct {
	Session       string `json:"session"`
	State         string `json:"status"`
	UserID        string `json:"user_id,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	UptimeMs      int64  `json:"uptime_ms"`
	GroupCount    int    `json:"group_count"`
	UnreadGroups  int    `json:"unread_groups"`
	PendingOutbox int    `json:"pending_outbox"`
}

func statusFromStruct(s *structpb.Struct) Status {
	f := s.GetFields()
	return Status{
		Session:       f["session"].GetStringValue(),
		State:         f["status"].GetStringValue(),
		UserID:        f[fieldUserID].GetStringValue(),
		DisplayName:   f[fieldDisplayName].GetStringValue(),
		UptimeMs:      int64(f["uptime_ms"].GetNumberValue()),
		GroupCount:    int(f["group_count"].GetNumberValue()),
		UnreadGroups:  int(f["unread_groups"].GetNumberValue()),
		PendingOutbox: int(f["pending_outbox"].GetNumberValue()),
	}
}

// Dial connects to a daemon listening on a Unix domain socket.
func Dial(socketPath string) (*grpc.ClientConn, error) {
	return grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
}

// Client calls the daemon services over cc.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client for all daemon services.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, service, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+service+"/"+method, in, out)
}

// Status returns the daemon's session status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, SessionServiceName, "GetStatus", &emptypb.Empty{}, out); err != nil {
		return Status{}, err
	}
	return statusFromStruct(out), nil
}

// SignIn signs userID in and returns the resulting status.
func (c *Client) SignIn(ctx context.Context, userID, displayName string) (Status, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldUserID:      structpb.NewStringValue(userID),
		fieldDisplayName: structpb.NewStringValue(displayName),
	}}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, SessionServiceName, "SignIn", in, out); err != nil {
		return Status{}, err
	}
	return statusFromStruct(out), nil
}

// SignOut ends the active session.
func (c *Client) SignOut(ctx context.Context) error {
	return c.invoke(ctx, SessionServiceName, "SignOut", &emptypb.Empty{}, new(emptypb.Empty))
}

// ListEntries returns the current chat list, most recent first.
func (c *Client) ListEntries(ctx context.Context) ([]chatlist.Entry, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, ChatListServiceName, "ListEntries", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	_, entries := SnapshotFromStruct(out)
	return entries, nil
}

// GetEntry returns one chat list entry.
func (c *Client) GetEntry(ctx context.Context, groupID string) (chatlist.Entry, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, ChatListServiceName, "GetEntry", wrapperspb.String(groupID), out); err != nil {
		return chatlist.Entry{}, err
	}
	return EntryFromStruct(out), nil
}

// MarkRead clears a group's unread count.
func (c *Client) MarkRead(ctx context.Context, groupID string) error {
	return c.invoke(ctx, ChatListServiceName, "MarkRead", wrapperspb.String(groupID), new(emptypb.Empty))
}

// WatchSnapshots calls fn with every snapshot the daemon streams until ctx is
// done or the stream ends. A clean end of stream returns nil.
func (c *Client) WatchSnapshots(ctx context.Context, fn func(userID string, entries []chatlist.Entry)) error {
	desc := &chatListServiceDesc.Streams[0]
	cs, err := c.cc.NewStream(ctx, desc, "/"+ChatListServiceName+"/"+desc.StreamName)
	if err != nil {
		return err
	}
	stream := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: cs}
	if err := stream.Send(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		snap, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(SnapshotFromStruct(snap))
	}
}

// CreateGroup creates a group with the given members.
func (c *Client) CreateGroup(ctx context.Context, name string, members []string) (remote.Group, error) {
	values := make([]*structpb.Value, 0, len(members))
	for _, m := range members {
		values = append(values, structpb.NewStringValue(m))
	}
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldName:    structpb.NewStringValue(name),
		fieldMembers: structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, GroupServiceName, "CreateGroup", in, out); err != nil {
		return remote.Group{}, err
	}
	return remote.Group{ID: stringField(out, fieldGroupID), Name: stringField(out, fieldName)}, nil
}

// RenameGroup renames a group.
func (c *Client) RenameGroup(ctx context.Context, groupID, name string) error {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldGroupID: structpb.NewStringValue(groupID),
		fieldName:    structpb.NewStringValue(name),
	}}
	return c.invoke(ctx, GroupServiceName, "RenameGroup", in, new(emptypb.Empty))
}

// DeleteGroup deletes a group.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	return c.invoke(ctx, GroupServiceName, "DeleteGroup", wrapperspb.String(groupID), new(emptypb.Empty))
}

// AddMember adds userID to a group.
func (c *Client) AddMember(ctx context.Context, groupID, userID string) error {
	return c.invoke(ctx, GroupServiceName, "AddMember", membershipStruct(groupID, userID), new(emptypb.Empty))
}

// RemoveMember removes userID from a group.
func (c *Client) RemoveMember(ctx context.Context, groupID, userID string) error {
	return c.invoke(ctx, GroupServiceName, "RemoveMember", membershipStruct(groupID, userID), new(emptypb.Empty))
}

// SendText queues a message and returns its client message id.
func (c *Client) SendText(ctx context.Context, groupID, text string) (string, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldGroupID: structpb.NewStringValue(groupID),
		fieldText:    structpb.NewStringValue(text),
	}}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, MessageServiceName, "SendText", in, out); err != nil {
		return "", err
	}
	return stringField(out, fieldClientMsgID), nil
}

func membershipStruct(groupID, userID string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldGroupID: structpb.NewStringValue(groupID),
		fieldUserID:  structpb.NewStringValue(userID),
	}}
}
