package api

import (
	"errors"
	"fmt"

	"github.com/matheus3301/chatlist/internal/chatlist"
	"github.com/matheus3301/chatlist/internal/remote"
	"github.com/matheus3301/chatlist/internal/store"
	intsync "github.com/matheus3301/chatlist/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Wire field names shared by servers and clients.
const (
	fieldEntries     = "entries"
	fieldUserID      = "user_id"
	fieldDisplayName = "display_name"
	fieldGroupID     = "group_id"
	fieldName        = "name"
	fieldMembers     = "members"
	fieldText        = "text"
	fieldClientMsgID = "client_msg_id"
)

// EntryToStruct encodes a chat list entry. Timestamps travel as numbers;
// values up to 2^53 round-trip exactly.
func EntryToStruct(e chatlist.Entry) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"group_id":            structpb.NewStringValue(e.GroupID),
		"group_name":          structpb.NewStringValue(e.GroupName),
		"last_message_text":   structpb.NewStringValue(e.LastMessageText),
		"last_message_at":     structpb.NewNumberValue(float64(e.LastMessageAt)),
		"last_message_sender": structpb.NewStringValue(e.LastMessageSender),
		"unread_count":        structpb.NewNumberValue(float64(e.UnreadCount)),
	}}
}

// EntryFromStruct decodes an entry written by EntryToStruct. The unread
// watermark is server-side state and is not carried.
func EntryFromStruct(s *structpb.Struct) chatlist.Entry {
	f := s.GetFields()
	return chatlist.Entry{
		GroupID:           f["group_id"].GetStringValue(),
		GroupName:         f["group_name"].GetStringValue(),
		LastMessageText:   f["last_message_text"].GetStringValue(),
		LastMessageAt:     int64(f["last_message_at"].GetNumberValue()),
		LastMessageSender: f["last_message_sender"].GetStringValue(),
		UnreadCount:       int(f["unread_count"].GetNumberValue()),
	}
}

// SnapshotToStruct encodes an ordered snapshot together with its owner.
func SnapshotToStruct(userID string, entries []chatlist.Entry) *structpb.Struct {
	list := make([]*structpb.Value, 0, len(entries))
	for _, e := range entries {
		list = append(list, structpb.NewStructValue(EntryToStruct(e)))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldUserID:  structpb.NewStringValue(userID),
		fieldEntries: structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}
}

// SnapshotFromStruct decodes a snapshot written by SnapshotToStruct,
// preserving order.
func SnapshotFromStruct(s *structpb.Struct) (string, []chatlist.Entry) {
	values := s.GetFields()[fieldEntries].GetListValue().GetValues()
	entries := make([]chatlist.Entry, 0, len(values))
	for _, v := range values {
		entries = append(entries, EntryFromStruct(v.GetStructValue()))
	}
	return stringField(s, fieldUserID), entries
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func stringList(s *structpb.Struct, key string) []string {
	values := s.GetFields()[key].GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, v := range values {
		if str := v.GetStringValue(); str != "" {
			out = append(out, str)
		}
	}
	return out
}

func requireField(s *structpb.Struct, key string) (string, error) {
	v := stringField(s, key)
	if v == "" {
		return "", grpcstatus.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return v, nil
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(op string, err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, intsync.ErrSignedOut):
		code = codes.FailedPrecondition
	case errors.Is(err, remote.ErrUnknownGroup), errors.Is(err, store.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, remote.ErrNotMember):
		code = codes.PermissionDenied
	}
	return grpcstatus.Error(code, fmt.Sprintf("%s: %v", op, err))
}
