// Package remote describes the hosted realtime data service the chat list is
// fed from, and provides a local SQLite-backed implementation of it.
package remote

import (
	"context"
	"errors"
)

var (
	ErrUnknownGroup = errors.New("unknown group")
	ErrNotMember    = errors.New("sender is not a member of the group")
)

// Group is a roster item as stored by the service.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Record is a message as stored by the service, keyed by an opaque generated id.
type Record struct {
	ID         string
	GroupID    string
	SenderID   string
	SenderName string
	Text       string
	Mentions   []string
	Timestamp  int64
}

// Mentioning reports whether userID is mentioned by the record.
func (r Record) Mentioning(userID string) bool {
	if userID == "" {
		return false
	}
	for _, m := range r.Mentions {
		if m == userID {
			return true
		}
	}
	return false
}

// Service is the subscribe/push capability of the realtime store.
//
// Callbacks run on background goroutines owned by the service; callbacks of a
// single subscription never run concurrently. Once the returned unsubscribe
// function returns, the callback is not invoked again. Unsubscribing from
// inside the callback deadlocks.
type Service interface {
	// SubscribeRoster delivers the groups userID belongs to, once right away
	// and again after every change.
	SubscribeRoster(userID string, fn func([]Group)) (unsubscribe func(), err error)

	// SubscribeMessages delivers every stored record of the group, then each
	// new one. Records may be delivered more than once.
	SubscribeMessages(groupID string, fn func(Record)) (unsubscribe func(), err error)

	// PushMessage stores rec under groupID and returns its generated id.
	PushMessage(ctx context.Context, groupID string, rec Record) (string, error)
}
