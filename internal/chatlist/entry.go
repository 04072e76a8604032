package chatlist

import "strings"

// Default placeholders used when an event leaves a display field empty.
const (
	DefaultAttachmentText  = "Attachment"
	DefaultGroupNameFormat = "Group %s"
)

// ValidGroupNameFormat reports whether format holds exactly one verb and that
// verb is %s, so it can name a group from its id.
func ValidGroupNameFormat(format string) bool {
	verbs := strings.ReplaceAll(format, "%%", "")
	return strings.Count(verbs, "%") == 1 && strings.Count(verbs, "%s") == 1
}

// Entry is one row of the chat list.
type Entry struct {
	GroupID           string `json:"group_id"`
	GroupName         string `json:"group_name"`
	LastMessageText   string `json:"last_message_text,omitempty"`
	LastMessageAt     int64  `json:"last_message_at,omitempty"`
	LastMessageSender string `json:"last_message_sender,omitempty"`
	UnreadCount       int    `json:"unread_count"`

	// unreadWatermark is the timestamp of the newest message already counted
	// into UnreadCount.
	unreadWatermark int64
}

// Unread reports whether the entry has unread messages.
func (e Entry) Unread() bool {
	return e.UnreadCount > 0
}

// UnreadWatermark returns the timestamp of the newest message counted as unread.
func (e Entry) UnreadWatermark() int64 {
	return e.unreadWatermark
}

// Group is a roster item.
type Group struct {
	ID   string
	Name string
}

// MessageEvent is an inbound message as seen by the chat list. Empty string
// fields mean "absent".
type MessageEvent struct {
	GroupID    string
	GroupName  string
	Text       string
	Timestamp  int64
	SenderName string
	SenderID   string

	// ForceUnread counts the event as unread regardless of sender or content.
	ForceUnread bool
}
