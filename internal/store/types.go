package store

// Group is a conversation channel.
type Group struct {
	ID        string
	Name      string
	CreatedAt int64
}

// Message is a record stored under a group. ID is the opaque push id.
type Message struct {
	ID         string
	GroupID    string
	SenderID   string
	SenderName string
	Text       string
	Mentions   []string
	Timestamp  int64
}

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	GroupID      string
	SenderID     string
	SenderName   string
	Body         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
}
