package store

import (
	"strings"
	"time"
)

// InsertMessage stores a record. Re-inserting the same id is ignored.
func (db *DB) InsertMessage(m *Message) error {
	_, err := db.Exec(`
		INSERT INTO messages (id, group_id, sender_id, sender_name, text, mentions, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, m.GroupID, m.SenderID, m.SenderName, m.Text, strings.Join(m.Mentions, ","), m.Timestamp, time.Now().UnixMilli())
	return err
}

// ListMessages returns the records of a group in timestamp order, oldest first.
// A limit <= 0 returns every record.
func (db *DB) ListMessages(groupID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT id, group_id, sender_id, sender_name, text, mentions, timestamp
		FROM messages
		WHERE group_id = ?
		ORDER BY timestamp ASC, created_at ASC
		LIMIT ?`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var (
			m        Message
			mentions string
		)
		if err := rows.Scan(&m.ID, &m.GroupID, &m.SenderID, &m.SenderName, &m.Text, &mentions, &m.Timestamp); err != nil {
			return nil, err
		}
		if mentions != "" {
			m.Mentions = strings.Split(mentions, ",")
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
