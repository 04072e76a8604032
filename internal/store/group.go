package store

import (
	"database/sql"
	"errors"
	"time"
)

// CreateGroup inserts a group together with its initial members.
func (db *DB) CreateGroup(g *Group, memberIDs []string) error {
	now := time.Now().UnixMilli()
	if g.CreatedAt == 0 {
		g.CreatedAt = now
	}
	return db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO chat_groups (id, name, created_at, updated_at)
			VALUES (?, ?, ?, ?)`, g.ID, g.Name, g.CreatedAt, now); err != nil {
			return err
		}
		for _, uid := range memberIDs {
			if _, err := tx.Exec(`
				INSERT INTO members (group_id, user_id, joined_at) VALUES (?, ?, ?)
				ON CONFLICT(group_id, user_id) DO NOTHING`, g.ID, uid, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// RenameGroup updates a group's display name.
func (db *DB) RenameGroup(id, name string) error {
	res, err := db.Exec(`UPDATE chat_groups SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// DeleteGroup removes a group; members and messages cascade.
func (db *DB) DeleteGroup(id string) error {
	res, err := db.Exec(`DELETE FROM chat_groups WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// GetGroup returns a single group, or nil if it does not exist.
func (db *DB) GetGroup(id string) (*Group, error) {
	var g Group
	err := db.QueryRow(`SELECT id, name, created_at FROM chat_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// AddMember adds userID to a group. Adding an existing member is a no-op.
func (db *DB) AddMember(groupID, userID string) error {
	_, err := db.Exec(`
		INSERT INTO members (group_id, user_id, joined_at) VALUES (?, ?, ?)
		ON CONFLICT(group_id, user_id) DO NOTHING`, groupID, userID, time.Now().UnixMilli())
	return err
}

// RemoveMember removes userID from a group.
func (db *DB) RemoveMember(groupID, userID string) error {
	res, err := db.Exec(`DELETE FROM members WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// IsMember reports whether userID belongs to the group.
func (db *DB) IsMember(groupID, userID string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM members WHERE group_id = ? AND user_id = ?`, groupID, userID).Scan(&n)
	return n > 0, err
}

// Members returns the user ids of a group, oldest member first.
func (db *DB) Members(groupID string) ([]string, error) {
	rows, err := db.Query(`SELECT user_id FROM members WHERE group_id = ? ORDER BY joined_at, user_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

// GroupsForUser returns the roster of userID ordered by creation time.
func (db *DB) GroupsForUser(userID string) ([]Group, error) {
	rows, err := db.Query(`
		SELECT g.id, g.name, g.created_at
		FROM chat_groups g
		JOIN members m ON m.group_id = g.id
		WHERE m.user_id = ?
		ORDER BY g.created_at, g.id`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
