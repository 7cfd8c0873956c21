package database

import "fmt"

// AppendMessage persists a message to a room. The row is committed before
// this returns, so the caller may acknowledge the send once it does. All
// appends go through the single write connection, which assigns messages a
// strictly increasing (date, id) order within each room.
func (db *DB) AppendMessage(senderID, roomID int64, body string) (*Message, error) {
	tx, err := db.writeConn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM Rooms WHERE room_id = ?`, roomID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrRoomNotFound
	}

	var isMember int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM RoomMembers WHERE room_id = ? AND uid = ?`, roomID, senderID).Scan(&isMember); err != nil {
		return nil, err
	}
	if isMember == 0 {
		return nil, ErrNotRoomMember
	}

	now := nowMillis()
	result, err := tx.Exec(`
		INSERT INTO Messages (from_uid, to_room_id, message, date, read) VALUES (?, ?, ?, ?, 0)
	`, senderID, roomID, body, now)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Message{
		ID:        id,
		SenderID:  senderID,
		RoomID:    roomID,
		Body:      body,
		CreatedAt: now,
		Read:      false,
	}, nil
}

// RoomHistory returns every message in a room ordered by creation time
// ascending and, in the same transaction, marks them all read. Fetching
// history always consumes the room's unread state; only this call does.
// A message appended after the snapshot is taken is not marked.
func (db *DB) RoomHistory(roomID int64) ([]*Message, error) {
	tx, err := db.writeConn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM Rooms WHERE room_id = ?`, roomID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrRoomNotFound
	}

	rows, err := tx.Query(`
		SELECT id, from_uid, to_room_id, message, date, read
		FROM Messages
		WHERE to_room_id = ?
		ORDER BY date ASC, id ASC
	`, roomID)
	if err != nil {
		return nil, err
	}

	var messages []*Message
	var maxID int64
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.RoomID, &msg.Body, &msg.CreatedAt, &msg.Read); err != nil {
			rows.Close()
			return nil, err
		}
		if msg.ID > maxID {
			maxID = msg.ID
		}
		messages = append(messages, msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Only mark what the snapshot saw
	if len(messages) > 0 {
		if _, err := tx.Exec(`
			UPDATE Messages SET read = 1 WHERE to_room_id = ? AND read = 0 AND id <= ?
		`, roomID, maxID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return messages, nil
}

// UnreadForUser returns unread messages in any room the user belongs to,
// authored by someone else. It never mutates read state; that is RoomHistory's
// job alone.
func (db *DB) UnreadForUser(uid int64) ([]*Message, error) {
	rows, err := db.conn.Query(`
		SELECT m.id, m.from_uid, m.to_room_id, m.message, m.date, m.read
		FROM Messages m
		JOIN RoomMembers rm ON rm.room_id = m.to_room_id
		WHERE rm.uid = ? AND m.from_uid != ? AND m.read = 0
		ORDER BY m.date ASC, m.id ASC
	`, uid, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.RoomID, &msg.Body, &msg.CreatedAt, &msg.Read); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the number of messages in a room
func (db *DB) CountMessages(roomID int64) (int64, error) {
	var count int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM Messages WHERE to_room_id = ?`, roomID).Scan(&count)
	return count, err
}
