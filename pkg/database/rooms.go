package database

import (
	"database/sql"
	"fmt"
)

// CreateRoom creates a named room with an explicit member list. Every member
// id must resolve to a registered user; the room and its membership are
// inserted in one transaction.
func (db *DB) CreateRoom(name string, memberIDs []int64) (*Room, error) {
	if len(memberIDs) == 0 {
		return nil, ErrUnknownMember
	}

	tx, err := db.writeConn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, uid := range memberIDs {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM Users WHERE uid = ?`, uid).Scan(&exists); err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, fmt.Errorf("%w: uid %d", ErrUnknownMember, uid)
		}
	}

	now := nowMillis()
	result, err := tx.Exec(`INSERT INTO Rooms (room_name, created_at) VALUES (?, ?)`, name, now)
	if err != nil {
		return nil, err
	}
	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	for _, uid := range memberIDs {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO RoomMembers (room_id, uid) VALUES (?, ?)`, roomID, uid); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Room{ID: roomID, Name: name, CreatedAt: now}, nil
}

// RenameRoom changes a room's display name
func (db *DB) RenameRoom(roomID int64, name string) error {
	result, err := db.writeConn.Exec(`UPDATE Rooms SET room_name = ? WHERE room_id = ?`, name, roomID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// GetRoom returns a room by id
func (db *DB) GetRoom(roomID int64) (*Room, error) {
	room := &Room{}
	err := db.conn.QueryRow(`
		SELECT room_id, room_name, created_at FROM Rooms WHERE room_id = ?
	`, roomID).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

// RoomsForUser returns all rooms the user is a member of
func (db *DB) RoomsForUser(uid int64) ([]*Room, error) {
	rows, err := db.conn.Query(`
		SELECT r.room_id, r.room_name, r.created_at
		FROM Rooms r
		JOIN RoomMembers rm ON rm.room_id = r.room_id
		WHERE rm.uid = ?
		ORDER BY r.room_id
	`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*Room
	for rows.Next() {
		room := &Room{}
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// RoomMembers returns the member ids of a room
func (db *DB) RoomMembers(roomID int64) ([]int64, error) {
	if _, err := db.GetRoom(roomID); err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(`SELECT uid FROM RoomMembers WHERE room_id = ? ORDER BY uid`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		members = append(members, uid)
	}
	return members, rows.Err()
}

// IsRoomMember reports whether the user belongs to the room
func (db *DB) IsRoomMember(roomID, uid int64) (bool, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM RoomMembers WHERE room_id = ? AND uid = ?`, roomID, uid).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
