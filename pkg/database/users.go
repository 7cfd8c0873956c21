package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// CreateUser registers a new account. In the same transaction it creates one
// pairwise room between the new user and every pre-existing user, so every
// pair of registered users always has exactly one standing room. A concurrent
// registration never observes a partially created pairwise set.
func (db *DB) CreateUser(username, passwordHash string) (*User, error) {
	tx, err := db.writeConn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT COUNT(*) FROM Users WHERE username = ?`, username).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, ErrUsernameTaken
	}

	// Collect existing users before inserting the new one
	rows, err := tx.Query(`SELECT uid, username FROM Users ORDER BY uid`)
	if err != nil {
		return nil, err
	}
	type peer struct {
		uid      int64
		username string
	}
	var peers []peer
	for rows.Next() {
		var p peer
		if err := rows.Scan(&p.uid, &p.username); err != nil {
			rows.Close()
			return nil, err
		}
		peers = append(peers, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := nowMillis()
	result, err := tx.Exec(`INSERT INTO Users (username, password, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, now)
	if err != nil {
		// The UNIQUE constraint backstops the existence check above
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	uid, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	// One pairwise room per existing user
	for _, p := range peers {
		roomName := fmt.Sprintf("%s & %s", username, p.username)
		roomResult, err := tx.Exec(`INSERT INTO Rooms (room_name, created_at) VALUES (?, ?)`, roomName, now)
		if err != nil {
			return nil, err
		}
		roomID, err := roomResult.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get room ID: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO RoomMembers (room_id, uid) VALUES (?, ?), (?, ?)`,
			roomID, uid, roomID, p.uid); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &User{ID: uid, Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// GetUserByUsername returns the user with the given username
func (db *DB) GetUserByUsername(username string) (*User, error) {
	user := &User{}
	err := db.conn.QueryRow(`
		SELECT uid, username, password, created_at FROM Users WHERE username = ?
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID returns the user with the given id
func (db *DB) GetUserByID(uid int64) (*User, error) {
	user := &User{}
	err := db.conn.QueryRow(`
		SELECT uid, username, password, created_at FROM Users WHERE uid = ?
	`, uid).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns all registered users. Presence is not a store concept;
// callers attach it from the session registry.
func (db *DB) ListUsers() ([]*User, error) {
	rows, err := db.conn.Query(`SELECT uid, username, password, created_at FROM Users ORDER BY uid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user := &User{}
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CountUsers returns the number of registered users
func (db *DB) CountUsers() (int64, error) {
	var count int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM Users`).Scan(&count)
	return count, err
}
