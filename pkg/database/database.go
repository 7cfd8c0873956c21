package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("username already registered")
	// ErrRoomNotFound indicates the room does not exist.
	ErrRoomNotFound = errors.New("room not found")
	// ErrUnknownMember indicates a room member list referenced an unknown user.
	ErrUnknownMember = errors.New("unknown room member")
	// ErrNotRoomMember indicates the sender is not a member of the target room.
	ErrNotRoomMember = errors.New("sender is not a member of this room")
)

// DB wraps the SQLite database connection
type DB struct {
	conn      *sql.DB // Read connection pool
	writeConn *sql.DB // Dedicated write connection (1 connection)
}

// Open opens a connection to the SQLite database at the given path
// and initializes the schema if needed
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows multiple readers and one writer at the same time
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := applyPragmas(conn); err != nil {
		conn.Close()
		return nil, err
	}

	// Dedicated write connection: exactly 1 connection, no pooling. All
	// writes funnel through it, which is what gives messages their total
	// per-room order and keeps registration + pairwise-room creation atomic.
	writeConn, err := sql.Open("sqlite", path)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open write connection: %w", err)
	}
	writeConn.SetMaxOpenConns(1)
	writeConn.SetMaxIdleConns(1)
	writeConn.SetConnMaxLifetime(0)

	if err := applyPragmas(writeConn); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, err
	}

	db := &DB{
		conn:      conn,
		writeConn: writeConn,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func applyPragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connections
func (db *DB) Close() error {
	db.writeConn.Close()
	return db.conn.Close()
}

// initSchema creates all tables and indexes if they don't exist
func (db *DB) initSchema() error {
	schema := `
-- Registered accounts
CREATE TABLE IF NOT EXISTS Users (
	uid INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

-- Rooms (pairwise rooms are auto-created at registration)
CREATE TABLE IF NOT EXISTS Rooms (
	room_id INTEGER PRIMARY KEY AUTOINCREMENT,
	room_name TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS RoomMembers (
	room_id INTEGER NOT NULL,
	uid INTEGER NOT NULL,
	PRIMARY KEY (room_id, uid),
	FOREIGN KEY (room_id) REFERENCES Rooms(room_id) ON DELETE CASCADE,
	FOREIGN KEY (uid) REFERENCES Users(uid) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS Messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_uid INTEGER NOT NULL,
	to_room_id INTEGER NOT NULL,
	message TEXT NOT NULL,
	date INTEGER NOT NULL,
	read INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (from_uid) REFERENCES Users(uid),
	FOREIGN KEY (to_room_id) REFERENCES Rooms(room_id) ON DELETE CASCADE
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_members_uid ON RoomMembers(uid);
CREATE INDEX IF NOT EXISTS idx_messages_room ON Messages(to_room_id, date, id);
CREATE INDEX IF NOT EXISTS idx_messages_unread ON Messages(to_room_id, read) WHERE read = 0;
`

	_, err := db.conn.Exec(schema)
	return err
}

// User represents a registered account
type User struct {
	ID           int64
	Username     string
	PasswordHash string // bcrypt hash
	CreatedAt    int64  // Unix timestamp in milliseconds
}

// Room represents a room record
type Room struct {
	ID        int64
	Name      string
	CreatedAt int64 // Unix timestamp in milliseconds
}

// Message represents a stored message
type Message struct {
	ID        int64
	SenderID  int64
	RoomID    int64
	Body      string
	CreatedAt int64 // Unix timestamp in milliseconds
	Read      bool
}

// nowMillis returns current time as Unix timestamp in milliseconds
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
