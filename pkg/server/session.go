package server

import (
	"net"
	"sync"
	"sync/atomic"
)

// Session represents an active client connection
type Session struct {
	ID           uint64
	Conn         *SafeConn // Connection with automatic write synchronization
	RemoteAddr   string
	UserID       int64  // Bound user ID (0 until authenticated)
	Username     string // Bound username (empty until authenticated)
	mu           sync.RWMutex
	lastActivity int64 // Unix millis, atomic
}

// SetUser binds an authenticated identity to the session
func (s *Session) SetUser(userID int64, username string) {
	s.mu.Lock()
	s.UserID = userID
	s.Username = username
	s.mu.Unlock()
}

// User returns the bound identity, or (0, "") for an unauthenticated session
func (s *Session) User() (int64, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID, s.Username
}

// Authenticated reports whether the session has completed the handshake
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID != 0
}

// Touch records activity for idle detection
func (s *Session) Touch(now int64) {
	atomic.StoreInt64(&s.lastActivity, now)
}

// LastActivity returns the last recorded activity time in Unix millis
func (s *Session) LastActivity() int64 {
	return atomic.LoadInt64(&s.lastActivity)
}

// SessionManager tracks all live connections and the identity -> session
// binding. At most one session exists per user: a second login replaces the
// first and closes its connection.
type SessionManager struct {
	sessions map[uint64]*Session // sessionID -> session (all connections)
	byUser   map[int64]*Session  // userID -> authenticated session
	nextID   uint64
	mu       sync.RWMutex
	metrics  *Metrics
}

// NewSessionManager creates a new session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[uint64]*Session),
		byUser:   make(map[int64]*Session),
		nextID:   1,
	}
}

// SetMetrics attaches metrics to the session manager
func (sm *SessionManager) SetMetrics(metrics *Metrics) {
	sm.metrics = metrics
}

// CreateSession registers a new unauthenticated connection
func (sm *SessionManager) CreateSession(conn net.Conn, now int64) *Session {
	sessionID := atomic.AddUint64(&sm.nextID, 1) - 1

	sess := &Session{
		ID:         sessionID,
		Conn:       NewSafeConn(conn),
		RemoteAddr: conn.RemoteAddr().String(),
	}
	sess.Touch(now)

	sm.mu.Lock()
	sm.sessions[sessionID] = sess
	sessionCount := len(sm.sessions)
	sm.mu.Unlock()

	if sm.metrics != nil {
		sm.metrics.RecordActiveSessions(sessionCount)
		sm.metrics.RecordSessionCreated()
	}

	return sess
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(sessionID uint64) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sess, ok := sm.sessions[sessionID]
	return sess, ok
}

// Bind binds an authenticated identity to a session. If the user already has
// a live session, that session is replaced and its connection closed.
// Returns the replaced session, if any.
func (sm *SessionManager) Bind(userID int64, username string, sess *Session) *Session {
	sess.SetUser(userID, username)

	sm.mu.Lock()
	old := sm.byUser[userID]
	if old == sess {
		old = nil
	}
	sm.byUser[userID] = sess
	if old != nil {
		delete(sm.sessions, old.ID)
	}
	sessionCount := len(sm.sessions)
	sm.mu.Unlock()

	if old != nil {
		old.Conn.Close()
		if sm.metrics != nil {
			sm.metrics.RecordActiveSessions(sessionCount)
			sm.metrics.RecordSessionDisconnected()
		}
	}
	return old
}

// Unbind releases the identity binding for a session. Idempotent: unbinding
// an already-unbound user, or a user bound to a different session, is a no-op.
func (sm *SessionManager) Unbind(userID int64, sess *Session) {
	if userID == 0 {
		return
	}
	sm.mu.Lock()
	if sm.byUser[userID] == sess {
		delete(sm.byUser, userID)
	}
	sm.mu.Unlock()
}

// IsOnline reports whether the user has a live session
func (sm *SessionManager) IsOnline(userID int64) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	_, ok := sm.byUser[userID]
	return ok
}

// SessionFor returns the live session for a user
func (sm *SessionManager) SessionFor(userID int64) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sess, ok := sm.byUser[userID]
	return sess, ok
}

// GetAllSessions returns all active sessions
func (sm *SessionManager) GetAllSessions() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// RemoveSession removes a session and closes its connection. Safe to call
// more than once for the same session.
func (sm *SessionManager) RemoveSession(sessionID uint64) {
	sm.mu.Lock()
	sess, ok := sm.sessions[sessionID]
	if !ok {
		sm.mu.Unlock()
		return
	}
	delete(sm.sessions, sessionID)
	userID, _ := sess.User()
	if userID != 0 && sm.byUser[userID] == sess {
		delete(sm.byUser, userID)
	}
	sessionCount := len(sm.sessions)
	sm.mu.Unlock()

	if sm.metrics != nil {
		sm.metrics.RecordActiveSessions(sessionCount)
		sm.metrics.RecordSessionDisconnected()
	}

	sess.Conn.Close()
}

// CountOnlineUsers returns the number of authenticated users currently connected
func (sm *SessionManager) CountOnlineUsers() uint32 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return uint32(len(sm.byUser))
}

// CloseAll closes all sessions
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, sess := range sm.sessions {
		sess.Conn.Close()
	}

	sm.sessions = make(map[uint64]*Session)
	sm.byUser = make(map[int64]*Session)
}
