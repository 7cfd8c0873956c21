package server

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yuru108/Retro-Messenger/pkg/database"
	"github.com/yuru108/Retro-Messenger/pkg/protocol"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)

	// ErrClientDisconnecting is returned when the client sends a graceful disconnect
	ErrClientDisconnecting = errors.New("client disconnecting")

	// ErrAuthRejected is returned when the handshake fails; the connection is
	// closed, the client must reconnect to retry
	ErrAuthRejected = errors.New("authentication rejected")
)

// dbError logs a database error and sends an error response to the client
func (s *Server) dbError(sess *Session, operation string, err error) error {
	errorLog.Printf("Session %d: %s failed: %v", sess.ID, operation, err)
	return s.sendError(sess, protocol.ErrCodeDatabaseError, "Database error")
}

// rejectAuth sends a failed AUTH_RESPONSE and signals the loop to close the
// connection
func (s *Server) rejectAuth(sess *Session, message string) error {
	if s.metrics != nil {
		s.metrics.RecordAuthFailure()
	}
	resp := &protocol.AuthResponseMessage{
		Success: false,
		Message: message,
	}
	if err := s.sendMessage(sess, protocol.TypeAuthResponse, resp); err != nil {
		return err
	}
	return ErrAuthRejected
}

// handleRegister handles REGISTER (create account + login in one step)
func (s *Server) handleRegister(sess *Session, frame *protocol.Frame) error {
	if sess.Authenticated() {
		return s.sendError(sess, protocol.ErrCodeInvalidInput, "Already authenticated")
	}

	msg := &protocol.RegisterMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		log.Printf("Session %d: REGISTER decode failed: %v", sess.ID, err)
		return s.rejectAuth(sess, "Invalid username or password format")
	}

	if !usernameRegex.MatchString(msg.Username) {
		return s.rejectAuth(sess, "Invalid username. Must be 3-20 characters, alphanumeric plus - and _")
	}
	if msg.Password == "" {
		return s.rejectAuth(sess, "Password must not be empty")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(msg.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Session %d: bcrypt.GenerateFromPassword failed: %v", sess.ID, err)
		return s.rejectAuth(sess, "Registration failed")
	}

	user, err := s.db.CreateUser(msg.Username, string(hashedPassword))
	if err != nil {
		if errors.Is(err, database.ErrUsernameTaken) {
			log.Printf("Session %d: REGISTER failed - username %s taken", sess.ID, msg.Username)
			return s.rejectAuth(sess, "Username already taken")
		}
		errorLog.Printf("Session %d: CreateUser failed: %v", sess.ID, err)
		return s.rejectAuth(sess, "Registration failed")
	}

	s.bindSession(sess, user)

	log.Printf("Session %d: REGISTER succeeded for user %s (id=%d)", sess.ID, user.Username, user.ID)
	resp := &protocol.AuthResponseMessage{
		Success:  true,
		UserID:   uint64(user.ID),
		Username: user.Username,
		Message:  fmt.Sprintf("Welcome, %s!", user.Username),
	}
	return s.sendMessage(sess, protocol.TypeAuthResponse, resp)
}

// handleLogin handles LOGIN. Unknown username and wrong password produce the
// same response, so a caller cannot tell which names are registered.
func (s *Server) handleLogin(sess *Session, frame *protocol.Frame) error {
	if sess.Authenticated() {
		return s.sendError(sess, protocol.ErrCodeInvalidInput, "Already authenticated")
	}

	msg := &protocol.LoginMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		log.Printf("Session %d: LOGIN decode failed: %v", sess.ID, err)
		return s.rejectAuth(sess, "Invalid credentials")
	}

	user, err := s.db.GetUserByUsername(msg.Username)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			log.Printf("Session %d: LOGIN failed - username %s not registered", sess.ID, msg.Username)
			return s.rejectAuth(sess, "Invalid credentials")
		}
		errorLog.Printf("Session %d: GetUserByUsername failed: %v", sess.ID, err)
		return s.rejectAuth(sess, "Invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(msg.Password)); err != nil {
		log.Printf("Session %d: LOGIN failed - password verification failed for user %s", sess.ID, msg.Username)
		return s.rejectAuth(sess, "Invalid credentials")
	}

	s.bindSession(sess, user)

	log.Printf("Session %d: LOGIN succeeded for user %s (id=%d)", sess.ID, user.Username, user.ID)
	resp := &protocol.AuthResponseMessage{
		Success:  true,
		UserID:   uint64(user.ID),
		Username: user.Username,
		Message:  fmt.Sprintf("Welcome back, %s!", user.Username),
	}
	return s.sendMessage(sess, protocol.TypeAuthResponse, resp)
}

// bindSession binds the identity to this session; an earlier session for the
// same user is replaced and its connection closed
func (s *Server) bindSession(sess *Session, user *database.User) {
	if old := s.sessions.Bind(user.ID, user.Username, sess); old != nil {
		log.Printf("Session %d: replaced earlier session %d for user %s", sess.ID, old.ID, user.Username)
	}
}

// handleLogout handles LOGOUT: the identity binding is released and the
// connection closed, like DISCONNECT but with a confirmation first
func (s *Server) handleLogout(sess *Session, frame *protocol.Frame) error {
	userID, username := sess.User()

	resp := &protocol.AuthResponseMessage{
		Success:  true,
		UserID:   uint64(userID),
		Username: username,
		Message:  "Logged out",
	}
	if err := s.sendMessage(sess, protocol.TypeAuthResponse, resp); err != nil {
		return err
	}

	log.Printf("Session %d: user %s (id=%d) logged out", sess.ID, username, userID)
	s.sessions.RemoveSession(sess.ID)
	return ErrClientDisconnecting
}

// handleSendMessage handles SEND_MESSAGE: the message is durably appended
// before the sender is acknowledged, then pushed to every other online member
// of the room
func (s *Server) handleSendMessage(sess *Session, frame *protocol.Frame) error {
	msg := &protocol.SendMessageMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		if errors.Is(err, protocol.ErrEmptyBody) {
			return s.sendError(sess, protocol.ErrCodeInvalidInput, "Message body cannot be empty")
		}
		return s.sendError(sess, protocol.ErrCodeInvalidFormat, "Invalid message format")
	}

	if uint32(len(msg.Body)) > s.config.MaxMessageLength {
		return s.sendError(sess, protocol.ErrCodeMessageTooLong,
			fmt.Sprintf("Message exceeds maximum length of %d bytes", s.config.MaxMessageLength))
	}

	userID, username := sess.User()

	stored, err := s.db.AppendMessage(userID, int64(msg.RoomID), msg.Body)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrRoomNotFound):
			return s.sendError(sess, protocol.ErrCodeRoomNotFound, "Room not found")
		case errors.Is(err, database.ErrNotRoomMember):
			return s.sendError(sess, protocol.ErrCodeUnknownMember, "Not a member of this room")
		default:
			return s.dbError(sess, "AppendMessage", err)
		}
	}

	// The row is committed; acknowledge before fan-out
	ack := &protocol.MessageSentMessage{
		Success:   true,
		MessageID: uint64(stored.ID),
		Message:   "Message delivered",
	}
	if err := s.sendMessage(sess, protocol.TypeMessageSent, ack); err != nil {
		return err
	}

	s.pushNewMessage(sess, stored, username)
	return nil
}

// pushNewMessage pushes NEW_MESSAGE to every online room member except the
// sender. The frame is encoded once and written to each recipient.
func (s *Server) pushNewMessage(sender *Session, stored *database.Message, senderName string) {
	members, err := s.db.RoomMembers(stored.RoomID)
	if err != nil {
		errorLog.Printf("Session %d: RoomMembers failed during push: %v", sender.ID, err)
		return
	}

	push := protocol.NewMessageMessage(roomMessageFromDB(stored, senderName))
	payload, err := push.Encode()
	if err != nil {
		errorLog.Printf("Failed to encode NEW_MESSAGE %d: %v", stored.ID, err)
		return
	}
	frameBytes, err := protocol.EncodeMessage(protocol.ProtocolVersion, protocol.TypeNewMessage, 0, payload)
	if err != nil {
		errorLog.Printf("Failed to encode NEW_MESSAGE frame %d: %v", stored.ID, err)
		return
	}

	recipients := 0
	for _, uid := range members {
		if uid == stored.SenderID {
			continue
		}
		target, ok := s.sessions.SessionFor(uid)
		if !ok {
			continue
		}
		if err := target.Conn.WriteBytes(frameBytes); err != nil {
			debugLog.Printf("Session %d: push write failed: %v", target.ID, err)
			s.sessions.RemoveSession(target.ID)
			continue
		}
		recipients++
	}

	debugLog.Printf("Pushed message %d to %d/%d members of room %d", stored.ID, recipients, len(members)-1, stored.RoomID)
	if s.metrics != nil {
		s.metrics.RecordMessagePushed(recipients)
		s.metrics.RecordMessageSent(messageTypeToString(protocol.TypeNewMessage))
	}
}

// handleGetHistory handles GET_HISTORY. Fetching history marks every returned
// message read; this is the only operation that consumes unread state.
func (s *Server) handleGetHistory(sess *Session, frame *protocol.Frame) error {
	msg := &protocol.GetHistoryMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return s.sendError(sess, protocol.ErrCodeInvalidFormat, "Invalid message format")
	}

	userID, _ := sess.User()
	roomID := int64(msg.RoomID)

	if err := s.requireMembership(sess, roomID, userID); err != nil {
		return err
	}

	messages, err := s.db.RoomHistory(roomID)
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			return s.sendError(sess, protocol.ErrCodeRoomNotFound, "Room not found")
		}
		return s.dbError(sess, "RoomHistory", err)
	}

	names, err := s.usernamesByID()
	if err != nil {
		return s.dbError(sess, "ListUsers", err)
	}

	resp := &protocol.MessageHistoryMessage{
		RoomID:      msg.RoomID,
		HasMessages: len(messages) > 0,
	}
	for _, m := range messages {
		wire := roomMessageFromDB(m, names[m.SenderID])
		wire.Read = true // Marked read by this fetch
		resp.Messages = append(resp.Messages, wire)
	}

	return s.sendMessage(sess, protocol.TypeMessageHistory, resp)
}

// handleGetUnread handles GET_UNREAD, a read-only peek at unread messages
// across the user's rooms. Read state is not touched.
func (s *Server) handleGetUnread(sess *Session, frame *protocol.Frame) error {
	userID, _ := sess.User()

	messages, err := s.db.UnreadForUser(userID)
	if err != nil {
		return s.dbError(sess, "UnreadForUser", err)
	}

	names, err := s.usernamesByID()
	if err != nil {
		return s.dbError(sess, "ListUsers", err)
	}

	resp := &protocol.UnreadMessagesMessage{}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, roomMessageFromDB(m, names[m.SenderID]))
	}

	return s.sendMessage(sess, protocol.TypeUnreadMessages, resp)
}

// handleListUsers handles LIST_USERS. Presence comes from the session
// registry; the user store itself knows nothing about connections.
func (s *Server) handleListUsers(sess *Session, frame *protocol.Frame) error {
	users, err := s.db.ListUsers()
	if err != nil {
		return s.dbError(sess, "ListUsers", err)
	}

	resp := &protocol.UserListMessage{
		Users: make([]protocol.UserEntry, 0, len(users)),
	}
	for _, u := range users {
		resp.Users = append(resp.Users, protocol.UserEntry{
			ID:       uint64(u.ID),
			Username: u.Username,
			Online:   s.sessions.IsOnline(u.ID),
		})
	}

	return s.sendMessage(sess, protocol.TypeUserList, resp)
}

// handleListRooms handles LIST_ROOMS, returning the caller's rooms with
// their member lists
func (s *Server) handleListRooms(sess *Session, frame *protocol.Frame) error {
	userID, _ := sess.User()

	rooms, err := s.db.RoomsForUser(userID)
	if err != nil {
		return s.dbError(sess, "RoomsForUser", err)
	}

	resp := &protocol.RoomListMessage{
		Rooms: make([]protocol.RoomEntry, 0, len(rooms)),
	}
	for _, room := range rooms {
		members, err := s.db.RoomMembers(room.ID)
		if err != nil {
			return s.dbError(sess, "RoomMembers", err)
		}
		entry := protocol.RoomEntry{
			ID:        uint64(room.ID),
			Name:      room.Name,
			MemberIDs: make([]uint64, 0, len(members)),
		}
		for _, uid := range members {
			entry.MemberIDs = append(entry.MemberIDs, uint64(uid))
		}
		resp.Rooms = append(resp.Rooms, entry)
	}

	return s.sendMessage(sess, protocol.TypeRoomList, resp)
}

// handleCreateRoom handles CREATE_ROOM. The caller is always a member of the
// room they create, whether or not they list themselves.
func (s *Server) handleCreateRoom(sess *Session, frame *protocol.Frame) error {
	msg := &protocol.CreateRoomMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return s.sendError(sess, protocol.ErrCodeInvalidFormat, "Invalid message format")
	}

	if msg.Name == "" {
		return s.sendError(sess, protocol.ErrCodeInvalidInput, "Room name cannot be empty")
	}

	userID, _ := sess.User()
	memberIDs := make([]int64, 0, len(msg.MemberIDs)+1)
	includesCaller := false
	for _, id := range msg.MemberIDs {
		memberIDs = append(memberIDs, int64(id))
		if int64(id) == userID {
			includesCaller = true
		}
	}
	if !includesCaller {
		memberIDs = append(memberIDs, userID)
	}

	room, err := s.db.CreateRoom(msg.Name, memberIDs)
	if err != nil {
		if errors.Is(err, database.ErrUnknownMember) {
			return s.sendError(sess, protocol.ErrCodeUnknownMember, "Unknown member in room member list")
		}
		return s.dbError(sess, "CreateRoom", err)
	}

	log.Printf("Session %d: created room %q (id=%d) with %d members", sess.ID, room.Name, room.ID, len(memberIDs))
	resp := &protocol.RoomCreatedMessage{
		Success: true,
		RoomID:  uint64(room.ID),
		Name:    room.Name,
		Message: fmt.Sprintf("Room %q created", room.Name),
	}
	return s.sendMessage(sess, protocol.TypeRoomCreated, resp)
}

// handleRenameRoom handles RENAME_ROOM
func (s *Server) handleRenameRoom(sess *Session, frame *protocol.Frame) error {
	msg := &protocol.RenameRoomMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return s.sendError(sess, protocol.ErrCodeInvalidFormat, "Invalid message format")
	}

	if msg.Name == "" {
		return s.sendError(sess, protocol.ErrCodeInvalidInput, "Room name cannot be empty")
	}

	userID, _ := sess.User()
	roomID := int64(msg.RoomID)

	if err := s.requireMembership(sess, roomID, userID); err != nil {
		return err
	}

	if err := s.db.RenameRoom(roomID, msg.Name); err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			return s.sendError(sess, protocol.ErrCodeRoomNotFound, "Room not found")
		}
		return s.dbError(sess, "RenameRoom", err)
	}

	resp := &protocol.RoomRenamedMessage{
		Success: true,
		RoomID:  msg.RoomID,
		Message: fmt.Sprintf("Room renamed to %q", msg.Name),
	}
	return s.sendMessage(sess, protocol.TypeRoomRenamed, resp)
}

// handlePing handles the PING keepalive
func (s *Server) handlePing(sess *Session, frame *protocol.Frame) error {
	msg := &protocol.PingMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return s.sendError(sess, protocol.ErrCodeInvalidFormat, "Invalid message format")
	}

	sess.Touch(time.Now().UnixMilli())

	resp := &protocol.PongMessage{Timestamp: msg.Timestamp}
	return s.sendMessage(sess, protocol.TypePong, resp)
}

// handleDisconnect handles graceful client disconnect
func (s *Server) handleDisconnect(sess *Session, frame *protocol.Frame) error {
	s.sessions.RemoveSession(sess.ID)
	return ErrClientDisconnecting
}

// requireMembership sends the appropriate error response when roomID does not
// exist or uid is not a member; a nil return means the caller may proceed
func (s *Server) requireMembership(sess *Session, roomID, uid int64) error {
	if _, err := s.db.GetRoom(roomID); err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			return s.sendError(sess, protocol.ErrCodeRoomNotFound, "Room not found")
		}
		return s.dbError(sess, "GetRoom", err)
	}
	isMember, err := s.db.IsRoomMember(roomID, uid)
	if err != nil {
		return s.dbError(sess, "IsRoomMember", err)
	}
	if !isMember {
		return s.sendError(sess, protocol.ErrCodeUnknownMember, "Not a member of this room")
	}
	return nil
}

// usernamesByID builds a uid -> username map for annotating wire messages
func (s *Server) usernamesByID() (map[int64]string, error) {
	users, err := s.db.ListUsers()
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}
	return names, nil
}

// roomMessageFromDB converts a stored message to its wire representation
func roomMessageFromDB(m *database.Message, senderName string) protocol.RoomMessage {
	return protocol.RoomMessage{
		ID:         uint64(m.ID),
		RoomID:     uint64(m.RoomID),
		SenderID:   uint64(m.SenderID),
		SenderName: senderName,
		Body:       m.Body,
		CreatedAt:  time.UnixMilli(m.CreatedAt),
		Read:       m.Read,
	}
}
