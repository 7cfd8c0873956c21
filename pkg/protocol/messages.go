package protocol

import (
	"bytes"
	"errors"
	"io"
	"math"
	"time"
)

// ProtocolMessage interface - all protocol messages must implement this
type ProtocolMessage interface {
	// Encode serializes the message to bytes (convenience wrapper)
	Encode() ([]byte, error)
	// EncodeTo serializes the message directly to a writer (efficient)
	EncodeTo(w io.Writer) error
	// Decode deserializes the message from bytes
	Decode(payload []byte) error
}

// Message type constants (Client → Server)
const (
	TypeRegister    = 0x01
	TypeLogin       = 0x02
	TypeSendMessage = 0x03
	TypeGetHistory  = 0x04
	TypeGetUnread   = 0x05
	TypeListUsers   = 0x06
	TypeListRooms   = 0x07
	TypeCreateRoom  = 0x08
	TypeRenameRoom  = 0x09
	TypeLogout      = 0x0A
	TypePing        = 0x10
	TypeDisconnect  = 0x11
)

// Message type constants (Server → Client)
const (
	TypeAuthResponse   = 0x81
	TypeMessageSent    = 0x82
	TypeMessageHistory = 0x83
	TypeUnreadMessages = 0x84
	TypeUserList       = 0x85
	TypeRoomList       = 0x86
	TypeRoomCreated    = 0x87
	TypeRoomRenamed    = 0x88
	TypeNewMessage     = 0x8D
	TypePong           = 0x90
	TypeError          = 0x91
	TypeServerConfig   = 0x98
)

// Error codes
const (
	// Protocol errors (1xxx)
	ErrCodeInvalidFormat   = 1000
	ErrCodeUnsupportedType = 1001

	// Authentication errors (2xxx)
	ErrCodeAuthRequired       = 2000
	ErrCodeInvalidCredentials = 2001

	// Resource errors (4xxx)
	ErrCodeRoomNotFound  = 4001
	ErrCodeUnknownMember = 4002

	// Validation errors (6xxx)
	ErrCodeInvalidInput    = 6000
	ErrCodeMessageTooLong  = 6001
	ErrCodeUsernameTaken   = 6002
	ErrCodeInvalidUsername = 6003

	// Server errors (9xxx)
	ErrCodeInternalError = 9000
	ErrCodeDatabaseError = 9001
)

var (
	ErrUsernameTooShort = errors.New("username must be at least 3 characters")
	ErrUsernameTooLong  = errors.New("username must be at most 20 characters")
	ErrEmptyBody        = errors.New("message body cannot be empty")
	ErrTooManyMessages  = errors.New("message list exceeds the uint16 wire count")
)

// RoomMessage is the wire representation of a stored message. It is shared
// by MESSAGE_HISTORY, UNREAD_MESSAGES, and the NEW_MESSAGE push.
type RoomMessage struct {
	ID         uint64
	RoomID     uint64
	SenderID   uint64
	SenderName string
	Body       string
	CreatedAt  time.Time
	Read       bool
}

func writeRoomMessage(w io.Writer, m *RoomMessage) error {
	if err := WriteUint64(w, m.ID); err != nil {
		return err
	}
	if err := WriteUint64(w, m.RoomID); err != nil {
		return err
	}
	if err := WriteUint64(w, m.SenderID); err != nil {
		return err
	}
	if err := WriteString(w, m.SenderName); err != nil {
		return err
	}
	if err := WriteString(w, m.Body); err != nil {
		return err
	}
	if err := WriteTimestamp(w, m.CreatedAt); err != nil {
		return err
	}
	return WriteBool(w, m.Read)
}

func readRoomMessage(r io.Reader) (RoomMessage, error) {
	var m RoomMessage
	var err error
	if m.ID, err = ReadUint64(r); err != nil {
		return m, err
	}
	if m.RoomID, err = ReadUint64(r); err != nil {
		return m, err
	}
	if m.SenderID, err = ReadUint64(r); err != nil {
		return m, err
	}
	if m.SenderName, err = ReadString(r); err != nil {
		return m, err
	}
	if m.Body, err = ReadString(r); err != nil {
		return m, err
	}
	if m.CreatedAt, err = ReadTimestamp(r); err != nil {
		return m, err
	}
	if m.Read, err = ReadBool(r); err != nil {
		return m, err
	}
	return m, nil
}

// RegisterMessage (0x01) - Create a new account
type RegisterMessage struct {
	Username string
	Password string
}

func (m *RegisterMessage) EncodeTo(w io.Writer) error {
	if len(m.Username) < 3 {
		return ErrUsernameTooShort
	}
	if len(m.Username) > 20 {
		return ErrUsernameTooLong
	}
	if err := WriteString(w, m.Username); err != nil {
		return err
	}
	return WriteString(w, m.Password)
}

func (m *RegisterMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *RegisterMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	username, err := ReadString(buf)
	if err != nil {
		return err
	}
	password, err := ReadString(buf)
	if err != nil {
		return err
	}

	if len(username) < 3 {
		return ErrUsernameTooShort
	}
	if len(username) > 20 {
		return ErrUsernameTooLong
	}

	m.Username = username
	m.Password = password
	return nil
}

// LoginMessage (0x02) - Authenticate an existing account
type LoginMessage struct {
	Username string
	Password string
}

func (m *LoginMessage) EncodeTo(w io.Writer) error {
	if err := WriteString(w, m.Username); err != nil {
		return err
	}
	return WriteString(w, m.Password)
}

func (m *LoginMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *LoginMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	username, err := ReadString(buf)
	if err != nil {
		return err
	}
	password, err := ReadString(buf)
	if err != nil {
		return err
	}

	m.Username = username
	m.Password = password
	return nil
}

// AuthResponseMessage (0x81) - Result of REGISTER or LOGIN
type AuthResponseMessage struct {
	Success  bool
	UserID   uint64 // Only present if success=true
	Username string // Only present if success=true
	Message  string
}

func (m *AuthResponseMessage) EncodeTo(w io.Writer) error {
	if err := WriteBool(w, m.Success); err != nil {
		return err
	}
	if m.Success {
		if err := WriteUint64(w, m.UserID); err != nil {
			return err
		}
		if err := WriteString(w, m.Username); err != nil {
			return err
		}
	}
	return WriteString(w, m.Message)
}

func (m *AuthResponseMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *AuthResponseMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	success, err := ReadBool(buf)
	if err != nil {
		return err
	}

	m.Success = success

	if success {
		if m.UserID, err = ReadUint64(buf); err != nil {
			return err
		}
		if m.Username, err = ReadString(buf); err != nil {
			return err
		}
	}

	message, err := ReadString(buf)
	if err != nil {
		return err
	}
	m.Message = message
	return nil
}

// SendMessageMessage (0x03) - Post a message to a room
type SendMessageMessage struct {
	RoomID uint64
	Body   string
}

func (m *SendMessageMessage) EncodeTo(w io.Writer) error {
	if m.Body == "" {
		return ErrEmptyBody
	}
	if err := WriteUint64(w, m.RoomID); err != nil {
		return err
	}
	return WriteString(w, m.Body)
}

func (m *SendMessageMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *SendMessageMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	roomID, err := ReadUint64(buf)
	if err != nil {
		return err
	}
	body, err := ReadString(buf)
	if err != nil {
		return err
	}
	if body == "" {
		return ErrEmptyBody
	}

	m.RoomID = roomID
	m.Body = body
	return nil
}

// MessageSentMessage (0x82) - Acknowledgment for SEND_MESSAGE
type MessageSentMessage struct {
	Success   bool
	MessageID uint64 // Only present if success=true
	Message   string
}

func (m *MessageSentMessage) EncodeTo(w io.Writer) error {
	if err := WriteBool(w, m.Success); err != nil {
		return err
	}
	if m.Success {
		if err := WriteUint64(w, m.MessageID); err != nil {
			return err
		}
	}
	return WriteString(w, m.Message)
}

func (m *MessageSentMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *MessageSentMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	success, err := ReadBool(buf)
	if err != nil {
		return err
	}
	m.Success = success
	if success {
		if m.MessageID, err = ReadUint64(buf); err != nil {
			return err
		}
	}
	if m.Message, err = ReadString(buf); err != nil {
		return err
	}
	return nil
}

// GetHistoryMessage (0x04) - Fetch a room's full history (marks it read)
type GetHistoryMessage struct {
	RoomID uint64
}

func (m *GetHistoryMessage) EncodeTo(w io.Writer) error {
	return WriteUint64(w, m.RoomID)
}

func (m *GetHistoryMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *GetHistoryMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	roomID, err := ReadUint64(buf)
	if err != nil {
		return err
	}
	m.RoomID = roomID
	return nil
}

// MessageHistoryMessage (0x83) - Response to GET_HISTORY.
// HasMessages distinguishes an empty room from a populated one; the original
// server sent a distinct "no history" token rather than an empty list.
type MessageHistoryMessage struct {
	RoomID      uint64
	HasMessages bool
	Messages    []RoomMessage
}

func (m *MessageHistoryMessage) EncodeTo(w io.Writer) error {
	if err := WriteUint64(w, m.RoomID); err != nil {
		return err
	}
	if err := WriteBool(w, m.HasMessages); err != nil {
		return err
	}
	if !m.HasMessages {
		return nil
	}
	if len(m.Messages) > math.MaxUint16 {
		return ErrTooManyMessages
	}
	if err := WriteUint16(w, uint16(len(m.Messages))); err != nil {
		return err
	}
	for i := range m.Messages {
		if err := writeRoomMessage(w, &m.Messages[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MessageHistoryMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *MessageHistoryMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	roomID, err := ReadUint64(buf)
	if err != nil {
		return err
	}
	hasMessages, err := ReadBool(buf)
	if err != nil {
		return err
	}

	m.RoomID = roomID
	m.HasMessages = hasMessages
	m.Messages = nil

	if !hasMessages {
		return nil
	}

	count, err := ReadUint16(buf)
	if err != nil {
		return err
	}
	m.Messages = make([]RoomMessage, 0, count)
	for i := 0; i < int(count); i++ {
		msg, err := readRoomMessage(buf)
		if err != nil {
			return err
		}
		m.Messages = append(m.Messages, msg)
	}
	return nil
}

// GetUnreadMessage (0x05) - Fetch unread messages across all rooms (read-only peek)
type GetUnreadMessage struct{}

func (m *GetUnreadMessage) EncodeTo(w io.Writer) error { return nil }

func (m *GetUnreadMessage) Encode() ([]byte, error) { return []byte{}, nil }

func (m *GetUnreadMessage) Decode(payload []byte) error { return nil }

// UnreadMessagesMessage (0x84) - Response to GET_UNREAD
type UnreadMessagesMessage struct {
	Messages []RoomMessage
}

func (m *UnreadMessagesMessage) EncodeTo(w io.Writer) error {
	if len(m.Messages) > math.MaxUint16 {
		return ErrTooManyMessages
	}
	if err := WriteUint16(w, uint16(len(m.Messages))); err != nil {
		return err
	}
	for i := range m.Messages {
		if err := writeRoomMessage(w, &m.Messages[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *UnreadMessagesMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *UnreadMessagesMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	count, err := ReadUint16(buf)
	if err != nil {
		return err
	}
	m.Messages = make([]RoomMessage, 0, count)
	for i := 0; i < int(count); i++ {
		msg, err := readRoomMessage(buf)
		if err != nil {
			return err
		}
		m.Messages = append(m.Messages, msg)
	}
	return nil
}

// NewMessageMessage (0x8D) - Push notification for a message delivered to a room
type NewMessageMessage RoomMessage

func (m *NewMessageMessage) EncodeTo(w io.Writer) error {
	return writeRoomMessage(w, (*RoomMessage)(m))
}

func (m *NewMessageMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *NewMessageMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	msg, err := readRoomMessage(buf)
	if err != nil {
		return err
	}
	*m = NewMessageMessage(msg)
	return nil
}

// ListUsersMessage (0x06) - Request the user list
type ListUsersMessage struct{}

func (m *ListUsersMessage) EncodeTo(w io.Writer) error { return nil }

func (m *ListUsersMessage) Encode() ([]byte, error) { return []byte{}, nil }

func (m *ListUsersMessage) Decode(payload []byte) error { return nil }

// UserEntry is one row in USER_LIST. Online is attached from the session
// registry; the user store itself has no presence concept.
type UserEntry struct {
	ID       uint64
	Username string
	Online   bool
}

// UserListMessage (0x85) - Response to LIST_USERS
type UserListMessage struct {
	Users []UserEntry
}

func (m *UserListMessage) EncodeTo(w io.Writer) error {
	if err := WriteUint16(w, uint16(len(m.Users))); err != nil {
		return err
	}
	for _, u := range m.Users {
		if err := WriteUint64(w, u.ID); err != nil {
			return err
		}
		if err := WriteString(w, u.Username); err != nil {
			return err
		}
		if err := WriteBool(w, u.Online); err != nil {
			return err
		}
	}
	return nil
}

func (m *UserListMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *UserListMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	count, err := ReadUint16(buf)
	if err != nil {
		return err
	}
	m.Users = make([]UserEntry, 0, count)
	for i := 0; i < int(count); i++ {
		var u UserEntry
		if u.ID, err = ReadUint64(buf); err != nil {
			return err
		}
		if u.Username, err = ReadString(buf); err != nil {
			return err
		}
		if u.Online, err = ReadBool(buf); err != nil {
			return err
		}
		m.Users = append(m.Users, u)
	}
	return nil
}

// ListRoomsMessage (0x07) - Request the caller's room list
type ListRoomsMessage struct{}

func (m *ListRoomsMessage) EncodeTo(w io.Writer) error { return nil }

func (m *ListRoomsMessage) Encode() ([]byte, error) { return []byte{}, nil }

func (m *ListRoomsMessage) Decode(payload []byte) error { return nil }

// RoomEntry is one row in ROOM_LIST
type RoomEntry struct {
	ID        uint64
	Name      string
	MemberIDs []uint64
}

// RoomListMessage (0x86) - Response to LIST_ROOMS
type RoomListMessage struct {
	Rooms []RoomEntry
}

func (m *RoomListMessage) EncodeTo(w io.Writer) error {
	if err := WriteUint16(w, uint16(len(m.Rooms))); err != nil {
		return err
	}
	for _, room := range m.Rooms {
		if err := WriteUint64(w, room.ID); err != nil {
			return err
		}
		if err := WriteString(w, room.Name); err != nil {
			return err
		}
		if err := WriteUint16(w, uint16(len(room.MemberIDs))); err != nil {
			return err
		}
		for _, id := range room.MemberIDs {
			if err := WriteUint64(w, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *RoomListMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *RoomListMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	count, err := ReadUint16(buf)
	if err != nil {
		return err
	}
	m.Rooms = make([]RoomEntry, 0, count)
	for i := 0; i < int(count); i++ {
		var room RoomEntry
		if room.ID, err = ReadUint64(buf); err != nil {
			return err
		}
		if room.Name, err = ReadString(buf); err != nil {
			return err
		}
		memberCount, err := ReadUint16(buf)
		if err != nil {
			return err
		}
		room.MemberIDs = make([]uint64, 0, memberCount)
		for j := 0; j < int(memberCount); j++ {
			id, err := ReadUint64(buf)
			if err != nil {
				return err
			}
			room.MemberIDs = append(room.MemberIDs, id)
		}
		m.Rooms = append(m.Rooms, room)
	}
	return nil
}

// CreateRoomMessage (0x08) - Create a named room with an explicit member list
type CreateRoomMessage struct {
	Name      string
	MemberIDs []uint64
}

func (m *CreateRoomMessage) EncodeTo(w io.Writer) error {
	if err := WriteString(w, m.Name); err != nil {
		return err
	}
	if err := WriteUint16(w, uint16(len(m.MemberIDs))); err != nil {
		return err
	}
	for _, id := range m.MemberIDs {
		if err := WriteUint64(w, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *CreateRoomMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *CreateRoomMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	name, err := ReadString(buf)
	if err != nil {
		return err
	}
	count, err := ReadUint16(buf)
	if err != nil {
		return err
	}
	members := make([]uint64, 0, count)
	for i := 0; i < int(count); i++ {
		id, err := ReadUint64(buf)
		if err != nil {
			return err
		}
		members = append(members, id)
	}

	m.Name = name
	m.MemberIDs = members
	return nil
}

// RoomCreatedMessage (0x87) - Response to CREATE_ROOM
type RoomCreatedMessage struct {
	Success bool
	RoomID  uint64 // Only present if success=true
	Name    string // Only present if success=true
	Message string
}

func (m *RoomCreatedMessage) EncodeTo(w io.Writer) error {
	if err := WriteBool(w, m.Success); err != nil {
		return err
	}
	if m.Success {
		if err := WriteUint64(w, m.RoomID); err != nil {
			return err
		}
		if err := WriteString(w, m.Name); err != nil {
			return err
		}
	}
	return WriteString(w, m.Message)
}

func (m *RoomCreatedMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *RoomCreatedMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	success, err := ReadBool(buf)
	if err != nil {
		return err
	}
	m.Success = success
	if success {
		if m.RoomID, err = ReadUint64(buf); err != nil {
			return err
		}
		if m.Name, err = ReadString(buf); err != nil {
			return err
		}
	}
	if m.Message, err = ReadString(buf); err != nil {
		return err
	}
	return nil
}

// RenameRoomMessage (0x09) - Rename an existing room
type RenameRoomMessage struct {
	RoomID uint64
	Name   string
}

func (m *RenameRoomMessage) EncodeTo(w io.Writer) error {
	if err := WriteUint64(w, m.RoomID); err != nil {
		return err
	}
	return WriteString(w, m.Name)
}

func (m *RenameRoomMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *RenameRoomMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	roomID, err := ReadUint64(buf)
	if err != nil {
		return err
	}
	name, err := ReadString(buf)
	if err != nil {
		return err
	}

	m.RoomID = roomID
	m.Name = name
	return nil
}

// RoomRenamedMessage (0x88) - Response to RENAME_ROOM
type RoomRenamedMessage struct {
	Success bool
	RoomID  uint64
	Message string
}

func (m *RoomRenamedMessage) EncodeTo(w io.Writer) error {
	if err := WriteBool(w, m.Success); err != nil {
		return err
	}
	if err := WriteUint64(w, m.RoomID); err != nil {
		return err
	}
	return WriteString(w, m.Message)
}

func (m *RoomRenamedMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *RoomRenamedMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	success, err := ReadBool(buf)
	if err != nil {
		return err
	}
	roomID, err := ReadUint64(buf)
	if err != nil {
		return err
	}
	message, err := ReadString(buf)
	if err != nil {
		return err
	}

	m.Success = success
	m.RoomID = roomID
	m.Message = message
	return nil
}

// LogoutMessage (0x0A) - Drop the authenticated session
type LogoutMessage struct{}

func (m *LogoutMessage) EncodeTo(w io.Writer) error { return nil }

func (m *LogoutMessage) Encode() ([]byte, error) { return []byte{}, nil }

func (m *LogoutMessage) Decode(payload []byte) error { return nil }

// PingMessage (0x10) - Keepalive request
type PingMessage struct {
	Timestamp int64
}

func (m *PingMessage) EncodeTo(w io.Writer) error {
	return WriteUint64(w, uint64(m.Timestamp))
}

func (m *PingMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *PingMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	ts, err := ReadUint64(buf)
	if err != nil {
		return err
	}
	m.Timestamp = int64(ts)
	return nil
}

// PongMessage (0x90) - Keepalive reply, echoes the ping timestamp
type PongMessage struct {
	Timestamp int64
}

func (m *PongMessage) EncodeTo(w io.Writer) error {
	return WriteUint64(w, uint64(m.Timestamp))
}

func (m *PongMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *PongMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	ts, err := ReadUint64(buf)
	if err != nil {
		return err
	}
	m.Timestamp = int64(ts)
	return nil
}

// DisconnectMessage (0x11) - Graceful close, sent by either side
type DisconnectMessage struct {
	Reason *string
}

func (m *DisconnectMessage) EncodeTo(w io.Writer) error {
	return WriteOptionalString(w, m.Reason)
}

func (m *DisconnectMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *DisconnectMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	reason, err := ReadOptionalString(buf)
	if err != nil {
		return err
	}
	m.Reason = reason
	return nil
}

// ErrorMessage (0x91) - Typed error response
type ErrorMessage struct {
	ErrorCode uint16
	Message   string
}

func (m *ErrorMessage) EncodeTo(w io.Writer) error {
	if err := WriteUint16(w, m.ErrorCode); err != nil {
		return err
	}
	return WriteString(w, m.Message)
}

func (m *ErrorMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ErrorMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	code, err := ReadUint16(buf)
	if err != nil {
		return err
	}
	message, err := ReadString(buf)
	if err != nil {
		return err
	}

	m.ErrorCode = code
	m.Message = message
	return nil
}

// ServerConfigMessage (0x98) - Sent by the server immediately after connect
type ServerConfigMessage struct {
	ProtocolVersion       uint8
	MaxMessageLength      uint32
	SessionTimeoutSeconds uint32
}

func (m *ServerConfigMessage) EncodeTo(w io.Writer) error {
	if err := WriteUint8(w, m.ProtocolVersion); err != nil {
		return err
	}
	if err := WriteUint32(w, m.MaxMessageLength); err != nil {
		return err
	}
	return WriteUint32(w, m.SessionTimeoutSeconds)
}

func (m *ServerConfigMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ServerConfigMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	version, err := ReadUint8(buf)
	if err != nil {
		return err
	}
	maxLen, err := ReadUint32(buf)
	if err != nil {
		return err
	}
	timeout, err := ReadUint32(buf)
	if err != nil {
		return err
	}

	m.ProtocolVersion = version
	m.MaxMessageLength = maxLen
	m.SessionTimeoutSeconds = timeout
	return nil
}
