package protocol

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestFrameRoundTrip tests that any valid frame can be encoded and decoded
func TestFrameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msgType := rapid.Byte().Draw(t, "type")
		// Mask out compression flag - compressed frames require valid LZ4 data
		// which we test separately in TestCompressionRoundTripRapid
		flags := rapid.Byte().Draw(t, "flags") &^ FlagCompressed
		payloadLen := rapid.IntRange(0, 1024).Draw(t, "payloadLen")
		payload := rapid.SliceOfN(rapid.Byte(), payloadLen, payloadLen).Draw(t, "payload")

		original := &Frame{
			Version: ProtocolVersion,
			Type:    msgType,
			Flags:   flags,
			Payload: payload,
		}

		var buf bytes.Buffer
		if err := EncodeFrame(&buf, original); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded, err := DecodeFrame(&buf)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if decoded.Version != original.Version {
			t.Fatalf("version mismatch: got %d, want %d", decoded.Version, original.Version)
		}
		if decoded.Type != original.Type {
			t.Fatalf("type mismatch: got %d, want %d", decoded.Type, original.Type)
		}
		if !bytes.Equal(decoded.Payload, original.Payload) {
			t.Fatalf("payload mismatch")
		}
	})
}

// TestCompressionRoundTripRapid tests that compressible frames round-trip correctly
func TestCompressionRoundTripRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msgType := rapid.Byte().Draw(t, "type")
		// Generate compressible payload (repeated pattern)
		patternLen := rapid.IntRange(1, 50).Draw(t, "patternLen")
		pattern := rapid.SliceOfN(rapid.Byte(), patternLen, patternLen).Draw(t, "pattern")
		repeatCount := rapid.IntRange(10, 100).Draw(t, "repeatCount")

		payload := bytes.Repeat(pattern, repeatCount)

		original := &Frame{
			Version: ProtocolVersion,
			Type:    msgType,
			Flags:   0,
			Payload: payload,
		}

		var buf bytes.Buffer
		if err := EncodeFrame(&buf, original); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		// Decode (should auto-decompress)
		decoded, err := DecodeFrame(&buf)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		// Compression flag should be cleared after decompress
		if decoded.Flags&FlagCompressed != 0 {
			t.Fatalf("compression flag leaked through decode")
		}
		if !bytes.Equal(decoded.Payload, original.Payload) {
			t.Fatalf("payload mismatch: got %d bytes, want %d bytes", len(decoded.Payload), len(original.Payload))
		}
	})
}

// TestStringRoundTrip tests that any valid string can be encoded and decoded
func TestStringRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		original := rapid.String().Draw(t, "string")

		var buf bytes.Buffer
		if err := WriteString(&buf, original); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded, err := ReadString(&buf)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if decoded != original {
			t.Fatalf("string mismatch: got %q, want %q", decoded, original)
		}
	})
}

// TestUint64RoundTrip tests that any uint64 can be encoded and decoded
func TestUint64RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		original := rapid.Uint64().Draw(t, "uint64")

		var buf bytes.Buffer
		if err := WriteUint64(&buf, original); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded, err := ReadUint64(&buf)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if decoded != original {
			t.Fatalf("uint64 mismatch: got %d, want %d", decoded, original)
		}
	})
}

// TestOptionalStringRoundTrip tests optional string encoding
func TestOptionalStringRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var original *string
		if rapid.Bool().Draw(t, "hasValue") {
			v := rapid.String().Draw(t, "string")
			original = &v
		}

		var buf bytes.Buffer
		if err := WriteOptionalString(&buf, original); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded, err := ReadOptionalString(&buf)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if (original == nil) != (decoded == nil) {
			t.Fatalf("presence mismatch")
		}
		if original != nil && *decoded != *original {
			t.Fatalf("string mismatch: got %q, want %q", *decoded, *original)
		}
	})
}

// TestRegisterRoundTrip tests RegisterMessage encoding
func TestRegisterRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		original := &RegisterMessage{
			Username: rapid.StringMatching(`[a-zA-Z0-9_-]{3,20}`).Draw(t, "username"),
			Password: rapid.StringN(1, 50, 256).Draw(t, "password"),
		}

		var buf bytes.Buffer
		if err := original.EncodeTo(&buf); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded := &RegisterMessage{}
		if err := decoded.Decode(buf.Bytes()); err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if decoded.Username != original.Username {
			t.Fatalf("username mismatch: got %q, want %q", decoded.Username, original.Username)
		}
		if decoded.Password != original.Password {
			t.Fatalf("password mismatch")
		}
	})
}

// TestSendMessageRoundTrip tests SendMessageMessage encoding
func TestSendMessageRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		original := &SendMessageMessage{
			RoomID: rapid.Uint64().Draw(t, "roomID"),
			Body:   rapid.StringOfN(rapid.Rune(), 1, 4096, -1).Draw(t, "body"),
		}

		var buf bytes.Buffer
		if err := original.EncodeTo(&buf); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded := &SendMessageMessage{}
		if err := decoded.Decode(buf.Bytes()); err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if decoded.RoomID != original.RoomID {
			t.Fatalf("roomID mismatch: got %d, want %d", decoded.RoomID, original.RoomID)
		}
		if decoded.Body != original.Body {
			t.Fatalf("body mismatch")
		}
	})
}

// TestAuthResponseRoundTrip tests AuthResponseMessage encoding
func TestAuthResponseRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		success := rapid.Bool().Draw(t, "success")
		var userID uint64
		var username string
		if success {
			userID = rapid.Uint64().Draw(t, "userID")
			username = rapid.StringN(0, 32, 256).Draw(t, "username")
		}
		message := rapid.StringN(0, 100, 256).Draw(t, "message")

		original := &AuthResponseMessage{
			Success:  success,
			UserID:   userID,
			Username: username,
			Message:  message,
		}

		var buf bytes.Buffer
		if err := original.EncodeTo(&buf); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded := &AuthResponseMessage{}
		if err := decoded.Decode(buf.Bytes()); err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if decoded.Success != original.Success {
			t.Fatalf("success mismatch")
		}
		if decoded.Message != original.Message {
			t.Fatalf("message mismatch")
		}
		if success && decoded.UserID != original.UserID {
			t.Fatalf("userID mismatch")
		}
		if success && decoded.Username != original.Username {
			t.Fatalf("username mismatch")
		}
	})
}

// TestMessageHistoryRoundTrip tests MessageHistoryMessage encoding
func TestMessageHistoryRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		roomID := rapid.Uint64().Draw(t, "roomID")
		count := rapid.IntRange(0, 10).Draw(t, "count")
		messages := make([]RoomMessage, count)
		for i := range messages {
			messages[i] = RoomMessage{
				ID:         rapid.Uint64().Draw(t, fmt.Sprintf("id_%d", i)),
				RoomID:     roomID,
				SenderID:   rapid.Uint64().Draw(t, fmt.Sprintf("sender_%d", i)),
				SenderName: rapid.StringN(1, 20, 256).Draw(t, fmt.Sprintf("name_%d", i)),
				Body:       rapid.StringN(1, 200, 256).Draw(t, fmt.Sprintf("body_%d", i)),
				CreatedAt:  time.UnixMilli(rapid.Int64Range(0, 4102444800000).Draw(t, fmt.Sprintf("ts_%d", i))),
				Read:       rapid.Bool().Draw(t, fmt.Sprintf("read_%d", i)),
			}
		}

		original := &MessageHistoryMessage{
			RoomID:      roomID,
			HasMessages: count > 0,
			Messages:    messages,
		}

		var buf bytes.Buffer
		if err := original.EncodeTo(&buf); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded := &MessageHistoryMessage{}
		if err := decoded.Decode(buf.Bytes()); err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if decoded.RoomID != original.RoomID {
			t.Fatalf("roomID mismatch")
		}
		if decoded.HasMessages != original.HasMessages {
			t.Fatalf("hasMessages mismatch")
		}
		if len(decoded.Messages) != len(original.Messages) {
			t.Fatalf("message count mismatch: got %d, want %d", len(decoded.Messages), len(original.Messages))
		}
		for i := range original.Messages {
			om := original.Messages[i]
			dm := decoded.Messages[i]
			if dm.ID != om.ID {
				t.Fatalf("message[%d] id mismatch", i)
			}
			if dm.SenderID != om.SenderID {
				t.Fatalf("message[%d] sender mismatch", i)
			}
			if dm.SenderName != om.SenderName {
				t.Fatalf("message[%d] sender name mismatch", i)
			}
			if dm.Body != om.Body {
				t.Fatalf("message[%d] body mismatch", i)
			}
			if !dm.CreatedAt.Equal(om.CreatedAt) {
				t.Fatalf("message[%d] timestamp mismatch: got %v, want %v", i, dm.CreatedAt, om.CreatedAt)
			}
			if dm.Read != om.Read {
				t.Fatalf("message[%d] read mismatch", i)
			}
		}
	})
}

// TestUserListRoundTrip tests UserListMessage encoding
func TestUserListRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(0, 10).Draw(t, "count")
		users := make([]UserEntry, count)
		for i := range users {
			users[i] = UserEntry{
				ID:       rapid.Uint64().Draw(t, fmt.Sprintf("id_%d", i)),
				Username: rapid.StringN(1, 20, 256).Draw(t, fmt.Sprintf("username_%d", i)),
				Online:   rapid.Bool().Draw(t, fmt.Sprintf("online_%d", i)),
			}
		}

		original := &UserListMessage{Users: users}

		var buf bytes.Buffer
		if err := original.EncodeTo(&buf); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded := &UserListMessage{}
		if err := decoded.Decode(buf.Bytes()); err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if len(decoded.Users) != len(original.Users) {
			t.Fatalf("user count mismatch")
		}
		for i := range original.Users {
			if decoded.Users[i] != original.Users[i] {
				t.Fatalf("user[%d] mismatch: got %+v, want %+v", i, decoded.Users[i], original.Users[i])
			}
		}
	})
}

// TestRoomListRoundTrip tests RoomListMessage encoding
func TestRoomListRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(0, 5).Draw(t, "count")
		rooms := make([]RoomEntry, count)
		for i := range rooms {
			memberCount := rapid.IntRange(0, 8).Draw(t, fmt.Sprintf("members_%d", i))
			members := make([]uint64, memberCount)
			for j := range members {
				members[j] = rapid.Uint64().Draw(t, fmt.Sprintf("member_%d_%d", i, j))
			}
			rooms[i] = RoomEntry{
				ID:        rapid.Uint64().Draw(t, fmt.Sprintf("id_%d", i)),
				Name:      rapid.StringN(1, 40, 256).Draw(t, fmt.Sprintf("name_%d", i)),
				MemberIDs: members,
			}
		}

		original := &RoomListMessage{Rooms: rooms}

		var buf bytes.Buffer
		if err := original.EncodeTo(&buf); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded := &RoomListMessage{}
		if err := decoded.Decode(buf.Bytes()); err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if len(decoded.Rooms) != len(original.Rooms) {
			t.Fatalf("room count mismatch")
		}
		for i := range original.Rooms {
			or := original.Rooms[i]
			dr := decoded.Rooms[i]
			if dr.ID != or.ID || dr.Name != or.Name {
				t.Fatalf("room[%d] mismatch", i)
			}
			if len(dr.MemberIDs) != len(or.MemberIDs) {
				t.Fatalf("room[%d] member count mismatch", i)
			}
			for j := range or.MemberIDs {
				if dr.MemberIDs[j] != or.MemberIDs[j] {
					t.Fatalf("room[%d] member[%d] mismatch", i, j)
				}
			}
		}
	})
}
