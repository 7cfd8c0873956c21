package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// MaxStringLength is the maximum length of a wire string (uint16 length prefix)
const MaxStringLength = 65535

var (
	ErrStringTooLong = errors.New("string exceeds maximum length")
)

// WriteUint8 writes a single byte
func WriteUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

// ReadUint8 reads a single byte
func ReadUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteUint16 writes a big-endian uint16
func WriteUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint16 reads a big-endian uint16
func ReadUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// WriteUint32 writes a big-endian uint32
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads a big-endian uint32
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteUint64 writes a big-endian uint64
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint64 reads a big-endian uint64
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteBool writes a bool as a single byte (0x00 or 0x01)
func WriteBool(w io.Writer, v bool) error {
	b := uint8(0)
	if v {
		b = 1
	}
	return WriteUint8(w, b)
}

// ReadBool reads a single-byte bool
func ReadBool(r io.Reader) (bool, error) {
	b, err := ReadUint8(r)
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// WriteString writes a uint16 length-prefixed UTF-8 string
func WriteString(w io.Writer, s string) error {
	if len(s) > MaxStringLength {
		return ErrStringTooLong
	}
	if err := WriteUint16(w, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadString reads a uint16 length-prefixed UTF-8 string
func ReadString(r io.Reader) (string, error) {
	length, err := ReadUint16(r)
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteTimestamp writes a time.Time as Unix milliseconds (uint64)
func WriteTimestamp(w io.Writer, t time.Time) error {
	return WriteUint64(w, uint64(t.UnixMilli()))
}

// ReadTimestamp reads a Unix-millisecond timestamp
func ReadTimestamp(r io.Reader) (time.Time, error) {
	millis, err := ReadUint64(r)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(millis)), nil
}

// WriteOptionalString writes a presence byte followed by the string if non-nil
func WriteOptionalString(w io.Writer, s *string) error {
	if s == nil {
		return WriteBool(w, false)
	}
	if err := WriteBool(w, true); err != nil {
		return err
	}
	return WriteString(w, *s)
}

// ReadOptionalString reads a presence byte and, if set, the string
func ReadOptionalString(r io.Reader) (*string, error) {
	present, err := ReadBool(r)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	s, err := ReadString(r)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// WriteOptionalUint64 writes a presence byte followed by the value if non-nil
func WriteOptionalUint64(w io.Writer, v *uint64) error {
	if v == nil {
		return WriteBool(w, false)
	}
	if err := WriteBool(w, true); err != nil {
		return err
	}
	return WriteUint64(w, *v)
}

// ReadOptionalUint64 reads a presence byte and, if set, the value
func ReadOptionalUint64(r io.Reader) (*uint64, error) {
	present, err := ReadBool(r)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	v, err := ReadUint64(r)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
