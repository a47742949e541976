package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordVersion1 = 1

func encodeSession(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}
	buf.WriteByte(s.Role)

	for _, field := range []string{s.SessionID, s.UserID, s.SchoolID} {
		if len(field) > 65535 {
			return nil, errors.New("session field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeSession(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersion1 {
		return nil, errors.New("invalid session record version")
	}

	s := &Session{}
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	role, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	s.Role = role

	for _, field := range []*string{&s.SessionID, &s.UserID, &s.SchoolID} {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session record")
	}
	return s, nil
}
