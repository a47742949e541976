package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpRecordVersion1 = 1
)

var (
	ErrOTPChallengeNotFound = errors.New("otp challenge not found")
	ErrOTPChallengeExpired  = errors.New("otp challenge expired")
	ErrOTPChallengeBackend  = errors.New("otp challenge backend unavailable")
)

// OTPChallenge is one outstanding two-factor code. Only the code digest is
// stored; Resends counts how many times a fresh code replaced it.
type OTPChallenge struct {
	Identifier string
	Role       uint8
	CodeHash   [32]byte
	ExpiresAt  int64
	Attempts   uint16
	Resends    uint16
}

// OTPChallengeStore keeps challenges in Redis under a TTL so abandoned
// flows clean themselves up.
type OTPChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOTPChallengeStore(redisClient redis.UniversalClient, prefix string) *OTPChallengeStore {
	if prefix == "" {
		prefix = "afc"
	}
	return &OTPChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OTPChallengeStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

func (s *OTPChallengeStore) Save(
	ctx context.Context,
	challengeID string,
	record *OTPChallenge,
	ttl time.Duration,
) error {
	encoded, err := encodeOTPChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPChallengeBackend, err)
	}
	return nil
}

func (s *OTPChallengeStore) Get(ctx context.Context, challengeID string) (*OTPChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOTPChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrOTPChallengeBackend, err)
	}

	record, err := decodeOTPChallenge(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil, ErrOTPChallengeExpired
	}
	return record, nil
}

func (s *OTPChallengeStore) Delete(ctx context.Context, challengeID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(challengeID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOTPChallengeBackend, err)
	}
	return n > 0, nil
}

// RecordFailure increments the attempt counter transactionally and
// reports whether the budget is now exceeded. An exceeded challenge is
// deleted in the same transaction.
func (s *OTPChallengeStore) RecordFailure(
	ctx context.Context,
	challengeID string,
	maxAttempts int,
) (bool, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeOTPChallenge(data)
			if err != nil {
				return err
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrOTPChallengeExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodeOTPChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrOTPChallengeNotFound
			}
			if errors.Is(err, ErrOTPChallengeExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrOTPChallengeBackend, err)
		}
		return exceeded, nil
	}

	return false, ErrOTPChallengeNotFound
}

// Refresh replaces the code digest after a resend, bumps the resend
// counter, clears attempts and restores the full TTL.
func (s *OTPChallengeStore) Refresh(
	ctx context.Context,
	challengeID string,
	codeHash [32]byte,
	ttl time.Duration,
) (*OTPChallenge, error) {
	record, err := s.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	record.CodeHash = codeHash
	record.Attempts = 0
	record.Resends++
	record.ExpiresAt = time.Now().Add(ttl).Unix()

	if err := s.Save(ctx, challengeID, record, ttl); err != nil {
		return nil, err
	}
	return record, nil
}

func encodeOTPChallenge(record *OTPChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(otpRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.Resends); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.WriteByte(record.Role)
	buf.Write(record.CodeHash[:])

	if len(record.Identifier) > 65535 {
		return nil, errors.New("otp challenge identifier length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Identifier))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Identifier)

	return buf.Bytes(), nil
}

func decodeOTPChallenge(data []byte) (*OTPChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersion1 {
		return nil, errors.New("invalid otp challenge version")
	}

	record := &OTPChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.Resends); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	role, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.Role = role
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	identifier := make([]byte, idLen)
	if _, err := io.ReadFull(reader, identifier); err != nil {
		return nil, err
	}
	record.Identifier = string(identifier)

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in otp challenge record")
	}
	return record, nil
}
