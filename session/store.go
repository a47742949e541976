// Package session keeps per-user login sessions in Redis. Records carry a
// TTL and a per-user index set so the session-management screen can list
// and revoke every active device.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when a session id has no live record.
	ErrNotFound = errors.New("session not found")
	// ErrBackend is returned when Redis cannot be reached.
	ErrBackend = errors.New("session backend unavailable")
	// ErrLimitExceeded is returned when a user has too many live sessions.
	ErrLimitExceeded = errors.New("session limit exceeded")
)

// Store persists sessions with a TTL plus a per-user index.
type Store struct {
	redis      redis.UniversalClient
	prefix     string
	maxPerUser int
}

// NewStore builds a [Store]. maxPerUser <= 0 disables the per-user cap.
func NewStore(redisClient redis.UniversalClient, prefix string, maxPerUser int) *Store {
	if prefix == "" {
		prefix = "afs"
	}
	return &Store{
		redis:      redisClient,
		prefix:     prefix,
		maxPerUser: maxPerUser,
	}
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Create saves the session and indexes it under its user. The per-user
// cap is enforced against live sessions only; expired index entries are
// pruned on the way.
func (s *Store) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess.SessionID == "" || sess.UserID == "" {
		return errors.New("session id and user id are required")
	}

	if s.maxPerUser > 0 {
		live, err := s.ListByUser(ctx, sess.UserID)
		if err != nil {
			return err
		}
		if len(live) >= s.maxPerUser {
			return ErrLimitExceeded
		}
	}

	encoded, err := encodeSession(sess)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.sessionKey(sess.SessionID), encoded, ttl)
	pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
	pipe.Expire(ctx, s.userKey(sess.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// Get loads one session by id.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return decodeSession(data)
}

// ListByUser returns every live session for a user, dropping index
// entries whose records have expired.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	var out []*Session
	var stale []interface{}
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if len(stale) > 0 {
		_ = s.redis.SRem(ctx, s.userKey(userID), stale...).Err()
	}
	return out, nil
}

// Delete revokes one session. Deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.SRem(ctx, s.userKey(userID), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// DeleteAllForUser revokes every session of a user.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}

	pipe := s.redis.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.sessionKey(id))
	}
	pipe.Del(ctx, s.userKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}
