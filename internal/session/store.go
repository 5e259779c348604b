// Package session stores server-side sessions in redis. Sessions are
// only created for OAuth logins; password logins ride on JWT cookies
// alone.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// ErrNotFound is returned when a session id does not resolve.
var ErrNotFound = errors.New("session not found")

type record struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps sessions in redis with a fixed TTL.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Create registers a new session for userID and returns its id.
func (s *Store) Create(ctx context.Context, userID string) (string, error) {
	sid, err := newSessionID()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(record{UserID: userID, CreatedAt: time.Now().UTC()})
	if err != nil {
		return "", err
	}

	if err := s.client.Set(ctx, keyPrefix+sid, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return sid, nil
}

// Get resolves a session id to its user id.
func (s *Store) Get(ctx context.Context, sid string) (string, error) {
	payload, err := s.client.Get(ctx, keyPrefix+sid).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}

	var rec record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	return rec.UserID, nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, keyPrefix+sid).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func newSessionID() (string, error) {
	var raw [16]byte
	if _, err := io.ReadFull(rand.Reader, raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
