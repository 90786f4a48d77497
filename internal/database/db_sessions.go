package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// Session security constants
const (
	SessionIDLength = 64 // 64 character session ID
)

// ErrSessionNotFound is returned for unknown or expired sessions
var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is a stored session
type SessionRecord struct {
	ID        string
	Data      map[string]any
	ExpiresAt time.Time
}

// GenerateSecureSessionID creates a cryptographically secure session ID
func GenerateSecureSessionID() (string, error) {
	bytes := make([]byte, SessionIDLength/2) // hex encoding doubles the length
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure session ID: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// GetSession loads an unexpired session
func (db *Database) GetSession(ctx context.Context, sid string) (*SessionRecord, error) {
	if sid == "" {
		return nil, ErrSessionNotFound
	}

	var raw string
	var expiresAt int64
	err := retryableQueryRowScan(ctx, db.mainDB,
		`SELECT data, expires_at FROM sessions WHERE sid = ? AND expires_at > ?`,
		[]any{sid, time.Now().UnixMilli()}, &raw, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	data := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", truncateString(sid, 8), err)
	}
	return &SessionRecord{
		ID:        sid,
		Data:      data,
		ExpiresAt: time.UnixMilli(expiresAt),
	}, nil
}

// SetSession creates or replaces a session
func (db *Database) SetSession(ctx context.Context, sid string, data map[string]any, expiresAt time.Time) error {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	now := time.Now().UnixMilli()
	_, err = retryableExec(ctx, db.mainDB,
		`INSERT INTO sessions (sid, data, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sid) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		sid, string(raw), expiresAt.UnixMilli(), now, now)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// TouchSession extends the expiration of an existing session
func (db *Database) TouchSession(ctx context.Context, sid string, expiresAt time.Time) error {
	_, err := retryableExec(ctx, db.mainDB,
		`UPDATE sessions SET expires_at = ?, updated_at = ? WHERE sid = ?`,
		expiresAt.UnixMilli(), time.Now().UnixMilli(), sid)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// DestroySession removes a session
func (db *Database) DestroySession(ctx context.Context, sid string) error {
	_, err := retryableExec(ctx, db.mainDB, `DELETE FROM sessions WHERE sid = ?`, sid)
	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// CleanupExpiredSessions removes expired sessions from the database
func (db *Database) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	result, err := retryableExec(ctx, db.mainDB,
		`DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		log.Printf("[DB]: Cleaned up %d expired sessions", rowsAffected)
	}
	return rowsAffected, nil
}
