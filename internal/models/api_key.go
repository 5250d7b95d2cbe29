package models

import "time"

// APIKey represents a programmatic access key. Only the SHA-256 hash of the raw
// key is stored; a revoked key keeps its row with RevokedAt set.
type APIKey struct {
	ID         string     `json:"id" db:"id"`
	UserID     string     `json:"userId" db:"user_id"`
	KeyHash    string     `json:"-" db:"key_hash"`
	Label      string     `json:"label" db:"label"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty" db:"last_used_at"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty" db:"revoked_at"`
}
