package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/errors"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/jackc/pgx/v5"
)

// APIKeyRepository handles API key persistence and lookup by key hash
type APIKeyRepository struct {
	db *PostgresDB
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *PostgresDB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// HashKey returns the SHA-256 hex digest of a raw API key. Raw keys are never
// stored or logged.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// Create inserts a new API key row
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (id, user_id, key_hash, label, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		key.ID,
		key.UserID,
		key.KeyHash,
		key.Label,
		key.CreatedAt,
	)
	if err != nil {
		return errors.NewStoreUnavailableError("create api key", err)
	}

	return nil
}

// LookupByHash retrieves a non-revoked API key by its hash
func (r *APIKeyRepository) LookupByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := `
		SELECT id, user_id, key_hash, label, created_at, last_used_at, revoked_at
		FROM api_keys
		WHERE key_hash = $1 AND revoked_at IS NULL
	`

	var key models.APIKey
	err := r.db.Pool().QueryRow(ctx, query, keyHash).Scan(
		&key.ID,
		&key.UserID,
		&key.KeyHash,
		&key.Label,
		&key.CreatedAt,
		&key.LastUsedAt,
		&key.RevokedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewUnauthorizedError("invalid or revoked API key")
		}
		return nil, errors.NewStoreUnavailableError("lookup api key", err)
	}

	return &key, nil
}

// TouchLastUsed updates the last_used_at timestamp for a key
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, keyHash string, usedAt time.Time) error {
	query := `UPDATE api_keys SET last_used_at = $2 WHERE key_hash = $1`

	if _, err := r.db.Pool().Exec(ctx, query, keyHash, usedAt); err != nil {
		return errors.NewStoreUnavailableError("touch api key", err)
	}

	return nil
}

// Revoke marks a key as revoked; the row is kept for audit
func (r *APIKeyRepository) Revoke(ctx context.Context, keyHash string, revokedAt time.Time) error {
	query := `UPDATE api_keys SET revoked_at = $2 WHERE key_hash = $1 AND revoked_at IS NULL`

	tag, err := r.db.Pool().Exec(ctx, query, keyHash, revokedAt)
	if err != nil {
		return errors.NewStoreUnavailableError("revoke api key", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("api key", keyHash[:8])
	}

	return nil
}
