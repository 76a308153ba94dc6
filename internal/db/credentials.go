package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialRepository persists one OAuth credential per authorization
// scope, so tokens survive process restarts.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves the credential for a scope. Returns ErrNotFound when no
// authorization has been completed for the scope yet.
func (r *CredentialRepository) Get(ctx context.Context, scope string) (*Credential, error) {
	query := `
		SELECT scope, access_token, refresh_token, expires_at
		FROM credentials
		WHERE scope = $1
	`
	var cred Credential
	err := r.pool.QueryRow(ctx, query, scope).Scan(
		&cred.Scope,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return &cred, nil
}

// Upsert creates or replaces the credential for its scope.
func (r *CredentialRepository) Upsert(ctx context.Context, cred *Credential) error {
	query := `
		INSERT INTO credentials (scope, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at
	`
	_, err := r.pool.Exec(ctx, query, cred.Scope, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}
