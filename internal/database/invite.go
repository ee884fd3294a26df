// internal/database/invite.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xoduel/xoduel/internal/invite"
)

// The DB implements invite.Store: invite rows are durable while the
// manager's cache handles the hot path.

// Create inserts a new pending invite. A primary-key conflict maps to
// invite.ErrCodeTaken so the manager retries with a fresh code.
func (db *DB) Create(ctx context.Context, inv *invite.Invite) error {
	q := `
		INSERT INTO invites (code, host_user_id, status, created_at, expires_at)
		VALUES ($1, $2, 'pending', $3, $4)
	`
	_, err := db.pool.Exec(ctx, q, inv.Code, inv.HostID, inv.CreatedAt, inv.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return invite.ErrCodeTaken
		}
		return fmt.Errorf("failed to insert invite %s: %w", inv.Code, err)
	}
	return nil
}

// Get returns the invite for code, or nil if unknown.
func (db *DB) Get(ctx context.Context, code string) (*invite.Invite, error) {
	q := `
		SELECT code, host_user_id, COALESCE(guest_user_id, ''), status, created_at, expires_at
		FROM invites WHERE code = $1
	`
	inv, err := scanInvite(db.pool.QueryRow(ctx, q, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite %s: %w", code, err)
	}
	return inv, nil
}

// PendingByHost returns the host's newest pending, unexpired invite, or nil.
func (db *DB) PendingByHost(ctx context.Context, hostID string) (*invite.Invite, error) {
	q := `
		SELECT code, host_user_id, COALESCE(guest_user_id, ''), status, created_at, expires_at
		FROM invites
		WHERE host_user_id = $1 AND status = 'pending' AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`
	inv, err := scanInvite(db.pool.QueryRow(ctx, q, hostID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending invite for host %s: %w", hostID, err)
	}
	return inv, nil
}

// Accept flips the invite from pending to accepted. The conditional update
// makes the first transition win; a nil return means the race was lost.
func (db *DB) Accept(ctx context.Context, code, guestID string) (*invite.Invite, error) {
	q := `
		UPDATE invites
		SET status = 'accepted', guest_user_id = $2
		WHERE code = $1 AND status = 'pending'
		RETURNING code, host_user_id, COALESCE(guest_user_id, ''), status, created_at, expires_at
	`
	inv, err := scanInvite(db.pool.QueryRow(ctx, q, code, guestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to accept invite %s: %w", code, err)
	}
	return inv, nil
}

// Expire marks the invite expired.
func (db *DB) Expire(ctx context.Context, code string) error {
	q := `UPDATE invites SET status = 'expired' WHERE code = $1 AND status = 'pending'`
	if _, err := db.pool.Exec(ctx, q, code); err != nil {
		return fmt.Errorf("failed to expire invite %s: %w", code, err)
	}
	return nil
}

func scanInvite(row pgx.Row) (*invite.Invite, error) {
	var inv invite.Invite
	var status string
	err := row.Scan(&inv.Code, &inv.HostID, &inv.GuestID, &status, &inv.CreatedAt, &inv.ExpiresAt)
	if err != nil {
		return nil, err
	}
	inv.Status = invite.Status(status)
	return &inv, nil
}
