// internal/database/user.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xoduel/xoduel/internal/game"
	"github.com/xoduel/xoduel/internal/models"
)

// UpsertUser records the identity attributes seen on hello.
func (db *DB) UpsertUser(ctx context.Context, profile models.Profile) error {
	username := profile.Username
	if username == "" {
		username = profile.Name
	}
	q := `
		INSERT INTO users (id, username, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
		    avatar_url = EXCLUDED.avatar_url,
		    updated_at = NOW()
	`
	if _, err := db.pool.Exec(ctx, q, profile.ID, username, profile.Avatar); err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", profile.ID, err)
	}
	return nil
}

// LookupProfile backfills a public profile from the users table. The second
// return is false for an unknown identity.
func (db *DB) LookupProfile(ctx context.Context, uid string) (models.PublicProfile, bool, error) {
	var username, avatar *string
	q := `SELECT username, avatar_url FROM users WHERE id = $1`
	err := db.pool.QueryRow(ctx, q, uid).Scan(&username, &avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PublicProfile{}, false, nil
	}
	if err != nil {
		return models.PublicProfile{}, false, fmt.Errorf("failed to look up user %s: %w", uid, err)
	}

	pub := models.PublicProfile{ID: uid}
	if username != nil {
		pub.Username = *username
		pub.Name = *username
	}
	if avatar != nil {
		pub.Avatar = *avatar
	}
	return pub, true, nil
}

// RecordMatchOutcome applies a terminal result to every participant's
// stats, then recomputes their achievement progress. Implements
// game.OutcomeRecorder.
func (db *DB) RecordMatchOutcome(ctx context.Context, outcome game.Outcome) error {
	if outcome.WinnerID != "" {
		if err := db.applyResult(ctx, outcome.WinnerID, resultWin); err != nil {
			return err
		}
	}
	if outcome.LoserID != "" {
		if err := db.applyResult(ctx, outcome.LoserID, resultLoss); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(outcome.DrawIDs))
	for _, uid := range outcome.DrawIDs {
		if _, dup := seen[uid]; dup || uid == "" {
			continue
		}
		seen[uid] = struct{}{}
		if err := db.applyResult(ctx, uid, resultDraw); err != nil {
			return err
		}
	}
	return nil
}

type matchResult int

const (
	resultWin matchResult = iota
	resultLoss
	resultDraw
)

// applyResult bumps counters and the win streak for one participant. A win
// extends the streak; anything else resets it.
func (db *DB) applyResult(ctx context.Context, uid string, result matchResult) error {
	var currentStreak, bestStreak int
	err := db.pool.QueryRow(ctx,
		`SELECT current_win_streak, best_win_streak FROM users WHERE id = $1`, uid,
	).Scan(&currentStreak, &bestStreak)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to read streaks for %s: %w", uid, err)
	}

	if result == resultWin {
		currentStreak++
		if currentStreak > bestStreak {
			bestStreak = currentStreak
		}
	} else {
		currentStreak = 0
	}

	wins, losses, draws := 0, 0, 0
	switch result {
	case resultWin:
		wins = 1
	case resultLoss:
		losses = 1
	case resultDraw:
		draws = 1
	}

	q := `
		INSERT INTO users (id, games_played, wins, losses, draws, current_win_streak, best_win_streak)
		VALUES ($1, 1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			games_played = users.games_played + 1,
			wins = users.wins + EXCLUDED.wins,
			losses = users.losses + EXCLUDED.losses,
			draws = users.draws + EXCLUDED.draws,
			current_win_streak = $5,
			best_win_streak = $6,
			updated_at = NOW()
	`
	if _, err := db.pool.Exec(ctx, q, uid, wins, losses, draws, currentStreak, bestStreak); err != nil {
		return fmt.Errorf("failed to apply result for %s: %w", uid, err)
	}

	return db.updateAchievements(ctx, uid)
}
