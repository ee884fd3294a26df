// internal/database/achievements.go
package database

import (
	"context"
	"fmt"
	"math"
)

// achievementDef is a static achievement definition. Definitions live in
// code and are synced into the achievements table on startup so progress
// rows can reference them.
type achievementDef struct {
	ID            string
	Name          string
	Description   string
	Icon          string
	Difficulty    string
	Metric        string
	Target        int
	RequiresGames int
	Points        int
	OrderIndex    int
}

var achievementDefs = []achievementDef{
	{
		ID: "rookie_steps", Name: "First Steps", Description: "Play 5 games",
		Icon: "🥾", Difficulty: "bronze", Metric: "games_played",
		Target: 5, Points: 10, OrderIndex: 1,
	},
	{
		ID: "veteran_player", Name: "Veteran", Description: "Play 25 games",
		Icon: "🛡️", Difficulty: "silver", Metric: "games_played",
		Target: 25, Points: 25, OrderIndex: 2,
	},
	{
		ID: "first_victory", Name: "First Victory", Description: "Win your first game",
		Icon: "🏆", Difficulty: "bronze", Metric: "wins",
		Target: 1, Points: 10, OrderIndex: 3,
	},
	{
		ID: "ten_wins", Name: "Win Hunter", Description: "Collect 10 wins",
		Icon: "⚔️", Difficulty: "silver", Metric: "wins",
		Target: 10, Points: 30, OrderIndex: 4,
	},
	{
		ID: "streak_master", Name: "Streak Master", Description: "Reach a 3 win streak",
		Icon: "🔥", Difficulty: "gold", Metric: "best_win_streak",
		Target: 3, Points: 40, OrderIndex: 5,
	},
	{
		ID: "streak_legend", Name: "Streak Legend", Description: "Reach a 7 win streak",
		Icon: "🌟", Difficulty: "platinum", Metric: "best_win_streak",
		Target: 7, Points: 80, OrderIndex: 6,
	},
	{
		ID: "strategist", Name: "Strategist", Description: "Draw 5 games",
		Icon: "♟️", Difficulty: "silver", Metric: "draws",
		Target: 5, Points: 20, OrderIndex: 7,
	},
	{
		ID: "win_rate_elite", Name: "Elite", Description: "Hold a 60% win rate after 20 games",
		Icon: "🧠", Difficulty: "gold", Metric: "win_rate",
		Target: 60, RequiresGames: 20, Points: 60, OrderIndex: 8,
	},
}

// syncAchievementDefinitions upserts the static definitions so the table
// always matches the code.
func (db *DB) syncAchievementDefinitions(ctx context.Context) error {
	q := `
		INSERT INTO achievements (id, name, description, icon, difficulty, metric, target, requires_games, points, order_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			difficulty = EXCLUDED.difficulty,
			metric = EXCLUDED.metric,
			target = EXCLUDED.target,
			requires_games = EXCLUDED.requires_games,
			points = EXCLUDED.points,
			order_index = EXCLUDED.order_index,
			updated_at = NOW()
	`
	for _, def := range achievementDefs {
		_, err := db.pool.Exec(ctx, q,
			def.ID, def.Name, def.Description, def.Icon, def.Difficulty,
			def.Metric, def.Target, def.RequiresGames, def.Points, def.OrderIndex,
		)
		if err != nil {
			return fmt.Errorf("failed to sync achievement %s: %w", def.ID, err)
		}
	}
	return nil
}

// userStats is the slice of a users row that achievement progress depends on.
type userStats struct {
	GamesPlayed   int
	Wins          int
	Draws         int
	BestWinStreak int
}

// achievementProgress is the computed state of one definition for one user.
type achievementProgress struct {
	// Value is the raw metric clamped into [0, target].
	Value int
	// Percent is Value over target, capped at 100.
	Percent  int
	Unlocked bool
}

// computeProgress evaluates one definition against a user's stats. Gated
// metrics (win_rate) report zero progress until the game requirement is met.
func computeProgress(def achievementDef, stats userStats) achievementProgress {
	target := def.Target
	if target <= 0 {
		target = 1
	}

	raw := 0
	requirementMet := true
	switch def.Metric {
	case "games_played":
		raw = stats.GamesPlayed
	case "wins":
		raw = stats.Wins
	case "draws":
		raw = stats.Draws
	case "best_win_streak":
		raw = stats.BestWinStreak
	case "win_rate":
		requirementMet = stats.GamesPlayed >= def.RequiresGames
		if requirementMet && stats.GamesPlayed > 0 {
			raw = int(math.Round(float64(stats.Wins) / float64(stats.GamesPlayed) * 100))
		}
	}

	value := raw
	if value < 0 {
		value = 0
	}
	if value > target {
		value = target
	}
	percent := int(math.Round(float64(value) / float64(target) * 100))
	if percent > 100 {
		percent = 100
	}

	return achievementProgress{
		Value:    value,
		Percent:  percent,
		Unlocked: requirementMet && raw >= target,
	}
}

// updateAchievements recomputes every definition for one user after a stats
// change. unlocked_at is set once and never cleared, even when the underlying
// metric drops back below the target.
func (db *DB) updateAchievements(ctx context.Context, uid string) error {
	var stats userStats
	err := db.pool.QueryRow(ctx,
		`SELECT games_played, wins, draws, best_win_streak FROM users WHERE id = $1`, uid,
	).Scan(&stats.GamesPlayed, &stats.Wins, &stats.Draws, &stats.BestWinStreak)
	if err != nil {
		return fmt.Errorf("failed to read stats for %s: %w", uid, err)
	}

	q := `
		INSERT INTO user_achievements (user_id, achievement_id, progress, percent, unlocked_at)
		VALUES ($1, $2, $3, $4, CASE WHEN $5 THEN NOW() ELSE NULL END)
		ON CONFLICT (user_id, achievement_id) DO UPDATE SET
			progress = EXCLUDED.progress,
			percent = EXCLUDED.percent,
			unlocked_at = CASE
				WHEN user_achievements.unlocked_at IS NOT NULL THEN user_achievements.unlocked_at
				WHEN $5 THEN NOW()
				ELSE NULL
			END,
			updated_at = NOW()
	`
	for _, def := range achievementDefs {
		info := computeProgress(def, stats)
		if _, err := db.pool.Exec(ctx, q, uid, def.ID, info.Value, info.Percent, info.Unlocked); err != nil {
			return fmt.Errorf("failed to update achievement %s for %s: %w", def.ID, uid, err)
		}
	}
	return nil
}
