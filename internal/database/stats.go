package database

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/models"
)

// Timeframes accepted by GetLeaderboard.
var timeFilters = map[string]string{
	"daily":   "WHERE b.created_at > NOW() - INTERVAL '24 hours'",
	"weekly":  "WHERE b.created_at > NOW() - INTERVAL '7 days'",
	"monthly": "WHERE b.created_at > NOW() - INTERVAL '30 days'",
	"all":     "",
	"":        "",
}

func ValidTimeframe(tf string) bool {
	_, ok := timeFilters[tf]
	return ok
}

// GetLeaderboard ranks players by points, then by rewards won.
func (d *Database) GetLeaderboard(ctx context.Context, timeframe string, limit int) ([]models.LeaderboardEntry, error) {
	filter, ok := timeFilters[timeframe]
	if !ok {
		return nil, fmt.Errorf("unknown timeframe %q", timeframe)
	}

	query := `
		SELECT
			b.user_address,
			COUNT(*) AS pools_played,
			COALESCE(SUM(c.reward), 0)::TEXT AS total_rewards,
			COALESCE(SUM(c.points), 0) AS points
		FROM bets b
		LEFT JOIN claims c ON c.pool_id = b.pool_id AND c.user_address = b.user_address
		` + filter + `
		GROUP BY b.user_address
		ORDER BY points DESC, SUM(c.reward) DESC NULLS LAST, pools_played DESC
		LIMIT $1`

	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		var rewards string
		if err := rows.Scan(&e.Address, &e.TotalPoolsPlayed, &rewards, &e.Points); err != nil {
			return nil, err
		}
		wei, ok := new(big.Int).SetString(rewards, 10)
		if !ok {
			return nil, fmt.Errorf("bad reward total %q for %s", rewards, e.Address)
		}
		e.TotalRewards = models.FormatEther(wei)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountPlayers is the number of distinct addresses with a bet in the
// timeframe.
func (d *Database) CountPlayers(ctx context.Context, timeframe string) (int, error) {
	filter, ok := timeFilters[timeframe]
	if !ok {
		return 0, fmt.Errorf("unknown timeframe %q", timeframe)
	}

	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT b.user_address) FROM bets b `+filter).Scan(&n)
	return n, err
}
