package database

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/models"
)

// Address columns hold the lowercase hex form.
func addr(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func (d *Database) RecordPoolCreated(ctx context.Context, p *models.Pool, txHash string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO pools (pool_id, total_players, base_amount, start_time, end_time, created_tx)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pool_id) DO UPDATE
		SET total_players = EXCLUDED.total_players,
			base_amount = EXCLUDED.base_amount,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			created_tx = EXCLUDED.created_tx`,
		p.PoolID.String(), p.TotalPlayers.String(), p.BaseAmount.String(),
		p.StartTime.Int64(), p.EndTime.Int64(), txHash)
	if err != nil {
		return err
	}
	d.log.Debug("pool recorded", zap.String("pool", p.PoolID.String()))
	return nil
}

func (d *Database) RecordBet(ctx context.Context, poolID *big.Int, user common.Address, amount, target *big.Int, txHash string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO bets (pool_id, user_address, amount, target, tx_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pool_id, user_address) DO NOTHING`,
		poolID.String(), addr(user), amount.String(), target.Int64(), txHash)
	return err
}

// RecordResult is a no-op for pools created before the database was
// attached.
func (d *Database) RecordResult(ctx context.Context, poolID, result *big.Int, txHash string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE pools SET result = $2, result_tx = $3, resolved_at = NOW()
		WHERE pool_id = $1`,
		poolID.String(), result.Int64(), txHash)
	return err
}

func (d *Database) RecordClaim(ctx context.Context, poolID *big.Int, user common.Address, reward *big.Int, points int64, txHash string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO claims (pool_id, user_address, reward, points, tx_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pool_id, user_address) DO NOTHING`,
		poolID.String(), addr(user), reward.String(), points, txHash)
	return err
}

// GetActivity lists a player's bets and claims, newest first.
func (d *Database) GetActivity(ctx context.Context, user common.Address, limit int) ([]models.Activity, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT kind, pool_id::TEXT, amount::TEXT, value, tx_hash, created_at FROM (
			SELECT 'bet_placed' AS kind, pool_id, amount, target::TEXT AS value, tx_hash, created_at
			FROM bets WHERE user_address = $1
			UNION ALL
			SELECT 'bet_claimed', pool_id, reward, points::TEXT, tx_hash, created_at
			FROM claims WHERE user_address = $1
		) a
		ORDER BY created_at DESC
		LIMIT $2`, addr(user), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activity := []models.Activity{}
	for rows.Next() {
		a := models.Activity{User: user.Hex()}
		if err := rows.Scan(&a.Kind, &a.PoolID, &a.Amount, &a.Value, &a.TxHash, &a.CreatedAt); err != nil {
			return nil, err
		}
		activity = append(activity, a)
	}
	return activity, rows.Err()
}
