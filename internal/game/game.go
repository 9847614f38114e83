package game

import (
	"math/big"
	"time"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/models"
)

// PoolDuration is how long a pool accepts bets after creation.
const PoolDuration = 10 * time.Minute

// PointsPerWin is credited to a player for every winning claim.
const PointsPerWin = 50

type Status string

const (
	StatusOpen    Status = "open"
	StatusFull    Status = "full"
	StatusExpired Status = "expired"
	StatusEnded   Status = "ended"
)

// PoolStatus derives where a pool is in its lifecycle at now.
func PoolStatus(p *models.Pool, now time.Time) Status {
	switch {
	case p.Ended:
		return StatusEnded
	case p.PlayersLeft.Sign() <= 0:
		return StatusFull
	case big.NewInt(now.Unix()).Cmp(&p.EndTime.Int) >= 0:
		return StatusExpired
	default:
		return StatusOpen
	}
}

// Resolvable reports whether the owner may set the pool's result.
func Resolvable(p *models.Pool, now time.Time) bool {
	s := PoolStatus(p, now)
	return s == StatusFull || s == StatusExpired
}

// ValidDieValue reports whether v is a face of a six-sided die.
func ValidDieValue(v *big.Int) bool {
	return v != nil && v.Sign() > 0 && v.Cmp(big.NewInt(6)) <= 0
}

func isWinner(p *models.Pool, b *models.PlayerBet) bool {
	return p.Ended && b.TargetScore.Cmp(&p.Result.Int) == 0
}

// Payout is bet's share of the pot: totalAmount * amount / sum of winning
// amounts, rounded down. Losing bets and pools without a result pay zero.
func Payout(p *models.Pool, bets []models.PlayerBet, bet *models.PlayerBet) *big.Int {
	if !isWinner(p, bet) {
		return new(big.Int)
	}
	winning := new(big.Int)
	for i := range bets {
		if isWinner(p, &bets[i]) {
			winning.Add(winning, &bets[i].Amount.Int)
		}
	}
	if winning.Sign() == 0 {
		return new(big.Int)
	}
	share := new(big.Int).Mul(&p.TotalAmount.Int, &bet.Amount.Int)
	return share.Quo(share, winning)
}

// startTimeFor estimates the start of a pool from its end when the
// streams index has no record of it.
func startTimeFor(p *models.Pool) models.BigInt {
	start := new(big.Int).Sub(&p.EndTime.Int, big.NewInt(int64(PoolDuration/time.Second)))
	if start.Sign() < 0 {
		start.SetInt64(0)
	}
	return models.BigFrom(start)
}
