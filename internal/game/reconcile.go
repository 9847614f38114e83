package game

import (
	"context"
	"math/big"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/errs"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/models"
)

// Reconciliation compares the two views of one pool.
type Reconciliation struct {
	PoolID   models.BigInt `json:"poolId"`
	Contract *models.Pool  `json:"contract"`
	Stream   *models.Pool  `json:"stream"`
	Diffs    []string      `json:"diffs"`
	InSync   bool          `json:"inSync"`
}

// Reconcile reads both sources and lists the contract-owned fields that
// disagree. A view that cannot be read is reported as null.
func (s *Service) Reconcile(ctx context.Context, poolID *big.Int) (*Reconciliation, error) {
	if poolID == nil || poolID.Sign() < 0 {
		return nil, errs.Invalidf("poolId must be a non-negative integer")
	}
	rep := &Reconciliation{PoolID: models.BigFrom(poolID), Diffs: []string{}}

	rec, err := s.streamPool(ctx, poolID)
	if err != nil {
		return nil, &errs.E{Kind: errs.Unavailable, Message: "failed to read pool from streams", Cause: err}
	}
	if rec != nil {
		rep.Stream = poolFromRecord(rec)
	}
	if rep.Contract, err = s.contractPool(ctx, poolID); err != nil {
		return nil, &errs.E{Kind: errs.Unavailable, Message: "failed to read pool from contract", Cause: err}
	}

	switch {
	case rep.Contract == nil && rep.Stream == nil:
		return nil, errs.NotFoundf("Pool not found")
	case rep.Contract == nil:
		rep.Diffs = append(rep.Diffs, "contract")
	case rep.Stream == nil:
		rep.Diffs = append(rep.Diffs, "stream")
	default:
		rep.Contract.StartTime = rep.Stream.StartTime
		rep.Diffs = diffPools(rep.Contract, rep.Stream)
	}
	rep.InSync = len(rep.Diffs) == 0
	return rep, nil
}

func diffPools(a, b *models.Pool) []string {
	diffs := []string{}
	nums := []struct {
		name string
		x, y *big.Int
	}{
		{"endTime", &a.EndTime.Int, &b.EndTime.Int},
		{"totalAmount", &a.TotalAmount.Int, &b.TotalAmount.Int},
		{"totalPlayers", &a.TotalPlayers.Int, &b.TotalPlayers.Int},
		{"playersLeft", &a.PlayersLeft.Int, &b.PlayersLeft.Int},
		{"result", &a.Result.Int, &b.Result.Int},
		{"baseAmount", &a.BaseAmount.Int, &b.BaseAmount.Int},
	}
	for _, n := range nums {
		if n.x.Cmp(n.y) != 0 {
			diffs = append(diffs, n.name)
		}
	}
	if a.Ended != b.Ended {
		diffs = append(diffs, "ended")
	}
	return diffs
}
