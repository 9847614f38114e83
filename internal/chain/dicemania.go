package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/metrics"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/models"
)

// DiceManiaABI is the subset of the DiceMania contract this service calls.
const DiceManiaABI = `[
	{"type":"function","name":"poolId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"POINTS_PER_BET","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"POINTS_PER_WIN","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getPoolDetail","stateMutability":"view",
		"inputs":[{"name":"_poolId","type":"uint256"}],
		"outputs":[
			{"name":"totalplayers","type":"uint256"},
			{"name":"baseamount","type":"uint256"},
			{"name":"endtime","type":"uint256"},
			{"name":"result","type":"uint256"},
			{"name":"totalamount","type":"uint256"},
			{"name":"playersLeft","type":"uint256"},
			{"name":"ended","type":"bool"}]},
	{"type":"function","name":"getBets","stateMutability":"view",
		"inputs":[{"name":"_poolId","type":"uint256"}],
		"outputs":[{"name":"","type":"tuple[]","components":[
			{"name":"user","type":"address"},
			{"name":"amount","type":"uint256"},
			{"name":"targetScore","type":"uint256"},
			{"name":"claimedAmount","type":"uint256"},
			{"name":"claimed","type":"bool"}]}]},
	{"type":"function","name":"getStats","stateMutability":"view","inputs":[],
		"outputs":[
			{"name":"totalUsers","type":"uint256"},
			{"name":"totalBetsPlaced","type":"uint256"},
			{"name":"totalPoolsCreated","type":"uint256"},
			{"name":"totalPointsAwarded","type":"uint256"}]},
	{"type":"function","name":"setResult","stateMutability":"nonpayable",
		"inputs":[{"name":"_resultvalue","type":"uint256"},{"name":"_poolId","type":"uint256"}],"outputs":[]}
]`

// contractBet mirrors the Bet struct returned by getBets.
type contractBet struct {
	User          common.Address
	Amount        *big.Int
	TargetScore   *big.Int
	ClaimedAmount *big.Int
	Claimed       bool
}

// DiceMania is a typed binding over the deployed contract.
type DiceMania struct {
	client   *Client
	address  common.Address
	contract *bind.BoundContract
}

func NewDiceMania(address common.Address, client *Client) (*DiceMania, error) {
	parsed, err := abi.JSON(strings.NewReader(DiceManiaABI))
	if err != nil {
		return nil, fmt.Errorf("parse dicemania abi: %w", err)
	}
	b := client.Backend()
	return &DiceMania{
		client:   client,
		address:  address,
		contract: bind.NewBoundContract(address, parsed, b, b, b),
	}, nil
}

func (d *DiceMania) Address() common.Address { return d.address }

func (d *DiceMania) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	start := time.Now()
	var out []interface{}
	err := d.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...)
	metrics.ObserveChain(method, start, err)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return out, nil
}

func (d *DiceMania) callBig(ctx context.Context, method string) (*big.Int, error) {
	out, err := d.call(ctx, method)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("call %s: unexpected output %T", method, out[0])
	}
	return v, nil
}

// PoolCount returns the next pool id, which is also the number of pools.
func (d *DiceMania) PoolCount(ctx context.Context) (*big.Int, error) {
	return d.callBig(ctx, "poolId")
}

func (d *DiceMania) PointsPerWin(ctx context.Context) (*big.Int, error) {
	return d.callBig(ctx, "POINTS_PER_WIN")
}

func (d *DiceMania) PointsPerBet(ctx context.Context) (*big.Int, error) {
	return d.callBig(ctx, "POINTS_PER_BET")
}

func (d *DiceMania) Owner(ctx context.Context) (common.Address, error) {
	out, err := d.call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("call owner: unexpected output %T", out[0])
	}
	return addr, nil
}

// PoolDetail reads one pool. The contract does not expose the start time,
// so StartTime is left zero for the caller to reconcile.
func (d *DiceMania) PoolDetail(ctx context.Context, poolID *big.Int) (*models.Pool, error) {
	out, err := d.call(ctx, "getPoolDetail", poolID)
	if err != nil {
		return nil, err
	}
	if len(out) != 7 {
		return nil, fmt.Errorf("call getPoolDetail: expected 7 outputs, got %d", len(out))
	}

	nums := make([]*big.Int, 6)
	for i := range nums {
		v, ok := out[i].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("call getPoolDetail: output %d is %T", i, out[i])
		}
		nums[i] = v
	}
	ended, ok := out[6].(bool)
	if !ok {
		return nil, fmt.Errorf("call getPoolDetail: output 6 is %T", out[6])
	}

	// totalplayers, baseamount, endtime, result, totalamount, playersLeft, ended
	return &models.Pool{
		PoolID:       models.BigFrom(poolID),
		TotalPlayers: models.BigFrom(nums[0]),
		BaseAmount:   models.BigFrom(nums[1]),
		EndTime:      models.BigFrom(nums[2]),
		Result:       models.BigFrom(nums[3]),
		TotalAmount:  models.BigFrom(nums[4]),
		PlayersLeft:  models.BigFrom(nums[5]),
		Ended:        ended,
	}, nil
}

func (d *DiceMania) Bets(ctx context.Context, poolID *big.Int) ([]models.PlayerBet, error) {
	out, err := d.call(ctx, "getBets", poolID)
	if err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new([]contractBet)).(*[]contractBet)

	bets := make([]models.PlayerBet, 0, len(raw))
	for _, b := range raw {
		bets = append(bets, models.PlayerBet{
			User:          b.User,
			Amount:        models.BigFrom(b.Amount),
			TargetScore:   models.BigFrom(b.TargetScore),
			ClaimedAmount: models.BigFrom(b.ClaimedAmount),
			Claimed:       b.Claimed,
		})
	}
	return bets, nil
}

func (d *DiceMania) Stats(ctx context.Context) (*models.Stats, error) {
	out, err := d.call(ctx, "getStats")
	if err != nil {
		return nil, err
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("call getStats: expected 4 outputs, got %d", len(out))
	}
	vals := make([]models.BigInt, 4)
	for i := range vals {
		v, ok := out[i].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("call getStats: output %d is %T", i, out[i])
		}
		vals[i] = models.BigFrom(v)
	}
	return &models.Stats{
		TotalUsers:         vals[0],
		TotalBetsPlaced:    vals[1],
		TotalPoolsCreated:  vals[2],
		TotalPointsAwarded: vals[3],
	}, nil
}

// SetResult sends setResult(result, poolId) from the server wallet and
// waits for a successful receipt.
func (d *DiceMania) SetResult(ctx context.Context, poolID, result *big.Int) (common.Hash, error) {
	start := time.Now()
	tx, err := d.client.Send(ctx, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return d.contract.Transact(opts, "setResult", result, poolID)
	})
	if err != nil {
		metrics.ObserveChain("setResult", start, err)
		return common.Hash{}, fmt.Errorf("send setResult: %w", err)
	}
	d.client.log.Info("setResult sent", zap.String("pool", poolID.String()), zap.String("tx", tx.Hash().Hex()))

	_, err = d.client.Wait(ctx, tx)
	metrics.ObserveChain("setResult", start, err)
	if err != nil {
		return tx.Hash(), err
	}
	return tx.Hash(), nil
}
