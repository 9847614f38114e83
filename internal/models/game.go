package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Pool struct {
	PoolID       BigInt `json:"poolId"`
	EndTime      BigInt `json:"endTime"`
	StartTime    BigInt `json:"startTime"`
	TotalAmount  BigInt `json:"totalAmount"`
	TotalPlayers BigInt `json:"totalPlayers"`
	PlayersLeft  BigInt `json:"playersLeft"`
	Result       BigInt `json:"result"`
	Ended        bool   `json:"ended"`
	BaseAmount   BigInt `json:"baseAmount"`
}

type PlayerBet struct {
	User          common.Address `json:"user"`
	Amount        BigInt         `json:"amount"`
	TargetScore   BigInt         `json:"targetScore"`
	ClaimedAmount BigInt         `json:"claimedAmount"`
	Claimed       bool           `json:"claimed"`
}

type Stats struct {
	TotalUsers         BigInt `json:"totalUsers"`
	TotalBetsPlaced    BigInt `json:"totalBetsPlaced"`
	TotalPoolsCreated  BigInt `json:"totalPoolsCreated"`
	TotalPointsAwarded BigInt `json:"totalPointsAwarded"`
}

// TxResult is what every write action answers with.
type TxResult struct {
	PoolID  *BigInt `json:"poolId,omitempty"`
	TxHash  string  `json:"txHash"`
	Result  *BigInt `json:"result,omitempty"`
	Success bool    `json:"success,omitempty"`
}

type LeaderboardEntry struct {
	Address          string `json:"address"`
	TotalPoolsPlayed int    `json:"totalPoolsPlayed"`
	TotalRewards     string `json:"totalRewards"`
	Points           int64  `json:"points"`
}

// Activity is one mirrored write, as stored by the database layer.
type Activity struct {
	Kind      string    `json:"kind"` // pool_created, bet_placed, result_set, bet_claimed
	PoolID    string    `json:"poolId"`
	User      string    `json:"user,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Value     string    `json:"value,omitempty"`
	TxHash    string    `json:"txHash"`
	CreatedAt time.Time `json:"createdAt"`
}

// PoolEvent is published on the notification hub after a mirrored write.
type PoolEvent struct {
	Type   string `json:"type"`
	PoolID string `json:"poolId"`
	User   string `json:"user,omitempty"`
	Value  string `json:"value,omitempty"`
	TxHash string `json:"txHash,omitempty"`
}

const (
	EventPoolCreated = "PoolCreated"
	EventBetPlaced   = "BetPlaced"
	EventResultSet   = "ResultSet"
	EventBetClaimed  = "BetClaimed"
)
