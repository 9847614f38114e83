package streams

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event ids registered with the streams protocol.
const (
	PoolCreatedEventID      = "PoolCreated"
	BetPlacedEventID        = "BetPlaced"
	BetClaimedEventID       = "BetClaimed"
	ResultSetEventID        = "ResultSet"
	FundsDistributedEventID = "FundsDistributed"
	FundsWithdrawnEventID   = "FundsWithdrawn"
	EtherReceivedEventID    = "EtherReceived"
	PointsAwardedEventID    = "PointsAwarded"
	PointsAddedEventID      = "PointsAdded"
)

var (
	PoolSchema             = MustParseSchema("pool", "uint64 timestamp, uint256 poolId, uint256 endTime, uint256 startTime, uint256 totalAmount, uint256 totalPlayers, uint256 playersLeft, uint256 result, bool ended, uint256 baseAmount")
	PoolCreatedSchema      = MustParseSchema("poolCreated", "uint256 poolId, uint256 endTime, uint256 totalPlayers, uint256 baseAmount, uint256 startTime")
	BetPlacedSchema        = MustParseSchema("betPlaced", "uint64 timestamp, address user, uint256 poolId, uint256 amount, uint256 targetValue")
	BetClaimedSchema       = MustParseSchema("betClaimed", "uint64 timestamp, address user, uint256 poolId, uint256 reward")
	ResultSetSchema        = MustParseSchema("resultSet", "uint64 timestamp, uint256 poolId, uint256 resultValue")
	FundsDistributedSchema = MustParseSchema("fundsDistributed", "uint64 timestamp, uint256 poolId, uint256 amount")
	FundsWithdrawnSchema   = MustParseSchema("fundsWithdrawn", "uint64 timestamp, address owner, uint256 amount")
	EtherReceivedSchema    = MustParseSchema("etherReceived", "uint64 timestamp, address sender, uint256 amount")
	PointsAwardedSchema    = MustParseSchema("pointsAwarded", "uint64 timestamp, address user, uint256 points, uint256 totalPoints, string reason")
	PointsAddedSchema      = MustParseSchema("pointsAdded", "uint64 timestamp, address user, uint256 points, uint256 totalPoints")
	PlayerBetSchema        = MustParseSchema("playerBet", "uint64 timestamp, address user, uint256 poolId, uint256 amount, uint256 targetScore, uint256 claimedAmount, bool claimed")
	UserPointsSchema       = MustParseSchema("userPoints", "uint64 timestamp, address user, uint256 totalPoints")
	PoolBetsHistorySchema  = MustParseSchema("poolBetsHistory", "uint64 timestamp, uint256 poolId, address[] users, uint256[] targetScores")
	PlatformStatsSchema    = MustParseSchema("platformStats", "uint64 timestamp, uint256 totalUsers, uint256 totalBetsPlaced, uint256 totalPoolsCreated, uint256 totalPointsAwarded")
)

// AllSchemas is the registration set, in registration order.
var AllSchemas = []*Schema{
	PoolSchema,
	PoolCreatedSchema,
	BetPlacedSchema,
	BetClaimedSchema,
	ResultSetSchema,
	FundsDistributedSchema,
	FundsWithdrawnSchema,
	EtherReceivedSchema,
	PointsAwardedSchema,
	PointsAddedSchema,
	PlayerBetSchema,
	UserPointsSchema,
	PoolBetsHistorySchema,
	PlatformStatsSchema,
}

func indexed(name, typ string) EventParam {
	return EventParam{Name: name, ParamType: typ, IsIndexed: true}
}

// EventSchemas pairs every event id with its topic layout.
var EventSchemas = []struct {
	ID     string
	Schema EventSchema
}{
	{PoolCreatedEventID, EventSchema{Params: []EventParam{indexed("poolId", "uint256")}, EventTopic: "PoolCreated(uint256 indexed poolId)"}},
	{BetPlacedEventID, EventSchema{Params: []EventParam{indexed("user", "address"), indexed("poolId", "uint256")}, EventTopic: "BetPlaced(address indexed user, uint256 indexed poolId)"}},
	{BetClaimedEventID, EventSchema{Params: []EventParam{indexed("user", "address"), indexed("poolId", "uint256")}, EventTopic: "BetClaimed(address indexed user, uint256 indexed poolId)"}},
	{ResultSetEventID, EventSchema{Params: []EventParam{indexed("poolId", "uint256")}, EventTopic: "ResultSet(uint256 indexed poolId)"}},
	{FundsDistributedEventID, EventSchema{Params: []EventParam{indexed("poolId", "uint256")}, EventTopic: "FundsDistributed(uint256 indexed poolId)"}},
	{FundsWithdrawnEventID, EventSchema{Params: []EventParam{indexed("owner", "address")}, EventTopic: "FundsWithdrawn(address indexed owner)"}},
	{EtherReceivedEventID, EventSchema{Params: []EventParam{indexed("sender", "address")}, EventTopic: "EtherReceived(address indexed sender)"}},
	{PointsAwardedEventID, EventSchema{Params: []EventParam{indexed("user", "address")}, EventTopic: "PointsAwarded(address indexed user)"}},
	{PointsAddedEventID, EventSchema{Params: []EventParam{indexed("user", "address")}, EventTopic: "PointsAdded(address indexed user)"}},
}

type PoolRecord struct {
	Timestamp    uint64   `abi:"timestamp"`
	PoolID       *big.Int `abi:"poolId"`
	EndTime      *big.Int `abi:"endTime"`
	StartTime    *big.Int `abi:"startTime"`
	TotalAmount  *big.Int `abi:"totalAmount"`
	TotalPlayers *big.Int `abi:"totalPlayers"`
	PlayersLeft  *big.Int `abi:"playersLeft"`
	Result       *big.Int `abi:"result"`
	Ended        bool     `abi:"ended"`
	BaseAmount   *big.Int `abi:"baseAmount"`
}

func (r *PoolRecord) Encode() ([]byte, error) {
	return PoolSchema.Encode(r.Timestamp, r.PoolID, r.EndTime, r.StartTime, r.TotalAmount,
		r.TotalPlayers, r.PlayersLeft, r.Result, r.Ended, r.BaseAmount)
}

type PoolCreatedRecord struct {
	PoolID       *big.Int `abi:"poolId"`
	EndTime      *big.Int `abi:"endTime"`
	TotalPlayers *big.Int `abi:"totalPlayers"`
	BaseAmount   *big.Int `abi:"baseAmount"`
	StartTime    *big.Int `abi:"startTime"`
}

func (r *PoolCreatedRecord) Encode() ([]byte, error) {
	return PoolCreatedSchema.Encode(r.PoolID, r.EndTime, r.TotalPlayers, r.BaseAmount, r.StartTime)
}

type BetPlacedRecord struct {
	Timestamp   uint64         `abi:"timestamp"`
	User        common.Address `abi:"user"`
	PoolID      *big.Int       `abi:"poolId"`
	Amount      *big.Int       `abi:"amount"`
	TargetValue *big.Int       `abi:"targetValue"`
}

func (r *BetPlacedRecord) Encode() ([]byte, error) {
	return BetPlacedSchema.Encode(r.Timestamp, r.User, r.PoolID, r.Amount, r.TargetValue)
}

type BetClaimedRecord struct {
	Timestamp uint64         `abi:"timestamp"`
	User      common.Address `abi:"user"`
	PoolID    *big.Int       `abi:"poolId"`
	Reward    *big.Int       `abi:"reward"`
}

func (r *BetClaimedRecord) Encode() ([]byte, error) {
	return BetClaimedSchema.Encode(r.Timestamp, r.User, r.PoolID, r.Reward)
}

type ResultSetRecord struct {
	Timestamp   uint64   `abi:"timestamp"`
	PoolID      *big.Int `abi:"poolId"`
	ResultValue *big.Int `abi:"resultValue"`
}

func (r *ResultSetRecord) Encode() ([]byte, error) {
	return ResultSetSchema.Encode(r.Timestamp, r.PoolID, r.ResultValue)
}

type PlayerBetRecord struct {
	Timestamp     uint64         `abi:"timestamp"`
	User          common.Address `abi:"user"`
	PoolID        *big.Int       `abi:"poolId"`
	Amount        *big.Int       `abi:"amount"`
	TargetScore   *big.Int       `abi:"targetScore"`
	ClaimedAmount *big.Int       `abi:"claimedAmount"`
	Claimed       bool           `abi:"claimed"`
}

func (r *PlayerBetRecord) Encode() ([]byte, error) {
	return PlayerBetSchema.Encode(r.Timestamp, r.User, r.PoolID, r.Amount, r.TargetScore, r.ClaimedAmount, r.Claimed)
}

type PointsAwardedRecord struct {
	Timestamp   uint64         `abi:"timestamp"`
	User        common.Address `abi:"user"`
	Points      *big.Int       `abi:"points"`
	TotalPoints *big.Int       `abi:"totalPoints"`
	Reason      string         `abi:"reason"`
}

func (r *PointsAwardedRecord) Encode() ([]byte, error) {
	return PointsAwardedSchema.Encode(r.Timestamp, r.User, r.Points, r.TotalPoints, r.Reason)
}

type UserPointsRecord struct {
	Timestamp   uint64         `abi:"timestamp"`
	User        common.Address `abi:"user"`
	TotalPoints *big.Int       `abi:"totalPoints"`
}

func (r *UserPointsRecord) Encode() ([]byte, error) {
	return UserPointsSchema.Encode(r.Timestamp, r.User, r.TotalPoints)
}
