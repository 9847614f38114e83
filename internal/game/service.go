package game

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/cache"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/errs"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/metrics"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/models"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/streams"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/pkg/crypto"
)

// Ledger is the authoritative contract. *chain.DiceMania implements it.
type Ledger interface {
	PoolCount(ctx context.Context) (*big.Int, error)
	PoolDetail(ctx context.Context, poolID *big.Int) (*models.Pool, error)
	Bets(ctx context.Context, poolID *big.Int) ([]models.PlayerBet, error)
	Stats(ctx context.Context) (*models.Stats, error)
	Owner(ctx context.Context) (common.Address, error)
	SetResult(ctx context.Context, poolID, result *big.Int) (common.Hash, error)
}

// Recorder keeps an activity history of successful writes.
type Recorder interface {
	RecordPoolCreated(ctx context.Context, p *models.Pool, txHash string) error
	RecordBet(ctx context.Context, poolID *big.Int, user common.Address, amount, target *big.Int, txHash string) error
	RecordResult(ctx context.Context, poolID, result *big.Int, txHash string) error
	RecordClaim(ctx context.Context, poolID *big.Int, user common.Address, reward *big.Int, points int64, txHash string) error
}

// Publisher fans pool events out to live subscribers.
type Publisher interface {
	Publish(ev models.PoolEvent)
}

const (
	poolsCacheKey = "pools:all"
	statsCacheKey = "stats"
	cacheTTL      = 10 * time.Second
	poolFanOut    = 8
)

type Option func(*Service)

func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

func WithCache(c cache.Cache) Option { return func(s *Service) { s.cache = c } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithRoller replaces the die used by RollResult.
func WithRoller(roll func() (int64, error)) Option { return func(s *Service) { s.roll = roll } }

// Service runs the pool lifecycle against the contract and mirrors every
// step into the streams index.
type Service struct {
	ledger   Ledger
	store    streams.Store
	recorder Recorder
	events   Publisher
	cache    cache.Cache
	log      *zap.Logger
	now      func() time.Time
	roll     func() (int64, error)

	// cacheGen changes on every write; a read that started under an older
	// generation must not leave its result cached.
	cacheGen atomic.Uint64

	schemaMu    sync.Mutex
	schemasDone bool

	// claimMu serializes claims so point totals are read and written
	// without interleaving.
	claimMu sync.Mutex
}

func NewService(ledger Ledger, store streams.Store, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		ledger: ledger,
		store:  store,
		log:    log.Named("game"),
		now:    time.Now,
		roll:   crypto.RollDie,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Owner(ctx context.Context) (common.Address, error) {
	return s.ledger.Owner(ctx)
}

// EnsureSchemas registers every data and event schema with the streams
// index. It succeeds at most once per process; schemas the index already
// knows are not an error.
func (s *Service) EnsureSchemas(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemasDone {
		return nil
	}

	var pending []streams.DataSchema
	for _, sc := range streams.AllSchemas {
		ok, err := s.store.IsSchemaRegistered(ctx, sc.ID())
		if err != nil {
			return s.registrationError("check schema "+sc.Name, err)
		}
		if !ok {
			pending = append(pending, streams.DataSchema{ID: sc.Name, Schema: sc.Def})
		}
	}
	if len(pending) > 0 {
		_, err := s.store.RegisterDataSchemas(ctx, pending, true)
		if err != nil && !streams.IsAlreadyRegistered(err) {
			return s.registrationError("register data schemas", err)
		}
		s.log.Info("data schemas registered", zap.Int("count", len(pending)))
	}

	ids := make([]string, len(streams.EventSchemas))
	schemas := make([]streams.EventSchema, len(streams.EventSchemas))
	for i, e := range streams.EventSchemas {
		ids[i], schemas[i] = e.ID, e.Schema
	}
	if _, err := s.store.RegisterEventSchemas(ctx, ids, schemas); err != nil {
		if !streams.IsAlreadyRegistered(err) {
			return s.registrationError("register event schemas", err)
		}
		s.log.Debug("event schemas already registered")
	}

	s.schemasDone = true
	return nil
}

func (s *Service) registrationError(what string, err error) error {
	if streams.IsUnfunded(err) {
		return &errs.E{
			Kind: errs.Unavailable,
			Message: fmt.Sprintf("publisher account %s is not funded; fund it with STT from the Somnia faucet",
				s.store.Publisher().Hex()),
			Cause: err,
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

// CreatePool writes the initial state of a pool to the streams index.
func (s *Service) CreatePool(ctx context.Context, poolID, totalPlayers, baseAmount *big.Int) (*models.TxResult, error) {
	switch {
	case poolID == nil || poolID.Sign() < 0:
		return nil, errs.Invalidf("poolId must be a non-negative integer")
	case totalPlayers == nil || totalPlayers.Sign() <= 0:
		return nil, errs.Invalidf("totalPlayers must be positive")
	case baseAmount == nil || baseAmount.Sign() <= 0:
		return nil, errs.Invalidf("baseAmount must be positive")
	}
	if err := s.EnsureSchemas(ctx); err != nil {
		return nil, err
	}

	now := s.now()
	start := big.NewInt(now.Unix())
	end := new(big.Int).Add(start, big.NewInt(int64(PoolDuration/time.Second)))
	pool := &models.Pool{
		PoolID:       models.BigFrom(poolID),
		StartTime:    models.BigFrom(start),
		EndTime:      models.BigFrom(end),
		TotalPlayers: models.BigFrom(totalPlayers),
		PlayersLeft:  models.BigFrom(totalPlayers),
		BaseAmount:   models.BigFrom(baseAmount),
	}

	var b batch
	b.add(streams.PoolCreatedSchema, streams.PoolCreatedKey(poolID), &streams.PoolCreatedRecord{
		PoolID:       poolID,
		EndTime:      end,
		TotalPlayers: totalPlayers,
		BaseAmount:   baseAmount,
		StartTime:    start,
	})
	b.add(streams.PoolSchema, streams.PoolKey(poolID), poolRecord(pool, now))
	tx, err := b.write(ctx, s.store, streams.PoolCreatedEventID,
		event(streams.PoolCreatedEventID, streams.UintTopic(poolID)))
	if err != nil {
		return nil, errs.Wrap(err, "failed to store pool in streams")
	}
	s.log.Info("pool created",
		zap.String("pool", poolID.String()),
		zap.String("players", totalPlayers.String()),
		zap.String("tx", tx.Hex()))

	s.afterWrite(ctx, models.PoolEvent{Type: models.EventPoolCreated, PoolID: poolID.String(), TxHash: tx.Hex()},
		func(r Recorder) error { return r.RecordPoolCreated(ctx, pool, tx.Hex()) })

	id := models.BigFrom(poolID)
	return &models.TxResult{PoolID: &id, TxHash: tx.Hex()}, nil
}

// PlaceBet mirrors a player's bet. The player's own transaction may
// already have filled the pool, so a bet the contract holds is accepted
// whatever the pool status.
func (s *Service) PlaceBet(ctx context.Context, poolID *big.Int, user common.Address, amount, target *big.Int) (*models.TxResult, error) {
	switch {
	case !ValidDieValue(target):
		return nil, errs.Invalidf("targetValue must be between 1 and 6")
	case user == (common.Address{}):
		return nil, errs.Invalidf("userAddress must be a non-zero address")
	case amount == nil || amount.Sign() <= 0:
		return nil, errs.Invalidf("amount must be positive")
	}
	if err := s.EnsureSchemas(ctx); err != nil {
		return nil, err
	}

	pool, err := s.requirePool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if placed := findBet(s.GetPoolBets(ctx, poolID), user); placed != nil {
		if placed.TargetScore.Cmp(target) != 0 {
			return nil, errs.Invalidf("targetValue %s does not match the on-chain bet of %s", target, placed.TargetScore.String())
		}
	} else if st := PoolStatus(pool, now); st != StatusOpen {
		return nil, errs.Invalidf("pool %s is %s and not accepting bets", poolID, st)
	}
	if amount.Cmp(&pool.BaseAmount.Int) != 0 {
		return nil, errs.Invalidf("amount must equal the pool base amount of %s wei", pool.BaseAmount.String())
	}

	ts := uint64(now.Unix())
	var b batch
	b.add(streams.BetPlacedSchema, streams.BetPlacedKey(poolID, user), &streams.BetPlacedRecord{
		Timestamp:   ts,
		User:        user,
		PoolID:      poolID,
		Amount:      amount,
		TargetValue: target,
	})
	b.add(streams.PlayerBetSchema, streams.PlayerBetKey(poolID, user), &streams.PlayerBetRecord{
		Timestamp:     ts,
		User:          user,
		PoolID:        poolID,
		Amount:        amount,
		TargetScore:   target,
		ClaimedAmount: new(big.Int),
	})
	b.add(streams.PoolSchema, streams.PoolKey(poolID), poolRecord(pool, now))
	tx, err := b.write(ctx, s.store, streams.BetPlacedEventID,
		event(streams.BetPlacedEventID, streams.AddressTopic(user), streams.UintTopic(poolID)))
	if err != nil {
		return nil, errs.Wrap(err, "failed to place bet")
	}
	s.log.Info("bet placed",
		zap.String("pool", poolID.String()),
		zap.String("user", user.Hex()),
		zap.String("target", target.String()),
		zap.String("tx", tx.Hex()))

	s.afterWrite(ctx, models.PoolEvent{
		Type:   models.EventBetPlaced,
		PoolID: poolID.String(),
		User:   user.Hex(),
		Value:  target.String(),
		TxHash: tx.Hex(),
	}, func(r Recorder) error { return r.RecordBet(ctx, poolID, user, amount, target, tx.Hex()) })

	return &models.TxResult{Success: true, TxHash: tx.Hex()}, nil
}

// ClaimBet records a winner's payout and awards PointsPerWin points.
func (s *Service) ClaimBet(ctx context.Context, poolID *big.Int, user common.Address, reward *big.Int) (*models.TxResult, error) {
	if reward == nil {
		reward = new(big.Int)
	}
	if err := s.EnsureSchemas(ctx); err != nil {
		return nil, err
	}

	pool, err := s.requirePool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if !pool.Ended {
		return nil, errs.Invalidf("Pool is not resolved yet")
	}
	if reward.Sign() <= 0 {
		return nil, errs.Invalidf("No reward to claim")
	}

	bets, err := s.ledger.Bets(ctx, poolID)
	if err != nil {
		return nil, &errs.E{Kind: errs.Unavailable, Message: "failed to read bets from contract", Cause: err}
	}
	bet := findBet(bets, user)
	if bet == nil {
		return nil, errs.Invalidf("no bet from %s in pool %s", user.Hex(), poolID)
	}
	if !isWinner(pool, bet) {
		return nil, errs.Invalidf("bet on %s did not win, the result was %s", bet.TargetScore.String(), pool.Result.String())
	}
	want := Payout(pool, bets, bet)
	if bet.Claimed && bet.ClaimedAmount.Sign() > 0 {
		want = bet.ClaimedAmount.Big()
	}
	if reward.Cmp(want) != 0 {
		return nil, errs.Invalidf("reward %s does not match the payout of %s", reward, want)
	}

	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var prev streams.PlayerBetRecord
	err = streams.Get(ctx, s.store, streams.PlayerBetSchema, streams.PlayerBetKey(poolID, user), &prev)
	switch {
	case err == nil && prev.Claimed:
		return nil, errs.Invalidf("reward already claimed")
	case err != nil && !errors.Is(err, streams.ErrNotFound):
		return nil, errs.Wrap(err, "failed to read bet from streams")
	}

	points, err := s.GetUserPoints(ctx, user)
	if err != nil {
		return nil, err
	}
	total := new(big.Int).Add(points, big.NewInt(PointsPerWin))

	now := s.now()
	ts := uint64(now.Unix())
	var b batch
	b.add(streams.BetClaimedSchema, streams.BetClaimedKey(poolID, user), &streams.BetClaimedRecord{
		Timestamp: ts,
		User:      user,
		PoolID:    poolID,
		Reward:    reward,
	})
	b.add(streams.PlayerBetSchema, streams.PlayerBetKey(poolID, user), &streams.PlayerBetRecord{
		Timestamp:     ts,
		User:          user,
		PoolID:        poolID,
		Amount:        bet.Amount.Big(),
		TargetScore:   bet.TargetScore.Big(),
		ClaimedAmount: reward,
		Claimed:       true,
	})
	b.add(streams.PointsAwardedSchema, streams.PointsAwardedKey(user, now.UnixMilli()), &streams.PointsAwardedRecord{
		Timestamp:   ts,
		User:        user,
		Points:      big.NewInt(PointsPerWin),
		TotalPoints: total,
		Reason:      "Bet Won",
	})
	b.add(streams.UserPointsSchema, streams.UserPointsKey(user), &streams.UserPointsRecord{
		Timestamp:   ts,
		User:        user,
		TotalPoints: total,
	})
	tx, err := b.write(ctx, s.store, streams.BetClaimedEventID,
		event(streams.BetClaimedEventID, streams.AddressTopic(user), streams.UintTopic(poolID)),
		event(streams.PointsAwardedEventID, streams.AddressTopic(user)))
	if err != nil {
		return nil, errs.Wrap(err, "failed to claim bet")
	}
	s.log.Info("bet claimed",
		zap.String("pool", poolID.String()),
		zap.String("user", user.Hex()),
		zap.String("reward", reward.String()),
		zap.String("points", total.String()),
		zap.String("tx", tx.Hex()))

	s.afterWrite(ctx, models.PoolEvent{
		Type:   models.EventBetClaimed,
		PoolID: poolID.String(),
		User:   user.Hex(),
		Value:  reward.String(),
		TxHash: tx.Hex(),
	}, func(r Recorder) error { return r.RecordClaim(ctx, poolID, user, reward, PointsPerWin, tx.Hex()) })

	return &models.TxResult{TxHash: tx.Hex()}, nil
}

// SetResult settles the pool on the contract, then mirrors the outcome.
// The returned hash is the contract transaction's.
func (s *Service) SetResult(ctx context.Context, poolID, result *big.Int) (*models.TxResult, error) {
	if !ValidDieValue(result) {
		return nil, errs.Invalidf("resultValue must be between 1 and 6")
	}
	pool, err := s.requirePool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Ended {
		return nil, errs.Invalidf("pool %s already has result %s", poolID, pool.Result.String())
	}

	tx, err := s.ledger.SetResult(ctx, poolID, result)
	if err != nil {
		return nil, errs.Wrap(err, "failed to set result")
	}
	s.log.Info("result set",
		zap.String("pool", poolID.String()),
		zap.String("result", result.String()),
		zap.String("tx", tx.Hex()))

	if err := s.mirrorResult(ctx, poolID, result); err != nil {
		s.log.Warn("mirror result to streams", zap.String("pool", poolID.String()), zap.Error(err))
	}

	s.afterWrite(ctx, models.PoolEvent{
		Type:   models.EventResultSet,
		PoolID: poolID.String(),
		Value:  result.String(),
		TxHash: tx.Hex(),
	}, func(r Recorder) error { return r.RecordResult(ctx, poolID, result, tx.Hex()) })

	r := models.BigFrom(result)
	return &models.TxResult{TxHash: tx.Hex(), Result: &r}, nil
}

// RollResult draws the result server-side and settles the pool with it.
func (s *Service) RollResult(ctx context.Context, poolID *big.Int) (*models.TxResult, error) {
	v, err := s.roll()
	if err != nil {
		return nil, errs.Wrap(err, "failed to roll die")
	}
	return s.SetResult(ctx, poolID, big.NewInt(v))
}

func (s *Service) mirrorResult(ctx context.Context, poolID, result *big.Int) error {
	if err := s.EnsureSchemas(ctx); err != nil {
		return err
	}
	pool, err := s.GetPoolByID(ctx, poolID)
	if err != nil {
		return err
	}
	if pool == nil {
		return fmt.Errorf("pool %s not found after setting result", poolID)
	}
	// The node may not serve the settled state yet.
	pool.Result = models.BigFrom(result)
	pool.Ended = true

	now := s.now()
	var b batch
	b.add(streams.ResultSetSchema, streams.ResultSetKey(poolID), &streams.ResultSetRecord{
		Timestamp:   uint64(now.Unix()),
		PoolID:      poolID,
		ResultValue: result,
	})
	b.add(streams.PoolSchema, streams.PoolKey(poolID), poolRecord(pool, now))
	_, err = b.write(ctx, s.store, streams.ResultSetEventID,
		event(streams.ResultSetEventID, streams.UintTopic(poolID)))
	return err
}

// GetAllPools lists every pool the contract knows, ordered by id. Pools
// that fail to load are skipped.
func (s *Service) GetAllPools(ctx context.Context) ([]models.Pool, error) {
	if s.cache != nil {
		var cached []models.Pool
		if hit, err := s.cache.Get(ctx, poolsCacheKey, &cached); err != nil {
			s.log.Debug("pool cache read", zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	gen := s.cacheGen.Load()
	pools, err := s.fetchPools(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheFresh(ctx, poolsCacheKey, pools, gen)
	return pools, nil
}

func (s *Service) fetchPools(ctx context.Context) ([]models.Pool, error) {
	count, err := s.ledger.PoolCount(ctx)
	if err != nil {
		return nil, &errs.E{Kind: errs.Unavailable, Message: "failed to fetch pools from contract", Cause: err}
	}
	if !count.IsInt64() || count.Sign() < 0 {
		return nil, fmt.Errorf("contract reports %s pools", count)
	}
	n := count.Int64()

	found := make([]*models.Pool, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolFanOut)
	for i := int64(0); i < n; i++ {
		i := i
		g.Go(func() error {
			p, err := s.ledger.PoolDetail(gctx, big.NewInt(i))
			if err != nil {
				s.log.Warn("skip pool", zap.Int64("pool", i), zap.Error(err))
				return nil
			}
			p.StartTime = startTimeFor(p)
			found[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pools := make([]models.Pool, 0, n)
	for _, p := range found {
		if p != nil {
			pools = append(pools, *p)
		}
	}
	sort.Slice(pools, func(a, b int) bool {
		return pools[a].PoolID.Cmp(&pools[b].PoolID.Int) < 0
	})
	return pools, nil
}

// GetPools is GetAllPools cut to the first limit pools. A nil or negative
// limit returns everything.
func (s *Service) GetPools(ctx context.Context, limit *int) ([]models.Pool, error) {
	pools, err := s.GetAllPools(ctx)
	if err != nil {
		return nil, err
	}
	if limit != nil && *limit >= 0 && *limit < len(pools) {
		pools = pools[:*limit]
	}
	return pools, nil
}

// GetPoolByID merges the contract view with the streams record. The
// contract wins on every field it has; startTime only exists in streams.
// A pool neither source knows is (nil, nil).
func (s *Service) GetPoolByID(ctx context.Context, poolID *big.Int) (*models.Pool, error) {
	if poolID == nil || poolID.Sign() < 0 {
		return nil, errs.Invalidf("poolId must be a non-negative integer")
	}
	rec, err := s.streamPool(ctx, poolID)
	if err != nil {
		s.log.Warn("read pool from streams", zap.String("pool", poolID.String()), zap.Error(err))
	}

	onChain, err := s.contractPool(ctx, poolID)
	if err != nil {
		s.log.Debug("read pool from contract", zap.String("pool", poolID.String()), zap.Error(err))
	}

	switch {
	case onChain != nil:
		if rec != nil && rec.StartTime != nil {
			onChain.StartTime = models.BigFrom(rec.StartTime)
		} else {
			onChain.StartTime = startTimeFor(onChain)
		}
		return onChain, nil
	case rec != nil:
		return poolFromRecord(rec), nil
	}
	return nil, nil
}

func (s *Service) requirePool(ctx context.Context, poolID *big.Int) (*models.Pool, error) {
	pool, err := s.GetPoolByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, errs.NotFoundf("Pool not found")
	}
	return pool, nil
}

// streamPool returns nil without error when nothing is stored.
func (s *Service) streamPool(ctx context.Context, poolID *big.Int) (*streams.PoolRecord, error) {
	var rec streams.PoolRecord
	err := streams.Get(ctx, s.store, streams.PoolSchema, streams.PoolKey(poolID), &rec)
	if errors.Is(err, streams.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// contractPool treats the zero pool the contract returns for unknown ids
// as absent.
func (s *Service) contractPool(ctx context.Context, poolID *big.Int) (*models.Pool, error) {
	p, err := s.ledger.PoolDetail(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.TotalPlayers.Sign() == 0 {
		return nil, nil
	}
	return p, nil
}

// GetPoolBets returns the contract's bets, or none when they cannot be read.
func (s *Service) GetPoolBets(ctx context.Context, poolID *big.Int) []models.PlayerBet {
	bets, err := s.ledger.Bets(ctx, poolID)
	if err != nil {
		s.log.Warn("read bets", zap.String("pool", poolID.String()), zap.Error(err))
		return []models.PlayerBet{}
	}
	if bets == nil {
		bets = []models.PlayerBet{}
	}
	return bets
}

// GetUserPoints is the user's running total, zero when nothing is recorded.
func (s *Service) GetUserPoints(ctx context.Context, user common.Address) (*big.Int, error) {
	var rec streams.UserPointsRecord
	err := streams.Get(ctx, s.store, streams.UserPointsSchema, streams.UserPointsKey(user), &rec)
	if errors.Is(err, streams.ErrNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, &errs.E{Kind: errs.Unavailable, Message: "failed to read points from streams", Cause: err}
	}
	if rec.TotalPoints == nil {
		return new(big.Int), nil
	}
	return rec.TotalPoints, nil
}

// GetStats reads platform totals. Failures are logged and answered with
// zeros.
func (s *Service) GetStats(ctx context.Context) *models.Stats {
	if s.cache != nil {
		var cached models.Stats
		if hit, _ := s.cache.Get(ctx, statsCacheKey, &cached); hit {
			return &cached
		}
	}
	gen := s.cacheGen.Load()
	stats, err := s.ledger.Stats(ctx)
	if err != nil {
		s.log.Warn("read stats", zap.Error(err))
		return &models.Stats{}
	}
	s.cacheFresh(ctx, statsCacheKey, stats, gen)
	return stats
}

// cacheFresh caches v only if no write happened since gen was read. The
// second check covers a write whose Delete ran before this Set.
func (s *Service) cacheFresh(ctx context.Context, key string, v any, gen uint64) {
	if s.cache == nil || s.cacheGen.Load() != gen {
		return
	}
	if err := s.cache.Set(ctx, key, v, cacheTTL); err != nil {
		s.log.Debug("cache write", zap.String("key", key), zap.Error(err))
		return
	}
	if s.cacheGen.Load() != gen {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.log.Warn("invalidate cache", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *Service) afterWrite(ctx context.Context, ev models.PoolEvent, record func(Recorder) error) {
	if s.cache != nil {
		s.cacheGen.Add(1)
		if err := s.cache.Delete(ctx, poolsCacheKey, statsCacheKey); err != nil {
			s.log.Warn("invalidate cache", zap.Error(err))
		}
	}
	if s.recorder != nil {
		if err := record(s.recorder); err != nil {
			s.log.Warn("record activity", zap.String("event", ev.Type), zap.Error(err))
		}
	}
	if s.events != nil {
		s.events.Publish(ev)
	}
}

func findBet(bets []models.PlayerBet, user common.Address) *models.PlayerBet {
	for i := range bets {
		if bets[i].User == user {
			return &bets[i]
		}
	}
	return nil
}

func event(id string, topics ...common.Hash) streams.EventStream {
	return streams.EventStream{ID: id, ArgumentTopics: topics}
}

// batch collects records for one SetAndEmitEvents call and keeps the
// first encoding error.
type batch struct {
	data []streams.DataStream
	err  error
}

func (b *batch) add(sc *streams.Schema, key common.Hash, r streams.Record) {
	if b.err != nil {
		return
	}
	ds, err := streams.Stream(sc, key, r)
	if err != nil {
		b.err = err
		return
	}
	b.data = append(b.data, ds)
}

func (b *batch) write(ctx context.Context, st streams.Store, label string, events ...streams.EventStream) (common.Hash, error) {
	if b.err != nil {
		metrics.StreamWrites.WithLabelValues(label, metrics.Outcome(b.err)).Inc()
		return common.Hash{}, b.err
	}
	tx, err := st.SetAndEmitEvents(ctx, b.data, events)
	metrics.StreamWrites.WithLabelValues(label, metrics.Outcome(err)).Inc()
	return tx, err
}

func poolRecord(p *models.Pool, now time.Time) *streams.PoolRecord {
	return &streams.PoolRecord{
		Timestamp:    uint64(now.Unix()),
		PoolID:       p.PoolID.Big(),
		EndTime:      p.EndTime.Big(),
		StartTime:    p.StartTime.Big(),
		TotalAmount:  p.TotalAmount.Big(),
		TotalPlayers: p.TotalPlayers.Big(),
		PlayersLeft:  p.PlayersLeft.Big(),
		Result:       p.Result.Big(),
		Ended:        p.Ended,
		BaseAmount:   p.BaseAmount.Big(),
	}
}

func poolFromRecord(r *streams.PoolRecord) *models.Pool {
	return &models.Pool{
		PoolID:       models.BigFrom(r.PoolID),
		EndTime:      models.BigFrom(r.EndTime),
		StartTime:    models.BigFrom(r.StartTime),
		TotalAmount:  models.BigFrom(r.TotalAmount),
		TotalPlayers: models.BigFrom(r.TotalPlayers),
		PlayersLeft:  models.BigFrom(r.PlayersLeft),
		Result:       models.BigFrom(r.Result),
		Ended:        r.Ended,
		BaseAmount:   models.BigFrom(r.BaseAmount),
	}
}
