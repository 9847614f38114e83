package streams

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var testPublisher = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestStringKey(t *testing.T) {
	k := StringKey("pool-7")
	require.Equal(t, []byte("pool-7"), k[:6])
	require.Equal(t, make([]byte, 26), k[6:])

	long := "bet-claimed-12-0x00000000000000000000000000000000000000aa"
	require.Equal(t, crypto.Keccak256Hash([]byte(long)), StringKey(long))
}

func TestTopics(t *testing.T) {
	require.Equal(t,
		common.HexToHash("0x000000000000000000000000000000000000000000000000000000000000002a"),
		UintTopic(big.NewInt(42)))
	require.Equal(t,
		common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa"),
		AddressTopic(testPublisher))
}

func TestAddressKeysAreCaseInsensitive(t *testing.T) {
	a := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	require.Equal(t, HashKey("user-points-0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"), UserPointsKey(a))
}

func TestParseSchemaRejectsMalformed(t *testing.T) {
	_, err := ParseSchema("bad", "uint256 poolId, bool")
	require.Error(t, err)

	for _, def := range []string{"uint257 poolId", "uint0 poolId", "int12 delta", "int264 delta", "bytes33 blob", "bytes0 blob", "uintx poolId"} {
		_, err = ParseSchema("bad", def)
		require.Error(t, err, def)
	}

	for _, def := range []string{"uint8 v", "int256 v", "bytes32 v", "bytes v", "uint256[] v", "string v, address a"} {
		_, err = ParseSchema("ok", def)
		require.NoError(t, err, def)
	}
}

func TestAllSchemasHaveDistinctIDs(t *testing.T) {
	seen := map[common.Hash]string{}
	for _, s := range AllSchemas {
		prev, dup := seen[s.ID()]
		require.False(t, dup, "%s collides with %s", s.Name, prev)
		seen[s.ID()] = s.Name
	}
	require.Len(t, seen, 14)
}

func registerAll(t *testing.T, st Store) {
	t.Helper()
	schemas := make([]DataSchema, 0, len(AllSchemas))
	for _, s := range AllSchemas {
		schemas = append(schemas, DataSchema{ID: s.Name, Schema: s.Def})
	}
	_, err := st.RegisterDataSchemas(context.Background(), schemas, true)
	require.NoError(t, err)

	ids := make([]string, 0, len(EventSchemas))
	evs := make([]EventSchema, 0, len(EventSchemas))
	for _, e := range EventSchemas {
		ids = append(ids, e.ID)
		evs = append(evs, e.Schema)
	}
	_, err = st.RegisterEventSchemas(context.Background(), ids, evs)
	require.NoError(t, err)
}

func TestMemoryStoreWriteAndRead(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(testPublisher)
	registerAll(t, st)

	rec := &PoolRecord{
		Timestamp:    1700000000,
		PoolID:       big.NewInt(0),
		EndTime:      big.NewInt(1700000600),
		StartTime:    big.NewInt(1700000000),
		TotalAmount:  big.NewInt(0),
		TotalPlayers: big.NewInt(4),
		PlayersLeft:  big.NewInt(4),
		Result:       big.NewInt(0),
		BaseAmount:   big.NewInt(1e15),
	}
	ds, err := Stream(PoolSchema, PoolKey(rec.PoolID), rec)
	require.NoError(t, err)

	tx, err := st.SetAndEmitEvents(ctx, []DataStream{ds}, []EventStream{
		{ID: PoolCreatedEventID, ArgumentTopics: []common.Hash{UintTopic(rec.PoolID)}},
	})
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, tx)

	var got PoolRecord
	require.NoError(t, Get(ctx, st, PoolSchema, PoolKey(big.NewInt(0)), &got))
	require.Equal(t, uint64(1700000000), got.Timestamp)
	require.Equal(t, "1700000600", got.EndTime.String())
	require.Equal(t, "4", got.PlayersLeft.String())
	require.Equal(t, "1000000000000000", got.BaseAmount.String())
	require.False(t, got.Ended)

	emitted := st.Emitted()
	require.Len(t, emitted, 1)
	require.Equal(t, PoolCreatedEventID, emitted[0].ID)
	require.Equal(t, tx, emitted[0].TxHash)

	err = Get(ctx, st, PoolSchema, PoolKey(big.NewInt(1)), &got)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRegistrationRules(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(testPublisher)
	registerAll(t, st)

	ok, err := st.IsSchemaRegistered(ctx, UserPointsSchema.ID())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = st.RegisterDataSchemas(ctx, []DataSchema{{ID: "pool", Schema: PoolSchema.Def}}, false)
	require.True(t, IsAlreadyRegistered(err))

	_, err = st.RegisterEventSchemas(ctx, []string{ResultSetEventID}, []EventSchema{EventSchemas[3].Schema})
	require.True(t, IsAlreadyRegistered(err))

	_, err = st.SetAndEmitEvents(ctx, nil, []EventStream{{ID: BetPlacedEventID, ArgumentTopics: []common.Hash{{}}}})
	require.ErrorContains(t, err, "1 topics for 2 params")

	unknown := MustParseSchema("x", "uint256 y, bool z")
	_, err = st.SetAndEmitEvents(ctx, []DataStream{{SchemaID: unknown.ID()}}, nil)
	require.ErrorContains(t, err, "not registered")
}

func TestMemoryStoreFailWrites(t *testing.T) {
	st := NewMemoryStore(testPublisher)
	st.FailWrites = errors.New("insufficient funds for gas")

	_, err := st.RegisterDataSchemas(context.Background(), nil, true)
	require.True(t, IsUnfunded(err))
}

func TestPlayerBetRecordDecode(t *testing.T) {
	user := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	rec := &PlayerBetRecord{
		Timestamp:     5,
		User:          user,
		PoolID:        big.NewInt(3),
		Amount:        big.NewInt(10),
		TargetScore:   big.NewInt(6),
		ClaimedAmount: big.NewInt(25),
		Claimed:       true,
	}
	data, err := rec.Encode()
	require.NoError(t, err)

	var got PlayerBetRecord
	require.NoError(t, PlayerBetSchema.DecodeInto(&got, data))
	require.Equal(t, user, got.User)
	require.Equal(t, "25", got.ClaimedAmount.String())
	require.True(t, got.Claimed)
}
