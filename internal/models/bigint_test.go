package models

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBigIntAcceptsStringsAndNumbers(t *testing.T) {
	var req struct {
		PoolID      BigInt `json:"poolId"`
		TargetValue BigInt `json:"targetValue"`
		Amount      BigInt `json:"amount"`
		Reward      BigInt `json:"reward"`
	}
	body := `{"poolId": 7, "targetValue": "3", "amount": "10000000000000000000000000000", "reward": ""}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	require.Equal(t, int64(7), req.PoolID.Int64())
	require.Equal(t, int64(3), req.TargetValue.Int64())
	want, _ := new(big.Int).SetString("10000000000000000000000000000", 10)
	require.Zero(t, want.Cmp(req.Amount.Big()))
	require.Zero(t, req.Reward.Sign())
}

func TestBigIntRejectsGarbage(t *testing.T) {
	var b BigInt
	require.Error(t, json.Unmarshal([]byte(`"12abc"`), &b))
	require.Error(t, json.Unmarshal([]byte(`1.5`), &b))
}

func TestPoolMarshalsDecimalStrings(t *testing.T) {
	p := Pool{
		PoolID:       NewBigInt(2),
		TotalPlayers: NewBigInt(4),
		PlayersLeft:  NewBigInt(1),
		BaseAmount:   NewBigInt(1_000_000_000_000_000),
		Ended:        true,
		Result:       NewBigInt(5),
	}
	out, err := json.Marshal(p)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"poolId":"2","endTime":"0","startTime":"0","totalAmount":"0","totalPlayers":"4",
		"playersLeft":"1","result":"5","ended":true,"baseAmount":"1000000000000000"
	}`, string(out))
}

func TestParseEther(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{"1", "1000000000000000000", false},
		{"0.01", "10000000000000000", false},
		{" 2.5 ", "2500000000000000000", false},
		{"0.0000000000000000001", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEther(tt.in)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatEther(t *testing.T) {
	v, _ := new(big.Int).SetString("2500000000000000000", 10)
	require.Equal(t, "2.5", FormatEther(v))
	require.Equal(t, "0", FormatEther(nil))
}
