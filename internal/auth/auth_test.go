package auth

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)
	owner := common.HexToAddress("0x00000000000000000000000000000000000000ff")

	tok, err := iss.GenerateToken(owner)
	require.NoError(t, err)

	claims, err := iss.ValidateToken(tok)
	require.NoError(t, err)
	require.Equal(t, owner.Hex(), claims.Address)

	_, err = NewIssuer("other", time.Hour).ValidateToken(tok)
	require.Error(t, err)
}

func TestTokenExpires(t *testing.T) {
	iss := NewIssuer("s3cret", time.Minute)
	start := time.Now()
	iss.now = func() time.Time { return start }
	tok, err := iss.GenerateToken(common.Address{1})
	require.NoError(t, err)

	iss.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = iss.ValidateToken(tok)
	require.Error(t, err)
}

func TestDisabledIssuer(t *testing.T) {
	iss := NewIssuer("", 0)
	require.False(t, iss.Enabled())
	_, err := iss.GenerateToken(common.Address{})
	require.Error(t, err)
}

func TestRecoverAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	msg := LoginMessage(addr, "nonce-1")
	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	got, err := RecoverAddress(msg, hexutil.Encode(sig))
	require.NoError(t, err)
	require.Equal(t, addr, got)

	got, err = RecoverAddress(LoginMessage(addr, "nonce-2"), hexutil.Encode(sig))
	require.NoError(t, err)
	require.NotEqual(t, addr, got)

	_, err = RecoverAddress(msg, "0x1234")
	require.Error(t, err)
}
