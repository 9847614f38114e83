package streams

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// StringKey stores s right-padded into a 32-byte key. Strings that do not
// fit are hashed instead.
func StringKey(s string) common.Hash {
	if len(s) > common.HashLength {
		return HashKey(s)
	}
	var h common.Hash
	copy(h[:], s)
	return h
}

func HashKey(s string) common.Hash {
	return crypto.Keccak256Hash([]byte(s))
}

// UintTopic encodes v as an indexed uint256 event argument.
func UintTopic(v *big.Int) common.Hash {
	return common.BigToHash(v)
}

// AddressTopic encodes an indexed address event argument.
func AddressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func lowerHex(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func PoolKey(poolID *big.Int) common.Hash {
	return StringKey(fmt.Sprintf("pool-%s", poolID))
}

func PoolCreatedKey(poolID *big.Int) common.Hash {
	return StringKey(fmt.Sprintf("created-%s", poolID))
}

func ResultSetKey(poolID *big.Int) common.Hash {
	return StringKey(fmt.Sprintf("result-set-%s", poolID))
}

func BetPlacedKey(poolID *big.Int, user common.Address) common.Hash {
	return StringKey(fmt.Sprintf("bet-placed-%s-%s", poolID, lowerHex(user)))
}

func BetClaimedKey(poolID *big.Int, user common.Address) common.Hash {
	return StringKey(fmt.Sprintf("bet-claimed-%s-%s", poolID, lowerHex(user)))
}

func PlayerBetKey(poolID *big.Int, user common.Address) common.Hash {
	return HashKey(fmt.Sprintf("bet-%s-%s", poolID, lowerHex(user)))
}

func UserPointsKey(user common.Address) common.Hash {
	return HashKey(fmt.Sprintf("user-points-%s", lowerHex(user)))
}

// PointsAwardedKey is unique per award; ts is a unix millisecond stamp.
func PointsAwardedKey(user common.Address, ts int64) common.Hash {
	return HashKey(fmt.Sprintf("points-%s-%d", lowerHex(user), ts))
}
