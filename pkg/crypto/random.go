package crypto

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// RandomInt returns a uniform value in [0, max).
func RandomInt(max int64) (int64, error) {
	if max <= 0 {
		return 0, errors.New("max must be positive")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

// RollDie returns a face of a fair six-sided die.
func RollDie() (int64, error) {
	n, err := RandomInt(6)
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}
