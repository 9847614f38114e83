package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// BigInt is a uint256-sized integer that travels as a decimal string.
// Unmarshal also accepts bare JSON numbers, which is what older clients
// send for small values like poolId or targetValue.
type BigInt struct {
	big.Int
}

func NewBigInt(v int64) BigInt {
	var b BigInt
	b.SetInt64(v)
	return b
}

func BigFrom(v *big.Int) BigInt {
	var b BigInt
	if v != nil {
		b.Set(v)
	}
	return b
}

func ParseBigInt(s string) (BigInt, error) {
	var b BigInt
	s = strings.TrimSpace(s)
	if s == "" {
		return b, fmt.Errorf("empty integer")
	}
	if _, ok := b.SetString(s, 10); !ok {
		return b, fmt.Errorf("invalid integer %q", s)
	}
	return b, nil
}

// Big returns a copy safe to hand to ABI encoders.
func (b BigInt) Big() *big.Int {
	return new(big.Int).Set(&b.Int)
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		b.SetInt64(0)
		return nil
	}

	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		// An empty string decodes to zero, matching the frontend's reader.
		if strings.TrimSpace(s) == "" {
			b.SetInt64(0)
			return nil
		}
	}

	v, err := ParseBigInt(s)
	if err != nil {
		return err
	}
	b.Set(&v.Int)
	return nil
}

var weiPerEther = decimal.New(1, 18)

// ParseEther converts a decimal ether amount ("0.01") into wei.
func ParseEther(s string) (BigInt, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return BigInt{}, fmt.Errorf("invalid ether amount %q", s)
	}
	wei := d.Mul(weiPerEther)
	if !wei.Equal(wei.Truncate(0)) {
		return BigInt{}, fmt.Errorf("ether amount %q has more than 18 decimals", s)
	}
	return BigFrom(wei.BigInt()), nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}
