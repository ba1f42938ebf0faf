package idgen

import (
	"errors"
	"fmt"
	"math/big"
)

const base62Chars = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var ErrInvalidEncoding = errors.New("invalid base62 encoding")

var (
	base62Index [256]int
	bigBase     = big.NewInt(62)
)

func init() {
	for i := range base62Index {
		base62Index[i] = -1
	}
	for i := 0; i < len(base62Chars); i++ {
		base62Index[base62Chars[i]] = i
	}
}

// Encode renders a non-negative integer in base62. Negative or nil input
// encodes as "0".
func Encode(num *big.Int) string {
	if num == nil || num.Sign() <= 0 {
		return string(base62Chars[0])
	}

	n := new(big.Int).Set(num)
	rem := new(big.Int)
	res := make([]byte, 0, 12)
	for n.Sign() > 0 {
		n.QuoRem(n, bigBase, rem)
		res = append(res, base62Chars[rem.Int64()])
	}

	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}

	return string(res)
}

func EncodeInt64(num int64) string {
	return Encode(big.NewInt(num))
}

// Decode is the exact inverse of Encode.
func Decode(str string) (*big.Int, error) {
	if str == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidEncoding)
	}

	num := new(big.Int)
	digit := new(big.Int)
	for i := 0; i < len(str); i++ {
		val := base62Index[str[i]]
		if val == -1 {
			return nil, fmt.Errorf("%w: invalid character %q at %d", ErrInvalidEncoding, str[i], i)
		}
		num.Mul(num, bigBase)
		num.Add(num, digit.SetInt64(int64(val)))
	}
	return num, nil
}

// IsValid reports whether str is non-empty and every byte is in the alphabet.
func IsValid(str string) bool {
	if str == "" {
		return false
	}
	for i := 0; i < len(str); i++ {
		if base62Index[str[i]] == -1 {
			return false
		}
	}
	return true
}
