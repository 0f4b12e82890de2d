package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NewOTP returns a zero-padded numeric one-time code with the given number of digits.
func NewOTP(digits int) (string, error) {
	if digits <= 0 || digits > 18 {
		return "", fmt.Errorf("otp digits out of range: %d", digits)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
