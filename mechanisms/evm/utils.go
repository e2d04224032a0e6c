package evm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// HexToBytes decodes a 0x-prefixed (or bare) hex string into bytes. An
// empty string decodes to an empty (not nil) slice.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return []byte{}, nil
	}
	return hex.DecodeString(s)
}

// BytesToHex encodes bytes as a 0x-prefixed hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// SameAddress compares two hex addresses case-insensitively, the
// comparison every address-equality check in this package uses.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// CreatePermit2Nonce generates a random nonce suitable for a Permit2
// authorization. Uniqueness is enforced on-chain, not by this function;
// 48 bits of randomness makes collision practically impossible without
// needing a cryptographically strong source.
func CreatePermit2Nonce() (string, error) {
	max := new(big.Int).Lsh(big.NewInt(1), 48)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return n.String(), nil
}

// ComputeDeadlineAndValidAfter returns the deadline and validAfter
// timestamps (unix seconds, as decimal strings) for a new authorization:
// deadline is now + maxTimeoutSeconds, validAfter is now minus the skew
// buffer.
func ComputeDeadlineAndValidAfter(maxTimeoutSeconds int) (deadline, validAfter string) {
	now := time.Now().Unix()
	d := now + int64(maxTimeoutSeconds)
	v := now - int64(ValidAfterBufferSeconds)
	return strconv.FormatInt(d, 10), strconv.FormatInt(v, 10)
}

// ParseUsdcAmount converts a dollar-denominated string (optionally
// prefixed with "$" and containing thousands separators) into a decimal
// string of smallest token units at the given decimals. Negative and
// non-numeric input is rejected.
func ParseUsdcAmount(amount string, decimals int) (string, error) {
	cleaned := strings.TrimSpace(amount)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if math.IsNaN(value) || value < 0 {
		return "", fmt.Errorf("invalid amount %q: must be a non-negative number", amount)
	}

	smallest := int64(math.Floor(value * math.Pow10(decimals)))
	return strconv.FormatInt(smallest, 10), nil
}

// FormatUsdcAmount converts a decimal string of smallest token units back
// into a dollar-denominated string, rounded to the nearest cent for
// display.
func FormatUsdcAmount(amount string, decimals int) (string, error) {
	smallest, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return "", fmt.Errorf("invalid smallest-unit amount: %s", amount)
	}
	value := new(big.Float).Quo(
		new(big.Float).SetInt(smallest),
		new(big.Float).SetFloat64(math.Pow10(decimals)),
	)
	f, _ := value.Float64()
	return fmt.Sprintf("%.2f", f), nil
}
