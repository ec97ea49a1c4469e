package credential

import (
	"crypto/rand"
	"encoding/base32"
	"math/big"
	"strings"
)

// PasswordAlphabet omits characters that are easy to misread (0/o, 1/l/i).
const PasswordAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// RecoveryKeyBytes is the entropy of a recovery key: 160 bits.
const RecoveryKeyBytes = 20

// RandomPassword draws length characters from PasswordAlphabet.
func RandomPassword(length int) (string, error) {
	if length <= 0 {
		length = 8
	}
	max := big.NewInt(int64(len(PasswordAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(PasswordAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NewRecoveryKey returns a base32 key grouped as XXXX-XXXX-....
func NewRecoveryKey() (string, error) {
	raw := make([]byte, RecoveryKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)

	groups := make([]string, 0, len(encoded)/4)
	for i := 0; i < len(encoded); i += 4 {
		end := i + 4
		if end > len(encoded) {
			end = len(encoded)
		}
		groups = append(groups, encoded[i:end])
	}
	return strings.Join(groups, "-"), nil
}

// NormalizeRecoveryKey upper-cases a key and strips separators so a key
// typed by hand still verifies.
func NormalizeRecoveryKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		switch r {
		case '-', ' ', '\t', '\n':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
