// Package credential hashes and verifies user passwords with bcrypt and
// enforces the password policy.
package credential

import (
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the bcrypt input limit. Longer inputs are truncated
// identically at hash and verify time.
const MaxPasswordBytes = 72

// Hasher produces and checks bcrypt password hashes.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewHasher creates a Hasher with the given bcrypt cost. Out of range costs
// fall back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash checks the password against the policy and returns its bcrypt hash.
func (h *Hasher) Hash(password string) (string, error) {
	if err := ValidatePolicy(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(Truncate72(password)), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. A malformed hash yields
// false, never an error.
func (h *Hasher) Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(Truncate72(password))) == nil
}

// DummyVerify spends roughly the same time as a real Verify. Callers use it
// when the account does not exist so response timing does not reveal that.
func (h *Hasher) DummyVerify(password string) {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(Truncate72(password)))
}

// Truncate72 cuts s to at most 72 bytes without splitting a UTF-8 sequence.
func Truncate72(s string) string {
	if len(s) <= MaxPasswordBytes {
		return s
	}
	cut := MaxPasswordBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
