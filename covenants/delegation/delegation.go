// Package delegation builds and verifies the emergency-delegation message a
// treasurer signs to authorise a CSFS spend of a HybridCtvCsfs vault. The
// message format is exact — colons, commas, and equals signs all matter,
// because the treasurer signs the SHA-256 digest of this literal ASCII
// string, not a structured encoding of its fields.
package delegation

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

var ErrExpired = errors.New("delegation: message has passed its expiry height")

// Message is the parsed form of an
// EMERGENCY_DELEGATION:AMOUNT=...:RECIPIENT=...:EXPIRY=...:VAULT=... string.
type Message struct {
	AmountSats   uint64
	Recipient    string
	ExpiryHeight uint32
	VaultAddress string
}

// String renders the exact wire format the treasurer signs.
func (m Message) String() string {
	return fmt.Sprintf(
		"EMERGENCY_DELEGATION:AMOUNT=%d:RECIPIENT=%s:EXPIRY=%d:VAULT=%s",
		m.AmountSats, m.Recipient, m.ExpiryHeight, m.VaultAddress,
	)
}

// Digest returns the 32-byte SHA-256 digest of the message string — the
// exact value the treasurer signs and the CSFS opcode verifies against.
// There is no second hashing step anywhere in this path.
func (m Message) Digest() [32]byte {
	return sha256.Sum256([]byte(m.String()))
}

// CheckExpiry enforces EXPIRY off-chain, since the CSFS opcode only
// verifies a signature over the message digest and never parses the
// message itself. A delegation is expired once the chain tip reaches or
// passes the committed expiry height.
func (m Message) CheckExpiry(tipHeight uint32) error {
	if tipHeight >= m.ExpiryHeight {
		return fmt.Errorf("%w: tip %d >= expiry %d", ErrExpired, tipHeight, m.ExpiryHeight)
	}
	return nil
}
