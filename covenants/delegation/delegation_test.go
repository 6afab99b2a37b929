package delegation

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageStringExactFormat(t *testing.T) {
	m := Message{
		AmountSats:   2000,
		Recipient:    "tb1qrecipient000",
		ExpiryHeight: 2255281,
		VaultAddress: "tb1pvault000000",
	}

	want := "EMERGENCY_DELEGATION:AMOUNT=2000:RECIPIENT=tb1qrecipient000:EXPIRY=2255281:VAULT=tb1pvault000000"
	assert.Equal(t, want, m.String())
}

func TestMessageDigestMatchesManualHash(t *testing.T) {
	m := Message{
		AmountSats:   2000,
		Recipient:    "tb1qrecipient000",
		ExpiryHeight: 2255281,
		VaultAddress: "tb1pvault000000",
	}

	want := sha256.Sum256([]byte(m.String()))
	assert.Equal(t, want, m.Digest())
}

func TestMessageDigestChangesWithAnyField(t *testing.T) {
	base := Message{AmountSats: 2000, Recipient: "r", ExpiryHeight: 100, VaultAddress: "v"}
	changed := base
	changed.AmountSats = 2001

	assert.NotEqual(t, base.Digest(), changed.Digest())
}

func TestCheckExpiryRejectsAtBoundary(t *testing.T) {
	m := Message{ExpiryHeight: 100}
	assert.ErrorIs(t, m.CheckExpiry(100), ErrExpired)
	assert.ErrorIs(t, m.CheckExpiry(101), ErrExpired)
	assert.NoError(t, m.CheckExpiry(99))
}
