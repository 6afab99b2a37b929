// Package treasury aggregates an M-of-N committee of treasurer public keys
// into the single x-only key a HybridCtvCsfs vault's delegation leaf is
// built against, via MuSig2 key aggregation. The resulting aggregate key is
// all this package produces — the interactive nonce exchange and partial
// signing that later turns the committee's individual signatures into one
// valid Schnorr signature over that key is a ceremony run off-core, the
// same way covenants/signer never holds a committee member's private key.
package treasury

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

var ErrNoParticipants = errors.New("treasury: at least one committee key is required")
var ErrThreshold = errors.New("treasury: threshold must be between 1 and the committee size")

// Committee is an M-of-N set of treasurer keys. Threshold is carried as
// metadata for the caller's off-core signing ceremony; the vault core
// itself only ever consumes the aggregate key, since the CSFS opcode
// verifies one signature against one key regardless of how many parties
// cooperated to produce it.
type Committee struct {
	Keys      []*btcec.PublicKey
	Threshold int
}

// NewCommittee validates that a committee has at least one key and a
// threshold that could plausibly be satisfied by it.
func NewCommittee(keys []*btcec.PublicKey, threshold int) (Committee, error) {
	if len(keys) == 0 {
		return Committee{}, ErrNoParticipants
	}
	if threshold < 1 || threshold > len(keys) {
		return Committee{}, ErrThreshold
	}
	return Committee{Keys: keys, Threshold: threshold}, nil
}

// AggregateXOnly computes the MuSig2 aggregate key for the committee and
// returns its x-only serialization — the exact 32 bytes embedded as
// treasurer_xonly in a vault's delegation witness.
func (c Committee) AggregateXOnly() ([32]byte, error) {
	agg, err := KeyAgg(c.Keys)
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], schnorr.SerializePubKey(agg))
	return out, nil
}

// KeyAgg implements MuSig2 key aggregation: every key is weighted by a
// coefficient derived from hashing the full key set before the weighted
// points are summed on the curve. The per-key coefficient is what prevents
// a rogue-key attack, where a dishonest participant picks their public key
// as a function of the others' to cancel them out of the aggregate.
func KeyAgg(pubKeys []*btcec.PublicKey) (*btcec.PublicKey, error) {
	if len(pubKeys) == 0 {
		return nil, ErrNoParticipants
	}
	if len(pubKeys) == 1 {
		return pubKeys[0], nil
	}

	coeffs, err := computeKeyCoefficients(pubKeys)
	if err != nil {
		return nil, err
	}

	var accumX, accumY *big.Int
	for i, pk := range pubKeys {
		px, py := btcec.S256().ScalarMult(pk.X(), pk.Y(), coeffs[i].Bytes())
		if accumX == nil {
			accumX, accumY = px, py
			continue
		}
		accumX, accumY = btcec.S256().Add(accumX, accumY, px, py)
	}

	var fx, fy btcec.FieldVal
	fx.SetByteSlice(accumX.Bytes())
	fy.SetByteSlice(accumY.Bytes())
	return btcec.NewPublicKey(&fx, &fy), nil
}

// computeKeyCoefficients computes MuSig2 key coefficients H(all_keys || pk_i)
// reduced modulo the curve order, one per input key. all_keys is the
// concatenation of the compressed keys in sorted order, so the coefficients
// do not depend on the order the caller lists the keys in.
func computeKeyCoefficients(pubKeys []*btcec.PublicKey) ([]*big.Int, error) {
	sorted := make([][]byte, len(pubKeys))
	for i, pk := range pubKeys {
		sorted[i] = pk.SerializeCompressed()
	}
	sort.Slice(sorted, func(a, b int) bool { return bytes.Compare(sorted[a], sorted[b]) < 0 })

	allKeysData := make([]byte, 0, len(pubKeys)*33)
	for _, s := range sorted {
		allKeysData = append(allKeysData, s...)
	}

	coeffs := make([]*big.Int, len(pubKeys))
	for i, pk := range pubKeys {
		h := sha256.New()
		h.Write(allKeysData)
		h.Write(pk.SerializeCompressed())
		hash := h.Sum(nil)

		coeffs[i] = new(big.Int).SetBytes(hash)
		coeffs[i].Mod(coeffs[i], btcec.S256().N)
	}
	return coeffs, nil
}
