// Package signer produces the two kinds of BIP-340 Schnorr signatures the
// core needs: a raw signature over a 32-byte message (the CSFS delegation
// path) and a BIP-341 script-path signature over a computed tapscript
// sighash (the hot withdrawal path). Neither operation retries or caches a
// nonce; btcec's schnorr.Sign derives a deterministic RFC-6979 nonce from the
// key and the message on every call.
package signer

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var ErrInputIndex = errors.New("signer: input index out of range")

// SignSchnorrMessage signs msg32 as-is: no tagging, no prehashing. The
// CSFS opcode verifies a signature against exactly the bytes presented on
// the witness stack, so a signer that hashes its input again before
// signing produces a signature that will never verify on-chain.
func SignSchnorrMessage(privKey *btcec.PrivateKey, msg32 [32]byte) ([64]byte, error) {
	sig, err := schnorr.Sign(privKey, msg32[:])
	if err != nil {
		return [64]byte{}, fmt.Errorf("signer: schnorr sign: %w", err)
	}
	var out [64]byte
	copy(out[:], sig.Serialize())
	return out, nil
}

// VerifySchnorrMessage verifies a signature produced by SignSchnorrMessage
// (or any compliant BIP-340 signer) against an x-only public key.
func VerifySchnorrMessage(pubKey *btcec.PublicKey, msg32 [32]byte, sig64 [64]byte) bool {
	sig, err := schnorr.ParseSignature(sig64[:])
	if err != nil {
		return false
	}
	return sig.Verify(msg32[:], pubKey)
}

// VerifySchnorrMessageXOnly is VerifySchnorrMessage taking the public key
// in its raw 32-byte x-only form, the way a delegation key is carried
// around the vault core (lifted to an even-Y point per BIP-340).
func VerifySchnorrMessageXOnly(xOnly [32]byte, msg32 [32]byte, sig64 [64]byte) bool {
	pubKey, err := schnorr.ParsePubKey(xOnly[:])
	if err != nil {
		return false
	}
	return VerifySchnorrMessage(pubKey, msg32, sig64)
}

// SignTaprootScriptPath signs the BIP-341 script-path sighash for a single
// input transaction spending via leafScript, always under SIGHASH_DEFAULT
// (ext_flag=1, key_version=0, no annex, no sighash byte appended — the
// resulting signature is exactly 64 bytes). Every template this core plans
// has a single input, so the previous output is supplied directly rather
// than as a per-input slice.
func SignTaprootScriptPath(privKey *btcec.PrivateKey, tx *wire.MsgTx, inputIndex int, prevOutScript []byte, prevOutValue int64, leafScript []byte) ([64]byte, error) {
	if inputIndex < 0 || inputIndex >= len(tx.TxIn) {
		return [64]byte{}, fmt.Errorf("%w: %d", ErrInputIndex, inputIndex)
	}

	fetcher := txscript.NewCannedPrevOutputFetcher(prevOutScript, prevOutValue)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	leaf := txscript.NewBaseTapLeaf(leafScript)

	sighash, err := txscript.CalcTapscriptSignaturehash(
		sigHashes, txscript.SigHashDefault, tx, inputIndex, fetcher, leaf,
	)
	if err != nil {
		return [64]byte{}, fmt.Errorf("signer: tapscript sighash: %w", err)
	}

	sig, err := schnorr.Sign(privKey, sighash)
	if err != nil {
		return [64]byte{}, fmt.Errorf("signer: schnorr sign: %w", err)
	}

	var out [64]byte
	copy(out[:], sig.Serialize())
	return out, nil
}
