package signer

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedPrivKey(fill byte) *btcec.PrivateKey {
	b := make([]byte, 32)
	for i := range b {
		b[i] = fill
	}
	// Avoid the all-zero / overflow edge cases that PrivKeyFromBytes would
	// otherwise wrap into an invalid scalar.
	b[31] ^= 0x01
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv
}

func TestSignSchnorrMessageRoundTrips(t *testing.T) {
	priv := fixedPrivKey(0x11)
	var msg [32]byte
	for i := range msg {
		msg[i] = byte(i)
	}

	sig, err := SignSchnorrMessage(priv, msg)
	require.NoError(t, err)
	assert.True(t, VerifySchnorrMessage(priv.PubKey(), msg, sig))
}

// TestSignSchnorrMessageDoesNotDoubleHash pins the spec's explicit warning:
// signing sha256(msg) where msg is already the 32-byte digest produces a
// signature that will not verify against the original digest.
func TestSignSchnorrMessageDoesNotDoubleHash(t *testing.T) {
	priv := fixedPrivKey(0x22)
	var digest [32]byte
	for i := range digest {
		digest[i] = byte(0xAA)
	}

	sig, err := SignSchnorrMessage(priv, digest)
	require.NoError(t, err)

	assert.True(t, VerifySchnorrMessage(priv.PubKey(), digest, sig))

	var wrong [32]byte
	copy(wrong[:], digest[:])
	wrong[0] ^= 0xFF
	assert.False(t, VerifySchnorrMessage(priv.PubKey(), wrong, sig))
}

func TestSignSchnorrMessageRejectsTamperedSignature(t *testing.T) {
	priv := fixedPrivKey(0x33)
	var msg [32]byte
	msg[0] = 0x01

	sig, err := SignSchnorrMessage(priv, msg)
	require.NoError(t, err)

	sig[0] ^= 0xFF
	assert.False(t, VerifySchnorrMessage(priv.PubKey(), msg, sig))
}

func buildSingleInputTx(prevOutScript []byte, prevOutValue int64, outScript []byte, outValue int64, sequence uint32) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{},
		Sequence:         sequence,
	})
	tx.AddTxOut(wire.NewTxOut(outValue, outScript))
	return tx
}

func TestSignTaprootScriptPathProducesVerifiableSignature(t *testing.T) {
	priv := fixedPrivKey(0x44)

	leafScript, err := txscript.NewScriptBuilder().
		AddData(priv.PubKey().SerializeCompressed()[1:]).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)

	prevScript, err := txscript.NewScriptBuilder().AddOp(txscript.OP_1).AddData(make([]byte, 32)).Script()
	require.NoError(t, err)

	tx := buildSingleInputTx(prevScript, 4000, prevScript, 3000, 0xFFFFFFFD)

	sig, err := SignTaprootScriptPath(priv, tx, 0, prevScript, 4000, leafScript)
	require.NoError(t, err)

	// Recompute the sighash independently the same way the production code
	// does and confirm the signature verifies against it — a regression
	// here would mean the two computations have drifted apart.
	fetcher := txscript.NewCannedPrevOutputFetcher(prevScript, 4000)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	leaf := txscript.NewBaseTapLeaf(leafScript)
	wantSighash, err := txscript.CalcTapscriptSignaturehash(sigHashes, txscript.SigHashDefault, tx, 0, fetcher, leaf)
	require.NoError(t, err)

	var msg32 [32]byte
	copy(msg32[:], wantSighash)
	assert.True(t, VerifySchnorrMessage(priv.PubKey(), msg32, sig))
}

func TestSignTaprootScriptPathRejectsOutOfRangeIndex(t *testing.T) {
	priv := fixedPrivKey(0x55)
	tx := buildSingleInputTx(nil, 0, nil, 0, 0)

	_, err := SignTaprootScriptPath(priv, tx, 5, []byte{0x51}, 1000, []byte{0xcc})
	assert.ErrorIs(t, err, ErrInputIndex)
}
