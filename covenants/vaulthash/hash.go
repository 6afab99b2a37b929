// Package vaulthash computes the BIP-119 OP_CHECKTEMPLATEVERIFY template
// digest that a vault's covenant leaves commit to. The digest must be
// byte-exact between the hash a leaf pushes and the hash computed over the
// transaction that later spends it — this package is the single place that
// serialization happens so the two sides can never drift apart.
package vaulthash

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/wire"
)

// ErrIntegerOverflow is returned when an output value cannot be represented
// as a 64-bit signed satoshi amount (wire.TxOut.Value is int64).
var ErrIntegerOverflow = errors.New("vaulthash: output value overflows 64 bits")

// ErrInvalidScript is returned when an output's scriptPubKey is empty.
var ErrInvalidScript = errors.New("vaulthash: output scriptPubKey is empty")

// OutputForHash is one output of the transaction being hashed.
type OutputForHash struct {
	Value    uint64
	PkScript []byte
}

// TemplateForHash is the minimal set of fields BIP-119 commits to. ScriptSigs
// is carried explicitly (rather than assumed empty) so the hash function
// stays correct even though every input this core builds is segwit-only and
// therefore always supplies an empty scriptSig.
type TemplateForHash struct {
	Version    int32
	LockTime   uint32
	ScriptSigs [][]byte
	Sequences  []uint32
	Outputs    []OutputForHash
	InputIndex uint32
}

// Compute returns the 32-byte BIP-119 template digest for t.
//
// The digest is the SHA-256 of, in order: version, locktime, scriptsig_hash,
// num_inputs, sequences_hash, num_outputs, outputs_hash, input_index. The
// scriptsig_hash component is included unconditionally, even though it is
// always sha256("") for the segwit-only inputs this core produces — many
// reference implementations skip it in that case, but doing so would make
// our digest diverge from Bitcoin Core's CTV verification, which always
// hashes it.
func Compute(t TemplateForHash) ([32]byte, error) {
	if len(t.ScriptSigs) != len(t.Sequences) {
		return [32]byte{}, fmt.Errorf("vaulthash: %d scriptSigs for %d sequences", len(t.ScriptSigs), len(t.Sequences))
	}

	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, t.Version); err != nil {
		return [32]byte{}, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, t.LockTime); err != nil {
		return [32]byte{}, err
	}

	scriptSigHash, err := hashScriptSigs(t.ScriptSigs)
	if err != nil {
		return [32]byte{}, err
	}
	buf.Write(scriptSigHash[:])

	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(t.Sequences))); err != nil {
		return [32]byte{}, err
	}

	seqHash := hashSequences(t.Sequences)
	buf.Write(seqHash[:])

	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(t.Outputs))); err != nil {
		return [32]byte{}, err
	}

	outHash, err := hashOutputs(t.Outputs)
	if err != nil {
		return [32]byte{}, err
	}
	buf.Write(outHash[:])

	if err := binary.Write(&buf, binary.LittleEndian, t.InputIndex); err != nil {
		return [32]byte{}, err
	}

	return sha256.Sum256(buf.Bytes()), nil
}

func hashScriptSigs(scriptSigs [][]byte) ([32]byte, error) {
	var buf bytes.Buffer
	for _, s := range scriptSigs {
		buf.Write(s)
	}
	return sha256.Sum256(buf.Bytes()), nil
}

func hashSequences(sequences []uint32) [32]byte {
	buf := make([]byte, 4*len(sequences))
	for i, seq := range sequences {
		binary.LittleEndian.PutUint32(buf[i*4:], seq)
	}
	return sha256.Sum256(buf)
}

func hashOutputs(outputs []OutputForHash) ([32]byte, error) {
	var buf bytes.Buffer
	for _, out := range outputs {
		if out.Value > math.MaxInt64 {
			return [32]byte{}, ErrIntegerOverflow
		}
		if len(out.PkScript) == 0 {
			return [32]byte{}, ErrInvalidScript
		}

		if err := binary.Write(&buf, binary.LittleEndian, out.Value); err != nil {
			return [32]byte{}, err
		}
		if err := wire.WriteVarBytes(&buf, 0, out.PkScript); err != nil {
			return [32]byte{}, fmt.Errorf("vaulthash: write scriptPubKey: %w", err)
		}
	}
	return sha256.Sum256(buf.Bytes()), nil
}
