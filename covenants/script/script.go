// Package script builds the three vault leaf shapes: a pure CTV covenant, a
// conditional hot/cold trigger, and a pure CSFS delegation leaf.
package script

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"

	"github.com/toole-brendan/ctvvault/chainparams"
)

// ErrKeyFormat is returned when an x-only public key is not exactly 32
// bytes.
var ErrKeyFormat = errors.New("script: x-only key must be 32 bytes")

// CTVLeaf builds leaf L1: a pure CTV covenant.
//
//	PUSH <32-byte template-hash>  OP_NOP4
func CTVLeaf(templateHash [32]byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddData(templateHash[:])
	b.AddOp(chainparams.OpCTV)
	return b.Script()
}

// TriggerLeaf builds leaf L2: the conditional hot/cold trigger.
//
//	OP_IF
//	  PUSH <csv_delay>  OP_CHECKSEQUENCEVERIFY  OP_DROP
//	  PUSH <hot_xonly>  OP_CHECKSIG
//	OP_ELSE
//	  PUSH <32-byte cold-template-hash>  OP_NOP4
//	OP_ENDIF
//
// csvDelay is pushed with a minimal CScriptNum encoding (single-byte OP_N
// for 1-16, a minimal push otherwise) via txscript's own integer builder —
// hand-rolling this encoding is exactly the kind of thing that produces the
// "Stack size must be exactly one after execution" class of bug the spec
// warns about.
func TriggerLeaf(csvDelay uint32, hotXOnly [32]byte, coldTemplateHash [32]byte) ([]byte, error) {
	if csvDelay == 0 || csvDelay > 0xFFFF {
		return nil, fmt.Errorf("script: csv_delay %d out of range [1, 0xFFFF]", csvDelay)
	}

	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_IF)
	b.AddInt64(int64(csvDelay))
	b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddData(hotXOnly[:])
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ELSE)
	b.AddData(coldTemplateHash[:])
	b.AddOp(chainparams.OpCTV)
	b.AddOp(txscript.OP_ENDIF)
	return b.Script()
}

// DelegationLeaf builds leaf L3: a pure CSFS delegation leaf. A single
// opcode — the witness alone supplies signature, message and key.
func DelegationLeaf() ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(chainparams.OpCSFS)
	return b.Script()
}

// ValidateXOnlyKey checks that a key is the right length. The script
// builders above take [32]byte arrays so a length mismatch can't reach
// them directly; this helper exists for callers validating keys they
// received as a byte slice (e.g. from a wire format) before converting.
func ValidateXOnlyKey(key []byte) error {
	if len(key) != 32 {
		return fmt.Errorf("%w: got %d bytes", ErrKeyFormat, len(key))
	}
	return nil
}
