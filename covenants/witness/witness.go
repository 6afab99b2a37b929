// Package witness assembles the exact witness stack for each of the four
// spending paths this core knows about. Every stack is listed bottom-to-top
// (first element is pushed first) to match the order Bitcoin Core reports
// in "Stack size must be exactly one after execution" failures, which this
// core treats as almost always meaning a missing branch selector or a
// stray byte in the csv_delay encoding.
package witness

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

var ErrStackSize = errors.New("witness: malformed witness stack")

// branchTrue and branchFalse are the canonical one-byte selectors for the
// trigger leaf's OP_IF: a non-empty 0x01 push is truthy, a zero-length
// push (OP_0 as a witness item) is falsy. Bitcoin Core's script interpreter
// accepts only minimally-encoded booleans on a witness stack, so any other
// truthy encoding (e.g. 0x0100) is rejected as non-clean.
var branchTrue = []byte{0x01}
var branchFalse = []byte{}

func validateNonEmpty(name string, b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("%w: %s must not be empty", ErrStackSize, name)
	}
	return nil
}

// SpendVaultToTrigger builds the L1 witness: [script, control_block]. The
// pure CTV leaf needs no signature — OP_CHECKTEMPLATEVERIFY checks the
// spending transaction itself against the template hash already embedded
// in the leaf script.
func SpendVaultToTrigger(leafScript, controlBlock []byte) (wire.TxWitness, error) {
	if err := validateNonEmpty("leaf script", leafScript); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("control block", controlBlock); err != nil {
		return nil, err
	}
	return wire.TxWitness{leafScript, controlBlock}, nil
}

// SpendTriggerToHot builds the L2 IF-branch witness: [sig, 0x01, script,
// control_block]. sig64 must be exactly 64 bytes — SIGHASH_DEFAULT never
// appends an explicit sighash byte, so a 65-byte signature here indicates
// the signer used an explicit sighash type by mistake.
func SpendTriggerToHot(sig64 [64]byte, leafScript, controlBlock []byte) (wire.TxWitness, error) {
	if err := validateNonEmpty("leaf script", leafScript); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("control block", controlBlock); err != nil {
		return nil, err
	}
	return wire.TxWitness{
		append([]byte(nil), sig64[:]...),
		branchTrue,
		leafScript,
		controlBlock,
	}, nil
}

// SpendTriggerToCold builds the L2 ELSE-branch witness: [empty push,
// script, control_block]. The clawback path needs no signature at all; the
// CTV leaf in the ELSE branch authenticates the spend structurally.
func SpendTriggerToCold(leafScript, controlBlock []byte) (wire.TxWitness, error) {
	if err := validateNonEmpty("leaf script", leafScript); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("control block", controlBlock); err != nil {
		return nil, err
	}
	return wire.TxWitness{
		branchFalse,
		leafScript,
		controlBlock,
	}, nil
}

// SpendVaultToDelegated builds the L3 witness: [sig, msg_hash, pubkey,
// script, control_block]. msgHash is the raw 32-byte digest the treasurer
// signed — not re-hashed here, not re-hashed by the CSFS opcode either.
func SpendVaultToDelegated(sig64 [64]byte, msgHash [32]byte, treasurerXOnly [32]byte, leafScript, controlBlock []byte) (wire.TxWitness, error) {
	if err := validateNonEmpty("leaf script", leafScript); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("control block", controlBlock); err != nil {
		return nil, err
	}
	return wire.TxWitness{
		append([]byte(nil), sig64[:]...),
		append([]byte(nil), msgHash[:]...),
		append([]byte(nil), treasurerXOnly[:]...),
		leafScript,
		controlBlock,
	}, nil
}
