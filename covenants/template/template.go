// Package template is the bottom-up three-phase planner: it produces the
// cold-clawback template first, the trigger template second (embedding the
// cold template's hash), and the funding address last (embedding the
// trigger template's hash). Each phase's result type is consumed only by
// the phase above it, so a caller attempting to compute the vault address
// before the trigger template, or the trigger template before the cold
// template, hits a compile error rather than a false cycle at runtime.
package template

import (
	"errors"
	"fmt"

	"github.com/toole-brendan/ctvvault/chainparams"
	"github.com/toole-brendan/ctvvault/covenants/script"
	"github.com/toole-brendan/ctvvault/covenants/taproot"
	"github.com/toole-brendan/ctvvault/covenants/vaulthash"
)

// DustLimit is the minimum standard output value in satoshis. Anything
// below this is non-relayable on mainnet-shaped policy and rejected at
// plan time rather than surfacing as a node-side mempool rejection later.
const DustLimit = 546

var ErrDust = errors.New("template: planned output value is below the dust limit")
var ErrFeeSchedule = errors.New("template: amount_sats must exceed trigger_fee plus the largest completion fee")
var ErrUnderflow = errors.New("template: fees exceed amount_sats")

// ValidateFeeSchedule enforces the VaultParameters invariant from the data
// model: amount_sats > trigger_fee + max(hot_fee, cold_fee, delegated_fee).
// Both the orchestrator's Create() and any caller-side fee estimator can
// reuse this without duplicating the rule. It does not check the dust limit;
// PlanColdTemplate and PlanTriggerTemplate reject outputs below DustLimit.
func ValidateFeeSchedule(amountSats, triggerFee, hotFee, coldFee, delegatedFee uint64) error {
	largest := hotFee
	if coldFee > largest {
		largest = coldFee
	}
	if delegatedFee > largest {
		largest = delegatedFee
	}
	if amountSats <= triggerFee+largest {
		return ErrFeeSchedule
	}
	return nil
}

// InputTemplate is a template input. PrevTxid is all-zeros when the
// template is only being hashed (CTV does not commit to prevouts); it is
// filled with the real outpoint at materialisation time.
type InputTemplate struct {
	PrevTxid [32]byte
	PrevVout uint32
	Sequence uint32
}

type OutputTemplate struct {
	Value        uint64
	ScriptPubKey []byte
}

// TxTemplate is produced by this planner, hashed by vaulthash, and later
// re-materialised with real previous-output identifiers filled in.
// Re-materialisation must reproduce the same hash preimage bit-for-bit, so
// TxTemplate only ever carries the fields that feed the BIP-119 digest plus
// the prevout identifiers that don't.
type TxTemplate struct {
	Version    int32
	LockTime   uint32
	Inputs     []InputTemplate
	Outputs    []OutputTemplate
	InputIndex uint32
}

// Hash computes the BIP-119 template digest for t.
func (t TxTemplate) Hash() ([32]byte, error) {
	scriptSigs := make([][]byte, len(t.Inputs))
	sequences := make([]uint32, len(t.Inputs))
	for i, in := range t.Inputs {
		scriptSigs[i] = []byte{}
		sequences[i] = in.Sequence
	}
	outputs := make([]vaulthash.OutputForHash, len(t.Outputs))
	for i, o := range t.Outputs {
		outputs[i] = vaulthash.OutputForHash{Value: o.Value, PkScript: o.ScriptPubKey}
	}
	return vaulthash.Compute(vaulthash.TemplateForHash{
		Version:    t.Version,
		LockTime:   t.LockTime,
		ScriptSigs: scriptSigs,
		Sequences:  sequences,
		Outputs:    outputs,
		InputIndex: t.InputIndex,
	})
}

// WithPrevOut returns a copy of t with the given input's prevout filled in,
// for re-materialisation at spend time. It does not change the hash.
func (t TxTemplate) WithPrevOut(inputIndex int, txid [32]byte, vout uint32) TxTemplate {
	out := t
	out.Inputs = append([]InputTemplate(nil), t.Inputs...)
	out.Inputs[inputIndex].PrevTxid = txid
	out.Inputs[inputIndex].PrevVout = vout
	return out
}

// ColdTemplateResult is Phase A's output: the template paying the
// cold-clawback amount directly to the cold key's P2TR, plus its hash.
// Only ColdTemplateResult feeds PlanTriggerTemplate — there is no path from
// a trigger or funding result back to this phase.
type ColdTemplateResult struct {
	Template TxTemplate
	Hash     [32]byte
}

// PlanColdTemplate builds Phase A: a single input (sequence 0xFFFFFFFE,
// locktime-only) spending the (not-yet-existent) trigger output to a single
// output paying the cold key directly. The cold destination is a plain
// P2TR key-path output, not a covenant — whoever holds coldXOnly's private
// key can spend it unconditionally once broadcast.
func PlanColdTemplate(amountSats, triggerFee, coldFee uint64, coldXOnly [32]byte) (ColdTemplateResult, error) {
	if err := script.ValidateXOnlyKey(coldXOnly[:]); err != nil {
		return ColdTemplateResult{}, err
	}
	if triggerFee+coldFee > amountSats {
		return ColdTemplateResult{}, ErrUnderflow
	}
	value := amountSats - triggerFee - coldFee
	if value < DustLimit {
		return ColdTemplateResult{}, fmt.Errorf("%w: cold output %d sats", ErrDust, value)
	}

	pkScript, err := taproot.OutputScript(coldXOnly)
	if err != nil {
		return ColdTemplateResult{}, fmt.Errorf("template: cold output script: %w", err)
	}

	tmpl := TxTemplate{
		Version:  2,
		LockTime: 0,
		Inputs: []InputTemplate{{
			PrevTxid: [32]byte{},
			PrevVout: 0,
			Sequence: 0xFFFFFFFE,
		}},
		Outputs: []OutputTemplate{{
			Value:        value,
			ScriptPubKey: pkScript,
		}},
		InputIndex: 0,
	}

	hash, err := tmpl.Hash()
	if err != nil {
		return ColdTemplateResult{}, fmt.Errorf("template: cold template hash: %w", err)
	}
	return ColdTemplateResult{Template: tmpl, Hash: hash}, nil
}

// TriggerTemplateResult is Phase B's output: the template paying the
// trigger amount to the hot/cold conditional address, the L2 leaf script
// embedding the cold template's hash, and the control block a future spend
// of the trigger output (hot or cold) authenticates against. Only
// TriggerTemplateResult feeds PlanFundingAddress.
type TriggerTemplateResult struct {
	Template     TxTemplate
	Hash         [32]byte
	LeafScript   []byte
	OutputKey    [32]byte
	ControlBlock []byte
}

// PlanTriggerTemplate builds Phase B from a ColdTemplateResult: it can only
// be called after Phase A has produced a hash to embed, which is what makes
// the three-phase ordering structural rather than merely documented.
func PlanTriggerTemplate(amountSats, triggerFee uint64, csvDelay uint32, hotXOnly [32]byte, cold ColdTemplateResult) (TriggerTemplateResult, error) {
	if err := script.ValidateXOnlyKey(hotXOnly[:]); err != nil {
		return TriggerTemplateResult{}, err
	}
	if triggerFee > amountSats {
		return TriggerTemplateResult{}, ErrUnderflow
	}
	value := amountSats - triggerFee
	if value < DustLimit {
		return TriggerTemplateResult{}, fmt.Errorf("%w: trigger output %d sats", ErrDust, value)
	}

	leaf, err := script.TriggerLeaf(csvDelay, hotXOnly, cold.Hash)
	if err != nil {
		return TriggerTemplateResult{}, fmt.Errorf("template: trigger leaf: %w", err)
	}

	asm, err := taproot.BuildSingleLeaf(leaf)
	if err != nil {
		return TriggerTemplateResult{}, fmt.Errorf("template: trigger taproot assembly: %w", err)
	}

	pkScript, err := taproot.OutputScript(asm.OutputKey)
	if err != nil {
		return TriggerTemplateResult{}, fmt.Errorf("template: trigger output script: %w", err)
	}

	tmpl := TxTemplate{
		Version:  2,
		LockTime: 0,
		Inputs: []InputTemplate{{
			PrevTxid: [32]byte{},
			PrevVout: 0,
			Sequence: 0xFFFFFFFD,
		}},
		Outputs: []OutputTemplate{{
			Value:        value,
			ScriptPubKey: pkScript,
		}},
		InputIndex: 0,
	}

	hash, err := tmpl.Hash()
	if err != nil {
		return TriggerTemplateResult{}, fmt.Errorf("template: trigger template hash: %w", err)
	}

	return TriggerTemplateResult{
		Template:     tmpl,
		Hash:         hash,
		LeafScript:   leaf,
		OutputKey:    asm.OutputKey,
		ControlBlock: asm.ControlBlocks[0],
	}, nil
}

// FundingResult is Phase C's output: the vault's own funding address and
// the leaf/control-block pair(s) needed to spend it. SimpleCtv vaults carry
// only the L1 (vault→trigger) leaf; HybridCtvCsfs vaults also carry an L3
// (vault→delegated) leaf at the same depth, so the single funding UTXO can
// be spent down either path.
type FundingResult struct {
	Address           string
	OutputKey         [32]byte
	OutputScript      []byte
	L1LeafScript      []byte
	L1ControlBlock    []byte
	L3LeafScript      []byte
	L3ControlBlock    []byte
	HasDelegationLeaf bool
}

// PlanFundingAddress builds Phase C from a TriggerTemplateResult: the
// single structural caller of this function is the one that already holds
// a trigger hash to embed, closing the bottom-up chain cold → trigger →
// funding with no way to invert it at the type level.
//
// The funding address is always a SimpleCtv tree (L1 only); the
// HybridCtvCsfs tree (L1 + L3 at equal depth) is built by
// PlanHybridFundingAddress.
func PlanFundingAddress(net chainparams.Network, trigger TriggerTemplateResult) (FundingResult, error) {
	l1, err := script.CTVLeaf(trigger.Hash)
	if err != nil {
		return FundingResult{}, fmt.Errorf("template: funding L1 leaf: %w", err)
	}

	asm, err := taproot.BuildSingleLeaf(l1)
	if err != nil {
		return FundingResult{}, fmt.Errorf("template: funding taproot assembly: %w", err)
	}

	addr, err := chainparams.EncodeFundingAddress(net, asm.OutputKey)
	if err != nil {
		return FundingResult{}, fmt.Errorf("template: funding address encode: %w", err)
	}

	outputScript, err := taproot.OutputScript(asm.OutputKey)
	if err != nil {
		return FundingResult{}, fmt.Errorf("template: funding output script: %w", err)
	}

	return FundingResult{
		Address:        addr,
		OutputKey:      asm.OutputKey,
		OutputScript:   outputScript,
		L1LeafScript:   l1,
		L1ControlBlock: asm.ControlBlocks[0],
	}, nil
}

// PlanHybridFundingAddress builds Phase C for the HybridCtvCsfs flavour: a
// two-leaf tree combining the L1 trigger-commitment leaf with the L3 pure
// CSFS delegation leaf, at equal depth per the Taproot assembler's
// requirement.
func PlanHybridFundingAddress(net chainparams.Network, trigger TriggerTemplateResult) (FundingResult, error) {
	l1, err := script.CTVLeaf(trigger.Hash)
	if err != nil {
		return FundingResult{}, fmt.Errorf("template: funding L1 leaf: %w", err)
	}
	l3, err := script.DelegationLeaf()
	if err != nil {
		return FundingResult{}, fmt.Errorf("template: funding L3 leaf: %w", err)
	}

	asm, err := taproot.BuildHybrid(l1, l3)
	if err != nil {
		return FundingResult{}, fmt.Errorf("template: hybrid funding taproot assembly: %w", err)
	}

	addr, err := chainparams.EncodeFundingAddress(net, asm.OutputKey)
	if err != nil {
		return FundingResult{}, fmt.Errorf("template: funding address encode: %w", err)
	}

	outputScript, err := taproot.OutputScript(asm.OutputKey)
	if err != nil {
		return FundingResult{}, fmt.Errorf("template: funding output script: %w", err)
	}

	// BuildHybrid orders control blocks by caller-supplied index, matching
	// the (l1, l3) order passed above.
	return FundingResult{
		Address:           addr,
		OutputKey:         asm.OutputKey,
		OutputScript:      outputScript,
		L1LeafScript:      l1,
		L1ControlBlock:    asm.ControlBlocks[0],
		L3LeafScript:      l3,
		L3ControlBlock:    asm.ControlBlocks[1],
		HasDelegationLeaf: true,
	}, nil
}

// FindVoutByScript returns the index of the first output in outputs whose
// scriptPubKey matches target byte-for-byte. Node software does not
// guarantee output order, so spenders must never assume the vault output
// sits at a fixed index.
func FindVoutByScript(outputs []OutputTemplate, target []byte) (uint32, error) {
	for i, o := range outputs {
		if len(o.ScriptPubKey) == len(target) && string(o.ScriptPubKey) == string(target) {
			return uint32(i), nil
		}
	}
	return 0, ErrVoutNotFound
}

var ErrVoutNotFound = errors.New("template: no output matches the expected scriptPubKey")
