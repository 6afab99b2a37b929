// Package vault implements the covenant vault's state machine: create →
// fund → trigger → {hot | cold | delegated}. It owns its handle
// exclusively and invokes the template, script, taproot, witness, and
// signer packages to do the actual cryptographic work; the only I/O it
// performs is through a chainadapter.ChainAdapter.
package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/toole-brendan/ctvvault/chainadapter"
	"github.com/toole-brendan/ctvvault/chainparams"
	"github.com/toole-brendan/ctvvault/covenants/delegation"
	"github.com/toole-brendan/ctvvault/covenants/script"
	"github.com/toole-brendan/ctvvault/covenants/signer"
	"github.com/toole-brendan/ctvvault/covenants/taproot"
	"github.com/toole-brendan/ctvvault/covenants/template"
	"github.com/toole-brendan/ctvvault/covenants/witness"
)

// Flavour selects the vault's script-tree shape.
type Flavour uint8

const (
	SimpleCtv Flavour = iota
	HybridCtvCsfs
)

func (f Flavour) String() string {
	if f == HybridCtvCsfs {
		return "HybridCtvCsfs"
	}
	return "SimpleCtv"
}

// FeeSchedule is the caller-supplied constant fee, in satoshis, for each
// completion path. Fee-rate estimation is explicitly out of scope; callers
// compute these themselves.
type FeeSchedule struct {
	TriggerFee   uint64
	HotFee       uint64
	ColdFee      uint64
	DelegatedFee uint64
}

// Parameters is the immutable configuration a vault is created from.
type Parameters struct {
	AmountSats     uint64
	CSVDelay       uint32
	HotXOnly       [32]byte
	ColdXOnly      [32]byte
	TreasurerXOnly [32]byte // only consulted when Flavour == HybridCtvCsfs
	Network        chainparams.Network
	Fees           FeeSchedule
	Flavour        Flavour
}

// Validate checks the VaultParameters invariants: the fee schedule leaves
// room for every completion path, csv_delay fits a BIP-68 relative
// locktime, and every configured key is a well-formed x-only point.
func (p Parameters) Validate() error {
	if err := script.ValidateXOnlyKey(p.HotXOnly[:]); err != nil {
		return fmt.Errorf("vault: hot key: %w", err)
	}
	if err := script.ValidateXOnlyKey(p.ColdXOnly[:]); err != nil {
		return fmt.Errorf("vault: cold key: %w", err)
	}
	if _, err := schnorr.ParsePubKey(p.HotXOnly[:]); err != nil {
		return fmt.Errorf("vault: hot key: %w", err)
	}
	if _, err := schnorr.ParsePubKey(p.ColdXOnly[:]); err != nil {
		return fmt.Errorf("vault: cold key: %w", err)
	}
	if p.CSVDelay == 0 || p.CSVDelay > 0xFFFF {
		return fmt.Errorf("vault: csv_delay %d out of range [1, 0xFFFF]", p.CSVDelay)
	}
	if p.Flavour == HybridCtvCsfs {
		if err := script.ValidateXOnlyKey(p.TreasurerXOnly[:]); err != nil {
			return fmt.Errorf("vault: treasurer key required for %s: %w", HybridCtvCsfs, err)
		}
		if _, err := schnorr.ParsePubKey(p.TreasurerXOnly[:]); err != nil {
			return fmt.Errorf("vault: treasurer key: %w", err)
		}
	}
	return template.ValidateFeeSchedule(p.AmountSats, p.Fees.TriggerFee, p.Fees.HotFee, p.Fees.ColdFee, p.Fees.DelegatedFee)
}

// State is one node of the orchestrator's state machine.
type State uint8

const (
	StateCreated State = iota
	StateFunded
	StateTriggered
	StateCompletedHot
	StateCompletedCold
	StateCompletedDelegated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateFunded:
		return "Funded"
	case StateTriggered:
		return "Triggered"
	case StateCompletedHot:
		return "Completed{Hot}"
	case StateCompletedCold:
		return "Completed{Cold}"
	case StateCompletedDelegated:
		return "Completed{Delegated}"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is one of the three Completed{*} variants.
func (s State) IsTerminal() bool {
	return s == StateCompletedHot || s == StateCompletedCold || s == StateCompletedDelegated
}

var (
	ErrTerminal                  = errors.New("vault: operation invoked from a terminal state")
	ErrOutOfOrder                = errors.New("vault: operation invoked out of order")
	ErrNotFunded                 = errors.New("vault: no confirmed funding UTXO matching amount_sats was found")
	ErrInsufficientConfirmations = errors.New("vault: trigger has not reached csv_delay confirmations")
	ErrWrongFlavour              = errors.New("vault: operation requires the HybridCtvCsfs flavour")
	ErrBadDelegationSig          = errors.New("vault: delegation signature does not verify")
)

// Handle is the orchestrator's owned vault instance. Exactly one goroutine
// should mutate a given Handle at a time; callers serialise transitions.
type Handle struct {
	Params Parameters

	cold    template.ColdTemplateResult
	trigger template.TriggerTemplateResult
	funding template.FundingResult

	FundingAddress  string
	FundingOutpoint *wire.OutPoint
	TriggerOutpoint *wire.OutPoint

	State State
}

// Create runs the bottom-up three-phase planner (cold → trigger → funding)
// and returns a Handle in state Created. It performs no I/O.
func Create(params Parameters) (*Handle, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	cold, err := template.PlanColdTemplate(params.AmountSats, params.Fees.TriggerFee, params.Fees.ColdFee, params.ColdXOnly)
	if err != nil {
		return nil, fmt.Errorf("vault: create: %w", err)
	}

	trig, err := template.PlanTriggerTemplate(params.AmountSats, params.Fees.TriggerFee, params.CSVDelay, params.HotXOnly, cold)
	if err != nil {
		return nil, fmt.Errorf("vault: create: %w", err)
	}

	var funding template.FundingResult
	if params.Flavour == HybridCtvCsfs {
		funding, err = template.PlanHybridFundingAddress(params.Network, trig)
	} else {
		funding, err = template.PlanFundingAddress(params.Network, trig)
	}
	if err != nil {
		return nil, fmt.Errorf("vault: create: %w", err)
	}

	return &Handle{
		Params:         params,
		cold:           cold,
		trigger:        trig,
		funding:        funding,
		FundingAddress: funding.Address,
		State:          StateCreated,
	}, nil
}

func (h *Handle) requireState(required State) error {
	if h.State.IsTerminal() {
		return fmt.Errorf("%w: vault is %s", ErrTerminal, h.State)
	}
	if h.State != required {
		return fmt.Errorf("%w: requires %s, have %s", ErrOutOfOrder, required, h.State)
	}
	return nil
}

// Fund observes the funding UTXO and advances Created → Funded. It
// requires a confirmed output at the funding address whose value is
// exactly amount_sats; minConfirmations is the caller's required depth
// (spec default 1).
func (h *Handle) Fund(ctx context.Context, adapter chainadapter.ChainAdapter, fundingTxid chainhash.Hash, minConfirmations uint32) error {
	if err := h.requireState(StateCreated); err != nil {
		return err
	}

	tx, err := adapter.GetRawTx(ctx, fundingTxid)
	if err != nil {
		return fmt.Errorf("vault: fund: %w", err)
	}

	// Node software does not guarantee output order: the vault output is
	// located by scriptPubKey match, never assumed at a fixed index.
	vout, err := adapter.FindVout(ctx, fundingTxid, h.funding.OutputScript)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotFunded, err)
	}
	if uint64(tx.TxOut[vout].Value) != h.Params.AmountSats {
		return fmt.Errorf("%w: output value %d sats, want %d", ErrNotFunded, tx.TxOut[vout].Value, h.Params.AmountSats)
	}

	if _, err := adapter.WaitConfirm(ctx, fundingTxid, minConfirmations); err != nil {
		return fmt.Errorf("vault: fund: %w", err)
	}

	h.FundingOutpoint = &wire.OutPoint{Hash: fundingTxid, Index: vout}
	h.State = StateFunded
	return nil
}

// Trigger materialises and broadcasts the vault→trigger transaction,
// advancing Funded → Triggered. Re-broadcasting a transaction already
// accepted is treated as success, not failure.
func (h *Handle) Trigger(ctx context.Context, adapter chainadapter.ChainAdapter) error {
	if err := h.requireState(StateFunded); err != nil {
		return err
	}
	if h.FundingOutpoint == nil {
		return fmt.Errorf("%w: trigger called before the funding outpoint is known", ErrOutOfOrder)
	}

	materialised := h.trigger.Template.WithPrevOut(0, chainhash.Hash(h.FundingOutpoint.Hash), h.FundingOutpoint.Index)
	tx := materialiseTx(materialised)

	w, err := witness.SpendVaultToTrigger(h.funding.L1LeafScript, h.funding.L1ControlBlock)
	if err != nil {
		return fmt.Errorf("vault: trigger: %w", err)
	}
	tx.TxIn[0].Witness = w

	txid, err := adapter.Broadcast(ctx, tx)
	if err != nil {
		if !chainadapter.IsIdempotentRebroadcast(err) {
			return fmt.Errorf("vault: trigger broadcast: %w", err)
		}
	}

	h.TriggerOutpoint = &wire.OutPoint{Hash: txid, Index: 0}
	h.State = StateTriggered
	return nil
}

// Hot materialises, signs, and broadcasts the trigger→hot withdrawal,
// advancing Triggered → Completed{Hot}. It requires observed confirmations
// on the trigger output to be at least csv_delay.
func (h *Handle) Hot(ctx context.Context, adapter chainadapter.ChainAdapter, privKey *btcec.PrivateKey) error {
	if err := h.requireState(StateTriggered); err != nil {
		return err
	}
	if h.TriggerOutpoint == nil {
		return fmt.Errorf("%w: hot called before the trigger outpoint is known", ErrOutOfOrder)
	}

	confs, err := adapter.WaitConfirm(ctx, h.TriggerOutpoint.Hash, h.Params.CSVDelay)
	if err != nil {
		return fmt.Errorf("vault: hot: %w", err)
	}
	if confs < h.Params.CSVDelay {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientConfirmations, confs, h.Params.CSVDelay)
	}

	prevScript := h.trigger.Template.Outputs[0].ScriptPubKey
	prevValue := int64(h.trigger.Template.Outputs[0].Value)
	hotValue := int64(h.trigger.Template.Outputs[0].Value - h.Params.Fees.HotFee)

	hotDest, err := taproot.OutputScript(h.Params.HotXOnly)
	if err != nil {
		return fmt.Errorf("vault: hot: %w", err)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *h.TriggerOutpoint,
		Sequence:         h.Params.CSVDelay,
	})
	tx.AddTxOut(wire.NewTxOut(hotValue, hotDest))

	sig, err := signer.SignTaprootScriptPath(privKey, tx, 0, prevScript, prevValue, h.trigger.LeafScript)
	if err != nil {
		return fmt.Errorf("vault: hot: %w", err)
	}

	w, err := witness.SpendTriggerToHot(sig, h.trigger.LeafScript, h.trigger.ControlBlock)
	if err != nil {
		return fmt.Errorf("vault: hot: %w", err)
	}
	tx.TxIn[0].Witness = w

	if _, err := adapter.Broadcast(ctx, tx); err != nil {
		if !chainadapter.IsIdempotentRebroadcast(err) {
			return fmt.Errorf("vault: hot broadcast: %w", err)
		}
	}

	h.State = StateCompletedHot
	return nil
}

// Cold materialises and broadcasts the trigger→cold clawback, advancing
// Triggered → Completed{Cold}. Unlike Hot, this is always allowed once the
// trigger is observed on-chain, with no confirmation-depth requirement.
func (h *Handle) Cold(ctx context.Context, adapter chainadapter.ChainAdapter) error {
	if err := h.requireState(StateTriggered); err != nil {
		return err
	}
	if h.TriggerOutpoint == nil {
		return fmt.Errorf("%w: cold called before the trigger outpoint is known", ErrOutOfOrder)
	}

	materialised := h.cold.Template.WithPrevOut(0, chainhash.Hash(h.TriggerOutpoint.Hash), h.TriggerOutpoint.Index)
	tx := materialiseTx(materialised)

	w, err := witness.SpendTriggerToCold(h.trigger.LeafScript, h.trigger.ControlBlock)
	if err != nil {
		return fmt.Errorf("vault: cold: %w", err)
	}
	tx.TxIn[0].Witness = w

	if _, err := adapter.Broadcast(ctx, tx); err != nil {
		if !chainadapter.IsIdempotentRebroadcast(err) {
			return fmt.Errorf("vault: cold broadcast: %w", err)
		}
	}

	h.State = StateCompletedCold
	return nil
}

// Delegate verifies a treasurer's signature over a delegation message and
// broadcasts the vault→delegated spend, advancing Funded →
// Completed{Delegated}. It requires the HybridCtvCsfs flavour; delegated
// spending never flows through the trigger.
func (h *Handle) Delegate(ctx context.Context, adapter chainadapter.ChainAdapter, msg delegation.Message, sig [64]byte, recipientScript []byte, recipientValue uint64) error {
	if err := h.requireState(StateFunded); err != nil {
		return err
	}
	if h.Params.Flavour != HybridCtvCsfs {
		return ErrWrongFlavour
	}
	if !h.funding.HasDelegationLeaf {
		return fmt.Errorf("vault: delegate: funding address carries no delegation leaf")
	}
	if h.FundingOutpoint == nil {
		return fmt.Errorf("%w: delegate called before the funding outpoint is known", ErrOutOfOrder)
	}

	tip, err := adapter.TipHeight(ctx)
	if err != nil {
		return fmt.Errorf("vault: delegate: %w", err)
	}
	if err := msg.CheckExpiry(tip); err != nil {
		return err
	}

	digest := msg.Digest()
	if !signer.VerifySchnorrMessageXOnly(h.Params.TreasurerXOnly, digest, sig) {
		return ErrBadDelegationSig
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: *h.FundingOutpoint})
	tx.AddTxOut(wire.NewTxOut(int64(recipientValue), recipientScript))

	w, err := witness.SpendVaultToDelegated(sig, digest, h.Params.TreasurerXOnly, h.funding.L3LeafScript, h.funding.L3ControlBlock)
	if err != nil {
		return fmt.Errorf("vault: delegate: %w", err)
	}
	tx.TxIn[0].Witness = w

	if _, err := adapter.Broadcast(ctx, tx); err != nil {
		if !chainadapter.IsIdempotentRebroadcast(err) {
			return fmt.Errorf("vault: delegate broadcast: %w", err)
		}
	}

	h.State = StateCompletedDelegated
	return nil
}

// Snapshot is the durable subset of a Handle: enough to resume the state
// machine after a restart, and nothing that a plan result or a signature
// would leak. It never carries private keys, leaf scripts, or witness
// data — those are all re-derived deterministically by Restore.
type Snapshot struct {
	Params          Parameters
	FundingOutpoint *wire.OutPoint
	TriggerOutpoint *wire.OutPoint
	State           State
}

// Snapshot captures h's durable state.
func (h *Handle) Snapshot() Snapshot {
	return Snapshot{
		Params:          h.Params,
		FundingOutpoint: h.FundingOutpoint,
		TriggerOutpoint: h.TriggerOutpoint,
		State:           h.State,
	}
}

// Restore rebuilds a Handle from a Snapshot by re-running the planner
// against the stored Parameters — the cold/trigger/funding templates are
// pure functions of Parameters, so recomputing them here is cheaper and
// less error-prone than persisting and revalidating them separately.
func Restore(snap Snapshot) (*Handle, error) {
	h, err := Create(snap.Params)
	if err != nil {
		return nil, fmt.Errorf("vault: restore: %w", err)
	}
	h.FundingOutpoint = snap.FundingOutpoint
	h.TriggerOutpoint = snap.TriggerOutpoint
	h.State = snap.State
	return h, nil
}

func materialiseTx(t template.TxTemplate) *wire.MsgTx {
	tx := wire.NewMsgTx(t.Version)
	tx.LockTime = t.LockTime
	for _, in := range t.Inputs {
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash(in.PrevTxid), Index: in.PrevVout},
			Sequence:         in.Sequence,
		})
	}
	for _, out := range t.Outputs {
		tx.AddTxOut(wire.NewTxOut(int64(out.Value), out.ScriptPubKey))
	}
	return tx
}
