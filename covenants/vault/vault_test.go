package vault

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toole-brendan/ctvvault/chainadapter"
	"github.com/toole-brendan/ctvvault/chainparams"
	"github.com/toole-brendan/ctvvault/covenants/delegation"
	"github.com/toole-brendan/ctvvault/covenants/signer"
)

func fixedPrivKey(fill byte) *btcec.PrivateKey {
	var b [32]byte
	for i := range b {
		b[i] = fill
	}
	b[31] ^= 0x01
	priv, _ := btcec.PrivKeyFromBytes(b[:])
	return priv
}

func xOnlyOf(priv *btcec.PrivateKey) [32]byte {
	var out [32]byte
	copy(out[:], schnorr.SerializePubKey(priv.PubKey()))
	return out
}

func testParams(flavour Flavour) (Parameters, *btcec.PrivateKey, *btcec.PrivateKey, *btcec.PrivateKey) {
	hotKey := fixedPrivKey(0x11)
	coldKey := fixedPrivKey(0x22)
	treasurerKey := fixedPrivKey(0x33)

	return Parameters{
		AmountSats:     1_000_000,
		CSVDelay:       144,
		HotXOnly:       xOnlyOf(hotKey),
		ColdXOnly:      xOnlyOf(coldKey),
		TreasurerXOnly: xOnlyOf(treasurerKey),
		Network:        chainparams.Signet,
		Fees: FeeSchedule{
			TriggerFee:   1000,
			HotFee:       1000,
			ColdFee:      1000,
			DelegatedFee: 1000,
		},
		Flavour: flavour,
	}, hotKey, coldKey, treasurerKey
}

// txPayingScript builds a one-input, one-output transaction paying
// 1,000,000 sats to script — a stand-in for a wallet's own funding transaction.
func txPayingScript(script []byte) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{})
	tx.AddTxOut(wire.NewTxOut(1_000_000, script))
	return tx
}

func TestCreateSimpleCtvProducesFundingAddress(t *testing.T) {
	params, _, _, _ := testParams(SimpleCtv)
	h, err := Create(params)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, h.State)
	assert.NotEmpty(t, h.FundingAddress)
}

func TestCreateRejectsBadParameters(t *testing.T) {
	params, _, _, _ := testParams(SimpleCtv)
	params.CSVDelay = 0
	_, err := Create(params)
	assert.Error(t, err)
}

func TestFullLifecycleHotWithdrawal(t *testing.T) {
	ctx := context.Background()
	params, hotKey, _, _ := testParams(SimpleCtv)
	h, err := Create(params)
	require.NoError(t, err)

	adapter := chainadapter.NewMockAdapter()
	fundingTx := txPayingScript(h.funding.OutputScript)
	fundingTxid, err := adapter.Broadcast(ctx, fundingTx)
	require.NoError(t, err)
	adapter.MineBlocks(1)

	require.NoError(t, h.Fund(ctx, adapter, fundingTxid, 1))
	assert.Equal(t, StateFunded, h.State)

	require.NoError(t, h.Trigger(ctx, adapter))
	assert.Equal(t, StateTriggered, h.State)
	require.NotNil(t, h.TriggerOutpoint)

	adapter.MineBlocks(params.CSVDelay)

	require.NoError(t, h.Hot(ctx, adapter, hotKey))
	assert.Equal(t, StateCompletedHot, h.State)
}

func TestHotRejectsBeforeCsvDelayMatured(t *testing.T) {
	ctx := context.Background()
	params, hotKey, _, _ := testParams(SimpleCtv)
	h, err := Create(params)
	require.NoError(t, err)

	adapter := chainadapter.NewMockAdapter()
	fundingTx := txPayingScript(h.funding.OutputScript)
	fundingTxid, err := adapter.Broadcast(ctx, fundingTx)
	require.NoError(t, err)
	adapter.MineBlocks(1)
	require.NoError(t, h.Fund(ctx, adapter, fundingTxid, 1))
	require.NoError(t, h.Trigger(ctx, adapter))

	adapter.MineBlocks(params.CSVDelay - 10)

	err = h.Hot(ctx, adapter, hotKey)
	assert.Error(t, err)
	assert.Equal(t, StateTriggered, h.State)
}

func TestFullLifecycleColdClawback(t *testing.T) {
	ctx := context.Background()
	params, _, _, _ := testParams(SimpleCtv)
	h, err := Create(params)
	require.NoError(t, err)

	adapter := chainadapter.NewMockAdapter()
	fundingTx := txPayingScript(h.funding.OutputScript)
	fundingTxid, err := adapter.Broadcast(ctx, fundingTx)
	require.NoError(t, err)
	adapter.MineBlocks(1)
	require.NoError(t, h.Fund(ctx, adapter, fundingTxid, 1))
	require.NoError(t, h.Trigger(ctx, adapter))

	require.NoError(t, h.Cold(ctx, adapter))
	assert.Equal(t, StateCompletedCold, h.State)
}

func TestDelegateRequiresHybridFlavour(t *testing.T) {
	ctx := context.Background()
	params, _, _, treasurerKey := testParams(SimpleCtv)
	h, err := Create(params)
	require.NoError(t, err)

	adapter := chainadapter.NewMockAdapter()
	fundingTx := txPayingScript(h.funding.OutputScript)
	fundingTxid, err := adapter.Broadcast(ctx, fundingTx)
	require.NoError(t, err)
	adapter.MineBlocks(1)
	require.NoError(t, h.Fund(ctx, adapter, fundingTxid, 1))

	msg := delegation.Message{AmountSats: 900000, Recipient: "bc1qtest", ExpiryHeight: 1000, VaultAddress: h.FundingAddress}
	sig, err := signer.SignSchnorrMessage(treasurerKey, msg.Digest())
	require.NoError(t, err)

	err = h.Delegate(ctx, adapter, msg, sig, []byte{0x51}, 899000)
	assert.ErrorIs(t, err, ErrWrongFlavour)
}

func TestFullLifecycleDelegatedSpend(t *testing.T) {
	ctx := context.Background()
	params, _, _, treasurerKey := testParams(HybridCtvCsfs)
	h, err := Create(params)
	require.NoError(t, err)

	adapter := chainadapter.NewMockAdapter()
	fundingTx := txPayingScript(h.funding.OutputScript)
	fundingTxid, err := adapter.Broadcast(ctx, fundingTx)
	require.NoError(t, err)
	adapter.MineBlocks(1)
	require.NoError(t, h.Fund(ctx, adapter, fundingTxid, 1))

	msg := delegation.Message{AmountSats: 900000, Recipient: "bc1qtest", ExpiryHeight: 1000, VaultAddress: h.FundingAddress}
	sig, err := signer.SignSchnorrMessage(treasurerKey, msg.Digest())
	require.NoError(t, err)

	require.NoError(t, h.Delegate(ctx, adapter, msg, sig, []byte{0x51}, 899000))
	assert.Equal(t, StateCompletedDelegated, h.State)
}

func TestDelegateRejectsExpiredMessage(t *testing.T) {
	ctx := context.Background()
	params, _, _, treasurerKey := testParams(HybridCtvCsfs)
	h, err := Create(params)
	require.NoError(t, err)

	adapter := chainadapter.NewMockAdapter()
	fundingTx := txPayingScript(h.funding.OutputScript)
	fundingTxid, err := adapter.Broadcast(ctx, fundingTx)
	require.NoError(t, err)
	adapter.MineBlocks(1)
	require.NoError(t, h.Fund(ctx, adapter, fundingTxid, 1))

	adapter.MineBlocks(50)

	msg := delegation.Message{AmountSats: 900000, Recipient: "bc1qtest", ExpiryHeight: 50, VaultAddress: h.FundingAddress}
	sig, err := signer.SignSchnorrMessage(treasurerKey, msg.Digest())
	require.NoError(t, err)

	err = h.Delegate(ctx, adapter, msg, sig, []byte{0x51}, 899000)
	assert.ErrorIs(t, err, delegation.ErrExpired)
}

func TestDelegateRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	params, _, _, _ := testParams(HybridCtvCsfs)
	h, err := Create(params)
	require.NoError(t, err)

	adapter := chainadapter.NewMockAdapter()
	fundingTx := txPayingScript(h.funding.OutputScript)
	fundingTxid, err := adapter.Broadcast(ctx, fundingTx)
	require.NoError(t, err)
	adapter.MineBlocks(1)
	require.NoError(t, h.Fund(ctx, adapter, fundingTxid, 1))

	wrongKey := fixedPrivKey(0x99)
	msg := delegation.Message{AmountSats: 900000, Recipient: "bc1qtest", ExpiryHeight: 1000, VaultAddress: h.FundingAddress}
	sig, err := signer.SignSchnorrMessage(wrongKey, msg.Digest())
	require.NoError(t, err)

	err = h.Delegate(ctx, adapter, msg, sig, []byte{0x51}, 899000)
	assert.ErrorIs(t, err, ErrBadDelegationSig)
}

func TestOperationsRejectOutOfOrder(t *testing.T) {
	ctx := context.Background()
	params, hotKey, _, _ := testParams(SimpleCtv)
	h, err := Create(params)
	require.NoError(t, err)

	err = h.Trigger(ctx, chainadapter.NewMockAdapter())
	assert.ErrorIs(t, err, ErrOutOfOrder)

	err = h.Hot(ctx, chainadapter.NewMockAdapter(), hotKey)
	assert.ErrorIs(t, err, ErrOutOfOrder)
}

func TestOperationsRejectFromTerminalState(t *testing.T) {
	ctx := context.Background()
	params, _, _, _ := testParams(SimpleCtv)
	h, err := Create(params)
	require.NoError(t, err)

	adapter := chainadapter.NewMockAdapter()
	fundingTx := txPayingScript(h.funding.OutputScript)
	fundingTxid, err := adapter.Broadcast(ctx, fundingTx)
	require.NoError(t, err)
	adapter.MineBlocks(1)
	require.NoError(t, h.Fund(ctx, adapter, fundingTxid, 1))
	require.NoError(t, h.Trigger(ctx, adapter))
	require.NoError(t, h.Cold(ctx, adapter))

	err = h.Cold(ctx, adapter)
	assert.ErrorIs(t, err, ErrTerminal)
}

// TestDoubleTriggerIsIdempotent pins the double-broadcast scenario: calling
// Trigger twice in a row (e.g. after a crash-and-restart before the state
// transition was persisted) must not surface the mock adapter's
// already-in-mempool rejection as a caller-visible failure.
func TestDoubleTriggerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	params, _, _, _ := testParams(SimpleCtv)
	h, err := Create(params)
	require.NoError(t, err)

	adapter := chainadapter.NewMockAdapter()
	fundingTx := txPayingScript(h.funding.OutputScript)
	fundingTxid, err := adapter.Broadcast(ctx, fundingTx)
	require.NoError(t, err)
	adapter.MineBlocks(1)
	require.NoError(t, h.Fund(ctx, adapter, fundingTxid, 1))
	require.NoError(t, h.Trigger(ctx, adapter))

	h.State = StateFunded
	require.NoError(t, h.Trigger(ctx, adapter))
	assert.Equal(t, StateTriggered, h.State)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	params, _, _, _ := testParams(SimpleCtv)
	h, err := Create(params)
	require.NoError(t, err)

	adapter := chainadapter.NewMockAdapter()
	fundingTx := txPayingScript(h.funding.OutputScript)
	fundingTxid, err := adapter.Broadcast(ctx, fundingTx)
	require.NoError(t, err)
	adapter.MineBlocks(1)
	require.NoError(t, h.Fund(ctx, adapter, fundingTxid, 1))
	require.NoError(t, h.Trigger(ctx, adapter))

	snap := h.Snapshot()
	restored, err := Restore(snap)
	require.NoError(t, err)

	assert.Equal(t, h.State, restored.State)
	assert.Equal(t, h.FundingAddress, restored.FundingAddress)
	assert.Equal(t, h.FundingOutpoint, restored.FundingOutpoint)
	assert.Equal(t, h.TriggerOutpoint, restored.TriggerOutpoint)
}
