// Package chainadapter defines the single integration seam between the
// vault core and a real Bitcoin node or indexer, plus an in-memory mock
// implementation for tests. The adapter is not part of the core's logic —
// it is the only place the core ever crosses into I/O.
package chainadapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var ErrVoutNotFound = errors.New("chainadapter: no output matches the requested scriptPubKey")
var ErrRejected = errors.New("chainadapter: broadcast rejected")
var ErrTimeout = errors.New("chainadapter: wait_confirm timed out")

// RejectReason names the well-known broadcast-rejection reasons that
// IsIdempotentRebroadcast and IsTransientOnHot classify; the orchestrator
// itself only consults IsIdempotentRebroadcast.
type RejectReason string

const (
	ReasonNonBIP68Final                RejectReason = "non-BIP68-final"
	ReasonNonMandatoryScriptVerifyFlag RejectReason = "non-mandatory-script-verify-flag"
	ReasonAlreadyInMempool             RejectReason = "already-in-mempool"
	ReasonAlreadyInChain               RejectReason = "already-in-chain"
)

// RejectedError wraps ErrRejected with the adapter's specific reason.
type RejectedError struct {
	Reason RejectReason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRejected, e.Reason)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

// IsIdempotentRebroadcast reports whether a rejection means the transaction
// is already accepted somewhere. The orchestrator treats both cases as a
// successful broadcast, not a failure.
func IsIdempotentRebroadcast(err error) bool {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Reason == ReasonAlreadyInMempool || re.Reason == ReasonAlreadyInChain
	}
	return false
}

// IsTransientOnHot reports whether a rejection should be retried after the
// next block rather than treated as fatal. It only applies to the hot
// withdrawal path; every other rejection is fatal there too.
func IsTransientOnHot(err error) bool {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Reason == ReasonNonBIP68Final
	}
	return false
}

// ChainAdapter is the interface the orchestrator requires from the outside
// world. Implementations must be safe for concurrent use across vault
// handles; the core itself does not serialize calls into it.
type ChainAdapter interface {
	GetRawTx(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error)
	FindVout(ctx context.Context, txid chainhash.Hash, scriptPubKey []byte) (uint32, error)
	Broadcast(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error)
	TipHeight(ctx context.Context) (uint32, error)
	WaitConfirm(ctx context.Context, txid chainhash.Hash, depth uint32) (uint32, error)
}

// MockAdapter is an in-memory ChainAdapter for tests: broadcasts are
// recorded in a plain map keyed by txid, the same registry style the
// payment-channel tracker uses for its open channels.
type MockAdapter struct {
	mu          sync.Mutex
	txs         map[chainhash.Hash]*wire.MsgTx
	confirmedAt map[chainhash.Hash]uint32
	tip         uint32
}

// NewMockAdapter returns an empty mock chain at tip height 0.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		txs:         make(map[chainhash.Hash]*wire.MsgTx),
		confirmedAt: make(map[chainhash.Hash]uint32),
	}
}

func (m *MockAdapter) GetRawTx(_ context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[txid]
	if !ok {
		return nil, fmt.Errorf("chainadapter: unknown txid %s", txid)
	}
	return tx, nil
}

// FindVout iterates the transaction's outputs and matches scriptPubKey
// byte-for-byte, never assuming a fixed index — node software does not
// guarantee output order.
func (m *MockAdapter) FindVout(ctx context.Context, txid chainhash.Hash, scriptPubKey []byte) (uint32, error) {
	tx, err := m.GetRawTx(ctx, txid)
	if err != nil {
		return 0, err
	}
	for i, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, scriptPubKey) {
			return uint32(i), nil
		}
	}
	return 0, ErrVoutNotFound
}

// Broadcast records tx as confirming in the block after the current tip, so
// it has one confirmation once MineBlocks(1) is called. A second broadcast of the same
// txid is rejected as already-in-mempool, matching a real node's response
// and letting the orchestrator's idempotence handling exercise the same
// path it would against a live node.
func (m *MockAdapter) Broadcast(_ context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
	txid := tx.TxHash()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.txs[txid]; exists {
		return txid, &RejectedError{Reason: ReasonAlreadyInMempool}
	}
	m.txs[txid] = tx.Copy()
	m.confirmedAt[txid] = m.tip + 1
	return txid, nil
}

func (m *MockAdapter) TipHeight(_ context.Context) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tip, nil
}

// WaitConfirm returns the transaction's current confirmation count. It
// never mutates state on timeout; callers are expected to retry.
func (m *MockAdapter) WaitConfirm(_ context.Context, txid chainhash.Hash, depth uint32) (uint32, error) {
	m.mu.Lock()
	confirmedAt, ok := m.confirmedAt[txid]
	tip := m.tip
	m.mu.Unlock()

	if !ok {
		return 0, fmt.Errorf("chainadapter: %s never broadcast", txid)
	}
	if tip < confirmedAt {
		return 0, ErrTimeout
	}
	confs := tip - confirmedAt + 1
	if confs < depth {
		return confs, ErrTimeout
	}
	return confs, nil
}

// MineBlocks advances the mock chain's tip by n blocks — the test-only
// control surface a real node's RPC client would not expose.
func (m *MockAdapter) MineBlocks(n uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tip += n
}
