// Package chainparams carries the network-indexed constants the vault core
// needs: the bech32m human-readable prefixes for funding addresses, the
// fixed NUMS internal key, and the two non-standard opcodes this signet
// activates. It intentionally does not carry proof-of-work limits,
// checkpoints, or consensus deployment bits — those belong to a full node,
// not a covenant library.
package chainparams

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Network identifies which Bitcoin-style network a vault is planned for.
// It only ever affects the human-readable prefix of the funding address.
type Network uint8

const (
	Mainnet Network = iota
	Testnet
	Signet
	Regtest
)

// String returns the canonical network name.
func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	case Signet:
		return "signet"
	case Regtest:
		return "regtest"
	default:
		return "unknown"
	}
}

// Params holds the network-specific values the core consults.
type Params struct {
	Name      string
	Bech32HRP string
}

var paramsTable = map[Network]Params{
	Mainnet: {Name: "mainnet", Bech32HRP: "bc"},
	Testnet: {Name: "testnet", Bech32HRP: "tb"},
	Signet:  {Name: "signet", Bech32HRP: "sb"},
	Regtest: {Name: "regtest", Bech32HRP: "bcrt"},
}

// ErrUnknownNetwork is returned for a Network value outside the four
// recognised networks.
var ErrUnknownNetwork = errors.New("chainparams: unknown network")

// ParamsFor returns the Params for a network, or ErrUnknownNetwork.
func ParamsFor(n Network) (Params, error) {
	p, ok := paramsTable[n]
	if !ok {
		return Params{}, fmt.Errorf("%w: %d", ErrUnknownNetwork, n)
	}
	return p, nil
}

// NUMSPointHex is the fixed, nothing-up-my-sleeve x-only internal key used
// for every vault this core builds. Being a NUMS point, nobody can know its
// discrete log, so the Taproot key-path is unspendable by construction.
const NUMSPointHex = "50929b74c1a04954b78b4b6035e97a5e078a5a0f28ec96d547bfee9ace803ac0"

// NUMSPoint parses the fixed internal key as an even-Y compressed point,
// i.e. the standard BIP-341 lift_x of an x-only key.
func NUMSPoint() (*btcec.PublicKey, error) {
	xOnly, err := hex.DecodeString(NUMSPointHex)
	if err != nil {
		return nil, fmt.Errorf("chainparams: decode NUMS point: %w", err)
	}
	if len(xOnly) != 32 {
		return nil, fmt.Errorf("chainparams: NUMS point must be 32 bytes, got %d", len(xOnly))
	}
	compressed := append([]byte{0x02}, xOnly...)
	pub, err := btcec.ParsePubKey(compressed)
	if err != nil {
		return nil, fmt.Errorf("chainparams: NUMS point not on curve: %w", err)
	}
	return pub, nil
}

// Opcode numbering for this signet. The covenant opcode is re-mapped onto
// OP_NOP4 and CSFS is assigned a byte outside the standard BIP-348
// numbering; both are configuration constants of the core rather than
// hard-coded into the script builder, to ease porting once the opcodes
// standardise (spec §9).
const (
	OpCTV  byte = 0xb3 // OP_NOP4, repurposed as OP_CHECKTEMPLATEVERIFY
	OpCSFS byte = 0xcc // OP_CHECKSIGFROMSTACK
)

// TaprootLeafVersion is the tapscript leaf version used for every leaf this
// core builds (BIP-342 base tapscript, 0xc0).
const TaprootLeafVersion = 0xc0
