// Package taproot assembles the NUMS-internal Taproot output key and the
// control blocks vault leaves spend against. A single leaf (SimpleCtv) or
// two leaves at equal depth (HybridCtvCsfs) are the only shapes this core
// ever builds — the teacher's history recorded finalisation failures from
// asymmetric leaf depths, so AssembleTaprootScriptTree's own leaf ordering
// is trusted rather than reimplemented.
package taproot

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"

	"github.com/toole-brendan/ctvvault/chainparams"
)

// ErrOddDepth is returned when a caller tries to build a tree whose leaves
// are not at the depth AssembleTaprootScriptTree itself would assign —
// this core never builds a tree with more than two leaves, so the only way
// to hit this is passing more than two leaves.
var ErrOddDepth = errors.New("taproot: hybrid tree requires exactly two leaves at equal depth")

// ErrBadNumsPoint is returned when the configured internal key is not a
// valid on-curve point.
var ErrBadNumsPoint = errors.New("taproot: NUMS internal key is not on-curve")

// Assembly is the result of building a Taproot output: the output key and,
// for each input leaf (in the order supplied), the control block that
// authenticates a script-path spend of it.
type Assembly struct {
	OutputKey     [32]byte
	ControlBlocks [][]byte
}

// BuildSingleLeaf builds the SimpleCtv tree: one L1 leaf.
func BuildSingleLeaf(leafScript []byte) (Assembly, error) {
	return build([][]byte{leafScript})
}

// BuildHybrid builds the HybridCtvCsfs tree: two leaves at equal depth 1,
// ordered internally by AssembleTaprootScriptTree per BIP-341 (lexicographic
// by leaf hash) rather than by caller-supplied order. The returned control
// blocks are matched back to the caller's leafA/leafB order.
func BuildHybrid(leafA, leafB []byte) (Assembly, error) {
	if len(leafA) == 0 || len(leafB) == 0 {
		return Assembly{}, fmt.Errorf("taproot: both hybrid leaves must be non-empty scripts")
	}
	return build([][]byte{leafA, leafB})
}

func build(scripts [][]byte) (Assembly, error) {
	if len(scripts) == 0 || len(scripts) > 2 {
		return Assembly{}, ErrOddDepth
	}

	internalKey, err := chainparams.NUMSPoint()
	if err != nil {
		return Assembly{}, fmt.Errorf("%w: %v", ErrBadNumsPoint, err)
	}

	leaves := make([]txscript.TapLeaf, len(scripts))
	for i, s := range scripts {
		leaves[i] = txscript.NewBaseTapLeaf(s)
	}

	tree := txscript.AssembleTaprootScriptTree(leaves...)
	merkleRoot := tree.RootNode.TapHash()

	outputKey := txscript.ComputeTaprootOutputKey(internalKey, merkleRoot[:])

	controlBlocks := make([][]byte, len(scripts))
	for i := range scripts {
		cb := tree.LeafMerkleProofs[i].ToControlBlock(internalKey)
		cbBytes, err := cb.ToBytes()
		if err != nil {
			return Assembly{}, fmt.Errorf("taproot: serialize control block %d: %w", i, err)
		}
		controlBlocks[i] = cbBytes
	}

	var outKeyArr [32]byte
	copy(outKeyArr[:], schnorr.SerializePubKey(outputKey))

	return Assembly{OutputKey: outKeyArr, ControlBlocks: controlBlocks}, nil
}

// OutputScript returns the witness-v1 scriptPubKey (OP_1 <32-byte key>) for
// an output key, the exact bytes committed to by a funding or trigger
// output.
func OutputScript(outputKey [32]byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_1)
	b.AddData(outputKey[:])
	return b.Script()
}
