package chainparams

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// taprootWitnessVersion is the segwit witness version Taproot outputs use.
const taprootWitnessVersion = 1

// EncodeFundingAddress bech32m-encodes a 32-byte Taproot output key as a
// funding address for the given network, e.g. tb1p... on testnet.
func EncodeFundingAddress(net Network, outputKey [32]byte) (string, error) {
	params, err := ParamsFor(net)
	if err != nil {
		return "", err
	}

	conv, err := bech32.ConvertBits(outputKey[:], 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("chainparams: convert witness program: %w", err)
	}

	data := make([]byte, 0, len(conv)+1)
	data = append(data, taprootWitnessVersion)
	data = append(data, conv...)

	addr, err := bech32.EncodeM(params.Bech32HRP, data)
	if err != nil {
		return "", fmt.Errorf("chainparams: bech32m encode: %w", err)
	}
	return addr, nil
}

// DecodeFundingAddress parses a bech32m Taproot address produced by
// EncodeFundingAddress, returning the network it was minted for and the
// 32-byte output key.
func DecodeFundingAddress(addr string) (Network, [32]byte, error) {
	var outKey [32]byte

	hrp, data, encoding, err := bech32.DecodeGeneric(addr)
	if err != nil {
		return 0, outKey, fmt.Errorf("chainparams: bech32 decode: %w", err)
	}
	if encoding != bech32.VersionM {
		return 0, outKey, fmt.Errorf("chainparams: taproot address must use bech32m, not bech32")
	}
	if len(data) < 1 {
		return 0, outKey, fmt.Errorf("chainparams: empty address payload")
	}

	version := data[0]
	if version != taprootWitnessVersion {
		return 0, outKey, fmt.Errorf("chainparams: unsupported witness version %d", version)
	}

	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return 0, outKey, fmt.Errorf("chainparams: convert witness program: %w", err)
	}
	if len(program) != 32 {
		return 0, outKey, fmt.Errorf("chainparams: taproot witness program must be 32 bytes, got %d", len(program))
	}

	net, err := networkForHRP(hrp)
	if err != nil {
		return 0, outKey, err
	}

	copy(outKey[:], program)
	return net, outKey, nil
}

func networkForHRP(hrp string) (Network, error) {
	for net, params := range paramsTable {
		if params.Bech32HRP == hrp {
			return net, nil
		}
	}
	return 0, fmt.Errorf("chainparams: unrecognised bech32 HRP %q", hrp)
}
