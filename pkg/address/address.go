// Package address normalises MVM, EVM, and SVM addresses into a canonical
// 32-byte form so that comparisons across chain families are safe and
// representation-independent.
package address

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// Family identifies which chain-family convention an address follows.
type Family string

const (
	MVM Family = "MVM"
	EVM Family = "EVM"
	SVM Family = "SVM"
)

// Canonical is the 32-byte normalised form every address is stored and
// compared in.
type Canonical [32]byte

// Hex returns the 0x-prefixed, lowercase hex encoding of the canonical form.
func (c Canonical) Hex() string {
	return "0x" + hex.EncodeToString(c[:])
}

// Equal reports whether two canonical addresses are identical.
func (c Canonical) Equal(other Canonical) bool { return c == other }

// ParseMVM parses an MVM-style address: hex, optionally 0x-prefixed,
// left-padded to 64 hex chars (32 bytes), case-insensitive.
func ParseMVM(s string) (Canonical, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) > 64 {
		return Canonical{}, fmt.Errorf("address: mvm hex too long: %q", s)
	}
	s = strings.Repeat("0", 64-len(s)) + s
	raw, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return Canonical{}, fmt.Errorf("address: invalid mvm hex %q: %w", s, err)
	}
	var c Canonical
	copy(c[:], raw)
	return c, nil
}

// FormatMVM renders the canonical address in MVM's native 0x-hex-64 form.
func FormatMVM(c Canonical) string {
	return "0x" + hex.EncodeToString(c[:])
}

// ParseEVM parses a 20-byte EVM address (0x-hex) into 32-byte canonical
// form, zero-padding the leading 12 bytes.
func ParseEVM(s string) (Canonical, error) {
	if !common.IsHexAddress(s) {
		return Canonical{}, fmt.Errorf("address: invalid evm address %q", s)
	}
	a := common.HexToAddress(s)
	var c Canonical
	copy(c[12:], a.Bytes())
	return c, nil
}

// FormatEVM renders the canonical address in EVM's native 20-byte 0x-hex
// form, after verifying the leading 12 bytes are zero.
func FormatEVM(c Canonical) (string, error) {
	for i := 0; i < 12; i++ {
		if c[i] != 0 {
			return "", fmt.Errorf("address: non-zero evm padding at byte %d", i)
		}
	}
	return strings.ToLower(common.BytesToAddress(c[12:]).Hex()), nil
}

// ParseSVM parses a base58-encoded 32-byte SVM public key into canonical
// form.
func ParseSVM(s string) (Canonical, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Canonical{}, fmt.Errorf("address: invalid svm base58 %q: %w", s, err)
	}
	if len(raw) != 32 {
		return Canonical{}, fmt.Errorf("address: svm address must be 32 bytes, got %d", len(raw))
	}
	var c Canonical
	copy(c[:], raw)
	return c, nil
}

// FormatSVM renders the canonical address in SVM's native base58 form.
func FormatSVM(c Canonical) string {
	return base58.Encode(c[:])
}

// ParseSVMHex parses the on-wire hex representation of an SVM address (as
// used inside cross-chain payloads, per spec §3).
func ParseSVMHex(s string) (Canonical, error) {
	return ParseMVM(s)
}

// Parse dispatches to the family-appropriate parser.
func Parse(family Family, s string) (Canonical, error) {
	switch family {
	case MVM:
		return ParseMVM(s)
	case EVM:
		return ParseEVM(s)
	case SVM:
		return ParseSVM(s)
	default:
		return Canonical{}, fmt.Errorf("address: unknown family %q", family)
	}
}
