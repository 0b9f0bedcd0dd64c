// Package amount parses u64 token amounts as they arrive from chain RPCs:
// JSON number, decimal string, or 0x-prefixed hex, rejecting anything that
// would not fit in a u64. It also decodes Move's Option<T> wire encoding.
package amount

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// MaxU64 mirrors Rust's u64::MAX; values strictly greater are rejected.
var MaxU64 = new(big.Int).SetUint64(^uint64(0))

// ParseU64 normalises a u64 field that may arrive as a JSON number, a
// decimal string, or a 0x-prefixed hex string. It rejects values exceeding
// u64::MAX and negative values.
func ParseU64(raw json.RawMessage) (uint64, error) {
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return parseBigDecimal(asNumber.String())
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return 0, fmt.Errorf("amount: not a number or string: %s", string(raw))
	}
	return ParseU64String(asString)
}

// ParseU64String parses a decimal or 0x-hex string into a bounds-checked u64.
func ParseU64String(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return 0, fmt.Errorf("amount: invalid hex %q", s)
		}
		return boundsCheck(n)
	}
	return parseBigDecimal(s)
}

func parseBigDecimal(s string) (uint64, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, fmt.Errorf("amount: invalid decimal %q", s)
	}
	return boundsCheck(n)
}

func boundsCheck(n *big.Int) (uint64, error) {
	if n.Sign() < 0 {
		return 0, fmt.Errorf("amount: negative value %s", n.String())
	}
	if n.Cmp(MaxU64) > 0 {
		return 0, fmt.Errorf("amount: %s exceeds u64::MAX", n.String())
	}
	return n.Uint64(), nil
}

// Option represents Move's Option<T>, wire-encoded as {"vec":[v]} (Some) or
// {"vec":[]} (None).
type Option struct {
	Vec []json.RawMessage `json:"vec"`
}

// IsSome reports whether the option carries a value.
func (o Option) IsSome() bool { return len(o.Vec) > 0 }

// U64 decodes a Move Option<u64>, returning (value, present, error).
func (o Option) U64() (uint64, bool, error) {
	if !o.IsSome() {
		return 0, false, nil
	}
	v, err := ParseU64(o.Vec[0])
	if err != nil {
		return 0, true, err
	}
	return v, true, nil
}

// DecodeString decodes a Move Option<String>, returning (value, present, error).
func (o Option) DecodeString() (string, bool, error) {
	if !o.IsSome() {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(o.Vec[0], &s); err != nil {
		return "", true, fmt.Errorf("amount: option string decode: %w", err)
	}
	return s, true, nil
}
