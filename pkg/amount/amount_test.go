package amount

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseU64Representations(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want uint64
	}{
		{"number", `1000`, 1000},
		{"decimal string", `"1000"`, 1000},
		{"hex string", `"0x3e8"`, 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseU64(json.RawMessage(tc.raw))
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseU64RejectsOverflow(t *testing.T) {
	_, err := ParseU64String("18446744073709551616") // u64::MAX + 1
	require.Error(t, err)
}

func TestParseU64AcceptsMax(t *testing.T) {
	got, err := ParseU64String("18446744073709551615")
	require.NoError(t, err)
	require.Equal(t, uint64(18446744073709551615), got)
}

func TestParseU64RejectsNegative(t *testing.T) {
	_, err := ParseU64String("-1")
	require.Error(t, err)
}

func TestOptionSomeNone(t *testing.T) {
	var some Option
	require.NoError(t, json.Unmarshal([]byte(`{"vec":["1000"]}`), &some))
	v, present, err := some.U64()
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, uint64(1000), v)

	var none Option
	require.NoError(t, json.Unmarshal([]byte(`{"vec":[]}`), &none))
	_, present, err = none.U64()
	require.NoError(t, err)
	require.False(t, present)
}
