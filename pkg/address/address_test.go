package address

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMVMRoundTrip(t *testing.T) {
	c, err := ParseMVM("0xABCDEF")
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("0", 58)+"abcdef", c.Hex()[2:])

	c2, err := ParseMVM("abcdef")
	require.NoError(t, err)
	require.Equal(t, c, c2, "0x-prefix presence must not affect equality")

	c3, err := ParseMVM("ABCDEF")
	require.NoError(t, err)
	require.Equal(t, c, c3, "case must not affect equality")
}

func TestParseEVMRoundTrip(t *testing.T) {
	addr := "0x000000000000000000000000000000DeaDBeef"
	// pad to 20 bytes properly
	addr = "0x" + strings.Repeat("0", 24) + "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"[:16]
	c, err := ParseEVM(addr)
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		require.Equal(t, byte(0), c[i])
	}
	back, err := FormatEVM(c)
	require.NoError(t, err)
	require.Equal(t, strings.ToLower(addr), strings.ToLower(back))
}

func TestParseEVMNonZeroPaddingRejected(t *testing.T) {
	var c Canonical
	c[0] = 1
	_, err := FormatEVM(c)
	require.Error(t, err)
}

func TestParseSVMRoundTrip(t *testing.T) {
	var raw [32]byte
	for i := range raw {
		raw[i] = byte(i)
	}
	encoded := FormatSVM(Canonical(raw))
	c, err := ParseSVM(encoded)
	require.NoError(t, err)
	require.Equal(t, Canonical(raw), c)
}
