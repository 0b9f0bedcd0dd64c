package signing

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func testSeed() [32]byte {
	var s [32]byte
	for i := range s {
		s[i] = byte(i + 1)
	}
	return s
}

func TestDeriveIdentityDeterministic(t *testing.T) {
	id1, err := DeriveIdentity(testSeed())
	require.NoError(t, err)
	id2, err := DeriveIdentity(testSeed())
	require.NoError(t, err)

	require.Equal(t, id1.MVMAddress, id2.MVMAddress)
	require.Equal(t, id1.EVMAddress, id2.EVMAddress)
	require.Equal(t, id1.SVMAddress, id2.SVMAddress)
}

func TestECDSAPrivateKeyMatchesEVMAddress(t *testing.T) {
	id, err := DeriveIdentity(testSeed())
	require.NoError(t, err)

	priv := id.ECDSAPrivateKey()
	require.NotNil(t, priv)
	require.Equal(t, id.secp256k1.ToECDSA().D, priv.D)
	require.Equal(t, id.EVMAddress[12:], gethcrypto.PubkeyToAddress(priv.PublicKey).Bytes())
}

func TestEVMAddressPadding(t *testing.T) {
	id, err := DeriveIdentity(testSeed())
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		require.Equal(t, byte(0), id.EVMAddress[i])
	}
}

func TestMemoIdempotent(t *testing.T) {
	id, err := DeriveIdentity(testSeed())
	require.NoError(t, err)
	memo := NewMemo(id)

	var intentID [32]byte
	intentID[0] = 42
	var hash [32]byte
	hash[0] = 9

	a1, err := memo.SignEd25519Approval(intentID, "hub-1", hash)
	require.NoError(t, err)
	a2, err := memo.SignEd25519Approval(intentID, "hub-1", hash)
	require.NoError(t, err)
	require.Equal(t, a1.Signature, a2.Signature, "retries must return byte-identical signatures")
	require.True(t, ed25519.Verify(id.ed25519Pub, hash[:], a1.Signature))
}

func TestMemoRejectsDifferentPreimage(t *testing.T) {
	id, err := DeriveIdentity(testSeed())
	require.NoError(t, err)
	memo := NewMemo(id)

	var intentID [32]byte
	var h1, h2 [32]byte
	h1[0] = 1
	h2[0] = 2

	_, err = memo.SignEd25519Approval(intentID, "hub-1", h1)
	require.NoError(t, err)
	_, err = memo.SignEd25519Approval(intentID, "hub-1", h2)
	require.Error(t, err)
}

func TestParseSeedHexForm(t *testing.T) {
	s := testSeed()
	hexForm := "ed25519-priv-0x0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"
	seed, err := ParseSeed(hexForm)
	require.NoError(t, err)
	require.Equal(t, s, seed)
}

func TestParseSeedBase64Form(t *testing.T) {
	s := testSeed()
	b64 := base64.StdEncoding.EncodeToString(s[:])
	seed, err := ParseSeed(b64)
	require.NoError(t, err)
	require.Equal(t, s, seed)
}

func TestParseSeedRejectsBadLength(t *testing.T) {
	_, err := ParseSeed(base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))
	require.Error(t, err)
}
