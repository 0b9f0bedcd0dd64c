package draft

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/certen/independant-validator/pkg/apierr"
)

func alwaysValid(signer string) Verifier {
	return func(hash [32]byte, sig []byte) (string, bool, error) {
		return signer, true, nil
	}
}

func TestFCFSOnlyOneWinner(t *testing.T) {
	store := NewStore(time.Minute)
	id := store.Create(Intent{Hash: [32]byte{1}})

	var wg sync.WaitGroup
	results := make([]error, 2)
	sig := make([]byte, 64)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.SubmitSignature(id, "ED25519", sig, "solver-"+string(rune('A'+i)), alwaysValid("solver-"+string(rune('A'+i))))
		}(i)
	}
	wg.Wait()

	okCount, conflictCount := 0, 0
	for _, err := range results {
		if err == nil {
			okCount++
		} else if apierr.KindOf(err) == apierr.Conflict {
			conflictCount++
		}
	}
	require.Equal(t, 1, okCount)
	require.Equal(t, 1, conflictCount)

	d, err := store.Get(id)
	require.NoError(t, err)
	require.Equal(t, Signed, d.Status)
}

func TestSignatureFormatPreCheck(t *testing.T) {
	store := NewStore(time.Minute)
	id := store.Create(Intent{Hash: [32]byte{2}})

	err := store.SubmitSignature(id, "ED25519", make([]byte, 10), "x", alwaysValid("x"))
	require.Error(t, err)
	require.Equal(t, apierr.InvalidInput, apierr.KindOf(err))
}

func TestLazyExpiry(t *testing.T) {
	store := NewStore(time.Millisecond)
	id := store.Create(Intent{Hash: [32]byte{3}})
	store.now = func() time.Time { return time.Now().Add(time.Hour) }

	d, err := store.Get(id)
	require.NoError(t, err)
	require.Equal(t, Expired, d.Status)
	require.Empty(t, store.Pending())
}
