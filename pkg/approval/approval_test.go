package approval

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/independant-validator/pkg/events"
	"github.com/certen/independant-validator/pkg/signing"
	"github.com/certen/independant-validator/pkg/validate"
)

func TestIntentHashDeterministic(t *testing.T) {
	id, err := signing.DeriveIdentity([32]byte{1, 2, 3})
	require.NoError(t, err)
	svc := New(validate.NewEngine(nil, nil, 30), signing.NewMemo(id))

	intent := events.IntentEvent{IntentID: [32]byte{9}, OfferedAmount: 100, DesiredAmount: 200}
	h1 := svc.IntentHash(intent, validate.Inflow)
	h2 := svc.IntentHash(intent, validate.Inflow)
	require.Equal(t, h1, h2)

	h3 := svc.IntentHash(intent, validate.Outflow)
	require.NotEqual(t, h1, h3)
}

func TestSignInflowMemoized(t *testing.T) {
	id, err := signing.DeriveIdentity([32]byte{7})
	require.NoError(t, err)
	svc := New(validate.NewEngine(nil, nil, 30), signing.NewMemo(id))

	hash := [32]byte{1}
	a1, err := svc.SignInflow([32]byte{2}, "evm-1", hash)
	require.NoError(t, err)
	a2, err := svc.SignInflow([32]byte{2}, "evm-1", hash)
	require.NoError(t, err)
	require.Equal(t, a1.Signature, a2.Signature)
}
