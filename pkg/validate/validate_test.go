package validate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/certen/independant-validator/pkg/address"
	"github.com/certen/independant-validator/pkg/events"
	"github.com/certen/independant-validator/pkg/registry"
)

type fakeHub struct {
	answer address.Canonical
	ok     bool
	err    error
}

func (f *fakeHub) SolverAddressOn(ctx context.Context, hubSolver address.Canonical, family address.Family) (address.Canonical, bool, error) {
	return f.answer, f.ok, f.err
}

func addr(b byte) address.Canonical {
	var c address.Canonical
	c[31] = b
	return c
}

func setup(t *testing.T, solverAnswer address.Canonical, solverOK bool) (*events.Cache, *Engine) {
	t.Helper()
	cache := events.NewCache()
	lookup := registry.New(&fakeHub{answer: solverAnswer, ok: solverOK})
	eng := NewEngine(cache, lookup, 30)
	eng.now = func() time.Time { return time.Unix(1_000_000, 0) }
	return cache, eng
}

func TestHappyInflow(t *testing.T) {
	solver := addr(0x09)
	cache, eng := setup(t, solver, true)

	var intentID [32]byte
	intentID[0] = 1
	issuer := addr(0x01)

	intent := events.IntentEvent{
		IntentID:        intentID,
		Issuer:          issuer,
		OfferedAmount:   1000,
		OfferedMetadata: "USDC",
		DesiredAmount:   2000,
		DesiredMetadata: "USDT",
		Expiry:          2_000_000,
		Revocable:       false,
		ReservedSolverHub: &solver,
	}
	require.True(t, cache.InsertIntent(intent))

	require.True(t, cache.InsertEscrow(events.EscrowEvent{
		EscrowID:        "esc-1",
		IntentID:        intentID,
		OfferedMetadata: "USDT",
		OfferedAmount:   2000,
		ChainID:         "svm-1",
		ChainType:       events.ChainSVM,
		ReservedSolver:  &solver,
	}))

	require.True(t, cache.InsertFulfillment(events.FulfillmentEvent{
		IntentID:      intentID,
		RecipientAddr: issuer,
		Amount:        1000,
		TokenMetadata: "USDC",
		SourceTxHash:  "0xtx1",
		ChainID:       "hub-1",
		Success:       true,
	}))

	res, err := eng.Evaluate(context.Background(), intentID, Inflow)
	require.NoError(t, err)
	require.True(t, res.Safe)
}

func TestRevocableRejected(t *testing.T) {
	solver := addr(0x09)
	cache, eng := setup(t, solver, true)

	var intentID [32]byte
	intentID[0] = 2
	require.True(t, cache.InsertIntent(events.IntentEvent{
		IntentID:  intentID,
		Revocable: true,
		Expiry:    2_000_000,
	}))

	_, err := eng.Evaluate(context.Background(), intentID, Inflow)
	require.Error(t, err)
}

func TestInsufficientEscrowMismatch(t *testing.T) {
	solver := addr(0x09)
	cache, eng := setup(t, solver, true)

	var intentID [32]byte
	intentID[0] = 3
	cache.InsertIntent(events.IntentEvent{
		IntentID:        intentID,
		DesiredAmount:   2000,
		DesiredMetadata: "USDT",
		Expiry:          2_000_000,
		Revocable:       false,
	})
	cache.InsertEscrow(events.EscrowEvent{
		EscrowID:        "esc-2",
		IntentID:        intentID,
		OfferedMetadata: "USDT",
		OfferedAmount:   1500,
		ChainID:         "svm-1",
	})

	_, err := eng.Evaluate(context.Background(), intentID, Inflow)
	require.Error(t, err)
}
