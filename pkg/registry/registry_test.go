package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/independant-validator/pkg/address"
	"github.com/certen/independant-validator/pkg/apierr"
	"github.com/certen/independant-validator/pkg/events"
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

func TestVerifyEscrowSolverMatches(t *testing.T) {
	solver := addr(0x42)
	lookup := New(&fakeHub{answer: solver, ok: true})

	err := lookup.VerifyEscrowSolver(context.Background(), addr(0x01), events.EscrowEvent{
		ChainType:      events.ChainEVM,
		ReservedSolver: &solver,
	})
	require.NoError(t, err)
}

func TestVerifyEscrowSolverMismatch(t *testing.T) {
	registered := addr(0x42)
	observed := addr(0x43)
	lookup := New(&fakeHub{answer: registered, ok: true})

	err := lookup.VerifyEscrowSolver(context.Background(), addr(0x01), events.EscrowEvent{
		ChainType:      events.ChainEVM,
		ReservedSolver: &observed,
	})
	require.Error(t, err)
	require.Equal(t, apierr.Mismatch, apierr.KindOf(err))
}

func TestVerifyEscrowSolverUnregistered(t *testing.T) {
	lookup := New(&fakeHub{ok: false})

	observed := addr(0x43)
	err := lookup.VerifyEscrowSolver(context.Background(), addr(0x01), events.EscrowEvent{
		ChainType:      events.ChainSVM,
		ReservedSolver: &observed,
	})
	require.Error(t, err)
	require.Equal(t, apierr.Unauthorised, apierr.KindOf(err))
}

func TestVerifyEscrowSolverNoReservedSolver(t *testing.T) {
	solver := addr(0x42)
	lookup := New(&fakeHub{answer: solver, ok: true})

	err := lookup.VerifyEscrowSolver(context.Background(), addr(0x01), events.EscrowEvent{
		ChainType: events.ChainMVM,
	})
	require.Error(t, err)
	require.Equal(t, apierr.Mismatch, apierr.KindOf(err))
}

func TestVerifyEscrowSolverRPCError(t *testing.T) {
	lookup := New(&fakeHub{err: errors.New("rpc down")})

	observed := addr(0x43)
	err := lookup.VerifyEscrowSolver(context.Background(), addr(0x01), events.EscrowEvent{
		ChainType:      events.ChainEVM,
		ReservedSolver: &observed,
	})
	require.Error(t, err)
	require.Equal(t, apierr.RPCError, apierr.KindOf(err))
}

func TestVerifyEscrowSolverUnknownChainType(t *testing.T) {
	lookup := New(&fakeHub{ok: true})

	observed := addr(0x43)
	err := lookup.VerifyEscrowSolver(context.Background(), addr(0x01), events.EscrowEvent{
		ChainType:      events.ChainType("unknown"),
		ReservedSolver: &observed,
	})
	require.Error(t, err)
	require.Equal(t, apierr.Internal, apierr.KindOf(err))
}
