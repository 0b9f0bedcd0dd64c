// Package registry implements the solver-registry cross-lookup (spec
// §4.2.1): given a hub-side solver address, resolve that solver's
// registered address on a connected chain family, and compare canonical
// forms against an observed escrow's reserved solver.
package registry

import (
	"context"
	"fmt"

	"github.com/certen/independant-validator/pkg/address"
	"github.com/certen/independant-validator/pkg/apierr"
	"github.com/certen/independant-validator/pkg/events"
)

// HubClient is the subset of the hub-chain RPC surface the registry
// cross-lookup needs. It is grounded on the teacher's
// pkg/accumulate.Client interface, narrowed to the solver-registry methods.
type HubClient interface {
	// SolverAddressOn returns the solver's registered address on the given
	// connected chain family, or (zero, false, nil) if unregistered.
	SolverAddressOn(ctx context.Context, hubSolver address.Canonical, family address.Family) (address.Canonical, bool, error)
}

// Lookup resolves and compares a hub intent's reserved solver against an
// escrow's reserved solver on the escrow's chain family.
type Lookup struct {
	hub HubClient
}

// New constructs a Lookup backed by the given hub client.
func New(hub HubClient) *Lookup {
	return &Lookup{hub: hub}
}

// VerifyEscrowSolver implements the cross-lookup described in spec §4.2.1:
// it queries the hub registry for the hub solver's address on the escrow's
// chain family and compares it, in canonical form, to the escrow's
// reserved solver.
func (l *Lookup) VerifyEscrowSolver(ctx context.Context, hubSolver address.Canonical, escrow events.EscrowEvent) error {
	family, err := familyOf(escrow.ChainType)
	if err != nil {
		return apierr.Wrap(apierr.Internal, err, "registry: unknown chain type %q", escrow.ChainType)
	}

	registered, ok, err := l.hub.SolverAddressOn(ctx, hubSolver, family)
	if err != nil {
		return apierr.Wrap(apierr.RPCError, err, "registry: failed to query solver %s address on %s", address.FormatMVM(hubSolver), family)
	}
	if !ok {
		return apierr.New(apierr.Unauthorised, "unregistered solver: %s has no registered %s address", address.FormatMVM(hubSolver), family)
	}

	if escrow.ReservedSolver == nil {
		return apierr.New(apierr.Mismatch, "escrow carries no reserved solver to compare")
	}
	if !escrow.ReservedSolver.Equal(registered) {
		return apierr.New(apierr.Mismatch,
			"escrow reserved solver %s does not match registered solver address %s",
			escrow.ReservedSolver.Hex(), registered.Hex())
	}
	return nil
}

func familyOf(ct events.ChainType) (address.Family, error) {
	switch ct {
	case events.ChainMVM:
		return address.MVM, nil
	case events.ChainEVM:
		return address.EVM, nil
	case events.ChainSVM:
		return address.SVM, nil
	default:
		return "", fmt.Errorf("registry: no address family for chain type %q", ct)
	}
}
