// Package validate implements the cross-chain safety predicate SAFE(intent,
// observation) (spec §4.2): the decision of whether a destination-chain
// release is authorised for a candidate (intent, escrow, fulfillment)
// triple. It unifies the inflow and outflow directions the original
// implementation validated separately (see DESIGN.md).
package validate

import (
	"context"
	"time"

	"github.com/certen/independant-validator/pkg/address"
	"github.com/certen/independant-validator/pkg/apierr"
	"github.com/certen/independant-validator/pkg/events"
	"github.com/certen/independant-validator/pkg/registry"
)

// Direction distinguishes which leg is being released.
type Direction string

const (
	// Inflow: escrow on connected chain, release on hub.
	Inflow Direction = "inflow"
	// Outflow: escrow on hub, release on connected chain.
	Outflow Direction = "outflow"
)

// Engine evaluates SAFE for a given direction.
type Engine struct {
	cache              *events.Cache
	lookup             *registry.Lookup
	expiryGraceSeconds uint64
	now                func() time.Time
}

// NewEngine constructs a validation engine. expiryGraceSeconds implements
// the grace-window Open Question decision recorded in DESIGN.md.
func NewEngine(cache *events.Cache, lookup *registry.Lookup, expiryGraceSeconds uint64) *Engine {
	return &Engine{cache: cache, lookup: lookup, expiryGraceSeconds: expiryGraceSeconds, now: time.Now}
}

// Result records the outcome of a SAFE evaluation.
type Result struct {
	Safe   bool
	Intent events.IntentEvent
	Escrow events.EscrowEvent
}

// Evaluate runs SAFE(intent, observation) for the given direction, using
// the escrow and fulfillment events already present in the cache.
func (e *Engine) Evaluate(ctx context.Context, intentID [32]byte, dir Direction) (*Result, error) {
	intent, ok := e.cache.Intent(intentID)
	if !ok {
		return nil, apierr.New(apierr.NotFound, "no intent cached for id %x", intentID)
	}

	if intent.Revocable {
		return nil, apierr.New(apierr.Unauthorised, "intent %x is revocable", intentID)
	}

	nowUnix := uint64(e.now().Unix())
	if intent.Expiry <= e.expiryGraceSeconds || nowUnix >= intent.Expiry-e.expiryGraceSeconds {
		return nil, apierr.New(apierr.Expired, "intent %x expired (expiry=%d grace=%d now=%d)", intentID, intent.Expiry, e.expiryGraceSeconds, nowUnix)
	}

	escrow, err := e.matchingEscrow(intentID, dir)
	if err != nil {
		return nil, err
	}

	if err := e.checkEscrowAgainstIntent(intent, escrow, dir); err != nil {
		return nil, err
	}

	if intent.ReservedSolverHub != nil {
		if err := e.lookup.VerifyEscrowSolver(ctx, *intent.ReservedSolverHub, escrow); err != nil {
			return nil, err
		}
	}

	if err := e.checkFulfillment(intent, dir); err != nil {
		return nil, err
	}

	return &Result{Safe: true, Intent: intent, Escrow: escrow}, nil
}

func (e *Engine) matchingEscrow(intentID [32]byte, dir Direction) (events.EscrowEvent, error) {
	candidates := e.cache.EscrowsForIntent(intentID)
	wantChain := escrowChainTypeFor(dir)
	for _, esc := range candidates {
		if wantChain == "" || esc.ChainType == wantChain {
			return esc, nil
		}
	}
	return events.EscrowEvent{}, apierr.New(apierr.NotFound, "no %s escrow observed for intent %x", dir, intentID)
}

// escrowChainTypeFor is intentionally permissive (returns "") because the
// spec does not constrain which connected chain family an inflow/outflow
// escrow lives on — only that exactly one branch (3) or (4) of SAFE applies.
func escrowChainTypeFor(dir Direction) events.ChainType { return "" }

func (e *Engine) checkEscrowAgainstIntent(intent events.IntentEvent, escrow events.EscrowEvent, dir Direction) error {
	if escrow.IntentID != intent.IntentID {
		return apierr.New(apierr.Mismatch, "escrow intent_id %x does not match intent %x", escrow.IntentID, intent.IntentID)
	}

	var wantMetadata string
	var wantAmount uint64
	switch dir {
	case Inflow:
		wantMetadata = intent.DesiredMetadata
		wantAmount = intent.DesiredAmount
	case Outflow:
		wantMetadata = intent.OfferedMetadata
		wantAmount = intent.OfferedAmount
	}

	if escrow.OfferedMetadata != wantMetadata {
		return apierr.New(apierr.Mismatch, "escrow offered_metadata %q does not match intent %q", escrow.OfferedMetadata, wantMetadata)
	}
	if escrow.OfferedAmount < wantAmount {
		return apierr.New(apierr.Mismatch, "escrow offered_amount %d is less than required %d", escrow.OfferedAmount, wantAmount)
	}
	return nil
}

func (e *Engine) checkFulfillment(intent events.IntentEvent, dir Direction) error {
	var wantRecipient address.Canonical
	var wantAmount uint64
	var wantMetadata string
	switch dir {
	case Inflow:
		// hub-side fulfillment delivers the offered leg to the issuer.
		wantRecipient = intent.Issuer
		wantAmount = intent.OfferedAmount
		wantMetadata = intent.OfferedMetadata
	case Outflow:
		wantRecipient = intent.Issuer
		wantAmount = intent.DesiredAmount
		wantMetadata = intent.DesiredMetadata
	}

	for _, f := range e.cache.FulfillmentsForIntent(intent.IntentID) {
		if !f.Success {
			continue
		}
		if f.Amount < wantAmount {
			continue
		}
		if f.TokenMetadata != wantMetadata {
			continue
		}
		if !f.RecipientAddr.Equal(wantRecipient) {
			continue
		}
		return nil
	}
	return apierr.New(apierr.NotFound, "no successful fulfillment satisfying intent %x found", intent.IntentID)
}
