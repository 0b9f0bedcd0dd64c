// Package chain defines the shared polling contract every chain-family
// adapter implements (spec §4.1), grounded on the teacher's
// pkg/chain/strategy.ChainExecutionStrategy interface shape.
package chain

import (
	"context"

	"github.com/certen/independant-validator/pkg/events"
)

// Cursor is an opaque per-adapter bookmark. Each adapter defines its own
// concrete representation (block height, event sequence number, slot...);
// callers only ever persist and replay it.
type Cursor string

// PollResult is what a single Adapter.Poll tick produces.
type PollResult struct {
	Intents      []events.IntentEvent
	Escrows      []events.EscrowEvent
	Fulfillments []events.FulfillmentEvent
	NewCursor    Cursor
}

// Adapter is the contract every chain-family adapter implements: poll(cursor)
// -> (events, new_cursor), bounded to at most MaxEventsPerTick events.
type Adapter interface {
	// ChainID identifies the chain this adapter polls.
	ChainID() string
	// Poll performs one bounded RPC fetch from cursor and returns newly
	// observed events plus the cursor to resume from next tick.
	Poll(ctx context.Context, cursor Cursor) (PollResult, error)
}

// MaxEventsPerTick bounds every adapter's RPC fetch per spec §4.1.
const MaxEventsPerTick = 100
