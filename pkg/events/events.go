// Package events defines the observed on-chain event types and the
// in-memory, natural-key-deduped cache that the ingestion pipeline feeds
// and the validation engine and HTTP surface read.
package events

import (
	"sync"
	"time"

	"github.com/certen/independant-validator/pkg/address"
)

// ChainType identifies a chain family an event was observed on.
type ChainType string

const (
	ChainMVM ChainType = "MVM"
	ChainEVM ChainType = "EVM"
	ChainSVM ChainType = "SVM"
)

// IntentEvent is a signed description of a desired cross-chain swap,
// observed on the hub chain.
type IntentEvent struct {
	IntentID                     [32]byte
	Issuer                       address.Canonical
	OfferedMetadata              string
	OfferedAmount                uint64
	OfferedChainID               string
	DesiredMetadata              string
	DesiredAmount                uint64
	DesiredChainID               string
	Expiry                       uint64
	Revocable                    bool
	ReservedSolverHub            *address.Canonical
	ReservedSolverConnected      *address.Canonical
	RequesterAddrConnectedChain  *address.Canonical
	ChainID                      string
	ChainType                    ChainType
	ObservedAt                   time.Time
}

// NaturalKey is the de-duplication key: intent_id.
func (e IntentEvent) NaturalKey() [32]byte { return e.IntentID }

// EscrowEvent is an on-chain lock-box holding the offered tokens pending
// fulfillment proof.
type EscrowEvent struct {
	EscrowID         string
	IntentID         [32]byte
	OfferedMetadata  string
	OfferedAmount    uint64
	DesiredMetadata  string
	DesiredAmount    uint64
	Revocable        bool
	RequesterAddr    address.Canonical
	ReservedSolver   *address.Canonical
	ChainID          string
	ChainType        ChainType
	Expiry           uint64
	ObservedAt       time.Time
}

// NaturalKey is (escrow_id, chain_id): escrow_id alone is not guaranteed
// globally unique across independent chains.
func (e EscrowEvent) NaturalKey() string { return e.ChainID + ":" + e.EscrowID }

// FulfillmentEvent is the on-chain transfer delivering the desired leg to
// the requester.
type FulfillmentEvent struct {
	IntentID      [32]byte
	SolverAddr    address.Canonical
	RecipientAddr address.Canonical
	Amount        uint64
	TokenMetadata string
	SourceTxHash  string
	ChainID       string
	ChainType     ChainType
	Success       bool
	ObservedAt    time.Time
}

// NaturalKey is the source transaction hash, qualified by chain_id.
func (f FulfillmentEvent) NaturalKey() string { return f.ChainID + ":" + f.SourceTxHash }

// Cache is the process-wide, single-writer/many-reader event store. Once an
// event is seen under its natural key, it is never mutated or removed.
type Cache struct {
	mu sync.RWMutex

	intents      map[[32]byte]IntentEvent
	escrows      map[string]EscrowEvent
	fulfillments map[string]FulfillmentEvent

	// secondary index: intent_id -> fulfillments observed for it.
	fulfillmentsByIntent map[[32]byte][]string
	escrowsByIntent      map[[32]byte][]string
}

// NewCache constructs an empty event cache.
func NewCache() *Cache {
	return &Cache{
		intents:              make(map[[32]byte]IntentEvent),
		escrows:              make(map[string]EscrowEvent),
		fulfillments:         make(map[string]FulfillmentEvent),
		fulfillmentsByIntent: make(map[[32]byte][]string),
		escrowsByIntent:      make(map[[32]byte][]string),
	}
}

// InsertIntent inserts the event if its natural key is unseen. Returns
// true if newly inserted.
func (c *Cache) InsertIntent(e IntentEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := e.NaturalKey()
	if _, exists := c.intents[k]; exists {
		return false
	}
	c.intents[k] = e
	return true
}

// InsertEscrow inserts the event if its natural key is unseen.
func (c *Cache) InsertEscrow(e EscrowEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := e.NaturalKey()
	if _, exists := c.escrows[k]; exists {
		return false
	}
	c.escrows[k] = e
	c.escrowsByIntent[e.IntentID] = append(c.escrowsByIntent[e.IntentID], k)
	return true
}

// InsertFulfillment inserts the event if its natural key is unseen.
func (c *Cache) InsertFulfillment(e FulfillmentEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := e.NaturalKey()
	if _, exists := c.fulfillments[k]; exists {
		return false
	}
	c.fulfillments[k] = e
	c.fulfillmentsByIntent[e.IntentID] = append(c.fulfillmentsByIntent[e.IntentID], k)
	return true
}

// Intent looks up a cached intent by ID.
func (c *Cache) Intent(id [32]byte) (IntentEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.intents[id]
	return e, ok
}

// Intents returns all cached intents, optionally filtered by chain_id.
func (c *Cache) Intents(chainID string) []IntentEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]IntentEvent, 0, len(c.intents))
	for _, e := range c.intents {
		if chainID == "" || e.ChainID == chainID {
			out = append(out, e)
		}
	}
	return out
}

// Escrows returns all cached escrows, optionally filtered by chain_id.
func (c *Cache) Escrows(chainID string) []EscrowEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]EscrowEvent, 0, len(c.escrows))
	for _, e := range c.escrows {
		if chainID == "" || e.ChainID == chainID {
			out = append(out, e)
		}
	}
	return out
}

// Fulfillments returns all cached fulfillments, optionally filtered by
// chain_id.
func (c *Cache) Fulfillments(chainID string) []FulfillmentEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]FulfillmentEvent, 0, len(c.fulfillments))
	for _, e := range c.fulfillments {
		if chainID == "" || e.ChainID == chainID {
			out = append(out, e)
		}
	}
	return out
}

// EscrowsForIntent returns escrows linked to the given intent.
func (c *Cache) EscrowsForIntent(id [32]byte) []EscrowEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := c.escrowsByIntent[id]
	out := make([]EscrowEvent, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.escrows[k])
	}
	return out
}

// FulfillmentsForIntent returns fulfillments linked to the given intent.
func (c *Cache) FulfillmentsForIntent(id [32]byte) []FulfillmentEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := c.fulfillmentsByIntent[id]
	out := make([]FulfillmentEvent, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.fulfillments[k])
	}
	return out
}
