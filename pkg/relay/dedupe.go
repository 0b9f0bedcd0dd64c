// Package relay implements the GMP relay pipeline (spec §4.5): observe,
// classify, dispatch, route, and confirm cross-chain messages exactly once.
package relay

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// MsgType identifies a GMP message's on-wire type tag.
type MsgType byte

const (
	MsgIntentRequirements MsgType = 0x01
)

// Key is the (destination chain, intent, message type) replay-protection
// key used by the default dedupe scheme (spec §4.5, not a per-source
// nonce, so that contract redeployments do not reopen a replay window).
type Key struct {
	DstChainID string
	IntentID   [32]byte
	MsgType    MsgType
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%x:%02x", k.DstChainID, k.IntentID, byte(k.MsgType))
}

// Dedupe is the replay-protection contract of the (intent_id, msg_type)
// scheme. The legacy NonceDedupe does not implement it; it exposes its own
// nonce-based IsReplayNonce/MarkNonceConsumed methods instead.
type Dedupe interface {
	IsReplay(key Key) bool
	MarkDelivered(key Key) error
}

// KeyDedupe implements the (intent_id, msg_type)-keyed scheme, optionally
// mirrored to an on-disk snapshot so at-most-once can survive a restart
// (DESIGN.md "Relay persistence across restarts" — additive over the
// bare in-memory set the spec requires).
type KeyDedupe struct {
	mu        sync.Mutex
	delivered map[string]struct{}
	snapshot  string
}

// NewKeyDedupe constructs a KeyDedupe. If snapshotPath is non-empty, prior
// delivered keys are loaded from it and every future delivery is appended.
func NewKeyDedupe(snapshotPath string) (*KeyDedupe, error) {
	d := &KeyDedupe{delivered: make(map[string]struct{}), snapshot: snapshotPath}
	if snapshotPath == "" {
		return d, nil
	}
	f, err := os.Open(snapshotPath)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relay: opening dedupe snapshot: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		d.delivered[scanner.Text()] = struct{}{}
	}
	return d, scanner.Err()
}

// IsReplay reports whether key has already been delivered.
func (d *KeyDedupe) IsReplay(key Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, seen := d.delivered[key.String()]
	return seen
}

// MarkDelivered records key as delivered, persisting it if a snapshot path
// is configured.
func (d *KeyDedupe) MarkDelivered(key Key) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered[key.String()] = struct{}{}
	if d.snapshot == "" {
		return nil
	}
	f, err := os.OpenFile(d.snapshot, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("relay: writing dedupe snapshot: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, key.String())
	return err
}

// NonceDedupe implements the legacy per-source-chain monotonic nonce
// scheme (spec §9 open question: "Legacy nonce-based dedupe coexists").
type NonceDedupe struct {
	mu        sync.Mutex
	lastNonce map[string]uint64
}

// NewNonceDedupe constructs an empty legacy nonce dedupe.
func NewNonceDedupe() *NonceDedupe {
	return &NonceDedupe{lastNonce: make(map[string]uint64)}
}

// IsReplayNonce reports whether nonce has already been consumed for
// sourceChainID (i.e. nonce <= last seen).
func (d *NonceDedupe) IsReplayNonce(sourceChainID string, nonce uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lastNonce[sourceChainID]
	return ok && nonce <= last
}

// MarkNonceConsumed advances last_nonce for sourceChainID, if nonce is
// greater than what is currently recorded.
func (d *NonceDedupe) MarkNonceConsumed(sourceChainID string, nonce uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if nonce > d.lastNonce[sourceChainID] {
		d.lastNonce[sourceChainID] = nonce
	}
}
