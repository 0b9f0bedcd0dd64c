// Package approval binds the validation engine to the signing memo: it
// evaluates SAFE for a direction and, only if safe, computes the
// destination chain's canonical intent hash and issues the memoised
// approval signature over it (spec §4.2, §4.3).
package approval

import (
	"context"
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"github.com/certen/independant-validator/pkg/events"
	"github.com/certen/independant-validator/pkg/signing"
	"github.com/certen/independant-validator/pkg/validate"
)

// Service implements pkg/server.Approver.
type Service struct {
	Engine *validate.Engine
	Memo   *signing.Memo
}

// New constructs an approval service.
func New(engine *validate.Engine, memo *signing.Memo) *Service {
	return &Service{Engine: engine, Memo: memo}
}

// Evaluate runs SAFE(intent, observation) for the given direction.
func (s *Service) Evaluate(ctx context.Context, intentID [32]byte, dir validate.Direction) (*validate.Result, error) {
	return s.Engine.Evaluate(ctx, intentID, dir)
}

// IntentHash derives the destination chain's canonical intent hash: the
// pre-image every approval signature covers. It folds in the direction and
// both legs so an inflow and outflow approval for the same intent can never
// collide, and is a pure function of already-validated intent fields so
// repeated calls for the same (intent, direction) always hash identically
// (spec §8 invariant 2).
func (s *Service) IntentHash(intent events.IntentEvent, dir validate.Direction) [32]byte {
	h := sha3.New256()
	h.Write(intent.IntentID[:])
	h.Write([]byte(dir))
	h.Write([]byte(intent.OfferedMetadata))
	h.Write(u64Bytes(intent.OfferedAmount))
	h.Write([]byte(intent.OfferedChainID))
	h.Write([]byte(intent.DesiredMetadata))
	h.Write(u64Bytes(intent.DesiredAmount))
	h.Write([]byte(intent.DesiredChainID))
	h.Write(u64Bytes(intent.Expiry))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SignInflow issues (or returns the memoised) Ed25519 approval for an
// inflow release on dstChainID.
func (s *Service) SignInflow(intentID [32]byte, dstChainID string, hash [32]byte) (signing.Approval, error) {
	return s.Memo.SignEd25519Approval(intentID, dstChainID, hash)
}

// SignOutflow issues (or returns the memoised) secp256k1 approval for an
// outflow release on dstChainID.
func (s *Service) SignOutflow(intentID [32]byte, dstChainID string, hash [32]byte) (signing.Approval, error) {
	return s.Memo.SignSecp256k1Approval(intentID, dstChainID, hash)
}

func u64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
