// Package draft implements the FCFS negotiation cache (spec §4.4): solvers
// claim in-flight intent drafts by being the first to post a valid
// signature.
package draft

import (
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/certen/independant-validator/pkg/apierr"
)

// Status is a draft's one-way lifecycle state.
type Status string

const (
	Pending Status = "PENDING"
	Signed  Status = "SIGNED"
	Expired Status = "EXPIRED"
)

// Intent is the negotiated payload carried by a draft.
type Intent struct {
	OfferedMetadata string
	OfferedAmount   uint64
	OfferedChainID  string
	DesiredMetadata string
	DesiredAmount   uint64
	DesiredChainID  string
	Expiry          uint64
	Hash            [32]byte // the pre-image the solver signature must cover
}

// Draft is a single negotiation record.
type Draft struct {
	mu sync.Mutex

	ID        uuid.UUID
	Intent    Intent
	Status    Status
	Signature []byte
	Solver    string
	CreatedAt time.Time
	SignedAt  *time.Time

	ttl time.Time
}

// Verifier checks a candidate signature against the draft's hash and
// returns the recovered/declared signer address on success.
type Verifier func(hash [32]byte, sig []byte) (signer string, ok bool, err error)

// Store is the process-wide draft cache.
type Store struct {
	mu     sync.RWMutex
	drafts map[uuid.UUID]*Draft
	ttl    time.Duration
	now    func() time.Time
}

// NewStore constructs a draft store with the given TTL for PENDING drafts.
func NewStore(ttl time.Duration) *Store {
	return &Store{drafts: make(map[uuid.UUID]*Draft), ttl: ttl, now: time.Now}
}

// Create inserts a new PENDING draft and returns its ID.
func (s *Store) Create(intent Intent) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	now := s.now()
	s.drafts[id] = &Draft{
		ID:        id,
		Intent:    intent,
		Status:    Pending,
		CreatedAt: now,
		ttl:       now.Add(s.ttl),
	}
	return id
}

// Get returns the draft, lazily expiring it if its TTL has passed.
func (s *Store) Get(id uuid.UUID) (*Draft, error) {
	s.mu.RLock()
	d, ok := s.drafts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apierr.New(apierr.NotFound, "no draft %s", id)
	}
	s.expireIfDue(d)
	return d, nil
}

// Pending returns all PENDING, unexpired drafts ordered by created_at
// ascending.
func (s *Store) Pending() []*Draft {
	s.mu.RLock()
	all := make([]*Draft, 0, len(s.drafts))
	for _, d := range s.drafts {
		all = append(all, d)
	}
	s.mu.RUnlock()

	out := make([]*Draft, 0, len(all))
	for _, d := range all {
		s.expireIfDue(d)
		d.mu.Lock()
		if d.Status == Pending {
			out = append(out, d)
		}
		d.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) expireIfDue(d *Draft) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Status == Pending && s.now().After(d.ttl) {
		d.Status = Expired
	}
}

// checkSignatureFormat implements the pre-check of spec §4.4: length,
// canonical hex, and (for EVM) a valid recovery byte, before any
// cryptographic verification is attempted.
func checkSignatureFormat(scheme string, sig []byte) error {
	switch scheme {
	case "ED25519":
		if len(sig) != 64 {
			return apierr.New(apierr.InvalidInput, "ed25519 signature must be 64 bytes, got %d", len(sig))
		}
	case "ECDSA_SECP256K1":
		if len(sig) != 65 {
			return apierr.New(apierr.InvalidInput, "evm signature must be 65 bytes, got %d", len(sig))
		}
		v := sig[64]
		if v != 0 && v != 1 && v != 27 && v != 28 {
			return apierr.New(apierr.InvalidInput, "evm recovery byte %d not in {0,1,27,28}", v)
		}
	default:
		return apierr.New(apierr.InvalidInput, "unknown signature scheme %q", scheme)
	}
	return nil
}

// ValidHex is a convenience check used by HTTP decoding before bytes ever
// reach checkSignatureFormat.
func ValidHex(s string) ([]byte, error) {
	raw, err := hex.DecodeString(stripHexPrefix(s))
	if err != nil {
		return nil, apierr.Wrap(apierr.InvalidInput, err, "signature is not canonical hex")
	}
	return raw, nil
}

func stripHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// SubmitSignature performs the FCFS PENDING -> SIGNED transition. Exactly
// one concurrent submission wins; all others receive CONFLICT.
func (s *Store) SubmitSignature(id uuid.UUID, scheme string, sig []byte, signer string, verify Verifier) error {
	d, err := s.Get(id)
	if err != nil {
		return err
	}

	if err := checkSignatureFormat(scheme, sig); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Status != Pending {
		return apierr.New(apierr.Conflict, "draft %s is not PENDING (status=%s)", id, d.Status)
	}

	recovered, ok, err := verify(d.Intent.Hash, sig)
	if err != nil {
		return apierr.Wrap(apierr.RPCError, err, "signature verification failed")
	}
	if !ok {
		return apierr.New(apierr.InvalidInput, "signature does not verify against draft hash")
	}
	if signer != "" && recovered != signer {
		return apierr.New(apierr.Mismatch, "recovered signer %s does not match claimed signer %s", recovered, signer)
	}

	now := s.now()
	d.Status = Signed
	d.Signature = sig
	d.Solver = recovered
	d.SignedAt = &now
	return nil
}
