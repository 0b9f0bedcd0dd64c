// Package signing derives the approver's three chain-family identities from
// a single 32-byte Ed25519 seed (spec §4.3) and produces idempotent
// approval signatures.
package signing

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"github.com/certen/independant-validator/pkg/address"
	"github.com/certen/independant-validator/pkg/apierr"
)

// ParseSeed decodes the config-file private_key value (spec §6: "base64 or
// ed25519-priv-0x<hex>") into the 32-byte seed DeriveIdentity expects.
func ParseSeed(s string) ([32]byte, error) {
	var seed [32]byte

	if hexPart, ok := strings.CutPrefix(s, "ed25519-priv-0x"); ok {
		raw, err := hex.DecodeString(hexPart)
		if err != nil {
			return seed, fmt.Errorf("signing: invalid ed25519-priv hex: %w", err)
		}
		if len(raw) != 32 {
			return seed, fmt.Errorf("signing: ed25519-priv seed must be 32 bytes, got %d", len(raw))
		}
		copy(seed[:], raw)
		return seed, nil
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return seed, fmt.Errorf("signing: private_key is neither ed25519-priv-0x<hex> nor valid base64: %w", err)
	}
	if len(raw) != 32 {
		return seed, fmt.Errorf("signing: base64 seed must decode to 32 bytes, got %d", len(raw))
	}
	copy(seed[:], raw)
	return seed, nil
}

// Scheme is a signature family.
type Scheme string

const (
	SchemeEd25519        Scheme = "ED25519"
	SchemeECDSASecp256k1 Scheme = "ECDSA_SECP256K1"
)

// Identity holds the three addresses and key material deterministically
// derived from one 32-byte seed.
type Identity struct {
	Seed [32]byte

	ed25519Priv ed25519.PrivateKey
	ed25519Pub  ed25519.PublicKey
	secp256k1   *btcec.PrivateKey

	MVMAddress address.Canonical
	EVMAddress address.Canonical
	SVMAddress address.Canonical
}

// DeriveIdentity builds the three identities from a 32-byte seed, grounded
// on the teacher's pkg/crypto/bls/key_manager.go seed-derivation pattern,
// but using real per-chain derivations rather than its EVM shortcut hash
// (see DESIGN.md).
func DeriveIdentity(seed [32]byte) (*Identity, error) {
	edPriv := ed25519.NewKeyFromSeed(seed[:])
	edPub := edPriv.Public().(ed25519.PublicKey)

	// MVM address: sha3_256(pubkey || 0x00).
	h := sha3.New256()
	h.Write(edPub)
	h.Write([]byte{0x00})
	var mvm address.Canonical
	copy(mvm[:], h.Sum(nil))

	// SVM address: base58 of the raw 32-byte Ed25519 public key — stored
	// canonically as those same 32 bytes.
	var svm address.Canonical
	copy(svm[:], edPub)

	// secp256k1 key from the same 32 bytes interpreted as a scalar.
	secpPriv := btcec.PrivKeyFromBytes(seed[:])
	if secpPriv == nil {
		return nil, fmt.Errorf("signing: seed is not a valid secp256k1 scalar")
	}
	uncompressed := secpPriv.PubKey().SerializeUncompressed()
	evmHash := gethcrypto.Keccak256(uncompressed[1:])
	var evm address.Canonical
	copy(evm[12:], evmHash[12:32])

	return &Identity{
		Seed:        seed,
		ed25519Priv: edPriv,
		ed25519Pub:  edPub,
		secp256k1:   secpPriv,
		MVMAddress:  mvm,
		EVMAddress:  evm,
		SVMAddress:  svm,
	}, nil
}

// ECDSAPrivateKey exposes the derived secp256k1 key in go-ethereum's
// *ecdsa.PrivateKey form, for chain adapters (e.g. pkg/chain/evm.Dispatcher)
// that sign raw EVM transactions rather than approval pre-images.
func (id *Identity) ECDSAPrivateKey() *ecdsa.PrivateKey {
	return id.secp256k1.ToECDSA()
}

// SignEd25519 signs msg with the derived Ed25519 key (64-byte signature).
func (id *Identity) SignEd25519(msg []byte) []byte {
	return ed25519.Sign(id.ed25519Priv, msg)
}

// SignSecp256k1 signs the 32-byte msg hash, returning a 65-byte recoverable
// signature (r||s||v), matching go-ethereum's convention.
func (id *Identity) SignSecp256k1(hash [32]byte) ([]byte, error) {
	sig, err := gethcrypto.Sign(hash[:], id.secp256k1.ToECDSA())
	if err != nil {
		return nil, fmt.Errorf("signing: secp256k1 sign: %w", err)
	}
	return sig, nil
}

// memoKey is the idempotence key per spec §4.3: (intent_id, destination
// chain_id, scheme).
type memoKey struct {
	intentID   [32]byte
	dstChainID string
	scheme     Scheme
}

// Approval is a cached, produced signature.
type Approval struct {
	Scheme    Scheme
	PublicKey []byte
	Signature []byte
	Hash      [32]byte
}

// Memo is the idempotent approval-signing service (spec §4.3
// "Idempotence"): for each (intent_id, destination_chain_id, scheme) it
// memoises the first produced signature and returns it on every later
// request over the same hash, guaranteeing retries are safe (spec §8
// invariant 2); a later request with a different hash gets CONFLICT.
type Memo struct {
	mu       sync.Mutex
	identity *Identity
	cache    map[memoKey]Approval
}

// NewMemo constructs an approval memo backed by the given identity.
func NewMemo(identity *Identity) *Memo {
	return &Memo{identity: identity, cache: make(map[memoKey]Approval)}
}

// SignEd25519Approval returns the memoised Ed25519 approval for
// (intentID, dstChainID), computing it over hash on first call.
func (m *Memo) SignEd25519Approval(intentID [32]byte, dstChainID string, hash [32]byte) (Approval, error) {
	return m.signOnce(memoKey{intentID, dstChainID, SchemeEd25519}, hash, func() (Approval, error) {
		sig := m.identity.SignEd25519(hash[:])
		return Approval{Scheme: SchemeEd25519, PublicKey: append([]byte(nil), m.identity.ed25519Pub...), Signature: sig, Hash: hash}, nil
	})
}

// SignSecp256k1Approval returns the memoised EVM approval for
// (intentID, dstChainID), computing it over hash on first call.
func (m *Memo) SignSecp256k1Approval(intentID [32]byte, dstChainID string, hash [32]byte) (Approval, error) {
	return m.signOnce(memoKey{intentID, dstChainID, SchemeECDSASecp256k1}, hash, func() (Approval, error) {
		sig, err := m.identity.SignSecp256k1(hash)
		if err != nil {
			return Approval{}, err
		}
		return Approval{Scheme: SchemeECDSASecp256k1, PublicKey: m.identity.secp256k1.PubKey().SerializeUncompressed(), Signature: sig, Hash: hash}, nil
	})
}

func (m *Memo) signOnce(key memoKey, hash [32]byte, produce func() (Approval, error)) (Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, ok := m.cache[key]; ok {
		if cached.Hash != hash {
			return Approval{}, apierr.New(apierr.Conflict, "approval already issued for %x/%s/%s with a different pre-image", key.intentID, key.dstChainID, key.scheme)
		}
		return cached, nil
	}

	approval, err := produce()
	if err != nil {
		return Approval{}, err
	}
	m.cache[key] = approval
	return approval, nil
}
