package server

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/certen/independant-validator/pkg/address"
	"github.com/certen/independant-validator/pkg/apierr"
	"github.com/certen/independant-validator/pkg/draft"
	"github.com/certen/independant-validator/pkg/events"
	"github.com/certen/independant-validator/pkg/signing"
	"github.com/certen/independant-validator/pkg/validate"
)

// Approver is the subset of approval-issuing behaviour the HTTP surface
// needs: evaluate SAFE for a direction and, if safe, produce the memoised
// signature over the destination's canonical intent hash.
type Approver interface {
	Evaluate(ctx context.Context, intentID [32]byte, dir validate.Direction) (*validate.Result, error)
	IntentHash(intent events.IntentEvent, dir validate.Direction) [32]byte
	SignInflow(intentID [32]byte, dstChainID string, hash [32]byte) (signing.Approval, error)
	SignOutflow(intentID [32]byte, dstChainID string, hash [32]byte) (signing.Approval, error)
}

// FulfillmentExtractor extracts a FulfillmentTransactionParams-equivalent
// events.FulfillmentEvent (spec §4.2.2) from a single connected-chain
// transaction hash. pkg/chain/evm.Adapter and pkg/chain/svm.Adapter both
// implement this.
type FulfillmentExtractor interface {
	FulfillmentFromTransaction(ctx context.Context, txHash string) (events.FulfillmentEvent, error)
}

// Handlers implements every endpoint in spec §4.6 over the uniform
// ApiResponse envelope, grounded on the teacher's
// pkg/server/attestation_handlers.go handler shape.
type Handlers struct {
	Cache             *events.Cache
	Drafts            *draft.Store
	Approver          Approver
	ValidationTimeout time.Duration
	Logger            *log.Logger

	// Extractors maps a connected chain_id to the adapter that can pull a
	// fulfillment out of one of its transaction hashes, for /approve/outflow
	// (spec §4.2.2). Populated by the owning daemon's main package; nil or
	// missing entries are reported as INVALID_INPUT, not a panic.
	Extractors map[string]FulfillmentExtractor
}

// New constructs the HTTP handler set.
func New(cache *events.Cache, drafts *draft.Store, approver Approver, validationTimeout time.Duration, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[API] ", log.LstdFlags)
	}
	return &Handlers{Cache: cache, Drafts: drafts, Approver: approver, ValidationTimeout: validationTimeout, Logger: logger}
}

// Mux builds the *http.ServeMux routing table for spec §4.6's endpoints.
func (h *Handlers) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/events/intents", h.handleIntents)
	mux.HandleFunc("/events/escrows", h.handleEscrows)
	mux.HandleFunc("/events/fulfillments", h.handleFulfillments)
	mux.HandleFunc("/drafts", h.handleCreateDraft)
	mux.HandleFunc("/drafts/pending", h.handlePendingDrafts)
	mux.HandleFunc("/drafts/", h.handleDraftSignature) // /drafts/{id}/signature
	mux.HandleFunc("/approve/inflow/", h.handleApproveInflow)
	mux.HandleFunc("/approve/outflow", h.handleApproveOutflow)
	mux.HandleFunc("/health", h.handleHealth)
	return mux
}

func (h *Handlers) handleIntents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, apierr.New(apierr.InvalidInput, "method %s not allowed on /events/intents", r.Method))
		return
	}
	writeOK(w, h.Cache.Intents(r.URL.Query().Get("chain_id")))
}

func (h *Handlers) handleEscrows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, apierr.New(apierr.InvalidInput, "method %s not allowed on /events/escrows", r.Method))
		return
	}
	writeOK(w, h.Cache.Escrows(r.URL.Query().Get("chain_id")))
}

func (h *Handlers) handleFulfillments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, apierr.New(apierr.InvalidInput, "method %s not allowed on /events/fulfillments", r.Method))
		return
	}
	writeOK(w, h.Cache.Fulfillments(r.URL.Query().Get("chain_id")))
}

type createDraftRequest struct {
	OfferedMetadata string `json:"offered_metadata"`
	OfferedAmount   uint64 `json:"offered_amount"`
	OfferedChainID  string `json:"offered_chain_id"`
	DesiredMetadata string `json:"desired_metadata"`
	DesiredAmount   uint64 `json:"desired_amount"`
	DesiredChainID  string `json:"desired_chain_id"`
	Expiry          uint64 `json:"expiry"`
	Hash            string `json:"hash"` // 0x-hex, 32 bytes: the pre-image solvers must sign
}

func (h *Handlers) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, apierr.New(apierr.InvalidInput, "method %s not allowed on /drafts", r.Method))
		return
	}

	var req createDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apierr.Wrap(apierr.InvalidInput, err, "malformed draft request body"))
		return
	}

	hash, err := decodeHash32(req.Hash)
	if err != nil {
		writeErr(w, err)
		return
	}

	id := h.Drafts.Create(draft.Intent{
		OfferedMetadata: req.OfferedMetadata,
		OfferedAmount:   req.OfferedAmount,
		OfferedChainID:  req.OfferedChainID,
		DesiredMetadata: req.DesiredMetadata,
		DesiredAmount:   req.DesiredAmount,
		DesiredChainID:  req.DesiredChainID,
		Expiry:          req.Expiry,
		Hash:            hash,
	})
	writeOK(w, map[string]string{"draft_id": id.String()})
}

func (h *Handlers) handlePendingDrafts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, apierr.New(apierr.InvalidInput, "method %s not allowed on /drafts/pending", r.Method))
		return
	}
	writeOK(w, h.Drafts.Pending())
}

type submitSignatureRequest struct {
	Scheme    string `json:"scheme"`
	Signature string `json:"signature"`
	Signer    string `json:"signer"`
}

// handleDraftSignature serves POST /drafts/{id}/signature. *http.ServeMux's
// prefix routing means any other /drafts/{id}/... suffix also lands here;
// it is rejected with NOT_FOUND.
func (h *Handlers) handleDraftSignature(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/drafts/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "signature" {
		writeErr(w, apierr.New(apierr.NotFound, "no route for %s", r.URL.Path))
		return
	}
	if r.Method != http.MethodPost {
		writeErr(w, apierr.New(apierr.InvalidInput, "method %s not allowed on draft signature submission", r.Method))
		return
	}

	id, err := uuid.Parse(parts[0])
	if err != nil {
		writeErr(w, apierr.Wrap(apierr.InvalidInput, err, "invalid draft id %q", parts[0]))
		return
	}

	var req submitSignatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apierr.Wrap(apierr.InvalidInput, err, "malformed signature request body"))
		return
	}

	sig, err := draft.ValidHex(req.Signature)
	if err != nil {
		writeErr(w, err)
		return
	}

	if err := h.Drafts.SubmitSignature(id, req.Scheme, sig, req.Signer, recoverSigner(req.Scheme, req.Signer)); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]string{"status": string(draft.Signed)})
}

// recoverSigner builds a draft.Verifier for the declared scheme (spec §4.4:
// "Cryptographic verification against the draft hash happens next; only a
// full success completes the transition"). ECDSA_SECP256K1 signatures are
// recoverable, so the signer address is derived purely from (hash, sig).
// Ed25519 signatures are not recoverable, so the claimed signer is decoded
// as the raw SVM-style public key and used to verify the signature itself —
// a forged claim with no matching private key fails verification here.
func recoverSigner(scheme, claimedSigner string) draft.Verifier {
	return func(hash [32]byte, sig []byte) (string, bool, error) {
		switch scheme {
		case "ED25519":
			pub, err := address.ParseSVM(claimedSigner)
			if err != nil {
				return "", false, apierr.Wrap(apierr.InvalidInput, err, "ed25519 signer must be a valid base58 public key")
			}
			if !ed25519.Verify(ed25519.PublicKey(pub[:]), hash[:], sig) {
				return "", false, nil
			}
			return address.FormatSVM(pub), true, nil

		case "ECDSA_SECP256K1":
			v := sig[64]
			if v >= 27 {
				v -= 27
			}
			normalized := append(append([]byte(nil), sig[:64]...), v)
			pub, err := gethcrypto.SigToPub(hash[:], normalized)
			if err != nil {
				return "", false, nil
			}
			recovered := gethcrypto.PubkeyToAddress(*pub)
			canonical, err := address.ParseEVM(recovered.Hex())
			if err != nil {
				return "", false, err
			}
			formatted, err := address.FormatEVM(canonical)
			if err != nil {
				return "", false, err
			}
			return formatted, true, nil

		default:
			return "", false, apierr.New(apierr.InvalidInput, "unknown signature scheme %q", scheme)
		}
	}
}

func (h *Handlers) handleApproveInflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, apierr.New(apierr.InvalidInput, "method %s not allowed on /approve/inflow", r.Method))
		return
	}
	idHex := strings.TrimPrefix(r.URL.Path, "/approve/inflow/")
	intentID, err := decodeHash32(idHex)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.withTimeout(w, r, func(ctx context.Context) (interface{}, error) {
		return h.approve(ctx, intentID, validate.Inflow, r.URL.Query().Get("dst_chain_id"))
	})
}

type approveOutflowRequest struct {
	IntentIDHex string `json:"intent_id"`
	DstChainID  string `json:"dst_chain_id"`
	TxHash      string `json:"tx_hash"`
}

func (h *Handlers) handleApproveOutflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, apierr.New(apierr.InvalidInput, "method %s not allowed on /approve/outflow", r.Method))
		return
	}
	var req approveOutflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apierr.Wrap(apierr.InvalidInput, err, "malformed outflow approval request"))
		return
	}
	intentID, err := decodeHash32(req.IntentIDHex)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.withTimeout(w, r, func(ctx context.Context) (interface{}, error) {
		if h.Approver == nil {
			return nil, apierr.New(apierr.NotFound, "approval surface is not enabled on this daemon")
		}
		if err := h.extractAndCacheFulfillment(ctx, req.DstChainID, req.TxHash); err != nil {
			return nil, err
		}
		return h.approve(ctx, intentID, validate.Outflow, req.DstChainID)
	})
}

// extractAndCacheFulfillment implements spec §4.2.2's submitted-tx-hash
// path: the connected-chain adapter for dstChainID parses
// FulfillmentTransactionParams out of txHash, and the result is inserted
// into the shared cache so checkFulfillment (pkg/validate) sees it
// alongside anything the poller already observed independently.
func (h *Handlers) extractAndCacheFulfillment(ctx context.Context, dstChainID, txHash string) error {
	if txHash == "" {
		return apierr.New(apierr.InvalidInput, "tx_hash is required for outflow approval")
	}
	extractor, ok := h.Extractors[dstChainID]
	if !ok {
		return apierr.New(apierr.InvalidInput, "no chain adapter configured for dst_chain_id %q", dstChainID)
	}
	fulfillment, err := extractor.FulfillmentFromTransaction(ctx, txHash)
	if err != nil {
		return apierr.Wrap(apierr.RPCError, err, "extracting fulfillment from tx %s", txHash)
	}
	h.Cache.InsertFulfillment(fulfillment)
	return nil
}

func (h *Handlers) approve(ctx context.Context, intentID [32]byte, dir validate.Direction, dstChainID string) (interface{}, error) {
	if h.Approver == nil {
		return nil, apierr.New(apierr.NotFound, "approval surface is not enabled on this daemon")
	}
	result, err := h.Approver.Evaluate(ctx, intentID, dir)
	if err != nil {
		return nil, err
	}

	hash := h.Approver.IntentHash(result.Intent, dir)

	var approval signing.Approval
	if dir == validate.Inflow {
		approval, err = h.Approver.SignInflow(intentID, dstChainID, hash)
	} else {
		approval, err = h.Approver.SignOutflow(intentID, dstChainID, hash)
	}
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"scheme":    string(approval.Scheme),
		"signature": "0x" + hex.EncodeToString(approval.Signature),
		"hash":      "0x" + hex.EncodeToString(approval.Hash[:]),
	}, nil
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

// withTimeout enforces validation_timeout_ms (spec §4.6: "long validations
// resolve within the configured validation_timeout_ms and otherwise return
// TIMEOUT").
func (h *Handlers) withTimeout(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) (interface{}, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.ValidationTimeout)
	defer cancel()

	type outcome struct {
		data interface{}
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := fn(ctx)
		done <- outcome{data, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			writeErr(w, o.err)
			return
		}
		writeOK(w, o.data)
	case <-ctx.Done():
		writeErr(w, apierr.New(apierr.Timeout, "validation exceeded configured timeout"))
	}
}

func decodeHash32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := address.ParseMVM(s)
	if err != nil {
		return out, apierr.Wrap(apierr.InvalidInput, err, "invalid 32-byte hex %q", s)
	}
	return [32]byte(raw), nil
}
