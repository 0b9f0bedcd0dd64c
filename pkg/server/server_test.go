package server

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"github.com/certen/independant-validator/pkg/apierr"
	"github.com/certen/independant-validator/pkg/draft"
	"github.com/certen/independant-validator/pkg/events"
	"github.com/certen/independant-validator/pkg/signing"
	"github.com/certen/independant-validator/pkg/validate"
)

// fakeApprover stubs the Approver surface so handler tests can exercise
// /approve/outflow without a real registry or signing identity.
type fakeApprover struct {
	intent events.IntentEvent
}

func (a *fakeApprover) Evaluate(ctx context.Context, intentID [32]byte, dir validate.Direction) (*validate.Result, error) {
	return &validate.Result{Safe: true, Intent: a.intent}, nil
}

func (a *fakeApprover) IntentHash(intent events.IntentEvent, dir validate.Direction) [32]byte {
	return [32]byte{0x01}
}

func (a *fakeApprover) SignInflow(intentID [32]byte, dstChainID string, hash [32]byte) (signing.Approval, error) {
	return signing.Approval{Scheme: signing.SchemeEd25519, Hash: hash}, nil
}

func (a *fakeApprover) SignOutflow(intentID [32]byte, dstChainID string, hash [32]byte) (signing.Approval, error) {
	return signing.Approval{Scheme: signing.SchemeEd25519, Hash: hash}, nil
}

// fakeExtractor stubs FulfillmentExtractor with a canned event, standing in
// for a real pkg/chain/evm or pkg/chain/svm adapter RPC round-trip.
type fakeExtractor struct {
	event events.FulfillmentEvent
	err   error
}

func (e *fakeExtractor) FulfillmentFromTransaction(ctx context.Context, txHash string) (events.FulfillmentEvent, error) {
	return e.event, e.err
}

func TestHealthEndpoint(t *testing.T) {
	h := New(events.NewCache(), draft.NewStore(time.Minute), nil, time.Second, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ApiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
}

func TestCreateDraftAndSubmitSignature(t *testing.T) {
	h := New(events.NewCache(), draft.NewStore(time.Minute), nil, time.Second, nil)

	createBody := `{"offered_metadata":"USDC","offered_amount":100,"offered_chain_id":"hub","desired_metadata":"USDC","desired_amount":100,"desired_chain_id":"evm-1","expiry":9999999999,"hash":"0xaa"}`
	req := httptest.NewRequest(http.MethodPost, "/drafts", strings.NewReader(createBody))
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var created ApiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.True(t, created.Success)
	data := created.Data.(map[string]interface{})
	draftID := data["draft_id"].(string)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	var hash [32]byte
	hash[31] = 0xaa // "0xaa" zero-padded to 32 bytes, matching the draft's create request
	sig := ed25519.Sign(priv, hash[:])

	subBody := `{"scheme":"ED25519","signature":"0x` + hex.EncodeToString(sig) + `","signer":"` + base58.Encode(pub) + `"}`
	req2 := httptest.NewRequest(http.MethodPost, "/drafts/"+draftID+"/signature", strings.NewReader(subBody))
	w2 := httptest.NewRecorder()
	h.Mux().ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)
}

func TestApproveOutflowExtractsAndCachesFulfillment(t *testing.T) {
	cache := events.NewCache()
	approver := &fakeApprover{}
	h := New(cache, draft.NewStore(time.Minute), approver, time.Second, nil)
	h.Extractors = map[string]FulfillmentExtractor{
		"evm-1": &fakeExtractor{event: events.FulfillmentEvent{
			ChainID:      "evm-1",
			SourceTxHash: "0xdead",
			Success:      true,
		}},
	}

	body := `{"intent_id":"0x0000000000000000000000000000000000000000000000000000000000000001","dst_chain_id":"evm-1","tx_hash":"0xdead"}`
	req := httptest.NewRequest(http.MethodPost, "/approve/outflow", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, cache.Fulfillments("evm-1"), 1)
}

func TestApproveOutflowRequiresTxHash(t *testing.T) {
	h := New(events.NewCache(), draft.NewStore(time.Minute), &fakeApprover{}, time.Second, nil)

	body := `{"intent_id":"0x0000000000000000000000000000000000000000000000000000000000000001","dst_chain_id":"evm-1","tx_hash":""}`
	req := httptest.NewRequest(http.MethodPost, "/approve/outflow", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.Equal(t, apierr.InvalidInput, resp.Error.Kind)
}

func TestApproveOutflowRejectsUnknownChain(t *testing.T) {
	h := New(events.NewCache(), draft.NewStore(time.Minute), &fakeApprover{}, time.Second, nil)

	body := `{"intent_id":"0x0000000000000000000000000000000000000000000000000000000000000001","dst_chain_id":"unconfigured-chain","tx_hash":"0xdead"}`
	req := httptest.NewRequest(http.MethodPost, "/approve/outflow", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.Equal(t, apierr.InvalidInput, resp.Error.Kind)
}

func TestDraftSignatureRejectsMalformedDraftID(t *testing.T) {
	h := New(events.NewCache(), draft.NewStore(time.Minute), nil, time.Second, nil)
	req := httptest.NewRequest(http.MethodPost, "/drafts/not-a-uuid/signature", nil)
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)
	require.NotEqual(t, http.StatusOK, w.Code)
}
