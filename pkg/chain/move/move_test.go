package move

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/independant-validator/pkg/chain"
)

const eventsFixture = `[
	{"sequence_number":"5","type":"0x1::intent::IntentCreatedEvent","data":{
		"intent_id":"0x01",
		"issuer":"0x02",
		"offered_metadata":"USDC",
		"offered_amount":"1000",
		"offered_chain_id":"hub-1",
		"desired_metadata":"USDT",
		"desired_amount":"2000",
		"desired_chain_id":"evm-1",
		"expiry_time":"2000000",
		"revocable":false,
		"reserved_solver_hub":{"vec":["0x03"]},
		"reserved_solver_connected":{"vec":[]},
		"requester_addr_connected_chain":{"vec":[]}
	}},
	{"sequence_number":"6","type":"0x1::escrow::OracleLimitOrderEvent","data":{
		"intent_addr":"esc-1",
		"intent_id":"0x01",
		"offered_metadata":"USDT",
		"offered_amount":"2000",
		"desired_metadata":"USDC",
		"desired_amount":"1000",
		"revocable":false,
		"requester_addr":"0x02",
		"reserved_solver":"0x03",
		"expiry_time":"2000000"
	}},
	{"sequence_number":"7","type":"0x1::other::SomeUnrelatedEvent","data":{}}
]`

func TestPollParsesIntentAndEscrowSkipsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(eventsFixture))
	}))
	defer srv.Close()

	a := New(Config{
		ChainID:     "hub-1",
		RESTURL:     srv.URL,
		AccountAddr: "0x1",
		EventHandle: "0x1::intent::IntentEvents/intent_events",
	})

	res, err := a.Poll(context.Background(), chain.Cursor(""))
	require.NoError(t, err)
	require.Len(t, res.Intents, 1)
	require.Len(t, res.Escrows, 1)
	require.Equal(t, chain.Cursor("8"), res.NewCursor)

	intent := res.Intents[0]
	require.Equal(t, uint64(1000), intent.OfferedAmount)
	require.Equal(t, uint64(2000), intent.DesiredAmount)
	require.NotNil(t, intent.ReservedSolverHub)
	require.Nil(t, intent.ReservedSolverConnected)

	escrow := res.Escrows[0]
	require.Equal(t, "USDT", escrow.OfferedMetadata)
	require.Equal(t, uint64(2000), escrow.OfferedAmount)
	require.NotNil(t, escrow.ReservedSolver)
}

func TestPollPropagatesTransientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := New(Config{ChainID: "hub-1", RESTURL: srv.URL, AccountAddr: "0x1", EventHandle: "handle"})
	_, err := a.Poll(context.Background(), chain.Cursor(""))
	require.Error(t, err)
}

func TestChainID(t *testing.T) {
	a := New(Config{ChainID: "hub-1", RESTURL: "http://unused", AccountAddr: "0x1", EventHandle: "handle"})
	require.Equal(t, "hub-1", a.ChainID())
}
