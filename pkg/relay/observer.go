package relay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Cursor is an opaque, adapter-defined position in a message source's feed.
type Cursor string

// MessageSource implements the relay pipeline's Observe stage (spec §4.5
// stage 1): pulling newly emitted GMP messages from a single source chain.
type MessageSource interface {
	SourceChainID() string
	Observe(ctx context.Context, cursor Cursor) ([]RelayJob, Cursor, error)
}

// MoveMessageSource polls a Move-style MessageSentEvent event handle,
// grounded on the same /v1/accounts/{addr}/events/{handle} shape as
// pkg/chain/move.Adapter.Poll.
type MoveMessageSource struct {
	ChainID     string
	RESTURL     string
	AccountAddr string
	EventHandle string
	MaxPerTick  int

	client *http.Client
}

// NewMoveMessageSource constructs a MessageSource over a Move-style
// MessageSentEvent handle.
func NewMoveMessageSource(chainID, restURL, accountAddr, eventHandle string) *MoveMessageSource {
	return &MoveMessageSource{
		ChainID: chainID, RESTURL: restURL, AccountAddr: accountAddr, EventHandle: eventHandle,
		MaxPerTick: 100, client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *MoveMessageSource) SourceChainID() string { return m.ChainID }

type rawMessageSentEvent struct {
	SequenceNumber string `json:"sequence_number"`
	Type           string `json:"type"`
	Data           struct {
		DstChainID  string `json:"dst_chain_id"`
		SourceAddr  string `json:"source_addr"`
		DstAddr     string `json:"dst_addr"`
		Payload     string `json:"payload"` // hex
		IntentID    string `json:"intent_id"`
		MsgType     string `json:"msg_type"`
		SourceNonce string `json:"source_nonce"`
	} `json:"data"`
}

// Observe fetches up to MaxPerTick new MessageSent events from cursor.
func (m *MoveMessageSource) Observe(ctx context.Context, cursor Cursor) ([]RelayJob, Cursor, error) {
	start := "0"
	if cursor != "" {
		start = string(cursor)
	}
	url := fmt.Sprintf("%s/v1/accounts/%s/events/%s?start=%s&limit=%d",
		strings.TrimRight(m.RESTURL, "/"), strings.TrimPrefix(m.AccountAddr, "0x"), m.EventHandle, start, m.MaxPerTick)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, cursor, fmt.Errorf("relay: building observe request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, cursor, fmt.Errorf("relay: observe rpc error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, cursor, fmt.Errorf("relay: observe rpc status %d", resp.StatusCode)
	}

	var raw []rawMessageSentEvent
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, cursor, fmt.Errorf("relay: decoding message events: %w", err)
	}

	var jobs []RelayJob
	lastSeq := start
	for _, re := range raw {
		lastSeq = re.SequenceNumber
		if !strings.Contains(re.Type, "MessageSentEvent") {
			continue
		}
		job, err := m.parseJob(re)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}

	newCursor := cursor
	if n, err := strconv.ParseUint(lastSeq, 10, 64); err == nil && len(raw) > 0 {
		newCursor = Cursor(strconv.FormatUint(n+1, 10))
	}
	return jobs, newCursor, nil
}

func (m *MoveMessageSource) parseJob(re rawMessageSentEvent) (RelayJob, error) {
	var job RelayJob
	job.SourceChainID = m.ChainID
	job.DstChainID = re.Data.DstChainID

	if err := fill32(re.Data.SourceAddr, job.SourceAddr[:]); err != nil {
		return job, err
	}
	if err := fill32(re.Data.DstAddr, job.DstAddr[:]); err != nil {
		return job, err
	}
	if err := fill32(re.Data.IntentID, job.IntentID[:]); err != nil {
		return job, err
	}

	payload, err := hex.DecodeString(strings.TrimPrefix(re.Data.Payload, "0x"))
	if err != nil {
		return job, fmt.Errorf("relay: decoding payload hex: %w", err)
	}
	job.Payload = payload

	msgType, err := strconv.ParseUint(strings.TrimPrefix(re.Data.MsgType, "0x"), 16, 8)
	if err != nil {
		return job, fmt.Errorf("relay: decoding msg_type: %w", err)
	}
	job.MsgType = MsgType(msgType)

	nonce, err := strconv.ParseUint(re.Data.SourceNonce, 10, 64)
	if err != nil {
		return job, fmt.Errorf("relay: decoding source_nonce: %w", err)
	}
	job.SourceNonce = nonce

	return job, nil
}

func fill32(hexStr string, out []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexStr, "0x"))
	if err != nil {
		return fmt.Errorf("relay: decoding 32-byte hex %q: %w", hexStr, err)
	}
	if len(raw) > 32 {
		return fmt.Errorf("relay: hex value %q exceeds 32 bytes", hexStr)
	}
	copy(out[32-len(raw):], raw)
	return nil
}
