// Package evm implements the EVM chain adapter (spec §4.1, §6, §8 scenario
// 6): eth_getLogs polling plus ABI-packed calldata extraction for the
// extended ERC20 transfer-with-intent_id pattern.
//
// Grounded on the teacher's pkg/ethereum/client.go (ethclient dial, ABI
// pack/unpack conventions) and pkg/chain/strategy/evm_observer.go (ticker-
// based polling structure, confirmation waiting) — the only non-stub chain
// strategy in the teacher.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/independant-validator/pkg/address"
	"github.com/certen/independant-validator/pkg/chain"
	"github.com/certen/independant-validator/pkg/events"
)

// ERC20TransferWithIntentSelector is the 4-byte selector of the calldata
// used for outflow fulfillments, per spec §4.1/§8 scenario 6: the standard
// ERC20 transfer(address,uint256) selector (0xa9059cbb), with a 32-byte
// trailing intent_id appended to the calldata.
var ERC20TransferWithIntentSelector = [4]byte{0xa9, 0x05, 0x9c, 0xbb}

// Config configures a single EVM chain's log-polling target.
type Config struct {
	ChainID         string
	RPCURL          string
	ContractAddress string
	Topic0          string // keccak256("MessageSent(...)") or similar
	DialTimeout     time.Duration
}

// Adapter polls eth_getLogs for a single contract/topic0 pair.
type Adapter struct {
	cfg    Config
	client *ethclient.Client
}

// New dials the configured RPC endpoint and returns an Adapter.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCURL, err)
	}
	return &Adapter{cfg: cfg, client: client}, nil
}

// ChainID implements chain.Adapter.
func (a *Adapter) ChainID() string { return a.cfg.ChainID }

// Poll implements chain.Adapter: cursor is an opaque decimal block number;
// fetches logs in [cursor+1, latest], bounded to chain.MaxEventsPerTick.
func (a *Adapter) Poll(ctx context.Context, cursor chain.Cursor) (chain.PollResult, error) {
	latest, err := a.client.BlockNumber(ctx)
	if err != nil {
		return chain.PollResult{}, fmt.Errorf("evm: rpc error fetching block number: %w", err)
	}

	fromBlock := uint64(0)
	if cursor != "" {
		n, ok := new(big.Int).SetString(string(cursor), 10)
		if ok {
			fromBlock = n.Uint64() + 1
		}
	}
	if fromBlock > latest {
		return chain.PollResult{NewCursor: cursor}, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(latest),
		Addresses: []common.Address{common.HexToAddress(a.cfg.ContractAddress)},
	}
	if a.cfg.Topic0 != "" {
		query.Topics = [][]common.Hash{{common.HexToHash(a.cfg.Topic0)}}
	}

	logs, err := a.client.FilterLogs(ctx, query)
	if err != nil {
		return chain.PollResult{}, fmt.Errorf("evm: rpc error filtering logs: %w", err)
	}

	result := chain.PollResult{NewCursor: chain.Cursor(fmt.Sprintf("%d", latest))}
	newest := fromBlock
	count := 0
	for _, l := range logs {
		if count >= chain.MaxEventsPerTick {
			break
		}
		count++
		if l.BlockNumber > newest {
			newest = l.BlockNumber
		}

		tx, _, err := a.client.TransactionByHash(ctx, l.TxHash)
		if err != nil {
			continue // transient RPC error on a single event: log-equivalent, skip (spec §4.1)
		}
		receipt, err := a.client.TransactionReceipt(ctx, l.TxHash)
		if err != nil {
			continue
		}

		fulfillment, ok := a.tryExtractFulfillment(tx, receipt)
		if ok {
			result.Fulfillments = append(result.Fulfillments, fulfillment)
		}
	}

	return result, nil
}

// tryExtractFulfillment implements spec §4.1/§8 scenario 6: parses the
// extended ERC20 transfer calldata layout
// selector(4) || to(32, left-padded) || amount(32) || intent_id(32),
// verifying the padding bytes around `to` are zero.
func (a *Adapter) tryExtractFulfillment(tx *types.Transaction, receipt *types.Receipt) (events.FulfillmentEvent, bool) {
	data := tx.Data()
	const wantLen = 4 + 32 + 32 + 32
	if len(data) != wantLen {
		return events.FulfillmentEvent{}, false
	}
	if [4]byte(data[0:4]) != ERC20TransferWithIntentSelector {
		return events.FulfillmentEvent{}, false
	}

	toSlot := data[4:36]
	for i := 0; i < 12; i++ {
		if toSlot[i] != 0 {
			return events.FulfillmentEvent{}, false // INVALID_INPUT at the caller's discretion; treated as non-match here
		}
	}
	recipient := common.BytesToAddress(toSlot[12:32])

	amountSlot := data[36:68]
	amt := new(big.Int).SetBytes(amountSlot)
	if !amt.IsUint64() {
		return events.FulfillmentEvent{}, false
	}

	intentIDSlot := data[68:100]
	var intentID [32]byte
	copy(intentID[:], intentIDSlot)

	var recipientCanonical address.Canonical
	copy(recipientCanonical[12:], recipient.Bytes())

	var solverCanonical address.Canonical
	if from, err := senderFromReceipt(tx); err == nil {
		copy(solverCanonical[12:], from.Bytes())
	}

	var tokenCanonical address.Canonical
	if tx.To() != nil {
		copy(tokenCanonical[12:], tx.To().Bytes())
	}

	return events.FulfillmentEvent{
		IntentID:      intentID,
		SolverAddr:    solverCanonical,
		RecipientAddr: recipientCanonical,
		Amount:        amt.Uint64(),
		TokenMetadata: tokenHex(tokenCanonical),
		SourceTxHash:  tx.Hash().Hex(),
		ChainID:       a.cfg.ChainID,
		ChainType:     events.ChainEVM,
		Success:       receipt.Status == types.ReceiptStatusSuccessful,
		ObservedAt:    time.Now(),
	}, true
}

// FulfillmentFromTransaction implements spec §4.2.2's submitted-tx-hash
// path for outflow approval: fetches the transaction and its receipt by
// hash and extracts the fulfillment the same way Poll does for observed
// logs.
func (a *Adapter) FulfillmentFromTransaction(ctx context.Context, txHash string) (events.FulfillmentEvent, error) {
	hash := common.HexToHash(txHash)
	tx, _, err := a.client.TransactionByHash(ctx, hash)
	if err != nil {
		return events.FulfillmentEvent{}, fmt.Errorf("evm: fetching tx %s: %w", txHash, err)
	}
	receipt, err := a.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return events.FulfillmentEvent{}, fmt.Errorf("evm: fetching receipt for tx %s: %w", txHash, err)
	}
	fulfillment, ok := a.tryExtractFulfillment(tx, receipt)
	if !ok {
		return events.FulfillmentEvent{}, fmt.Errorf("evm: tx %s is not a recognised extended-transfer fulfillment", txHash)
	}
	return fulfillment, nil
}

func tokenHex(c address.Canonical) string {
	s, err := address.FormatEVM(c)
	if err != nil {
		return c.Hex()
	}
	return s
}

// senderFromReceipt recovers tx.from using the transaction's embedded
// signature (London signer), mirroring the teacher's approach of deriving
// addresses from signed payloads rather than trusting an unauthenticated
// field.
func senderFromReceipt(tx *types.Transaction) (common.Address, error) {
	signer := types.LatestSignerForChainID(tx.ChainId())
	return types.Sender(signer, tx)
}

var _ chain.Adapter = (*Adapter)(nil)
