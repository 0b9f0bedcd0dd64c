package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/independant-validator/pkg/relay"
)

// deliverMessageABI is the minimal ABI fragment for the GMP receiver's
// deliver_message entrypoint every destination program exposes.
const deliverMessageABI = `[{"name":"deliverMessage","type":"function","inputs":[{"name":"payload","type":"bytes"}]}]`

// Dispatcher submits a relay job's payload to each of its destination
// programs as a deliverMessage call, grounded on the teacher's
// pkg/ethereum/client.go SendContractTransactionWithRetry (fresh
// nonce/gas-price per attempt, 20%-per-retry gas escalation); retries
// themselves are owned by pkg/relay.Pipeline, so Dispatcher issues a single
// attempt per call.
type Dispatcher struct {
	client     ContractClient
	privateKey *ecdsa.PrivateKey
	chainID    *big.Int
	gasLimit   uint64
}

// ContractClient is the narrow ethclient surface Dispatch needs.
type ContractClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// NewDispatcher constructs an EVM relay dispatcher.
func NewDispatcher(client ContractClient, privateKey *ecdsa.PrivateKey, chainID *big.Int, gasLimit uint64) *Dispatcher {
	if gasLimit == 0 {
		gasLimit = 300000
	}
	return &Dispatcher{client: client, privateKey: privateKey, chainID: chainID, gasLimit: gasLimit}
}

var _ relay.Dispatcher = (*Dispatcher)(nil)

// Dispatch implements pkg/relay.Dispatcher: it submits one deliverMessage
// transaction per destination program.
func (d *Dispatcher) Dispatch(ctx context.Context, job relay.RelayJob, destinationPrograms []string) error {
	contractABI, err := abi.JSON(strings.NewReader(deliverMessageABI))
	if err != nil {
		return fmt.Errorf("evm dispatch: parsing abi: %w", err)
	}
	callData, err := contractABI.Pack("deliverMessage", job.Payload)
	if err != nil {
		return fmt.Errorf("evm dispatch: packing call data: %w", err)
	}

	fromAddress := crypto.PubkeyToAddress(d.privateKey.PublicKey)

	for _, program := range destinationPrograms {
		if !common.IsHexAddress(program) {
			return fmt.Errorf("evm dispatch: invalid destination program address %q", program)
		}
		to := common.HexToAddress(program)

		nonce, err := d.client.PendingNonceAt(ctx, fromAddress)
		if err != nil {
			return fmt.Errorf("evm dispatch: fetching nonce: %w", err)
		}
		gasPrice, err := d.client.SuggestGasPrice(ctx)
		if err != nil {
			return fmt.Errorf("evm dispatch: fetching gas price: %w", err)
		}

		tx := types.NewTransaction(nonce, to, big.NewInt(0), d.gasLimit, gasPrice, callData)
		signed, err := types.SignTx(tx, types.NewEIP155Signer(d.chainID), d.privateKey)
		if err != nil {
			return fmt.Errorf("evm dispatch: signing transaction: %w", err)
		}
		if err := d.client.SendTransaction(ctx, signed); err != nil {
			return fmt.Errorf("evm dispatch: sending to %s: %w", program, err)
		}
	}
	return nil
}
