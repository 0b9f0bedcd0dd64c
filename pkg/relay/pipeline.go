package relay

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/certen/independant-validator/pkg/apierr"
)

// TerminalState is the final disposition of a RelayJob.
type TerminalState string

const (
	Delivered        TerminalState = "DELIVERED"
	DroppedDuplicate TerminalState = "DROPPED_DUPLICATE"
	DroppedUntrusted TerminalState = "DROPPED_UNTRUSTED"
)

// RelayJob is a single observed cross-chain message awaiting delivery.
type RelayJob struct {
	SourceChainID string
	DstChainID    string
	SourceAddr    [32]byte
	DstAddr       [32]byte
	Payload       []byte
	IntentID      [32]byte
	MsgType       MsgType
	SourceNonce   uint64

	Attempt int
	State   TerminalState
}

// TrustedRemote is one (source chain, sender address) pair authorised to
// send messages to a given destination.
type TrustedRemote struct {
	SourceChainID string
	SenderAddr    [32]byte
}

// Dispatcher builds and submits the destination-chain transaction that
// invokes deliver_message / lz_receive. Implementations are chain-family
// specific; this module carries only the EVM one (pkg/chain/evm.Dispatcher).
type Dispatcher interface {
	Dispatch(ctx context.Context, job RelayJob, destinationPrograms []string) error
}

// Router resolves which destination program references a message type
// fans out to (spec §4.5 stage 4: IntentRequirements fans out to both the
// outflow-validator and the inflow-escrow program).
func Router(msgType MsgType, outflowValidator, inflowEscrow, defaultProgram string) []string {
	if msgType == MsgIntentRequirements {
		return []string{outflowValidator, inflowEscrow}
	}
	return []string{defaultProgram}
}

// DeadLetter records jobs that exhausted their retry budget.
type DeadLetter struct {
	mu   sync.Mutex
	jobs []RelayJob
}

// Record appends job to the dead-letter table.
func (dl *DeadLetter) Record(job RelayJob) {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	dl.jobs = append(dl.jobs, job)
}

// Jobs returns a snapshot of the dead-letter table.
func (dl *DeadLetter) Jobs() []RelayJob {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	out := make([]RelayJob, len(dl.jobs))
	copy(out, dl.jobs)
	return out
}

// TrustTable maps a destination chain to the source (chain, sender) pairs
// trusted to message it.
type TrustTable map[string][]TrustedRemote

func (t TrustTable) isTrusted(dstChainID, sourceChainID string, sender [32]byte) bool {
	for _, r := range t[dstChainID] {
		if r.SourceChainID == sourceChainID && r.SenderAddr == sender {
			return true
		}
	}
	return false
}

// PipelineConfig parameterises the Classify/Dispatch/Confirm stages.
type PipelineConfig struct {
	Trust             TrustTable
	Dedupe            Dedupe
	LegacyNonceDedupe *NonceDedupe
	MaxAttempts       int
	BaseBackoff       time.Duration
	DeadLetter        *DeadLetter
	Logger            *log.Logger
}

// Pipeline runs the Classify -> Dispatch -> Route -> Confirm stages for
// jobs produced by an Observe-stage MessageSource (see observer.go).
type Pipeline struct {
	cfg        PipelineConfig
	dispatcher Dispatcher
	programs   map[MsgType][]string
	legacyDst  map[string]bool // destination chain IDs using legacy nonce dedupe
}

// NewPipeline constructs a relay pipeline.
func NewPipeline(cfg PipelineConfig, dispatcher Dispatcher, legacyDst map[string]bool) *Pipeline {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Relay] ", log.LstdFlags)
	}
	return &Pipeline{cfg: cfg, dispatcher: dispatcher, legacyDst: legacyDst}
}

// Classify implements stage 2: reject untrusted remotes and already-
// delivered replay keys.
func (p *Pipeline) Classify(job RelayJob) (RelayJob, error) {
	if !p.cfg.Trust.isTrusted(job.DstChainID, job.SourceChainID, job.SourceAddr) {
		job.State = DroppedUntrusted
		return job, apierr.New(apierr.Unauthorised, "untrusted remote %x on %s for destination %s", job.SourceAddr, job.SourceChainID, job.DstChainID)
	}

	if p.legacyDst[job.DstChainID] && p.cfg.LegacyNonceDedupe != nil {
		if p.cfg.LegacyNonceDedupe.IsReplayNonce(job.SourceChainID, job.SourceNonce) {
			job.State = DroppedDuplicate
			return job, apierr.New(apierr.Conflict, "nonce %d already consumed for %s", job.SourceNonce, job.SourceChainID)
		}
		return job, nil
	}

	key := Key{DstChainID: job.DstChainID, IntentID: job.IntentID, MsgType: job.MsgType}
	if p.cfg.Dedupe.IsReplay(key) {
		job.State = DroppedDuplicate
		return job, apierr.New(apierr.Conflict, "replay of %s", key)
	}
	return job, nil
}

// DispatchAndConfirm implements stages 3-5: build and submit the
// destination transaction, retrying with exponential backoff up to
// MaxAttempts, then dead-lettering on exhaustion. On success it marks the
// replay key DELIVERED (spec §4.5 stage 5).
func (p *Pipeline) DispatchAndConfirm(ctx context.Context, job RelayJob, destinationPrograms []string) (RelayJob, error) {
	var lastErr error
	for job.Attempt = 1; job.Attempt <= p.cfg.MaxAttempts; job.Attempt++ {
		err := p.dispatcher.Dispatch(ctx, job, destinationPrograms)
		if err == nil {
			if err := p.markDelivered(job); err != nil {
				return job, err
			}
			job.State = Delivered
			return job, nil
		}
		lastErr = err
		p.cfg.Logger.Printf("dispatch attempt %d/%d failed for intent %x: %v", job.Attempt, p.cfg.MaxAttempts, job.IntentID, err)

		backoff := p.cfg.BaseBackoff * time.Duration(math.Pow(2, float64(job.Attempt-1)))
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if p.cfg.DeadLetter != nil {
		p.cfg.DeadLetter.Record(job)
	}
	return job, apierr.Wrap(apierr.RPCError, lastErr, "relay: exhausted %d attempts for intent %x", p.cfg.MaxAttempts, job.IntentID)
}

func (p *Pipeline) markDelivered(job RelayJob) error {
	if p.legacyDst[job.DstChainID] && p.cfg.LegacyNonceDedupe != nil {
		p.cfg.LegacyNonceDedupe.MarkNonceConsumed(job.SourceChainID, job.SourceNonce)
		return nil
	}
	key := Key{DstChainID: job.DstChainID, IntentID: job.IntentID, MsgType: job.MsgType}
	return p.cfg.Dedupe.MarkDelivered(key)
}
