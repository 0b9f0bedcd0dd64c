// The relay daemon observes MessageSent events on the hub and delivers
// them to their destination programs on the connected EVM chain exactly
// once, keyed on (intent_id, msg_type) (spec §4.5).
package main

import (
	"context"
	"flag"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/independant-validator/pkg/address"
	"github.com/certen/independant-validator/pkg/chain/evm"
	"github.com/certen/independant-validator/pkg/config"
	"github.com/certen/independant-validator/pkg/relay"
	"github.com/certen/independant-validator/pkg/signing"
)

func main() {
	configPath := flag.String("config", "config/relay.toml", "path to TOML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("fatal: loading config: %v", err)
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "[Relay] ", log.LstdFlags)

	seed, err := signing.ParseSeed(cfg.PrivateKey)
	if err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
	identity, err := signing.DeriveIdentity(seed)
	if err != nil {
		logger.Printf("fatal: deriving identity: %v", err)
		os.Exit(1)
	}
	logger.Printf("relay operator address: evm=%s", identity.EVMAddress.Hex())

	trust := buildTrustTable(cfg, logger)
	legacyDst := buildLegacyDestinations(cfg)

	dedupe, err := relay.NewKeyDedupe(cfg.RelayDedupePath)
	if err != nil {
		logger.Printf("fatal: loading dedupe snapshot: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher, dstChainID, err := buildEVMDispatcher(ctx, cfg, identity)
	if err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}

	pipeline := relay.NewPipeline(relay.PipelineConfig{
		Trust:             trust,
		Dedupe:            dedupe,
		LegacyNonceDedupe: relay.NewNonceDedupe(),
		MaxAttempts:       cfg.Relay.MaxAttempts,
		BaseBackoff:       cfg.RelayBaseBackoff(),
		DeadLetter:        &relay.DeadLetter{},
		Logger:            logger,
	}, dispatcher, legacyDst)

	source := relay.NewMoveMessageSource(
		cfg.HubChain.ChainID, cfg.HubChain.RPCURL, cfg.HubChain.IntentModuleAddr,
		"0x1::gmp::MessageSentEvents/message_sent_events",
	)
	runner := relay.NewRunner(source, pipeline, cfg.PollingInterval(), logger)

	programs := destinationPrograms(cfg, dstChainID)
	destinationProgramsFor := func(msgType relay.MsgType) []string {
		return relay.Router(msgType, programs.OutflowValidator, programs.InflowEscrow, programs.Default)
	}

	go runner.Run(ctx, "", destinationProgramsFor)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Printf("shutting down")
	cancel()
	time.Sleep(200 * time.Millisecond)
	logger.Printf("stopped")
}

func buildTrustTable(cfg *config.Config, logger *log.Logger) relay.TrustTable {
	trust := relay.TrustTable{}
	for _, r := range cfg.Relay.TrustedRemotes {
		sender, err := parseSender(r.SenderAddr)
		if err != nil {
			logger.Printf("fatal: trusted_remotes entry for %s: %v", r.DstChainID, err)
			os.Exit(1)
		}
		trust[r.DstChainID] = append(trust[r.DstChainID], relay.TrustedRemote{
			SourceChainID: r.SourceChainID,
			SenderAddr:    sender,
		})
	}
	return trust
}

func buildLegacyDestinations(cfg *config.Config) map[string]bool {
	legacyDst := make(map[string]bool, len(cfg.Relay.LegacyNonceDestinations))
	for _, id := range cfg.Relay.LegacyNonceDestinations {
		legacyDst[id] = true
	}
	return legacyDst
}

func destinationPrograms(cfg *config.Config, dstChainID string) config.DestinationPrograms {
	for _, d := range cfg.Relay.Destinations {
		if d.DstChainID == dstChainID {
			return d
		}
	}
	return config.DestinationPrograms{}
}

// buildEVMDispatcher wires the only destination dispatcher this daemon
// carries (DESIGN.md: Move/SVM destination dispatch has no equivalently
// detailed original_source write path, so cmd/relay logs and refuses to
// start rather than silently dropping every job).
func buildEVMDispatcher(ctx context.Context, cfg *config.Config, identity *signing.Identity) (relay.Dispatcher, string, error) {
	if cfg.ConnectedChainEVM == nil {
		return nil, "", errNoEVMDestination
	}
	client, err := ethclient.DialContext(ctx, cfg.ConnectedChainEVM.RPCURL)
	if err != nil {
		return nil, "", err
	}
	chainID, ok := new(big.Int).SetString(cfg.ConnectedChainEVM.ChainID, 10)
	if !ok {
		n, convErr := strconv.ParseInt(cfg.ConnectedChainEVM.ChainID, 10, 64)
		if convErr != nil {
			return nil, "", convErr
		}
		chainID = big.NewInt(n)
	}
	return evm.NewDispatcher(client, identity.ECDSAPrivateKey(), chainID, 0), cfg.ConnectedChainEVM.ChainID, nil
}

var errNoEVMDestination = relayConfigError("relay: no connected_chain_evm destination configured")

type relayConfigError string

func (e relayConfigError) Error() string { return string(e) }

func parseSender(s string) ([32]byte, error) {
	if c, err := address.ParseMVM(s); err == nil {
		return [32]byte(c), nil
	}
	if c, err := address.ParseEVM(s); err == nil {
		return [32]byte(c), nil
	}
	c, err := address.ParseSVM(s)
	return [32]byte(c), err
}
