// The approver daemon holds the control plane's signing key: it observes
// the hub and connected chains into its own event cache, evaluates SAFE
// against the cross-chain solver registry, and serves the approval
// surface (spec §4.2, §4.3, §4.6).
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/certen/independant-validator/pkg/approval"
	"github.com/certen/independant-validator/pkg/chain"
	"github.com/certen/independant-validator/pkg/chain/evm"
	"github.com/certen/independant-validator/pkg/chain/move"
	"github.com/certen/independant-validator/pkg/chain/svm"
	"github.com/certen/independant-validator/pkg/config"
	"github.com/certen/independant-validator/pkg/draft"
	"github.com/certen/independant-validator/pkg/events"
	"github.com/certen/independant-validator/pkg/metrics"
	"github.com/certen/independant-validator/pkg/registry"
	"github.com/certen/independant-validator/pkg/server"
	"github.com/certen/independant-validator/pkg/signing"
	"github.com/certen/independant-validator/pkg/validate"
)

func main() {
	configPath := flag.String("config", "config/approver.toml", "path to TOML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("fatal: loading config: %v", err)
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "[Approver] ", log.LstdFlags)

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
	logger.Printf("identity: mvm=%s evm=%s svm=%s", identity.MVMAddress.Hex(), identity.EVMAddress.Hex(), identity.SVMAddress.Hex())

	cache := events.NewCache()
	drafts := draft.NewStore(10 * time.Minute)
	metricsReg := metrics.New("approver")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	extractors := startPollers(ctx, cfg, cache, logger)

	hubClient := move.NewHubClient(cfg.HubChain.RPCURL, cfg.HubChain.IntentModuleAddr)
	lookup := registry.New(hubClient)
	engine := validate.NewEngine(cache, lookup, cfg.ExpiryGraceSeconds)
	memo := signing.NewMemo(identity)
	approver := approval.New(engine, memo)

	handlers := server.New(cache, drafts, approver, cfg.ValidationTimeout(), logger)
	handlers.Extractors = extractors
	httpServer := &http.Server{
		Addr: cfg.API.Host + ":" + itoa(cfg.API.Port),
	}

	mux := http.NewServeMux()
	mux.Handle("/", server.WithCORS(handlers.Mux(), cfg.API.CORSOrigins))
	mux.Handle("/metrics", metricsReg.Handler())
	httpServer.Handler = mux

	go func() {
		logger.Printf("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("fatal: http server: %v", err)
			os.Exit(2)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Printf("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
	logger.Printf("stopped")
}

// startPollers wires one chain.Poller per configured chain and returns the
// connected-chain adapters keyed by chain_id, so /approve/outflow (spec
// §4.2.2) can extract a fulfillment from a solver-submitted tx hash on the
// same adapter the poller uses to observe that chain's logs.
func startPollers(ctx context.Context, cfg *config.Config, cache *events.Cache, logger *log.Logger) map[string]server.FulfillmentExtractor {
	extractors := make(map[string]server.FulfillmentExtractor)

	moveAdapter := move.New(move.Config{
		ChainID:     cfg.HubChain.ChainID,
		RESTURL:     cfg.HubChain.RPCURL,
		AccountAddr: cfg.HubChain.IntentModuleAddr,
		EventHandle: "0x1::intent::IntentEvents/intent_events",
	})
	go chain.NewPoller(moveAdapter, cache, cfg.PollingInterval(), logger).Run(ctx, "")

	if cfg.ConnectedChainMVM != nil {
		mvmAdapter := move.New(move.Config{
			ChainID:     cfg.ConnectedChainMVM.ChainID,
			RESTURL:     cfg.ConnectedChainMVM.RPCURL,
			AccountAddr: cfg.ConnectedChainMVM.EscrowModuleAddr,
			EventHandle: "0x1::escrow::EscrowEvents/escrow_events",
		})
		go chain.NewPoller(mvmAdapter, cache, cfg.PollingInterval(), logger).Run(ctx, "")
	}

	if cfg.ConnectedChainEVM != nil {
		evmAdapter, err := evm.New(ctx, evm.Config{
			ChainID:         cfg.ConnectedChainEVM.ChainID,
			RPCURL:          cfg.ConnectedChainEVM.RPCURL,
			ContractAddress: cfg.ConnectedChainEVM.EscrowContractAddr,
		})
		if err != nil {
			logger.Printf("evm adapter unavailable: %v", err)
		} else {
			go chain.NewPoller(evmAdapter, cache, cfg.PollingInterval(), logger).Run(ctx, "0")
			extractors[cfg.ConnectedChainEVM.ChainID] = evmAdapter
		}
	}

	if cfg.ConnectedChainSVM != nil {
		svmAdapter := svm.New(svm.Config{
			ChainID:   cfg.ConnectedChainSVM.ChainID,
			RPCURL:    cfg.ConnectedChainSVM.RPCURL,
			ProgramID: cfg.ConnectedChainSVM.EscrowProgramID,
		})
		go chain.NewPoller(svmAdapter, cache, cfg.PollingInterval(), logger).Run(ctx, "")
		extractors[cfg.ConnectedChainSVM.ChainID] = svmAdapter
	}

	return extractors
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
