// The coordinator daemon observes the hub and connected chains, maintains
// the shared event cache, and serves the read-only events surface plus the
// FCFS draft negotiation surface (spec §4.6).
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

	"github.com/certen/independant-validator/pkg/chain"
	"github.com/certen/independant-validator/pkg/chain/evm"
	"github.com/certen/independant-validator/pkg/chain/move"
	"github.com/certen/independant-validator/pkg/chain/svm"
	"github.com/certen/independant-validator/pkg/config"
	"github.com/certen/independant-validator/pkg/draft"
	"github.com/certen/independant-validator/pkg/events"
	"github.com/certen/independant-validator/pkg/metrics"
	"github.com/certen/independant-validator/pkg/server"
)

func main() {
	configPath := flag.String("config", "config/coordinator.toml", "path to TOML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("fatal: loading config: %v", err)
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "[Coordinator] ", log.LstdFlags)
	cache := events.NewCache()
	drafts := draft.NewStore(10 * time.Minute)
	metricsReg := metrics.New("coordinator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startPollers(ctx, cfg, cache, metricsReg, logger)

	handlers := server.New(cache, drafts, nil, cfg.ValidationTimeout(), logger)
	httpServer := &http.Server{
		Addr:    cfg.API.Host + ":" + itoa(cfg.API.Port),
		Handler: server.WithCORS(handlers.Mux(), cfg.API.CORSOrigins),
	}

	mux := http.NewServeMux()
	mux.Handle("/", httpServer.Handler)
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

// startPollers wires one chain.Poller per configured chain, grounded on
// the teacher's monitoringLoop goroutine-per-source pattern.
func startPollers(ctx context.Context, cfg *config.Config, cache *events.Cache, metricsReg *metrics.Registry, logger *log.Logger) {
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
		}
	}

	if cfg.ConnectedChainSVM != nil {
		svmAdapter := svm.New(svm.Config{
			ChainID:   cfg.ConnectedChainSVM.ChainID,
			RPCURL:    cfg.ConnectedChainSVM.RPCURL,
			ProgramID: cfg.ConnectedChainSVM.EscrowProgramID,
		})
		go chain.NewPoller(svmAdapter, cache, cfg.PollingInterval(), logger).Run(ctx, "")
	}
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
