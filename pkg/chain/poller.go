package chain

import (
	"context"
	"log"
	"time"

	"github.com/certen/independant-validator/pkg/events"
)

// Poller runs one cooperative polling task per adapter, grounded on the
// teacher's pkg/intent/discovery.go monitoringLoop (ticker + select over a
// stop channel, exponential backoff retry on startup failure).
type Poller struct {
	adapter  Adapter
	cache    *events.Cache
	interval time.Duration
	logger   *log.Logger
}

// NewPoller constructs a poller for the given adapter.
func NewPoller(adapter Adapter, cache *events.Cache, interval time.Duration, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.New(log.Writer(), "[Poller:"+adapter.ChainID()+"] ", log.LstdFlags)
	}
	return &Poller{adapter: adapter, cache: cache, interval: interval, logger: logger}
}

// Run polls on interval until ctx is cancelled. A failed tick is logged and
// the next tick proceeds from the last good cursor (spec §4.1 "Errors":
// the tick never aborts the daemon).
func (p *Poller) Run(ctx context.Context, startCursor Cursor) {
	cursor := startCursor
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("stopping: %v", ctx.Err())
			return
		case <-ticker.C:
			cursor = p.tick(ctx, cursor)
		}
	}
}

func (p *Poller) tick(ctx context.Context, cursor Cursor) Cursor {
	result, err := p.adapter.Poll(ctx, cursor)
	if err != nil {
		p.logger.Printf("poll error (cursor=%s): %v", cursor, err)
		return cursor
	}

	for _, e := range result.Intents {
		p.cache.InsertIntent(e)
	}
	for _, e := range result.Escrows {
		p.cache.InsertEscrow(e)
	}
	for _, e := range result.Fulfillments {
		p.cache.InsertFulfillment(e)
	}
	if result.NewCursor != "" {
		return result.NewCursor
	}
	return cursor
}
