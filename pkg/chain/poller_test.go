package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/independant-validator/pkg/events"
)

type fakeAdapter struct {
	chainID string
	result  PollResult
	err     error
	calls   []Cursor
}

func (a *fakeAdapter) ChainID() string { return a.chainID }

func (a *fakeAdapter) Poll(ctx context.Context, cursor Cursor) (PollResult, error) {
	a.calls = append(a.calls, cursor)
	return a.result, a.err
}

func TestTickInsertsEventsAndAdvancesCursor(t *testing.T) {
	var intentID [32]byte
	intentID[0] = 7

	adapter := &fakeAdapter{
		chainID: "hub-1",
		result: PollResult{
			Intents:   []events.IntentEvent{{IntentID: intentID, ChainID: "hub-1"}},
			NewCursor: "42",
		},
	}
	cache := events.NewCache()
	p := NewPoller(adapter, cache, 0, nil)

	next := p.tick(context.Background(), "0")
	require.Equal(t, Cursor("42"), next)

	_, ok := cache.Intent(intentID)
	require.True(t, ok)
}

func TestTickKeepsCursorOnError(t *testing.T) {
	adapter := &fakeAdapter{chainID: "hub-1", err: errors.New("rpc timeout")}
	cache := events.NewCache()
	p := NewPoller(adapter, cache, 0, nil)

	next := p.tick(context.Background(), "99")
	require.Equal(t, Cursor("99"), next)
}

func TestTickKeepsCursorWhenResultOmitsOne(t *testing.T) {
	adapter := &fakeAdapter{chainID: "hub-1", result: PollResult{}}
	cache := events.NewCache()
	p := NewPoller(adapter, cache, 0, nil)

	next := p.tick(context.Background(), "7")
	require.Equal(t, Cursor("7"), next)
}
