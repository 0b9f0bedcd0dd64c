package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	calls int
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, job RelayJob, destinationPrograms []string) error {
	f.calls++
	return nil
}

func TestRelayReplayDropsSecondDelivery(t *testing.T) {
	dedupe, err := NewKeyDedupe("")
	require.NoError(t, err)

	sender := [32]byte{9}
	trust := TrustTable{"hub-1": {{SourceChainID: "evm-1", SenderAddr: sender}}}

	disp := &fakeDispatcher{}
	p := NewPipeline(PipelineConfig{Trust: trust, Dedupe: dedupe}, disp, nil)

	job := RelayJob{SourceChainID: "evm-1", DstChainID: "hub-1", SourceAddr: sender, IntentID: [32]byte{0xAA}, MsgType: MsgIntentRequirements}

	classified, err := p.Classify(job)
	require.NoError(t, err)
	_, err = p.DispatchAndConfirm(context.Background(), classified, []string{"outflow", "inflow"})
	require.NoError(t, err)
	require.Equal(t, 1, disp.calls)

	// second identical event: classify must drop it as a duplicate before dispatch.
	_, err = p.Classify(job)
	require.Error(t, err)
	require.Equal(t, 1, disp.calls, "dispatcher must not be invoked for a replay")
}

func TestRelayUntrustedRemoteDropped(t *testing.T) {
	dedupe, err := NewKeyDedupe("")
	require.NoError(t, err)
	p := NewPipeline(PipelineConfig{Trust: TrustTable{}, Dedupe: dedupe}, &fakeDispatcher{}, nil)

	_, err = p.Classify(RelayJob{SourceChainID: "evm-1", DstChainID: "hub-1", SourceAddr: [32]byte{1}})
	require.Error(t, err)
}

func TestRouterFansOutIntentRequirements(t *testing.T) {
	got := Router(MsgIntentRequirements, "outflow-validator", "inflow-escrow", "default")
	require.Equal(t, []string{"outflow-validator", "inflow-escrow"}, got)

	got2 := Router(MsgType(0x02), "outflow-validator", "inflow-escrow", "default")
	require.Equal(t, []string{"default"}, got2)
}
