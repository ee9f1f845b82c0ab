package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCatchupOutput(t *testing.T) {
	cases := []struct {
		name string
		line string
		want string
	}{
		{"caught up with slot", "Node abc has caught up (us: 1234, them: 1234)", "Caught up (slot: 1234)"},
		{"zero slots behind", "abc is 0 slot(s) behind", "Caught up"},
		{"caught up variant without slot", "you are caught up... has caught up", "Caught up"},
		{"slots behind", "Node abc is 7 slot(s) behind", "7 slots behind"},
		{"empty line waits", "", "Waiting..."},
		{"cli not found", "bash: line 1: solana: command not found", "CLI not found"},
		{"bash error", "bash: line 1: permission denied", "Command error"},
		{"rpc error", "Error: RPC request failed", "RPC Error"},
		{"connection error", "error: connection refused", "Connection Error"},
		{"generic error", "error: something odd", "Error"},
		{"short raw line passes through", "fetching stake accounts", "fetching stake accounts"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, parseCatchupOutput(tc.line, false))
		})
	}
}

func TestParseCatchupOutputTruncatesLongLines(t *testing.T) {
	long := "this line goes on and on and on far past the forty character cutoff"
	got := parseCatchupOutput(long, false)
	require.LessOrEqual(t, len([]rune(got)), 40)
	require.Contains(t, got, "...")
}

func TestParseCatchupOutputFiredancer(t *testing.T) {
	require.Equal(t, "Caught up", parseCatchupOutput("fdctl is running", true))
	require.Equal(t, "Not running", parseCatchupOutput("no process found", true))
}

func TestExtractUsSlot(t *testing.T) {
	slot, ok := extractUsSlot("abc has caught up (us:1234, them:1234)")
	require.True(t, ok)
	require.Equal(t, "1234", slot)

	slot, ok = extractUsSlot("abc has caught up (us: 99)")
	require.True(t, ok)
	require.Equal(t, "99", slot)

	_, ok = extractUsSlot("no marker here")
	require.False(t, ok)
}

func TestCatchupCommandSelection(t *testing.T) {
	fd := NodeConfig{ValidatorType: ValidatorFiredancer, FdctlExecutable: "/opt/fd/fdctl"}
	cmd, ok := catchupCommand(fd)
	require.True(t, ok)
	require.Equal(t, "/opt/fd/fdctl status", cmd)

	agave := NodeConfig{ValidatorType: ValidatorAgave, SolanaCLIExecutable: "/usr/bin/solana"}
	cmd, ok = catchupCommand(agave)
	require.True(t, ok)
	require.Equal(t, "/usr/bin/solana catchup --our-localhost 2>&1", cmd)

	// solana path derived from agave-validator by substitution
	derived := NodeConfig{ValidatorType: ValidatorJito, AgaveValidatorExecutable: "/home/sol/bin/agave-validator"}
	cmd, ok = catchupCommand(derived)
	require.True(t, ok)
	require.Equal(t, "/home/sol/bin/solana catchup --our-localhost 2>&1", cmd)

	// nothing configured: no command, streamer sleeps and re-evaluates
	_, ok = catchupCommand(NodeConfig{ValidatorType: ValidatorAgave})
	require.False(t, ok)
	_, ok = catchupCommand(NodeConfig{ValidatorType: ValidatorFiredancer})
	require.False(t, ok)
}

// streamingPool emits a fixed script of lines, then holds the stream open
// until the context is cancelled.
type streamingPool struct {
	fakePool
	lines []string
}

func (p *streamingPool) ExecuteCommandStreaming(ctx context.Context, node NodeConfig, cmd string, lines chan<- string) error {
	defer close(lines)
	for _, l := range p.lines {
		select {
		case lines <- l:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestStreamCatchupParsesAndWritesState(t *testing.T) {
	state := newTestState()
	pool := &streamingPool{lines: []string{"Node abc is 7 slot(s) behind"}}
	suppressor := NewSuppressor(testThresholds())
	alerts := &fakeAlerts{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		streamCatchup(ctx, state, pool, suppressor, alerts, NopMetrics{}, 0, 0, state.Validator(0),
			func() AlertThresholds { return testThresholds() }, testLogger())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c := *state.Snapshot()[0].Catchup.Get(0)
		if c.Text == "7 slots behind" {
			require.True(t, c.IsStreaming)
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	c := *state.Snapshot()[0].Catchup.Get(0)
	require.Equal(t, "7 slots behind", c.Text)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("streamer did not stop on cancel")
	}
}
