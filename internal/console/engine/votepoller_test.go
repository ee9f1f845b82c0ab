package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type pollHarness struct {
	state      *State
	rpc        *fakeRPC
	alerts     *fakeAlerts
	spawner    *fakeSpawner
	suppressor *Suppressor
	thresholds AlertThresholds
}

func newPollHarness(thresholds AlertThresholds) *pollHarness {
	return &pollHarness{
		state:      NewState([]ValidatorConfig{testValidator()}),
		rpc:        &fakeRPC{},
		alerts:     &fakeAlerts{},
		spawner:    &fakeSpawner{},
		suppressor: NewSuppressor(thresholds),
		thresholds: thresholds,
	}
}

func (h *pollHarness) poll(now time.Time) {
	pollAllValidators(context.Background(), h.state, h.rpc, h.suppressor, h.alerts, h.spawner, NopMetrics{}, h.thresholds, now, testLogger())
}

func TestHappyVoteAdvance(t *testing.T) {
	h := newPollHarness(testThresholds())
	t0 := time.Now()

	h.rpc.obs = VoteObservation{LastSlot: 1000, IsVoting: true}
	h.poll(t0)
	h.rpc.obs = VoteObservation{LastSlot: 1001, IsVoting: true}
	h.poll(t0.Add(5 * time.Second))

	obs := h.state.VoteObservationSnapshot(0)
	require.Equal(t, uint64(1001), obs.LastSlot)
	require.Equal(t, t0.Add(5*time.Second), obs.LastSlotChangedAt)
	require.True(t, h.state.Snapshot()[0].HasIncrement)

	delinquency, rpcAlerts, _, _ := h.alerts.counts()
	require.Zero(t, delinquency)
	require.Zero(t, rpcAlerts)
	require.Zero(t, h.spawner.count())
}

func TestDelinquencyAlertFiresOnceAtThreshold(t *testing.T) {
	h := newPollHarness(testThresholds())
	t0 := time.Now()
	h.rpc.obs = VoteObservation{LastSlot: 1000, IsVoting: true}

	// below threshold: no alert
	h.poll(t0)
	h.poll(t0.Add(29 * time.Second))
	delinquency, _, _, _ := h.alerts.counts()
	require.Zero(t, delinquency)

	// at threshold: exactly one alert
	h.poll(t0.Add(30 * time.Second))
	delinquency, _, _, _ = h.alerts.counts()
	require.Equal(t, 1, delinquency)

	// past threshold during suppression: still one
	h.poll(t0.Add(60 * time.Second))
	delinquency, _, _, _ = h.alerts.counts()
	require.Equal(t, 1, delinquency)
}

func TestDelinquencyRecoveryRearms(t *testing.T) {
	h := newPollHarness(testThresholds())
	t0 := time.Now()
	h.rpc.obs = VoteObservation{LastSlot: 1000, IsVoting: true}
	h.poll(t0)
	h.poll(t0.Add(30 * time.Second))
	delinquency, _, _, _ := h.alerts.counts()
	require.Equal(t, 1, delinquency)

	// recovery at t+45: suppression cleared, no new alert
	h.rpc.obs = VoteObservation{LastSlot: 1001, IsVoting: true}
	h.poll(t0.Add(45 * time.Second))
	delinquency, _, _, _ = h.alerts.counts()
	require.Equal(t, 1, delinquency)

	// slot stalls again at 1001 for 30s: a new alert fires
	h.poll(t0.Add(75 * time.Second))
	delinquency, _, _, _ = h.alerts.counts()
	require.Equal(t, 2, delinquency)
}

func TestRPCOutageDoesNotTriggerFailoverOrDelinquency(t *testing.T) {
	th := testThresholds()
	th.AutoFailoverEnabled = true
	h := newPollHarness(th)
	t0 := time.Now()

	// one good observation establishes the slot pair
	h.rpc.obs = VoteObservation{LastSlot: 1000, IsVoting: true}
	h.poll(t0)

	// then the RPC goes dark
	h.rpc.err = errors.New("connection refused")
	h.poll(t0.Add(5 * time.Second))

	// backdate the failure run to the threshold and poll again
	h.state.mu.Lock()
	h.state.health[0].RPC.FirstFailureAt = time.Now().Add(-1800 * time.Second)
	h.state.mu.Unlock()
	h.poll(t0.Add(1800 * time.Second))

	delinquency, rpcAlerts, _, _ := h.alerts.counts()
	require.Equal(t, 1, rpcAlerts)
	// delinquency never fires on an RPC-failure tick, and the slot clock
	// was preserved rather than reset
	require.Zero(t, delinquency)
	require.Zero(t, h.spawner.count())
	require.Equal(t, t0, h.state.VoteObservationSnapshot(0).LastSlotChangedAt)
}

func TestRPCFailureAlertSuppressedBelowThreshold(t *testing.T) {
	h := newPollHarness(testThresholds())
	h.rpc.err = errors.New("connection refused")
	t0 := time.Now()
	h.poll(t0)
	h.poll(t0.Add(5 * time.Second))

	_, rpcAlerts, _, _ := h.alerts.counts()
	require.Zero(t, rpcAlerts)
}

func TestAutoFailoverEligible(t *testing.T) {
	th := testThresholds()
	th.AutoFailoverEnabled = true
	h := newPollHarness(th)
	t0 := time.Now()

	h.rpc.obs = VoteObservation{LastSlot: 1000, IsVoting: true}
	h.poll(t0)
	h.poll(t0.Add(45 * time.Second))

	delinquency, _, _, _ := h.alerts.counts()
	require.Equal(t, 1, delinquency)
	require.Equal(t, 1, h.spawner.count())

	// suppressed on the next tick: still exactly one spawn
	h.poll(t0.Add(50 * time.Second))
	require.Equal(t, 1, h.spawner.count())
}

func TestAutoFailoverRequiresHealthyRPC(t *testing.T) {
	th := testThresholds()
	th.AutoFailoverEnabled = true
	h := newPollHarness(th)

	// with a concurrent RPC failure on record, the gate must refuse even
	// when a delinquency event is being sent
	h.state.mu.Lock()
	h.state.health[0].RPC.RecordFailure("flaky")
	h.state.mu.Unlock()

	sendDelinquencyAndMaybeFailover(context.Background(), h.state, h.alerts, h.spawner, th, 0, h.state.Validator(0), 1000, 45, testLogger())

	delinquency, _, _, _ := h.alerts.counts()
	require.Equal(t, 1, delinquency) // the alert itself still goes out
	require.Zero(t, h.spawner.count())
}

func TestAutoFailoverSkippedWhenAlertsDisabled(t *testing.T) {
	th := testThresholds()
	th.Enabled = false
	th.AutoFailoverEnabled = true
	h := newPollHarness(th)
	t0 := time.Now()

	h.rpc.obs = VoteObservation{LastSlot: 1000, IsVoting: true}
	h.poll(t0)
	h.poll(t0.Add(45 * time.Second))

	delinquency, _, _, _ := h.alerts.counts()
	require.Zero(t, delinquency)
	require.Zero(t, h.spawner.count())
}

// SSH being down must not block auto-failover: the decision needs only the
// authoritative on-chain read.
func TestAutoFailoverProceedsWithSSHDown(t *testing.T) {
	th := testThresholds()
	th.AutoFailoverEnabled = true
	h := newPollHarness(th)
	t0 := time.Now()

	h.state.RecordSSHFailure(0, "host unreachable")
	h.state.UpdateSSHHealth(0, 0, false, t0)
	h.state.UpdateSSHHealth(0, 1, false, t0)

	h.rpc.obs = VoteObservation{LastSlot: 1000, IsVoting: true}
	h.poll(t0)
	h.poll(t0.Add(45 * time.Second))

	require.Equal(t, 1, h.spawner.count())
}
