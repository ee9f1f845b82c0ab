package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Orchestrator is the Emergency Failover Orchestrator. It
// enforces the process-wide invariant that at most one instance is in a
// non-Idle state at a time.
type Orchestrator struct {
	state    *State
	switcher SwitchMechanism
	alerts   AlertTransport
	metrics  Metrics
	log      zerolog.Logger

	inFlight atomic.Bool

	// suspendDelay lets the UI loop observe the emergency flag and restore
	// the terminal before the switch mechanism writes to stdout; settleDelay
	// lets operators read the outcome on the console.
	suspendDelay time.Duration
	settleDelay  time.Duration
}

// NewOrchestrator constructs an Orchestrator bound to the shared state.
func NewOrchestrator(state *State, switcher SwitchMechanism, alerts AlertTransport, metrics Metrics, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		state:        state,
		switcher:     switcher,
		alerts:       alerts,
		metrics:      metrics,
		log:          log,
		suspendDelay: 300 * time.Millisecond,
		settleDelay:  3 * time.Second,
	}
}

// ErrAlreadyInProgress is returned by Spawn when another failover holds
// the single-instance slot.
var ErrAlreadyInProgress = fmt.Errorf("emergency failover already in progress")

// Spawn launches a single-shot takeover for validatorIdx. It returns
// ErrAlreadyInProgress, without starting anything, when another failover
// is still running.
func (o *Orchestrator) Spawn(validatorIdx int) error {
	if !o.inFlight.CompareAndSwap(false, true) {
		return ErrAlreadyInProgress
	}
	go func() {
		defer o.inFlight.Store(false)
		o.run(context.Background(), validatorIdx)
	}()
	return nil
}

func (o *Orchestrator) run(ctx context.Context, validatorIdx int) {
	validator := o.state.Validator(validatorIdx)
	snap := o.state.Snapshot()[validatorIdx]

	active, standby, ok := identifyActiveStandby(validator, snap)
	if !ok {
		o.log.Error().Int("validator_idx", validatorIdx).Msg("emergency failover failed: could not identify active/standby nodes")
		return
	}

	// Idle -> Suspending
	o.state.SetEmergencyInProgress(true)
	o.metrics.Failover(validator.IdentityPubkey)
	time.Sleep(o.suspendDelay)

	// Suspending -> Executing
	if err := o.switcher.ExecuteSwitch(ctx, active, standby, validator); err != nil {
		o.log.Error().Err(err).Int("validator_idx", validatorIdx).Msg("emergency failover error")
	}

	// Executing -> Settling
	time.Sleep(o.settleDelay)

	// Settling -> Idle
	o.state.SetEmergencyInProgress(false)
}

func identifyActiveStandby(validator ValidatorConfig, snap ValidatorSnapshot) (active, standby NodeConfig, ok bool) {
	roles := [2]NodeRole{snap.NodeStates.Node0.Role, snap.NodeStates.Node1.Role}
	var activeIdx, standbyIdx = -1, -1
	for i, r := range roles {
		switch r {
		case RoleActive:
			activeIdx = i
		case RoleStandby:
			standbyIdx = i
		}
	}
	if activeIdx == -1 || standbyIdx == -1 {
		return NodeConfig{}, NodeConfig{}, false
	}
	return validator.Nodes[activeIdx], validator.Nodes[standbyIdx], true
}
