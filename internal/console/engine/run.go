package engine

import (
	"context"

	"github.com/rs/zerolog"
)

// Engine bundles the shared state with its collaborators and owns the
// background task fleet: one Vote Poller and one SSH Health Prober across
// all validators, plus one Catchup Streamer per (validator, node).
type Engine struct {
	State      *State
	Pool       SSHPool
	RPC        ChainRPC
	Alerts     AlertTransport
	Suppressor *Suppressor
	Metrics    Metrics
	Failover   *Orchestrator
	Refresher  *Refresher
	Thresholds AlertThresholds
	Log        zerolog.Logger
}

// New wires an Engine from its collaborators, building the suppressor,
// orchestrator and refresher internally.
func New(state *State, pool SSHPool, rpc ChainRPC, alerts AlertTransport, switcher SwitchMechanism, metrics Metrics, thresholds AlertThresholds, log zerolog.Logger) *Engine {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	suppressor := NewSuppressor(thresholds)
	return &Engine{
		State:      state,
		Pool:       pool,
		RPC:        rpc,
		Alerts:     alerts,
		Suppressor: suppressor,
		Metrics:    metrics,
		Failover:   NewOrchestrator(state, switcher, alerts, metrics, log.With().Str("component", "failover").Logger()),
		Refresher:  NewRefresher(state, pool, rpc, log.With().Str("component", "field-refresher").Logger()),
		Thresholds: thresholds,
		Log:        log,
	}
}

// Start spawns every background task. Tasks terminate with ctx; they are
// not individually joined.
func (e *Engine) Start(ctx context.Context) {
	go RunVotePoller(ctx, e.State, e.RPC, e.Suppressor, e.Alerts, e.Failover, e.Metrics,
		func() AlertThresholds { return e.Thresholds },
		e.Log.With().Str("component", "vote-poller").Logger())

	go RunSSHHealthProber(ctx, e.State, e.Pool, e.Suppressor, e.Alerts, e.Metrics, e.Thresholds,
		e.Log.With().Str("component", "ssh-prober").Logger())

	streamLog := e.Log.With().Str("component", "catchup-streamer").Logger()
	for idx := 0; idx < e.State.ValidatorCount(); idx++ {
		validator := e.State.Validator(idx)
		for nodeIdx := 0; nodeIdx < 2; nodeIdx++ {
			go streamCatchup(ctx, e.State, e.Pool, e.Suppressor, e.Alerts, e.Metrics, idx, nodeIdx, validator,
				func() AlertThresholds { return e.Thresholds }, streamLog)
		}
	}
}
