package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// FailoverSpawner spawns the Emergency Failover Orchestrator for one
// validator, ensuring the process-wide single-instance invariant. Spawn
// reports ErrAlreadyInProgress when another failover is still running.
type FailoverSpawner interface {
	Spawn(validatorIdx int) error
}

// RunVotePoller is the Vote Poller: one task covering all validators,
// waking on a fixed 5s cadence.
func RunVotePoller(ctx context.Context, state *State, rpc ChainRPC, suppressor *Suppressor, alerts AlertTransport, failover FailoverSpawner, metrics Metrics, thresholds func() AlertThresholds, log zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pollAllValidators(ctx, state, rpc, suppressor, alerts, failover, metrics, thresholds(), time.Now(), log)
		state.SetLastVoteRefresh(time.Now())
	}
}

func pollAllValidators(ctx context.Context, state *State, rpc ChainRPC, suppressor *Suppressor, alerts AlertTransport, failover FailoverSpawner, metrics Metrics, thresholds AlertThresholds, now time.Time, log zerolog.Logger) {
	n := state.ValidatorCount()

	for idx := 0; idx < n; idx++ {
		validator := state.Validator(idx)

		obs, err := rpc.FetchVoteAccountData(ctx, validator.RPCEndpoint, validator.VotePubkey)
		if err != nil {
			state.RecordRPCFailure(idx, err.Error())
			metrics.ProbeFailure("rpc", validator.IdentityPubkey)
			log.Error().Err(err).Str("validator", validator.IdentityPubkey).Msg("failed to fetch vote data")
		} else {
			state.RecordRPCSuccess(idx)
		}

		secondsSinceChange, slotAdvanced, haveSlot := state.ApplyVoteObservation(idx, &obs, err, now)
		if slotAdvanced {
			suppressor.ClearDelinquency(idx)
		}

		if err != nil {
			handleRPCFailureAlert(ctx, state, suppressor, alerts, thresholds, idx, validator, now, log)
			continue
		}

		if !haveSlot {
			continue
		}

		// Delinquency check: the slot did not advance and the clock has
		// crossed the threshold.
		if secondsSinceChange >= thresholds.DelinquencyThresholdSeconds && thresholds.Enabled {
			if suppressor.ShouldSendDelinquency(idx, now) {
				metrics.DelinquencyAlert(validator.IdentityPubkey)
				sendDelinquencyAndMaybeFailover(ctx, state, alerts, failover, thresholds, idx, validator, obs.LastSlot, secondsSinceChange, log)
			}
		}
	}
}

func handleRPCFailureAlert(ctx context.Context, state *State, suppressor *Suppressor, alerts AlertTransport, thresholds AlertThresholds, idx int, validator ValidatorConfig, now time.Time, log zerolog.Logger) {
	tracker := state.RPCTracker(idx)
	seconds, active := tracker.SecondsSinceFirstFailure()
	if !active || !thresholds.Enabled {
		return
	}
	if seconds >= thresholds.RPCFailureThresholdSeconds && suppressor.ShouldSendRPCFailure(idx, now) {
		if err := alerts.SendRPCFailureAlert(ctx, validator.IdentityPubkey, validator.VotePubkey, tracker.ConsecutiveFailures, seconds, tracker.LastError); err != nil {
			log.Error().Err(err).Str("validator", validator.IdentityPubkey).Msg("failed to send rpc failure alert")
		}
	}
}

func sendDelinquencyAndMaybeFailover(ctx context.Context, state *State, alerts AlertTransport, failover FailoverSpawner, thresholds AlertThresholds, idx int, validator ValidatorConfig, slot uint64, secondsSinceVote uint64, log zerolog.Logger) {
	health := state.Health(idx)
	activeNode, isActive := findActiveNodeLabel(state, idx, validator)

	if err := alerts.SendDelinquencyAlertWithHealth(ctx, validator.IdentityPubkey, activeNode, isActive, slot, secondsSinceVote, health); err != nil {
		log.Error().Err(err).Str("validator", validator.IdentityPubkey).Msg("failed to send delinquency alert")
	} else {
		log.Warn().Str("validator", validator.IdentityPubkey).Uint64("seconds_since_vote", secondsSinceVote).Msg("delinquency alert sent")
	}

	// Auto-failover gate: alerts enabled, auto-failover enabled,
	// RPC healthy (consecutive_failures == 0). SSH being down is not a
	// blocker because this decision only needs the authoritative on-chain
	// read.
	if thresholds.AutoFailoverEnabled && health.RPC.ConsecutiveFailures == 0 {
		log.Error().Str("validator", validator.IdentityPubkey).Msg("auto-failover: initiating emergency takeover")
		if err := failover.Spawn(idx); err != nil {
			log.Warn().Err(err).Str("validator", validator.IdentityPubkey).Msg("auto-failover not started")
		}
	} else if thresholds.AutoFailoverEnabled {
		log.Warn().Str("validator", validator.IdentityPubkey).
			Uint32("rpc_failures", health.RPC.ConsecutiveFailures).
			Msg("auto-failover suppressed: rpc unhealthy")
	}
}

// findActiveNodeLabel returns the label of the node currently believed to
// be Active (falling back to node 0 if role is not yet known), and whether
// an Active node was found at all.
func findActiveNodeLabel(state *State, idx int, validator ValidatorConfig) (label string, isActive bool) {
	snap := state.Snapshot()[idx]
	if snap.NodeStates.Node0.Role == RoleActive {
		return validator.Nodes[0].Label, true
	}
	if snap.NodeStates.Node1.Role == RoleActive {
		return validator.Nodes[1].Label, true
	}
	return validator.Nodes[0].Label, false
}
