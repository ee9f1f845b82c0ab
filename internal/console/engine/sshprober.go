package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const sshProbeCommand = "true"

// RunSSHHealthProber is the SSH Health Prober: one task covering all
// validators, polling a no-op command against every node every 30s.
func RunSSHHealthProber(ctx context.Context, state *State, pool SSHPool, suppressor *Suppressor, alerts AlertTransport, metrics Metrics, thresholds AlertThresholds, log zerolog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		probeAllNodes(ctx, state, pool, suppressor, alerts, metrics, thresholds, log)
		state.SetLastSSHHealthRefresh(time.Now())
	}
}

func probeAllNodes(ctx context.Context, state *State, pool SSHPool, suppressor *Suppressor, alerts AlertTransport, metrics Metrics, thresholds AlertThresholds, log zerolog.Logger) {
	n := state.ValidatorCount()
	for i := 0; i < n; i++ {
		validator := state.Validator(i)
		for nodeIdx := 0; nodeIdx < 2; nodeIdx++ {
			probeOneNode(ctx, state, pool, suppressor, alerts, metrics, thresholds, i, nodeIdx, validator, log)
		}
	}
}

func probeOneNode(ctx context.Context, state *State, pool SSHPool, suppressor *Suppressor, alerts AlertTransport, metrics Metrics, thresholds AlertThresholds, validatorIdx, nodeIdx int, validator ValidatorConfig, log zerolog.Logger) {
	node := validator.Nodes[nodeIdx]
	now := time.Now()

	_, err := pool.ExecuteCommand(ctx, node, sshProbeCommand)
	if err == nil {
		state.UpdateSSHHealth(validatorIdx, nodeIdx, true, now)
		state.RecordSSHSuccess(validatorIdx)
		return
	}

	state.UpdateSSHHealth(validatorIdx, nodeIdx, false, now)
	consecutive, seconds := state.RecordSSHFailure(validatorIdx, err.Error())
	metrics.ProbeFailure("ssh", validator.IdentityPubkey)

	log.Warn().Str("node", node.Label).Err(err).Msg("ssh health check failed")

	if thresholds.Enabled && seconds >= thresholds.SSHFailureThresholdSeconds && suppressor.ShouldSendSSHFailure(validatorIdx, nodeIdx, now) {
		if sendErr := alerts.SendSSHFailureAlert(ctx, validator.IdentityPubkey, node.Label, consecutive, seconds, err.Error()); sendErr != nil {
			log.Error().Err(sendErr).Str("node", node.Label).Msg("failed to send ssh failure alert")
		}
	}
}
