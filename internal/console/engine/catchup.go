package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// parseCatchupOutput maps one trimmed stdout line from the catchup command
// to a status from a small closed set. Firedancer lines are parsed
// against a smaller grammar (running/not running); Agave/Jito lines use
// the full grammar.
func parseCatchupOutput(line string, firedancer bool) string {
	if firedancer {
		if strings.Contains(line, "running") {
			return "Caught up"
		}
		return "Not running"
	}

	switch {
	case strings.Contains(line, "0 slot(s)") || strings.Contains(line, "has caught up"):
		if slot, ok := extractUsSlot(line); ok {
			return "Caught up (slot: " + slot + ")"
		}
		return "Caught up"
	default:
	}

	if pos := strings.Index(line, " slot(s) behind"); pos >= 0 {
		start := strings.LastIndex(line[:pos], " ") + 1
		slotsStr := line[start:pos]
		if slots, err := strconv.ParseUint(slotsStr, 10, 64); err == nil {
			return strconv.FormatUint(slots, 10) + " slots behind"
		}
	}

	lower := strings.ToLower(line)
	switch {
	case strings.Contains(line, "bash:") && strings.Contains(line, "line"):
		if strings.Contains(lower, "command not found") || strings.Contains(lower, "no such file") {
			return "CLI not found"
		}
		return "Command error"
	case strings.Contains(lower, "error"):
		switch {
		case strings.Contains(line, "RPC"):
			return "RPC Error"
		case strings.Contains(lower, "connection"):
			return "Connection Error"
		default:
			return "Error"
		}
	case strings.TrimSpace(line) == "":
		return "Waiting..."
	default:
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 40 {
			runes := []rune(trimmed)
			if len(runes) > 37 {
				runes = runes[:37]
			}
			return string(runes) + "..."
		}
		return trimmed
	}
}

// extractUsSlot pulls the "us:<slot>" fragment out of a catchup line, as
// emitted by `solana catchup` (e.g. "...(us:1234, them:1234)...").
func extractUsSlot(line string) (string, bool) {
	start := strings.Index(line, "us:")
	if start < 0 {
		return "", false
	}
	rest := strings.TrimLeft(line[start+3:], " ")
	end := strings.IndexAny(rest, " ,)")
	if end < 0 {
		end = len(rest)
	}
	slot := rest[:end]
	if slot == "" {
		return "", false
	}
	return slot, true
}

// catchupCommand selects the stream command for a node by validator type.
func catchupCommand(node NodeConfig) (cmd string, ok bool) {
	switch node.ValidatorType {
	case ValidatorFiredancer:
		if node.FdctlExecutable == "" {
			return "", false
		}
		return node.FdctlExecutable + " status", true
	default:
		solanaCLI := node.SolanaCLIExecutable
		if solanaCLI == "" {
			if node.AgaveValidatorExecutable == "" {
				return "", false
			}
			solanaCLI = strings.Replace(node.AgaveValidatorExecutable, "agave-validator", "solana", 1)
		}
		return solanaCLI + " catchup --our-localhost 2>&1", true
	}
}

// catchupAlertAfterFailures is how many consecutive stream failures arm
// the (policy-gated) catchup failure alert.
const catchupAlertAfterFailures = 3

// streamCatchup is the Catchup Streamer: one long-lived task per
// (validator_idx, node_idx). It restarts with a 5s backoff
// whenever the stream ends, and sleeps 30s and re-reads the node's config
// when no executable is configured. That config is fixed at startup (the
// Field Refresher does not write executable paths into it), so a node
// without one keeps sleeping.
func streamCatchup(ctx context.Context, state *State, pool SSHPool, suppressor *Suppressor, alerts AlertTransport, metrics Metrics, validatorIdx, nodeIdx int, validator ValidatorConfig, thresholds func() AlertThresholds, log zerolog.Logger) {
	node := validator.Nodes[nodeIdx]
	firedancer := node.ValidatorType == ValidatorFiredancer
	var streamFailures uint32

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cmd, ok := catchupCommand(node)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(30 * time.Second):
			}
			// Re-read the node config; nothing updates it after startup.
			node = state.Validator(validatorIdx).Nodes[nodeIdx]
			continue
		}

		lines := make(chan string, 100)
		streamErrCh := make(chan error, 1)
		streamCtx, cancel := context.WithCancel(ctx)

		go func() {
			streamErrCh <- pool.ExecuteCommandStreaming(streamCtx, node, cmd, lines)
		}()

		processDone := make(chan struct{})
		go func() {
			defer close(processDone)
			for line := range lines {
				text := parseCatchupOutput(strings.TrimSpace(line), firedancer)
				state.UpdateCatchup(validatorIdx, nodeIdx, text, true)
			}
		}()

		select {
		case err := <-streamErrCh:
			if err != nil {
				streamFailures++
				metrics.ProbeFailure("catchup", validator.IdentityPubkey)
				log.Error().Err(err).Str("node", node.Label).Msg("catchup streaming error")
				maybeSendCatchupFailureAlert(ctx, suppressor, alerts, thresholds(), validatorIdx, nodeIdx, validator, node, streamFailures, log)
			} else {
				streamFailures = 0
			}
		case <-processDone:
			streamFailures = 0
		case <-ctx.Done():
			cancel()
			return
		}
		cancel()
		<-processDone

		state.SetCatchupStreaming(validatorIdx, nodeIdx, false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// maybeSendCatchupFailureAlert sends the standby catchup failure alert.
// The pathway ships disabled; whether to enable it is operator policy.
func maybeSendCatchupFailureAlert(ctx context.Context, suppressor *Suppressor, alerts AlertTransport, thresholds AlertThresholds, validatorIdx, nodeIdx int, validator ValidatorConfig, node NodeConfig, consecutive uint32, log zerolog.Logger) {
	if !thresholds.Enabled || !thresholds.CatchupAlertsEnabled {
		return
	}
	if consecutive < catchupAlertAfterFailures {
		return
	}
	if !suppressor.ShouldSendCatchupFailure(validatorIdx, nodeIdx, time.Now()) {
		return
	}
	if err := alerts.SendCatchupFailureAlert(ctx, validator.IdentityPubkey, node.Label, consecutive); err != nil {
		log.Error().Err(err).Str("node", node.Label).Msg("failed to send catchup failure alert")
	}
}
