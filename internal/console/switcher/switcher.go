// Package switcher implements the identity-swap/tower-transfer mechanism
// the engine invokes on an emergency failover or an operator-confirmed
// switch. The engine only decides to run it; this package owns the
// mechanics: demote the active node to its unfunded
// identity, move the tower file so the new active node cannot vote on a
// lockout it has already violated, then promote the standby with the
// funded identity.
package switcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pushchain/validator-console/internal/console/engine"
)

// Switcher implements engine.SwitchMechanism over the SSH pool.
type Switcher struct {
	pool engine.SSHPool
	log  zerolog.Logger
}

// New constructs a Switcher.
func New(pool engine.SSHPool, log zerolog.Logger) *Switcher {
	return &Switcher{pool: pool, log: log}
}

// ExecuteSwitch performs the three-step takeover. Steps run in strict
// order; a demote failure aborts before the tower moves, so a half-applied
// swap never leaves both nodes holding the funded identity.
func (s *Switcher) ExecuteSwitch(ctx context.Context, active, standby engine.NodeConfig, validator engine.ValidatorConfig) error {
	s.log.Info().
		Str("validator", validator.IdentityPubkey).
		Str("active", active.Label).
		Str("standby", standby.Label).
		Msg("starting identity swap")

	if err := s.setIdentity(ctx, active, active.UnfundedKeypairPath, false); err != nil {
		return fmt.Errorf("demote %s: %w", active.Label, err)
	}
	s.log.Info().Str("node", active.Label).Msg("active node demoted to unfunded identity")

	if err := s.transferTower(ctx, active, standby, validator.IdentityPubkey); err != nil {
		return fmt.Errorf("tower transfer %s -> %s: %w", active.Label, standby.Label, err)
	}
	s.log.Info().Str("from", active.Label).Str("to", standby.Label).Msg("tower transferred")

	if err := s.setIdentity(ctx, standby, standby.FundedKeypairPath, true); err != nil {
		return fmt.Errorf("promote %s: %w", standby.Label, err)
	}
	s.log.Info().Str("node", standby.Label).Str("validator", validator.IdentityPubkey).Msg("standby node promoted, swap complete")
	return nil
}

// setIdentity points a node's running validator at keypair. requireTower
// is set on promotion so the new active node refuses to vote without the
// transferred tower.
func (s *Switcher) setIdentity(ctx context.Context, node engine.NodeConfig, keypair string, requireTower bool) error {
	if keypair == "" {
		return fmt.Errorf("node %s has no keypair path configured", node.Label)
	}

	var cmd string
	switch node.ValidatorType {
	case engine.ValidatorFiredancer:
		if node.FdctlExecutable == "" {
			return fmt.Errorf("node %s has no fdctl executable configured", node.Label)
		}
		cmd = fmt.Sprintf("%s set-identity %s", node.FdctlExecutable, keypair)
		if requireTower {
			cmd += " --require-tower"
		}
	default:
		if node.AgaveValidatorExecutable == "" {
			return fmt.Errorf("node %s has no agave-validator executable configured", node.Label)
		}
		cmd = fmt.Sprintf("%s -l %s set-identity", node.AgaveValidatorExecutable, node.LedgerPath)
		if requireTower {
			cmd += " --require-tower"
		}
		cmd += " " + keypair
	}

	out, err := s.pool.ExecuteCommand(ctx, node, cmd)
	if err != nil {
		return fmt.Errorf("%w (output: %s)", err, strings.TrimSpace(out))
	}
	return nil
}

// transferTower copies the tower file for identity from the old active
// node's ledger to the standby's, base64-encoded in transit so the binary
// survives the shell round trip.
func (s *Switcher) transferTower(ctx context.Context, from, to engine.NodeConfig, identity string) error {
	towerFile := fmt.Sprintf("tower-1_9-%s.bin", identity)

	readCmd := fmt.Sprintf("base64 < %s/%s", from.LedgerPath, towerFile)
	encoded, err := s.pool.ExecuteCommand(ctx, from, readCmd)
	if err != nil {
		return fmt.Errorf("read tower on %s: %w", from.Label, err)
	}
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return fmt.Errorf("tower file %s empty or missing on %s", towerFile, from.Label)
	}

	writeCmd := fmt.Sprintf("echo '%s' | base64 -d > %s/%s", encoded, to.LedgerPath, towerFile)
	if _, err := s.pool.ExecuteCommand(ctx, to, writeCmd); err != nil {
		return fmt.Errorf("write tower on %s: %w", to.Label, err)
	}
	return nil
}
