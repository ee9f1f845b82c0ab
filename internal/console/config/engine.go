package config

import (
	"strings"

	"github.com/pushchain/validator-console/internal/console/engine"
)

// parseValidatorType maps the yaml validator_type string to the engine's
// classification, inferring from configured executables when unset.
func parseValidatorType(n NodeConfig) engine.ValidatorType {
	switch strings.ToLower(strings.TrimSpace(n.ValidatorType)) {
	case "firedancer":
		return engine.ValidatorFiredancer
	case "agave":
		return engine.ValidatorAgave
	case "jito":
		return engine.ValidatorJito
	}
	if n.FdctlExecutable != "" {
		return engine.ValidatorFiredancer
	}
	if n.AgaveValidatorExecutable != "" {
		return engine.ValidatorAgave
	}
	return engine.ValidatorUnknown
}

func engineNode(n NodeConfig) engine.NodeConfig {
	return engine.NodeConfig{
		Label:                    n.Label,
		Host:                     n.Host,
		SSHUser:                  n.SSHUser,
		SSHKeyPath:               n.SSHKeyPath,
		ValidatorType:            parseValidatorType(n),
		SolanaCLIExecutable:      n.SolanaCLIExecutable,
		AgaveValidatorExecutable: n.AgaveValidatorExecutable,
		FdctlExecutable:          n.FdctlExecutable,
		LedgerPath:               n.LedgerPath,
		FundedKeypairPath:        n.FundedKeypairPath,
		UnfundedKeypairPath:      n.UnfundedKeypairPath,
	}
}

// EngineValidators converts the loaded topology into the engine's
// startup-fixed validator list. Load has already verified each validator
// carries exactly two nodes.
func (c Config) EngineValidators() []engine.ValidatorConfig {
	out := make([]engine.ValidatorConfig, len(c.Validators))
	for i, v := range c.Validators {
		out[i] = engine.ValidatorConfig{
			IdentityPubkey: v.IdentityPubkey,
			VotePubkey:     v.VotePubkey,
			RPCEndpoint:    v.RPCEndpoint,
			WSEndpoint:     v.WSEndpoint,
			Nodes:          [2]engine.NodeConfig{engineNode(v.Nodes[0]), engineNode(v.Nodes[1])},
		}
	}
	return out
}

// Thresholds converts the alert policy into the engine's threshold set.
func (a AlertConfig) Thresholds() engine.AlertThresholds {
	return engine.AlertThresholds{
		Enabled:                     boolVal(a.Enabled),
		AutoFailoverEnabled:         boolVal(a.AutoFailoverEnabled),
		DelinquencyThresholdSeconds: uint64Val(a.DelinquencyThresholdSeconds),
		SSHFailureThresholdSeconds:  uint64Val(a.SSHFailureThresholdSeconds),
		RPCFailureThresholdSeconds:  uint64Val(a.RPCFailureThresholdSeconds),
		CatchupSuppressionWindow:    a.CatchupSuppressionWindow(),
		CatchupAlertsEnabled:        boolVal(a.CatchupAlertsEnabled),
	}
}
