// Package config loads the operator console's configuration file: the
// validator/node topology and the alert policy.
package config

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeConfig describes one physical host in a validator pair.
type NodeConfig struct {
	Label                    string `yaml:"label"`
	Host                     string `yaml:"host"`
	SSHUser                  string `yaml:"ssh_user"`
	SSHKeyPath               string `yaml:"ssh_key_path"`
	ValidatorType            string `yaml:"validator_type"` // firedancer|agave|jito, empty = inferred
	SolanaCLIExecutable      string `yaml:"solana_cli_executable"`
	AgaveValidatorExecutable string `yaml:"agave_validator_executable"`
	FdctlExecutable          string `yaml:"fdctl_executable"`
	LedgerPath               string `yaml:"ledger_path"`
	FundedKeypairPath        string `yaml:"funded_keypair_path"`
	UnfundedKeypairPath      string `yaml:"unfunded_keypair_path"`
}

// ValidatorConfig describes one logical validator and its ordered node pair.
type ValidatorConfig struct {
	IdentityPubkey string       `yaml:"identity_pubkey"`
	VotePubkey     string       `yaml:"vote_pubkey"`
	RPCEndpoint    string       `yaml:"rpc_endpoint"`
	WSEndpoint     string       `yaml:"ws_endpoint"`
	Nodes          []NodeConfig `yaml:"nodes"`
}

// TeleConfig holds Telegram bot alert-transport settings, modeled on
// tenderduty's TeleConfig.
type TeleConfig struct {
	Enabled *bool  `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Channel string `yaml:"channel"`
}

// DiscordConfig holds Discord webhook alert-transport settings.
type DiscordConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Webhook string `yaml:"webhook"`
}

// SlackConfig holds Slack webhook alert-transport settings.
type SlackConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Webhook string `yaml:"webhook"`
}

// AlertConfig is the operator-facing alert policy.
type AlertConfig struct {
	Enabled                     *bool   `yaml:"enabled"`
	AutoFailoverEnabled         *bool   `yaml:"auto_failover_enabled"`
	DelinquencyThresholdSeconds *uint64 `yaml:"delinquency_threshold_seconds"`
	SSHFailureThresholdSeconds  *uint64 `yaml:"ssh_failure_threshold_seconds"`
	RPCFailureThresholdSeconds  *uint64 `yaml:"rpc_failure_threshold_seconds"`
	CatchupSuppressionSeconds   *uint64 `yaml:"catchup_suppression_seconds"`
	CatchupAlertsEnabled        *bool   `yaml:"catchup_alerts_enabled"`

	Telegram TeleConfig    `yaml:"telegram"`
	Discord  DiscordConfig `yaml:"discord"`
	Slack    SlackConfig   `yaml:"slack"`
}

// MetricsConfig is the optional Prometheus exposition side-channel,
// disabled by default.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Config is the top-level console.yaml shape.
type Config struct {
	Validators  []ValidatorConfig `yaml:"validators"`
	AlertConfig AlertConfig       `yaml:"alert_config"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// defaultAlertConfig carries the stock thresholds applied under any
// operator overrides.
func defaultAlertConfig() AlertConfig {
	return AlertConfig{
		Enabled:                     boolPtr(false),
		AutoFailoverEnabled:         boolPtr(false),
		DelinquencyThresholdSeconds: uint64Ptr(30),
		SSHFailureThresholdSeconds:  uint64Ptr(1800),
		RPCFailureThresholdSeconds:  uint64Ptr(1800),
		CatchupSuppressionSeconds:   uint64Ptr(300),
		CatchupAlertsEnabled:        boolPtr(false),
	}
}

func boolPtr(v bool) *bool       { return &v }
func uint64Ptr(v uint64) *uint64 { return &v }

// Load reads and parses a console.yaml file at path, applying defaults to
// any alert-config field the operator left unset.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading console config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing console config %s: %w", path, err)
	}

	applyAlertDefaults(&cfg.AlertConfig, defaultAlertConfig())

	if len(cfg.Validators) == 0 {
		return Config{}, fmt.Errorf("console config %s declares no validators", path)
	}
	for i, v := range cfg.Validators {
		if len(v.Nodes) != 2 {
			return Config{}, fmt.Errorf("validator %d (%s): exactly 2 nodes required, got %d", i, v.IdentityPubkey, len(v.Nodes))
		}
		if v.IdentityPubkey == "" || v.VotePubkey == "" || v.RPCEndpoint == "" {
			return Config{}, fmt.Errorf("validator %d: identity_pubkey, vote_pubkey and rpc_endpoint are required", i)
		}
	}
	return cfg, nil
}

// applyAlertDefaults copies nil top-level pointer fields from defaults into
// cfg; nested structs (the transport sections) are not descended into.
// Grounded on tenderduty's
// applyAlertDefaults (td2-types.go), which implements the same
// explicit-override-over-default-merge policy used here.
func applyAlertDefaults(cfg *AlertConfig, defaults AlertConfig) {
	dv := reflect.ValueOf(cfg).Elem()
	sv := reflect.ValueOf(defaults)
	for i := 0; i < dv.NumField(); i++ {
		df := dv.Field(i)
		sf := sv.Field(i)
		if !df.CanSet() {
			continue
		}
		if df.Kind() == reflect.Pointer && df.IsNil() {
			df.Set(sf)
		}
	}
}

// CatchupSuppressionWindow returns the configured per-(validator,node)
// catchup-failure cooldown as a duration.
func (a AlertConfig) CatchupSuppressionWindow() time.Duration {
	if a.CatchupSuppressionSeconds == nil {
		return 300 * time.Second
	}
	return time.Duration(*a.CatchupSuppressionSeconds) * time.Second
}

func boolVal(p *bool) bool {
	return p != nil && *p
}

func uint64Val(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}

// EnabledVal reports whether alerting is globally enabled.
func (a AlertConfig) EnabledVal() bool { return boolVal(a.Enabled) }

// AutoFailoverVal reports whether auto-failover is enabled.
func (a AlertConfig) AutoFailoverVal() bool { return boolVal(a.AutoFailoverEnabled) }

// DelinquencyThreshold returns the configured delinquency threshold in seconds.
func (a AlertConfig) DelinquencyThreshold() uint64 { return uint64Val(a.DelinquencyThresholdSeconds) }

// SSHFailureThreshold returns the configured SSH-failure threshold in seconds.
func (a AlertConfig) SSHFailureThreshold() uint64 { return uint64Val(a.SSHFailureThresholdSeconds) }

// RPCFailureThreshold returns the configured RPC-failure threshold in seconds.
func (a AlertConfig) RPCFailureThreshold() uint64 { return uint64Val(a.RPCFailureThresholdSeconds) }
