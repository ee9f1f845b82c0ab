// Package engine implements the concurrent monitoring and failover core of
// the operator console: the background probes, the shared state they
// mutate, the failure-tracking state machines, alert suppression, and the
// emergency failover orchestrator.
package engine

import "time"

// ValidatorType classifies the validator client software running on a node.
type ValidatorType int

const (
	ValidatorUnknown ValidatorType = iota
	ValidatorFiredancer
	ValidatorAgave
	ValidatorJito
)

func (t ValidatorType) String() string {
	switch t {
	case ValidatorFiredancer:
		return "Firedancer"
	case ValidatorAgave:
		return "Agave"
	case ValidatorJito:
		return "Jito"
	default:
		return "Unknown"
	}
}

// NodeRole is the derived Active/Standby/Unknown role of a node within a pair.
type NodeRole int

const (
	RoleUnknown NodeRole = iota
	RoleActive
	RoleStandby
)

func (r NodeRole) String() string {
	switch r {
	case RoleActive:
		return "Active"
	case RoleStandby:
		return "Standby"
	default:
		return "Unknown"
	}
}

// DeriveRole computes a node's role from its reported identity. Role is
// always derived, never stored as primary truth.
func DeriveRole(currentIdentity string, identityPubkey string) NodeRole {
	if currentIdentity == "" {
		return RoleUnknown
	}
	if currentIdentity == identityPubkey {
		return RoleActive
	}
	return RoleStandby
}

// NodeConfig is the static, startup-constructed description of a physical
// host. It never changes after construction.
type NodeConfig struct {
	Label                    string
	Host                     string
	SSHUser                  string
	SSHKeyPath               string
	ValidatorType            ValidatorType
	SolanaCLIExecutable      string
	AgaveValidatorExecutable string
	FdctlExecutable          string
	LedgerPath               string
	FundedKeypairPath        string
	UnfundedKeypairPath      string
}

// ValidatorConfig is the static, startup-constructed description of one
// logical validator and its ordered node pair.
type ValidatorConfig struct {
	IdentityPubkey string
	VotePubkey     string
	RPCEndpoint    string
	WSEndpoint     string // optional; empty disables the websocket vote watcher (debug logging only)
	Nodes          [2]NodeConfig
}

// NodeState is the dynamic, probe-maintained view of a node: identity,
// version, sync status and role as last observed.
type NodeState struct {
	CurrentIdentity string
	Version         string
	SyncStatus      string
	SwapReady       bool
	Role            NodeRole
}

// FailureTracker is the uniform counter+timestamp record used by every
// failure-prone probe.
//
// Invariant: FirstFailureAt is non-zero iff ConsecutiveFailures > 0.
type FailureTracker struct {
	ConsecutiveFailures uint32
	FirstFailureAt      time.Time
	LastError           string
}

// RecordSuccess resets the tracker to its zero-failure state.
func (f *FailureTracker) RecordSuccess() {
	f.ConsecutiveFailures = 0
	f.FirstFailureAt = time.Time{}
	f.LastError = ""
}

// RecordFailure increments the failure count, arming FirstFailureAt on the
// first consecutive failure, and records the error message.
func (f *FailureTracker) RecordFailure(err string) {
	if f.ConsecutiveFailures == 0 {
		f.FirstFailureAt = time.Now()
	}
	f.ConsecutiveFailures++
	f.LastError = err
}

// SecondsSinceFirstFailure returns the elapsed duration since the start of
// the current failure run, and whether a run is in progress. It is
// monotonic within a run.
func (f *FailureTracker) SecondsSinceFirstFailure() (uint64, bool) {
	if f.ConsecutiveFailures == 0 {
		return 0, false
	}
	elapsed := time.Since(f.FirstFailureAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return uint64(elapsed.Seconds()), true
}

// NodeHealth aggregates SSH and RPC failure history plus voting status for
// one validator.
type NodeHealth struct {
	SSH          FailureTracker
	RPC          FailureTracker
	IsVoting     bool
	LastVoteSlot *uint64
	LastVoteTime *time.Time
}

// VoteObservation is the latest successful vote-account read plus the
// derived slot-advance pair.
type VoteObservation struct {
	LastSlot            uint64
	RecentVotes         []VoteRecord
	IsVoting            bool
	LastSlotChangedAt   time.Time
	HasLastSlotChangeAt bool
}

// VoteRecord is a single lockout entry from a vote account's recent vote history.
type VoteRecord struct {
	Slot uint64
}

// CatchupStatus is the per-(validator,node) streamed sync status.
type CatchupStatus struct {
	Text        string
	LastUpdated time.Time
	IsStreaming bool
}

// SSHHealthStatus is the per-(validator,node) reachability record.
type SSHHealthStatus struct {
	IsHealthy    bool
	LastSuccess  time.Time
	HasSuccess   bool
	FailureStart time.Time
	HasFailure   bool
}

// FieldRefreshFlags tints the UI while an on-demand re-probe is in flight.
type FieldRefreshFlags struct {
	StatusRefreshing   bool
	IdentityRefreshing bool
	VersionRefreshing  bool
	CatchupRefreshing  bool
	HealthRefreshing   bool
}

// ViewState is the single global UI mode.
type ViewState int

const (
	ViewStatus ViewState = iota
	ViewSwitch
)

// AlertThresholds carries the configured, per-process alert policy.
type AlertThresholds struct {
	Enabled                     bool
	AutoFailoverEnabled         bool
	DelinquencyThresholdSeconds uint64
	SSHFailureThresholdSeconds  uint64
	RPCFailureThresholdSeconds  uint64
	CatchupSuppressionWindow    time.Duration

	// CatchupAlertsEnabled gates the standby catchup-failure alert pathway.
	// Off by default; the types and suppression bucket stay wired so an
	// operator can turn it on without a code change.
	CatchupAlertsEnabled bool
}

// DefaultAlertThresholds returns the stock alert policy.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		Enabled:                     false,
		AutoFailoverEnabled:         false,
		DelinquencyThresholdSeconds: 30,
		SSHFailureThresholdSeconds:  1800,
		RPCFailureThresholdSeconds:  1800,
		CatchupSuppressionWindow:    300 * time.Second,
	}
}

// FailoverState is the Emergency Failover Orchestrator's state machine.
type FailoverState int

const (
	FailoverIdle FailoverState = iota
	FailoverSuspending
	FailoverExecuting
	FailoverSettling
)
