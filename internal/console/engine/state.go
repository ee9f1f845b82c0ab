package engine

import (
	"sync"
	"time"
)

// NodePair indexes the two fixed per-validator slots. Index 0/1 is the
// pair order fixed at startup; display position is derived from index,
// never from role.
type NodePair[T any] struct {
	Node0 T
	Node1 T
}

// Get returns the element at nodeIdx (0 or 1).
func (p *NodePair[T]) Get(nodeIdx int) *T {
	if nodeIdx == 0 {
		return &p.Node0
	}
	return &p.Node1
}

// ValidatorSnapshot is an immutable copy of one validator's state, handed to
// the UI for a single frame's render; the render proceeds on copied data
// with no lock held.
type ValidatorSnapshot struct {
	Config          ValidatorConfig
	NodeStates      NodePair[NodeState]
	VoteObservation VoteObservation
	IncrementFlash  time.Time
	HasIncrement    bool
	Health          NodeHealth
	RPCFailures     FailureTracker
	Catchup         NodePair[CatchupStatus]
	SSHHealth       NodePair[SSHHealthStatus]
	RefreshFlags    NodePair[FieldRefreshFlags]
}

// State is the single authoritative mutable aggregate shared by every
// probe and the UI. All interior vectors are sized once at construction
// and never resized.
//
// Writers must hold the lock only for the logically atomic update and must
// release it before any I/O.
type State struct {
	mu sync.RWMutex

	validators []ValidatorConfig

	nodeStates     []NodePair[NodeState]
	voteObs        []VoteObservation
	incrementFlash []time.Time
	hasIncrement   []bool
	health         []NodeHealth
	catchup        []NodePair[CatchupStatus]
	sshHealth      []NodePair[SSHHealthStatus]
	refreshFlags   []NodePair[FieldRefreshFlags]

	lastVoteRefresh      time.Time
	lastCatchupRefresh   time.Time
	lastSSHHealthRefresh time.Time
	isRefreshing         bool

	view                        ViewState
	emergencyTakeoverInProgress bool
	switchConfirmed             bool
	quit                        bool
}

// NewState constructs the shared aggregate for a fixed set of validators.
// Interior vectors are sized once here and never resized afterward.
func NewState(validators []ValidatorConfig) *State {
	n := len(validators)
	s := &State{
		validators:     append([]ValidatorConfig(nil), validators...),
		nodeStates:     make([]NodePair[NodeState], n),
		voteObs:        make([]VoteObservation, n),
		incrementFlash: make([]time.Time, n),
		hasIncrement:   make([]bool, n),
		health:         make([]NodeHealth, n),
		catchup:        make([]NodePair[CatchupStatus], n),
		sshHealth:      make([]NodePair[SSHHealthStatus], n),
		refreshFlags:   make([]NodePair[FieldRefreshFlags], n),
		view:           ViewStatus,
	}
	now := time.Now()
	for i := range s.sshHealth {
		s.sshHealth[i].Node0 = SSHHealthStatus{IsHealthy: true, LastSuccess: now, HasSuccess: true}
		s.sshHealth[i].Node1 = SSHHealthStatus{IsHealthy: true, LastSuccess: now, HasSuccess: true}
	}
	return s
}

// ValidatorCount returns the fixed number of validators.
func (s *State) ValidatorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.validators)
}

// Validator returns a copy of the static config at idx.
func (s *State) Validator(idx int) ValidatorConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validators[idx]
}

// Snapshot takes a single shared-access read for one frame and returns
// immutable copies of every validator's state.
func (s *State) Snapshot() []ValidatorSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ValidatorSnapshot, len(s.validators))
	for i := range s.validators {
		out[i] = ValidatorSnapshot{
			Config:          s.validators[i],
			NodeStates:      s.nodeStates[i],
			VoteObservation: s.voteObs[i],
			IncrementFlash:  s.incrementFlash[i],
			HasIncrement:    s.hasIncrement[i],
			Health:          s.health[i],
			RPCFailures:     s.health[i].RPC,
			Catchup:         s.catchup[i],
			SSHHealth:       s.sshHealth[i],
			RefreshFlags:    s.refreshFlags[i],
		}
	}
	return out
}

// IsRefreshing reports the global refresh spinner flag.
func (s *State) IsRefreshing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRefreshing
}

// View returns the current UI mode.
func (s *State) View() ViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// SetView sets the current UI mode.
func (s *State) SetView(v ViewState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = v
}

// EmergencyInProgress reports the failover suspension flag.
func (s *State) EmergencyInProgress() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emergencyTakeoverInProgress
}

// SetEmergencyInProgress sets the failover suspension flag.
func (s *State) SetEmergencyInProgress(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergencyTakeoverInProgress = v
}

// SwitchConfirmed reports whether the operator confirmed a manual switch.
func (s *State) SwitchConfirmed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.switchConfirmed
}

// SetSwitchConfirmed records a manual switch confirmation.
func (s *State) SetSwitchConfirmed(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchConfirmed = v
}

// Quit reports the cooperative quit flag.
func (s *State) Quit() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quit
}

// RequestQuit sets the cooperative quit flag.
func (s *State) RequestQuit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quit = true
}

// SetAllRefreshFlags sets every node's status/identity/version refresh
// flags for validator idx (used by the Field Refresher's entry step).
func (s *State) SetAllRefreshFlags(idx int, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, node := range []*FieldRefreshFlags{&s.refreshFlags[idx].Node0, &s.refreshFlags[idx].Node1} {
		node.StatusRefreshing = v
		node.IdentityRefreshing = v
		node.VersionRefreshing = v
	}
}

// SetRefreshing sets the global refresh spinner flag.
func (s *State) SetRefreshing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRefreshing = v
}

// SetAllRefreshFlagsForEveryValidator sets refresh flags across all
// validators at once (triggered on UI entry and the refresh key).
func (s *State) SetAllRefreshFlagsForEveryValidator(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.refreshFlags {
		for _, node := range []*FieldRefreshFlags{&s.refreshFlags[i].Node0, &s.refreshFlags[i].Node1} {
			node.StatusRefreshing = v
			node.IdentityRefreshing = v
			node.VersionRefreshing = v
		}
	}
}

// UpdateIdentityAndStatus writes the Field Refresher's identity/role/sync
// result for one (validator, node) and clears its status/identity refresh
// flags.
func (s *State) UpdateIdentityAndStatus(validatorIdx, nodeIdx int, identity string, role NodeRole, sync string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node := s.nodeStates[validatorIdx].Get(nodeIdx)
	node.CurrentIdentity = identity
	node.Role = role
	node.SyncStatus = sync

	flags := s.refreshFlags[validatorIdx].Get(nodeIdx)
	flags.StatusRefreshing = false
	flags.IdentityRefreshing = false
}

// UpdateVersion writes the Field Refresher's version/type result for one
// (validator, node) and clears its version refresh flag.
func (s *State) UpdateVersion(validatorIdx, nodeIdx int, vtype ValidatorType, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node := s.nodeStates[validatorIdx].Get(nodeIdx)
	node.Version = version
	// The classified validator type is not stored: NodeState has no type
	// field, and the node's static config keeps its startup type.
	_ = vtype

	flags := s.refreshFlags[validatorIdx].Get(nodeIdx)
	flags.VersionRefreshing = false
}

// UpdateCatchup writes the latest streamed catchup line for one
// (validator, node).
func (s *State) UpdateCatchup(validatorIdx, nodeIdx int, text string, streaming bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.catchup[validatorIdx].Get(nodeIdx)
	c.Text = text
	c.LastUpdated = time.Now()
	c.IsStreaming = streaming
}

// SetCatchupStreaming toggles only the is_streaming flag for one
// (validator, node), preserving the last parsed text (used when a stream
// ends).
func (s *State) SetCatchupStreaming(validatorIdx, nodeIdx int, streaming bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catchup[validatorIdx].Get(nodeIdx).IsStreaming = streaming
}

// UpdateSSHHealth applies a single SSH probe result for one (validator,
// node), preserving last_success across failures and setting failure_start
// only on the healthy->unhealthy edge.
func (s *State) UpdateSSHHealth(validatorIdx, nodeIdx int, healthy bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.sshHealth[validatorIdx].Get(nodeIdx)
	if healthy {
		h.IsHealthy = true
		h.LastSuccess = now
		h.HasSuccess = true
		h.HasFailure = false
	} else {
		wasHealthy := h.IsHealthy
		h.IsHealthy = false
		if wasHealthy || !h.HasFailure {
			h.FailureStart = now
			h.HasFailure = true
		}
	}
}

// RecordSSHSuccess / RecordSSHFailure mutate the per-validator NodeHealth.SSH
// tracker (distinct from the per-node SSHHealthStatus display record).
func (s *State) RecordSSHSuccess(validatorIdx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[validatorIdx].SSH.RecordSuccess()
}

func (s *State) RecordSSHFailure(validatorIdx int, errMsg string) (consecutive uint32, seconds uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[validatorIdx].SSH.RecordFailure(errMsg)
	secs, _ := s.health[validatorIdx].SSH.SecondsSinceFirstFailure()
	return s.health[validatorIdx].SSH.ConsecutiveFailures, secs
}

// RPCTracker returns a copy of the validator's RPC failure tracker.
func (s *State) RPCTracker(validatorIdx int) FailureTracker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health[validatorIdx].RPC
}

func (s *State) SSHTracker(validatorIdx int) FailureTracker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health[validatorIdx].SSH
}

func (s *State) Health(validatorIdx int) NodeHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health[validatorIdx]
}

// RecordRPCSuccess resets the validator's RPC failure tracker.
func (s *State) RecordRPCSuccess(validatorIdx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[validatorIdx].RPC.RecordSuccess()
}

// RecordRPCFailure records an RPC failure and returns the post-update
// consecutive count and elapsed seconds, for the caller to decide on
// alerting outside the lock.
func (s *State) RecordRPCFailure(validatorIdx int, errMsg string) (consecutive uint32, seconds uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[validatorIdx].RPC.RecordFailure(errMsg)
	secs, _ := s.health[validatorIdx].RPC.SecondsSinceFirstFailure()
	return s.health[validatorIdx].RPC.ConsecutiveFailures, secs
}

// ApplyVoteObservation applies one poll's result for validator idx under a
// single write lock, implementing the slot-advance, increment-flash and
// delinquency-clock update rules. It returns the seconds elapsed since the
// last slot change, whether the slot advanced (which clears delinquency
// suppression upstream), and whether a slot-advance pair exists at all, so
// the delinquency clock can be considered for an alert this tick.
func (s *State) ApplyVoteObservation(idx int, obs *VoteObservation, rpcErr error, now time.Time) (secondsSinceChange uint64, slotAdvanced bool, haveSlot bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.voteObs[idx]

	if rpcErr != nil {
		// RPC failure: preserve the previous slot-advance pair; an outage must
		// never reset the delinquency clock.
		if prev.HasLastSlotChangeAt {
			secondsSinceChange = uint64(now.Sub(prev.LastSlotChangedAt).Seconds())
			haveSlot = true
		}
		s.hasIncrement[idx] = false
		return secondsSinceChange, false, haveSlot
	}

	newSlot := obs.LastSlot
	haveSlot = true

	// The slot-advance time updates iff the observed slot strictly
	// increases; a first-ever observation also establishes the pair.
	strictlyIncreased := !prev.HasLastSlotChangeAt || newSlot > prev.LastSlot
	if strictlyIncreased {
		obs.LastSlotChangedAt = now
		obs.HasLastSlotChangeAt = true
		slotAdvanced = prev.HasLastSlotChangeAt && newSlot > prev.LastSlot
	} else {
		obs.LastSlotChangedAt = prev.LastSlotChangedAt
		obs.HasLastSlotChangeAt = true
	}

	if prev.HasLastSlotChangeAt && newSlot > prev.LastSlot {
		s.incrementFlash[idx] = now
		s.hasIncrement[idx] = true
	} else if s.hasIncrement[idx] && now.Sub(s.incrementFlash[idx]) < 3*time.Second {
		// keep existing flash
	} else {
		s.hasIncrement[idx] = false
	}

	s.voteObs[idx] = *obs
	secondsSinceChange = uint64(now.Sub(obs.LastSlotChangedAt).Seconds())
	return secondsSinceChange, slotAdvanced, haveSlot
}

// VoteObservationSnapshot returns a copy of the current observation for idx.
func (s *State) VoteObservationSnapshot(idx int) VoteObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voteObs[idx]
}

func (s *State) SetLastVoteRefresh(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastVoteRefresh = t
}

func (s *State) SetLastSSHHealthRefresh(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSSHHealthRefresh = t
}
