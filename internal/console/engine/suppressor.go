package engine

import (
	"sync"
	"time"
)

// alertKind distinguishes the per-(validator,[node]) suppression buckets.
type alertKind int

const (
	alertDelinquency alertKind = iota
	alertRPCFailure
	alertSSHFailure
	alertCatchupFailure
)

type suppressionKey struct {
	kind         alertKind
	validatorIdx int
	nodeIdx      int // -1 for validator-scoped kinds
}

// Suppressor implements the uniform cooldown/threshold arbitration policy
// sitting in front of the alert transport: an alert is armed once its
// probe crosses a threshold, a single alert is emitted, and a re-alert
// requires either a cooldown window or (for delinquency) an observed
// recovery.
type Suppressor struct {
	mu         sync.Mutex
	lastAlerts map[suppressionKey]time.Time
	windows    map[alertKind]time.Duration
}

// NewSuppressor builds a suppressor with per-kind cooldown windows. For
// delinquency, the window is irrelevant because re-arming only happens on
// slot advance (ClearDelinquency); it is still recorded so ShouldSend's
// generic cooldown math never panics on a zero duration.
func NewSuppressor(thresholds AlertThresholds) *Suppressor {
	return &Suppressor{
		lastAlerts: make(map[suppressionKey]time.Time),
		windows: map[alertKind]time.Duration{
			alertDelinquency:    time.Duration(thresholds.DelinquencyThresholdSeconds) * time.Second,
			alertRPCFailure:     time.Duration(thresholds.RPCFailureThresholdSeconds) * time.Second,
			alertSSHFailure:     time.Duration(thresholds.SSHFailureThresholdSeconds) * time.Second,
			alertCatchupFailure: thresholds.CatchupSuppressionWindow,
		},
	}
}

// shouldSend reports whether an alert of this kind may be sent now. A true
// return is a side-effecting acknowledgement: the send is recorded
// immediately, so callers must actually send.
func (s *Suppressor) shouldSend(key suppressionKey, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastAlerts[key]
	if ok && now.Sub(last) < s.windows[key.kind] {
		return false
	}
	s.lastAlerts[key] = now
	return true
}

// ShouldSendDelinquency arbitrates the once-per-run delinquency alert. It
// re-arms only via ClearDelinquency (on slot advance), never via cooldown
// expiry, so the passed-in window is unused for this kind beyond bookkeeping.
func (s *Suppressor) ShouldSendDelinquency(validatorIdx int, now time.Time) bool {
	key := suppressionKey{kind: alertDelinquency, validatorIdx: validatorIdx, nodeIdx: -1}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, armed := s.lastAlerts[key]; armed {
		return false
	}
	s.lastAlerts[key] = now
	return true
}

// ClearDelinquency clears delinquency suppression for a validator; called
// whenever the observed slot advances.
func (s *Suppressor) ClearDelinquency(validatorIdx int) {
	key := suppressionKey{kind: alertDelinquency, validatorIdx: validatorIdx, nodeIdx: -1}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastAlerts, key)
}

// ShouldSendRPCFailure arbitrates the RPC-failure alert using the
// configured cooldown (the threshold window itself).
func (s *Suppressor) ShouldSendRPCFailure(validatorIdx int, now time.Time) bool {
	return s.shouldSend(suppressionKey{kind: alertRPCFailure, validatorIdx: validatorIdx, nodeIdx: -1}, now)
}

// ShouldSendSSHFailure arbitrates the per-(validator,node) SSH-failure alert.
func (s *Suppressor) ShouldSendSSHFailure(validatorIdx, nodeIdx int, now time.Time) bool {
	return s.shouldSend(suppressionKey{kind: alertSSHFailure, validatorIdx: validatorIdx, nodeIdx: nodeIdx}, now)
}

// ShouldSendCatchupFailure arbitrates the per-(validator,node) catchup
// failure alert using its own cooldown window. The pathway is wired but
// disabled by default; callers gate it on operator policy.
func (s *Suppressor) ShouldSendCatchupFailure(validatorIdx, nodeIdx int, now time.Time) bool {
	return s.shouldSend(suppressionKey{kind: alertCatchupFailure, validatorIdx: validatorIdx, nodeIdx: nodeIdx}, now)
}
