package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFailureTrackerInvariants(t *testing.T) {
	var tr FailureTracker

	// zero state: no run in progress
	require.Zero(t, tr.ConsecutiveFailures)
	require.True(t, tr.FirstFailureAt.IsZero())
	_, active := tr.SecondsSinceFirstFailure()
	require.False(t, active)

	tr.RecordFailure("boom")
	require.Equal(t, uint32(1), tr.ConsecutiveFailures)
	require.False(t, tr.FirstFailureAt.IsZero())
	require.Equal(t, "boom", tr.LastError)
	first := tr.FirstFailureAt

	// a second failure keeps the run start
	tr.RecordFailure("boom again")
	require.Equal(t, uint32(2), tr.ConsecutiveFailures)
	require.Equal(t, first, tr.FirstFailureAt)
	require.Equal(t, "boom again", tr.LastError)

	// record_failure then record_success yields a fresh tracker
	tr.RecordSuccess()
	require.Equal(t, FailureTracker{}, tr)
}

func TestFailureTrackerSecondsSinceFirstFailure(t *testing.T) {
	var tr FailureTracker
	tr.RecordFailure("x")
	tr.FirstFailureAt = time.Now().Add(-42 * time.Second)

	secs, active := tr.SecondsSinceFirstFailure()
	require.True(t, active)
	require.GreaterOrEqual(t, secs, uint64(42))
	require.Less(t, secs, uint64(45))
}

func TestDeriveRole(t *testing.T) {
	cases := []struct {
		name     string
		current  string
		identity string
		want     NodeRole
	}{
		{"matching identity is active", "pub-a", "pub-a", RoleActive},
		{"different identity is standby", "pub-b", "pub-a", RoleStandby},
		{"unknown identity is unknown", "", "pub-a", RoleUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveRole(tc.current, tc.identity))
		})
	}
}

func TestValidatorTypeString(t *testing.T) {
	require.Equal(t, "Firedancer", ValidatorFiredancer.String())
	require.Equal(t, "Agave", ValidatorAgave.String())
	require.Equal(t, "Jito", ValidatorJito.String())
	require.Equal(t, "Unknown", ValidatorUnknown.String())
}
