package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// fakeRPC returns scripted observations per call.
type fakeRPC struct {
	mu     sync.Mutex
	obs    VoteObservation
	err    error
	calls  int
	byCall []func() (VoteObservation, error)
}

func (f *fakeRPC) FetchVoteAccountData(ctx context.Context, rpcURL, votePubkey string) (VoteObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.byCall) > 0 {
		fn := f.byCall[0]
		if len(f.byCall) > 1 {
			f.byCall = f.byCall[1:]
		}
		return fn()
	}
	return f.obs, f.err
}

func (f *fakeRPC) GetIdentity(ctx context.Context, rpcPort int) (string, error) {
	return "", fmt.Errorf("not implemented")
}

// fakeAlerts records every typed alert sent.
type fakeAlerts struct {
	mu          sync.Mutex
	delinquency int
	rpcFailures int
	sshFailures int
	catchup     int
	err         error
}

func (f *fakeAlerts) SendDelinquencyAlertWithHealth(ctx context.Context, identity, nodeLabel string, isActive bool, slot uint64, secondsSinceVote uint64, health NodeHealth) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delinquency++
	return f.err
}

func (f *fakeAlerts) SendRPCFailureAlert(ctx context.Context, identity, votePubkey string, consecutive uint32, seconds uint64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rpcFailures++
	return f.err
}

func (f *fakeAlerts) SendSSHFailureAlert(ctx context.Context, identity, nodeLabel string, consecutive uint32, seconds uint64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sshFailures++
	return f.err
}

func (f *fakeAlerts) SendCatchupFailureAlert(ctx context.Context, identity, nodeLabel string, consecutive uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catchup++
	return f.err
}

func (f *fakeAlerts) counts() (delinquency, rpc, sshf, catchup int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delinquency, f.rpcFailures, f.sshFailures, f.catchup
}

// fakeSpawner records failover spawn requests.
type fakeSpawner struct {
	mu     sync.Mutex
	spawns []int
}

func (f *fakeSpawner) Spawn(validatorIdx int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawns = append(f.spawns, validatorIdx)
	return nil
}

func (f *fakeSpawner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spawns)
}

// fakePool answers one-shot commands from a script keyed by substring.
type fakePool struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	commands  []string
}

func newFakePool() *fakePool {
	return &fakePool{responses: map[string]string{}, errs: map[string]error{}}
}

func (f *fakePool) ExecuteCommand(ctx context.Context, node NodeConfig, cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	for key, err := range f.errs {
		if key == "*" || containsSub(cmd, key) {
			return "", err
		}
	}
	for key, out := range f.responses {
		if containsSub(cmd, key) {
			return out, nil
		}
	}
	return "", nil
}

func (f *fakePool) ExecuteCommandWithArgs(ctx context.Context, node NodeConfig, argv0 string, args []string) (string, error) {
	return f.ExecuteCommand(ctx, node, argv0)
}

func (f *fakePool) ExecuteCommandStreaming(ctx context.Context, node NodeConfig, cmd string, lines chan<- string) error {
	close(lines)
	return nil
}

func containsSub(s, sub string) bool {
	return len(sub) > 0 && len(s) >= len(sub) && searchSub(s, sub)
}

func searchSub(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// fakeSwitcher records switch invocations.
type fakeSwitcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSwitcher) ExecuteSwitch(ctx context.Context, active, standby NodeConfig, validator ValidatorConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, active.Label+"->"+standby.Label)
	return f.err
}

func (f *fakeSwitcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

func testValidator() ValidatorConfig {
	return ValidatorConfig{
		IdentityPubkey: "identity-1",
		VotePubkey:     "vote-1",
		RPCEndpoint:    "http://rpc.test:8899",
		Nodes: [2]NodeConfig{
			{Label: "alpha", Host: "10.0.0.1", ValidatorType: ValidatorAgave, AgaveValidatorExecutable: "/usr/bin/agave-validator", LedgerPath: "/mnt/ledger"},
			{Label: "beta", Host: "10.0.0.2", ValidatorType: ValidatorAgave, AgaveValidatorExecutable: "/usr/bin/agave-validator", LedgerPath: "/mnt/ledger"},
		},
	}
}
