package engine

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Refresher implements the Field Refresher: an on-demand
// re-probe of identity, role, sync and version for all nodes, triggered by
// the UI on entry and on the 'r' key.
type Refresher struct {
	state *State
	pool  SSHPool
	rpc   ChainRPC
	log   zerolog.Logger
}

// NewRefresher constructs a Refresher bound to the shared state and its
// SSH/RPC collaborators.
func NewRefresher(state *State, pool SSHPool, rpc ChainRPC, log zerolog.Logger) *Refresher {
	return &Refresher{state: state, pool: pool, rpc: rpc, log: log}
}

// RefreshAll sets every node's refresh flags, spawns two concurrent
// sub-tasks per node after a 50ms delay, and clears the global refreshing
// flag once every sub-task completes.
//
// Probe failures are logged, never propagated, so the errgroup's error is
// intentionally discarded; only its Wait() barrier is used.
func (r *Refresher) RefreshAll(ctx context.Context) {
	r.state.SetRefreshing(true)
	r.state.SetAllRefreshFlagsForEveryValidator(true)
	defer r.state.SetRefreshing(false)

	n := r.state.ValidatorCount()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		idx := i
		g.Go(func() error {
			r.refreshValidator(gctx, idx)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Refresher) refreshValidator(ctx context.Context, validatorIdx int) {
	validator := r.state.Validator(validatorIdx)

	g, gctx := errgroup.WithContext(ctx)
	for nodeIdx := 0; nodeIdx < 2; nodeIdx++ {
		nodeIdx := nodeIdx
		g.Go(func() error {
			time.Sleep(50 * time.Millisecond)
			r.refreshIdentityStatusSync(gctx, validatorIdx, nodeIdx, validator)
			return nil
		})
		g.Go(func() error {
			time.Sleep(50 * time.Millisecond)
			r.refreshVersion(gctx, validatorIdx, nodeIdx, validator)
			return nil
		})
	}
	_ = g.Wait()
}

// resolveSolanaCLI derives the solana CLI path: explicit config, else
// derived from fdctl/agave-validator, else a best-effort remote probe.
func (r *Refresher) resolveSolanaCLI(ctx context.Context, node NodeConfig) string {
	if node.SolanaCLIExecutable != "" {
		return node.SolanaCLIExecutable
	}
	if node.ValidatorType == ValidatorFiredancer && node.FdctlExecutable != "" {
		return filepath.Join(filepath.Dir(node.FdctlExecutable), "solana")
	}
	if node.AgaveValidatorExecutable != "" {
		return strings.Replace(node.AgaveValidatorExecutable, "agave-validator", "solana", 1)
	}
	const probe = `which solana || ls /home/solana/.local/share/solana/install/active_release/bin/solana 2>/dev/null || echo solana`
	out, err := r.pool.ExecuteCommand(ctx, node, probe)
	if err != nil {
		return "solana"
	}
	path := strings.TrimSpace(out)
	if path == "" {
		return "solana"
	}
	return path
}

// resolveRPCPort detects the node's local JSON-RPC port from the running
// validator's command line or config file.
func (r *Refresher) resolveRPCPort(ctx context.Context, node NodeConfig) int {
	const defaultPort = 8899
	switch node.ValidatorType {
	case ValidatorFiredancer:
		out, err := r.pool.ExecuteCommand(ctx, node, `ps aux | grep -E 'bin/fdctl' | grep -v grep`)
		if err != nil {
			return defaultPort
		}
		configPath := firstConfigFlagValue(out, "--config")
		if configPath == "" {
			return defaultPort
		}
		grepCmd := fmt.Sprintf(`cat %s | grep -A 5 '\[rpc\]' | grep 'port' | grep -o '[0-9]\+' | head -1`, configPath)
		portOut, err := r.pool.ExecuteCommand(ctx, node, grepCmd)
		if err != nil {
			return defaultPort
		}
		if port, err := strconv.Atoi(strings.TrimSpace(portOut)); err == nil {
			return port
		}
		return defaultPort
	default:
		out, err := r.pool.ExecuteCommand(ctx, node, `ps aux | grep -E 'agave-validator|solana-validator' | grep -v grep`)
		if err != nil {
			return defaultPort
		}
		if port, ok := parseRPCPortFlag(out); ok {
			return port
		}
		return defaultPort
	}
}

func firstConfigFlagValue(psOutput string, flag string) string {
	scanner := bufio.NewScanner(strings.NewReader(psOutput))
	if !scanner.Scan() {
		return ""
	}
	fields := strings.Fields(scanner.Text())
	for i, f := range fields {
		if f == flag && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

func parseRPCPortFlag(psOutput string) (int, bool) {
	scanner := bufio.NewScanner(strings.NewReader(psOutput))
	if !scanner.Scan() {
		return 0, false
	}
	line := scanner.Text()
	pos := strings.Index(line, "--rpc-port")
	if pos < 0 {
		return 0, false
	}
	remaining := strings.TrimSpace(line[pos+len("--rpc-port"):])
	fields := strings.Fields(remaining)
	if len(fields) == 0 {
		return 0, false
	}
	port, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return port, true
}

func (r *Refresher) refreshIdentityStatusSync(ctx context.Context, validatorIdx, nodeIdx int, validator ValidatorConfig) {
	node := validator.Nodes[nodeIdx]
	solanaCLI := r.resolveSolanaCLI(ctx, node)
	rpcPort := r.resolveRPCPort(ctx, node)

	identity, err := r.rpc.GetIdentity(ctx, rpcPort)
	if err != nil {
		r.log.Warn().Str("node", node.Label).Err(err).Msg("getIdentity failed")
		r.state.UpdateIdentityAndStatus(validatorIdx, nodeIdx, "", RoleUnknown, "Unknown")
		return
	}
	role := DeriveRole(identity, validator.IdentityPubkey)

	syncStatus := r.fetchSyncStatus(ctx, node, solanaCLI)
	r.state.UpdateIdentityAndStatus(validatorIdx, nodeIdx, identity, role, syncStatus)
}

func (r *Refresher) fetchSyncStatus(ctx context.Context, node NodeConfig, solanaCLI string) string {
	cmd := fmt.Sprintf("timeout 10 %s catchup --our-localhost 2>&1", solanaCLI)
	out, err := r.pool.ExecuteCommand(ctx, node, cmd)
	if err != nil {
		return "Unknown"
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, " has caught up") || strings.Contains(line, "0 slot(s) behind") {
			if slot, ok := extractUsSlot(line); ok {
				return "Caught up (slot: " + slot + ")"
			}
			return "Caught up"
		}
	}
	return "Unknown"
}

func (r *Refresher) refreshVersion(ctx context.Context, validatorIdx, nodeIdx int, validator ValidatorConfig) {
	node := validator.Nodes[nodeIdx]

	var vtype ValidatorType
	var version string

	switch node.ValidatorType {
	case ValidatorFiredancer:
		vtype = ValidatorFiredancer
		version = "Firedancer Unknown"
		if node.FdctlExecutable != "" {
			out, err := r.pool.ExecuteCommand(ctx, node, fmt.Sprintf("timeout 10 %s version 2>/dev/null", node.FdctlExecutable))
			if err == nil {
				if line := firstLine(out); line != "" {
					if tok := firstToken(line); tok != "" {
						version = "Firedancer " + tok
					}
				}
			}
		}
	default:
		vtype = node.ValidatorType
		if node.AgaveValidatorExecutable != "" {
			out, err := r.pool.ExecuteCommand(ctx, node, fmt.Sprintf("timeout 10 %s --version 2>/dev/null", node.AgaveValidatorExecutable))
			if err == nil {
				line := firstLine(out)
				switch {
				case strings.HasPrefix(line, "agave-validator ") || strings.HasPrefix(line, "solana-cli "):
					if tok := secondToken(line); tok != "" {
						version = tok
					}
				default:
					version = strings.TrimSpace(line)
				}
				if strings.Contains(version, "jito") {
					vtype = ValidatorJito
				} else {
					vtype = ValidatorAgave
				}
			}
		}
	}

	r.state.UpdateVersion(validatorIdx, nodeIdx, vtype, version)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func secondToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}
