// Package sshpool implements the SSH pool the engine consumes as an
// external collaborator: one-shot and streaming command execution,
// multiplexed over a small per-host
// connection cache, so the probes never construct raw sockets themselves.
package sshpool

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/pushchain/validator-console/internal/console/engine"
)

const dialTimeout = 10 * time.Second

// Pool implements engine.SSHPool, caching one *ssh.Client per host so
// repeated probes (SSH health, catchup streaming, field refresh) reuse the
// same TCP/SSH handshake instead of redialing every call.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*ssh.Client
}

// New constructs an empty connection pool.
func New() *Pool {
	return &Pool{clients: make(map[string]*ssh.Client)}
}

// ExecuteCommand runs cmd on node over SSH and returns combined stdout.
func (p *Pool) ExecuteCommand(ctx context.Context, node engine.NodeConfig, cmd string) (string, error) {
	client, err := p.dial(ctx, node)
	if err != nil {
		return "", err
	}
	session, err := client.NewSession()
	if err != nil {
		p.evict(node.Host)
		return "", fmt.Errorf("ssh session to %s: %w", node.Host, err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(cmd)
	if err != nil {
		return string(out), fmt.Errorf("ssh exec on %s: %w", node.Host, err)
	}
	return string(out), nil
}

// ExecuteCommandWithArgs runs argv0 with args, shell-quoting each argument.
func (p *Pool) ExecuteCommandWithArgs(ctx context.Context, node engine.NodeConfig, argv0 string, args []string) (string, error) {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(argv0))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return p.ExecuteCommand(ctx, node, strings.Join(parts, " "))
}

// ExecuteCommandStreaming runs cmd on node, writing each stdout line
// (without its line terminator, otherwise untrimmed) into lines until the command exits or ctx is cancelled. It closes
// lines before returning, so callers may range over it.
func (p *Pool) ExecuteCommandStreaming(ctx context.Context, node engine.NodeConfig, cmd string, lines chan<- string) error {
	defer close(lines)

	client, err := p.dial(ctx, node)
	if err != nil {
		return err
	}
	session, err := client.NewSession()
	if err != nil {
		p.evict(node.Host)
		return fmt.Errorf("ssh session to %s: %w", node.Host, err)
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ssh stdout pipe to %s: %w", node.Host, err)
	}
	session.Stderr = session.Stdout // Stdout is nil with StdoutPipe, so stderr is discarded; catchup commands redirect 2>&1 themselves.

	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("ssh start %q on %s: %w", cmd, node.Host, err)
	}

	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return ctx.Err()
	case <-scanDone:
	}

	if err := session.Wait(); err != nil {
		return fmt.Errorf("ssh command %q on %s: %w", cmd, node.Host, err)
	}
	return nil
}

func (p *Pool) dial(ctx context.Context, node engine.NodeConfig) (*ssh.Client, error) {
	p.mu.Lock()
	if c, ok := p.clients[node.Host]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	signer, err := loadSigner(node.SSHKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading ssh key for %s: %w", node.Host, err)
	}

	cfg := &ssh.ClientConfig{
		User:            node.SSHUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // operator nodes are pre-trusted by SSH config, not by this client
		Timeout:         dialTimeout,
	}

	addr := node.Host
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, "22")
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	p.mu.Lock()
	p.clients[node.Host] = client
	p.mu.Unlock()
	return client, nil
}

// evict drops a cached client after a session-level failure, forcing a
// fresh dial on the next call.
func (p *Pool) evict(host string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[host]; ok {
		_ = c.Close()
		delete(p.clients, host)
	}
}

// Close tears down every cached connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for host, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, host)
	}
	return firstErr
}

func loadSigner(keyPath string) (ssh.Signer, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(key)
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
