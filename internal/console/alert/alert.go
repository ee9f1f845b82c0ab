// Package alert implements the alert transport the engine consumes:
// typed send_* operations fanned out to the configured
// Telegram / Discord / Slack endpoints. Every send is fallible; callers
// log failures and never surface them to the UI.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/validator-console/internal/console/engine"
)

// transport posts one preformatted message to one destination.
type transport interface {
	name() string
	send(ctx context.Context, msg string) error
}

// Manager fans each typed alert out to every configured transport. A
// Manager with no transports is valid and drops everything, so the engine
// never needs a nil check.
type Manager struct {
	transports []transport
	log        zerolog.Logger
}

// Options configures the Manager's transports. Zero-value fields disable
// the corresponding transport.
type Options struct {
	TelegramAPIKey  string
	TelegramChannel string
	DiscordWebhook  string
	SlackWebhook    string
}

// NewManager builds a Manager from the enabled transports in opts.
func NewManager(opts Options, log zerolog.Logger) *Manager {
	client := &http.Client{Timeout: 10 * time.Second}
	m := &Manager{log: log}
	if opts.TelegramAPIKey != "" && opts.TelegramChannel != "" {
		m.transports = append(m.transports, &telegramTransport{
			client: client, apiKey: opts.TelegramAPIKey, channel: opts.TelegramChannel,
		})
	}
	if opts.DiscordWebhook != "" {
		m.transports = append(m.transports, &webhookTransport{
			client: client, label: "discord", url: opts.DiscordWebhook, field: "content",
		})
	}
	if opts.SlackWebhook != "" {
		m.transports = append(m.transports, &webhookTransport{
			client: client, label: "slack", url: opts.SlackWebhook, field: "text",
		})
	}
	return m
}

// TransportCount reports how many transports are active.
func (m *Manager) TransportCount() int { return len(m.transports) }

func (m *Manager) broadcast(ctx context.Context, msg string) error {
	var firstErr error
	for _, t := range m.transports {
		if err := t.send(ctx, msg); err != nil {
			m.log.Error().Err(err).Str("transport", t.name()).Msg("alert send failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", t.name(), err)
			}
		}
	}
	return firstErr
}

// SendDelinquencyAlertWithHealth reports a validator that has stopped
// advancing its vote slot, with the node-health context the operator needs
// to decide whether a manual switch is warranted.
func (m *Manager) SendDelinquencyAlertWithHealth(ctx context.Context, identity, nodeLabel string, isActive bool, slot uint64, secondsSinceVote uint64, health engine.NodeHealth) error {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 DELINQUENT: validator %s\n", identity)
	fmt.Fprintf(&b, "Last vote slot %d, no advance for %ds\n", slot, secondsSinceVote)
	if isActive {
		fmt.Fprintf(&b, "Active node: %s\n", nodeLabel)
	} else {
		fmt.Fprintf(&b, "Active node unknown (last seen: %s)\n", nodeLabel)
	}
	fmt.Fprintf(&b, "SSH failures: %d, RPC failures: %d", health.SSH.ConsecutiveFailures, health.RPC.ConsecutiveFailures)
	if health.SSH.LastError != "" {
		fmt.Fprintf(&b, "\nLast SSH error: %s", health.SSH.LastError)
	}
	return m.broadcast(ctx, b.String())
}

// SendRPCFailureAlert reports a sustained RPC outage for a validator's
// configured endpoint.
func (m *Manager) SendRPCFailureAlert(ctx context.Context, identity, votePubkey string, consecutive uint32, seconds uint64, errMsg string) error {
	msg := fmt.Sprintf("⚠️ RPC FAILURE: validator %s (vote %s)\n%d consecutive failures over %ds\nLast error: %s",
		identity, votePubkey, consecutive, seconds, errMsg)
	return m.broadcast(ctx, msg)
}

// SendSSHFailureAlert reports a node that has been unreachable over SSH
// past the configured threshold.
func (m *Manager) SendSSHFailureAlert(ctx context.Context, identity, nodeLabel string, consecutive uint32, seconds uint64, errMsg string) error {
	msg := fmt.Sprintf("⚠️ SSH FAILURE: node %s (validator %s)\n%d consecutive failures over %ds\nLast error: %s",
		nodeLabel, identity, consecutive, seconds, errMsg)
	return m.broadcast(ctx, msg)
}

// SendCatchupFailureAlert reports a node whose catchup stream keeps dying.
func (m *Manager) SendCatchupFailureAlert(ctx context.Context, identity, nodeLabel string, consecutive uint32) error {
	msg := fmt.Sprintf("⚠️ CATCHUP FAILURE: node %s (validator %s)\ncatchup stream failed %d times in a row",
		nodeLabel, identity, consecutive)
	return m.broadcast(ctx, msg)
}

// telegramTransport posts to the Telegram Bot API sendMessage endpoint. A
// single JSON POST needs no SDK.
type telegramTransport struct {
	client  *http.Client
	apiKey  string
	channel string
	baseURL string // test override
}

func (t *telegramTransport) name() string { return "telegram" }

func (t *telegramTransport) send(ctx context.Context, msg string) error {
	base := t.baseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, t.apiKey)
	payload := map[string]string{"chat_id": t.channel, "text": msg}
	return postJSON(ctx, t.client, "telegram", url, payload)
}

// webhookTransport covers Discord and Slack, which differ only in the JSON
// field carrying the message body.
type webhookTransport struct {
	client *http.Client
	label  string
	url    string
	field  string
}

func (t *webhookTransport) name() string { return t.label }

func (t *webhookTransport) send(ctx context.Context, msg string) error {
	return postJSON(ctx, t.client, t.label, t.url, map[string]string{t.field: msg})
}

func postJSON(ctx context.Context, client *http.Client, label, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", label, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", label, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s post: %w", label, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s returned %d: %s", label, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
