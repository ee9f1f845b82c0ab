package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/validator-console/internal/console/engine"
)

type capture struct {
	mu     sync.Mutex
	bodies []map[string]string
	paths  []string
	status int
}

func (c *capture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.paths = append(c.paths, r.URL.Path)
		status := c.status
		c.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
		}
	}
}

func TestTelegramTransportPayload(t *testing.T) {
	cap := &capture{}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	m := &Manager{log: zerolog.Nop()}
	m.transports = append(m.transports, &telegramTransport{
		client: srv.Client(), apiKey: "tok123", channel: "-10042", baseURL: srv.URL,
	})

	err := m.SendRPCFailureAlert(context.Background(), "identity-1", "vote-1", 7, 1801, "connection refused")
	require.NoError(t, err)

	cap.mu.Lock()
	defer cap.mu.Unlock()
	require.Len(t, cap.bodies, 1)
	require.Equal(t, "/bottok123/sendMessage", cap.paths[0])
	require.Equal(t, "-10042", cap.bodies[0]["chat_id"])
	require.Contains(t, cap.bodies[0]["text"], "RPC FAILURE")
	require.Contains(t, cap.bodies[0]["text"], "7 consecutive failures over 1801s")
}

func TestWebhookTransportsUseTheirField(t *testing.T) {
	cap := &capture{}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	m := NewManager(Options{DiscordWebhook: srv.URL, SlackWebhook: srv.URL}, zerolog.Nop())
	require.Equal(t, 2, m.TransportCount())

	err := m.SendSSHFailureAlert(context.Background(), "identity-1", "alpha", 3, 1800, "timeout")
	require.NoError(t, err)

	cap.mu.Lock()
	defer cap.mu.Unlock()
	require.Len(t, cap.bodies, 2)
	require.Contains(t, cap.bodies[0]["content"], "SSH FAILURE")
	require.Contains(t, cap.bodies[1]["text"], "SSH FAILURE")
}

func TestDelinquencyMessageCarriesHealth(t *testing.T) {
	cap := &capture{}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	m := NewManager(Options{SlackWebhook: srv.URL}, zerolog.Nop())

	health := engine.NodeHealth{}
	health.SSH.RecordFailure("host unreachable")
	err := m.SendDelinquencyAlertWithHealth(context.Background(), "identity-1", "alpha", true, 1000, 45, health)
	require.NoError(t, err)

	cap.mu.Lock()
	defer cap.mu.Unlock()
	text := cap.bodies[0]["text"]
	require.Contains(t, text, "DELINQUENT")
	require.Contains(t, text, "slot 1000")
	require.Contains(t, text, "45s")
	require.Contains(t, text, "host unreachable")
}

func TestSendErrorSurfacedNotPanic(t *testing.T) {
	cap := &capture{status: http.StatusBadGateway}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	m := NewManager(Options{DiscordWebhook: srv.URL}, zerolog.Nop())
	err := m.SendCatchupFailureAlert(context.Background(), "identity-1", "beta", 3)
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestEmptyManagerDropsAlerts(t *testing.T) {
	m := NewManager(Options{}, zerolog.Nop())
	require.Zero(t, m.TransportCount())
	require.NoError(t, m.SendCatchupFailureAlert(context.Background(), "identity-1", "beta", 3))
}
