package chainrpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// VoteWatcher is the optional push-confirmation side of the Vote Poller:
// when a validator's config carries a ws:// sibling endpoint, it
// subscribes to vote-account changes and reports slots as they land,
// ahead of the next 5s poll tick. The poll remains the authoritative
// cadence; the watcher only narrows observation latency.
type VoteWatcher struct {
	wsURL      string
	votePubkey string
	onSlot     func(slot uint64)
	log        zerolog.Logger
}

// NewVoteWatcher builds a watcher for one validator's vote account.
// onSlot is invoked from the watcher goroutine for every slot update.
func NewVoteWatcher(wsURL, votePubkey string, onSlot func(slot uint64), log zerolog.Logger) *VoteWatcher {
	return &VoteWatcher{wsURL: wsURL, votePubkey: votePubkey, onSlot: onSlot, log: log}
}

// Run subscribes and reads notifications until ctx is cancelled,
// redialing with a 5s backoff on any connection or subscription error.
func (w *VoteWatcher) Run(ctx context.Context) {
	for {
		if err := w.subscribeOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn().Err(err).Str("vote", w.votePubkey).Msg("vote subscription dropped")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (w *VoteWatcher) subscribeOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	sub := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "accountSubscribe",
		"params": []any{
			w.votePubkey,
			map[string]string{"encoding": "jsonParsed", "commitment": "confirmed"},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if slot, ok := parseAccountNotificationSlot(msg); ok {
			w.onSlot(slot)
		}
	}
}

// parseAccountNotificationSlot extracts the context slot from an
// accountNotification payload; subscription acks and unrelated frames
// return false.
func parseAccountNotificationSlot(msg []byte) (uint64, bool) {
	var note struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Context struct {
					Slot uint64 `json:"slot"`
				} `json:"context"`
			} `json:"result"`
		} `json:"params"`
	}
	if err := json.Unmarshal(msg, &note); err != nil {
		return 0, false
	}
	if note.Method != "accountNotification" {
		return 0, false
	}
	return note.Params.Result.Context.Slot, true
}
