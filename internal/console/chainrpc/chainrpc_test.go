package chainrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handler func(method string, params []any) (any, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestFetchVoteAccountDataCurrent(t *testing.T) {
	srv := rpcServer(t, func(method string, params []any) (any, *rpcError) {
		require.Equal(t, "getVoteAccounts", method)
		return map[string]any{
			"current": []map[string]any{{
				"votePubkey": "vote-1",
				"lastVote":   uint64(352110998),
				"recentVotes": []map[string]any{
					{"slot": uint64(352110996)},
					{"slot": uint64(352110997)},
				},
			}},
			"delinquent": []map[string]any{},
		}, nil
	})
	defer srv.Close()

	c := New()
	obs, err := c.FetchVoteAccountData(context.Background(), srv.URL, "vote-1")
	require.NoError(t, err)
	require.Equal(t, uint64(352110998), obs.LastSlot)
	require.True(t, obs.IsVoting)
	require.Len(t, obs.RecentVotes, 2)
}

func TestFetchVoteAccountDataDelinquent(t *testing.T) {
	srv := rpcServer(t, func(method string, params []any) (any, *rpcError) {
		return map[string]any{
			"current": []map[string]any{},
			"delinquent": []map[string]any{{
				"votePubkey": "vote-1",
				"lastVote":   uint64(352100000),
			}},
		}, nil
	})
	defer srv.Close()

	c := New()
	obs, err := c.FetchVoteAccountData(context.Background(), srv.URL, "vote-1")
	require.NoError(t, err)
	require.Equal(t, uint64(352100000), obs.LastSlot)
	require.False(t, obs.IsVoting)
}

func TestFetchVoteAccountDataMissing(t *testing.T) {
	srv := rpcServer(t, func(method string, params []any) (any, *rpcError) {
		return map[string]any{"current": []map[string]any{}, "delinquent": []map[string]any{}}, nil
	})
	defer srv.Close()

	c := New()
	_, err := c.FetchVoteAccountData(context.Background(), srv.URL, "vote-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestFetchVoteAccountDataRPCError(t *testing.T) {
	srv := rpcServer(t, func(method string, params []any) (any, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "node is behind"}
	})
	defer srv.Close()

	c := New()
	_, err := c.FetchVoteAccountData(context.Background(), srv.URL, "vote-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "node is behind")
}

func TestGetIdentity(t *testing.T) {
	srv := rpcServer(t, func(method string, params []any) (any, *rpcError) {
		require.Equal(t, "getIdentity", method)
		return map[string]any{"identity": "identity-1"}, nil
	})
	defer srv.Close()

	var port int
	_, err := fmt.Sscanf(srv.URL, "http://127.0.0.1:%d", &port)
	require.NoError(t, err)

	c := New()
	identity, err := c.GetIdentity(context.Background(), port)
	require.NoError(t, err)
	require.Equal(t, "identity-1", identity)
}

func TestParseAccountNotificationSlot(t *testing.T) {
	msg := []byte(`{"jsonrpc":"2.0","method":"accountNotification","params":{"subscription":1,"result":{"context":{"slot":352110999},"value":{}}}}`)
	slot, ok := parseAccountNotificationSlot(msg)
	require.True(t, ok)
	require.Equal(t, uint64(352110999), slot)

	// subscription ack is ignored
	_, ok = parseAccountNotificationSlot([]byte(`{"jsonrpc":"2.0","id":1,"result":1}`))
	require.False(t, ok)

	_, ok = parseAccountNotificationSlot([]byte(`not json`))
	require.False(t, ok)
}
