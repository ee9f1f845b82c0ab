// Package chainrpc implements the blockchain RPC client the engine
// consumes: fetching vote-account data for delinquency detection, and the
// raw getIdentity JSON-RPC call used by the field refresher.
package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pushchain/validator-console/internal/console/engine"
)

// Client implements engine.ChainRPC over plain JSON-RPC HTTP calls.
type Client struct {
	http *http.Client
}

// New constructs a Client with a bounded request timeout.
func New() *Client {
	return &Client{http: &http.Client{Timeout: 5 * time.Second}}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, url, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request to %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if payload.Error != nil {
		return fmt.Errorf("%s rpc error %d: %s", method, payload.Error.Code, payload.Error.Message)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(payload.Result, result); err != nil {
		return fmt.Errorf("unmarshal %s result: %w", method, err)
	}
	return nil
}

// voteAccountResult mirrors the subset of getVoteAccounts output the
// engine needs: the matching entry's recent vote history.
type voteAccountResult struct {
	Current []struct {
		VotePubkey       string `json:"votePubkey"`
		LastVote         uint64 `json:"lastVote"`
		EpochVoteAccount bool   `json:"epochVoteAccount"`
		RecentVotes      []struct {
			Slot uint64 `json:"slot"`
		} `json:"recentVotes,omitempty"`
	} `json:"current"`
	Delinquent []struct {
		VotePubkey string `json:"votePubkey"`
		LastVote   uint64 `json:"lastVote"`
	} `json:"delinquent"`
}

// FetchVoteAccountData calls getVoteAccounts, scoped to votePubkey, and
// derives the VoteObservation the engine's Vote Poller needs.
func (c *Client) FetchVoteAccountData(ctx context.Context, rpcURL, votePubkey string) (engine.VoteObservation, error) {
	var result voteAccountResult
	params := []any{map[string]any{"votePubkey": votePubkey}}
	if err := c.call(ctx, rpcURL, "getVoteAccounts", params, &result); err != nil {
		return engine.VoteObservation{}, err
	}

	for _, acct := range result.Current {
		if acct.VotePubkey != votePubkey {
			continue
		}
		obs := engine.VoteObservation{LastSlot: acct.LastVote, IsVoting: true}
		for _, v := range acct.RecentVotes {
			obs.RecentVotes = append(obs.RecentVotes, engine.VoteRecord{Slot: v.Slot})
		}
		return obs, nil
	}
	for _, acct := range result.Delinquent {
		if acct.VotePubkey != votePubkey {
			continue
		}
		return engine.VoteObservation{LastSlot: acct.LastVote, IsVoting: false}, nil
	}
	return engine.VoteObservation{}, fmt.Errorf("vote account %s not found in getVoteAccounts response", votePubkey)
}

// GetIdentity issues the raw getIdentity JSON-RPC call against the node's
// local RPC port, returning the identity pubkey string.
func (c *Client) GetIdentity(ctx context.Context, rpcPort int) (string, error) {
	url := "http://localhost:" + strconv.Itoa(rpcPort)
	var result struct {
		Identity string `json:"identity"`
	}
	if err := c.call(ctx, url, "getIdentity", nil, &result); err != nil {
		return "", err
	}
	if result.Identity == "" {
		return "", fmt.Errorf("getIdentity at %s returned empty identity", url)
	}
	return result.Identity, nil
}
