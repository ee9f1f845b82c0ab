package engine

import (
	"context"
)

// SSHPool is the external SSH connection pool the engine consumes. The
// engine never constructs raw sockets; connection multiplexing and key
// management are the pool's concern.
type SSHPool interface {
	ExecuteCommand(ctx context.Context, node NodeConfig, cmd string) (string, error)
	ExecuteCommandWithArgs(ctx context.Context, node NodeConfig, argv0 string, args []string) (string, error)
	ExecuteCommandStreaming(ctx context.Context, node NodeConfig, cmd string, lines chan<- string) error
}

// ChainRPC is the external blockchain RPC client the engine consumes.
type ChainRPC interface {
	FetchVoteAccountData(ctx context.Context, rpcURL, votePubkey string) (VoteObservation, error)
	GetIdentity(ctx context.Context, rpcPort int) (string, error)
}

// AlertTransport is the external alert transport the engine consumes. All
// operations are fallible; callers log failures and never surface them to
// the UI.
type AlertTransport interface {
	SendDelinquencyAlertWithHealth(ctx context.Context, identity, nodeLabel string, isActive bool, slot uint64, secondsSinceVote uint64, health NodeHealth) error
	SendRPCFailureAlert(ctx context.Context, identity, votePubkey string, consecutive uint32, seconds uint64, errMsg string) error
	SendSSHFailureAlert(ctx context.Context, identity, nodeLabel string, consecutive uint32, seconds uint64, errMsg string) error
	SendCatchupFailureAlert(ctx context.Context, identity, nodeLabel string, consecutive uint32) error
}

// SwitchMechanism is the external identity-swap/tower-transfer mechanism.
// The engine only decides to invoke it and supplies inputs; it never
// implements the swap itself.
type SwitchMechanism interface {
	ExecuteSwitch(ctx context.Context, active, standby NodeConfig, validator ValidatorConfig) error
}
