package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/pushchain/validator-console/internal/console/alert"
	"github.com/pushchain/validator-console/internal/console/chainrpc"
	conscfg "github.com/pushchain/validator-console/internal/console/config"
	"github.com/pushchain/validator-console/internal/console/engine"
	"github.com/pushchain/validator-console/internal/console/sshpool"
	"github.com/pushchain/validator-console/internal/console/switcher"
	"github.com/pushchain/validator-console/internal/console/telemetry"
	"github.com/pushchain/validator-console/internal/console/ui"
	"github.com/pushchain/validator-console/internal/exitcodes"
)

// runConsole wires the engine, starts the task fleet and runs the TUI
// until the operator quits. On a confirmed manual switch the swap runs
// after the TUI has released the terminal.
func runConsole(ctx context.Context, configPath, logPath string) error {
	cfg, err := conscfg.Load(configPath)
	if err != nil {
		return exitcodes.ConfigErr("loading console config", err)
	}

	log, closeLog, err := newConsoleLogger(logPath)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := sshpool.New()
	defer pool.Close()

	rpc := chainrpc.New()
	alerts := alert.NewManager(alertOptions(cfg.AlertConfig), log.With().Str("component", "alerts").Logger())

	var metrics engine.Metrics = engine.NopMetrics{}
	if cfg.Metrics.Enabled {
		collector := telemetry.NewCollector()
		metrics = collector
		go collector.Serve(ctx, cfg.Metrics.Addr, log.With().Str("component", "metrics").Logger())
	}

	state := engine.NewState(cfg.EngineValidators())
	swap := switcher.New(pool, log.With().Str("component", "switcher").Logger())
	eng := engine.New(state, pool, rpc, alerts, swap, metrics, cfg.AlertConfig.Thresholds(), log)
	eng.Start(ctx)
	startVoteWatchers(ctx, state, log)

	model := ui.New(ui.Options{
		State: state,
		Refresh: func() {
			go eng.Refresher.RefreshAll(ctx)
		},
	})

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithInput(os.Stdin),
		tea.WithOutput(os.Stdout),
	)

	go ui.WatchEmergency(ctx, p, state, log.With().Str("component", "ui").Logger())

	if _, err := p.Run(); err != nil {
		return exitcodes.TerminalErr("console terminal error", err)
	}
	cancel()

	if state.SwitchConfirmed() {
		return runConfirmedSwitch(context.Background(), state, swap, log)
	}
	return nil
}

// runConfirmedSwitch executes the operator-confirmed manual switch after
// the TUI has exited and the terminal is plain again, for every validator
// whose active and standby nodes are identifiable.
func runConfirmedSwitch(ctx context.Context, state *engine.State, swap *switcher.Switcher, log zerolog.Logger) error {
	snaps := state.Snapshot()
	ran := false
	for i := range snaps {
		s := &snaps[i]
		activeIdx, standbyIdx := -1, -1
		for nodeIdx := 0; nodeIdx < 2; nodeIdx++ {
			switch s.NodeStates.Get(nodeIdx).Role {
			case engine.RoleActive:
				activeIdx = nodeIdx
			case engine.RoleStandby:
				standbyIdx = nodeIdx
			}
		}
		if activeIdx == -1 || standbyIdx == -1 {
			fmt.Printf("skipping %s: active/standby roles not identified\n", s.Config.IdentityPubkey)
			continue
		}
		ran = true
		fmt.Printf("switching %s: %s -> %s\n", s.Config.IdentityPubkey,
			s.Config.Nodes[activeIdx].Label, s.Config.Nodes[standbyIdx].Label)
		if err := swap.ExecuteSwitch(ctx, s.Config.Nodes[activeIdx], s.Config.Nodes[standbyIdx], s.Config); err != nil {
			log.Error().Err(err).Str("validator", s.Config.IdentityPubkey).Msg("manual switch failed")
			fmt.Printf("switch failed for %s: %v\n", s.Config.IdentityPubkey, err)
			continue
		}
		fmt.Printf("switch complete for %s\n", s.Config.IdentityPubkey)
	}
	if !ran {
		fmt.Println("no switch executed")
	}
	return nil
}

// startVoteWatchers spawns the optional low-latency websocket confirmation
// path for every validator that configures a ws endpoint. The 5s poll
// stays authoritative; the watcher only logs early slot sightings.
func startVoteWatchers(ctx context.Context, state *engine.State, log zerolog.Logger) {
	wsLog := log.With().Str("component", "vote-watcher").Logger()
	for idx := 0; idx < state.ValidatorCount(); idx++ {
		v := state.Validator(idx)
		if v.WSEndpoint == "" {
			continue
		}
		identity := v.IdentityPubkey
		watcher := chainrpc.NewVoteWatcher(v.WSEndpoint, v.VotePubkey, func(slot uint64) {
			wsLog.Debug().Str("validator", identity).Uint64("slot", slot).Msg("vote account change observed ahead of poll")
		}, wsLog)
		go watcher.Run(ctx)
	}
}

func alertOptions(a conscfg.AlertConfig) alert.Options {
	var opts alert.Options
	if a.Telegram.Enabled != nil && *a.Telegram.Enabled {
		opts.TelegramAPIKey = a.Telegram.APIKey
		opts.TelegramChannel = a.Telegram.Channel
	}
	if a.Discord.Enabled != nil && *a.Discord.Enabled {
		opts.DiscordWebhook = a.Discord.Webhook
	}
	if a.Slack.Enabled != nil && *a.Slack.Enabled {
		opts.SlackWebhook = a.Slack.Webhook
	}
	return opts
}

// newConsoleLogger opens the engine's structured log sink. The TUI owns
// stdout, so zerolog writes to a file; an unwritable path degrades to a
// discard logger rather than blocking the console.
func newConsoleLogger(path string) (zerolog.Logger, func(), error) {
	if path == "" {
		return zerolog.New(io.Discard), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.New(io.Discard), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.New(io.Discard), func() {}, nil
	}
	log := zerolog.New(f).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	return log, func() { _ = f.Close() }, nil
}
