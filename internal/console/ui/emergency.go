package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/pushchain/validator-console/internal/console/engine"
)

// terminalProgram is the subset of *tea.Program the emergency watcher
// drives, split out so tests can observe the release/restore handshake.
type terminalProgram interface {
	ReleaseTerminal() error
	RestoreTerminal() error
}

// WatchEmergency hands the terminal over to the switch mechanism while an
// emergency takeover runs: on the rising edge of the emergency flag it releases raw mode and the alternate screen so the
// mechanism's stdout is readable; on the falling edge it restores both
// and the render loop resumes. Polling at the frame cadence guarantees
// each edge is observed before rendering continues.
func WatchEmergency(ctx context.Context, p terminalProgram, state *engine.State, log zerolog.Logger) {
	suspended := false
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if suspended {
				_ = p.RestoreTerminal()
			}
			return
		case <-ticker.C:
		}

		inProgress := state.EmergencyInProgress()
		switch {
		case inProgress && !suspended:
			if err := p.ReleaseTerminal(); err != nil {
				log.Error().Err(err).Msg("failed to release terminal for takeover")
			}
			suspended = true
		case !inProgress && suspended:
			if err := p.RestoreTerminal(); err != nil {
				log.Error().Err(err).Msg("failed to restore terminal after takeover")
			}
			suspended = false
		}
	}
}

var _ terminalProgram = (*tea.Program)(nil)
