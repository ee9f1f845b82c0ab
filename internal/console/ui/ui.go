// Package ui renders the operator console's terminal dashboard: a Status
// view with one paired-node table per validator, and a Switch view that
// confirms a manual takeover. Each frame renders from a fresh snapshot of
// the shared engine state; the only thing kept between frames is the
// per-validator render cache, which reuses a styled box only when the
// frame's plain content and width hash to the same key.
package ui

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/pushchain/validator-console/internal/console/engine"
)

const frameInterval = 100 * time.Millisecond

// keyMap defines the console's keyboard shortcuts.
type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
	Switch  key.Binding
	Confirm key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "esc"),
			key.WithHelp("q", "quit / back"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r", "R"),
			key.WithHelp("r", "refresh fields"),
		),
		Switch: key.NewBinding(
			key.WithKeys("s", "S"),
			key.WithHelp("s", "switch view"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "confirm switch"),
		),
	}
}

type frameMsg time.Time

func frameCmd() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Options wires the console model to the engine.
type Options struct {
	State *engine.State
	// Refresh triggers the Field Refresher; it must return promptly
	// (spawning its own goroutine) because it is called on the UI thread.
	Refresh func()
}

// Model is the console's Bubble Tea model.
type Model struct {
	state   *engine.State
	refresh func()
	keys    keyMap
	spinner spinner.Model
	width   int
	height  int
	boxes   []renderCache
}

// New creates the console model. The Field Refresher is triggered once on
// UI entry.
func New(opts Options) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return &Model{
		state:   opts.State,
		refresh: opts.Refresh,
		keys:    newKeyMap(),
		spinner: s,
	}
}

// Init starts the 10 Hz frame loop and the entry refresh.
func (m *Model) Init() tea.Cmd {
	m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	if m.refresh != nil {
		m.refresh()
	}
	return tea.Batch(m.spinner.Tick, frameCmd())
}

// Update handles messages (Bubble Tea lifecycle).
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case frameMsg:
		if m.state.Quit() {
			return m, tea.Quit
		}
		return m, frameCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.state.RequestQuit()
		return m, tea.Quit
	}

	view := m.state.View()
	switch {
	case key.Matches(msg, m.keys.Quit):
		if view == engine.ViewSwitch {
			m.state.SetView(engine.ViewStatus)
			if m.refresh != nil {
				m.refresh()
			}
			return m, nil
		}
		m.state.RequestQuit()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Switch):
		if view == engine.ViewStatus {
			m.state.SetView(engine.ViewSwitch)
		}
		return m, nil

	case key.Matches(msg, m.keys.Confirm):
		if view == engine.ViewSwitch {
			m.state.SetSwitchConfirmed(true)
			m.state.RequestQuit()
			return m, tea.Quit
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		if view == engine.ViewStatus && m.refresh != nil {
			m.refresh()
		}
		return m, nil
	}
	return m, nil
}

// View renders the current frame from one shared-access snapshot.
func (m *Model) View() string {
	if m.width <= 0 || m.height <= 1 {
		return ""
	}
	// Rendering stops entirely while a takeover owns the terminal; the
	// program's release/restore handshake happens outside the model.
	if m.state.EmergencyInProgress() {
		return ""
	}

	snaps := m.state.Snapshot()
	switch m.state.View() {
	case engine.ViewSwitch:
		return m.renderSwitch(snaps)
	default:
		return m.renderStatus(snaps)
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	healthyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	degradedSty  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

func (m *Model) renderStatus(snaps []engine.ValidatorSnapshot) string {
	if len(m.boxes) != len(snaps) {
		m.boxes = make([]renderCache, len(snaps))
	}

	var sections []string
	sections = append(sections, titleStyle.Render("PAIRED VALIDATOR CONSOLE"))

	for i := range snaps {
		content := renderValidator(&snaps[i])
		box, hit := m.boxes[i].lookup(content, m.width)
		if !hit {
			box = boxStyle.Render(content)
			m.boxes[i].store(box)
		}
		sections = append(sections, box)
	}

	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderValidator(s *engine.ValidatorSnapshot) string {
	var b strings.Builder

	b.WriteString(boldStyle.Render(s.Config.IdentityPubkey))
	b.WriteString("\n")
	b.WriteString(renderVoteLine(s))
	b.WriteString("\n\n")

	header := fmt.Sprintf("%-14s %-9s %-14s %-18s %-22s %-24s %s",
		"NODE", "ROLE", "VERSION", "SYNC", "CATCHUP", "SSH", "IDENTITY")
	b.WriteString(labelStyle.Render(header))
	b.WriteString("\n")

	for nodeIdx := 0; nodeIdx < 2; nodeIdx++ {
		b.WriteString(renderNodeRow(s, nodeIdx))
		if nodeIdx == 0 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderVoteLine shows the last vote slot (bold for up to 3s after an
// advance), voting status and seconds since the slot last moved.
func renderVoteLine(s *engine.ValidatorSnapshot) string {
	obs := s.VoteObservation
	if !obs.HasLastSlotChangeAt {
		return pendingStyle.Render("⏳ waiting for first vote observation")
	}

	slot := fmt.Sprintf("slot %d", obs.LastSlot)
	if s.HasIncrement && time.Since(s.IncrementFlash) < 3*time.Second {
		slot = boldStyle.Render(slot)
	}

	voting := healthyStyle.Render("voting")
	if !obs.IsVoting {
		voting = degradedSty.Render("⚠️ Not Voting")
	}

	age := time.Since(obs.LastSlotChangedAt).Truncate(time.Second)
	ageText := fmt.Sprintf("advanced %s ago", age)
	switch {
	case age >= 30*time.Second:
		ageText = failedStyle.Render(ageText)
	case age >= 10*time.Second:
		ageText = degradedSty.Render(ageText)
	default:
		ageText = labelStyle.Render(ageText)
	}

	line := slot + "  " + voting + "  " + ageText
	if s.RPCFailures.ConsecutiveFailures > 0 {
		line += "  " + failedStyle.Render(fmt.Sprintf("❌ RPC failing (%d)", s.RPCFailures.ConsecutiveFailures))
	}
	return line
}

func renderNodeRow(s *engine.ValidatorSnapshot, nodeIdx int) string {
	node := s.Config.Nodes[nodeIdx]
	st := *s.NodeStates.Get(nodeIdx)
	flags := *s.RefreshFlags.Get(nodeIdx)
	catchup := *s.Catchup.Get(nodeIdx)
	ssh := *s.SSHHealth.Get(nodeIdx)

	role := roleCell(st.Role, flags.StatusRefreshing)
	version := refreshable(st.Version, flags.VersionRefreshing, "—")
	syncCol := syncCell(st.SyncStatus, flags.StatusRefreshing)
	catchupCol := catchupCell(catchup)
	sshCol := sshCell(ssh)
	identity := refreshable(shorten(st.CurrentIdentity), flags.IdentityRefreshing, "—")

	return fmt.Sprintf("%-14s %s %s %s %s %s %s",
		node.Label,
		pad(role, 9),
		pad(version, 14),
		pad(syncCol, 18),
		pad(catchupCol, 22),
		pad(sshCol, 24),
		identity)
}

func roleCell(role engine.NodeRole, refreshing bool) string {
	if refreshing {
		return pendingStyle.Render("🔄")
	}
	switch role {
	case engine.RoleActive:
		return healthyStyle.Render("Active")
	case engine.RoleStandby:
		return degradedSty.Render("Standby")
	default:
		return pendingStyle.Render("Unknown")
	}
}

func syncCell(status string, refreshing bool) string {
	if refreshing {
		return pendingStyle.Render("🔄")
	}
	return statusColor(status).Render(fallback(status, "—"))
}

func catchupCell(c engine.CatchupStatus) string {
	text := fallback(c.Text, "⏳")
	cell := statusColor(text).Render(text)
	if !c.IsStreaming && c.Text != "" {
		cell += pendingStyle.Render(" (stale)")
	}
	return cell
}

func sshCell(s engine.SSHHealthStatus) string {
	if s.IsHealthy {
		return healthyStyle.Render("✓ reachable")
	}
	if s.HasFailure {
		down := time.Since(s.FailureStart).Truncate(time.Second)
		return failedStyle.Render(fmt.Sprintf("❌ down %s", down))
	}
	return failedStyle.Render("❌ Failed")
}

// statusColor maps the closed catchup/sync status set to the console's
// color scheme: red hard failures, yellow degraded, grey in-flight,
// green healthy.
func statusColor(status string) lipgloss.Style {
	switch {
	case strings.HasPrefix(status, "Caught up"):
		return healthyStyle
	case strings.Contains(status, "slots behind"), strings.Contains(status, "Not Voting"):
		return degradedSty
	case strings.Contains(status, "Error"), strings.Contains(status, "not found"),
		strings.Contains(status, "Not running"), strings.Contains(status, "❌"):
		return failedStyle
	default:
		return pendingStyle
	}
}

func (m *Model) renderFooter() string {
	var parts []string
	if m.state.IsRefreshing() {
		parts = append(parts, m.spinner.View()+labelStyle.Render(" refreshing"))
	}
	parts = append(parts, selfHealth())
	parts = append(parts,
		keyStyle.Render("r")+labelStyle.Render(" refresh  ")+
			keyStyle.Render("s")+labelStyle.Render(" switch  ")+
			keyStyle.Render("q")+labelStyle.Render(" quit"))
	return strings.Join(parts, labelStyle.Render("  │  "))
}

// selfHealth is the console's own one-line engine health readout.
func selfHealth() string {
	text := fmt.Sprintf("tasks %d", runtime.NumGoroutine())
	if vm, err := mem.VirtualMemory(); err == nil {
		text += fmt.Sprintf("  host mem %.0f%%", vm.UsedPercent)
	}
	return labelStyle.Render(text)
}

func (m *Model) renderSwitch(snaps []engine.ValidatorSnapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("MANUAL IDENTITY SWITCH"))
	b.WriteString("\n\n")

	for i := range snaps {
		s := &snaps[i]
		b.WriteString(boldStyle.Render(s.Config.IdentityPubkey))
		b.WriteString("\n")
		for nodeIdx := 0; nodeIdx < 2; nodeIdx++ {
			node := s.Config.Nodes[nodeIdx]
			role := s.NodeStates.Get(nodeIdx).Role
			b.WriteString(fmt.Sprintf("  %-14s %s\n", node.Label, roleCell(role, false)))
		}
		b.WriteString("\n")
	}

	b.WriteString(degradedSty.Render("The funded identity and tower will move between the pair."))
	b.WriteString("\n\n")
	b.WriteString(keyStyle.Render("y") + labelStyle.Render(" confirm and exit to run the switch    "))
	b.WriteString(keyStyle.Render("q") + labelStyle.Render("/esc back to status"))

	return boxStyle.Render(b.String())
}

func refreshable(value string, refreshing bool, empty string) string {
	if refreshing {
		return pendingStyle.Render("🔄")
	}
	return fallback(value, empty)
}

func fallback(s, alt string) string {
	if s == "" {
		return alt
	}
	return s
}

func shorten(pubkey string) string {
	if len(pubkey) <= 12 {
		return pubkey
	}
	return pubkey[:6] + "…" + pubkey[len(pubkey)-4:]
}

// pad pads a styled cell to width, counting printable width rather than
// raw bytes so ANSI sequences do not skew the columns.
func pad(cell string, width int) string {
	w := lipgloss.Width(cell)
	if w >= width {
		return cell
	}
	return cell + strings.Repeat(" ", width-w)
}
