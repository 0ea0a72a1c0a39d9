package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/lox/shellgame/internal/server"
)

// Model is the Bubble Tea model for the cup game. It holds no game logic:
// every field below the backend is the latest projection received from it.
type Model struct {
	backend Backend
	logger  *log.Logger

	spinner spinner.Model

	wager   *server.WagerStateData
	round   *server.RoundStateData
	motion  *server.MotionData
	lastErr string

	width    int
	height   int
	quitting bool
}

// updateMsg wraps a backend state update for the Bubble Tea loop.
type updateMsg StateUpdate

// backendClosedMsg signals the backend's update channel is gone.
type backendClosedMsg struct{}

// NewModel creates a TUI model over a backend.
func NewModel(backend Backend, logger *log.Logger) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = CupStyle

	return &Model{
		backend: backend,
		logger:  logger.WithPrefix("tui"),
		spinner: sp,
	}
}

// Init starts the spinner and the update listener.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForUpdates())
}

// listenForUpdates returns a command that waits for the next backend update.
func (m *Model) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		update, ok := <-m.backend.Updates()
		if !ok {
			return backendClosedMsg{}
		}
		return updateMsg(update)
	}
}

// Update handles messages in the TUI.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case backendClosedMsg:
		m.quitting = true
		return m, tea.Sequence(tea.ClearScreen, tea.Quit)

	case updateMsg:
		m.applyUpdate(StateUpdate(msg))
		return m, m.listenForUpdates()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// applyUpdate folds one backend update into the display state.
func (m *Model) applyUpdate(update StateUpdate) {
	switch {
	case update.Wager != nil:
		m.wager = update.Wager

	case update.Round != nil:
		m.round = update.Round
		// Motion frames belong to the swap that just committed.
		if m.round.Phase != "shuffling" {
			m.motion = nil
		}

	case update.Motion != nil:
		m.motion = update.Motion

	case update.Err != nil:
		m.lastErr = update.Err.Message

	case update.Auth != nil:
		if !update.Auth.Success {
			m.lastErr = update.Auth.Error
		}
	}
}

// handleKey routes a keypress to a backend intent.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c", "q", "esc":
		m.quitting = true
		_ = m.backend.Close()
		return m, tea.Sequence(tea.ClearScreen, tea.Quit)

	case "up", "+", "k":
		m.sendIntent(m.backend.IncreaseBet)

	case "down", "-", "j":
		m.sendIntent(m.backend.DecreaseBet)

	case "m":
		m.sendIntent(m.backend.MaxBet)

	case "enter", "b":
		m.sendIntent(m.backend.PlaceBet)

	case "p":
		m.sendIntent(m.backend.StartRound)

	case "r":
		m.sendIntent(m.backend.RefreshBalance)

	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			position := int(key[0] - '1')
			m.sendIntent(func() error { return m.backend.SelectCup(position) })
		}
	}
	return m, nil
}

// sendIntent runs a backend call and surfaces its error in the status line.
func (m *Model) sendIntent(fn func() error) {
	if err := fn(); err != nil {
		m.lastErr = err.Error()
		return
	}
	m.lastErr = ""
}

// View renders the TUI.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var content strings.Builder
	content.WriteString(HeaderStyle.Render("Shell Game"))
	content.WriteString("\n\n")

	content.WriteString(m.renderWagerLine())
	content.WriteString("\n\n")
	content.WriteString(m.renderCups())
	content.WriteString("\n\n")
	content.WriteString(m.renderStatus())
	content.WriteString("\n")

	if m.lastErr != "" {
		content.WriteString(ErrorStyle.Render(m.lastErr))
		content.WriteString("\n")
	}

	content.WriteString("\n")
	content.WriteString(HelpStyle.Render(m.helpLine()))
	content.WriteString("\n")

	return lipgloss.NewStyle().Padding(1, 2).Render(content.String())
}

// renderWagerLine renders the balance and bet summary.
func (m *Model) renderWagerLine() string {
	if m.wager == nil {
		return HelpStyle.Render("Waiting for balance...")
	}

	var parts []string
	parts = append(parts, BalanceStyle.Render(
		fmt.Sprintf("Balance: %.0f %s", m.wager.Balance, m.wager.Currency)))
	parts = append(parts, BetStyle.Render(
		fmt.Sprintf("Bet: %.0f", m.wager.BetAmount)))
	if m.wager.BetInFlight {
		parts = append(parts, CupStyle.Render("bet in flight"))
	}
	if !m.wager.Connected {
		reason := m.wager.ConnectionError
		if reason == "" {
			reason = "disconnected"
		}
		parts = append(parts, ErrorStyle.Render(reason))
	}
	return strings.Join(parts, "  ")
}

// renderCups renders the row of cups. A revealed cup is drawn open, with
// the token shown only when the server says it is under that cup.
func (m *Model) renderCups() string {
	if m.round == nil {
		return HelpStyle.Render("No round yet")
	}

	revealed := make(map[int]bool, len(m.round.Revealed))
	for _, pos := range m.round.Revealed {
		revealed[pos] = true
	}

	var cups []string
	for i := 0; i < m.round.SlotCount; i++ {
		switch {
		case revealed[i] && m.round.Token != nil && *m.round.Token == i:
			cups = append(cups, TokenStyle.Render("( ● )"))
		case revealed[i]:
			cups = append(cups, HelpStyle.Render("(   )"))
		default:
			cups = append(cups, CupStyle.Render("[===]"))
		}
	}

	var labels []string
	for i := 0; i < m.round.SlotCount; i++ {
		labels = append(labels, fmt.Sprintf("  %d  ", i+1))
	}

	return strings.Join(cups, "  ") + "\n" + HelpStyle.Render(strings.Join(labels, "  "))
}

// renderStatus renders the phase-specific status line.
func (m *Model) renderStatus() string {
	if m.round == nil {
		return ""
	}

	switch m.round.Phase {
	case "idle":
		line := StatusStyle.Render("Place your bet, then press Enter to play.")
		if m.round.RoundsPlayed > 0 {
			line += "  " + BalanceStyle.Render(
				fmt.Sprintf("Score: %d/%d", m.round.Score, m.round.RoundsPlayed))
		}
		return line

	case "revealing":
		return StatusStyle.Render("Watch closely...")

	case "shuffling":
		line := m.spinner.View() + " " + StatusStyle.Render(
			fmt.Sprintf("Shuffling (swap %d)", m.motionSwap()+1))
		if m.motion != nil {
			line += " " + m.renderProgress(m.motion.Progress)
		}
		return line

	case "awaiting_selection":
		return CupStyle.Render(
			fmt.Sprintf("Where is it? Pick a cup (1-%d)", m.round.SlotCount))

	case "resolving":
		if m.round.Won {
			return SuccessStyle.Render(m.round.Result)
		}
		return ErrorStyle.Render(m.round.Result)
	}
	return ""
}

func (m *Model) motionSwap() int {
	if m.motion == nil {
		return 0
	}
	return m.motion.Swap
}

// renderProgress draws a small bar for the current swap.
func (m *Model) renderProgress(progress float64) string {
	const width = 10
	filled := int(progress * width)
	if filled > width {
		filled = width
	}
	return HelpStyle.Render("[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]")
}

// helpLine lists the keys that make sense right now.
func (m *Model) helpLine() string {
	if m.round != nil && m.round.Phase == "awaiting_selection" {
		return fmt.Sprintf("1-%d pick a cup • q quit", m.round.SlotCount)
	}
	return "↑/↓ adjust bet • m max • Enter place bet • p practice • r refresh • q quit"
}
