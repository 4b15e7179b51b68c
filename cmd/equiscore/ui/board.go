package ui

import (
	"fmt"
	"strings"
	"time"

	"equiscore/internal/push"
	"equiscore/internal/store"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// SnapshotSource is satisfied by *store.Results.
type SnapshotSource interface {
	Snapshot() store.Snapshot
	LastError() error
}

// DataUpdatedMsg is sent when the hub reports a feed change.
type DataUpdatedMsg struct {
	Seq uint64
}

// feedClosedMsg is sent once the subscription ends.
type feedClosedMsg struct{}

// BoardModel is the live scoreboard: a scrollable viewport over the
// standings that refreshes on every data_updated notification.
type BoardModel struct {
	viewport viewport.Model
	source   SnapshotSource
	sub      *push.Subscription
	styles   Styles
	feedPath string

	version   uint64
	updatedAt time.Time
	updates   int
	closed    bool
}

// NewBoardModel creates a board reading from source and listening on sub.
// sub may be nil for a board that never refreshes.
func NewBoardModel(source SnapshotSource, sub *push.Subscription, feedPath string, styles Styles) BoardModel {
	m := BoardModel{
		viewport: viewport.New(80, 20),
		source:   source,
		sub:      sub,
		styles:   styles,
		feedPath: feedPath,
	}
	m.UpdateContent()
	return m
}

// waitForUpdate blocks on the subscription until the next notification.
func waitForUpdate(sub *push.Subscription) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case n, ok := <-sub.C:
			if !ok {
				return feedClosedMsg{}
			}
			return DataUpdatedMsg{Seq: n.Seq}
		case <-sub.Done():
			return feedClosedMsg{}
		}
	}
}

// Init starts listening for notifications.
func (m BoardModel) Init() tea.Cmd {
	return waitForUpdate(m.sub)
}

// SetSize updates the size of the viewport.
func (m *BoardModel) SetSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = h - 2 // header + footer
	if m.viewport.Height < 1 {
		m.viewport.Height = 1
	}
}

// UpdateContent refreshes the viewport from the current snapshot.
func (m *BoardModel) UpdateContent() {
	if m.source == nil {
		m.viewport.SetContent("Results not available.")
		return
	}
	snap := m.source.Snapshot()
	m.version = snap.Version
	m.updatedAt = snap.LoadedAt

	var sb strings.Builder
	if err := m.source.LastError(); err != nil {
		sb.WriteString(m.styles.Error.Render("Last reload failed: " + err.Error()))
		sb.WriteString("\n\n")
	}
	sb.WriteString(RenderStandings(snap.Competitions, m.styles))
	m.viewport.SetContent(sb.String())
}

// Update handles messages.
func (m BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.UpdateContent()
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil
	case DataUpdatedMsg:
		m.updates++
		m.UpdateContent()
		return m, waitForUpdate(m.sub)
	case feedClosedMsg:
		m.closed = true
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the board.
func (m BoardModel) View() string {
	header := m.styles.Header.Render("EquiScore  " + m.feedPath)

	status := fmt.Sprintf("v%d", m.version)
	if !m.updatedAt.IsZero() {
		status += "  loaded " + m.updatedAt.Format("15:04:05")
	}
	status += fmt.Sprintf("  %d live updates", m.updates)
	if m.closed {
		status += "  (feed stopped)"
	}
	footer := m.styles.Footer.Render(status + "  q quit  r refresh")

	return header + "\n" + m.viewport.View() + "\n" + footer
}
