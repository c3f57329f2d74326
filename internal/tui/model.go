// Package tui renders a chat session in the terminal with bubbletea.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/doctor-chat/internal/model/chat"
	chatService "github.com/zhouzirui/doctor-chat/internal/service/chat"
)

const title = "Doctor Appointment Chat"

// SessionFactory creates a fresh, not yet bootstrapped session.
type SessionFactory func() *chatService.Session

// snapshotMsg carries a snapshot from the subscription it was read on, so updates
// from a replaced session can be told apart.
type snapshotMsg struct {
	source <-chan chat.Snapshot
	snap   chat.Snapshot
}

// exchangeDoneMsg reports the end of a Send or SelectDate call. draft holds the
// typed text of a Send so a rejected message can be put back.
type exchangeDoneMsg struct {
	draft string
	err   error
}

// Model is the root bubbletea model.
type Model struct {
	ctx        context.Context
	newSession SessionFactory

	session   *chatService.Session
	updates   <-chan chat.Snapshot
	cancelSub func()
	snap      chat.Snapshot

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	picker   DatePicker

	notice string
	width  int
	height int
}

// NewModel creates the model and subscribes to a first session from newSession.
// The session is bootstrapped by Init.
func NewModel(ctx context.Context, newSession SessionFactory) Model {
	ti := textinput.New()
	ti.Placeholder = "Type your message..."
	ti.CharLimit = 500
	ti.Prompt = "> "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = typingStyle

	m := Model{
		ctx:        ctx,
		newSession: newSession,
		viewport:   viewport.New(80, 20),
		input:      ti,
		spinner:    sp,
		width:      80,
		height:     24,
	}
	m.attach(newSession())
	return m
}

// Init bootstraps the session and starts listening for snapshots.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.bootstrapCmd(),
		waitForSnapshot(m.updates),
		m.spinner.Tick,
		textinput.Blink,
	)
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 6
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		if msg.source != m.updates {
			return m, nil
		}
		m.apply(msg.snap)
		return m, waitForSnapshot(m.updates)

	case exchangeDoneMsg:
		if msg.err != nil && chatService.IsRejection(msg.err) {
			m.notice = msg.err.Error()
			if errors.Is(msg.err, chatService.ErrRequestInFlight) && msg.draft != "" && m.input.Value() == "" {
				m.input.SetValue(msg.draft)
			}
		}
		m.apply(m.session.Snapshot())
		return m, nil

	case DateChosenMsg:
		m.notice = ""
		return m, m.selectDateCmd(msg)

	case PickerClosedMsg:
		m.session.CloseDatePicker()
		m.apply(m.session.Snapshot())
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.detach()
		return m, tea.Quit
	case "ctrl+n":
		if !m.snap.Ended() {
			return m, nil
		}
		return m, m.restart()
	case "ctrl+d":
		mode, err := m.session.ToggleDatePicker()
		if err != nil {
			m.notice = err.Error()
			return m, nil
		}
		if mode == chat.InputDatePicker {
			m.picker = NewDatePicker(m.session.MinSelectableDate())
		}
		m.notice = ""
		m.apply(m.session.Snapshot())
		return m, nil
	}

	if m.snap.DatePickerOpen() {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case "enter":
		if m.snap.Ended() {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if m.snap.Pending {
			// keep the draft until the bot has answered
			m.notice = "Please wait for the bot to reply."
			return m, nil
		}
		m.input.Reset()
		m.notice = ""
		return m, m.sendCmd(text)
	}

	if m.snap.Ended() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the UI.
func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(title),
		m.viewport.View(),
		m.statusView(),
		m.footerView(),
	)
}

func (m Model) statusView() string {
	switch {
	case m.snap.Pending && m.notice != "":
		return m.spinner.View() + typingStyle.Render("Bot is typing...") + "  " + noticeStyle.Render(m.notice)
	case m.snap.Pending:
		return m.spinner.View() + typingStyle.Render("Bot is typing...")
	case m.notice != "":
		return noticeStyle.Render(m.notice)
	default:
		return ""
	}
}

func (m Model) footerView() string {
	switch {
	case m.snap.Ended():
		return lipgloss.JoinVertical(lipgloss.Left,
			endedStyle.Render("This conversation has ended."),
			hintStyle.Render("ctrl+n start new conversation • ctrl+c quit"),
		)
	case m.snap.DatePickerOpen():
		return m.picker.View()
	default:
		return lipgloss.JoinVertical(lipgloss.Left,
			inputBoxStyle.Width(max(m.width-2, 10)).Render(m.input.View()),
			hintStyle.Render("enter send • ctrl+d pick a date • pgup/pgdn scroll • ctrl+c quit"),
		)
	}
}

func (m *Model) attach(session *chatService.Session) {
	m.session = session
	m.updates, m.cancelSub = session.Subscribe()
	m.snap = session.Snapshot()
	m.refresh()
}

func (m *Model) detach() {
	if m.cancelSub != nil {
		m.cancelSub()
	}
	m.session.Close()
}

// restart replaces an ended session with a fresh one.
func (m *Model) restart() tea.Cmd {
	m.detach()
	m.attach(m.newSession())
	m.notice = ""
	m.input.Reset()
	return tea.Batch(m.bootstrapCmd(), waitForSnapshot(m.updates))
}

// apply renders snap unless a newer one is already shown.
func (m *Model) apply(snap chat.Snapshot) {
	if snap.SessionID == m.snap.SessionID && snap.Version < m.snap.Version {
		return
	}
	m.snap = snap
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.Width = m.width
	used := lipgloss.Height(headerStyle.Render(title)) + 1 + lipgloss.Height(m.footerView())
	m.viewport.Height = max(m.height-used, 3)
	m.viewport.SetContent(renderLog(m.snap.Messages, m.width))
	m.viewport.GotoBottom()
}

func renderLog(messages []chat.Message, width int) string {
	wrap := lipgloss.NewStyle().Width(max(width-2, 10))

	blocks := make([]string, 0, len(messages))
	for _, msg := range messages {
		label := botLabelStyle.Render("Bot")
		if msg.FromUser() {
			label = userLabelStyle.Render("You")
		}
		body := wrap.Render(strings.Join(msg.Lines(), "\n"))
		blocks = append(blocks, label+"\n"+body)
	}
	return strings.Join(blocks, "\n\n")
}

func waitForSnapshot(updates <-chan chat.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg{source: updates, snap: snap}
	}
}

func (m Model) bootstrapCmd() tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		session.Bootstrap(ctx)
		return nil
	}
}

func (m Model) sendCmd(text string) tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		_, err := session.Send(ctx, text)
		return exchangeDoneMsg{draft: text, err: err}
	}
}

func (m Model) selectDateCmd(msg DateChosenMsg) tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		_, err := session.SelectDate(ctx, msg.Date)
		return exchangeDoneMsg{err: err}
	}
}
