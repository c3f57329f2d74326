package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/doctor-chat/internal/backend"
	"github.com/zhouzirui/doctor-chat/internal/model/chat"
	chatService "github.com/zhouzirui/doctor-chat/internal/service/chat"
)

type queuedBackend struct {
	mu       sync.Mutex
	replies  []backend.ChatReply
	messages []string
}

func (b *queuedBackend) Reset(context.Context) error { return nil }

func (b *queuedBackend) Chat(_ context.Context, message string) (backend.ChatReply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message)
	if len(b.replies) == 0 {
		return backend.ChatReply{Reply: "ok"}, nil
	}
	reply := b.replies[0]
	b.replies = b.replies[1:]
	return reply, nil
}

func newTestModel(t *testing.T, b *queuedBackend) Model {
	t.Helper()
	m := NewModel(context.Background(), func() *chatService.Session {
		return chatService.NewSession(b)
	})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m = updated.(Model)

	m.session.Bootstrap(context.Background())
	return drain(t, m)
}

// drain applies the latest pending snapshot, if any.
func drain(t *testing.T, m Model) Model {
	t.Helper()
	select {
	case snap, ok := <-m.updates:
		if ok {
			updated, _ := m.Update(snapshotMsg{source: m.updates, snap: snap})
			return updated.(Model)
		}
	default:
	}
	return m
}

func press(t *testing.T, m Model, key tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(key)
	return updated.(Model), cmd
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func runExchange(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, exchangeDoneMsg{}, msg)
	updated, _ := m.Update(msg)
	return drain(t, updated.(Model))
}

func TestModelShowsGreeting(t *testing.T) {
	m := newTestModel(t, &queuedBackend{})

	require.Len(t, m.snap.Messages, 1)
	assert.Contains(t, m.View(), "How can I assist you today?")
	assert.Contains(t, m.View(), "ctrl+d pick a date")
}

func TestModelSendsTypedMessage(t *testing.T) {
	b := &queuedBackend{replies: []backend.ChatReply{{Reply: "What date works?"}}}
	m := newTestModel(t, b)

	m = typeText(t, m, "I need an appointment")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, m.input.Value())

	m = runExchange(t, m, cmd)

	require.Len(t, m.snap.Messages, 3)
	assert.Equal(t, "What date works?", m.snap.Messages[2].Text)
	assert.Contains(t, m.View(), "What date works?")
	assert.Equal(t, []string{"I need an appointment"}, b.messages)
}

func TestModelIgnoresBlankInput(t *testing.T) {
	m := newTestModel(t, &queuedBackend{})

	m = typeText(t, m, "   ")
	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
}

func TestModelDatePickerFlow(t *testing.T) {
	b := &queuedBackend{replies: []backend.ChatReply{{Reply: "Booked!", ConversationEnd: true}}}
	m := newTestModel(t, b)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlD})
	require.True(t, m.snap.DatePickerOpen())
	assert.Contains(t, m.View(), time.Now().Format("January 2006"))

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	want := m.picker.Cursor()

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	updated, cmd := m.Update(cmd())
	m = runExchange(t, updated.(Model), cmd)

	require.Len(t, b.messages, 1)
	assert.Equal(t, "I would like to book an appointment on "+want.Format(chat.DateLayout), b.messages[0])
	assert.True(t, m.snap.Ended())
	assert.False(t, m.snap.DatePickerOpen())
	assert.Contains(t, m.View(), "ctrl+n start new conversation")
}

func TestModelEscClosesPicker(t *testing.T) {
	m := newTestModel(t, &queuedBackend{})

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlD})
	require.True(t, m.snap.DatePickerOpen())

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	updated, _ := m.Update(cmd())
	m = updated.(Model)

	assert.False(t, m.snap.DatePickerOpen())
}

func TestModelRestartAfterEnd(t *testing.T) {
	b := &queuedBackend{replies: []backend.ChatReply{{Reply: "Booked!", ConversationEnd: true}}}
	m := newTestModel(t, b)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	oldUpdates := m.updates

	m = typeText(t, m, "book me")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = runExchange(t, m, cmd)
	require.True(t, m.snap.Ended())
	require.Equal(t, oldUpdates, m.updates, "ctrl+n must not restart an active conversation")

	m = typeText(t, m, "more")
	_, cmd = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)

	oldID := m.session.ID()
	m, cmd = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	require.NotNil(t, cmd)
	assert.NotEqual(t, oldID, m.session.ID())

	m.session.Bootstrap(context.Background())
	m = drain(t, m)

	require.Len(t, m.snap.Messages, 1)
	assert.Equal(t, chatService.Greeting, m.snap.Messages[0].Text)
	assert.False(t, m.snap.Ended())

	stale, _ := m.Update(snapshotMsg{source: oldUpdates, snap: chat.Snapshot{Messages: make([]chat.Message, 5)}})
	assert.Len(t, stale.(Model).snap.Messages, 1)
}

func TestRenderLogSplitsLines(t *testing.T) {
	out := renderLog([]chat.Message{
		{Sender: chat.SenderBot, Text: "line one\nline two"},
		{Sender: chat.SenderUser, Text: "hi"},
	}, 80)

	assert.Equal(t, 1, strings.Count(out, "You"))
	assert.Contains(t, out, "line one")
	assert.Contains(t, out, "line two")
}

type slowBackend struct {
	queuedBackend
	release chan struct{}
}

func (b *slowBackend) Chat(ctx context.Context, message string) (backend.ChatReply, error) {
	<-b.release
	return b.queuedBackend.Chat(ctx, message)
}

func TestModelKeepsDraftWhileReplyPending(t *testing.T) {
	b := &slowBackend{release: make(chan struct{})}
	m := NewModel(context.Background(), func() *chatService.Session {
		return chatService.NewSession(b)
	})
	m.session.Bootstrap(context.Background())
	<-m.session.ResetDone()
	m = drain(t, m)

	m = typeText(t, m, "first")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()

	require.Eventually(t, func() bool { return m.session.Snapshot().Pending }, time.Second, 5*time.Millisecond)
	m = drain(t, m)
	require.True(t, m.snap.Pending)

	m = typeText(t, m, "second")
	m, cmd = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "second", m.input.Value())
	assert.Contains(t, m.View(), "Please wait for the bot to reply.")

	close(b.release)
	updated, _ := m.Update(<-done)
	m = drain(t, updated.(Model))
	assert.False(t, m.snap.Pending)
	assert.Equal(t, []string{"first"}, b.messages)
}

func TestModelRestoresDraftRejectedInFlight(t *testing.T) {
	m := newTestModel(t, &queuedBackend{})

	updated, _ := m.Update(exchangeDoneMsg{draft: "book me", err: chatService.ErrRequestInFlight})
	m = updated.(Model)

	assert.Equal(t, "book me", m.input.Value())
	assert.Equal(t, chatService.ErrRequestInFlight.Error(), m.notice)
}
