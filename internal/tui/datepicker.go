package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DateChosenMsg is emitted when the user confirms a date in the picker.
type DateChosenMsg struct{ Date time.Time }

// PickerClosedMsg is emitted when the user dismisses the picker.
type PickerClosedMsg struct{}

// DatePicker is a month calendar navigated with the arrow keys. Days before min
// cannot be reached.
type DatePicker struct {
	cursor time.Time
	min    time.Time
}

// NewDatePicker places the cursor on the earliest selectable day.
func NewDatePicker(earliest time.Time) DatePicker {
	earliest = dayOf(earliest)
	return DatePicker{cursor: earliest, min: earliest}
}

// Cursor returns the highlighted day.
func (p DatePicker) Cursor() time.Time { return p.cursor }

// Min returns the earliest selectable day.
func (p DatePicker) Min() time.Time { return p.min }

// Move shifts the cursor by days, clamped to min.
func (p DatePicker) Move(days int) DatePicker {
	return p.moveTo(p.cursor.AddDate(0, 0, days))
}

// MoveMonths shifts the cursor by whole months, clamped to min.
func (p DatePicker) MoveMonths(months int) DatePicker {
	return p.moveTo(p.cursor.AddDate(0, months, 0))
}

func (p DatePicker) moveTo(t time.Time) DatePicker {
	t = dayOf(t)
	if t.Before(p.min) {
		t = p.min
	}
	p.cursor = t
	return p
}

// Update handles navigation keys.
func (p DatePicker) Update(msg tea.Msg) (DatePicker, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}

	switch key.String() {
	case "left", "h":
		return p.Move(-1), nil
	case "right", "l":
		return p.Move(1), nil
	case "up", "k":
		return p.Move(-7), nil
	case "down", "j":
		return p.Move(7), nil
	case "pgup":
		return p.MoveMonths(-1), nil
	case "pgdown":
		return p.MoveMonths(1), nil
	case "enter":
		chosen := p.cursor
		return p, func() tea.Msg { return DateChosenMsg{Date: chosen} }
	case "esc":
		return p, func() tea.Msg { return PickerClosedMsg{} }
	}
	return p, nil
}

// View renders the month containing the cursor, weeks starting on Monday.
func (p DatePicker) View() string {
	var b strings.Builder

	b.WriteString(lipgloss.NewStyle().Bold(true).Render(p.cursor.Format("January 2006")))
	b.WriteString("\n")

	headers := make([]string, 0, 7)
	for _, d := range []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"} {
		headers = append(headers, weekdayHeader.Render(d))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, headers...))
	b.WriteString("\n")

	first := time.Date(p.cursor.Year(), p.cursor.Month(), 1, 0, 0, 0, 0, p.cursor.Location())
	offset := (int(first.Weekday()) + 6) % 7

	row := make([]string, 0, 7)
	for i := 0; i < offset; i++ {
		row = append(row, dayStyle.Render(""))
	}
	for day := first; day.Month() == first.Month(); day = day.AddDate(0, 0, 1) {
		label := dayStyle.Render(day.Format("2"))
		switch {
		case day.Equal(p.cursor):
			label = dayCursor.Render(day.Format("2"))
		case day.Before(p.min):
			label = dayDisabled.Render(day.Format("2"))
		}
		row = append(row, label)
		if len(row) == 7 {
			b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
			b.WriteString("\n")
			row = row[:0]
		}
	}
	if len(row) > 0 {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
		b.WriteString("\n")
	}

	b.WriteString(hintStyle.Render("←/→ day  ↑/↓ week  pgup/pgdn month  enter select  esc close"))
	return pickerBoxStyle.Render(b.String())
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
