package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/zhouzirui/doctor-chat/internal/model/chat"
)

const dateRequestPrefix = "I would like to book an appointment on "

// FormatDateRequest renders the booking request sent when a date is picked.
func FormatDateRequest(date time.Time) string {
	return dateRequestPrefix + date.Format(chat.DateLayout)
}

// ParseDate reads a YYYY-MM-DD calendar date in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	date, err := time.ParseInLocation(chat.DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return date, nil
}

// MinSelectableDate is today's local calendar date; earlier dates cannot be picked.
func (s *Session) MinSelectableDate() time.Time {
	return minSelectableDate(s.now())
}

// OpenDatePicker switches to date input. It fails once the conversation has ended.
func (s *Session) OpenDatePicker() error {
	return s.setInputMode(chat.InputDatePicker)
}

// CloseDatePicker switches back to text input.
func (s *Session) CloseDatePicker() {
	_ = s.setInputMode(chat.InputText)
}

// ToggleDatePicker flips the input mode and returns the new one.
func (s *Session) ToggleDatePicker() (chat.InputMode, error) {
	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()

	if mode == chat.InputDatePicker {
		s.CloseDatePicker()
		return chat.InputText, nil
	}
	if err := s.OpenDatePicker(); err != nil {
		return chat.InputText, err
	}
	return chat.InputDatePicker, nil
}

// SelectDate closes the picker and sends the booking request for date.
func (s *Session) SelectDate(ctx context.Context, date time.Time) (chat.Message, error) {
	s.CloseDatePicker()

	today := s.MinSelectableDate()
	if calendarDate(date, today.Location()).Before(today) {
		s.metrics.ObserveRejected("past_date")
		return chat.Message{}, fmt.Errorf("%w: %s", ErrDateInPast, date.Format(chat.DateLayout))
	}
	return s.Send(ctx, FormatDateRequest(date))
}

func (s *Session) setInputMode(mode chat.InputMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == chat.InputDatePicker && s.state == chat.StateEnded {
		return ErrConversationEnded
	}
	if s.mode == mode {
		return nil
	}
	s.mode = mode
	s.publishLocked()
	return nil
}

func minSelectableDate(now time.Time) time.Time {
	return calendarDate(now, now.Location())
}

// calendarDate keeps t's year, month and day and places midnight in loc.
func calendarDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
