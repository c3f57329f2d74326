package chat

import "time"

// State is the conversation lifecycle as observed by the client.
type State string

const (
	StateActive State = "active"
	StateEnded  State = "ended"
)

// InputMode selects which input affordance is shown.
type InputMode string

const (
	InputText       InputMode = "text"
	InputDatePicker InputMode = "date_picker"
)

// DateLayout is the calendar date format used for date requests and the picker bounds.
const DateLayout = "2006-01-02"

// Snapshot is a point-in-time copy of a session handed to renderers.
type Snapshot struct {
	SessionID string    `json:"sessionId"`
	Version   uint64    `json:"version"`
	Messages  []Message `json:"messages"`
	State     State     `json:"state"`
	InputMode InputMode `json:"inputMode"`
	Pending   bool      `json:"pending"`
	MinDate   string    `json:"minDate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Ended reports whether the server has closed the conversation.
func (s Snapshot) Ended() bool {
	return s.State == StateEnded
}

// DatePickerOpen reports whether the date picker is visible.
func (s Snapshot) DatePickerOpen() bool {
	return s.InputMode == InputDatePicker
}
