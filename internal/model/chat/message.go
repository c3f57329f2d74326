package chat

import (
	"strings"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is a single immutable entry of the conversation log.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Lines splits the text on embedded newlines; each line renders on its own row.
func (m Message) Lines() []string {
	return strings.Split(m.Text, "\n")
}

// FromUser reports whether the user authored the message.
func (m Message) FromUser() bool {
	return m.Sender == SenderUser
}
