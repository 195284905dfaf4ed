package models

import "time"

// Message is a stored message content record.
type Message struct {
	ID        string    `json:"message_id"`
	From      string    `json:"from"`
	To        []string  `json:"to"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	ReplyTo   string    `json:"reply_to,omitempty"`
}

// InboxBatch is the result of one poll.
type InboxBatch struct {
	Messages  []Message `json:"messages"`
	Remaining int       `json:"remaining"`
}

// SendResult acknowledges an accepted message.
type SendResult struct {
	ID        string    `json:"message_id"`
	From      string    `json:"from"`
	To        []string  `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}
