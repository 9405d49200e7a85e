package domain

import "time"

const MaxMessageLen = 500

// MessageRecord is an accepted chat message. Immutable once created.
type MessageRecord struct {
	ID     string    `json:"id"`
	Author string    `json:"username"`
	Body   string    `json:"message"`
	SentAt time.Time `json:"timestamp"`
}
