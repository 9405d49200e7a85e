package app

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Deliver fans an accepted record out to the room's members. It runs inside
// the room's exclusion scope and must not block.
type Deliver func(rec domain.MessageRecord, members []core.SessionID)

// MessageRouter validates, sanitizes and stores chat messages.
// Delivery is at most once; retries belong to the caller.
type MessageRouter struct {
	store *RoomStore
	newID func() string
}

func NewMessageRouter(store *RoomStore) *MessageRouter {
	return &MessageRouter{store: store, newID: newMessageID}
}

// newMessageID returns a time-ordered unique id.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (m *MessageRouter) Submit(code domain.RoomCode, author, raw string, deliver Deliver) (domain.MessageRecord, error) {
	if code == "" || author == "" || raw == "" {
		return domain.MessageRecord{}, domain.Validation("Invalid message data")
	}
	body := StripTags(raw)
	if utf8.RuneCountInString(body) > domain.MaxMessageLen {
		return domain.MessageRecord{}, domain.TooLong("Message too long")
	}
	if strings.TrimSpace(body) == "" {
		return domain.MessageRecord{}, domain.Validation("Invalid message data")
	}

	var rec domain.MessageRecord
	err := m.store.Scope(code, func(r *core.Room) error {
		rec = domain.MessageRecord{
			ID:     m.newID(),
			Author: author,
			Body:   body,
			SentAt: m.store.Now(),
		}
		r.Append(rec)
		if deliver != nil {
			deliver(rec, r.MemberIDs())
		}
		return nil
	})
	if errors.Is(err, ErrNoRoom) {
		return domain.MessageRecord{}, domain.NotFound("Room not found")
	}
	if err != nil {
		return domain.MessageRecord{}, err
	}
	log.Debug().Str("module", "app.router").Str("room", string(code)).Str("id", rec.ID).Msg("message accepted")
	return rec, nil
}
