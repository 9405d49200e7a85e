package core

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// ErrRoomClosed is returned by Do once the room has been evicted.
var ErrRoomClosed = errors.New("room closed")

type roomMember struct {
	sid    SessionID
	member domain.Member
}

// Room is an in-memory chat room with at most domain.RoomCapacity members.
// Every read and mutation happens inside Do, which holds the room's lock.
// It never touches transport resources.
type Room struct {
	mu sync.Mutex

	code      domain.RoomCode
	members   []roomMember // arrival order
	hostID    SessionID
	history   *History
	createdAt time.Time
	activity  time.Time
	closed    bool
}

func NewRoom(code domain.RoomCode, historyLimit int, now time.Time) *Room {
	return &Room{
		code:      code,
		history:   NewHistory(historyLimit),
		createdAt: now,
		activity:  now,
	}
}

func (r *Room) Code() domain.RoomCode { return r.code }

// Do runs fn under the room lock. It returns ErrRoomClosed without calling
// fn when the room has been evicted.
func (r *Room) Do(fn func(r *Room) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	return fn(r)
}

// The methods below assume the caller is inside Do.

// Evict marks the room closed. Later calls to Do fail with ErrRoomClosed.
func (r *Room) Evict() { r.closed = true }

func (r *Room) AddMember(sid SessionID, name string, now time.Time) error {
	if len(r.members) >= domain.RoomCapacity {
		return domain.Capacity("Room is full! Only 2 users allowed.")
	}
	for _, m := range r.members {
		if m.member.Name == name {
			return domain.NameConflict("Username already taken in this room!")
		}
	}
	r.members = append(r.members, roomMember{sid: sid, member: domain.Member{Name: name, JoinedAt: now}})
	if r.hostID == "" {
		r.hostID = sid
	}
	log.Info().Str("module", "core.room").Str("room", string(r.code)).Str("sid", string(sid)).Str("name", name).Msg("member added")
	return nil
}

// RemoveMember releases sid's seat and recomputes the host.
func (r *Room) RemoveMember(sid SessionID) (domain.RemovedInfo, bool) {
	idx := r.indexOf(sid)
	if idx < 0 {
		return domain.RemovedInfo{}, false
	}
	gone := r.members[idx]
	r.members = append(r.members[:idx], r.members[idx+1:]...)
	wasHost := r.hostID == sid
	if wasHost {
		r.hostID = ""
		if len(r.members) > 0 {
			r.hostID = r.members[0].sid
		}
	}
	log.Info().Str("module", "core.room").Str("room", string(r.code)).Str("sid", string(sid)).Bool("host", wasHost).Msg("member removed")
	return domain.RemovedInfo{
		Code:      r.code,
		Name:      gone.member.Name,
		WasHost:   wasHost,
		Remaining: len(r.members),
	}, true
}

func (r *Room) Member(sid SessionID) (domain.MemberInfo, bool) {
	idx := r.indexOf(sid)
	if idx < 0 {
		return domain.MemberInfo{}, false
	}
	return domain.MemberInfo{
		Code:   r.code,
		Name:   r.members[idx].member.Name,
		IsHost: r.hostID == sid,
	}, true
}

func (r *Room) HasName(name string) bool {
	for _, m := range r.members {
		if m.member.Name == name {
			return true
		}
	}
	return false
}

func (r *Room) Host() SessionID { return r.hostID }

func (r *Room) MemberCount() int { return len(r.members) }

// MemberIDs returns member connection ids in arrival order.
func (r *Room) MemberIDs() []SessionID {
	out := make([]SessionID, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.sid)
	}
	return out
}

// Append stores rec in the history ring and bumps activity.
func (r *Room) Append(rec domain.MessageRecord) {
	if r.history.Push(rec) {
		log.Debug().Str("module", "core.room").Str("room", string(r.code)).Msg("history full, oldest evicted")
	}
	r.activity = rec.SentAt
}

func (r *Room) Touch(now time.Time) { r.activity = now }

// LastActivity is the time of the last accepted message, or creation time.
func (r *Room) LastActivity() time.Time { return r.activity }

func (r *Room) History() []domain.MessageRecord { return r.history.Snapshot() }

func (r *Room) HistoryLen() int { return r.history.Len() }

func (r *Room) Info() domain.RoomInfo {
	info := domain.RoomInfo{
		Code:         r.code,
		Members:      make([]string, 0, len(r.members)),
		CreatedAt:    r.createdAt,
		LastActivity: r.activity,
	}
	for _, m := range r.members {
		info.Members = append(info.Members, m.member.Name)
		if m.sid == r.hostID {
			info.Host = m.member.Name
		}
	}
	return info
}

func (r *Room) indexOf(sid SessionID) int {
	for i, m := range r.members {
		if m.sid == sid {
			return i
		}
	}
	return -1
}
