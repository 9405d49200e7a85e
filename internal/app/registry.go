package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// BindState is the presence state of one connection.
type BindState int

const (
	Unbound BindState = iota
	Bound
	Leaving
)

func (s BindState) String() string {
	switch s {
	case Bound:
		return "bound"
	case Leaving:
		return "leaving"
	default:
		return "unbound"
	}
}

type sessionEntry struct {
	Session      core.MemberSession
	Cancel       context.CancelFunc
	Code         domain.RoomCode
	Name         string
	State        BindState
	LeavingSince time.Time
}

// Registry is the connection registry: every live connection and its
// at most one room membership.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

func (r *Registry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.Session = sess
		e.Cancel = cancel
	} else {
		r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok && e.Session != nil {
		return e.Session, true
	}
	return nil, false
}

// Unbind forgets the connection entirely.
func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

// BindRoom moves the connection to Bound(code).
func (r *Registry) BindRoom(sid core.SessionID, code domain.RoomCode, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		e = &sessionEntry{}
		r.sessions[sid] = e
	}
	e.Code = code
	e.Name = name
	e.State = Bound
	e.LeavingSince = time.Time{}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(code)).Str("name", name).Msg("bound room")
}

// RoomOf reports the connection's membership while Bound or Leaving.
func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomCode, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.State == Unbound {
		return "", "", false
	}
	return e.Code, e.Name, true
}

func (r *Registry) StateOf(sid core.SessionID) BindState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.State
	}
	return Unbound
}

// MarkLeaving moves Bound to Leaving. It reports false for any other state.
func (r *Registry) MarkLeaving(sid core.SessionID, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.State != Bound {
		return false
	}
	e.State = Leaving
	e.LeavingSince = now
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(e.Code)).Msg("leave announced")
	return true
}

// RemoveRoom clears the room association and returns the state it had.
func (r *Registry) RemoveRoom(sid core.SessionID) BindState {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return Unbound
	}
	prev := e.State
	e.Code = ""
	e.Name = ""
	e.State = Unbound
	e.LeavingSince = time.Time{}
	if prev != Unbound {
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("removed room association")
	}
	if e.Session == nil {
		delete(r.sessions, sid)
	}
	return prev
}

type RegSnap struct {
	SID     core.SessionID
	Session core.MemberSession
}

// MembersOfRoom lists live sessions bound to code, including leaving ones.
func (r *Registry) MembersOfRoom(code domain.RoomCode) []RegSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegSnap, 0, domain.RoomCapacity)
	for sid, e := range r.sessions {
		if e.State != Unbound && e.Code == code && e.Session != nil {
			out = append(out, RegSnap{SID: sid, Session: e.Session})
		}
	}
	return out
}

// StaleLeaving returns connections that announced a leave before cutoff.
func (r *Registry) StaleLeaving(cutoff time.Time) []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.SessionID
	for sid, e := range r.sessions {
		if e.State == Leaving && e.LeavingSince.Before(cutoff) {
			out = append(out, sid)
		}
	}
	return out
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	var cancel context.CancelFunc
	if ok {
		cancel = e.Cancel
	}
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if cancel != nil {
		cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

// Len is the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.sessions {
		if e.Session != nil {
			n++
		}
	}
	return n
}
