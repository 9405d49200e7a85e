package app

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	nanoid "github.com/jaevor/go-nanoid"
	"github.com/rs/zerolog/log"
)

// ErrNoRoom is returned by Scope when the code does not name a live room.
var ErrNoRoom = errors.New("no such room")

const (
	maxCodeAttempts  = 64
	errAlreadyInRoom = "You are already in a room"
)

// RoomStore owns every live room. Mutations of one room are serialized by
// that room's lock; the store lock only guards the code index.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomCode]*core.Room

	reg          *Registry
	now          func() time.Time
	nextCode     func() string
	historyLimit int
}

type StoreOption func(*RoomStore)

func WithClock(now func() time.Time) StoreOption {
	return func(s *RoomStore) { s.now = now }
}

func WithCodeGenerator(gen func() string) StoreOption {
	return func(s *RoomStore) { s.nextCode = gen }
}

func WithHistoryLimit(n int) StoreOption {
	return func(s *RoomStore) { s.historyLimit = n }
}

func NewRoomStore(reg *Registry, opts ...StoreOption) (*RoomStore, error) {
	s := &RoomStore{
		rooms:        make(map[domain.RoomCode]*core.Room),
		reg:          reg,
		now:          time.Now,
		historyLimit: domain.HistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.nextCode == nil {
		gen, err := nanoid.CustomASCII("0123456789", domain.RoomCodeLength)
		if err != nil {
			return nil, fmt.Errorf("room code generator: %w", err)
		}
		s.nextCode = gen
	}
	return s, nil
}

func (s *RoomStore) Now() time.Time { return s.now() }

// CreateRoom opens a new room with sid as its host and sole member.
func (s *RoomStore) CreateRoom(sid core.SessionID, hostName string) (domain.RoomCode, error) {
	name, err := domain.NormalizeUsername(hostName)
	if err != nil {
		return "", usernameError(err, "Invalid username")
	}
	if _, _, bound := s.reg.RoomOf(sid); bound {
		return "", domain.Validation(errAlreadyInRoom)
	}
	return s.openRoom(sid, name)
}

// MoveToNewRoom is CreateRoom for a connection that may already hold a seat.
// The old seat is released only after the new room exists; on error nothing
// changes. The released seat, if any, is returned.
func (s *RoomStore) MoveToNewRoom(sid core.SessionID, hostName string) (domain.RoomCode, *domain.RemovedInfo, error) {
	name, err := domain.NormalizeUsername(hostName)
	if err != nil {
		return "", nil, usernameError(err, "Invalid username")
	}
	cur, _, bound := s.reg.RoomOf(sid)
	code, err := s.openRoom(sid, name)
	if err != nil {
		return "", nil, err
	}
	if !bound {
		return code, nil, nil
	}
	return code, s.releaseSeat(sid, cur), nil
}

func (s *RoomStore) openRoom(sid core.SessionID, name string) (domain.RoomCode, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	code, err := s.unusedCode()
	if err != nil {
		return "", err
	}
	room := core.NewRoom(code, s.historyLimit, now)
	if err := room.Do(func(r *core.Room) error {
		if err := r.AddMember(sid, name, now); err != nil {
			return err
		}
		s.reg.BindRoom(sid, code, name)
		return nil
	}); err != nil {
		return "", err
	}
	s.rooms[code] = room
	log.Info().Str("module", "app.store").Str("room", string(code)).Str("host", name).Msg("room created")
	return code, nil
}

// releaseSeat drops sid from code without touching its registry binding.
func (s *RoomStore) releaseSeat(sid core.SessionID, code domain.RoomCode) *domain.RemovedInfo {
	var out *domain.RemovedInfo
	_ = s.Scope(code, func(r *core.Room) error {
		if info, ok := r.RemoveMember(sid); ok {
			out = &info
		}
		return nil
	})
	return out
}

// unusedCode must be called with s.mu held.
func (s *RoomStore) unusedCode() (domain.RoomCode, error) {
	for range maxCodeAttempts {
		code := domain.RoomCode(s.nextCode())
		if _, taken := s.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free room code after %d attempts", maxCodeAttempts)
}

// JoinRoom adds sid under name to the room, after the host.
func (s *RoomStore) JoinRoom(sid core.SessionID, code domain.RoomCode, rawName string) error {
	if code == "" || strings.TrimSpace(rawName) == "" {
		return domain.Validation("Invalid room code or username")
	}
	name, err := domain.NormalizeUsername(rawName)
	if err != nil {
		return usernameError(err, "Invalid room code or username")
	}
	if _, _, bound := s.reg.RoomOf(sid); bound {
		return domain.Validation(errAlreadyInRoom)
	}
	err = s.Scope(code, func(r *core.Room) error {
		if err := r.AddMember(sid, name, s.now()); err != nil {
			return err
		}
		s.reg.BindRoom(sid, code, name)
		return nil
	})
	if errors.Is(err, ErrNoRoom) {
		return domain.NotFound("Invalid Room Code!")
	}
	return err
}

// MoveToRoom is JoinRoom for a connection that may already hold a seat. The
// new seat is taken first and the old one released after, so a rejected
// request leaves the connection where it was. Moving within the same room
// re-seats it under the new name.
func (s *RoomStore) MoveToRoom(sid core.SessionID, code domain.RoomCode, rawName string) (*domain.RemovedInfo, error) {
	cur, _, bound := s.reg.RoomOf(sid)
	if !bound {
		return nil, s.JoinRoom(sid, code, rawName)
	}
	if code == "" || strings.TrimSpace(rawName) == "" {
		return nil, domain.Validation("Invalid room code or username")
	}
	name, err := domain.NormalizeUsername(rawName)
	if err != nil {
		return nil, usernameError(err, "Invalid room code or username")
	}
	if cur == code {
		return s.reseat(sid, code, name)
	}

	err = s.Scope(code, func(r *core.Room) error {
		if err := r.AddMember(sid, name, s.now()); err != nil {
			return err
		}
		s.reg.BindRoom(sid, code, name)
		return nil
	})
	if errors.Is(err, ErrNoRoom) {
		return nil, domain.NotFound("Invalid Room Code!")
	}
	if err != nil {
		return nil, err
	}
	return s.releaseSeat(sid, cur), nil
}

func (s *RoomStore) reseat(sid core.SessionID, code domain.RoomCode, name string) (*domain.RemovedInfo, error) {
	var out *domain.RemovedInfo
	err := s.Scope(code, func(r *core.Room) error {
		own, seated := r.Member(sid)
		if seated && own.Name != name && r.HasName(name) {
			return domain.NameConflict("Username already taken in this room!")
		}
		if seated {
			info, _ := r.RemoveMember(sid)
			out = &info
		}
		if err := r.AddMember(sid, name, s.now()); err != nil {
			return err
		}
		s.reg.BindRoom(sid, code, name)
		return nil
	})
	if errors.Is(err, ErrNoRoom) {
		return nil, domain.NotFound("Invalid Room Code!")
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveMember releases whatever membership sid holds. It returns nil when
// there was none.
func (s *RoomStore) RemoveMember(sid core.SessionID) *domain.RemovedInfo {
	code, _, ok := s.reg.RoomOf(sid)
	if !ok {
		return nil
	}
	var out *domain.RemovedInfo
	_ = s.Scope(code, func(r *core.Room) error {
		if info, ok := r.RemoveMember(sid); ok {
			out = &info
		}
		s.reg.RemoveRoom(sid)
		return nil
	})
	if out == nil {
		s.reg.RemoveRoom(sid)
	}
	return out
}

// Member reports sid's current membership, resolved against the room.
func (s *RoomStore) Member(sid core.SessionID) (domain.MemberInfo, bool) {
	code, _, ok := s.reg.RoomOf(sid)
	if !ok {
		return domain.MemberInfo{}, false
	}
	var info domain.MemberInfo
	var found bool
	_ = s.Scope(code, func(r *core.Room) error {
		info, found = r.Member(sid)
		return nil
	})
	return info, found
}

// IsNameTaken scans every live room.
func (s *RoomStore) IsNameTaken(rawName string) bool {
	name := strings.TrimSpace(rawName)
	if name == "" {
		return false
	}
	for _, room := range s.snapshot() {
		var taken bool
		_ = room.Do(func(r *core.Room) error {
			taken = r.HasName(name)
			return nil
		})
		if taken {
			return true
		}
	}
	return false
}

func (s *RoomStore) Touch(code domain.RoomCode) error {
	err := s.Scope(code, func(r *core.Room) error {
		r.Touch(s.now())
		return nil
	})
	if errors.Is(err, ErrNoRoom) {
		return domain.NotFound("Room not found")
	}
	return err
}

func (s *RoomStore) MemberIDs(code domain.RoomCode) []core.SessionID {
	var ids []core.SessionID
	_ = s.Scope(code, func(r *core.Room) error {
		ids = r.MemberIDs()
		return nil
	})
	return ids
}

func (s *RoomStore) History(code domain.RoomCode) ([]domain.MessageRecord, error) {
	var out []domain.MessageRecord
	err := s.Scope(code, func(r *core.Room) error {
		out = r.History()
		return nil
	})
	if errors.Is(err, ErrNoRoom) {
		return nil, domain.NotFound("Room not found")
	}
	return out, err
}

// Scope runs fn inside the room's exclusion scope.
func (s *RoomStore) Scope(code domain.RoomCode, fn func(r *core.Room) error) error {
	room, ok := s.get(code)
	if !ok {
		return ErrNoRoom
	}
	err := room.Do(fn)
	if errors.Is(err, core.ErrRoomClosed) {
		return ErrNoRoom
	}
	return err
}

// DeleteRoom evicts the room. It reports false when it was already gone.
func (s *RoomStore) DeleteRoom(code domain.RoomCode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return false
	}
	_ = room.Do(func(r *core.Room) error {
		r.Evict()
		return nil
	})
	delete(s.rooms, code)
	log.Info().Str("module", "app.store").Str("room", string(code)).Msg("room deleted")
	return true
}

// SweepExpired evicts rooms idle for longer than maxIdle. A room's idle
// clock starts at its last message, or at creation when it has none.
func (s *RoomStore) SweepExpired(maxIdle time.Duration) []domain.RoomCode {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []domain.RoomCode
	for code, room := range s.rooms {
		_ = room.Do(func(r *core.Room) error {
			if r.LastActivity().Before(cutoff) {
				r.Evict()
				evicted = append(evicted, code)
			}
			return nil
		})
	}
	for _, code := range evicted {
		delete(s.rooms, code)
	}
	slices.Sort(evicted)
	if len(evicted) > 0 {
		log.Info().Str("module", "app.store").Int("count", len(evicted)).Msg("expired rooms evicted")
	}
	return evicted
}

func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// List returns a view of every live room.
func (s *RoomStore) List() []domain.RoomInfo {
	rooms := s.snapshot()
	out := make([]domain.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		_ = room.Do(func(r *core.Room) error {
			out = append(out, r.Info())
			return nil
		})
	}
	slices.SortFunc(out, func(a, b domain.RoomInfo) int { return strings.Compare(string(a.Code), string(b.Code)) })
	return out
}

func (s *RoomStore) get(code domain.RoomCode) (*core.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	return room, ok
}

func (s *RoomStore) snapshot() []*core.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}

func usernameError(err error, emptyMsg string) error {
	if errors.Is(err, domain.ErrUsernameTooLong) {
		return domain.Validation("Username too long")
	}
	return domain.Validation(emptyMsg)
}
