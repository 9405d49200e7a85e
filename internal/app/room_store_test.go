package app

import (
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomStore_CreateRoomDefaultGenerator(t *testing.T) {
	store, err := NewRoomStore(NewRegistry())
	require.NoError(t, err)

	code, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), string(code))
	assert.Equal(t, 1, store.Len())
}

func TestRoomStore_CreateRoomValidation(t *testing.T) {
	store, _, _ := newTestStore(t)

	tests := []struct {
		name    string
		host    string
		wantMsg string
	}{
		{name: "empty", host: "", wantMsg: "Invalid username"},
		{name: "blank", host: "   ", wantMsg: "Invalid username"},
		{name: "too long", host: "abcdefghijabcdefghijabcdefghijabcdefghij", wantMsg: "Username too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateRoom("a", tt.host)
			require.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
	assert.Equal(t, 0, store.Len())
}

func TestRoomStore_CreateRoomRetriesCollision(t *testing.T) {
	codes := []string{"111111", "111111", "111111", "222222"}
	i := 0
	gen := func() string {
		c := codes[i]
		i++
		return c
	}
	store, _, _ := newTestStore(t, WithCodeGenerator(gen))

	first, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)
	second, err := store.CreateRoom("b", "bob")
	require.NoError(t, err)

	assert.Equal(t, domain.RoomCode("111111"), first)
	assert.Equal(t, domain.RoomCode("222222"), second)
}

func TestRoomStore_CreateRoomBindsRegistry(t *testing.T) {
	store, reg, _ := newTestStore(t)

	code, err := store.CreateRoom("a", " alice ")
	require.NoError(t, err)

	gotCode, name, ok := reg.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, code, gotCode)
	assert.Equal(t, "alice", name)

	info, ok := store.Member("a")
	require.True(t, ok)
	assert.True(t, info.IsHost)
}

// Scenario: creating as alice then joining the same code as alice conflicts.
func TestRoomStore_JoinSameNameConflicts(t *testing.T) {
	store, _, _ := newTestStore(t)
	code, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)

	err = store.JoinRoom("b", code, "alice")
	require.ErrorIs(t, err, domain.ErrNameConflict)
	assert.Equal(t, "Username already taken in this room!", err.Error())
	assert.Equal(t, []core.SessionID{"a"}, store.MemberIDs(code))
}

// Scenario: a full room rejects a third member and stays unchanged.
func TestRoomStore_JoinFullRoom(t *testing.T) {
	store, reg, _ := newTestStore(t)
	code, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)
	require.NoError(t, store.JoinRoom("b", code, "bob"))

	err = store.JoinRoom("c", code, "carol")
	require.ErrorIs(t, err, domain.ErrCapacity)
	assert.Equal(t, "Room is full! Only 2 users allowed.", err.Error())
	assert.Equal(t, []core.SessionID{"a", "b"}, store.MemberIDs(code))

	_, _, bound := reg.RoomOf("c")
	assert.False(t, bound)
}

func TestRoomStore_JoinErrors(t *testing.T) {
	store, _, _ := newTestStore(t)
	code, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)

	tests := []struct {
		name    string
		sid     core.SessionID
		code    domain.RoomCode
		user    string
		wantErr error
		wantMsg string
	}{
		{"empty code", "b", "", "bob", domain.ErrValidation, "Invalid room code or username"},
		{"empty name", "b", code, "", domain.ErrValidation, "Invalid room code or username"},
		{"unknown room", "b", "999999", "bob", domain.ErrNotFound, "Invalid Room Code!"},
		{"already bound", "a", code, "alice2", domain.ErrValidation, "You are already in a room"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.JoinRoom(tt.sid, tt.code, tt.user)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestRoomStore_RemoveMember(t *testing.T) {
	store, reg, _ := newTestStore(t)
	code, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)
	require.NoError(t, store.JoinRoom("b", code, "bob"))

	info := store.RemoveMember("a")
	require.NotNil(t, info)
	assert.Equal(t, domain.RemovedInfo{Code: code, Name: "alice", WasHost: true, Remaining: 1}, *info)
	_, _, bound := reg.RoomOf("a")
	assert.False(t, bound)

	assert.Nil(t, store.RemoveMember("a"), "second removal must be a no-op")
	assert.Nil(t, store.RemoveMember("nobody"))

	// Scenario: the room survives the host leaving and accepts a new member.
	require.NoError(t, store.JoinRoom("c", code, "carol"))
	m, ok := store.Member("b")
	require.True(t, ok)
	assert.True(t, m.IsHost)
	m, ok = store.Member("c")
	require.True(t, ok)
	assert.False(t, m.IsHost)
}

func TestRoomStore_IsNameTakenIsGlobal(t *testing.T) {
	store, _, _ := newTestStore(t)
	code, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)
	_, err = store.CreateRoom("b", "bob")
	require.NoError(t, err)

	assert.True(t, store.IsNameTaken("alice"))
	assert.True(t, store.IsNameTaken(" bob "))
	assert.False(t, store.IsNameTaken("carol"))
	assert.False(t, store.IsNameTaken(""))

	// Join itself is only checked per room.
	require.NoError(t, store.JoinRoom("c", code, "bob"))
}

func TestRoomStore_SweepExpired(t *testing.T) {
	store, _, clock := newTestStore(t)
	router := NewMessageRouter(store)

	idle, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	busy, err := store.CreateRoom("b", "bob")
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	_, err = router.Submit(busy, "bob", "still here", nil)
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	evicted := store.SweepExpired(time.Hour)
	assert.Equal(t, []domain.RoomCode{idle}, evicted)
	assert.Equal(t, 1, store.Len())

	_, err = store.History(idle)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	clock.Advance(46 * time.Minute)
	assert.Equal(t, []domain.RoomCode{busy}, store.SweepExpired(time.Hour))
	assert.Equal(t, 0, store.Len())
}

func TestRoomStore_TouchDelaysExpiry(t *testing.T) {
	store, _, clock := newTestStore(t)
	code, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)

	clock.Advance(50 * time.Minute)
	require.NoError(t, store.Touch(code))
	clock.Advance(50 * time.Minute)
	assert.Empty(t, store.SweepExpired(time.Hour))

	assert.ErrorIs(t, store.Touch("000000"), domain.ErrNotFound)
}

func TestRoomStore_DeleteRoom(t *testing.T) {
	store, _, _ := newTestStore(t)
	code, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)

	assert.True(t, store.DeleteRoom(code))
	assert.False(t, store.DeleteRoom(code))
	assert.ErrorIs(t, store.JoinRoom("b", code, "bob"), domain.ErrNotFound)
	assert.ErrorIs(t, store.Scope(code, func(*core.Room) error { return nil }), ErrNoRoom)
}

func TestRoomStore_ConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	store, _, _ := newTestStore(t)
	code, err := store.CreateRoom("host", "host")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	joined := 0
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sid := core.SessionID(fmt.Sprintf("s%d", i))
			if store.JoinRoom(sid, code, fmt.Sprintf("user%d", i)) == nil {
				mu.Lock()
				joined++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, joined)
	assert.Len(t, store.MemberIDs(code), domain.RoomCapacity)
}

func TestRoomStore_List(t *testing.T) {
	store, _, _ := newTestStore(t)
	code, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)
	require.NoError(t, store.JoinRoom("b", code, "bob"))

	rooms := store.List()
	require.Len(t, rooms, 1)
	assert.Equal(t, code, rooms[0].Code)
	assert.Equal(t, "alice", rooms[0].Host)
	assert.Equal(t, []string{"alice", "bob"}, rooms[0].Members)
}

func TestRoomStore_MoveToRoomKeepsSeatOnRejection(t *testing.T) {
	store, reg, _ := newTestStore(t)
	home, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)
	full, err := store.CreateRoom("b", "bob")
	require.NoError(t, err)
	require.NoError(t, store.JoinRoom("c", full, "carol"))

	tests := []struct {
		name string
		code domain.RoomCode
		user string
		kind error
	}{
		{"full", full, "alice", domain.ErrCapacity},
		{"unknown code", "999999", "alice", domain.ErrNotFound},
		{"blank name", full, "  ", domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			removed, err := store.MoveToRoom("a", tt.code, tt.user)
			require.ErrorIs(t, err, tt.kind)
			assert.Nil(t, removed)

			code, name, ok := reg.RoomOf("a")
			require.True(t, ok)
			assert.Equal(t, home, code)
			assert.Equal(t, "alice", name)
			assert.Equal(t, []core.SessionID{"a"}, store.MemberIDs(home))
		})
	}
}

func TestRoomStore_MoveToRoomNameConflictKeepsSeat(t *testing.T) {
	store, reg, _ := newTestStore(t)
	home, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)
	other, err := store.CreateRoom("b", "bob")
	require.NoError(t, err)

	_, err = store.MoveToRoom("a", other, "bob")
	require.ErrorIs(t, err, domain.ErrNameConflict)
	code, _, _ := reg.RoomOf("a")
	assert.Equal(t, home, code)
}

func TestRoomStore_MoveToRoomReleasesOldSeat(t *testing.T) {
	store, reg, _ := newTestStore(t)
	home, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)
	require.NoError(t, store.JoinRoom("b", home, "bob"))
	other, err := store.CreateRoom("c", "carol")
	require.NoError(t, err)

	removed, err := store.MoveToRoom("a", other, "alice")
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, domain.RemovedInfo{Code: home, Name: "alice", WasHost: true, Remaining: 1}, *removed)

	code, _, _ := reg.RoomOf("a")
	assert.Equal(t, other, code)
	assert.Equal(t, []core.SessionID{"b"}, store.MemberIDs(home))
	assert.Equal(t, []core.SessionID{"c", "a"}, store.MemberIDs(other))
	info, _ := store.Member("b")
	assert.True(t, info.IsHost)
}

func TestRoomStore_MoveToRoomSameRoomRenames(t *testing.T) {
	store, reg, _ := newTestStore(t)
	code, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)
	require.NoError(t, store.JoinRoom("b", code, "bob"))

	_, err = store.MoveToRoom("b", code, "alice")
	require.ErrorIs(t, err, domain.ErrNameConflict)

	removed, err := store.MoveToRoom("b", code, "robert")
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, "bob", removed.Name)
	_, name, _ := reg.RoomOf("b")
	assert.Equal(t, "robert", name)
	assert.Len(t, store.MemberIDs(code), 2)
}

func TestRoomStore_MoveToNewRoom(t *testing.T) {
	store, reg, _ := newTestStore(t)
	home, err := store.CreateRoom("a", "alice")
	require.NoError(t, err)

	_, removed, err := store.MoveToNewRoom("a", "")
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Nil(t, removed)
	code, _, _ := reg.RoomOf("a")
	assert.Equal(t, home, code)

	fresh, removed, err := store.MoveToNewRoom("a", "alice")
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, home, removed.Code)
	assert.Equal(t, 0, removed.Remaining)
	code, _, _ = reg.RoomOf("a")
	assert.Equal(t, fresh, code)
	assert.Equal(t, []core.SessionID{"a"}, store.MemberIDs(fresh))
	assert.Empty(t, store.MemberIDs(home))
}
