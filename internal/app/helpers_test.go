package app

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialCodes() func() string {
	var mu sync.Mutex
	n := 100000
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		code := fmt.Sprintf("%06d", n)
		n++
		return code
	}
}

func newTestStore(t *testing.T, opts ...StoreOption) (*RoomStore, *Registry, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	reg := NewRegistry()
	all := append([]StoreOption{WithClock(clock.Now), WithCodeGenerator(sequentialCodes())}, opts...)
	store, err := NewRoomStore(reg, all...)
	require.NoError(t, err)
	return store, reg, clock
}
