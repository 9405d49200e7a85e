package core

import (
	"strconv"
	"testing"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(i int) domain.MessageRecord {
	return domain.MessageRecord{ID: strconv.Itoa(i), Body: "m" + strconv.Itoa(i)}
}

func TestHistory_PushUnderCapacity(t *testing.T) {
	h := NewHistory(3)
	assert.False(t, h.Push(rec(1)))
	assert.False(t, h.Push(rec(2)))

	require.Equal(t, 2, h.Len())
	snap := h.Snapshot()
	assert.Equal(t, "1", snap[0].ID)
	assert.Equal(t, "2", snap[1].ID)
}

func TestHistory_EvictsOldestFirst(t *testing.T) {
	h := NewHistory(domain.HistoryLimit)
	for i := 1; i <= domain.HistoryLimit; i++ {
		require.False(t, h.Push(rec(i)))
	}
	assert.True(t, h.Push(rec(domain.HistoryLimit+1)))

	require.Equal(t, domain.HistoryLimit, h.Len())
	snap := h.Snapshot()
	assert.Equal(t, "2", snap[0].ID)
	assert.Equal(t, strconv.Itoa(domain.HistoryLimit+1), snap[len(snap)-1].ID)
}

func TestHistory_ZeroCapacityKeepsOne(t *testing.T) {
	h := NewHistory(0)
	assert.Empty(t, h.Snapshot())

	assert.False(t, h.Push(rec(1)))
	assert.True(t, h.Push(rec(2)))
	require.Equal(t, 1, h.Len())
	assert.Equal(t, "2", h.Snapshot()[0].ID)
}
