package domain

import "time"

const (
	RoomCapacity   = 2
	HistoryLimit   = 100
	RoomCodeLength = 6
)

// RoomCode is the 6-digit numeric room identifier.
type RoomCode string

// RoomInfo is a read-only view of a live room.
type RoomInfo struct {
	Code         RoomCode  `json:"roomCode"`
	Members      []string  `json:"members"`
	Host         string    `json:"host,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}
