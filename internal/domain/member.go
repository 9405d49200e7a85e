package domain

import "time"

// Member represents a display name's participation in a room.
// No transport or lifecycle logic here.
type Member struct {
	Name     string
	JoinedAt time.Time
}

// MemberInfo describes a connection's current membership.
type MemberInfo struct {
	Code   RoomCode
	Name   string
	IsHost bool
}

// RemovedInfo is returned when a membership is released.
type RemovedInfo struct {
	Code    RoomCode
	Name    string
	WasHost bool
	// Remaining is the number of members left in the room.
	Remaining int
}
