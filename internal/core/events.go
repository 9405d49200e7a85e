package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Chat/internal/domain"
)

// Inbound event types.
const (
	EvCreateRoom    = "createRoom"
	EvCheckUsername = "checkUsername"
	EvJoinRoom      = "joinRoom"
	EvSendMessage   = "sendMessage"
	EvLeaveRoom     = "leaveRoom"
	EvUserLeaving   = "userLeaving"
	EvRoomClosed    = "roomClosed"
	EvPing          = "ping"
)

// Outbound event types.
const (
	EvRoomCreated         = "roomCreated"
	EvUsernameCheckResult = "usernameCheckResult"
	EvUserJoined          = "userJoined"
	EvRoomHistory         = "roomHistory"
	EvReceiveMessage      = "receiveMessage"
	EvUserLeft            = "userLeft"
	EvForceDisconnect     = "forceDisconnect"
	EvAck                 = "ack"
	EvError               = "error"
	EvPong                = "pong"
)

// Envelope is the common part of every frame.
type Envelope struct {
	Type string `json:"type"`
}

type RoomCreated struct {
	Type     string          `json:"type"`
	RoomCode domain.RoomCode `json:"roomCode"`
}

type UsernameCheckResult struct {
	Type    string `json:"type"`
	IsTaken bool   `json:"isTaken"`
}

type UserJoined struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type RoomHistory struct {
	Type     string           `json:"type"`
	RoomCode domain.RoomCode  `json:"roomCode"`
	Messages []ReceiveMessage `json:"messages"`
}

type ReceiveMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type UserLeft struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsHost   bool   `json:"isHost"`
}

type Ack struct {
	Type    string `json:"type"`
	AckID   string `json:"ackId"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// TimestampLayout is the wire format of message timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

func NewReceiveMessage(rec domain.MessageRecord) ReceiveMessage {
	return ReceiveMessage{
		Type:      EvReceiveMessage,
		ID:        rec.ID,
		Username:  rec.Author,
		Message:   rec.Body,
		Timestamp: rec.SentAt.UTC().Format(TimestampLayout),
	}
}

func NewErrorEvent(err error) ErrorEvent {
	return ErrorEvent{Type: EvError, Error: domain.PublicMessage(err)}
}

// Encode marshals an outbound event into a frame.
func Encode(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return b, nil
}

// ParseTimestamp reads a wire timestamp back.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
