package signal

import (
	"encoding/json"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomPayload struct {
	RoomCode domain.RoomCode `json:"roomCode"`
	Username string          `json:"username"`
}

func decode(data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad payload")
		return false
	}
	return true
}

func (ctl *SignalWSController) handleCreateRoom(sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p roomPayload
	if !decode(data, &p) {
		ctl.sendError(conn, domain.Validation("Invalid username"))
		return
	}
	code, err := ctl.Orch.CreateRoom(sid, p.Username)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	ctl.sendJSON(conn, core.RoomCreated{Type: core.EvRoomCreated, RoomCode: code})
}

func (ctl *SignalWSController) handleCheckUsername(conn *WsSignalConn, data []byte) {
	var p roomPayload
	if !decode(data, &p) {
		ctl.sendError(conn, domain.Validation("Invalid username"))
		return
	}
	ctl.sendJSON(conn, core.UsernameCheckResult{
		Type:    core.EvUsernameCheckResult,
		IsTaken: ctl.Orch.CheckUsername(p.Username),
	})
}

func (ctl *SignalWSController) handleJoin(sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p roomPayload
	if !decode(data, &p) {
		ctl.sendError(conn, domain.Validation("Invalid room code or username"))
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(p.RoomCode)).Msg("join")
	if err := ctl.Orch.Join(sid, p.RoomCode, p.Username); err != nil {
		ctl.sendError(conn, err)
	}
}

// handleUserLeaving is the first phase of a leave.
func (ctl *SignalWSController) handleUserLeaving(sid core.SessionID) {
	ctl.Orch.AnnounceLeave(sid)
}

// handleLeave finalizes a leave; the connection stays open.
func (ctl *SignalWSController) handleLeave(sid core.SessionID) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.FinalizeLeave(sid)
}

func (ctl *SignalWSController) handleRoomClosed(sid core.SessionID, conn *WsSignalConn) {
	if err := ctl.Orch.CloseRoom(sid); err != nil {
		ctl.sendError(conn, err)
	}
}
