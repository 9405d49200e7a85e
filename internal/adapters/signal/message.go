package signal

import (
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

type sendPayload struct {
	RoomCode domain.RoomCode `json:"roomCode"`
	Message  string          `json:"message"`
	Username string          `json:"username"`
	AckID    string          `json:"ackId,omitempty"`
}

func (ctl *SignalWSController) handleSendMessage(sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p sendPayload
	if !decode(data, &p) {
		ctl.sendError(conn, domain.Validation("Invalid message data"))
		return
	}
	_, err := ctl.Orch.SendMessage(sid, p.RoomCode, p.Message)
	if p.AckID != "" {
		ack := core.Ack{Type: core.EvAck, AckID: p.AckID, Success: err == nil}
		if err != nil {
			ack.Error = domain.PublicMessage(err)
		}
		ctl.sendJSON(conn, ack)
	}
	if err != nil {
		ctl.sendError(conn, err)
	}
}
