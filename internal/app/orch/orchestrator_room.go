package orch

import (
	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// CreateRoom opens a room hosted by sid. A connection that is already in a
// room leaves it once the new room exists.
func (o *Orchestrator) CreateRoom(sid core.SessionID, name string) (domain.RoomCode, error) {
	prev := o.Registry.StateOf(sid)
	code, removed, err := o.Rooms.MoveToNewRoom(sid, name)
	if err != nil {
		return "", err
	}
	o.announceRemoved(removed, prev)
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("client", o.clientOf(sid)).Str("room", string(code)).Msg("room created")
	return code, nil
}

func (o *Orchestrator) CheckUsername(name string) bool {
	return o.Rooms.IsNameTaken(name)
}

// Join binds sid to code under name and announces it to the room. The joiner
// gets the stored history before the announcement. A rejected join leaves
// any current membership untouched.
func (o *Orchestrator) Join(sid core.SessionID, code domain.RoomCode, name string) error {
	prev := o.Registry.StateOf(sid)
	if cur, curName, ok := o.Registry.RoomOf(sid); ok && prev == app.Bound && cur == code {
		if normalized, _ := domain.NormalizeUsername(name); normalized == curName {
			o.sendHistory(sid, code)
			o.Broadcast(code, core.UserJoined{Type: core.EvUserJoined, Username: curName})
			return nil
		}
	}

	removed, err := o.Rooms.MoveToRoom(sid, code, name)
	if err != nil {
		return err
	}
	o.announceRemoved(removed, prev)
	_, joined, _ := o.Registry.RoomOf(sid)
	o.sendHistory(sid, code)
	o.Broadcast(code, core.UserJoined{Type: core.EvUserJoined, Username: joined})
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("client", o.clientOf(sid)).Str("room", string(code)).Msg("joined room")
	return nil
}

// announceRemoved tells a released seat's room about the departure, unless
// the leave was already announced.
func (o *Orchestrator) announceRemoved(removed *domain.RemovedInfo, prev app.BindState) {
	if removed == nil || prev == app.Leaving {
		return
	}
	o.Broadcast(removed.Code, core.UserLeft{Type: core.EvUserLeft, Username: removed.Name, IsHost: removed.WasHost})
}

func (o *Orchestrator) clientOf(sid core.SessionID) string {
	if sess, ok := o.Registry.GetSession(sid); ok {
		return sess.Client()
	}
	return ""
}

func (o *Orchestrator) sendHistory(sid core.SessionID, code domain.RoomCode) {
	msgs, err := o.Rooms.History(code)
	if err != nil || len(msgs) == 0 {
		return
	}
	out := make([]core.ReceiveMessage, 0, len(msgs))
	for _, rec := range msgs {
		out = append(out, core.NewReceiveMessage(rec))
	}
	o.SendTo(sid, core.RoomHistory{Type: core.EvRoomHistory, RoomCode: code, Messages: out})
}

// SendMessage routes text from sid to every member of code, sender included.
// The author is the name sid is bound under.
func (o *Orchestrator) SendMessage(sid core.SessionID, code domain.RoomCode, text string) (domain.MessageRecord, error) {
	if code == "" || text == "" {
		return domain.MessageRecord{}, domain.Validation("Invalid message data")
	}
	bound, author, ok := o.Registry.RoomOf(sid)
	if !ok || bound != code || o.Registry.StateOf(sid) != app.Bound {
		return domain.MessageRecord{}, domain.Validation("You are not in this room")
	}

	var dropped []app.RegSnap
	rec, err := o.Router.Submit(code, author, text, func(rec domain.MessageRecord, members []core.SessionID) {
		f, err := core.Encode(core.NewReceiveMessage(rec))
		if err != nil {
			log.Error().Err(err).Str("module", "app.orch").Msg("encode message")
			return
		}
		dropped = o.fanout(f, members)
	})
	if err != nil {
		return domain.MessageRecord{}, err
	}
	o.applyPolicy(code, dropped)
	return rec, nil
}

// CloseRoom is the host's directive: every member is told to leave and the
// room is evicted.
func (o *Orchestrator) CloseRoom(sid core.SessionID) error {
	info, ok := o.Rooms.Member(sid)
	if !ok {
		return domain.Validation("You are not in a room")
	}
	if !info.IsHost {
		return domain.Validation("Only the host can close the room")
	}
	o.evict(info.Code, true)
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("room", string(info.Code)).Msg("room closed by host")
	return nil
}

// EvictRooms handles rooms the sweeper already removed from the store.
func (o *Orchestrator) EvictRooms(codes []domain.RoomCode) {
	for _, code := range codes {
		o.evict(code, false)
	}
}

func (o *Orchestrator) evict(code domain.RoomCode, deleteRoom bool) {
	members := o.Registry.MembersOfRoom(code)
	o.Broadcast(code, core.Envelope{Type: core.EvForceDisconnect})
	if deleteRoom {
		o.Rooms.DeleteRoom(code)
	}
	for _, snap := range members {
		o.Registry.RemoveRoom(snap.SID)
	}
	log.Info().Str("module", "app.orch").Str("room", string(code)).Int("members", len(members)).Msg("room evicted")
}
