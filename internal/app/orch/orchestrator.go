package orch

import (
	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the presence coordinator. It turns transport events into
// membership changes and fans the resulting events out.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomStore
	Router   *app.MessageRouter
	Policy   app.Policy
}

func New(reg *app.Registry, rooms *app.RoomStore, policy app.Policy) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Router:   app.NewMessageRouter(rooms),
		Policy:   policy,
	}
}

// Stats is a point-in-time count for health reporting.
type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{Rooms: o.Rooms.Len(), Connections: o.Registry.Len()}
}

// SendTo encodes v and queues it on one connection.
func (o *Orchestrator) SendTo(sid core.SessionID, v any) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	f, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("encode")
		return
	}
	if err := sess.Signal().TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("sid", string(sid)).Msg("send failed")
	}
}

// Broadcast queues v on every live member of the room.
func (o *Orchestrator) Broadcast(code domain.RoomCode, v any) {
	f, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("encode")
		return
	}
	var dropped []app.RegSnap
	for _, snap := range o.Registry.MembersOfRoom(code) {
		if err := snap.Session.Signal().TrySend(f); err != nil {
			dropped = append(dropped, snap)
		}
	}
	o.applyPolicy(code, dropped)
}

// fanout delivers f to the given members. It is safe to call inside a room
// scope because TrySend never blocks.
func (o *Orchestrator) fanout(f core.Frame, members []core.SessionID) []app.RegSnap {
	var dropped []app.RegSnap
	for _, sid := range members {
		sess, ok := o.Registry.GetSession(sid)
		if !ok {
			continue
		}
		if err := sess.Signal().TrySend(f); err != nil {
			dropped = append(dropped, app.RegSnap{SID: sid, Session: sess})
		}
	}
	return dropped
}

func (o *Orchestrator) applyPolicy(code domain.RoomCode, dropped []app.RegSnap) {
	if o.Policy == nil {
		return
	}
	for _, slow := range dropped {
		switch o.Policy.OnBackPressure(code, slow.Session) {
		case app.KickMember:
			log.Warn().Str("module", "app.orch").Str("sid", string(slow.SID)).Str("room", string(code)).Msg("kicking slow member")
			o.Kick(slow.SID)
		case app.MarkSlow, app.DropFrame, app.NoAction:
			log.Debug().Str("module", "app.orch").Str("sid", string(slow.SID)).Msg("frame dropped")
		}
	}
}

// Kick tears down the connection. Its disconnect then runs OnDisconnect.
func (o *Orchestrator) Kick(sid core.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	o.Registry.Cancel(sid)
	if ok {
		sess.Signal().Close()
	}
}
