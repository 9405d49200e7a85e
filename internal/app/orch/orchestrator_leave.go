package orch

import (
	"context"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/rs/zerolog/log"
)

// Leaving is two-phase. AnnounceLeave tells the room and marks the
// connection Leaving; FinalizeLeave releases the seat. A connection that
// announces and never finalizes is finalized by the leave reaper.

func (o *Orchestrator) AnnounceLeave(sid core.SessionID) {
	info, ok := o.Rooms.Member(sid)
	if !ok {
		return
	}
	if !o.Registry.MarkLeaving(sid, o.Rooms.Now()) {
		return
	}
	o.Broadcast(info.Code, core.UserLeft{Type: core.EvUserLeft, Username: info.Name, IsHost: info.IsHost})
}

// FinalizeLeave releases sid's seat. The remaining members hear about it
// unless the leave was already announced. Nothing is sent to the leaver.
func (o *Orchestrator) FinalizeLeave(sid core.SessionID) {
	prev := o.Registry.StateOf(sid)
	removed := o.Rooms.RemoveMember(sid)
	if removed == nil {
		return
	}
	o.announceRemoved(removed, prev)
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("room", string(removed.Code)).Bool("host", removed.WasHost).Msg("left room")
}

// OnDisconnect runs when the transport goes away, with or without a leave.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.FinalizeLeave(sid)
	o.Registry.Unbind(sid)
}

// FinalizeStaleLeaves finalizes every leave announced more than grace ago.
func (o *Orchestrator) FinalizeStaleLeaves(grace time.Duration) int {
	stale := o.Registry.StaleLeaving(o.Rooms.Now().Add(-grace))
	for _, sid := range stale {
		o.FinalizeLeave(sid)
	}
	return len(stale)
}

func (o *Orchestrator) RunLeaveReaper(ctx context.Context, grace time.Duration) error {
	t := time.NewTicker(grace)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := o.FinalizeStaleLeaves(grace); n > 0 {
				log.Info().Str("module", "app.orch").Int("count", n).Msg("finalized stale leaves")
			}
		}
	}
}
