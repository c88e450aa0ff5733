package scheduler

import (
	"github.com/jacobdh/eventmq/internal/config"
	"github.com/jacobdh/eventmq/internal/protocol"
)

// heartbeat tracks when the scheduler last spoke to the broker and
// when the broker last spoke back. Times are monotonic seconds.
type heartbeat struct {
	enabled  bool
	interval float64
	liveness int
	lastSent float64
	lastSeen float64
}

func newHeartbeat(cfg config.HeartbeatConfig) heartbeat {
	return heartbeat{
		enabled:  cfg.Enabled,
		interval: float64(cfg.IntervalSecs),
		liveness: cfg.Liveness,
	}
}

// reset restarts both timers, treating the peer as alive now.
func (h *heartbeat) reset(monoNow float64) {
	h.lastSent = monoNow
	h.lastSeen = monoNow
}

// touch records proof of life from the peer.
func (h *heartbeat) touch(monoNow float64) {
	h.lastSeen = monoNow
}

// maybeSendHeartbeat emits a HEARTBEAT when one is owed and reports
// whether the peer is still considered alive. Always true when
// heartbeating is disabled.
func (s *Service) maybeSendHeartbeat() bool {
	if !s.hb.enabled {
		return true
	}
	monoNow := s.clk.MonoNow()

	if monoNow-s.hb.lastSent >= s.hb.interval {
		if err := s.broker.Send(protocol.NewFrame(protocol.Heartbeat, newMsgID())); err != nil {
			s.logger.Warn().Err(err).Msg("Could not send heartbeat")
		}
		s.hb.lastSent = monoNow
	}

	return monoNow-s.hb.lastSeen <= s.hb.interval*float64(s.hb.liveness)
}
