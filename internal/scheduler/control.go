package scheduler

import (
	"context"

	"github.com/jacobdh/eventmq/internal/catalog"
	"github.com/jacobdh/eventmq/internal/protocol"
)

// processMessage routes one broker frame to its handler.
func (s *Service) processMessage(ctx context.Context, frame protocol.Frame) {
	if err := frame.Validate(); err != nil {
		s.logger.Warn().Err(err).Msg("Dropping malformed frame")
		return
	}

	switch frame.Command() {
	case protocol.Schedule:
		s.onSchedule(ctx, frame.MsgID(), frame.Body())
	case protocol.Unschedule:
		s.onUnschedule(ctx, frame.MsgID(), frame.Body())
	case protocol.Status:
		s.onStatus(frame.MsgID(), frame.Body())
	case protocol.Heartbeat:
		// The heartbeat logic lives in the event loop; receipt only
		// refreshes peer liveness.
		s.hb.touch(s.clk.MonoNow())
	case protocol.Disconnect:
		s.onDisconnect()
	case protocol.KBye:
		s.onKbye()
	default:
		s.logger.Warn().Str("cmd", frame.Command()).Msg("Unknown command")
	}
}

// onSchedule installs or updates a schedule, persists it, and unless
// suppressed fires the haste dispatch.
func (s *Service) onSchedule(ctx context.Context, msgid string, body []string) {
	m, err := protocol.JobMessageFromBody(body)
	if err != nil {
		s.logger.Warn().Err(err).Str("msgid", msgid).Msg("Dropping malformed SCHEDULE request")
		return
	}
	s.logger.Info().Str("msgid", msgid).Str("queue", m.Queue).Msg("Received new SCHEDULE request")

	hash, err := protocol.ScheduleHash(m)
	if err != nil {
		s.logger.Warn().Err(err).Str("msgid", msgid).Msg("Cannot derive schedule hash, dropping")
		return
	}

	if _, ok := s.catalog.Interval(hash); ok {
		s.logger.Debug().Str("hash", hash).Msg("Updating existing scheduled job")
	} else if _, ok := s.catalog.Cron(hash); ok {
		s.logger.Debug().Str("hash", hash).Msg("Updating existing scheduled job")
	} else {
		s.logger.Debug().Str("hash", hash).Msg("Creating a new scheduled job")
	}

	if err := s.installJob(hash, m); err != nil {
		s.logger.Warn().Err(err).Str("hash", hash).Msg("Dropping uninstallable SCHEDULE request")
		return
	}
	s.metrics.schedules.Inc()

	if err := s.store.Persist(ctx, hash, m); err != nil {
		s.logger.Warn().Err(err).Msg("Could not contact redis server. Unable to guarantee persistence.")
		s.metrics.storeErrors.Inc()
	}

	// Haste mode: one immediate dispatch, after the job is installed
	// and persisted, so a failed dispatch leaves it scheduled. Finite
	// run counts pay for the haste dispatch; infinite ones do not.
	runCount := protocol.RunCountFromHeaders(m.Headers)
	if protocol.HasNoHaste(m.Headers) {
		return
	}
	if runCount > 0 || runCount == protocol.InfiniteRunCount {
		if runCount > 0 {
			if entry, ok := s.catalog.Interval(hash); ok {
				entry.RunCount--
			}
		}
		s.dispatch(m.Payload, m.Queue)
	}
}

// onUnschedule removes a schedule if it exists, based on the same
// message layout used to create it.
func (s *Service) onUnschedule(ctx context.Context, msgid string, body []string) {
	m, err := protocol.JobMessageFromBody(body)
	if err != nil {
		s.logger.Warn().Err(err).Str("msgid", msgid).Msg("Dropping malformed UNSCHEDULE request")
		return
	}
	s.logger.Info().Str("msgid", msgid).Str("queue", m.Queue).Msg("Received new UNSCHEDULE request")

	hash, err := protocol.ScheduleHash(m)
	if err != nil {
		s.logger.Warn().Err(err).Str("msgid", msgid).Msg("Cannot derive schedule hash, dropping")
		return
	}

	removed := s.catalog.Remove(hash)
	if removed == catalog.RemovedNone {
		s.logger.Warn().Str("hash", hash).Msg("Couldn't find matching schedule for unschedule request")
	} else {
		s.metrics.unschedules.Inc()
	}

	// Double check the store even if the hash wasn't found in memory.
	if err := s.store.Forget(ctx, hash); err != nil {
		s.logger.Warn().Err(err).Str("hash", hash).Msg("Could not remove schedule from store")
		s.metrics.storeErrors.Inc()
	}
}

// onStatus replies to the caller named in the first body frame with
// the interval-job snapshot. Only the administrative STATUS_CMD path
// serves the full catalog view.
func (s *Service) onStatus(msgid string, body []string) {
	recipient := ""
	if len(body) > 0 {
		recipient = body[0]
	}
	snapshot, err := s.intervalSnapshotJSON()
	if err != nil {
		s.logger.Error().Err(err).Msg("Could not build status snapshot")
		return
	}
	reply := protocol.NewFrame(protocol.Reply, msgid, recipient, snapshot)
	if err := s.broker.Send(reply); err != nil {
		s.logger.Warn().Err(err).Msg("Could not deliver status snapshot")
	}
}

// onDisconnect stops the loop: drop the store connection, say KBYE
// downstream, and close the broker socket.
func (s *Service) onDisconnect() {
	s.logger.Info().Msg("Received DISCONNECT request")
	if err := s.store.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Store close failed")
	}
	if err := s.broker.Send(protocol.NewFrame(protocol.KBye, newMsgID())); err != nil {
		s.logger.Warn().Err(err).Msg("Could not say KBYE")
	}
	_ = s.broker.Close()
	s.receivedDisconnect = true
}

// onKbye resets the broker session when heartbeating is disabled;
// otherwise the heartbeat layer notices the silence on its own.
func (s *Service) onKbye() {
	if !s.hb.enabled {
		s.reset()
	}
}
