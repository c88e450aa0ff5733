package scheduler

import (
	"context"

	"github.com/jacobdh/eventmq/internal/protocol"
)

// Run performs recovery, announces the scheduler to the broker, and
// drives the dispatch loop until a DISCONNECT, peer loss, or context
// cancellation. Everything happens on the calling goroutine; the
// transport poll is the only suspension point.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info().Str("name", s.name).Msg("Initializing scheduler")

	s.loadJobs(ctx)

	if s.adminServer != nil {
		s.adminServer.start()
		defer s.adminServer.stop()
	}

	s.announceReady()
	s.hb.reset(s.clk.MonoNow())

	for {
		if s.receivedDisconnect {
			break
		}
		if ctx.Err() != nil {
			break
		}

		wallNow := s.clk.WallNow()
		monoNow := s.clk.MonoNow()

		ready := s.poller.Poll(s.pollTimeout)

		if ready[s.admin] {
			s.serviceAdmin()
		}
		if ready[s.broker] {
			if frame, ok := s.broker.Recv(); ok {
				s.processMessage(ctx, frame)
			}
		}

		s.sweepCron(wallNow)
		s.sweepInterval(ctx, monoNow)

		if !s.maybeSendHeartbeat() {
			s.logger.Warn().Msg("Broker peer lost, exiting loop")
			break
		}
	}

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// tick runs one loop iteration without the transport poll and the
// heartbeat step. Tests drive the loop through this to stay
// deterministic.
func (s *Service) tick(ctx context.Context) {
	wallNow := s.clk.WallNow()
	monoNow := s.clk.MonoNow()

	if s.admin.Pending() {
		s.serviceAdmin()
	}
	if s.broker.Pending() {
		if frame, ok := s.broker.Recv(); ok {
			s.processMessage(ctx, frame)
		}
	}

	s.sweepCron(wallNow)
	s.sweepInterval(ctx, monoNow)
}

// serviceAdmin handles one administrative envelope.
func (s *Service) serviceAdmin() {
	routed, ok := s.admin.RecvRouted()
	if !ok {
		return
	}
	frame := routed.Frame
	if err := frame.Validate(); err != nil {
		s.logger.Warn().Err(err).Msg("Dropping malformed admin frame")
		return
	}
	if frame.Command() != protocol.StatusCmd {
		s.logger.Warn().Str("cmd", frame.Command()).Msg("Unknown admin command")
		return
	}
	body := frame.Body()
	if len(body) == 0 || body[0] != protocol.ShowScheduledJobs {
		s.logger.Warn().Strs("body", body).Msg("Unknown admin sub-command")
		return
	}

	snapshot, err := s.snapshotJSON()
	if err != nil {
		s.logger.Error().Err(err).Msg("Could not build status snapshot")
		return
	}
	reply := protocol.NewFrame(protocol.Reply, newMsgID(), snapshot)
	if err := s.admin.SendTo(routed.Sender, reply); err != nil {
		s.logger.Warn().Err(err).Msg("Could not deliver status snapshot")
	}
}

// sweepCron dispatches every cron entry whose wall deadline has
// arrived and moves it to the following activation.
func (s *Service) sweepCron(wallNow int64) {
	for _, hash := range s.catalog.DueCron(wallNow) {
		entry, ok := s.catalog.Cron(hash)
		if !ok {
			continue
		}
		s.logger.Debug().
			Int64("now", wallNow).
			Int64("deadline", entry.NextFireWall).
			Str("hash", hash).
			Msg("Cron schedule due")

		s.dispatch(entry.Payload, entry.Queue)
		s.catalog.AdvanceCron(hash)
	}
}

// sweepInterval dispatches every interval entry whose monotonic
// deadline has arrived, decrementing finite run counts and staging
// exhausted entries for removal. Each due entry fires once per tick
// regardless of how far behind it is; the schedule slips forward
// rather than bursting.
func (s *Service) sweepInterval(ctx context.Context, monoNow float64) {
	var cancel []string

	for _, hash := range s.catalog.DueInterval(monoNow) {
		entry, ok := s.catalog.Interval(hash)
		if !ok {
			continue
		}

		if entry.RunCount != protocol.InfiniteRunCount {
			if entry.RunCount <= 0 {
				cancel = append(cancel, hash)
				continue
			}
			entry.RunCount--
			if err := s.store.UpdateRunCount(ctx, hash, entry.RunCount); err != nil {
				s.logger.Warn().Err(err).Str("hash", hash).Msg("Unable to update run count in store")
				s.metrics.storeErrors.Inc()
			}
		}

		s.dispatch(entry.Payload, entry.Queue)
		s.catalog.AdvanceInterval(hash)
	}

	for _, hash := range cancel {
		s.logger.Debug().Str("hash", hash).Msg("Cancelling schedule, run count exhausted")
		s.catalog.Remove(hash)
		if err := s.store.Forget(ctx, hash); err != nil {
			s.logger.Warn().Err(err).Str("hash", hash).Msg("Unable to remove schedule from store")
			s.metrics.storeErrors.Inc()
		}
	}
}
