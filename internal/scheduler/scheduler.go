// Package scheduler implements the eventmq scheduler service: keeper
// of time, master of schedules. It owns the schedule catalog, mirrors
// it into the backing store, and dispatches REQUESTs to the broker when
// deadlines arrive.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jacobdh/eventmq/internal/catalog"
	"github.com/jacobdh/eventmq/internal/clock"
	"github.com/jacobdh/eventmq/internal/config"
	"github.com/jacobdh/eventmq/internal/protocol"
	"github.com/jacobdh/eventmq/internal/store"
	"github.com/jacobdh/eventmq/internal/transport"
)

// JobStore is the slice of the persistence adapter the service uses.
type JobStore interface {
	LoadAll(ctx context.Context) ([]store.LoadedJob, error)
	Persist(ctx context.Context, hash string, m protocol.JobMessage) error
	Forget(ctx context.Context, hash string) error
	UpdateRunCount(ctx context.Context, hash string, runCount int) error
	Close() error
}

// AdminSocket is the administrative listener as seen by the loop:
// routed frames in, addressed replies out.
type AdminSocket interface {
	RecvRouted() (transport.Routed, bool)
	SendTo(sender string, f protocol.Frame) error
	Close() error
	transport.Pollable
}

// Service is the scheduler. All of its state belongs to the single
// goroutine running Run.
type Service struct {
	cfg    *config.Config
	name   string
	logger zerolog.Logger

	clk     clock.Clock
	catalog *catalog.Catalog
	store   JobStore
	broker  transport.Socket
	admin   AdminSocket
	poller  *transport.Poller
	metrics *metrics
	hb      heartbeat

	pollTimeout time.Duration

	// dialBroker re-establishes the broker connection on reset.
	dialBroker func() (transport.Socket, error)

	adminServer *adminServer

	receivedDisconnect bool
}

// New assembles a production service: redis store, websocket broker
// connection, and the administrative listener.
func New(cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	broker, err := transport.DialDealer(cfg.ConnectAddr, logger)
	if err != nil {
		return nil, err
	}

	st := store.Dial(store.Options{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	}, logger)

	router := transport.NewRouter(logger)

	s := newService(cfg, logger, clock.New(), st, broker, router, prometheus.DefaultRegisterer)
	s.dialBroker = func() (transport.Socket, error) {
		return transport.DialDealer(cfg.ConnectAddr, logger)
	}
	s.adminServer = newAdminServer(cfg.AdminListenAddr, router, s.logger)
	return s, nil
}

// newService wires a service from parts. Tests inject fakes here.
func newService(cfg *config.Config, logger zerolog.Logger, clk clock.Clock, st JobStore, broker transport.Socket, admin AdminSocket, reg prometheus.Registerer) *Service {
	s := &Service{
		cfg:         cfg,
		name:        generateDeviceName(cfg.Name),
		logger:      logger.With().Str("component", "scheduler").Logger(),
		clk:         clk,
		catalog:     catalog.New(logger),
		store:       st,
		broker:      broker,
		admin:       admin,
		poller:      transport.NewPoller(),
		metrics:     newMetrics(reg),
		hb:          newHeartbeat(cfg.Heartbeat),
		pollTimeout: time.Duration(cfg.PollTimeoutMs) * time.Millisecond,
	}
	s.poller.Register(broker)
	s.poller.Register(admin)
	return s
}

// Name returns the generated device name.
func (s *Service) Name() string {
	return s.name
}

// generateDeviceName builds the identity the scheduler announces
// itself under.
func generateDeviceName(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}

func newMsgID() string {
	return uuid.New().String()
}

// installJob places a job message into the catalog under its schedule
// hash, selecting the map by the sign of the interval. It is the shared
// path for SCHEDULE and recovery load.
func (s *Service) installJob(hash string, m protocol.JobMessage) error {
	switch {
	case m.IntervalSecs > 0:
		runCount := protocol.RunCountFromHeaders(m.Headers)
		return s.catalog.UpsertInterval(hash, m.Payload, m.IntervalSecs, m.Queue, runCount, s.clk.MonoNow())
	case m.IntervalSecs == 0:
		return fmt.Errorf("zero-second interval")
	case m.CronExpr != "":
		return s.catalog.UpsertCron(hash, m.Payload, m.CronExpr, m.Queue, s.clk.WallNow())
	default:
		return fmt.Errorf("negative interval with empty cron expression")
	}
}

// loadJobs restores the catalog from the store. Runs exactly once,
// before the loop accepts traffic; a dead store means an empty catalog
// and a running loop.
func (s *Service) loadJobs(ctx context.Context) {
	jobs, err := s.store.LoadAll(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Could not contact redis server")
		return
	}
	for _, job := range jobs {
		s.logger.Debug().Str("hash", job.Hash).Msg("Restoring schedule")
		if err := s.installJob(job.Hash, job.Message); err != nil {
			s.logger.Warn().Err(err).Str("hash", job.Hash).Msg("Stored schedule is not installable, skipping")
		}
	}
}

// dispatch forwards one due payload to the broker as a REQUEST tagged
// with the target queue. The broker's return id is discarded; dispatch
// is fire-and-forget at this layer.
func (s *Service) dispatch(payload, queue string) {
	var request []any
	if err := json.Unmarshal([]byte(payload), &request); err != nil {
		s.logger.Warn().Err(err).Str("queue", queue).Msg("Payload is not a request array, not dispatching")
		return
	}

	f := protocol.NewFrame(protocol.Request, newMsgID(), queue, "reply-requested", payload)
	if err := s.broker.Send(f); err != nil {
		s.logger.Warn().Err(err).Str("queue", queue).Msg("Dispatch failed")
		return
	}
	s.metrics.dispatches.WithLabelValues(queue).Inc()
}

// announceReady identifies this client to the broker.
func (s *Service) announceReady() {
	f := protocol.NewFrame(protocol.Ready, newMsgID(), "scheduler", s.name)
	if err := s.broker.Send(f); err != nil {
		s.logger.Warn().Err(err).Msg("Could not announce READY")
	}
}

// snapshotJSON renders the full catalog view for administrative
// callers.
func (s *Service) snapshotJSON() (string, error) {
	b, err := json.Marshal(s.catalog.Snapshot(s.name))
	if err != nil {
		return "", fmt.Errorf("serialize snapshot: %w", err)
	}
	return string(b), nil
}

// intervalSnapshotJSON renders the bare interval-job map for peer
// STATUS callers.
func (s *Service) intervalSnapshotJSON() (string, error) {
	b, err := json.Marshal(s.catalog.IntervalSnapshot())
	if err != nil {
		return "", fmt.Errorf("serialize interval snapshot: %w", err)
	}
	return string(b), nil
}

// reset tears down and re-establishes the broker session. The catalog
// is retained; it is the in-memory authority.
func (s *Service) reset() {
	if s.dialBroker == nil {
		s.logger.Warn().Msg("No broker dialer configured, cannot reset")
		return
	}
	_ = s.broker.Close()

	broker, err := s.dialBroker()
	if err != nil {
		s.logger.Error().Err(err).Msg("Reset failed, shutting down")
		s.receivedDisconnect = true
		return
	}
	s.broker = broker

	s.poller = transport.NewPoller()
	s.poller.Register(s.broker)
	s.poller.Register(s.admin)

	s.announceReady()
	s.hb.reset(s.clk.MonoNow())
}
