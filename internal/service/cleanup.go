package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/internal/metrics"
	"dzchess-analyzer/internal/model"
)

// StalePlayerLister finds players whose analysis is out of date.
type StalePlayerLister interface {
	ListStalePlayers(ctx context.Context, before time.Time, limit uint) ([]model.PlayerIdentity, error)
}

// JobSubmitter accepts new jobs.
type JobSubmitter interface {
	Submit(ctx context.Context, req model.JobRequest) (*model.Job, error)
}

// CleanupConfig holds configuration for the stale analysis sweep.
type CleanupConfig struct {
	// StaleAfter is how old a last analysis may get before the player is stale.
	// Default: 30 days
	StaleAfter time.Duration

	// Interval is how often the sweep runs.
	// Default: 24 hours
	Interval time.Duration

	// AutoRefresh submits an ingest job for each stale player.
	AutoRefresh bool

	// BatchSize caps the players handled per run; 0 means no cap.
	BatchSize int

	// MonthsBack is passed to refresh jobs.
	MonthsBack int
}

// SweepResult reports one sweep run.
type SweepResult struct {
	Stale     int `json:"stale"`
	Submitted int `json:"submitted"`
}

// CleanupScheduler periodically looks for players with stale analysis and
// optionally queues a refresh for them.
type CleanupScheduler struct {
	players   StalePlayerLister
	submitter JobSubmitter
	config    CleanupConfig
	now       func() time.Time
	log       zerolog.Logger

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

// NewCleanupScheduler creates a sweep. submitter may be nil when AutoRefresh is off.
func NewCleanupScheduler(players StalePlayerLister, submitter JobSubmitter, config CleanupConfig) *CleanupScheduler {
	if config.StaleAfter == 0 {
		config.StaleAfter = 30 * 24 * time.Hour
	}
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}

	return &CleanupScheduler{
		players:   players,
		submitter: submitter,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logging.For("sweep"),
	}
}

// Start schedules the sweep. Calling it twice is a no-op.
func (s *CleanupScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrap(err, "create scheduler")
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.config.Interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := s.RunNow(ctx); err != nil {
				s.log.Error().Err(err).Msg("sweep failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return errors.Wrap(err, "schedule sweep")
	}
	sched.Start()
	s.scheduler = sched

	s.log.Info().
		Dur("interval", s.config.Interval).
		Dur("stale_after", s.config.StaleAfter).
		Bool("auto_refresh", s.config.AutoRefresh).
		Msg("sweep started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Shutdown(); err != nil {
		s.log.Warn().Err(err).Msg("scheduler shutdown")
	}
	s.scheduler = nil
	s.log.Info().Msg("sweep stopped")
}

// RunNow performs one sweep.
func (s *CleanupScheduler) RunNow(ctx context.Context) (*SweepResult, error) {
	before := s.now().Add(-s.config.StaleAfter)

	var limit uint
	if s.config.BatchSize > 0 {
		limit = uint(s.config.BatchSize)
	}
	stale, err := s.players.ListStalePlayers(ctx, before, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list stale players")
	}
	metrics.StalePlayers.Set(float64(len(stale)))

	res := &SweepResult{Stale: len(stale)}
	if len(stale) == 0 {
		s.log.Debug().Msg("no stale players")
		return res, nil
	}

	if s.config.AutoRefresh && s.submitter != nil {
		for _, p := range stale {
			_, err := s.submitter.Submit(ctx, model.JobRequest{
				Username:   p.Username,
				MonthsBack: s.config.MonthsBack,
				Kind:       model.JobKindIngest,
			})
			switch {
			case err == nil:
				res.Submitted++
			case errors.Is(err, model.ErrPlayerBusy):
			case errors.Is(err, model.ErrQueueFull):
				s.log.Warn().Int("submitted", res.Submitted).Msg("queue full, stopping refresh")
				return res, nil
			default:
				s.log.Warn().Err(err).Str("username", p.Username).Msg("refresh submit failed")
			}
		}
	}

	s.log.Info().Int("stale", res.Stale).Int("submitted", res.Submitted).
		Time("before", before).Msg("sweep finished")
	return res, nil
}
