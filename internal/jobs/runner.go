// Package jobs runs ingestion work on a fixed worker pool and tracks each
// job through PENDING, RUNNING, SUCCEEDED and FAILED.
package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"dzchess-analyzer/internal/cache"
	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/internal/metrics"
	"dzchess-analyzer/internal/model"
	"dzchess-analyzer/internal/service"
	"dzchess-analyzer/pkg/uid"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("runner stopped")

// Executor runs the body of a job.
type Executor interface {
	Run(ctx context.Context, job *model.Job, progress service.Progress) (*model.Summary, error)
}

// Config sizes the runner.
type Config struct {
	Workers   int
	QueueSize int
	// LockTTL bounds how long a crashed instance can keep a player busy.
	LockTTL time.Duration
	// DefaultMonthsBack is used when a request leaves months_back at 0.
	DefaultMonthsBack int
}

type entry struct {
	job       *model.Job
	cancelled atomic.Bool
}

// Runner accepts jobs and executes them in the background.
type Runner struct {
	exec     Executor
	store    cache.Store
	validate *validator.Validate
	cfg      Config
	now      func() time.Time
	log      zerolog.Logger

	queue chan *entry

	mu      sync.Mutex
	active  map[string]*entry
	stopped bool

	baseCtx    context.Context
	cancelBase context.CancelFunc
	stopCh     chan struct{}
	stopOnce   sync.Once
	startOnce  sync.Once
	wg         sync.WaitGroup
}

// New creates a runner. Call Start to launch the workers.
func New(exec Executor, store cache.Store, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		exec:       exec,
		store:      store,
		validate:   validator.New(),
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logging.For("jobs"),
		queue:      make(chan *entry, cfg.QueueSize),
		active:     make(map[string]*entry),
		baseCtx:    ctx,
		cancelBase: cancel,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the worker pool.
func (r *Runner) Start() {
	r.startOnce.Do(func() {
		for i := 0; i < r.cfg.Workers; i++ {
			r.wg.Add(1)
			go r.worker()
		}
		r.log.Info().Int("workers", r.cfg.Workers).Int("queue", r.cfg.QueueSize).Msg("job runner started")
	})
}

// Submit validates req, takes the player guard and queues a PENDING job.
func (r *Runner) Submit(ctx context.Context, req model.JobRequest) (*model.Job, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, errors.Wrap(model.ErrInvalidJob, err.Error())
	}
	if req.MonthsBack == 0 {
		req.MonthsBack = r.cfg.DefaultMonthsBack
	}

	job := model.NewJob(uid.New(), req, r.now())

	ok, err := r.store.TryAcquire(ctx, job.Username, job.ID, r.cfg.LockTTL)
	if err != nil {
		return nil, errors.Wrap(err, "acquire player lock")
	}
	if !ok {
		return nil, errors.Wrapf(model.ErrPlayerBusy, "%s", job.Username)
	}

	if err := r.store.SaveJob(ctx, job); err != nil {
		r.release(job)
		return nil, errors.Wrap(err, "save job")
	}

	e := &entry{job: job}
	snapshot := job.Clone()

	// enqueue under mu so Stop cannot miss a job queued after it drained
	r.mu.Lock()
	var rejected error
	if r.stopped {
		rejected = ErrStopped
	} else {
		select {
		case r.queue <- e:
			r.active[job.ID] = e
		default:
			rejected = model.ErrQueueFull
		}
	}
	r.mu.Unlock()

	if rejected != nil {
		_ = job.Fail(rejected, r.now())
		r.save(job)
		r.release(job)
		return nil, rejected
	}

	metrics.JobsSubmitted.WithLabelValues(string(snapshot.Kind)).Inc()
	metrics.QueueDepth.Set(float64(len(r.queue)))
	r.log.Info().Str("job_id", snapshot.ID).Str("kind", string(snapshot.Kind)).
		Str("username", snapshot.Username).Int("months_back", snapshot.MonthsBack).Msg("job queued")
	return snapshot, nil
}

// Status returns the latest snapshot of a job.
func (r *Runner) Status(ctx context.Context, id string) (*model.Job, error) {
	return r.store.GetJob(ctx, id)
}

// Cancel asks a job to stop at its next phase boundary. Network calls in
// flight are not interrupted.
func (r *Runner) Cancel(ctx context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	e, ok := r.active[id]
	r.mu.Unlock()

	if !ok {
		job, err := r.store.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.State.Terminal() {
			return nil, errors.Wrapf(model.ErrJobTerminal, "%s", id)
		}
		return nil, errors.Wrapf(model.ErrJobNotFound, "%s is not running on this instance", id)
	}

	e.cancelled.Store(true)
	r.log.Info().Str("job_id", id).Msg("cancel requested")
	return r.store.GetJob(ctx, id)
}

// Stop stops accepting jobs, lets running jobs finish and fails the queued
// ones. When ctx expires first, running jobs are interrupted.
func (r *Runner) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()
		close(r.stopCh)
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		r.cancelBase()
		<-done
		err = ctx.Err()
	}

	for {
		select {
		case e := <-r.queue:
			r.finish(e, nil, ErrStopped)
		default:
			metrics.QueueDepth.Set(0)
			r.log.Info().Msg("job runner stopped")
			return err
		}
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for {
		// stop wins over a non-empty queue
		select {
		case <-r.stopCh:
			return
		default:
		}
		select {
		case <-r.stopCh:
			return
		case e := <-r.queue:
			metrics.QueueDepth.Set(float64(len(r.queue)))
			r.execute(e)
		}
	}
}

func (r *Runner) execute(e *entry) {
	job := e.job
	if err := job.Start(r.now()); err != nil {
		r.log.Error().Err(err).Str("job_id", job.ID).Msg("job start")
		return
	}
	r.save(job)

	if e.cancelled.Load() {
		r.finish(e, nil, model.ErrCancelled)
		return
	}

	log := r.log.With().Str("job_id", job.ID).Str("username", job.Username).Logger()
	log.Info().Str("kind", string(job.Kind)).Msg("job started")

	p := &progress{runner: r, entry: e}
	summary, err := r.run(job, p)
	r.finish(e, summary, err)
}

func (r *Runner) run(job *model.Job, p *progress) (summary *model.Summary, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("job panicked: %v", rec)
		}
	}()
	ctx := logging.WithContext(r.baseCtx, r.log.With().Str("job_id", job.ID).Logger())
	return r.exec.Run(ctx, job, p)
}

func (r *Runner) finish(e *entry, summary *model.Summary, err error) {
	job := e.job
	now := r.now()
	if err != nil {
		_ = job.Fail(err, now)
	} else {
		_ = job.Succeed(summary, now)
	}
	r.save(job)
	r.release(job)

	r.mu.Lock()
	delete(r.active, job.ID)
	r.mu.Unlock()

	metrics.JobsFinished.WithLabelValues(string(job.Kind), string(job.State)).Inc()
	if job.StartedAt != nil {
		metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(now.Sub(*job.StartedAt).Seconds())
	}

	ev := r.log.Info()
	if err != nil {
		ev = r.log.Warn().Err(err)
	}
	ev.Str("job_id", job.ID).Str("username", job.Username).Str("state", string(job.State)).Msg("job finished")
}

func (r *Runner) save(job *model.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.SaveJob(ctx, job); err != nil {
		r.log.Error().Err(err).Str("job_id", job.ID).Msg("save job")
	}
}

func (r *Runner) release(job *model.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.Release(ctx, job.Username, job.ID); err != nil {
		r.log.Error().Err(err).Str("job_id", job.ID).Msg("release player lock")
	}
}

// progress forwards pipeline progress into the job and the store.
type progress struct {
	runner    *Runner
	entry     *entry
	lastSaved time.Time
}

func (p *progress) Advance(phase model.Phase) error {
	if p.entry.cancelled.Load() {
		return model.ErrCancelled
	}
	if err := p.entry.job.Advance(phase); err != nil {
		return err
	}
	p.runner.save(p.entry.job)
	p.lastSaved = p.runner.now()
	return nil
}

func (p *progress) Items(done, total int) {
	p.entry.job.SetItems(done, total)
	now := p.runner.now()
	if done == total || now.Sub(p.lastSaved) >= 500*time.Millisecond {
		p.runner.save(p.entry.job)
		p.lastSaved = now
	}
}
