package model

import (
	"time"

	"github.com/pkg/errors"
)

// JobKind selects what a job does.
type JobKind string

const (
	JobKindIngest    JobKind = "ingest"
	JobKindRecompute JobKind = "recompute"
)

// JobState is the lifecycle state of a job.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// Phase is the step a running job is in.
type Phase string

const (
	PhaseResolving   Phase = "resolving_player"
	PhaseFetching    Phase = "fetching_archives"
	PhaseParsing     Phase = "parsing_matches"
	PhaseAggregating Phase = "updating_aggregates"
	PhaseFinalizing  Phase = "finalizing"
)

var phaseLabels = map[Phase]string{
	PhaseResolving:   "Resolving player",
	PhaseFetching:    "Fetching archives",
	PhaseParsing:     "Parsing matches",
	PhaseAggregating: "Updating aggregates",
	PhaseFinalizing:  "Finalizing",
}

// Label is the human readable name of the phase.
func (p Phase) Label() string {
	if l, ok := phaseLabels[p]; ok {
		return l
	}
	return string(p)
}

// TotalSteps is the number of phases a job of this kind goes through.
func (k JobKind) TotalSteps() int {
	if k == JobKindRecompute {
		return 3
	}
	return 5
}

// SkipReason says why a raw match did not become a new record.
type SkipReason string

const (
	SkipNotApplicable SkipReason = "not_applicable"
	SkipMalformed     SkipReason = "malformed"
	SkipDuplicate     SkipReason = "duplicate"
	SkipPersistence   SkipReason = "persistence_error"
	SkipAggregate     SkipReason = "aggregate_error"
)

// Summary is the result of a finished job.
type Summary struct {
	Username         string                `json:"username"`
	FetchedCount     int                   `json:"fetched_count"`
	ProcessedCount   int                   `json:"processed_count"`
	SkippedCount     int                   `json:"skipped_count"`
	NewOpeningsCount int                   `json:"new_openings_count"`
	SkipReasons      map[SkipReason]int    `json:"skip_reasons"`
	FailedArchives   []string              `json:"failed_archives,omitempty"`
	NoData           bool                  `json:"no_data"`
	NeedsRecompute   bool                  `json:"needs_recompute,omitempty"`
	Errors           []string              `json:"errors,omitempty"`
	Stats            *PlayerAggregateStats `json:"stats,omitempty"`
}

// NewSummary returns an empty summary for a player.
func NewSummary(username string) *Summary {
	return &Summary{
		Username:    username,
		SkipReasons: make(map[SkipReason]int),
	}
}

// Skip counts one skipped record.
func (s *Summary) Skip(reason SkipReason) {
	s.SkippedCount++
	s.SkipReasons[reason]++
}

// JobRequest asks for a job to be run.
type JobRequest struct {
	Username   string  `json:"username" validate:"required,min=2,max=50"`
	MonthsBack int     `json:"months_back" validate:"gte=0,lte=240"`
	Kind       JobKind `json:"kind" validate:"omitempty,oneof=ingest recompute"`
}

// Progress is the position of a running job.
type Progress struct {
	Step       int    `json:"step"`
	TotalSteps int    `json:"total_steps"`
	Phase      Phase  `json:"phase"`
	Label      string `json:"label"`
	ItemsDone  int    `json:"items_done,omitempty"`
	ItemsTotal int    `json:"items_total,omitempty"`
}

// JobError is the failure payload of a FAILED job.
type JobError struct {
	Message string `json:"message"`
	Phase   Phase  `json:"phase,omitempty"`
}

// Job is one asynchronous ingestion or recompute run.
type Job struct {
	ID         string     `json:"id"`
	Kind       JobKind    `json:"kind"`
	Username   string     `json:"username"`
	MonthsBack int        `json:"months_back"`
	State      JobState   `json:"state"`
	Progress   *Progress  `json:"progress,omitempty"`
	Result     *Summary   `json:"result,omitempty"`
	Error      *JobError  `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewJob returns a PENDING job.
func NewJob(id string, req JobRequest, now time.Time) *Job {
	kind := req.Kind
	if kind == "" {
		kind = JobKindIngest
	}
	return &Job{
		ID:         id,
		Kind:       kind,
		Username:   NormalizeUsername(req.Username),
		MonthsBack: req.MonthsBack,
		State:      JobPending,
		CreatedAt:  now,
	}
}

// Start moves a PENDING job to RUNNING.
func (j *Job) Start(now time.Time) error {
	if j.State != JobPending {
		return errors.Wrapf(ErrJobTerminal, "cannot start job %s in state %s", j.ID, j.State)
	}
	j.State = JobRunning
	j.StartedAt = &now
	j.Progress = &Progress{TotalSteps: j.Kind.TotalSteps()}
	return nil
}

// Advance moves a RUNNING job into the next phase.
func (j *Job) Advance(phase Phase) error {
	if j.State != JobRunning {
		return errors.Wrapf(ErrJobTerminal, "cannot advance job %s in state %s", j.ID, j.State)
	}
	p := j.Progress
	p.Step++
	if p.Step > p.TotalSteps {
		p.TotalSteps = p.Step
	}
	p.Phase = phase
	p.Label = phase.Label()
	p.ItemsDone, p.ItemsTotal = 0, 0
	return nil
}

// SetItems records item progress within the current phase.
func (j *Job) SetItems(done, total int) {
	if j.State != JobRunning || j.Progress == nil {
		return
	}
	j.Progress.ItemsDone = done
	j.Progress.ItemsTotal = total
}

// Succeed finishes the job with a summary.
func (j *Job) Succeed(summary *Summary, now time.Time) error {
	if j.State.Terminal() {
		return errors.Wrapf(ErrJobTerminal, "job %s", j.ID)
	}
	j.State = JobSucceeded
	j.Result = summary
	j.FinishedAt = &now
	return nil
}

// Fail finishes the job with err, recording the phase it was in. A PENDING
// job may fail directly only when it was never started, as when the queue
// rejects it or the runner stops before a worker picks it up; it then has no
// progress, no phase and no StartedAt.
func (j *Job) Fail(err error, now time.Time) error {
	if j.State.Terminal() {
		return errors.Wrapf(ErrJobTerminal, "job %s", j.ID)
	}
	je := &JobError{Message: err.Error()}
	if j.Progress != nil {
		je.Phase = j.Progress.Phase
	}
	j.State = JobFailed
	j.Error = je
	j.FinishedAt = &now
	return nil
}

// Clone returns a deep enough copy for handing to readers.
func (j *Job) Clone() *Job {
	c := *j
	if j.Progress != nil {
		p := *j.Progress
		c.Progress = &p
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return &c
}
