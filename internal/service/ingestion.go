package service

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/internal/metrics"
	"dzchess-analyzer/internal/model"
	"dzchess-analyzer/internal/parser"
)

// Progress receives phase changes and item counts from a running job.
// Advance returns an error when the job should stop, such as after a cancel.
type Progress interface {
	Advance(phase model.Phase) error
	Items(done, total int)
}

type nopProgress struct{}

func (nopProgress) Advance(model.Phase) error { return nil }
func (nopProgress) Items(int, int)            {}

// NopProgress discards progress reports.
var NopProgress Progress = nopProgress{}

// MatchWriter persists match records.
type MatchWriter interface {
	InsertMatch(ctx context.Context, rec *model.MatchRecord) (bool, error)
}

// Processor turns a batch of raw matches into persisted records and
// aggregate updates.
type Processor struct {
	parser     *parser.Parser
	matches    MatchWriter
	aggregates *Maintainer
	// errorThreshold is how many persistence errors are tolerated before
	// they are listed in the summary.
	errorThreshold int
	log            zerolog.Logger
}

// NewProcessor creates a batch processor.
func NewProcessor(p *parser.Parser, matches MatchWriter, aggregates *Maintainer, errorThreshold int) *Processor {
	return &Processor{
		parser:         p,
		matches:        matches,
		aggregates:     aggregates,
		errorThreshold: errorThreshold,
		log:            logging.For("ingestion"),
	}
}

// ProcessBatch parses every raw match, then stores and aggregates the
// records in input order. It returns model.ErrNoDataAvailable for an empty
// batch.
func (p *Processor) ProcessBatch(ctx context.Context, player *model.PlayerIdentity, raws []model.RawMatch, progress Progress) (*model.Summary, error) {
	if len(raws) == 0 {
		return nil, model.ErrNoDataAvailable
	}
	if progress == nil {
		progress = NopProgress
	}

	summary := model.NewSummary(player.Username)
	summary.FetchedCount = len(raws)

	if err := progress.Advance(model.PhaseParsing); err != nil {
		return nil, err
	}
	parsed := make([]parser.Result, len(raws))
	for i := range raws {
		parsed[i] = p.parser.Parse(raws[i], player.Username)
		progress.Items(i+1, len(raws))
	}

	if err := progress.Advance(model.PhaseAggregating); err != nil {
		return nil, err
	}
	var persistErrs *multierror.Error
	for i := range parsed {
		reason, err := p.handle(ctx, player, &parsed[i], summary)
		switch {
		case reason != "":
			summary.Skip(reason)
			metrics.RecordsSkipped.WithLabelValues(string(reason)).Inc()
		default:
			summary.ProcessedCount++
			metrics.RecordsProcessed.Inc()
		}
		if err != nil && reason == model.SkipPersistence {
			persistErrs = multierror.Append(persistErrs, err)
		}
		progress.Items(i+1, len(parsed))
	}

	if persistErrs != nil && len(persistErrs.Errors) > 0 {
		n := len(persistErrs.Errors)
		p.log.Warn().Err(persistErrs).Str("username", player.Username).Int("count", n).
			Msg("persistence errors during batch")
		if n > p.errorThreshold {
			for _, err := range persistErrs.Errors {
				summary.Errors = append(summary.Errors, err.Error())
			}
		}
	}

	p.log.Info().
		Str("username", player.Username).
		Int("fetched", summary.FetchedCount).
		Int("processed", summary.ProcessedCount).
		Int("skipped", summary.SkippedCount).
		Int("new_openings", summary.NewOpeningsCount).
		Msg("batch processed")
	return summary, nil
}

// handle processes one parse result. It returns the skip reason, empty when
// the record was stored and aggregated.
func (p *Processor) handle(ctx context.Context, player *model.PlayerIdentity, res *parser.Result, summary *model.Summary) (reason model.SkipReason, err error) {
	defer func() {
		if r := recover(); r != nil {
			reason = model.SkipMalformed
			err = errors.Wrapf(model.ErrMalformedRecord, "panic: %v", r)
			p.log.Error().Interface("panic", r).Str("username", player.Username).Msg("record handling panicked")
		}
	}()

	switch res.Status {
	case parser.StatusNotApplicable:
		return model.SkipNotApplicable, nil
	case parser.StatusMalformed:
		p.log.Debug().Err(res.Err).Str("username", player.Username).Msg("malformed record")
		return model.SkipMalformed, res.Err
	}

	rec := res.Record
	rec.PlayerID = player.ID

	inserted, err := p.matches.InsertMatch(ctx, rec)
	if err != nil {
		return model.SkipPersistence, errors.Wrap(err, describe(rec))
	}
	if !inserted {
		return model.SkipDuplicate, model.ErrDuplicateRecord
	}

	up, err := p.aggregates.ApplyOutcome(ctx, player.ID, rec.Outcome, rec.OpeningName, rec.OpeningCode, rec.PlayerColor, rec.MovesCount)
	if err != nil {
		summary.NeedsRecompute = true
		p.log.Error().Err(err).Str("username", player.Username).Str("match", describe(rec)).
			Msg("record stored but aggregates not updated")
		return model.SkipAggregate, err
	}
	if up.OpeningCreated {
		summary.NewOpeningsCount++
	}
	return "", nil
}

func describe(rec *model.MatchRecord) string {
	k := rec.Key()
	return fmt.Sprintf("%s vs %s on %s (%s)", rec.PlayerColor, k.OpponentName, k.DatePlayed, k.TimeControl)
}
