package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/internal/model"
	"dzchess-analyzer/internal/repository"
	"dzchess-analyzer/internal/source"
)

// Source is the remote game archive.
type Source interface {
	FetchProfile(ctx context.Context, username string) (*model.ProfileInfo, error)
	FetchRatingSnapshot(ctx context.Context, username string) (*model.RatingInfo, bool)
	Archives(ctx context.Context, username string) ([]model.ArchiveHandle, error)
	FetchArchives(ctx context.Context, handles []model.ArchiveHandle) []source.ArchiveResult
}

var _ Source = (*source.Client)(nil)

// Pipeline runs the body of ingest and recompute jobs.
type Pipeline struct {
	source     Source
	store      repository.Store
	processor  *Processor
	aggregates *Maintainer
	now        func() time.Time
	log        zerolog.Logger
}

// NewPipeline wires a pipeline.
func NewPipeline(src Source, store repository.Store, processor *Processor, aggregates *Maintainer) *Pipeline {
	return &Pipeline{
		source:     src,
		store:      store,
		processor:  processor,
		aggregates: aggregates,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logging.For("pipeline"),
	}
}

// Run executes a job of the given kind.
func (p *Pipeline) Run(ctx context.Context, job *model.Job, progress Progress) (*model.Summary, error) {
	if progress == nil {
		progress = NopProgress
	}
	if job.Kind == model.JobKindRecompute {
		return p.Recompute(ctx, job.Username, progress)
	}
	return p.Ingest(ctx, job.Username, job.MonthsBack, progress)
}

// Ingest pulls the last monthsBack archives of a player and folds new
// records into the aggregates. monthsBack <= 0 means every archive.
func (p *Pipeline) Ingest(ctx context.Context, username string, monthsBack int, progress Progress) (*model.Summary, error) {
	username = model.NormalizeUsername(username)
	log := p.log.With().Str("username", username).Logger()

	if err := progress.Advance(model.PhaseResolving); err != nil {
		return nil, err
	}
	player, err := p.resolve(ctx, username)
	if err != nil {
		return nil, err
	}

	if err := progress.Advance(model.PhaseFetching); err != nil {
		return nil, err
	}
	handles, err := p.source.Archives(ctx, username)
	if err != nil {
		return nil, err
	}
	handles = source.LastN(handles, monthsBack)
	log.Info().Int("archives", len(handles)).Int("months_back", monthsBack).Msg("fetching archives")
	progress.Items(0, len(handles))

	var raws []model.RawMatch
	var failed []string
	for i, res := range p.source.FetchArchives(ctx, handles) {
		if res.Err != nil {
			failed = append(failed, res.Handle.Label)
			log.Warn().Err(res.Err).Str("archive", res.Handle.Label).Msg("archive unavailable")
		} else {
			raws = append(raws, res.Matches...)
		}
		progress.Items(i+1, len(handles))
	}
	if len(handles) > 0 && len(failed) == len(handles) {
		return nil, errors.Wrapf(model.ErrSourceUnavailable, "all %d archives failed", len(handles))
	}

	summary, err := p.processor.ProcessBatch(ctx, player, raws, progress)
	switch {
	case errors.Is(err, model.ErrNoDataAvailable):
		log.Info().Msg("no matches available")
		summary = model.NewSummary(username)
		summary.NoData = true
	case err != nil:
		return nil, err
	}
	summary.FailedArchives = failed

	if err := p.finalize(ctx, player, summary, progress); err != nil {
		return nil, err
	}
	return summary, nil
}

// Recompute rebuilds a known player's aggregates from stored records.
func (p *Pipeline) Recompute(ctx context.Context, username string, progress Progress) (*model.Summary, error) {
	username = model.NormalizeUsername(username)

	if err := progress.Advance(model.PhaseResolving); err != nil {
		return nil, err
	}
	player, err := p.store.GetPlayer(ctx, username)
	if err != nil {
		return nil, err
	}

	if err := progress.Advance(model.PhaseAggregating); err != nil {
		return nil, err
	}
	stats, err := p.aggregates.RecomputeFromScratch(ctx, player.ID)
	if err != nil {
		return nil, err
	}

	summary := model.NewSummary(username)
	summary.ProcessedCount = stats.TotalGames
	summary.NoData = stats.TotalGames == 0

	if err := progress.Advance(model.PhaseFinalizing); err != nil {
		return nil, err
	}
	summary.Stats = stats
	return summary, nil
}

// resolve fetches the profile and stores the player with its current rating.
func (p *Pipeline) resolve(ctx context.Context, username string) (*model.PlayerIdentity, error) {
	profile, err := p.source.FetchProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	identity := &model.PlayerIdentity{
		Username:    username,
		DisplayName: profile.DisplayName,
		Country:     profile.Country,
		AvatarURL:   profile.AvatarURL,
	}
	if ratings, ok := p.source.FetchRatingSnapshot(ctx, username); ok {
		identity.CurrentRating = ratings.Primary()
	}
	return p.store.UpsertPlayer(ctx, identity)
}

func (p *Pipeline) finalize(ctx context.Context, player *model.PlayerIdentity, summary *model.Summary, progress Progress) error {
	if err := progress.Advance(model.PhaseFinalizing); err != nil {
		return err
	}
	if err := p.store.MarkAnalyzed(ctx, player.ID, p.now()); err != nil {
		return err
	}
	stats, err := p.store.GetPlayerStats(ctx, player.ID)
	if err != nil {
		return errors.Wrapf(model.ErrPersistenceFailure, "read stats: %v", err)
	}
	summary.Stats = stats
	return nil
}
