package service

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dzchess-analyzer/internal/model"
	"dzchess-analyzer/internal/parser"
)

func TestProcessBatch_FirstImport(t *testing.T) {
	store := newStore(t)
	proc, _ := newProcessor(store)
	ctx := context.Background()

	player, err := store.UpsertPlayer(ctx, &model.PlayerIdentity{Username: "nour"})
	require.NoError(t, err)

	progress := &recordingProgress{}
	summary, err := proc.ProcessBatch(ctx, player, scenarioBatch(), progress)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.FetchedCount)
	assert.Equal(t, 2, summary.ProcessedCount)
	assert.Equal(t, 1, summary.SkippedCount)
	assert.Equal(t, 1, summary.SkipReasons[model.SkipNotApplicable])
	assert.Equal(t, 2, summary.NewOpeningsCount)
	assert.Equal(t, []model.Phase{model.PhaseParsing, model.PhaseAggregating}, progress.phases)
	assert.Empty(t, summary.Errors)
	assert.False(t, summary.NeedsRecompute)

	stats, err := store.GetPlayerStats(ctx, player.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalGames)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.Equal(t, 0, stats.Draws)
}

func TestProcessBatch_ReimportIsIdempotent(t *testing.T) {
	store := newStore(t)
	proc, _ := newProcessor(store)
	ctx := context.Background()

	player, err := store.UpsertPlayer(ctx, &model.PlayerIdentity{Username: "nour"})
	require.NoError(t, err)

	_, err = proc.ProcessBatch(ctx, player, scenarioBatch(), nil)
	require.NoError(t, err)

	summary, err := proc.ProcessBatch(ctx, player, scenarioBatch(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ProcessedCount)
	assert.Equal(t, 3, summary.SkippedCount)
	assert.Equal(t, 2, summary.SkipReasons[model.SkipDuplicate])
	assert.Equal(t, 1, summary.SkipReasons[model.SkipNotApplicable])
	assert.Equal(t, 0, summary.NewOpeningsCount)

	stats, err := store.GetPlayerStats(ctx, player.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalGames)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.Losses)

	n, err := store.CountMatches(ctx, player.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestProcessBatch_Empty(t *testing.T) {
	store := newStore(t)
	proc, _ := newProcessor(store)

	_, err := proc.ProcessBatch(context.Background(), &model.PlayerIdentity{ID: 1, Username: "nour"}, nil, nil)
	assert.ErrorIs(t, err, model.ErrNoDataAvailable)
}

func TestProcessBatch_MalformedIsSkipped(t *testing.T) {
	store := newStore(t)
	proc, _ := newProcessor(store)
	ctx := context.Background()

	player, err := store.UpsertPlayer(ctx, &model.PlayerIdentity{Username: "nour"})
	require.NoError(t, err)

	raws := append(scenarioBatch()[:1], model.RawMatch{Notation: ""}, model.RawMatch{Notation: "[White \"nour\""})
	summary, err := proc.ProcessBatch(ctx, player, raws, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProcessedCount)
	assert.Equal(t, 2, summary.SkipReasons[model.SkipMalformed])
}

func TestProcessBatch_CancelledBeforeAggregating(t *testing.T) {
	store := newStore(t)
	proc, _ := newProcessor(store)
	ctx := context.Background()

	player, err := store.UpsertPlayer(ctx, &model.PlayerIdentity{Username: "nour"})
	require.NoError(t, err)

	_, err = proc.ProcessBatch(ctx, player, scenarioBatch(), &recordingProgress{cancelAt: model.PhaseAggregating})
	assert.ErrorIs(t, err, model.ErrCancelled)

	n, err := store.CountMatches(ctx, player.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingWriter struct{ err error }

func (f failingWriter) InsertMatch(context.Context, *model.MatchRecord) (bool, error) {
	return false, f.err
}

func TestProcessBatch_PersistenceErrors(t *testing.T) {
	store := newStore(t)
	m := NewMaintainer(store)
	proc := NewProcessor(parser.New(), failingWriter{err: errors.Wrap(model.ErrPersistenceFailure, "disk full")}, m, 0)

	summary, err := proc.ProcessBatch(context.Background(), &model.PlayerIdentity{ID: 1, Username: "nour"}, scenarioBatch(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ProcessedCount)
	assert.Equal(t, 2, summary.SkipReasons[model.SkipPersistence])
	assert.Len(t, summary.Errors, 2)

	proc.errorThreshold = 5
	summary, err = proc.ProcessBatch(context.Background(), &model.PlayerIdentity{ID: 1, Username: "nour"}, scenarioBatch(), nil)
	require.NoError(t, err)
	assert.Empty(t, summary.Errors)
}

// brokenAggregates accepts inserts but fails every aggregate update.
type brokenAggregates struct{}

func (brokenAggregates) ApplyOutcome(context.Context, model.OutcomeDelta) (*model.AggregateUpdate, error) {
	return nil, errors.Wrap(model.ErrInvariantViolation, "counters drifted")
}

func (brokenAggregates) ReplaceAggregates(context.Context, model.PlayerAggregateStats, []model.OpeningAggregateStats) error {
	return nil
}

func (brokenAggregates) ListMatches(context.Context, int64, uint, uint) ([]model.MatchRecord, error) {
	return nil, nil
}

type acceptingWriter struct{ n int }

func (a *acceptingWriter) InsertMatch(context.Context, *model.MatchRecord) (bool, error) {
	a.n++
	return true, nil
}

func TestProcessBatch_AggregateFailureFlagsRecompute(t *testing.T) {
	w := &acceptingWriter{}
	proc := NewProcessor(parser.New(), w, NewMaintainer(brokenAggregates{}), 0)

	summary, err := proc.ProcessBatch(context.Background(), &model.PlayerIdentity{ID: 1, Username: "nour"}, scenarioBatch(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, w.n)
	assert.Equal(t, 0, summary.ProcessedCount)
	assert.Equal(t, 2, summary.SkipReasons[model.SkipAggregate])
	assert.True(t, summary.NeedsRecompute)
}
