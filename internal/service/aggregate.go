package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/internal/metrics"
	"dzchess-analyzer/internal/model"
	"dzchess-analyzer/internal/repository"
)

// AggregateStore is the part of the store the maintainer writes to.
type AggregateStore interface {
	ApplyOutcome(ctx context.Context, d model.OutcomeDelta) (*model.AggregateUpdate, error)
	ReplaceAggregates(ctx context.Context, stats model.PlayerAggregateStats, openings []model.OpeningAggregateStats) error
	ListMatches(ctx context.Context, playerID int64, limit, offset uint) ([]model.MatchRecord, error)
}

var _ AggregateStore = (repository.Store)(nil)

// Maintainer keeps the per-player and per-opening running totals.
// Updates for one player are serialized in process; the store transaction
// makes each update atomic across processes.
type Maintainer struct {
	store AggregateStore
	locks *keyedMutex
	now   func() time.Time
	log   zerolog.Logger
}

// NewMaintainer creates an aggregate maintainer.
func NewMaintainer(store AggregateStore) *Maintainer {
	return &Maintainer{
		store: store,
		locks: newKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
		log:   logging.For("aggregate"),
	}
}

// ApplyOutcome folds one game into the player's aggregates.
func (m *Maintainer) ApplyOutcome(ctx context.Context, playerID int64, outcome model.Outcome,
	openingName, openingCode string, color model.Color, moves int) (*model.AggregateUpdate, error) {
	unlock := m.locks.Lock(playerID)
	defer unlock()

	up, err := m.store.ApplyOutcome(ctx, model.OutcomeDelta{
		PlayerID:    playerID,
		Result:      model.Resolve(outcome, color),
		Color:       color,
		OpeningName: openingName,
		OpeningCode: openingCode,
		Moves:       moves,
	})
	if err != nil {
		if errors.Is(err, model.ErrInvariantViolation) {
			metrics.InvariantViolations.Inc()
			m.log.Error().Err(err).Int64("player_id", playerID).
				Str("opening", openingName).Msg("aggregate update rolled back")
		}
		return nil, err
	}
	return up, nil
}

// RecomputeFromScratch rebuilds a player's aggregates from every stored record.
func (m *Maintainer) RecomputeFromScratch(ctx context.Context, playerID int64) (*model.PlayerAggregateStats, error) {
	unlock := m.locks.Lock(playerID)
	defer unlock()

	records, err := m.store.ListMatches(ctx, playerID, 0, 0)
	if err != nil {
		return nil, errors.Wrapf(model.ErrPersistenceFailure, "load matches: %v", err)
	}

	stats, openings := Fold(playerID, records)
	at := m.now()
	stats.LastAnalysis = &at

	if err := m.store.ReplaceAggregates(ctx, stats, openings); err != nil {
		return nil, err
	}
	m.log.Info().Int64("player_id", playerID).Int("games", stats.TotalGames).
		Int("openings", len(openings)).Msg("aggregates recomputed")
	return &stats, nil
}

type openingKey struct {
	name string
	code string
}

// Fold computes aggregates from a set of records. Openings are returned most
// played first, and the first one is the favorite.
func Fold(playerID int64, records []model.MatchRecord) (model.PlayerAggregateStats, []model.OpeningAggregateStats) {
	stats := model.PlayerAggregateStats{PlayerID: playerID}
	byKey := make(map[openingKey]*model.OpeningAggregateStats)

	for i := range records {
		rec := &records[i]
		kind := rec.Result()
		stats.Add(kind, rec.MovesCount)

		k := openingKey{rec.OpeningName, rec.OpeningCode}
		o, ok := byKey[k]
		if !ok {
			o = &model.OpeningAggregateStats{PlayerID: playerID, OpeningName: k.name, OpeningCode: k.code}
			byKey[k] = o
		}
		o.Add(kind, rec.PlayerColor)
	}

	openings := make([]model.OpeningAggregateStats, 0, len(byKey))
	for _, o := range byKey {
		o.Derive()
		openings = append(openings, *o)
	}
	SortOpenings(openings)
	if len(openings) > 0 {
		stats.FavoriteOpening = openings[0].OpeningName
	}
	stats.Derive()
	return stats, openings
}

// SortOpenings orders by games played, then wins, then name.
func SortOpenings(openings []model.OpeningAggregateStats) {
	sort.SliceStable(openings, func(i, j int) bool {
		a, b := openings[i], openings[j]
		if a.GamesPlayed != b.GamesPlayed {
			return a.GamesPlayed > b.GamesPlayed
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		return a.OpeningName < b.OpeningName
	})
}

// keyedMutex hands out one mutex per player, dropping it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*refMutex)}
}

// Lock blocks until the key is free and returns the unlock function.
func (k *keyedMutex) Lock(key int64) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
