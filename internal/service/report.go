package service

import (
	"context"
	"sort"

	"dzchess-analyzer/internal/model"
	"dzchess-analyzer/internal/repository"
)

// Recommendation thresholds.
const (
	MinGamesForRecommendation = 5
	GoodWinRate               = 60.0
	WeakWinRate               = 40.0
	MaxRecommendations        = 3
)

// PlayerOverview is a player with their aggregates.
type PlayerOverview struct {
	Player      *model.PlayerIdentity         `json:"player"`
	Stats       *model.PlayerAggregateStats   `json:"stats"`
	TopOpenings []model.OpeningAggregateStats `json:"top_openings"`
}

// MatchPage is one page of a player's match history.
type MatchPage struct {
	Matches []model.MatchRecord `json:"matches"`
	Total   int64               `json:"total"`
	Limit   uint                `json:"limit"`
	Offset  uint                `json:"offset"`
}

// Reporter serves read-only views over stored data.
type Reporter struct {
	store repository.Store
}

// NewReporter creates a reporter.
func NewReporter(store repository.Store) *Reporter {
	return &Reporter{store: store}
}

// ListPlayers returns a page of players, rated ones first.
func (r *Reporter) ListPlayers(ctx context.Context, limit, offset uint) ([]model.PlayerIdentity, int64, error) {
	return r.store.ListPlayers(ctx, limit, offset)
}

// Overview returns a player, their stats and five most played openings.
func (r *Reporter) Overview(ctx context.Context, username string) (*PlayerOverview, error) {
	player, err := r.store.GetPlayer(ctx, username)
	if err != nil {
		return nil, err
	}
	stats, err := r.store.GetPlayerStats(ctx, player.ID)
	if err != nil {
		return nil, err
	}
	openings, err := r.store.ListOpeningStats(ctx, player.ID)
	if err != nil {
		return nil, err
	}
	if len(openings) > 5 {
		openings = openings[:5]
	}
	return &PlayerOverview{Player: player, Stats: stats, TopOpenings: openings}, nil
}

// Openings returns all opening aggregates of a player.
func (r *Reporter) Openings(ctx context.Context, username string) ([]model.OpeningAggregateStats, error) {
	player, err := r.store.GetPlayer(ctx, username)
	if err != nil {
		return nil, err
	}
	return r.store.ListOpeningStats(ctx, player.ID)
}

// Matches returns a page of a player's records, newest first.
func (r *Reporter) Matches(ctx context.Context, username string, limit, offset uint) (*MatchPage, error) {
	player, err := r.store.GetPlayer(ctx, username)
	if err != nil {
		return nil, err
	}
	total, err := r.store.CountMatches(ctx, player.ID)
	if err != nil {
		return nil, err
	}
	matches, err := r.store.ListMatches(ctx, player.ID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &MatchPage{Matches: matches, Total: total, Limit: limit, Offset: offset}, nil
}

// Recommendations returns a player's strongest and weakest openings.
func (r *Reporter) Recommendations(ctx context.Context, username string) (*model.Recommendations, error) {
	openings, err := r.Openings(ctx, username)
	if err != nil {
		return nil, err
	}
	rec := Recommend(openings)
	return &rec, nil
}

// Recommend picks up to three openings with a win rate of at least 60% and
// up to three below 40%, among openings with enough games.
func Recommend(openings []model.OpeningAggregateStats) model.Recommendations {
	var good, weak []model.OpeningAggregateStats
	for _, o := range openings {
		if o.GamesPlayed < MinGamesForRecommendation {
			continue
		}
		o.Derive()
		switch {
		case o.WinRate >= GoodWinRate:
			good = append(good, o)
		case o.WinRate < WeakWinRate:
			weak = append(weak, o)
		}
	}

	sort.SliceStable(good, func(i, j int) bool { return good[i].WinRate > good[j].WinRate })
	sort.SliceStable(weak, func(i, j int) bool { return weak[i].WinRate < weak[j].WinRate })
	if len(good) > MaxRecommendations {
		good = good[:MaxRecommendations]
	}
	if len(weak) > MaxRecommendations {
		weak = weak[:MaxRecommendations]
	}

	return model.Recommendations{
		GoodOpenings: nonNil(good),
		WeakOpenings: nonNil(weak),
	}
}

func nonNil(o []model.OpeningAggregateStats) []model.OpeningAggregateStats {
	if o == nil {
		return []model.OpeningAggregateStats{}
	}
	return o
}
