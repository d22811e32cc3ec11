package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dzchess-analyzer/internal/model"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(v int) *int { return &v }

func seedPlayer(t *testing.T, s *SQLStore, username string, rating *int) *model.PlayerIdentity {
	t.Helper()
	p, err := s.UpsertPlayer(context.Background(), &model.PlayerIdentity{Username: username, CurrentRating: rating})
	require.NoError(t, err)
	return p
}

func TestUpsertPlayer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := seedPlayer(t, s, " Nour_DZ ", nil)
	assert.Equal(t, "nour_dz", p.Username)
	assert.Equal(t, model.DefaultCountry, p.Country)
	assert.Nil(t, p.CurrentRating)
	assert.NotZero(t, p.ID)

	again, err := s.UpsertPlayer(ctx, &model.PlayerIdentity{Username: "nour_dz", DisplayName: "Nour", CurrentRating: intPtr(1650)})
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, "Nour", again.DisplayName)
	require.NotNil(t, again.CurrentRating)
	assert.Equal(t, 1650, *again.CurrentRating)

	require.NoError(t, s.UpdateRating(ctx, p.ID, 1700))
	got, err := s.GetPlayer(ctx, "NOUR_DZ")
	require.NoError(t, err)
	assert.Equal(t, 1700, *got.CurrentRating)

	_, err = s.GetPlayer(ctx, "ghost")
	assert.ErrorIs(t, err, model.ErrPlayerNotFound)
}

func TestListPlayers_RatedFirst(t *testing.T) {
	s := newTestStore(t)
	seedPlayer(t, s, "unrated", nil)
	seedPlayer(t, s, "low", intPtr(1200))
	seedPlayer(t, s, "high", intPtr(2100))

	players, total, err := s.ListPlayers(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, players, 3)
	assert.Equal(t, "high", players[0].Username)
	assert.Equal(t, "low", players[1].Username)
	assert.Equal(t, "unrated", players[2].Username)

	page, _, err := s.ListPlayers(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "low", page[0].Username)
}

func newMatch(playerID int64, opponent, date, tc string) *model.MatchRecord {
	d, _ := time.Parse(model.DateLayout, date)
	return &model.MatchRecord{
		PlayerID:     playerID,
		OpponentName: opponent,
		Outcome:      model.OutcomeWhiteWin,
		DatePlayed:   d,
		TimeControl:  tc,
		PlayerColor:  model.ColorWhite,
		OpeningName:  "Italian Game",
		OpeningCode:  "C50",
		MovesCount:   40,
		Notation:     "1. e4 e5 1-0",
	}
}

func TestInsertMatch_Dedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPlayer(t, s, "nour", nil)

	inserted, err := s.InsertMatch(ctx, newMatch(p.ID, "karim", "2024-03-15", "600"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertMatch(ctx, newMatch(p.ID, "karim", "2024-03-15", "600"))
	require.NoError(t, err)
	assert.False(t, inserted)

	// a different time control is a different game
	inserted, err = s.InsertMatch(ctx, newMatch(p.ID, "karim", "2024-03-15", "180"))
	require.NoError(t, err)
	assert.True(t, inserted)

	older := newMatch(p.ID, "amine", "2024-01-02", "600")
	older.OpponentRating = intPtr(1500)
	_, err = s.InsertMatch(ctx, older)
	require.NoError(t, err)

	n, err := s.CountMatches(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	matches, err := s.ListMatches(ctx, p.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "2024-03-15", matches[0].DatePlayed.Format(model.DateLayout))
	last := matches[2]
	assert.Equal(t, "amine", last.OpponentName)
	require.NotNil(t, last.OpponentRating)
	assert.Equal(t, 1500, *last.OpponentRating)
}

func TestApplyOutcome(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPlayer(t, s, "nour", nil)

	up, err := s.ApplyOutcome(ctx, model.OutcomeDelta{
		PlayerID: p.ID, Result: model.ResultWin, Color: model.ColorWhite,
		OpeningName: "Italian Game", OpeningCode: "C50", Moves: 40,
	})
	require.NoError(t, err)
	assert.True(t, up.OpeningCreated)
	assert.Equal(t, 1, up.Player.TotalGames)
	assert.Equal(t, 1, up.Player.Wins)
	assert.Equal(t, "Italian Game", up.Player.FavoriteOpening)
	assert.Equal(t, model.ColorWhite, up.Opening.ColorPlayed)

	up, err = s.ApplyOutcome(ctx, model.OutcomeDelta{
		PlayerID: p.ID, Result: model.ResultDraw, Color: model.ColorBlack,
		OpeningName: "Italian Game", OpeningCode: "C50", Moves: 20,
	})
	require.NoError(t, err)
	assert.False(t, up.OpeningCreated)
	assert.Equal(t, 2, up.Opening.GamesPlayed)
	assert.Equal(t, model.ColorBoth, up.Opening.ColorPlayed)
	assert.InDelta(t, 30.0, up.Player.AverageGameLength, 0.001)
	assert.InDelta(t, 50.0, up.Player.WinPercentage, 0.001)

	for i := 0; i < 3; i++ {
		_, err = s.ApplyOutcome(ctx, model.OutcomeDelta{
			PlayerID: p.ID, Result: model.ResultLoss, Color: model.ColorBlack,
			OpeningName: "Sicilian Defense", OpeningCode: "B20", Moves: 30,
		})
		require.NoError(t, err)
	}

	st, err := s.GetPlayerStats(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, st.TotalGames)
	assert.Equal(t, 1, st.Wins)
	assert.Equal(t, 3, st.Losses)
	assert.Equal(t, 1, st.Draws)
	assert.Equal(t, "Sicilian Defense", st.FavoriteOpening)
	require.NoError(t, st.Check())

	openings, err := s.ListOpeningStats(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, openings, 2)
	assert.Equal(t, "Sicilian Defense", openings[0].OpeningName)
	assert.Equal(t, model.ColorBlack, openings[0].ColorPlayed)
}

func TestApplyOutcome_RollsBackOnViolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPlayer(t, s, "nour", nil)

	_, err := s.ApplyOutcome(ctx, model.OutcomeDelta{
		PlayerID: p.ID, Result: model.ResultWin, Color: model.ColorWhite,
		OpeningName: "Italian Game", OpeningCode: "C50", Moves: 40,
	})
	require.NoError(t, err)

	_, err = s.raw.ExecContext(ctx, "UPDATE player_stats SET wins = wins + 5 WHERE player_id = ?", p.ID)
	require.NoError(t, err)

	_, err = s.ApplyOutcome(ctx, model.OutcomeDelta{
		PlayerID: p.ID, Result: model.ResultWin, Color: model.ColorWhite,
		OpeningName: "Italian Game", OpeningCode: "C50", Moves: 40,
	})
	assert.ErrorIs(t, err, model.ErrInvariantViolation)

	st, err := s.GetPlayerStats(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalGames)

	openings, err := s.ListOpeningStats(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, openings, 1)
	assert.Equal(t, 1, openings[0].GamesPlayed)
}

func TestReplaceAggregates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPlayer(t, s, "nour", nil)

	_, err := s.ApplyOutcome(ctx, model.OutcomeDelta{
		PlayerID: p.ID, Result: model.ResultWin, Color: model.ColorWhite,
		OpeningName: "Old", OpeningCode: "A00", Moves: 10,
	})
	require.NoError(t, err)

	analyzed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st := model.PlayerAggregateStats{
		PlayerID: p.ID, TotalGames: 2, Wins: 1, Losses: 1, TotalMoves: 50,
		FavoriteOpening: "French Defense", LastAnalysis: &analyzed,
	}
	openings := []model.OpeningAggregateStats{{
		OpeningName: "French Defense", OpeningCode: "C00", GamesPlayed: 2, Wins: 1, Losses: 1,
		ColorPlayed: model.ColorBlack,
	}}
	require.NoError(t, s.ReplaceAggregates(ctx, st, openings))

	got, err := s.GetPlayerStats(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalGames)
	assert.Equal(t, "French Defense", got.FavoriteOpening)
	assert.InDelta(t, 25.0, got.AverageGameLength, 0.001)
	require.NotNil(t, got.LastAnalysis)

	list, err := s.ListOpeningStats(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "C00", list[0].OpeningCode)

	bad := st
	bad.Wins = 5
	assert.ErrorIs(t, s.ReplaceAggregates(ctx, bad, nil), model.ErrInvariantViolation)
}

func TestListStalePlayers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	never := seedPlayer(t, s, "never", nil)
	old := seedPlayer(t, s, "old", nil)
	fresh := seedPlayer(t, s, "fresh", nil)

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkAnalyzed(ctx, old.ID, now.Add(-60*24*time.Hour)))
	require.NoError(t, s.MarkAnalyzed(ctx, fresh.ID, now.Add(-time.Hour)))

	stale, err := s.ListStalePlayers(ctx, now.Add(-30*24*time.Hour), 0)
	require.NoError(t, err)
	names := make([]string, 0, len(stale))
	for _, p := range stale {
		names = append(names, p.Username)
	}
	assert.ElementsMatch(t, []string{never.Username, old.Username}, names)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats["players"])
}
