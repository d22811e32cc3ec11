package model

import (
	"time"

	"github.com/pkg/errors"
)

// PlayerAggregateStats is the running summary for one player.
type PlayerAggregateStats struct {
	PlayerID          int64      `json:"player_id"`
	TotalGames        int        `json:"total_games"`
	Wins              int        `json:"wins"`
	Losses            int        `json:"losses"`
	Draws             int        `json:"draws"`
	TotalMoves        int64      `json:"-"`
	FavoriteOpening   string     `json:"favorite_opening,omitempty"`
	LastAnalysis      *time.Time `json:"last_analysis,omitempty"`
	AverageGameLength float64    `json:"average_game_length"`
	WinPercentage     float64    `json:"win_percentage"`
}

// Derive fills the fields computed from the stored counters.
func (s *PlayerAggregateStats) Derive() {
	s.AverageGameLength = 0
	s.WinPercentage = 0
	if s.TotalGames > 0 {
		s.AverageGameLength = float64(s.TotalMoves) / float64(s.TotalGames)
		s.WinPercentage = float64(s.Wins) / float64(s.TotalGames) * 100
	}
}

// Check verifies wins + losses + draws == total games.
func (s *PlayerAggregateStats) Check() error {
	if s.Wins+s.Losses+s.Draws != s.TotalGames || s.Wins < 0 || s.Losses < 0 || s.Draws < 0 {
		return errors.Wrapf(ErrInvariantViolation, "player %d has %d+%d+%d != %d",
			s.PlayerID, s.Wins, s.Losses, s.Draws, s.TotalGames)
	}
	return nil
}

// Add counts one game.
func (s *PlayerAggregateStats) Add(kind ResultKind, moves int) {
	s.TotalGames++
	s.TotalMoves += int64(moves)
	switch kind {
	case ResultWin:
		s.Wins++
	case ResultLoss:
		s.Losses++
	default:
		s.Draws++
	}
}

// OpeningAggregateStats is the running summary for one opening of a player.
type OpeningAggregateStats struct {
	PlayerID    int64   `json:"player_id"`
	OpeningName string  `json:"opening_name"`
	OpeningCode string  `json:"opening_eco"`
	GamesPlayed int     `json:"games_played"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Draws       int     `json:"draws"`
	ColorPlayed Color   `json:"color_played"`
	WinRate     float64 `json:"win_rate"`
}

// Derive fills the win rate.
func (o *OpeningAggregateStats) Derive() {
	o.WinRate = 0
	if o.GamesPlayed > 0 {
		o.WinRate = float64(o.Wins) / float64(o.GamesPlayed) * 100
	}
}

// Check verifies wins + losses + draws == games played.
func (o *OpeningAggregateStats) Check() error {
	if o.Wins+o.Losses+o.Draws != o.GamesPlayed || o.Wins < 0 || o.Losses < 0 || o.Draws < 0 {
		return errors.Wrapf(ErrInvariantViolation, "opening %q/%s of player %d has %d+%d+%d != %d",
			o.OpeningName, o.OpeningCode, o.PlayerID,
			o.Wins, o.Losses, o.Draws, o.GamesPlayed)
	}
	return nil
}

// Add counts one game played with the given color.
func (o *OpeningAggregateStats) Add(kind ResultKind, color Color) {
	if o.GamesPlayed == 0 {
		o.ColorPlayed = color
	} else if o.ColorPlayed != color {
		o.ColorPlayed = ColorBoth
	}
	o.GamesPlayed++
	switch kind {
	case ResultWin:
		o.Wins++
	case ResultLoss:
		o.Losses++
	default:
		o.Draws++
	}
}

// OutcomeDelta is one game to fold into a player's aggregates.
type OutcomeDelta struct {
	PlayerID    int64
	Result      ResultKind
	Color       Color
	OpeningName string
	OpeningCode string
	Moves       int
}

// AggregateUpdate is the state of both aggregate rows after an outcome was applied.
type AggregateUpdate struct {
	Player         PlayerAggregateStats
	Opening        OpeningAggregateStats
	OpeningCreated bool
}

// Recommendations splits a player's openings into strong and weak ones.
type Recommendations struct {
	GoodOpenings []OpeningAggregateStats `json:"good_openings"`
	WeakOpenings []OpeningAggregateStats `json:"weak_openings"`
}
