package repository

import (
	"context"
	"time"

	"dzchess-analyzer/internal/model"
)

// PlayerRepository defines player identity access.
type PlayerRepository interface {
	// UpsertPlayer creates the player on first reference and refreshes
	// profile fields afterwards. The stored row is returned.
	UpsertPlayer(ctx context.Context, p *model.PlayerIdentity) (*model.PlayerIdentity, error)

	// UpdateRating sets the player's current rating.
	UpdateRating(ctx context.Context, playerID int64, rating int) error

	// GetPlayer returns model.ErrPlayerNotFound when the username is unknown.
	GetPlayer(ctx context.Context, username string) (*model.PlayerIdentity, error)

	// ListPlayers returns players by rating, highest first, plus the total count.
	ListPlayers(ctx context.Context, limit, offset uint) ([]model.PlayerIdentity, int64, error)

	// ListStalePlayers returns players whose last analysis is before the given
	// time or who were never analyzed.
	ListStalePlayers(ctx context.Context, before time.Time, limit uint) ([]model.PlayerIdentity, error)
}

// MatchRepository defines match record access. Records are insert-only.
type MatchRepository interface {
	// InsertMatch stores rec unless its dedup key already exists. It reports
	// whether a row was written.
	InsertMatch(ctx context.Context, rec *model.MatchRecord) (bool, error)

	// ListMatches returns a player's records, newest first. limit 0 means all.
	ListMatches(ctx context.Context, playerID int64, limit, offset uint) ([]model.MatchRecord, error)

	// CountMatches returns the number of records of a player.
	CountMatches(ctx context.Context, playerID int64) (int64, error)
}

// StatsRepository defines aggregate access.
type StatsRepository interface {
	// ApplyOutcome folds one game into both aggregate rows in a single
	// transaction using server-side increments, creating the rows if absent.
	// It fails with model.ErrInvariantViolation, rolling back, when the
	// counters no longer add up.
	ApplyOutcome(ctx context.Context, d model.OutcomeDelta) (*model.AggregateUpdate, error)

	// ReplaceAggregates overwrites all aggregate rows of a player.
	ReplaceAggregates(ctx context.Context, stats model.PlayerAggregateStats, openings []model.OpeningAggregateStats) error

	// GetPlayerStats returns zeroed stats when the player has none yet.
	GetPlayerStats(ctx context.Context, playerID int64) (*model.PlayerAggregateStats, error)

	// ListOpeningStats returns a player's openings, most played first.
	ListOpeningStats(ctx context.Context, playerID int64) ([]model.OpeningAggregateStats, error)

	// MarkAnalyzed stamps the player's last analysis time.
	MarkAnalyzed(ctx context.Context, playerID int64, at time.Time) error
}

// Store is the full persistent store.
type Store interface {
	PlayerRepository
	MatchRepository
	StatsRepository

	// GetStats returns row counts for the admin view.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Ping checks the connection.
	Ping(ctx context.Context) error

	// Close closes the repository connection.
	Close() error
}

var _ Store = (*SQLStore)(nil)
