package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"    // goqu MySQL dialect
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // goqu PostgreSQL dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // goqu SQLite dialect
	"github.com/doug-martin/goqu/v9/exp"
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required

	"dzchess-analyzer/internal/config"
	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/internal/model"
)

// Dialect names understood by goqu.
const (
	DialectSQLite   = "sqlite3"
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
)

// SQLStore implements Store on SQLite, MySQL or PostgreSQL.
type SQLStore struct {
	db      *goqu.Database
	raw     *sql.DB
	dialect string
	now     func() time.Time
	log     zerolog.Logger
}

// dbtx is satisfied by both *goqu.Database and *goqu.TxDatabase.
type dbtx interface {
	From(from ...interface{}) *goqu.SelectDataset
	Insert(table interface{}) *goqu.InsertDataset
	Update(table interface{}) *goqu.UpdateDataset
	Delete(table interface{}) *goqu.DeleteDataset
}

// Open creates the store selected by cfg.Type.
func Open(cfg config.StoreConfig) (*SQLStore, error) {
	switch cfg.Type {
	case "mysql":
		return NewMySQLStore(cfg.MySQLDSN())
	case "postgres", "postgresql":
		return NewPostgresStore(cfg.PostgresDSN())
	default:
		return NewSQLiteStore(cfg.Path)
	}
}

// NewSQLiteStore opens (creating if needed) a SQLite database file.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite")
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return newSQLStore(db, DialectSQLite, sqliteSchema)
}

// NewMySQLStore connects to MySQL.
func NewMySQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open MySQL")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, DialectMySQL, mysqlSchema)
}

// NewPostgresStore connects to PostgreSQL.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open PostgreSQL")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, DialectPostgres, postgresSchema)
}

func newSQLStore(db *sql.DB, dialect string, schema []string) (*SQLStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s", dialect)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to create tables")
		}
	}

	s := &SQLStore{
		db:      goqu.New(dialect, db),
		raw:     db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logging.For("repository"),
	}
	s.log.Info().Str("dialect", dialect).Msg("store initialized")
	return s, nil
}

// Dialect returns the goqu dialect name of the store.
func (s *SQLStore) Dialect() string {
	return s.dialect
}

// Ping checks the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.raw.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.raw.Close()
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *goqu.TxDatabase) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(model.ErrPersistenceFailure, err.Error())
	}
	return tx.Wrap(func() error { return fn(tx) })
}

type playerRow struct {
	ID            int64         `db:"id"`
	Username      string        `db:"username"`
	DisplayName   string        `db:"display_name"`
	Country       string        `db:"country"`
	CurrentRating sql.NullInt64 `db:"current_rating"`
	AvatarURL     string        `db:"avatar_url"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

func (r *playerRow) model() model.PlayerIdentity {
	p := model.PlayerIdentity{
		ID:          r.ID,
		Username:    r.Username,
		DisplayName: r.DisplayName,
		Country:     r.Country,
		AvatarURL:   r.AvatarURL,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.CurrentRating.Valid {
		v := int(r.CurrentRating.Int64)
		p.CurrentRating = &v
	}
	return p
}

var playerColumns = []interface{}{
	goqu.I("players.id").As("id"),
	goqu.I("players.username").As("username"),
	goqu.I("players.display_name").As("display_name"),
	goqu.I("players.country").As("country"),
	goqu.I("players.current_rating").As("current_rating"),
	goqu.I("players.avatar_url").As("avatar_url"),
	goqu.I("players.created_at").As("created_at"),
	goqu.I("players.updated_at").As("updated_at"),
}

// UpsertPlayer creates or refreshes a player by username.
func (s *SQLStore) UpsertPlayer(ctx context.Context, p *model.PlayerIdentity) (*model.PlayerIdentity, error) {
	username := model.NormalizeUsername(p.Username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	country := p.Country
	if country == "" {
		country = model.DefaultCountry
	}
	now := s.now()

	var out *model.PlayerIdentity
	err := s.withTx(ctx, func(tx *goqu.TxDatabase) error {
		rec := goqu.Record{
			"username":     username,
			"display_name": p.DisplayName,
			"country":      country,
			"avatar_url":   p.AvatarURL,
			"created_at":   now,
			"updated_at":   now,
		}
		if p.CurrentRating != nil {
			rec["current_rating"] = *p.CurrentRating
		}
		if _, err := tx.Insert(tablePlayers).Rows(rec).OnConflict(goqu.DoNothing()).
			Prepared(true).Executor().ExecContext(ctx); err != nil {
			return err
		}

		set := goqu.Record{
			"display_name": p.DisplayName,
			"country":      country,
			"avatar_url":   p.AvatarURL,
			"updated_at":   now,
		}
		if p.CurrentRating != nil {
			set["current_rating"] = *p.CurrentRating
		}
		if _, err := tx.Update(tablePlayers).Set(set).Where(goqu.C("username").Eq(username)).
			Prepared(true).Executor().ExecContext(ctx); err != nil {
			return err
		}

		found, err := getPlayer(ctx, tx, username)
		out = found
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(model.ErrPersistenceFailure, "upsert player %s: %v", username, err)
	}
	return out, nil
}

func getPlayer(ctx context.Context, q dbtx, username string) (*model.PlayerIdentity, error) {
	var row playerRow
	found, err := q.From(tablePlayers).Select(playerColumns...).
		Where(goqu.I("players.username").Eq(model.NormalizeUsername(username))).
		Prepared(true).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(model.ErrPlayerNotFound, "%s", username)
	}
	p := row.model()
	return &p, nil
}

// GetPlayer returns a player by username.
func (s *SQLStore) GetPlayer(ctx context.Context, username string) (*model.PlayerIdentity, error) {
	return getPlayer(ctx, s.db, username)
}

// UpdateRating sets the player's current rating.
func (s *SQLStore) UpdateRating(ctx context.Context, playerID int64, rating int) error {
	_, err := s.db.Update(tablePlayers).
		Set(goqu.Record{"current_rating": rating, "updated_at": s.now()}).
		Where(goqu.C("id").Eq(playerID)).
		Prepared(true).Executor().ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(model.ErrPersistenceFailure, "update rating: %v", err)
	}
	return nil
}

// ListPlayers returns players with a rating first, highest rating first.
func (s *SQLStore) ListPlayers(ctx context.Context, limit, offset uint) ([]model.PlayerIdentity, int64, error) {
	total, err := s.db.From(tablePlayers).Prepared(true).CountContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	ds := s.db.From(tablePlayers).Select(playerColumns...).
		Order(
			goqu.L("CASE WHEN current_rating IS NULL THEN 1 ELSE 0 END").Asc(),
			goqu.C("current_rating").Desc(),
			goqu.C("username").Asc(),
		)
	if limit > 0 {
		ds = ds.Limit(limit).Offset(offset)
	}

	var rows []playerRow
	if err := ds.Prepared(true).ScanStructsContext(ctx, &rows); err != nil {
		return nil, 0, err
	}
	return playersFromRows(rows), total, nil
}

// ListStalePlayers returns players not analyzed since before.
func (s *SQLStore) ListStalePlayers(ctx context.Context, before time.Time, limit uint) ([]model.PlayerIdentity, error) {
	ds := s.db.From(tablePlayers).
		LeftJoin(goqu.T(tablePlayerStats), goqu.On(goqu.I("player_stats.player_id").Eq(goqu.I("players.id")))).
		Select(playerColumns...).
		Where(goqu.Or(
			goqu.I("player_stats.last_analysis").IsNull(),
			goqu.I("player_stats.last_analysis").Lt(before.UTC()),
		)).
		Order(goqu.I("players.id").Asc())
	if limit > 0 {
		ds = ds.Limit(limit)
	}

	var rows []playerRow
	if err := ds.Prepared(true).ScanStructsContext(ctx, &rows); err != nil {
		return nil, err
	}
	return playersFromRows(rows), nil
}

func playersFromRows(rows []playerRow) []model.PlayerIdentity {
	out := make([]model.PlayerIdentity, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out
}

type matchRow struct {
	ID             int64         `db:"id"`
	PlayerID       int64         `db:"player_id"`
	OpponentName   string        `db:"opponent_name"`
	OpponentRating sql.NullInt64 `db:"opponent_rating"`
	Result         string        `db:"result"`
	DatePlayed     string        `db:"date_played"`
	TimeControl    string        `db:"time_control"`
	PlayerColor    string        `db:"player_color"`
	OpeningName    string        `db:"opening_name"`
	OpeningCode    string        `db:"opening_eco"`
	MovesCount     int           `db:"moves_count"`
	Notation       string        `db:"pgn_content"`
	GameURL        string        `db:"game_url"`
	Termination    string        `db:"termination"`
	CreatedAt      time.Time     `db:"created_at"`
}

func (r *matchRow) model() model.MatchRecord {
	m := model.MatchRecord{
		ID:           r.ID,
		PlayerID:     r.PlayerID,
		OpponentName: r.OpponentName,
		Outcome:      model.Outcome(r.Result),
		TimeControl:  r.TimeControl,
		PlayerColor:  model.Color(r.PlayerColor),
		OpeningName:  r.OpeningName,
		OpeningCode:  r.OpeningCode,
		MovesCount:   r.MovesCount,
		Notation:     r.Notation,
		GameURL:      r.GameURL,
		Termination:  r.Termination,
		CreatedAt:    r.CreatedAt,
	}
	if d, err := time.Parse(model.DateLayout, r.DatePlayed); err == nil {
		m.DatePlayed = d
	}
	if r.OpponentRating.Valid {
		v := int(r.OpponentRating.Int64)
		m.OpponentRating = &v
	}
	return m
}

// InsertMatch stores rec unless a record with the same dedup key exists.
func (s *SQLStore) InsertMatch(ctx context.Context, rec *model.MatchRecord) (bool, error) {
	key := rec.Key()
	row := goqu.Record{
		"player_id":     key.PlayerID,
		"opponent_name": key.OpponentName,
		"result":        string(rec.Outcome),
		"date_played":   key.DatePlayed,
		"time_control":  key.TimeControl,
		"player_color":  string(rec.PlayerColor),
		"opening_name":  rec.OpeningName,
		"opening_eco":   rec.OpeningCode,
		"moves_count":   rec.MovesCount,
		"pgn_content":   rec.Notation,
		"game_url":      rec.GameURL,
		"termination":   rec.Termination,
		"created_at":    s.now(),
	}
	if rec.OpponentRating != nil {
		row["opponent_rating"] = *rec.OpponentRating
	}

	res, err := s.db.Insert(tableMatches).Rows(row).OnConflict(goqu.DoNothing()).
		Prepared(true).Executor().ExecContext(ctx)
	if err != nil {
		return false, errors.Wrapf(model.ErrPersistenceFailure, "insert match: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(model.ErrPersistenceFailure, "insert match: %v", err)
	}
	return n > 0, nil
}

// ListMatches returns a player's records, newest first.
func (s *SQLStore) ListMatches(ctx context.Context, playerID int64, limit, offset uint) ([]model.MatchRecord, error) {
	ds := s.db.From(tableMatches).
		Where(goqu.C("player_id").Eq(playerID)).
		Order(goqu.C("date_played").Desc(), goqu.C("id").Desc())
	if limit > 0 {
		ds = ds.Limit(limit).Offset(offset)
	}

	var rows []matchRow
	if err := ds.Prepared(true).ScanStructsContext(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]model.MatchRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

// CountMatches returns the number of records of a player.
func (s *SQLStore) CountMatches(ctx context.Context, playerID int64) (int64, error) {
	return s.db.From(tableMatches).Where(goqu.C("player_id").Eq(playerID)).Prepared(true).CountContext(ctx)
}

type playerStatsRow struct {
	PlayerID        int64        `db:"player_id"`
	TotalGames      int          `db:"total_games"`
	Wins            int          `db:"wins"`
	Losses          int          `db:"losses"`
	Draws           int          `db:"draws"`
	TotalMoves      int64        `db:"total_moves"`
	FavoriteOpening string       `db:"favorite_opening"`
	LastAnalysis    sql.NullTime `db:"last_analysis"`
}

func (r *playerStatsRow) model() model.PlayerAggregateStats {
	st := model.PlayerAggregateStats{
		PlayerID:        r.PlayerID,
		TotalGames:      r.TotalGames,
		Wins:            r.Wins,
		Losses:          r.Losses,
		Draws:           r.Draws,
		TotalMoves:      r.TotalMoves,
		FavoriteOpening: r.FavoriteOpening,
	}
	if r.LastAnalysis.Valid {
		t := r.LastAnalysis.Time
		st.LastAnalysis = &t
	}
	st.Derive()
	return st
}

type openingStatsRow struct {
	PlayerID    int64  `db:"player_id"`
	OpeningName string `db:"opening_name"`
	OpeningCode string `db:"opening_eco"`
	GamesPlayed int    `db:"games_played"`
	Wins        int    `db:"wins"`
	Losses      int    `db:"losses"`
	Draws       int    `db:"draws"`
	ColorPlayed string `db:"color_played"`
}

func (r *openingStatsRow) model() model.OpeningAggregateStats {
	o := model.OpeningAggregateStats{
		PlayerID:    r.PlayerID,
		OpeningName: r.OpeningName,
		OpeningCode: r.OpeningCode,
		GamesPlayed: r.GamesPlayed,
		Wins:        r.Wins,
		Losses:      r.Losses,
		Draws:       r.Draws,
		ColorPlayed: model.Color(r.ColorPlayed),
	}
	o.Derive()
	return o
}

func counts(kind model.ResultKind) (wins, losses, draws int) {
	switch kind {
	case model.ResultWin:
		return 1, 0, 0
	case model.ResultLoss:
		return 0, 1, 0
	default:
		return 0, 0, 1
	}
}

func openingWhere(playerID int64, name, code string) exp.Expression {
	return goqu.And(
		goqu.C("player_id").Eq(playerID),
		goqu.C("opening_name").Eq(name),
		goqu.C("opening_eco").Eq(code),
	)
}

// ApplyOutcome increments both aggregate rows of one game inside a transaction.
func (s *SQLStore) ApplyOutcome(ctx context.Context, d model.OutcomeDelta) (*model.AggregateUpdate, error) {
	w, l, dr := counts(d.Result)
	var out model.AggregateUpdate

	err := s.withTx(ctx, func(tx *goqu.TxDatabase) error {
		if _, err := tx.Insert(tablePlayerStats).
			Rows(goqu.Record{"player_id": d.PlayerID}).
			OnConflict(goqu.DoNothing()).
			Prepared(true).Executor().ExecContext(ctx); err != nil {
			return err
		}
		if _, err := tx.Update(tablePlayerStats).Set(goqu.Record{
			"total_games": goqu.L("total_games + 1"),
			"wins":        goqu.L("wins + ?", w),
			"losses":      goqu.L("losses + ?", l),
			"draws":       goqu.L("draws + ?", dr),
			"total_moves": goqu.L("total_moves + ?", d.Moves),
		}).Where(goqu.C("player_id").Eq(d.PlayerID)).
			Prepared(true).Executor().ExecContext(ctx); err != nil {
			return err
		}

		res, err := tx.Insert(tableOpeningStats).Rows(goqu.Record{
			"player_id":    d.PlayerID,
			"opening_name": d.OpeningName,
			"opening_eco":  d.OpeningCode,
			"color_played": string(d.Color),
		}).OnConflict(goqu.DoNothing()).Prepared(true).Executor().ExecContext(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			out.OpeningCreated = true
		}

		if _, err := tx.Update(tableOpeningStats).Set(goqu.Record{
			"games_played": goqu.L("games_played + 1"),
			"wins":         goqu.L("wins + ?", w),
			"losses":       goqu.L("losses + ?", l),
			"draws":        goqu.L("draws + ?", dr),
			"color_played": goqu.L("CASE WHEN color_played = ? THEN color_played ELSE ? END", string(d.Color), string(model.ColorBoth)),
		}).Where(openingWhere(d.PlayerID, d.OpeningName, d.OpeningCode)).
			Prepared(true).Executor().ExecContext(ctx); err != nil {
			return err
		}

		if err := refreshFavorite(ctx, tx, d.PlayerID); err != nil {
			return err
		}

		ps, err := getPlayerStats(ctx, tx, d.PlayerID)
		if err != nil {
			return err
		}
		var orow openingStatsRow
		if _, err := tx.From(tableOpeningStats).
			Where(openingWhere(d.PlayerID, d.OpeningName, d.OpeningCode)).
			Prepared(true).ScanStructContext(ctx, &orow); err != nil {
			return err
		}
		out.Player = *ps
		out.Opening = orow.model()

		if err := out.Player.Check(); err != nil {
			return err
		}
		return out.Opening.Check()
	})
	if err != nil {
		if errors.Is(err, model.ErrInvariantViolation) {
			return nil, err
		}
		return nil, errors.Wrapf(model.ErrPersistenceFailure, "apply outcome: %v", err)
	}
	return &out, nil
}

func refreshFavorite(ctx context.Context, tx dbtx, playerID int64) error {
	var favorite string
	found, err := tx.From(tableOpeningStats).Select("opening_name").
		Where(goqu.C("player_id").Eq(playerID)).
		Order(goqu.C("games_played").Desc(), goqu.C("wins").Desc(), goqu.C("opening_name").Asc()).
		Limit(1).
		Prepared(true).ScanValContext(ctx, &favorite)
	if err != nil || !found {
		return err
	}
	_, err = tx.Update(tablePlayerStats).Set(goqu.Record{"favorite_opening": favorite}).
		Where(goqu.C("player_id").Eq(playerID)).
		Prepared(true).Executor().ExecContext(ctx)
	return err
}

func getPlayerStats(ctx context.Context, q dbtx, playerID int64) (*model.PlayerAggregateStats, error) {
	var row playerStatsRow
	found, err := q.From(tablePlayerStats).Where(goqu.C("player_id").Eq(playerID)).
		Prepared(true).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, err
	}
	if !found {
		return &model.PlayerAggregateStats{PlayerID: playerID}, nil
	}
	st := row.model()
	return &st, nil
}

// GetPlayerStats returns the player's aggregate, zeroed when absent.
func (s *SQLStore) GetPlayerStats(ctx context.Context, playerID int64) (*model.PlayerAggregateStats, error) {
	return getPlayerStats(ctx, s.db, playerID)
}

// ListOpeningStats returns a player's openings, most played first.
func (s *SQLStore) ListOpeningStats(ctx context.Context, playerID int64) ([]model.OpeningAggregateStats, error) {
	var rows []openingStatsRow
	err := s.db.From(tableOpeningStats).
		Where(goqu.C("player_id").Eq(playerID)).
		Order(goqu.C("games_played").Desc(), goqu.C("wins").Desc(), goqu.C("opening_name").Asc()).
		Prepared(true).ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]model.OpeningAggregateStats, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

// ReplaceAggregates overwrites a player's aggregate rows in one transaction.
func (s *SQLStore) ReplaceAggregates(ctx context.Context, st model.PlayerAggregateStats, openings []model.OpeningAggregateStats) error {
	if err := st.Check(); err != nil {
		return err
	}
	for i := range openings {
		if err := openings[i].Check(); err != nil {
			return err
		}
	}

	err := s.withTx(ctx, func(tx *goqu.TxDatabase) error {
		if _, err := tx.Delete(tableOpeningStats).Where(goqu.C("player_id").Eq(st.PlayerID)).
			Prepared(true).Executor().ExecContext(ctx); err != nil {
			return err
		}
		if _, err := tx.Delete(tablePlayerStats).Where(goqu.C("player_id").Eq(st.PlayerID)).
			Prepared(true).Executor().ExecContext(ctx); err != nil {
			return err
		}

		rec := goqu.Record{
			"player_id":        st.PlayerID,
			"total_games":      st.TotalGames,
			"wins":             st.Wins,
			"losses":           st.Losses,
			"draws":            st.Draws,
			"total_moves":      st.TotalMoves,
			"favorite_opening": st.FavoriteOpening,
		}
		if st.LastAnalysis != nil {
			rec["last_analysis"] = st.LastAnalysis.UTC()
		}
		if _, err := tx.Insert(tablePlayerStats).Rows(rec).Prepared(true).Executor().ExecContext(ctx); err != nil {
			return err
		}

		if len(openings) == 0 {
			return nil
		}
		rows := make([]interface{}, 0, len(openings))
		for _, o := range openings {
			rows = append(rows, goqu.Record{
				"player_id":    st.PlayerID,
				"opening_name": o.OpeningName,
				"opening_eco":  o.OpeningCode,
				"games_played": o.GamesPlayed,
				"wins":         o.Wins,
				"losses":       o.Losses,
				"draws":        o.Draws,
				"color_played": string(o.ColorPlayed),
			})
		}
		_, err := tx.Insert(tableOpeningStats).Rows(rows...).Prepared(true).Executor().ExecContext(ctx)
		return err
	})
	if err != nil {
		return errors.Wrapf(model.ErrPersistenceFailure, "replace aggregates: %v", err)
	}
	return nil
}

// MarkAnalyzed stamps last_analysis, creating the stats row if needed.
func (s *SQLStore) MarkAnalyzed(ctx context.Context, playerID int64, at time.Time) error {
	err := s.withTx(ctx, func(tx *goqu.TxDatabase) error {
		if _, err := tx.Insert(tablePlayerStats).Rows(goqu.Record{"player_id": playerID}).
			OnConflict(goqu.DoNothing()).Prepared(true).Executor().ExecContext(ctx); err != nil {
			return err
		}
		_, err := tx.Update(tablePlayerStats).Set(goqu.Record{"last_analysis": at.UTC()}).
			Where(goqu.C("player_id").Eq(playerID)).
			Prepared(true).Executor().ExecContext(ctx)
		return err
	})
	if err != nil {
		return errors.Wrapf(model.ErrPersistenceFailure, "mark analyzed: %v", err)
	}
	return nil
}

// GetStats returns row counts for the admin view.
func (s *SQLStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"dialect": s.dialect}
	for _, table := range []string{tablePlayers, tableMatches, tableOpeningStats} {
		n, err := s.db.From(table).Prepared(true).CountContext(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "count %s", table)
		}
		stats[table] = n
	}
	return stats, nil
}
