// Package parser turns raw game notation into match records for one player.
package parser

import (
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"dzchess-analyzer/internal/model"
	"dzchess-analyzer/internal/pgn"
)

// Status is the kind of a parse result.
type Status int

const (
	StatusRecord Status = iota
	StatusNotApplicable
	StatusMalformed
)

func (s Status) String() string {
	switch s {
	case StatusRecord:
		return "record"
	case StatusNotApplicable:
		return "not_applicable"
	default:
		return "malformed"
	}
}

// Result is exactly one of a record draft, not-applicable or malformed.
// Record is set only for StatusRecord; Err explains a malformed input.
type Result struct {
	Status Status
	Record *model.MatchRecord
	Err    error
}

// Parser parses notation relative to a target player. Dates that cannot be
// read fall back to the parser's clock.
type Parser struct {
	now func() time.Time
}

// New creates a parser using the wall clock.
func New() *Parser {
	return &Parser{now: time.Now}
}

// NewWithClock creates a parser with a fixed processing date source.
func NewWithClock(now func() time.Time) *Parser {
	return &Parser{now: now}
}

// Parse never panics; a panic inside the notation reader is reported as malformed.
func (p *Parser) Parse(raw model.RawMatch, target string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Status: StatusMalformed, Err: errors.Wrapf(model.ErrMalformedRecord, "panic: %v", r)}
		}
	}()

	game, err := pgn.Parse(raw.Notation)
	if err != nil {
		return Result{Status: StatusMalformed, Err: errors.Wrap(model.ErrMalformedRecord, err.Error())}
	}

	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return Result{Status: StatusNotApplicable}
	}

	white, black := game.Tag("White"), game.Tag("Black")
	var color model.Color
	var opponent, opponentElo string
	switch {
	case strings.Contains(strings.ToLower(white), target):
		color, opponent, opponentElo = model.ColorWhite, black, game.Tag("BlackElo")
	case strings.Contains(strings.ToLower(black), target):
		color, opponent, opponentElo = model.ColorBlack, white, game.Tag("WhiteElo")
	default:
		return Result{Status: StatusNotApplicable}
	}
	if strings.TrimSpace(opponent) == "" {
		opponent = model.UnknownOpponent
	}

	rec := &model.MatchRecord{
		OpponentName:   opponent,
		OpponentRating: parseRating(opponentElo),
		Outcome:        model.ParseOutcome(game.Tag("Result")),
		DatePlayed:     p.date(game.Tag("Date")),
		TimeControl:    game.Tag("TimeControl"),
		PlayerColor:    color,
		OpeningName:    openingName(game),
		OpeningCode:    openingCode(game),
		MovesCount:     game.HalfMoves(),
		Notation:       raw.Notation,
		GameURL:        firstNonEmpty(game.Tag("Link"), raw.URL),
		Termination:    game.Tag("Termination"),
	}
	return Result{Status: StatusRecord, Record: rec}
}

func (p *Parser) date(s string) time.Time {
	if d, err := time.Parse("2006.01.02", strings.TrimSpace(s)); err == nil {
		return d
	}
	now := p.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func parseRating(s string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

func openingCode(g *pgn.Game) string {
	if eco := strings.TrimSpace(g.Tag("ECO")); eco != "" && eco != "?" {
		return eco
	}
	return model.UnknownOpeningCode
}

// openingName prefers the Opening tag, then the last segment of ECOUrl
// (https://www.chess.com/openings/Italian-Game-Giuoco-Piano).
func openingName(g *pgn.Game) string {
	if name := strings.TrimSpace(g.Tag("Opening")); name != "" && name != "?" {
		return name
	}
	if u := strings.TrimSpace(g.Tag("ECOUrl")); u != "" {
		if parsed, err := url.Parse(u); err == nil {
			seg := path.Base(strings.TrimRight(parsed.Path, "/"))
			if unescaped, err := url.PathUnescape(seg); err == nil {
				seg = unescaped
			}
			if seg != "" && seg != "." && seg != "/" {
				return strings.ReplaceAll(seg, "-", " ")
			}
		}
	}
	return model.UnknownOpeningName
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
