package model

import "time"

// Outcome is the game result code as written in the notation.
type Outcome string

const (
	OutcomeWhiteWin Outcome = "1-0"
	OutcomeBlackWin Outcome = "0-1"
	OutcomeDraw     Outcome = "1/2-1/2"
)

// ParseOutcome maps a notation result to an Outcome. Anything other than the
// three decisive/drawn codes, including "*" and the empty string, is a draw.
func ParseOutcome(s string) Outcome {
	switch Outcome(s) {
	case OutcomeWhiteWin, OutcomeBlackWin:
		return Outcome(s)
	default:
		return OutcomeDraw
	}
}

// Color is the side the tracked player had.
type Color string

const (
	ColorWhite Color = "white"
	ColorBlack Color = "black"
	// ColorBoth marks an opening played with both colors.
	ColorBoth Color = "both"
)

// ResultKind is an outcome seen from the tracked player's side.
type ResultKind string

const (
	ResultWin  ResultKind = "win"
	ResultLoss ResultKind = "loss"
	ResultDraw ResultKind = "draw"
)

// Resolve classifies an outcome for a player of the given color.
func Resolve(outcome Outcome, color Color) ResultKind {
	switch {
	case outcome == OutcomeWhiteWin && color == ColorWhite,
		outcome == OutcomeBlackWin && color == ColorBlack:
		return ResultWin
	case outcome == OutcomeDraw:
		return ResultDraw
	default:
		return ResultLoss
	}
}

// Defaults used when a notation omits a header.
const (
	UnknownOpponent    = "Unknown"
	UnknownOpeningName = "Unknown"
	UnknownOpeningCode = "???"
)

// DateLayout is how a played date is stored and compared.
const DateLayout = "2006-01-02"

// MatchRecord is one persisted game from the tracked player's perspective.
type MatchRecord struct {
	ID             int64     `json:"id"`
	PlayerID       int64     `json:"player_id"`
	OpponentName   string    `json:"opponent_name"`
	OpponentRating *int      `json:"opponent_rating,omitempty"`
	Outcome        Outcome   `json:"result"`
	DatePlayed     time.Time `json:"date_played"`
	TimeControl    string    `json:"time_control"`
	PlayerColor    Color     `json:"player_color"`
	OpeningName    string    `json:"opening_name"`
	OpeningCode    string    `json:"opening_eco"`
	MovesCount     int       `json:"moves_count"`
	Notation       string    `json:"pgn,omitempty"`
	GameURL        string    `json:"game_url,omitempty"`
	Termination    string    `json:"termination,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DedupKey identifies a match for deduplication.
type DedupKey struct {
	PlayerID     int64
	OpponentName string
	DatePlayed   string
	TimeControl  string
}

// Key returns the record's deduplication key.
func (m *MatchRecord) Key() DedupKey {
	return DedupKey{
		PlayerID:     m.PlayerID,
		OpponentName: m.OpponentName,
		DatePlayed:   m.DatePlayed.Format(DateLayout),
		TimeControl:  m.TimeControl,
	}
}

// Result is the record's outcome from the player's side.
func (m *MatchRecord) Result() ResultKind {
	return Resolve(m.Outcome, m.PlayerColor)
}

// ArchiveHandle names one monthly archive at the source.
type ArchiveHandle struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// RawMatch is one unparsed game as fetched from an archive.
type RawMatch struct {
	Notation string
	URL      string
	Archive  string
}
