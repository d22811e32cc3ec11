package source

import "dzchess-analyzer/internal/model"

type profileResponse struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Country  string `json:"country"`
	Avatar   string `json:"avatar"`
	URL      string `json:"url"`
}

type ratingClass struct {
	Last *struct {
		Rating int `json:"rating"`
	} `json:"last"`
}

func (r *ratingClass) rating() *int {
	if r == nil || r.Last == nil {
		return nil
	}
	v := r.Last.Rating
	return &v
}

type statsResponse struct {
	Rapid  *ratingClass `json:"chess_rapid"`
	Blitz  *ratingClass `json:"chess_blitz"`
	Bullet *ratingClass `json:"chess_bullet"`
	Daily  *ratingClass `json:"chess_daily"`
}

type archivesResponse struct {
	Archives []string `json:"archives"`
}

type archiveGame struct {
	URL         string `json:"url"`
	PGN         string `json:"pgn"`
	TimeControl string `json:"time_control"`
	EndTime     int64  `json:"end_time"`
	Rules       string `json:"rules"`
}

type archiveResponse struct {
	Games []archiveGame `json:"games"`
}

// ArchiveResult is the outcome of fetching one archive.
type ArchiveResult struct {
	Handle  model.ArchiveHandle
	Matches []model.RawMatch
	Err     error
}
