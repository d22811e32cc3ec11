package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/internal/model"
	"dzchess-analyzer/internal/service"
	"dzchess-analyzer/pkg/apierror"
	"dzchess-analyzer/pkg/response"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PlayerReader serves the stored views of players.
type PlayerReader interface {
	ListPlayers(ctx context.Context, limit, offset uint) ([]model.PlayerIdentity, int64, error)
	Overview(ctx context.Context, username string) (*service.PlayerOverview, error)
	Openings(ctx context.Context, username string) ([]model.OpeningAggregateStats, error)
	Matches(ctx context.Context, username string, limit, offset uint) (*service.MatchPage, error)
	Recommendations(ctx context.Context, username string) (*model.Recommendations, error)
}

// PlayerHandler handles player report requests.
type PlayerHandler struct {
	reader PlayerReader
}

// NewPlayerHandler creates a new player handler.
func NewPlayerHandler(reader PlayerReader) *PlayerHandler {
	return &PlayerHandler{reader: reader}
}

// List handles GET /api/v1/players
func (h *PlayerHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	players, total, err := h.reader.ListPlayers(r.Context(), limit, offset)
	if err != nil {
		fail(w, r, err)
		return
	}
	if players == nil {
		players = []model.PlayerIdentity{}
	}
	response.JSONWithMeta(w, http.StatusOK, players, limit, offset, total)
}

// Get handles GET /api/v1/players/{username}
func (h *PlayerHandler) Get(w http.ResponseWriter, r *http.Request) {
	overview, err := h.reader.Overview(r.Context(), username(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, overview)
}

// Openings handles GET /api/v1/players/{username}/openings
func (h *PlayerHandler) Openings(w http.ResponseWriter, r *http.Request) {
	openings, err := h.reader.Openings(r.Context(), username(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	if openings == nil {
		openings = []model.OpeningAggregateStats{}
	}
	response.OK(w, openings)
}

// Matches handles GET /api/v1/players/{username}/matches
func (h *PlayerHandler) Matches(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	p, err := h.reader.Matches(r.Context(), username(r), limit, offset)
	if err != nil {
		fail(w, r, err)
		return
	}
	matches := p.Matches
	if matches == nil {
		matches = []model.MatchRecord{}
	}
	response.JSONWithMeta(w, http.StatusOK, matches, p.Limit, p.Offset, p.Total)
}

// Recommendations handles GET /api/v1/players/{username}/recommendations
func (h *PlayerHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	rec, err := h.reader.Recommendations(r.Context(), username(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, rec)
}

func username(r *http.Request) string {
	return model.NormalizeUsername(chi.URLParam(r, "username"))
}

// page reads limit and offset from the query string.
func page(w http.ResponseWriter, r *http.Request) (limit, offset uint, ok bool) {
	limit = defaultPageSize
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			response.Error(w, apierror.BadRequest("limit must be a positive integer"))
			return 0, 0, false
		}
		limit = uint(n)
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			response.Error(w, apierror.BadRequest("offset must be a non-negative integer"))
			return 0, 0, false
		}
		offset = uint(n)
	}
	return limit, offset, true
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierror.FromError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		logErr(r, err, "request failed")
	}
	response.Error(w, apiErr)
}

func logErr(r *http.Request, err error, msg string) {
	logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg(msg)
}
