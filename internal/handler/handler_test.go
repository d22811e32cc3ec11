package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dzchess-analyzer/internal/jobs"
	"dzchess-analyzer/internal/model"
	"dzchess-analyzer/internal/service"
)

const jobUUID = "0b6f4a52-7c1e-4f0e-9d3a-2f1f6c8a9b10"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Limit  uint  `json:"limit"`
		Offset uint  `json:"offset"`
		Total  int64 `json:"total"`
	} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type fakeJobs struct {
	submitted []model.JobRequest
	submitErr error
	job       *model.Job
	err       error
}

func (f *fakeJobs) Submit(_ context.Context, req model.JobRequest) (*model.Job, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return model.NewJob(jobUUID, req, time.Now()), nil
}

func (f *fakeJobs) Status(_ context.Context, id string) (*model.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

func (f *fakeJobs) Cancel(ctx context.Context, id string) (*model.Job, error) {
	return f.Status(ctx, id)
}

func jobRoutes(h *JobHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/jobs", h.Submit)
	r.Get("/jobs/{id}", h.Get)
	r.Delete("/jobs/{id}", h.Cancel)
	return r
}

func TestJobHandler_Submit(t *testing.T) {
	fj := &fakeJobs{}
	routes := jobRoutes(NewJobHandler(fj))

	rec := serve(routes, http.MethodPost, "/jobs", `{"username":"Nour","months_back":6}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/v1/jobs/"+jobUUID, rec.Header().Get("Location"))

	env := decode(t, rec)
	assert.True(t, env.Success)
	var job model.Job
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, jobUUID, job.ID)
	assert.Equal(t, "nour", job.Username)
	assert.Equal(t, model.JobPending, job.State)

	require.Len(t, fj.submitted, 1)
	assert.Equal(t, 6, fj.submitted[0].MonthsBack)
}

func TestJobHandler_SubmitRejectsBadInput(t *testing.T) {
	fj := &fakeJobs{}
	routes := jobRoutes(NewJobHandler(fj))

	rec := serve(routes, http.MethodPost, "/jobs", `{"username":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(routes, http.MethodPost, "/jobs", `{"username":"n","months_back":-2}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Len(t, env.Error.Details, 2)

	assert.Empty(t, fj.submitted)
}

func TestJobHandler_SubmitErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{errors.Wrap(model.ErrPlayerBusy, "nour"), http.StatusConflict},
		{model.ErrQueueFull, http.StatusServiceUnavailable},
		{jobs.ErrStopped, http.StatusServiceUnavailable},
		{errors.New("redis down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		routes := jobRoutes(NewJobHandler(&fakeJobs{submitErr: tc.err}))
		rec := serve(routes, http.MethodPost, "/jobs", `{"username":"nour"}`)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}

func TestJobHandler_GetAndCancel(t *testing.T) {
	job := model.NewJob(jobUUID, model.JobRequest{Username: "nour"}, time.Now())
	fj := &fakeJobs{job: job}
	routes := jobRoutes(NewJobHandler(fj))

	rec := serve(routes, http.MethodGet, "/jobs/"+jobUUID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(routes, http.MethodDelete, "/jobs/"+jobUUID, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = serve(routes, http.MethodGet, "/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	fj.err = errors.Wrap(model.ErrJobTerminal, jobUUID)
	rec = serve(routes, http.MethodDelete, "/jobs/"+jobUUID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	fj.err = model.ErrJobNotFound
	rec = serve(routes, http.MethodGet, "/jobs/"+jobUUID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeReader struct {
	players  []model.PlayerIdentity
	openings []model.OpeningAggregateStats
	lastUser string
	limit    uint
	offset   uint
}

func (f *fakeReader) ListPlayers(_ context.Context, limit, offset uint) ([]model.PlayerIdentity, int64, error) {
	f.limit, f.offset = limit, offset
	return f.players, int64(len(f.players)), nil
}

func (f *fakeReader) Overview(_ context.Context, username string) (*service.PlayerOverview, error) {
	f.lastUser = username
	if username != "nour" {
		return nil, errors.Wrap(model.ErrPlayerNotFound, username)
	}
	return &service.PlayerOverview{Player: &f.players[0], Stats: &model.PlayerAggregateStats{}}, nil
}

func (f *fakeReader) Openings(_ context.Context, username string) ([]model.OpeningAggregateStats, error) {
	f.lastUser = username
	return f.openings, nil
}

func (f *fakeReader) Matches(_ context.Context, username string, limit, offset uint) (*service.MatchPage, error) {
	f.lastUser = username
	return &service.MatchPage{Total: 42, Limit: limit, Offset: offset}, nil
}

func (f *fakeReader) Recommendations(_ context.Context, username string) (*model.Recommendations, error) {
	rec := service.Recommend(f.openings)
	return &rec, nil
}

func playerRoutes(h *PlayerHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/players", h.List)
	r.Get("/players/{username}", h.Get)
	r.Get("/players/{username}/openings", h.Openings)
	r.Get("/players/{username}/matches", h.Matches)
	r.Get("/players/{username}/recommendations", h.Recommendations)
	return r
}

func TestPlayerHandler(t *testing.T) {
	fr := &fakeReader{players: []model.PlayerIdentity{{ID: 1, Username: "nour"}}}
	routes := playerRoutes(NewPlayerHandler(fr))

	rec := serve(routes, http.MethodGet, "/players?limit=500&offset=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Meta)
	assert.Equal(t, uint(maxPageSize), env.Meta.Limit)
	assert.Equal(t, uint(3), env.Meta.Offset)
	assert.Equal(t, uint(maxPageSize), fr.limit)

	rec = serve(routes, http.MethodGet, "/players?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(routes, http.MethodGet, "/players/NOUR", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nour", fr.lastUser)

	rec = serve(routes, http.MethodGet, "/players/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(routes, http.MethodGet, "/players/nour/openings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", string(decode(t, rec).Data))

	rec = serve(routes, http.MethodGet, "/players/nour/matches", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env = decode(t, rec)
	assert.Equal(t, int64(42), env.Meta.Total)
	assert.Equal(t, uint(defaultPageSize), env.Meta.Limit)
	assert.JSONEq(t, "[]", string(env.Data))

	rec = serve(routes, http.MethodGet, "/players/nour/recommendations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"good_openings":[],"weak_openings":[]}`, string(decode(t, rec).Data))
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	h := New("dzchess-analyzer", "1.2.3", Dependency{Name: "store", Pinger: pinger{}})

	rec := serve(http.HandlerFunc(h.Health), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"1.2.3"`)

	rec = serve(http.HandlerFunc(h.Ready), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := New("dzchess-analyzer", "1.2.3",
		Dependency{Name: "store", Pinger: pinger{}},
		Dependency{Name: "jobs", Pinger: pinger{err: errors.New("connection refused")}})

	rec = serve(http.HandlerFunc(down.Ready), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	rec = serve(http.HandlerFunc(down.Status), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

type fakeStats struct{ err error }

func (f fakeStats) GetStats(context.Context) (map[string]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[string]interface{}{"players": 2}, nil
}

type fakeSweeper struct{ calls int }

func (f *fakeSweeper) RunNow(context.Context) (*service.SweepResult, error) {
	f.calls++
	return &service.SweepResult{Stale: 3, Submitted: 1}, nil
}

func TestAdminHandler(t *testing.T) {
	sw := &fakeSweeper{}
	h := NewAdminHandler(fakeStats{}, sw, "sqlite")

	rec := serve(http.HandlerFunc(h.GetStats), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store_type":"sqlite"`)
	assert.Contains(t, rec.Body.String(), `"status":"connected"`)

	rec = serve(http.HandlerFunc(h.Sweep), http.MethodPost, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stale":3,"submitted":1}`, string(decode(t, rec).Data))
	assert.Equal(t, 1, sw.calls)

	broken := NewAdminHandler(fakeStats{err: errors.New("disk full")}, nil, "sqlite")
	rec = serve(http.HandlerFunc(broken.GetStats), http.MethodGet, "/", "")
	assert.Contains(t, rec.Body.String(), "disk full")

	rec = serve(http.HandlerFunc(broken.Sweep), http.MethodPost, "/", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
