package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/internal/model"
)

func gamesJSON(n int, month string) string {
	games := make([]string, 0, n)
	for i := 0; i < n; i++ {
		pgn := fmt.Sprintf(`[White \"nour\"][Black \"opp%d\"][Result \"1-0\"]\n1. e4 e5 1-0`, i)
		games = append(games, fmt.Sprintf(`{"url":"https://www.chess.com/game/live/%s%d","pgn":"%s","time_control":"600"}`, month, i, pgn))
	}
	return `{"games":[` + strings.Join(games, ",") + `]}`
}

type fakeSource struct {
	*httptest.Server
	hits  map[string]*int32
	slow  map[string]bool
	fail5 int32
}

func newFakeSource(t *testing.T) *fakeSource {
	f := &fakeSource{hits: map[string]*int32{}, slow: map[string]bool{}}
	for _, p := range []string{"profile", "stats", "archives", "2024/01", "2024/02", "2024/03", "flaky"} {
		var n int32
		f.hits[p] = &n
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/player/nour", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(f.hits["profile"], 1)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"username":"nour","name":"Nour B","country":"https://api.chess.com/pub/country/DZ","avatar":"https://img/a.png"}`)
	})
	mux.HandleFunc("/player/nour/stats", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(f.hits["stats"], 1)
		fmt.Fprint(w, `{"chess_blitz":{"last":{"rating":1610,"date":1}},"chess_daily":{"last":{"rating":1400}}}`)
	})
	mux.HandleFunc("/player/nour/games/archives", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(f.hits["archives"], 1)
		base := "http://" + r.Host + "/player/nour/games/"
		fmt.Fprintf(w, `{"archives":["%s2024/01","%s2024/02","%s2024/03"]}`, base, base, base)
	})
	for _, m := range []string{"2024/01", "2024/02", "2024/03"} {
		m := m
		mux.HandleFunc("/player/nour/games/"+m, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(f.hits[m], 1)
			if f.slow[m] {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				return
			}
			n := map[string]int{"2024/01": 1, "2024/02": 5, "2024/03": 2}[m]
			fmt.Fprint(w, gamesJSON(n, m))
		})
	}
	mux.HandleFunc("/player/flaky", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(f.hits["flaky"], 1) <= f.fail5 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"username":"flaky"}`)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func newTestClient(f *fakeSource, mutate func(*Config)) *Client {
	nop := logging.Nop()
	cfg := Config{
		BaseURL:         f.URL,
		UserAgent:       "test-agent",
		RequestTimeout:  time.Second,
		MinInterval:     time.Millisecond,
		MaxAttempts:     1,
		RetryDelay:      time.Millisecond,
		BreakerFailures: 100,
		Logger:          &nop,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func TestFetchProfile(t *testing.T) {
	f := newFakeSource(t)
	c := newTestClient(f, nil)

	p, err := c.FetchProfile(context.Background(), "Nour")
	require.NoError(t, err)
	assert.Equal(t, "nour", p.Username)
	assert.Equal(t, "Nour B", p.DisplayName)
	assert.Equal(t, "DZ", p.Country)
}

func TestFetchProfile_NotFoundIsNotRetried(t *testing.T) {
	f := newFakeSource(t)
	var hits int32
	f.Config.Handler.(*http.ServeMux).HandleFunc("/player/ghost", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	})
	c := newTestClient(f, func(cfg *Config) { cfg.MaxAttempts = 3 })

	_, err := c.FetchProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrPlayerNotFound)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestFetchProfile_RetriesServerErrors(t *testing.T) {
	f := newFakeSource(t)
	f.fail5 = 2
	c := newTestClient(f, func(cfg *Config) { cfg.MaxAttempts = 3 })

	p, err := c.FetchProfile(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, "flaky", p.Username)
	assert.EqualValues(t, 3, atomic.LoadInt32(f.hits["flaky"]))
}

func TestFetchProfile_ExhaustedRetriesIsSourceUnavailable(t *testing.T) {
	f := newFakeSource(t)
	f.fail5 = 10
	c := newTestClient(f, func(cfg *Config) { cfg.MaxAttempts = 2 })

	_, err := c.FetchProfile(context.Background(), "flaky")
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)
	assert.EqualValues(t, 2, atomic.LoadInt32(f.hits["flaky"]))
}

func TestFetchRatingSnapshot(t *testing.T) {
	f := newFakeSource(t)
	c := newTestClient(f, nil)

	r, ok := c.FetchRatingSnapshot(context.Background(), "nour")
	require.True(t, ok)
	assert.Nil(t, r.Rapid)
	assert.Equal(t, 1610, *r.Primary())

	_, ok = c.FetchRatingSnapshot(context.Background(), "ghost")
	assert.False(t, ok)
}

func TestListArchives(t *testing.T) {
	f := newFakeSource(t)
	c := newTestClient(f, nil)

	handles := c.ListArchives(context.Background(), "nour")
	require.Len(t, handles, 3)
	assert.Equal(t, "2024-01", handles[0].Label)
	assert.Equal(t, "2024-03", handles[2].Label)

	assert.Empty(t, c.ListArchives(context.Background(), "ghost"))
}

func TestFetchRecentMatches_LastMonthsInOrder(t *testing.T) {
	f := newFakeSource(t)
	c := newTestClient(f, func(cfg *Config) { cfg.Concurrency = 2 })

	matches := c.FetchRecentMatches(context.Background(), "nour", 2)
	require.Len(t, matches, 7)
	for i := 0; i < 5; i++ {
		assert.Equal(t, "2024-02", matches[i].Archive)
		assert.Contains(t, matches[i].Notation, fmt.Sprintf("opp%d", i))
	}
	assert.Equal(t, "2024-03", matches[5].Archive)
	assert.EqualValues(t, 0, atomic.LoadInt32(f.hits["2024/01"]))
}

func TestFetchRecentMatches_TimedOutArchiveIsEmpty(t *testing.T) {
	f := newFakeSource(t)
	f.slow["2024/03"] = true
	c := newTestClient(f, func(cfg *Config) { cfg.RequestTimeout = 100 * time.Millisecond })

	matches := c.FetchRecentMatches(context.Background(), "nour", 2)
	assert.Len(t, matches, 5)

	results := c.FetchArchives(context.Background(), c.ListArchives(context.Background(), "nour"))
	require.Len(t, results, 3)
	assert.NoError(t, results[1].Err)
	assert.ErrorIs(t, results[2].Err, model.ErrSourceUnavailable)
	assert.Empty(t, results[2].Matches)
}

func TestRateLimiterSpacesRequests(t *testing.T) {
	f := newFakeSource(t)
	c := newTestClient(f, func(cfg *Config) { cfg.MinInterval = 60 * time.Millisecond })

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.FetchProfile(context.Background(), "nour")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
}

func TestNew_DefaultsMinInterval(t *testing.T) {
	f := newFakeSource(t)
	nop := logging.Nop()
	c := New(Config{BaseURL: f.URL, Logger: &nop})

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := c.FetchProfile(context.Background(), "nour")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 3*DefaultMinInterval)
}

func TestLastN(t *testing.T) {
	hs := []model.ArchiveHandle{{Label: "a"}, {Label: "b"}, {Label: "c"}}
	assert.Len(t, LastN(hs, 0), 3)
	assert.Len(t, LastN(hs, 5), 3)
	assert.Equal(t, []model.ArchiveHandle{{Label: "b"}, {Label: "c"}}, LastN(hs, 2))
}

func TestCountryCode(t *testing.T) {
	assert.Equal(t, "DZ", countryCode("https://api.chess.com/pub/country/DZ"))
	assert.Equal(t, "FR", countryCode("https://api.chess.com/pub/country/fr/"))
	assert.Equal(t, model.DefaultCountry, countryCode(""))
}
