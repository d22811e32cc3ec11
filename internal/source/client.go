// Package source talks to the remote game archive API.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"dzchess-analyzer/internal/config"
	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/internal/metrics"
	"dzchess-analyzer/internal/model"
)

const (
	defaultBaseURL   = "https://api.chess.com/pub"
	maxBodyBytes     = 32 << 20
	maxRetryAfter    = 30 * time.Second
	breakerName      = "game-source"
	endpointProfile  = "profile"
	endpointStats    = "stats"
	endpointArchives = "archives"
	endpointArchive  = "archive"
)

// DefaultMinInterval is the delay between two requests when none is set.
const DefaultMinInterval = 200 * time.Millisecond

var errNotFound = errors.New("not found")

type httpError struct {
	status int
	url    string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.url, e.status)
}

// Config holds client settings.
type Config struct {
	HTTPClient      *http.Client
	BaseURL         string
	UserAgent       string
	RequestTimeout  time.Duration
	MinInterval     time.Duration
	MaxAttempts     uint
	RetryDelay      time.Duration
	Concurrency     int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Logger          *zerolog.Logger
}

// ConfigFrom maps the environment configuration onto a client Config.
func ConfigFrom(c config.SourceConfig) Config {
	return Config{
		BaseURL:         c.BaseURL,
		UserAgent:       c.UserAgent,
		RequestTimeout:  c.RequestTimeout,
		MinInterval:     c.MinInterval,
		MaxAttempts:     c.MaxAttempts,
		RetryDelay:      c.RetryDelay,
		Concurrency:     c.Concurrency,
		BreakerFailures: c.BreakerFailures,
		BreakerTimeout:  c.BreakerTimeout,
	}
}

// Client fetches profiles and monthly game archives. Every outbound request
// goes through one shared rate limiter, so concurrent callers still respect
// the minimum delay between requests.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	timeout     time.Duration
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[[]byte]
	attempts    uint
	retryDelay  time.Duration
	concurrency int
	log         zerolog.Logger
}

// New creates a client.
func New(cfg Config) *Client {
	log := logging.For("source")
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 20 * time.Second
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     baseURL,
		userAgent:   cfg.UserAgent,
		timeout:     cfg.RequestTimeout,
		limiter:     rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		breaker:     newBreaker(breakerName, cfg.BreakerFailures, cfg.BreakerTimeout, log),
		attempts:    cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		concurrency: cfg.Concurrency,
		log:         log,
	}
}

func (c *Client) playerURL(username string, parts ...string) string {
	u := c.baseURL + "/player/" + url.PathEscape(model.NormalizeUsername(username))
	if len(parts) > 0 {
		u += "/" + strings.Join(parts, "/")
	}
	return u
}

// FetchProfile returns the player's public profile. A missing player is
// model.ErrPlayerNotFound; every other failure is model.ErrSourceUnavailable.
func (c *Client) FetchProfile(ctx context.Context, username string) (*model.ProfileInfo, error) {
	if model.NormalizeUsername(username) == "" {
		return nil, errors.Wrap(model.ErrPlayerNotFound, "empty username")
	}

	var resp profileResponse
	if err := c.getJSON(ctx, endpointProfile, c.playerURL(username), &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, errors.Wrapf(model.ErrPlayerNotFound, "%s", username)
		}
		return nil, errors.Wrapf(model.ErrSourceUnavailable, "profile %s: %v", username, err)
	}

	p := &model.ProfileInfo{
		Username:    resp.Username,
		DisplayName: resp.Name,
		Country:     countryCode(resp.Country),
		AvatarURL:   resp.Avatar,
		ProfileURL:  resp.URL,
	}
	if p.Username == "" {
		p.Username = model.NormalizeUsername(username)
	}
	return p, nil
}

// FetchRatingSnapshot returns the player's last ratings, or false when they
// cannot be fetched.
func (c *Client) FetchRatingSnapshot(ctx context.Context, username string) (*model.RatingInfo, bool) {
	var resp statsResponse
	if err := c.getJSON(ctx, endpointStats, c.playerURL(username, "stats"), &resp); err != nil {
		c.log.Warn().Err(err).Str("player", username).Msg("rating snapshot unavailable")
		return nil, false
	}
	info := &model.RatingInfo{
		Rapid:  resp.Rapid.rating(),
		Blitz:  resp.Blitz.rating(),
		Bullet: resp.Bullet.rating(),
		Daily:  resp.Daily.rating(),
	}
	if info.Primary() == nil {
		return nil, false
	}
	return info, true
}

// Archives lists the player's monthly archives, oldest first.
func (c *Client) Archives(ctx context.Context, username string) ([]model.ArchiveHandle, error) {
	var resp archivesResponse
	if err := c.getJSON(ctx, endpointArchives, c.playerURL(username, "games", "archives"), &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, errors.Wrapf(model.ErrPlayerNotFound, "%s", username)
		}
		return nil, errors.Wrapf(model.ErrSourceUnavailable, "archives %s: %v", username, err)
	}

	handles := make([]model.ArchiveHandle, 0, len(resp.Archives))
	for _, u := range resp.Archives {
		handles = append(handles, model.ArchiveHandle{URL: u, Label: archiveLabel(u)})
	}
	return handles, nil
}

// ListArchives is Archives with failures logged and reported as no archives.
func (c *Client) ListArchives(ctx context.Context, username string) []model.ArchiveHandle {
	handles, err := c.Archives(ctx, username)
	if err != nil {
		c.log.Warn().Err(err).Str("player", username).Msg("listing archives failed")
		return nil
	}
	return handles
}

// FetchArchive returns the raw games of one archive in source order, or
// nothing when the archive cannot be fetched.
func (c *Client) FetchArchive(ctx context.Context, h model.ArchiveHandle) []model.RawMatch {
	matches, err := c.fetchArchive(ctx, h)
	if err != nil {
		c.log.Warn().Err(err).Str("archive", h.Label).Msg("archive fetch failed")
		return nil
	}
	return matches
}

func (c *Client) fetchArchive(ctx context.Context, h model.ArchiveHandle) ([]model.RawMatch, error) {
	var resp archiveResponse
	if err := c.getJSON(ctx, endpointArchive, h.URL, &resp); err != nil {
		return nil, errors.Wrapf(model.ErrSourceUnavailable, "archive %s: %v", h.Label, err)
	}

	matches := make([]model.RawMatch, 0, len(resp.Games))
	for _, g := range resp.Games {
		matches = append(matches, model.RawMatch{Notation: g.PGN, URL: g.URL, Archive: h.Label})
	}
	return matches, nil
}

// FetchArchives fetches several archives with bounded concurrency. Results
// are returned in handle order.
func (c *Client) FetchArchives(ctx context.Context, handles []model.ArchiveHandle) []ArchiveResult {
	results := make([]ArchiveResult, len(handles))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, h := range handles {
		g.Go(func() error {
			matches, err := c.fetchArchive(ctx, h)
			if err != nil {
				c.log.Warn().Err(err).Str("archive", h.Label).Msg("archive fetch failed")
			}
			results[i] = ArchiveResult{Handle: h, Matches: matches, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// FetchRecentMatches concatenates the games of the last monthsBack archives.
func (c *Client) FetchRecentMatches(ctx context.Context, username string, monthsBack int) []model.RawMatch {
	handles := LastN(c.ListArchives(ctx, username), monthsBack)

	var all []model.RawMatch
	for _, r := range c.FetchArchives(ctx, handles) {
		all = append(all, r.Matches...)
	}
	return all
}

// LastN returns the last n handles, or all of them when n <= 0 or there are fewer.
func LastN(handles []model.ArchiveHandle, n int) []model.ArchiveHandle {
	if n <= 0 || n >= len(handles) {
		return handles
	}
	return handles[len(handles)-n:]
}

func (c *Client) getJSON(ctx context.Context, endpoint, u string, out interface{}) error {
	body, err := c.get(ctx, endpoint, u)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		metrics.SourceRequests.WithLabelValues(endpoint, "decode_error").Inc()
		return errors.Wrapf(err, "decode %s", u)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint, u string) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		var out []byte
		err := retry.Do(
			func() error {
				b, err := c.do(ctx, endpoint, u)
				if err != nil {
					return err
				}
				out = b
				return nil
			},
			retry.Context(ctx),
			retry.Attempts(c.attempts),
			retry.Delay(c.retryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(retryable),
			retry.OnRetry(func(n uint, err error) {
				c.log.Debug().Err(err).Uint("attempt", n+1).Str("url", u).Msg("retrying request")
			}),
		)
		return out, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.SourceRequests.WithLabelValues(endpoint, "rejected").Inc()
	}
	return body, err
}

func (c *Client) do(ctx context.Context, endpoint, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.SourceRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.SourceRequests.WithLabelValues(endpoint, "not_found").Inc()
		return nil, errNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.SourceRequests.WithLabelValues(endpoint, "throttled").Inc()
		c.waitRetryAfter(ctx, resp.Header.Get("Retry-After"))
		return nil, &httpError{status: resp.StatusCode, url: u}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		metrics.SourceRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		return nil, &httpError{status: resp.StatusCode, url: u}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.SourceRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, errors.Wrapf(err, "read %s", u)
	}
	metrics.SourceRequests.WithLabelValues(endpoint, "ok").Inc()
	return body, nil
}

// waitRetryAfter honours a Retry-After header given in seconds.
func (c *Client) waitRetryAfter(ctx context.Context, header string) {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func retryable(err error) bool {
	if errors.Is(err, errNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var he *httpError
	if errors.As(err, &he) {
		return he.status == http.StatusTooManyRequests || he.status >= 500
	}
	return true
}

// countryCode takes the last path segment of a country URL such as
// https://api.chess.com/pub/country/DZ.
func countryCode(countryURL string) string {
	if countryURL == "" {
		return model.DefaultCountry
	}
	code := path.Base(strings.TrimRight(countryURL, "/"))
	if code == "" || code == "." || code == "/" {
		return model.DefaultCountry
	}
	return strings.ToUpper(code)
}

// archiveLabel turns .../games/2024/03 into 2024-03.
func archiveLabel(archiveURL string) string {
	parts := strings.Split(strings.TrimRight(archiveURL, "/"), "/")
	if len(parts) < 2 {
		return archiveURL
	}
	return parts[len(parts)-2] + "-" + parts[len(parts)-1]
}
