package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"dzchess-analyzer/internal/model"
	"dzchess-analyzer/internal/parser"
	"dzchess-analyzer/internal/repository"
	"dzchess-analyzer/internal/source"
)

var testNow = time.Date(2024, 6, 9, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *repository.SQLStore {
	t.Helper()
	s, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newProcessor(store repository.Store) (*Processor, *Maintainer) {
	m := NewMaintainer(store)
	p := NewProcessor(parser.NewWithClock(func() time.Time { return testNow }), store, m, 0)
	return p, m
}

func game(white, black, result, date, tc, eco, opening string) model.RawMatch {
	notation := fmt.Sprintf(`[Event "Live Chess"]
[Date "%s"]
[White "%s"]
[Black "%s"]
[Result "%s"]
[TimeControl "%s"]
[ECO "%s"]
[Opening "%s"]

1. e4 e5 2. Nf3 Nc6 %s`, date, white, black, result, tc, eco, opening, result)
	return model.RawMatch{Notation: notation, URL: "https://example.test/" + white + "-" + black}
}

// scenarioBatch has nour winning as white, losing as black and absent once.
func scenarioBatch() []model.RawMatch {
	return []model.RawMatch{
		game("nour", "karim", "1-0", "2024.03.01", "600", "C50", "Italian Game"),
		game("amine", "Nour", "1-0", "2024.03.02", "180", "B20", "Sicilian Defense"),
		game("amine", "karim", "0-1", "2024.03.03", "600", "C00", "French Defense"),
	}
}

// recordingProgress keeps every phase and can cancel at a given phase.
type recordingProgress struct {
	mu       sync.Mutex
	phases   []model.Phase
	cancelAt model.Phase
}

func (p *recordingProgress) Advance(phase model.Phase) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelAt != "" && phase == p.cancelAt {
		return model.ErrCancelled
	}
	p.phases = append(p.phases, phase)
	return nil
}

func (p *recordingProgress) Items(int, int) {}

// fakeSource serves canned profiles and archives.
type fakeSource struct {
	profiles map[string]*model.ProfileInfo
	ratings  map[string]*model.RatingInfo
	archives map[string][]model.ArchiveHandle
	games    map[string][]model.RawMatch
	failing  map[string]bool
	listErr  error
}

func (f *fakeSource) FetchProfile(_ context.Context, username string) (*model.ProfileInfo, error) {
	p, ok := f.profiles[username]
	if !ok {
		return nil, errors.Wrapf(model.ErrPlayerNotFound, "%s", username)
	}
	return p, nil
}

func (f *fakeSource) FetchRatingSnapshot(_ context.Context, username string) (*model.RatingInfo, bool) {
	r, ok := f.ratings[username]
	return r, ok
}

func (f *fakeSource) Archives(_ context.Context, username string) ([]model.ArchiveHandle, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.archives[username], nil
}

func (f *fakeSource) FetchArchives(_ context.Context, handles []model.ArchiveHandle) []source.ArchiveResult {
	out := make([]source.ArchiveResult, len(handles))
	for i, h := range handles {
		out[i] = source.ArchiveResult{Handle: h}
		if f.failing[h.Label] {
			out[i].Err = errors.Wrapf(model.ErrSourceUnavailable, "archive %s: timeout", h.Label)
			continue
		}
		out[i].Matches = f.games[h.Label]
	}
	return out
}

func handle(label string) model.ArchiveHandle {
	return model.ArchiveHandle{URL: "https://example.test/archive/" + label, Label: label}
}
