package main

import (
	"time"

	"github.com/rs/zerolog"

	"dzchess-analyzer/internal/model"
)

// logProgress reports pipeline progress as log lines.
type logProgress struct {
	log  zerolog.Logger
	last time.Time
}

func (p *logProgress) Advance(phase model.Phase) error {
	p.log.Info().Str("phase", string(phase)).Msg("phase")
	return nil
}

func (p *logProgress) Items(done, total int) {
	if done != total && time.Since(p.last) < time.Second {
		return
	}
	p.last = time.Now()
	p.log.Info().Int("done", done).Int("total", total).Msg("progress")
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
