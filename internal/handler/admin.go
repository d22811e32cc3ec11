package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"dzchess-analyzer/internal/service"
	"dzchess-analyzer/pkg/apierror"
	"dzchess-analyzer/pkg/response"
)

// StatsProvider reports row counts of the store.
type StatsProvider interface {
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// Sweeper runs a stale-player sweep on demand.
type Sweeper interface {
	RunNow(ctx context.Context) (*service.SweepResult, error)
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	store     StatsProvider
	sweeper   Sweeper
	storeType string
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. sweeper may be nil.
func NewAdminHandler(store StatsProvider, sweeper Sweeper, storeType string) *AdminHandler {
	return &AdminHandler{
		store:     store,
		sweeper:   sweeper,
		storeType: storeType,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().UTC().Format(time.RFC3339)
	stats["store_type"] = h.storeType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	storeStats, err := h.store.GetStats(r.Context())
	if err != nil {
		stats["store"] = map[string]interface{}{"status": "error", "error": err.Error()}
	} else {
		storeStats["status"] = "connected"
		stats["store"] = storeStats
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// Sweep handles POST /api/v1/admin/sweep
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		response.Error(w, apierror.ServiceUnavailable("sweep is disabled"))
		return
	}
	res, err := h.sweeper.RunNow(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, res)
}
