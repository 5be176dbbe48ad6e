// Package server provides the HTTP server and routing for lpsentinel.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/aristath/lpsentinel/internal/cache"
	"github.com/aristath/lpsentinel/internal/database"
	"github.com/aristath/lpsentinel/internal/modules/monitoring"
	"github.com/aristath/lpsentinel/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// DBInfo describes one database file
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	Reachable bool    `json:"reachable"`
}

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	StartedAt     string            `json:"started_at"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Monitoring    monitoring.Status `json:"monitoring"`
	ScheduledJobs int               `json:"scheduled_jobs"`
	ActiveAlerts  int               `json:"active_alerts"`
	Caches        []cache.Stats     `json:"caches"`
	Databases     []DBInfo          `json:"databases"`
}

// SystemHandlers handles system-wide status and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	databases   []*database.DB
	caches      *cache.Registry
	monitor     *monitoring.Monitor
	sched       *scheduler.Scheduler
	jobs        map[string]scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	databases []*database.DB,
	caches *cache.Registry,
	monitor *monitoring.Monitor,
	sched *scheduler.Scheduler,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		startupTime: time.Now(),
		databases:   databases,
		caches:      caches,
		monitor:     monitor,
		sched:       sched,
		jobs:        make(map[string]scheduler.Job),
	}
}

// SetJobs registers jobs for manual triggering, keyed by their names
func (h *SystemHandlers) SetJobs(jobs ...scheduler.Job) {
	for _, job := range jobs {
		if job != nil {
			h.jobs[job.Name()] = job
		}
	}
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	response := SystemStatusResponse{
		StartedAt:     h.startupTime.Format(time.RFC3339),
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
		Caches:        h.caches.Stats(),
		Databases:     h.databaseInfo(r.Context()),
	}
	if h.monitor != nil {
		response.Monitoring = h.monitor.Status()
		response.ActiveAlerts = h.monitor.Alerts().ActiveCount()
	}
	if h.sched != nil {
		response.ScheduledJobs = h.sched.Entries()
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": response,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleDatabaseStats handles GET /api/system/databases
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	infos := h.databaseInfo(r.Context())
	total := 0.0
	for _, info := range infos {
		total += info.SizeMB
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"databases":     infos,
			"total_size_mb": total,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *SystemHandlers) databaseInfo(ctx context.Context) []DBInfo {
	infos := make([]DBInfo, 0, len(h.databases))
	for _, db := range h.databases {
		if db == nil {
			continue
		}
		info := DBInfo{Name: db.Name(), Path: db.Path()}
		if stat, err := os.Stat(db.Path()); err == nil {
			info.SizeMB = float64(stat.Size()) / 1024 / 1024
		}
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		info.Reachable = db.QuickCheck(checkCtx) == nil
		cancel()
		infos = append(infos, info)
	}
	return infos
}

// HandleCacheStats handles GET /api/cache/stats
func (h *SystemHandlers) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": h.caches.Stats(),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleCacheClear handles POST /api/cache/clear?name=
// Without a name every cache is cleared.
func (h *SystemHandlers) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	cleared := h.caches.Clear(name)
	if name != "" && cleared == 0 {
		h.writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": map[string]interface{}{
				"message": "unknown cache: " + name,
			},
		})
		return
	}

	h.log.Info().Str("cache", name).Int("cleared", cleared).Msg("Caches cleared")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"cleared": cleared,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleTriggerJob handles POST /api/jobs/{name}
// The job runs synchronously and its error is reported to the caller.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": map[string]interface{}{
				"message": "unknown job: " + name,
			},
		})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job run triggered")

	if err := h.sched.RunNow(job); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": map[string]interface{}{
				"message": err.Error(),
			},
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]string{
			"status":  "success",
			"message": name + " completed",
		},
	})
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
