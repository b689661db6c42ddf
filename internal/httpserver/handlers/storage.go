package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
	redisstore "github.com/MrSnakeDoc/clusterview/internal/store/redis"
)

type subsystemsResponse struct {
	Group  string                `json:"group"`
	Rows   []domain.SubsystemRow `json:"rows"`
	Cached bool                  `json:"cached"`
	Stale  bool                  `json:"stale,omitempty"`
	Error  string                `json:"error,omitempty"`
}

type filesystemsResponse struct {
	Rows      []domain.FilesystemRow `json:"rows"`
	UpdatedAt time.Time              `json:"updated_at,omitzero"`
	Stale     bool                   `json:"stale,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Subsystems lists the subsystems of a gateway group. Listings are cached in
// Redis for a short while; the last indexed rows are served if the cluster
// API fails.
func Subsystems(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Subsystems == nil {
			writeError(w, http.StatusNotFound, "subsystems are not available with this source")
			return
		}
		group := chi.URLParam(r, "group")
		key := redisstore.CacheKey("subsystems", group)

		if d.Store != nil {
			var rows []domain.SubsystemRow
			hit, err := d.Store.GetCachedListing(r.Context(), key, &rows)
			if err != nil {
				d.Logger.Debug("subsystem cache lookup failed", logger.Error(err))
			}
			if hit {
				writeJSON(w, http.StatusOK, subsystemsResponse{Group: group, Rows: rows, Cached: true})
				return
			}
		}

		ctx, cancel := withFetchTimeout(r.Context(), d)
		defer cancel()
		rows, err := d.Subsystems.Rows(ctx, group)
		if err != nil {
			if prev, ok := d.MemoryIndex.Subsystems(group); ok {
				writeJSON(w, http.StatusOK, subsystemsResponse{Group: group, Rows: prev, Stale: true, Error: err.Error()})
				return
			}
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		d.MemoryIndex.UpdateSubsystems(group, rows)
		if d.Store != nil {
			if err := d.Store.CacheListing(r.Context(), key, rows, redisstore.DefaultCacheTTL); err != nil {
				d.Logger.Debug("failed to cache subsystems", logger.Error(err))
			}
		}
		writeJSON(w, http.StatusOK, subsystemsResponse{Group: group, Rows: rows})
	}
}

// Filesystems serves the indexed filesystem rows, or fetches them when the
// index is empty or ?refresh=true is given.
func Filesystems(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Filesystems == nil {
			writeError(w, http.StatusNotFound, "filesystems are not available with this source")
			return
		}
		refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
		last := d.MemoryIndex.GetLastFilesystemReload()

		if !refresh && !last.IsZero() {
			writeJSON(w, http.StatusOK, filesystemsResponse{Rows: d.MemoryIndex.Filesystems(), UpdatedAt: last})
			return
		}

		ctx, cancel := withFetchTimeout(r.Context(), d)
		defer cancel()
		rows, err := d.Filesystems.Rows(ctx)
		if err != nil {
			if !last.IsZero() {
				writeJSON(w, http.StatusOK, filesystemsResponse{
					Rows:      d.MemoryIndex.Filesystems(),
					UpdatedAt: last,
					Stale:     true,
					Error:     err.Error(),
				})
				return
			}
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		d.MemoryIndex.UpdateFilesystems(rows)
		writeJSON(w, http.StatusOK, filesystemsResponse{Rows: rows, UpdatedAt: d.MemoryIndex.GetLastFilesystemReload()})
	}
}

func withFetchTimeout(ctx context.Context, d deps.Deps) (context.Context, context.CancelFunc) {
	if d.FetchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.FetchTimeout)
}
