package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/clusterview/internal/httpserver/deps"
)

type componentStatus struct {
	OK          bool   `json:"ok"`
	RowsLoaded  *int   `json:"rows_loaded,omitempty"`
	LastReload  string `json:"last_reload,omitempty"`
	Source      string `json:"source,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Impact      string `json:"impact,omitempty"`
	Error       string `json:"error,omitempty"`
	Executing   *int   `json:"executing,omitempty"`
	CapacityFor string `json:"capacity_type,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodes := d.MemoryIndex.NodeCount()
		lastReload := formatReload(d.MemoryIndex.GetLastReload())

		components := map[string]componentStatus{
			"cluster": {
				OK:         lastReload != "never",
				RowsLoaded: &nodes,
				LastReload: lastReload,
				Source:     d.SourceName,
			},
			"capacity": checkCapacity(d),
			"redis":    checkRedis(r.Context(), d),
		}
		if d.APIURL != "" {
			components["cluster_api"] = checkEndpoint(r.Context(), d.APIURL)
		}
		if d.PrometheusURL != "" {
			components["prometheus"] = checkEndpoint(r.Context(), d.PrometheusURL)
		}
		if d.Tasks != nil {
			n := len(d.Tasks.Executing())
			components["tasks"] = componentStatus{OK: true, Executing: &n}
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

func formatReload(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05")
}

func determineMode(components map[string]componentStatus) string {
	if c, ok := components["cluster"]; ok && !c.OK {
		return "critical" // no gateway node view yet
	}
	if c, ok := components["cluster_api"]; ok && !c.OK {
		return "critical"
	}
	for _, name := range []string{"redis", "capacity", "prometheus"} {
		if c, ok := components[name]; ok && !c.OK {
			return "degraded"
		}
	}
	return "optimal"
}

func checkCapacity(d deps.Deps) componentStatus {
	if d.Capacity == nil {
		return componentStatus{OK: true, Mode: "disabled", Impact: "capacity-card-hidden"}
	}
	s := d.Capacity.Snapshot()
	st := componentStatus{
		OK:          s.LastError == "",
		LastReload:  formatReload(s.UpdatedAt),
		CapacityFor: string(s.CapacityType),
		Error:       s.LastError,
	}
	if !st.OK {
		st.Impact = "capacity-chart-stale"
	}
	return st
}

func checkEndpoint(ctx context.Context, rawURL string) componentStatus {
	if err := checkReachable(ctx, rawURL, 2*time.Second); err != nil {
		return componentStatus{OK: false, Mode: "unreachable", Error: err.Error()}
	}
	return componentStatus{OK: true, Mode: "reachable"}
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "no-snapshot-persistence",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "snapshot-persistence-disabled",
			Error:  "timeout",
		}
	}

	return componentStatus{
		OK:     true,
		Mode:   "optimal",
		Impact: "snapshot-persistence-enabled",
	}
}
