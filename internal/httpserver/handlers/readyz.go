package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/clusterview/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Nodes int    `json:"nodes"`
	Since string `json:"since,omitempty"`
}

// Readyz reports ready once the gateway node view has been refreshed at
// least once.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last := d.MemoryIndex.GetLastReload()
		resp := readyzResponse{
			Ready: !last.IsZero(),
			Nodes: d.MemoryIndex.NodeCount(),
		}
		status := http.StatusServiceUnavailable
		if resp.Ready {
			status = http.StatusOK
			resp.Since = last.Format("2006-01-02 15:04:05")
		}
		writeJSON(w, status, resp)
	}
}
