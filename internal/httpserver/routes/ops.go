package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/clusterview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver/mw"
)

func init() { Register(registerOps) }

// registerOps wires the probes and the manual reload. Liveness stays open for
// the orchestrator; readiness and reload are restricted to the ops networks.
func registerOps(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))

	ops := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	ops.Get("/readyz", handlers.Readyz(d))
	ops.With(mw.EnforceHost(d.AllowedHosts, d.Logger)).Post("/reload", handlers.Reload(d))
}
