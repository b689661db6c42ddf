package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/clusterview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver/mw"
)

func init() { Register(registerActivity) }

func registerActivity(r chi.Router, d deps.Deps) {
	api := r.With(mw.EnforceHost(d.AllowedHosts, d.Logger))
	api.Get("/api/notifications", handlers.Notifications(d))
	api.Get("/api/tasks", handlers.Tasks(d))
}
