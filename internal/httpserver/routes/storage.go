package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/clusterview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver/mw"
)

func init() { Register(registerStorage) }

func registerStorage(r chi.Router, d deps.Deps) {
	limit := mutationLimit(d)
	api := r.With(mw.EnforceHost(d.AllowedHosts, d.Logger))

	api.Get("/api/cephfs/filesystems", handlers.Filesystems(d))
	api.Get("/api/capacity", handlers.Capacity(d))
	api.With(limit).Put("/api/capacity/type", handlers.SetCapacityType(d))
	api.With(limit).Put("/api/capacity/storage-type", handlers.SelectStorageType(d))
}
