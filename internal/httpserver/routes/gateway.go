package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/clusterview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver/mw"
)

func init() { Register(registerGateway) }

func registerGateway(r chi.Router, d deps.Deps) {
	limit := mutationLimit(d)

	r.Route("/api/nvmeof/gateway", func(r chi.Router) {
		r.Use(mw.EnforceHost(d.AllowedHosts, d.Logger))
		r.Get("/nodes/available", handlers.AvailableNodes(d))
		r.Route("/groups/{group}", func(r chi.Router) {
			r.Get("/nodes", handlers.GroupNodes(d))
			r.With(limit).Post("/nodes", handlers.AddGroupNodes(d))
			r.With(limit).Delete("/nodes/{hostname}", handlers.RemoveGroupNode(d))
			r.Put("/selection", handlers.SelectGroupNodes(d))
			r.Delete("/selection", handlers.ClearGroupSelection(d))
			r.With(limit).Post("/selection/remove", handlers.RemoveSelectedGroupNode(d))
			r.Get("/subsystems", handlers.Subsystems(d))
		})
	})
}
