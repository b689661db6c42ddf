package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/clusterview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
)

// Reload triggers a manual view refresh and, with an inventory file, an
// inventory reload. Cached listings are flushed first.
func Reload(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			if err := d.Store.FlushCache(ctx); err != nil {
				d.Logger.Warn("failed to flush listing cache", logger.Error(err))
			}
			cancel()
		}

		// Inventory first so the view refresh sees the new file.
		inventoryTriggered := false
		if d.InventoryReloadTrigger != nil {
			select {
			case d.InventoryReloadTrigger <- struct{}{}:
				inventoryTriggered = true
				d.Logger.Info("manual inventory reload triggered via endpoint",
					logger.String("remote_ip", r.RemoteAddr))
			default:
				d.Logger.Warn("inventory reload already in progress",
					logger.String("remote_ip", r.RemoteAddr))
			}
		}

		viewsTriggered := false
		select {
		case d.ReloadTrigger <- struct{}{}:
			viewsTriggered = true
			d.Logger.Info("manual view refresh triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
		default:
			d.Logger.Warn("view refresh already in progress",
				logger.String("remote_ip", r.RemoteAddr))
		}

		if viewsTriggered || inventoryTriggered {
			w.WriteHeader(http.StatusAccepted)
			if _, err := w.Write([]byte("✅ Reload triggered successfully\n")); err != nil {
				d.Logger.Debug("failed to write response", logger.Error(err))
			}
		} else {
			w.WriteHeader(http.StatusTooManyRequests)
			if _, err := w.Write([]byte("⏳ Reload already in progress, please wait\n")); err != nil {
				d.Logger.Debug("failed to write response", logger.Error(err))
			}
		}
	}
}
