package handlers

import (
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/clusterview/internal/capacity"
	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver/deps"
)

type capacityTypeRequest struct {
	CapacityType domain.CapacityType `json:"capacity_type" validate:"required"`
}

type storageTypeRequest struct {
	StorageType string `json:"storage_type" validate:"required"`
}

func Capacity(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Capacity == nil {
			writeError(w, http.StatusNotFound, "capacity card is disabled")
			return
		}
		writeJSON(w, http.StatusOK, d.Capacity.Snapshot())
	}
}

// SetCapacityType switches the chart between raw and used capacity. The new
// series arrives with the next cycle, which starts immediately.
func SetCapacityType(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Capacity == nil {
			writeError(w, http.StatusNotFound, "capacity card is disabled")
			return
		}
		var req capacityTypeRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := d.Capacity.SetCapacityType(req.CapacityType); err != nil {
			writeError(w, capacityStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, d.Capacity.Snapshot())
	}
}

func SelectStorageType(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Capacity == nil {
			writeError(w, http.StatusNotFound, "capacity card is disabled")
			return
		}
		var req storageTypeRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := d.Capacity.SelectStorageType(req.StorageType); err != nil {
			writeError(w, capacityStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, d.Capacity.Snapshot())
	}
}

func capacityStatus(err error) int {
	if errors.Is(err, capacity.ErrUnknownCapacityType) || errors.Is(err, capacity.ErrUnknownStorageType) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
