package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/clusterview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/clusterview/internal/notify"
	"github.com/MrSnakeDoc/clusterview/internal/tasks"
)

type tasksResponse struct {
	Executing []tasks.Task `json:"executing"`
	Tasks     []tasks.Task `json:"tasks"`
}

func Notifications(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := []notify.Notification{}
		if d.Notifications != nil {
			list = append(list, d.Notifications.Recent()...)
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// Tasks lists the executing tracked mutations and the recent history.
func Tasks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := tasksResponse{Executing: []tasks.Task{}, Tasks: []tasks.Task{}}
		if d.Tasks != nil {
			resp.Executing = append(resp.Executing, d.Tasks.Executing()...)
			resp.Tasks = append(resp.Tasks, d.Tasks.List()...)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
