package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/mboyle85/grabdeck/internal/task"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

func formValueOr(r *http.Request, key, fallback string) string {
	v := r.FormValue(key)
	if v == "" {
		return fallback
	}
	return v
}

func intFormValue(r *http.Request, key string, fallback int) int {
	v := r.FormValue(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func boolFormValue(r *http.Request, key string) bool {
	switch r.FormValue(key) {
	case "true", "on", "1", "yes":
		return true
	}
	return false
}

// taskCookie is a UI hint only; the runner is the authority on whether a
// task is active.
const taskCookie = "task_active"

func setTaskCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     taskCookie,
		Value:    "1",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearTaskCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   taskCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// startTask launches fn on the runner and answers with the task id, or 409
// when another task already runs.
func (h *Handlers) startTask(w http.ResponseWriter, kind string, fn task.Fn) {
	id, err := h.Runner.Start(kind, fn)
	if err != nil {
		respondError(w, http.StatusConflict, "A task is already running. Stop it first.")
		return
	}
	setTaskCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"task_id": id, "type": kind})
}
