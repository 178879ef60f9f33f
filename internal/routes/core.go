package routes

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"

	"github.com/go-chi/chi/v5"

	"github.com/mboyle85/grabdeck/internal/alerts"
	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/fsutil"
	"github.com/mboyle85/grabdeck/internal/hosts"
	"github.com/mboyle85/grabdeck/internal/progress"
	"github.com/mboyle85/grabdeck/internal/task"
	"github.com/mboyle85/grabdeck/internal/worker"
)

// Handlers carries every dependency the HTTP layer needs. Everything is
// injected so tests can run handlers against in-memory pieces.
type Handlers struct {
	Bus     *progress.Bus
	Runner  *task.Runner
	Handle  *task.Handle
	Workers *worker.Workers
	Gofile  *hosts.Gofile
	History *hosts.History
}

func NewHandlers(bus *progress.Bus, runner *task.Runner, handle *task.Handle, workers *worker.Workers, gofile *hosts.Gofile, history *hosts.History) *Handlers {
	return &Handlers{
		Bus:     bus,
		Runner:  runner,
		Handle:  handle,
		Workers: workers,
		Gofile:  gofile,
		History: history,
	}
}

func (h *Handlers) Mount(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/api/status", h.handleStatus)
	r.Get("/api/progress/{taskID}", h.handleProgress)
	r.Post("/api/stop", h.handleStop)

	r.Get("/api/formats", h.handleFormats)
	r.Post("/api/download", h.handleDownload)
	r.Post("/api/download/direct", h.handleDirectDownload)
	r.Post("/api/merge", h.handleMerge)

	r.Post("/api/encode", h.handleEncode)
	r.Post("/api/encode/batch", h.handleBatchEncode)
	r.Post("/api/trim", h.handleTrim)
	r.Post("/api/merge/concat", h.handleConcatMerge)
	r.Get("/api/info", h.handleInfo)

	r.Get("/api/files", h.handleListFiles)
	r.Get("/api/folders", h.handleListFolders)
	r.Post("/api/files/rename", h.handleRenameFile)
	r.Post("/api/files/move", h.handleMoveFile)
	r.Post("/api/files/move/batch", h.handleBatchMoveFiles)
	r.Post("/api/files/delete", h.handleDeleteFiles)
	r.Get("/api/files/zip", h.handleZipFiles)
	r.Post("/api/files/upload", h.handleReceiveFile)
	r.Get("/download/*", h.handleServeFile)

	r.Post("/api/upload", h.handleUpload)
	r.Post("/api/upload/batch", h.handleBatchUpload)
	r.Post("/api/upload/remote", h.handleRemoteUpload)

	r.Get("/api/gofile", h.handleGofileList)
	r.Post("/api/gofile/import", h.handleGofileImport)
	r.Post("/api/gofile/delete", h.handleGofileDelete)
	r.Post("/api/gofile/restore", h.handleGofileRestore)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	tools := map[string]bool{
		"ffmpeg":  commandOK(config.FFmpegPath),
		"ffprobe": commandOK(config.FFprobePath),
		"yt-dlp":  commandOK(config.YtdlpPath),
	}

	disk := map[string]interface{}{"available": false}
	if info, err := fsutil.GetDiskSpace(config.DownloadDir); err == nil {
		disk = map[string]interface{}{
			"available": true,
			"availGB":   fmt.Sprintf("%.1f", info.AvailGB),
			"totalGB":   fmt.Sprintf("%.1f", info.TotalGB),
			"low":       info.AvailGB < config.DiskSpaceMinGB,
		}
		if info.AvailGB < config.DiskSpaceMinGB {
			alerts.DiskSpaceLow(info.AvailGB)
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": config.Version,
		"tools":   tools,
		"disk":    disk,
	})
}

func commandOK(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}
	_, err := exec.LookPath(path)
	return err == nil
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	active, id, kind := h.Runner.Status()

	cookieSet := false
	if c, err := r.Cookie(taskCookie); err == nil && c.Value != "" {
		cookieSet = true
	}
	if !active {
		clearTaskCookie(w)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"task_active": active,
		"task_id":     id,
		"task_type":   kind,
		"cookie_hint": cookieSet,
	})
}

// handleProgress bridges a task's event queue onto SSE. Single reader per
// task: a second subscriber takes over the queue, so the UI opens exactly
// one stream per task id.
func (h *Handlers) handleProgress(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "Task ID required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	sub := h.Bus.Subscribe(taskID)
	for {
		if r.Context().Err() != nil {
			return
		}

		ev, ok := sub.Next(config.StreamIdleLimit)
		if !ok {
			// Idle too long: the worker is gone or wedged. Tell the client
			// and close rather than holding the connection forever.
			data, _ := json.Marshal(progress.Event{Error: "Progress stream timed out."})
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			// Subscribing created the queue; drop it unless the task is
			// still live, or made-up and abandoned IDs pile up in the bus.
			if active, id, _ := h.Runner.Status(); !active || id != taskID {
				h.Bus.Forget(taskID)
			}
			return
		}

		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("[%s] marshal progress event: %v", shortID(taskID), err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()

		if ev.Terminal() {
			h.Bus.Forget(taskID)
			return
		}
	}
}

func (h *Handlers) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.Handle.Stop(); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"message": "Nothing to stop."})
		return
	}
	clearTaskCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Stop signal sent."})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
