package routes

import (
	"net/http"
	"os"

	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/worker"
)

func (h *Handlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form data.")
		return
	}

	path, ok := resolveDownloadPath(r.FormValue("path"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid file path.")
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		respondError(w, http.StatusNotFound, "File not found.")
		return
	}

	providers, msg := parseProviders(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	if len(providers) == 0 {
		respondError(w, http.StatusBadRequest, "Select at least one upload provider.")
		return
	}

	h.startTask(w, "upload", h.Workers.Upload(worker.UploadRequest{
		Path:      path,
		Providers: providers,
	}))
}

func (h *Handlers) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Paths    []string `json:"paths"`
		Provider string   `json:"provider"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if len(body.Paths) == 0 {
		respondError(w, http.StatusBadRequest, "No files selected.")
		return
	}
	if !config.Contains(config.AllowedProviders, body.Provider) {
		respondError(w, http.StatusBadRequest, "Unknown upload provider.")
		return
	}

	var paths []string
	for _, rel := range body.Paths {
		p, ok := resolveDownloadPath(rel)
		if !ok {
			respondError(w, http.StatusBadRequest, "Invalid file path: "+rel)
			return
		}
		if info, err := os.Stat(p); err != nil || info.IsDir() {
			respondError(w, http.StatusNotFound, "File not found: "+rel)
			return
		}
		paths = append(paths, p)
	}

	h.startTask(w, "batch-upload", h.Workers.BatchUpload(worker.BatchUploadRequest{
		Paths:    paths,
		Provider: body.Provider,
	}))
}

func (h *Handlers) handleRemoteUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form data.")
		return
	}

	rawURL := r.FormValue("url")
	if msg := validateURL(rawURL); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	h.startTask(w, "remote-upload", h.Workers.RemoteUpload(worker.RemoteUploadRequest{URL: rawURL}))
}
