package routes

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/media"
	"github.com/mboyle85/grabdeck/internal/worker"
)

func (h *Handlers) handleEncode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form data.")
		return
	}

	path, ok := resolveDownloadPath(r.FormValue("path"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid file path.")
		return
	}
	if _, err := os.Stat(path); err != nil {
		respondError(w, http.StatusNotFound, "File not found.")
		return
	}
	if !media.IsMediaFile(path) {
		respondError(w, http.StatusBadRequest, "File type cannot be encoded.")
		return
	}

	req, msg := parseEncodeForm(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	providers, msg := parseProviders(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	req.InputPath = path
	req.OutputName = strings.TrimSpace(r.FormValue("output"))
	req.Providers = providers

	h.startTask(w, "encode", h.Workers.Encode(req))
}

// handleBatchEncode runs one encode configuration over several files as a
// single task.
func (h *Handlers) handleBatchEncode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form data.")
		return
	}

	files := r.Form["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "No files selected.")
		return
	}

	var paths []string
	for _, rel := range files {
		path, ok := resolveDownloadPath(rel)
		if !ok {
			respondError(w, http.StatusBadRequest, "Invalid file path: "+rel)
			return
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			respondError(w, http.StatusNotFound, "File not found: "+rel)
			return
		}
		if !media.IsMediaFile(path) {
			respondError(w, http.StatusBadRequest, "File type cannot be encoded: "+rel)
			return
		}
		paths = append(paths, path)
	}

	req, msg := parseEncodeForm(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	providers, msg := parseProviders(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	req.Providers = providers

	h.startTask(w, "batch-encode", h.Workers.BatchEncode(worker.BatchEncodeRequest{
		Paths:  paths,
		Encode: req,
	}))
}

func (h *Handlers) handleTrim(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form data.")
		return
	}

	path, ok := resolveDownloadPath(r.FormValue("path"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid file path.")
		return
	}
	start := validateTimeParam(r.FormValue("start"))
	end := validateTimeParam(r.FormValue("end"))
	if start == "" || end == "" {
		respondError(w, http.StatusBadRequest, "Start and end times are required (HH:MM:SS).")
		return
	}

	h.startTask(w, "trim", h.Workers.Trim(worker.TrimRequest{
		InputPath: path,
		Start:     start,
		End:       end,
	}))
}

func (h *Handlers) handleConcatMerge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Files  []string `json:"files"`
		Output string   `json:"output"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	if len(body.Files) < 2 {
		respondError(w, http.StatusBadRequest, "Select at least 2 files.")
		return
	}
	if len(body.Files) > config.MaxMergeFiles {
		respondError(w, http.StatusBadRequest, "Too many files selected.")
		return
	}

	var paths []string
	for _, f := range body.Files {
		p, ok := resolveDownloadPath(f)
		if !ok {
			respondError(w, http.StatusBadRequest, "Invalid file selection.")
			return
		}
		if info, err := os.Stat(p); err != nil || info.IsDir() {
			respondError(w, http.StatusBadRequest, "Invalid file selection.")
			return
		}
		paths = append(paths, p)
	}

	output := strings.TrimSpace(body.Output)
	if output == "" {
		output = "merged.mp4"
	}

	h.startTask(w, "concat-merge", h.Workers.ConcatMerge(worker.ConcatRequest{
		Paths:      paths,
		OutputName: filepath.Base(output),
	}))
}

func (h *Handlers) handleInfo(w http.ResponseWriter, r *http.Request) {
	path, ok := resolveDownloadPath(r.URL.Query().Get("path"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid file path.")
		return
	}
	if _, err := os.Stat(path); err != nil {
		respondError(w, http.StatusNotFound, "File not found.")
		return
	}

	info, err := media.Probe(path)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Could not read media info.")
		return
	}
	respondJSON(w, http.StatusOK, info)
}
