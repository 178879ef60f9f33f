package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/mboyle85/grabdeck/internal/fsutil"
	"github.com/mboyle85/grabdeck/internal/hosts"
	"github.com/mboyle85/grabdeck/internal/worker"
)

// handleGofileList merges the remote account listing with local history.
// Remote wins on conflicts; history fills in entries for files uploaded
// anonymously or since deleted.
func (h *Handlers) handleGofileList(w http.ResponseWriter, r *http.Request) {
	local := []hosts.HistoryEntry{}
	if h.History != nil {
		local = h.History.List()
	}

	var remote []hosts.RemoteFile
	remoteOK := false
	if h.Gofile != nil && h.Gofile.Token != "" {
		if files, err := h.Gofile.ListRemote(r.Context()); err == nil {
			remote = files
			remoteOK = true
		}
	}

	seen := map[string]bool{}
	type listEntry struct {
		Name   string `json:"name"`
		Link   string `json:"link"`
		Size   string `json:"size,omitempty"`
		Date   string `json:"date,omitempty"`
		Remote bool   `json:"remote"`
		ID     string `json:"id,omitempty"`
	}
	var entries []listEntry
	for _, f := range remote {
		seen[f.Link] = true
		entries = append(entries, listEntry{
			Name:   f.Name,
			Link:   f.Link,
			Size:   fsutil.HumanSize(f.Size),
			Remote: true,
			ID:     f.ID,
		})
	}
	for _, e := range local {
		if e.Link == "" || seen[e.Link] {
			continue
		}
		entries = append(entries, listEntry{
			Name: e.Name,
			Link: e.Link,
			Size: e.Size,
			Date: e.Date,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"remoteAvailable": remoteOK,
		"files":           entries,
	})
}

// handleGofileImport rebuilds the local history from the remote account
// listing, so links uploaded from another machine (or before the history
// file existed) become visible without their files being re-uploaded.
func (h *Handlers) handleGofileImport(w http.ResponseWriter, r *http.Request) {
	if h.Gofile == nil || h.Gofile.Token == "" {
		respondError(w, http.StatusBadRequest, "Gofile account is not configured.")
		return
	}
	if h.History == nil {
		respondError(w, http.StatusBadRequest, "History is not configured.")
		return
	}

	remote, err := h.Gofile.ListRemote(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "Remote listing failed: "+err.Error())
		return
	}

	now := time.Now().Format(time.RFC3339)
	entries := make([]hosts.HistoryEntry, 0, len(remote))
	for _, f := range remote {
		if f.Link == "" {
			continue
		}
		entries = append(entries, hosts.HistoryEntry{
			Name: f.Name,
			Link: f.Link,
			Host: "gofile",
			Size: fsutil.HumanSize(f.Size),
			Date: now,
		})
	}
	if err := h.History.Replace(entries); err != nil {
		respondError(w, http.StatusInternalServerError, "Could not save history: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "History rebuilt from remote listing.",
		"imported": len(entries),
	})
}

func (h *Handlers) handleGofileDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs   []string `json:"ids"`
		Links []string `json:"links"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if len(body.IDs) == 0 && len(body.Links) == 0 {
		respondError(w, http.StatusBadRequest, "Nothing selected.")
		return
	}

	if len(body.IDs) > 0 {
		if h.Gofile == nil || h.Gofile.Token == "" {
			respondError(w, http.StatusBadRequest, "Gofile account is not configured.")
			return
		}
		if err := h.Gofile.DeleteRemote(r.Context(), body.IDs); err != nil {
			respondError(w, http.StatusBadGateway, "Remote delete failed: "+err.Error())
			return
		}
	}
	if len(body.Links) > 0 && h.History != nil {
		h.History.RemoveLinks(body.Links)
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Deleted."})
}

// handleGofileRestore pulls a hosted file back into the download dir.
// Direct file links go through the plain downloader; landing-page links
// need yt-dlp's gofile extractor.
func (h *Handlers) handleGofileRestore(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form data.")
		return
	}

	link := r.FormValue("link")
	if msg := validateURL(link); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	if strings.Contains(link, "/download/") || !strings.Contains(link, "gofile.io/d/") {
		h.startTask(w, "restore", h.Workers.DirectDownload(worker.DirectDownloadRequest{URL: link}))
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = "restored.mkv"
	}
	h.startTask(w, "restore", h.Workers.Download(worker.DownloadRequest{
		URL:      link,
		VideoID:  "best",
		Filename: name,
	}))
}
