package routes

import (
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/fsutil"
	"github.com/mboyle85/grabdeck/internal/media"
)

type fileEntry struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Size    string `json:"size"`
	Bytes   int64  `json:"bytes"`
	IsDir   bool   `json:"isDir"`
	IsMedia bool   `json:"isMedia"`
	ModTime string `json:"modTime"`
}

// handleListFiles lists one directory level under the download dir.
func (h *Handlers) handleListFiles(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("dir")
	dir := config.DownloadDir
	if rel != "" {
		resolved, ok := resolveDownloadPath(rel)
		if !ok {
			respondError(w, http.StatusBadRequest, "Invalid directory.")
			return
		}
		dir = resolved
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		respondError(w, http.StatusNotFound, "Directory not found.")
		return
	}

	files := make([]fileEntry, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		relPath, _ := filepath.Rel(config.DownloadDir, full)

		fe := fileEntry{
			Name:    entry.Name(),
			Path:    filepath.ToSlash(relPath),
			IsDir:   entry.IsDir(),
			ModTime: info.ModTime().UTC().Format("2006-01-02 15:04:05"),
		}
		if entry.IsDir() {
			size := fsutil.FolderSize(full)
			fe.Bytes = size
			fe.Size = fsutil.HumanSize(size)
		} else {
			fe.Bytes = info.Size()
			fe.Size = fsutil.HumanSize(info.Size())
			fe.IsMedia = media.IsMediaFile(full)
		}
		files = append(files, fe)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].IsDir != files[j].IsDir {
			return files[i].IsDir
		}
		return files[i].Name < files[j].Name
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"dir":   filepath.ToSlash(rel),
		"files": files,
	})
}

func (h *Handlers) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path    string `json:"path"`
		NewName string `json:"newName"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	src, ok := resolveDownloadPath(body.Path)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid file path.")
		return
	}
	newName := fsutil.SafeFilename(filepath.Base(body.NewName))
	if newName == "" {
		respondError(w, http.StatusBadRequest, "New name is required.")
		return
	}

	dst := filepath.Join(filepath.Dir(src), newName)
	if _, err := os.Stat(dst); err == nil {
		respondError(w, http.StatusConflict, "A file with that name already exists.")
		return
	}
	if err := os.Rename(src, dst); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Rename failed: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Renamed.", "newName": newName})
}

func (h *Handlers) handleMoveFile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
		Dest string `json:"dest"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	src, ok := resolveDownloadPath(body.Path)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid file path.")
		return
	}

	destDir := config.DownloadDir
	if body.Dest != "" {
		resolved, ok := resolveDownloadPath(body.Dest)
		if !ok {
			respondError(w, http.StatusBadRequest, "Invalid destination.")
			return
		}
		destDir = resolved
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		respondError(w, http.StatusInternalServerError, "Could not create destination.")
		return
	}

	dst := fsutil.UniquePath(filepath.Join(destDir, filepath.Base(src)))
	if err := os.Rename(src, dst); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Move failed: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Moved."})
}

// handleListFolders returns every folder under the download dir, for the
// move dialog's destination picker. "/" stands for the root.
func (h *Handlers) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders := []string{"/"}
	filepath.WalkDir(config.DownloadDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path == config.DownloadDir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if rel, err := filepath.Rel(config.DownloadDir, path); err == nil {
			folders = append(folders, filepath.ToSlash(rel))
		}
		return nil
	})
	sort.Strings(folders[1:])
	respondJSON(w, http.StatusOK, map[string]interface{}{"folders": folders})
}

// handleBatchMoveFiles moves several files into one destination folder.
// Per-file problems (missing source, name already taken) skip that file
// rather than aborting the batch.
func (h *Handlers) handleBatchMoveFiles(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Paths []string `json:"paths"`
		Dest  string   `json:"dest"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if len(body.Paths) == 0 {
		respondError(w, http.StatusBadRequest, "No files selected.")
		return
	}

	destDir := config.DownloadDir
	if body.Dest != "" && body.Dest != "/" {
		resolved, ok := resolveDownloadPath(body.Dest)
		if !ok {
			respondError(w, http.StatusBadRequest, "Invalid destination.")
			return
		}
		destDir = resolved
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		respondError(w, http.StatusInternalServerError, "Could not create destination.")
		return
	}

	moved := 0
	var failed []string
	for _, rel := range body.Paths {
		src, ok := resolveDownloadPath(rel)
		if !ok {
			failed = append(failed, rel)
			continue
		}
		if _, err := os.Stat(src); err != nil {
			failed = append(failed, rel)
			continue
		}
		dst := filepath.Join(destDir, filepath.Base(src))
		if _, err := os.Stat(dst); err == nil {
			failed = append(failed, rel)
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			failed = append(failed, rel)
			continue
		}
		moved++
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"moved":  moved,
		"failed": failed,
	})
}

func (h *Handlers) handleDeleteFiles(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Paths []string `json:"paths"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if len(body.Paths) == 0 {
		respondError(w, http.StatusBadRequest, "No files selected.")
		return
	}

	deleted := 0
	var failed []string
	for _, rel := range body.Paths {
		path, ok := resolveDownloadPath(rel)
		if !ok {
			failed = append(failed, rel)
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			failed = append(failed, rel)
			continue
		}
		deleted++
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deleted": deleted,
		"failed":  failed,
	})
}

// handleServeFile serves a stored file as an attachment.
func (h *Handlers) handleServeFile(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	path, ok := resolveDownloadPath(rel)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid file path.")
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		respondError(w, http.StatusNotFound, "File not found.")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// handleZipFiles streams several files as one zip download.
func (h *Handlers) handleZipFiles(w http.ResponseWriter, r *http.Request) {
	var paths []string
	for _, rel := range r.URL.Query()["path"] {
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
	if len(paths) == 0 {
		respondError(w, http.StatusBadRequest, "No files selected.")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="files.zip"`)
	if err := fsutil.WriteZip(w, paths); err != nil {
		// Headers are gone; the truncated stream is all we can signal with.
		return
	}
}

// handleReceiveFile stores an uploaded file into the download dir,
// optionally kicking off a host upload task afterwards.
func (h *Handlers) handleReceiveFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form.")
		return
	}
	src, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "File field is required.")
		return
	}
	defer src.Close()

	name := fsutil.SafeFilename(filepath.Base(header.Filename))
	if name == "" {
		respondError(w, http.StatusBadRequest, "Invalid filename.")
		return
	}
	path := fsutil.UniquePath(filepath.Join(config.DownloadDir, name))

	dst, err := os.Create(path)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Could not store file.")
		return
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		respondError(w, http.StatusInternalServerError, "Could not store file.")
		return
	}
	dst.Close()

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "File stored.",
		"name":    filepath.Base(path),
		"size":    fsutil.FileSize(path),
	})
}
