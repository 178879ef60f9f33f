package worker

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/mboyle85/grabdeck/internal/alerts"
	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/fsutil"
	"github.com/mboyle85/grabdeck/internal/hosts"
	"github.com/mboyle85/grabdeck/internal/progress"
	"github.com/mboyle85/grabdeck/internal/task"
)

// UploadRequest is a host upload as the primary operation.
type UploadRequest struct {
	Path      string
	Providers []string
}

// Upload returns the task body for uploading an existing file. Unlike the
// chain that trails a download or encode, here a fully failed chain is a
// task failure because uploading was the whole point.
func (w *Workers) Upload(req UploadRequest) task.Fn {
	return func(e *progress.Emitter, h *task.Handle) {
		e.StageAt("Preparing upload...", 0)
		if _, err := os.Stat(req.Path); err != nil {
			fail(e, h, fmt.Errorf("File not found: %s", filepath.Base(req.Path)))
			return
		}

		results := w.uploadChain(e, h, req.Path, req.Providers)
		if h.WasCancelled() {
			e.Cancel("")
			return
		}
		if len(results) == 0 {
			fail(e, h, fmt.Errorf("All uploads failed"))
			return
		}
		e.FinalURL("✅ Upload complete!", results[len(results)-1].URL)
		e.Done()
	}
}

// BatchUploadRequest pushes several files through a single provider.
type BatchUploadRequest struct {
	Paths    []string
	Provider string
}

func (w *Workers) BatchUpload(req BatchUploadRequest) task.Fn {
	return func(e *progress.Emitter, h *task.Handle) {
		e.StageAt("Starting batch upload...", 0)

		var succeeded int
		for i, path := range req.Paths {
			if h.WasCancelled() {
				e.Cancel("")
				return
			}
			e.StageAt(fmt.Sprintf("Uploading file %d of %d...", i+1, len(req.Paths)),
				float64(i)/float64(len(req.Paths))*100)
			if results := w.uploadChain(e, h, path, []string{req.Provider}); len(results) > 0 {
				succeeded++
			}
		}

		if succeeded == 0 {
			fail(e, h, fmt.Errorf("All %d uploads failed", len(req.Paths)))
			return
		}
		e.StageAt(fmt.Sprintf("✅ Batch complete: %d/%d uploaded", succeeded, len(req.Paths)), 100)
		e.Done()
	}
}

// RemoteUploadRequest streams a remote URL straight to pixeldrain without
// storing it locally.
type RemoteUploadRequest struct {
	URL string
}

func (w *Workers) RemoteUpload(req RemoteUploadRequest) task.Fn {
	return func(e *progress.Emitter, h *task.Handle) {
		e.StageAt("Starting direct remote upload...", 0)

		pd, ok := w.Uploaders["pixeldrain"].(*hosts.Pixeldrain)
		if !ok {
			fail(e, h, fmt.Errorf("pixeldrain is not configured"))
			return
		}

		resp, err := http.Get(req.URL)
		if err != nil {
			fail(e, h, fmt.Errorf("Remote fetch failed: %v", err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			fail(e, h, fmt.Errorf("Remote fetch failed: HTTP %d", resp.StatusCode))
			return
		}

		filename := filenameFromResponse(resp, req.URL, "direct_upload")
		e.Logf("Identified filename: '%s'", filename)
		e.Stage("Uploading to pixeldrain...")

		res, err := pd.UploadStream(context.Background(), resp.Body, resp.ContentLength, filename)
		if err != nil {
			fail(e, h, err)
			return
		}
		w.recordUpload(res, filename, "")
		e.FinalURL("✅ Upload complete!", res.URL)
		e.Done()
	}
}

// finishWithUploads ends a processing task: optional upload chain, then the
// single success terminal. Chain-step failures never fail the task because
// the produced file is already safe on disk.
func (w *Workers) finishWithUploads(e *progress.Emitter, h *task.Handle, path string, providers []string) {
	if len(providers) == 0 {
		e.Done()
		return
	}
	results := w.uploadChain(e, h, path, providers)
	if h.WasCancelled() {
		e.Cancel("")
		return
	}
	if len(results) > 0 {
		e.FinalURL("✅ All done!", results[len(results)-1].URL)
	} else {
		e.Log("All uploads failed; file kept locally.")
	}
	e.Done()
}

// uploadChain tries the requested providers in fixed priority order. Each
// failure is logged and alerted but never aborts the chain.
func (w *Workers) uploadChain(e *progress.Emitter, h *task.Handle, path string, providers []string) []*hosts.Result {
	requested := make(map[string]bool, len(providers))
	for _, p := range providers {
		requested[p] = true
	}

	filename := filepath.Base(path)
	var results []*hosts.Result
	for _, name := range config.AllowedProviders {
		if !requested[name] {
			continue
		}
		if h.WasCancelled() {
			return results
		}
		up, ok := w.Uploaders[name]
		if !ok {
			e.Logf("Skipping %s: not configured.", name)
			continue
		}

		e.Stage(fmt.Sprintf("Uploading to %s...", name))
		res, err := up.Upload(context.Background(), path, filename, e)
		if err != nil {
			e.Logf("Upload to %s failed: %v", name, err)
			alerts.UploadHostFailed(e.TaskID(), name, filename, err)
			continue
		}
		e.Logf("Success! %s link: %s", name, res.URL)
		w.recordUpload(res, filename, path)
		results = append(results, res)
	}
	return results
}

func (w *Workers) recordUpload(res *hosts.Result, filename, path string) {
	if w.History == nil {
		return
	}
	size := ""
	if path != "" {
		size = fsutil.FileSize(path)
	}
	w.History.Add(hosts.HistoryEntry{
		Name: filename,
		Link: res.URL,
		Host: res.Host,
		Size: size,
	})
}

// filenameFromResponse resolves a download's name: content-disposition
// first, then the last URL path segment, then the fallback.
func filenameFromResponse(resp *http.Response, rawURL, fallback string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return fsutil.SafeFilename(name)
			}
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if seg := filepath.Base(u.Path); seg != "" && seg != "/" && seg != "." {
			if dec, err := url.QueryUnescape(seg); err == nil {
				seg = dec
			}
			return fsutil.SafeFilename(seg)
		}
	}
	return fallback
}
