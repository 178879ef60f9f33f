package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mboyle85/grabdeck/internal/alerts"
	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/fsutil"
	"github.com/mboyle85/grabdeck/internal/media"
	"github.com/mboyle85/grabdeck/internal/progress"
	"github.com/mboyle85/grabdeck/internal/task"
)

// DownloadRequest drives the main pipeline: yt-dlp fetch, optional encode,
// optional upload chain.
type DownloadRequest struct {
	URL        string
	VideoID    string
	AudioID    string
	Filename   string
	UseCookies bool

	Encode    *EncodeRequest // nil = keep as downloaded
	Providers []string
}

func (w *Workers) Download(req DownloadRequest) task.Fn {
	return func(e *progress.Emitter, h *task.Handle) {
		e.StageAt("Initializing download...", 0)

		safeName := fsutil.SafeFilename(req.Filename)
		finalPath := fsutil.UniquePath(filepath.Join(config.DownloadDir, safeName))
		baseName := strings.TrimSuffix(filepath.Base(finalPath), filepath.Ext(finalPath))
		partTemplate := filepath.Join(config.DownloadDir, baseName+".part")

		tmpPath, err := w.runYtdlp(e, h, req.URL, req.VideoID, req.AudioID, partTemplate, req.UseCookies, "Downloading with yt-dlp...")
		if err != nil {
			if err != ErrCancelled {
				alerts.DownloadFailed(e.TaskID(), req.URL, err)
			}
			fail(e, h, err)
			return
		}
		defer os.Remove(tmpPath)
		e.StageAt("Download Complete", 100)

		var outPath string
		if req.Encode == nil {
			if err := os.Rename(tmpPath, finalPath); err != nil {
				fail(e, h, fmt.Errorf("Could not move downloaded file: %v", err))
				return
			}
			outPath = finalPath
			e.Stage("✅ Done!")
			e.Log("File saved without encoding.")
		} else {
			enc := *req.Encode
			enc.InputPath = tmpPath
			enc.OutputName = baseName + ".mkv"
			enc.Providers = nil
			outPath, err = w.encodeFile(e, h, enc)
			if err != nil {
				if err != ErrCancelled {
					alerts.EncodeFailed(e.TaskID(), tmpPath, err)
				}
				fail(e, h, err)
				return
			}
		}

		w.finishWithUploads(e, h, outPath, req.Providers)
	}
}

// MergeRequest downloads manually picked video+audio formats and lets
// yt-dlp mux them into one mkv.
type MergeRequest struct {
	URL       string
	VideoID   string
	AudioID   string
	Filename  string
	Providers []string
}

func (w *Workers) Merge(req MergeRequest) task.Fn {
	return func(e *progress.Emitter, h *task.Handle) {
		e.StageAt("Initializing manual download...", 0)

		safeName := fsutil.SafeFilename(req.Filename)
		baseName := strings.TrimSuffix(safeName, filepath.Ext(safeName))
		finalPath := fsutil.UniquePath(filepath.Join(config.DownloadDir, baseName+".mkv"))

		if _, err := w.runYtdlp(e, h, req.URL, req.VideoID, req.AudioID, finalPath, true, "Downloading & Merging with yt-dlp..."); err != nil {
			if err != ErrCancelled {
				alerts.DownloadFailed(e.TaskID(), req.URL, err)
			}
			fail(e, h, err)
			return
		}
		e.StageAt("✅ Download Complete!", 100)

		w.finishWithUploads(e, h, finalPath, req.Providers)
	}
}

// runYtdlp fetches the requested formats into outTemplate and returns the
// path yt-dlp actually produced (it appends its own extension to .part
// templates).
func (w *Workers) runYtdlp(e *progress.Emitter, h *task.Handle, url, videoID, audioID, outTemplate string, useCookies bool, stage string) (string, error) {
	selector := strings.TrimSpace(videoID)
	if a := strings.TrimSpace(audioID); a != "" {
		selector = selector + "+" + a
	}

	args := []string{
		"--force-ipv4",
		"-f", selector,
		"-o", outTemplate,
		"--merge-output-format", "mkv",
		url,
	}
	if useCookies {
		if _, err := os.Stat(config.CookiesFile); err == nil {
			args = append(args, "--cookies", config.CookiesFile)
		}
	}

	e.StageAt(stage, 0)
	tail, err := runCommand(h, config.YtdlpPath, args, func(line string) {
		e.Log(strings.TrimSpace(line))
		if pct, ok := media.DownloadProgress(line); ok {
			e.StageAt(stage, pct)
		}
	})
	if err != nil {
		if err == ErrCancelled {
			return "", err
		}
		if msg, ok := media.ToolError(tail); ok {
			return "", fmt.Errorf("%s", strings.TrimSpace(msg))
		}
		return "", fmt.Errorf("Download failed: %s", lastLine(tail))
	}

	if _, err := os.Stat(outTemplate); err == nil {
		return outTemplate, nil
	}

	// yt-dlp replaces the template's extension when merging.
	matches, _ := filepath.Glob(outTemplate + "*")
	if len(matches) == 0 {
		return "", fmt.Errorf("yt-dlp did not create expected file.")
	}
	return matches[0], nil
}
