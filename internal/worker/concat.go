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

// ConcatRequest joins files back to back. Inputs must already be validated
// as living inside the download dir.
type ConcatRequest struct {
	Paths      []string
	OutputName string
}

func (w *Workers) ConcatMerge(req ConcatRequest) task.Fn {
	return func(e *progress.Emitter, h *task.Handle) {
		e.StageAt("Preparing merge...", 0)

		listFile, err := writeConcatList(req.Paths)
		if err != nil {
			fail(e, h, fmt.Errorf("Could not prepare merge list: %v", err))
			return
		}
		defer os.Remove(listFile)

		outPath := fsutil.UniquePath(filepath.Join(config.DownloadDir, fsutil.SafeFilename(req.OutputName)))

		var totalMs int64
		for _, p := range req.Paths {
			totalMs += int64(media.Duration(p) * 1000)
		}

		// Fast path: stream copy through the concat demuxer.
		copyArgs := []string{
			"-y", "-f", "concat", "-safe", "0", "-i", listFile,
			"-c", "copy",
			"-progress", "pipe:1", "-nostats",
			outPath,
		}
		e.StageAt("Merging...", 0)
		_, err = runCommand(h, config.FFmpegPath, copyArgs, concatProgressFn(e, "Merging...", totalMs))
		if err == ErrCancelled {
			e.Cancel("")
			return
		}

		if err != nil || !fileExists(outPath) {
			// Mixed codecs or containers: re-encode to a common format.
			os.Remove(outPath)
			e.StageAt("Re-encoding for compatibility...", 0)
			reencodeArgs := []string{
				"-y", "-f", "concat", "-safe", "0", "-i", listFile,
				"-map", "0:v:0", "-map", "0:a?",
				"-c:v", "libx264", "-preset", "fast", "-crf", "23",
				"-c:a", "aac",
				"-movflags", "+faststart",
				"-progress", "pipe:1", "-nostats",
				outPath,
			}
			tail, err := runCommand(h, config.FFmpegPath, reencodeArgs, concatProgressFn(e, "Re-encoding for compatibility...", totalMs))
			if err == ErrCancelled {
				e.Cancel("")
				return
			}
			if err != nil {
				os.Remove(outPath)
				alerts.MergeFailed(e.TaskID(), err)
				fail(e, h, fmt.Errorf("Merge failed: %s", lastLine(tail)))
				return
			}
		}

		e.StageAt("✅ Merge complete!", 100)
		e.Logf("Merged %d files into %s", len(req.Paths), filepath.Base(outPath))
		e.Done()
	}
}

func concatProgressFn(e *progress.Emitter, stage string, totalMs int64) func(string) {
	return func(line string) {
		if ms, ok := media.ConcatProgress(line); ok && totalMs > 0 {
			pct := float64(ms) / 1000 / float64(totalMs) * 100
			if pct > 100 {
				pct = 100
			}
			e.StageAt(stage, pct)
		}
	}
}

// writeConcatList builds the demuxer list file next to the inputs. Single
// quotes in paths are escaped the way the concat demuxer expects.
func writeConcatList(paths []string) (string, error) {
	f, err := os.CreateTemp(config.DownloadDir, "merge_list_*.txt")
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		escaped := strings.ReplaceAll(p, "'", `'\''`)
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", err
		}
	}
	return f.Name(), f.Close()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
