package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/fsutil"
	"github.com/mboyle85/grabdeck/internal/progress"
	"github.com/mboyle85/grabdeck/internal/task"
)

// TrimRequest cuts [Start, End] out of a file with a stream copy, so the
// cut lands on the nearest keyframes rather than exact timestamps.
type TrimRequest struct {
	InputPath string
	Start     string
	End       string
}

func (w *Workers) Trim(req TrimRequest) task.Fn {
	return func(e *progress.Emitter, h *task.Handle) {
		e.StageAt("Trimming...", 0)

		if _, err := os.Stat(req.InputPath); err != nil {
			fail(e, h, fmt.Errorf("Input file not found: %s", filepath.Base(req.InputPath)))
			return
		}

		base := filepath.Base(req.InputPath)
		ext := filepath.Ext(base)
		outName := strings.TrimSuffix(base, ext) + "_trimmed" + ext
		outPath := fsutil.UniquePath(filepath.Join(config.DownloadDir, outName))

		args := []string{
			"-y", "-i", req.InputPath,
			"-ss", req.Start, "-to", req.End,
			"-c", "copy",
			outPath,
		}
		tail, err := runCommand(h, config.FFmpegPath, args, func(line string) {
			e.Log(strings.TrimSpace(line))
		})
		if err == ErrCancelled {
			e.Cancel("")
			return
		}
		if err != nil {
			os.Remove(outPath)
			fail(e, h, fmt.Errorf("Trim failed: %s", lastLine(tail)))
			return
		}

		e.StageAt("✅ Trim complete!", 100)
		e.Logf("Saved as %s", filepath.Base(outPath))
		e.Done()
	}
}
