package worker

import (
	"fmt"
	"io"
	"math/bits"
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

// EncodeRequest carries the validated encode form. Codec "none" means a
// plain copy to the output name; "copy_video" re-encodes audio only.
type EncodeRequest struct {
	InputPath  string
	OutputName string

	Codec    string
	Preset   string
	PassMode string
	Bitrate  int
	CRF      int

	AudioBitrate int
	FPS          string
	Scale        string
	ForceStereo  bool

	AQMode        string
	VarianceBoost string
	Tiles         string

	EnableVMAF bool
	Providers  []string
}

// Encode returns the task body for a standalone encode of an existing file.
func (w *Workers) Encode(req EncodeRequest) task.Fn {
	return func(e *progress.Emitter, h *task.Handle) {
		out, err := w.encodeFile(e, h, req)
		if err != nil {
			fail(e, h, err)
			return
		}
		w.finishWithUploads(e, h, out, req.Providers)
	}
}

// BatchEncodeRequest applies one encode configuration to several files.
type BatchEncodeRequest struct {
	Paths  []string
	Encode EncodeRequest
}

// BatchEncode encodes the files sequentially as one task. A file that fails
// is logged and skipped; the task only fails when nothing encoded. Outputs
// get an _encoded suffix so sources survive alongside their results.
func (w *Workers) BatchEncode(req BatchEncodeRequest) task.Fn {
	return func(e *progress.Emitter, h *task.Handle) {
		total := len(req.Paths)
		completed := 0

		for i, path := range req.Paths {
			if h.WasCancelled() {
				e.Cancel("")
				return
			}
			name := filepath.Base(path)
			e.StageAt(fmt.Sprintf("Batch: %s (file %d of %d)", name, i+1, total),
				float64(i)/float64(total)*100)
			e.Logf("[BATCH %d/%d] %s - Passed: %d, Waiting: %d", i+1, total, name, completed, total-i-1)

			enc := req.Encode
			enc.InputPath = path
			enc.OutputName = strings.TrimSuffix(name, filepath.Ext(name)) + "_encoded.mkv"
			enc.Providers = nil

			out, err := w.encodeFile(e, h, enc)
			if err != nil {
				if err == ErrCancelled {
					e.Cancel("")
					return
				}
				e.Logf("Error encoding %s: %v", name, err)
				alerts.EncodeFailed(e.TaskID(), path, err)
				continue
			}
			completed++
			if len(req.Encode.Providers) > 0 {
				w.uploadChain(e, h, out, req.Encode.Providers)
			}
		}

		if completed == 0 {
			fail(e, h, fmt.Errorf("All %d encodes failed", total))
			return
		}
		e.StageAt(fmt.Sprintf("✅ Batch complete: %d/%d encoded", completed, total), 100)
		e.Done()
	}
}

// encodeFile runs the encode and returns the output path. Shared by the
// standalone encode task and the download pipeline.
func (w *Workers) encodeFile(e *progress.Emitter, h *task.Handle, req EncodeRequest) (string, error) {
	e.StageAt("Initializing encoding...", 0)

	if !media.IsMediaFile(req.InputPath) {
		return "", fmt.Errorf("File type cannot be encoded.")
	}
	if _, err := os.Stat(req.InputPath); err != nil {
		return "", fmt.Errorf("Input file not found: %s", filepath.Base(req.InputPath))
	}

	outPath := encodeOutputPath(req)

	if req.Codec == "none" {
		if err := copyFile(req.InputPath, outPath); err != nil {
			return "", err
		}
		e.StageAt("✅ Copied!", 100)
		return outPath, nil
	}

	channels := 2
	if !req.ForceStereo {
		channels = media.AudioChannels(req.InputPath)
	}

	args, pass1, err := buildEncodeArgs(req, req.InputPath, outPath, channels)
	if err != nil {
		return "", err
	}

	duration := media.Duration(req.InputPath)
	stageMsg := fmt.Sprintf("Encoding to %s...", strings.ToUpper(req.Codec))

	if pass1 != nil {
		e.StageAt("Running analysis pass (1 of 2)...", 0)
		if tail, err := runCommand(h, config.FFmpegPath, pass1, func(line string) {
			if pct, ok := media.EncodeProgress(line, duration); ok {
				e.StageAt("Running analysis pass (1 of 2)...", pct/2)
			}
		}); err != nil {
			if err == ErrCancelled {
				return "", err
			}
			return "", fmt.Errorf("First encoding pass failed: %s", lastLine(tail))
		}
		stageMsg = fmt.Sprintf("Encoding to %s (2 of 2)...", strings.ToUpper(req.Codec))
	}

	e.StageAt(stageMsg, 0)
	tail, err := runCommand(h, config.FFmpegPath, args, func(line string) {
		e.Log(strings.TrimSpace(line))
		if pct, ok := media.EncodeProgress(line, duration); ok {
			e.StageAt(stageMsg, pct)
		}
		if req.EnableVMAF {
			if score, ok := media.VMAFScore(line); ok {
				e.Logf("VMAF Score: %s", score)
			}
		}
	})
	if err != nil {
		if err == ErrCancelled {
			return "", err
		}
		os.Remove(outPath)
		return "", fmt.Errorf("Encoding process terminated: %s", lastLine(tail))
	}

	e.StageAt("✅ Done!", 100)
	e.Logf("%s encoding complete.", strings.ToUpper(req.Codec))
	return outPath, nil
}

// encodeOutputPath derives the output file: requested or input name, scale
// tag appended, sanitized and made unique under the download dir.
func encodeOutputPath(req EncodeRequest) string {
	name := req.OutputName
	if name == "" {
		base := filepath.Base(req.InputPath)
		name = strings.TrimSuffix(base, filepath.Ext(base)) + ".mkv"
	}
	if tag := config.ScaleTags[req.Scale]; tag != "" {
		ext := filepath.Ext(name)
		name = strings.TrimSuffix(name, ext) + "_" + tag + ext
	}
	name = fsutil.SafeFilename(name)
	return fsutil.UniquePath(filepath.Join(config.DownloadDir, name))
}

// buildEncodeArgs assembles the ffmpeg invocation. For 2-pass it also
// returns the analysis pass; pass1 is nil otherwise. Pure, so the arg
// assembly is testable without ffmpeg.
func buildEncodeArgs(req EncodeRequest, inputPath, outputPath string, audioChannels int) (args []string, pass1 []string, err error) {
	base := []string{"-y", "-i", inputPath}

	var vf []string
	if req.Scale != "" {
		vf = append(vf, "scale="+req.Scale)
	}

	baseCodec := strings.TrimSuffix(req.Codec, "_copy_audio")
	var videoCodec string
	switch baseCodec {
	case "h265":
		videoCodec = "libx265"
	case "av1":
		videoCodec = "libsvtav1"
	}

	args = append(args, base...)
	if req.Codec == "copy_video" {
		args = append(args, "-c:v", "copy")
	} else {
		if req.PassMode == "2-pass" {
			if req.Bitrate < 100 {
				return nil, nil, fmt.Errorf("Bitrate required for 2-pass.")
			}
			videoOpts := []string{"-c:v", videoCodec, "-preset", req.Preset, "-b:v", fmt.Sprintf("%dk", req.Bitrate)}
			pass1 = append(append([]string{}, base...), videoOpts...)
			pass1 = append(pass1, "-pass", "1", "-an", "-f", "null", "-")
			args = append(args, videoOpts...)
			args = append(args, "-pass", "2")
		} else {
			crf := req.CRF
			if crf == 0 {
				crf = 28
				if baseCodec == "av1" {
					crf = 24
				}
			}
			args = append(args, "-c:v", videoCodec, "-preset", req.Preset, "-crf", fmt.Sprint(crf))
		}
		if req.FPS != "" {
			args = append(args, "-r", req.FPS)
		}
	}

	if strings.HasSuffix(req.Codec, "_copy_audio") {
		args = append(args, "-c:a", "copy")
	} else {
		ab := req.AudioBitrate
		if ab == 0 {
			ab = 96
		}
		ch := audioChannels
		if req.ForceStereo || ch > 2 {
			ch = 2
		}
		args = append(args, "-ac", fmt.Sprint(ch), "-c:a", "libopus", "-b:a", fmt.Sprintf("%dk", ab))
	}

	if baseCodec == "av1" && req.Codec != "copy_video" {
		svt := []string{
			"aq-mode=" + orDefault(req.AQMode, "2"),
			"variance-boost-strength=" + orDefault(req.VarianceBoost, "2"),
		}
		if rows, cols, ok := parseTiles(req.Tiles); ok {
			// svt-av1 wants log2 of the tile grid.
			svt = append(svt,
				fmt.Sprintf("tile-rows=%d", log2floor(rows)),
				fmt.Sprintf("tile-columns=%d", log2floor(cols)))
		}
		args = append(args, "-svtav1-params", strings.Join(svt, ":"))
	}

	if req.EnableVMAF {
		vf = append(vf, "libvmaf")
	}
	if len(vf) > 0 {
		args = append(args, "-vf", strings.Join(vf, ","))
	}

	args = append(args, outputPath)
	return args, pass1, nil
}

func parseTiles(tiles string) (rows, cols int, ok bool) {
	parts := strings.SplitN(tiles, "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(tiles, "%dx%d", &rows, &cols); err != nil {
		return 0, 0, false
	}
	if rows <= 0 || cols <= 0 {
		return 0, 0, false
	}
	return rows, cols, true
}

func log2floor(n int) int {
	return bits.Len(uint(n)) - 1
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func lastLine(tail string) string {
	lines := strings.Split(strings.TrimSpace(tail), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return "no output"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
