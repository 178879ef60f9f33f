package media

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/fsutil"
)

// IsMediaFile reports whether the path carries a known video or audio
// extension. Cheap gate before spawning ffprobe or ffmpeg.
func IsMediaFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return config.VideoExtensions[ext] || config.AudioExtensions[ext]
}

// Duration returns the media duration in seconds, or 0 when it cannot be
// determined. Workers treat 0 as "percent unavailable", not as an error.
func Duration(path string) float64 {
	if !IsMediaFile(path) {
		return 0
	}
	cmd := exec.Command(config.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0
	}
	return d
}

// AudioChannels returns the channel count of the first audio stream,
// defaulting to stereo when probing fails.
func AudioChannels(path string) int {
	cmd := exec.Command(config.FFprobePath,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=channels",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 2
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil || n < 1 {
		return 2
	}
	return n
}

// Info is the subset of ffprobe output surfaced by the file info endpoint.
type Info struct {
	FileSize        string `json:"fileSize"`
	Duration        string `json:"duration,omitempty"`
	VideoCodec      string `json:"videoCodec,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
	VideoFPS        string `json:"videoFps,omitempty"`
	VideoBitrate    string `json:"videoBitrate,omitempty"`
	VideoStreamSize string `json:"videoStreamSize,omitempty"`
	AudioCodec      string `json:"audioCodec,omitempty"`
	AudioBitrate    string `json:"audioBitrate,omitempty"`
	AudioStreamSize string `json:"audioStreamSize,omitempty"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	BitRate      string `json:"bit_rate"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe fetches detailed media information via ffprobe.
func Probe(path string) (*Info, error) {
	cmd := exec.Command(config.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams", "-show_format",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("ffprobe output unreadable: %w", err)
	}

	info := &Info{FileSize: fsutil.FileSize(path)}

	durationSec, _ := strconv.ParseFloat(probe.Format.Duration, 64)
	if durationSec > 0 {
		info.Duration = (time.Duration(durationSec) * time.Second).String()
	}

	var video, audio *probeStream
	for i := range probe.Streams {
		s := &probe.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			if audio == nil {
				audio = s
			}
		}
	}

	if video != nil {
		info.VideoCodec = video.CodecName
		info.Resolution = fmt.Sprintf("%dx%d", video.Width, video.Height)
		info.VideoFPS = parseFrameRate(video.AvgFrameRate)
		brStr := video.BitRate
		overall := false
		if brStr == "" {
			brStr = probe.Format.BitRate
			overall = true
		}
		if br, err := strconv.Atoi(brStr); err == nil && br > 0 {
			info.VideoBitrate = fmt.Sprintf("%d kbps", br/1000)
			if overall {
				info.VideoBitrate += " (overall)"
			} else if durationSec > 0 {
				info.VideoStreamSize = fsutil.HumanSize(int64(float64(br) / 8 * durationSec))
			}
		}
	}

	if audio != nil {
		info.AudioCodec = audio.CodecName
		if br, err := strconv.Atoi(audio.BitRate); err == nil && br > 0 {
			info.AudioBitrate = fmt.Sprintf("%d kbps", br/1000)
			if durationSec > 0 {
				info.AudioStreamSize = fsutil.HumanSize(int64(float64(br) / 8 * durationSec))
			}
		}
	}

	return info, nil
}

func parseFrameRate(fr string) string {
	if fr == "" || fr == "0/1" || !strings.Contains(fr, "/") {
		return ""
	}
	parts := strings.SplitN(fr, "/", 2)
	num, err1 := strconv.Atoi(parts[0])
	den, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || den == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f", float64(num)/float64(den))
}
