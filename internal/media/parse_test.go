package media

import (
	"fmt"
	"math"
	"testing"
)

func TestEncodeProgress(t *testing.T) {
	line := "frame= 2401 fps=120 q=28.0 size=    5120KiB time=00:01:40.05 bitrate= 419.2kbits/s speed=5.01x"

	percent, ok := EncodeProgress(line, 200)
	if !ok {
		t.Fatal("no match on a standard ffmpeg status line")
	}
	if math.Abs(percent-50.025) > 0.01 {
		t.Errorf("percent = %v, want ~50.025", percent)
	}
}

func TestEncodeProgressClampsOvershoot(t *testing.T) {
	// Stale/short duration can push the computation past 100.
	percent, ok := EncodeProgress("time=00:00:30.00 bitrate=N/A", 10)
	if !ok {
		t.Fatal("no match")
	}
	if percent != 100 {
		t.Errorf("percent = %v, want 100", percent)
	}
}

func TestEncodeProgressNoDuration(t *testing.T) {
	if _, ok := EncodeProgress("time=00:00:05.00", 0); ok {
		t.Error("expected no progress when duration is unknown")
	}
}

func TestEncodeProgressNonMatchingLine(t *testing.T) {
	lines := []string{
		"Stream #0:0(und): Video: h264 (High)",
		"Press [q] to stop, [?] for help",
		"",
	}
	for _, line := range lines {
		if _, ok := EncodeProgress(line, 100); ok {
			t.Errorf("unexpected match on %q", line)
		}
	}
}

func TestEncodeProgressReachesHundred(t *testing.T) {
	// A 10-second clip narrated second by second must hit exactly 100 on the
	// final marker.
	var last float64
	for s := 1; s <= 10; s++ {
		line := fmt.Sprintf("size=1024KiB time=00:00:%02d.00 bitrate=800kbits/s", s)
		percent, ok := EncodeProgress(line, 10)
		if !ok {
			t.Fatalf("no match at second %d", s)
		}
		if percent < last {
			t.Errorf("percent went backwards: %v after %v", percent, last)
		}
		last = percent
	}
	if last != 100 {
		t.Errorf("final percent = %v, want 100", last)
	}
}

func TestDownloadProgress(t *testing.T) {
	cases := []struct {
		line string
		want float64
		ok   bool
	}{
		{"[download]  45.2% of 120.51MiB at  2.52MiB/s ETA 00:26", 45.2, true},
		{"[download] 100% of 120.51MiB in 00:48", 100, true},
		{"[download] Destination: video.f137.mp4", 0, false},
		{"[Merger] Merging formats into \"out.mkv\"", 0, false},
	}
	for _, c := range cases {
		got, ok := DownloadProgress(c.line)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("DownloadProgress(%q) = (%v, %v), want (%v, %v)", c.line, got, ok, c.want, c.ok)
		}
	}
}

func TestVMAFScore(t *testing.T) {
	score, ok := VMAFScore("[libvmaf @ 0x5555] VMAF score: 94.532817")
	if !ok || score != "94.532817" {
		t.Errorf("got (%q, %v)", score, ok)
	}
	if _, ok := VMAFScore("frame=100"); ok {
		t.Error("unexpected match")
	}
}

func TestToolError(t *testing.T) {
	msg, ok := ToolError("WARNING: something\nERROR: Video unavailable. This video is private")
	if !ok || msg != "Video unavailable. This video is private" {
		t.Errorf("got (%q, %v)", msg, ok)
	}
}

func TestConcatProgress(t *testing.T) {
	ms, ok := ConcatProgress("out_time_ms=4520000")
	if !ok || ms != 4520000 {
		t.Errorf("got (%d, %v)", ms, ok)
	}
	if _, ok := ConcatProgress("progress=continue"); ok {
		t.Error("unexpected match")
	}
}
