package worker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func argsString(args []string) string {
	return strings.Join(args, " ")
}

func TestBuildEncodeArgsH265CRF(t *testing.T) {
	req := EncodeRequest{Codec: "h265", Preset: "medium", PassMode: "1-pass"}
	args, pass1, err := buildEncodeArgs(req, "in.mp4", "out.mkv", 2)
	if err != nil {
		t.Fatal(err)
	}
	if pass1 != nil {
		t.Error("1-pass encode produced an analysis pass")
	}
	s := argsString(args)
	for _, want := range []string{"-c:v libx265", "-preset medium", "-crf 28", "-c:a libopus", "-b:a 96k", "-ac 2"} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %q in %q", want, s)
		}
	}
	if args[len(args)-1] != "out.mkv" {
		t.Errorf("output not last: %v", args)
	}
}

func TestBuildEncodeArgsAV1Defaults(t *testing.T) {
	req := EncodeRequest{Codec: "av1", Preset: "6", PassMode: "1-pass", Tiles: "2x4", AQMode: "1", VarianceBoost: "3"}
	args, _, err := buildEncodeArgs(req, "in.mp4", "out.mkv", 2)
	if err != nil {
		t.Fatal(err)
	}
	s := argsString(args)
	if !strings.Contains(s, "-crf 24") {
		t.Errorf("AV1 CRF default wrong: %q", s)
	}
	if !strings.Contains(s, "-svtav1-params aq-mode=1:variance-boost-strength=3:tile-rows=1:tile-columns=2") {
		t.Errorf("svt-av1 params wrong: %q", s)
	}
}

func TestBuildEncodeArgsTwoPass(t *testing.T) {
	req := EncodeRequest{Codec: "h265", Preset: "slow", PassMode: "2-pass", Bitrate: 2500}
	args, pass1, err := buildEncodeArgs(req, "in.mp4", "out.mkv", 2)
	if err != nil {
		t.Fatal(err)
	}
	p1 := argsString(pass1)
	for _, want := range []string{"-b:v 2500k", "-pass 1", "-an", "-f null"} {
		if !strings.Contains(p1, want) {
			t.Errorf("pass1 missing %q: %q", want, p1)
		}
	}
	if pass1[len(pass1)-1] != "-" {
		t.Errorf("pass1 should discard output: %v", pass1)
	}
	s := argsString(args)
	if !strings.Contains(s, "-pass 2") || strings.Contains(s, "-crf") {
		t.Errorf("final pass wrong: %q", s)
	}
}

func TestBuildEncodeArgsTwoPassRequiresBitrate(t *testing.T) {
	req := EncodeRequest{Codec: "av1", Preset: "6", PassMode: "2-pass", Bitrate: 50}
	if _, _, err := buildEncodeArgs(req, "in.mp4", "out.mkv", 2); err == nil {
		t.Fatal("expected bitrate error")
	}
}

func TestBuildEncodeArgsCopyVariants(t *testing.T) {
	args, _, err := buildEncodeArgs(EncodeRequest{Codec: "copy_video"}, "in.mp4", "out.mkv", 6)
	if err != nil {
		t.Fatal(err)
	}
	s := argsString(args)
	if !strings.Contains(s, "-c:v copy") {
		t.Errorf("copy_video missing video copy: %q", s)
	}
	// Surround input collapses to stereo for opus.
	if !strings.Contains(s, "-ac 2") {
		t.Errorf("channel downmix missing: %q", s)
	}

	args, _, err = buildEncodeArgs(EncodeRequest{Codec: "h265_copy_audio", Preset: "fast", PassMode: "1-pass"}, "in.mp4", "out.mkv", 2)
	if err != nil {
		t.Fatal(err)
	}
	s = argsString(args)
	if !strings.Contains(s, "-c:a copy") || strings.Contains(s, "libopus") {
		t.Errorf("copy_audio wrong: %q", s)
	}
}

func TestBuildEncodeArgsScaleAndVMAF(t *testing.T) {
	req := EncodeRequest{Codec: "h265", Preset: "fast", PassMode: "1-pass", Scale: "1280:-2", EnableVMAF: true, FPS: "30"}
	args, _, err := buildEncodeArgs(req, "in.mp4", "out.mkv", 2)
	if err != nil {
		t.Fatal(err)
	}
	s := argsString(args)
	if !strings.Contains(s, "-vf scale=1280:-2,libvmaf") {
		t.Errorf("filter chain wrong: %q", s)
	}
	if !strings.Contains(s, "-r 30") {
		t.Errorf("fps missing: %q", s)
	}
}

func TestEncodeOutputPathScaleTag(t *testing.T) {
	dir := useTempDownloadDir(t)

	got := encodeOutputPath(EncodeRequest{OutputName: "video.mkv", Scale: "1920:-2"})
	if got != filepath.Join(dir, "video_1080p.mkv") {
		t.Errorf("got %q", got)
	}

	got = encodeOutputPath(EncodeRequest{InputPath: "/src/Some Clip.mp4", Scale: "854:-2"})
	if got != filepath.Join(dir, "Some Clip_480p.mkv") {
		t.Errorf("got %q", got)
	}

	got = encodeOutputPath(EncodeRequest{OutputName: "plain.mkv", Scale: "9999:-2"})
	if got != filepath.Join(dir, "plain.mkv") {
		t.Errorf("unknown scale should not tag: %q", got)
	}
}

func TestParseTiles(t *testing.T) {
	cases := []struct {
		in         string
		rows, cols int
		ok         bool
	}{
		{"2x2", 2, 2, true},
		{"4x2", 4, 2, true},
		{"", 0, 0, false},
		{"axb", 0, 0, false},
		{"0x2", 0, 0, false},
	}
	for _, c := range cases {
		rows, cols, ok := parseTiles(c.in)
		if ok != c.ok || rows != c.rows || cols != c.cols {
			t.Errorf("parseTiles(%q) = (%d, %d, %v)", c.in, rows, cols, ok)
		}
	}
}

func TestEncodeWorkerCodecNoneCopies(t *testing.T) {
	dir := useTempDownloadDir(t)
	input := filepath.Join(dir, "src.mkv")
	if err := os.WriteFile(input, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := New(nil, nil)
	events := runWorker(t, w.Encode(EncodeRequest{InputPath: input, OutputName: "copy.mkv", Codec: "none"}))

	if countDones(events) != 1 {
		t.Fatalf("DONE count = %d", countDones(events))
	}
	data, err := os.ReadFile(filepath.Join(dir, "copy.mkv"))
	if err != nil || string(data) != "content" {
		t.Errorf("copied output = %q, %v", data, err)
	}
}

func TestEncodeWorkerRejectsNonMedia(t *testing.T) {
	dir := useTempDownloadDir(t)
	input := filepath.Join(dir, "notes.txt")
	os.WriteFile(input, []byte("hello"), 0o644)

	w := New(nil, nil)
	events := runWorker(t, w.Encode(EncodeRequest{InputPath: input, Codec: "h265"}))

	last := events[len(events)-1]
	if !strings.Contains(last.Error, "cannot be encoded") {
		t.Errorf("terminal = %+v", last)
	}
}

func TestBatchEncodeContinuesPastFailures(t *testing.T) {
	dir := useTempDownloadDir(t)
	a := filepath.Join(dir, "a.mkv")
	b := filepath.Join(dir, "b.mkv")
	os.WriteFile(a, []byte("aa"), 0o644)
	os.WriteFile(b, []byte("bb"), 0o644)
	missing := filepath.Join(dir, "gone.mkv")

	w := New(nil, nil)
	events := runWorker(t, w.BatchEncode(BatchEncodeRequest{
		Paths:  []string{a, missing, b},
		Encode: EncodeRequest{Codec: "none"},
	}))

	if countDones(events) != 1 {
		t.Fatalf("DONE count = %d: %+v", countDones(events), events)
	}
	var sawSkip bool
	for _, ev := range events {
		if strings.Contains(ev.Log, "Error encoding gone.mkv") {
			sawSkip = true
		}
	}
	if !sawSkip {
		t.Error("missing file was not reported as skipped")
	}
	for _, name := range []string{"a_encoded.mkv", "b_encoded.mkv"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("batch output %s missing: %v", name, err)
		}
	}

	last := events[len(events)-1]
	if last.Error != "" {
		t.Fatalf("terminal = %+v", last)
	}
	var sawSummary bool
	for _, ev := range events {
		if strings.Contains(ev.Stage, "2/3 encoded") {
			sawSummary = true
		}
	}
	if !sawSummary {
		t.Error("no batch summary stage with the completed count")
	}
}

func TestBatchEncodeAllFailuresIsTerminalError(t *testing.T) {
	dir := useTempDownloadDir(t)

	w := New(nil, nil)
	events := runWorker(t, w.BatchEncode(BatchEncodeRequest{
		Paths:  []string{filepath.Join(dir, "x.mkv"), filepath.Join(dir, "y.mkv")},
		Encode: EncodeRequest{Codec: "none"},
	}))

	last := events[len(events)-1]
	if !strings.Contains(last.Error, "All 2 encodes failed") {
		t.Errorf("terminal = %+v", last)
	}
}
