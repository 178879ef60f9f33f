package fsutil

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSafeFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`video*final?.mkv`, "video_final_.mkv"},
		{`what: a "title" <here>`, `what_ a _title_ _here_`},
		{"sub/dir/file.mp4", "sub/dir/file.mp4"},
		{"lots   of    spaces.mkv", "lots of spaces.mkv"},
		{`back\slash.mkv`, "back_slash.mkv"},
	}
	for _, c := range cases {
		if got := SafeFilename(c.in); got != c.want {
			t.Errorf("SafeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()

	first := filepath.Join(dir, "out.mkv")
	if got := UniquePath(first); got != first {
		t.Errorf("free path renamed to %q", got)
	}

	os.WriteFile(first, nil, 0o644)
	second := UniquePath(first)
	if second != filepath.Join(dir, "out_1.mkv") {
		t.Errorf("first collision = %q", second)
	}

	os.WriteFile(second, nil, 0o644)
	if got := UniquePath(first); got != filepath.Join(dir, "out_2.mkv") {
		t.Errorf("second collision = %q", got)
	}
}

func TestHumanSize(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.50 KiB"},
		{5 * 1024 * 1024, "5.00 MiB"},
		{3 << 30, "3.00 GiB"},
	}
	for _, c := range cases {
		if got := HumanSize(c.in); got != c.want {
			t.Errorf("HumanSize(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFileSizeMissing(t *testing.T) {
	if got := FileSize(filepath.Join(t.TempDir(), "nope")); got != "N/A" {
		t.Errorf("got %q", got)
	}
}

func TestFolderSize(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o644)
	os.MkdirAll(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 50), 0o644)

	if got := FolderSize(dir); got != 150 {
		t.Errorf("FolderSize = %d, want 150", got)
	}
}

func TestWithinRoot(t *testing.T) {
	root := t.TempDir()
	cases := []struct {
		path string
		want bool
	}{
		{filepath.Join(root, "a.mkv"), true},
		{filepath.Join(root, "sub", "b.mkv"), true},
		{root, true},
		{filepath.Join(root, "..", "escape.mkv"), false},
		{"/etc/passwd", false},
	}
	for _, c := range cases {
		if got := WithinRoot(root, c.path); got != c.want {
			t.Errorf("WithinRoot(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestWriteZip(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "clip.mkv")
	os.WriteFile(a, []byte("first"), 0o644)
	sub := filepath.Join(dir, "sub")
	os.MkdirAll(sub, 0o755)
	b := filepath.Join(sub, "clip.mkv")
	os.WriteFile(b, []byte("second"), 0o644)

	var buf bytes.Buffer
	if err := WriteZip(&buf, []string{a, b}); err != nil {
		t.Fatalf("WriteZip: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("entries = %d, want 2", len(zr.File))
	}
	names := []string{zr.File[0].Name, zr.File[1].Name}
	if names[0] != "clip.mkv" || names[1] != "clip_1.mkv" {
		t.Errorf("entry names = %v", names)
	}
}
