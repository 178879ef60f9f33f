package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	unsafeCharsRe = regexp.MustCompile(`[\\*?:"<>|]`)
	multiSpaceRe  = regexp.MustCompile(`\s+`)
)

// SafeFilename sanitizes a name for use under the download directory.
// Slashes are preserved so callers can address nested folders; each segment
// is cleaned independently.
func SafeFilename(name string) string {
	parts := strings.Split(name, "/")
	for i, part := range parts {
		part = unsafeCharsRe.ReplaceAllString(part, "_")
		part = multiSpaceRe.ReplaceAllString(part, " ")
		parts[i] = strings.TrimSpace(part)
	}
	return strings.Join(parts, "/")
}

// UniquePath returns target if it is free, otherwise the first
// "base_N.ext" that does not exist yet. Two workers racing on the exact same
// path in the same instant is an accepted, unhandled edge case.
func UniquePath(target string) string {
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return target
	}
	dir, file := filepath.Split(target)
	ext := filepath.Ext(file)
	base := strings.TrimSuffix(file, ext)
	for counter := 1; ; counter++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, counter, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

var sizeLabels = []string{"B", "KiB", "MiB", "GiB", "TiB"}

// HumanSize renders a byte count in IEC units.
func HumanSize(size int64) string {
	if size <= 0 {
		return "0 B"
	}
	v := float64(size)
	n := 0
	for v >= 1024 && n < len(sizeLabels)-1 {
		v /= 1024
		n++
	}
	if n == 0 {
		return fmt.Sprintf("%d B", size)
	}
	return fmt.Sprintf("%.2f %s", v, sizeLabels[n])
}

// FileSize returns the human-readable size of a file, or "N/A".
func FileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "N/A"
	}
	return HumanSize(info.Size())
}

// FolderSize sums all file sizes under root recursively. Unreadable entries
// are skipped.
func FolderSize(root string) int64 {
	var total int64
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// WithinRoot reports whether path stays inside root after cleaning. Guards
// every user-supplied file path against traversal.
func WithinRoot(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	if absPath == absRoot {
		return true
	}
	return strings.HasPrefix(absPath, absRoot+string(filepath.Separator))
}
