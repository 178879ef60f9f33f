package fsutil

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteZip streams the given files into a zip archive on w. Paths are stored
// under their base name; duplicate base names get a numeric suffix so no
// entry silently overwrites another.
func WriteZip(w io.Writer, paths []string) error {
	zw := zip.NewWriter(w)
	seen := map[string]int{}

	for _, path := range paths {
		name := filepath.Base(path)
		if n := seen[name]; n > 0 {
			ext := filepath.Ext(name)
			name = fmt.Sprintf("%s_%d%s", name[:len(name)-len(ext)], n, ext)
		}
		seen[filepath.Base(path)]++

		if err := addZipEntry(zw, path, name); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addZipEntry(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Store

	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}
