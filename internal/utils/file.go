package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// rasterExts are the input formats the batch pipeline accepts.
var rasterExts = []string{"png", "jpg", "jpeg", "tif", "tiff", "bmp"}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// FileExt returns the lowercase file extension without the dot.
func FileExt(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsRasterFile reports whether a file has a supported raster extension.
func IsRasterFile(filename string) bool {
	ext := FileExt(filename)
	for _, e := range rasterExts {
		if ext == e {
			return true
		}
	}
	return false
}

// ListRasterFiles lists the raster files directly inside dir, sorted by
// name. Subdirectories are not descended into: world files and outputs
// live next to their rasters.
func ListRasterFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan folder: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsRasterFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// StripExt returns the path without its extension.
func StripExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// NextFreePath returns dir/<base><ext> if it does not exist yet, otherwise
// the first dir/<base>_<n><ext> that is free. Repeated batch runs over the
// same folder therefore never overwrite a previous run's output.
func NextFreePath(dir, base, ext string) string {
	candidate := filepath.Join(dir, base+ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, counter, ext))
	}
}

// FileExists checks if a file exists and is not a directory.
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
