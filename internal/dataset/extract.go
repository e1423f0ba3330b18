package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/ironsheep/galaxy-tools/internal/monitoring"
)

// extractedMarker is written once an archive has been fully unpacked.
const extractedMarker = ".extracted"

// Extract unpacks the image archive into extractDir and returns the directory
// holding the images: extractDir/subdir when the archive nests its images
// there, extractDir itself for a flat archive of <id>.jpg entries.
//
// Extraction happens at most once: if the marker file from a previous run is
// present, or subdir is non-empty and already exists, the archive is not
// read again and extracted is false.
func Extract(archivePath, extractDir, subdir string) (imagesDir string, extracted bool, err error) {
	if _, err := os.Stat(archivePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, notFound(archivePath, err)
		}
		return "", false, fmt.Errorf("failed to stat archive: %w", err)
	}

	if alreadyExtracted(extractDir, subdir) {
		monitoring.Debugf("archive already extracted in %s", extractDir)
		return imageRoot(extractDir, subdir), false, nil
	}

	if err := os.MkdirAll(extractDir, 0755); err != nil {
		return "", false, fmt.Errorf("failed to create extract directory: %w", err)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", false, fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := extractFile(f, extractDir); err != nil {
			return "", false, err
		}
	}

	if err := os.WriteFile(filepath.Join(extractDir, extractedMarker), nil, 0644); err != nil {
		return "", false, fmt.Errorf("failed to write extract marker: %w", err)
	}
	monitoring.Logf("Extracted %d archive entries into %s", len(zr.File), extractDir)
	return imageRoot(extractDir, subdir), true, nil
}

// imageRoot is extractDir/subdir if that directory exists, else extractDir.
func imageRoot(extractDir, subdir string) string {
	if subdir != "" {
		dir := filepath.Join(extractDir, subdir)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return extractDir
}

func alreadyExtracted(extractDir, subdir string) bool {
	if _, err := os.Stat(filepath.Join(extractDir, extractedMarker)); err == nil {
		return true
	}
	if subdir == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(extractDir, subdir))
	return err == nil && info.IsDir()
}

func extractFile(f *zip.File, dest string) error {
	target := filepath.Join(dest, f.Name)
	if !within(target, dest) {
		return fmt.Errorf("archive entry %q escapes extract directory", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// within reports whether path lies inside dir after cleaning.
func within(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
