package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openbmp/mrt2bmp/internal/mirror"
)

// StagedFile is one fully written MRT file in the master directory.
type StagedFile struct {
	Path      string
	Name      string
	Kind      mirror.Kind
	Timestamp time.Time
}

// partialSuffix marks in-progress downloads; processors never see them.
const partialSuffix = ".partial"

// BadSuffix marks files retired after a decode failure.
const BadSuffix = ".bad"

// ScanDir lists the staged MRT files in dir sorted by embedded timestamp.
// Partial downloads and unrecognized names are ignored. A missing
// directory is an empty result, not an error.
func ScanDir(dir string) ([]StagedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	var files []StagedFile
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), partialSuffix) {
			continue
		}
		kind, ts, _, ok := mirror.ParseFilename(e.Name())
		if !ok {
			continue
		}
		files = append(files, StagedFile{
			Path:      filepath.Join(dir, e.Name()),
			Name:      e.Name(),
			Kind:      kind,
			Timestamp: ts,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Timestamp.Before(files[j].Timestamp) })
	return files, nil
}

// newestTimestamp returns the latest embedded timestamp found across the
// given directories, staged or already processed. Files retired with the
// bad suffix still count: they were consumed.
func newestTimestamp(dirs ...string) (time.Time, error) {
	var newest time.Time
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return time.Time{}, fmt.Errorf("scanning %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := strings.TrimSuffix(e.Name(), BadSuffix)
			if strings.HasSuffix(name, partialSuffix) {
				continue
			}
			if _, ts, _, ok := mirror.ParseFilename(name); ok && ts.After(newest) {
				newest = ts
			}
		}
	}
	return newest, nil
}

// MoveToProcessed retires a consumed file into the processed directory.
// With bad true the name gains the bad suffix, keeping malformed files
// apart from cleanly replayed ones.
func MoveToProcessed(f StagedFile, processedDir string, bad bool) error {
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", processedDir, err)
	}
	name := f.Name
	if bad {
		name += BadSuffix
	}
	dst := filepath.Join(processedDir, name)
	if err := os.Rename(f.Path, dst); err != nil {
		return fmt.Errorf("retiring %s: %w", f.Name, err)
	}
	return nil
}
