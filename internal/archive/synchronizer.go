// Package archive keeps a router's master directory populated with MRT
// files from a remote mirror, in strict chronological order, and retires
// consumed files into the processed directory.
package archive

import (
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/openbmp/mrt2bmp/internal/metrics"
	"github.com/openbmp/mrt2bmp/internal/mirror"
	"go.uber.org/zap"
)

// ErrContinuity reports an update archive whose timestamp gap from its
// predecessor exceeds the configured limit.
var ErrContinuity = errors.New("archive: timestamp continuity violated")

// Synchronizer polls one mirror for one router and stages new files into
// the master directory. A file becomes visible to processors only through
// the final rename, under the shared lock.
type Synchronizer struct {
	mirror       mirror.Mirror
	router       mirror.Router
	masterDir    string
	processedDir string

	pollInterval      time.Duration
	intervalLimit     time.Duration
	ignoreAbnormality bool

	mu     *sync.Mutex
	logger *zap.Logger

	// newestStaged is the embedded timestamp of the latest file ever
	// staged (or already processed); only strictly newer files are added.
	newestStaged time.Time
}

func NewSynchronizer(m mirror.Mirror, router mirror.Router, masterDir, processedDir string,
	pollInterval, intervalLimit time.Duration, ignoreAbnormality bool,
	mu *sync.Mutex, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		mirror:            m,
		router:            router,
		masterDir:         masterDir,
		processedDir:      processedDir,
		pollInterval:      pollInterval,
		intervalLimit:     intervalLimit,
		ignoreAbnormality: ignoreAbnormality,
		mu:                mu,
		logger:            logger,
	}
}

// Run polls the mirror until the context is cancelled. Transport failures
// are logged and retried at the next poll, indefinitely.
func (s *Synchronizer) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.masterDir, 0o755); err != nil {
		return fmt.Errorf("creating master directory: %w", err)
	}

	newest, err := newestTimestamp(s.masterDir, s.processedDir)
	if err != nil {
		return err
	}
	s.newestStaged = newest

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if err := s.pollOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("mirror poll failed, will retry",
				zap.String("mirror", s.mirror.Name()),
				zap.String("router", s.router.Name),
				zap.Error(err),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollOnce lists the previous and current month, stages every file newer
// than the newest already staged, and stops at the first continuity
// violation unless the abnormality flag permits it.
func (s *Synchronizer) pollOnce(ctx context.Context) error {
	now := time.Now().UTC()
	months := []time.Time{now.AddDate(0, -1, 0), now}

	var candidates []mirror.RemoteFile
	for _, month := range months {
		files, err := s.mirror.ListFiles(ctx, s.router, month)
		if err != nil {
			metrics.FetchErrorsTotal.WithLabelValues("list").Inc()
			return err
		}
		candidates = append(candidates, files...)
	}

	// Nothing staged yet: start from the newest RIB so the replay opens
	// with a full table, then everything after it.
	if s.newestStaged.IsZero() {
		lastRIB := -1
		for i, f := range candidates {
			if f.Kind == mirror.KindRIB && !f.Timestamp.After(now) {
				lastRIB = i
			}
		}
		if lastRIB < 0 {
			s.logger.Info("no RIB published yet, waiting",
				zap.String("router", s.router.Name))
			return nil
		}
		candidates = candidates[lastRIB:]
	}

	prevUpdates := s.newestUpdates()

	for _, f := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !f.Timestamp.After(s.newestStaged) {
			continue
		}

		if f.Kind == mirror.KindUpdates && !prevUpdates.IsZero() {
			gap := f.Timestamp.Sub(prevUpdates)
			if gap > s.intervalLimit {
				metrics.ContinuityViolationsTotal.Inc()
				if !s.ignoreAbnormality {
					s.logger.Error("abnormal timestamp gap, withholding file",
						zap.String("file", f.Name),
						zap.Duration("gap", gap),
						zap.Duration("limit", s.intervalLimit),
					)
					return fmt.Errorf("%w: %s is %s after %s", ErrContinuity,
						f.Name, gap, prevUpdates.Format("20060102.1504"))
				}
				s.logger.Warn("abnormal timestamp gap, staging anyway",
					zap.String("file", f.Name),
					zap.Duration("gap", gap),
				)
			}
		}

		if err := s.stage(ctx, f); err != nil {
			return err
		}
		if f.Kind == mirror.KindUpdates {
			prevUpdates = f.Timestamp
		}
		s.newestStaged = f.Timestamp
	}

	return nil
}

// newestUpdates finds the latest updates-file timestamp already on disk,
// the reference point for the continuity check.
func (s *Synchronizer) newestUpdates() time.Time {
	var newest time.Time
	for _, dir := range []string{s.masterDir, s.processedDir} {
		files, err := ScanDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.Kind == mirror.KindUpdates && f.Timestamp.After(newest) {
				newest = f.Timestamp
			}
		}
	}
	return newest
}

// stage downloads one archive, decompresses it, and renames it into
// visibility. The download gets a single retry on transport error.
func (s *Synchronizer) stage(ctx context.Context, f mirror.RemoteFile) error {
	compressed := filepath.Join(s.masterDir, f.Name+".fetch"+partialSuffix)

	err := s.download(ctx, f, compressed)
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues("fetch").Inc()
		s.logger.Warn("download failed, retrying once",
			zap.String("file", f.Name), zap.Error(err))
		err = s.download(ctx, f, compressed)
	}
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues("fetch").Inc()
		os.Remove(compressed)
		return fmt.Errorf("downloading %s: %w", f.Name, err)
	}
	defer os.Remove(compressed)

	name := stagedName(f.Name)
	partial := filepath.Join(s.masterDir, name+partialSuffix)
	if err := decompress(compressed, partial, f.Compression); err != nil {
		os.Remove(partial)
		return fmt.Errorf("decompressing %s: %w", f.Name, err)
	}

	final := filepath.Join(s.masterDir, name)

	s.mu.Lock()
	err = os.Rename(partial, final)
	s.mu.Unlock()
	if err != nil {
		os.Remove(partial)
		return fmt.Errorf("staging %s: %w", name, err)
	}

	metrics.FilesStagedTotal.WithLabelValues(string(f.Kind)).Inc()
	s.logger.Info("staged archive",
		zap.String("file", name),
		zap.String("kind", string(f.Kind)),
		zap.Time("timestamp", f.Timestamp),
	)
	return nil
}

func (s *Synchronizer) download(ctx context.Context, f mirror.RemoteFile, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := s.mirror.Fetch(ctx, f, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// stagedName strips the compression suffix; staged files are plain MRT.
func stagedName(name string) string {
	for _, ext := range []string{".gz", ".bz2"} {
		if n, ok := trimSuffix(name, ext); ok {
			return n
		}
	}
	return name
}

func trimSuffix(s, suffix string) (string, bool) {
	if len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)], true
	}
	return s, false
}

func decompress(src, dst, compression string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	var r io.Reader
	switch compression {
	case "gz":
		gz, err := gzip.NewReader(in)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	case "bz2":
		r = bzip2.NewReader(in)
	default:
		r = in
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
