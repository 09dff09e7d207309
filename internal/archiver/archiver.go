package archiver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hookdeck/railpipe/internal/livestore"
	"github.com/hookdeck/railpipe/internal/resourcelock"
	"github.com/hookdeck/railpipe/internal/worker"
	"go.uber.org/zap"
)

const (
	// TimestampLayout is inserted between base name and extension of
	// every archived file.
	TimestampLayout = "2006-01-02-15-04-05"

	// DirName is the archive directory inside the live directory.
	DirName = "archive"
)

// Result describes one rotation.
type Result struct {
	Archived []string
	// Skipped holds files left in the live directory, usually because
	// their archive name was already taken.
	Skipped []string
}

// Rotator is the worker.Task that moves completed store files from the live
// directory into the archive. The first tick after construction never
// rotates.
type Rotator struct {
	liveDir     string
	archiveDir  string
	liveLock    *resourcelock.Lock
	archiveLock *resourcelock.Lock
	logger      worker.Logger
	now         func() time.Time

	// owned by the worker goroutine
	firstRun bool

	mu   sync.Mutex
	last Result
}

var _ worker.Task = (*Rotator)(nil)

type Option func(*Rotator)

// WithClock overrides the time used to stamp archived files.
func WithClock(now func() time.Time) Option {
	return func(r *Rotator) {
		r.now = now
	}
}

func New(liveDir string, liveLock, archiveLock *resourcelock.Lock, logger worker.Logger, opts ...Option) *Rotator {
	r := &Rotator{
		liveDir:     liveDir,
		archiveDir:  filepath.Join(liveDir, DirName),
		liveLock:    liveLock,
		archiveLock: archiveLock,
		logger:      logger,
		now:         time.Now,
		firstRun:    true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Rotator) ArchiveDir() string {
	return r.archiveDir
}

func (r *Rotator) Setup(ctx context.Context) error {
	r.logger.Debug("setting up archiver", zap.String("archive_dir", r.archiveDir))
	if err := r.liveLock.Do(func() error {
		return livestore.EnsureDir(r.liveDir)
	}); err != nil {
		return err
	}
	return r.archiveLock.Do(func() error {
		return livestore.EnsureDir(r.archiveDir)
	})
}

func (r *Rotator) Loop(ctx context.Context) error {
	if r.firstRun {
		r.firstRun = false
		r.logger.Info("first archive run since start, skipping")
		return nil
	}

	r.logger.Debug("starting archival of live files")
	result, err := r.Rotate()
	if err != nil {
		return err
	}
	r.logger.Info("archived live files",
		zap.Int("archived", len(result.Archived)),
		zap.Int("skipped", len(result.Skipped)))
	return nil
}

func (r *Rotator) Teardown(ctx context.Context) error {
	return nil
}

// LastResult returns the result of the most recent rotation.
func (r *Rotator) LastResult() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Rotate moves every store file from the live directory into the archive
// while holding both locks. Files whose archive name already exists are
// left in place. An error is returned only if the live directory cannot be
// listed.
func (r *Rotator) Rotate() (Result, error) {
	result := Result{
		Archived: []string{},
		Skipped:  []string{},
	}

	err := resourcelock.DoBoth(r.liveLock, r.archiveLock, func() error {
		entries, err := os.ReadDir(r.liveDir)
		if err != nil {
			return fmt.Errorf("list %s: %w", r.liveDir, err)
		}

		stamp := r.now()
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, livestore.Ext) {
				continue
			}
			if r.archiveFile(name, stamp) {
				result.Archived = append(result.Archived, name)
			} else {
				result.Skipped = append(result.Skipped, name)
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	r.mu.Lock()
	r.last = result
	r.mu.Unlock()
	return result, nil
}

func (r *Rotator) archiveFile(name string, stamp time.Time) bool {
	src := filepath.Join(r.liveDir, name)
	dst := filepath.Join(r.archiveDir, ArchiveName(name, stamp))

	r.logger.Debug("archiving file", zap.String("from", src), zap.String("to", dst))

	if _, err := os.Lstat(dst); err == nil {
		r.logger.Warn("archive file already exists, skipping", zap.String("path", dst))
		return false
	} else if !errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("cannot check archive file, skipping", zap.String("path", dst), zap.Error(err))
		return false
	}

	if err := os.Rename(src, dst); err != nil {
		r.logger.Warn("failed to archive file", zap.String("path", src), zap.Error(err))
		return false
	}
	return true
}

// ArchiveName inserts t between the base name and extension of name.
func ArchiveName(name string, t time.Time) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s-%s%s", base, t.Format(TimestampLayout), ext)
}
