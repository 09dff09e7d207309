// Package exporter uploads archived store files to object storage.
//
// The bucket is opened from a gocloud.dev URL, so any of the compiled-in
// drivers can be used: s3://, azblob://, file:// and mem://. A file is moved
// into the exported subdirectory of the archive once its upload succeeded;
// files that fail to upload stay put and are retried on the next tick.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hookdeck/railpipe/internal/livestore"
	"github.com/hookdeck/railpipe/internal/resourcelock"
	"github.com/hookdeck/railpipe/internal/worker"
	"go.uber.org/zap"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// DirName is the directory inside the archive holding exported files.
const DirName = "exported"

// DefaultUploadTimeout bounds a single file upload.
const DefaultUploadTimeout = 5 * time.Minute

// Result describes one export tick.
type Result struct {
	Uploaded []string
	Failed   []string
}

type Exporter struct {
	bucketURL   string
	prefix      string
	archiveDir  string
	exportedDir string
	archiveLock *resourcelock.Lock
	logger      worker.Logger

	uploadTimeout time.Duration

	bucket     *blob.Bucket
	ownsBucket bool

	mu   sync.Mutex
	last Result
}

var _ worker.Task = (*Exporter)(nil)

type Option func(*Exporter)

// WithBucket uses an already opened bucket instead of opening the bucket
// URL. The caller keeps ownership of the bucket.
func WithBucket(bucket *blob.Bucket) Option {
	return func(e *Exporter) {
		e.bucket = bucket
	}
}

// WithPrefix sets the key prefix uploaded objects are written under.
func WithPrefix(prefix string) Option {
	return func(e *Exporter) {
		e.prefix = strings.Trim(prefix, "/")
	}
}

// WithUploadTimeout bounds each file upload. Non-positive values keep the
// default.
func WithUploadTimeout(d time.Duration) Option {
	return func(e *Exporter) {
		if d > 0 {
			e.uploadTimeout = d
		}
	}
}

func New(bucketURL, archiveDir string, archiveLock *resourcelock.Lock, logger worker.Logger, opts ...Option) *Exporter {
	e := &Exporter{
		bucketURL:   bucketURL,
		prefix:      "raw",
		archiveDir:  archiveDir,
		exportedDir: filepath.Join(archiveDir, DirName),
		archiveLock: archiveLock,
		logger:      logger,

		uploadTimeout: DefaultUploadTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exporter) Setup(ctx context.Context) error {
	if e.bucket == nil {
		bucket, err := blob.OpenBucket(ctx, e.bucketURL)
		if err != nil {
			return fmt.Errorf("open bucket: %w", err)
		}
		e.bucket = bucket
		e.ownsBucket = true
	}

	return e.archiveLock.Do(func() error {
		return livestore.EnsureDir(e.exportedDir)
	})
}

func (e *Exporter) Loop(ctx context.Context) error {
	result, err := e.Export(ctx)
	if err != nil {
		return err
	}
	if len(result.Failed) > 0 {
		e.logger.Warn("failed to export archive files", zap.Strings("files", result.Failed))
	}
	e.logger.Info("exported archive files", zap.Int("uploaded", len(result.Uploaded)))
	return nil
}

func (e *Exporter) Teardown(ctx context.Context) error {
	if e.bucket == nil || !e.ownsBucket {
		return nil
	}
	err := e.bucket.Close()
	e.bucket = nil
	return err
}

// LastResult returns the result of the most recent export.
func (e *Exporter) LastResult() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Export uploads every archived store file. The archive lock is held for
// the listing and for each move into the exported directory, never for an
// upload. Only the rotator adds files to the archive and only the exporter
// removes them, so a listed file stays in place while it is uploaded.
func (e *Exporter) Export(ctx context.Context) (Result, error) {
	result := Result{
		Uploaded: []string{},
		Failed:   []string{},
	}

	var names []string
	if err := e.archiveLock.Do(func() error {
		entries, err := os.ReadDir(e.archiveDir)
		if err != nil {
			return fmt.Errorf("list %s: %w", e.archiveDir, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), livestore.Ext) {
				names = append(names, entry.Name())
			}
		}
		return nil
	}); err != nil {
		return result, err
	}

	for _, name := range names {
		if err := e.exportFile(ctx, name); err != nil {
			e.logger.Error("archive export failed", zap.String("file", name), zap.Error(err))
			result.Failed = append(result.Failed, name)
			continue
		}
		result.Uploaded = append(result.Uploaded, name)
	}

	e.mu.Lock()
	e.last = result
	e.mu.Unlock()
	return result, nil
}

func (e *Exporter) exportFile(ctx context.Context, name string) error {
	src := filepath.Join(e.archiveDir, name)
	key, err := e.upload(ctx, src, name)
	if err != nil {
		return err
	}

	return e.archiveLock.Do(func() error {
		dst, err := freeName(e.exportedDir, name)
		if err != nil {
			return err
		}
		if filepath.Base(dst) != name {
			e.logger.Warn("exported file already exists, keeping both",
				zap.String("file", name),
				zap.String("moved_to", filepath.Base(dst)))
		}
		if err := os.Rename(src, dst); err != nil {
			return err
		}
		e.logger.Debug("exported archive file", zap.String("file", name), zap.String("key", key))
		return nil
	})
}

func (e *Exporter) upload(ctx context.Context, src, name string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, e.uploadTimeout)
	defer cancel()

	key := ObjectKey(e.prefix, name, info.ModTime())
	if err := e.bucket.Upload(ctx, key, f, &blob.WriterOptions{
		ContentType: "text/csv",
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// freeName returns a path in dir for name that does not exist yet, adding
// a numeric suffix before the extension when name is taken.
func freeName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		dst := filepath.Join(dir, candidate)
		if _, err := os.Lstat(dst); errors.Is(err, fs.ErrNotExist) {
			return dst, nil
		} else if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
}

// ObjectKey returns the key an archived file is uploaded to:
// <prefix>/<YYYY>/<MM>/<DD>/<name>, dated by t in UTC.
func ObjectKey(prefix, name string, t time.Time) string {
	return path.Join(prefix, t.UTC().Format("2006/01/02"), name)
}
