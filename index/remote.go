package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nmrfx/fidio/fid"
	"github.com/nmrfx/fidio/internal/metrics"
)

// sidecarKeys are the archive keys probed for the index, in order.
var sidecarKeys = []string{SidecarFile, SidecarFile + ".zst", SidecarFile + ".gz", SidecarFile + ".lz4"}

// Remote mirrors datasets from a remote archive into a local cache
// directory. The archive holds dataset files under the summary paths and
// an index sidecar at its root; any file may be stored compressed with a
// .zst, .gz or .lz4 suffix.
type Remote struct {
	store   fid.Store
	logger  *zap.Logger
	limiter *rate.Limiter
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithRemoteLogger sets the logger for transfer failures.
func WithRemoteLogger(l *zap.Logger) RemoteOption {
	return func(r *Remote) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithFetchRate limits object downloads to perSecond. Zero or negative
// means unlimited.
func WithFetchRate(perSecond float64) RemoteOption {
	return func(r *Remote) {
		if perSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// NewRemote returns a Remote reading from store.
func NewRemote(store fid.Store, opts ...RemoteOption) *Remote {
	r := &Remote{
		store:   store,
		logger:  zap.NewNop(),
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadIndex reads the archive's index sidecar. Summaries come back with
// Present unset; use SyncPresence against a local cache.
func (r *Remote) LoadIndex(ctx context.Context) ([]*Summary, error) {
	for _, name := range sidecarKeys {
		sums, err := r.loadIndex(ctx, name)
		if errors.Is(err, fid.ErrNotFound) {
			continue
		}
		return sums, err
	}
	return nil, nil
}

func (r *Remote) loadIndex(ctx context.Context, name string) ([]*Summary, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	rc, err := r.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, fid.ErrNotFound) {
			return nil, err
		}
		r.logger.Warn("remote index fetch failed", zap.String("key", name), zap.Error(err))
		return nil, &fid.RemoteTransferError{Key: name, Err: err}
	}
	defer func() { _ = rc.Close() }()

	comp, _ := fid.CompressorFor(name)
	dr, err := comp.Decompress(rc)
	if err != nil {
		return nil, &fid.RemoteTransferError{Key: name, Err: err}
	}
	defer func() { _ = dr.Close() }()

	sums, err := decodeIndex(dr)
	if err != nil {
		return nil, &fid.RemoteTransferError{Key: name, Err: err}
	}
	return sums, nil
}

// Fetch downloads the dataset of s into <localRoot>/<s.Path>.
//
// Objects are staged in a temporary sibling directory and renamed into
// place once all of them arrived, so a failed or canceled fetch leaves
// nothing behind. An already present dataset is not fetched again.
func (r *Remote) Fetch(ctx context.Context, s *Summary, localRoot string) error {
	dest := filepath.Join(localRoot, filepath.FromSlash(s.Path))
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		s.Present = true
		s.Processed = findProcessed(dest, s.Title)
		return nil
	}

	timer := metrics.NewTimer()
	n, err := r.fetch(ctx, s.Path, dest)
	if err != nil {
		metrics.RecordFetch("error", n, timer.Duration())
		r.logger.Warn("remote fetch failed",
			zap.String("path", s.Path),
			zap.Int64("bytes", n),
			zap.Error(err))
		return err
	}
	metrics.RecordFetch("ok", n, timer.Duration())
	r.logger.Info("fetched dataset", zap.String("path", s.Path), zap.Int64("bytes", n))

	s.Present = true
	s.selected = 0
	s.Processed = findProcessed(dest, s.Title)
	return nil
}

func (r *Remote) fetch(ctx context.Context, prefix, dest string) (int64, error) {
	keys, err := r.store.List(ctx, prefix+"/")
	if err != nil {
		return 0, &fid.RemoteTransferError{Key: prefix, Err: err}
	}
	if len(keys) == 0 {
		return 0, &fid.RemoteTransferError{Key: prefix, Err: fid.ErrNotFound}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("index: create %s: %w", filepath.Dir(dest), err)
	}
	stage, err := os.MkdirTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return 0, fmt.Errorf("index: create staging dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(stage)
		}
	}()

	var total int64
	for _, key := range keys {
		n, err := r.fetchObject(ctx, prefix, key, stage)
		total += n
		if err != nil {
			return total, &fid.RemoteTransferError{Key: key, Err: err}
		}
	}

	if err := os.Rename(stage, dest); err != nil {
		return total, &fid.RemoteTransferError{Key: prefix, Err: err}
	}
	committed = true
	return total, nil
}

func (r *Remote) fetchObject(ctx context.Context, prefix, key, stage string) (int64, error) {
	comp, rel := fid.CompressorFor(strings.TrimPrefix(key, prefix+"/"))
	rel = path.Clean(rel)
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return 0, fmt.Errorf("%w: %s", fid.ErrInvalidPath, key)
	}
	target := filepath.Join(stage, filepath.FromSlash(rel))

	if err := r.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	rc, err := r.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	dr, err := comp.Decompress(rc)
	if err != nil {
		return 0, err
	}
	defer func() { _ = dr.Close() }()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, dr)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// SyncPresence marks which summaries exist under the local cache root and
// refreshes their processed files.
func (r *Remote) SyncPresence(localRoot string, sums []*Summary) {
	Refresh(localRoot, sums)
}

// -----------------------------------------------------------------------------
// Publishing
// -----------------------------------------------------------------------------

// Publish uploads the dataset of s from <localRoot>/<s.Path> to the
// archive, compressing every file with comp. Objects already in the
// archive are kept. It returns the number of objects written.
func (r *Remote) Publish(ctx context.Context, s *Summary, localRoot string, comp fid.Compressor) (int, error) {
	dir := filepath.Join(localRoot, filepath.FromSlash(s.Path))
	var written int
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		// Lock companions and staging files stay local.
		if !d.Type().IsRegular() || fid.IsScratch(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := s.Path + "/" + filepath.ToSlash(rel) + comp.Extension()
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		switch err := r.putFile(ctx, key, p, comp); {
		case errors.Is(err, fid.ErrPathExists):
			r.logger.Debug("archive object exists", zap.String("key", key))
		case err != nil:
			return &fid.RemoteTransferError{Key: key, Err: err}
		default:
			written++
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("remote publish failed",
			zap.String("path", s.Path),
			zap.Int("objects", written),
			zap.Error(err))
		return written, err
	}
	r.logger.Info("published dataset",
		zap.String("path", s.Path),
		zap.Int("objects", written),
		zap.String("compression", comp.Name()))
	return written, nil
}

// putFile streams the file at path through comp into the store.
func (r *Remote) putFile(ctx context.Context, key, path string, comp fid.Compressor) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		cw, err := comp.Compress(pw)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(cw, f); err != nil {
			_ = cw.Close()
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(cw.Close())
	}()

	err = r.store.Put(ctx, key, pr)
	_ = pr.CloseWithError(io.ErrClosedPipe)
	<-done
	return err
}

// PublishIndex writes sums as the archive's index sidecar, compressed
// with comp, and removes sidecars stored under other compressions. The
// archive store must implement fid.Replacer.
func (r *Remote) PublishIndex(ctx context.Context, sums []*Summary, comp fid.Compressor) error {
	rep, ok := r.store.(fid.Replacer)
	if !ok {
		return fmt.Errorf("index: archive store cannot replace %s", SidecarFile)
	}
	data, err := encodeIndex(sums)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	cw, err := comp.Compress(&buf)
	if err != nil {
		return err
	}
	if _, err := cw.Write(data); err != nil {
		_ = cw.Close()
		return err
	}
	if err := cw.Close(); err != nil {
		return err
	}

	key := SidecarFile + comp.Extension()
	if err := rep.Replace(ctx, key, &buf); err != nil {
		return &fid.RemoteTransferError{Key: key, Err: err}
	}
	for _, other := range sidecarKeys {
		if other == key {
			continue
		}
		if err := r.store.Delete(ctx, other); err != nil {
			return &fid.RemoteTransferError{Key: other, Err: err}
		}
	}
	r.logger.Info("published index", zap.String("key", key), zap.Int("datasets", len(sums)))
	return nil
}
