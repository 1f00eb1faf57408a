// Package index scans directory trees for vendor NMR datasets and keeps a
// JSON summary of them next to the data.
package index

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/nmrfx/fidio/fid"
	"github.com/nmrfx/fidio/internal/metrics"
)

// candidateFiles are the file names that trigger format detection during
// a walk. Every other file is ignored.
var candidateFiles = map[string]bool{
	"data.dat": true,
	"acqus":    true,
	"procpar":  true,
}

// skipDirs hold processed byproducts; they are associated with their raw
// dataset rather than scanned.
var skipDirs = map[string]bool{
	"Proc":  true,
	"pdata": true,
}

// Indexer builds dataset summaries for directory trees.
//
// Concurrent scans of the same root share one walk. An Indexer is safe
// for concurrent use.
type Indexer struct {
	logger      *zap.Logger
	concurrency int
	openOpts    []fid.Option
	flights     singleflight.Group
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger for skipped datasets and scan progress.
// Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

// WithConcurrency bounds the number of datasets opened at once.
// Default: 4.
func WithConcurrency(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.concurrency = n
		}
	}
}

// WithOpenOptions passes extra options to every fid.Open.
func WithOpenOptions(opts ...fid.Option) Option {
	return func(ix *Indexer) {
		ix.openOpts = append(ix.openOpts, opts...)
	}
}

// New creates an Indexer.
func New(opts ...Option) *Indexer {
	ix := &Indexer{
		logger:      zap.NewNop(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// -----------------------------------------------------------------------------
// Scanning
// -----------------------------------------------------------------------------

// Scan walks root once and returns a summary of every raw dataset that
// opens. Datasets that fail to open are logged and omitted. Results are
// ordered by path.
func (ix *Indexer) Scan(ctx context.Context, root string) ([]*Summary, error) {
	key, err := filepath.Abs(root)
	if err != nil {
		key = filepath.Clean(root)
	}
	v, err, _ := ix.flights.Do(key, func() (any, error) {
		return ix.scan(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return cloneSummaries(v.([]*Summary)), nil
}

// ScanAsync runs Scan in a new goroutine and delivers the result to cb
// once the scan completes.
func (ix *Indexer) ScanAsync(ctx context.Context, root string, cb func([]*Summary, error)) {
	go func() {
		cb(ix.Scan(ctx, root))
	}()
}

// ScanAndSave scans root and writes the sidecar.
func (ix *Indexer) ScanAndSave(ctx context.Context, root string) ([]*Summary, error) {
	sums, err := ix.Scan(ctx, root)
	if err != nil {
		return nil, err
	}
	if err := Save(root, sums); err != nil {
		ix.logger.Warn("index save failed", zap.String("path", root), zap.Error(err))
		return nil, err
	}
	return sums, nil
}

// LoadOrScan loads the sidecar of root, refreshing runtime state from the
// filesystem, and falls back to ScanAndSave when there is none.
func (ix *Indexer) LoadOrScan(ctx context.Context, root string) ([]*Summary, error) {
	sums, err := Load(root)
	if err != nil {
		ix.logger.Warn("unreadable index, rescanning", zap.String("path", root), zap.Error(err))
	} else if len(sums) > 0 {
		Refresh(root, sums)
		return sums, nil
	}
	return ix.ScanAndSave(ctx, root)
}

func (ix *Indexer) scan(ctx context.Context, root string) ([]*Summary, error) {
	timer := metrics.NewTimer()

	dets, err := ix.walk(ctx, root)
	if err != nil {
		metrics.RecordScan("error", nil, timer.Duration())
		return nil, err
	}

	sem := semaphore.NewWeighted(int64(ix.concurrency))
	results := make([]*Summary, len(dets))
	var wg sync.WaitGroup
	for i, det := range dets {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = ix.summarize(root, det)
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		metrics.RecordScan("canceled", nil, timer.Duration())
		return nil, err
	}

	counts := make(map[string]int)
	sums := make([]*Summary, 0, len(results))
	for _, s := range results {
		if s != nil {
			sums = append(sums, s)
			counts[s.Vendor]++
		}
	}
	slices.SortFunc(sums, func(a, b *Summary) int { return strings.Compare(a.Path, b.Path) })

	metrics.RecordScan("ok", counts, timer.Duration())
	ix.logger.Info("scan complete",
		zap.String("path", root),
		zap.Int("candidates", len(dets)),
		zap.Int("datasets", len(sums)),
		zap.Duration("duration", timer.Duration()))
	return sums, nil
}

// walk collects distinct raw-dataset detections under root.
func (ix *Indexer) walk(ctx context.Context, root string) ([]fid.Detection, error) {
	var dets []fid.Detection
	seen := make(map[string]bool)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			ix.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !candidateFiles[d.Name()] || !d.Type().IsRegular() {
			return nil
		}

		det, err := fid.Detect(path)
		if err != nil {
			if !errors.Is(err, fid.ErrFormatNotRecognized) {
				ix.logger.Warn("detection failed", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if det.Kind.Processed() || seen[det.Path] {
			return nil
		}
		seen[det.Path] = true
		dets = append(dets, det)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dets, nil
}

// summarize opens one detection. It returns nil when the dataset cannot
// be opened.
func (ix *Indexer) summarize(root string, det fid.Detection) *Summary {
	data, err := fid.OpenDetected(det, append([]fid.Option{fid.WithLogger(ix.logger)}, ix.openOpts...)...)
	if err != nil {
		ix.logger.Warn("skipping dataset",
			zap.String("path", det.Path),
			zap.Stringer("format", det.Kind),
			zap.Error(err))
		metrics.RecordOpenFailure(det.Kind.Vendor(), failureReason(err))
		return nil
	}
	defer func() { _ = data.Close() }()

	rel, err := filepath.Rel(root, det.Path)
	if err != nil {
		rel = det.Path
	}
	rel = filepath.ToSlash(rel)

	g := data.Geometry()
	meta := data.Metadata()
	nuclei := make([]string, g.NDim())
	for i := range nuclei {
		nuclei[i] = g.Nucleus(i)
	}

	s := &Summary{
		Path:        rel,
		Type:        det.Kind.String(),
		User:        meta.User,
		Sequence:    meta.Sequence,
		SF:          g.SF(0),
		Time:        meta.Time,
		Nucleus:     g.Nucleus(0),
		Solvent:     meta.Solvent,
		Temperature: meta.Temperature,
		Position:    meta.Position,
		NDim:        g.NDim(),
		NVectors:    data.NVectors(),
		Title:       meta.Title,
		Vendor:      det.Kind.Vendor(),
		Sample:      meta.Sample,
		Isotopes:    strings.Join(nuclei, ","),
		Present:     true,
		Processed:   findProcessed(det.Path, meta.Title),
	}
	s.HashKey = hashKey(s.Vendor, s.Path, s.Time, s.Sequence)
	return s
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, fid.ErrHeaderParse):
		return "header"
	case errors.Is(err, fid.ErrReadNotSupported):
		return "unsupported"
	case errors.Is(err, fs.ErrNotExist):
		return "missing"
	default:
		return "io"
	}
}

// Refresh recomputes Present and Processed of every summary from the
// tree at root.
func Refresh(root string, sums []*Summary) {
	for _, s := range sums {
		dir := filepath.Join(root, filepath.FromSlash(s.Path))
		det, err := fid.Detect(dir)
		s.Present = err == nil && det.Path == filepath.Clean(absOr(dir))
		s.Processed = nil
		s.selected = 0
		if s.Present {
			s.Processed = findProcessed(det.Path, s.Title)
		}
	}
}

func absOr(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// cloneSummaries copies results shared between concurrent callers.
func cloneSummaries(in []*Summary) []*Summary {
	out := make([]*Summary, len(in))
	for i, s := range in {
		c := *s
		c.Processed = slices.Clone(s.Processed)
		out[i] = &c
	}
	return out
}
