package fid

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/nmrfx/fidio/internal/metrics"
)

// Writer saves in-memory datasets as processed RS2D directories derived
// from an opened source dataset.
type Writer struct {
	src    *Data
	logger *zap.Logger
	scale  float64
	series bool
}

// NewWriter returns a writer for datasets processed from src. Only RS2D
// sources are writable; other kinds return ErrWriteNotSupported.
func NewWriter(src *Data, opts ...Option) (*Writer, error) {
	cfg, err := resolveWrite(opts)
	if err != nil {
		return nil, err
	}
	f, ok := lookup(src.kind)
	if !ok || f.openWriter == nil {
		return nil, fmt.Errorf("fid: %s: %w", src.kind, ErrWriteNotSupported)
	}
	return f.openWriter(src, cfg)
}

func newRS2DWriter(src *Data, cfg *writeConfig) (*Writer, error) {
	return &Writer{
		src:    src,
		logger: cfg.logger,
		scale:  floatOr(cfg.scale, 1.0),
		series: cfg.copySeries,
	}, nil
}

// Save writes ds to target, which must have the form <dataset>/Proc/<N>.
//
// The header is cloned from the source and updated with the sizes,
// frequencies and phases of ds before any samples are written. Samples
// go to data.dat as big-endian float32; for 3-D and 4-D datasets planes
// of the last dimension are stored in descending order. The source
// Serie.xml, if any, is copied unchanged.
func (w *Writer) Save(ds *Dataset, target string) error {
	if err := validateProcPath(target); err != nil {
		w.logger.Warn("rejected output path", zap.String("path", target), zap.Error(err))
		return err
	}

	h := w.src.header.Clone()
	w.updateHeader(h, ds)

	n, err := w.writeSamples(ds, filepath.Join(target, dataFile))
	if err != nil {
		return err
	}
	metrics.RecordWrite(FormatRS2DProc.Vendor(), n)

	if err := h.SaveAs(filepath.Join(target, headerFile)); err != nil {
		return fmt.Errorf("fid: save header: %w", err)
	}

	if w.series {
		if err := copySeries(filepath.Join(w.src.dir, seriesFile), filepath.Join(target, seriesFile)); err != nil {
			return err
		}
	}

	w.logger.Info("wrote processed dataset",
		zap.String("path", target),
		zap.Int("dims", ds.NDim()),
		zap.Int("rows", ds.NRows()),
		zap.Int64("bytes", n))
	return nil
}

// updateHeader rewrites the dimension parameters of h so that opening
// the result as processed RS2D reproduces the descriptors of ds.
func (w *Writer) updateHeader(h HeaderStore, ds *Dataset) {
	srs := make([]string, ds.NDim())
	ph0s := make([]string, ds.NDim())
	ph1s := make([]string, ds.NDim())

	for dim := range MaxDims {
		key := fmt.Sprintf(rs2dMatrixDim, dim+1)
		if dim >= ds.NDim() {
			h.Set(key, "1")
			continue
		}
		d := ds.Dim(dim)
		h.Set(key, strconv.Itoa(d.Size*storedRows(dim, d)))

		offset, _ := h.Double(fmt.Sprintf(rs2dOffsetFreq, dim+1))
		h.Set(fmt.Sprintf(rs2dBaseFreq, dim+1), formatDouble(d.SF*1e6-offset))
		srs[dim] = formatDouble(d.Ref*(d.SF-offset/1e6) - offset)
		ph0s[dim] = formatDouble(d.Ph0)
		ph1s[dim] = formatDouble(d.Ph1)

		mode := ModeReal
		if d.Complex {
			mode = ModeComplex
		}
		if dim == 0 {
			h.Set(rs2dSpectralWidth, formatDouble(d.SW))
			h.Set(rs2dDataRepr, mode)
			if d.Nucleus != "" {
				h.Set(rs2dObserved, d.Nucleus)
			}
		} else {
			h.Set(fmt.Sprintf(rs2dSWIndirect, dim+1), formatDouble(d.SW))
			h.Set(fmt.Sprintf(rs2dAcqMode, dim+1), mode)
		}
		if d.Nucleus != "" {
			h.Set(fmt.Sprintf(rs2dNucleus, dim+1), d.Nucleus)
		}
	}
	h.Set(rs2dSR, srs...)
	h.Set(rs2dPhase0, ph0s...)
	h.Set(rs2dPhase1, ph1s...)
}

// storedRows returns the stored multiplier of a dimension size: indirect
// complex dimensions keep both phases as separate rows.
func storedRows(dim int, d DimInfo) int {
	if dim > 0 && d.Complex {
		return 2
	}
	return 1
}

// writeSamples streams every row of ds to path in file order.
func (w *Writer) writeSamples(ds *Dataset, path string) (int64, error) {
	codec := rs2dCodec
	layout := ds.layout(codec.width(), true)

	order := make([]int, layout.nRows())
	for i := range order {
		order[layout.uniformRow(layout.split(i))] = i
	}

	var written int64
	err := ReplaceFileFunc(path, func(out io.Writer) error {
		vals := make([]float64, layout.valuesPerRow)
		buf := make([]byte, layout.rowBytes)
		for _, i := range order {
			copy(vals, ds.Row(i))
			if w.scale != 1 {
				for k := range vals {
					vals[k] *= w.scale
				}
			}
			codec.encode(buf, vals)
			n, err := out.Write(buf)
			written += int64(n)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		w.logger.Warn("data write failed", zap.String("path", path), zap.Error(err))
		return 0, fmt.Errorf("fid: write %s: %w", path, err)
	}
	return written, nil
}

func copySeries(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("fid: open %s: %w", src, err)
	}
	defer closer(f)()

	if err := ReplaceFileFunc(dst, func(out io.Writer) error {
		_, err := io.Copy(out, f)
		return err
	}); err != nil {
		return fmt.Errorf("fid: copy %s: %w", seriesFile, err)
	}
	return nil
}
