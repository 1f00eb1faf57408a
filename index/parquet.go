package index

import (
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// ExportParquet writes the export view of sums as a Snappy-compressed
// Parquet file, one row per dataset.
func ExportParquet(w io.Writer, sums []*Summary) error {
	pw := parquet.NewGenericWriter[SummaryExport](w, parquet.Compression(&parquet.Snappy))
	if _, err := pw.Write(exportAll(sums)); err != nil {
		_ = pw.Close()
		return fmt.Errorf("index: write parquet: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("index: close parquet: %w", err)
	}
	return nil
}

// ReadParquet reads summaries written by ExportParquet.
func ReadParquet(r io.ReaderAt, size int64) ([]*Summary, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("index: open parquet: %w", err)
	}

	pr := parquet.NewGenericReader[SummaryExport](file)
	defer func() { _ = pr.Close() }()

	exports := make([]SummaryExport, 0, pr.NumRows())
	buf := make([]SummaryExport, 100)
	for {
		n, err := pr.Read(buf)
		exports = append(exports, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("index: read parquet: %w", err)
		}
	}
	return importAll(exports), nil
}
