package fid

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Archive objects may be stored compressed; the key suffix names the
// codec. Vendor data files are read uncompressed only.

// NewZstdCompressor returns the zstd codec, suffix ".zst".
func NewZstdCompressor() Compressor { return zstdCodec{} }

// NewGzipCompressor returns the gzip codec, suffix ".gz".
func NewGzipCompressor() Compressor { return gzipCodec{} }

// NewLZ4Compressor returns the lz4 frame codec, suffix ".lz4".
func NewLZ4Compressor() Compressor { return lz4Codec{} }

// NewNoOpCompressor returns a pass-through codec with no suffix.
func NewNoOpCompressor() Compressor { return noopCodec{} }

// compressors lists the codecs with a suffix, probed in order.
var compressors = []Compressor{zstdCodec{}, gzipCodec{}, lz4Codec{}}

// CompressorFor picks a compressor from the suffix of name and returns
// it with name stripped of that suffix. Unknown suffixes map to the noop
// compressor and leave name unchanged.
func CompressorFor(name string) (Compressor, string) {
	for _, c := range compressors {
		if stripped, ok := strings.CutSuffix(name, c.Extension()); ok {
			return c, stripped
		}
	}
	return noopCodec{}, name
}

// CompressorNamed returns the compressor called name. "none" and ""
// select the noop compressor.
func CompressorNamed(name string) (Compressor, error) {
	if name == "" || name == "none" || name == "noop" {
		return noopCodec{}, nil
	}
	for _, c := range compressors {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("fid: unknown compression %q", name)
}

// -----------------------------------------------------------------------------
// Codecs
// -----------------------------------------------------------------------------

type zstdCodec struct{}

func (zstdCodec) Name() string      { return "zstd" }
func (zstdCodec) Extension() string { return ".zst" }

func (zstdCodec) Compress(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (zstdCodec) Decompress(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

type gzipCodec struct{}

func (gzipCodec) Name() string      { return "gzip" }
func (gzipCodec) Extension() string { return ".gz" }

func (gzipCodec) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

func (gzipCodec) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

type lz4Codec struct{}

func (lz4Codec) Name() string      { return "lz4" }
func (lz4Codec) Extension() string { return ".lz4" }

func (lz4Codec) Compress(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (lz4Codec) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

type noopCodec struct{}

func (noopCodec) Name() string      { return "noop" }
func (noopCodec) Extension() string { return "" }

func (noopCodec) Compress(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (noopCodec) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
