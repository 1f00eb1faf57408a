// Package fid reads and writes vendor NMR raw-data ("FID") directories.
//
// The package focuses on on-disk structure: locating a vendor layout,
// parsing its parameter header, deriving per-dimension acquisition
// geometry, and streaming sample vectors in and out of the binary data
// file. It does not implement spectral processing.
package fid

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// -----------------------------------------------------------------------------
// Format kinds
// -----------------------------------------------------------------------------

// FormatKind identifies a vendor on-disk layout.
//
// The constants are declared in detection priority order: processed
// formats come before raw FID formats because a processed directory can
// contain byproducts that also satisfy a raw predicate.
type FormatKind int

const (
	FormatUnknown FormatKind = iota
	FormatNV
	FormatRS2DProc
	FormatBrukerProc
	FormatRS2D
	FormatBruker
	FormatVarian
	FormatJCAMP
	FormatNMRPipe
	FormatJEOL
)

var formatNames = [...]string{
	FormatUnknown:    "unknown",
	FormatNV:         "nv",
	FormatRS2DProc:   "rs2d-proc",
	FormatBrukerProc: "bruker-proc",
	FormatRS2D:       "rs2d",
	FormatBruker:     "bruker",
	FormatVarian:     "varian",
	FormatJCAMP:      "jcamp",
	FormatNMRPipe:    "nmrpipe",
	FormatJEOL:       "jeol",
}

func (k FormatKind) String() string {
	if k < 0 || int(k) >= len(formatNames) {
		return fmt.Sprintf("FormatKind(%d)", int(k))
	}
	return formatNames[k]
}

// Vendor returns the vendor tag recorded in dataset summaries.
func (k FormatKind) Vendor() string {
	switch k {
	case FormatRS2D, FormatRS2DProc:
		return "rs2d"
	case FormatBruker, FormatBrukerProc:
		return "bruker"
	case FormatNV:
		return "nmrfx"
	default:
		return k.String()
	}
}

// Processed reports whether the kind holds processed rather than raw data.
func (k FormatKind) Processed() bool {
	return k == FormatNV || k == FormatRS2DProc || k == FormatBrukerProc
}

// -----------------------------------------------------------------------------
// Header store
// -----------------------------------------------------------------------------

// HeaderStore maps vendor parameter names to one or more raw string values.
//
// Getters never fail: an absent or unparsable parameter reports ok=false
// and callers substitute their own default. Set and WriteParam are atomic
// with respect to concurrent getters on the same store.
type HeaderStore interface {
	// Path returns the backing file.
	Path() string

	// Get returns the first value of name.
	Get(name string) (string, bool)

	// Double parses the first value of name as a float64.
	Double(name string) (float64, bool)

	// Int parses the first value of name as an int.
	Int(name string) (int, bool)

	// Bool parses the first value of name as a boolean.
	Bool(name string) (bool, bool)

	// List returns every value of name, or nil.
	List(name string) []string

	// DoubleList parses every value of name, skipping unparsable entries.
	DoubleList(name string) []float64

	// Names returns all parameter names in document order.
	Names() []string

	// Set replaces the values of name in memory and in the backing
	// document tree without touching disk.
	Set(name string, values ...string)

	// WriteParam replaces the values of name and persists the document
	// to Path.
	WriteParam(name string, values ...string) error

	// SaveAs serializes the current document to path.
	SaveAs(path string) error

	// Clone returns an independent copy bound to the same path.
	Clone() HeaderStore
}

// -----------------------------------------------------------------------------
// Store interface
// -----------------------------------------------------------------------------

// Store abstracts where dataset files live.
//
// Implementations target the local filesystem, memory, or S3-compatible
// object stores. Paths are slash-separated and relative to the store root.
type Store interface {
	// Put writes data to the given path.
	Put(ctx context.Context, path string, r io.Reader) error

	// Get retrieves data from the given path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks whether a path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the path if it exists.
	Delete(ctx context.Context, path string) error
}

// Replacer is implemented by stores that can atomically overwrite a path.
type Replacer interface {
	Replace(ctx context.Context, path string, r io.Reader) error
}

// -----------------------------------------------------------------------------
// Compressor interface
// -----------------------------------------------------------------------------

// Compressor handles compression and decompression of data streams.
type Compressor interface {
	// Name returns the compressor identifier (for example, "gzip", "zstd", "noop").
	Name() string

	// Extension returns the file extension (for example, ".gz", ".zst", "").
	Extension() string

	// Compress wraps a writer with compression.
	Compress(w io.Writer) (io.WriteCloser, error)

	// Decompress wraps a reader with decompression.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a requested resource does not exist.
	ErrNotFound = errNotFound{}

	// ErrPathExists indicates an attempt to write to an existing path.
	ErrPathExists = errPathExists{}

	// ErrFormatNotRecognized indicates no vendor layout matched a path.
	ErrFormatNotRecognized = errors.New("format not recognized")

	// ErrHeaderParse indicates a missing or malformed parameter header.
	ErrHeaderParse = errors.New("header parse error")

	// ErrMissingParameter indicates a derived acquisition value could not
	// be computed from the header. Geometry getters log it and fall back
	// to a default; it never escapes a getter.
	ErrMissingParameter = errors.New("missing acquisition parameter")

	// ErrOutOfBounds indicates a vector read past the end of the data file.
	ErrOutOfBounds = errors.New("vector out of bounds")

	// ErrHandleClosed indicates a read on a closed data handle.
	ErrHandleClosed = errors.New("data handle closed")

	// ErrInvalidOutputPath indicates a writer target outside the
	// processed-data directory convention.
	ErrInvalidOutputPath = errors.New("invalid output path")

	// ErrRemoteTransfer indicates a failed remote fetch.
	ErrRemoteTransfer = errors.New("remote transfer failed")

	// ErrReadNotSupported indicates a format with detection only.
	ErrReadNotSupported = errors.New("read not supported for format")

	// ErrWriteNotSupported indicates a format without a writer.
	ErrWriteNotSupported = errors.New("write not supported for format")
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errPathExists struct{}

func (errPathExists) Error() string { return "path exists" }

// HeaderParseError reports a header that could not be loaded.
type HeaderParseError struct {
	Path string
	Err  error
}

func (e *HeaderParseError) Error() string {
	return fmt.Sprintf("fid: parse header %s: %v", e.Path, e.Err)
}

func (e *HeaderParseError) Unwrap() []error { return []error{ErrHeaderParse, e.Err} }

// OutOfBoundsError reports a short read of one vector.
type OutOfBoundsError struct {
	Index int
	Path  string
	Want  int
	Got   int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("fid: vector %d out of bounds in %s: read %d of %d bytes", e.Index, e.Path, e.Got, e.Want)
}

func (e *OutOfBoundsError) Unwrap() error { return ErrOutOfBounds }

// InvalidOutputPathError reports a rejected writer destination.
type InvalidOutputPathError struct {
	Path   string
	Reason string
}

func (e *InvalidOutputPathError) Error() string {
	return fmt.Sprintf("fid: invalid output path %s: %s", e.Path, e.Reason)
}

func (e *InvalidOutputPathError) Unwrap() error { return ErrInvalidOutputPath }

// RemoteTransferError reports a failed fetch of one remote object.
// Callers may retry; local state is left untouched.
type RemoteTransferError struct {
	Key string
	Err error
}

func (e *RemoteTransferError) Error() string {
	return fmt.Sprintf("fid: remote transfer %s: %v", e.Key, e.Err)
}

func (e *RemoteTransferError) Unwrap() []error { return []error{ErrRemoteTransfer, e.Err} }
