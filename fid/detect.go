package fid

import (
	"fmt"
	"path/filepath"
	"strings"
)

// -----------------------------------------------------------------------------
// Dispatch table
// -----------------------------------------------------------------------------

// format is one entry of the dispatch table. A nil function means the
// operation is not supported for that kind.
type format struct {
	kind       FormatKind
	detect     func(path string) (string, bool)
	openHeader func(path string) (HeaderStore, error)
	openData   func(path string, cfg *openConfig) (*Data, error)
	openWriter func(src *Data, cfg *writeConfig) (*Writer, error)
}

// formats is ordered by detection priority.
var formats = []format{
	{kind: FormatNV, detect: fileWithExt(".nv")},
	{kind: FormatRS2DProc, detect: dirMatching(isRS2DProcDir), openHeader: openRS2DHeader, openData: openRS2D(FormatRS2DProc), openWriter: newRS2DWriter},
	{kind: FormatBrukerProc, detect: dirMatching(isBrukerProcDir), openHeader: openBrukerProcHeader},
	{kind: FormatRS2D, detect: dirMatching(isRS2DDir), openHeader: openRS2DHeader, openData: openRS2D(FormatRS2D), openWriter: newRS2DWriter},
	{kind: FormatBruker, detect: dirMatching(isBrukerDir), openHeader: openBrukerHeader, openData: openBruker},
	{kind: FormatVarian, detect: dirMatching(isVarianDir)},
	{kind: FormatJCAMP, detect: fileWithExt(".jdx", ".dx"), openHeader: LoadJCAMPHeader},
	{kind: FormatNMRPipe, detect: fileWithExt(".fid", ".ft1", ".ft2", ".ft3", ".ft4")},
	{kind: FormatJEOL, detect: fileWithExt(".jdf")},
}

func lookup(kind FormatKind) (format, bool) {
	for _, f := range formats {
		if f.kind == kind {
			return f, true
		}
	}
	return format{}, false
}

// -----------------------------------------------------------------------------
// Predicates
// -----------------------------------------------------------------------------

func isRS2DDir(dir string) bool {
	return fileExists(filepath.Join(dir, dataFile))
}

func isRS2DProcDir(dir string) bool {
	return isRS2DDir(dir) && isProcPath(dir)
}

func isBrukerDir(dir string) bool {
	if !fileExists(filepath.Join(dir, brukerAcqus)) {
		return false
	}
	return fileExists(filepath.Join(dir, brukerFid)) || fileExists(filepath.Join(dir, brukerSer))
}

func isBrukerProcDir(dir string) bool {
	if !fileExists(filepath.Join(dir, brukerProcs)) {
		return false
	}
	for _, name := range []string{"1r", "2rr", "3rrr"} {
		if fileExists(filepath.Join(dir, name)) {
			return true
		}
	}
	return false
}

func isVarianDir(dir string) bool {
	return fileExists(filepath.Join(dir, brukerFid)) && fileExists(filepath.Join(dir, varianPar))
}

// dirMatching checks path itself, then its parent, and normalizes to the
// matching directory.
func dirMatching(pred func(dir string) bool) func(string) (string, bool) {
	return func(path string) (string, bool) {
		for _, dir := range []string{path, filepath.Dir(path)} {
			if dirExists(dir) && pred(dir) {
				return dir, true
			}
		}
		return "", false
	}
}

// fileWithExt matches a regular file by extension and normalizes to the
// file.
func fileWithExt(exts ...string) func(string) (string, bool) {
	return func(path string) (string, bool) {
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range exts {
			if ext == e && fileExists(path) {
				return path, true
			}
		}
		return "", false
	}
}

// -----------------------------------------------------------------------------
// Public entry points
// -----------------------------------------------------------------------------

// Detection is the result of probing a path.
type Detection struct {
	Kind FormatKind
	Path string // normalized dataset directory, or the file for single-file formats
}

// Detect probes path for a known vendor layout. path may name the dataset
// directory, a file inside it, or a path one level below it. Detection is
// a read-only filesystem probe; ErrFormatNotRecognized is returned when
// nothing matches.
func Detect(path string) (Detection, error) {
	clean, err := filepath.Abs(path)
	if err != nil {
		clean = filepath.Clean(path)
	}
	for _, f := range formats {
		if dir, ok := f.detect(clean); ok {
			return Detection{Kind: f.kind, Path: dir}, nil
		}
	}
	return Detection{}, fmt.Errorf("fid: %s: %w", path, ErrFormatNotRecognized)
}

// OpenHeader detects path and loads its parameter header.
func OpenHeader(path string) (HeaderStore, Detection, error) {
	det, err := Detect(path)
	if err != nil {
		return nil, det, err
	}
	f, _ := lookup(det.Kind)
	if f.openHeader == nil {
		return nil, det, fmt.Errorf("fid: %s header: %w", det.Kind, ErrReadNotSupported)
	}
	h, err := f.openHeader(det.Path)
	if err != nil {
		return nil, det, err
	}
	return h, det, nil
}

// Open detects path and opens it for vector reads.
//
// Header failures are returned as *HeaderParseError. Formats with
// detection only return ErrReadNotSupported.
func Open(path string, opts ...Option) (*Data, error) {
	cfg, err := resolveOpen(opts)
	if err != nil {
		return nil, err
	}
	det, err := Detect(path)
	if err != nil {
		return nil, err
	}
	return openDetected(det, cfg)
}

// OpenDetected opens a dataset already located by Detect.
func OpenDetected(det Detection, opts ...Option) (*Data, error) {
	cfg, err := resolveOpen(opts)
	if err != nil {
		return nil, err
	}
	return openDetected(det, cfg)
}

func openDetected(det Detection, cfg *openConfig) (*Data, error) {
	f, ok := lookup(det.Kind)
	if !ok || f.openData == nil {
		return nil, fmt.Errorf("fid: %s: %w", det.Kind, ErrReadNotSupported)
	}
	return f.openData(det.Path, cfg)
}

// Supports reports which operations are available for kind.
func Supports(kind FormatKind) (header, read, write bool) {
	f, ok := lookup(kind)
	if !ok {
		return false, false, false
	}
	return f.openHeader != nil, f.openData != nil, f.openWriter != nil
}
