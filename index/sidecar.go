package index

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/nmrfx/fidio/fid"
)

// SidecarFile is the index file written at the root of a scanned tree.
const SidecarFile = "nmrfx_index.json"

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Save writes sums as pretty-printed JSON to <root>/nmrfx_index.json,
// replacing any existing index atomically.
func Save(root string, sums []*Summary) error {
	data, err := encodeIndex(sums)
	if err != nil {
		return err
	}
	if err := fid.ReplaceFile(filepath.Join(root, SidecarFile), data); err != nil {
		return fmt.Errorf("index: save %s: %w", root, err)
	}
	return nil
}

// Load reads <root>/nmrfx_index.json. An absent sidecar yields an empty
// list and no error.
func Load(root string) ([]*Summary, error) {
	f, err := os.Open(filepath.Join(root, SidecarFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("index: load %s: %w", root, err)
	}
	defer func() { _ = f.Close() }()
	return decodeIndex(f)
}

func encodeIndex(sums []*Summary) ([]byte, error) {
	data, err := jsonCodec.MarshalIndent(exportAll(sums), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("index: encode: %w", err)
	}
	return append(data, '\n'), nil
}

func decodeIndex(r io.Reader) ([]*Summary, error) {
	var exports []SummaryExport
	if err := jsonCodec.NewDecoder(r).Decode(&exports); err != nil {
		return nil, fmt.Errorf("index: decode: %w", err)
	}
	return importAll(exports), nil
}
