package index

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// nvExt is the extension of in-house processed files.
const nvExt = ".nv"

type processedFile struct {
	rel   string
	mtime int64
}

// findProcessed lists processed representations of the raw dataset at
// dir, newest first. Paths are relative to dir.
//
// Candidates are vendor processed directories (Proc/<N> with data.dat,
// pdata/<N> with procs) and .nv files next to or inside the dataset whose
// base name matches the dataset name or its title.
func findProcessed(dir, title string) []string {
	var found []processedFile
	add := func(path string) {
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return
		}
		found = append(found, processedFile{rel: filepath.ToSlash(rel), mtime: info.ModTime().UnixNano()})
	}

	for _, sub := range []struct{ parent, marker string }{
		{"Proc", "data.dat"},
		{"pdata", "procs"},
	} {
		entries, err := os.ReadDir(filepath.Join(dir, sub.parent))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || !isNumeric(e.Name()) {
				continue
			}
			p := filepath.Join(dir, sub.parent, e.Name())
			if _, err := os.Stat(filepath.Join(p, sub.marker)); err == nil {
				add(p)
			}
		}
	}

	names := matchNames(filepath.Base(dir), title)
	for _, parent := range []string{dir, filepath.Dir(dir)} {
		entries, err := os.ReadDir(parent)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), nvExt) {
				continue
			}
			if matchesAny(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())), names) {
				add(filepath.Join(parent, e.Name()))
			}
		}
	}

	slices.SortStableFunc(found, func(a, b processedFile) int {
		switch {
		case a.mtime > b.mtime:
			return -1
		case a.mtime < b.mtime:
			return 1
		default:
			return strings.Compare(a.rel, b.rel)
		}
	})
	out := make([]string, 0, len(found))
	for _, f := range found {
		if !slices.Contains(out, f.rel) {
			out = append(out, f.rel)
		}
	}
	return out
}

// matchNames returns the lower-cased names a processed file may carry.
func matchNames(base, title string) []string {
	names := []string{strings.ToLower(base)}
	if t := strings.ToLower(strings.TrimSpace(title)); t != "" && t != names[0] {
		names = append(names, strings.ReplaceAll(t, " ", "_"))
	}
	return names
}

// matchesAny accepts an exact name or a name followed by "_" or ".".
func matchesAny(stem string, names []string) bool {
	stem = strings.ToLower(stem)
	for _, n := range names {
		if stem == n || strings.HasPrefix(stem, n+"_") || strings.HasPrefix(stem, n+".") {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
