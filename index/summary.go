package index

import (
	"path"
	"time"

	"github.com/google/uuid"
)

// Summary describes one raw dataset found by a scan.
//
// Present and Processed are runtime state: they are refreshed from the
// local filesystem and never written to the sidecar.
type Summary struct {
	Path        string // slash-separated, relative to the scanned root
	Type        string // fid.FormatKind name
	User        string
	Sequence    string
	SF          float64
	Time        time.Time
	Nucleus     string
	Solvent     string
	Temperature float64
	Position    string
	NDim        int
	NVectors    int
	Title       string
	Vendor      string
	Sample      string
	Isotopes    string // comma-separated nuclei of every dimension
	HashKey     string

	Present   bool
	Processed []string // relative to the dataset, newest first
	selected  int
}

// SelectedProcessedData returns the processed file chosen for the
// dataset, the newest by default, or "" when there is none.
func (s *Summary) SelectedProcessedData() string {
	if s.selected < 0 || s.selected >= len(s.Processed) {
		return ""
	}
	return s.Processed[s.selected]
}

// SelectProcessedData chooses entry i of Processed.
func (s *Summary) SelectProcessedData(i int) bool {
	if i < 0 || i >= len(s.Processed) {
		return false
	}
	s.selected = i
	return true
}

// Name returns the last element of Path.
func (s *Summary) Name() string { return path.Base(s.Path) }

// hashKey derives a stable identifier from the facts that distinguish
// one acquisition from another.
func hashKey(vendor, relPath string, t time.Time, seq string) string {
	name := vendor + "\x00" + relPath + "\x00" + formatTime(t) + "\x00" + seq
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// -----------------------------------------------------------------------------
// Export view
// -----------------------------------------------------------------------------

// SummaryExport is the serialized form of a Summary.
type SummaryExport struct {
	Path        string  `json:"path" parquet:"path"`
	Type        string  `json:"type" parquet:"type"`
	User        string  `json:"user" parquet:"user"`
	Sequence    string  `json:"seq" parquet:"seq"`
	SF          float64 `json:"sf" parquet:"sf"`
	Time        string  `json:"time" parquet:"time"`
	Nucleus     string  `json:"tn" parquet:"tn"`
	Solvent     string  `json:"sol" parquet:"sol"`
	Temperature float64 `json:"te" parquet:"te"`
	Position    string  `json:"pos" parquet:"pos"`
	NDim        int32   `json:"nd" parquet:"nd"`
	NVectors    int64   `json:"nv" parquet:"nv"`
	Title       string  `json:"text" parquet:"text"`
	Vendor      string  `json:"vnd" parquet:"vnd"`
	Sample      string  `json:"sample" parquet:"sample"`
	Isotopes    string  `json:"iso" parquet:"iso"`
	HashKey     string  `json:"hashKey" parquet:"hashKey"`
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Export returns the serialized view of s.
func (s *Summary) Export() SummaryExport {
	return SummaryExport{
		Path:        s.Path,
		Type:        s.Type,
		User:        s.User,
		Sequence:    s.Sequence,
		SF:          s.SF,
		Time:        formatTime(s.Time),
		Nucleus:     s.Nucleus,
		Solvent:     s.Solvent,
		Temperature: s.Temperature,
		Position:    s.Position,
		NDim:        int32(s.NDim),
		NVectors:    int64(s.NVectors),
		Title:       s.Title,
		Vendor:      s.Vendor,
		Sample:      s.Sample,
		Isotopes:    s.Isotopes,
		HashKey:     s.HashKey,
	}
}

// FromExport rebuilds a Summary. Present and Processed are left empty.
func FromExport(e SummaryExport) *Summary {
	return &Summary{
		Path:        e.Path,
		Type:        e.Type,
		User:        e.User,
		Sequence:    e.Sequence,
		SF:          e.SF,
		Time:        parseTime(e.Time),
		Nucleus:     e.Nucleus,
		Solvent:     e.Solvent,
		Temperature: e.Temperature,
		Position:    e.Position,
		NDim:        int(e.NDim),
		NVectors:    int(e.NVectors),
		Title:       e.Title,
		Vendor:      e.Vendor,
		Sample:      e.Sample,
		Isotopes:    e.Isotopes,
		HashKey:     e.HashKey,
	}
}

func exportAll(sums []*Summary) []SummaryExport {
	out := make([]SummaryExport, len(sums))
	for i, s := range sums {
		out[i] = s.Export()
	}
	return out
}

func importAll(exports []SummaryExport) []*Summary {
	out := make([]*Summary, len(exports))
	for i, e := range exports {
		out[i] = FromExport(e)
	}
	return out
}
