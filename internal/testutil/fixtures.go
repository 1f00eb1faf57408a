package testutil

import (
	"encoding/binary"
	"fmt"
	"html"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// RS2D
// -----------------------------------------------------------------------------

// RS2DParams returns header parameters of a 1-D proton acquisition with
// the given number of complex points.
func RS2DParams(points int) map[string][]string {
	return map[string][]string{
		"MATRIX_DIMENSION_1D": {fmt.Sprint(points)},
		"MATRIX_DIMENSION_2D": {"1"},
		"BASE_FREQ_1":         {"500130000"},
		"OFFSET_FREQ_1":       {"1200"},
		"SPECTRAL_WIDTH":      {"5000.0"},
		"OBSERVED_NUCLEUS":    {"1H"},
		"SR":                  {"0"},
		"PHASE_0":             {"12.5"},
		"PHASE_1":             {"-3.0"},
		"SEQUENCE_NAME":       {"zg30"},
		"OPERATOR":            {"nmr"},
		"SOLVENT":             {"CDCl3"},
		"SAMPLE_NAME":         {"ethylbenzene"},
		"ACQUISITION_NAME":    {"proton"},
		"SAMPLE_TEMPERATURE":  {"25"},
		"ACQUISITION_DATE":    {"2024-03-01T10:15:00"},
	}
}

// RS2DParams2D returns header parameters of a 2-D acquisition with
// points complex pairs along dimension 0 and rows stored rows along
// dimension 1 acquired with mode.
func RS2DParams2D(points, rows int, mode string) map[string][]string {
	p := RS2DParams(points)
	p["MATRIX_DIMENSION_2D"] = []string{fmt.Sprint(rows)}
	p["BASE_FREQ_2"] = []string{"125757000"}
	p["SPECTRAL_WIDTH_2D"] = []string{"20000"}
	p["NUCLEUS_2"] = []string{"13C"}
	p["ACQUISITION_MODE_2D"] = []string{mode}
	p["SR"] = []string{"0", "0"}
	return p
}

// WriteRS2D writes header.xml and data.dat into dir. rows are stored
// rows in file order, written as big-endian float32.
func WriteRS2D(t testing.TB, dir string, params map[string][]string, rows [][]float64) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	WriteXMLHeader(t, filepath.Join(dir, "header.xml"), params)

	WriteSamples(t, filepath.Join(dir, "data.dat"), binary.BigEndian, rows)
	return dir
}

// WriteXMLHeader writes an RS2D parameter document. Each entry carries
// its values as nested value elements.
func WriteXMLHeader(t testing.TB, path string, params map[string][]string) {
	t.Helper()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<header>\n<params>\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "<entry><key>%s</key><value>", html.EscapeString(k))
		for _, v := range params[k] {
			fmt.Fprintf(&b, "<value>%s</value>", html.EscapeString(v))
		}
		b.WriteString("</value></entry>\n")
	}
	b.WriteString("</params>\n</header>\n")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

// WriteSamples writes rows as float32 values in order.
func WriteSamples(t testing.TB, path string, order binary.AppendByteOrder, rows [][]float64) {
	t.Helper()
	var buf []byte
	for _, row := range rows {
		for _, v := range row {
			buf = order.AppendUint32(buf, math.Float32bits(float32(v)))
		}
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

// Ramp returns n rows of width values where value j of row i is
// i*1000+j.
func Ramp(n, width int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, width)
		for j := range rows[i] {
			rows[i][j] = float64(i*1000 + j)
		}
	}
	return rows
}

// WriteCorruptRS2D writes a dataset whose header.xml is not a parameter
// document.
func WriteCorruptRS2D(t testing.TB, dir string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "header.xml"), []byte("<params><entry>"), 0o644))
	WriteSamples(t, filepath.Join(dir, "data.dat"), binary.BigEndian, Ramp(1, 8))
	return dir
}

// WriteHeaderlessRS2D writes data.dat without header.xml.
func WriteHeaderlessRS2D(t testing.TB, dir string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	WriteSamples(t, filepath.Join(dir, "data.dat"), binary.BigEndian, Ramp(1, 8))
	return dir
}

// -----------------------------------------------------------------------------
// Bruker
// -----------------------------------------------------------------------------

// BrukerParams returns acqus parameters of a 1-D acquisition with td
// stored values.
func BrukerParams(td int) map[string]string {
	return map[string]string{
		"TD":      fmt.Sprint(td),
		"SFO1":    "600.1337",
		"BF1":     "600.13",
		"O1":      "2820.6",
		"SW_h":    "9615.38",
		"NUC1":    "<1H>",
		"BYTORDA": "0",
		"DTYPA":   "0",
		"GRPDLY":  "67.98",
		"TE":      "298.1",
		"OWNER":   "<nmruser>",
		"PULPROG": "<zg30>",
		"SOLVENT": "<D2O>",
		"DATE":    "1709288100",
		"FnMODE":  "0",
	}
}

// WriteJCAMP writes a JCAMP-DX parameter file.
func WriteJCAMP(t testing.TB, path string, params map[string]string) {
	t.Helper()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("##TITLE= Parameter file\n##JCAMPDX= 5.0\n$$ written by testutil\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "##$%s= %s\n", k, params[k])
	}
	b.WriteString("##END=\n")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

// WriteBruker writes acqus and a little-endian int32 fid into dir.
func WriteBruker(t testing.TB, dir string, params map[string]string, values []int32) string {
	t.Helper()
	WriteJCAMP(t, filepath.Join(dir, "acqus"), params)
	buf := make([]byte, 0, 4*len(values))
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fid"), buf, 0o644))
	return dir
}

// -----------------------------------------------------------------------------
// Files
// -----------------------------------------------------------------------------

// Epoch is a fixed modification time for fixtures.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Touch creates path if needed and sets its modification time.
func Touch(t testing.TB, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}
