package fid

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Bruker acquisition parameter names (JCAMP labels without "$").
const (
	brukerTD      = "TD"
	brukerSFO1    = "SFO1"
	brukerBF1     = "BF1"
	brukerO1      = "O1"
	brukerSWh     = "SW_h"
	brukerNuc1    = "NUC1"
	brukerFnMode  = "FnMODE"
	brukerGrpDly  = "GRPDLY"
	brukerTE      = "TE"
	brukerDTYPA   = "DTYPA"
	brukerBYTORDA = "BYTORDA"
	brukerOwner   = "OWNER"
	brukerPulProg = "PULPROG"
	brukerSolvent = "SOLVENT"
	brukerDate    = "DATE"
	brukerHolder  = "HOLDER"
	brukerPHC0    = "PHC0"
	brukerPHC1    = "PHC1"
)

// brukerAcqFile returns the parameter file of dim: acqus, acqu2s, ...
func brukerAcqFile(dim int) string {
	if dim == 0 {
		return brukerAcqus
	}
	return fmt.Sprintf("acqu%ds", dim+1)
}

// brukerAcq derives geometry from the acqus family of a Bruker
// experiment directory. dims[i] is the parameter file of dimension i.
type brukerAcq struct {
	dims  []HeaderStore
	procs []HeaderStore // pdata/1 procs family, may be nil
}

func (a *brukerAcq) rawSizes() []int {
	var sizes []int
	for dim, h := range a.dims {
		td, ok := h.Int(brukerTD)
		if dim == 0 {
			sizes = append(sizes, td/2)
			continue
		}
		if !ok || td <= 1 {
			break
		}
		sizes = append(sizes, td)
	}
	return sizes
}

func (a *brukerAcq) header(dim int) HeaderStore {
	if dim < 0 || dim >= len(a.dims) {
		return nil
	}
	return a.dims[dim]
}

func (a *brukerAcq) sf(dim int) (float64, bool) {
	if h := a.header(dim); h != nil {
		return h.Double(brukerSFO1)
	}
	return 0, false
}

func (a *brukerAcq) sw(dim int) (float64, bool) {
	if h := a.header(dim); h != nil {
		return h.Double(brukerSWh)
	}
	return 0, false
}

// refs places the carrier offset at the center, ref = O1/BF1 ppm.
func (a *brukerAcq) refs(func(int) float64) []option[float64] {
	out := make([]option[float64], len(a.dims))
	for dim, h := range a.dims {
		o1, ok1 := h.Double(brukerO1)
		bf1, ok2 := h.Double(brukerBF1)
		if ok1 && ok2 && bf1 != 0 {
			out[dim] = some(o1 / bf1)
		}
	}
	return out
}

// nucleus reads NUC1 of the dimension's own parameter file. Indirect
// dimensions whose file has none fall back to NUC<dim+1> of acqus.
func (a *brukerAcq) nucleus(dim int) (string, bool) {
	h := a.header(dim)
	if h == nil {
		return "", false
	}
	if v, ok := brukerNucleus(h, brukerNuc1); ok {
		return v, true
	}
	if dim == 0 {
		return "", false
	}
	return brukerNucleus(a.dims[0], fmt.Sprintf("NUC%d", dim+1))
}

func brukerNucleus(h HeaderStore, name string) (string, bool) {
	v, ok := h.Get(name)
	v = strings.TrimSpace(v)
	if !ok || v == "" || strings.EqualFold(v, "off") {
		return "", false
	}
	return v, true
}

func (a *brukerAcq) mode(dim int) string {
	h := a.header(dim)
	if h == nil {
		return ""
	}
	fn, _ := h.Int(brukerFnMode)
	return brukerFnModes[fn]
}

func (a *brukerAcq) directReal() bool { return false }

func (a *brukerAcq) phases(dim int) (float64, float64) {
	if dim >= len(a.procs) || a.procs[dim] == nil {
		return 0, 0
	}
	ph0, _ := a.procs[dim].Double(brukerPHC0)
	ph1, _ := a.procs[dim].Double(brukerPHC1)
	return ph0, ph1
}

func (a *brukerAcq) groupDelay() float64 {
	v, ok := a.dims[0].Double(brukerGrpDly)
	if !ok || v < 0 {
		return 0
	}
	return v
}

func (a *brukerAcq) temperature() (float64, bool) {
	return a.dims[0].Double(brukerTE)
}

func brukerCodec(h HeaderStore) sampleCodec {
	c := sampleCodec{kind: sampleInt32, order: binary.LittleEndian}
	if dt, _ := h.Int(brukerDTYPA); dt == 2 {
		c.kind = sampleFloat64
	}
	if bo, _ := h.Int(brukerBYTORDA); bo == 1 {
		c.order = binary.BigEndian
	}
	return c
}

func brukerMetadata(dir string, acq *brukerAcq) Metadata {
	h := acq.dims[0]
	get := func(name string) string {
		v, _ := h.Get(name)
		return strings.TrimSpace(v)
	}
	m := Metadata{
		User:     get(brukerOwner),
		Sequence: get(brukerPulProg),
		Solvent:  get(brukerSolvent),
		Position: get(brukerHolder),
		Sample:   filepath.Base(filepath.Dir(dir)),
		Title:    readFirstLine(filepath.Join(dir, brukerPdata, "1", "title")),
	}
	if secs, ok := h.Int(brukerDate); ok && secs > 0 {
		m.Time = time.Unix(int64(secs), 0).UTC()
	}
	if t, ok := acq.temperature(); ok {
		m.Temperature = t
	}
	return m
}

func readFirstLine(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer closer(f)()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line
		}
	}
	return ""
}

// openBrukerHeader loads <dir>/acqus.
func openBrukerHeader(dir string) (HeaderStore, error) {
	return LoadJCAMPHeader(filepath.Join(dir, brukerAcqus))
}

// openBrukerProcHeader loads <dir>/procs.
func openBrukerProcHeader(dir string) (HeaderStore, error) {
	return LoadJCAMPHeader(filepath.Join(dir, brukerProcs))
}

// openBruker opens a Bruker experiment directory. Rows of ser files are
// padded to 1024-byte blocks.
func openBruker(dir string, cfg *openConfig) (*Data, error) {
	h, err := openBrukerHeader(dir)
	if err != nil {
		cfg.logger.Warn("header load failed", zap.String("path", dir), zap.Error(err))
		return nil, err
	}
	acq := &brukerAcq{dims: []HeaderStore{h}}
	for dim := 1; dim < MaxDims; dim++ {
		path := filepath.Join(dir, brukerAcqFile(dim))
		if !fileExists(path) {
			break
		}
		hd, err := LoadJCAMPHeader(path)
		if err != nil {
			return nil, err
		}
		acq.dims = append(acq.dims, hd)
	}
	for dim := range acq.dims {
		name := brukerProcs
		if dim > 0 {
			name = fmt.Sprintf("proc%ds", dim+1)
		}
		ph, _ := LoadJCAMPHeader(filepath.Join(dir, brukerPdata, "1", name))
		acq.procs = append(acq.procs, ph)
	}
	if td, ok := h.Int(brukerTD); !ok || td < 2 {
		return nil, &HeaderParseError{Path: h.Path(), Err: fmt.Errorf("%w: %s", ErrMissingParameter, brukerTD)}
	}
	acq.dims = acq.dims[:len(acq.rawSizes())]

	dataPath := filepath.Join(dir, brukerSer)
	if !fileExists(dataPath) {
		dataPath = filepath.Join(dir, brukerFid)
	}
	return newData(FormatBruker, dir, dataPath, h, acq, brukerMetadata(dir, acq),
		brukerCodec(h), brukerBlock, false, readFlags{}, cfg)
}
