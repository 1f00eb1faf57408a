package fid

import (
	"slices"
	"strings"
)

// PhaseMod describes how an indirect dimension interleaves its
// real/imaginary rows and how they combine.
type PhaseMod struct {
	Mode         string // canonical acquisition-mode key
	Complex      bool
	FTType       string // "ft" or "rft"
	Symbolic     string // real, hyper, hyper-r, echo-antiecho, echo-antiecho-r
	Coefficients []float64
	NegateImag   bool
}

// Phases returns the number of stored rows per point: 2 for complex
// modes, 1 otherwise.
func (p PhaseMod) Phases() int {
	if p.Complex {
		return 2
	}
	return 1
}

const (
	ModeReal          = "REAL"
	ModeQF            = "QF"
	ModeTPPI          = "TPPI"
	ModeComplex       = "COMPLEX"
	ModeStates        = "STATES"
	ModeStatesTPPI    = "STATES_TPPI"
	ModeEchoAntiecho  = "ECHO_ANTIECHO"
	ModeEchoAntiechoR = "ECHO_ANTIECHO_R"
)

var phaseTable = map[string]PhaseMod{
	ModeReal:          {Mode: ModeReal, FTType: "rft", Symbolic: "real"},
	ModeQF:            {Mode: ModeQF, FTType: "rft", Symbolic: "real"},
	ModeTPPI:          {Mode: ModeTPPI, FTType: "rft", Symbolic: "real"},
	ModeComplex:       {Mode: ModeComplex, Complex: true, FTType: "ft", Symbolic: "hyper", Coefficients: []float64{1, 0, 0, 1}},
	ModeStates:        {Mode: ModeStates, Complex: true, FTType: "ft", Symbolic: "hyper", Coefficients: []float64{1, 0, 0, 1}},
	ModeStatesTPPI:    {Mode: ModeStatesTPPI, Complex: true, FTType: "ft", Symbolic: "hyper-r", Coefficients: []float64{1, 0, 0, -1}, NegateImag: true},
	ModeEchoAntiecho:  {Mode: ModeEchoAntiecho, Complex: true, FTType: "ft", Symbolic: "echo-antiecho", Coefficients: []float64{1, 0, -1, 0, 0, 1, 0, 1}},
	ModeEchoAntiechoR: {Mode: ModeEchoAntiechoR, Complex: true, FTType: "ft", Symbolic: "echo-antiecho-r", Coefficients: []float64{1, 0, -1, 0, 0, -1, 0, -1}},
}

// directPhase is the fixed entry for dimension 0 of raw data.
var directPhase = PhaseMod{Mode: ModeComplex, Complex: true, FTType: "ft", Symbolic: "hyper", Coefficients: []float64{1, 0, 0, 1}}

// LookupPhaseMod resolves an acquisition-mode string. Matching ignores
// case and treats '-' and ' ' as '_'. ok is false for unknown modes, in
// which case the STATES entry is returned.
func LookupPhaseMod(mode string) (PhaseMod, bool) {
	key := strings.ToUpper(strings.TrimSpace(mode))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	p, ok := phaseTable[key]
	if !ok {
		p = phaseTable[ModeStates]
	}
	p.Coefficients = slices.Clone(p.Coefficients)
	return p, ok
}

// brukerFnModes maps acqu2s FnMODE values to acquisition-mode keys.
var brukerFnModes = map[int]string{
	1: ModeQF,
	2: ModeTPPI, // QSEQ
	3: ModeTPPI,
	4: ModeStates,
	5: ModeStatesTPPI,
	6: ModeEchoAntiecho,
}
