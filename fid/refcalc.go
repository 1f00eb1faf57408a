package fid

import (
	"strings"
)

// DefaultTemperature is used for water referencing when the header does
// not record a sample temperature, in kelvin.
const DefaultTemperature = 298.15

// WaterShift returns the 1H chemical shift of water in ppm at temp kelvin.
func WaterShift(temp float64) float64 {
	return 7.83 - temp/96.9
}

// nucleusRatios are IUPAC frequency ratios relative to 1H (TMS/DSS
// referencing).
var nucleusRatios = map[string]float64{
	"1H":  1.0,
	"2H":  0.153506088,
	"13C": 0.251449530,
	"15N": 0.101329118,
	"31P": 0.404808636,
	"19F": 0.940866982,
}

// NucleusRatio returns the referencing ratio for a nucleus label such as
// "13C" or "C13".
func NucleusRatio(nucleus string) (float64, bool) {
	r, ok := nucleusRatios[normalizeNucleus(nucleus)]
	return r, ok
}

// normalizeNucleus turns "C13", "c13", or "13c" into "13C".
func normalizeNucleus(n string) string {
	n = strings.ToUpper(strings.TrimSpace(n))
	i := 0
	for i < len(n) && n[i] >= '0' && n[i] <= '9' {
		i++
	}
	if i > 0 {
		return n
	}
	j := 0
	for j < len(n) && (n[j] < '0' || n[j] > '9') {
		j++
	}
	if j == len(n) {
		return n
	}
	return n[j:] + n[:j]
}

// ratioRef computes the reference (ppm) of a dimension at carrier sf (MHz)
// whose nucleus has the given ratio, given the 1H zero frequency sf0H.
func ratioRef(sf, ratio, sf0H float64) float64 {
	zero := sf0H * ratio
	return (sf - zero) / zero * 1e6
}
