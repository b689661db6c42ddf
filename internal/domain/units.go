package domain

import (
	"fmt"
	"math"

	"github.com/docker/go-units"
)

// EiB completes the go-units binary ladder.
const EiB = 1024 * units.PiB

// BinaryUnits is the display ladder used for capacities, smallest first.
var BinaryUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}

var unitScale = map[string]float64{
	"B":   1,
	"KiB": units.KiB,
	"MiB": units.MiB,
	"GiB": units.GiB,
	"TiB": units.TiB,
	"PiB": units.PiB,
	"EiB": EiB,
}

// FormatToBinary converts a byte count into the largest binary unit keeping
// the value >= 1, rounded to one decimal. Non-finite input yields NaN.
func FormatToBinary(bytes float64) (float64, string) {
	if math.IsNaN(bytes) || math.IsInf(bytes, 0) {
		return math.NaN(), ""
	}
	unit := UnitFor(bytes)
	return Round(bytes/unitScale[unit], 1), unit
}

// UnitFor picks the display unit FormatToBinary would use for bytes.
func UnitFor(bytes float64) string {
	abs := math.Abs(bytes)
	unit := BinaryUnits[0]
	for _, u := range BinaryUnits[1:] {
		if abs < unitScale[u] {
			break
		}
		unit = u
	}
	return unit
}

// ConvertToUnit converts a byte count into the given binary unit, rounded to
// precision decimals.
func ConvertToUnit(bytes float64, unit string, precision int) (float64, error) {
	scale, ok := unitScale[unit]
	if !ok {
		return math.NaN(), fmt.Errorf("unknown unit %q", unit)
	}
	return Round(bytes/scale, precision), nil
}

// HumanBytes renders a byte count for logs.
func HumanBytes(bytes float64) string {
	return units.BytesSize(bytes)
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
