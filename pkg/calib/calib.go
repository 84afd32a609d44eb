// Package calib maps raw readout values to physical capacitance.
package calib

// Calibration holds the fixed conversion constants for one channel.
// The mapping is pure and deterministic: identical raw inputs always yield
// identical capacitance, which the acquisition tests rely on.
//
// With Poly empty the linear form offset + slope*raw applies. A non-empty
// Poly evaluates poly[0] + poly[1]*raw + poly[2]*raw^2 + ... instead,
// for channels whose bench calibration needed a higher-order fit.
type Calibration struct {
	Offset float64
	Slope  float64
	Poly   []float64
}

// Linear returns a calibration of the form offset + slope*raw.
func Linear(offset, slope float64) Calibration {
	return Calibration{Offset: offset, Slope: slope}
}

// Identity returns the pass-through calibration, used for the 100 pF
// reference channel whose board output already is capacitance.
func Identity() Calibration {
	return Calibration{Slope: 1}
}

// Capacitance converts a raw board value to capacitance in pF.
func (c Calibration) Capacitance(raw float64) float64 {
	if len(c.Poly) > 0 {
		// Horner evaluation, highest order first.
		v := 0.0
		for i := len(c.Poly) - 1; i >= 0; i-- {
			v = v*raw + c.Poly[i]
		}
		return v
	}
	return c.Offset + c.Slope*raw
}
