// Package ramp builds evenly spaced setpoint sequences.
package ramp

import "math"

// Linear returns steps+1 points from 'from' to 'to' inclusive. steps<=0
// snaps to 'to'. Points are rounded to the microvolt so repeated sweeps
// produce identical values.
func Linear(from, to float64, steps int) []float64 {
	if steps <= 0 {
		return []float64{to}
	}
	out := make([]float64, steps+1)
	d := (to - from) / float64(steps)
	for i := range out {
		out[i] = round6(from + d*float64(i))
	}
	out[steps] = round6(to)
	return out
}

// Triangle goes from 'from' to 'to' and back without repeating either end,
// so cycling it gives a continuous up/down sweep.
func Triangle(from, to float64, steps int) []float64 {
	up := Linear(from, to, steps)
	if len(up) < 3 {
		return up
	}
	out := append([]float64(nil), up...)
	for i := len(up) - 2; i > 0; i-- {
		out = append(out, up[i])
	}
	return out
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
