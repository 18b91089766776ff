// Package wave generates sinusoidal values used to shape seasonal traffic.
package wave

import "math"

// Sine returns the value of a sine wave at time t (in seconds).
// Frequency is in Hertz, phaseShift in radians.
func Sine(t, amplitude, frequency, phaseShift, verticalShift float64) float64 {
	return amplitude*math.Sin(2*math.Pi*frequency*t+phaseShift) + verticalShift
}
