// Package utils contains small shared helpers for the calibration packages.
package utils

import "math"

func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Math.pow( x, 2 ) is slow, this is faster
func Square(n float64) float64 {
	return n * n
}

func MaxInt(a, b int) int {
	if a < b {
		return b
	}
	return a
}

// CloseToZero returns whether a value is within eps of zero. Useful for
// guarding divisions by near-singular denominators.
func CloseToZero(x, eps float64) bool {
	return math.Abs(x) < eps
}
