// Package trend fits an ordinary least-squares line through (x, y) points.
package trend

import (
	"errors"
	"math"
)

var (
	// ErrInsufficientPoints is returned when fewer than two points are given.
	ErrInsufficientPoints = errors.New("trend: at least two points required")
	// ErrDegenerateInput is returned when every x is equal and the slope is undefined.
	ErrDegenerateInput = errors.New("trend: all x values equal, slope undefined")
)

// Point is a single observation.
type Point struct {
	X float64
	Y float64
}

// Line is a fitted y = Slope*x + Intercept.
type Line struct {
	Slope     float64
	Intercept float64
}

// At returns the fitted value at x.
func (l Line) At(x float64) float64 {
	return l.Slope*x + l.Intercept
}

// PerDecade returns the slope scaled to ten x units (x in years).
func (l Line) PerDecade() float64 {
	return l.Slope * 10
}

// Fit computes the least-squares line through points.
func Fit(points []Point) (Line, error) {
	n := len(points)
	if n < 2 {
		return Line{}, ErrInsufficientPoints
	}

	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var num, den float64
	for _, p := range points {
		dx := p.X - meanX
		num += dx * (p.Y - meanY)
		den += dx * dx
	}
	if den == 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return Line{}, ErrDegenerateInput
	}

	slope := num / den
	return Line{Slope: slope, Intercept: meanY - slope*meanX}, nil
}

// FittedValues returns the fitted value for every input x, in input order.
func FittedValues(points []Point) ([]float64, error) {
	line, err := Fit(points)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = line.At(p.X)
	}
	return out, nil
}
