package pose

import (
	stdmath "math"

	"github.com/Faultbox/midgard-mmd/pkg/formats"
)

const (
	easeEpsilon   = 1e-6
	newtonSteps   = 8
	bisectionStep = 64
)

// Ease maps a normalized time x through the cubic bezier c, whose end points
// are (0,0) and (1,1). It solves x(t) = x with Newton-Raphson and falls back
// to bisection when the slope vanishes or Newton does not converge.
func Ease(c formats.Bezier, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	p1x, p1y := float64(c.X1), float64(c.Y1)
	p2x, p2y := float64(c.X2), float64(c.Y2)

	cx := 3 * p1x
	bx := 3*(p2x-p1x) - cx
	ax := 1 - cx - bx

	cy := 3 * p1y
	by := 3*(p2y-p1y) - cy
	ay := 1 - cy - by

	curveX := func(t float64) float64 { return ((ax*t+bx)*t + cx) * t }
	curveY := func(t float64) float64 { return ((ay*t+by)*t + cy) * t }
	slopeX := func(t float64) float64 { return (3*ax*t+2*bx)*t + cx }

	t := x
	for i := 0; i < newtonSteps; i++ {
		dx := curveX(t) - x
		if stdmath.Abs(dx) < easeEpsilon {
			return curveY(t)
		}
		d := slopeX(t)
		if stdmath.Abs(d) < easeEpsilon {
			break
		}
		t -= dx / d
	}

	lo, hi := 0.0, 1.0
	t = x
	for i := 0; i < bisectionStep; i++ {
		v := curveX(t)
		if stdmath.Abs(v-x) < easeEpsilon {
			break
		}
		if x > v {
			lo = t
		} else {
			hi = t
		}
		t = lo + (hi-lo)/2
	}
	return curveY(t)
}
