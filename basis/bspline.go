package basis

import (
	"sort"
)

// clampedKnots expands breakpoints b_0 < … < b_{m-1} into the full knot
// vector of a clamped spline of the given degree: degree+1 copies of each
// boundary breakpoint around the interior ones.
func clampedKnots(breakpoints []float64, degree int) []float64 {
	m := len(breakpoints)
	t := make([]float64, 0, m+2*degree)
	for i := 0; i < degree; i++ {
		t = append(t, breakpoints[0])
	}
	t = append(t, breakpoints...)
	for i := 0; i < degree; i++ {
		t = append(t, breakpoints[m-1])
	}
	return t
}

// bspline evaluates a clamped B-spline basis with Cox–de Boor recursion.
type bspline struct {
	degree int
	knots  []float64 // full clamped knot vector
	n      int       // number of basis functions
	lo, hi float64   // boundary breakpoints
}

func newBSpline(breakpoints []float64, degree int) *bspline {
	t := clampedKnots(breakpoints, degree)
	return &bspline{
		degree: degree,
		knots:  t,
		n:      len(t) - degree - 1,
		lo:     breakpoints[0],
		hi:     breakpoints[len(breakpoints)-1],
	}
}

// span returns the index i with knots[i] <= x < knots[i+1], restricted to
// [degree, n-1]. The right boundary belongs to the last interval.
func (b *bspline) span(x float64) int {
	if x >= b.hi {
		return b.n - 1
	}
	if x <= b.lo {
		return b.degree
	}
	// first knot strictly greater than x, minus one
	i := sort.Search(len(b.knots), func(k int) bool { return b.knots[k] > x }) - 1
	if i < b.degree {
		i = b.degree
	}
	if i > b.n-1 {
		i = b.n - 1
	}
	return i
}

// nonzero writes the degree+1 basis functions of degree p that are nonzero
// on span i into out, which must have length p+1.
func (b *bspline) nonzero(i int, x float64, p int, out, left, right []float64) {
	t := b.knots
	out[0] = 1
	for j := 1; j <= p; j++ {
		left[j] = x - t[i+1-j]
		right[j] = t[i+j] - x
		saved := 0.0
		for r := 0; r < j; r++ {
			denom := right[r+1] + left[j-r]
			temp := 0.0
			if denom != 0 {
				temp = out[r] / denom
			}
			out[r] = saved + right[r+1]*temp
			saved = left[j-r] * temp
		}
		out[j] = saved
	}
}

// evalRow writes the n basis values at x into row. Outside [lo, hi] the
// basis is continued linearly from the boundary value and slope.
func (b *bspline) evalRow(x float64, row []float64) {
	for k := range row {
		row[k] = 0
	}
	d := b.degree
	vals := make([]float64, d+1)
	left := make([]float64, d+1)
	right := make([]float64, d+1)

	switch {
	case x < b.lo || x > b.hi:
		edge := b.lo
		if x > b.hi {
			edge = b.hi
		}
		i := b.span(edge)
		b.nonzero(i, edge, d, vals, left, right)
		slope := b.derivative(i, edge)
		for r := 0; r <= d; r++ {
			row[i-d+r] = vals[r] + (x-edge)*slope[r]
		}
	default:
		i := b.span(x)
		b.nonzero(i, x, d, vals, left, right)
		copy(row[i-d:i+1], vals)
	}
}

// derivative returns the first derivatives of the degree+1 functions that
// are nonzero on span i, evaluated at x:
// N'_{c,d} = d/(t_{c+d}-t_c)·N_{c,d-1} - d/(t_{c+d+1}-t_{c+1})·N_{c+1,d-1}.
func (b *bspline) derivative(i int, x float64) []float64 {
	d := b.degree
	out := make([]float64, d+1)
	if d == 0 {
		return out
	}
	t := b.knots
	lower := make([]float64, d)
	left := make([]float64, d+1)
	right := make([]float64, d+1)
	b.nonzero(i, x, d-1, lower, left, right)

	// lower[r] is N_{i-d+1+r, d-1}
	lowerAt := func(c int) float64 {
		r := c - (i - d + 1)
		if r < 0 || r >= d {
			return 0
		}
		return lower[r]
	}
	for r := 0; r <= d; r++ {
		c := i - d + r
		v := 0.0
		if den := t[c+d] - t[c]; den != 0 {
			v += float64(d) / den * lowerAt(c)
		}
		if den := t[c+d+1] - t[c+1]; den != 0 {
			v -= float64(d) / den * lowerAt(c+1)
		}
		out[r] = v
	}
	return out
}
