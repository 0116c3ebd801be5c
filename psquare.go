package parklot

import (
	"math"
	"sort"
)

// pSquareQuantile implements the P-Square algorithm for streaming quantile
// estimation: O(1) per-observation updates and O(1) retrieval, versus
// O(n log n) for sorting-based approaches.
//
// Reference:
// Jain, R. and Chlamtac, I. (1985). "The P² Algorithm for Dynamic Calculation
// of Quantiles and Histograms Without Storing Observations". Communications
// of the ACM, 28(10), pp. 1076-1085.
//
// Thread Safety: NOT thread-safe. Caller must ensure synchronization.
type pSquareQuantile struct {
	// p is the target quantile (0.0 to 1.0).
	p float64

	// q stores the 5 marker heights (values at markers).
	q [5]float64

	// n stores the 5 marker positions (actual, 0-indexed).
	n [5]int

	// np stores the 5 desired marker positions (idealized, floats).
	np [5]float64

	// dn stores the increments for desired marker positions.
	dn [5]float64

	// count is the total number of observations received.
	count int

	// initialized tracks whether the first 5 observations have arrived.
	initialized bool
}

// newPSquareQuantile creates an estimator for percentile p in [0.0, 1.0].
func newPSquareQuantile(p float64) *pSquareQuantile {
	p = math.Max(0, math.Min(1, p))
	return &pSquareQuantile{
		p:  p,
		dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

// observe feeds one sample into the estimator.
func (e *pSquareQuantile) observe(x float64) {
	if !e.initialized {
		e.q[e.count] = x
		e.count++
		if e.count == 5 {
			sort.Float64s(e.q[:])
			for i := range e.n {
				e.n[i] = i
			}
			e.np = [5]float64{0, 2 * e.p, 4 * e.p, 2 + 2*e.p, 4}
			e.initialized = true
		}
		return
	}
	e.count++

	// Find the cell containing x, clamping the extreme markers.
	var k int
	switch {
	case x < e.q[0]:
		e.q[0] = x
		k = 0
	case x >= e.q[4]:
		e.q[4] = x
		k = 3
	default:
		for k = 0; k < 3; k++ {
			if x < e.q[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		e.n[i]++
	}
	for i := range e.np {
		e.np[i] += e.dn[i]
	}

	// Adjust the interior markers toward their desired positions.
	for i := 1; i <= 3; i++ {
		d := e.np[i] - float64(e.n[i])
		if (d >= 1 && e.n[i+1]-e.n[i] > 1) || (d <= -1 && e.n[i-1]-e.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}
			if q := e.parabolic(i, sign); e.q[i-1] < q && q < e.q[i+1] {
				e.q[i] = q
			} else {
				e.q[i] = e.linear(i, sign)
			}
			e.n[i] += sign
		}
	}
}

// parabolic is the P² piecewise-parabolic prediction for marker i moved by
// sign (+1 or -1).
func (e *pSquareQuantile) parabolic(i, sign int) float64 {
	d := float64(sign)
	ni := float64(e.n[i])
	nl := float64(e.n[i-1])
	nr := float64(e.n[i+1])
	return e.q[i] + d/(nr-nl)*(
		(ni-nl+d)*(e.q[i+1]-e.q[i])/(nr-ni)+
			(nr-ni-d)*(e.q[i]-e.q[i-1])/(ni-nl))
}

// linear is the fallback prediction when the parabolic one would violate
// marker ordering.
func (e *pSquareQuantile) linear(i, sign int) float64 {
	return e.q[i] + float64(sign)*(e.q[i+sign]-e.q[i])/float64(e.n[i+sign]-e.n[i])
}

// estimate returns the current quantile estimate, or the best available
// value before 5 observations have arrived (0 when empty).
func (e *pSquareQuantile) estimate() float64 {
	if e.initialized {
		return e.q[2]
	}
	if e.count == 0 {
		return 0
	}
	// Too few samples for markers; report an order statistic.
	buf := make([]float64, e.count)
	copy(buf, e.q[:e.count])
	sort.Float64s(buf)
	idx := int(math.Ceil(float64(e.count)*e.p)) - 1
	if idx < 0 {
		idx = 0
	}
	return buf[idx]
}
