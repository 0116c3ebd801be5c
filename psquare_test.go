package parklot

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPSquare_UniformStream(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p50 := newPSquareQuantile(0.50)
	p99 := newPSquareQuantile(0.99)
	for i := 0; i < 10_000; i++ {
		x := rng.Float64() * 1000
		p50.observe(x)
		p99.observe(x)
	}
	assert.InDelta(t, 500, p50.estimate(), 100, "P50 of U(0,1000)")
	assert.InDelta(t, 990, p99.estimate(), 50, "P99 of U(0,1000)")
}

func TestPSquare_FewSamples(t *testing.T) {
	e := newPSquareQuantile(0.50)
	assert.Zero(t, e.estimate())
	e.observe(10)
	assert.Equal(t, float64(10), e.estimate())
	e.observe(30)
	e.observe(20)
	// Order statistic over {10, 20, 30}: ceil(3*0.5) = 2nd smallest.
	assert.Equal(t, float64(20), e.estimate())
}

func TestPSquare_ConstantStream(t *testing.T) {
	e := newPSquareQuantile(0.99)
	for i := 0; i < 100; i++ {
		e.observe(7)
	}
	assert.Equal(t, float64(7), e.estimate())
}

func TestPSquare_ClampsPercentile(t *testing.T) {
	lo := newPSquareQuantile(-1)
	hi := newPSquareQuantile(2)
	for i := 0; i < 100; i++ {
		lo.observe(float64(i))
		hi.observe(float64(i))
	}
	assert.LessOrEqual(t, lo.estimate(), hi.estimate())
}
