package window

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBesselI0(t *testing.T) {
	assert.Equal(t, 1.0, BesselI0(0))
	assert.InDelta(t, 1.2660658777520082, BesselI0(1), 1e-12)
	assert.InDelta(t, 27.239871823604442, BesselI0(5), 1e-9)
	// I0(x) ~ e^x/sqrt(2πx) for large x
	assert.InEpsilon(t, math.Exp(38)/math.Sqrt(2*math.Pi*38), BesselI0(38), 0.01)
}

func TestKaiser(t *testing.T) {
	w := Kaiser(65, 38)
	require.Len(t, w, 65)
	assert.InDelta(t, 1, w[32], 1e-12)
	for i := range w {
		assert.InDelta(t, w[i], w[len(w)-1-i], 1e-12)
	}
	assert.Less(t, w[0], 1e-12)
	assert.Equal(t, []float64{1}, Kaiser(1, 5))

	assert.InDelta(t, KaiserAt(0, 10, 5), 1, 1e-12)
	assert.Equal(t, 0.0, KaiserAt(11, 10, 5))
}

func TestKaiserLeakageHalfWidth(t *testing.T) {
	assert.Equal(t, 25, KaiserLeakageHalfWidth(38))
	assert.Equal(t, 2, KaiserLeakageHalfWidth(0))
}
