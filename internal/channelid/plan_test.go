package channelid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_BitsAndWords(t *testing.T) {
	// fan-in 1 -> 0 bits for fan-in, +1 marker bit = 1 bit per sub-id.
	p := Compute(1, 0)
	assert.Equal(t, 1, p.BitsPerSubID)
	assert.Equal(t, 1, p.NumWords)

	// fan-in 5 needs ceil(log2(5))=3 bits, +1 = 4 bits per sub-id.
	p = Compute(5, 3)
	assert.Equal(t, 4, p.BitsPerSubID)
	assert.Equal(t, 1, p.NumWords)
}

// Sufficiency of the derived plan.
func TestPlan_Sufficient(t *testing.T) {
	for fanIn := 1; fanIn <= 64; fanIn++ {
		for depth := 0; depth <= 20; depth++ {
			p := Compute(fanIn, depth)
			require.True(t, p.Sufficient(), "fanIn=%d depth=%d bits=%d words=%d", fanIn, depth, p.BitsPerSubID, p.NumWords)
			capacity := 1 << uint(p.BitsPerSubID)
			assert.GreaterOrEqual(t, capacity, fanIn+1)
			assert.LessOrEqual(t, p.BitsPerSubID*(p.Depth+1), 64*p.NumWords)
		}
	}
}

func TestPlan_InsufficientDetected(t *testing.T) {
	p := Plan{BitsPerSubID: 1, NumWords: 1, MaxFanIn: 5, Depth: 0}
	assert.False(t, p.Sufficient())
}

func TestShapeHash_StableAndOrderSensitive(t *testing.T) {
	h1, err := ShapeHash([]string{"arg:dest", "arg:count"})
	require.NoError(t, err)
	h2, err := ShapeHash([]string{"arg:dest", "arg:count"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "identical shapes hash identically")

	h3, err := ShapeHash([]string{"arg:count", "arg:dest"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3, "content-addressed hash distinguishes order")

	h4, err := ShapeHash(nil)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h4)
}
