package schedule

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkaf89/IPU-examples/conf"
)

func testConfig() conf.Config {
	c := conf.Default()
	c.DataSet = "cifar-10"
	c.MicroBatchSize = 4
	c.GradAccumCount = 8
	c.Epochs = 10
	c.BaseLRExponent = -6
	return c
}

func TestStepped(t *testing.T) {
	c := testConfig()
	s, err := New(c, 32, 1000)
	require.NoError(t, err)
	base := math.Exp2(-6) * 32 // 0.5
	assert.Equal(t, base, s.LRAt(0))
	assert.Equal(t, base, s.LRAt(499))
	assert.Equal(t, base*0.1, s.LRAt(500))
	assert.Equal(t, base*0.1, s.LRAt(749))
	assert.Equal(t, base*0.01, s.LRAt(750))
	assert.Equal(t, base*0.01, s.LRAt(999))
}

func TestWarmup(t *testing.T) {
	c := testConfig()
	c.WarmupEpochs = 1
	s, err := New(c, 32, 1000)
	require.NoError(t, err)
	base := 0.5
	assert.InDelta(t, base/100, s.LRAt(0), 1e-12)
	assert.InDelta(t, base/2, s.LRAt(49), 1e-12)
	assert.InDelta(t, base, s.LRAt(99), 1e-12)
	assert.Equal(t, base, s.LRAt(100))
}

func TestCosine(t *testing.T) {
	c := testConfig()
	c.LRSchedule = "cosine"
	s, err := New(c, 32, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s.LRAt(0), 1e-12)
	assert.InDelta(t, 0.25, s.LRAt(500), 1e-12)
	assert.InDelta(t, 0, s.LRAt(1000), 1e-6)
	// monotone decreasing without warmup
	prev := math.Inf(1)
	for i := 0; i < 1000; i += 100 {
		lr := s.LRAt(i)
		assert.Less(t, lr, prev)
		prev = lr
	}
}

func TestPolynomial(t *testing.T) {
	c := testConfig()
	c.LRSchedule = "polynomial"
	c.AbsEndLearningRate = 0.001
	s, err := New(c, 32, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s.LRAt(0), 1e-12)
	assert.InDelta(t, 0.001, s.LRAt(1000), 1e-9)
	mid := s.LRAt(500)
	assert.InDelta(t, (0.5-0.001)*0.25+0.001, mid, 1e-9)
}

func TestExponential(t *testing.T) {
	c := testConfig()
	c.LRSchedule = "exponential"
	s, err := New(c, 32, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s.LRAt(0), 1e-12)
	assert.InDelta(t, 0.5*0.01, s.LRAt(1000), 1e-9)
	assert.InDelta(t, 0.5*0.1, s.LRAt(500), 1e-9)
}

func TestUnknownSchedule(t *testing.T) {
	c := testConfig()
	c.LRSchedule = "cyclic"
	_, err := New(c, 32, 1000)
	assert.Error(t, err)
}
