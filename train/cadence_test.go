package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkaf89/IPU-examples/batch"
	"github.com/gkaf89/IPU-examples/conf"
)

func cadenceConfig() conf.Config {
	c := conf.Default()
	c.DataSet = "cifar-10"
	c.MicroBatchSize = 8
	c.GradAccumCount = 4
	c.Epochs = 10
	c.LogsPerEpoch = 4
	return c
}

func newCadence(t *testing.T, c conf.Config) Cadence {
	bc, err := c.Batch()
	require.NoError(t, err)
	return NewCadence(c, bc, 50000)
}

func TestCadenceLengths(t *testing.T) {
	cd := newCadence(t, cadenceConfig())
	// global batch 32 over 50000 images
	assert.Equal(t, 1562, cd.IterationsPerEpoch)
	assert.Equal(t, 15625, cd.Iterations)
	assert.Equal(t, 390, cd.LogFreq)
	// log freq below device iterations so each session call covers it
	assert.Equal(t, 390, cd.IterationsPerStep)
	assert.Equal(t, 1562, cd.IterationsPerCkpt)
	assert.Equal(t, 10.0, cd.Epochs)
}

func TestCadenceIterations(t *testing.T) {
	c := cadenceConfig()
	c.Epochs = 0
	c.Iterations = 5000
	c.LogFreq = 100
	cd := newCadence(t, c)
	assert.Equal(t, 5000, cd.Iterations)
	assert.Equal(t, 100, cd.LogFreq)
	assert.InDelta(t, 3.2, cd.Epochs, 1e-9)
}

func TestLogThisStep(t *testing.T) {
	c := cadenceConfig()
	c.Epochs = 0
	c.Iterations = 1000
	c.LogFreq = 100
	cd := newCadence(t, c)
	step := cd.IterationsPerStep
	assert.Equal(t, 100, step)
	assert.True(t, cd.LogThisStep(0), "always log the first step")
	assert.True(t, cd.LogThisStep(100), "log boundary crossed")
	assert.True(t, cd.LogThisStep(900), "end of run")
	assert.True(t, cd.LogThisStep(800), "within two steps of the end")
}

func TestLogBoundary(t *testing.T) {
	c := cadenceConfig()
	c.Epochs = 0
	c.Iterations = 100000
	c.LogFreq = 1000
	c.DeviceIterations = 250
	cd := newCadence(t, c)
	assert.Equal(t, 250, cd.IterationsPerStep)
	assert.False(t, cd.LogThisStep(250))
	assert.False(t, cd.LogThisStep(500))
	assert.True(t, cd.LogThisStep(750), "crosses the 1000 iteration boundary")
	assert.False(t, cd.LogThisStep(1000))
}

func TestCkptThisStep(t *testing.T) {
	cd := newCadence(t, cadenceConfig())
	step := cd.IterationsPerStep
	assert.False(t, cd.CkptThisStep(0), "initial checkpoint is saved before the loop")
	// 1562 boundary is crossed by the step starting at 1560
	assert.True(t, cd.CkptThisStep(1560))
	assert.False(t, cd.CkptThisStep(step))
	// final step always checkpoints
	last := (cd.Iterations - 1) / step * step
	assert.True(t, cd.CkptThisStep(last))
}

func TestCkptOffset(t *testing.T) {
	c := cadenceConfig()
	c.CkptsPerEpoch = 0
	c.EpochsPerCkpt = 4
	cd := newCadence(t, c)
	// 10 epochs with a ckpt every 4: offset 2 epochs so they land at 6 and 10
	assert.Equal(t, 2*cd.IterationsPerEpoch, cd.CkptOffset)
	assert.False(t, cd.CkptThisStep(0))
	assert.False(t, cd.CkptThisStep(cd.IterationsPerEpoch))
}

func TestSyncThisStep(t *testing.T) {
	c := cadenceConfig()
	c.WorkerCount = 2
	c.SyncsPerEpoch = 2
	cd := newCadence(t, c)
	// two instances double the global batch to 64: 781 iterations per
	// epoch with two syncs each
	assert.Equal(t, 390, cd.IterationsPerSync)
	assert.Equal(t, 195, cd.IterationsPerStep)
	assert.False(t, cd.SyncThisStep(0))
	assert.True(t, cd.SyncThisStep(195))

	cd = newCadence(t, cadenceConfig())
	for i := 0; i < cd.Iterations; i += cd.IterationsPerStep {
		assert.False(t, cd.SyncThisStep(i), "no syncing with a single instance")
	}
}

func TestValidThisStep(t *testing.T) {
	cd := newCadence(t, cadenceConfig())
	assert.True(t, cd.ValidThisStep(1560))
	c := cadenceConfig()
	c.Validation = false
	cd = newCadence(t, c)
	assert.False(t, cd.ValidThisStep(1560))
}

func TestEpoch(t *testing.T) {
	cd := newCadence(t, cadenceConfig())
	assert.InDelta(t, 1.0, cd.Epoch(1562), 1e-3)
	assert.InDelta(t, 0.5, cd.Epoch(781), 1e-3)
}

func TestStepCount(t *testing.T) {
	cd := newCadence(t, cadenceConfig())
	assert.Equal(t, 4, cd.StepCount())

	c := cadenceConfig()
	c.Pipeline = true
	cd = newCadence(t, c)
	assert.Equal(t, 1, cd.StepCount())

	// accumulation derived from a requested global batch size
	c = cadenceConfig()
	c.GradAccumCount = 0
	c.GlobalBatchSize = 32
	cd = newCadence(t, c)
	assert.Equal(t, 4, cd.StepCount())
}

func TestValidInterval(t *testing.T) {
	// datasets smaller than the global batch must not zero the interval
	c := cadenceConfig()
	bc, err := c.Batch()
	require.NoError(t, err)
	cd := NewCadence(c, bc, 16)
	assert.Equal(t, 1, cd.IterationsPerValid)
}

func TestDiscarded(t *testing.T) {
	bc, err := batch.New(4, 2, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, 32, bc.GlobalBatchSize)
	assert.Equal(t, 50000%32, bc.DiscardedSamples(50000, 1))
}
