package conf

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	c := Default()
	c.DataSet = "cifar-10"
	c.MicroBatchSize = 4
	c.Replicas = 2
	c.GradAccumCount = 4
	c.Epochs = 10
	return c
}

func TestResolve(t *testing.T) {
	c, err := validConfig().Resolve()
	require.NoError(t, err)
	assert.Equal(t, 32, c.ImageSize)
	assert.Equal(t, c.LossScaling, c.LRScale)
	assert.Equal(t, 1.0, c.GradScale)
	bc, err := c.Batch()
	require.NoError(t, err)
	assert.Equal(t, 32, bc.GlobalBatchSize)
}

func TestResolveGlobalBatch(t *testing.T) {
	c := Default()
	c.DataSet = "cifar-10"
	c.MicroBatchSize = 4
	c.Replicas = 2
	c.GlobalBatchSize = 32
	c.Epochs = 10
	c, err := c.Resolve()
	require.NoError(t, err)
	bc, err := c.Batch()
	require.NoError(t, err)
	assert.Equal(t, 4, bc.GradAccumCount)
	assert.Equal(t, 32, bc.GlobalBatchSize)

	// neither quantity given defaults to no accumulation
	c = Default()
	c.DataSet = "cifar-10"
	c.MicroBatchSize = 4
	c.Epochs = 1
	c, err = c.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 1, c.GradAccumCount)
}

func TestResolvePresetGlobalBatch(t *testing.T) {
	yamlText := `
bench:
  DataSet: imagenet
  GeneratedData: true
  MicroBatchSize: 4
  Replicas: 2
  GlobalBatchSize: 256
  Iterations: 500
`
	dir := t.TempDir()
	file := path.Join(dir, "configs.yml")
	require.NoError(t, os.WriteFile(file, []byte(yamlText), 0644))
	p, err := LoadPresets(file)
	require.NoError(t, err)
	c, err := p.Apply(Default(), "bench")
	require.NoError(t, err)
	c, err = c.Resolve()
	require.NoError(t, err)
	bc, err := c.Batch()
	require.NoError(t, err)
	assert.Equal(t, 32, bc.GradAccumCount)
	assert.Equal(t, 256, bc.GlobalBatchSize)
}

func TestResolveErrors(t *testing.T) {
	c := validConfig()
	c.Shards = 2
	_, err := c.Resolve()
	assert.Error(t, err, "shards without pipelining")

	c = validConfig()
	c.PipelineSplits = []string{"b2/relu", "b3/relu"}
	_, err = c.Resolve()
	assert.Error(t, err, "pipeline splits without pipelining")

	c = validConfig()
	c.AvailableMemoryProportion = []float64{0.6, 0.6}
	_, err = c.Resolve()
	assert.Error(t, err, "multiple memory proportions without pipelining")

	c = validConfig()
	c.Pipeline = true
	c.Shards = 2
	c.AvailableMemoryProportion = []float64{0.6, 0.6, 0.2}
	_, err = c.Resolve()
	assert.Error(t, err, "memory proportions must be 1 or 2*shards")

	c = validConfig()
	c.EpochsPerCkpt = 2
	c.CkptsPerEpoch = 4
	_, err = c.Resolve()
	assert.Error(t, err, "epochs per ckpt and ckpts per epoch are exclusive")

	c = validConfig()
	c.SyncsPerEpoch = 2
	_, err = c.Resolve()
	assert.Error(t, err, "sync needs multiple workers")

	c = validConfig()
	c.Epochs = 0
	_, err = c.Resolve()
	assert.Error(t, err, "epochs or iterations required")

	c = validConfig()
	c.Optimiser = "lamb"
	_, err = c.Resolve()
	assert.Error(t, err, "unknown optimiser")

	c = validConfig()
	c.ImageSize = 224
	_, err = c.Resolve()
	assert.Error(t, err, "image size fixed for cifar")

	c = validConfig()
	c.BatchSize = 8
	c.MicroBatchSize = 4
	_, err = c.Resolve()
	assert.Error(t, err, "deprecated batch size alias conflicts")

	c = validConfig()
	c.NumIOTiles = 16
	_, err = c.Resolve()
	assert.Error(t, err, "io tiles below minimum")
}

func TestBatchAlias(t *testing.T) {
	c := validConfig()
	c.MicroBatchSize = 1
	c.BatchSize = 8
	c, err := c.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 8, c.MicroBatchSize)
	assert.Equal(t, 0, c.BatchSize)
}

func TestHalfPartialsIgnored(t *testing.T) {
	c := validConfig()
	c.Precision = "32.32"
	c.EnableHalfPartials = true
	c, err := c.Resolve()
	require.NoError(t, err)
	assert.False(t, c.EnableHalfPartials)
}

func TestSetString(t *testing.T) {
	c := Default()
	c, err := c.SetString("Epochs", "12.5")
	require.NoError(t, err)
	assert.Equal(t, 12.5, c.Epochs)
	c, err = c.SetString("Optimiser", "momentum")
	require.NoError(t, err)
	assert.Equal(t, "momentum", c.Optimiser)
	c, err = c.SetString("Pipeline", "true")
	require.NoError(t, err)
	assert.True(t, c.Pipeline)
	c, err = c.SetString("AvailableMemoryProportion", "0.6 0.2")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.6, 0.2}, c.AvailableMemoryProportion)
	_, err = c.SetString("NoSuchOption", "1")
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	file := path.Join(dir, "run.json")
	c := validConfig()
	c.Model = "resnet8"
	require.NoError(t, c.Save(file))
	got, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "resnet8", got.Model)
	assert.Equal(t, c.MicroBatchSize, got.MicroBatchSize)
}

func TestPresets(t *testing.T) {
	yamlText := `
mk2_bs32:
  Model: resnet8
  MicroBatchSize: 8
  Replicas: 2
  GradAccumCount: 2
  Epochs: 5
  Pipeline: true
  Shards: 2
  AvailableMemoryProportion: [0.6, 0.6, 0.2, 0.2]
bad_keys:
  NoSuchField: 1
`
	dir := t.TempDir()
	file := path.Join(dir, "configs.yml")
	require.NoError(t, os.WriteFile(file, []byte(yamlText), 0644))

	p, err := LoadPresets(file)
	require.NoError(t, err)
	assert.Equal(t, []string{"bad_keys", "mk2_bs32"}, p.Names())

	c, err := p.Apply(Default(), "mk2_bs32")
	require.NoError(t, err)
	assert.Equal(t, "resnet8", c.Model)
	assert.Equal(t, 8, c.MicroBatchSize)
	assert.Equal(t, 2, c.Replicas)
	assert.True(t, c.Pipeline)
	assert.Equal(t, []float64{0.6, 0.6, 0.2, 0.2}, c.AvailableMemoryProportion)

	_, err = p.Apply(Default(), "bad_keys")
	assert.Error(t, err, "unknown preset keys are rejected")

	_, err = p.Apply(Default(), "missing")
	assert.Error(t, err, "unknown preset name")
}
