package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkaf89/IPU-examples/conf"
)

func testConfig() conf.Config {
	c := conf.Default()
	c.DataSet = "cifar-10"
	c.MicroBatchSize = 4
	c.Replicas = 2
	c.GradAccumCount = 4
	c.Epochs = 10
	return c
}

func TestFromConfig(t *testing.T) {
	c, err := testConfig().Resolve()
	require.NoError(t, err)
	o, err := FromConfig(c)
	require.NoError(t, err)
	assert.Equal(t, -1, o.DeviceID)
	assert.Equal(t, 2, o.Replicas)
	assert.Equal(t, Precision{16, 16}, o.Precision)
	assert.Equal(t, RoundingOn, o.StochasticRounding)
	assert.Equal(t, Interleaved, o.PipelineSchedule)
	assert.Equal(t, ConnectOnDemand, o.Connection)
	assert.Equal(t, 0.6, o.GlobalMemoryProportion)
	assert.Equal(t, 2, o.TotalDevices())
}

func TestStageMemoryProportions(t *testing.T) {
	c := testConfig()
	c.Pipeline = true
	c.Shards = 2
	c.AvailableMemoryProportion = []float64{0.6, 0.6, 0.2, 0.2}
	c, err := c.Resolve()
	require.NoError(t, err)
	o, err := FromConfig(c)
	require.NoError(t, err)
	require.Len(t, o.Stages, 2)
	assert.Equal(t, StageOptions{0.6, 0.6}, o.Stages[0])
	assert.Equal(t, StageOptions{0.2, 0.2}, o.Stages[1])
	assert.Equal(t, 4, o.TotalDevices())
}

func TestConnectionType(t *testing.T) {
	c, err := testConfig().Resolve()
	require.NoError(t, err)
	c.CompileOnly = true
	o, err := FromConfig(c)
	require.NoError(t, err)
	assert.Equal(t, ConnectNever, o.Connection)

	c.CompileOnly = false
	c.OnDemand = false
	o, err = FromConfig(c)
	require.NoError(t, err)
	assert.Equal(t, ConnectAlways, o.Connection)
}

func TestSelectDevice(t *testing.T) {
	c, err := testConfig().Resolve()
	require.NoError(t, err)
	c.SelectDevice = "3"
	o, err := FromConfig(c)
	require.NoError(t, err)
	assert.Equal(t, 3, o.DeviceID)

	c.SelectDevice = "first"
	_, err = FromConfig(c)
	assert.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	_, err := ParsePrecision("16.64")
	assert.Error(t, err)
	_, err = ParseStochasticRounding("maybe")
	assert.Error(t, err)
	_, err = ParsePipelineSchedule("random")
	assert.Error(t, err)
}
