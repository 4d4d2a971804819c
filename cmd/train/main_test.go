package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkaf89/IPU-examples/conf"
)

func TestApplyFlag(t *testing.T) {
	c := conf.Default()
	c, err := applyFlag(c, "micro-batch-size", "8")
	require.NoError(t, err)
	assert.Equal(t, 8, c.MicroBatchSize)

	c, err = applyFlag(c, "global-batch-size", "256")
	require.NoError(t, err)
	assert.Equal(t, 256, c.GlobalBatchSize)

	// flags without a config field pass through unchanged
	got, err := applyFlag(c, "dataset-benchmark", "100")
	require.NoError(t, err)
	assert.Equal(t, c, got)
	got, err = applyFlag(c, "config", "run.json")
	require.NoError(t, err)
	assert.Equal(t, c, got)
}
