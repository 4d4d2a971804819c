// Package batch reconciles the batch size quantities for a training run.
//
// A run is described by four related numbers: the micro batch size
// processed on one replica per device step, the number of data parallel
// replicas, the gradient accumulation count and the global batch size.
// Exactly one of the last two is supplied and the other is derived so
// that after construction
//
//	GlobalBatchSize == MicroBatchSize * NumReplicas * GradAccumCount
package batch

import (
	"fmt"
	"log"
	"math"
)

// Config is the resolved relationship between the batch quantities.
// It is built once from the parsed options and read only thereafter.
type Config struct {
	MicroBatchSize  int
	NumReplicas     int
	GradAccumCount  int
	GlobalBatchSize int
	// Number of micro batches contributing to one weight update,
	// used downstream for epoch size and padding calculations.
	MicroBatchesPerWeightUpdate int
	// Adjusted is set when the requested global batch size was not
	// divisible by micro batch size and replica count, so the
	// accumulation count was rounded and the global batch size
	// recomputed. The effective batch size then differs from the one
	// that was asked for.
	Adjusted bool
}

// New resolves a batch configuration. A zero value means the quantity
// was not supplied: exactly one of gradAccum and globalBatch must be
// non-zero.
func New(microBatch, replicas, gradAccum, globalBatch int) (Config, error) {
	if microBatch <= 0 {
		return Config{}, fmt.Errorf("micro batch size must be positive: %d", microBatch)
	}
	if replicas <= 0 {
		return Config{}, fmt.Errorf("number of replicas must be positive: %d", replicas)
	}
	if gradAccum != 0 && globalBatch != 0 {
		return Config{}, fmt.Errorf("cannot specify both gradient accumulation count and global batch size")
	}
	if gradAccum == 0 && globalBatch == 0 {
		return Config{}, fmt.Errorf("either gradient accumulation count or global batch size must be specified")
	}
	c := Config{MicroBatchSize: microBatch, NumReplicas: replicas}
	if gradAccum != 0 {
		if gradAccum < 0 {
			return Config{}, fmt.Errorf("gradient accumulation count must be positive: %d", gradAccum)
		}
		c.GradAccumCount = gradAccum
		c.GlobalBatchSize = microBatch * replicas * gradAccum
	} else {
		if globalBatch < 0 {
			return Config{}, fmt.Errorf("global batch size must be positive: %d", globalBatch)
		}
		samplesPerUpdate := microBatch * replicas
		if globalBatch%samplesPerUpdate == 0 {
			c.GradAccumCount = globalBatch / samplesPerUpdate
		} else {
			quot := float64(globalBatch) / float64(microBatch) / float64(replicas)
			c.GradAccumCount = int(math.Round(quot))
			if c.GradAccumCount < 1 {
				return Config{}, fmt.Errorf("global batch size %d too small for %d micro batch x %d replicas",
					globalBatch, microBatch, replicas)
			}
			c.GlobalBatchSize = samplesPerUpdate * c.GradAccumCount
			c.Adjusted = true
			log.Printf("warning: global batch size not divisible by micro batch size and number of replicas "+
				"(%d/%d/%d = %.2f): gradient accumulation count rounded to %d and new global batch size is %d",
				globalBatch, microBatch, replicas, quot, c.GradAccumCount, c.GlobalBatchSize)
		}
		if !c.Adjusted {
			c.GlobalBatchSize = globalBatch
		}
	}
	c.MicroBatchesPerWeightUpdate = c.GradAccumCount * c.NumReplicas
	return c, nil
}

// MicroBatchesPerEpoch returns the number of full micro batches per
// epoch, aligned down to the weight update granularity.
func (c Config) MicroBatchesPerEpoch(datasetSize int) int {
	samplesPerUpdate := c.MicroBatchSize * c.MicroBatchesPerWeightUpdate
	return datasetSize / samplesPerUpdate * c.MicroBatchesPerWeightUpdate
}

// DiscardedSamples returns the number of trailing samples which do not
// fill an instance batch when the dataset is split evenly across
// numInstances processes.
func (c Config) DiscardedSamples(datasetSize, numInstances int) int {
	instanceBatch := c.GlobalBatchSize / numInstances
	return datasetSize % instanceBatch
}

// PaddingSamples returns the number of zero samples needed to fill the
// final instance batch given the discarded sample count.
func (c Config) PaddingSamples(discarded, numInstances int) int {
	if discarded == 0 {
		return 0
	}
	return c.GlobalBatchSize/numInstances - discarded
}

func (c Config) String() string {
	return fmt.Sprintf("micro batch %d x %d replicas x %d accumulation => global batch %d",
		c.MicroBatchSize, c.NumReplicas, c.GradAccumCount, c.GlobalBatchSize)
}
