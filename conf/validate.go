package conf

import (
	"fmt"
	"log"
	"math"
)

var optimisers = map[string]bool{"sgd": true, "momentum": true, "rmsprop": true}

// Resolve checks the option combinations and fills in the derived
// values. It is called once after presets and flag overrides have been
// applied; the returned config is read only for the rest of the run.
func (c Config) Resolve() (Config, error) {
	if c.BatchSize != 0 {
		if c.MicroBatchSize > 1 {
			return c, fmt.Errorf("both BatchSize and MicroBatchSize were given: " +
				"use MicroBatchSize, BatchSize is deprecated and kept for backwards compatibility")
		}
		c.MicroBatchSize = c.BatchSize
		c.BatchSize = 0
	}
	if c.MicroBatchSize < 1 {
		return c, fmt.Errorf("micro batch size must be at least 1")
	}
	// no accumulation unless either quantity was requested
	if c.GradAccumCount == 0 && c.GlobalBatchSize == 0 {
		c.GradAccumCount = 1
	}
	if c.WorkerCount < 1 {
		c.WorkerCount = 1
	}
	if c.WorkerIndex < 0 || c.WorkerIndex >= c.WorkerCount {
		return c, fmt.Errorf("WorkerIndex %d out of range for %d workers", c.WorkerIndex, c.WorkerCount)
	}
	if amps := c.AvailableMemoryProportion; len(amps) > 1 {
		if !c.Pipeline {
			return c, fmt.Errorf("AvailableMemoryProportion should only have one value unless using pipelining")
		}
		if len(amps) != 2*c.Shards {
			return c, fmt.Errorf("AvailableMemoryProportion should have either one value or 2*shards values")
		}
	}
	for _, amp := range c.AvailableMemoryProportion {
		if amp <= 0 || amp > 1 {
			return c, fmt.Errorf("available memory proportion out of range: %g", amp)
		}
	}
	if c.EnableHalfPartials && c.Precision == "32.32" {
		log.Println("half partials are incompatible with float32 training, so the option will be ignored")
		c.EnableHalfPartials = false
	}
	if c.Shards > 1 && !c.Pipeline {
		return c, fmt.Errorf("Shards should be used in combination with Pipeline")
	}
	if len(c.PipelineSplits) > 1 && !c.Pipeline {
		return c, fmt.Errorf("PipelineSplits should be used in combination with Pipeline")
	}
	if c.EpochsPerCkpt != 0 && c.CkptsPerEpoch != 1 {
		return c, fmt.Errorf("cannot use both EpochsPerCkpt and CkptsPerEpoch")
	}
	if c.EpochsPerSync != 0 && c.SyncsPerEpoch != 0 {
		return c, fmt.Errorf("cannot use both EpochsPerSync and SyncsPerEpoch")
	}
	if (c.EpochsPerSync != 0 || c.SyncsPerEpoch != 0) && c.WorkerCount <= 1 {
		return c, fmt.Errorf("cannot sync weights without multiple worker instances")
	}
	if c.Epochs == 0 && c.Iterations == 0 {
		return c, fmt.Errorf("either Epochs or Iterations must be set")
	}
	if !optimisers[c.Optimiser] {
		return c, fmt.Errorf("optimiser %q not recognised", c.Optimiser)
	}
	if len(c.LRDecay) != len(c.LRDecayPoints)+1 {
		return c, fmt.Errorf("LRDecay needs one more value than LRDecayPoints: %d vs %d",
			len(c.LRDecay), len(c.LRDecayPoints))
	}
	if c.DatasetPercentage < 1 || c.DatasetPercentage > 100 {
		return c, fmt.Errorf("DatasetPercentage must be between 1 and 100: %d", c.DatasetPercentage)
	}
	if c.LogsPerEpoch < 1 {
		return c, fmt.Errorf("LogsPerEpoch must be at least 1: %d", c.LogsPerEpoch)
	}
	if c.DeviceIterations < 1 {
		return c, fmt.Errorf("DeviceIterations must be at least 1: %d", c.DeviceIterations)
	}
	if c.NumIOTiles != 0 && c.NumIOTiles < 32 {
		return c, fmt.Errorf("NumIOTiles must be 0 or at least 32: %d", c.NumIOTiles)
	}
	if (c.GeneratedData || c.SyntheticData) && c.DataSet == "" {
		return c, fmt.Errorf("please specify the generated or synthetic dataset using DataSet")
	}
	switch c.DataSet {
	case "cifar-10", "cifar-100":
		if c.ImageSize != 0 && c.ImageSize != 32 {
			return c, fmt.Errorf("ImageSize not supported for CIFAR sized datasets")
		}
		c.ImageSize = 32
	case "imagenet":
		if c.ImageSize == 0 {
			c.ImageSize = 224
		}
	}

	// lr scale accounts for loss scaling unless the optimiser update is
	// divided by a linear function of the gradients
	switch c.Optimiser {
	case "sgd", "momentum":
		c.LRScale = c.LossScaling
		c.GradScale = 1.0
	case "rmsprop":
		c.LRScale = 1.0
		c.GradScale = c.LossScaling
	}

	bc, err := c.Batch()
	if err != nil {
		return c, err
	}
	if c.Pipeline && c.Shards > 1 && bc.GradAccumCount < c.Shards {
		return c, fmt.Errorf("pipelining needs GradAccumCount >= Shards: %d < %d", bc.GradAccumCount, c.Shards)
	}
	if c.AbsLearningRate != 0 {
		c.BaseLRExponent = math.Log2(c.AbsLearningRate / float64(bc.GlobalBatchSize))
	}
	if c.RMSPropBaseDecayExp != 0 {
		if c.RMSPropDecay == 0 {
			c.RMSPropDecay = 1 - math.Exp2(c.RMSPropBaseDecayExp)*float64(bc.GlobalBatchSize)
		} else {
			log.Println("RMSPropBaseDecayExp ignored as RMSPropDecay is already specified")
		}
	}
	return c, nil
}

// BaseLearningRate is the absolute learning rate for the resolved
// global batch size, blr = 2**BaseLRExponent * global batch.
func (c Config) BaseLearningRate(globalBatch int) float64 {
	return math.Exp2(c.BaseLRExponent) * float64(globalBatch)
}
