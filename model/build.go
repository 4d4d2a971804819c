package model

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/gkaf89/IPU-examples/ckpt"
	"github.com/gkaf89/IPU-examples/conf"
	"github.com/gkaf89/IPU-examples/dataset"
	"github.com/gkaf89/IPU-examples/schedule"
	"github.com/gkaf89/IPU-examples/train"
)

// BuildTrainer assembles the full training stack for a resolved config:
// data pipelines, host session, learning rate schedule, loop cadence,
// stats log and optional checkpoint mirroring.
func BuildTrainer(c conf.Config) (*train.Trainer, error) {
	bc, err := c.Batch()
	if err != nil {
		return nil, err
	}
	if bc.Adjusted {
		fmt.Println("global batch size rounded to", bc.GlobalBatchSize)
	}
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	info, err := datasetInfo(c)
	if err != nil {
		return nil, err
	}
	scaled := info.Scaled(c.DatasetPercentage)

	data, valid, err := buildPipelines(c, scaled, bc.GlobalBatchSize, rng)
	if err != nil {
		return nil, err
	}
	if n := bc.DiscardedSamples(data.Samples, c.WorkerCount); n > 0 {
		fmt.Printf("discarding %d training samples which do not fill a complete batch\n", n)
	}

	session, err := NewSession(c, data, valid, rng)
	if err != nil {
		return nil, err
	}
	// the unscaled image count keeps the schedule of a full size run
	cadence := train.NewCadence(c, bc, info.NumImages)
	sched, err := schedule.New(c, bc.GlobalBatchSize, cadence.Iterations)
	if err != nil {
		return nil, err
	}
	stats, err := train.NewStatsLog(c.StatsFile)
	if err != nil {
		return nil, err
	}
	var uploader *ckpt.Uploader
	if c.CheckpointBucket != "" {
		if uploader, err = ckpt.NewUploader(c.CheckpointBucket); err != nil {
			return nil, err
		}
	}
	return &train.Trainer{
		Conf:     c,
		Cadence:  cadence,
		Schedule: sched,
		Session:  session,
		Stats:    stats,
		Uploader: uploader,
	}, nil
}

// BenchmarkDataset measures the host input pipeline throughput without
// running the model, reporting samples per second over the given number
// of batches.
func BenchmarkDataset(c conf.Config, batches int) error {
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	bc, err := c.Batch()
	if err != nil {
		return err
	}
	info, err := datasetInfo(c)
	if err != nil {
		return err
	}
	data, _, err := buildPipelines(c, info.Scaled(c.DatasetPercentage), bc.GlobalBatchSize, rng)
	if err != nil {
		return err
	}
	start := time.Now()
	samples := 0
	for i := 0; i < batches; i++ {
		b := data.NextBatch()
		samples += b.N
	}
	elapsed := time.Since(start).Seconds()
	fmt.Printf("dataset benchmark: %d batches, %d samples in %.3fs, %.1f samples/sec\n",
		batches, samples, elapsed, float64(samples)/elapsed)
	return nil
}

func datasetInfo(c conf.Config) (dataset.Info, error) {
	if c.DataSet != "" {
		return dataset.Lookup(c.DataSet)
	}
	return dataset.Infer(c.DataDir)
}

func buildPipelines(c conf.Config, info dataset.Info, globalBatch int, rng *rand.Rand) (data, valid *dataset.Pipeline, err error) {
	microBatch := c.MicroBatchSize * c.Replicas
	if c.GeneratedData || c.SyntheticData {
		// enough random data for one weight update, cycled by the pipeline
		n := globalBatch / max(c.WorkerCount, 1)
		if n < microBatch {
			n = microBatch
		}
		data = dataset.NewPipeline(dataset.Generated(info, n, rng), microBatch, rng)
		valid = dataset.NewPipeline(dataset.Generated(info, n, rng), microBatch, rng)
		return data, valid, nil
	}
	if info.RecordBytes == 0 {
		return nil, nil, fmt.Errorf("%s record files are not supported on the host engine, "+
			"use GeneratedData to benchmark", info.Name)
	}
	dir, err := info.ResolveDir(c.DataDir)
	if err != nil {
		return nil, nil, err
	}
	trainData, err := dataset.LoadCIFAR(info, dir, true)
	if err != nil {
		return nil, nil, err
	}
	data = dataset.NewPipeline(dataset.Augment(trainData, rng), microBatch, rng)
	data.Shard(c.WorkerCount, c.WorkerIndex)
	data.Shuffle()

	if c.Validation {
		testData, err := dataset.LoadCIFAR(info, dir, false)
		if err != nil {
			return nil, nil, err
		}
		// pad with zero samples so sharding does not drop real images
		padded := dataset.Padded(testData, info, microBatch*max(c.WorkerCount, 1))
		valid = dataset.NewPipeline(padded, microBatch, rng)
		valid.Shard(c.WorkerCount, c.WorkerIndex)
	}
	return data, valid, nil
}
