// Command train runs a training job from a preset or saved config,
// with command line overrides for the common options.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/gkaf89/IPU-examples/conf"
	"github.com/gkaf89/IPU-examples/device"
	"github.com/gkaf89/IPU-examples/model"
)

func main() {
	log.SetFlags(0)
	var configFile, presetFile, presetName string
	flag.StringVar(&configFile, "config", "", "json config file of a previous run")
	flag.StringVar(&presetFile, "presets", "configs.yml", "yaml preset definitions")
	flag.StringVar(&presetName, "preset", "", "name of the preset to apply")

	c := conf.Default()
	flag.StringVar(&c.Model, "model", c.Model, "model name")
	flag.StringVar(&c.DataSet, "dataset", c.DataSet, "dataset: imagenet, cifar-10 or cifar-100")
	flag.StringVar(&c.DataDir, "data-dir", c.DataDir, "path to the dataset files")
	flag.IntVar(&c.MicroBatchSize, "micro-batch-size", c.MicroBatchSize, "micro batch size per replica")
	flag.IntVar(&c.GradAccumCount, "gradient-accumulation-count", c.GradAccumCount, "micro batches per weight update")
	flag.IntVar(&c.GlobalBatchSize, "global-batch-size", c.GlobalBatchSize, "total batch size per weight update")
	flag.IntVar(&c.Replicas, "replicas", c.Replicas, "number of data parallel replicas")
	flag.Float64Var(&c.Epochs, "epochs", c.Epochs, "number of epochs to train for")
	flag.IntVar(&c.Iterations, "iterations", c.Iterations, "number of iterations, instead of epochs")
	flag.StringVar(&c.Optimiser, "optimiser", c.Optimiser, "optimiser: sgd, momentum or rmsprop")
	flag.StringVar(&c.LRSchedule, "lr-schedule", c.LRSchedule, "learning rate schedule")
	flag.Float64Var(&c.BaseLRExponent, "base-learning-rate", c.BaseLRExponent, "base learning rate exponent")
	flag.Float64Var(&c.AbsLearningRate, "abs-learning-rate", c.AbsLearningRate, "absolute learning rate")
	flag.StringVar(&c.Precision, "precision", c.Precision, "data precision: 16.16, 16.32 or 32.32")
	flag.StringVar(&c.CheckpointDir, "checkpoint-dir", c.CheckpointDir, "directory for saved checkpoints")
	flag.StringVar(&c.RestorePath, "restore", c.RestorePath, "resume from the latest checkpoint in this directory")
	flag.StringVar(&c.InitPath, "init-path", c.InitPath, "initial weights npz archive")
	flag.StringVar(&c.StatsFile, "stats-file", c.StatsFile, "csv stats output file")
	flag.BoolVar(&c.GeneratedData, "generated-data", c.GeneratedData, "use randomly generated data")
	flag.BoolVar(&c.CompileOnly, "compile-only", c.CompileOnly, "compile the graph then exit")
	flag.Int64Var(&c.Seed, "seed", c.Seed, "random number seed")
	flag.IntVar(&c.WorkerCount, "worker-count", c.WorkerCount, "number of distributed worker instances")
	flag.IntVar(&c.WorkerIndex, "worker-index", c.WorkerIndex, "index of this worker instance")
	benchBatches := flag.Int("dataset-benchmark", 0, "measure input pipeline throughput over this many batches then exit")
	flag.Parse()

	if configFile != "" {
		saved, err := conf.Load(configFile)
		checkErr(err)
		c = saved
	} else if presetName != "" {
		presets, err := conf.LoadPresets(presetFile)
		checkErr(err)
		c, err = presets.Apply(c, presetName)
		checkErr(err)
		// flags take precedence over the preset
		flag.Visit(func(f *flag.Flag) {
			var err error
			c, err = applyFlag(c, f.Name, f.Value.String())
			checkErr(err)
		})
	}

	c, err := c.Resolve()
	checkErr(err)
	fmt.Println(c)

	if *benchBatches > 0 {
		checkErr(model.BenchmarkDataset(c, *benchBatches))
		return
	}

	opts, err := device.FromConfig(c)
	checkErr(err)
	fmt.Printf("using %d device(s): %d replicas of %d shard(s) at precision %s\n",
		opts.TotalDevices(), opts.Replicas, opts.Shards, opts.Precision)

	bc, err := c.Batch()
	checkErr(err)
	fmt.Printf("global batch size %d = %d micro batch * %d replicas * %d accumulation\n",
		bc.GlobalBatchSize, bc.MicroBatchSize, bc.NumReplicas, bc.GradAccumCount)

	if c.CheckpointDir == "" {
		c.CheckpointDir = path.Join(".", "checkpoints")
	}
	checkErr(os.MkdirAll(c.CheckpointDir, 0755))
	checkErr(c.Save(path.Join(c.CheckpointDir, "config.json")))

	trainer, err := model.BuildTrainer(c)
	checkErr(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	points, err := trainer.Run(ctx)
	checkErr(err)
	for _, p := range points {
		fmt.Printf("final validation %s: accuracy %.3f %%\n", path.Base(p.Name), p.Result.Accuracy*100)
	}
}

// applyFlag overrides the config field bound to the flag. Flags with no
// config field, like the benchmark mode, are left alone.
func applyFlag(c conf.Config, name, value string) (conf.Config, error) {
	field := flagField(name)
	if field == "" {
		return c, nil
	}
	return c.SetString(field, value)
}

// flagField maps a flag name like micro-batch-size to the config field name.
func flagField(name string) string {
	fields := map[string]string{
		"model": "Model", "dataset": "DataSet", "data-dir": "DataDir",
		"micro-batch-size": "MicroBatchSize", "gradient-accumulation-count": "GradAccumCount",
		"global-batch-size": "GlobalBatchSize", "replicas": "Replicas",
		"epochs": "Epochs", "iterations": "Iterations", "optimiser": "Optimiser",
		"lr-schedule": "LRSchedule", "base-learning-rate": "BaseLRExponent",
		"abs-learning-rate": "AbsLearningRate", "precision": "Precision",
		"checkpoint-dir": "CheckpointDir", "restore": "RestorePath", "init-path": "InitPath",
		"stats-file": "StatsFile", "generated-data": "GeneratedData",
		"compile-only": "CompileOnly", "seed": "Seed",
		"worker-count": "WorkerCount", "worker-index": "WorkerIndex",
	}
	return fields[name]
}

func checkErr(err error) {
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}
