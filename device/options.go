// Package device maps the run configuration onto the resolved execution
// options for the accelerator system: precision, replica and shard
// geometry, pipelining schedule, memory proportions and connection
// handling. It validates the combinations; executing the options is the
// job of whichever session implementation is driven by the trainer.
package device

import (
	"fmt"
	"strings"

	"github.com/gkaf89/IPU-examples/conf"
)

// PipelineSchedule selects how the pipeline stages are interleaved.
type PipelineSchedule int

const (
	Interleaved PipelineSchedule = iota
	Grouped
	Sequential
)

var scheduleNames = map[string]PipelineSchedule{
	"interleaved": Interleaved,
	"grouped":     Grouped,
	"sequential":  Sequential,
}

func ParsePipelineSchedule(s string) (PipelineSchedule, error) {
	if sched, ok := scheduleNames[strings.ToLower(s)]; ok {
		return sched, nil
	}
	return 0, fmt.Errorf("pipeline schedule %q not recognised: choose between interleaved, grouped and sequential", s)
}

func (p PipelineSchedule) String() string {
	for name, val := range scheduleNames {
		if val == p {
			return name
		}
	}
	return "unknown"
}

// StochasticRounding modes for float16 arithmetic.
type StochasticRounding int

const (
	RoundingOff StochasticRounding = iota
	RoundingOn
	RoundingOnPrngStable
	RoundingReplicaIdenticalPrngStable
)

var roundingNames = map[string]StochasticRounding{
	"off":            RoundingOff,
	"on":             RoundingOn,
	"on_prng_stable": RoundingOnPrngStable,
	"ri_prng_stable": RoundingReplicaIdenticalPrngStable,
}

func ParseStochasticRounding(s string) (StochasticRounding, error) {
	if m, ok := roundingNames[strings.ToLower(s)]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("stochastic rounding mode %q not recognised", s)
}

// Precision of ops and master weights, e.g. 16.16 is half precision
// compute with half precision master weights.
type Precision struct {
	Compute int
	Master  int
}

func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "16.16":
		return Precision{16, 16}, nil
	case "16.32":
		return Precision{16, 32}, nil
	case "32.32":
		return Precision{32, 32}, nil
	}
	return Precision{}, fmt.Errorf("precision %q not recognised: choose between 16.16, 16.32 and 32.32", s)
}

func (p Precision) String() string { return fmt.Sprintf("%d.%d", p.Compute, p.Master) }

// ConnectionType controls when the device is attached.
type ConnectionType int

const (
	ConnectAlways ConnectionType = iota
	ConnectOnDemand
	ConnectNever // compile only
)

// StageOptions are the per pipeline stage tuning knobs.
type StageOptions struct {
	ForwardMemoryProportion  float64
	BackwardMemoryProportion float64
}

// Options is the fully resolved device configuration for one run.
type Options struct {
	DeviceID           int // -1 selects automatically
	Replicas           int
	Shards             int
	Precision          Precision
	HalfPartials       bool
	StochasticRounding StochasticRounding
	FPExceptions       bool
	Recomputation      bool
	DeviceIterations   int
	PrefetchDepth      int
	NumIOTiles         int
	Connection         ConnectionType
	Seed               int64

	Pipeline               bool
	PipelineSchedule       PipelineSchedule
	GlobalMemoryProportion float64
	Stages                 []StageOptions
}

// FromConfig resolves the device options from the run configuration.
// The config is assumed to have passed conf.Resolve already; anything
// checked here is specific to the device mapping.
func FromConfig(c conf.Config) (Options, error) {
	o := Options{
		DeviceID:               -1,
		Replicas:               c.Replicas,
		Shards:                 c.Shards,
		HalfPartials:           c.EnableHalfPartials,
		FPExceptions:           c.FPExceptions,
		Recomputation:          c.EnableRecomputation,
		DeviceIterations:       c.DeviceIterations,
		PrefetchDepth:          c.PrefetchDepth,
		NumIOTiles:             c.NumIOTiles,
		Seed:                   c.Seed,
		Pipeline:               c.Pipeline,
		GlobalMemoryProportion: 0.6,
	}
	var err error
	if o.Precision, err = ParsePrecision(c.Precision); err != nil {
		return o, err
	}
	if o.StochasticRounding, err = ParseStochasticRounding(c.StochasticRounding); err != nil {
		return o, err
	}
	if o.PipelineSchedule, err = ParsePipelineSchedule(c.PipelineSchedule); err != nil {
		return o, err
	}
	if sel := strings.ToLower(c.SelectDevice); sel != "" && sel != "auto" {
		if _, err := fmt.Sscanf(sel, "%d", &o.DeviceID); err != nil {
			return o, fmt.Errorf("SelectDevice must be auto or a device id: %q", c.SelectDevice)
		}
	}
	switch {
	case c.CompileOnly:
		o.Connection = ConnectNever
	case c.OnDemand:
		o.Connection = ConnectOnDemand
	}
	if amps := c.AvailableMemoryProportion; len(amps) == 1 {
		o.GlobalMemoryProportion = amps[0]
	} else if len(amps) > 1 {
		// map the pairs of values to the forward and backward phase of
		// each pipeline stage
		for i := 0; i < len(amps)/2; i++ {
			o.Stages = append(o.Stages, StageOptions{
				ForwardMemoryProportion:  amps[2*i],
				BackwardMemoryProportion: amps[2*i+1],
			})
		}
	}
	return o, nil
}

// TotalDevices needed for the run geometry.
func (o Options) TotalDevices() int {
	return o.Replicas * o.Shards
}
