// Package conf holds the typed run configuration for the training
// drivers: loading and saving, named preset overlays and validation of
// the option combinations.
package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"reflect"
	"strconv"
	"strings"

	"github.com/gkaf89/IPU-examples/batch"
)

// Training run configuration settings
type Config struct {
	Model       string
	LRSchedule  string
	RestorePath string
	InitPath    string

	DataSet             string
	DataDir             string
	ImageSize           int
	PipelineNumParallel int
	GeneratedData       bool
	SyntheticData       bool
	NoDatasetCache      bool
	NormaliseInput      bool
	EightBitIO          bool
	DatasetPercentage   int

	MicroBatchSize      int
	BatchSize           int // deprecated, kept for backwards compatibility
	GradAccumCount      int
	GlobalBatchSize     int
	Replicas            int
	Shards              int
	Pipeline            bool
	PipelineSplits      []string
	PipelineSchedule    string
	Epochs              float64
	Iterations          int
	LogsPerEpoch        int
	LogFreq             int
	CkptsPerEpoch       int
	EpochsPerCkpt       int
	CkptEpochsOffset    int
	CkptAllInstances    bool
	SyncsPerEpoch       int
	EpochsPerSync       float64
	Validation          bool
	Optimiser           string
	Momentum            float64
	RMSPropDecay        float64
	RMSPropBaseDecayExp float64
	RMSPropEpsilon      float64
	WeightDecay         float64
	LossScaling         float64
	LabelSmoothing      float64
	BaseLRExponent      float64
	AbsLearningRate     float64
	AbsEndLearningRate  float64
	PolyLRDecayPower    float64
	LRDecay             []float64
	LRDecayPoints       []float64
	WarmupEpochs        float64
	WeightAvgN          []int
	WeightAvgExp        []float64

	Precision                 string
	StochasticRounding        string
	DeviceIterations          int
	SelectDevice              string
	FPExceptions              bool
	EnableRecomputation       bool
	EnableHalfPartials        bool
	AvailableMemoryProportion []float64
	NumIOTiles                int
	PrefetchDepth             int
	OnDemand                  bool
	CompileOnly               bool
	Seed                      int64

	CheckpointDir    string
	CheckpointBucket string
	StatsFile        string
	DebugLevel       int

	WorkerCount int
	WorkerIndex int

	// derived in Resolve, not settable
	LRScale   float64 `json:"-"`
	GradScale float64 `json:"-"`
}

// Default returns the baseline configuration before preset and flag overrides.
func Default() Config {
	return Config{
		LRSchedule:          "stepped",
		PipelineNumParallel: 48,
		DatasetPercentage:   100,
		MicroBatchSize:      1,
		Replicas:            1,
		Shards:              1,
		PipelineSchedule:    "interleaved",
		LogsPerEpoch:        1,
		CkptsPerEpoch:       1,
		Validation:          true,
		Optimiser:           "sgd",
		Momentum:            0.9,
		PolyLRDecayPower:    2,
		LRDecay:             []float64{1, 0.1, 0.01},
		LRDecayPoints:       []float64{0.5, 0.75},
		RMSPropEpsilon:      0.001,
		LossScaling:         128,
		Precision:           "16.16",
		StochasticRounding:  "on",
		DeviceIterations:    1000,
		SelectDevice:        "auto",
		OnDemand:            true,
		WorkerCount:         1,
	}
}

// Load reads a JSON config file.
func Load(filePath string) (c Config, err error) {
	var f *os.File
	if f, err = os.Open(filePath); err != nil {
		return
	}
	defer f.Close()
	fmt.Println("loading run config from", filePath)
	c = Default()
	err = json.NewDecoder(f).Decode(&c)
	return
}

// Save writes the config as indented JSON, replacing the file atomically.
func (c Config) Save(filePath string) error {
	dir, name := path.Split(filePath)
	tmp := path.Join(dir, "."+name)
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(c); err != nil {
		f.Close()
		return err
	}
	f.Close()
	return os.Rename(tmp, filePath)
}

// Batch resolves the batch geometry across all workers.
func (c Config) Batch() (batch.Config, error) {
	replicas := c.Replicas
	if c.WorkerCount > 1 {
		replicas *= c.WorkerCount
	}
	return batch.New(c.MicroBatchSize, replicas, c.GradAccumCount, c.GlobalBatchSize)
}

func (c Config) Fields() []string {
	st := reflect.TypeOf(c)
	var fld []string
	for i := 0; i < st.NumField(); i++ {
		if st.Field(i).Tag.Get("json") == "-" {
			continue
		}
		fld = append(fld, st.Field(i).Name)
	}
	return fld
}

func (c Config) Get(key string) interface{} {
	s := reflect.ValueOf(c)
	f := s.FieldByName(key)
	if !f.IsValid() {
		return nil
	}
	return f.Interface()
}

func (c Config) String() string {
	str := []string{"== Config =="}
	for _, key := range c.Fields() {
		str = append(str, fmt.Sprintf("%-26s: %v", key, c.Get(key)))
	}
	return strings.Join(str, "\n")
}

// SetString assigns the named field from its string representation.
func (c Config) SetString(key, val string) (Config, error) {
	s := reflect.ValueOf(&c).Elem()
	f := s.FieldByName(key)
	if !f.IsValid() {
		return c, fmt.Errorf("unknown config option: %s", key)
	}
	var err error
	switch f.Type().Kind() {
	case reflect.Int, reflect.Int64:
		var x int64
		if x, err = strconv.ParseInt(val, 10, 64); err == nil {
			f.SetInt(x)
		}
	case reflect.Float64:
		var x float64
		if x, err = strconv.ParseFloat(val, 64); err == nil {
			f.SetFloat(x)
		}
	case reflect.String:
		f.SetString(val)
	case reflect.Bool:
		var x bool
		if x, err = strconv.ParseBool(val); err == nil {
			f.SetBool(x)
		}
	case reflect.Slice:
		return c.setSlice(key, strings.Fields(val))
	default:
		return c, fmt.Errorf("invalid type for SetString: %v", f.Type().Kind())
	}
	return c, err
}

func (c Config) SetBool(key string, val bool) (Config, error) {
	s := reflect.ValueOf(&c).Elem()
	f := s.FieldByName(key)
	if f.IsValid() && f.Type().Kind() == reflect.Bool {
		f.SetBool(val)
		return c, nil
	}
	return c, fmt.Errorf("invalid type for SetBool: %s", key)
}

func (c Config) setSlice(key string, vals []string) (Config, error) {
	s := reflect.ValueOf(&c).Elem()
	f := s.FieldByName(key)
	elem := f.Type().Elem().Kind()
	out := reflect.MakeSlice(f.Type(), 0, len(vals))
	for _, v := range vals {
		switch elem {
		case reflect.String:
			out = reflect.Append(out, reflect.ValueOf(v))
		case reflect.Int:
			x, err := strconv.Atoi(v)
			if err != nil {
				return c, err
			}
			out = reflect.Append(out, reflect.ValueOf(x))
		case reflect.Float64:
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return c, err
			}
			out = reflect.Append(out, reflect.ValueOf(x))
		default:
			return c, fmt.Errorf("invalid slice element type for %s: %v", key, elem)
		}
	}
	f.Set(out)
	return c, nil
}
