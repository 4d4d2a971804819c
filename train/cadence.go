package train

import (
	"math"

	"github.com/gkaf89/IPU-examples/batch"
	"github.com/gkaf89/IPU-examples/conf"
)

// never is an effectively infinite interval, events with this cadence
// do not fire.
const never = math.MaxInt / 2

// Cadence holds the iteration counts which drive the training loop:
// how long the run is, how many iterations each session call covers and
// when to log, checkpoint, sync and validate.
type Cadence struct {
	Epochs             float64
	Iterations         int
	IterationsPerEpoch int
	IterationsPerStep  int
	LogFreq            int
	IterationsPerCkpt  int
	IterationsPerValid int
	IterationsPerSync  int
	CkptOffset         int
	GlobalBatch        int
	NumImages          int

	validation    bool
	ckptsEnabled  bool
	lateCkptsOnly bool
	stepsPerCall  int
}

// NewCadence derives the loop cadence from the config, batch geometry
// and dataset size. The unscaled image count is used so that reduced
// datasets keep the same schedule as a full run.
func NewCadence(c conf.Config, bc batch.Config, numImages int) Cadence {
	cd := Cadence{
		Epochs:             c.Epochs,
		GlobalBatch:        bc.GlobalBatchSize,
		NumImages:          numImages,
		IterationsPerEpoch: numImages / bc.GlobalBatchSize,
		validation:         c.Validation,
		stepsPerCall:       bc.GradAccumCount,
	}
	if c.Pipeline {
		// the device counts a full pipeline as one step
		cd.stepsPerCall = 1
	}
	if c.Iterations == 0 {
		cd.Iterations = int(float64(numImages) * c.Epochs / float64(bc.GlobalBatchSize))
		cd.LogFreq = cd.IterationsPerEpoch / c.LogsPerEpoch
	} else {
		cd.Iterations = c.Iterations
		cd.LogFreq = c.LogFreq
		if c.Epochs == 0 {
			cd.Epochs = float64(cd.Iterations) * float64(bc.GlobalBatchSize) / float64(numImages)
		}
	}
	if cd.LogFreq < 1 {
		cd.LogFreq = 1
	}
	if cd.LogFreq < c.DeviceIterations {
		cd.IterationsPerStep = cd.LogFreq
	} else {
		cd.IterationsPerStep = cd.LogFreq / int(math.Round(float64(cd.LogFreq)/float64(c.DeviceIterations)))
	}
	if cd.IterationsPerStep < 1 {
		cd.IterationsPerStep = 1
	}
	cd.IterationsPerValid = cd.IterationsPerEpoch
	if cd.IterationsPerValid < 1 {
		cd.IterationsPerValid = 1
	}

	cd.ckptsEnabled = c.CkptsPerEpoch > 0 || c.EpochsPerCkpt > 0
	switch {
	case c.EpochsPerCkpt > 0:
		cd.IterationsPerCkpt = cd.IterationsPerEpoch * c.EpochsPerCkpt
	case c.CkptsPerEpoch > 0:
		cd.IterationsPerCkpt = cd.IterationsPerEpoch / c.CkptsPerEpoch
	default:
		cd.IterationsPerCkpt = never
	}
	if cd.IterationsPerCkpt == 0 {
		cd.IterationsPerCkpt = 1
	}

	// skip intermediate checkpoints when the run length does not divide
	// evenly into the checkpoint interval
	offset := c.CkptEpochsOffset
	if offset == 0 && c.EpochsPerCkpt > 0 && c.Epochs == math.Trunc(c.Epochs) {
		offset = int(c.Epochs) % c.EpochsPerCkpt
	}
	cd.CkptOffset = offset * cd.IterationsPerEpoch
	cd.lateCkptsOnly = c.EpochsPerCkpt > 0 || c.CkptsPerEpoch == 1

	switch {
	case c.SyncsPerEpoch > 0:
		cd.IterationsPerSync = cd.IterationsPerEpoch / c.SyncsPerEpoch
	case c.EpochsPerSync > 0:
		cd.IterationsPerSync = int(float64(cd.IterationsPerEpoch) * c.EpochsPerSync)
	default:
		cd.IterationsPerSync = never
	}
	if cd.IterationsPerSync == 0 {
		cd.IterationsPerSync = 1
	}
	return cd
}

// Epoch gives the fractional epoch reached after iteration i.
func (cd Cadence) Epoch(i int) float64 {
	return float64(cd.GlobalBatch*i) / float64(cd.NumImages)
}

// crossed reports whether the step from i to i+step passes a multiple
// of freq.
func crossed(i, step, freq int) bool {
	return i/freq < (i+step)/freq
}

// LogThisStep is true when stats should be reported after the step
// starting at iteration i: at each log boundary, on the first step and
// near the end of the run.
func (cd Cadence) LogThisStep(i int) bool {
	return crossed(i, cd.IterationsPerStep, cd.LogFreq) ||
		i == 0 ||
		i+2*cd.IterationsPerStep >= cd.Iterations
}

// CkptThisStep is true when a checkpoint should be written after the
// step starting at iteration i. Checkpoints before the offset are
// suppressed, as is the second to last checkpoint of a run which would
// otherwise land within rounding distance of the final one.
func (cd Cadence) CkptThisStep(i int) bool {
	if !cd.ckptsEnabled || i < cd.CkptOffset-cd.IterationsPerStep {
		return false
	}
	this := crossed(i-cd.CkptOffset, cd.IterationsPerStep, cd.IterationsPerCkpt) ||
		i+cd.IterationsPerStep >= cd.Iterations
	if this && cd.lateCkptsOnly &&
		math.Round(cd.Epoch(i+cd.IterationsPerStep)) == cd.Epochs &&
		i+cd.IterationsPerStep < cd.Iterations {
		return false
	}
	return this
}

// ValidThisStep is true when the checkpoint just taken should also be
// queued for validation.
func (cd Cadence) ValidThisStep(i int) bool {
	return cd.validation && cd.CkptThisStep(i)
}

// SyncThisStep is true when the worker instances should re-broadcast
// the weights after the step starting at iteration i.
func (cd Cadence) SyncThisStep(i int) bool {
	return cd.IterationsPerSync < never && crossed(i, cd.IterationsPerStep, cd.IterationsPerSync)
}

// StepCount is the number of weight updates covered by one session
// call.
func (cd Cadence) StepCount() int {
	return cd.stepsPerCall
}
