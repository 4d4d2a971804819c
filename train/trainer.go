package train

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/gkaf89/IPU-examples/ckpt"
	"github.com/gkaf89/IPU-examples/conf"
	"github.com/gkaf89/IPU-examples/schedule"
	"github.com/gkaf89/IPU-examples/stats"
)

// Trainer runs the training loop over a Session.
type Trainer struct {
	Conf      conf.Config
	Cadence   Cadence
	Schedule  schedule.Schedule
	Session   Session
	Broadcast Broadcaster
	Stats     *StatsLog
	Uploader  *ckpt.Uploader
	OnLog     func(Entry)
	OnEval    func(iteration int, epoch float64, r Result)
}

// EvalPoint records a validation result at one checkpoint.
type EvalPoint struct {
	Iteration int
	Epoch     float64
	Name      string
	Result    Result
}

type validPoint struct {
	iteration int
	epoch     float64
	file      string
}

// Run executes the full training run and returns the validation
// results in the order they were evaluated.
func (t *Trainer) Run(ctx context.Context) ([]EvalPoint, error) {
	cd := t.Cadence
	c := t.Conf
	if t.Broadcast == nil {
		t.Broadcast = NopBroadcaster{}
	}
	if t.Stats == nil {
		t.Stats = &StatsLog{}
	}
	startIter, ckpts, validPoints, err := t.restore()
	if err != nil {
		return nil, err
	}
	instance0 := c.WorkerIndex == 0

	if c.CkptsPerEpoch > 0 && instance0 && startIter == 0 {
		file, err := t.saveCkpt(0, 0)
		if err != nil {
			return nil, err
		}
		fmt.Println("saved initial checkpoint to", file)
	}

	// warm up step without weight update, the graph is compiled here
	compileStart := time.Now()
	if _, err := t.Session.Step(0, 0); err != nil {
		return nil, err
	}
	fmt.Printf("compilation time: %.3fs\n", time.Since(compileStart).Seconds())
	if c.CompileOnly {
		fmt.Println("training graph successfully compiled")
		return nil, nil
	}

	window := cd.IterationsPerEpoch / cd.IterationsPerStep
	if window < 1 {
		window = 1
	}
	lossWin := stats.NewWindow(window)
	accWin := stats.NewWindow(window)
	timeWin := stats.NewWindow(window)

	step := 0
	startAll := time.Now()
	stepCount := cd.StepCount()

	for i := startIter; i < cd.Iterations; i += cd.IterationsPerStep {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		epoch := cd.Epoch(i + cd.IterationsPerStep)
		step += stepCount

		lr := t.Schedule.LRAt(i + cd.IterationsPerStep/2)
		stepStart := time.Now()
		res, err := t.Session.Step(lr, cd.IterationsPerStep)
		if err != nil {
			return nil, err
		}
		stepTime := time.Since(stepStart).Seconds() / float64(cd.IterationsPerStep)

		lossWin.Add(res.Loss)
		accWin.Add(res.Accuracy)
		if i != 0 {
			timeWin.Add(stepTime)
		}

		if cd.LogThisStep(i) {
			avgTime := stepTime
			if timeWin.Len() > 0 {
				avgTime = timeWin.Mean()
			}
			timeWin.Clear()
			e := Entry{
				Step:      step,
				Iteration: i + cd.IterationsPerStep,
				Epoch:     epoch,
				LR:        lr,
				Loss:      res.Loss,
				LossAvg:   lossWin.Mean(),
				Acc:       res.Accuracy,
				AccAvg:    accWin.Mean(),
				StepTime:  avgTime,
				PerSec:    float64(cd.GlobalBatch) / avgTime,
				TotalTime: time.Since(startAll).Seconds(),
			}
			fmt.Println(e)
			if err := t.Stats.Write(e); err != nil {
				return nil, err
			}
			if t.OnLog != nil {
				t.OnLog(e)
			}
		}

		if cd.CkptThisStep(i) && (instance0 || c.CkptAllInstances) {
			ckptStart := time.Now()
			file, err := t.saveCkpt(i+cd.IterationsPerStep, epoch)
			if err != nil {
				return nil, err
			}
			fmt.Printf("saved checkpoint to %s in %.3fs\n", file, time.Since(ckptStart).Seconds())
			ckpts = append(ckpts, file)
			if cd.ValidThisStep(i) {
				validPoints = append(validPoints, validPoint{i + cd.IterationsPerStep, epoch, file})
			}
		}

		if cd.SyncThisStep(i) {
			if err := t.syncWeights(); err != nil {
				return nil, err
			}
		}
	}
	fmt.Printf("training loop completed in %.3fs\n", time.Since(startAll).Seconds())

	// weight averaging over the saved checkpoints, evaluated with the rest
	if instance0 {
		points, err := t.averageWeights(ckpts)
		if err != nil {
			return nil, err
		}
		validPoints = append(validPoints, points...)
	}

	if !c.Validation {
		return nil, nil
	}
	return t.validate(ctx, validPoints)
}

// restore resumes from the latest checkpoint under RestorePath, or
// initialises the weights from an npz archive given by InitPath.
func (t *Trainer) restore() (startIter int, ckpts []string, points []validPoint, err error) {
	c := t.Conf
	if c.InitPath != "" {
		w, err := ckpt.ImportNPZ(c.InitPath)
		if err != nil {
			return 0, nil, nil, err
		}
		state := t.Session.State()
		state.Weights = w
		if err = t.Session.SetState(state); err != nil {
			return 0, nil, nil, err
		}
		fmt.Println("initialised weights from", c.InitPath)
	}
	if c.RestorePath == "" {
		return 0, nil, nil, nil
	}
	file, step, err := ckpt.Latest(c.RestorePath)
	if err != nil || file == "" {
		return 0, nil, nil, err
	}
	state, err := ckpt.Restore(file)
	if err != nil {
		return 0, nil, nil, err
	}
	if err = t.Session.SetState(state); err != nil {
		return 0, nil, nil, err
	}
	fmt.Println("restoring training from latest checkpoint:", file)
	// rebuild the checkpoint and validation lists for the completed part
	files, err := ckpt.List(c.RestorePath)
	if err != nil {
		return 0, nil, nil, err
	}
	for _, f := range files {
		s, err := ckpt.Restore(f)
		if err != nil {
			return 0, nil, nil, err
		}
		if s.Step == 0 {
			continue
		}
		ckpts = append(ckpts, f)
		prev := s.Step - t.Cadence.IterationsPerStep
		if t.Conf.Validation &&
			(crossed(prev, t.Cadence.IterationsPerStep, t.Cadence.IterationsPerValid) ||
				prev == 0 || prev+2*t.Cadence.IterationsPerStep >= t.Cadence.Iterations) {
			points = append(points, validPoint{s.Step, s.Epoch, f})
		}
	}
	return step, ckpts, points, nil
}

func (t *Trainer) saveCkpt(iteration int, epoch float64) (string, error) {
	state := t.Session.State()
	state.Step = iteration
	state.Epoch = epoch
	file, err := ckpt.Save(t.Conf.CheckpointDir, state)
	if err != nil {
		return "", err
	}
	if t.Uploader != nil {
		if err := t.Uploader.Upload(context.Background(), file); err != nil {
			return "", err
		}
	}
	return file, nil
}

func (t *Trainer) syncWeights() error {
	start := time.Now()
	state := t.Session.State()
	w, err := t.Broadcast.Broadcast(state.Weights)
	if err != nil {
		return err
	}
	state.Weights = w
	if err = t.Session.SetState(state); err != nil {
		return err
	}
	fmt.Printf("synced weights in %.3fs\n", time.Since(start).Seconds())
	return nil
}

// averageWeights writes the configured mean and exponential weight
// averages as extra checkpoints and queues them for validation.
func (t *Trainer) averageWeights(files []string) ([]validPoint, error) {
	c := t.Conf
	if len(files) == 0 || (len(c.WeightAvgN) == 0 && len(c.WeightAvgExp) == 0) {
		return nil, nil
	}
	last, err := ckpt.Restore(files[len(files)-1])
	if err != nil {
		return nil, err
	}
	var points []validPoint
	save := func(name string, w ckpt.Weights) error {
		state := last
		state.Weights = w
		file, err := ckpt.Save(c.CheckpointDir+"/"+name, state)
		if err != nil {
			return err
		}
		points = append(points, validPoint{last.Step, last.Epoch, file})
		return nil
	}
	for _, n := range c.WeightAvgN {
		// average the checkpoints from the last n epochs
		recent := []string{}
		for _, f := range files {
			s, err := ckpt.Restore(f)
			if err != nil {
				return nil, err
			}
			if math.Round(s.Epoch*10)/10 >= math.Round(last.Epoch*10)/10-float64(n) {
				recent = append(recent, f)
			}
		}
		w, err := ckpt.Mean(recent)
		if err != nil {
			return nil, err
		}
		if err = save(fmt.Sprintf("weight_avg_N_%d", n), w); err != nil {
			return nil, err
		}
	}
	for _, decay := range c.WeightAvgExp {
		w, err := ckpt.Exponential(files, decay)
		if err != nil {
			return nil, err
		}
		if err = save(fmt.Sprintf("weight_avg_exp_%g", decay), w); err != nil {
			return nil, err
		}
	}
	return points, nil
}

// validate restores each queued checkpoint in turn and evaluates the
// model on the validation set.
func (t *Trainer) validate(ctx context.Context, points []validPoint) ([]EvalPoint, error) {
	final := t.Session.State()
	var out []EvalPoint
	for _, p := range points {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		state, err := ckpt.Restore(p.file)
		if err != nil {
			return out, err
		}
		if err = t.Session.SetState(state); err != nil {
			return out, err
		}
		res, err := t.Session.Eval()
		if err != nil {
			return out, errors.Wrapf(err, "error validating %s", p.file)
		}
		fmt.Printf("validation at iteration %6d, epoch %6.2f: loss: %6.3f, accuracy: %6.3f %%\n",
			p.iteration, p.epoch, res.Loss, res.Accuracy*100)
		if t.OnEval != nil {
			t.OnEval(p.iteration, p.epoch, res)
		}
		out = append(out, EvalPoint{Iteration: p.iteration, Epoch: p.epoch, Name: p.file, Result: res})
	}
	// leave the session holding the final training weights
	if err := t.Session.SetState(final); err != nil {
		return out, err
	}
	return out, nil
}
