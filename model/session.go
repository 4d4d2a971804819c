package model

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/gkaf89/IPU-examples/batch"
	"github.com/gkaf89/IPU-examples/ckpt"
	"github.com/gkaf89/IPU-examples/conf"
	"github.com/gkaf89/IPU-examples/dataset"
	"github.com/gkaf89/IPU-examples/train"
)

// Session runs the linear model on the host, implementing the training
// loop's compute interface. One iteration covers a full global batch:
// the configured number of gradient accumulation steps, each over the
// micro batches of all replicas.
type Session struct {
	cfg   conf.Config
	bc    batch.Config
	model *Linear
	opt   Optimizer
	grads *Grads
	data  *dataset.Pipeline
	valid *dataset.Pipeline
}

// NewSession builds the model and optimiser for the config. The data
// pipeline must deliver micro batches covering all local replicas, the
// validation pipeline may be nil when validation is disabled.
func NewSession(c conf.Config, data, valid *dataset.Pipeline, rng *rand.Rand) (*Session, error) {
	if c.LRScale == 0 || c.GradScale == 0 {
		return nil, errors.New("config has not been resolved")
	}
	bc, err := c.Batch()
	if err != nil {
		return nil, err
	}
	opt, err := NewOptimizer(c)
	if err != nil {
		return nil, err
	}
	shape := data.Shape()
	nfeat := shape[0] * shape[1] * shape[2]
	m := NewLinear(nfeat, len(data.Classes()), rng)
	return &Session{
		cfg:   c,
		bc:    bc,
		model: m,
		opt:   opt,
		grads: NewGrads(m),
		data:  data,
		valid: valid,
	}, nil
}

// Step runs the given number of weight updates at the learning rate and
// returns the metrics of the final global batch. A zero iteration count
// is the warm up call and does nothing.
func (s *Session) Step(lr float64, iterations int) (train.Result, error) {
	var res train.Result
	for it := 0; it < iterations; it++ {
		s.grads.Zero()
		var loss float64
		var correct, samples int
		for a := 0; a < s.bc.GradAccumCount; a++ {
			b := s.data.NextBatch()
			l, c := s.model.BatchGrad(b.X, b.Y, b.N, s.cfg.LabelSmoothing, s.grads)
			loss += l
			correct += c
			samples += b.N
		}
		if samples == 0 {
			return res, errors.New("no samples in training batch")
		}
		// the loss is scaled before the backward pass and the update
		// compensates through the lr and gradient scales
		s.grads.Scale(float32(s.cfg.LossScaling / float64(samples)))
		s.applyUpdate(lr)
		res = train.Result{
			Loss:     loss / float64(samples),
			Accuracy: float64(correct) / float64(samples),
			Samples:  samples,
		}
	}
	return res, nil
}

func (s *Session) applyUpdate(lr float64) {
	gradScale := float32(1 / s.cfg.GradScale)
	scaledLR := lr / s.cfg.LRScale
	wGrad := s.grads.W
	bGrad := s.grads.B
	if s.cfg.GradScale != 1 {
		wGrad = scaled(wGrad, gradScale)
		bGrad = scaled(bGrad, gradScale)
	}
	s.opt.Update("dense/weight", s.model.W, wGrad, scaledLR)
	s.opt.Update("dense/bias", s.model.B, bGrad, scaledLR)
}

func scaled(g []float32, s float32) []float32 {
	out := make([]float32, len(g))
	for i, v := range g {
		out[i] = v * s
	}
	return out
}

// Eval runs one pass over the validation set without weight updates.
// Zero padding samples carry an out of range label and are excluded
// from the counts.
func (s *Session) Eval() (train.Result, error) {
	if s.valid == nil {
		return train.Result{}, errors.New("no validation data")
	}
	probs := make([]float64, len(s.model.B))
	var loss float64
	var correct, samples int
	shape := s.valid.Shape()
	nfeat := shape[0] * shape[1] * shape[2]
	s.valid.Rewind()
	for b := 0; b < s.valid.Batches; b++ {
		mb := s.valid.NextBatch()
		for i := 0; i < mb.N; i++ {
			label := int(mb.Y[i])
			if label < 0 || label >= s.model.nclasses {
				continue
			}
			s.model.Logits(mb.X[i*nfeat:(i+1)*nfeat], probs)
			softmax(probs)
			if argmax(probs) == label {
				correct++
			}
			loss += crossEntropy(probs, label, 0, s.model.nclasses)
			samples++
		}
	}
	if samples == 0 {
		return train.Result{}, errors.New("no samples in validation set")
	}
	return train.Result{
		Loss:     loss / float64(samples),
		Accuracy: float64(correct) / float64(samples),
		Samples:  samples,
	}, nil
}

// State exports the weights and optimiser slots for checkpointing.
func (s *Session) State() ckpt.State {
	return ckpt.State{
		Weights: ckpt.Weights{
			"dense/weight": append([]float32(nil), s.model.W...),
			"dense/bias":   append([]float32(nil), s.model.B...),
		},
		Slots: s.opt.Slots(),
	}
}

// SetState restores the weights and optimiser slots.
func (s *Session) SetState(state ckpt.State) error {
	w, ok := state.Weights["dense/weight"]
	if !ok || len(w) != len(s.model.W) {
		return errors.Errorf("dense/weight missing or wrong size in state")
	}
	b, ok := state.Weights["dense/bias"]
	if !ok || len(b) != len(s.model.B) {
		return errors.Errorf("dense/bias missing or wrong size in state")
	}
	copy(s.model.W, w)
	copy(s.model.B, b)
	if state.Slots != nil {
		s.opt.SetSlots(state.Slots)
	}
	return nil
}
