package model

import (
	"math"

	"github.com/pkg/errors"

	"github.com/gkaf89/IPU-examples/ckpt"
	"github.com/gkaf89/IPU-examples/conf"
)

// Optimizer applies a weight update from accumulated gradients. Slot
// accumulators are exposed for checkpointing.
type Optimizer interface {
	Update(name string, w, grad []float32, lr float64)
	Slots() ckpt.Weights
	SetSlots(ckpt.Weights)
}

// NewOptimizer builds the optimiser named in the config. Weight decay
// is applied to weight variables only, biases are excluded as usual.
func NewOptimizer(c conf.Config) (Optimizer, error) {
	switch c.Optimiser {
	case "sgd":
		return &sgd{decay: c.WeightDecay}, nil
	case "momentum":
		return &momentum{decay: c.WeightDecay, momentum: c.Momentum, vel: ckpt.Weights{}}, nil
	case "rmsprop":
		return &rmsprop{decay: c.WeightDecay, rho: c.RMSPropDecay, eps: c.RMSPropEpsilon,
			ms: ckpt.Weights{}}, nil
	}
	return nil, errors.Errorf("optimiser %q not recognised", c.Optimiser)
}

func decayWeights(name string, w []float32, decay, lr float64) {
	if decay == 0 || !isWeight(name) {
		return
	}
	for i := range w {
		w[i] -= float32(lr * decay * float64(w[i]))
	}
}

// only variables named *weight are decayed
func isWeight(name string) bool {
	return len(name) >= 6 && name[len(name)-6:] == "weight"
}

type sgd struct {
	decay float64
}

func (o *sgd) Update(name string, w, grad []float32, lr float64) {
	decayWeights(name, w, o.decay, lr)
	for i := range w {
		w[i] -= float32(lr * float64(grad[i]))
	}
}

func (o *sgd) Slots() ckpt.Weights { return ckpt.Weights{} }

func (o *sgd) SetSlots(ckpt.Weights) {}

type momentum struct {
	decay    float64
	momentum float64
	vel      ckpt.Weights
}

func (o *momentum) Update(name string, w, grad []float32, lr float64) {
	decayWeights(name, w, o.decay, lr)
	v := o.vel[name]
	if v == nil {
		v = make([]float32, len(w))
		o.vel[name] = v
	}
	for i := range w {
		v[i] = float32(o.momentum*float64(v[i]) + float64(grad[i]))
		w[i] -= float32(lr * float64(v[i]))
	}
}

func (o *momentum) Slots() ckpt.Weights { return o.vel.Clone() }

func (o *momentum) SetSlots(s ckpt.Weights) { o.vel = s.Clone() }

type rmsprop struct {
	decay float64
	rho   float64
	eps   float64
	ms    ckpt.Weights
}

func (o *rmsprop) Update(name string, w, grad []float32, lr float64) {
	decayWeights(name, w, o.decay, lr)
	ms := o.ms[name]
	if ms == nil {
		ms = make([]float32, len(w))
		o.ms[name] = ms
	}
	for i := range w {
		g := float64(grad[i])
		ms[i] = float32(o.rho*float64(ms[i]) + (1-o.rho)*g*g)
		w[i] -= float32(lr * g / (math.Sqrt(float64(ms[i])) + o.eps))
	}
}

func (o *rmsprop) Slots() ckpt.Weights { return o.ms.Clone() }

func (o *rmsprop) SetSlots(s ckpt.Weights) { o.ms = s.Clone() }
