// Package model provides the host compute engine used by the training
// and validation drivers: a linear softmax classifier with the standard
// optimisers, gradient accumulation and loss scaling. It stands in for
// an accelerator backend while exercising the full training plumbing.
package model

import (
	"math"
	"math/rand"
)

// Linear is a single dense layer with softmax output over flattened
// input features.
type Linear struct {
	W        []float32 // nclasses rows of nfeat weights
	B        []float32
	nfeat    int
	nclasses int
}

// NewLinear initialises the weights with scaled normal values.
func NewLinear(nfeat, nclasses int, rng *rand.Rand) *Linear {
	m := &Linear{
		W:        make([]float32, nclasses*nfeat),
		B:        make([]float32, nclasses),
		nfeat:    nfeat,
		nclasses: nclasses,
	}
	scale := 1 / math.Sqrt(float64(nfeat))
	for i := range m.W {
		m.W[i] = float32(rng.NormFloat64() * scale)
	}
	return m
}

// Logits computes the class scores for one sample.
func (m *Linear) Logits(x []float32, out []float64) {
	for c := 0; c < m.nclasses; c++ {
		row := m.W[c*m.nfeat : (c+1)*m.nfeat]
		sum := float64(m.B[c])
		for j, v := range x {
			sum += float64(row[j]) * float64(v)
		}
		out[c] = sum
	}
}

// softmax converts logits to probabilities in place, shifting by the
// maximum for numerical stability.
func softmax(z []float64) {
	max := z[0]
	for _, v := range z[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for i, v := range z {
		z[i] = math.Exp(v - max)
		sum += z[i]
	}
	for i := range z {
		z[i] /= sum
	}
}

// Grads holds the flattened gradient accumulators for the layer.
type Grads struct {
	W []float32
	B []float32
}

func NewGrads(m *Linear) *Grads {
	return &Grads{W: make([]float32, len(m.W)), B: make([]float32, len(m.B))}
}

func (g *Grads) Zero() {
	for i := range g.W {
		g.W[i] = 0
	}
	for i := range g.B {
		g.B[i] = 0
	}
}

// Scale multiplies the accumulated gradients, e.g. by the loss scaling
// factor or to average over accumulation steps.
func (g *Grads) Scale(s float32) {
	for i := range g.W {
		g.W[i] *= s
	}
	for i := range g.B {
		g.B[i] *= s
	}
}

// BatchGrad runs the forward and backward pass over a micro batch,
// adding the cross entropy gradients into g. Labels outside the class
// range mark padding samples and are skipped. Returns the summed loss
// and the correct prediction count.
func (m *Linear) BatchGrad(x []float32, y []int32, n int, smoothing float64, g *Grads) (loss float64, correct int) {
	probs := make([]float64, m.nclasses)
	for i := 0; i < n; i++ {
		label := int(y[i])
		if label < 0 || label >= m.nclasses {
			continue
		}
		sample := x[i*m.nfeat : (i+1)*m.nfeat]
		m.Logits(sample, probs)
		softmax(probs)
		if argmax(probs) == label {
			correct++
		}
		loss += crossEntropy(probs, label, smoothing, m.nclasses)
		// dL/dz = p - q with q the smoothed one hot target
		off := smoothing / float64(m.nclasses)
		for c := 0; c < m.nclasses; c++ {
			target := off
			if c == label {
				target += 1 - smoothing
			}
			delta := float32(probs[c] - target)
			g.B[c] += delta
			row := g.W[c*m.nfeat : (c+1)*m.nfeat]
			for j, v := range sample {
				row[j] += delta * v
			}
		}
	}
	return loss, correct
}

func argmax(p []float64) int {
	best := 0
	for i, v := range p {
		if v > p[best] {
			best = i
		}
	}
	return best
}

func crossEntropy(probs []float64, label int, smoothing float64, nclasses int) float64 {
	const eps = 1e-12
	off := smoothing / float64(nclasses)
	var loss float64
	for c, p := range probs {
		target := off
		if c == label {
			target += 1 - smoothing
		}
		if target > 0 {
			loss -= target * math.Log(p+eps)
		}
	}
	return loss
}
