// Package train drives the training loop: stepping the compute session
// at the scheduled learning rate, logging windowed statistics,
// checkpointing on the configured cadence and running validation over
// the saved checkpoints.
package train

import (
	"github.com/pkg/errors"

	"github.com/gkaf89/IPU-examples/ckpt"
)

// Result holds the metrics averaged over one call into the session.
type Result struct {
	Loss     float64
	Accuracy float64
	Samples  int
}

// Session is the compute backend running the model. Step runs the
// given number of iterations of forward, backward and weight update at
// the learning rate and returns the metrics of the last batch. Eval
// runs the model over the whole validation set without updates.
type Session interface {
	Step(lr float64, iterations int) (Result, error)
	Eval() (Result, error)
	State() ckpt.State
	SetState(ckpt.State) error
}

// Broadcaster distributes the weights of instance 0 to all worker
// instances. The single process implementation is a no op.
type Broadcaster interface {
	Broadcast(w ckpt.Weights) (ckpt.Weights, error)
}

// NopBroadcaster is used when running a single worker instance.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(w ckpt.Weights) (ckpt.Weights, error) { return w, nil }

// ErrResourceExhausted indicates the device ran out of memory while
// compiling or executing the graph.
var ErrResourceExhausted = errors.New("resource exhausted")
