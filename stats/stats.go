// Package stats has the running statistics used for training telemetry.
package stats

import (
	"fmt"
	"html/template"
	"math"
)

// Running mean and stddev as per http://www.johndcook.com/blog/standard_deviation/
type Average struct {
	Count, Mean float64
	Var, StdDev float64
	oldM, oldV  float64
}

func (s *Average) Add(x float64) {
	s.Count++
	if s.Count == 1 {
		s.oldM, s.Mean = x, x
		s.oldV = 0
	} else {
		s.Mean = s.oldM + (x-s.oldM)/s.Count
		s.Var = s.oldV + (x-s.oldM)*(x-s.Mean)
		s.oldM, s.oldV = s.Mean, s.Var
		if s.Count > 1 {
			s.StdDev = math.Sqrt(s.Var / (s.Count - 1))
		}
	}
}

func (s *Average) HTML() template.HTML {
	var text string
	if s.Mean > 10 {
		if s.StdDev < 0.1 {
			text = fmt.Sprintf("%.1f", s.Mean)
		} else {
			text = fmt.Sprintf("%.1f&PlusMinus;%.1f", s.Mean, s.StdDev)
		}
	} else {
		if s.StdDev < 0.01 {
			text = fmt.Sprintf("%.2f", s.Mean)
		} else {
			text = fmt.Sprintf("%.2f&PlusMinus;%.2f", s.Mean, s.StdDev)
		}
	}
	return template.HTML(text)
}

// Window is a fixed capacity buffer of the most recent values, used to
// smooth the per step loss, accuracy and timing figures reported by the
// training loop. Once full, adding a value evicts the oldest one.
type Window struct {
	vals []float64
	cap  int
	pos  int
}

// NewWindow creates a window holding up to size values.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{vals: make([]float64, 0, size), cap: size}
}

func (w *Window) Add(x float64) {
	if len(w.vals) < w.cap {
		w.vals = append(w.vals, x)
		return
	}
	w.vals[w.pos] = x
	w.pos = (w.pos + 1) % w.cap
}

func (w *Window) Len() int { return len(w.vals) }

// Mean of the buffered values, zero when empty.
func (w *Window) Mean() float64 {
	if len(w.vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.vals {
		sum += v
	}
	return sum / float64(len(w.vals))
}

// Clear drops all buffered values, keeping the capacity.
func (w *Window) Clear() {
	w.vals = w.vals[:0]
	w.pos = 0
}
