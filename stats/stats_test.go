package stats

import (
	"html/template"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAverage(t *testing.T) {
	s := new(Average)
	for _, x := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		s.Add(x)
	}
	assert.InDelta(t, 5.0, s.Mean, 1e-9)
	assert.InDelta(t, 2.138, s.StdDev, 0.001)
}

func TestAverageHTML(t *testing.T) {
	s := new(Average)
	s.Add(1000)
	s.Add(1000)
	assert.Equal(t, template.HTML("1000.0"), s.HTML())
	s = new(Average)
	s.Add(1)
	s.Add(2)
	assert.Equal(t, template.HTML("1.50&PlusMinus;0.71"), s.HTML())
}

func TestWindow(t *testing.T) {
	w := NewWindow(3)
	assert.Equal(t, 0.0, w.Mean())
	w.Add(1)
	w.Add(2)
	assert.Equal(t, 1.5, w.Mean())
	w.Add(3)
	w.Add(4) // evicts 1
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 3.0, w.Mean())
	w.Clear()
	assert.Equal(t, 0, w.Len())
	w.Add(7)
	assert.Equal(t, 7.0, w.Mean())
}
