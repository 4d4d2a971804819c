package web

import (
	"bytes"
	"html/template"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/gkaf89/IPU-examples/train"
)

// LossPlot draws the windowed training loss with the validation loss
// points overlaid.
func (m *Monitor) LossPlot(width, height int) template.HTML {
	plt := newPlot("epoch", "loss")
	line := newLine(m.entries, func(e train.Entry) float64 { return e.LossAvg }, 0)
	plt.Add(line)
	plt.Legend.Add("training loss ", line)
	if pts := evalPoints(m.evals, func(r train.Result) float64 { return r.Loss }); len(pts) > 0 {
		scatter, err := plotter.NewScatter(pts)
		if err == nil {
			scatter.Color = plotutil.Color(1)
			plt.Add(scatter)
			plt.Legend.Add("validation loss ", scatter)
		}
	}
	return writePlot(plt, width, height)
}

// AccuracyPlot draws the top-1 accuracy in percent.
func (m *Monitor) AccuracyPlot(width, height int) template.HTML {
	plt := newPlot("epoch", "top-1 %")
	line := newLine(m.entries, func(e train.Entry) float64 { return e.AccAvg * 100 }, 2)
	plt.Add(line)
	plt.Legend.Add("training accuracy ", line)
	if pts := evalPoints(m.evals, func(r train.Result) float64 { return r.Accuracy * 100 }); len(pts) > 0 {
		scatter, err := plotter.NewScatter(pts)
		if err == nil {
			scatter.Color = plotutil.Color(3)
			plt.Add(scatter)
			plt.Legend.Add("validation accuracy ", scatter)
		}
	}
	return writePlot(plt, width, height)
}

// ThroughputPlot draws the samples per second over the run.
func (m *Monitor) ThroughputPlot(width, height int) template.HTML {
	plt := newPlot("epoch", "samples/sec")
	line := newLine(m.entries, func(e train.Entry) float64 { return e.PerSec }, 4)
	plt.Add(line)
	plt.Legend.Add("throughput ", line)
	return writePlot(plt, width, height)
}

func newPlot(xlabel, ylabel string) *plot.Plot {
	p := plot.New()
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.X.Padding, p.Y.Padding = 0, 0
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

func newLine(entries []train.Entry, value func(train.Entry) float64, colorIx int) *plotter.Line {
	pts := make(plotter.XYs, len(entries))
	for i, e := range entries {
		pts[i].X = e.Epoch
		pts[i].Y = value(e)
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		log.Println("plot error:", err)
		return &plotter.Line{}
	}
	l.Width = 2
	l.Color = plotutil.Color(colorIx)
	return l
}

func evalPoints(evals []train.EvalPoint, value func(train.Result) float64) plotter.XYs {
	pts := make(plotter.XYs, len(evals))
	for i, p := range evals {
		pts[i].X = p.Epoch
		pts[i].Y = value(p.Result)
	}
	return pts
}

func writePlot(p *plot.Plot, w, h int) template.HTML {
	var buf bytes.Buffer
	writer, err := p.WriterTo(vg.Inch*vg.Length(w), vg.Inch*vg.Length(h), "svg")
	if err != nil {
		log.Println("error writing plot:", err)
		return ""
	}
	writer.WriteTo(&buf)
	return template.HTML(buf.String())
}
