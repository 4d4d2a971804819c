package train

import (
	"encoding/csv"
	"fmt"
	"os"
)

var statsHeader = []string{"step", "iteration", "epoch", "lr", "loss_batch", "loss_avg",
	"train_acc_batch", "train_acc_avg", "it_time", "img_per_sec", "total_time"}

// Entry is one logged row of training statistics.
type Entry struct {
	Step      int
	Iteration int
	Epoch     float64
	LR        float64
	Loss      float64
	LossAvg   float64
	Acc       float64
	AccAvg    float64
	StepTime  float64
	PerSec    float64
	TotalTime float64
}

func (e Entry) String() string {
	return fmt.Sprintf("step: %6d, iteration: %6d, epoch: %6.2f, lr: %6.4g, loss: %6.3f"+
		", top-1 accuracy: %6.3f %%, throughput: %6.2f samples/sec, time: %8.6f, total_time: %8.1f",
		e.Step, e.Iteration, e.Epoch, e.LR, e.LossAvg, e.AccAvg*100, e.PerSec, e.StepTime, e.TotalTime)
}

// StatsLog appends training entries to a CSV file for offline analysis.
type StatsLog struct {
	f *os.File
	w *csv.Writer
}

// NewStatsLog creates or truncates the stats file and writes the
// header. An empty path disables logging.
func NewStatsLog(filePath string) (*StatsLog, error) {
	if filePath == "" {
		return &StatsLog{}, nil
	}
	f, err := os.Create(filePath)
	if err != nil {
		return nil, err
	}
	s := &StatsLog{f: f, w: csv.NewWriter(f)}
	if err = s.w.Write(statsHeader); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *StatsLog) Write(e Entry) error {
	if s.w == nil {
		return nil
	}
	err := s.w.Write([]string{
		fmt.Sprint(e.Step),
		fmt.Sprint(e.Iteration),
		fmt.Sprintf("%.4f", e.Epoch),
		fmt.Sprintf("%g", e.LR),
		fmt.Sprintf("%g", e.Loss),
		fmt.Sprintf("%g", e.LossAvg),
		fmt.Sprintf("%g", e.Acc),
		fmt.Sprintf("%g", e.AccAvg),
		fmt.Sprintf("%g", e.StepTime),
		fmt.Sprintf("%g", e.PerSec),
		fmt.Sprintf("%.1f", e.TotalTime),
	})
	if err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *StatsLog) Close() error {
	if s.f == nil {
		return nil
	}
	s.w.Flush()
	return s.f.Close()
}
