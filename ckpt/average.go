package ckpt

import "github.com/pkg/errors"

// Mean averages the weights of the given checkpoint files with equal
// weighting, typically those saved over the last N epochs of a run.
func Mean(files []string) (Weights, error) {
	if len(files) == 0 {
		return nil, errors.New("no checkpoints to average")
	}
	sum := map[string][]float64{}
	for _, file := range files {
		s, err := Restore(file)
		if err != nil {
			return nil, err
		}
		for name, vals := range s.Weights {
			acc := sum[name]
			if acc == nil {
				acc = make([]float64, len(vals))
				sum[name] = acc
			}
			if len(acc) != len(vals) {
				return nil, errors.Errorf("checkpoint %s: shape mismatch for %s", file, name)
			}
			for i, v := range vals {
				acc[i] += float64(v)
			}
		}
	}
	n := float64(len(files))
	out := make(Weights, len(sum))
	for name, acc := range sum {
		vals := make([]float32, len(acc))
		for i, v := range acc {
			vals[i] = float32(v / n)
		}
		out[name] = vals
	}
	return out, nil
}

// Exponential folds the checkpoints oldest first into a running
// average, v = decay*v + (1-decay)*w, favouring the recent weights.
func Exponential(files []string, decay float64) (Weights, error) {
	if len(files) == 0 {
		return nil, errors.New("no checkpoints to average")
	}
	var avg map[string][]float64
	for _, file := range files {
		s, err := Restore(file)
		if err != nil {
			return nil, err
		}
		if avg == nil {
			avg = map[string][]float64{}
			for name, vals := range s.Weights {
				acc := make([]float64, len(vals))
				for i, v := range vals {
					acc[i] = float64(v)
				}
				avg[name] = acc
			}
			continue
		}
		for name, vals := range s.Weights {
			acc := avg[name]
			if len(acc) != len(vals) {
				return nil, errors.Errorf("checkpoint %s: shape mismatch for %s", file, name)
			}
			for i, v := range vals {
				acc[i] = decay*acc[i] + (1-decay)*float64(v)
			}
		}
	}
	out := make(Weights, len(avg))
	for name, acc := range avg {
		vals := make([]float32, len(acc))
		for i, v := range acc {
			vals[i] = float32(v)
		}
		out[name] = vals
	}
	return out, nil
}
