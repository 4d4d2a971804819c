// Package ckpt saves and restores training state. Checkpoints are gob
// encoded files named ckpt-<step> under the checkpoint directory, with
// helpers to locate the latest one, average weights across checkpoints,
// import initial weights from npz archives and mirror files to object
// storage.
package ckpt

import (
	"encoding/gob"
	"fmt"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Weights maps variable names to their flattened values.
type Weights map[string][]float32

// Clone returns a deep copy of the weights.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for name, vals := range w {
		out[name] = append([]float32(nil), vals...)
	}
	return out
}

// State is the full restartable training state at one global step.
type State struct {
	Step    int
	Epoch   float64
	Weights Weights
	Slots   Weights // optimiser accumulators
}

// Save writes the state under dir and returns the checkpoint path.
func Save(dir string, s State) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	filePath := path.Join(dir, fmt.Sprintf("ckpt-%d", s.Step))
	tmp := path.Join(dir, fmt.Sprintf(".ckpt-%d", s.Step))
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if err = gob.NewEncoder(f).Encode(s); err != nil {
		f.Close()
		return "", errors.Wrap(err, "error encoding checkpoint")
	}
	f.Close()
	return filePath, os.Rename(tmp, filePath)
}

// Restore reads the state from a checkpoint file.
func Restore(filePath string) (s State, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return s, err
	}
	defer f.Close()
	if err = gob.NewDecoder(f).Decode(&s); err != nil {
		return s, errors.Wrapf(err, "error decoding checkpoint %s", filePath)
	}
	return s, nil
}

var ckptName = regexp.MustCompile(`^ckpt-(\d+)$`)

// List returns the checkpoint paths under dir in increasing step order.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	steps := []int{}
	for _, e := range entries {
		if m := ckptName.FindStringSubmatch(e.Name()); m != nil {
			step, _ := strconv.Atoi(m[1])
			steps = append(steps, step)
		}
	}
	sort.Ints(steps)
	files := make([]string, len(steps))
	for i, step := range steps {
		files[i] = path.Join(dir, fmt.Sprintf("ckpt-%d", step))
	}
	return files, nil
}

// Latest returns the path and step of the newest checkpoint under dir,
// or an empty path when there is none.
func Latest(dir string) (string, int, error) {
	files, err := List(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, nil
		}
		return "", 0, err
	}
	if len(files) == 0 {
		return "", 0, nil
	}
	last := files[len(files)-1]
	m := ckptName.FindStringSubmatch(path.Base(last))
	step, _ := strconv.Atoi(m[1])
	return last, step, nil
}
