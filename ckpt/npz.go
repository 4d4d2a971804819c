package ckpt

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio/npz"
)

// ImportNPZ reads initial weights exported from another framework as an
// npz archive of float32 arrays, keyed by variable name. Arrays are
// flattened; numpy writes C order layouts so the element order matches
// the row major convention used here.
func ImportNPZ(filePath string) (Weights, error) {
	r, err := npz.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %s", filePath)
	}
	defer r.Close()
	w := Weights{}
	for _, key := range r.Keys() {
		var vals []float32
		if err := r.Read(key, &vals); err != nil {
			return nil, errors.Wrapf(err, "error reading %s from %s", key, filePath)
		}
		w[strings.TrimSuffix(key, ".npy")] = vals
	}
	if len(w) == 0 {
		return nil, errors.Errorf("no arrays found in %s", filePath)
	}
	return w, nil
}
