// Package dataset loads the image classification datasets and feeds
// preprocessed batches to the trainer. CIFAR-10 and CIFAR-100 are read
// from the standard binary distributions, imagenet from sharded record
// files; generated and zero filled data are available for benchmarking
// and padding.
package dataset

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Info describes the fixed properties of one of the supported datasets.
type Info struct {
	Name            string
	ImageWidth      int
	ImageHeight     int
	NumClasses      int
	NumImages       int
	NumValidImages  int
	ShuffleBuffer   int
	RecordBytes     int
	TrainFiles      []string
	TestFiles       []string
}

func numbered(format string, n int) []string {
	files := make([]string, n)
	for i := range files {
		files[i] = fmt.Sprintf(format, i)
	}
	return files
}

var datasets = map[string]Info{
	"imagenet": {
		Name:           "imagenet",
		ImageWidth:     224,
		ImageHeight:    224,
		NumClasses:     1000,
		NumImages:      1281167,
		NumValidImages: 50000,
		ShuffleBuffer:  10000,
		TrainFiles:     numbered("train-%05d-of-01024", 1024),
		TestFiles:      numbered("validation-%05d-of-00128", 128),
	},
	"cifar-10": {
		Name:           "cifar-10",
		ImageWidth:     32,
		ImageHeight:    32,
		NumClasses:     10,
		NumImages:      50000,
		NumValidImages: 10000,
		ShuffleBuffer:  50000,
		RecordBytes:    32*32*3 + 1,
		TrainFiles: []string{"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin",
			"data_batch_4.bin", "data_batch_5.bin"},
		TestFiles: []string{"test_batch.bin"},
	},
	"cifar-100": {
		Name:           "cifar-100",
		ImageWidth:     32,
		ImageHeight:    32,
		NumClasses:     100,
		NumImages:      50000,
		NumValidImages: 10000,
		ShuffleBuffer:  50000,
		RecordBytes:    32*32*3 + 2,
		TrainFiles:     []string{"train.bin"},
		TestFiles:      []string{"test.bin"},
	},
}

// Lookup returns the dataset description by name.
func Lookup(name string) (Info, error) {
	info, ok := datasets[strings.ToLower(name)]
	if !ok {
		return Info{}, errors.Errorf("unknown dataset %q", name)
	}
	return info, nil
}

// Scaled reduces the dataset to the given percentage of its images and
// file shards. Only imagenet ships enough shards for this to be useful,
// the CIFAR sets are returned unchanged.
func (info Info) Scaled(percent int) Info {
	if info.Name != "imagenet" || percent >= 100 {
		return info
	}
	info.NumImages = info.NumImages * percent / 100
	info.TrainFiles = info.TrainFiles[:len(info.TrainFiles)*percent/100]
	info.TestFiles = info.TestFiles[:len(info.TestFiles)*percent/100]
	return info
}

// Shape of one sample in height, width, depth order.
func (info Info) Shape() []int {
	return []int{info.ImageHeight, info.ImageWidth, 3}
}

var defaultSubdir = map[string]string{
	"cifar-10":  "cifar-10-batches-bin",
	"cifar-100": "cifar-100-binary",
	"imagenet":  "imagenet-data",
}

// Infer guesses the dataset from the data directory name.
func Infer(dataDir string) (Info, error) {
	dir := strings.ToLower(dataDir)
	switch {
	case strings.Contains(dir, "imagenet"):
		return datasets["imagenet"], nil
	case strings.Contains(dir, "cifar100"), strings.Contains(dir, "cifar-100"):
		return datasets["cifar-100"], nil
	case strings.Contains(dir, "cifar"):
		return datasets["cifar-10"], nil
	}
	return Info{}, errors.Errorf("cannot infer the dataset from %q, please specify it", dataDir)
}

// ResolveDir locates the directory holding the dataset files. If dir is
// empty the DATA_DIR environment variable is used. When the first
// training file is not found directly the subdirectories are searched
// for the conventional layout, e.g. cifar-10-batches-bin.
func (info Info) ResolveDir(dir string) (string, error) {
	if dir == "" {
		if dir = os.Getenv("DATA_DIR"); dir == "" {
			return "", errors.New("cannot find the dataset: " +
				"either set the DATA_DIR environment variable or use the DataDir option")
		}
	}
	first := info.TrainFiles[0]
	if _, err := os.Stat(path.Join(dir, first)); err == nil {
		return path.Clean(dir), nil
	}
	subdir := defaultSubdir[info.Name]
	var found string
	filepath.Walk(dir, func(p string, fi os.FileInfo, err error) error {
		if err != nil || found != "" || fi == nil || !fi.IsDir() {
			return nil
		}
		if filepath.Base(p) == subdir {
			if _, err := os.Stat(path.Join(p, first)); err == nil {
				found = p
			}
		}
		return nil
	})
	if found == "" {
		return "", errors.Errorf("no %s dataset found: searched in %s for %s",
			info.Name, dir, path.Join(subdir, first))
	}
	return found, nil
}
