package dataset

import (
	"bufio"
	"io"
	"math"
	"math/rand"
	"os"
	"path"
	"strconv"

	"github.com/pkg/errors"
)

// Data is the raw sample store for a training or test set. Input and
// Label copy the selected samples into caller provided buffers so that
// batch assembly does not allocate.
type Data interface {
	Len() int
	Classes() []string
	Shape() []int
	Label(index []int, label []int32)
	Input(index []int, buf []float32)
}

type samples struct {
	Class  []string
	Dims   []int
	Labels []int32
	Inputs []float32
}

// NewData wraps preprocessed samples as a Data set with numbered classes.
func NewData(nclasses int, shape []int, labels []int32, inputs []float32) Data {
	classes := make([]string, nclasses)
	for i := range classes {
		classes[i] = strconv.Itoa(i)
	}
	return samples{Class: classes, Dims: shape, Labels: labels, Inputs: inputs}
}

func (d samples) Len() int { return len(d.Labels) }

func (d samples) Classes() []string { return d.Class }

func (d samples) Shape() []int { return d.Dims }

func (d samples) Label(index []int, label []int32) {
	for i, ix := range index {
		label[i] = d.Labels[ix]
	}
}

func (d samples) Input(index []int, buf []float32) {
	nfeat := prod(d.Dims)
	for i, ix := range index {
		copy(buf[i*nfeat:], d.Inputs[ix*nfeat:(ix+1)*nfeat])
	}
}

func prod(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// LoadCIFAR reads the binary CIFAR distribution from dir and returns
// the standardised samples. Records hold the label bytes followed by
// the image in depth major order; cifar-100 prepends a coarse label
// which is skipped.
func LoadCIFAR(info Info, dir string, training bool) (Data, error) {
	files := info.TestFiles
	if training {
		files = info.TrainFiles
	}
	shape := info.Shape()
	nfeat := prod(shape)
	labelByte := 0
	if info.Name == "cifar-100" {
		labelByte = 1
	}
	var labels []int32
	var inputs []float32
	record := make([]byte, info.RecordBytes)
	pixels := make([]float32, nfeat)
	for _, name := range files {
		f, err := os.Open(path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		r := bufio.NewReader(f)
		for {
			if _, err = io.ReadFull(r, record); err != nil {
				break
			}
			labels = append(labels, int32(record[labelByte]))
			depthToHWC(record[labelByte+1:], pixels, info.ImageHeight, info.ImageWidth)
			standardize(pixels)
			inputs = append(inputs, pixels...)
		}
		f.Close()
		if err != io.EOF {
			return nil, errors.Wrapf(err, "error reading %s", name)
		}
	}
	if len(labels) == 0 {
		return nil, errors.Errorf("no records found in %s", dir)
	}
	return NewData(info.NumClasses, shape, labels, inputs), nil
}

// depthToHWC converts a [depth, height, width] byte image to float32
// pixels in [height, width, depth] order.
func depthToHWC(raw []byte, out []float32, height, width int) {
	for c := 0; c < 3; c++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				out[(y*width+x)*3+c] = float32(raw[c*height*width+y*width+x])
			}
		}
	}
}

// standardize scales the image to zero mean and unit variance in place.
// The stddev is clamped to 1/sqrt(N) so that uniform images do not
// divide by zero.
func standardize(pixels []float32) {
	n := float64(len(pixels))
	var sum, sum2 float64
	for _, p := range pixels {
		sum += float64(p)
		sum2 += float64(p) * float64(p)
	}
	mean := sum / n
	std := math.Sqrt(sum2/n - mean*mean)
	if min := 1 / math.Sqrt(n); std < min {
		std = min
	}
	for i, p := range pixels {
		pixels[i] = float32((float64(p) - mean) / std)
	}
}

// augmented wraps a training set with random left right flips and a
// random crop from a 4 pixel zero padded border, applied when samples
// are fetched.
type augmented struct {
	Data
	rng *rand.Rand
	pad int
}

// Augment applies the CIFAR training augmentations to the data set.
func Augment(d Data, rng *rand.Rand) Data {
	return &augmented{Data: d, rng: rng, pad: 4}
}

func (d *augmented) Input(index []int, buf []float32) {
	d.Data.Input(index, buf)
	shape := d.Shape()
	height, width, depth := shape[0], shape[1], shape[2]
	nfeat := height * width * depth
	padded := make([]float32, (height+2*d.pad)*(width+2*d.pad)*depth)
	for i := range index {
		img := buf[i*nfeat : (i+1)*nfeat]
		if d.rng.Intn(2) == 1 {
			flipLeftRight(img, height, width, depth)
		}
		dy := d.rng.Intn(2*d.pad + 1)
		dx := d.rng.Intn(2*d.pad + 1)
		padCrop(img, padded, height, width, depth, d.pad, dy, dx)
	}
}

func flipLeftRight(img []float32, height, width, depth int) {
	for y := 0; y < height; y++ {
		row := img[y*width*depth : (y+1)*width*depth]
		for x := 0; x < width/2; x++ {
			x2 := width - 1 - x
			for c := 0; c < depth; c++ {
				row[x*depth+c], row[x2*depth+c] = row[x2*depth+c], row[x*depth+c]
			}
		}
	}
}

// padCrop copies img into a zero border of pad pixels then crops the
// original sized window at offset dy, dx back into img.
func padCrop(img, padded []float32, height, width, depth, pad, dy, dx int) {
	pwidth := width + 2*pad
	for i := range padded {
		padded[i] = 0
	}
	for y := 0; y < height; y++ {
		copy(padded[((y+pad)*pwidth+pad)*depth:], img[y*width*depth:(y+1)*width*depth])
	}
	for y := 0; y < height; y++ {
		copy(img[y*width*depth:(y+1)*width*depth], padded[((y+dy)*pwidth+dx)*depth:])
	}
}
