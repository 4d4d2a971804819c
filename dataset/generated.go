package dataset

import "math/rand"

// Generated returns n random samples shaped like the dataset, for
// benchmarking the input pipeline and compile only runs without data on
// disk. Pixel values follow the image statistics, normal with mean 127
// and stddev 60 truncated to [0, 255], labels are uniform over the
// classes.
func Generated(info Info, n int, rng *rand.Rand) Data {
	shape := info.Shape()
	nfeat := prod(shape)
	labels := make([]int32, n)
	inputs := make([]float32, n*nfeat)
	for i := range labels {
		labels[i] = int32(rng.Intn(info.NumClasses))
	}
	for i := range inputs {
		v := 127 + 60*rng.NormFloat64()
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		inputs[i] = float32(v)
	}
	return NewData(info.NumClasses, shape, labels, inputs)
}

// Zeros returns n zero filled padding samples. They carry the out of
// range label NumClasses so that evaluation can drop them from the
// accuracy counts.
func Zeros(info Info, n int) Data {
	shape := info.Shape()
	return NewData(info.NumClasses+1, shape,
		constLabels(n, int32(info.NumClasses)), make([]float32, n*prod(shape)))
}

func constLabels(n int, label int32) []int32 {
	labels := make([]int32, n)
	for i := range labels {
		labels[i] = label
	}
	return labels
}

// Padded appends zero samples to d so that the total length is a
// multiple of the batch size across all workers. Evaluation partitions
// the set evenly and must not drop real samples.
func Padded(d Data, info Info, batchSize int) Data {
	if rem := d.Len() % batchSize; rem != 0 {
		return concat{d, Zeros(info, batchSize-rem)}
	}
	return d
}

type concat struct {
	a, b Data
}

func (d concat) Len() int { return d.a.Len() + d.b.Len() }

func (d concat) Classes() []string { return d.a.Classes() }

func (d concat) Shape() []int { return d.a.Shape() }

func (d concat) Label(index []int, label []int32) {
	one := make([]int, 1)
	for i, ix := range index {
		if ix < d.a.Len() {
			one[0] = ix
			d.a.Label(one, label[i:i+1])
		} else {
			one[0] = ix - d.a.Len()
			d.b.Label(one, label[i:i+1])
		}
	}
}

func (d concat) Input(index []int, buf []float32) {
	nfeat := prod(d.Shape())
	one := make([]int, 1)
	for i, ix := range index {
		if ix < d.a.Len() {
			one[0] = ix
			d.a.Input(one, buf[i*nfeat:(i+1)*nfeat])
		} else {
			one[0] = ix - d.a.Len()
			d.b.Input(one, buf[i*nfeat:(i+1)*nfeat])
		}
	}
}
