package dataset

import (
	"math"
	"math/rand"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	info, err := Lookup("cifar-10")
	require.NoError(t, err)
	assert.Equal(t, 10, info.NumClasses)
	assert.Equal(t, 50000, info.NumImages)
	assert.Equal(t, 3073, info.RecordBytes)
	assert.Equal(t, []int{32, 32, 3}, info.Shape())

	info, err = Lookup("cifar-100")
	require.NoError(t, err)
	assert.Equal(t, 3074, info.RecordBytes)

	info, err = Lookup("imagenet")
	require.NoError(t, err)
	assert.Equal(t, 1024, len(info.TrainFiles))
	assert.Equal(t, "train-00000-of-01024", info.TrainFiles[0])
	assert.Equal(t, "validation-00127-of-00128", info.TestFiles[127])

	_, err = Lookup("mnist")
	assert.Error(t, err)
}

func TestScaled(t *testing.T) {
	info, _ := Lookup("imagenet")
	half := info.Scaled(50)
	assert.Equal(t, 640583, half.NumImages)
	assert.Equal(t, 512, len(half.TrainFiles))
	assert.Equal(t, 64, len(half.TestFiles))
	// cifar is never scaled
	info, _ = Lookup("cifar-10")
	assert.Equal(t, 50000, info.Scaled(50).NumImages)
}

func TestInfer(t *testing.T) {
	for dir, want := range map[string]string{
		"/data/imagenet-data":       "imagenet",
		"/data/cifar-100-binary":    "cifar-100",
		"/data/cifar-10-batches":    "cifar-10",
	} {
		info, err := Infer(dir)
		require.NoError(t, err)
		assert.Equal(t, want, info.Name)
	}
	_, err := Infer("/data/somewhere")
	assert.Error(t, err)
}

func writeCIFAR10(t *testing.T, dir string, n int) {
	info, _ := Lookup("cifar-10")
	rng := rand.New(rand.NewSource(42))
	rec := make([]byte, info.RecordBytes*n)
	for i := 0; i < n; i++ {
		rec[i*info.RecordBytes] = byte(i % 10)
		for j := 1; j < info.RecordBytes; j++ {
			rec[i*info.RecordBytes+j] = byte(rng.Intn(256))
		}
	}
	require.NoError(t, os.WriteFile(path.Join(dir, "test_batch.bin"), rec, 0644))
}

func TestLoadCIFAR(t *testing.T) {
	dir := t.TempDir()
	writeCIFAR10(t, dir, 20)
	info, _ := Lookup("cifar-10")
	d, err := LoadCIFAR(info, dir, false)
	require.NoError(t, err)
	assert.Equal(t, 20, d.Len())
	assert.Equal(t, 10, len(d.Classes()))

	labels := make([]int32, 2)
	d.Label([]int{0, 11}, labels)
	assert.Equal(t, []int32{0, 1}, labels)

	// standardized images have zero mean and unit variance
	buf := make([]float32, 32*32*3)
	d.Input([]int{3}, buf)
	var sum, sum2 float64
	for _, v := range buf {
		sum += float64(v)
		sum2 += float64(v) * float64(v)
	}
	n := float64(len(buf))
	assert.InDelta(t, 0, sum/n, 1e-4)
	assert.InDelta(t, 1, sum2/n, 1e-3)
}

func TestResolveDir(t *testing.T) {
	root := t.TempDir()
	sub := path.Join(root, "downloads", "cifar-10-batches-bin")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, os.WriteFile(path.Join(sub, "data_batch_1.bin"), []byte{0}, 0644))
	info, _ := Lookup("cifar-10")
	dir, err := info.ResolveDir(root)
	require.NoError(t, err)
	assert.Equal(t, sub, dir)

	_, err = info.ResolveDir(t.TempDir())
	assert.Error(t, err)
}

func TestStandardize(t *testing.T) {
	uniform := make([]float32, 16)
	for i := range uniform {
		uniform[i] = 100
	}
	standardize(uniform)
	for _, v := range uniform {
		assert.Equal(t, float32(0), v)
	}
}

func TestAugment(t *testing.T) {
	info, _ := Lookup("cifar-10")
	rng := rand.New(rand.NewSource(1))
	d := Augment(Generated(info, 4, rng), rng)
	buf := make([]float32, 2*32*32*3)
	d.Input([]int{0, 1}, buf)
	// cropping from the zero padded border keeps the buffer finite
	for _, v := range buf {
		require.False(t, math.IsNaN(float64(v)))
	}
}

func TestZerosAndPadded(t *testing.T) {
	info, _ := Lookup("cifar-10")
	z := Zeros(info, 3)
	labels := make([]int32, 3)
	z.Label([]int{0, 1, 2}, labels)
	assert.Equal(t, []int32{10, 10, 10}, labels)

	rng := rand.New(rand.NewSource(1))
	d := Padded(Generated(info, 10, rng), info, 8)
	assert.Equal(t, 16, d.Len())
	d.Label([]int{9, 10, 15}, labels)
	assert.True(t, labels[0] < 10)
	assert.Equal(t, int32(10), labels[1])
	assert.Equal(t, int32(10), labels[2])
}

func TestPipeline(t *testing.T) {
	info, _ := Lookup("cifar-10")
	rng := rand.New(rand.NewSource(7))
	p := NewPipeline(Generated(info, 100, rng), 16, rng)
	assert.Equal(t, 6, p.Batches)
	seen := map[int32]bool{}
	for i := 0; i < 2*p.Batches; i++ {
		b := p.NextBatch()
		assert.Equal(t, 16, b.N)
		assert.Equal(t, 16, len(b.Y))
		for _, y := range b.Y {
			seen[y] = true
		}
	}
	assert.True(t, len(seen) > 1)
	p.Shuffle()
	b := p.NextBatch()
	assert.Equal(t, 16, b.N)
	p.Rewind()
	p.Wait()
}

func TestPipelineShard(t *testing.T) {
	info, _ := Lookup("cifar-10")
	rng := rand.New(rand.NewSource(7))
	p := NewPipeline(Generated(info, 100, rng), 10, rng)
	p.Shard(2, 1)
	assert.Equal(t, 50, p.Samples)
	assert.Equal(t, 5, p.Batches)
	b := p.NextBatch()
	assert.Equal(t, 10, b.N)
}
