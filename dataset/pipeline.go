package dataset

import (
	"math/rand"
	"sync"
)

// Batch is one micro batch of preprocessed samples ready for transfer.
type Batch struct {
	X []float32
	Y []int32
	N int
}

// Pipeline assembles batches from a Data set, preparing the next batch
// in the background while the current one is being consumed. The index
// slice allows shuffling and sharding without touching the samples.
type Pipeline struct {
	Data
	Samples   int
	BatchSize int
	Batches   int
	buffers   [2]Batch
	indexes   []int
	buf       int
	batch     int
	rng       *rand.Rand
	sync.WaitGroup
}

// NewPipeline allocates the batch buffers over the data set. Incomplete
// trailing batches are dropped, matching the training geometry where
// every weight update sees full micro batches.
func NewPipeline(data Data, batchSize int, rng *rand.Rand) *Pipeline {
	p := &Pipeline{Data: data, Samples: data.Len(), rng: rng}
	if batchSize == 0 || batchSize > p.Samples {
		batchSize = p.Samples
	}
	p.BatchSize = batchSize
	p.Batches = p.Samples / batchSize
	nfeat := prod(data.Shape())
	for i := range p.buffers {
		p.buffers[i] = Batch{
			X: make([]float32, nfeat*batchSize),
			Y: make([]int32, batchSize),
			N: batchSize,
		}
	}
	p.indexes = make([]int, p.Samples)
	for i := range p.indexes {
		p.indexes[i] = i
	}
	p.loadBatch()
	return p
}

// Shard keeps every count'th sample starting at index, for splitting
// the set across distributed worker instances.
func (p *Pipeline) Shard(count, index int) {
	if count <= 1 {
		return
	}
	p.Wait()
	var keep []int
	for i := index; i < p.Samples; i += count {
		keep = append(keep, p.indexes[i])
	}
	p.indexes = keep
	p.Samples = len(keep)
	p.Batches = p.Samples / p.BatchSize
	p.batch = 0
	p.loadBatch()
}

// kick off load of the next batch in the background
func (p *Pipeline) loadBatch() {
	p.Add(1)
	go func() {
		start := p.batch * p.BatchSize
		b := &p.buffers[p.buf]
		p.Input(p.indexes[start:start+p.BatchSize], b.X)
		p.Label(p.indexes[start:start+p.BatchSize], b.Y)
		p.Done()
	}()
}

// NextBatch returns the prepared batch and starts loading the one
// after. The returned buffers are valid until the next call but one.
func (p *Pipeline) NextBatch() Batch {
	p.Wait()
	b := p.buffers[p.buf]
	p.batch = (p.batch + 1) % p.Batches
	p.buf = (p.buf + 1) % 2
	p.loadBatch()
	return b
}

// Shuffle randomises the sample order for the next epoch.
func (p *Pipeline) Shuffle() {
	p.Wait()
	p.rng.Shuffle(p.Samples, func(i, j int) {
		p.indexes[i], p.indexes[j] = p.indexes[j], p.indexes[i]
	})
	p.batch = 0
	p.loadBatch()
}

// Rewind restarts from the first batch without reshuffling.
func (p *Pipeline) Rewind() {
	p.Wait()
	p.batch = 0
	p.loadBatch()
}
