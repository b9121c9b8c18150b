package relax

import (
	"runtime"
	"sync"

	"github.com/pthm-cable/icgen/spatial"
)

// parallelThreshold is the minimum particle count to use the worker pool.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 256

// pass selects the per-particle computation a chunk runs.
type pass uint8

const (
	passDensity pass = iota
	passForce
)

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	Neighbors []spatial.Neighbor
}

// workChunk represents a range of particles for a worker to process.
type workChunk struct {
	start, end int
	pass       pass
}

// parallelState holds the worker pool. Workers only read the position
// snapshot and write to their own particle slots.
type parallelState struct {
	scratches  []workerScratch
	numWorkers int

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newParallelState(workers int) *parallelState {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	scratches := make([]workerScratch, workers)
	for i := range scratches {
		scratches[i].Neighbors = make([]spatial.Neighbor, 0, 64)
	}
	return &parallelState{
		numWorkers: workers,
		scratches:  scratches,
	}
}

// startWorkers launches persistent worker goroutines.
func (p *parallelState) startWorkers(g *Generator) {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(g, i)
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *parallelState) worker(g *Generator, workerID int) {
	defer p.wg.Done()
	scratch := &p.scratches[workerID]

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			g.computeChunk(chunk.pass, chunk.start, chunk.end, scratch)
			p.doneChan <- struct{}{}
		}
	}
}

// forEachParticle runs pass over all particles and returns once every
// particle is done.
func (g *Generator) forEachParticle(ps pass) {
	n := len(g.x)
	if n < parallelThreshold || g.parallel.numWorkers == 1 {
		g.computeChunk(ps, 0, n, &g.parallel.scratches[0])
		return
	}

	// Ensure workers are running
	if !g.parallel.running {
		g.parallel.startWorkers(g)
	}

	numWorkers := g.parallel.numWorkers
	chunkSize := (n + numWorkers - 1) / numWorkers

	chunksDispatched := 0
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		g.parallel.workChan <- workChunk{start: start, end: end, pass: ps}
		chunksDispatched++
	}

	// Wait for all chunks to complete
	for i := 0; i < chunksDispatched; i++ {
		<-g.parallel.doneChan
	}
}

// computeChunk processes particles [i0, i1) for a single worker.
func (g *Generator) computeChunk(ps pass, i0, i1 int, scratch *workerScratch) {
	switch ps {
	case passDensity:
		g.densityChunk(i0, i1, scratch)
	case passForce:
		g.forceChunk(i0, i1, scratch)
	}
}
