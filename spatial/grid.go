package spatial

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Neighbor holds a nearby particle with precomputed separation.
type Neighbor struct {
	Index int
	D     r3.Vec  // Query position minus particle position (minimum image)
	R     float64 // |D|
}

// maxCellsPerParticle bounds memory when the cell size is tiny relative to
// the box.
const maxCellsPerParticle = 4

// Grid bins particle indices into cells for radius queries. It is rebuilt
// every iteration and read concurrently by workers afterwards.
type Grid struct {
	dom   Domain
	xs    []r3.Vec
	n     [3]int
	width [3]float64
	cells [][]int
}

// NewGrid creates an empty grid for dom.
func NewGrid(dom Domain) *Grid {
	return &Grid{dom: dom}
}

// Rebuild bins xs with cells at least cellSize wide. xs is retained and must
// not change until the next Rebuild.
func (g *Grid) Rebuild(xs []r3.Vec, cellSize float64) {
	g.xs = xs
	g.layout(cellSize, len(xs))
	g.Clear()
	for i, x := range xs {
		g.Insert(i, x)
	}
}

func (g *Grid) layout(cellSize float64, count int) {
	if !(cellSize > 0) {
		cellSize = math.MaxFloat64
	}
	limit := maxCellsPerParticle*count + 1
	for {
		total := 1
		for i := 0; i < 3; i++ {
			g.n[i] = 1
			if i < g.dom.NDim {
				g.n[i] = max(1, int(math.Min(g.dom.Box[i]/cellSize, 1<<20)))
			}
			g.width[i] = g.dom.Box[i] / float64(g.n[i])
			total *= g.n[i]
		}
		if total <= limit {
			break
		}
		cellSize *= 1.25
	}

	total := g.n[0] * g.n[1] * g.n[2]
	if cap(g.cells) < total {
		cells := make([][]int, total)
		copy(cells, g.cells)
		g.cells = cells
	}
	g.cells = g.cells[:total]
}

// Clear removes all particles from the grid.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Insert adds particle i at x.
func (g *Grid) Insert(i int, x r3.Vec) {
	c := g.cellOf(x)
	idx := (c[2]*g.n[1]+c[1])*g.n[0] + c[0]
	g.cells[idx] = append(g.cells[idx], i)
}

// QueryInto appends every particle within radius of x, except exclude
// (pass -1 to keep all), to dst and returns it. Reuse dst across calls to
// avoid allocations. In a periodic box radius should not exceed
// Domain.MaxSearchRadius.
func (g *Grid) QueryInto(dst []Neighbor, x r3.Vec, radius float64, exclude int) []Neighbor {
	center := g.cellOf(x)
	var lo, hi [3]int
	var full [3]bool
	for i := 0; i < 3; i++ {
		if i >= g.dom.NDim {
			continue
		}
		cr := int(radius/g.width[i]) + 1
		if g.dom.Periodic && 2*cr+1 >= g.n[i] {
			// Every cell once; no duplicate images
			full[i] = true
			lo[i], hi[i] = 0, g.n[i]-1
			continue
		}
		lo[i], hi[i] = center[i]-cr, center[i]+cr
		if !g.dom.Periodic {
			lo[i] = max(lo[i], 0)
			hi[i] = min(hi[i], g.n[i]-1)
		}
	}

	radiusSq := radius * radius
	for cz := lo[2]; cz <= hi[2]; cz++ {
		z := g.fold(cz, 2, full[2])
		for cy := lo[1]; cy <= hi[1]; cy++ {
			y := g.fold(cy, 1, full[1])
			for cx := lo[0]; cx <= hi[0]; cx++ {
				xi := g.fold(cx, 0, full[0])
				for _, j := range g.cells[(z*g.n[1]+y)*g.n[0]+xi] {
					if j == exclude {
						continue
					}
					d := g.dom.Delta(g.xs[j], x)
					r2 := r3.Dot(d, d)
					if r2 <= radiusSq {
						dst = append(dst, Neighbor{Index: j, D: d, R: math.Sqrt(r2)})
					}
				}
			}
		}
	}
	return dst
}

// Positions returns the positions the grid was built from.
func (g *Grid) Positions() []r3.Vec { return g.xs }

// Domain returns the box the grid covers.
func (g *Grid) Domain() Domain { return g.dom }

func (g *Grid) fold(c, axis int, full bool) int {
	if full || !g.dom.Periodic {
		return c
	}
	n := g.n[axis]
	return ((c % n) + n) % n
}

func (g *Grid) cellOf(x r3.Vec) [3]int {
	comp := Components(x)
	var c [3]int
	for i := 0; i < g.dom.NDim; i++ {
		k := int(math.Floor(comp[i] / g.width[i]))
		// Clamp to valid range
		if k < 0 {
			k = 0
		} else if k >= g.n[i] {
			k = g.n[i] - 1
		}
		c[i] = k
	}
	return c
}
