package main

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/icgen/model"
	"github.com/pthm-cable/icgen/telemetry"
)

// Colour channels a particle can be shaded by.
const (
	colorByRatio = iota // log2(rho / rho_model)
	colorByH
	colorByDisplacement
	numColorModes
)

var colorModeNames = [numColorModes]string{"density ratio", "smoothing length", "displacement"}

// listCheckpoints returns the checkpoint files for basename in dir, oldest
// iteration first.
func listCheckpoints(dir, basename string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, basename+"_*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	// Zero padded iteration numbers sort lexically
	slices.Sort(paths)
	return paths, nil
}

// plane holds the two box axes shown on screen. drop is the axis
// projected away; in 1D and 2D it is always the last.
type plane struct {
	u, v, drop int
}

func planeFor(ndim, drop int) plane {
	if ndim < 3 {
		return plane{u: 0, v: 1, drop: 2}
	}
	drop = min(max(drop, 0), 2)
	axes := make([]int, 0, 2)
	for d := 0; d < 3; d++ {
		if d != drop {
			axes = append(axes, d)
		}
	}
	return plane{u: axes[0], v: axes[1], drop: drop}
}

// project maps a particle to unit square coordinates in the plane.
func (p plane) project(ps telemetry.ParticleState, box [3]float64) (float64, float64) {
	c := [3]float64{ps.X, ps.Y, ps.Z}
	return c[p.u] / box[p.u], c[p.v] / box[p.v]
}

// shade returns the particle's value in [0, 1] for the given colour mode.
func shade(ps telemetry.ParticleState, mode int, hMax, dispMax float64) float64 {
	switch mode {
	case colorByH:
		if hMax <= 0 {
			return 0
		}
		return clamp01(ps.H / hMax)
	case colorByDisplacement:
		if dispMax <= 0 {
			return 0
		}
		return clamp01(ps.Displacement / dispMax)
	}
	if ps.ModelDensity <= 0 || ps.Density <= 0 {
		return 1
	}
	// One octave either side of the model maps to the full range
	return clamp01(0.5 + 0.5*math.Log2(ps.Density/ps.ModelDensity))
}

// extents returns the largest smoothing length and displacement in a frame.
func extents(ck *telemetry.Checkpoint) (hMax, dispMax float64) {
	for _, p := range ck.Particles {
		hMax = math.Max(hMax, p.H)
		dispMax = math.Max(dispMax, p.Displacement)
	}
	return hMax, dispMax
}

// sampleModel evaluates rho on a size x size grid across the plane, through
// the middle of the dropped axis, normalized to [0, 1].
func sampleModel(rho model.Func, ndim int, box [3]float64, p plane, size int) []float32 {
	xs := make([]r3.Vec, size*size)
	for j := 0; j < size; j++ {
		for i := 0; i < size; i++ {
			c := [3]float64{0.5 * box[0], 0.5 * box[1], 0.5 * box[2]}
			c[p.u] = (float64(i) + 0.5) / float64(size) * box[p.u]
			if ndim > 1 {
				c[p.v] = (float64(j) + 0.5) / float64(size) * box[p.v]
			}
			// Inactive dimensions sit at 0.5
			for d := ndim; d < 3; d++ {
				c[d] = 0.5
			}
			xs[j*size+i] = r3.Vec{X: c[0], Y: c[1], Z: c[2]}
		}
	}
	vals := rho(xs, ndim)

	hi := 0.0
	for _, v := range vals {
		hi = math.Max(hi, v)
	}
	grid := make([]float32, len(vals))
	if hi <= 0 {
		return grid
	}
	for k, v := range vals {
		grid[k] = float32(clamp01(v / hi))
	}
	return grid
}

// gradient maps v in [0, 1] to dark blue, cyan, yellow-green and white.
func gradient(v float32) color.RGBA {
	var r, g, b uint8
	switch {
	case v < 0.25:
		t := v / 0.25
		r = uint8(10 + t*30)
		g = uint8(20 + t*60)
		b = uint8(60 + t*100)
	case v < 0.5:
		t := (v - 0.25) / 0.25
		r = uint8(40 + t*20)
		g = uint8(80 + t*120)
		b = uint8(160 + t*40)
	case v < 0.75:
		t := (v - 0.5) / 0.25
		r = uint8(60 + t*140)
		g = uint8(200 - t*40)
		b = uint8(200 - t*150)
	default:
		t := min((v-0.75)/0.25, 1)
		r = uint8(200 + t*55)
		g = uint8(160 + t*95)
		b = uint8(50 + t*205)
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// diverging maps v in [0, 1] from blue (underdense) through white to red.
func diverging(v float64) color.RGBA {
	if v < 0.5 {
		t := v / 0.5
		return color.RGBA{R: uint8(40 + t*215), G: uint8(90 + t*165), B: 255, A: 255}
	}
	t := (v - 0.5) / 0.5
	return color.RGBA{R: 255, G: uint8(255 - t*195), B: uint8(255 - t*215), A: 255}
}

func clamp01(x float64) float64 {
	return math.Min(math.Max(x, 0), 1)
}
