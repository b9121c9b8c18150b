package model

import (
	"math"
	"math/rand/v2"
)

// Perlin generates coherent gradient noise that tiles with a configurable
// integer period along each axis.
type Perlin struct {
	perm [512]int
}

// NewPerlin creates a noise generator with a seeded permutation table.
func NewPerlin(seed uint64) *Perlin {
	p := &Perlin{}
	rng := rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))
	perm := rng.Perm(256)
	for i := 0; i < 256; i++ {
		p.perm[i] = perm[i]
		p.perm[i+256] = perm[i]
	}
	return p
}

// Noise3D returns noise in roughly [-1, 1] that repeats every period[a]
// units along axis a. Periods must be positive.
func (p *Perlin) Noise3D(x, y, z float64, period [3]int) float64 {
	fx, fy, fz := math.Floor(x), math.Floor(y), math.Floor(z)
	x0 := mod(int(fx), period[0])
	y0 := mod(int(fy), period[1])
	z0 := mod(int(fz), period[2])
	x1 := mod(x0+1, period[0])
	y1 := mod(y0+1, period[1])
	z1 := mod(z0+1, period[2])

	// Relative position in cell
	x -= fx
	y -= fy
	z -= fz
	u, v, w := fade(x), fade(y), fade(z)

	return lerp(w,
		lerp(v,
			lerp(u, grad3D(p.hash(x0, y0, z0), x, y, z), grad3D(p.hash(x1, y0, z0), x-1, y, z)),
			lerp(u, grad3D(p.hash(x0, y1, z0), x, y-1, z), grad3D(p.hash(x1, y1, z0), x-1, y-1, z))),
		lerp(v,
			lerp(u, grad3D(p.hash(x0, y0, z1), x, y, z-1), grad3D(p.hash(x1, y0, z1), x-1, y, z-1)),
			lerp(u, grad3D(p.hash(x0, y1, z1), x, y-1, z-1), grad3D(p.hash(x1, y1, z1), x-1, y-1, z-1))))
}

// FBM sums octaves of noise with doubling frequency, normalised so the
// result stays in roughly [-1, 1].
func (p *Perlin) FBM(x, y, z float64, period [3]int, octaves int, gain float64) float64 {
	sum, amp, norm := 0.0, 1.0, 0.0
	scale := 1
	for o := 0; o < octaves; o++ {
		s := float64(scale)
		per := [3]int{period[0] * scale, period[1] * scale, period[2] * scale}
		sum += amp * p.Noise3D(x*s, y*s, z*s, per)
		norm += amp
		amp *= gain
		scale *= 2
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}

func (p *Perlin) hash(x, y, z int) int {
	return p.perm[p.perm[p.perm[x&255]+y&255]+z&255]
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}

func fade(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(t, a, b float64) float64 {
	return a + t*(b-a)
}

func grad3D(hash int, x, y, z float64) float64 {
	h := hash & 15
	u := x
	if h >= 8 {
		u = y
	}
	v := y
	if h >= 4 {
		if h == 12 || h == 14 {
			v = x
		} else {
			v = z
		}
	}
	if h&1 != 0 {
		u = -u
	}
	if h&2 != 0 {
		v = -v
	}
	return u + v
}
