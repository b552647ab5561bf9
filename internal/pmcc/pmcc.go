// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package pmcc computes the Pearson product-moment correlation coefficient
// of the windows around every pixel of two buffers, with the second buffer
// shifted by an integer offset.
package pmcc

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/mlnoga/localstats/internal/integral"
	"github.com/mlnoga/localstats/internal/parallel"
)

// Block correlation between a moving buffer X and a target buffer Y.
// Pixel (x,y) of X is compared with pixel (x+ox, y+oy) of Y
type PMCC struct {
	x, y           []float32
	wx, hx, wy, hy int

	sumX, sumXX *integral.DoubleTable
	sumY, sumYY *integral.DoubleTable
	sumXY       *integral.DoubleTable // over the overlap only, nil if empty

	ox, oy  int
	overlap image.Rectangle // in X coordinates
	threads int
}

// Builds the tables for X and Y, with offset (0,0). The buffers are retained for later offsets
func New(x []float32, wx, hx int, y []float32, wy, hy int) (*PMCC, error) {
	sumX, err := integral.NewDoubleTableFromFloat32(x, wx, hx)
	if err != nil {
		return nil, errors.New(fmt.Sprintf("moving buffer: %s", err.Error()))
	}
	sumXX, err := integral.NewDoubleTableFromSquares(x, wx, hx)
	if err != nil {
		return nil, err
	}
	sumY, err := integral.NewDoubleTableFromFloat32(y, wy, hy)
	if err != nil {
		return nil, errors.New(fmt.Sprintf("target buffer: %s", err.Error()))
	}
	sumYY, err := integral.NewDoubleTableFromSquares(y, wy, hy)
	if err != nil {
		return nil, err
	}
	p := &PMCC{x: x, y: y, wx: wx, hx: hx, wy: wy, hy: hy, sumX: sumX, sumXX: sumXX, sumY: sumY, sumYY: sumYY}
	if err := p.SetOffset(0, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// Sets the number of goroutines used per query. Zero or less selects the default
func (p *PMCC) SetThreads(threads int) { p.threads = threads }

// Current offset of Y relative to X
func (p *PMCC) Offset() (ox, oy int) { return p.ox, p.oy }

// Pixels of X which have a counterpart in Y at the current offset
func (p *PMCC) Overlap() image.Rectangle { return p.overlap }

// Shifts Y by (ox, oy) relative to X and rebuilds the table of products over the new overlap.
// Offsets without overlap are valid and yield all-zero results
func (p *PMCC) SetOffset(ox, oy int) error {
	p.ox, p.oy = ox, oy
	p.overlap = image.Rectangle{
		Min: image.Pt(max(0, -ox), max(0, -oy)),
		Max: image.Pt(min(p.wx, p.wy-ox), min(p.hx, p.hy-oy)),
	}
	p.sumXY = nil
	if p.overlap.Empty() {
		p.overlap = image.Rectangle{}
		return nil
	}

	o := p.overlap
	sumXY, err := integral.NewDoubleTableFromProduct(p.x, p.wx, o.Min.X, o.Min.Y, p.y, p.wy, o.Min.X+ox, o.Min.Y+oy, o.Dx(), o.Dy())
	if err != nil {
		return err
	}
	p.sumXY = sumXY
	return nil
}

// Window sums at pixel (x,y) of X, with the window clipped to the overlap
func (p *PMCC) sums(x, y, rx, ry int) (n, sx, sxx, sy, syy, sxy float64) {
	o := p.overlap
	b := integral.ClampBlock(x-o.Min.X, y-o.Min.Y, rx, ry, o.Dx(), o.Dy())
	n = float64(b.Area())
	sxy = p.sumXY.Sum(b.XMin, b.YMin, b.XMax, b.YMax)

	xMin, yMin, xMax, yMax := b.XMin+o.Min.X, b.YMin+o.Min.Y, b.XMax+o.Min.X, b.YMax+o.Min.Y
	sx = p.sumX.Sum(xMin, yMin, xMax, yMax)
	sxx = p.sumXX.Sum(xMin, yMin, xMax, yMax)
	sy = p.sumY.Sum(xMin+p.ox, yMin+p.oy, xMax+p.ox, yMax+p.oy)
	syy = p.sumYY.Sum(xMin+p.ox, yMin+p.oy, xMax+p.ox, yMax+p.oy)
	return n, sx, sxx, sy, syy, sxy
}

// Evaluates fn(numerator, varX, varY) over the overlap, zero elsewhere
func (p *PMCC) apply(rx, ry int, fn func(num, vx, vy float64) float64) []float32 {
	dst := make([]float32, p.wx*p.hx)
	if p.sumXY == nil {
		return dst
	}
	o := p.overlap
	parallel.Rows(o.Dy(), p.threads, func(yStart, yEnd int) {
		for y := o.Min.Y + yStart; y < o.Min.Y+yEnd; y++ {
			for x := o.Min.X; x < o.Max.X; x++ {
				n, sx, sxx, sy, syy, sxy := p.sums(x, y, rx, ry)
				dst[y*p.wx+x] = float32(fn(n*sxy-sx*sy, n*sxx-sx*sx, n*syy-sy*sy))
			}
		}
	})
	return dst
}

func clampUnit(v float64) float64 {
	if v < -1 {
		return -1
	} else if v > 1 {
		return 1
	}
	return v
}

// Correlation coefficient of the windows [x-rx, x+rx] x [y-ry, y+ry] of X and the shifted windows of Y,
// clipped to the overlap. Zero outside the overlap and where either window has no variance
func (p *PMCC) R(rx, ry int) []float32 {
	return p.apply(rx, ry, func(num, vx, vy float64) float64 {
		if !(vx > 0 && vy > 0) {
			return 0
		}
		den := vx * vy
		return clampUnit(num / math.Sqrt(den))
	})
}

// Signed square of the correlation coefficient, sign(r)*r^2, without taking a square root
func (p *PMCC) RSignedSquare(rx, ry int) []float32 {
	return p.apply(rx, ry, func(num, vx, vy float64) float64 {
		if !(vx > 0 && vy > 0) {
			return 0
		}
		den := vx * vy
		if num < 0 {
			return clampUnit(-num * num / den)
		}
		return clampUnit(num * num / den)
	})
}
