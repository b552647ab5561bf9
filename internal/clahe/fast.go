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

package clahe

import "github.com/mlnoga/localstats/internal/parallel"

// Grid of cells with one transfer function each
type grid struct {
	cellsX, cellsY     int
	spacingX, spacingY float64
	bins               int
	tfs                []float64 // cellsY x cellsX x bins
}

// Partitions a width x height image into cells of about 2*radius+1 pixels per side
func newGrid(width, height, radius, bins int) *grid {
	blockSize := 2*radius + 1
	cellsX := max(1, (width+blockSize/2)/blockSize)
	cellsY := max(1, (height+blockSize/2)/blockSize)
	return &grid{
		cellsX: cellsX, cellsY: cellsY,
		spacingX: float64(width) / float64(cellsX), spacingY: float64(height) / float64(cellsY),
		bins: bins,
		tfs:  make([]float64, cellsX*cellsY*bins),
	}
}

// Transfer function of cell (cx, cy)
func (g *grid) tf(cx, cy int) []float64 {
	offset := (cy*g.cellsX + cx) * g.bins
	return g.tfs[offset : offset+g.bins]
}

// Pixel coordinate of the center of cell c along one axis. Also the center of the cell's histogram window
func cellCenter(c int, spacing float64) int {
	return int((float64(c) + 0.5) * spacing)
}

// Grid coordinate of a pixel along one axis: index of the lower cell, index of the upper cell
// and the weight of the upper one. Pixels beyond the outer cell centers use the edge cell only
func (g *grid) locate(pos int, spacing float64, cells int) (lo, hi int, frac float64) {
	if pos <= cellCenter(0, spacing) {
		return 0, 0, 0
	}
	if pos >= cellCenter(cells-1, spacing) {
		return cells - 1, cells - 1, 0
	}
	lo = min(max(0, int(float64(pos)/spacing-0.5)), cells-2)
	for lo > 0 && cellCenter(lo, spacing) > pos {
		lo--
	}
	for cellCenter(lo+1, spacing) <= pos {
		lo++
	}
	c0, c1 := cellCenter(lo, spacing), cellCenter(lo+1, spacing)
	return lo, lo + 1, float64(pos-c0) / float64(c1-c0)
}

// Approximate equalization. Computes one clipped transfer function per grid cell from the window
// around the cell center, then interpolates bilinearly between the four surrounding cells per pixel
func Fast(src []uint8, width, height int, p Params, threads int) ([]uint8, error) {
	if err := checkInput(src, width, height, p); err != nil {
		return nil, err
	}
	binned := quantizeAll(src, p.Bins)
	r := p.BlockRadius
	g := newGrid(width, height, r, p.Bins)

	parallel.Rows(g.cellsY, threads, func(cyStart, cyEnd int) {
		hist := make([]int, p.Bins)
		for cy := cyStart; cy < cyEnd; cy++ {
			centerY := cellCenter(cy, g.spacingY)
			yMin, yMax := max(0, centerY-r), min(height, centerY+r+1)
			for cx := 0; cx < g.cellsX; cx++ {
				centerX := cellCenter(cx, g.spacingX)
				xMin, xMax := max(0, centerX-r), min(width, centerX+r+1)
				buildHistogram(binned, width, xMin, xMax, yMin, yMax, hist)
				TransferFunction(hist, p.Limit((xMax-xMin)*(yMax-yMin)), g.tf(cx, cy))
			}
		}
	})

	dst := make([]uint8, len(src))
	parallel.Rows(height, threads, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			y0, y1, fy := g.locate(y, g.spacingY, g.cellsY)
			for x := 0; x < width; x++ {
				x0, x1, fx := g.locate(x, g.spacingX, g.cellsX)
				bin := binned[y*width+x]
				top := (1-fx)*g.tf(x0, y0)[bin] + fx*g.tf(x1, y0)[bin]
				bottom := (1-fx)*g.tf(x0, y1)[bin] + fx*g.tf(x1, y1)[bin]
				dst[y*width+x] = toByte((1-fy)*top + fy*bottom)
			}
		}
	})
	return dst, nil
}
