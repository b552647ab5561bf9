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

import (
	"errors"
	"fmt"
)

// Histogram of a rectangular window over a binned buffer, moved by adding and removing columns.
// Not safe for concurrent use; give each goroutine its own window
type Window struct {
	binned        []uint8
	width, height int

	hist    []int
	clipped []int
	count   int

	xMin, xMax int // included columns [xMin,xMax)
	yMin, yMax int // rows [yMin,yMax)
}

// Creates an empty window over a width x height buffer of values in 0..bins-1
func NewWindow(binned []uint8, width, height, bins int) (*Window, error) {
	if width <= 0 || height <= 0 || width*height != len(binned) {
		return nil, errors.New(fmt.Sprintf("buffer of %d pixels does not match dimensions %dx%d", len(binned), width, height))
	}
	if bins < 2 || bins > 256 {
		return nil, errors.New(fmt.Sprintf("invalid number of bins %d, must be 2..256", bins))
	}
	return newWindow(binned, width, height, bins), nil
}

func newWindow(binned []uint8, width, height, bins int) *Window {
	return &Window{binned: binned, width: width, height: height, hist: make([]int, bins), clipped: make([]int, bins)}
}

// Rebuilds the histogram from scratch for columns [xMin,xMax) and rows [yMin,yMax)
func (w *Window) Init(xMin, xMax, yMin, yMax int) {
	w.xMin, w.xMax, w.yMin, w.yMax = xMin, xMax, yMin, yMax
	buildHistogram(w.binned, w.width, xMin, xMax, yMin, yMax, w.hist)
	w.count = (xMax - xMin) * (yMax - yMin)
}

// Adds the rows [yMin,yMax) of column x
func (w *Window) AddColumn(x int) {
	for y := w.yMin; y < w.yMax; y++ {
		w.hist[w.binned[y*w.width+x]]++
	}
	w.count += w.yMax - w.yMin
	if x == w.xMax {
		w.xMax++
	} else if x == w.xMin-1 {
		w.xMin--
	}
}

// Removes the rows [yMin,yMax) of column x
func (w *Window) RemoveColumn(x int) {
	for y := w.yMin; y < w.yMax; y++ {
		w.hist[w.binned[y*w.width+x]]--
	}
	w.count -= w.yMax - w.yMin
	if x == w.xMin {
		w.xMin++
	} else if x == w.xMax-1 {
		w.xMax--
	}
}

// Current counts per bin. The slice is owned by the window
func (w *Window) Histogram() []int { return w.hist }

// Number of pixels in the window
func (w *Window) Count() int { return w.count }

// Columns [xMin,xMax) currently included
func (w *Window) Columns() (xMin, xMax int) { return w.xMin, w.xMax }

// Clips the current histogram at limit and evaluates its transfer function at bin, as a byte
func (w *Window) NormalizedValue(bin, limit int) uint8 {
	copy(w.clipped, w.hist)
	ClipHistogram(w.clipped, limit)
	return toByte(transferValue(w.clipped, bin))
}
