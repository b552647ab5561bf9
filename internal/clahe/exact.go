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

	"github.com/mlnoga/localstats/internal/parallel"
)

func checkInput(src []uint8, width, height int, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if width <= 0 || height <= 0 || width*height != len(src) {
		return errors.New(fmt.Sprintf("buffer of %d pixels does not match dimensions %dx%d", len(src), width, height))
	}
	return nil
}

// Equalizes every pixel with the clipped histogram of its own window. Each row starts with a
// fresh window at the left edge and slides it right one column at a time. Rows are split into
// bands processed in parallel, each with a private window
func Exact(src []uint8, width, height int, p Params, threads int) ([]uint8, error) {
	if err := checkInput(src, width, height, p); err != nil {
		return nil, err
	}
	binned := quantizeAll(src, p.Bins)
	dst := make([]uint8, len(src))
	r := p.BlockRadius

	if _, err := NewWindow(binned, width, height, p.Bins); err != nil {
		return nil, err
	}

	parallel.Rows(height, threads, func(yStart, yEnd int) {
		win := newWindow(binned, width, height, p.Bins)
		for y := yStart; y < yEnd; y++ {
			yMin, yMax := max(0, y-r), min(height, y+r+1)
			win.Init(0, min(width, r+1), yMin, yMax)
			for x := 0; x < width; x++ {
				if x > 0 {
					if x-r-1 >= 0 {
						win.RemoveColumn(x - r - 1)
					}
					if x+r < width {
						win.AddColumn(x + r)
					}
				}
				i := y*width + x
				dst[i] = win.NormalizedValue(int(binned[i]), p.Limit(win.Count()))
			}
		}
	})
	return dst, nil
}

// Same result as Exact, rebuilding the histogram of every window from scratch. Slow, for verification
func ExactReference(src []uint8, width, height int, p Params, threads int) ([]uint8, error) {
	if err := checkInput(src, width, height, p); err != nil {
		return nil, err
	}
	binned := quantizeAll(src, p.Bins)
	dst := make([]uint8, len(src))
	r := p.BlockRadius

	parallel.Rows(height, threads, func(yStart, yEnd int) {
		hist := make([]int, p.Bins)
		for y := yStart; y < yEnd; y++ {
			yMin, yMax := max(0, y-r), min(height, y+r+1)
			for x := 0; x < width; x++ {
				xMin, xMax := max(0, x-r), min(width, x+r+1)
				buildHistogram(binned, width, xMin, xMax, yMin, yMax, hist)
				ClipHistogram(hist, p.Limit((xMax-xMin)*(yMax-yMin)))
				i := y*width + x
				dst[i] = toByte(transferValue(hist, int(binned[i])))
			}
		}
	})
	return dst, nil
}
