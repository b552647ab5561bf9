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

// Caps every bin of the histogram at limit and redistributes the excess over the bins below
// the limit, in place. Each pass hands every free bin an equal share plus one extra count to the
// first free bins until the remainder is used up; bins overflowing in a pass are capped and their
// overflow carries into the next pass. If the total cannot fit under the limit, the limit is
// raised to the smallest one that can. Returns the limit applied
func ClipHistogram(hist []int, limit int) int {
	bins, total := len(hist), 0
	for _, h := range hist {
		total += h
	}
	if bins == 0 {
		return limit
	}
	if limit*bins < total {
		limit = (total + bins - 1) / bins
	}

	excess := 0
	for i, h := range hist {
		if h > limit {
			excess += h - limit
			hist[i] = limit
		}
	}

	for excess > 0 {
		free := 0
		for _, h := range hist {
			if h < limit {
				free++
			}
		}
		share, remainder := excess/free, excess%free
		excess = 0
		for i, h := range hist {
			if h >= limit {
				continue
			}
			h += share
			if remainder > 0 {
				h++
				remainder--
			}
			if h > limit {
				excess += h - limit
				h = limit
			}
			hist[i] = h
		}
	}
	return limit
}

// Value of the transfer function of an already clipped histogram at the given bin.
// The lowest populated bin maps to 0, the last bin to 1. A histogram with a single
// populated bin maps to identity
func transferValue(clipped []int, bin int) float64 {
	hMin := 0
	for hMin < len(clipped)-1 && clipped[hMin] == 0 {
		hMin++
	}
	cdfMin, cdf, total := clipped[hMin], 0, 0
	for i, h := range clipped {
		total += h
		if i <= bin {
			cdf += h
		}
	}
	if total == cdfMin {
		return float64(bin) / float64(len(clipped)-1)
	}
	if bin < hMin {
		return 0
	}
	return float64(cdf-cdfMin) / float64(total-cdfMin)
}

// Clips a copy of the histogram and writes its transfer function into tf, which must have the same length
func TransferFunction(hist []int, limit int, tf []float64) {
	clipped := append([]int(nil), hist...)
	ClipHistogram(clipped, limit)

	hMin := 0
	for hMin < len(clipped)-1 && clipped[hMin] == 0 {
		hMin++
	}
	total := 0
	for _, h := range clipped {
		total += h
	}
	cdfMin := clipped[hMin]
	if total == cdfMin {
		for i := range tf {
			tf[i] = float64(i) / float64(len(tf)-1)
		}
		return
	}

	cdf := 0
	for i, h := range clipped {
		cdf += h
		if i < hMin {
			tf[i] = 0
		} else {
			tf[i] = float64(cdf-cdfMin) / float64(total-cdfMin)
		}
	}
}

// Maps a transfer function value in [0,1] to a byte
func toByte(v float64) uint8 {
	return uint8(v*255 + 0.5)
}

// Counts the binned values of the window [xMin,xMax) x [yMin,yMax) into hist, which is cleared first
func buildHistogram(binned []uint8, width, xMin, xMax, yMin, yMax int, hist []int) {
	for i := range hist {
		hist[i] = 0
	}
	for y := yMin; y < yMax; y++ {
		for _, v := range binned[y*width+xMin : y*width+xMax] {
			hist[v]++
		}
	}
}
