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

package blockstats

import (
	"errors"
	"fmt"
	"math"

	"github.com/mlnoga/localstats/internal/parallel"
)

// Parameters for local contrast normalization
type Contrast struct {
	RX, RY  int     // Block radius
	Stds    float64 // Number of local standard deviations mapped to the full range when stretching
	Center  bool    // Center on the local mean instead of the middle of the global range
	Stretch bool    // Scale by the local standard deviation instead of the global range
}

func (c Contrast) Validate() error {
	if c.RX < 0 || c.RY < 0 {
		return errors.New(fmt.Sprintf("invalid block radius %dx%d", c.RX, c.RY))
	}
	if c.Stretch && !(c.Stds > 0) {
		return errors.New(fmt.Sprintf("invalid number of standard deviations %g", c.Stds))
	}
	return nil
}

func minMax(src []float32) (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range src {
		if float64(v) < min {
			min = float64(v)
		}
		if float64(v) > max {
			max = float64(v)
		}
	}
	return min, max
}

// Normalizes the local contrast of a width x height buffer within its global range [min,max].
// Every pixel is offset by the local mean or the range center, and scaled by stds local standard
// deviations or by half the range, then mapped back into [min,max]
func NormalizeLocalContrast(src []float32, width, height int, c Contrast, threads int) ([]float32, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s, err := New(src, width, height)
	if err != nil {
		return nil, err
	}
	s.SetThreads(threads)
	means, stds := s.MeanStd(c.RX, c.RY)

	min, max := minMax(src)
	dst := make([]float32, len(src))
	parallel.Rows(height, threads, func(yStart, yEnd int) {
		for i := yStart * width; i < yEnd*width; i++ {
			m := (min + max) / 2
			if c.Center {
				m = float64(means[i])
			}
			d := (max - min) / 2
			if c.Stretch {
				d = c.Stds * float64(stds[i])
			}
			v := float64(src[i]) - m
			if d != 0 {
				v /= d
			}
			dst[i] = float32(min + (v+1)/2*(max-min))
		}
	})
	return dst, nil
}

// Replaces pixels deviating from their local mean by more than threshold local standard deviations
// with that mean. Returns the result and the number of pixels replaced
func RemoveOutliers(src []float32, width, height, rx, ry int, threshold float64, threads int) ([]float32, int, error) {
	if !(threshold > 0) {
		return nil, 0, errors.New(fmt.Sprintf("invalid outlier threshold %g", threshold))
	}
	s, err := New(src, width, height)
	if err != nil {
		return nil, 0, err
	}
	s.SetThreads(threads)
	means, stds := s.MeanStd(rx, ry)

	dst := make([]float32, len(src))
	counts := make([]int, height)
	parallel.Rows(height, threads, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			for i := y * width; i < (y+1)*width; i++ {
				if math.Abs(float64(src[i])-float64(means[i])) > threshold*float64(stds[i]) {
					dst[i] = means[i]
					counts[y]++
				} else {
					dst[i] = src[i]
				}
			}
		}
	})

	replaced := 0
	for _, c := range counts {
		replaced += c
	}
	return dst, replaced, nil
}
