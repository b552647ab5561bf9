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

// Package blockstats computes the mean, variance and standard deviation of
// the window around every pixel of a float buffer, in time independent of
// the window size.
package blockstats

import (
	"errors"
	"fmt"
	"math"

	"github.com/mlnoga/localstats/internal/integral"
	"github.com/mlnoga/localstats/internal/parallel"
)

// Block statistics over a float buffer, backed by tables of the values and their squares
type Statistics struct {
	width, height int
	sum, sumSq    *integral.DoubleTable
	threads       int
}

// Builds the tables for a width x height buffer. The buffer is not retained
func New(src []float32, width, height int) (*Statistics, error) {
	sum, err := integral.NewDoubleTableFromFloat32(src, width, height)
	if err != nil {
		return nil, err
	}
	sumSq, err := integral.NewDoubleTableFromSquares(src, width, height)
	if err != nil {
		return nil, err
	}
	return &Statistics{width: width, height: height, sum: sum, sumSq: sumSq}, nil
}

// Sets the number of goroutines used per query. Zero or less selects the default
func (s *Statistics) SetThreads(threads int) { s.threads = threads }

func (s *Statistics) Width() int  { return s.width }
func (s *Statistics) Height() int { return s.height }

// Checks the size of dst, then fills it with fn over the clipped window of every pixel
func (s *Statistics) apply(dst []float32, rx, ry int, fn func(sum, sumSq float64, n int) float64) error {
	if len(dst) != s.width*s.height {
		return errors.New(fmt.Sprintf("destination of %d pixels does not match dimensions %dx%d", len(dst), s.width, s.height))
	}
	s.fill(dst, rx, ry, fn)
	return nil
}

// Evaluates fn over the clipped window of every pixel into dst, which holds width*height values
func (s *Statistics) fill(dst []float32, rx, ry int, fn func(sum, sumSq float64, n int) float64) {
	parallel.Rows(s.height, s.threads, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			for x := 0; x < s.width; x++ {
				b := integral.ClampBlock(x, y, rx, ry, s.width, s.height)
				sum := s.sum.Sum(b.XMin, b.YMin, b.XMax, b.YMax)
				sumSq := s.sumSq.Sum(b.XMin, b.YMin, b.XMax, b.YMax)
				dst[y*s.width+x] = float32(fn(sum, sumSq, b.Area()))
			}
		}
	})
}

func mean(sum, sumSq float64, n int) float64 {
	return sum / float64(n)
}

func variance(sum, sumSq float64, n int) float64 {
	m := sum / float64(n)
	v := sumSq/float64(n) - m*m
	if v < 0 {
		return 0
	}
	return v
}

func std(sum, sumSq float64, n int) float64 {
	return math.Sqrt(variance(sum, sumSq, n))
}

func sampleVariance(sum, sumSq float64, n int) float64 {
	if n <= 1 {
		return 0
	}
	nf := float64(n)
	v := (nf*sumSq - sum*sum) / (nf*nf - nf)
	if v < 0 {
		return 0
	}
	return v
}

func sampleStd(sum, sumSq float64, n int) float64 {
	return math.Sqrt(sampleVariance(sum, sumSq, n))
}

func (s *Statistics) alloc(rx, ry int, fn func(sum, sumSq float64, n int) float64) []float32 {
	dst := make([]float32, s.width*s.height)
	s.fill(dst, rx, ry, fn)
	return dst
}

// Local mean over [x-rx, x+rx] x [y-ry, y+ry], clipped to the image
func (s *Statistics) Mean(rx, ry int) []float32 { return s.alloc(rx, ry, mean) }

// Local population variance, never negative
func (s *Statistics) Variance(rx, ry int) []float32 { return s.alloc(rx, ry, variance) }

// Local population standard deviation
func (s *Statistics) Std(rx, ry int) []float32 { return s.alloc(rx, ry, std) }

// Local unbiased sample variance. Zero where the window holds a single pixel
func (s *Statistics) SampleVariance(rx, ry int) []float32 { return s.alloc(rx, ry, sampleVariance) }

// Square root of the local sample variance
func (s *Statistics) SampleStd(rx, ry int) []float32 { return s.alloc(rx, ry, sampleStd) }

func (s *Statistics) MeanInto(dst []float32, rx, ry int) error { return s.apply(dst, rx, ry, mean) }

func (s *Statistics) VarianceInto(dst []float32, rx, ry int) error {
	return s.apply(dst, rx, ry, variance)
}

func (s *Statistics) StdInto(dst []float32, rx, ry int) error { return s.apply(dst, rx, ry, std) }

func (s *Statistics) SampleVarianceInto(dst []float32, rx, ry int) error {
	return s.apply(dst, rx, ry, sampleVariance)
}

func (s *Statistics) SampleStdInto(dst []float32, rx, ry int) error {
	return s.apply(dst, rx, ry, sampleStd)
}

// Local mean and population standard deviation in one pass over the tables
func (s *Statistics) MeanStd(rx, ry int) (means, stds []float32) {
	means, stds = make([]float32, s.width*s.height), make([]float32, s.width*s.height)
	parallel.Rows(s.height, s.threads, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			for x := 0; x < s.width; x++ {
				b := integral.ClampBlock(x, y, rx, ry, s.width, s.height)
				sum := s.sum.Sum(b.XMin, b.YMin, b.XMax, b.YMax)
				sumSq := s.sumSq.Sum(b.XMin, b.YMin, b.XMax, b.YMax)
				means[y*s.width+x] = float32(mean(sum, sumSq, b.Area()))
				stds[y*s.width+x] = float32(std(sum, sumSq, b.Area()))
			}
		}
	})
	return means, stds
}
