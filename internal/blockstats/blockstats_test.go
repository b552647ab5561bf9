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
	"math"
	"testing"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat"
)

func TestConstantImage(t *testing.T) {
	radii := [][2]int{{0, 0}, {1, 1}, {2, 5}, {7, 0}, {50, 50}}
	for _, k := range []float32{0, 1, 100, -3.25} {
		width, height := 9, 6
		src := make([]float32, width*height)
		for i := range src {
			src[i] = k
		}
		s, err := New(src, width, height)
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range radii {
			means, stds := s.Mean(r[0], r[1]), s.Std(r[0], r[1])
			for i := range means {
				if math.Abs(float64(means[i]-k)) > 1e-5 {
					t.Errorf("k=%f r=%v mean[%d]=%f; want %f", k, r, i, means[i], k)
				}
				if stds[i] < 0 || stds[i] > 1e-3 {
					t.Errorf("k=%f r=%v std[%d]=%f; want 0", k, r, i, stds[i])
				}
			}
		}
	}
}

func TestFourByFourScenario(t *testing.T) {
	src := make([]float32, 16)
	for i := range src {
		src[i] = 100
	}
	s, err := New(src, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	means, stds := s.Mean(1, 1), s.Std(1, 1)
	for _, i := range []int{5, 6, 9, 10} {
		if means[i] != 100 {
			t.Errorf("mean[%d]=%f; want 100", i, means[i])
		}
	}
	for i, v := range stds {
		if v != 0 {
			t.Errorf("std[%d]=%f; want 0", i, v)
		}
	}
}

// window values around (x,y), for reference statistics
func window(src []float32, width, height, x, y, rx, ry int) []float64 {
	var res []float64
	for j := y - ry; j <= y+ry; j++ {
		for i := x - rx; i <= x+rx; i++ {
			if i >= 0 && i < width && j >= 0 && j < height {
				res = append(res, float64(src[j*width+i]))
			}
		}
	}
	return res
}

func TestAgainstReference(t *testing.T) {
	rng := fastrand.RNG{}
	width, height := 17, 12
	src := make([]float32, width*height)
	for i := range src {
		src[i] = float32(rng.Uint32n(1000)) / 10
	}
	s, _ := New(src, width, height)
	s.SetThreads(3)

	for _, r := range [][2]int{{0, 0}, {1, 2}, {3, 3}, {20, 1}} {
		means := s.Mean(r[0], r[1])
		vars := s.Variance(r[0], r[1])
		svars := s.SampleVariance(r[0], r[1])
		sstds := s.SampleStd(r[0], r[1])
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := y*width + x
				w := window(src, width, height, x, y, r[0], r[1])
				wantMean := stat.Mean(w, nil)
				wantSVar := 0.0
				if len(w) > 1 {
					wantSVar = stat.Variance(w, nil)
				}
				wantVar := wantSVar * float64(len(w)-1) / float64(len(w))

				if math.Abs(float64(means[i])-wantMean) > 1e-3 {
					t.Errorf("r=%v mean(%d,%d)=%f; want %f", r, x, y, means[i], wantMean)
				}
				if math.Abs(float64(vars[i])-wantVar) > 1e-2 {
					t.Errorf("r=%v variance(%d,%d)=%f; want %f", r, x, y, vars[i], wantVar)
				}
				if math.Abs(float64(svars[i])-wantSVar) > 1e-2 {
					t.Errorf("r=%v sampleVariance(%d,%d)=%f; want %f", r, x, y, svars[i], wantSVar)
				}
				if math.Abs(float64(sstds[i])-math.Sqrt(wantSVar)) > 1e-2 {
					t.Errorf("r=%v sampleStd(%d,%d)=%f; want %f", r, x, y, sstds[i], math.Sqrt(wantSVar))
				}
			}
		}
	}
}

func TestNonNegative(t *testing.T) {
	rng := fastrand.RNG{}
	width, height := 31, 7
	src := make([]float32, width*height)
	for i := range src {
		// large offset provokes cancellation in E[X^2]-E[X]^2
		src[i] = 1e6 + float32(rng.Uint32n(3))*0.01
	}
	s, _ := New(src, width, height)
	for _, r := range []int{0, 1, 2, 5} {
		for _, vs := range [][]float32{s.Variance(r, r), s.Std(r, r), s.SampleVariance(r, r), s.SampleStd(r, r)} {
			for i, v := range vs {
				if v < 0 || v != v {
					t.Errorf("r=%d value[%d]=%f; want >=0", r, i, v)
				}
			}
		}
	}
}

func TestSinglePixel(t *testing.T) {
	s, _ := New([]float32{42}, 1, 1)
	if v := s.SampleVariance(3, 3)[0]; v != 0 {
		t.Errorf("sample variance of one pixel=%f; want 0", v)
	}
	if v := s.Mean(3, 3)[0]; v != 42 {
		t.Errorf("mean of one pixel=%f; want 42", v)
	}
}

func TestIntoErrors(t *testing.T) {
	s, _ := New(make([]float32, 6), 3, 2)
	if err := s.MeanInto(make([]float32, 5), 1, 1); err == nil {
		t.Errorf("MeanInto with short destination; want error")
	}
	if err := s.StdInto(make([]float32, 6), 1, 1); err != nil {
		t.Errorf("StdInto: %s", err)
	}

	r, _ := New([]float32{1, 2, 3, 4, 5, 6}, 3, 2)
	into := make([]float32, 6)
	if err := r.MeanInto(into, 1, 0); err != nil {
		t.Fatal(err)
	}
	for i, v := range r.Mean(1, 0) {
		if v != into[i] {
			t.Errorf("Mean[%d]=%f; MeanInto gave %f", i, v, into[i])
		}
	}
	if _, err := New(make([]float32, 5), 3, 2); err == nil {
		t.Errorf("New with size mismatch; want error")
	}
}
