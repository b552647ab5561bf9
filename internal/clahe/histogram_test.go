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
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

func TestClipHistogramCases(t *testing.T) {
	tcs := []struct {
		hist      []int
		limit     int
		want      []int
		wantLimit int
	}{
		{[]int{10, 0, 0, 0}, 4, []int{4, 2, 2, 2}, 4},
		{[]int{10, 3, 0, 0}, 4, []int{4, 4, 3, 2}, 4},
		{[]int{1, 2, 3}, 5, []int{1, 2, 3}, 5},
		{[]int{20, 0}, 3, []int{10, 10}, 10},
		{[]int{0, 0, 0}, 1, []int{0, 0, 0}, 1},
	}
	for _, tc := range tcs {
		hist := append([]int(nil), tc.hist...)
		limit := ClipHistogram(hist, tc.limit)
		if limit != tc.wantLimit {
			t.Errorf("ClipHistogram(%v,%d) limit %d; want %d", tc.hist, tc.limit, limit, tc.wantLimit)
		}
		for i := range tc.want {
			if hist[i] != tc.want[i] {
				t.Errorf("ClipHistogram(%v,%d)=%v; want %v", tc.hist, tc.limit, hist, tc.want)
				break
			}
		}
	}
}

func TestClipHistogramConservation(t *testing.T) {
	rng := fastrand.RNG{}
	for iter := 0; iter < 2000; iter++ {
		bins := 2 + int(rng.Uint32n(255))
		hist := make([]int, bins)
		total := 0
		// sparse, peaked histograms stress the redistribution
		for j := 0; j < 1+int(rng.Uint32n(8)); j++ {
			k := int(rng.Uint32n(uint32(bins)))
			hist[k] += int(rng.Uint32n(5000))
		}
		for j := range hist {
			if rng.Uint32n(4) == 0 {
				hist[j] += int(rng.Uint32n(20))
			}
			total += hist[j]
		}
		limit := 1 + int(rng.Uint32n(200))

		clipped := append([]int(nil), hist...)
		eff := ClipHistogram(clipped, limit)
		sum := 0
		for j, h := range clipped {
			sum += h
			if h > eff || h < 0 {
				t.Errorf("iter %d bin %d=%d outside [0,%d]", iter, j, h, eff)
			}
		}
		if sum != total {
			t.Errorf("iter %d sum=%d; want %d", iter, sum, total)
		}
		if eff < limit || (eff > limit && eff != (total+bins-1)/bins) {
			t.Errorf("iter %d effective limit %d for limit %d total %d bins %d", iter, eff, limit, total, bins)
		}
	}
}

func TestTransferFunction(t *testing.T) {
	rng := fastrand.RNG{}
	for iter := 0; iter < 200; iter++ {
		bins := 2 + int(rng.Uint32n(255))
		hist := make([]int, bins)
		for j := range hist {
			if rng.Uint32n(3) == 0 {
				hist[j] = int(rng.Uint32n(100))
			}
		}
		hist[int(rng.Uint32n(uint32(bins)))] += 1
		tf := make([]float64, bins)
		limit := 1 + int(rng.Uint32n(50))
		TransferFunction(hist, limit, tf)

		for j, v := range tf {
			if v < 0 || v > 1 {
				t.Errorf("iter %d tf[%d]=%f outside [0,1]", iter, j, v)
			}
			if j > 0 && v < tf[j-1] {
				t.Errorf("iter %d tf[%d]=%f < tf[%d]=%f", iter, j, v, j-1, tf[j-1])
			}
		}
		if math.Abs(tf[bins-1]-1) > 1e-12 {
			t.Errorf("iter %d tf[last]=%f; want 1", iter, tf[bins-1])
		}

		// the single-bin evaluation agrees with the full function
		clipped := append([]int(nil), hist...)
		ClipHistogram(clipped, limit)
		for j := range tf {
			if v := transferValue(clipped, j); v != tf[j] {
				t.Errorf("iter %d transferValue(%d)=%f; want %f", iter, j, v, tf[j])
			}
		}
	}
}

func TestTransferFunctionDegenerate(t *testing.T) {
	for _, hist := range [][]int{{0, 0, 0, 0, 0}, {0, 0, 7, 0, 0}} {
		tf := make([]float64, len(hist))
		TransferFunction(hist, 100, tf)
		for i, v := range tf {
			if want := float64(i) / 4; v != want {
				t.Errorf("TransferFunction(%v)[%d]=%f; want identity %f", hist, i, v, want)
			}
		}
	}
}

func TestQuantize(t *testing.T) {
	tcs := []struct {
		v    uint8
		bins int
		want int
	}{
		{0, 256, 0}, {255, 256, 255}, {77, 256, 77},
		{0, 2, 0}, {127, 2, 0}, {128, 2, 1}, {255, 2, 1},
		{255, 16, 15}, {8, 16, 0}, {9, 16, 1},
	}
	for _, tc := range tcs {
		if got := Quantize(tc.v, tc.bins); got != tc.want {
			t.Errorf("Quantize(%d,%d)=%d; want %d", tc.v, tc.bins, got, tc.want)
		}
	}
}

func TestParams(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Errorf("DefaultParams: %s", err)
	}
	bad := []Params{{0, 256, 3}, {5, 1, 3}, {5, 257, 3}, {5, 256, 0.5}, {5, 256, math.NaN()}}
	for _, p := range bad {
		if p.Validate() == nil {
			t.Errorf("Validate(%+v); want error", p)
		}
	}
	p := Params{BlockRadius: 2, Bins: 16, Slope: 3}
	if l := p.Limit(25); l != 5 {
		t.Errorf("Limit(25)=%d; want 5", l)
	}
	if l := p.Limit(1); l != 1 {
		t.Errorf("Limit(1)=%d; want 1", l)
	}
}
