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
)

func TestNormalizeLocalContrastIdentity(t *testing.T) {
	// neither centering nor stretching maps every pixel onto itself
	src := []float32{0, 10, 20, 30, 40, 50}
	dst, err := NormalizeLocalContrast(src, 3, 2, Contrast{RX: 1, RY: 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i := range src {
		if math.Abs(float64(dst[i]-src[i])) > 1e-4 {
			t.Errorf("dst[%d]=%f; want %f", i, dst[i], src[i])
		}
	}
}

func TestNormalizeLocalContrastCenter(t *testing.T) {
	// a linear ramp centered on its local mean lands in the middle of the range, except at the edges
	src := []float32{0, 10, 20, 30, 40}
	dst, err := NormalizeLocalContrast(src, 5, 1, Contrast{RX: 1, Center: true}, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{15, 20, 20, 20, 25}
	for i := range want {
		if math.Abs(float64(dst[i]-want[i])) > 1e-4 {
			t.Errorf("dst[%d]=%f; want %f", i, dst[i], want[i])
		}
	}
}

func TestNormalizeLocalContrastStretch(t *testing.T) {
	src := []float32{0, 2, 0, 2, 0, 2}
	dst, err := NormalizeLocalContrast(src, 6, 1, Contrast{RX: 50, Stds: 1, Center: true, Stretch: true}, 1)
	if err != nil {
		t.Fatal(err)
	}
	// global mean 1 std 1, so values map to the range ends
	for i := range src {
		if math.Abs(float64(dst[i]-src[i])) > 1e-4 {
			t.Errorf("dst[%d]=%f; want %f", i, dst[i], src[i])
		}
	}

	if _, err := NormalizeLocalContrast(src, 6, 1, Contrast{RX: 1, Stretch: true}, 1); err == nil {
		t.Errorf("stretch with zero stds; want error")
	}
}

func TestRemoveOutliers(t *testing.T) {
	width, height := 5, 5
	src := make([]float32, width*height)
	for i := range src {
		src[i] = 10
	}
	src[12] = 1000

	dst, n, err := RemoveOutliers(src, width, height, 2, 2, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("replaced %d pixels; want 1", n)
	}
	if math.Abs(float64(dst[12]-(24*10+1000)/25.0)) > 1e-3 {
		t.Errorf("dst[12]=%f; want local mean %f", dst[12], (24*10+1000)/25.0)
	}
	for i, v := range dst {
		if i != 12 && v != 10 {
			t.Errorf("dst[%d]=%f; want 10", i, v)
		}
	}

	if _, _, err := RemoveOutliers(src, width, height, 1, 1, 0, 0); err == nil {
		t.Errorf("zero threshold; want error")
	}
}
