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

package integral

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

// draws a random block with -1 <= min < max <= dim-1
func randomBlock(rng *fastrand.RNG, width, height int) Block {
	x0, x1 := int(rng.Uint32n(uint32(width+1)))-1, int(rng.Uint32n(uint32(width+1)))-1
	y0, y1 := int(rng.Uint32n(uint32(height+1)))-1, int(rng.Uint32n(uint32(height+1)))-1
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if x0 == x1 {
		if x1 < width-1 {
			x1++
		} else {
			x0--
		}
	}
	if y0 == y1 {
		if y1 < height-1 {
			y1++
		} else {
			y0--
		}
	}
	return Block{x0, y0, x1, y1}
}

func bruteForce(width int, b Block, at func(i int) float64) float64 {
	sum := 0.0
	for y := b.YMin + 1; y <= b.YMax; y++ {
		for x := b.XMin + 1; x <= b.XMax; x++ {
			sum += at(y*width + x)
		}
	}
	return sum
}

func TestSumMatchesBruteForce(t *testing.T) {
	rng := fastrand.RNG{}
	dims := [][2]int{{1, 1}, {1, 9}, {7, 1}, {13, 11}, {64, 33}}

	for _, dim := range dims {
		width, height := dim[0], dim[1]
		g8 := make([]uint8, width*height)
		g16 := make([]uint16, width*height)
		f32 := make([]float32, width*height)
		rgb := make([]uint32, width*height)
		for i := range g8 {
			g8[i] = uint8(rng.Uint32n(256))
			g16[i] = uint16(rng.Uint32n(65536))
			f32[i] = float32(rng.Uint32n(20001))/100 - 100
			rgb[i] = rng.Uint32n(1 << 24)
		}

		it, err := NewIntTableFromGray8(g8, width, height)
		if err != nil {
			t.Fatal(err)
		}
		lt8, _ := NewLongTableFromGray8(g8, width, height)
		lt16, _ := NewLongTableFromGray16(g16, width, height)
		dt, _ := NewDoubleTableFromFloat32(f32, width, height)
		sq, _ := NewDoubleTableFromSquares(f32, width, height)
		ct, _ := NewRGBTable(rgb, width, height)

		for i := 0; i < 200; i++ {
			b := randomBlock(&rng, width, height)

			want8 := bruteForce(width, b, func(i int) float64 { return float64(g8[i]) })
			if got := it.Sum(b.XMin, b.YMin, b.XMax, b.YMax); float64(got) != want8 {
				t.Errorf("%dx%d int sum %v=%d; want %f", width, height, b, got, want8)
			}
			if got := lt8.Sum(b.XMin, b.YMin, b.XMax, b.YMax); float64(got) != want8 {
				t.Errorf("%dx%d long8 sum %v=%d; want %f", width, height, b, got, want8)
			}
			want16 := bruteForce(width, b, func(i int) float64 { return float64(g16[i]) })
			if got := lt16.Sum(b.XMin, b.YMin, b.XMax, b.YMax); float64(got) != want16 {
				t.Errorf("%dx%d long16 sum %v=%d; want %f", width, height, b, got, want16)
			}
			wantF := bruteForce(width, b, func(i int) float64 { return float64(f32[i]) })
			if got := dt.Sum(b.XMin, b.YMin, b.XMax, b.YMax); math.Abs(got-wantF) > 1e-6*float64(len(f32)) {
				t.Errorf("%dx%d double sum %v=%f; want %f", width, height, b, got, wantF)
			}
			wantSq := bruteForce(width, b, func(i int) float64 { return float64(f32[i]) * float64(f32[i]) })
			if got := sq.Sum(b.XMin, b.YMin, b.XMax, b.YMax); math.Abs(got-wantSq) > 1e-9*math.Max(1, wantSq) {
				t.Errorf("%dx%d squares sum %v=%f; want %f", width, height, b, got, wantSq)
			}
			r, g, bl := ct.Sum(b.XMin, b.YMin, b.XMax, b.YMax)
			wantR := bruteForce(width, b, func(i int) float64 { return float64(rgb[i] >> 16 & 0xff) })
			wantG := bruteForce(width, b, func(i int) float64 { return float64(rgb[i] >> 8 & 0xff) })
			wantB := bruteForce(width, b, func(i int) float64 { return float64(rgb[i] & 0xff) })
			if float64(r) != wantR || float64(g) != wantG || float64(bl) != wantB {
				t.Errorf("%dx%d rgb sum %v=%d,%d,%d; want %f,%f,%f", width, height, b, r, g, bl, wantR, wantG, wantB)
			}
		}
	}
}

func TestSentinelBorder(t *testing.T) {
	src := []uint8{1, 2, 3, 4, 5, 6}
	lt, _ := NewLongTableFromGray8(src, 3, 2)
	for x := -1; x < 3; x++ {
		if s := lt.Sum(-1, -1, x, -1); s != 0 {
			t.Errorf("sum over empty row block to x=%d is %d; want 0", x, s)
		}
	}
	if s := lt.Sum(-1, -1, 2, 1); s != 21 {
		t.Errorf("full sum=%d; want 21", s)
	}
	if s := lt.Sum(0, 0, 2, 1); s != 11 {
		t.Errorf("sum of bottom right 2x1=%d; want 11", s)
	}
}

func TestScaledSum(t *testing.T) {
	src := []uint8{1, 2, 2, 2}
	it, _ := NewIntTableFromGray8(src, 2, 2)
	if v := it.ScaledSum(-1, -1, 1, 1, 0.25); v != 2 {
		t.Errorf("ScaledSum(7/4)=%d; want 2", v)
	}
	if v := it.ScaledSum(-1, -1, 0, 0, 0.5); v != 1 {
		t.Errorf("ScaledSum(1/2)=%d; want 1 (round half up)", v)
	}

	ct, _ := NewRGBTable([]uint32{0xff0000, 0xff0010}, 2, 1)
	if v := ct.ScaledSum(-1, -1, 1, 0, 0.5); v != 0xff0008 {
		t.Errorf("rgb ScaledSum=%06x; want ff0008", v)
	}
	if v := ct.ScaledSum(-1, -1, 1, 0, 1); v != 0xff0010 {
		t.Errorf("rgb ScaledSum saturated=%06x; want ff0010", v)
	}
}

func TestConstructionErrors(t *testing.T) {
	if _, err := NewLongTableFromGray8(make([]uint8, 5), 2, 3); err == nil {
		t.Errorf("size mismatch; want error")
	}
	if _, err := NewDoubleTableFromFloat32(nil, 0, 0); err == nil {
		t.Errorf("empty source; want error")
	}
	if _, err := NewIntTableFromGray8(make([]uint8, 4096*4096), 4096, 4096); err == nil {
		t.Errorf("4096x4096 int table; want overflow error")
	}
	if _, err := NewDoubleTableFromProduct(make([]float32, 9), 3, 1, 1, make([]float32, 9), 3, 0, 0, 3, 3); err == nil {
		t.Errorf("product window outside first buffer; want error")
	}
}

func TestProductTable(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	b := []float32{1, 1, 2, 2}
	pt, err := NewDoubleTableFromProduct(a, 3, 1, 1, b, 2, 0, 0, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	// 5*1 + 6*1 + 8*2 + 9*2
	if s := pt.Sum(-1, -1, 1, 1); s != 45 {
		t.Errorf("product sum=%f; want 45", s)
	}
}

func TestClampBlock(t *testing.T) {
	tcs := []struct {
		x, y, rx, ry int
		want         Block
		area         int
	}{
		{0, 0, 1, 1, Block{-1, -1, 1, 1}, 4},
		{2, 2, 1, 1, Block{0, 0, 3, 3}, 9},
		{4, 4, 10, 10, Block{-1, -1, 4, 4}, 25},
		{2, 3, 0, 0, Block{1, 2, 2, 3}, 1},
		{2, 3, -5, -5, Block{1, 2, 2, 3}, 1},
	}
	for _, tc := range tcs {
		b := ClampBlock(tc.x, tc.y, tc.rx, tc.ry, 5, 5)
		if b != tc.want || b.Area() != tc.area {
			t.Errorf("ClampBlock(%d,%d,%d,%d)=%v area %d; want %v area %d", tc.x, tc.y, tc.rx, tc.ry, b, b.Area(), tc.want, tc.area)
		}
	}
}
