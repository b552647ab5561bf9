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

package pmcc

import (
	"image"
	"math"
	"testing"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat"
)

func randomBuffer(rng *fastrand.RNG, width, height int) []float32 {
	data := make([]float32, width*height)
	for i := range data {
		data[i] = float32(rng.Uint32n(1000)) / 4
	}
	return data
}

func TestSelfCorrelation(t *testing.T) {
	rng := fastrand.RNG{}
	width, height := 16, 11
	x := randomBuffer(&rng, width, height)
	p, err := New(x, width, height, x, width, height)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []int{1, 2, 5} {
		for i, v := range p.R(r, r) {
			if math.Abs(float64(v)-1) > 1e-4 {
				t.Errorf("r=%d R[%d]=%f; want 1", r, i, v)
			}
		}
		for i, v := range p.RSignedSquare(r, r) {
			if math.Abs(float64(v)-1) > 1e-4 {
				t.Errorf("r=%d RSignedSquare[%d]=%f; want 1", r, i, v)
			}
		}
	}
}

func TestAntiCorrelation(t *testing.T) {
	rng := fastrand.RNG{}
	width, height := 9, 9
	x := randomBuffer(&rng, width, height)
	y := make([]float32, len(x))
	for i := range x {
		y[i] = 7 - 2*x[i]
	}
	p, _ := New(x, width, height, y, width, height)
	for i, v := range p.R(2, 1) {
		if math.Abs(float64(v)+1) > 1e-4 {
			t.Errorf("R[%d]=%f; want -1", i, v)
		}
	}
	for i, v := range p.RSignedSquare(2, 1) {
		if math.Abs(float64(v)+1) > 1e-4 {
			t.Errorf("RSignedSquare[%d]=%f; want -1", i, v)
		}
	}
}

func TestShiftedCopy(t *testing.T) {
	rng := fastrand.RNG{}
	wx, hx, wy, hy := 10, 8, 14, 12
	x := randomBuffer(&rng, wx, hx)
	y := randomBuffer(&rng, wy, hy)
	ox, oy := 3, 2
	for j := 0; j < hx; j++ {
		for i := 0; i < wx; i++ {
			y[(j+oy)*wy+i+ox] = x[j*wx+i]
		}
	}
	p, _ := New(x, wx, hx, y, wy, hy)
	if err := p.SetOffset(ox, oy); err != nil {
		t.Fatal(err)
	}
	if o := p.Overlap(); o != image.Rect(0, 0, wx, hx) {
		t.Errorf("Overlap()=%v; want %v", o, image.Rect(0, 0, wx, hx))
	}
	for i, v := range p.R(1, 1) {
		if math.Abs(float64(v)-1) > 1e-4 {
			t.Errorf("R[%d]=%f; want 1", i, v)
		}
	}
}

func TestAgainstReference(t *testing.T) {
	rng := fastrand.RNG{}
	wx, hx, wy, hy := 12, 10, 15, 9
	x := randomBuffer(&rng, wx, hx)
	y := randomBuffer(&rng, wy, hy)
	p, err := New(x, wx, hx, y, wy, hy)
	if err != nil {
		t.Fatal(err)
	}
	p.SetThreads(3)

	offsets := [][2]int{{0, 0}, {2, -1}, {-3, 2}, {-4, -4}, {5, 3}}
	for _, off := range offsets {
		ox, oy := off[0], off[1]
		if err := p.SetOffset(ox, oy); err != nil {
			t.Fatal(err)
		}
		o := p.Overlap()
		want := image.Rect(max(0, -ox), max(0, -oy), min(wx, wy-ox), min(hx, hy-oy))
		if o != want {
			t.Errorf("offset %v: Overlap()=%v; want %v", off, o, want)
		}

		rx, ry := 2, 1
		rs, sqs := p.R(rx, ry), p.RSignedSquare(rx, ry)
		for j := 0; j < hx; j++ {
			for i := 0; i < wx; i++ {
				k := j*wx + i
				if !(image.Pt(i, j).In(o)) {
					if rs[k] != 0 || sqs[k] != 0 {
						t.Errorf("offset %v: (%d,%d) outside overlap R=%f sq=%f; want 0", off, i, j, rs[k], sqs[k])
					}
					continue
				}

				var xs, ys []float64
				for jj := max(o.Min.Y, j-ry); jj < min(o.Max.Y, j+ry+1); jj++ {
					for ii := max(o.Min.X, i-rx); ii < min(o.Max.X, i+rx+1); ii++ {
						xs = append(xs, float64(x[jj*wx+ii]))
						ys = append(ys, float64(y[(jj+oy)*wy+ii+ox]))
					}
				}
				ref := 0.0
				if len(xs) > 1 && stat.Variance(xs, nil) > 0 && stat.Variance(ys, nil) > 0 {
					ref = stat.Correlation(xs, ys, nil)
				}
				if math.Abs(float64(rs[k])-ref) > 1e-4 {
					t.Errorf("offset %v: R(%d,%d)=%f; want %f", off, i, j, rs[k], ref)
				}
				if math.Abs(float64(sqs[k])-math.Copysign(ref*ref, ref)) > 1e-4 {
					t.Errorf("offset %v: RSignedSquare(%d,%d)=%f; want %f", off, i, j, sqs[k], math.Copysign(ref*ref, ref))
				}
			}
		}
	}
}

func TestNoOverlap(t *testing.T) {
	x := make([]float32, 16)
	p, _ := New(x, 4, 4, x, 4, 4)
	for _, off := range [][2]int{{4, 0}, {0, -4}, {-10, 10}} {
		if err := p.SetOffset(off[0], off[1]); err != nil {
			t.Fatalf("SetOffset(%v): %s", off, err)
		}
		if !p.Overlap().Empty() {
			t.Errorf("offset %v: Overlap()=%v; want empty", off, p.Overlap())
		}
		for i, v := range p.R(1, 1) {
			if v != 0 {
				t.Errorf("offset %v: R[%d]=%f; want 0", off, i, v)
			}
		}
	}
}

func TestFlatWindow(t *testing.T) {
	x := make([]float32, 25)
	for i := range x {
		x[i] = 3
	}
	p, _ := New(x, 5, 5, x, 5, 5)
	for i, v := range p.R(1, 1) {
		if v != 0 || v != v {
			t.Errorf("R[%d]=%f; want 0 for flat input", i, v)
		}
	}
}

func TestSizeMismatch(t *testing.T) {
	if _, err := New(make([]float32, 10), 3, 3, make([]float32, 9), 3, 3); err == nil {
		t.Errorf("moving buffer size mismatch; want error")
	}
	if _, err := New(make([]float32, 9), 3, 3, make([]float32, 9), 4, 3); err == nil {
		t.Errorf("target buffer size mismatch; want error")
	}
}
