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

// Package integral implements summed-area tables with constant time
// rectangular sum queries.
//
// A table over a width x height source holds (width+1)x(height+1) entries.
// Entry (x,y) is the sum of all source values in [0,x) x [0,y), so row 0 and
// column 0 are zero. Queries take block coordinates with exclusive minimum
// and inclusive maximum in [-1, dim-1]; -1 addresses the zero border.
// Tables are immutable after construction and safe for concurrent reads.
package integral

import (
	"errors"
	"fmt"
	"math"
)

// Common view of the tables for code which only needs rounded block averages
type Table interface {
	Width() int
	Height() int
	ScaledSum(xMin, yMin, xMax, yMax int, scale float64) int
}

// Summed-area table with 32-bit integer accumulators. Only for 8-bit sources small enough not to overflow
type IntTable struct {
	width, height int
	data          []int32
}

// Summed-area table with 64-bit integer accumulators, for 8-bit and 16-bit sources
type LongTable struct {
	width, height int
	data          []int64
}

// Summed-area table with 64-bit floating point accumulators, for float sources
type DoubleTable struct {
	width, height int
	data          []float64
}

// Summed-area table over packed 0xRRGGBB pixels, with one 64-bit accumulator per channel
type RGBTable struct {
	width, height int
	r, g, b       []int64
}

func checkSource(width, height, length int) error {
	if width <= 0 || height <= 0 {
		return errors.New(fmt.Sprintf("invalid table dimensions %dx%d", width, height))
	}
	if width*height != length {
		return errors.New(fmt.Sprintf("source of %d pixels does not match dimensions %dx%d", length, width, height))
	}
	return nil
}

// Second pass of the construction: turns the row prefix sums into the table
func prefixColumns[T int32 | int64 | float64](data []T, width, height int) {
	stride := width + 1
	for y := 2; y <= height; y++ {
		row, prev := data[y*stride:(y+1)*stride], data[(y-1)*stride:y*stride]
		for x := 1; x <= width; x++ {
			row[x] += prev[x]
		}
	}
}

// Builds a 32-bit table from 8-bit data. Fails if the worst-case total 255*width*height exceeds the accumulator
func NewIntTableFromGray8(src []uint8, width, height int) (*IntTable, error) {
	if err := checkSource(width, height, len(src)); err != nil {
		return nil, err
	}
	if 255*int64(width)*int64(height) > math.MaxInt32 {
		return nil, errors.New(fmt.Sprintf("%dx%d pixels may overflow a 32-bit integral image", width, height))
	}
	t := &IntTable{width: width, height: height, data: make([]int32, (width+1)*(height+1))}
	for y := 0; y < height; y++ {
		row, s := t.data[(y+1)*(width+1)+1:], int32(0)
		for x, v := range src[y*width : (y+1)*width] {
			s += int32(v)
			row[x] = s
		}
	}
	prefixColumns(t.data, width, height)
	return t, nil
}

// Builds a 64-bit table from 8-bit data
func NewLongTableFromGray8(src []uint8, width, height int) (*LongTable, error) {
	if err := checkSource(width, height, len(src)); err != nil {
		return nil, err
	}
	t := &LongTable{width: width, height: height, data: make([]int64, (width+1)*(height+1))}
	for y := 0; y < height; y++ {
		row, s := t.data[(y+1)*(width+1)+1:], int64(0)
		for x, v := range src[y*width : (y+1)*width] {
			s += int64(v)
			row[x] = s
		}
	}
	prefixColumns(t.data, width, height)
	return t, nil
}

// Builds a 64-bit table from 16-bit data
func NewLongTableFromGray16(src []uint16, width, height int) (*LongTable, error) {
	if err := checkSource(width, height, len(src)); err != nil {
		return nil, err
	}
	t := &LongTable{width: width, height: height, data: make([]int64, (width+1)*(height+1))}
	for y := 0; y < height; y++ {
		row, s := t.data[(y+1)*(width+1)+1:], int64(0)
		for x, v := range src[y*width : (y+1)*width] {
			s += int64(v)
			row[x] = s
		}
	}
	prefixColumns(t.data, width, height)
	return t, nil
}

// Builds a floating point table from float data
func NewDoubleTableFromFloat32(src []float32, width, height int) (*DoubleTable, error) {
	if err := checkSource(width, height, len(src)); err != nil {
		return nil, err
	}
	t := &DoubleTable{width: width, height: height, data: make([]float64, (width+1)*(height+1))}
	for y := 0; y < height; y++ {
		row, s := t.data[(y+1)*(width+1)+1:], 0.0
		for x, v := range src[y*width : (y+1)*width] {
			s += float64(v)
			row[x] = s
		}
	}
	prefixColumns(t.data, width, height)
	return t, nil
}

// Builds a floating point table over the squares of float data
func NewDoubleTableFromSquares(src []float32, width, height int) (*DoubleTable, error) {
	if err := checkSource(width, height, len(src)); err != nil {
		return nil, err
	}
	t := &DoubleTable{width: width, height: height, data: make([]float64, (width+1)*(height+1))}
	for y := 0; y < height; y++ {
		row, s := t.data[(y+1)*(width+1)+1:], 0.0
		for x, v := range src[y*width : (y+1)*width] {
			s += float64(v) * float64(v)
			row[x] = s
		}
	}
	prefixColumns(t.data, width, height)
	return t, nil
}

// Builds a floating point table of size width x height over the products a[ax+x, ay+y] * b[bx+x, by+y].
// Both windows must lie inside their buffers; aWidth and bWidth are the buffer row lengths
func NewDoubleTableFromProduct(a []float32, aWidth, ax, ay int, b []float32, bWidth, bx, by int, width, height int) (*DoubleTable, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New(fmt.Sprintf("invalid table dimensions %dx%d", width, height))
	}
	if aWidth <= 0 || ax < 0 || ay < 0 || ax+width > aWidth || (ay+height)*aWidth > len(a) {
		return nil, errors.New(fmt.Sprintf("window %dx%d at (%d,%d) exceeds first buffer", width, height, ax, ay))
	}
	if bWidth <= 0 || bx < 0 || by < 0 || bx+width > bWidth || (by+height)*bWidth > len(b) {
		return nil, errors.New(fmt.Sprintf("window %dx%d at (%d,%d) exceeds second buffer", width, height, bx, by))
	}
	t := &DoubleTable{width: width, height: height, data: make([]float64, (width+1)*(height+1))}
	for y := 0; y < height; y++ {
		row, s := t.data[(y+1)*(width+1)+1:], 0.0
		aRow := a[(ay+y)*aWidth+ax : (ay+y)*aWidth+ax+width]
		bRow := b[(by+y)*bWidth+bx : (by+y)*bWidth+bx+width]
		for x := range aRow {
			s += float64(aRow[x]) * float64(bRow[x])
			row[x] = s
		}
	}
	prefixColumns(t.data, width, height)
	return t, nil
}

// Builds a table over packed 0xRRGGBB data, one accumulator per channel
func NewRGBTable(src []uint32, width, height int) (*RGBTable, error) {
	if err := checkSource(width, height, len(src)); err != nil {
		return nil, err
	}
	size := (width + 1) * (height + 1)
	t := &RGBTable{width: width, height: height, r: make([]int64, size), g: make([]int64, size), b: make([]int64, size)}
	for y := 0; y < height; y++ {
		offset := (y+1)*(width+1) + 1
		var sr, sg, sb int64
		for x, c := range src[y*width : (y+1)*width] {
			sr += int64((c >> 16) & 0xff)
			sg += int64((c >> 8) & 0xff)
			sb += int64(c & 0xff)
			t.r[offset+x], t.g[offset+x], t.b[offset+x] = sr, sg, sb
		}
	}
	prefixColumns(t.r, width, height)
	prefixColumns(t.g, width, height)
	prefixColumns(t.b, width, height)
	return t, nil
}

func (t *IntTable) Width() int     { return t.width }
func (t *IntTable) Height() int    { return t.height }
func (t *LongTable) Width() int    { return t.width }
func (t *LongTable) Height() int   { return t.height }
func (t *DoubleTable) Width() int  { return t.width }
func (t *DoubleTable) Height() int { return t.height }
func (t *RGBTable) Width() int     { return t.width }
func (t *RGBTable) Height() int    { return t.height }

// Sum of the source values in (xMin,xMax] x (yMin,yMax]
func (t *IntTable) Sum(xMin, yMin, xMax, yMax int) int32 {
	stride := t.width + 1
	y0, y1 := (yMin+1)*stride+1, (yMax+1)*stride+1
	return t.data[y0+xMin] + t.data[y1+xMax] - t.data[y0+xMax] - t.data[y1+xMin]
}

// Sum of the source values in (xMin,xMax] x (yMin,yMax]
func (t *LongTable) Sum(xMin, yMin, xMax, yMax int) int64 {
	stride := t.width + 1
	y0, y1 := (yMin+1)*stride+1, (yMax+1)*stride+1
	return t.data[y0+xMin] + t.data[y1+xMax] - t.data[y0+xMax] - t.data[y1+xMin]
}

// Sum of the source values in (xMin,xMax] x (yMin,yMax]
func (t *DoubleTable) Sum(xMin, yMin, xMax, yMax int) float64 {
	stride := t.width + 1
	y0, y1 := (yMin+1)*stride+1, (yMax+1)*stride+1
	return t.data[y0+xMin] + t.data[y1+xMax] - t.data[y0+xMax] - t.data[y1+xMin]
}

// Per-channel sums of the source values in (xMin,xMax] x (yMin,yMax]
func (t *RGBTable) Sum(xMin, yMin, xMax, yMax int) (r, g, b int64) {
	stride := t.width + 1
	y0, y1 := (yMin+1)*stride+1, (yMax+1)*stride+1
	r = t.r[y0+xMin] + t.r[y1+xMax] - t.r[y0+xMax] - t.r[y1+xMin]
	g = t.g[y0+xMin] + t.g[y1+xMax] - t.g[y0+xMax] - t.g[y1+xMin]
	b = t.b[y0+xMin] + t.b[y1+xMax] - t.b[y0+xMax] - t.b[y1+xMin]
	return r, g, b
}

// Block sum multiplied by scale, rounded to the nearest integer
func (t *IntTable) ScaledSum(xMin, yMin, xMax, yMax int, scale float64) int {
	return round(float64(t.Sum(xMin, yMin, xMax, yMax)) * scale)
}

// Block sum multiplied by scale, rounded to the nearest integer
func (t *LongTable) ScaledSum(xMin, yMin, xMax, yMax int, scale float64) int {
	return round(float64(t.Sum(xMin, yMin, xMax, yMax)) * scale)
}

// Block sum multiplied by scale, rounded to the nearest integer
func (t *DoubleTable) ScaledSum(xMin, yMin, xMax, yMax int, scale float64) int {
	return round(t.Sum(xMin, yMin, xMax, yMax) * scale)
}

// Per-channel block sums multiplied by scale, rounded, clamped to [0,255] and packed as 0xRRGGBB
func (t *RGBTable) ScaledSum(xMin, yMin, xMax, yMax int, scale float64) int {
	r, g, b := t.Sum(xMin, yMin, xMax, yMax)
	return clamp8(round(float64(r)*scale))<<16 | clamp8(round(float64(g)*scale))<<8 | clamp8(round(float64(b)*scale))
}

func round(v float64) int {
	return int(math.Floor(v + 0.5))
}

func clamp8(v int) int {
	if v < 0 {
		return 0
	} else if v > 255 {
		return 255
	}
	return v
}
