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
	"errors"
	"fmt"
	"math"

	"github.com/mlnoga/localstats/internal/parallel"
	"github.com/mlnoga/localstats/internal/pixels"
)

// Builds the table variant matching the pixel representation of the image.
// 8-bit images use 32-bit accumulators where they cannot overflow
func NewTable(f *pixels.Image) (Table, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch f.Kind {
	case pixels.Gray8:
		if 255*int64(f.Width)*int64(f.Height) <= math.MaxInt32 {
			return NewIntTableFromGray8(f.Gray8, f.Width, f.Height)
		}
		return NewLongTableFromGray8(f.Gray8, f.Width, f.Height)
	case pixels.Gray16:
		return NewLongTableFromGray16(f.Gray16, f.Width, f.Height)
	case pixels.Float32:
		return NewDoubleTableFromFloat32(f.Float, f.Width, f.Height)
	default:
		return NewRGBTable(f.RGB, f.Width, f.Height)
	}
}

// Replaces every pixel with the mean of the window [x-rx, x+rx] x [y-ry, y+ry] clipped to the image.
// The result keeps the pixel representation of the source; integral values are rounded
func MeanFilter(f *pixels.Image, rx, ry, threads int) (*pixels.Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return resample(f, f.Width, f.Height, threads, func(x, y int) Block {
		return ClampBlock(x, y, rx, ry, f.Width, f.Height)
	})
}

// Downsamples the image to width x height by averaging the source area covered by each target pixel
func Scale(f *pixels.Image, width, height, threads int) (*pixels.Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, errors.New(fmt.Sprintf("invalid target dimensions %dx%d", width, height))
	}
	if width > f.Width || height > f.Height {
		return nil, errors.New(fmt.Sprintf("cannot upsample %dx%d to %dx%d", f.Width, f.Height, width, height))
	}
	return resample(f, width, height, threads, func(x, y int) Block {
		return Block{
			XMin: x*f.Width/width - 1, YMin: y*f.Height/height - 1,
			XMax: (x+1)*f.Width/width - 1, YMax: (y+1)*f.Height/height - 1,
		}
	})
}

// Creates a width x height image whose pixel (x,y) is the average of the source over blockAt(x,y)
func resample(f *pixels.Image, width, height, threads int, blockAt func(x, y int) Block) (*pixels.Image, error) {
	dst, err := pixels.New(f.Kind, width, height)
	if err != nil {
		return nil, err
	}
	dst.ID, dst.FileName, dst.Luma = f.ID, f.FileName, f.Luma

	if f.Kind == pixels.Float32 {
		t, err := NewDoubleTableFromFloat32(f.Float, f.Width, f.Height)
		if err != nil {
			return nil, err
		}
		parallel.Rows(height, threads, func(yStart, yEnd int) {
			for y := yStart; y < yEnd; y++ {
				for x := 0; x < width; x++ {
					b := blockAt(x, y)
					dst.Float[y*width+x] = float32(t.Sum(b.XMin, b.YMin, b.XMax, b.YMax) / float64(b.Area()))
				}
			}
		})
		return dst, nil
	}

	t, err := NewTable(f)
	if err != nil {
		return nil, err
	}
	parallel.Rows(height, threads, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			for x := 0; x < width; x++ {
				b := blockAt(x, y)
				v := t.ScaledSum(b.XMin, b.YMin, b.XMax, b.YMax, 1/float64(b.Area()))
				switch dst.Kind {
				case pixels.Gray8:
					dst.Gray8[y*width+x] = uint8(v)
				case pixels.Gray16:
					dst.Gray16[y*width+x] = uint16(v)
				default:
					dst.RGB[y*width+x] = uint32(v)
				}
			}
		}
	})
	return dst, nil
}
