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

// Package pixels holds two-dimensional pixel buffers in one of four
// representations, and the codec used to read and write their values
// in a common floating point form.
package pixels

import (
	"errors"
	"fmt"
	"math"
)

// Representation of the pixel values of an image
type Kind int

const (
	Gray8   Kind = iota // 8-bit unsigned grayscale
	Gray16              // 16-bit unsigned grayscale
	Float32             // 32-bit floating point grayscale
	RGB                 // packed 24-bit color, 0xRRGGBB
)

func (k Kind) String() string {
	switch k {
	case Gray8:
		return "8-bit"
	case Gray16:
		return "16-bit"
	case Float32:
		return "32-bit float"
	case RGB:
		return "RGB"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// An image with explicit dimensions. Exactly one of the pixel slices is set, as selected by Kind.
type Image struct {
	ID       int    // Sequential ID number, for log output
	FileName string // Original file name, if any, for log output

	Kind   Kind
	Width  int
	Height int

	Gray8  []uint8
	Gray16 []uint16
	Float  []float32
	RGB    []uint32

	Luma LumaMode // Luminance weighting for RGB images
}

func checkDimensions(width, height, length int) error {
	if width <= 0 || height <= 0 {
		return errors.New(fmt.Sprintf("invalid image dimensions %dx%d", width, height))
	}
	if width*height != length {
		return errors.New(fmt.Sprintf("buffer of %d pixels does not match dimensions %dx%d", length, width, height))
	}
	return nil
}

// Creates an 8-bit image. Data is not copied, allocated if nil
func NewGray8(width, height int, data []uint8) (*Image, error) {
	if data == nil && width > 0 && height > 0 {
		data = make([]uint8, width*height)
	}
	if err := checkDimensions(width, height, len(data)); err != nil {
		return nil, err
	}
	return &Image{Kind: Gray8, Width: width, Height: height, Gray8: data}, nil
}

// Creates a 16-bit image. Data is not copied, allocated if nil
func NewGray16(width, height int, data []uint16) (*Image, error) {
	if data == nil && width > 0 && height > 0 {
		data = make([]uint16, width*height)
	}
	if err := checkDimensions(width, height, len(data)); err != nil {
		return nil, err
	}
	return &Image{Kind: Gray16, Width: width, Height: height, Gray16: data}, nil
}

// Creates a floating point image. Data is not copied, allocated if nil
func NewFloat32(width, height int, data []float32) (*Image, error) {
	if data == nil && width > 0 && height > 0 {
		data = make([]float32, width*height)
	}
	if err := checkDimensions(width, height, len(data)); err != nil {
		return nil, err
	}
	return &Image{Kind: Float32, Width: width, Height: height, Float: data}, nil
}

// Creates a packed RGB image. Data is not copied, allocated if nil
func NewRGB(width, height int, data []uint32) (*Image, error) {
	if data == nil && width > 0 && height > 0 {
		data = make([]uint32, width*height)
	}
	if err := checkDimensions(width, height, len(data)); err != nil {
		return nil, err
	}
	return &Image{Kind: RGB, Width: width, Height: height, RGB: data}, nil
}

// Creates an empty image of the given kind and dimensions
func New(kind Kind, width, height int) (*Image, error) {
	switch kind {
	case Gray8:
		return NewGray8(width, height, nil)
	case Gray16:
		return NewGray16(width, height, nil)
	case Float32:
		return NewFloat32(width, height, nil)
	case RGB:
		return NewRGB(width, height, nil)
	}
	return nil, errors.New(fmt.Sprintf("unknown pixel kind %d", int(kind)))
}

// Number of pixels in the image
func (f *Image) Pixels() int { return f.Width * f.Height }

func (f *Image) DimensionsToString() string {
	return fmt.Sprintf("%dx%d %s", f.Width, f.Height, f.Kind)
}

// Checks the pixel slice selected by Kind against the dimensions
func (f *Image) Validate() error {
	switch f.Kind {
	case Gray8:
		return checkDimensions(f.Width, f.Height, len(f.Gray8))
	case Gray16:
		return checkDimensions(f.Width, f.Height, len(f.Gray16))
	case Float32:
		return checkDimensions(f.Width, f.Height, len(f.Float))
	case RGB:
		return checkDimensions(f.Width, f.Height, len(f.RGB))
	}
	return errors.New(fmt.Sprintf("unknown pixel kind %d", int(f.Kind)))
}

// Deep copy of the image
func (f *Image) Clone() *Image {
	c := *f
	switch f.Kind {
	case Gray8:
		c.Gray8 = append([]uint8(nil), f.Gray8...)
	case Gray16:
		c.Gray16 = append([]uint16(nil), f.Gray16...)
	case Float32:
		c.Float = append([]float32(nil), f.Float...)
	case RGB:
		c.RGB = append([]uint32(nil), f.RGB...)
	}
	return &c
}

// Number of channels the codec exposes per pixel
func (f *Image) Channels() int {
	if f.Kind == RGB {
		return 3
	}
	return 1
}

// Returns channel c of pixel i as a float. Channels of RGB are 0=red, 1=green, 2=blue
func (f *Image) Channel(i, c int) float64 {
	switch f.Kind {
	case Gray8:
		return float64(f.Gray8[i])
	case Gray16:
		return float64(f.Gray16[i])
	case Float32:
		return float64(f.Float[i])
	default:
		return float64((f.RGB[i] >> uint(16-8*c)) & 0xff)
	}
}

// Sets channel c of pixel i, rounding and saturating for the integral representations
func (f *Image) SetChannel(i, c int, v float64) {
	switch f.Kind {
	case Gray8:
		f.Gray8[i] = uint8(saturate(v, 255))
	case Gray16:
		f.Gray16[i] = uint16(saturate(v, 65535))
	case Float32:
		f.Float[i] = float32(v)
	default:
		shift := uint(16 - 8*c)
		f.RGB[i] = (f.RGB[i] &^ (0xff << shift)) | (uint32(saturate(v, 255)) << shift)
	}
}

// Returns the gray value of pixel i. For RGB images this is the luminance
func (f *Image) Value(i int) float64 {
	if f.Kind == RGB {
		r, g, b := UnpackRGB(f.RGB[i])
		return f.Luma.Luminance(r, g, b)
	}
	return f.Channel(i, 0)
}

// Minimum and maximum gray value
func (f *Image) MinMax() (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for i := 0; i < f.Pixels(); i++ {
		v := f.Value(i)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Converts the gray values into a float32 buffer
func (f *Image) ToFloat32() []float32 {
	res := make([]float32, f.Pixels())
	if f.Kind == Float32 {
		copy(res, f.Float)
		return res
	}
	for i := range res {
		res[i] = float32(f.Value(i))
	}
	return res
}

// Converts to an 8-bit buffer. 8-bit data is copied, 16-bit and float data is scaled
// linearly from [min, max] to [0, 255], RGB data is reduced to its luminance
func (f *Image) ToGray8() []uint8 {
	res := make([]uint8, f.Pixels())
	switch f.Kind {
	case Gray8:
		copy(res, f.Gray8)
	case RGB:
		for i := range res {
			res[i] = uint8(saturate(f.Value(i), 255))
		}
	default:
		min, max := f.MinMax()
		scale := 0.0
		if max > min {
			scale = 255 / (max - min)
		}
		for i := range res {
			res[i] = uint8(saturate((f.Value(i)-min)*scale, 255))
		}
	}
	return res
}

// Converts the gray values into [0,1], using the full range of the integral representations.
// Float data is clamped
func (f *Image) ToUnit() []float32 {
	res := make([]float32, f.Pixels())
	for i := range res {
		var v float64
		switch f.Kind {
		case Gray8, RGB:
			v = f.Value(i) / 255
		case Gray16:
			v = f.Value(i) / 65535
		default:
			v = f.Value(i)
		}
		if v < 0 || math.IsNaN(v) {
			v = 0
		} else if v > 1 {
			v = 1
		}
		res[i] = float32(v)
	}
	return res
}

// Packs 8-bit red, green and blue into 0xRRGGBB
func PackRGB(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// Unpacks 0xRRGGBB into 8-bit red, green and blue
func UnpackRGB(c uint32) (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// rounds to nearest and clamps to [0, max]
func saturate(v, max float64) float64 {
	if v != v || v <= 0 {
		return 0
	}
	v = math.Floor(v + 0.5)
	if v > max {
		return max
	}
	return v
}
