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
	"errors"
	"fmt"

	"github.com/mlnoga/localstats/internal/pixels"
)

// Blends the equalization of src into dst back into the image, in place. Per pixel, a=dst/src
// (1 where src is 0) scales the original value, weighted by the mask value m in [0,1]:
// v*(1+m*(a-1)) for integral pixels and each RGB channel, m*(a*(v-min)+min-v)+v for floats
// with the image minimum min. A nil mask applies the full equalization
func Apply(img *pixels.Image, src, dst []uint8, mask []float32) error {
	n := img.Pixels()
	if len(src) != n || len(dst) != n {
		return errors.New(fmt.Sprintf("equalized buffers of %d and %d pixels do not match image %s", len(src), len(dst), img.DimensionsToString()))
	}
	if mask != nil && len(mask) != n {
		return errors.New(fmt.Sprintf("mask of %d pixels does not match image %s", len(mask), img.DimensionsToString()))
	}

	min := 0.0
	if img.Kind == pixels.Float32 {
		min, _ = img.MinMax()
	}
	channels := img.Channels()

	for i := 0; i < n; i++ {
		a := 1.0
		if src[i] != 0 {
			a = float64(dst[i]) / float64(src[i])
		}
		m := 1.0
		if mask != nil {
			m = float64(mask[i])
		}
		for c := 0; c < channels; c++ {
			v := img.Channel(i, c)
			if img.Kind == pixels.Float32 {
				img.SetChannel(i, c, m*(a*(v-min)+min-v)+v)
			} else {
				img.SetChannel(i, c, v*(1+m*(a-1)))
			}
		}
	}
	return nil
}

// Equalizes the image in place: reduces it to 8 bits, equalizes with the given mode, and blends the result back
func Run(img *pixels.Image, p Params, mode Mode, mask []float32, threads int) error {
	if err := img.Validate(); err != nil {
		return err
	}
	src := img.ToGray8()
	var dst []uint8
	var err error
	if mode == ModeFast {
		dst, err = Fast(src, img.Width, img.Height, p, threads)
	} else {
		dst, err = Exact(src, img.Width, img.Height, p, threads)
	}
	if err != nil {
		return err
	}
	return Apply(img, src, dst, mask)
}
