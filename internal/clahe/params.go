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

// Package clahe implements contrast limited adaptive histogram equalization,
// either exactly per pixel with a sliding window histogram, or approximately
// by interpolating between transfer functions on a grid of blocks.
package clahe

import (
	"errors"
	"fmt"
	"strings"
)

// Immutable equalization parameters
type Params struct {
	BlockRadius int     `json:"blockRadius"` // Window is (2*BlockRadius+1)^2 pixels, clipped to the image
	Bins        int     `json:"bins"`        // Number of histogram bins, 2..256
	Slope       float64 `json:"slope"`       // Maximum slope of the transfer function, 1 disables equalization
}

func DefaultParams() Params {
	return Params{BlockRadius: 63, Bins: 256, Slope: 3}
}

func (p Params) Validate() error {
	if p.BlockRadius < 1 {
		return errors.New(fmt.Sprintf("invalid block radius %d", p.BlockRadius))
	}
	if p.Bins < 2 || p.Bins > 256 {
		return errors.New(fmt.Sprintf("invalid number of bins %d, must be 2..256", p.Bins))
	}
	if !(p.Slope >= 1) {
		return errors.New(fmt.Sprintf("invalid slope %g, must be >=1", p.Slope))
	}
	return nil
}

// Clip limit for a window of the given number of pixels, at least 1
func (p Params) Limit(area int) int {
	limit := int(p.Slope*float64(area)/float64(p.Bins) + 0.5)
	if limit < 1 {
		return 1
	}
	return limit
}

// Maps an 8-bit value to its histogram bin, rounding to nearest
func Quantize(v uint8, bins int) int {
	return (2*int(v)*(bins-1) + 255) / 510
}

// Quantizes a whole buffer. Bins are at most 256, so the result fits a byte
func quantizeAll(src []uint8, bins int) []uint8 {
	var lut [256]uint8
	for v := range lut {
		lut[v] = uint8(Quantize(uint8(v), bins))
	}
	res := make([]uint8, len(src))
	for i, v := range src {
		res[i] = lut[v]
	}
	return res
}

// Equalization strategy
type Mode int

const (
	ModeExact Mode = iota // sliding window histogram per pixel
	ModeFast              // block grid with bilinear interpolation
)

func (m Mode) String() string {
	if m == ModeFast {
		return "fast"
	}
	return "exact"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "exact":
		return ModeExact, nil
	case "fast":
		return ModeFast, nil
	}
	return ModeExact, errors.New(fmt.Sprintf("unknown CLAHE mode '%s'", s))
}
