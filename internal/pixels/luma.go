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

package pixels

import (
	"errors"
	"fmt"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Enumerated type for the luminance of RGB pixels
type LumaMode int

const (
	LumaRec601 LumaMode = iota // weighted sum 0.299 R + 0.587 G + 0.114 B
	LumaCIE                    // CIE L* lightness of the sRGB color, scaled to [0,255]
)

func (m LumaMode) String() string {
	if m == LumaCIE {
		return "cie"
	}
	return "rec601"
}

// Parses a luminance mode from its name
func ParseLumaMode(s string) (LumaMode, error) {
	switch strings.ToLower(s) {
	case "", "rec601":
		return LumaRec601, nil
	case "cie", "lab":
		return LumaCIE, nil
	}
	return LumaRec601, errors.New(fmt.Sprintf("unknown luminance mode '%s'", s))
}

// Luminance of an 8-bit RGB triple, in [0,255]
func (m LumaMode) Luminance(r, g, b uint8) float64 {
	if m == LumaCIE {
		l, _, _ := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}.Lab()
		return l * 255
	}
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}
