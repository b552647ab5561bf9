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

// A rectangular query region with exclusive minimum and inclusive maximum coordinates
type Block struct {
	XMin, YMin, XMax, YMax int
}

// Returns the window [x-rx, x+rx] x [y-ry, y+ry] clipped to a width x height image.
// Negative radii are treated as zero
func ClampBlock(x, y, rx, ry, width, height int) Block {
	if rx < 0 {
		rx = 0
	}
	if ry < 0 {
		ry = 0
	}
	b := Block{XMin: x - rx - 1, YMin: y - ry - 1, XMax: x + rx, YMax: y + ry}
	if b.XMin < -1 {
		b.XMin = -1
	}
	if b.YMin < -1 {
		b.YMin = -1
	}
	if b.XMax > width-1 {
		b.XMax = width - 1
	}
	if b.YMax > height-1 {
		b.YMax = height - 1
	}
	return b
}

// Number of pixels in the block
func (b Block) Area() int {
	return (b.XMax - b.XMin) * (b.YMax - b.YMin)
}
