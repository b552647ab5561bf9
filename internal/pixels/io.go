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
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Reads an image file. Format is detected from the content; PNG, JPEG, GIF, BMP and TIFF are supported
func ReadFile(fileName string, id int) (*Image, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := Read(bufio.NewReader(file))
	if err != nil {
		return nil, errors.New(fmt.Sprintf("%d: error reading %s: %s", id, fileName, err.Error()))
	}
	f.ID, f.FileName = id, fileName
	return f, nil
}

// Decodes an image from the given reader
func Read(reader io.Reader) (*Image, error) {
	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, err
	}
	return FromImage(img)
}

// Converts a golang image. Gray and Gray16 images keep their depth, everything else becomes 8-bit RGB
func FromImage(img image.Image) (*Image, error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	switch img.ColorModel() {
	case color.GrayModel:
		f, err := NewGray8(width, height, nil)
		if err != nil {
			return nil, err
		}
		if g, ok := img.(*image.Gray); ok {
			for y := 0; y < height; y++ {
				row := g.PixOffset(b.Min.X, b.Min.Y+y)
				copy(f.Gray8[y*width:(y+1)*width], g.Pix[row:row+width])
			}
			return f, nil
		}
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				f.Gray8[y*width+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
			}
		}
		return f, nil

	case color.Gray16Model:
		f, err := NewGray16(width, height, nil)
		if err != nil {
			return nil, err
		}
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				f.Gray16[y*width+x] = color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y
			}
		}
		return f, nil
	}

	f, err := NewRGB(width, height, nil)
	if err != nil {
		return nil, err
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			f.RGB[y*width+x] = PackRGB(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}
	return f, nil
}

// Converts into a golang image. Float data is stretched from [min, max] to 16 bits
func (f *Image) ToImage() image.Image {
	rect := image.Rect(0, 0, f.Width, f.Height)
	switch f.Kind {
	case Gray8:
		img := image.NewGray(rect)
		copy(img.Pix, f.Gray8)
		return img
	case Gray16:
		img := image.NewGray16(rect)
		for i, v := range f.Gray16 {
			img.SetGray16(i%f.Width, i/f.Width, color.Gray16{Y: v})
		}
		return img
	case Float32:
		img := image.NewGray16(rect)
		min, max := f.MinMax()
		scale := 0.0
		if max > min {
			scale = 65535 / (max - min)
		}
		for i, v := range f.Float {
			img.SetGray16(i%f.Width, i/f.Width, color.Gray16{Y: uint16(saturate((float64(v)-min)*scale, 65535))})
		}
		return img
	default:
		img := image.NewRGBA(rect)
		for i, c := range f.RGB {
			r, g, b := UnpackRGB(c)
			img.SetRGBA(i%f.Width, i/f.Width, color.RGBA{r, g, b, 255})
		}
		return img
	}
}

// Writes the image to a file, choosing the encoder from the suffix: .tif, .tiff, .png, .jpg or .jpeg
func (f *Image) WriteFile(fileName string) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext != ".tif" && ext != ".tiff" && ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		return errors.New(fmt.Sprintf("unknown suffix '%s' for %s", ext, fileName))
	}

	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := f.Write(writer, ext); err != nil {
		return err
	}
	return writer.Flush()
}

// Encodes the image in the format given by the file extension
func (f *Image) Write(writer io.Writer, ext string) error {
	img := f.ToImage()
	switch strings.ToLower(ext) {
	case ".tif", ".tiff":
		return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case ".png":
		return png.Encode(writer, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(writer, img, &jpeg.Options{Quality: 95})
	}
	return errors.New(fmt.Sprintf("unknown format '%s'", ext))
}
