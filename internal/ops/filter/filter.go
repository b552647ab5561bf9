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


package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"github.com/mlnoga/localstats/internal/blockstats"
	"github.com/mlnoga/localstats/internal/integral"
	"github.com/mlnoga/localstats/internal/ops"
	"github.com/mlnoga/localstats/internal/pixels"
)

// Number of integral images built over one channel of f
func tablesFor(f *pixels.Image, perChannel int) int {
	return perChannel*f.Channels()
}

// Runs fn on each channel of f as a float buffer and writes the results back, saturating integral values
func mapChannels(f *pixels.Image, fn func(src []float32) ([]float32, error)) error {
	src:=make([]float32, f.Pixels())
	for c:=0; c<f.Channels(); c++ {
		for i:=range src { src[i]=float32(f.Channel(i, c)) }
		dst, err:=fn(src)
		if err!=nil { return err }
		for i, v:=range dst { f.SetChannel(i, c, float64(v)) }
	}
	return nil
}


// Logs basic statistics of the image. Takes one input, produces one output (unchanged)
type OpStats struct {
	ops.OpUnaryBase
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpStatsDefault() })} // register the operator for JSON decoding

func NewOpStatsDefault() *OpStats { return NewOpStats(true) }

func NewOpStats(active bool) *OpStats {
	op:=OpStats{ OpUnaryBase : ops.OpUnaryBase{OpBase : ops.OpBase{Type: "stats", Active: active}} }
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStats) UnmarshalJSON(data []byte) error {
	type defaults OpStats
	def:=defaults( *NewOpStatsDefault() )
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpStats(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

func (op *OpStats) Apply(f *pixels.Image, c *ops.Context) (result *pixels.Image, err error) {
	if !op.Active { return f, nil }
	fmt.Fprintf(c.Log, "%d: %s %s %v\n", f.ID, f.FileName, f.DimensionsToString(), f.Stats())
	return f, nil
}


// Box mean filter in the pixel representation of the source. Takes one input, produces one output
type OpMean struct {
	ops.OpUnaryBase
	RX          int      `json:"rx"`
	RY          int      `json:"ry"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpMeanDefault() })} // register the operator for JSON decoding

func NewOpMeanDefault() *OpMean { return NewOpMean(1, 1) }

func NewOpMean(rx, ry int) *OpMean {
	op:=OpMean{
		OpUnaryBase : ops.OpUnaryBase{OpBase : ops.OpBase{Type: "mean", Active: true}},
		RX          : rx,
		RY          : ry,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpMean) UnmarshalJSON(data []byte) error {
	type defaults OpMean
	def:=defaults( *NewOpMeanDefault() )
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpMean(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

func (op *OpMean) Apply(f *pixels.Image, c *ops.Context) (result *pixels.Image, err error) {
	if !op.Active { return f, nil }
	if err=c.CheckMemory(f, tablesFor(f, 1)); err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "%d: Mean filter with radius %dx%d\n", f.ID, op.RX, op.RY)
	return integral.MeanFilter(f, op.RX, op.RY, c.MaxThreads)
}


// Replaces the image with a float image of a block statistic. Takes one input, produces one output
type OpBlockStats struct {
	ops.OpUnaryBase
	Stat        string   `json:"stat"`   // mean, variance, std, sampleVariance or sampleStd
	RX          int      `json:"rx"`
	RY          int      `json:"ry"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpBlockStatsDefault() })} // register the operator for JSON decoding

func NewOpBlockStatsDefault() *OpBlockStats { return NewOpBlockStats("mean", 1, 1) }

func NewOpBlockStats(stat string, rx, ry int) *OpBlockStats {
	op:=OpBlockStats{
		OpUnaryBase : ops.OpUnaryBase{OpBase : ops.OpBase{Type: "blockStats", Active: stat!=""}},
		Stat        : stat,
		RX          : rx,
		RY          : ry,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpBlockStats) UnmarshalJSON(data []byte) error {
	type defaults OpBlockStats
	def:=defaults( *NewOpBlockStatsDefault() )
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpBlockStats(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

func (op *OpBlockStats) Apply(f *pixels.Image, c *ops.Context) (result *pixels.Image, err error) {
	if !op.Active { return f, nil }
	if op.RX<0 || op.RY<0 { return nil, errors.New(fmt.Sprintf("%d: invalid block radius %dx%d", f.ID, op.RX, op.RY)) }
	if err=c.CheckMemory(f, 2); err!=nil { return nil, err }

	s, err:=blockstats.New(f.ToFloat32(), f.Width, f.Height)
	if err!=nil { return nil, err }
	s.SetThreads(c.MaxThreads)

	var data []float32
	switch strings.ToLower(op.Stat) {
	case "mean":           data=s.Mean(op.RX, op.RY)
	case "variance":       data=s.Variance(op.RX, op.RY)
	case "std":            data=s.Std(op.RX, op.RY)
	case "samplevariance": data=s.SampleVariance(op.RX, op.RY)
	case "samplestd":      data=s.SampleStd(op.RX, op.RY)
	default:
		return nil, errors.New(fmt.Sprintf("%d: unknown block statistic '%s'", f.ID, op.Stat))
	}

	res, err:=pixels.NewFloat32(f.Width, f.Height, data)
	if err!=nil { return nil, err }
	res.ID, res.FileName=f.ID, f.FileName
	fmt.Fprintf(c.Log, "%d: Block %s with radius %dx%d: %v\n", f.ID, op.Stat, op.RX, op.RY, res.Stats())
	return res, nil
}


// Normalizes local contrast per channel, in place. Takes one input, produces one output
type OpNormalizeLocalContrast struct {
	ops.OpUnaryBase
	RX          int      `json:"rx"`
	RY          int      `json:"ry"`
	Stds        float64  `json:"stds"`
	Center      bool     `json:"center"`
	Stretch     bool     `json:"stretch"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpNormalizeLocalContrastDefault() })} // register the operator for JSON decoding

func NewOpNormalizeLocalContrastDefault() *OpNormalizeLocalContrast {
	return NewOpNormalizeLocalContrast(blockstats.Contrast{RX: 32, RY: 32, Stds: 3, Center: true, Stretch: true})
}

func NewOpNormalizeLocalContrast(p blockstats.Contrast) *OpNormalizeLocalContrast {
	op:=OpNormalizeLocalContrast{
		OpUnaryBase : ops.OpUnaryBase{OpBase : ops.OpBase{Type: "normalize", Active: true}},
		RX          : p.RX,
		RY          : p.RY,
		Stds        : p.Stds,
		Center      : p.Center,
		Stretch     : p.Stretch,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpNormalizeLocalContrast) UnmarshalJSON(data []byte) error {
	type defaults OpNormalizeLocalContrast
	def:=defaults( *NewOpNormalizeLocalContrastDefault() )
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpNormalizeLocalContrast(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

func (op *OpNormalizeLocalContrast) Contrast() blockstats.Contrast {
	return blockstats.Contrast{RX: op.RX, RY: op.RY, Stds: op.Stds, Center: op.Center, Stretch: op.Stretch}
}

func (op *OpNormalizeLocalContrast) Apply(f *pixels.Image, c *ops.Context) (result *pixels.Image, err error) {
	if !op.Active { return f, nil }
	if err=c.CheckMemory(f, 2); err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "%d: Normalizing local contrast with radius %dx%d, %.2f stds, center %v, stretch %v\n",
		        f.ID, op.RX, op.RY, op.Stds, op.Center, op.Stretch)
	err=mapChannels(f, func(src []float32) ([]float32, error) {
		return blockstats.NormalizeLocalContrast(src, f.Width, f.Height, op.Contrast(), c.MaxThreads)
	})
	if err!=nil { return nil, errors.New(fmt.Sprintf("%d: %s", f.ID, err.Error())) }
	return f, nil
}


// Replaces outliers with their local mean per channel, in place. Takes one input, produces one output
type OpRemoveOutliers struct {
	ops.OpUnaryBase
	RX          int      `json:"rx"`
	RY          int      `json:"ry"`
	Threshold   float64  `json:"threshold"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpRemoveOutliersDefault() })} // register the operator for JSON decoding

func NewOpRemoveOutliersDefault() *OpRemoveOutliers { return NewOpRemoveOutliers(2, 2, 3) }

func NewOpRemoveOutliers(rx, ry int, threshold float64) *OpRemoveOutliers {
	op:=OpRemoveOutliers{
		OpUnaryBase : ops.OpUnaryBase{OpBase : ops.OpBase{Type: "outliers", Active: true}},
		RX          : rx,
		RY          : ry,
		Threshold   : threshold,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpRemoveOutliers) UnmarshalJSON(data []byte) error {
	type defaults OpRemoveOutliers
	def:=defaults( *NewOpRemoveOutliersDefault() )
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpRemoveOutliers(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

func (op *OpRemoveOutliers) Apply(f *pixels.Image, c *ops.Context) (result *pixels.Image, err error) {
	if !op.Active { return f, nil }
	if err=c.CheckMemory(f, 2); err!=nil { return nil, err }
	total:=0
	err=mapChannels(f, func(src []float32) ([]float32, error) {
		dst, n, err:=blockstats.RemoveOutliers(src, f.Width, f.Height, op.RX, op.RY, op.Threshold, c.MaxThreads)
		total+=n
		return dst, err
	})
	if err!=nil { return nil, errors.New(fmt.Sprintf("%d: %s", f.ID, err.Error())) }
	fmt.Fprintf(c.Log, "%d: Replaced %d outliers beyond %.2f stds with radius %dx%d\n", f.ID, total, op.Threshold, op.RX, op.RY)
	return f, nil
}


// Downsamples by area averaging, to given dimensions or by a factor. Takes one input, produces one output
type OpScale struct {
	ops.OpUnaryBase
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	Factor      float64  `json:"factor"`   // used if width and height are zero
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpScaleDefault() })} // register the operator for JSON decoding

func NewOpScaleDefault() *OpScale { return NewOpScale(0, 0, 0.5) }

func NewOpScale(width, height int, factor float64) *OpScale {
	op:=OpScale{
		OpUnaryBase : ops.OpUnaryBase{OpBase : ops.OpBase{Type: "scale", Active: (width>0 && height>0) || factor>0}},
		Width       : width,
		Height      : height,
		Factor      : factor,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpScale) UnmarshalJSON(data []byte) error {
	type defaults OpScale
	def:=defaults( *NewOpScaleDefault() )
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpScale(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

func (op *OpScale) Apply(f *pixels.Image, c *ops.Context) (result *pixels.Image, err error) {
	if !op.Active { return f, nil }
	width, height:=op.Width, op.Height
	if width<=0 || height<=0 {
		width, height=int(float64(f.Width)*op.Factor+0.5), int(float64(f.Height)*op.Factor+0.5)
	}
	if err=c.CheckMemory(f, tablesFor(f, 1)); err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "%d: Scaling %s to %dx%d\n", f.ID, f.DimensionsToString(), width, height)
	res, err:=integral.Scale(f, width, height, c.MaxThreads)
	if err!=nil { return nil, errors.New(fmt.Sprintf("%d: %s", f.ID, err.Error())) }
	return res, nil
}
