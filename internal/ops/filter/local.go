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
	"github.com/mlnoga/localstats/internal/clahe"
	"github.com/mlnoga/localstats/internal/ops"
	"github.com/mlnoga/localstats/internal/pixels"
	"github.com/mlnoga/localstats/internal/pmcc"
)


// Contrast limited adaptive histogram equalization, in place. Takes one input, produces one output
type OpCLAHE struct {
	ops.OpUnaryBase
	BlockRadius int      `json:"blockRadius"`
	Bins        int      `json:"bins"`
	Slope       float64  `json:"slope"`
	Mode        string   `json:"mode"`      // exact or fast
	MaskFile    string   `json:"maskFile"`  // optional blend mask, scaled to [0,1]
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpCLAHEDefault() })} // register the operator for JSON decoding

func NewOpCLAHEDefault() *OpCLAHE { return NewOpCLAHE(true, clahe.DefaultParams(), clahe.ModeExact, "") }

func NewOpCLAHE(active bool, p clahe.Params, mode clahe.Mode, maskFile string) *OpCLAHE {
	op:=OpCLAHE{
		OpUnaryBase : ops.OpUnaryBase{OpBase : ops.OpBase{Type: "clahe", Active: active}},
		BlockRadius : p.BlockRadius,
		Bins        : p.Bins,
		Slope       : p.Slope,
		Mode        : mode.String(),
		MaskFile    : maskFile,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpCLAHE) UnmarshalJSON(data []byte) error {
	type defaults OpCLAHE
	def:=defaults( *NewOpCLAHEDefault() )
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpCLAHE(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

func (op *OpCLAHE) Params() clahe.Params {
	return clahe.Params{BlockRadius: op.BlockRadius, Bins: op.Bins, Slope: op.Slope}
}

func (op *OpCLAHE) loadMask(f *pixels.Image) ([]float32, error) {
	if op.MaskFile=="" { return nil, nil }
	m, err:=pixels.ReadFile(op.MaskFile, f.ID)
	if err!=nil { return nil, err }
	if m.Width!=f.Width || m.Height!=f.Height {
		return nil, errors.New(fmt.Sprintf("%d: mask %s has size %s, want %s", f.ID, op.MaskFile, m.DimensionsToString(), f.DimensionsToString()))
	}
	return m.ToUnit(), nil
}

func (op *OpCLAHE) Apply(f *pixels.Image, c *ops.Context) (result *pixels.Image, err error) {
	if !op.Active { return f, nil }
	p:=op.Params()
	if err=p.Validate(); err!=nil { return nil, errors.New(fmt.Sprintf("%d: %s", f.ID, err.Error())) }
	mode, err:=clahe.ParseMode(op.Mode)
	if err!=nil { return nil, err }
	mask, err:=op.loadMask(f)
	if err!=nil { return nil, err }

	fmt.Fprintf(c.Log, "%d: CLAHE %s with radius %d, %d bins, slope %.2f\n", f.ID, mode, p.BlockRadius, p.Bins, p.Slope)
	if !c.Verify || mode!=clahe.ModeExact {
		if err=clahe.Run(f, p, mode, mask, c.MaxThreads); err!=nil { return nil, errors.New(fmt.Sprintf("%d: %s", f.ID, err.Error())) }
		return f, nil
	}

	src:=f.ToGray8()
	dst, err:=clahe.Exact(src, f.Width, f.Height, p, c.MaxThreads)
	if err!=nil { return nil, err }
	ref, err:=clahe.ExactReference(src, f.Width, f.Height, p, c.MaxThreads)
	if err!=nil { return nil, err }
	mismatches:=0
	for i:=range dst {
		if dst[i]!=ref[i] { mismatches++ }
	}
	if mismatches>0 {
		return nil, errors.New(fmt.Sprintf("%d: sliding window CLAHE differs from reference in %d pixels", f.ID, mismatches))
	}
	fmt.Fprintf(c.Log, "%d: Verified CLAHE against reference\n", f.ID)
	if err=clahe.Apply(f, src, dst, mask); err!=nil { return nil, err }
	return f, nil
}


// Local correlation of a moving image X with a target image Y under an offset.
// Takes two inputs X and Y, produces one float output of the size of X
type OpPMCC struct {
	ops.OpBase
	OffsetX      int     `json:"offsetX"`
	OffsetY      int     `json:"offsetY"`
	RX           int     `json:"rx"`
	RY           int     `json:"ry"`
	SignedSquare bool    `json:"signedSquare"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpPMCCDefault() })} // register the operator for JSON decoding

func NewOpPMCCDefault() *OpPMCC { return NewOpPMCC(0, 0, 1, 1, false) }

func NewOpPMCC(offsetX, offsetY, rx, ry int, signedSquare bool) *OpPMCC {
	return &OpPMCC{
		OpBase       : ops.OpBase{Type: "pmcc", Active: true},
		OffsetX      : offsetX,
		OffsetY      : offsetY,
		RX           : rx,
		RY           : ry,
		SignedSquare : signedSquare,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpPMCC) UnmarshalJSON(data []byte) error {
	type defaults OpPMCC
	def:=defaults( *NewOpPMCCDefault() )
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpPMCC(def)
	return nil
}

func (op *OpPMCC) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if !op.Active { return ins, nil }
	if len(ins)!=2 { return nil, errors.New(fmt.Sprintf("%s operator needs two inputs, got %d", op.Type, len(ins))) }
	out:=func() (f *pixels.Image, err error) {
		fs, err:=ops.MaterializeAll(ins, c.MaxThreads, false)
		if err!=nil { return nil, err }
		if len(fs)!=2 { return nil, errors.New(fmt.Sprintf("%s operator got %d images", op.Type, len(fs))) }
		return op.Apply(fs[0], fs[1], c)
	}
	return []ops.Promise{out}, nil
}

func (op *OpPMCC) Apply(x, y *pixels.Image, c *ops.Context) (result *pixels.Image, err error) {
	if err=c.CheckMemory(x, 3); err!=nil { return nil, err }
	if err=c.CheckMemory(y, 2); err!=nil { return nil, err }

	p, err:=pmcc.New(x.ToFloat32(), x.Width, x.Height, y.ToFloat32(), y.Width, y.Height)
	if err!=nil { return nil, errors.New(fmt.Sprintf("%d: %s", x.ID, err.Error())) }
	p.SetThreads(c.MaxThreads)
	if err=p.SetOffset(op.OffsetX, op.OffsetY); err!=nil { return nil, err }

	var data []float32
	if op.SignedSquare {
		data=p.RSignedSquare(op.RX, op.RY)
	} else {
		data=p.R(op.RX, op.RY)
	}
	res, err:=pixels.NewFloat32(x.Width, x.Height, data)
	if err!=nil { return nil, err }
	res.ID, res.FileName=x.ID, x.FileName
	fmt.Fprintf(c.Log, "%d: PMCC against %d at offset (%d,%d) with radius %dx%d over %v: %v\n",
		        x.ID, y.ID, op.OffsetX, op.OffsetY, op.RX, op.RY, p.Overlap(), res.Stats())
	return res, nil
}
