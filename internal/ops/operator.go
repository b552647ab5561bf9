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


package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"github.com/pbnjay/memory"
	"github.com/mlnoga/localstats/internal/parallel"
	"github.com/mlnoga/localstats/internal/pixels"
)

// Serializes writes from concurrently materializing promises into one log
type SyncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewSyncWriter(w io.Writer) *SyncWriter { return &SyncWriter{w: w} }

func (s *SyncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// An execution context for operators
type Context struct {
	Log              io.Writer
	MemoryMB         int              // memory.TotalMemory()/1024/1024
	TableMemoryMB    int              // MemoryMB*7/10, budget for the integral images of one operation
	MaxThreads       int              `json:"maxThreads"`
	Luma             pixels.LumaMode  // luminance weighting applied to loaded RGB images
	RestrictPaths    bool             // only relative paths inside the working directory tree
	Verify           bool             // cross-check exact CLAHE against the slow reference
}

func NewContext(log io.Writer, maxThreads int) *Context {
	memoryMB:=int(memory.TotalMemory()/1024/1024)
	if maxThreads<=0 { maxThreads=parallel.DefaultThreads() }
	return &Context{
		Log           : log,
		MemoryMB      : memoryMB,
		TableMemoryMB : memoryMB*7/10,
		MaxThreads    : maxThreads,
	}
}

// Refuses an operation which builds the given number of float64 or int64 integral images over f,
// if they would exceed the table memory budget. A zero budget disables the check
func (c *Context) CheckMemory(f *pixels.Image, tables int) error {
	if c.TableMemoryMB<=0 { return nil }
	need:=int64(tables)*int64(f.Width+1)*int64(f.Height+1)*8
	if need>int64(c.TableMemoryMB)*1024*1024 {
		return errors.New(fmt.Sprintf("%d: %d integral images for %s need %d MB, exceeding the budget of %d MB",
			                          f.ID, tables, f.DimensionsToString(), need/1024/1024, c.TableMemoryMB))
	}
	return nil
}

// A promise for an image. Returns a materialized image, or an error
type Promise func() (f *pixels.Image, err error)

// Materializes all promises with given concurrency limit. Errors are joined with "; "
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*pixels.Image, err error) {
	if len(ins)==0 { return nil, nil }
	if maxThreads<=0 { maxThreads=1 }
	if !forget { outs=make([]*pixels.Image, len(ins)) }

	limiter:=make(chan bool, maxThreads)
	errs   :=make(chan error, len(ins))
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			f, err:=theIn()
			if !forget && err==nil { outs[i]=f }
			errs <- err
		}(i, in)
	}
	for i:=0; i<cap(limiter); i++ {  // wait for goroutines to finish
		limiter <- true
	}
	for i:=0; i<len(ins); i++ {
		e := <- errs
		if e==nil { continue }
		if err==nil {
			err=e
		} else {
			err=errors.New(fmt.Sprintf("%s; %s", err.Error(), e.Error()))
		}
	}
	return RemoveNils(outs), err
}

// Removes nils from a slice of images, compacting the underlying array in place
func RemoveNils(fs []*pixels.Image) []*pixels.Image {
	o:=0
	for _, f:=range fs {
		if f!=nil { fs[o]=f; o++ }
	}
	for i:=o; i<len(fs); i++ { fs[i]=nil }
	return fs[:o]
}


// A general image processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type        string `json:"type"`
	Active      bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool { return op.Active }

// Factory method for operators. For JSON deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory methods
var operatorFactories=map[string]OperatorFactory{}

// Returns the operator factory for a given type string, or nil
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers an operator factory under the type string of its exemplar. Panics on duplicates
func SetOperatorFactory(f OperatorFactory) {
	t:=f().GetType()
	if GetOperatorFactory(t)!=nil { panic(fmt.Sprintf("error: re-registering operator key %s\n", t)) }
	operatorFactories[t]=f
}

// Decodes a single operator of any registered type from JSON
func UnmarshalOperator(raw []byte) (Operator, error) {
	var base OpBase
	if err:=json.Unmarshal(raw, &base); err!=nil { return nil, err }
	factory:=GetOperatorFactory(base.Type)
	if factory==nil {
		return nil, errors.New(fmt.Sprintf("unknown operator type '%s' in JSON '%s'", base.Type, string(raw)))
	}
	op:=factory()
	if err:=json.Unmarshal(raw, op); err!=nil { return nil, err }
	return op, nil
}


// A unary image processing operator: given n promises as inputs,
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(f *pixels.Image, c *Context) (fOut *pixels.Image, err error)
}

// Abstract base type for unary operators. Concrete operators assign Apply in their constructor
type OpUnaryBase struct {
	OpBase
	Apply func(f *pixels.Image, c *Context) (fOut *pixels.Image, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)==0 { return nil, errors.New(fmt.Sprintf("%s operator with %d inputs", op.Type, len(ins))) }
	outs=make([]Promise, len(ins))
	for i,in:=range ins {
		outs[i]=op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *pixels.Image, err error) {
		if f, err=in();          err!=nil { return nil, err } // materialize input promise
		if f, err=op.Apply(f,c); err!=nil { return nil, err } // apply unary operator
		return f, nil
	}
}


// Loads a single image from a file. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID          int     `json:"id"`
	FileName    string  `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault()}) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase   : OpBase{Type: "load", Active: true},
		ID       : id,
		FileName : fileName,
	}
}

func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)>0 { return nil, errors.New(fmt.Sprintf("%s operator with non-zero input", op.Type)) }
	if c.RestrictPaths && !isPathAllowed(op.FileName) {
		return nil, errors.New(fmt.Sprintf("file name %s outside current directory tree, aborting", op.FileName))
	}
	out:=func() (f *pixels.Image, err error) {
		return op.Apply(nil, c)
	}
	return []Promise{out}, nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain ".." to change to a parent directory
func isPathAllowed(p string) bool {
	if filepath.IsAbs(p) { return false }
	if strings.Contains(p, "..") { return false }
	return true
}

func (op *OpLoad) Apply(f *pixels.Image, c *Context) (result *pixels.Image, err error) {
	f, err=pixels.ReadFile(op.FileName, op.ID)
	if err!=nil { return nil, err }
	f.Luma=c.Luma

	stats:=f.Stats()
	warning:=""
	if stats.Max-stats.Min<1e-8 { warning="; WARNING low dynamic range" }
	fmt.Fprintf(c.Log, "%d: Loaded %s image with %v from %s%s\n", f.ID, f.DimensionsToString(), stats, f.FileName, warning)
	return f, nil
}


// Loads many images from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault()}) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase       : OpBase{Type: "loadMany", Active: true},
		FilePatterns : filePatterns,
	}
}

// Turns filename wildcards into a list of file load promises, numbered in order of discovery
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)>0 { return nil, errors.New(fmt.Sprintf("%s operator with non-zero input", op.Type)) }
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err!=nil { return nil, err }
		for _,match:=range matches {
			if c.RestrictPaths && !isPathAllowed(match) {
				fmt.Fprintf(c.Log, "Pattern match %s outside current directory tree, skipping\n", match)
				continue
			}
			promises, err:=NewOpLoad(len(outs), match).MakePromises(nil, c)
			if err!=nil { return nil, err }
			outs=append(outs, promises...)
		}
	}
	if len(outs)==0 {
		return nil, errors.New(fmt.Sprintf("%s operator with no files to load from pattern %v", op.Type, op.FilePatterns))
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(outs))
	return outs, nil
}


// Saves the input under a file name, with %d in the pattern replaced by the image ID.
// Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern       string          `json:"filePattern"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault()}) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("") }

func NewOpSave(filenamePattern string) *OpSave {
	op:=OpSave{
		OpUnaryBase : OpUnaryBase{OpBase : OpBase{Type: "save", Active: filenamePattern!=""}},
		FilePattern : filenamePattern,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSave) UnmarshalJSON(data []byte) error {
	type defaults OpSave
	def:=defaults( *NewOpSaveDefault() )
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpSave(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

func (op *OpSave) Apply(f *pixels.Image, c *Context) (result *pixels.Image, err error) {
	if !op.Active || op.FilePattern=="" { return f, nil }
	fileName:=op.FilePattern
	if strings.Contains(fileName, "%d") { fileName=fmt.Sprintf(op.FilePattern, f.ID) }
	if c.RestrictPaths && !isPathAllowed(fileName) {
		return nil, errors.New(fmt.Sprintf("%d: file name %s outside current directory tree", f.ID, fileName))
	}

	fmt.Fprintf(c.Log, "%d: Writing %s pixels to %s\n", f.ID, f.DimensionsToString(), fileName)
	if err=f.WriteFile(fileName); err!=nil {
		return nil, errors.New(fmt.Sprintf("%d: Error writing to file %s: %s", f.ID, fileName, err.Error()))
	}
	return f, nil
}


// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps       []Operator        `json:"-"`      // the actual steps
	StepsRaw    []json.RawMessage `json:"steps"`  // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault()}) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase : OpBase{Type: "seq", Active: len(steps)>0},
		Steps  : steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON, via the temporary op.StepsRaw
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	if err:=json.Unmarshal(b, (*alias)(op)); err!=nil { return err }

	op.Steps=nil
	for _, raw := range op.StepsRaw {
		step, err:=UnmarshalOperator(raw)
		if err!=nil { return err }
		op.Steps=append(op.Steps, step)
	}
	op.StepsRaw=nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps=append(op.Steps, steps...)
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf:=bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner,err:=json.Marshal(op.Type)
	if err!=nil { return nil, err }
	buf.Write(inner)
	fmt.Fprintf(&buf,", \"active\":%v, \"steps\":", op.Active)
	steps:=op.Steps
	if steps==nil { steps=[]Operator{} }
	inner,err=json.Marshal(steps)
	if err!=nil { return nil, err }
	buf.Write(inner)
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	outs=ins
	for _, step:=range op.Steps {
		if outs, err=step.MakePromises(outs, c); err!=nil { return nil, err }
	}
	return outs, nil
}


// Applies a single operator to each input. Takes n inputs, produces n outputs
type OpForEach struct {
	OpBase
	Operation    Operator          `json:"-"`
	OperationRaw json.RawMessage   `json:"operation,omitempty"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpForEachDefault()}) } // register the operator for JSON decoding

func NewOpForEachDefault() *OpForEach { return NewOpForEach(nil) }

func NewOpForEach(operation Operator) *OpForEach {
	return &OpForEach{
		OpBase    : OpBase{Type: "forEach", Active: operation!=nil},
		Operation : operation,
	}
}

// Unmarshals the polymorphic embedded operation from JSON
func (op *OpForEach) UnmarshalJSON(b []byte) error {
	type alias OpForEach
	if err:=json.Unmarshal(b, (*alias)(op)); err!=nil { return err }
	op.Operation=nil
	if len(op.OperationRaw)>0 {
		inner, err:=UnmarshalOperator(op.OperationRaw)
		if err!=nil { return err }
		op.Operation=inner
	}
	op.OperationRaw=nil
	return nil
}

func (op *OpForEach) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct{
		OpBase
		Operation Operator `json:"operation"`
	}{op.OpBase, op.Operation})
}

func (op *OpForEach) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)==0 { return ins, nil }
	if op.Operation==nil { return nil, errors.New(fmt.Sprintf("%s operator has no operation to apply", op.Type)) }
	for _,in:=range ins {
		out, err:=op.Operation.MakePromises([]Promise{in}, c)
		if err!=nil { return nil, err }
		if len(out)!=1 { return nil, errors.New(fmt.Sprintf("%s operator needs exactly one promise from embedded operation", op.Type)) }
		outs=append(outs, out[0])
	}
	return outs, nil
}
