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

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"
	"github.com/joho/godotenv"
	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"

	"github.com/mlnoga/localstats/internal/clahe"
	"github.com/mlnoga/localstats/internal/blockstats"
	"github.com/mlnoga/localstats/internal/ops"
	"github.com/mlnoga/localstats/internal/ops/filter"
	"github.com/mlnoga/localstats/internal/pixels"
	"github.com/mlnoga/localstats/internal/rest"
)

const version = "0.1.0"

var totalMiBs=memory.TotalMemory()/1024/1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")

var out    = flag.String("out", "", "save results with given filename pattern, e.g. `out%d.tif`. %d is replaced by the image ID")
var log    = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output pattern with .log")
var threads= flag.Int("threads", 0, "maximum number of threads, 0=$LOCALSTATS_THREADS or number of physical cores")
var tableMem=flag.Int("tableMem", int((totalMiBs*7)/10), "MiB of memory for the integral images of one operation, default=0.7x physical memory, 0=unlimited")
var luma   = flag.String("luma", "rec601", "luminance weighting for RGB images, one of rec601 or cie")
var verify = flag.Bool("verify", false, "cross-check exact CLAHE against the slow reference implementation")

var rx     = flag.Int("rx", 8, "horizontal block radius in pixels")
var ry     = flag.Int("ry", 8, "vertical block radius in pixels")
var stat   = flag.String("stat", "std", "block statistic, one of mean, variance, std, sampleVariance, sampleStd")

var stds   = flag.Float64("stds", 3, "local contrast normalization: stretch this many standard deviations to the full range")
var center = flag.Bool("center", true, "local contrast normalization: subtract the local mean")
var stretch= flag.Bool("stretch", true, "local contrast normalization: divide by the local standard deviation")
var thresh = flag.Float64("threshold", 3, "outlier removal: replace pixels beyond this many local standard deviations")

var width  = flag.Int("width", 0, "scale: target width in pixels")
var height = flag.Int("height", 0, "scale: target height in pixels")
var factor = flag.Float64("factor", 0.5, "scale: factor in (0,1], used if width or height are zero")

var radius = flag.Int("radius", 63, "CLAHE: block radius in pixels")
var bins   = flag.Int("bins", 256, "CLAHE: number of histogram bins, 2..256")
var slope  = flag.Float64("slope", 3, "CLAHE: maximum slope of the transfer function, 1=no op")
var mode   = flag.String("mode", "exact", "CLAHE: exact sliding window or fast interpolated grid")
var mask   = flag.String("mask", "", "CLAHE: blend with weights from mask `file`, scaled to [0,1]")

var ox     = flag.Int("ox", 0, "PMCC: horizontal offset of the second image")
var oy     = flag.Int("oy", 0, "PMCC: vertical offset of the second image")
var signed = flag.Bool("signedSquare", false, "PMCC: output r*|r| instead of r")

var addr   = flag.String("addr", "", "serve: listen address, e.g. `:8080`. Empty uses $PORT or :8080")
var chroot = flag.String("chroot", "", "serve: change filesystem root to this directory before serving")
var setuid = flag.Int("setuid", -1, "serve: change user id before serving, -1=no change")

func main() {
	logWriter:=io.Writer(os.Stdout)
	start:=time.Now()
	if err:=godotenv.Load(); err!=nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %s\n", err.Error())
	}
	flag.Usage=func(){
 	    fmt.Fprintf(os.Stdout, `Localstats Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (stats|mean|blockstats|normalize|outliers|scale|clahe|pmcc|run|serve|legal|version) (img0.tif ... imgn.tif)

Commands:
  stats      Show input image statistics
  mean       Box mean filter with radius rx, ry
  blockstats Replace images with a block statistic, see -stat
  normalize  Normalize local contrast
  outliers   Replace local outliers with the local mean
  scale      Downsample by area averaging
  clahe      Contrast limited adaptive histogram equalization
  pmcc       Local correlation of two images under an offset
  run        Run the JSON operator sequence from the first argument on the remaining files
  serve      Serve the REST API
  legal      Show license and attribution information
  version    Show version information

Flags:
`, os.Args[0])
	    flag.PrintDefaults()
	}
	flag.Parse()

	if *threads==0 {
		if v, ok:=os.LookupEnv("LOCALSTATS_THREADS"); ok {
			n, err:=strconv.Atoi(v)
			if err!=nil { fmt.Fprintf(os.Stderr, "Ignoring invalid LOCALSTATS_THREADS '%s'\n", v) } else { *threads=n }
		}
	}

	// Initialize logging to file in addition to stdout, if selected
	if *log=="%auto" {
		if *out!="" {
			*log=strings.ReplaceAll(strings.TrimSuffix(*out, filepath.Ext(*out)), "%d", "")+".log"
		} else {
			*log=""
		}
	}
	if *log!="" {
		f, err:=os.Create(*log)
		if err!=nil {
			fmt.Fprintf(os.Stderr, "Unable to open logfile '%s': %s\n", *log, err.Error())
			os.Exit(-1)
		}
		defer f.Close()
		logWriter=io.MultiWriter(logWriter, f)
	}
	logWriter=ops.NewSyncWriter(logWriter)

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(logWriter, "Could not create CPU profile: %s\n", err.Error())
			os.Exit(-1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(logWriter, "Could not start CPU profile: %s\n", err.Error())
			os.Exit(-1)
		}
		defer pprof.StopCPUProfile()
	}

	args:=flag.Args()
	if len(args)<1 {
		flag.Usage()
		return
	}

	c:=ops.NewContext(logWriter, *threads)
	c.TableMemoryMB=*tableMem
	c.Verify=*verify
	lumaMode, err:=pixels.ParseLumaMode(*luma)
	c.Luma=lumaMode

	var op ops.Operator
	if err==nil {
		switch args[0] {
		case "serve":
			fmt.Fprintf(logWriter, "Serving with %d threads and %d MiB table memory\n", c.MaxThreads, c.TableMemoryMB)
			if err=rest.MakeSandbox(logWriter, *chroot, *setuid); err==nil {
				err=rest.Serve(*addr, c.MaxThreads, c.TableMemoryMB)
			}

		case "stats":
			op=perImage(args[1:], filter.NewOpStats(true))

		case "mean":
			op=perImage(args[1:], filter.NewOpMean(*rx, *ry))

		case "blockstats":
			op=perImage(args[1:], filter.NewOpBlockStats(*stat, *rx, *ry))

		case "normalize":
			op=perImage(args[1:], filter.NewOpNormalizeLocalContrast(blockstats.Contrast{RX: *rx, RY: *ry, Stds: *stds, Center: *center, Stretch: *stretch}))

		case "outliers":
			op=perImage(args[1:], filter.NewOpRemoveOutliers(*rx, *ry, *thresh))

		case "scale":
			op=perImage(args[1:], filter.NewOpScale(*width, *height, *factor))

		case "clahe":
			var m clahe.Mode
			if m, err=clahe.ParseMode(*mode); err==nil {
				p:=clahe.Params{BlockRadius: *radius, Bins: *bins, Slope: *slope}
				op=perImage(args[1:], filter.NewOpCLAHE(true, p, m, *mask))
			}

		case "pmcc":
			op=ops.NewOpSequence(
				ops.NewOpLoadMany(args[1:]),
				filter.NewOpPMCC(*ox, *oy, *rx, *ry, *signed),
				ops.NewOpForEach(ops.NewOpSave(*out)),
			)

		case "run":
			op, err=loadSequence(args[1:])

		case "legal":
			fmt.Fprint(logWriter, legal)

		case "version":
			fmt.Fprintf(logWriter, "Version %s\n", version)
			fmt.Fprintf(logWriter, "CPU %s with %d physical and %d logical cores, %d MiB memory\n",
				        cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, totalMiBs)

		case "help", "?":
			flag.Usage()

		default:
			fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
			flag.Usage()
			return
		}
	}

	if op!=nil && err==nil {
		err=runOperator(op, c, logWriter)
	}

	now:=time.Now()
	elapsed:=now.Sub(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	if err!=nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		os.Exit(-1)
	}
}

// Loads all files, applies the operator to each, and saves the results if an output pattern is given
func perImage(files []string, op ops.Operator) ops.Operator {
	return ops.NewOpSequence(
		ops.NewOpLoadMany(files),
		ops.NewOpForEach(op),
		ops.NewOpForEach(ops.NewOpSave(*out)),
	)
}

// Reads an operator from the JSON file in args[0]. Remaining arguments are file patterns to load first
func loadSequence(args []string) (ops.Operator, error) {
	if len(args)<1 { return nil, errors.New("run needs a JSON operator file") }
	data, err:=os.ReadFile(args[0])
	if err!=nil { return nil, err }
	op, err:=ops.UnmarshalOperator(data)
	if err!=nil { return nil, errors.New(fmt.Sprintf("%s: %s", args[0], err.Error())) }
	if len(args)==1 { return op, nil }
	return ops.NewOpSequence(ops.NewOpLoadMany(args[1:]), op), nil
}

func runOperator(op ops.Operator, c *ops.Context, logWriter io.Writer) error {
	m, err:=json.MarshalIndent(op, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "Running with %d threads and these settings:\n%s\n", c.MaxThreads, string(m))

	promises, err:=op.MakePromises(nil, c)
	if err!=nil { return err }
	_, err=ops.MaterializeAll(promises, c.MaxThreads, true)
	return err
}
