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


package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"github.com/gin-gonic/gin"

	"github.com/mlnoga/localstats/internal/ops"
	_ "github.com/mlnoga/localstats/internal/ops/filter" // register the filter operators
)


// Creates the API router. Jobs run with at most maxThreads threads, and the given table memory budget in MB.
// Zero values select the defaults
func NewRouter(maxThreads, tableMemoryMB int) *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET ("/ping", getPing)
			v1.POST("/run",  func(c *gin.Context) { postRun(c, maxThreads, tableMemoryMB) })
		}
	}
	return r
}

// Listens and serves on the given address, e.g. ":8080". An empty address uses the PORT environment variable
func Serve(addr string, maxThreads, tableMemoryMB int) error {
	r:=NewRouter(maxThreads, tableMemoryMB)
	if addr=="" { return r.Run() }
	return r.Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m,err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

type postRunArgs struct {
	FilePatterns []string          `json:"filePatterns"`
	Sequence     json.RawMessage   `json:"sequence"`
}

// Parses the operator sequence of a job, and prefixes it with loading the file patterns
func (args *postRunArgs) operator() (ops.Operator, error) {
	if len(args.FilePatterns)==0 { return nil, errors.New("no file patterns given") }
	if len(args.Sequence)==0 { return nil, errors.New("no sequence given") }
	op, err:=ops.UnmarshalOperator(args.Sequence)
	if err!=nil { return nil, err }
	return ops.NewOpSequence(ops.NewOpLoadMany(args.FilePatterns), op), nil
}

func postRun(c *gin.Context, maxThreads, tableMemoryMB int)  {
	logWriter := c.Writer
	var args postRunArgs
	if err:=c.ShouldBindJSON(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	op, err:=args.operator()
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err:=printArgs(logWriter, "Arguments:\n", "\n", op); err!=nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	ctx:=ops.NewContext(ops.NewSyncWriter(logWriter), maxThreads)
	if tableMemoryMB>0 { ctx.TableMemoryMB=tableMemoryMB }
	ctx.RestrictPaths=true

	promises, err:=op.MakePromises(nil, ctx)
	if err==nil {
		_, err=ops.MaterializeAll(promises, ctx.MaxThreads, true)
	}
	if err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	} else {
		fmt.Fprintf(logWriter, "Done.\n")
	}
	logWriter.Flush()
}
