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

// Package parallel splits image rows into bands processed by concurrent goroutines.
package parallel

import (
	"runtime"
	"sync"

	"github.com/klauspost/cpuid"
)

// Default degree of parallelism: GOMAXPROCS, capped by the number of physical cores if known
func DefaultThreads() int {
	threads := runtime.GOMAXPROCS(0)
	if cores := cpuid.CPU.PhysicalCores; cores > 0 && cores < threads {
		threads = cores
	}
	return threads
}

// Calls fn on contiguous, disjoint bands of rows [yStart, yEnd) covering [0, height),
// one goroutine per band, and waits for all of them to finish. Threads<=0 selects DefaultThreads()
func Rows(height, threads int, fn func(yStart, yEnd int)) {
	if height <= 0 {
		return
	}
	if threads <= 0 {
		threads = DefaultThreads()
	}
	if threads > height {
		threads = height
	}
	if threads == 1 {
		fn(0, height)
		return
	}

	stepSize := (height + threads - 1) / threads
	var wg sync.WaitGroup
	wg.Add((height + stepSize - 1) / stepSize)

	for start := 0; start < height; start += stepSize {
		go func(start int) {
			defer wg.Done()
			end := start + stepSize
			if end > height {
				end = height
			}
			fn(start, end)
		}(start)
	}

	wg.Wait()
}
