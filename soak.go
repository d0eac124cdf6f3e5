package main

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ciacore/emu"
)

// soakMain runs the snapshot round trip check over a range of seeds, in
// parallel. It stops at the first failing seed.
func soakMain(args Soak, cfg emu.Config, w io.Writer) error {
	jobs := args.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	var (
		mu      sync.Mutex
		results []emu.SoakResult
	)

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(jobs)
	for seed := args.First; seed < args.First+args.Seeds; seed++ {
		g.Go(func() error {
			res, err := emu.Soak(cfg, seed, args.Cycles)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var cycles int64
	reads := 0
	for _, res := range results {
		cycles += res.Compared
		reads += res.Reads
	}
	_, err := fmt.Fprintf(w, "%d seeds ok: %d cycles compared, %d reads, %s\n",
		len(results), cycles, reads, time.Since(start).Round(time.Millisecond))
	return err
}
