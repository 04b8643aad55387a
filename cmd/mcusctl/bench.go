package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mcus/internal/engine"
)

// result is one program's outcome from a bench run.
type result struct {
	path       string
	iterations int
	outputPort byte
	err        error
}

func newBenchCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "bench <dir>",
		Short: "Run every *.mcus program in a directory to completion, concurrently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := filepath.Glob(filepath.Join(args[0], "*.mcus"))
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no *.mcus files found in %s", args[0])
			}

			results := runBench(cmd.Context(), paths, concurrency)

			failures := 0
			for _, r := range results {
				if r.err != nil {
					failures++
					fmt.Printf("%s: FAILED after %d iterations: %v\n", r.path, r.iterations, r.err)
					continue
				}
				fmt.Printf("%s: halted after %d iterations, output=%#02x\n", r.path, r.iterations, r.outputPort)
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d programs failed", failures, len(paths))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of programs to run concurrently")
	return cmd
}

// runBench assembles and runs each path's program on its own
// Simulation instance concurrently; instances share no state, so this
// does not implicate the single-engine-is-not-concurrent constraint
// that applies within one Simulation's own Iterate calls.
func runBench(ctx context.Context, paths []string, concurrency int) []result {
	results := make([]result, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			r := result{path: path}

			img, err := assembleFile(path)
			if err != nil {
				r.err = err
				mu.Lock()
				results[i] = r
				mu.Unlock()
				return nil
			}

			sim := engine.New(img)
			sim.Start()

			r.err = sim.Run(func(*engine.Simulation) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
					return nil
				}
			})
			r.iterations = sim.Iteration()
			r.outputPort = sim.OutputPort()

			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}
