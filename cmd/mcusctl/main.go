// Command mcusctl assembles and runs programs for the MCUS 8-bit
// microcontroller simulator: assemble source to a memory image, run it
// to completion, single-step it under an interactive debugger, or batch
// a directory of programs through a concurrent benchmark.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mcusctl",
		Short: "Assemble and run programs for the MCUS microcontroller simulator",
	}

	rootCmd.AddCommand(
		newAssembleCmd(),
		newRunCmd(),
		newDebugCmd(),
		newBenchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
