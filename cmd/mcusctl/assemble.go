package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"mcus/internal/assemble"
	"mcus/internal/asmsyntax"
)

func newAssembleCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "assemble <source.mcus>",
		Short: "Assemble a source file into a raw memory image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := assembleFile(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Assembled %d bytes of code", img.Size)
			if img.LookupTableLength > 0 {
				fmt.Printf(", %d bytes of lookup table", img.LookupTableLength)
			}
			fmt.Println()

			fmt.Print(hex.Dump(img.Memory[:img.Size]))
			printOffsetMap(img)

			if outPath != "" {
				if err := os.WriteFile(outPath, img.Memory[:], 0o644); err != nil {
					return fmt.Errorf("writing memory image: %w", err)
				}
				fmt.Printf("Wrote memory image to %s\n", outPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the 256-byte memory image to this path")
	return cmd
}

func assembleFile(path string) (*assemble.Image, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	prog, err := asmsyntax.Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	img, err := assemble.Assemble(prog)
	if err != nil {
		return nil, fmt.Errorf("assembling %s: %w", path, err)
	}
	return img, nil
}

// printOffsetMap prints, for each instruction's memory address, the span
// of source bytes it was assembled from, in address order.
func printOffsetMap(img *assemble.Image) {
	addrs := make([]byte, 0, len(img.Offsets))
	for addr := range img.Offsets {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	fmt.Println("Offset map:")
	for _, addr := range addrs {
		off := img.Offsets[addr]
		fmt.Printf("  %#04x: source [%d, %d)\n", addr, off.SourceOffset, off.SourceOffset+off.SourceLength)
	}
}
