package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mcus/internal/engine"
)

// debugger drives a Simulation one instruction at a time from an
// interactive terminal, restoring the terminal's original mode on exit
// the way the teacher's TerminalHost restores stdin around a raw-mode
// session.
type debugger struct {
	sim      *engine.Simulation
	fd       int
	oldState *term.State
}

func newDebugCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug <source.mcus>",
		Short: "Single-step a program interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := assembleFile(args[0])
			if err != nil {
				return err
			}

			sim := engine.New(img)
			sim.Start()
			sim.Pause()

			d := &debugger{sim: sim, fd: int(os.Stdin.Fd())}
			return d.run()
		},
	}
	return cmd
}

func (d *debugger) run() error {
	if term.IsTerminal(d.fd) {
		oldState, err := term.MakeRaw(d.fd)
		if err == nil {
			d.oldState = oldState
			defer term.Restore(d.fd, d.oldState)
		}
	}

	fmt.Print("mcusctl debug — n: step, p: print registers, q: quit\r\n")
	d.printState()

	reader := bufio.NewReader(os.Stdin)
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return nil
		}

		switch b {
		case 'n', '\r', '\n':
			if d.sim.State() == engine.Stopped {
				fmt.Print("simulation has halted\r\n")
				continue
			}
			more, err := d.sim.Iterate()
			if err != nil {
				fmt.Printf("error: %v\r\n", err)
				continue
			}
			d.printState()
			if !more {
				fmt.Print("halted\r\n")
			}
		case 'p':
			d.printState()
		case 'q':
			return nil
		}
	}
}

func (d *debugger) printState() {
	fmt.Printf("pc=%#02x zf=%v out=%#02x it=%d regs=",
		d.sim.ProgramCounter(), d.sim.ZeroFlag(), d.sim.OutputPort(), d.sim.Iteration())
	for i := 0; i < 8; i++ {
		fmt.Printf("%#02x ", d.sim.Register(i))
	}
	fmt.Print("\r\n")
}
