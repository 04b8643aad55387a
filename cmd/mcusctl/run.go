package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mcus/internal/engine"
	"mcus/internal/waveform"
)

func newRunCmd() *cobra.Command {
	var clockSpeed int
	var inputPort uint8
	var shapeName string
	var amplitude, frequency, phase, offset float64
	var trace bool

	cmd := &cobra.Command{
		Use:   "run <source.mcus>",
		Short: "Assemble and run a program to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := assembleFile(args[0])
			if err != nil {
				return err
			}

			shape, err := parseShape(shapeName)
			if err != nil {
				return err
			}
			gen := waveform.Generator{
				Shape:      shape,
				Amplitude:  amplitude,
				Frequency:  frequency,
				Phase:      phase,
				Offset:     offset,
				ClockSpeed: clockSpeed,
			}

			sim := engine.New(img)
			if err := sim.SetClockSpeed(clockSpeed); err != nil {
				return err
			}
			sim.SetInputPort(inputPort)

			if trace {
				sim.OnIterationFinished = func(s *engine.Simulation, _ error) {
					fmt.Printf("it=%-4d pc=%#02x zf=%v out=%#02x\n", s.Iteration(), s.ProgramCounter(), s.ZeroFlag(), s.OutputPort())
				}
			}

			sim.Start()
			runErr := sim.Run(func(s *engine.Simulation) error {
				s.SetAnalogueInput(gen.Value(s.Iteration()))
				return nil
			})
			if runErr != nil {
				return fmt.Errorf("simulation stopped: %w", runErr)
			}

			fmt.Printf("Halted after %d iterations; output port = %#02x\n", sim.Iteration(), sim.OutputPort())
			return nil
		},
	}

	cmd.Flags().IntVar(&clockSpeed, "clock-speed", 1, "simulated clock speed in Hz (1-1000)")
	cmd.Flags().Uint8Var(&inputPort, "input", 0, "fixed byte presented on the input port")
	cmd.Flags().StringVar(&shapeName, "adc-shape", "constant", "analogue input waveform: constant, sine, square, triangle, sawtooth")
	cmd.Flags().Float64Var(&amplitude, "adc-amplitude", 0, "waveform amplitude in volts")
	cmd.Flags().Float64Var(&frequency, "adc-frequency", 1, "waveform frequency in Hz")
	cmd.Flags().Float64Var(&phase, "adc-phase", 0, "waveform phase in radians")
	cmd.Flags().Float64Var(&offset, "adc-offset", 0, "waveform DC offset in volts")
	cmd.Flags().BoolVar(&trace, "trace", false, "print state after every iteration")
	return cmd
}

func parseShape(name string) (waveform.Shape, error) {
	switch name {
	case "constant":
		return waveform.Constant, nil
	case "sine":
		return waveform.Sine, nil
	case "square":
		return waveform.Square, nil
	case "triangle":
		return waveform.Triangle, nil
	case "sawtooth":
		return waveform.Sawtooth, nil
	default:
		return 0, fmt.Errorf("unknown --adc-shape %q", name)
	}
}
