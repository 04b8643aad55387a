// Package waveform synthesises the analogue voltage fed to a
// Simulation's ADC input. It replaces the reference implementation's
// GTK function-generator widget (amplitude/frequency/phase/offset
// sliders bound to one of five waveform shapes) with a small Generator
// type driven by iteration count instead of wall-clock time, so that a
// headless run reproduces the same input sequence on every replay.
package waveform

import "math"

// Shape selects which function generator waveform a Generator produces.
type Shape int

const (
	Constant Shape = iota
	Sine
	Square
	Triangle
	Sawtooth
)

func (s Shape) String() string {
	switch s {
	case Constant:
		return "constant"
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Triangle:
		return "triangle"
	case Sawtooth:
		return "sawtooth"
	default:
		return "unknown"
	}
}

// maxVoltage matches the microcontroller's ADC reference voltage
// (engine.analogueInputMaxVoltage), used here to clamp generator output
// to the same [0, 5] volt range the hardware accepts.
const maxVoltage = 5.0

// Generator produces a deterministic analogue voltage for a given
// simulation iteration, parameterised the way the reference
// implementation's function generator is: amplitude, frequency, phase
// and a DC offset.
type Generator struct {
	Shape      Shape
	Amplitude  float64
	Frequency  float64
	Phase      float64
	Offset     float64
	ClockSpeed int // Hz; must match the Simulation's clock speed for Frequency to be meaningful
}

// Value returns the generator's output voltage at the given iteration,
// clamped to [0, 5] volts.
func (g Generator) Value(iteration int) float64 {
	var t float64
	if g.ClockSpeed > 0 {
		t = float64(iteration) / float64(g.ClockSpeed)
	}

	var v float64
	switch g.Shape {
	case Constant:
		v = g.Offset
	case Sine:
		v = g.Amplitude*math.Sin(2.0*math.Pi*g.Frequency*t+g.Phase) + g.Offset
	case Square:
		s := math.Sin(2.0*math.Pi*g.Frequency*t + g.Phase)
		switch {
		case s > 0:
			v = g.Amplitude + g.Offset
		case s < 0:
			v = -g.Amplitude + g.Offset
		default:
			v = g.Offset
		}
	case Triangle:
		v = g.Amplitude*math.Asin(math.Sin(2.0*math.Pi*g.Frequency*t+g.Phase)) + g.Offset
	case Sawtooth:
		phase := t * g.Frequency
		v = g.Amplitude*2.0*(phase-math.Floor(phase+0.5)) + g.Offset
	default:
		v = g.Offset
	}

	if v > maxVoltage {
		return maxVoltage
	}
	if v < 0 {
		return 0
	}
	return v
}
