package engine

import (
	"testing"

	"mcus/internal/assemble"
	"mcus/internal/asmsyntax"
)

func mustAssemble(t *testing.T, src string) *assemble.Image {
	t.Helper()
	prog, err := asmsyntax.Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", src, err)
	}
	img, err := assemble.Assemble(prog)
	if err != nil {
		t.Fatalf("Assemble(%q) error = %v", src, err)
	}
	return img
}

func TestMoviAndOut(t *testing.T) {
	sim := New(mustAssemble(t, "MOVI S0, 2A\nOUT Q, S0\nHALT\n"))
	sim.Start()

	if err := sim.Run(nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sim.OutputPort() != 0x2A {
		t.Errorf("OutputPort() = %#x, want 0x2a", sim.OutputPort())
	}
	if sim.State() != Stopped {
		t.Errorf("State() = %v, want Stopped", sim.State())
	}
}

func TestAddWrapsAndSetsZeroFlag(t *testing.T) {
	sim := New(mustAssemble(t, "MOVI S0, FF\nMOVI S1, 01\nADD S0, S1\nHALT\n"))
	sim.Start()

	if err := sim.Run(nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sim.Register(0) != 0 {
		t.Errorf("Register(0) = %#x, want 0 (wrapped)", sim.Register(0))
	}
	if !sim.ZeroFlag() {
		t.Errorf("ZeroFlag() = false, want true")
	}
}

func TestJumpByLabel(t *testing.T) {
	sim := New(mustAssemble(t, "JP skip\nMOVI S0, 01\nskip: MOVI S1, 02\nHALT\n"))
	sim.Start()

	if err := sim.Run(nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sim.Register(0) != 0 {
		t.Errorf("Register(0) = %#x, want 0 (skipped instruction never ran)", sim.Register(0))
	}
	if sim.Register(1) != 2 {
		t.Errorf("Register(1) = %#x, want 2", sim.Register(1))
	}
}

func TestSubroutineSavesAndRestoresRegisters(t *testing.T) {
	sim := New(mustAssemble(t, ""+
		"MOVI S0, 01\n"+
		"RCALL sub\n"+
		"HALT\n"+
		"sub: MOVI S0, FF\n"+
		"RET\n"))
	sim.Start()

	if err := sim.Run(nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// RET restores the full saved register file, so S0 reverts to 01
	// even though the subroutine clobbered it to FF.
	if sim.Register(0) != 0x01 {
		t.Errorf("Register(0) = %#x, want 0x01 (restored by RET)", sim.Register(0))
	}
}

func TestRetWithEmptyStackIsStackUnderflow(t *testing.T) {
	sim := New(mustAssemble(t, "RET\n"))
	sim.Start()

	err := sim.Run(nil)
	eerr, ok := err.(*Error)
	if !ok || eerr.Kind != StackUnderflow {
		t.Fatalf("Run() error = %v, want StackUnderflow", err)
	}
	if sim.State() != Stopped {
		t.Errorf("State() = %v, want Stopped", sim.State())
	}
}

func TestBuiltinReadtable(t *testing.T) {
	sim := New(mustAssemble(t, "table: 11 22 33\nRCALL readtable\nHALT\n"))
	sim.Start()

	if err := sim.Run(nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// S7 defaults to 0, so readtable copies lookupTable[0] into S0.
	if sim.Register(0) != 0x11 {
		t.Errorf("Register(0) = %#x, want 0x11", sim.Register(0))
	}
}

func TestBuiltinReadadc(t *testing.T) {
	sim := New(mustAssemble(t, "RCALL readadc\nHALT\n"))
	sim.Start()
	sim.SetAnalogueInput(5.0)

	if err := sim.Run(nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sim.Register(0) != 255 {
		t.Errorf("Register(0) = %d, want 255 (full-scale ADC reading)", sim.Register(0))
	}
}

func TestInvalidOpcodeStopsSimulation(t *testing.T) {
	prog, err := asmsyntax.Parse("HALT\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	img, err := assemble.Assemble(prog)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	// Poke an opcode value with no table entry directly into memory,
	// simulating a jump into a data region.
	img.Memory[0] = 0xFE

	sim := New(img)
	sim.Start()

	runErr := sim.Run(nil)
	eerr, ok := runErr.(*Error)
	if !ok || eerr.Kind != InvalidOpcode {
		t.Fatalf("Run() error = %v, want InvalidOpcode", runErr)
	}
}

func TestPauseAndStep(t *testing.T) {
	sim := New(mustAssemble(t, "MOVI S0, 01\nMOVI S0, 02\nHALT\n"))
	sim.Start()
	sim.Pause()

	if sim.State() != Paused {
		t.Fatalf("State() = %v, want Paused", sim.State())
	}

	more, err := sim.Iterate()
	if err != nil || !more {
		t.Fatalf("Iterate() = %v, %v", more, err)
	}
	if sim.State() != Paused {
		t.Fatalf("State() = %v, want Paused (single step preserves pause)", sim.State())
	}
	if sim.Register(0) != 0x01 {
		t.Fatalf("Register(0) = %#x, want 0x01 after one step", sim.Register(0))
	}
}

func TestSetClockSpeedRejectsOutOfRange(t *testing.T) {
	sim := New(mustAssemble(t, "HALT\n"))
	if err := sim.SetClockSpeed(0); err == nil {
		t.Errorf("SetClockSpeed(0) = nil, want error")
	}
	if err := sim.SetClockSpeed(1001); err == nil {
		t.Errorf("SetClockSpeed(1001) = nil, want error")
	}
	if err := sim.SetClockSpeed(100); err != nil {
		t.Errorf("SetClockSpeed(100) = %v, want nil", err)
	}
}

func TestIterationCallbacksFire(t *testing.T) {
	sim := New(mustAssemble(t, "HALT\n"))
	var started, finished int
	sim.OnIterationStarted = func(*Simulation) { started++ }
	sim.OnIterationFinished = func(_ *Simulation, err error) {
		finished++
		if err != nil {
			t.Errorf("OnIterationFinished err = %v, want nil", err)
		}
	}
	sim.Start()
	if err := sim.Run(nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if started != 1 || finished != 1 {
		t.Errorf("started=%d finished=%d, want 1 and 1", started, finished)
	}
}
