// Package engine runs an assembled program on a simulated microcontroller:
// eight 8-bit registers, a zero flag, 256 bytes of memory, a 256-byte
// read-only lookup table, single input and output ports, and a call
// stack for RCALL/RET. Iteration is driven by the caller — there is no
// internal timer goroutine — mirroring the teacher's own preference for
// an explicit, externally-pumped execution loop over ambient concurrency.
package engine

import (
	"fmt"
	"sync"
	"time"

	"mcus/internal/assemble"
	"mcus/internal/instrset"
)

// State is the simulation's run state.
type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// ErrorKind classifies a runtime fault raised during Iterate.
type ErrorKind int

const (
	MemoryOverflow ErrorKind = iota
	StackUnderflow
	InvalidOpcode
)

func (k ErrorKind) String() string {
	switch k {
	case MemoryOverflow:
		return "MemoryOverflow"
	case StackUnderflow:
		return "StackUnderflow"
	case InvalidOpcode:
		return "InvalidOpcode"
	default:
		return "Unknown"
	}
}

// Error is returned by Iterate. The simulation always transitions to
// Stopped when one occurs.
type Error struct {
	Kind      ErrorKind
	Iteration int
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s in iteration %d: %s", e.Kind, e.Iteration, e.Message)
}

// stackFrame is one saved caller context, pushed by RCALL and popped by RET.
type stackFrame struct {
	programCounter byte
	registers      [instrset.RegisterCount]byte
	prev           *stackFrame
}

// analogueInputMaxVoltage bounds the analogue input accepted by
// SetAnalogueInput and used by the readadc built-in; it matches the
// reference microcontroller's 5V ADC reference voltage.
const analogueInputMaxVoltage = 5.0

// defaultClockSpeed is the iteration rate assumed until SetClockSpeed is
// called; it only affects callers that use it to pace their own loop,
// since Iterate itself is synchronous and untimed.
const defaultClockSpeed = 1

// Simulation runs a single assembled program. All mutable state is
// guarded by mu so that a debugger goroutine can read registers/ports
// while a driver goroutine calls Iterate, the way the teacher's CPU core
// protects shared state with sync.RWMutex.
type Simulation struct {
	mu sync.RWMutex

	memory      [instrset.MemorySize]byte
	lookupTable [instrset.MemorySize]byte
	offsets     map[byte]assemble.Offset

	programCounter byte
	zeroFlag       bool
	registers      [instrset.RegisterCount]byte
	inputPort      byte
	outputPort     byte
	analogueInput  float64
	stack          *stackFrame

	iteration  int
	state      State
	clockSpeed int

	// OnIterationStarted, if set, is called before each iteration mutates
	// state. OnIterationFinished, if set, is called after, with the error
	// (if any) that ended the simulation. Neither is called while mu is
	// held, so handlers may safely call back into the Simulation's
	// read-only accessors.
	OnIterationStarted  func(*Simulation)
	OnIterationFinished func(*Simulation, error)
}

// New creates a Simulation from an assembled image. The simulation
// starts Stopped; call Start to begin running it.
func New(img *assemble.Image) *Simulation {
	s := &Simulation{
		memory:      img.Memory,
		lookupTable: img.LookupTable,
		offsets:     img.Offsets,
		clockSpeed:  defaultClockSpeed,
		state:       Stopped,
	}
	return s
}

// Start resets all simulated hardware state and transitions to Running.
// It panics if called while already running or paused, matching the
// teacher's precondition-assertion style for state-machine misuse.
func (s *Simulation) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Stopped {
		panic("engine: Start called while simulation is not Stopped")
	}

	s.programCounter = instrset.ProgramStartAddress
	s.zeroFlag = false
	s.registers = [instrset.RegisterCount]byte{}
	s.inputPort = 0
	s.outputPort = 0
	s.analogueInput = 0
	s.stack = nil
	s.iteration = 0
	s.state = Running
}

// Pause transitions a Running simulation to Paused. It panics if the
// simulation isn't currently Running.
func (s *Simulation) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Running {
		panic("engine: Pause called while simulation is not Running")
	}
	s.state = Paused
}

// Resume transitions a Paused simulation back to Running.
func (s *Simulation) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Paused {
		panic("engine: Resume called while simulation is not Paused")
	}
	s.state = Running
}

// Finish stops the simulation unconditionally, discarding the call
// stack. It is safe to call on an already-Stopped simulation.
func (s *Simulation) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked()
}

func (s *Simulation) finishLocked() {
	s.state = Stopped
	s.stack = nil
}

// SetInputPort sets the byte visible to IN instructions.
func (s *Simulation) SetInputPort(v byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputPort = v
}

// SetAnalogueInput sets the voltage read by the readadc built-in
// subroutine. Values are clamped to [0, analogueInputMaxVoltage].
func (s *Simulation) SetAnalogueInput(volts float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if volts < 0 {
		volts = 0
	}
	if volts > analogueInputMaxVoltage {
		volts = analogueInputMaxVoltage
	}
	s.analogueInput = volts
}

// SetClockSpeed records the iteration rate, in Hz, a caller intends to
// drive Iterate at. It has no effect on Iterate itself; the value is only
// stored and reported back by ClockSpeed.
func (s *Simulation) SetClockSpeed(hz int) error {
	if hz <= 0 || hz > 1000 {
		return fmt.Errorf("engine: clock speed %d Hz out of range (0, 1000]", hz)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clockSpeed = hz
	return nil
}

func (s *Simulation) ClockSpeed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clockSpeed
}

// State reports the current run state.
func (s *Simulation) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ProgramCounter reports the address of the next instruction to execute.
func (s *Simulation) ProgramCounter() byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.programCounter
}

// ZeroFlag reports the result of the last arithmetic or shift operation.
func (s *Simulation) ZeroFlag() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zeroFlag
}

// Register reads one general-purpose register (0..7).
func (s *Simulation) Register(n int) byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registers[n]
}

// OutputPort reads the last byte written by an OUT instruction.
func (s *Simulation) OutputPort() byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputPort
}

// Iteration reports how many iterations have completed.
func (s *Simulation) Iteration() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iteration
}

// StackDepth reports how many subroutine frames are currently pushed.
func (s *Simulation) StackDepth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	depth := 0
	for f := s.stack; f != nil; f = f.prev {
		depth++
	}
	return depth
}

// Offset returns the source span that produced the instruction at addr,
// if any — used by a front-end to highlight the currently-executing line.
func (s *Simulation) Offset(addr byte) (assemble.Offset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	off, ok := s.offsets[addr]
	return off, ok
}

// Iterate executes exactly one instruction. It returns false once the
// simulation has stopped (via HALT or a runtime error), and true
// otherwise. Iterate is a no-op error if called on a Stopped simulation.
func (s *Simulation) Iterate() (bool, error) {
	s.mu.Lock()

	if s.state == Stopped {
		s.mu.Unlock()
		return false, fmt.Errorf("engine: Iterate called while simulation is Stopped")
	}

	oldState := s.state
	if oldState == Paused {
		s.state = Running
	}

	if s.OnIterationStarted != nil {
		s.mu.Unlock()
		s.OnIterationStarted(s)
		s.mu.Lock()
	}

	// Widened comparison: programCounter is a byte, so the sum is taken
	// in int to keep programCounter+1 from wrapping to 0 the way the
	// reference implementation's guchar arithmetic does.
	if int(s.programCounter)+1 > instrset.MemorySize {
		err := &Error{Kind: MemoryOverflow, Iteration: s.iteration, Message: "the program counter overflowed available memory"}
		s.finishLocked()
		s.mu.Unlock()
		s.notifyFinished(err)
		return false, err
	}

	opcode := instrset.Opcode(s.memory[s.programCounter])
	var operand1, operand2 byte
	if int(s.programCounter)+1 < instrset.MemorySize {
		operand1 = s.memory[s.programCounter+1]
	}
	if int(s.programCounter)+2 < instrset.MemorySize {
		operand2 = s.memory[s.programCounter+2]
	}

	jumped := false

	switch opcode {
	case instrset.HALT:
		s.finishLocked()
		s.mu.Unlock()
		s.notifyFinished(nil)
		return false, nil

	case instrset.MOVI:
		s.registers[operand1] = operand2
	case instrset.MOV:
		s.registers[operand1] = s.registers[operand2]
	case instrset.ADD:
		s.registers[operand1] += s.registers[operand2]
		s.zeroFlag = s.registers[operand1] == 0
	case instrset.SUB:
		s.registers[operand1] -= s.registers[operand2]
		s.zeroFlag = s.registers[operand1] == 0
	case instrset.AND:
		s.registers[operand1] &= s.registers[operand2]
		s.zeroFlag = s.registers[operand1] == 0
	case instrset.EOR:
		s.registers[operand1] ^= s.registers[operand2]
		s.zeroFlag = s.registers[operand1] == 0
	case instrset.INC:
		s.registers[operand1]++
		s.zeroFlag = s.registers[operand1] == 0
	case instrset.DEC:
		s.registers[operand1]--
		s.zeroFlag = s.registers[operand1] == 0
	case instrset.IN:
		s.registers[operand1] = s.inputPort
	case instrset.OUT:
		s.outputPort = s.registers[operand1]
	case instrset.JP:
		s.programCounter = operand1
		jumped = true
	case instrset.JZ:
		if s.zeroFlag {
			s.programCounter = operand1
			jumped = true
		}
	case instrset.JNZ:
		if !s.zeroFlag {
			s.programCounter = operand1
			jumped = true
		}
	case instrset.RCALL:
		switch {
		case operand1 == s.programCounter:
			// readtable
			s.registers[0] = s.lookupTable[s.registers[7]]
		case operand1 == s.programCounter+1:
			// wait1ms
			time.Sleep(time.Millisecond)
		case operand1 == s.programCounter+2:
			// readadc
			s.registers[0] = byte(255.0 * s.analogueInput / analogueInputMaxVoltage)
		default:
			spec, _ := instrset.ByOpcode(opcode)
			frame := &stackFrame{
				programCounter: s.programCounter + byte(spec.Size),
				registers:      s.registers,
				prev:           s.stack,
			}
			s.stack = frame
			s.programCounter = operand1
			jumped = true
		}
	case instrset.RET:
		if s.stack == nil {
			err := &Error{Kind: StackUnderflow, Iteration: s.iteration, Message: "the stack pointer underflowed available stack space"}
			s.finishLocked()
			s.mu.Unlock()
			s.notifyFinished(err)
			return false, err
		}
		frame := s.stack
		s.stack = frame.prev
		s.programCounter = frame.programCounter
		s.registers = frame.registers
		jumped = true
	case instrset.SHL:
		s.registers[operand1] <<= 1
		s.zeroFlag = s.registers[operand1] == 0
	case instrset.SHR:
		s.registers[operand1] >>= 1
		s.zeroFlag = s.registers[operand1] == 0
	default:
		err := &Error{
			Kind:      InvalidOpcode,
			Iteration: s.iteration,
			Message:   fmt.Sprintf("an invalid opcode %#02x was encountered at address %#02x", byte(opcode), s.programCounter),
		}
		s.finishLocked()
		s.mu.Unlock()
		s.notifyFinished(err)
		return false, err
	}

	if !jumped {
		spec, _ := instrset.ByOpcode(opcode)
		s.programCounter += byte(spec.Size)
	}

	if oldState == Paused {
		s.state = Paused
	}
	s.iteration++
	s.mu.Unlock()

	s.notifyFinished(nil)
	return true, nil
}

func (s *Simulation) notifyFinished(err error) {
	if s.OnIterationFinished != nil {
		s.OnIterationFinished(s, err)
	}
}

// Run drives Iterate to completion, calling step after every successful
// iteration (if step is non-nil) so a caller can pace execution or
// observe intermediate state. It returns the error (if any) that ended
// the simulation; a clean HALT returns nil.
func (s *Simulation) Run(step func(*Simulation) error) error {
	for {
		more, err := s.Iterate()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		if step != nil {
			if err := step(s); err != nil {
				return err
			}
		}
	}
}
