// Package assemble turns a parsed asmsyntax.Program into a ready-to-run
// memory image: it resolves every label reference to a byte address and
// encodes each instruction into the fixed-size microcontroller memory.
package assemble

import (
	"fmt"

	"mcus/internal/asmsyntax"
	"mcus/internal/instrset"
)

// ErrorKind classifies an assembly failure, distinct from the parse-time
// ErrorKind family in asmsyntax: these are errors that can only be
// detected once addresses are known.
type ErrorKind int

const (
	// UnresolvableLabel means an operand referenced a name with no
	// matching label and no reserved-subroutine meaning.
	UnresolvableLabel ErrorKind = iota
	// MemoryOverflow means the program does not fit in instrset.MemorySize bytes.
	MemoryOverflow
)

func (k ErrorKind) String() string {
	switch k {
	case UnresolvableLabel:
		return "UnresolvableLabel"
	case MemoryOverflow:
		return "MemoryOverflow"
	default:
		return "Unknown"
	}
}

// Error is returned by Assemble.
type Error struct {
	Kind             ErrorKind
	InstructionIndex int
	Message          string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at instruction %d: %s", e.Kind, e.InstructionIndex, e.Message)
}

// Offset records, for a given memory address, the span of source bytes
// that produced the instruction stored there. It lets a front-end map a
// runtime fault back to a line of assembly, the way the teacher's
// disassembler maps machine words back to source annotations.
type Offset struct {
	SourceOffset int
	SourceLength int
}

// Image is a fully assembled program: a 256-byte memory image, the
// optional lookup table copied in verbatim, and a sparse map from
// instruction-start address to the source span that produced it.
type Image struct {
	Memory            [instrset.MemorySize]byte
	LookupTable       [instrset.MemorySize]byte
	LookupTableLength int // number of bytes of LookupTable from an actual "table:" statement
	Offsets           map[byte]Offset
	Size              int // number of bytes of Memory actually occupied by code
}

// Assemble encodes prog into a memory image, resolving every label
// reference (including the three reserved built-in subroutine names) to
// a concrete address.
func Assemble(prog *asmsyntax.Program) (*Image, error) {
	img := &Image{Offsets: make(map[byte]Offset, len(prog.Instructions))}

	compiledSize := instrset.ProgramStartAddress
	for i, instr := range prog.Instructions {
		spec, ok := instrset.ByOpcode(instr.Opcode)
		if !ok {
			return nil, &Error{Kind: MemoryOverflow, InstructionIndex: i, Message: "instruction has no known opcode encoding"}
		}

		projectedSize := compiledSize + spec.Size
		if projectedSize > instrset.MemorySize {
			return nil, &Error{
				Kind:             MemoryOverflow,
				InstructionIndex: i,
				Message:          fmt.Sprintf("instruction %d (%s) overflows the microcontroller's %d bytes of memory", i, spec.Mnemonic, instrset.MemorySize),
			}
		}

		img.Offsets[byte(compiledSize)] = Offset{SourceOffset: instr.SourceOffset, SourceLength: instr.SourceLength}

		img.Memory[compiledSize] = byte(instr.Opcode)
		compiledSize++

		switch instr.Opcode {
		case instrset.IN:
			img.Memory[compiledSize] = instr.Operands[0].Value
			compiledSize++
		case instrset.OUT:
			img.Memory[compiledSize] = instr.Operands[1].Value
			compiledSize++
		default:
			for f, operand := range instr.Operands {
				if spec.Operands[f] == instrset.Label && operand.Kind == instrset.Label {
					addr, err := resolveLabel(prog.Labels, compiledSize, operand.Name)
					if err != nil {
						return nil, &Error{
							Kind:             UnresolvableLabel,
							InstructionIndex: i,
							Message:          fmt.Sprintf("label %q used by instruction %d could not be resolved to an address", operand.Name, i),
						}
					}
					img.Memory[compiledSize] = addr
				} else {
					img.Memory[compiledSize] = operand.Value
				}
				compiledSize++
			}
		}
	}

	img.Size = compiledSize
	img.LookupTableLength = copy(img.LookupTable[:], prog.LookupTable)

	return img, nil
}

// resolveLabel resolves a label reference to a byte address. The three
// reserved names are resolved relative to compiledSize — the address
// just past the opcode byte of the instruction referencing them — rather
// than to any emitted code, exactly mirroring the address arithmetic of
// the reference MCUS compiler's resolve_label. This is a documented
// quirk, not a bug: it lets RCALL dispatch to the three built-in
// subroutines without those subroutines occupying real memory.
func resolveLabel(labels []asmsyntax.Label, compiledSize int, name string) (byte, error) {
	switch name {
	case "readtable":
		return byte(compiledSize - 1), nil
	case "wait1ms":
		return byte(compiledSize), nil
	case "readadc":
		return byte(compiledSize + 1), nil
	}

	for _, label := range labels {
		if label.Name == name {
			return label.Address, nil
		}
	}

	return 0, fmt.Errorf("label %q not found", name)
}
