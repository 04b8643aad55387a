package asmsyntax

import "mcus/internal/instrset"

// Operand is one parsed operand token. Kind tags which field is
// meaningful: Register and Constant use Value; Input and Output carry no
// payload; Label uses Name and is resolved to a byte address later, by
// the assembler.
type Operand struct {
	Kind  instrset.OperandKind
	Value byte
	Name  string
}

// Instruction is one parsed statement: an opcode plus its operands, with
// the byte range in the original source it came from (for highlighting).
type Instruction struct {
	Opcode       instrset.Opcode
	Operands     []Operand
	SourceOffset int
	SourceLength int
}

// Label records a user-defined label and the byte address it will
// resolve to once assembled (the compiled size at the point the label
// was encountered).
type Label struct {
	Name    string
	Address byte
}

// Program is the intermediate representation produced by Parse: a
// straight-line sequence of instructions, the user label table, and an
// optional lookup table.
type Program struct {
	Instructions []Instruction
	Labels       []Label
	LookupTable  []byte // nil if the source had no "table:" statement
}

// ReservedLabels are the three built-in subroutine names. They are never
// stored in Program.Labels — the assembler resolves them to addresses
// relative to the referencing RCALL instruction instead (see the
// assemble package).
var ReservedLabels = map[string]bool{
	"readtable": true,
	"wait1ms":   true,
	"readadc":   true,
}
