package asmsyntax

import (
	"testing"

	"mcus/internal/instrset"
)

func TestParseSimpleProgram(t *testing.T) {
	src := "MOVI S0, 05\nOUT Q, S0\nHALT\n"
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(prog.Instructions) != 3 {
		t.Fatalf("len(Instructions) = %d, want 3", len(prog.Instructions))
	}
	if prog.Instructions[0].Opcode != instrset.MOVI {
		t.Errorf("Instructions[0].Opcode = %v, want MOVI", prog.Instructions[0].Opcode)
	}
	if prog.Instructions[1].Opcode != instrset.OUT {
		t.Errorf("Instructions[1].Opcode = %v, want OUT", prog.Instructions[1].Opcode)
	}
	if prog.Instructions[2].Opcode != instrset.HALT {
		t.Errorf("Instructions[2].Opcode = %v, want HALT", prog.Instructions[2].Opcode)
	}
}

func TestParseLabelsRecordAddress(t *testing.T) {
	src := "loop: INC S0\nJP loop\n"
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(prog.Labels) != 1 || prog.Labels[0].Name != "loop" || prog.Labels[0].Address != 0 {
		t.Fatalf("Labels = %+v, want one label %q at address 0", prog.Labels, "loop")
	}
	if prog.Instructions[1].Operands[0].Kind != instrset.Label || prog.Instructions[1].Operands[0].Name != "loop" {
		t.Fatalf("JP operand = %+v, want label reference to loop", prog.Instructions[1].Operands[0])
	}
}

func TestParseDuplicateLabel(t *testing.T) {
	src := "a: HALT\na: HALT\n"
	_, err := Parse(src)
	perr, ok := err.(*Error)
	if !ok || perr.Kind != DuplicateLabel {
		t.Fatalf("Parse() error = %v, want DuplicateLabel", err)
	}
}

func TestParseUnknownMnemonic(t *testing.T) {
	_, err := Parse("NOPE S0\n")
	perr, ok := err.(*Error)
	if !ok || perr.Kind != InvalidMnemonic {
		t.Fatalf("Parse() error = %v, want InvalidMnemonic", err)
	}
}

func TestParseOperandTypeMismatch(t *testing.T) {
	_, err := Parse("MOVI S0, S1\n")
	perr, ok := err.(*Error)
	if !ok || perr.Kind != InvalidOperandType {
		t.Fatalf("Parse() error = %v, want InvalidOperandType", err)
	}
}

func TestParseCommentsAndBlankLines(t *testing.T) {
	src := "; a comment\n\nHALT ; trailing comment\n"
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(prog.Instructions) != 1 || prog.Instructions[0].Opcode != instrset.HALT {
		t.Fatalf("Instructions = %+v, want a single HALT", prog.Instructions)
	}
}

func TestParseLookupTable(t *testing.T) {
	src := "table: 01 02 03\nHALT\n"
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := []byte{0x01, 0x02, 0x03}
	if len(prog.LookupTable) != len(want) {
		t.Fatalf("LookupTable = %v, want %v", prog.LookupTable, want)
	}
	for i := range want {
		if prog.LookupTable[i] != want[i] {
			t.Errorf("LookupTable[%d] = %#x, want %#x", i, prog.LookupTable[i], want[i])
		}
	}
}

func TestParseLookupTableRequiresFirstConstant(t *testing.T) {
	_, err := Parse("table: \nHALT\n")
	perr, ok := err.(*Error)
	if !ok || perr.Kind != InvalidConstant {
		t.Fatalf("Parse() error = %v, want InvalidConstant", err)
	}
}

func TestParseDuplicateLookupTable(t *testing.T) {
	_, err := Parse("table: 01\ntable: 02\nHALT\n")
	perr, ok := err.(*Error)
	if !ok || perr.Kind != DuplicateLookupTable {
		t.Fatalf("Parse() error = %v, want DuplicateLookupTable", err)
	}
}

func TestParseCaseInsensitiveMnemonic(t *testing.T) {
	prog, err := Parse("movi s0, 0a\nhalt\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if prog.Instructions[0].Opcode != instrset.MOVI || prog.Instructions[0].Operands[1].Value != 0x0a {
		t.Fatalf("Instructions[0] = %+v, want MOVI S0, 0A", prog.Instructions[0])
	}
}

func TestParseReservedLabelIsJustALabel(t *testing.T) {
	// readtable/wait1ms/readadc are only given meaning by the assembler;
	// the parser reads them as an RCALL operand like any other label name.
	prog, err := Parse("RCALL readtable\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	op := prog.Instructions[0].Operands[0]
	if op.Kind != instrset.Label || op.Name != "readtable" {
		t.Fatalf("operand = %+v, want label %q", op, "readtable")
	}
}
