// Package asmsyntax turns MCUS assembly source into an intermediate
// program: a sequence of parsed instructions, a label table, and an
// optional lookup table. It performs no label resolution and no
// encoding — that is the assemble package's job.
package asmsyntax

import (
	"fmt"
	"strings"

	"mcus/internal/instrset"
)

// parser is a cursor over the source text. It mirrors the teacher's
// lexer structure (a single forward-moving index plus a line counter)
// translated into a private Go struct with method receivers instead of
// a C-style self->priv pointer.
type parser struct {
	src  string
	pos  int
	line int

	compiledSize int
	labels       []Label
	instructions []Instruction
}

// Parse lexes and parses source, returning the intermediate program or
// the first error encountered (parsing stops at the first error, per
// spec §4.2).
func Parse(src string) (*Program, error) {
	p := &parser{src: src, line: 1}
	p.skipWhitespace(true, false)

	var lookupTable []byte
	haveLookupTable := false

	for p.pos < len(p.src) {
		if table, err := p.lexLookupTable(); err == nil {
			if haveLookupTable {
				return nil, p.errorAt(DuplicateLookupTable, 0, "a lookup table (\"table:\") was defined more than once")
			}
			lookupTable = table
			haveLookupTable = true
			p.skipWhitespace(true, false)
			continue
		} else if err.Kind != InvalidLookupTable {
			return nil, err
		}

		if label, err := p.lexLabel(); err == nil {
			for _, existing := range p.labels {
				if existing.Name == label.Name {
					return nil, &Error{
						Kind:            DuplicateLabel,
						Line:            p.line,
						HighlightStart:  p.pos - len(label.Name) - 1,
						HighlightLength: len(label.Name) + 1,
						Message:         fmt.Sprintf("a label (%q) was defined more than once", label.Name),
					}
				}
			}
			if !ReservedLabels[label.Name] {
				p.labels = append(p.labels, label)
			}
			p.skipWhitespace(true, false)
			continue
		} else if err.Kind != InvalidLabelDelimitation {
			return nil, err
		}

		instr, err := p.lexInstruction()
		if err != nil {
			return nil, err
		}
		p.instructions = append(p.instructions, instr)
		spec, _ := instrset.ByOpcode(instr.Opcode)
		p.compiledSize += spec.Size
		p.skipWhitespace(true, false)
	}

	return &Program{
		Instructions: p.instructions,
		Labels:       p.labels,
		LookupTable:  lookupTable,
	}, nil
}

// skipWhitespace consumes spaces, tabs and comments unconditionally, and
// additionally consumes newlines and/or commas when asked to. This
// matches the teacher's (and the original implementation's) distinction
// between "whitespace that is always insignificant" and "statement
// terminators that are only sometimes insignificant".
func (p *parser) skipWhitespace(skipNewlines, skipCommas bool) {
	inComment := false
	for p.pos < len(p.src) {
		switch c := p.src[p.pos]; {
		case c == ';':
			inComment = true
			p.pos++
		case c == ' ' || c == '\t':
			p.pos++
		case c == '\n':
			inComment = false
			if !skipNewlines {
				return
			}
			p.pos++
			p.line++
		case c == ',':
			if !skipCommas && !inComment {
				return
			}
			p.pos++
		default:
			if !inComment {
				return
			}
			p.pos++
		}
	}
}

func (p *parser) context() string {
	end := p.pos + contextLength
	if end > len(p.src) {
		end = len(p.src)
	}
	return p.src[p.pos:end]
}

func (p *parser) errorAt(kind ErrorKind, highlightLength int, message string) *Error {
	return &Error{
		Kind:            kind,
		Line:            p.line,
		HighlightStart:  p.pos,
		HighlightLength: highlightLength,
		Context:         p.context(),
		Message:         fmt.Sprintf("%s around line %d before %q", message, p.line, p.context()),
	}
}

// isTokenEnd reports whether c terminates a bare token (mnemonic, label,
// operand) when scanning forward.
func isTokenEnd(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == ';'
}

const lookupTableLiteral = "table:"

func (p *parser) lexLookupTable() ([]byte, *Error) {
	if !strings.HasPrefix(p.src[p.pos:], lookupTableLiteral) {
		return nil, p.errorAt(InvalidLookupTable, len(lookupTableLiteral), "an expected lookup table was not correctly labelled (\"table:\")")
	}
	p.pos += len(lookupTableLiteral)

	var table []byte
	for i := 0; i < instrset.MemorySize; i++ {
		p.skipWhitespace(i > 0, i > 0)
		b, err := p.lexConstant()
		if err != nil {
			if i == 0 {
				return nil, err
			}
			break
		}
		table = append(table, b)
	}
	return table, nil
}

func (p *parser) lexConstant() (byte, *Error) {
	start := p.pos
	length := 0
	for start+length < len(p.src) && isHexDigit(p.src[start+length]) {
		length++
	}
	if length != 2 {
		return 0, p.errorAt(InvalidConstant, length, "a required constant had an incorrect length")
	}
	v := hexValue(p.src[start])*16 + hexValue(p.src[start+1])
	p.pos += 2
	return v, nil
}

func (p *parser) lexLabel() (Label, *Error) {
	start := p.pos
	length := 0
	for start+length < len(p.src) {
		c := p.src[start+length]
		if c == ' ' || c == '\t' || c == '\n' || c == ';' || c == ':' {
			break
		}
		length++
	}

	if length == 0 || start+length >= len(p.src) || p.src[start+length] != ':' {
		return Label{}, p.errorAt(InvalidLabelDelimitation, length, "an expected label had no length, or was not delimited by a colon (\":\")")
	}

	name := p.src[start : start+length]
	p.pos = start + length + 1 // consume the colon too

	return Label{Name: name, Address: byte(p.compiledSize)}, nil
}

func (p *parser) lexMnemonic() (instrset.Spec, *Error) {
	start := p.pos
	length := 0
	for start+length < len(p.src) && isAlnum(p.src[start+length]) {
		length++
	}

	if length == 0 || (start+length < len(p.src) && !isTokenEnd(p.src[start+length])) {
		return instrset.Spec{}, p.errorAt(InvalidMnemonic, length, "an expected mnemonic had no length, or was not delimited by whitespace")
	}

	word := p.src[start : start+length]
	spec, ok := instrset.ByMnemonic(word)
	if !ok {
		return instrset.Spec{}, p.errorAt(InvalidMnemonic, length, fmt.Sprintf("a mnemonic (%q) did not exist", word))
	}

	p.pos = start + length
	return spec, nil
}

func (p *parser) lexOperand() (Operand, *Error) {
	start := p.pos
	length := 0
	for start+length < len(p.src) {
		c := p.src[start+length]
		if c == ',' || c == ' ' || c == '\t' || c == '\n' || c == ';' {
			break
		}
		length++
	}

	if length == 0 {
		return Operand{}, p.errorAt(InvalidOperand, 0, "a required operand had no length")
	}

	token := p.src[start : start+length]
	p.pos = start + length

	switch {
	case length == 1 && (token[0] == 'I' || token[0] == 'i'):
		return Operand{Kind: instrset.Input}, nil
	case length == 1 && (token[0] == 'Q' || token[0] == 'q'):
		return Operand{Kind: instrset.Output}, nil
	case length == 2:
		if (token[0] == 'S' || token[0] == 's') && isDecimalDigit(token[1]) {
			reg := token[1] - '0'
			if int(reg) < instrset.RegisterCount {
				return Operand{Kind: instrset.Register, Value: reg}, nil
			}
		}
		if isHexDigit(token[0]) && isHexDigit(token[1]) {
			return Operand{Kind: instrset.Constant, Value: hexValue(token[0])*16 + hexValue(token[1])}, nil
		}
	}

	// Anything else — including length-1 tokens that aren't I/Q, and
	// length-2 tokens that don't look like a register or constant — is a
	// label reference. Resolution happens during assembly.
	return Operand{Kind: instrset.Label, Name: token}, nil
}

func (p *parser) lexInstruction() (Instruction, *Error) {
	offset := p.pos
	spec, err := p.lexMnemonic()
	if err != nil {
		return Instruction{}, err
	}

	p.skipWhitespace(false, false)

	operands := make([]Operand, 0, spec.Arity)
	for i := 0; i < spec.Arity; i++ {
		p.skipWhitespace(false, i > 0)

		operandStart := p.pos
		operand, err := p.lexOperand()
		if err != nil {
			return Instruction{}, err
		}

		expected := spec.Operands[i]
		validKind := operand.Kind == expected
		if expected == instrset.Label && (operand.Kind == instrset.Constant || operand.Kind == instrset.Label) {
			validKind = true
		}
		if !validKind {
			p.pos = operandStart
			highlightLen := 2
			switch operand.Kind {
			case instrset.Input, instrset.Output:
				highlightLen = 1
			case instrset.Label:
				highlightLen = len(operand.Name)
			}
			return Instruction{}, &Error{
				Kind:            InvalidOperandType,
				Line:            p.line,
				HighlightStart:  operandStart,
				HighlightLength: highlightLen,
				Context:         p.context(),
				Message: fmt.Sprintf("an operand was of type %q when it should've been %q around line %d (%s)",
					operand.Kind, expected, p.line, spec.Help),
			}
		}

		operands = append(operands, operand)
	}

	return Instruction{
		Opcode:       spec.Opcode,
		Operands:     operands,
		SourceOffset: offset,
		SourceLength: p.pos - offset,
	}, nil
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isDecimalDigit(c byte) bool {
	return c >= '0' && c <= '7'
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
