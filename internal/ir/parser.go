package ir

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Parser reads the textual IR format Function.Print/Module.Print emit. It
// is a small hand-written, three-pass reader (block labels, then
// instruction shells, then operand resolution) rather than a tokenizing
// recursive-descent parser like the teacher's internal/parser/parser.go,
// because SSA operands routinely forward-reference values defined later
// in program order (a header phi referencing its latch's value); the
// three-pass shape is the idiomatic way to resolve that without a
// two-phase AST.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

var (
	funcHeaderRe = regexp.MustCompile(`^func\s+(\w+)\(([^)]*)\)\s*\{$`)
	labelRe      = regexp.MustCompile(`^(\w+):$`)
	assignRe     = regexp.MustCompile(`^%(\w+)\s*=\s*(\w+)\s+(\S+)\s*(.*)$`)
	bareRe       = regexp.MustCompile(`^(\w+)\s*(.*)$`)
	memRe        = regexp.MustCompile(`^\[(\w+)\s*\+\s*(-?\d+)\*%(\w+)\s*\+\s*(-?\d+)\]$`)
)

// ParseModule reads a module consisting of one or more "func ... { ... }"
// blocks from r.
func (p *Parser) ParseModule(r io.Reader) (*Module, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	m := NewModule()
	i := 0
	for i < len(lines) {
		m_, next, err := p.parseFunction(lines, i)
		if err != nil {
			return nil, err
		}
		m.AddFunction(m_)
		i = next
	}
	return m, nil
}

func (p *Parser) parseFunction(lines []string, start int) (*Function, int, error) {
	header := funcHeaderRe.FindStringSubmatch(lines[start])
	if header == nil {
		return nil, 0, fmt.Errorf("ir: expected function header, got %q", lines[start])
	}
	name := header[1]
	argTypes, err := parseArgTypes(header[2])
	if err != nil {
		return nil, 0, err
	}
	f := NewFunction(name, argTypes)

	end := start + 1
	for end < len(lines) && lines[end] != "}" {
		end++
	}
	if end == len(lines) {
		return nil, 0, fmt.Errorf("ir: missing closing '}' for function %s", name)
	}
	body := lines[start+1 : end]

	blocks := map[string]*BasicBlock{}
	var order []string
	for _, line := range body {
		if lbl := labelRe.FindStringSubmatch(line); lbl != nil {
			b := f.NewBlock(lbl[1])
			blocks[lbl[1]] = b
			order = append(order, lbl[1])
		}
	}

	values := map[string]Value{}
	for i, a := range f.Args {
		values["%"+a.name] = f.Args[i]
	}

	type pending struct {
		instr   *Instruction
		op      Opcode
		typ     Type
		rest    string
		block   *BasicBlock
		resName string
	}
	var todo []pending

	cur := ""
	for _, line := range body {
		if lbl := labelRe.FindStringSubmatch(line); lbl != nil {
			cur = lbl[1]
			continue
		}
		b := blocks[cur]
		if m := assignRe.FindStringSubmatch(line); m != nil {
			resName, opName, typStr, rest := m[1], m[2], m[3], m[4]
			op, ok := opcodeByName(opName)
			if !ok {
				return nil, 0, fmt.Errorf("ir: unknown opcode %q", opName)
			}
			typ, err := parseType(typStr)
			if err != nil {
				return nil, 0, err
			}
			inst := &Instruction{id: f.allocID(), Op: op, Typ: typ, Name: resName}
			b.Instrs = append(b.Instrs, inst)
			inst.Parent = b
			values["%"+resName] = inst
			todo = append(todo, pending{instr: inst, op: op, typ: typ, rest: rest, block: b, resName: resName})
		} else if m := bareRe.FindStringSubmatch(line); m != nil {
			opName, rest := m[1], m[2]
			op, ok := opcodeByName(opName)
			if !ok {
				return nil, 0, fmt.Errorf("ir: unknown opcode %q", opName)
			}
			inst := &Instruction{id: f.allocID(), Op: op, Typ: LabelType()}
			b.Instrs = append(b.Instrs, inst)
			inst.Parent = b
			todo = append(todo, pending{instr: inst, op: op, rest: rest, block: b})
		} else {
			return nil, 0, fmt.Errorf("ir: unrecognized line %q", line)
		}
	}

	for _, t := range todo {
		if err := resolveOperands(t.instr, t.op, t.rest, values, blocks); err != nil {
			return nil, 0, err
		}
	}

	return f, end + 1, nil
}

func resolveOperands(inst *Instruction, op Opcode, rest string, values map[string]Value, blocks map[string]*BasicBlock) error {
	switch op {
	case OpPhi:
		for _, part := range splitTopLevelCommas(rest) {
			part = strings.TrimSpace(part)
			part = strings.TrimPrefix(part, "[")
			part = strings.TrimSuffix(part, "]")
			fields := strings.Split(part, ",")
			if len(fields) != 2 {
				return fmt.Errorf("ir: bad phi edge %q", part)
			}
			val, err := resolveValue(strings.TrimSpace(fields[0]), values)
			if err != nil {
				return err
			}
			pred, ok := blocks[strings.TrimSpace(fields[1])]
			if !ok {
				return fmt.Errorf("ir: unknown block %q in phi", fields[1])
			}
			AddIncoming(inst, pred, val)
		}
	case OpBr:
		target, ok := blocks[strings.TrimSpace(rest)]
		if !ok {
			return fmt.Errorf("ir: unknown branch target %q", rest)
		}
		inst.Operands = []Value{&BlockRef{Block: target}}
		AddSuccessor(inst.Parent, target)
	case OpCondBr:
		parts := splitTopLevelCommas(rest)
		if len(parts) != 3 {
			return fmt.Errorf("ir: condbr expects cond, true, false; got %q", rest)
		}
		cond, err := resolveValue(strings.TrimSpace(parts[0]), values)
		if err != nil {
			return err
		}
		t, ok := blocks[strings.TrimSpace(parts[1])]
		if !ok {
			return fmt.Errorf("ir: unknown block %q", parts[1])
		}
		fb, ok := blocks[strings.TrimSpace(parts[2])]
		if !ok {
			return fmt.Errorf("ir: unknown block %q", parts[2])
		}
		inst.Operands = []Value{cond, &BlockRef{Block: t}, &BlockRef{Block: fb}}
		linkOperands(inst)
		AddSuccessor(inst.Parent, t)
		AddSuccessor(inst.Parent, fb)
	case OpRet:
		rest = strings.TrimSpace(rest)
		if rest != "" {
			v, err := resolveValue(rest, values)
			if err != nil {
				return err
			}
			inst.Operands = []Value{v}
			linkOperands(inst)
		}
	case OpLoad:
		v, mem, err := resolveMemOperand(rest, values)
		if err != nil {
			return err
		}
		inst.Operands = []Value{}
		if v != nil {
			inst.Operands = append(inst.Operands, v)
		}
		inst.Mem = mem
		linkOperands(inst)
	case OpStore:
		parts := splitTopLevelCommas(rest)
		if len(parts) != 2 {
			return fmt.Errorf("ir: store expects value, address; got %q", rest)
		}
		// Printed stores carry the stored value's type first: "store i32 %v, [...]".
		valTok := strings.TrimSpace(parts[0])
		if fields := strings.Fields(valTok); len(fields) == 2 {
			typ, err := parseType(fields[0])
			if err != nil {
				return err
			}
			inst.Typ = typ
			valTok = fields[1]
		}
		val, err := resolveValue(valTok, values)
		if err != nil {
			return err
		}
		_, mem, err := resolveMemOperand(strings.TrimSpace(parts[1]), values)
		if err != nil {
			return err
		}
		inst.Operands = []Value{val}
		inst.Mem = mem
		linkOperands(inst)
	default:
		var operands []Value
		for _, part := range splitTopLevelCommas(rest) {
			v, err := resolveValue(strings.TrimSpace(part), values)
			if err != nil {
				return err
			}
			operands = append(operands, v)
		}
		inst.Operands = operands
		linkOperands(inst)
	}
	return nil
}

func resolveMemOperand(rest string, values map[string]Value) (Value, *MemRef, error) {
	m := memRe.FindStringSubmatch(strings.TrimSpace(rest))
	if m == nil {
		return nil, nil, nil
	}
	coeff, _ := strconv.ParseInt(m[2], 10, 64)
	constOff, _ := strconv.ParseInt(m[4], 10, 64)
	ivVal, err := resolveValue("%"+m[3], values)
	if err != nil {
		return nil, nil, err
	}
	ivInst, _ := AsInstruction(ivVal)
	return nil, &MemRef{Base: m[1], IV: ivInst, Coeff: coeff, Const: constOff}, nil
}

func resolveValue(tok string, values map[string]Value) (Value, error) {
	if strings.HasPrefix(tok, "%") {
		v, ok := values[tok]
		if !ok {
			return nil, fmt.Errorf("ir: unresolved value %q", tok)
		}
		return v, nil
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ir: expected value or integer literal, got %q", tok)
	}
	return NewConstInt(32, true, n), nil
}

func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	last := 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	if strings.TrimSpace(s[last:]) != "" || len(parts) > 0 {
		parts = append(parts, s[last:])
	}
	return parts
}

func parseArgTypes(s string) ([]Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var types []Type
	for _, part := range strings.Split(s, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		t, err := parseType(fields[0])
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func parseType(s string) (Type, error) {
	if len(s) < 2 {
		return Type{}, fmt.Errorf("ir: bad type %q", s)
	}
	signed := s[0] == 'i'
	if !signed && s[0] != 'u' {
		return Type{}, fmt.Errorf("ir: bad type %q", s)
	}
	width, err := strconv.Atoi(s[1:])
	if err != nil {
		return Type{}, fmt.Errorf("ir: bad type %q: %w", s, err)
	}
	return IntType(width, signed), nil
}

func opcodeByName(s string) (Opcode, bool) {
	switch s {
	case "add":
		return OpAdd, true
	case "sub":
		return OpSub, true
	case "mul":
		return OpMul, true
	case "sdiv":
		return OpSDiv, true
	case "udiv":
		return OpUDiv, true
	case "shl":
		return OpShl, true
	case "ashr":
		return OpAShr, true
	case "lshr":
		return OpLShr, true
	case "icmp":
		return OpICmp, true
	case "select":
		return OpSelect, true
	case "cast":
		return OpCast, true
	case "load":
		return OpLoad, true
	case "store":
		return OpStore, true
	case "call":
		return OpCall, true
	case "phi":
		return OpPhi, true
	case "br":
		return OpBr, true
	case "condbr":
		return OpCondBr, true
	case "ret":
		return OpRet, true
	default:
		return 0, false
	}
}
