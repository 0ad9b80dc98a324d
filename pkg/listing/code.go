package listing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/raymyers/ralph-decomp/pkg/bytecode"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

// shortForms are the mnemonics whose _N variants encode a local index
var shortForms = map[string]bool{
	"iload": true, "lload": true, "fload": true, "dload": true, "aload": true,
	"istore": true, "lstore": true, "fstore": true, "dstore": true, "astore": true,
}

// ParseCode parses the instruction lines of one method. firstLine is the
// document line of the first code line and is only used in errors.
func ParseCode(src string, firstLine int) ([]bytecode.Instruction, error) {
	var code []bytecode.Instruction
	for i, raw := range strings.Split(src, "\n") {
		text := strings.TrimSpace(stripComment(raw))
		if text == "" {
			continue
		}
		line := 0
		if firstLine > 0 {
			line = firstLine + i
		}
		ins, err := parseInstruction(text)
		if err != nil {
			return nil, &SyntaxError{Line: line, Msg: err.Error()}
		}
		if n := len(code); n > 0 && ins.Offset <= code[n-1].Offset {
			return nil, &SyntaxError{Line: line, Msg: fmt.Sprintf("offset %d is not increasing", ins.Offset)}
		}
		code = append(code, ins)
	}
	return code, nil
}

// stripComment removes a trailing // comment outside string literals
func stripComment(s string) string {
	inString := false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && inString:
			i++
		case s[i] == '"':
			inString = !inString
		case !inString && s[i] == '/' && i+1 < len(s) && s[i+1] == '/':
			return s[:i]
		}
	}
	return s
}

// fields splits operands on whitespace, keeping string literals and
// braced switch tables whole
func fields(s string) ([]string, error) {
	var out []string
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}
		start := i
		switch s[i] {
		case '"':
			i++
			for i < len(s) && s[i] != '"' {
				if s[i] == '\\' {
					i++
				}
				i++
			}
			if i >= len(s) {
				return nil, fmt.Errorf("unterminated string")
			}
			i++
		case '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated switch table")
			}
			i += end + 1
		default:
			for i < len(s) && s[i] != ' ' && s[i] != '\t' {
				i++
			}
		}
		out = append(out, s[start:i])
	}
	return out, nil
}

func parseInstruction(text string) (bytecode.Instruction, error) {
	var ins bytecode.Instruction
	colon := strings.IndexByte(text, ':')
	if colon < 0 {
		return ins, fmt.Errorf("expected \"offset: mnemonic\", got %q", text)
	}
	off, err := strconv.Atoi(strings.TrimSpace(text[:colon]))
	if err != nil || off < 0 {
		return ins, fmt.Errorf("bad offset %q", text[:colon])
	}
	ins.Offset = off

	toks, err := fields(text[colon+1:])
	if err != nil {
		return ins, err
	}
	if len(toks) == 0 {
		return ins, fmt.Errorf("missing mnemonic at offset %d", off)
	}
	name, args := toks[0], toks[1:]

	if i := strings.LastIndexByte(name, '_'); i > 0 && shortForms[name[:i]] {
		n, err := strconv.Atoi(name[i+1:])
		if err == nil {
			name = name[:i]
			args = append([]string{strconv.Itoa(n)}, args...)
		}
	}
	op, ok := bytecode.ByName(name)
	if !ok {
		return ins, fmt.Errorf("unknown mnemonic %q", name)
	}
	ins.Op = op
	info, _ := op.Info()

	want := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s takes %d operand(s), got %d", name, n, len(args))
		}
		return nil
	}
	ints := func(n int) error {
		if err := want(n); err != nil {
			return err
		}
		for _, a := range args {
			v, err := strconv.Atoi(a)
			if err != nil {
				return fmt.Errorf("%s: bad integer %q", name, a)
			}
			ins.Operands = append(ins.Operands, v)
		}
		return nil
	}

	switch info.Kind {
	case bytecode.OpNone:
		err = want(0)
	case bytecode.OpLocal, bytecode.OpImmediate, bytecode.OpBranch:
		err = ints(1)
	case bytecode.OpIinc:
		err = ints(2)
	case bytecode.OpConstant:
		ins.Ref, err = parseConstant(op, args)
	case bytecode.OpField:
		if err = want(1); err == nil {
			var owner, member, desc string
			owner, member, desc, err = parseMember(args[0])
			ins.Ref = bytecode.FieldRef{Owner: owner, Name: member, Descriptor: desc}
		}
	case bytecode.OpMethod:
		if err = want(1); err == nil {
			var owner, member, desc string
			owner, member, desc, err = parseMember(args[0])
			ins.Ref = bytecode.MethodRef{Owner: owner, Name: member, Descriptor: desc}
		}
	case bytecode.OpInterface:
		err = parseInterfaceCall(&ins, args)
	case bytecode.OpClass:
		if err = want(1); err == nil {
			ins.Ref = bytecode.ClassRef{Name: args[0]}
		}
	case bytecode.OpPrimArray:
		if err = want(1); err == nil {
			code, ok := bytecode.ArrayTypeCode(args[0])
			if !ok {
				return ins, fmt.Errorf("newarray: bad element type %q", args[0])
			}
			ins.Operands = []int{code}
		}
	case bytecode.OpMultiArray:
		if err = want(2); err == nil {
			dims, derr := strconv.Atoi(args[1])
			if derr != nil || dims < 1 {
				return ins, fmt.Errorf("multianewarray: bad dimensions %q", args[1])
			}
			ins.Ref = bytecode.ClassRef{Name: args[0]}
			ins.Operands = []int{dims}
		}
	case bytecode.OpSwitch:
		if err = want(1); err == nil {
			ins.Switch, err = parseSwitch(args[0])
		}
	}
	return ins, err
}

// parseMember splits owner.name:descriptor; the owner is empty for
// invokedynamic call sites written as name:descriptor
func parseMember(s string) (owner, name, desc string, err error) {
	colon := strings.IndexByte(s, ':')
	if colon < 0 {
		return "", "", "", fmt.Errorf("expected owner.name:descriptor, got %q", s)
	}
	ref, desc := s[:colon], s[colon+1:]
	if dot := strings.LastIndexByte(ref, '.'); dot >= 0 {
		owner, name = ref[:dot], ref[dot+1:]
	} else {
		name = ref
	}
	if name == "" || desc == "" {
		return "", "", "", fmt.Errorf("expected owner.name:descriptor, got %q", s)
	}
	return owner, name, desc, nil
}

// parseInterfaceCall reads the reference and the encoded argument count,
// which defaults to the count implied by the descriptor
func parseInterfaceCall(ins *bytecode.Instruction, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("invokeinterface takes a reference and an optional count")
	}
	owner, name, desc, err := parseMember(args[0])
	if err != nil {
		return err
	}
	ins.Ref = bytecode.MethodRef{Owner: owner, Name: name, Descriptor: desc, Interface: true}
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invokeinterface: bad count %q", args[1])
		}
		ins.Operands = []int{n}
		return nil
	}
	mt, err := jtypes.ParseMethod(desc)
	if err != nil {
		return err
	}
	ins.Operands = []int{mt.ArgSlots() + 1}
	return nil
}

func parseConstant(op bytecode.Opcode, args []string) (bytecode.Ref, error) {
	wide := op == bytecode.Ldc2W
	switch {
	case len(args) == 2 && args[0] == "class":
		return bytecode.Constant{Value: bytecode.ClassRef{Name: args[1]}}, nil
	case len(args) != 1:
		return nil, fmt.Errorf("%s takes one constant", op)
	}
	a := args[0]
	if strings.HasPrefix(a, "\"") {
		s, err := strconv.Unquote(a)
		if err != nil {
			return nil, fmt.Errorf("bad string constant %s", a)
		}
		return bytecode.Constant{Value: s}, nil
	}

	suffix := a[len(a)-1]
	body := a[:len(a)-1]
	switch suffix {
	case 'L', 'l':
		v, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad long constant %q", a)
		}
		return bytecode.Constant{Value: v}, nil
	case 'f', 'F':
		v, err := strconv.ParseFloat(body, 32)
		if err != nil {
			return nil, fmt.Errorf("bad float constant %q", a)
		}
		return bytecode.Constant{Value: float32(v)}, nil
	case 'd', 'D':
		v, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return nil, fmt.Errorf("bad double constant %q", a)
		}
		return bytecode.Constant{Value: v}, nil
	}

	if strings.ContainsAny(a, ".eE") {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("bad constant %q", a)
		}
		if wide {
			return bytecode.Constant{Value: v}, nil
		}
		return bytecode.Constant{Value: float32(v)}, nil
	}
	if wide {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad constant %q", a)
		}
		return bytecode.Constant{Value: v}, nil
	}
	v, err := strconv.ParseInt(a, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad constant %q", a)
	}
	return bytecode.Constant{Value: int32(v)}, nil
}

// parseSwitch reads "{ 1: 20, 2: 30, default: 40 }"
func parseSwitch(s string) (*bytecode.SwitchTable, error) {
	body := strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
	t := &bytecode.SwitchTable{Default: -1}
	for _, entry := range strings.Split(body, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		k, v, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("bad switch entry %q", entry)
		}
		target, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("bad switch target %q", v)
		}
		k = strings.TrimSpace(k)
		if k == "default" {
			t.Default = target
			continue
		}
		key, err := strconv.ParseInt(k, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad switch key %q", k)
		}
		t.Keys = append(t.Keys, int32(key))
		t.Targets = append(t.Targets, target)
	}
	if t.Default < 0 {
		return nil, fmt.Errorf("switch table without default")
	}
	return t, nil
}
