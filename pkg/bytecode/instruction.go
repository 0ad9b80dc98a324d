// Package bytecode holds the decoded form of JVM method bodies: typed
// instructions with resolved constant-pool references, the exception
// table, and the per-opcode stack effect.
package bytecode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

// ErrCountMismatch is returned when an invokeinterface count operand
// disagrees with the slots implied by the method descriptor.
var ErrCountMismatch = errors.New("invokeinterface count mismatch")

// Ref is a resolved constant-pool reference
type Ref interface {
	implRef()
	String() string
}

// FieldRef names a field
type FieldRef struct {
	Owner      string
	Name       string
	Descriptor string
}

// MethodRef names a method. Interface is set for interface-owned methods.
type MethodRef struct {
	Owner      string
	Name       string
	Descriptor string
	Interface  bool
}

// ClassRef names a class or array type
type ClassRef struct {
	Name string
}

// Constant is a loadable constant: int32, int64, float32, float64,
// string or ClassRef (a class literal).
type Constant struct {
	Value any
}

func (FieldRef) implRef()  {}
func (MethodRef) implRef() {}
func (ClassRef) implRef()  {}
func (Constant) implRef()  {}

func (r FieldRef) String() string  { return r.Owner + "." + r.Name + ":" + r.Descriptor }
func (r MethodRef) String() string { return r.Owner + "." + r.Name + ":" + r.Descriptor }
func (r ClassRef) String() string  { return r.Name }

func (c Constant) String() string {
	switch v := c.Value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case int64:
		return fmt.Sprintf("%dL", v)
	case float32:
		return fmt.Sprintf("%gf", v)
	case float64:
		return fmt.Sprintf("%gd", v)
	case ClassRef:
		return "class " + v.Name
	}
	return fmt.Sprint(c.Value)
}

// SwitchTable holds the keys and targets of a tableswitch or lookupswitch
type SwitchTable struct {
	Keys    []int32
	Targets []int
	Default int
}

// Instruction is a decoded instruction. Branch operands hold absolute
// target offsets. Instructions are immutable once decoded.
type Instruction struct {
	Op       Opcode
	Offset   int
	Operands []int
	Ref      Ref
	Switch   *SwitchTable
}

// Targets returns the branch targets of the instruction, default last for switches
func (ins *Instruction) Targets() []int {
	info, _ := ins.Op.Info()
	switch info.Flow {
	case FlowBranch, FlowGoto:
		if info.Kind == OpBranch && len(ins.Operands) > 0 {
			return []int{ins.Operands[0]}
		}
	case FlowSwitch:
		if ins.Switch != nil {
			out := append([]int(nil), ins.Switch.Targets...)
			return append(out, ins.Switch.Default)
		}
	}
	return nil
}

func (ins *Instruction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d: %s", ins.Offset, ins.Op)
	for _, o := range ins.Operands {
		fmt.Fprintf(&sb, " %d", o)
	}
	if ins.Ref != nil {
		sb.WriteString(" " + ins.Ref.String())
	}
	if ins.Switch != nil {
		sb.WriteString(" {")
		for i, k := range ins.Switch.Keys {
			fmt.Fprintf(&sb, " %d: %d,", k, ins.Switch.Targets[i])
		}
		fmt.Fprintf(&sb, " default: %d }", ins.Switch.Default)
	}
	return sb.String()
}

// ExceptionEntry is one row of a method's exception table. The protected
// range is [Start, End). An empty CatchType catches everything.
type ExceptionEntry struct {
	Start     int
	End       int
	Handler   int
	CatchType string
}

// Method is a decoded method body
type Method struct {
	Owner      string
	Name       string
	Descriptor string
	Static     bool
	MaxLocals  int
	Code       []Instruction
	Exceptions []ExceptionEntry
}

// ID returns a printable method identity
func (m *Method) ID() string {
	return m.Name + m.Descriptor
}

// StackEffect returns the number of stack slots popped and pushed by ins.
// Reference-dependent effects are derived from the resolved descriptor.
// For invokeinterface the encoded count operand, which includes the
// receiver, is checked against the descriptor rather than trusted.
func StackEffect(ins *Instruction) (pops, pushes int, err error) {
	info, ok := ins.Op.Info()
	if !ok {
		return 0, 0, fmt.Errorf("unknown opcode 0x%02x", uint8(ins.Op))
	}
	pops, pushes = info.Pops, info.Pushes
	switch info.Kind {
	case OpField:
		ref, ok := ins.Ref.(FieldRef)
		if !ok {
			return 0, 0, fmt.Errorf("%s without field reference", ins.Op)
		}
		t, err := jtypes.ParseField(ref.Descriptor)
		if err != nil {
			return 0, 0, err
		}
		size := jtypes.StackTypeOf(t).Category()
		switch ins.Op {
		case Getstatic:
			pushes = size
		case Getfield:
			pushes = size
		case Putstatic:
			pops = size
		case Putfield:
			pops = size + 1
		}
	case OpMethod, OpInterface:
		ref, ok := ins.Ref.(MethodRef)
		if !ok {
			return 0, 0, fmt.Errorf("%s without method reference", ins.Op)
		}
		mt, err := jtypes.ParseMethod(ref.Descriptor)
		if err != nil {
			return 0, 0, err
		}
		pops = mt.ArgSlots()
		if ins.Op != Invokestatic && ins.Op != Invokedynamic {
			pops++
		}
		pushes = jtypes.StackTypeOf(mt.Return).Category()
		if ins.Op == Invokeinterface {
			if len(ins.Operands) == 0 {
				return 0, 0, fmt.Errorf("%w: missing count operand", ErrCountMismatch)
			}
			if ins.Operands[0] != pops {
				return 0, 0, fmt.Errorf("%w: count %d, descriptor needs %d", ErrCountMismatch, ins.Operands[0], pops)
			}
		}
	case OpMultiArray:
		if len(ins.Operands) == 0 {
			return 0, 0, fmt.Errorf("multianewarray without dimensions")
		}
		pops = ins.Operands[0]
	}
	return pops, pushes, nil
}
