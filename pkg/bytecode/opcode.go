package bytecode

// Opcode is a JVM instruction opcode. Short forms such as iload_1 are
// normalized to their long form (iload 1) by the decoder.
type Opcode uint8

const (
	Nop             Opcode = 0x00
	AconstNull      Opcode = 0x01
	IconstM1        Opcode = 0x02
	Iconst0         Opcode = 0x03
	Iconst1         Opcode = 0x04
	Iconst2         Opcode = 0x05
	Iconst3         Opcode = 0x06
	Iconst4         Opcode = 0x07
	Iconst5         Opcode = 0x08
	Lconst0         Opcode = 0x09
	Lconst1         Opcode = 0x0a
	Fconst0         Opcode = 0x0b
	Fconst1         Opcode = 0x0c
	Fconst2         Opcode = 0x0d
	Dconst0         Opcode = 0x0e
	Dconst1         Opcode = 0x0f
	Bipush          Opcode = 0x10
	Sipush          Opcode = 0x11
	Ldc             Opcode = 0x12
	LdcW            Opcode = 0x13
	Ldc2W           Opcode = 0x14
	Iload           Opcode = 0x15
	Lload           Opcode = 0x16
	Fload           Opcode = 0x17
	Dload           Opcode = 0x18
	Aload           Opcode = 0x19
	Iaload          Opcode = 0x2e
	Laload          Opcode = 0x2f
	Faload          Opcode = 0x30
	Daload          Opcode = 0x31
	Aaload          Opcode = 0x32
	Baload          Opcode = 0x33
	Caload          Opcode = 0x34
	Saload          Opcode = 0x35
	Istore          Opcode = 0x36
	Lstore          Opcode = 0x37
	Fstore          Opcode = 0x38
	Dstore          Opcode = 0x39
	Astore          Opcode = 0x3a
	Iastore         Opcode = 0x4f
	Lastore         Opcode = 0x50
	Fastore         Opcode = 0x51
	Dastore         Opcode = 0x52
	Aastore         Opcode = 0x53
	Bastore         Opcode = 0x54
	Castore         Opcode = 0x55
	Sastore         Opcode = 0x56
	Pop             Opcode = 0x57
	Pop2            Opcode = 0x58
	Dup             Opcode = 0x59
	DupX1           Opcode = 0x5a
	DupX2           Opcode = 0x5b
	Dup2            Opcode = 0x5c
	Dup2X1          Opcode = 0x5d
	Dup2X2          Opcode = 0x5e
	Swap            Opcode = 0x5f
	Iadd            Opcode = 0x60
	Ladd            Opcode = 0x61
	Fadd            Opcode = 0x62
	Dadd            Opcode = 0x63
	Isub            Opcode = 0x64
	Lsub            Opcode = 0x65
	Fsub            Opcode = 0x66
	Dsub            Opcode = 0x67
	Imul            Opcode = 0x68
	Lmul            Opcode = 0x69
	Fmul            Opcode = 0x6a
	Dmul            Opcode = 0x6b
	Idiv            Opcode = 0x6c
	Ldiv            Opcode = 0x6d
	Fdiv            Opcode = 0x6e
	Ddiv            Opcode = 0x6f
	Irem            Opcode = 0x70
	Lrem            Opcode = 0x71
	Frem            Opcode = 0x72
	Drem            Opcode = 0x73
	Ineg            Opcode = 0x74
	Lneg            Opcode = 0x75
	Fneg            Opcode = 0x76
	Dneg            Opcode = 0x77
	Ishl            Opcode = 0x78
	Lshl            Opcode = 0x79
	Ishr            Opcode = 0x7a
	Lshr            Opcode = 0x7b
	Iushr           Opcode = 0x7c
	Lushr           Opcode = 0x7d
	Iand            Opcode = 0x7e
	Land            Opcode = 0x7f
	Ior             Opcode = 0x80
	Lor             Opcode = 0x81
	Ixor            Opcode = 0x82
	Lxor            Opcode = 0x83
	Iinc            Opcode = 0x84
	I2l             Opcode = 0x85
	I2f             Opcode = 0x86
	I2d             Opcode = 0x87
	L2i             Opcode = 0x88
	L2f             Opcode = 0x89
	L2d             Opcode = 0x8a
	F2i             Opcode = 0x8b
	F2l             Opcode = 0x8c
	F2d             Opcode = 0x8d
	D2i             Opcode = 0x8e
	D2l             Opcode = 0x8f
	D2f             Opcode = 0x90
	I2b             Opcode = 0x91
	I2c             Opcode = 0x92
	I2s             Opcode = 0x93
	Lcmp            Opcode = 0x94
	Fcmpl           Opcode = 0x95
	Fcmpg           Opcode = 0x96
	Dcmpl           Opcode = 0x97
	Dcmpg           Opcode = 0x98
	Ifeq            Opcode = 0x99
	Ifne            Opcode = 0x9a
	Iflt            Opcode = 0x9b
	Ifge            Opcode = 0x9c
	Ifgt            Opcode = 0x9d
	Ifle            Opcode = 0x9e
	IfIcmpeq        Opcode = 0x9f
	IfIcmpne        Opcode = 0xa0
	IfIcmplt        Opcode = 0xa1
	IfIcmpge        Opcode = 0xa2
	IfIcmpgt        Opcode = 0xa3
	IfIcmple        Opcode = 0xa4
	IfAcmpeq        Opcode = 0xa5
	IfAcmpne        Opcode = 0xa6
	Goto            Opcode = 0xa7
	Jsr             Opcode = 0xa8
	Ret             Opcode = 0xa9
	Tableswitch     Opcode = 0xaa
	Lookupswitch    Opcode = 0xab
	Ireturn         Opcode = 0xac
	Lreturn         Opcode = 0xad
	Freturn         Opcode = 0xae
	Dreturn         Opcode = 0xaf
	Areturn         Opcode = 0xb0
	Return          Opcode = 0xb1
	Getstatic       Opcode = 0xb2
	Putstatic       Opcode = 0xb3
	Getfield        Opcode = 0xb4
	Putfield        Opcode = 0xb5
	Invokevirtual   Opcode = 0xb6
	Invokespecial   Opcode = 0xb7
	Invokestatic    Opcode = 0xb8
	Invokeinterface Opcode = 0xb9
	Invokedynamic   Opcode = 0xba
	New             Opcode = 0xbb
	Newarray        Opcode = 0xbc
	Anewarray       Opcode = 0xbd
	Arraylength     Opcode = 0xbe
	Athrow          Opcode = 0xbf
	Checkcast       Opcode = 0xc0
	Instanceof      Opcode = 0xc1
	Monitorenter    Opcode = 0xc2
	Monitorexit     Opcode = 0xc3
	Multianewarray  Opcode = 0xc5
	Ifnull          Opcode = 0xc6
	Ifnonnull       Opcode = 0xc7
)

// OperandKind describes how an instruction's operands are encoded
type OperandKind int

const (
	OpNone       OperandKind = iota
	OpLocal                  // local variable index
	OpImmediate              // bipush/sipush value
	OpBranch                 // absolute branch target offset
	OpConstant               // ldc family
	OpField                  // field reference
	OpMethod                 // method reference
	OpInterface              // interface method reference plus encoded arg count
	OpClass                  // class reference
	OpPrimArray              // newarray element type code
	OpMultiArray             // class reference plus dimension count
	OpIinc                   // local index plus signed increment
	OpSwitch                 // jump table
)

// Flow describes how control leaves an instruction
type Flow int

const (
	FlowNext   Flow = iota // falls through to the next instruction
	FlowBranch             // conditional branch, falls through otherwise
	FlowGoto               // unconditional jump
	FlowSwitch             // multi-way jump
	FlowReturn             // leaves the method
	FlowThrow              // raises an exception
)

// Info is the static description of an opcode. Pops and Pushes are in
// stack slots; -1 marks an effect that depends on a resolved reference.
type Info struct {
	Name   string
	Kind   OperandKind
	Pops   int
	Pushes int
	Flow   Flow
}

var infos = map[Opcode]Info{
	Nop:             {"nop", OpNone, 0, 0, FlowNext},
	AconstNull:      {"aconst_null", OpNone, 0, 1, FlowNext},
	IconstM1:        {"iconst_m1", OpNone, 0, 1, FlowNext},
	Iconst0:         {"iconst_0", OpNone, 0, 1, FlowNext},
	Iconst1:         {"iconst_1", OpNone, 0, 1, FlowNext},
	Iconst2:         {"iconst_2", OpNone, 0, 1, FlowNext},
	Iconst3:         {"iconst_3", OpNone, 0, 1, FlowNext},
	Iconst4:         {"iconst_4", OpNone, 0, 1, FlowNext},
	Iconst5:         {"iconst_5", OpNone, 0, 1, FlowNext},
	Lconst0:         {"lconst_0", OpNone, 0, 2, FlowNext},
	Lconst1:         {"lconst_1", OpNone, 0, 2, FlowNext},
	Fconst0:         {"fconst_0", OpNone, 0, 1, FlowNext},
	Fconst1:         {"fconst_1", OpNone, 0, 1, FlowNext},
	Fconst2:         {"fconst_2", OpNone, 0, 1, FlowNext},
	Dconst0:         {"dconst_0", OpNone, 0, 2, FlowNext},
	Dconst1:         {"dconst_1", OpNone, 0, 2, FlowNext},
	Bipush:          {"bipush", OpImmediate, 0, 1, FlowNext},
	Sipush:          {"sipush", OpImmediate, 0, 1, FlowNext},
	Ldc:             {"ldc", OpConstant, 0, 1, FlowNext},
	LdcW:            {"ldc_w", OpConstant, 0, 1, FlowNext},
	Ldc2W:           {"ldc2_w", OpConstant, 0, 2, FlowNext},
	Iload:           {"iload", OpLocal, 0, 1, FlowNext},
	Lload:           {"lload", OpLocal, 0, 2, FlowNext},
	Fload:           {"fload", OpLocal, 0, 1, FlowNext},
	Dload:           {"dload", OpLocal, 0, 2, FlowNext},
	Aload:           {"aload", OpLocal, 0, 1, FlowNext},
	Iaload:          {"iaload", OpNone, 2, 1, FlowNext},
	Laload:          {"laload", OpNone, 2, 2, FlowNext},
	Faload:          {"faload", OpNone, 2, 1, FlowNext},
	Daload:          {"daload", OpNone, 2, 2, FlowNext},
	Aaload:          {"aaload", OpNone, 2, 1, FlowNext},
	Baload:          {"baload", OpNone, 2, 1, FlowNext},
	Caload:          {"caload", OpNone, 2, 1, FlowNext},
	Saload:          {"saload", OpNone, 2, 1, FlowNext},
	Istore:          {"istore", OpLocal, 1, 0, FlowNext},
	Lstore:          {"lstore", OpLocal, 2, 0, FlowNext},
	Fstore:          {"fstore", OpLocal, 1, 0, FlowNext},
	Dstore:          {"dstore", OpLocal, 2, 0, FlowNext},
	Astore:          {"astore", OpLocal, 1, 0, FlowNext},
	Iastore:         {"iastore", OpNone, 3, 0, FlowNext},
	Lastore:         {"lastore", OpNone, 4, 0, FlowNext},
	Fastore:         {"fastore", OpNone, 3, 0, FlowNext},
	Dastore:         {"dastore", OpNone, 4, 0, FlowNext},
	Aastore:         {"aastore", OpNone, 3, 0, FlowNext},
	Bastore:         {"bastore", OpNone, 3, 0, FlowNext},
	Castore:         {"castore", OpNone, 3, 0, FlowNext},
	Sastore:         {"sastore", OpNone, 3, 0, FlowNext},
	Pop:             {"pop", OpNone, 1, 0, FlowNext},
	Pop2:            {"pop2", OpNone, 2, 0, FlowNext},
	Dup:             {"dup", OpNone, 1, 2, FlowNext},
	DupX1:           {"dup_x1", OpNone, 2, 3, FlowNext},
	DupX2:           {"dup_x2", OpNone, 3, 4, FlowNext},
	Dup2:            {"dup2", OpNone, 2, 4, FlowNext},
	Dup2X1:          {"dup2_x1", OpNone, 3, 5, FlowNext},
	Dup2X2:          {"dup2_x2", OpNone, 4, 6, FlowNext},
	Swap:            {"swap", OpNone, 2, 2, FlowNext},
	Iadd:            {"iadd", OpNone, 2, 1, FlowNext},
	Ladd:            {"ladd", OpNone, 4, 2, FlowNext},
	Fadd:            {"fadd", OpNone, 2, 1, FlowNext},
	Dadd:            {"dadd", OpNone, 4, 2, FlowNext},
	Isub:            {"isub", OpNone, 2, 1, FlowNext},
	Lsub:            {"lsub", OpNone, 4, 2, FlowNext},
	Fsub:            {"fsub", OpNone, 2, 1, FlowNext},
	Dsub:            {"dsub", OpNone, 4, 2, FlowNext},
	Imul:            {"imul", OpNone, 2, 1, FlowNext},
	Lmul:            {"lmul", OpNone, 4, 2, FlowNext},
	Fmul:            {"fmul", OpNone, 2, 1, FlowNext},
	Dmul:            {"dmul", OpNone, 4, 2, FlowNext},
	Idiv:            {"idiv", OpNone, 2, 1, FlowNext},
	Ldiv:            {"ldiv", OpNone, 4, 2, FlowNext},
	Fdiv:            {"fdiv", OpNone, 2, 1, FlowNext},
	Ddiv:            {"ddiv", OpNone, 4, 2, FlowNext},
	Irem:            {"irem", OpNone, 2, 1, FlowNext},
	Lrem:            {"lrem", OpNone, 4, 2, FlowNext},
	Frem:            {"frem", OpNone, 2, 1, FlowNext},
	Drem:            {"drem", OpNone, 4, 2, FlowNext},
	Ineg:            {"ineg", OpNone, 1, 1, FlowNext},
	Lneg:            {"lneg", OpNone, 2, 2, FlowNext},
	Fneg:            {"fneg", OpNone, 1, 1, FlowNext},
	Dneg:            {"dneg", OpNone, 2, 2, FlowNext},
	Ishl:            {"ishl", OpNone, 2, 1, FlowNext},
	Lshl:            {"lshl", OpNone, 3, 2, FlowNext},
	Ishr:            {"ishr", OpNone, 2, 1, FlowNext},
	Lshr:            {"lshr", OpNone, 3, 2, FlowNext},
	Iushr:           {"iushr", OpNone, 2, 1, FlowNext},
	Lushr:           {"lushr", OpNone, 3, 2, FlowNext},
	Iand:            {"iand", OpNone, 2, 1, FlowNext},
	Land:            {"land", OpNone, 4, 2, FlowNext},
	Ior:             {"ior", OpNone, 2, 1, FlowNext},
	Lor:             {"lor", OpNone, 4, 2, FlowNext},
	Ixor:            {"ixor", OpNone, 2, 1, FlowNext},
	Lxor:            {"lxor", OpNone, 4, 2, FlowNext},
	Iinc:            {"iinc", OpIinc, 0, 0, FlowNext},
	I2l:             {"i2l", OpNone, 1, 2, FlowNext},
	I2f:             {"i2f", OpNone, 1, 1, FlowNext},
	I2d:             {"i2d", OpNone, 1, 2, FlowNext},
	L2i:             {"l2i", OpNone, 2, 1, FlowNext},
	L2f:             {"l2f", OpNone, 2, 1, FlowNext},
	L2d:             {"l2d", OpNone, 2, 2, FlowNext},
	F2i:             {"f2i", OpNone, 1, 1, FlowNext},
	F2l:             {"f2l", OpNone, 1, 2, FlowNext},
	F2d:             {"f2d", OpNone, 1, 2, FlowNext},
	D2i:             {"d2i", OpNone, 2, 1, FlowNext},
	D2l:             {"d2l", OpNone, 2, 2, FlowNext},
	D2f:             {"d2f", OpNone, 2, 1, FlowNext},
	I2b:             {"i2b", OpNone, 1, 1, FlowNext},
	I2c:             {"i2c", OpNone, 1, 1, FlowNext},
	I2s:             {"i2s", OpNone, 1, 1, FlowNext},
	Lcmp:            {"lcmp", OpNone, 4, 1, FlowNext},
	Fcmpl:           {"fcmpl", OpNone, 2, 1, FlowNext},
	Fcmpg:           {"fcmpg", OpNone, 2, 1, FlowNext},
	Dcmpl:           {"dcmpl", OpNone, 4, 1, FlowNext},
	Dcmpg:           {"dcmpg", OpNone, 4, 1, FlowNext},
	Ifeq:            {"ifeq", OpBranch, 1, 0, FlowBranch},
	Ifne:            {"ifne", OpBranch, 1, 0, FlowBranch},
	Iflt:            {"iflt", OpBranch, 1, 0, FlowBranch},
	Ifge:            {"ifge", OpBranch, 1, 0, FlowBranch},
	Ifgt:            {"ifgt", OpBranch, 1, 0, FlowBranch},
	Ifle:            {"ifle", OpBranch, 1, 0, FlowBranch},
	IfIcmpeq:        {"if_icmpeq", OpBranch, 2, 0, FlowBranch},
	IfIcmpne:        {"if_icmpne", OpBranch, 2, 0, FlowBranch},
	IfIcmplt:        {"if_icmplt", OpBranch, 2, 0, FlowBranch},
	IfIcmpge:        {"if_icmpge", OpBranch, 2, 0, FlowBranch},
	IfIcmpgt:        {"if_icmpgt", OpBranch, 2, 0, FlowBranch},
	IfIcmple:        {"if_icmple", OpBranch, 2, 0, FlowBranch},
	IfAcmpeq:        {"if_acmpeq", OpBranch, 2, 0, FlowBranch},
	IfAcmpne:        {"if_acmpne", OpBranch, 2, 0, FlowBranch},
	Goto:            {"goto", OpBranch, 0, 0, FlowGoto},
	Jsr:             {"jsr", OpBranch, 0, 1, FlowGoto},
	Ret:             {"ret", OpLocal, 0, 0, FlowGoto},
	Tableswitch:     {"tableswitch", OpSwitch, 1, 0, FlowSwitch},
	Lookupswitch:    {"lookupswitch", OpSwitch, 1, 0, FlowSwitch},
	Ireturn:         {"ireturn", OpNone, 1, 0, FlowReturn},
	Lreturn:         {"lreturn", OpNone, 2, 0, FlowReturn},
	Freturn:         {"freturn", OpNone, 1, 0, FlowReturn},
	Dreturn:         {"dreturn", OpNone, 2, 0, FlowReturn},
	Areturn:         {"areturn", OpNone, 1, 0, FlowReturn},
	Return:          {"return", OpNone, 0, 0, FlowReturn},
	Getstatic:       {"getstatic", OpField, 0, -1, FlowNext},
	Putstatic:       {"putstatic", OpField, -1, 0, FlowNext},
	Getfield:        {"getfield", OpField, 1, -1, FlowNext},
	Putfield:        {"putfield", OpField, -1, 0, FlowNext},
	Invokevirtual:   {"invokevirtual", OpMethod, -1, -1, FlowNext},
	Invokespecial:   {"invokespecial", OpMethod, -1, -1, FlowNext},
	Invokestatic:    {"invokestatic", OpMethod, -1, -1, FlowNext},
	Invokeinterface: {"invokeinterface", OpInterface, -1, -1, FlowNext},
	Invokedynamic:   {"invokedynamic", OpMethod, -1, -1, FlowNext},
	New:             {"new", OpClass, 0, 1, FlowNext},
	Newarray:        {"newarray", OpPrimArray, 1, 1, FlowNext},
	Anewarray:       {"anewarray", OpClass, 1, 1, FlowNext},
	Arraylength:     {"arraylength", OpNone, 1, 1, FlowNext},
	Athrow:          {"athrow", OpNone, 1, 0, FlowThrow},
	Checkcast:       {"checkcast", OpClass, 1, 1, FlowNext},
	Instanceof:      {"instanceof", OpClass, 1, 1, FlowNext},
	Monitorenter:    {"monitorenter", OpNone, 1, 0, FlowNext},
	Monitorexit:     {"monitorexit", OpNone, 1, 0, FlowNext},
	Multianewarray:  {"multianewarray", OpMultiArray, -1, 1, FlowNext},
	Ifnull:          {"ifnull", OpBranch, 1, 0, FlowBranch},
	Ifnonnull:       {"ifnonnull", OpBranch, 1, 0, FlowBranch},
}

var byName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(infos))
	for op, info := range infos {
		m[info.Name] = op
	}
	return m
}()

// Info returns the static description of op
func (op Opcode) Info() (Info, bool) {
	info, ok := infos[op]
	return info, ok
}

func (op Opcode) String() string {
	if info, ok := infos[op]; ok {
		return info.Name
	}
	return "unknown"
}

// ByName returns the opcode with the given mnemonic
func ByName(name string) (Opcode, bool) {
	op, ok := byName[name]
	return op, ok
}
