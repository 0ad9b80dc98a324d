// Package jtypes defines the JVM type system used by the decompiler:
// primitive, class and array types, descriptor parsing and the
// implicit-conversion rules consulted when eliding casts.
package jtypes

import "strings"

// Type is the interface for all JVM types
type Type interface {
	implType()
	String() string
}

// PrimKind enumerates the primitive (raw) types
type PrimKind int

const (
	Boolean PrimKind = iota
	Byte
	Char
	Short
	Int
	Float
	Long
	Double
	Void
	Null // type of the null literal
)

var primNames = []string{"boolean", "byte", "char", "short", "int", "float", "long", "double", "void", "null"}

var primDescriptors = []byte{'Z', 'B', 'C', 'S', 'I', 'F', 'J', 'D', 'V', 0}

func (k PrimKind) String() string {
	if int(k) < len(primNames) {
		return primNames[k]
	}
	return "?"
}

// Prim is a primitive type
type Prim struct {
	Kind PrimKind
}

// Class is a reference type named by its internal name (java/lang/String)
type Class struct {
	Name string
}

// Array is an array type
type Array struct {
	Elem Type
}

func (Prim) implType()  {}
func (Class) implType() {}
func (Array) implType() {}

func (p Prim) String() string { return p.Kind.String() }

func (c Class) String() string { return strings.ReplaceAll(c.Name, "/", ".") }

func (a Array) String() string {
	if a.Elem == nil {
		return "?[]"
	}
	return a.Elem.String() + "[]"
}

// StackType is the computational type of a value on the operand stack
type StackType int

const (
	StackInt StackType = iota
	StackFloat
	StackLong
	StackDouble
	StackRef
	StackVoid
)

func (s StackType) String() string {
	switch s {
	case StackInt:
		return "int"
	case StackFloat:
		return "float"
	case StackLong:
		return "long"
	case StackDouble:
		return "double"
	case StackRef:
		return "ref"
	}
	return "void"
}

// Category returns the number of stack slots occupied by a value of this type
func (s StackType) Category() int {
	switch s {
	case StackLong, StackDouble:
		return 2
	case StackVoid:
		return 0
	}
	return 1
}

// StackTypeOf returns the computational type of t
func StackTypeOf(t Type) StackType {
	switch t := t.(type) {
	case Prim:
		switch t.Kind {
		case Float:
			return StackFloat
		case Long:
			return StackLong
		case Double:
			return StackDouble
		case Void:
			return StackVoid
		case Null:
			return StackRef
		}
		return StackInt
	case nil:
		return StackRef
	}
	return StackRef
}

// Common type constructors

func Bool() Type { return Prim{Boolean} }

func IntT() Type { return Prim{Int} }

func LongT() Type { return Prim{Long} }

func FloatT() Type { return Prim{Float} }

func DoubleT() Type { return Prim{Double} }

func VoidT() Type { return Prim{Void} }

func NullT() Type { return Prim{Null} }

func Object() Type { return Class{Name: "java/lang/Object"} }

func StringT() Type { return Class{Name: "java/lang/String"} }

func Throwable() Type { return Class{Name: "java/lang/Throwable"} }

// ClassOf returns the class type with the given internal name
func ClassOf(name string) Type { return Class{Name: name} }

// ArrayOf returns an array type of the given dimensions
func ArrayOf(elem Type, dims int) Type {
	t := elem
	for i := 0; i < dims; i++ {
		t = Array{Elem: t}
	}
	return t
}

// Equal checks if two types are equal
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch ta := a.(type) {
	case Prim:
		tb, ok := b.(Prim)
		return ok && ta.Kind == tb.Kind
	case Class:
		tb, ok := b.(Class)
		return ok && ta.Name == tb.Name
	case Array:
		tb, ok := b.(Array)
		return ok && Equal(ta.Elem, tb.Elem)
	}
	return false
}

// IsReference reports whether t is a class, array or null type
func IsReference(t Type) bool {
	switch t := t.(type) {
	case Class, Array:
		return true
	case Prim:
		return t.Kind == Null
	}
	return false
}

// Descriptor returns the field descriptor for t
func Descriptor(t Type) string {
	switch t := t.(type) {
	case Prim:
		if d := primDescriptors[t.Kind]; d != 0 {
			return string(d)
		}
	case Class:
		return "L" + t.Name + ";"
	case Array:
		return "[" + Descriptor(t.Elem)
	}
	return ""
}

// Innermost strips every array dimension from t
func Innermost(t Type) (Type, int) {
	dims := 0
	for {
		a, ok := t.(Array)
		if !ok {
			return t, dims
		}
		t = a.Elem
		dims++
	}
}

// ShortName returns the unqualified name of a type (String for java/lang/String)
func ShortName(t Type) string {
	switch t := t.(type) {
	case Class:
		name := t.Name
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		if i := strings.LastIndexByte(name, '$'); i >= 0 && i+1 < len(name) {
			name = name[i+1:]
		}
		return name
	case Array:
		return ShortName(t.Elem) + "Array"
	case nil:
		return "var"
	}
	return t.String()
}

// SuggestVarName proposes a local variable name for a value of type t.
// The first non-digit character of the short name is lowercased.
func SuggestVarName(t Type) string {
	if p, ok := t.(Prim); ok {
		switch p.Kind {
		case Boolean:
			return "bl"
		case Byte:
			return "by"
		case Char:
			return "c"
		case Short:
			return "s"
		case Int:
			return "n"
		case Long:
			return "l"
		case Float:
			return "f"
		case Double:
			return "d"
		}
		return "v"
	}
	name := []byte(ShortName(t))
	for i, c := range name {
		if c >= '0' && c <= '9' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			name[i] = c - 'A' + 'a'
		}
		break
	}
	return string(name)
}
