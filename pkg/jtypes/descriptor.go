package jtypes

import (
	"errors"
	"fmt"
)

// ErrBadDescriptor is returned for malformed field or method descriptors
var ErrBadDescriptor = errors.New("bad descriptor")

// MethodType is a parsed method descriptor
type MethodType struct {
	Params []Type
	Return Type
}

// ArgSlots returns the number of local variable slots taken by the parameters
func (m MethodType) ArgSlots() int {
	n := 0
	for _, p := range m.Params {
		n += StackTypeOf(p).Category()
	}
	return n
}

// ParseField parses a single field descriptor such as "I" or "[Ljava/lang/String;"
func ParseField(desc string) (Type, error) {
	t, rest, err := parseOne(desc)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, fmt.Errorf("%w: trailing %q in %q", ErrBadDescriptor, rest, desc)
	}
	return t, nil
}

// ParseMethod parses a method descriptor such as "(ILjava/lang/String;)V"
func ParseMethod(desc string) (MethodType, error) {
	var mt MethodType
	if len(desc) == 0 || desc[0] != '(' {
		return mt, fmt.Errorf("%w: %q", ErrBadDescriptor, desc)
	}
	rest := desc[1:]
	for len(rest) > 0 && rest[0] != ')' {
		t, r, err := parseOne(rest)
		if err != nil {
			return mt, err
		}
		mt.Params = append(mt.Params, t)
		rest = r
	}
	if len(rest) == 0 {
		return mt, fmt.Errorf("%w: unterminated %q", ErrBadDescriptor, desc)
	}
	ret, err := ParseField(rest[1:])
	if err != nil {
		return mt, err
	}
	mt.Return = ret
	return mt, nil
}

// ParseClassOrArray parses the operand of checkcast/instanceof/anewarray,
// which is either an internal class name or an array descriptor.
func ParseClassOrArray(name string) (Type, error) {
	if len(name) > 0 && name[0] == '[' {
		return ParseField(name)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty class name", ErrBadDescriptor)
	}
	return Class{Name: name}, nil
}

func parseOne(s string) (Type, string, error) {
	if s == "" {
		return nil, "", fmt.Errorf("%w: unexpected end", ErrBadDescriptor)
	}
	switch s[0] {
	case 'Z':
		return Prim{Boolean}, s[1:], nil
	case 'B':
		return Prim{Byte}, s[1:], nil
	case 'C':
		return Prim{Char}, s[1:], nil
	case 'S':
		return Prim{Short}, s[1:], nil
	case 'I':
		return Prim{Int}, s[1:], nil
	case 'F':
		return Prim{Float}, s[1:], nil
	case 'J':
		return Prim{Long}, s[1:], nil
	case 'D':
		return Prim{Double}, s[1:], nil
	case 'V':
		return Prim{Void}, s[1:], nil
	case 'L':
		for i := 1; i < len(s); i++ {
			if s[i] == ';' {
				if i == 1 {
					break
				}
				return Class{Name: s[1:i]}, s[i+1:], nil
			}
		}
		return nil, "", fmt.Errorf("%w: bad class in %q", ErrBadDescriptor, s)
	case '[':
		elem, rest, err := parseOne(s[1:])
		if err != nil {
			return nil, "", err
		}
		return Array{Elem: elem}, rest, nil
	}
	return nil, "", fmt.Errorf("%w: unexpected %q", ErrBadDescriptor, s[0])
}
