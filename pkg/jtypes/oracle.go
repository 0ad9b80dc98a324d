package jtypes

// Oracle answers subtype questions about classes that live outside the
// method being decompiled. A false second result from ResolvedSupertypes
// means the hierarchy is unknown; callers must treat that permissively.
type Oracle interface {
	IsAssignable(from, to Type) bool
	ResolvedSupertypes(t Type) ([]Type, bool)
}

var boxes = map[PrimKind]string{
	Boolean: "java/lang/Boolean",
	Byte:    "java/lang/Byte",
	Char:    "java/lang/Character",
	Short:   "java/lang/Short",
	Int:     "java/lang/Integer",
	Float:   "java/lang/Float",
	Long:    "java/lang/Long",
	Double:  "java/lang/Double",
}

// widening lists the primitive widening conversions (JLS 5.1.2)
var widening = map[PrimKind][]PrimKind{
	Byte:  {Short, Int, Long, Float, Double},
	Short: {Int, Long, Float, Double},
	Char:  {Int, Long, Float, Double},
	Int:   {Long, Float, Double},
	Long:  {Float, Double},
	Float: {Double},
}

// Boxed returns the wrapper class of a primitive kind
func Boxed(k PrimKind) (Type, bool) {
	name, ok := boxes[k]
	if !ok {
		return nil, false
	}
	return Class{Name: name}, true
}

// Unboxed returns the primitive kind wrapped by class t
func Unboxed(t Type) (PrimKind, bool) {
	c, ok := t.(Class)
	if !ok {
		return 0, false
	}
	for k, name := range boxes {
		if name == c.Name {
			return k, true
		}
	}
	return 0, false
}

func widens(from, to PrimKind) bool {
	if from == to {
		return true
	}
	for _, k := range widening[from] {
		if k == to {
			return true
		}
	}
	return false
}

// ImplicitlyCastsTo reports whether a value of type from can be used where
// to is expected without an explicit cast. Unknown hierarchy answers false,
// which keeps the cast in the output.
func ImplicitlyCastsTo(o Oracle, from, to Type) bool {
	if from == nil || to == nil {
		return false
	}
	if Equal(from, to) {
		return true
	}
	switch f := from.(type) {
	case Prim:
		if f.Kind == Null {
			return IsReference(to)
		}
		switch t := to.(type) {
		case Prim:
			return widens(f.Kind, t.Kind)
		case Class:
			box, ok := Boxed(f.Kind)
			if !ok {
				return false
			}
			if Equal(box, t) || t.Name == "java/lang/Object" {
				return true
			}
			return t.Name == "java/lang/Number" && f.Kind != Boolean && f.Kind != Char
		}
		return false
	case Class:
		if p, ok := to.(Prim); ok {
			k, ok := Unboxed(f)
			return ok && widens(k, p.Kind)
		}
		if c, ok := to.(Class); ok && c.Name == "java/lang/Object" {
			return true
		}
		if o == nil {
			return false
		}
		return o.IsAssignable(from, to)
	case Array:
		switch t := to.(type) {
		case Class:
			switch t.Name {
			case "java/lang/Object", "java/lang/Cloneable", "java/io/Serializable":
				return true
			}
			return false
		case Array:
			if _, ok := f.Elem.(Prim); ok {
				return Equal(f.Elem, t.Elem)
			}
			return ImplicitlyCastsTo(o, f.Elem, t.Elem)
		}
	}
	return false
}
