package bytecode

import "github.com/raymyers/ralph-decomp/pkg/jtypes"

// newarray element type codes
var arrayTypes = []struct {
	code int
	kind jtypes.PrimKind
}{
	{4, jtypes.Boolean},
	{5, jtypes.Char},
	{6, jtypes.Float},
	{7, jtypes.Double},
	{8, jtypes.Byte},
	{9, jtypes.Short},
	{10, jtypes.Int},
	{11, jtypes.Long},
}

// ArrayElemType returns the element type of a newarray type code
func ArrayElemType(code int) (jtypes.Type, bool) {
	for _, a := range arrayTypes {
		if a.code == code {
			return jtypes.Prim{Kind: a.kind}, true
		}
	}
	return nil, false
}

// ArrayTypeCode returns the newarray type code for a primitive name such as "int"
func ArrayTypeCode(name string) (int, bool) {
	for _, a := range arrayTypes {
		if a.kind.String() == name {
			return a.code, true
		}
	}
	return 0, false
}
