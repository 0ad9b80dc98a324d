package decompile

import (
	"fmt"
	"sort"

	"github.com/raymyers/ralph-decomp/pkg/bytecode"
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
	"github.com/raymyers/ralph-decomp/pkg/structured"
)

// reserved names that SuggestVarName can produce but Java rejects
var reserved = map[string]string{
	"class":     "clazz",
	"enum":      "enum_",
	"interface": "iface",
	"package":   "pkg",
	"this":      "this_",
	"super":     "super_",
	"var":       "var1",
}

// namer hands out one display name per variable: n, n2, n3 for the same
// suggestion
type namer struct {
	vars  *structured.Vars
	names map[ir.LValue]string
	count map[string]int
}

func newNamer(vars *structured.Vars) *namer {
	return &namer{vars: vars, names: make(map[ir.LValue]string), count: make(map[string]int)}
}

func (n *namer) add(v ir.LValue, t jtypes.Type) string {
	if s, ok := n.names[v]; ok {
		return s
	}
	base := jtypes.SuggestVarName(t)
	if r, ok := reserved[base]; ok {
		base = r
	}
	n.count[base]++
	name := base
	if c := n.count[base]; c > 1 {
		name = fmt.Sprintf("%s%d", base, c)
	}
	n.names[v] = name
	return name
}

func (n *namer) name(lv ir.LValue) string {
	if s, ok := n.names[n.vars.Of(lv)]; ok {
		return s
	}
	return lv.String()
}

// varTypes returns the declared type of every variable assigned or read
// in root. Assignments win over reads; null and void carry no information.
func varTypes(root structured.Stmt, vars *structured.Vars) map[ir.LValue]jtypes.Type {
	types := make(map[ir.LValue]jtypes.Type)
	informative := func(t jtypes.Type) bool {
		if t == nil {
			return false
		}
		if p, ok := t.(jtypes.Prim); ok && (p.Kind == jtypes.Null || p.Kind == jtypes.Void) {
			return false
		}
		return true
	}
	structured.Walk(root, func(s structured.Stmt) bool {
		if a, ok := s.(*structured.Atom); ok {
			if as, ok := a.S.(*ir.Assign); ok {
				v := vars.Of(as.LV)
				if _, seen := types[v]; !seen {
					if t := ir.TypeOf(as.Value); informative(t) {
						types[v] = t
					}
				}
			}
		}
		return true
	})
	structured.VisitExprs(root, func(e ir.Expr) {
		if r, ok := e.(*ir.LocalRef); ok && informative(r.Type) {
			v := vars.Of(r.LV)
			if _, seen := types[v]; !seen {
				types[v] = r.Type
			}
		}
	})
	return types
}

// paramEnd returns the first slot past the parameters, this included
func paramEnd(m *bytecode.Method) int {
	mt, _ := jtypes.ParseMethod(m.Descriptor)
	slot := 0
	if !m.Static {
		slot = 1
	}
	for _, p := range mt.Params {
		slot += jtypes.StackTypeOf(p).Category()
	}
	return slot
}

// declare names the parameters and locals and places the declarations.
// vars holds the variables found before merges were dropped.
func (r *MethodResult) declare(vars *structured.Vars) {
	m := r.Method
	mt, _ := jtypes.ParseMethod(m.Descriptor)
	nm := newNamer(vars)

	params := make(map[ir.LValue]jtypes.Type)
	slot := 0
	if !m.Static {
		nm.names[vars.Of(ir.LValue{})] = "this"
		slot = 1
	}
	for _, p := range mt.Params {
		v := vars.Of(ir.LValue{Slot: slot})
		params[v] = p
		r.Params = append(r.Params, ir.TypeName(p)+" "+nm.add(v, p))
		slot += jtypes.StackTypeOf(p).Category()
	}
	isParam := func(v ir.LValue) bool {
		_, ok := params[v]
		return ok || (!m.Static && v == vars.Of(ir.LValue{}))
	}

	types := varTypes(r.Body, vars)
	scopes := structured.DiscoverScopes(r.Body, vars)
	locals := make([]ir.LValue, 0, len(scopes))
	for v := range scopes {
		if !isParam(v) {
			locals = append(locals, v)
		}
	}
	sort.Slice(locals, func(i, j int) bool {
		if locals[i].Slot != locals[j].Slot {
			return locals[i].Slot < locals[j].Slot
		}
		return locals[i].Version < locals[j].Version
	})
	for _, v := range locals {
		nm.add(v, types[v])
	}

	r.Fmt = &ir.Formatter{Names: nm.name, Class: m.Owner}
	r.Decls = structured.Declarations(scopes, vars,
		func(v ir.LValue) bool { return !isParam(v) },
		func(v ir.LValue) jtypes.Type {
			if t, ok := params[v]; ok {
				return t
			}
			return types[v]
		})
}
