package structured

import "github.com/raymyers/ralph-decomp/pkg/ir"

// Vars groups SSA values into source variables: the versions of a slot
// joined through merges form one variable. A slot reused for unrelated
// values yields several variables.
type Vars struct {
	parent map[ir.LValue]ir.LValue
}

// FindVars collects the variables of root, which must still hold its
// merges. Slots for which param reports true hold a single variable for
// the whole method. Elsewhere version 0, a read with no definition, joins
// nothing through merges.
func FindVars(root Stmt, param func(slot int) bool) *Vars {
	v := &Vars{parent: make(map[ir.LValue]ir.LValue)}
	isParam := func(slot int) bool { return param != nil && param(slot) }
	whole := func(lv ir.LValue) {
		if isParam(lv.Slot) {
			v.union(ir.LValue{Slot: lv.Slot}, lv)
		}
	}
	Walk(root, func(s Stmt) bool {
		a, ok := s.(*Atom)
		if !ok {
			return true
		}
		if lv, ok := ir.CreatedLValue(a.S); ok {
			whole(lv)
		}
		if m, ok := a.S.(*ir.Merge); ok {
			for _, src := range m.Sources {
				if src.Version != 0 || isParam(src.Slot) {
					v.union(m.LV, src)
				}
			}
		}
		return true
	})
	VisitExprs(root, func(e ir.Expr) {
		if r, ok := e.(*ir.LocalRef); ok {
			whole(r.LV)
		}
	})
	return v
}

// Of returns the representative value of lv's variable, its lowest
// version
func (v *Vars) Of(lv ir.LValue) ir.LValue {
	if v == nil {
		return lv
	}
	root := lv
	for {
		p, ok := v.parent[root]
		if !ok || p == root {
			break
		}
		root = p
	}
	for lv != root {
		next := v.parent[lv]
		v.parent[lv] = root
		lv = next
	}
	return root
}

// Same reports whether a and b belong to one variable
func (v *Vars) Same(a, b ir.LValue) bool { return v.Of(a) == v.Of(b) }

func (v *Vars) union(a, b ir.LValue) {
	ra, rb := v.Of(a), v.Of(b)
	if ra == rb {
		return
	}
	if rb.Version < ra.Version {
		ra, rb = rb, ra
	}
	v.parent[ra] = ra
	v.parent[rb] = ra
}
