// Package ir defines the flat intermediate representation produced by the
// stack simulator: expressions, statements, local-variable identities and
// the region identifiers used by structuring.
package ir

import "fmt"

// LValue identifies a local variable slot at one SSA version. Version 0
// is the value live on method entry (parameters and this).
type LValue struct {
	Slot    int
	Version int
}

func (lv LValue) String() string {
	return fmt.Sprintf("v%d_%d", lv.Slot, lv.Version)
}

// BlockKind says what construct a BlockID names
type BlockKind int

const (
	KindLoop BlockKind = iota
	KindTry
	KindSwitch
	KindLabel
)

func (k BlockKind) String() string {
	switch k {
	case KindLoop:
		return "loop"
	case KindTry:
		return "try"
	case KindSwitch:
		return "switch"
	}
	return "block"
}

// BlockID names a loop, try, switch or labeled region so that break,
// continue and catch nodes can refer back to it without a graph edge.
type BlockID struct {
	ID   int
	Kind BlockKind
}

func (b *BlockID) String() string {
	if b == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s%d", b.Kind, b.ID)
}

// IDAllocator hands out BlockIDs for one method
type IDAllocator struct {
	next int
}

// New allocates a fresh BlockID of the given kind
func (a *IDAllocator) New(kind BlockKind) *BlockID {
	a.next++
	return &BlockID{ID: a.next, Kind: kind}
}
