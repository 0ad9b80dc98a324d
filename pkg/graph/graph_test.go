package graph

import (
	"reflect"
	"testing"
)

type adj [][]int

func (a adj) Len() int          { return len(a) }
func (a adj) Succs(n int) []int { return a[n] }

// 0 -> 1 -> 2 -> 4, 0 -> 3 -> 4, 4 -> 1 (loop), 5 unreachable -> 4
var diamondLoop = adj{
	0: {1, 3},
	1: {2},
	2: {4},
	3: {4},
	4: {1, 6},
	5: {4},
	6: {},
}

func TestReversePostorder(t *testing.T) {
	got := ReversePostorder(diamondLoop, 0)
	want := []int{0, 3, 1, 2, 4, 6}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReversePostorder = %v, want %v", got, want)
	}
}

func TestDominators(t *testing.T) {
	d := Dominators(diamondLoop, 0)
	tests := []struct {
		node, idom int
	}{
		{0, -1},
		{1, 0},
		{2, 1},
		{3, 0},
		{4, 0},
		{5, -1},
		{6, 4},
	}
	for _, tt := range tests {
		if got := d.Idom(tt.node); got != tt.idom {
			t.Errorf("Idom(%d) = %d, want %d", tt.node, got, tt.idom)
		}
	}
	if !d.Dominates(0, 6) || !d.Dominates(4, 4) || d.Dominates(1, 4) {
		t.Error("Dominates gave a wrong answer")
	}
	if d.Reachable(5) || d.Dominates(0, 5) {
		t.Error("unreachable node treated as dominated")
	}
	if got := d.Children(0); !reflect.DeepEqual(got, []int{3, 1, 4}) {
		t.Errorf("Children(0) = %v, want [3 1 4] (reverse postorder)", got)
	}
}

func TestFrontiers(t *testing.T) {
	d := Dominators(diamondLoop, 0)
	df := d.Frontiers(diamondLoop)
	want := map[int][]int{
		1: {4},
		2: {4},
		3: {4},
		4: {1},
	}
	for n, w := range want {
		if !reflect.DeepEqual(df[n], w) {
			t.Errorf("DF(%d) = %v, want %v", n, df[n], w)
		}
	}
	if got := IteratedFrontier(df, []int{3}); !reflect.DeepEqual(got, []int{1, 4}) {
		t.Errorf("IteratedFrontier({3}) = %v, want [1 4]", got)
	}
}
