package typecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

type mapLoader struct {
	classes map[string]*ClassInfo
	calls   atomic.Int64
	gate    chan struct{}
	fail    error
}

func (l *mapLoader) LoadClass(ctx context.Context, name string) (*ClassInfo, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	if l.fail != nil {
		return nil, l.fail
	}
	info, ok := l.classes[name]
	if !ok {
		return nil, ErrNotFound
	}
	return info, nil
}

func hierarchy() map[string]*ClassInfo {
	return map[string]*ClassInfo{
		"java/lang/Object":           {Name: "java/lang/Object"},
		"java/lang/Throwable":        {Name: "java/lang/Throwable", Super: "java/lang/Object", Interfaces: []string{"java/io/Serializable"}},
		"java/lang/Exception":        {Name: "java/lang/Exception", Super: "java/lang/Throwable"},
		"java/lang/RuntimeException": {Name: "java/lang/RuntimeException", Super: "java/lang/Exception"},
		"java/io/Serializable":       {Name: "java/io/Serializable"},
		"com/example/Broken":         {Name: "com/example/Broken", Super: "com/example/Missing"},
	}
}

func TestConcurrentMissLoadsOnce(t *testing.T) {
	l := &mapLoader{classes: hierarchy(), gate: make(chan struct{})}
	c := New(l)

	var wg sync.WaitGroup
	results := make([]*ClassInfo, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := c.Lookup(context.Background(), "java/lang/Exception")
			if err != nil {
				t.Errorf("Lookup: %v", err)
			}
			results[i] = info
		}(i)
	}
	close(l.gate)
	wg.Wait()

	if got := l.calls.Load(); got != 1 {
		t.Errorf("loader calls = %d, want 1", got)
	}
	for i, r := range results {
		if r == nil || r.Super != "java/lang/Throwable" {
			t.Errorf("result %d = %+v", i, r)
		}
	}
	if got := c.State("java/lang/Exception"); got != Resolved {
		t.Errorf("State = %v, want resolved", got)
	}
}

func TestAbsentIsCached(t *testing.T) {
	l := &mapLoader{classes: hierarchy()}
	c := New(l)
	if got := c.State("com/example/Missing"); got != NotStarted {
		t.Errorf("State before lookup = %v, want not started", got)
	}
	for i := 0; i < 3; i++ {
		if _, err := c.Lookup(context.Background(), "com/example/Missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Lookup err = %v, want ErrNotFound", err)
		}
	}
	if got := c.Loads(); got != 1 {
		t.Errorf("Loads = %d, want 1", got)
	}
	if got := c.State("com/example/Missing"); got != ResolvedAbsent {
		t.Errorf("State = %v, want absent", got)
	}
}

func TestLoaderErrorNotCached(t *testing.T) {
	boom := errors.New("disk on fire")
	l := &mapLoader{classes: hierarchy(), fail: boom}
	c := New(l)
	if _, err := c.Lookup(context.Background(), "java/lang/Object"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if got := c.State("java/lang/Object"); got != NotStarted {
		t.Errorf("State after failure = %v, want not started", got)
	}
	l.fail = nil
	if _, err := c.Lookup(context.Background(), "java/lang/Object"); err != nil {
		t.Errorf("retry: %v", err)
	}
}

func TestSupertypes(t *testing.T) {
	c := New(&mapLoader{classes: hierarchy()})
	supers, ok := c.Supertypes(context.Background(), "java/lang/RuntimeException")
	want := []string{"java/lang/Exception", "java/lang/Throwable", "java/lang/Object", "java/io/Serializable"}
	if !ok {
		t.Error("hierarchy should be complete")
	}
	if len(supers) != len(want) {
		t.Fatalf("Supertypes = %v, want %v", supers, want)
	}
	for i := range want {
		if supers[i] != want[i] {
			t.Errorf("Supertypes[%d] = %s, want %s", i, supers[i], want[i])
		}
	}
	if _, ok := c.Supertypes(context.Background(), "com/example/Broken"); ok {
		t.Error("missing ancestor should make the hierarchy incomplete")
	}
}

func TestOracle(t *testing.T) {
	o := New(&mapLoader{classes: hierarchy()}).Oracle(context.Background())
	tests := []struct {
		from, to string
		want     bool
	}{
		{"java/lang/RuntimeException", "java/lang/Throwable", true},
		{"java/lang/RuntimeException", "java/io/Serializable", true},
		{"java/lang/Throwable", "java/lang/Exception", false},
		{"com/example/Unknown", "java/lang/Exception", false},
		{"com/example/Unknown", "java/lang/Object", true},
	}
	for _, tt := range tests {
		if got := o.IsAssignable(jtypes.ClassOf(tt.from), jtypes.ClassOf(tt.to)); got != tt.want {
			t.Errorf("IsAssignable(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	if _, ok := o.ResolvedSupertypes(jtypes.ClassOf("com/example/Broken")); ok {
		t.Error("ResolvedSupertypes should report unknown for a broken hierarchy")
	}
}
