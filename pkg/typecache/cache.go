// Package typecache is the shared class-resolution cache behind the type
// oracle. It is the only mutable state shared by concurrently structured
// methods: lookups are safe for concurrent use and each class is loaded
// at most once.
package typecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

// ErrNotFound is returned by loaders for classes they cannot provide
var ErrNotFound = errors.New("class not found")

// ClassInfo is the resolved hierarchy information of one class
type ClassInfo struct {
	Name       string
	Super      string // empty for java/lang/Object and interfaces without one
	Interfaces []string
}

// Loader loads class metadata. It returns ErrNotFound for unknown classes.
type Loader interface {
	LoadClass(ctx context.Context, name string) (*ClassInfo, error)
}

// State is the population state of a cache entry
type State int

const (
	NotStarted State = iota
	InProgress
	Resolved
	ResolvedAbsent
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in progress"
	case Resolved:
		return "resolved"
	case ResolvedAbsent:
		return "absent"
	}
	return "not started"
}

type entry struct {
	state State
	info  *ClassInfo
}

// Cache memoizes a Loader
type Cache struct {
	loader  Loader
	mu      sync.RWMutex
	entries map[string]*entry
	sf      singleflight.Group
	loads   atomic.Int64
}

// New creates a cache in front of loader
func New(loader Loader) *Cache {
	return &Cache{loader: loader, entries: make(map[string]*entry)}
}

// State returns the population state of name
func (c *Cache) State(name string) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[name]; ok {
		return e.state
	}
	return NotStarted
}

// Loads returns how many times the loader has been called
func (c *Cache) Loads() int64 { return c.loads.Load() }

// Lookup returns the class info of name, loading it on a miss. Concurrent
// misses for the same class share one load. Absence is cached; other
// loader errors are not.
func (c *Cache) Lookup(ctx context.Context, name string) (*ClassInfo, error) {
	c.mu.RLock()
	if e, ok := c.entries[name]; ok && e.state != InProgress {
		c.mu.RUnlock()
		if e.state == ResolvedAbsent {
			return nil, ErrNotFound
		}
		return e.info, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.sf.Do(name, func() (any, error) {
		c.mu.Lock()
		if e, ok := c.entries[name]; ok && e.state != InProgress {
			c.mu.Unlock()
			return e, nil
		}
		c.entries[name] = &entry{state: InProgress}
		c.mu.Unlock()

		c.loads.Add(1)
		info, err := c.loader.LoadClass(ctx, name)

		c.mu.Lock()
		defer c.mu.Unlock()
		switch {
		case errors.Is(err, ErrNotFound):
			e := &entry{state: ResolvedAbsent}
			c.entries[name] = e
			return e, nil
		case err != nil:
			delete(c.entries, name)
			return nil, err
		}
		e := &entry{state: Resolved, info: info}
		c.entries[name] = e
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	e := v.(*entry)
	if e.state == ResolvedAbsent {
		return nil, ErrNotFound
	}
	return e.info, nil
}

// Supertypes returns every proper supertype of name, nearest first. The
// second result is false when some ancestor could not be resolved.
func (c *Cache) Supertypes(ctx context.Context, name string) ([]string, bool) {
	var out []string
	seen := map[string]bool{name: true}
	complete := true
	work := []string{name}
	for len(work) > 0 {
		cur := work[0]
		work = work[1:]
		info, err := c.Lookup(ctx, cur)
		if err != nil {
			complete = false
			continue
		}
		parents := append([]string(nil), info.Interfaces...)
		if info.Super != "" {
			parents = append([]string{info.Super}, parents...)
		}
		for _, p := range parents {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
				work = append(work, p)
			}
		}
	}
	return out, complete
}

// Oracle returns a type oracle backed by the cache. Loads triggered by
// the oracle use ctx.
func (c *Cache) Oracle(ctx context.Context) jtypes.Oracle {
	return oracle{c: c, ctx: ctx}
}

type oracle struct {
	c   *Cache
	ctx context.Context
}

// IsAssignable answers for class types only; anything it cannot prove is
// reported as not assignable, which keeps explicit casts.
func (o oracle) IsAssignable(from, to jtypes.Type) bool {
	if jtypes.Equal(from, to) {
		return true
	}
	fc, ok1 := from.(jtypes.Class)
	tc, ok2 := to.(jtypes.Class)
	if !ok1 || !ok2 {
		return false
	}
	if tc.Name == "java/lang/Object" {
		return true
	}
	supers, _ := o.c.Supertypes(o.ctx, fc.Name)
	for _, s := range supers {
		if s == tc.Name {
			return true
		}
	}
	return false
}

func (o oracle) ResolvedSupertypes(t jtypes.Type) ([]jtypes.Type, bool) {
	c, ok := t.(jtypes.Class)
	if !ok {
		return nil, false
	}
	names, complete := o.c.Supertypes(o.ctx, c.Name)
	if !complete {
		return nil, false
	}
	out := make([]jtypes.Type, len(names))
	for i, n := range names {
		out[i] = jtypes.ClassOf(n)
	}
	return out, true
}
