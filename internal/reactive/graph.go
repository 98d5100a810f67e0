// Package reactive is a small dependency graph of named inputs, cached
// calculations and rendered outputs. Setting an input marks every node
// that depends on it dirty; dirty nodes recompute on their next read.
package reactive

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var (
	ErrUnknownInput = errors.New("unknown input")
	ErrUnknownNode  = errors.New("unknown output")
	ErrDuplicate    = errors.New("already defined")
	ErrCycle        = errors.New("dependency cycle")
	ErrPanic        = errors.New("computation panicked")
)

// Key names an input, a calculation or an output
type Key string

// ComputeFunc produces a node's value. Values read through the scope
// other than the declared dependencies do not create a dependency.
type ComputeFunc func(ctx context.Context, s *Scope) (interface{}, error)

// Listener receives the outputs invalidated by one change, sorted
type Listener func(dirty []Key)

type kind int

const (
	kindCalc kind = iota
	kindOutput
)

type node struct {
	key     Key
	kind    kind
	deps    []Key
	compute ComputeFunc

	dirty     bool
	computing bool
	version   uint64
	value     interface{}
	err       error
	runs      int
}

// Graph is safe for concurrent use. Reads are serialized so a node is
// computed at most once per change.
type Graph struct {
	mu         sync.Mutex
	inputs     map[Key]interface{}
	nodes      map[Key]*node
	dependents map[Key][]Key
	listeners  map[int]Listener
	nextID     int

	computeMu sync.Mutex
}

// New returns an empty graph
func New() *Graph {
	return &Graph{
		inputs:     make(map[Key]interface{}),
		nodes:      make(map[Key]*node),
		dependents: make(map[Key][]Key),
		listeners:  make(map[int]Listener),
	}
}

// Input declares an input with its initial value
func (g *Graph) Input(key Key, initial interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.defined(key) {
		return fmt.Errorf("input %q: %w", key, ErrDuplicate)
	}
	g.inputs[key] = initial
	return nil
}

// Calc declares a cached intermediate value, readable from other nodes
// through Scope.Calc.
func (g *Graph) Calc(key Key, deps []Key, fn ComputeFunc) error {
	return g.define(key, kindCalc, deps, fn)
}

// Output declares a rendered output
func (g *Graph) Output(key Key, deps []Key, fn ComputeFunc) error {
	return g.define(key, kindOutput, deps, fn)
}

func (g *Graph) define(key Key, k kind, deps []Key, fn ComputeFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.defined(key) {
		return fmt.Errorf("%q: %w", key, ErrDuplicate)
	}
	for _, d := range deps {
		// dependencies must exist first, so the graph stays acyclic
		if !g.defined(d) {
			return fmt.Errorf("%q depends on %q: %w", key, d, ErrUnknownInput)
		}
	}
	g.nodes[key] = &node{key: key, kind: k, deps: append([]Key(nil), deps...), compute: fn, dirty: true}
	for _, d := range deps {
		g.dependents[d] = append(g.dependents[d], key)
	}
	return nil
}

func (g *Graph) defined(key Key) bool {
	if _, ok := g.inputs[key]; ok {
		return true
	}
	_, ok := g.nodes[key]
	return ok
}

// Set changes an input and returns the outputs it invalidated. Setting
// an equal value changes nothing.
func (g *Graph) Set(key Key, value interface{}) ([]Key, error) {
	return g.SetMany(map[Key]interface{}{key: value})
}

// SetMany applies several input changes as one invalidation
func (g *Graph) SetMany(values map[Key]interface{}) ([]Key, error) {
	g.mu.Lock()
	for key := range values {
		if _, ok := g.inputs[key]; !ok {
			g.mu.Unlock()
			return nil, fmt.Errorf("%q: %w", key, ErrUnknownInput)
		}
	}

	dirty := make(map[Key]bool)
	for key, value := range values {
		if reflect.DeepEqual(g.inputs[key], value) {
			continue
		}
		g.inputs[key] = value
		g.invalidate(key, dirty)
	}

	outputs := make([]Key, 0, len(dirty))
	for key := range dirty {
		if g.nodes[key].kind == kindOutput {
			outputs = append(outputs, key)
		}
	}
	sort.Slice(outputs, func(a, b int) bool { return outputs[a] < outputs[b] })

	listeners := g.subscribers()
	g.mu.Unlock()

	if len(outputs) > 0 {
		for _, l := range listeners {
			l(outputs)
		}
	}
	return outputs, nil
}

// invalidate marks every transitive dependent of key dirty. Caller holds mu.
func (g *Graph) invalidate(key Key, seen map[Key]bool) {
	for _, dep := range g.dependents[key] {
		if seen[dep] {
			continue
		}
		seen[dep] = true
		n := g.nodes[dep]
		n.dirty = true
		n.version++
		g.invalidate(dep, seen)
	}
}

// Reset applies values and marks every node dirty, as after swapping the
// dataset. Listeners get all outputs in one notification.
func (g *Graph) Reset(values map[Key]interface{}) ([]Key, error) {
	g.mu.Lock()
	for key := range values {
		if _, ok := g.inputs[key]; !ok {
			g.mu.Unlock()
			return nil, fmt.Errorf("%q: %w", key, ErrUnknownInput)
		}
	}
	for key, value := range values {
		g.inputs[key] = value
	}

	outputs := make([]Key, 0, len(g.nodes))
	for key, n := range g.nodes {
		n.dirty = true
		n.version++
		if n.kind == kindOutput {
			outputs = append(outputs, key)
		}
	}
	sort.Slice(outputs, func(a, b int) bool { return outputs[a] < outputs[b] })
	listeners := g.subscribers()
	g.mu.Unlock()

	for _, l := range listeners {
		l(outputs)
	}
	return outputs, nil
}

// subscribers returns the listeners in subscription order. Caller holds mu.
func (g *Graph) subscribers() []Listener {
	ids := make([]int, 0, len(g.listeners))
	for id := range g.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = g.listeners[id]
	}
	return out
}

// Subscribe registers a listener; the returned func removes it
func (g *Graph) Subscribe(l Listener) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = l
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.listeners, id)
	}
}

// Value returns the current value of an input
func (g *Graph) Value(key Key) (interface{}, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.inputs[key]
	return v, ok
}

// Outputs lists the declared outputs, sorted
func (g *Graph) Outputs() []Key {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Key, 0, len(g.nodes))
	for key, n := range g.nodes {
		if n.kind == kindOutput {
			out = append(out, key)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Runs reports how many times a node has been computed
func (g *Graph) Runs(key Key) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[key]; ok {
		return n.runs
	}
	return 0
}

// Read returns the value of an output or calc, recomputing it when dirty.
// Errors are cached like values until a dependency changes.
func (g *Graph) Read(ctx context.Context, key Key) (interface{}, error) {
	g.computeMu.Lock()
	defer g.computeMu.Unlock()
	return g.read(ctx, key)
}

// read requires computeMu
func (g *Graph) read(ctx context.Context, key Key) (interface{}, error) {
	g.mu.Lock()
	n, ok := g.nodes[key]
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("%q: %w", key, ErrUnknownNode)
	}
	if !n.dirty {
		v, err := n.value, n.err
		g.mu.Unlock()
		return v, err
	}
	if n.computing {
		g.mu.Unlock()
		return nil, fmt.Errorf("%q: %w", key, ErrCycle)
	}
	n.computing = true
	version := n.version
	snapshot := make(map[Key]interface{}, len(g.inputs))
	for k, v := range g.inputs {
		snapshot[k] = v
	}
	g.mu.Unlock()

	value, err := run(ctx, n, &Scope{ctx: ctx, graph: g, inputs: snapshot})

	g.mu.Lock()
	n.computing = false
	n.runs++
	// a cancelled read is not cached
	if n.version == version && ctx.Err() == nil {
		n.value, n.err = value, err
		n.dirty = false
	}
	g.mu.Unlock()
	return value, err
}

// run calls the node's compute func, turning a panic into an error that is
// cached like any other.
func run(ctx context.Context, n *node, s *Scope) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("%q: %w: %v", n.key, ErrPanic, r)
		}
	}()
	return n.compute(ctx, s)
}

// Scope is what a ComputeFunc sees: a snapshot of the inputs taken when
// the computation started, and access to calcs.
type Scope struct {
	ctx    context.Context
	graph  *Graph
	inputs map[Key]interface{}
}

// Get returns an input value from the snapshot
func (s *Scope) Get(key Key) interface{} {
	return s.inputs[key]
}

// String returns a string input, "" when unset or of another type
func (s *Scope) String(key Key) string {
	v, _ := s.inputs[key].(string)
	return v
}

// Strings returns a []string input, nil when unset or of another type
func (s *Scope) Strings(key Key) []string {
	v, _ := s.inputs[key].([]string)
	return v
}

// Int returns an int input, 0 when unset or of another type
func (s *Scope) Int(key Key) int {
	v, _ := s.inputs[key].(int)
	return v
}

// Calc reads another node's value, computing it if needed
func (s *Scope) Calc(key Key) (interface{}, error) {
	return s.graph.read(s.ctx, key)
}
