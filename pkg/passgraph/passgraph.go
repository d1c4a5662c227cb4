// Package passgraph builds the per-frame pass dependency graph.
//
// Callers declare passes with their resource accesses; Build derives hazard
// edges (read-after-write, write-after-write, write-after-read) between
// consecutive accesses to the same resource, resolves explicit ordering
// constraints, and produces a deterministic topological ordering. Ties
// between unconstrained passes are broken by declaration order, so the
// same declarations always compile to the same plan.
//
// Passes and resources are plain indices into flat tables; edges are index
// pairs. Nothing here holds object references in both directions, so the
// graph cannot form ownership cycles even when the declared accesses do.
package passgraph

import (
	"strings"

	"github.com/glasswing-gfx/framegraph/pkg/errors"
	"github.com/glasswing-gfx/framegraph/pkg/gpu"
	"github.com/glasswing-gfx/framegraph/pkg/registry"
)

// PassID indexes a pass in declaration order.
type PassID int

// AccessMode declares how a pass touches a resource.
type AccessMode int

const (
	Read AccessMode = iota
	Write
	ReadWrite
)

func (m AccessMode) String() string {
	switch m {
	case Write:
		return "write"
	case ReadWrite:
		return "read_write"
	}
	return "read"
}

// reads/writes report which hazard sides the mode participates in.
func (m AccessMode) reads() bool  { return m == Read || m == ReadWrite }
func (m AccessMode) writes() bool { return m == Write || m == ReadWrite }

// Access binds a pass to one resource with the pipeline scope and, for
// images, the layout the pass requires.
type Access struct {
	Resource registry.Handle
	Mode     AccessMode
	Stage    gpu.Stage
	Access   gpu.Access
	Layout   gpu.ImageLayout // required layout; images only
}

// RecordContext is the surface handed to a pass's recording callback. The
// executor implements it; resource resolution goes through the declared
// accesses only, so an undeclared access fails instead of bypassing the
// barrier plan.
type RecordContext interface {
	// Commands is the command buffer the pass records into.
	Commands() gpu.CommandBuffer

	// Buffer and Image resolve a declared access to its bound GPU
	// object. Resolving an undeclared handle fails with
	// UNDECLARED_ACCESS.
	Buffer(h registry.Handle) (gpu.BufferHandle, error)
	Image(h registry.Handle) (gpu.ImageHandle, error)

	// Pipeline resolves an opaque pipeline label.
	Pipeline(label string) (gpu.Pipeline, error)

	// PushConstants uploads push constants, enforcing the device limit.
	PushConstants(data []byte) error
}

// RecordFunc emits a pass's GPU commands. It runs once per frame during
// execution, strictly in topological order.
type RecordFunc func(rc RecordContext) error

// Pass is one declared unit of GPU work.
type Pass struct {
	ID       PassID
	Name     string
	Queue    gpu.QueueKind
	Accesses []Access
	Record   RecordFunc
}

// HazardKind labels why an edge exists.
type HazardKind int

const (
	ReadAfterWrite HazardKind = iota
	WriteAfterWrite
	WriteAfterRead
	Explicit
)

func (k HazardKind) String() string {
	switch k {
	case ReadAfterWrite:
		return "read_after_write"
	case WriteAfterWrite:
		return "write_after_write"
	case WriteAfterRead:
		return "write_after_read"
	}
	return "explicit"
}

// Edge is a derived ordering constraint from producer to consumer.
// Resource is InvalidHandle for explicit edges.
type Edge struct {
	From     PassID
	To       PassID
	Resource registry.Handle
	Kind     HazardKind
}

// Builder accumulates pass declarations for one frame.
type Builder struct {
	reg      *registry.Registry
	passes   []*Pass
	explicit []Edge
}

// NewBuilder creates a builder over the frame's resource registry.
func NewBuilder(reg *registry.Registry) *Builder {
	return &Builder{reg: reg}
}

// AddPass declares a pass. Accesses are validated eagerly: every handle
// must be declared in the registry, image accesses need a concrete layout,
// and the access mask must match the declared mode.
func (b *Builder) AddPass(name string, queue gpu.QueueKind, accesses []Access, record RecordFunc) (*Pass, error) {
	if name == "" {
		return nil, errors.New(errors.ErrCodeInvalidDeclaration, "pass name must not be empty")
	}

	seen := make(map[registry.Handle]bool, len(accesses))
	for _, a := range accesses {
		res, err := b.reg.Lookup(a.Resource)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeUnknownResource, err, "pass %q", name)
		}
		if seen[a.Resource] {
			return nil, errors.New(errors.ErrCodeInvalidDeclaration,
				"pass %q declares resource %q twice; combine into one ReadWrite access", name, res.Name)
		}
		seen[a.Resource] = true

		if res.Kind == registry.KindImage && a.Layout == gpu.LayoutUndefined {
			return nil, errors.New(errors.ErrCodeInvalidDeclaration,
				"pass %q must name a target layout for image %q", name, res.Name)
		}
		if a.Mode.writes() && !a.Access.IsWrite() {
			return nil, errors.New(errors.ErrCodeInvalidDeclaration,
				"pass %q declares %s of %q without a write access mask", name, a.Mode, res.Name)
		}
		if a.Mode == Read && a.Access.IsWrite() {
			return nil, errors.New(errors.ErrCodeInvalidDeclaration,
				"pass %q declares a read of %q with a write access mask", name, res.Name)
		}
		if a.Stage == gpu.StageNone {
			return nil, errors.New(errors.ErrCodeInvalidDeclaration,
				"pass %q declares access to %q without a pipeline stage", name, res.Name)
		}
	}

	p := &Pass{
		ID:       PassID(len(b.passes)),
		Name:     name,
		Queue:    queue,
		Accesses: accesses,
		Record:   record,
	}
	b.passes = append(b.passes, p)
	return p, nil
}

// DependsOn adds an explicit ordering constraint: earlier must execute
// before later, independent of any shared resources.
func (b *Builder) DependsOn(later, earlier *Pass) {
	b.explicit = append(b.explicit, Edge{
		From:     earlier.ID,
		To:       later.ID,
		Resource: registry.InvalidHandle,
		Kind:     Explicit,
	})
}

// Passes returns the declared passes in declaration order.
func (b *Builder) Passes() []*Pass { return b.passes }

// Build derives hazard edges and computes the topological ordering.
// A frame mixing queue kinds fails with UNSUPPORTED (single-queue
// baseline); an unsatisfiable ordering fails with CYCLIC_DEPENDENCY
// naming the passes involved.
func (b *Builder) Build() (*OrderedGraph, error) {
	if err := b.checkSingleQueue(); err != nil {
		return nil, err
	}

	edges := b.deriveEdges()
	edges = append(edges, b.explicit...)

	order, err := b.sort(edges)
	if err != nil {
		return nil, err
	}

	g := &OrderedGraph{
		Passes: make([]*Pass, len(order)),
		Edges:  edges,
		index:  make([]int, len(order)),
	}
	for i, id := range order {
		g.Passes[i] = b.passes[id]
		g.index[id] = i
	}
	return g, nil
}

func (b *Builder) checkSingleQueue() error {
	if len(b.passes) == 0 {
		return nil
	}
	first := b.passes[0].Queue
	for _, p := range b.passes[1:] {
		if p.Queue != first {
			return errors.New(errors.ErrCodeUnsupported,
				"frame mixes %s and %s queues; cross-queue synchronization is not supported",
				first, p.Queue)
		}
	}
	return nil
}

// deriveEdges walks each resource's access list in pass-declaration order
// and emits an edge for every consecutive hazard pair. Read-after-read
// pairs need no ordering. Write-after-read needs one because the reader
// must finish before the writer overwrites (or an aliased resource
// replaces) the data.
func (b *Builder) deriveEdges() []Edge {
	type resourceAccess struct {
		pass PassID
		mode AccessMode
	}
	byResource := make(map[registry.Handle][]resourceAccess)
	var resourceOrder []registry.Handle

	for _, p := range b.passes {
		for _, a := range p.Accesses {
			if _, seen := byResource[a.Resource]; !seen {
				resourceOrder = append(resourceOrder, a.Resource)
			}
			byResource[a.Resource] = append(byResource[a.Resource], resourceAccess{pass: p.ID, mode: a.Mode})
		}
	}

	var edges []Edge
	for _, h := range resourceOrder {
		accesses := byResource[h]
		for i := 1; i < len(accesses); i++ {
			prev, cur := accesses[i-1], accesses[i]
			var kind HazardKind
			switch {
			case prev.mode.writes() && cur.mode.writes():
				kind = WriteAfterWrite
			case prev.mode.writes() && cur.mode.reads():
				kind = ReadAfterWrite
			case prev.mode.reads() && cur.mode.writes():
				kind = WriteAfterRead
			default:
				continue // read after read
			}
			edges = append(edges, Edge{From: prev.pass, To: cur.pass, Resource: h, Kind: kind})
		}
	}
	return edges
}

// sort runs Kahn's algorithm, always picking the ready pass with the
// lowest declaration index so the result is reproducible.
func (b *Builder) sort(edges []Edge) ([]PassID, error) {
	n := len(b.passes)
	indegree := make([]int, n)
	out := make([][]PassID, n)
	for _, e := range edges {
		indegree[e.To]++
		out[e.From] = append(out[e.From], e.To)
	}

	done := make([]bool, n)
	order := make([]PassID, 0, n)
	for len(order) < n {
		next := PassID(-1)
		for id := 0; id < n; id++ {
			if !done[id] && indegree[id] == 0 {
				next = PassID(id)
				break
			}
		}
		if next < 0 {
			return nil, b.cycleError(done)
		}
		done[next] = true
		order = append(order, next)
		for _, to := range out[next] {
			indegree[to]--
		}
	}
	return order, nil
}

func (b *Builder) cycleError(done []bool) error {
	var involved []string
	for id, p := range b.passes {
		if !done[id] {
			involved = append(involved, p.Name)
		}
	}
	return errors.New(errors.ErrCodeCyclicDependency,
		"passes cannot be ordered: %s", strings.Join(involved, ", "))
}

// OrderedGraph is the compiled pass sequence plus the resolved edge set,
// consumed by the allocator, the barrier planner and the executor.
type OrderedGraph struct {
	// Passes in topological order.
	Passes []*Pass
	// Edges is the full derived edge set (hazards plus explicit).
	Edges []Edge

	index []int // PassID -> topological position
}

// Len returns the number of passes.
func (g *OrderedGraph) Len() int { return len(g.Passes) }

// IndexOf returns a pass's position in the topological order.
func (g *OrderedGraph) IndexOf(id PassID) int { return g.index[int(id)] }

// QueueKind returns the frame's queue. All passes share it under the
// single-queue baseline; an empty frame defaults to graphics.
func (g *OrderedGraph) QueueKind() gpu.QueueKind {
	if len(g.Passes) == 0 {
		return gpu.QueueGraphics
	}
	return g.Passes[0].Queue
}

// EdgesInto returns the edges whose consumer is the given pass.
func (g *OrderedGraph) EdgesInto(id PassID) []Edge {
	var in []Edge
	for _, e := range g.Edges {
		if e.To == id {
			in = append(in, e)
		}
	}
	return in
}
