// Package alias assigns physical memory to the frame's logical resources.
//
// Transient resources are packed into a retained pool of device memory
// blocks: two resources may share a block only when their live ranges
// within the frame's topological pass order are provably disjoint and the
// block's capacity and alignment suffice. Blocks survive frame resets so
// steady-state frames perform no device allocation at all; only growth
// allocates, bounded by a configured budget ceiling.
//
// Persistent resources keep the dedicated allocation they were first given
// and are never aliased.
package alias

import (
	"context"
	"sort"

	"github.com/glasswing-gfx/framegraph/pkg/errors"
	"github.com/glasswing-gfx/framegraph/pkg/gpu"
	"github.com/glasswing-gfx/framegraph/pkg/observability"
	"github.com/glasswing-gfx/framegraph/pkg/passgraph"
	"github.com/glasswing-gfx/framegraph/pkg/registry"
)

// LiveRange is the half-open window [First, End) of topological pass
// indices during which a transient resource must hold valid data.
type LiveRange struct {
	First int
	End   int
}

// Overlaps reports whether two live ranges share any pass window.
func (l LiveRange) Overlaps(o LiveRange) bool {
	return l.First < o.End && o.First < l.End
}

// Block is one retained device memory allocation. Residents are the
// transient resources assigned to it this frame, all with pairwise
// disjoint live ranges.
type Block struct {
	Device   gpu.Block
	Capacity uint64

	residents []resident
}

type resident struct {
	handle registry.Handle
	rng    LiveRange
}

// Residents returns the handles currently aliased into the block.
func (b *Block) Residents() []registry.Handle {
	out := make([]registry.Handle, len(b.residents))
	for i, r := range b.residents {
		out[i] = r.handle
	}
	return out
}

// Boundary marks an aliasing hand-off inside one block: the retiring
// resource's last pass must complete before the incoming resource's first
// pass touches the shared memory. The planner turns each boundary into a
// barrier.
type Boundary struct {
	Block         *Block
	Retiring      registry.Handle
	Incoming      registry.Handle
	RetiringLast  int // last topological index touching the retiring resource
	IncomingFirst int // first topological index touching the incoming resource
}

// Placement maps every frame resource to its physical memory, plus the
// aliasing boundaries the barrier planner must fence.
type Placement struct {
	ranges     map[registry.Handle]LiveRange
	blocks     map[registry.Handle]*Block
	Boundaries []Boundary
}

// Range returns a transient resource's live range.
func (p *Placement) Range(h registry.Handle) (LiveRange, bool) {
	r, ok := p.ranges[h]
	return r, ok
}

// BlockOf returns the block a transient resource was aliased into.
func (p *Placement) BlockOf(h registry.Handle) (*Block, bool) {
	b, ok := p.blocks[h]
	return b, ok
}

// Config bounds the pool.
type Config struct {
	// Budget is the ceiling, in bytes, on the summed capacity of all
	// transient blocks. Zero means no ceiling.
	Budget uint64
	// MinAlignment is the block alignment; defaults to the device's
	// minimum when zero.
	MinAlignment uint64
}

// Pool is the retained transient-memory arena. It lives across frames;
// Allocate is called once per frame and reuses existing blocks whenever
// capacity allows.
type Pool struct {
	device gpu.Device
	budget uint64
	align  uint64

	blocks []*Block
	used   uint64 // summed capacity of transient blocks
}

// NewPool creates an empty pool over the device.
func NewPool(device gpu.Device, cfg Config) *Pool {
	align := cfg.MinAlignment
	if align == 0 {
		align = device.Limits().MinMemoryAlignment
	}
	if align == 0 {
		align = 256
	}
	return &Pool{device: device, budget: cfg.Budget, align: align}
}

// BlockCount returns the number of retained transient blocks.
func (p *Pool) BlockCount() int { return len(p.blocks) }

// CapacityUsed returns the summed capacity of retained transient blocks.
func (p *Pool) CapacityUsed() uint64 { return p.used }

// Allocate computes live ranges for the frame's transient resources and
// assigns each one a block, aliasing wherever live ranges permit.
// Persistent resources without a binding get a dedicated allocation;
// previously bound ones are left untouched.
//
// Fails with ALLOCATION_EXHAUSTED when growth would exceed the budget.
// The frame must then be abandoned by the caller; nothing has been
// submitted at this point.
func (p *Pool) Allocate(g *passgraph.OrderedGraph, reg *registry.Registry) (*Placement, error) {
	placement := &Placement{
		ranges: computeLiveRanges(g),
		blocks: make(map[registry.Handle]*Block),
	}

	for _, b := range p.blocks {
		b.residents = b.residents[:0]
	}

	transients, err := p.frameTransients(placement, g, reg)
	if err != nil {
		return nil, err
	}

	// Largest first: big resources claim blocks early and smaller ones
	// alias into the gaps, which keeps total capacity down. Ties fall
	// back to declaration order so the assignment is reproducible.
	sort.SliceStable(transients, func(i, j int) bool {
		si, sj := transients[i].ByteSize(), transients[j].ByteSize()
		if si != sj {
			return si > sj
		}
		return transients[i].Handle < transients[j].Handle
	})

	for _, res := range transients {
		if err := p.place(placement, res); err != nil {
			return nil, err
		}
	}

	if err := p.bindPersistents(reg); err != nil {
		return nil, err
	}

	placement.Boundaries = boundaries(p.blocks)
	return placement, nil
}

// frameTransients collects the transient resources the graph actually
// touches. A declared but unused transient gets no memory.
func (p *Pool) frameTransients(placement *Placement, g *passgraph.OrderedGraph, reg *registry.Registry) ([]*registry.Resource, error) {
	var out []*registry.Resource
	for h := range placement.ranges {
		res, err := reg.Lookup(h)
		if err != nil {
			return nil, err
		}
		if res.Residency == registry.ResidencyTransient {
			out = append(out, res)
		}
	}
	return out, nil
}

func (p *Pool) place(placement *Placement, res *registry.Resource) error {
	size := alignUp(res.ByteSize(), p.align)
	rng := placement.ranges[res.Handle]

	for _, b := range p.blocks {
		if b.Capacity < size {
			continue
		}
		if !disjointFromResidents(b, rng) {
			continue
		}
		b.residents = append(b.residents, resident{handle: res.Handle, rng: rng})
		placement.blocks[res.Handle] = b
		res.Binding = registry.Binding{Block: b.Device, Offset: 0, Size: size}
		observability.Memory().OnBlockReused(context.Background(), size)
		return nil
	}

	if p.budget > 0 && p.used+size > p.budget {
		observability.Memory().OnBudgetExceeded(context.Background(), size, p.used, p.budget)
		return errors.New(errors.ErrCodeAllocationExhausted,
			"transient pool budget exceeded: %d bytes in use, %d requested for %q, ceiling %d",
			p.used, size, res.Name, p.budget)
	}

	device, err := p.device.AllocateBlock(size, p.align)
	if err != nil {
		return errors.Wrap(errors.ErrCodeAllocationExhausted, err, "allocate block for %q", res.Name)
	}
	b := &Block{Device: device, Capacity: size}
	b.residents = append(b.residents, resident{handle: res.Handle, rng: rng})
	p.blocks = append(p.blocks, b)
	p.used += size
	observability.Memory().OnBlockAllocated(context.Background(), size, p.used)

	placement.blocks[res.Handle] = b
	res.Binding = registry.Binding{Block: device, Offset: 0, Size: size}
	return nil
}

func (p *Pool) bindPersistents(reg *registry.Registry) error {
	for _, res := range reg.Frame() {
		if res.Residency != registry.ResidencyPersistent || res.Binding.Bound() {
			continue
		}
		size := alignUp(res.ByteSize(), p.align)
		device, err := p.device.AllocateBlock(size, p.align)
		if err != nil {
			return errors.Wrap(errors.ErrCodeAllocationExhausted, err, "allocate persistent block for %q", res.Name)
		}
		res.Binding = registry.Binding{Block: device, Offset: 0, Size: size}
	}
	return nil
}

// Trim releases retained blocks that no resource of the most recent
// frame aliased into. Steady-state frames keep their blocks; a frame
// that shrinks (fewer or smaller transients) leaves idle blocks behind,
// and Trim returns that capacity to the device.
func (p *Pool) Trim() error {
	kept := p.blocks[:0]
	for _, b := range p.blocks {
		if len(b.residents) > 0 {
			kept = append(kept, b)
			continue
		}
		if err := p.device.ReleaseBlock(b.Device); err != nil {
			return err
		}
		p.used -= b.Capacity
	}
	p.blocks = kept
	return nil
}

// Destroy releases every retained block back to the device. Call after
// the last frame.
func (p *Pool) Destroy() error {
	for _, b := range p.blocks {
		if err := p.device.ReleaseBlock(b.Device); err != nil {
			return err
		}
	}
	p.blocks = nil
	p.used = 0
	return nil
}

func disjointFromResidents(b *Block, rng LiveRange) bool {
	for _, r := range b.residents {
		if r.rng.Overlaps(rng) {
			return false
		}
	}
	return true
}

func computeLiveRanges(g *passgraph.OrderedGraph) map[registry.Handle]LiveRange {
	ranges := make(map[registry.Handle]LiveRange)
	for i, pass := range g.Passes {
		for _, a := range pass.Accesses {
			r, seen := ranges[a.Resource]
			if !seen {
				ranges[a.Resource] = LiveRange{First: i, End: i + 1}
				continue
			}
			if i+1 > r.End {
				r.End = i + 1
			}
			if i < r.First {
				r.First = i
			}
			ranges[a.Resource] = r
		}
	}
	return ranges
}

func boundaries(blocks []*Block) []Boundary {
	var out []Boundary
	for _, b := range blocks {
		if len(b.residents) < 2 {
			continue
		}
		ordered := make([]resident, len(b.residents))
		copy(ordered, b.residents)
		sort.Slice(ordered, func(i, j int) bool {
			return ordered[i].rng.First < ordered[j].rng.First
		})
		for i := 1; i < len(ordered); i++ {
			prev, cur := ordered[i-1], ordered[i]
			out = append(out, Boundary{
				Block:         b,
				Retiring:      prev.handle,
				Incoming:      cur.handle,
				RetiringLast:  prev.rng.End - 1,
				IncomingFirst: cur.rng.First,
			})
		}
	}
	return out
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	m := v % align
	if m == 0 {
		return v
	}
	return v - m + align
}
