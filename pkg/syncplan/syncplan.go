// Package syncplan derives the barrier schedule for a compiled frame.
//
// The planner walks the topological pass order once, tracking each
// resource's last write, outstanding readers and current image layout. For
// every pass it emits at most one coalesced barrier covering all of the
// pass's incoming hazards: execution+memory dependencies scoped to the
// exact stages and access masks involved, image layout transitions only
// when the required layout differs, and execution fences at transient
// aliasing boundaries. Scoping is deliberately narrow; a global barrier
// would be correct but is treated as a performance defect.
//
// The walk is greedy and never reorders passes, so the result can be
// coarser than a global optimum but is never under-synchronized.
package syncplan

import (
	"github.com/glasswing-gfx/framegraph/pkg/alias"
	"github.com/glasswing-gfx/framegraph/pkg/errors"
	"github.com/glasswing-gfx/framegraph/pkg/gpu"
	"github.com/glasswing-gfx/framegraph/pkg/passgraph"
	"github.com/glasswing-gfx/framegraph/pkg/registry"
)

// BufferSync scopes memory visibility for one logical buffer.
type BufferSync struct {
	Resource  registry.Handle
	SrcAccess gpu.Access
	DstAccess gpu.Access
}

// ImageSync scopes memory visibility for one logical image and carries its
// layout transition. OldLayout == NewLayout means visibility only.
type ImageSync struct {
	Resource  registry.Handle
	SrcAccess gpu.Access
	DstAccess gpu.Access
	OldLayout gpu.ImageLayout
	NewLayout gpu.ImageLayout
}

// BarrierPlan is the single coalesced barrier issued immediately before
// one pass executes.
type BarrierPlan struct {
	SrcStages gpu.Stage
	DstStages gpu.Stage
	Buffers   []BufferSync
	Images    []ImageSync
}

// Empty reports whether the pass needs no synchronization at all.
func (p BarrierPlan) Empty() bool {
	return p.SrcStages == gpu.StageNone && p.DstStages == gpu.StageNone &&
		len(p.Buffers) == 0 && len(p.Images) == 0
}

// Plan holds one BarrierPlan per pass, index-aligned with the graph's
// topological order.
type Plan struct {
	Barriers []BarrierPlan

	// FinalLayouts is each image's layout after the frame's last access.
	// Compute never writes layouts back to the registry; the executor
	// calls Commit once the frame is actually on the queue.
	FinalLayouts map[registry.Handle]gpu.ImageLayout
}

// Commit writes the plan's final image layouts to the registry. Call only
// after the frame submits: a compiled-then-abandoned plan must leave the
// tracked layouts at whatever the GPU last saw.
func (p *Plan) Commit(reg *registry.Registry) {
	for h, layout := range p.FinalLayouts {
		if res, err := reg.Lookup(h); err == nil {
			res.Layout = layout
		}
	}
}

// resourceState is the planner's mutable view of one resource while the
// plan is built.
type resourceState struct {
	written     bool
	writeStage  gpu.Stage
	writeAccess gpu.Access
	readStages  gpu.Stage
	layout      gpu.ImageLayout

	// visibleStages/visibleAccess record where the last write has already
	// been made visible, so chained readers at a covered stage do not
	// re-issue the same barrier.
	visibleStages gpu.Stage
	visibleAccess gpu.Access
}

// Compute builds the barrier schedule for an ordered graph and its memory
// placement. It reads each image's tracked layout but never writes it:
// final layouts land in the plan, and the executor commits them after
// submission so persistent images carry their layout into the next frame
// only when the transitions actually ran.
func Compute(g *passgraph.OrderedGraph, placement *alias.Placement, reg *registry.Registry) (*Plan, error) {
	plan := &Plan{
		Barriers:     make([]BarrierPlan, g.Len()),
		FinalLayouts: make(map[registry.Handle]gpu.ImageLayout),
	}
	states := make(map[registry.Handle]*resourceState)

	state := func(h registry.Handle) (*resourceState, *registry.Resource, error) {
		res, err := reg.Lookup(h)
		if err != nil {
			return nil, nil, err
		}
		st, ok := states[h]
		if !ok {
			// Transient images start Undefined each frame; persistent
			// images resume the layout the previous frame left them in.
			st = &resourceState{layout: res.Layout}
			states[h] = st
		}
		return st, res, nil
	}

	for i, pass := range g.Passes {
		barrier := &plan.Barriers[i]

		for _, a := range pass.Accesses {
			st, res, err := state(a.Resource)
			if err != nil {
				return nil, err
			}
			planAccess(barrier, st, res, a)
			advance(st, res, a)
			if res.Kind == registry.KindImage {
				plan.FinalLayouts[res.Handle] = st.layout
			}
		}
	}

	if err := planAliasBoundaries(plan, g, placement); err != nil {
		return nil, err
	}
	return plan, nil
}

// planAccess folds one access's incoming hazards into the pass barrier.
func planAccess(barrier *BarrierPlan, st *resourceState, res *registry.Resource, a passgraph.Access) {
	isImage := res.Kind == registry.KindImage
	needsTransition := isImage && a.Layout != st.layout

	// A pure write that is the resource's first access this frame needs no
	// ordering, and transitioning out of Undefined discards contents, so
	// the transition folds into the write's own initialization (a render
	// pass with initialLayout Undefined). The pass starts clean.
	firstTouch := !st.written && st.readStages == gpu.StageNone
	if needsTransition && firstTouch && st.layout == gpu.LayoutUndefined && a.Mode == passgraph.Write {
		needsTransition = false
	}

	var srcAccess gpu.Access
	needsBarrier := false

	alreadyVisible := a.Stage&^st.visibleStages == 0 && a.Access&^st.visibleAccess == 0
	if st.written && !alreadyVisible && (a.Mode == passgraph.Read || a.Mode == passgraph.ReadWrite) {
		// Read-after-write: make the write visible to the reader.
		needsBarrier = true
		srcAccess |= st.writeAccess
	}
	if st.written && (a.Mode == passgraph.Write || a.Mode == passgraph.ReadWrite) {
		// Write-after-write: order the writes and flush the first.
		needsBarrier = true
		srcAccess |= st.writeAccess
	}
	if st.readStages != gpu.StageNone && (a.Mode == passgraph.Write || a.Mode == passgraph.ReadWrite) {
		// Write-after-read: execution ordering only, readers produced
		// nothing that needs flushing.
		barrier.SrcStages |= st.readStages
		barrier.DstStages |= a.Stage
	}

	if needsBarrier || needsTransition {
		barrier.SrcStages |= st.writeStage
		barrier.DstStages |= a.Stage

		if isImage {
			barrier.Images = append(barrier.Images, ImageSync{
				Resource:  res.Handle,
				SrcAccess: srcAccess,
				DstAccess: a.Access,
				OldLayout: st.layout,
				NewLayout: a.Layout,
			})
		} else {
			barrier.Buffers = append(barrier.Buffers, BufferSync{
				Resource:  res.Handle,
				SrcAccess: srcAccess,
				DstAccess: a.Access,
			})
		}
	}
}

// advance updates the tracked state after the access executes.
func advance(st *resourceState, res *registry.Resource, a passgraph.Access) {
	switch a.Mode {
	case passgraph.Read:
		st.readStages |= a.Stage
		st.visibleStages |= a.Stage
		st.visibleAccess |= a.Access
	case passgraph.Write, passgraph.ReadWrite:
		st.written = true
		st.writeStage = a.Stage
		st.writeAccess = a.Access & (gpu.AccessShaderWrite | gpu.AccessColorAttachmentWrite |
			gpu.AccessDepthStencilWrite | gpu.AccessTransferWrite | gpu.AccessHostWrite)
		st.readStages = gpu.StageNone
		st.visibleStages = gpu.StageNone
		st.visibleAccess = gpu.AccessNone
	}
	if res.Kind == registry.KindImage {
		st.layout = a.Layout
	}
}

// planAliasBoundaries fences every memory hand-off between transient
// resources sharing a block: the retiring resource's last pass must
// complete before the incoming resource's first pass begins.
func planAliasBoundaries(plan *Plan, g *passgraph.OrderedGraph, placement *alias.Placement) error {
	for _, bd := range placement.Boundaries {
		srcStage := accessStageAt(g, bd.RetiringLast, bd.Retiring)
		dstStage := accessStageAt(g, bd.IncomingFirst, bd.Incoming)
		if srcStage == gpu.StageNone || dstStage == gpu.StageNone {
			return errors.New(errors.ErrCodeInternal,
				"aliasing boundary between passes %d and %d references untouched resources",
				bd.RetiringLast, bd.IncomingFirst)
		}
		barrier := &plan.Barriers[bd.IncomingFirst]
		barrier.SrcStages |= srcStage
		barrier.DstStages |= dstStage
	}
	return nil
}

func accessStageAt(g *passgraph.OrderedGraph, index int, h registry.Handle) gpu.Stage {
	if index < 0 || index >= g.Len() {
		return gpu.StageNone
	}
	for _, a := range g.Passes[index].Accesses {
		if a.Resource == h {
			return a.Stage
		}
	}
	return gpu.StageNone
}
