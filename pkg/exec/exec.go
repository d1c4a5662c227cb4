// Package exec replays a compiled frame plan against the GPU adapter.
//
// The executor walks the topological pass order, issues each pass's
// planned barrier, binds the physical resources resolved by the
// allocator, and invokes the pass's recording callback. Nothing reaches
// the GPU queue until every pass has recorded; the single submission at
// the end is the frame's only GPU-visible side effect, so any failure
// before it aborts the frame cleanly.
//
// Recording callbacks resolve resources through their declared accesses
// only. A callback touching an undeclared handle fails with
// UNDECLARED_ACCESS rather than silently bypassing the barrier plan.
package exec

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/glasswing-gfx/framegraph/pkg/alias"
	"github.com/glasswing-gfx/framegraph/pkg/errors"
	"github.com/glasswing-gfx/framegraph/pkg/gpu"
	"github.com/glasswing-gfx/framegraph/pkg/passgraph"
	"github.com/glasswing-gfx/framegraph/pkg/registry"
	"github.com/glasswing-gfx/framegraph/pkg/syncplan"
)

// Executor records and submits compiled frames. One executor serves many
// frames; it is not safe for concurrent use.
type Executor struct {
	device gpu.Device
	logger *log.Logger
}

// New creates an executor over the adapter. A nil logger disables logging.
func New(device gpu.Device, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.New(nil)
		logger.SetLevel(log.FatalLevel)
	}
	return &Executor{device: device, logger: logger}
}

// Execute replays the plan. The context is checked between passes; a
// cancelled frame records nothing further and submits nothing.
//
// After submission the frame's transient resources are retired: their GPU
// objects are destroyed and their registry entries removed, returning the
// aliased memory to the pool for the next frame.
func (e *Executor) Execute(ctx context.Context, g *passgraph.OrderedGraph, placement *alias.Placement, plan *syncplan.Plan, reg *registry.Registry) error {
	trace := uuid.NewString()

	// Transients retire whether the frame submits or aborts; either way
	// nothing of them survives this call.
	defer e.retireTransients(reg)

	queue := gpu.QueueGraphics
	if g.Len() > 0 {
		queue = g.Passes[0].Queue
	}

	if g.Len() == 0 {
		// An empty frame still pulses the queue so frame pacing driven
		// by submissions keeps ticking.
		e.logger.Debug("empty frame, no-op submission", "frame", trace)
		return e.device.Submit(queue, nil)
	}

	if err := e.bindResources(placement, reg); err != nil {
		return err
	}

	cb, err := e.device.NewCommandBuffer(queue)
	if err != nil {
		return err
	}
	if err := cb.Begin(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "begin command buffer")
	}

	for i, pass := range g.Passes {
		if err := ctx.Err(); err != nil {
			e.logger.Debug("frame cancelled before submission", "frame", trace, "pass", pass.Name)
			return errors.Wrap(errors.ErrCodeInternal, err, "frame cancelled before pass %q", pass.Name)
		}

		if batch, err := e.resolveBarrier(plan.Barriers[i], reg); err != nil {
			return err
		} else if !batch.IsZero() {
			cb.PipelineBarrier(batch)
		}

		if pass.Record != nil {
			rc := &recordContext{exec: e, cb: cb, pass: pass, reg: reg}
			if err := pass.Record(rc); err != nil {
				code := errors.GetCode(err)
				if code == "" {
					code = errors.ErrCodeInternal
				}
				return errors.Wrap(code, err, "record pass %q", pass.Name)
			}
		}
	}

	if err := cb.End(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "end command buffer")
	}
	if err := e.device.Submit(queue, []gpu.CommandBuffer{cb}); err != nil {
		return err
	}
	// The transitions are on the queue now; the registry may track them.
	plan.Commit(reg)

	e.logger.Debug("frame submitted", "frame", trace, "queue", queue, "passes", g.Len())
	return nil
}

// bindResources creates the GPU objects for every resource the frame
// touches. Transient objects are created fresh each frame inside their
// aliased block; persistent objects are created once and keep their
// binding.
func (e *Executor) bindResources(placement *alias.Placement, reg *registry.Registry) error {
	for _, res := range reg.Frame() {
		if _, used := placement.Range(res.Handle); !used {
			continue
		}
		if res.Residency == registry.ResidencyExternal {
			continue // arrives pre-bound from its owner
		}
		if !res.Binding.Bound() {
			return errors.New(errors.ErrCodeInternal, "resource %q reached execution without a placement", res.Name)
		}

		switch res.Kind {
		case registry.KindBuffer:
			if res.Binding.Buffer != 0 {
				continue // persistent, already bound
			}
			h, err := e.device.CreateBuffer(res.Buffer, res.Binding.Block, res.Binding.Offset)
			if err != nil {
				return err
			}
			res.Binding.Buffer = h
		case registry.KindImage:
			if res.Binding.Image != 0 {
				continue
			}
			h, err := e.device.CreateImage(res.Image, res.Binding.Block, res.Binding.Offset)
			if err != nil {
				return err
			}
			res.Binding.Image = h
		}
	}
	return nil
}

// resolveBarrier maps a logical barrier plan onto bound GPU handles.
func (e *Executor) resolveBarrier(bp syncplan.BarrierPlan, reg *registry.Registry) (gpu.BarrierBatch, error) {
	batch := gpu.BarrierBatch{SrcStages: bp.SrcStages, DstStages: bp.DstStages}
	if bp.Empty() {
		return gpu.BarrierBatch{}, nil
	}

	for _, bs := range bp.Buffers {
		res, err := reg.Lookup(bs.Resource)
		if err != nil {
			return gpu.BarrierBatch{}, err
		}
		batch.Buffers = append(batch.Buffers, gpu.BufferBarrier{
			Buffer:    res.Binding.Buffer,
			SrcAccess: bs.SrcAccess,
			DstAccess: bs.DstAccess,
		})
	}
	for _, is := range bp.Images {
		res, err := reg.Lookup(is.Resource)
		if err != nil {
			return gpu.BarrierBatch{}, err
		}
		batch.Images = append(batch.Images, gpu.ImageBarrier{
			Image:     res.Binding.Image,
			SrcAccess: is.SrcAccess,
			DstAccess: is.DstAccess,
			OldLayout: is.OldLayout,
			NewLayout: is.NewLayout,
		})
	}
	return batch, nil
}

func (e *Executor) retireTransients(reg *registry.Registry) {
	for _, res := range reg.Reset() {
		var err error
		switch {
		case res.Kind == registry.KindBuffer && res.Binding.Buffer != 0:
			err = e.device.DestroyBuffer(res.Binding.Buffer)
		case res.Kind == registry.KindImage && res.Binding.Image != 0:
			err = e.device.DestroyImage(res.Binding.Image)
		}
		if err != nil {
			e.logger.Warn("retiring transient resource failed", "resource", res.Name, "err", err)
		}
	}
}

// ReleasePersistent destroys a persistent resource's GPU objects and
// removes it from the registry. The backing block is released separately
// by whoever allocated it.
func (e *Executor) ReleasePersistent(reg *registry.Registry, h registry.Handle) error {
	res, err := reg.Lookup(h)
	if err != nil {
		return err
	}
	if res.Binding.Buffer != 0 {
		if err := e.device.DestroyBuffer(res.Binding.Buffer); err != nil {
			return err
		}
	}
	if res.Binding.Image != 0 {
		if err := e.device.DestroyImage(res.Binding.Image); err != nil {
			return err
		}
	}
	if res.Binding.Block != 0 {
		if err := e.device.ReleaseBlock(res.Binding.Block); err != nil {
			return err
		}
	}
	return reg.Release(h)
}

// recordContext is the RecordContext implementation handed to callbacks.
type recordContext struct {
	exec *Executor
	cb   gpu.CommandBuffer
	pass *passgraph.Pass
	reg  *registry.Registry
}

func (rc *recordContext) Commands() gpu.CommandBuffer { return rc.cb }

func (rc *recordContext) declared(h registry.Handle) bool {
	for _, a := range rc.pass.Accesses {
		if a.Resource == h {
			return true
		}
	}
	return false
}

func (rc *recordContext) Buffer(h registry.Handle) (gpu.BufferHandle, error) {
	if !rc.declared(h) {
		return 0, errors.New(errors.ErrCodeUndeclaredAccess,
			"pass %q resolved buffer %d without declaring access to it", rc.pass.Name, h)
	}
	res, err := rc.reg.Lookup(h)
	if err != nil {
		return 0, err
	}
	if res.Kind != registry.KindBuffer {
		return 0, errors.New(errors.ErrCodeUndeclaredAccess,
			"pass %q resolved image %q as a buffer", rc.pass.Name, res.Name)
	}
	return res.Binding.Buffer, nil
}

func (rc *recordContext) Image(h registry.Handle) (gpu.ImageHandle, error) {
	if !rc.declared(h) {
		return 0, errors.New(errors.ErrCodeUndeclaredAccess,
			"pass %q resolved image %d without declaring access to it", rc.pass.Name, h)
	}
	res, err := rc.reg.Lookup(h)
	if err != nil {
		return 0, err
	}
	if res.Kind != registry.KindImage {
		return 0, errors.New(errors.ErrCodeUndeclaredAccess,
			"pass %q resolved buffer %q as an image", rc.pass.Name, res.Name)
	}
	return res.Binding.Image, nil
}

func (rc *recordContext) Pipeline(label string) (gpu.Pipeline, error) {
	return rc.exec.device.LookupPipeline(label)
}

func (rc *recordContext) PushConstants(data []byte) error {
	limit := rc.exec.device.Limits().MaxPushConstantsSize
	if uint32(len(data)) > limit {
		return errors.New(errors.ErrCodeInvalidDeclaration,
			"pass %q pushes %d constant bytes, device limit is %d", rc.pass.Name, len(data), limit)
	}
	rc.cb.PushConstants(data)
	return nil
}
