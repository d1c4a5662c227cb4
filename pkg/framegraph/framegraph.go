// Package framegraph is the engine's public facade.
//
// An Engine owns the per-frame pipeline: callers declare resources and
// passes, Compile turns the declarations into an execution plan (ordering,
// memory placement, barrier schedule), and Execute replays the plan on the
// GPU adapter. Compile never touches the GPU queue; every declaration
// error surfaces there, so a frame that fails to compile can be abandoned
// with no GPU-visible side effects.
//
// The Engine is single-threaded per frame: declarations, Compile and
// Execute for one frame must come from one goroutine.
package framegraph

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/glasswing-gfx/framegraph/pkg/alias"
	"github.com/glasswing-gfx/framegraph/pkg/errors"
	"github.com/glasswing-gfx/framegraph/pkg/exec"
	"github.com/glasswing-gfx/framegraph/pkg/gpu"
	"github.com/glasswing-gfx/framegraph/pkg/observability"
	"github.com/glasswing-gfx/framegraph/pkg/passgraph"
	"github.com/glasswing-gfx/framegraph/pkg/registry"
	"github.com/glasswing-gfx/framegraph/pkg/syncplan"
)

// Options configures an Engine.
type Options struct {
	// Budget caps the transient memory pool in bytes. Zero means no cap.
	Budget uint64
	// MinAlignment overrides the device's minimum memory alignment.
	MinAlignment uint64
	// TrimUnused releases pool blocks no resource of the frame aliased
	// into, trading steady-state reuse for a smaller footprint.
	TrimUnused bool
	// Logger receives stage logs. Nil disables logging.
	Logger *log.Logger
}

// Stats carries per-stage compile timings and plan shape, mirroring what
// the stage logs report.
type Stats struct {
	OrderTime time.Duration
	AllocTime time.Duration
	SyncTime  time.Duration

	PassCount    int
	EdgeCount    int
	BarrierCount int
	BlockCount   int
	BytesUsed    uint64
}

// Plan is one frame's compiled execution plan. It is immutable once
// built; Execute replays it without further analysis.
type Plan struct {
	Graph     *passgraph.OrderedGraph
	Placement *alias.Placement
	Sync      *syncplan.Plan

	// Fingerprint is a content hash of the plan: identical declarations
	// produce identical fingerprints, which tests and callers use to
	// verify compilation is deterministic.
	Fingerprint string

	Stats Stats
}

// Engine drives frame declaration, compilation and execution.
type Engine struct {
	device gpu.Device
	logger *log.Logger
	trim   bool

	reg     *registry.Registry
	pool    *alias.Pool
	exec    *exec.Executor
	builder *passgraph.Builder

	frameIndex uint64
}

// New creates an engine over a GPU adapter.
func New(device gpu.Device, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(nil)
		logger.SetLevel(log.FatalLevel)
	}
	reg := registry.New()
	return &Engine{
		device:  device,
		logger:  logger,
		trim:    opts.TrimUnused,
		reg:     reg,
		pool:    alias.NewPool(device, alias.Config{Budget: opts.Budget, MinAlignment: opts.MinAlignment}),
		exec:    exec.New(device, logger),
		builder: passgraph.NewBuilder(reg),
	}
}

// FrameContext carries what the windowing layer hands the engine each
// frame: the acquired swapchain image and the running frame index.
type FrameContext struct {
	// Target is the acquired swapchain image, already owned and
	// synchronized by the windowing layer. Zero for offscreen frames.
	Target gpu.ImageHandle
	// TargetDesc describes the target's extent and format.
	TargetDesc gpu.ImageDesc
	// Index is the monotonically increasing frame number.
	Index uint64
}

// BeginFrame imports the frame context's swapchain target as an external
// image resource named "backbuffer"; passes access it like any declared
// image. Offscreen frames (zero Target) import nothing and return
// InvalidHandle.
func (e *Engine) BeginFrame(fc FrameContext) (registry.Handle, error) {
	e.frameIndex = fc.Index
	if fc.Target == 0 {
		return registry.InvalidHandle, nil
	}
	return e.reg.ImportImage("backbuffer", fc.TargetDesc, fc.Target, gpu.LayoutUndefined)
}

// DeclareBuffer registers a logical buffer for the current frame.
func (e *Engine) DeclareBuffer(name string, desc gpu.BufferDesc, res registry.Residency) (registry.Handle, error) {
	return e.reg.DeclareBuffer(name, desc, res)
}

// DeclareImage registers a logical image for the current frame.
func (e *Engine) DeclareImage(name string, desc gpu.ImageDesc, res registry.Residency) (registry.Handle, error) {
	return e.reg.DeclareImage(name, desc, res)
}

// AddPass declares a pass with its resource accesses and recording
// callback. Declaration order is the deterministic tie-break for
// execution order.
func (e *Engine) AddPass(name string, queue gpu.QueueKind, accesses []passgraph.Access, record passgraph.RecordFunc) (*passgraph.Pass, error) {
	return e.builder.AddPass(name, queue, accesses, record)
}

// DependsOn adds an explicit ordering edge on top of the derived resource
// hazards: earlier must execute before later.
func (e *Engine) DependsOn(later, earlier *passgraph.Pass) {
	e.builder.DependsOn(later, earlier)
}

// Registry exposes the frame's resource table, read-only by convention.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Compile analyzes the declared frame and produces its execution plan.
// The declarations stay intact: compiling twice without changes yields
// plans with equal fingerprints.
func (e *Engine) Compile() (*Plan, error) {
	ctx := context.Background()
	plan := &Plan{}
	passCount := len(e.builder.Passes())

	orderStart := time.Now()
	observability.Compile().OnOrderStart(ctx, passCount)
	g, err := e.builder.Build()
	plan.Stats.OrderTime = time.Since(orderStart)
	observability.Compile().OnOrderComplete(ctx, passCount, plan.Stats.OrderTime, err)
	if err != nil {
		return nil, err
	}
	plan.Graph = g
	plan.Stats.PassCount = g.Len()
	plan.Stats.EdgeCount = len(g.Edges)

	e.logger.Info("ordered passes",
		"passes", plan.Stats.PassCount,
		"edges", plan.Stats.EdgeCount,
		"duration", plan.Stats.OrderTime)

	allocStart := time.Now()
	observability.Compile().OnAllocStart(ctx, len(e.reg.Frame()))
	placement, err := e.pool.Allocate(g, e.reg)
	plan.Stats.AllocTime = time.Since(allocStart)
	observability.Compile().OnAllocComplete(ctx, e.pool.BlockCount(), e.pool.CapacityUsed(), plan.Stats.AllocTime, err)
	if err != nil {
		return nil, err
	}
	if e.trim {
		if err := e.pool.Trim(); err != nil {
			return nil, err
		}
	}
	plan.Placement = placement
	plan.Stats.BlockCount = e.pool.BlockCount()
	plan.Stats.BytesUsed = e.pool.CapacityUsed()

	e.logger.Info("placed memory",
		"blocks", plan.Stats.BlockCount,
		"bytes", plan.Stats.BytesUsed,
		"boundaries", len(placement.Boundaries),
		"duration", plan.Stats.AllocTime)

	syncStart := time.Now()
	observability.Compile().OnSyncStart(ctx, g.Len())
	sync, err := syncplan.Compute(g, placement, e.reg)
	plan.Stats.SyncTime = time.Since(syncStart)
	if err == nil {
		for _, b := range sync.Barriers {
			if !b.Empty() {
				plan.Stats.BarrierCount++
			}
		}
	}
	observability.Compile().OnSyncComplete(ctx, plan.Stats.BarrierCount, plan.Stats.SyncTime, err)
	if err != nil {
		return nil, err
	}
	plan.Sync = sync

	e.logger.Info("planned barriers",
		"barriers", plan.Stats.BarrierCount,
		"duration", plan.Stats.SyncTime)

	plan.Fingerprint = fingerprint(plan)
	return plan, nil
}

// Execute replays a compiled plan and ends the frame: after it returns,
// transient declarations are gone and the engine accepts the next frame's
// declarations. Submission failure surfaces as DEVICE_LOST.
func (e *Engine) Execute(ctx context.Context, plan *Plan) error {
	if plan == nil || plan.Graph == nil {
		return errors.New(errors.ErrCodeInternal, "nil plan")
	}
	frameID := uuid.NewString()
	start := time.Now()
	observability.Frame().OnFrameStart(ctx, frameID, plan.Graph.Len())

	err := e.exec.Execute(ctx, plan.Graph, plan.Placement, plan.Sync, e.reg)
	e.builder = passgraph.NewBuilder(e.reg)

	observability.Frame().OnFrameComplete(ctx, frameID, time.Since(start), err)
	if err != nil {
		return err
	}
	observability.Frame().OnSubmit(ctx, plan.Graph.QueueKind().String(), 1)

	e.logger.Debug("frame complete", "frame", frameID, "index", e.frameIndex, "fingerprint", plan.Fingerprint[:12])
	return nil
}

// Frame compiles and executes the declared frame in one call.
func (e *Engine) Frame(ctx context.Context) (*Plan, error) {
	plan, err := e.Compile()
	if err != nil {
		e.Abandon()
		return nil, err
	}
	if err := e.Execute(ctx, plan); err != nil {
		return plan, err
	}
	return plan, nil
}

// Abandon discards the current frame's declarations without submitting
// anything. Persistent resources survive.
func (e *Engine) Abandon() {
	e.reg.Reset()
	e.builder = passgraph.NewBuilder(e.reg)
}

// Release destroys a persistent resource's GPU objects and backing
// memory and retires its handle.
func (e *Engine) Release(h registry.Handle) error {
	return e.exec.ReleasePersistent(e.reg, h)
}

// Destroy releases the transient memory pool. Call after the last frame.
func (e *Engine) Destroy() error {
	return e.pool.Destroy()
}
