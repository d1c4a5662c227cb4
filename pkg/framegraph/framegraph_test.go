package framegraph

import (
	"context"
	"strings"
	"testing"

	"github.com/glasswing-gfx/framegraph/pkg/errors"
	"github.com/glasswing-gfx/framegraph/pkg/gpu"
	"github.com/glasswing-gfx/framegraph/pkg/passgraph"
	"github.com/glasswing-gfx/framegraph/pkg/registry"
)

// declareDeferredFrame declares the canonical three-pass frame: a gbuffer
// pass writes an image, a lighting pass samples it into a buffer, a
// readback pass copies the buffer out.
func declareDeferredFrame(t *testing.T, e *Engine) (gbuffer, lit registry.Handle) {
	t.Helper()

	gbuffer, err := e.DeclareImage("gbuffer", gpu.ImageDesc{
		Width: 1920, Height: 1080, Format: gpu.FormatRGBA8Unorm,
		Usage: gpu.ImageUsageColorAttachment | gpu.ImageUsageSampled,
	}, registry.ResidencyTransient)
	if err != nil {
		t.Fatalf("DeclareImage() error = %v", err)
	}
	lit, err = e.DeclareBuffer("lit", gpu.BufferDesc{
		Size: 1920 * 1080 * 4, Usage: gpu.BufferUsageStorage | gpu.BufferUsageTransferSrc,
	}, registry.ResidencyTransient)
	if err != nil {
		t.Fatalf("DeclareBuffer() error = %v", err)
	}
	readback, err := e.DeclareBuffer("readback", gpu.BufferDesc{
		Size: 1920 * 1080 * 4, Usage: gpu.BufferUsageTransferDst,
	}, registry.ResidencyPersistent)
	if err != nil {
		t.Fatalf("DeclareBuffer() error = %v", err)
	}

	mustPass := func(name string, queue gpu.QueueKind, accesses []passgraph.Access) {
		if _, err := e.AddPass(name, queue, accesses, nil); err != nil {
			t.Fatalf("AddPass(%s) error = %v", name, err)
		}
	}

	mustPass("gbuffer", gpu.QueueGraphics, []passgraph.Access{{
		Resource: gbuffer, Mode: passgraph.Write,
		Stage: gpu.StageColorAttachmentOutput, Access: gpu.AccessColorAttachmentWrite,
		Layout: gpu.LayoutColorAttachment,
	}})
	mustPass("lighting", gpu.QueueGraphics, []passgraph.Access{
		{
			Resource: gbuffer, Mode: passgraph.Read,
			Stage: gpu.StageFragmentShader, Access: gpu.AccessShaderRead,
			Layout: gpu.LayoutShaderReadOnly,
		},
		{
			Resource: lit, Mode: passgraph.Write,
			Stage: gpu.StageFragmentShader, Access: gpu.AccessShaderWrite,
		},
	})
	mustPass("readback", gpu.QueueGraphics, []passgraph.Access{
		{
			Resource: lit, Mode: passgraph.Read,
			Stage: gpu.StageTransfer, Access: gpu.AccessTransferRead,
		},
		{
			Resource: readback, Mode: passgraph.Write,
			Stage: gpu.StageTransfer, Access: gpu.AccessTransferWrite,
		},
	})
	return gbuffer, lit
}

func TestCompileAndExecuteDeferredFrame(t *testing.T) {
	device := gpu.NewNullDevice()
	e := New(device, Options{})
	declareDeferredFrame(t, e)

	plan, err := e.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if plan.Stats.PassCount != 3 {
		t.Errorf("PassCount = %d, want 3", plan.Stats.PassCount)
	}
	// gbuffer write needs no barrier; lighting and readback each do.
	if plan.Stats.BarrierCount != 2 {
		t.Errorf("BarrierCount = %d, want 2", plan.Stats.BarrierCount)
	}
	if len(plan.Fingerprint) != 64 {
		t.Errorf("Fingerprint length = %d, want 64", len(plan.Fingerprint))
	}

	if err := e.Execute(context.Background(), plan); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if device.Submissions != 1 {
		t.Errorf("Submissions = %d, want 1", device.Submissions)
	}

	var sawTransition bool
	for _, line := range device.Journal() {
		if strings.Contains(line, "transition image=") &&
			strings.Contains(line, "color_attachment->shader_read_only") {
			sawTransition = true
		}
	}
	if !sawTransition {
		t.Errorf("missing gbuffer layout transition in journal: %v", device.Journal())
	}
}

func TestBeginFrameImportsBackbuffer(t *testing.T) {
	device := gpu.NewNullDevice()
	e := New(device, Options{})

	fc := FrameContext{
		Target:     gpu.ImageHandle(77),
		TargetDesc: gpu.ImageDesc{Width: 1280, Height: 720, Format: gpu.FormatBGRA8Unorm, Usage: gpu.ImageUsageColorAttachment},
		Index:      3,
	}
	target, err := e.BeginFrame(fc)
	if err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	if target == registry.InvalidHandle {
		t.Fatal("BeginFrame() returned InvalidHandle for a valid target")
	}

	if _, err := e.AddPass("present_blit", gpu.QueueGraphics, []passgraph.Access{{
		Resource: target, Mode: passgraph.Write,
		Stage: gpu.StageColorAttachmentOutput, Access: gpu.AccessColorAttachmentWrite,
		Layout: gpu.LayoutColorAttachment,
	}}, nil); err != nil {
		t.Fatalf("AddPass() error = %v", err)
	}

	if _, err := e.Frame(context.Background()); err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if device.Submissions != 1 {
		t.Errorf("Submissions = %d, want 1", device.Submissions)
	}

	// The target belongs to the windowing layer: never created or
	// destroyed here, and its handle does not survive the frame.
	for _, line := range device.Journal() {
		if strings.Contains(line, "create_image") || strings.Contains(line, "destroy_image") {
			t.Errorf("imported target touched device image lifecycle: %s", line)
		}
	}
	_, err = e.AddPass("stale", gpu.QueueGraphics, []passgraph.Access{{
		Resource: target, Mode: passgraph.Read,
		Stage: gpu.StageFragmentShader, Access: gpu.AccessShaderRead,
		Layout: gpu.LayoutShaderReadOnly,
	}}, nil)
	if !errors.Is(err, errors.ErrCodeUnknownResource) {
		t.Errorf("AddPass(stale target) error = %v, want UNKNOWN_RESOURCE", err)
	}
}

func TestCompileDeterministic(t *testing.T) {
	build := func() string {
		e := New(gpu.NewNullDevice(), Options{})
		declareDeferredFrame(t, e)
		plan, err := e.Compile()
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		return plan.Fingerprint
	}

	first := build()
	for i := 0; i < 5; i++ {
		if got := build(); got != first {
			t.Fatalf("fingerprint diverged on rebuild %d: %s vs %s", i, got, first)
		}
	}
}

func TestCompileTwiceSameFrame(t *testing.T) {
	e := New(gpu.NewNullDevice(), Options{})
	declareDeferredFrame(t, e)

	p1, err := e.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	p2, err := e.Compile()
	if err != nil {
		t.Fatalf("second Compile() error = %v", err)
	}
	if p1.Fingerprint != p2.Fingerprint {
		t.Errorf("recompiling unchanged frame changed fingerprint: %s vs %s", p1.Fingerprint, p2.Fingerprint)
	}
}

func TestLayoutsCommitOnSubmitOnly(t *testing.T) {
	device := gpu.NewNullDevice()
	e := New(device, Options{})

	history, err := e.DeclareImage("history", gpu.ImageDesc{
		Width: 256, Height: 256, Format: gpu.FormatRGBA16Float,
		Usage: gpu.ImageUsageColorAttachment | gpu.ImageUsageSampled,
	}, registry.ResidencyPersistent)
	if err != nil {
		t.Fatalf("DeclareImage() error = %v", err)
	}

	declare := func() {
		if _, err := e.AddPass("accumulate", gpu.QueueGraphics, []passgraph.Access{{
			Resource: history, Mode: passgraph.Write,
			Stage: gpu.StageColorAttachmentOutput, Access: gpu.AccessColorAttachmentWrite,
			Layout: gpu.LayoutColorAttachment,
		}}, nil); err != nil {
			t.Fatalf("AddPass() error = %v", err)
		}
		if _, err := e.AddPass("sample", gpu.QueueGraphics, []passgraph.Access{{
			Resource: history, Mode: passgraph.Read,
			Stage: gpu.StageFragmentShader, Access: gpu.AccessShaderRead,
			Layout: gpu.LayoutShaderReadOnly,
		}}, nil); err != nil {
			t.Fatalf("AddPass() error = %v", err)
		}
	}

	// Compiling must not advance the tracked layout: an abandoned frame
	// leaves the registry at whatever the GPU last saw.
	declare()
	if _, err := e.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	res, err := e.Registry().Lookup(history)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if res.Layout != gpu.LayoutUndefined {
		t.Fatalf("Compile() advanced tracked layout to %s, want undefined", res.Layout)
	}
	e.Abandon()

	// A submitted frame commits; the next frame starts from the committed
	// layout, so its first write transitions out of shader_read_only.
	declare()
	if _, err := e.Frame(context.Background()); err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	res, err = e.Registry().Lookup(history)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if res.Layout != gpu.LayoutShaderReadOnly {
		t.Errorf("layout after submitted frame = %s, want shader_read_only", res.Layout)
	}
}

func TestUnknownHandleRejectedAtDeclaration(t *testing.T) {
	e := New(gpu.NewNullDevice(), Options{})

	_, err := e.AddPass("bogus", gpu.QueueCompute, []passgraph.Access{{
		Resource: 42, Mode: passgraph.Write,
		Stage: gpu.StageComputeShader, Access: gpu.AccessShaderWrite,
	}}, nil)
	if !errors.Is(err, errors.ErrCodeUnknownResource) {
		t.Fatalf("AddPass() error = %v, want UNKNOWN_RESOURCE", err)
	}
}

func TestEmptyFrame(t *testing.T) {
	device := gpu.NewNullDevice()
	e := New(device, Options{})

	plan, err := e.Frame(context.Background())
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if plan.Stats.PassCount != 0 || plan.Stats.BarrierCount != 0 {
		t.Errorf("empty frame stats = %+v", plan.Stats)
	}
	if device.Submissions != 1 {
		t.Errorf("Submissions = %d, want 1 no-op submission", device.Submissions)
	}
}

func TestBudgetSurfacesFromCompile(t *testing.T) {
	e := New(gpu.NewNullDevice(), Options{Budget: 1024})
	declareDeferredFrame(t, e) // needs megabytes

	_, err := e.Compile()
	if !errors.Is(err, errors.ErrCodeAllocationExhausted) {
		t.Fatalf("Compile() error = %v, want ALLOCATION_EXHAUSTED", err)
	}
}

func TestAbandonKeepsPersistents(t *testing.T) {
	e := New(gpu.NewNullDevice(), Options{})

	hist, err := e.DeclareBuffer("history", gpu.BufferDesc{Size: 512, Usage: gpu.BufferUsageStorage}, registry.ResidencyPersistent)
	if err != nil {
		t.Fatalf("DeclareBuffer() error = %v", err)
	}
	tmp, err := e.DeclareBuffer("tmp", gpu.BufferDesc{Size: 512, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)
	if err != nil {
		t.Fatalf("DeclareBuffer() error = %v", err)
	}

	e.Abandon()

	if _, err := e.Registry().Lookup(hist); err != nil {
		t.Errorf("persistent handle lost on abandon: %v", err)
	}
	if _, err := e.Registry().Lookup(tmp); !errors.Is(err, errors.ErrCodeUnknownResource) {
		t.Errorf("transient handle survived abandon: %v", err)
	}
}

func TestSteadyStateFramesReuseBlocks(t *testing.T) {
	device := gpu.NewNullDevice()
	e := New(device, Options{})

	runFrame := func() {
		declareDeferredFrame(t, e)
		if _, err := e.Frame(context.Background()); err != nil {
			t.Fatalf("Frame() error = %v", err)
		}
		// The persistent readback buffer keeps its name; drop it so the
		// next declaration round starts clean.
		res, err := e.Registry().LookupName("readback")
		if err != nil {
			t.Fatalf("LookupName() error = %v", err)
		}
		if err := e.Release(res.Handle); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
	}

	runFrame()
	allocations := 0
	for _, line := range device.Journal() {
		if strings.HasPrefix(line, "allocate_block") {
			allocations++
		}
	}

	runFrame()
	after := 0
	for _, line := range device.Journal() {
		if strings.HasPrefix(line, "allocate_block") {
			after++
		}
	}

	// Second frame re-allocates only the released persistent buffer; the
	// transient pool is warm.
	if after != allocations+1 {
		t.Errorf("allocations went %d -> %d across identical frames, want +1 persistent only", allocations, after)
	}
}

func TestDependsOnCycle(t *testing.T) {
	e := New(gpu.NewNullDevice(), Options{})

	h, err := e.DeclareBuffer("scratch", gpu.BufferDesc{Size: 256, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)
	if err != nil {
		t.Fatalf("DeclareBuffer() error = %v", err)
	}
	access := func() []passgraph.Access {
		return []passgraph.Access{{
			Resource: h, Mode: passgraph.Read,
			Stage: gpu.StageComputeShader, Access: gpu.AccessShaderRead,
		}}
	}
	a, _ := e.AddPass("a", gpu.QueueCompute, access(), nil)
	b, _ := e.AddPass("b", gpu.QueueCompute, access(), nil)
	e.DependsOn(b, a)
	e.DependsOn(a, b)

	_, err = e.Compile()
	if !errors.Is(err, errors.ErrCodeCyclicDependency) {
		t.Fatalf("Compile() error = %v, want CYCLIC_DEPENDENCY", err)
	}
	if !strings.Contains(err.Error(), "a") || !strings.Contains(err.Error(), "b") {
		t.Errorf("cycle error does not name passes: %v", err)
	}
}
