package syncplan

import (
	"testing"

	"github.com/glasswing-gfx/framegraph/pkg/alias"
	"github.com/glasswing-gfx/framegraph/pkg/gpu"
	"github.com/glasswing-gfx/framegraph/pkg/passgraph"
	"github.com/glasswing-gfx/framegraph/pkg/registry"
)

func compile(t *testing.T, reg *registry.Registry, b *passgraph.Builder) (*passgraph.OrderedGraph, *alias.Placement, *Plan) {
	t.Helper()
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	pool := alias.NewPool(gpu.NewNullDevice(), alias.Config{})
	placement, err := pool.Allocate(g, reg)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	plan, err := Compute(g, placement, reg)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	return g, placement, plan
}

// The canonical three-pass frame: A writes image X, B reads X and writes
// buffer Y, C reads Y.
func TestThreePassScenario(t *testing.T) {
	reg := registry.New()
	b := passgraph.NewBuilder(reg)

	x, _ := reg.DeclareImage("x", gpu.ImageDesc{Width: 256, Height: 256, Format: gpu.FormatRGBA8Unorm,
		Usage: gpu.ImageUsageColorAttachment | gpu.ImageUsageSampled}, registry.ResidencyTransient)
	y, _ := reg.DeclareBuffer("y", gpu.BufferDesc{Size: 4096, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)

	b.AddPass("a", gpu.QueueGraphics, []passgraph.Access{{
		Resource: x, Mode: passgraph.Write,
		Stage: gpu.StageColorAttachmentOutput, Access: gpu.AccessColorAttachmentWrite,
		Layout: gpu.LayoutColorAttachment,
	}}, nil)
	b.AddPass("b", gpu.QueueGraphics, []passgraph.Access{
		{Resource: x, Mode: passgraph.Read,
			Stage: gpu.StageFragmentShader, Access: gpu.AccessShaderRead,
			Layout: gpu.LayoutShaderReadOnly},
		{Resource: y, Mode: passgraph.Write,
			Stage: gpu.StageFragmentShader, Access: gpu.AccessShaderWrite},
	}, nil)
	b.AddPass("c", gpu.QueueGraphics, []passgraph.Access{{
		Resource: y, Mode: passgraph.Read,
		Stage: gpu.StageComputeShader, Access: gpu.AccessShaderRead,
	}}, nil)

	g, _, plan := compile(t, reg, b)

	if got := []string{g.Passes[0].Name, g.Passes[1].Name, g.Passes[2].Name}; got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("order = %v, want [a b c]", got)
	}

	if !plan.Barriers[0].Empty() {
		t.Errorf("barrier before a = %+v, want none", plan.Barriers[0])
	}

	before := plan.Barriers[1]
	if len(before.Images) != 1 {
		t.Fatalf("barrier before b has %d image syncs, want 1", len(before.Images))
	}
	img := before.Images[0]
	if img.Resource != x || img.OldLayout != gpu.LayoutColorAttachment || img.NewLayout != gpu.LayoutShaderReadOnly {
		t.Errorf("image sync = %+v, want x color_attachment->shader_read_only", img)
	}
	if img.SrcAccess != gpu.AccessColorAttachmentWrite || img.DstAccess != gpu.AccessShaderRead {
		t.Errorf("image sync access = %s -> %s, want color_attachment_write -> shader_read", img.SrcAccess, img.DstAccess)
	}
	if before.SrcStages != gpu.StageColorAttachmentOutput || before.DstStages != gpu.StageFragmentShader {
		t.Errorf("barrier before b stages = %s -> %s", before.SrcStages, before.DstStages)
	}

	last := plan.Barriers[2]
	if len(last.Buffers) != 1 || last.Buffers[0].Resource != y {
		t.Fatalf("barrier before c = %+v, want one buffer sync on y", last)
	}
	if last.Buffers[0].SrcAccess != gpu.AccessShaderWrite || last.Buffers[0].DstAccess != gpu.AccessShaderRead {
		t.Errorf("buffer sync access = %s -> %s", last.Buffers[0].SrcAccess, last.Buffers[0].DstAccess)
	}
}

func TestWriteAfterReadIsExecutionOnly(t *testing.T) {
	reg := registry.New()
	b := passgraph.NewBuilder(reg)

	buf, _ := reg.DeclareBuffer("scratch", gpu.BufferDesc{Size: 1024, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)

	b.AddPass("reader", gpu.QueueCompute, []passgraph.Access{{
		Resource: buf, Mode: passgraph.Read, Stage: gpu.StageComputeShader, Access: gpu.AccessShaderRead,
	}}, nil)
	b.AddPass("writer", gpu.QueueCompute, []passgraph.Access{{
		Resource: buf, Mode: passgraph.Write, Stage: gpu.StageTransfer, Access: gpu.AccessTransferWrite,
	}}, nil)

	_, _, plan := compile(t, reg, b)

	barrier := plan.Barriers[1]
	if barrier.Empty() {
		t.Fatal("write-after-read produced no barrier")
	}
	if barrier.SrcStages != gpu.StageComputeShader || barrier.DstStages != gpu.StageTransfer {
		t.Errorf("stages = %s -> %s, want compute_shader -> transfer", barrier.SrcStages, barrier.DstStages)
	}
	// Readers leave nothing to flush: no memory scopes, only execution order.
	if len(barrier.Buffers) != 0 || len(barrier.Images) != 0 {
		t.Errorf("write-after-read barrier carries memory scopes: %+v", barrier)
	}
}

func TestIncomingEdgesCoalesce(t *testing.T) {
	reg := registry.New()
	b := passgraph.NewBuilder(reg)

	va, _ := reg.DeclareBuffer("va", gpu.BufferDesc{Size: 512, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)
	vb, _ := reg.DeclareBuffer("vb", gpu.BufferDesc{Size: 512, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)

	b.AddPass("p1", gpu.QueueCompute, []passgraph.Access{{
		Resource: va, Mode: passgraph.Write, Stage: gpu.StageComputeShader, Access: gpu.AccessShaderWrite,
	}}, nil)
	b.AddPass("p2", gpu.QueueCompute, []passgraph.Access{{
		Resource: vb, Mode: passgraph.Write, Stage: gpu.StageTransfer, Access: gpu.AccessTransferWrite,
	}}, nil)
	b.AddPass("join", gpu.QueueCompute, []passgraph.Access{
		{Resource: va, Mode: passgraph.Read, Stage: gpu.StageComputeShader, Access: gpu.AccessShaderRead},
		{Resource: vb, Mode: passgraph.Read, Stage: gpu.StageComputeShader, Access: gpu.AccessShaderRead},
	}, nil)

	_, _, plan := compile(t, reg, b)

	barrier := plan.Barriers[2]
	if barrier.SrcStages != gpu.StageComputeShader|gpu.StageTransfer {
		t.Errorf("coalesced SrcStages = %s, want compute_shader|transfer", barrier.SrcStages)
	}
	if len(barrier.Buffers) != 2 {
		t.Errorf("coalesced barrier has %d buffer syncs, want 2", len(barrier.Buffers))
	}
}

func TestAliasBoundaryBarrier(t *testing.T) {
	reg := registry.New()
	b := passgraph.NewBuilder(reg)

	desc := gpu.ImageDesc{Width: 64, Height: 64, Format: gpu.FormatRGBA8Unorm, Usage: gpu.ImageUsageColorAttachment}
	p, _ := reg.DeclareImage("p", desc, registry.ResidencyTransient)
	filler, _ := reg.DeclareBuffer("filler", gpu.BufferDesc{Size: 16, Usage: gpu.BufferUsageUniform}, registry.ResidencyPersistent)
	q, _ := reg.DeclareImage("q", desc, registry.ResidencyTransient)

	b.AddPass("pass1", gpu.QueueGraphics, []passgraph.Access{{
		Resource: p, Mode: passgraph.Write,
		Stage: gpu.StageColorAttachmentOutput, Access: gpu.AccessColorAttachmentWrite,
		Layout: gpu.LayoutColorAttachment,
	}}, nil)
	b.AddPass("pass2", gpu.QueueGraphics, []passgraph.Access{{
		Resource: filler, Mode: passgraph.Write, Stage: gpu.StageComputeShader, Access: gpu.AccessShaderWrite,
	}}, nil)
	b.AddPass("pass3", gpu.QueueGraphics, []passgraph.Access{{
		Resource: q, Mode: passgraph.Write,
		Stage: gpu.StageColorAttachmentOutput, Access: gpu.AccessColorAttachmentWrite,
		Layout: gpu.LayoutColorAttachment,
	}}, nil)

	_, placement, plan := compile(t, reg, b)

	bp, _ := placement.BlockOf(p)
	bq, _ := placement.BlockOf(q)
	if bp != bq {
		t.Fatal("p and q were not aliased; scenario requires shared memory")
	}

	barrier := plan.Barriers[2]
	if barrier.Empty() {
		t.Fatal("no barrier at the aliasing boundary before pass3")
	}
	if barrier.SrcStages&gpu.StageColorAttachmentOutput == 0 {
		t.Errorf("boundary SrcStages = %s, want to include color_attachment_output", barrier.SrcStages)
	}
	if barrier.DstStages&gpu.StageColorAttachmentOutput == 0 {
		t.Errorf("boundary DstStages = %s, want to include color_attachment_output", barrier.DstStages)
	}
}

func TestNoTransitionWhenLayoutMatches(t *testing.T) {
	reg := registry.New()

	img, _ := reg.DeclareImage("history", gpu.ImageDesc{Width: 32, Height: 32, Format: gpu.FormatRGBA16Float,
		Usage: gpu.ImageUsageSampled | gpu.ImageUsageStorage}, registry.ResidencyPersistent)

	runFrame := func() *Plan {
		b := passgraph.NewBuilder(reg)
		b.AddPass("sample", gpu.QueueCompute, []passgraph.Access{{
			Resource: img, Mode: passgraph.Read,
			Stage: gpu.StageComputeShader, Access: gpu.AccessShaderRead,
			Layout: gpu.LayoutShaderReadOnly,
		}}, nil)
		_, _, plan := compile(t, reg, b)
		return plan
	}

	// First frame transitions out of Undefined (a read, so not foldable).
	first := runFrame()
	if len(first.Barriers[0].Images) != 1 {
		t.Fatalf("first frame barriers = %+v, want one transition", first.Barriers[0])
	}
	first.Commit(reg)

	// The persistent image carries shader_read_only across submitted frames.
	second := runFrame()
	if !second.Barriers[0].Empty() {
		t.Errorf("second frame barrier = %+v, want none (layout already matches)", second.Barriers[0])
	}
}

func TestReadAfterReadNeedsNothing(t *testing.T) {
	reg := registry.New()
	b := passgraph.NewBuilder(reg)

	buf, _ := reg.DeclareBuffer("constants", gpu.BufferDesc{Size: 64, Usage: gpu.BufferUsageUniform}, registry.ResidencyTransient)

	b.AddPass("w", gpu.QueueCompute, []passgraph.Access{{
		Resource: buf, Mode: passgraph.Write, Stage: gpu.StageTransfer, Access: gpu.AccessTransferWrite,
	}}, nil)
	b.AddPass("r1", gpu.QueueCompute, []passgraph.Access{{
		Resource: buf, Mode: passgraph.Read, Stage: gpu.StageComputeShader, Access: gpu.AccessUniformRead,
	}}, nil)
	b.AddPass("r2", gpu.QueueCompute, []passgraph.Access{{
		Resource: buf, Mode: passgraph.Read, Stage: gpu.StageComputeShader, Access: gpu.AccessUniformRead,
	}}, nil)

	_, _, plan := compile(t, reg, b)

	if plan.Barriers[1].Empty() {
		t.Error("first read after write needs a barrier")
	}
	if !plan.Barriers[2].Empty() {
		t.Errorf("read-after-read barrier = %+v, want none", plan.Barriers[2])
	}
}
