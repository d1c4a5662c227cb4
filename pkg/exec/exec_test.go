package exec

import (
	"context"
	"errors"
	"strings"
	"testing"

	fgerrors "github.com/glasswing-gfx/framegraph/pkg/errors"
	"github.com/glasswing-gfx/framegraph/pkg/alias"
	"github.com/glasswing-gfx/framegraph/pkg/gpu"
	"github.com/glasswing-gfx/framegraph/pkg/passgraph"
	"github.com/glasswing-gfx/framegraph/pkg/registry"
	"github.com/glasswing-gfx/framegraph/pkg/syncplan"
)

// compiled bundles one frame's artifacts up to the point of execution.
type compiled struct {
	reg       *registry.Registry
	graph     *passgraph.OrderedGraph
	placement *alias.Placement
	plan      *syncplan.Plan
}

func compile(t *testing.T, device gpu.Device, build func(reg *registry.Registry, b *passgraph.Builder)) compiled {
	t.Helper()
	reg := registry.New()
	b := passgraph.NewBuilder(reg)
	build(reg, b)

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	pool := alias.NewPool(device, alias.Config{})
	placement, err := pool.Allocate(g, reg)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	plan, err := syncplan.Compute(g, placement, reg)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	return compiled{reg: reg, graph: g, placement: placement, plan: plan}
}

func journalContains(journal []string, substr string) bool {
	for _, line := range journal {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestExecuteJournalOrder(t *testing.T) {
	device := gpu.NewNullDevice()

	var particles registry.Handle
	c := compile(t, device, func(reg *registry.Registry, b *passgraph.Builder) {
		particles, _ = reg.DeclareBuffer("particles", gpu.BufferDesc{Size: 4096, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)

		b.AddPass("simulate", gpu.QueueCompute, []passgraph.Access{{
			Resource: particles, Mode: passgraph.Write,
			Stage: gpu.StageComputeShader, Access: gpu.AccessShaderWrite,
		}}, func(rc passgraph.RecordContext) error {
			if _, err := rc.Buffer(particles); err != nil {
				return err
			}
			rc.Commands().Dispatch(64, 1, 1)
			return nil
		})
		b.AddPass("sort", gpu.QueueCompute, []passgraph.Access{{
			Resource: particles, Mode: passgraph.ReadWrite,
			Stage: gpu.StageComputeShader, Access: gpu.AccessShaderRead | gpu.AccessShaderWrite,
		}}, func(rc passgraph.RecordContext) error {
			rc.Commands().Dispatch(64, 1, 1)
			return nil
		})
	})

	if err := New(device, nil).Execute(context.Background(), c.graph, c.placement, c.plan, c.reg); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if device.Submissions != 1 {
		t.Errorf("Submissions = %d, want 1", device.Submissions)
	}

	// Strict ordering: bind, begin, pass one (no barrier, first write),
	// barrier, pass two, end, submit, retire.
	var stream []string
	for _, line := range device.Journal() {
		stream = append(stream, strings.Fields(line)[0])
	}
	want := []string{"allocate_block", "create_buffer", "begin", "dispatch", "barrier", "dispatch", "end", "submit", "destroy_buffer"}
	if len(stream) != len(want) {
		t.Fatalf("journal = %v, want ops %v", device.Journal(), want)
	}
	for i, op := range want {
		if stream[i] != op {
			t.Errorf("journal[%d] = %q, want %q (full: %v)", i, stream[i], op, device.Journal())
		}
	}
}

func TestUndeclaredAccessFailsBeforeSubmit(t *testing.T) {
	device := gpu.NewNullDevice()

	var declared, hidden registry.Handle
	c := compile(t, device, func(reg *registry.Registry, b *passgraph.Builder) {
		declared, _ = reg.DeclareBuffer("declared", gpu.BufferDesc{Size: 256, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)
		hidden, _ = reg.DeclareBuffer("hidden", gpu.BufferDesc{Size: 256, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)

		b.AddPass("rogue", gpu.QueueCompute, []passgraph.Access{{
			Resource: declared, Mode: passgraph.Write,
			Stage: gpu.StageComputeShader, Access: gpu.AccessShaderWrite,
		}}, func(rc passgraph.RecordContext) error {
			_, err := rc.Buffer(hidden)
			return err
		})
		// Keep the hidden buffer in the frame so it gets a placement.
		b.AddPass("legit", gpu.QueueCompute, []passgraph.Access{{
			Resource: hidden, Mode: passgraph.Write,
			Stage: gpu.StageComputeShader, Access: gpu.AccessShaderWrite,
		}}, nil)
	})

	err := New(device, nil).Execute(context.Background(), c.graph, c.placement, c.plan, c.reg)
	if !fgerrors.Is(err, fgerrors.ErrCodeUndeclaredAccess) {
		t.Fatalf("Execute() error = %v, want UNDECLARED_ACCESS", err)
	}
	if device.Submissions != 0 {
		t.Errorf("Submissions = %d after aborted frame, want 0", device.Submissions)
	}
}

func TestResolveBufferAsImage(t *testing.T) {
	device := gpu.NewNullDevice()

	var buf registry.Handle
	c := compile(t, device, func(reg *registry.Registry, b *passgraph.Builder) {
		buf, _ = reg.DeclareBuffer("staging", gpu.BufferDesc{Size: 256, Usage: gpu.BufferUsageTransferSrc}, registry.ResidencyTransient)
		b.AddPass("copy", gpu.QueueTransfer, []passgraph.Access{{
			Resource: buf, Mode: passgraph.Write,
			Stage: gpu.StageTransfer, Access: gpu.AccessTransferWrite,
		}}, func(rc passgraph.RecordContext) error {
			_, err := rc.Image(buf)
			return err
		})
	})

	err := New(device, nil).Execute(context.Background(), c.graph, c.placement, c.plan, c.reg)
	if !fgerrors.Is(err, fgerrors.ErrCodeUndeclaredAccess) {
		t.Fatalf("Execute() error = %v, want UNDECLARED_ACCESS", err)
	}
}

func TestDeviceLostSurfaces(t *testing.T) {
	device := gpu.NewNullDevice()
	device.SubmitErr = errors.New("vk: device lost")

	c := compile(t, device, func(reg *registry.Registry, b *passgraph.Builder) {
		h, _ := reg.DeclareBuffer("scratch", gpu.BufferDesc{Size: 256, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)
		b.AddPass("work", gpu.QueueCompute, []passgraph.Access{{
			Resource: h, Mode: passgraph.Write,
			Stage: gpu.StageComputeShader, Access: gpu.AccessShaderWrite,
		}}, nil)
	})

	err := New(device, nil).Execute(context.Background(), c.graph, c.placement, c.plan, c.reg)
	if !fgerrors.Is(err, fgerrors.ErrCodeDeviceLost) {
		t.Fatalf("Execute() error = %v, want DEVICE_LOST", err)
	}
}

func TestEmptyFrameIsNoOpSubmission(t *testing.T) {
	device := gpu.NewNullDevice()
	c := compile(t, device, func(reg *registry.Registry, b *passgraph.Builder) {})

	if err := New(device, nil).Execute(context.Background(), c.graph, c.placement, c.plan, c.reg); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if device.Submissions != 1 {
		t.Errorf("Submissions = %d, want 1", device.Submissions)
	}
	if journalContains(device.Journal(), "begin") {
		t.Errorf("empty frame recorded commands: %v", device.Journal())
	}
}

func TestCancelledContextAborts(t *testing.T) {
	device := gpu.NewNullDevice()

	recorded := false
	c := compile(t, device, func(reg *registry.Registry, b *passgraph.Builder) {
		h, _ := reg.DeclareBuffer("scratch", gpu.BufferDesc{Size: 256, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)
		b.AddPass("work", gpu.QueueCompute, []passgraph.Access{{
			Resource: h, Mode: passgraph.Write,
			Stage: gpu.StageComputeShader, Access: gpu.AccessShaderWrite,
		}}, func(rc passgraph.RecordContext) error {
			recorded = true
			return nil
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(device, nil).Execute(ctx, c.graph, c.placement, c.plan, c.reg)
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled in chain", err)
	}
	if recorded {
		t.Error("pass recorded despite cancelled context")
	}
	if device.Submissions != 0 {
		t.Errorf("Submissions = %d after cancellation, want 0", device.Submissions)
	}
}

func TestTransientsRetiredAfterFrame(t *testing.T) {
	device := gpu.NewNullDevice()

	var scratch registry.Handle
	c := compile(t, device, func(reg *registry.Registry, b *passgraph.Builder) {
		scratch, _ = reg.DeclareBuffer("scratch", gpu.BufferDesc{Size: 256, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)
		b.AddPass("work", gpu.QueueCompute, []passgraph.Access{{
			Resource: scratch, Mode: passgraph.Write,
			Stage: gpu.StageComputeShader, Access: gpu.AccessShaderWrite,
		}}, nil)
	})

	if err := New(device, nil).Execute(context.Background(), c.graph, c.placement, c.plan, c.reg); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !journalContains(device.Journal(), "destroy_buffer") {
		t.Errorf("transient buffer not destroyed: %v", device.Journal())
	}
	if _, err := c.reg.Lookup(scratch); !fgerrors.Is(err, fgerrors.ErrCodeUnknownResource) {
		t.Errorf("stale transient handle Lookup() error = %v, want UNKNOWN_RESOURCE", err)
	}
}

func TestPersistentObjectsSurviveFrames(t *testing.T) {
	device := gpu.NewNullDevice()
	reg := registry.New()
	pool := alias.NewPool(device, alias.Config{})
	ex := New(device, nil)

	history, _ := reg.DeclareBuffer("history", gpu.BufferDesc{Size: 1024, Usage: gpu.BufferUsageStorage}, registry.ResidencyPersistent)

	runFrame := func() gpu.BufferHandle {
		b := passgraph.NewBuilder(reg)
		b.AddPass("accumulate", gpu.QueueCompute, []passgraph.Access{{
			Resource: history, Mode: passgraph.ReadWrite,
			Stage: gpu.StageComputeShader, Access: gpu.AccessShaderRead | gpu.AccessShaderWrite,
		}}, nil)
		g, err := b.Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		placement, err := pool.Allocate(g, reg)
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		plan, err := syncplan.Compute(g, placement, reg)
		if err != nil {
			t.Fatalf("Compute() error = %v", err)
		}
		if err := ex.Execute(context.Background(), g, placement, plan, reg); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		res, err := reg.Lookup(history)
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		return res.Binding.Buffer
	}

	first := runFrame()
	second := runFrame()
	if first == 0 || first != second {
		t.Errorf("persistent buffer object changed across frames: %d then %d", first, second)
	}
	if journalContains(device.Journal(), "destroy_buffer") {
		t.Errorf("persistent buffer destroyed by frame retirement: %v", device.Journal())
	}
}

func TestPushConstantsOverLimit(t *testing.T) {
	device := gpu.NewNullDevice()

	var h registry.Handle
	c := compile(t, device, func(reg *registry.Registry, b *passgraph.Builder) {
		h, _ = reg.DeclareBuffer("scratch", gpu.BufferDesc{Size: 256, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)
		b.AddPass("work", gpu.QueueCompute, []passgraph.Access{{
			Resource: h, Mode: passgraph.Write,
			Stage: gpu.StageComputeShader, Access: gpu.AccessShaderWrite,
		}}, func(rc passgraph.RecordContext) error {
			return rc.PushConstants(make([]byte, 256)) // limit is 128
		})
	})

	err := New(device, nil).Execute(context.Background(), c.graph, c.placement, c.plan, c.reg)
	if !fgerrors.Is(err, fgerrors.ErrCodeInvalidDeclaration) {
		t.Fatalf("Execute() error = %v, want INVALID_DECLARATION", err)
	}
}

func TestPipelineResolution(t *testing.T) {
	device := gpu.NewNullDevice()
	want := device.RegisterPipeline("blur")

	var h registry.Handle
	c := compile(t, device, func(reg *registry.Registry, b *passgraph.Builder) {
		h, _ = reg.DeclareBuffer("scratch", gpu.BufferDesc{Size: 256, Usage: gpu.BufferUsageStorage}, registry.ResidencyTransient)
		b.AddPass("blur", gpu.QueueCompute, []passgraph.Access{{
			Resource: h, Mode: passgraph.Write,
			Stage: gpu.StageComputeShader, Access: gpu.AccessShaderWrite,
		}}, func(rc passgraph.RecordContext) error {
			p, err := rc.Pipeline("blur")
			if err != nil {
				return err
			}
			if p != want {
				t.Errorf("Pipeline(blur) = %d, want %d", p, want)
			}
			rc.Commands().BindPipeline(p)
			return nil
		})
	})

	if err := New(device, nil).Execute(context.Background(), c.graph, c.placement, c.plan, c.reg); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !journalContains(device.Journal(), "bind_pipeline") {
		t.Errorf("pipeline never bound: %v", device.Journal())
	}
}
