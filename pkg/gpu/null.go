package gpu

import (
	"fmt"

	"github.com/glasswing-gfx/framegraph/pkg/errors"
)

// NullDevice is a Device that performs no GPU work. Every call is recorded
// into a journal of human-readable entries, which tests and the CLI trace
// command use to assert on the exact command stream a plan produces.
//
// The zero value is not usable; use NewNullDevice.
type NullDevice struct {
	nextBlock  Block
	nextBuffer BufferHandle
	nextImage  ImageHandle
	nextPipe   Pipeline

	pipelines map[string]Pipeline
	limits    Limits

	// SubmitErr, when set, is returned from Submit to simulate device
	// loss in tests.
	SubmitErr error

	journal []string
	// Submissions counts Submit calls, including empty ones.
	Submissions int
}

// NewNullDevice creates a recording device with conventional limits.
func NewNullDevice() *NullDevice {
	return &NullDevice{
		pipelines: make(map[string]Pipeline),
		limits: Limits{
			MaxPushConstantsSize: 128,
			MinMemoryAlignment:   256,
		},
	}
}

// Journal returns the recorded call log in order.
func (d *NullDevice) Journal() []string { return d.journal }

func (d *NullDevice) log(format string, args ...any) {
	d.journal = append(d.journal, fmt.Sprintf(format, args...))
}

// RegisterPipeline makes a pipeline label resolvable, standing in for the
// shader-integration collaborator.
func (d *NullDevice) RegisterPipeline(label string) Pipeline {
	d.nextPipe++
	d.pipelines[label] = d.nextPipe
	return d.nextPipe
}

func (d *NullDevice) AllocateBlock(size, align uint64) (Block, error) {
	d.nextBlock++
	d.log("allocate_block id=%d size=%d align=%d", d.nextBlock, size, align)
	return d.nextBlock, nil
}

func (d *NullDevice) ReleaseBlock(b Block) error {
	d.log("release_block id=%d", b)
	return nil
}

func (d *NullDevice) CreateBuffer(desc BufferDesc, b Block, offset uint64) (BufferHandle, error) {
	d.nextBuffer++
	d.log("create_buffer id=%d size=%d block=%d offset=%d", d.nextBuffer, desc.Size, b, offset)
	return d.nextBuffer, nil
}

func (d *NullDevice) CreateImage(desc ImageDesc, b Block, offset uint64) (ImageHandle, error) {
	d.nextImage++
	d.log("create_image id=%d %dx%d format=%s block=%d offset=%d",
		d.nextImage, desc.Width, desc.Height, desc.Format, b, offset)
	return d.nextImage, nil
}

func (d *NullDevice) DestroyBuffer(h BufferHandle) error {
	d.log("destroy_buffer id=%d", h)
	return nil
}

func (d *NullDevice) DestroyImage(h ImageHandle) error {
	d.log("destroy_image id=%d", h)
	return nil
}

func (d *NullDevice) LookupPipeline(label string) (Pipeline, error) {
	p, ok := d.pipelines[label]
	if !ok {
		return 0, errors.New(errors.ErrCodeInvalidDeclaration, "unknown pipeline label %q", label)
	}
	return p, nil
}

func (d *NullDevice) NewCommandBuffer(kind QueueKind) (CommandBuffer, error) {
	return &nullCommandBuffer{device: d, kind: kind}, nil
}

func (d *NullDevice) Submit(kind QueueKind, cbs []CommandBuffer) error {
	d.Submissions++
	if d.SubmitErr != nil {
		return errors.Wrap(errors.ErrCodeDeviceLost, d.SubmitErr, "submit to %s queue failed", kind)
	}
	d.log("submit queue=%s buffers=%d", kind, len(cbs))
	return nil
}

func (d *NullDevice) Limits() Limits { return d.limits }

type nullCommandBuffer struct {
	device *NullDevice
	kind   QueueKind
}

func (c *nullCommandBuffer) Begin() error {
	c.device.log("begin queue=%s", c.kind)
	return nil
}

func (c *nullCommandBuffer) End() error {
	c.device.log("end queue=%s", c.kind)
	return nil
}

func (c *nullCommandBuffer) PipelineBarrier(b BarrierBatch) {
	c.device.log("barrier src=%s dst=%s buffers=%d images=%d",
		b.SrcStages, b.DstStages, len(b.Buffers), len(b.Images))
	for _, ib := range b.Images {
		if ib.OldLayout != ib.NewLayout {
			c.device.log("transition image=%d %s->%s", ib.Image, ib.OldLayout, ib.NewLayout)
		}
	}
}

func (c *nullCommandBuffer) BindPipeline(p Pipeline) {
	c.device.log("bind_pipeline id=%d", p)
}

func (c *nullCommandBuffer) PushConstants(data []byte) {
	c.device.log("push_constants bytes=%d", len(data))
}

func (c *nullCommandBuffer) Dispatch(x, y, z uint32) {
	c.device.log("dispatch %dx%dx%d", x, y, z)
}

func (c *nullCommandBuffer) Draw(vertexCount, instanceCount uint32) {
	c.device.log("draw vertices=%d instances=%d", vertexCount, instanceCount)
}

func (c *nullCommandBuffer) CopyBuffer(src, dst BufferHandle, size uint64) {
	c.device.log("copy_buffer src=%d dst=%d size=%d", src, dst, size)
}
