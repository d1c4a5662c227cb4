// Package vulkan adapts the engine's gpu.Device boundary onto the Vulkan
// bindings.
//
// The adapter owns no instance or device lifecycle: the surrounding
// application creates the vk.Device, selects queues and a device-local
// memory type, and hands them in through Config. The adapter only wraps
// the calls the frame-graph executor needs: memory block allocation,
// buffer/image binding, command-buffer recording with coalesced pipeline
// barriers, and queue submission.
package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/glasswing-gfx/framegraph/pkg/errors"
	"github.com/glasswing-gfx/framegraph/pkg/gpu"
)

// Config supplies the process-wide Vulkan state owned by the device-context
// collaborator.
type Config struct {
	Device vk.Device

	// Queues and QueueFamilies map each queue kind the application uses
	// to its vk queue and family index. Kinds may share one queue.
	Queues        map[gpu.QueueKind]vk.Queue
	QueueFamilies map[gpu.QueueKind]uint32

	// MemoryTypeIndex selects the device-local memory type used for all
	// engine-managed blocks.
	MemoryTypeIndex uint32

	// PipelineLayout is the shared layout used for push constants,
	// resolved by the shader-integration collaborator.
	PipelineLayout vk.PipelineLayout

	Limits gpu.Limits
}

// Adapter implements gpu.Device on a vk.Device.
type Adapter struct {
	cfg   Config
	pools map[gpu.QueueKind]vk.CommandPool

	nextBlock  gpu.Block
	nextBuffer gpu.BufferHandle
	nextImage  gpu.ImageHandle
	nextPipe   gpu.Pipeline

	blocks    map[gpu.Block]vk.DeviceMemory
	buffers   map[gpu.BufferHandle]vk.Buffer
	images    map[gpu.ImageHandle]boundImage
	pipelines map[string]vkPipeline
	handles   map[gpu.Pipeline]vkPipeline
}

type boundImage struct {
	image  vk.Image
	aspect vk.ImageAspectFlags
}

type vkPipeline struct {
	pipeline  vk.Pipeline
	bindPoint vk.PipelineBindPoint
	handle    gpu.Pipeline
}

// New creates an adapter and one command pool per configured queue kind.
func New(cfg Config) (*Adapter, error) {
	a := &Adapter{
		cfg:       cfg,
		pools:     make(map[gpu.QueueKind]vk.CommandPool),
		blocks:    make(map[gpu.Block]vk.DeviceMemory),
		buffers:   make(map[gpu.BufferHandle]vk.Buffer),
		images:    make(map[gpu.ImageHandle]boundImage),
		pipelines: make(map[string]vkPipeline),
		handles:   make(map[gpu.Pipeline]vkPipeline),
	}
	for kind, family := range cfg.QueueFamilies {
		poolInfo := vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
			QueueFamilyIndex: family,
		}
		var pool vk.CommandPool
		if err := vk.Error(vk.CreateCommandPool(cfg.Device, &poolInfo, nil, &pool)); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "create command pool for %s queue", kind)
		}
		a.pools[kind] = pool
	}
	return a, nil
}

// Destroy releases the adapter's pools and any blocks still held.
// Bound buffers and images must already be retired by the executor.
func (a *Adapter) Destroy() {
	for _, pool := range a.pools {
		vk.DestroyCommandPool(a.cfg.Device, pool, nil)
	}
	for _, mem := range a.blocks {
		vk.FreeMemory(a.cfg.Device, mem, nil)
	}
}

// RegisterPipeline associates an opaque label with a compiled pipeline
// object. Called by the shader-integration collaborator before the first
// frame that records against the label.
func (a *Adapter) RegisterPipeline(label string, p vk.Pipeline, bindPoint vk.PipelineBindPoint) gpu.Pipeline {
	a.nextPipe++
	entry := vkPipeline{pipeline: p, bindPoint: bindPoint, handle: a.nextPipe}
	a.pipelines[label] = entry
	a.handles[a.nextPipe] = entry
	return a.nextPipe
}

func (a *Adapter) AllocateBlock(size, align uint64) (gpu.Block, error) {
	if align > size {
		size = align
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: a.cfg.MemoryTypeIndex,
	}
	var mem vk.DeviceMemory
	if err := vk.Error(vk.AllocateMemory(a.cfg.Device, &allocInfo, nil, &mem)); err != nil {
		return 0, errors.Wrap(errors.ErrCodeAllocationExhausted, err, "allocate %d byte block", size)
	}
	a.nextBlock++
	a.blocks[a.nextBlock] = mem
	return a.nextBlock, nil
}

func (a *Adapter) ReleaseBlock(b gpu.Block) error {
	mem, ok := a.blocks[b]
	if !ok {
		return errors.New(errors.ErrCodeInternal, "release of unknown block %d", b)
	}
	vk.FreeMemory(a.cfg.Device, mem, nil)
	delete(a.blocks, b)
	return nil
}

func (a *Adapter) CreateBuffer(desc gpu.BufferDesc, b gpu.Block, offset uint64) (gpu.BufferHandle, error) {
	mem, ok := a.blocks[b]
	if !ok {
		return 0, errors.New(errors.ErrCodeInternal, "bind into unknown block %d", b)
	}
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsageFlags(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(a.cfg.Device, &createInfo, nil, &buffer)); err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "create buffer of %d bytes", desc.Size)
	}
	if err := vk.Error(vk.BindBufferMemory(a.cfg.Device, buffer, mem, vk.DeviceSize(offset))); err != nil {
		vk.DestroyBuffer(a.cfg.Device, buffer, nil)
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "bind buffer at offset %d", offset)
	}
	a.nextBuffer++
	a.buffers[a.nextBuffer] = buffer
	return a.nextBuffer, nil
}

func (a *Adapter) CreateImage(desc gpu.ImageDesc, b gpu.Block, offset uint64) (gpu.ImageHandle, error) {
	mem, ok := a.blocks[b]
	if !ok {
		return 0, errors.New(errors.ErrCodeInternal, "bind into unknown block %d", b)
	}
	createInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        imageFormat(desc.Format),
		Extent:        vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := vk.Error(vk.CreateImage(a.cfg.Device, &createInfo, nil, &image)); err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "create %dx%d image", desc.Width, desc.Height)
	}
	if err := vk.Error(vk.BindImageMemory(a.cfg.Device, image, mem, vk.DeviceSize(offset))); err != nil {
		vk.DestroyImage(a.cfg.Device, image, nil)
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "bind image at offset %d", offset)
	}
	a.nextImage++
	a.images[a.nextImage] = boundImage{image: image, aspect: formatAspect(desc.Format)}
	return a.nextImage, nil
}

func (a *Adapter) DestroyBuffer(h gpu.BufferHandle) error {
	buffer, ok := a.buffers[h]
	if !ok {
		return errors.New(errors.ErrCodeInternal, "destroy of unknown buffer %d", h)
	}
	vk.DestroyBuffer(a.cfg.Device, buffer, nil)
	delete(a.buffers, h)
	return nil
}

func (a *Adapter) DestroyImage(h gpu.ImageHandle) error {
	bound, ok := a.images[h]
	if !ok {
		return errors.New(errors.ErrCodeInternal, "destroy of unknown image %d", h)
	}
	vk.DestroyImage(a.cfg.Device, bound.image, nil)
	delete(a.images, h)
	return nil
}

func (a *Adapter) LookupPipeline(label string) (gpu.Pipeline, error) {
	entry, ok := a.pipelines[label]
	if !ok {
		return 0, errors.New(errors.ErrCodeInvalidDeclaration, "unknown pipeline label %q", label)
	}
	return entry.handle, nil
}

func (a *Adapter) NewCommandBuffer(kind gpu.QueueKind) (gpu.CommandBuffer, error) {
	pool, ok := a.pools[kind]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupported, "no %s queue configured", kind)
	}
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmdBuffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(a.cfg.Device, &allocInfo, cmdBuffers)); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "allocate command buffer on %s queue", kind)
	}
	return &commandBuffer{adapter: a, cb: cmdBuffers[0]}, nil
}

func (a *Adapter) Submit(kind gpu.QueueKind, cbs []gpu.CommandBuffer) error {
	queue, ok := a.cfg.Queues[kind]
	if !ok {
		return errors.New(errors.ErrCodeUnsupported, "no %s queue configured", kind)
	}
	if len(cbs) == 0 {
		return nil
	}

	buffers := make([]vk.CommandBuffer, len(cbs))
	for i, cb := range cbs {
		vcb, ok := cb.(*commandBuffer)
		if !ok {
			return errors.New(errors.ErrCodeInternal, "foreign command buffer submitted to vulkan adapter")
		}
		buffers[i] = vcb.cb
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}
	if err := vk.Error(vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)); err != nil {
		return errors.Wrap(errors.ErrCodeDeviceLost, err, "submit %d command buffers to %s queue", len(buffers), kind)
	}
	return nil
}

func (a *Adapter) Limits() gpu.Limits { return a.cfg.Limits }
