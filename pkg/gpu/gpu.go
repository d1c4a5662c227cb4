// Package gpu defines the boundary between the frame-graph engine and the
// underlying graphics API.
//
// The engine core (graph build, aliasing, barrier planning, execution)
// speaks only the types and interfaces in this package. Concrete backends
// live in subpackages: gpu/vulkan adapts the model onto the Vulkan bindings,
// and the NullDevice in this package records every call into a journal for
// tests and offline plan inspection.
//
// The adapter is deliberately thin: it wraps command-buffer recording,
// pipeline barriers, memory block allocation and queue submission. Device
// and instance creation, swapchain management, and pipeline/shader
// compilation are owned by outside collaborators; the engine only consumes
// their opaque handles.
package gpu

// QueueKind identifies which hardware queue family a pass records against.
// The baseline engine plans for a single queue per frame; frames mixing
// queue kinds are rejected at compile time.
type QueueKind int

const (
	QueueGraphics QueueKind = iota
	QueueCompute
	QueueTransfer
)

func (q QueueKind) String() string {
	switch q {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueTransfer:
		return "transfer"
	}
	return "unknown"
}

// Format is the texel format of an image resource.
type Format int

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatRGBA16Float
	FormatRGBA32Float
	FormatR32Uint
	FormatD32Float
)

func (f Format) String() string {
	switch f {
	case FormatRGBA8Unorm:
		return "rgba8_unorm"
	case FormatBGRA8Unorm:
		return "bgra8_unorm"
	case FormatRGBA16Float:
		return "rgba16_float"
	case FormatRGBA32Float:
		return "rgba32_float"
	case FormatR32Uint:
		return "r32_uint"
	case FormatD32Float:
		return "d32_float"
	}
	return "undefined"
}

// TexelSize returns the byte size of one texel, used to estimate the
// backing allocation for transient images.
func (f Format) TexelSize() uint64 {
	switch f {
	case FormatRGBA8Unorm, FormatBGRA8Unorm, FormatR32Uint, FormatD32Float:
		return 4
	case FormatRGBA16Float:
		return 8
	case FormatRGBA32Float:
		return 16
	}
	return 0
}

// BufferUsage is a bitmask of the ways a buffer may be used.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndirect
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

// ImageUsage is a bitmask of the ways an image may be used.
type ImageUsage uint32

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
	ImageUsageTransferSrc
	ImageUsageTransferDst
)

// BufferDesc describes a logical buffer resource.
type BufferDesc struct {
	Size  uint64
	Usage BufferUsage
}

// ImageDesc describes a logical image resource.
type ImageDesc struct {
	Width  uint32
	Height uint32
	Format Format
	Usage  ImageUsage
}

// ByteSize estimates the backing memory required for the image. Backends
// may pad further; the estimate is an upper bound for budget accounting
// and a lower bound for aliasing capacity checks.
func (d ImageDesc) ByteSize() uint64 {
	return uint64(d.Width) * uint64(d.Height) * d.Format.TexelSize()
}

// Block identifies a device memory block allocated through the adapter.
// Blocks are opaque; the engine tracks offsets within them itself.
type Block uint64

// BufferHandle and ImageHandle are opaque device object handles returned
// when a logical resource is bound to memory.
type (
	BufferHandle uint64
	ImageHandle  uint64
)

// Pipeline is an opaque pipeline object owned by the shader-integration
// collaborator and bound by name during pass recording.
type Pipeline uint64

// Limits reports device properties the engine needs at record time.
type Limits struct {
	// MaxPushConstantsSize is the push-constant byte budget per pipeline.
	MaxPushConstantsSize uint32
	// MinMemoryAlignment is the minimum alignment for sub-allocations
	// placed within one memory block.
	MinMemoryAlignment uint64
}

// Device is the thin adapter the engine drives. One implementation wraps
// the native API (gpu/vulkan); NullDevice records calls for tests.
//
// All methods are single-threaded per frame, matching the engine's
// recording model.
type Device interface {
	// AllocateBlock reserves one device memory block. The engine
	// sub-allocates transient resources inside blocks itself.
	AllocateBlock(size, align uint64) (Block, error)

	// ReleaseBlock returns a block to the device. Called only when the
	// retained pool trims, never per frame.
	ReleaseBlock(b Block) error

	// CreateBuffer and CreateImage bind a logical resource to a region
	// of an allocated block.
	CreateBuffer(desc BufferDesc, b Block, offset uint64) (BufferHandle, error)
	CreateImage(desc ImageDesc, b Block, offset uint64) (ImageHandle, error)

	// DestroyBuffer and DestroyImage release bound objects when their
	// logical resource retires. Memory stays with the block.
	DestroyBuffer(h BufferHandle) error
	DestroyImage(h ImageHandle) error

	// LookupPipeline resolves an opaque pipeline label registered by the
	// shader-integration collaborator.
	LookupPipeline(label string) (Pipeline, error)

	// NewCommandBuffer begins a one-time-submit command buffer for the
	// given queue kind.
	NewCommandBuffer(kind QueueKind) (CommandBuffer, error)

	// Submit sends finished command buffers to the queue. This is the
	// only point where GPU-visible work is committed.
	Submit(kind QueueKind, cbs []CommandBuffer) error

	Limits() Limits
}
