package gpu

// BufferBarrier scopes memory visibility for one bound buffer.
type BufferBarrier struct {
	Buffer    BufferHandle
	SrcAccess Access
	DstAccess Access
}

// ImageBarrier scopes memory visibility for one bound image and optionally
// transitions its layout. OldLayout == NewLayout means no transition.
type ImageBarrier struct {
	Image     ImageHandle
	SrcAccess Access
	DstAccess Access
	OldLayout ImageLayout
	NewLayout ImageLayout
}

// BarrierBatch is one coalesced pipeline barrier: a single execution
// dependency from SrcStages to DstStages carrying any number of buffer and
// image memory scopes. The planner emits at most one batch per pass.
type BarrierBatch struct {
	SrcStages Stage
	DstStages Stage
	Buffers   []BufferBarrier
	Images    []ImageBarrier
}

// IsZero reports whether the batch carries no dependency at all and can be
// skipped during recording.
func (b BarrierBatch) IsZero() bool {
	return b.SrcStages == StageNone && b.DstStages == StageNone &&
		len(b.Buffers) == 0 && len(b.Images) == 0
}

// CommandBuffer is the recording surface handed to pass callbacks and used
// by the executor to issue planned barriers. The command set wraps only
// what the engine and its callbacks need; applications drop to the native
// API through the backend for anything else.
type CommandBuffer interface {
	Begin() error
	End() error

	// PipelineBarrier issues one coalesced barrier batch.
	PipelineBarrier(b BarrierBatch)

	// BindPipeline binds an opaque pipeline object.
	BindPipeline(p Pipeline)

	// PushConstants uploads push-constant data for the bound pipeline.
	PushConstants(data []byte)

	Dispatch(x, y, z uint32)
	Draw(vertexCount, instanceCount uint32)
	CopyBuffer(src, dst BufferHandle, size uint64)
}
