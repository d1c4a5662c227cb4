package vulkan

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/glasswing-gfx/framegraph/pkg/gpu"
)

// commandBuffer implements gpu.CommandBuffer on a primary one-time-submit
// Vulkan command buffer.
type commandBuffer struct {
	adapter *Adapter
	cb      vk.CommandBuffer
}

func (c *commandBuffer) Begin() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return vk.Error(vk.BeginCommandBuffer(c.cb, &beginInfo))
}

func (c *commandBuffer) End() error {
	return vk.Error(vk.EndCommandBuffer(c.cb))
}

func (c *commandBuffer) PipelineBarrier(b gpu.BarrierBatch) {
	if b.IsZero() {
		return
	}

	srcStages := pipelineStageFlags(b.SrcStages)
	dstStages := pipelineStageFlags(b.DstStages)
	// A dependency with no producer side still needs a valid stage mask.
	if srcStages == 0 {
		srcStages = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	if dstStages == 0 {
		dstStages = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}

	bufferBarriers := make([]vk.BufferMemoryBarrier, 0, len(b.Buffers))
	for _, bb := range b.Buffers {
		buffer, ok := c.adapter.buffers[bb.Buffer]
		if !ok {
			continue
		}
		bufferBarriers = append(bufferBarriers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       accessFlags(bb.SrcAccess),
			DstAccessMask:       accessFlags(bb.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              buffer,
			Offset:              0,
			Size:                vk.DeviceSize(vk.MaxUint64), // VK_WHOLE_SIZE
		})
	}

	imageBarriers := make([]vk.ImageMemoryBarrier, 0, len(b.Images))
	for _, ib := range b.Images {
		bound, ok := c.adapter.images[ib.Image]
		if !ok {
			continue
		}
		imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       accessFlags(ib.SrcAccess),
			DstAccessMask:       accessFlags(ib.DstAccess),
			OldLayout:           imageLayout(ib.OldLayout),
			NewLayout:           imageLayout(ib.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               bound.image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: bound.aspect,
				LevelCount: 1,
				LayerCount: 1,
			},
		})
	}

	vk.CmdPipelineBarrier(c.cb, srcStages, dstStages, 0,
		0, nil,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers)
}

func (c *commandBuffer) BindPipeline(p gpu.Pipeline) {
	entry, ok := c.adapter.handles[p]
	if !ok {
		return
	}
	vk.CmdBindPipeline(c.cb, entry.bindPoint, entry.pipeline)
}

func (c *commandBuffer) PushConstants(data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(c.cb, c.adapter.cfg.PipelineLayout,
		vk.ShaderStageFlags(vk.ShaderStageAll), 0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (c *commandBuffer) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(c.cb, x, y, z)
}

func (c *commandBuffer) Draw(vertexCount, instanceCount uint32) {
	vk.CmdDraw(c.cb, vertexCount, instanceCount, 0, 0)
}

func (c *commandBuffer) CopyBuffer(src, dst gpu.BufferHandle, size uint64) {
	srcBuf, okSrc := c.adapter.buffers[src]
	dstBuf, okDst := c.adapter.buffers[dst]
	if !okSrc || !okDst {
		return
	}
	region := vk.BufferCopy{Size: vk.DeviceSize(size)}
	vk.CmdCopyBuffer(c.cb, srcBuf, dstBuf, 1, []vk.BufferCopy{region})
}
