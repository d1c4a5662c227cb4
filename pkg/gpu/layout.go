package gpu

// ImageLayout is the GPU-visible memory layout of an image. A pass that
// requires a layout different from the image's current one needs a layout
// transition in the barrier issued before it.
type ImageLayout int

const (
	// LayoutUndefined is the initial layout of every transient image at
	// frame start. Transitioning out of Undefined discards contents.
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutGeneral:
		return "general"
	case LayoutColorAttachment:
		return "color_attachment"
	case LayoutDepthStencilAttachment:
		return "depth_stencil_attachment"
	case LayoutDepthStencilReadOnly:
		return "depth_stencil_read_only"
	case LayoutShaderReadOnly:
		return "shader_read_only"
	case LayoutTransferSrc:
		return "transfer_src"
	case LayoutTransferDst:
		return "transfer_dst"
	case LayoutPresent:
		return "present"
	}
	return "undefined"
}
