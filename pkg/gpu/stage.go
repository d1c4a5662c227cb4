package gpu

import "strings"

// Stage is a bitmask of pipeline stages, used to scope execution
// dependencies. The values mirror the classic pipeline-stage split of
// explicit APIs; the Vulkan backend maps them one-to-one.
type Stage uint32

const (
	StageTopOfPipe Stage = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageHost
	StageBottomOfPipe
)

// StageNone is the empty stage mask. Barrier plans with StageNone on both
// sides are no-ops and are not issued.
const StageNone Stage = 0

var stageNames = []struct {
	bit  Stage
	name string
}{
	{StageTopOfPipe, "top_of_pipe"},
	{StageDrawIndirect, "draw_indirect"},
	{StageVertexInput, "vertex_input"},
	{StageVertexShader, "vertex_shader"},
	{StageFragmentShader, "fragment_shader"},
	{StageEarlyFragmentTests, "early_fragment_tests"},
	{StageLateFragmentTests, "late_fragment_tests"},
	{StageColorAttachmentOutput, "color_attachment_output"},
	{StageComputeShader, "compute_shader"},
	{StageTransfer, "transfer"},
	{StageHost, "host"},
	{StageBottomOfPipe, "bottom_of_pipe"},
}

func (s Stage) String() string {
	if s == StageNone {
		return "none"
	}
	var parts []string
	for _, sn := range stageNames {
		if s&sn.bit != 0 {
			parts = append(parts, sn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Access is a bitmask of memory access types, used to scope memory
// visibility in barriers.
type Access uint32

const (
	AccessIndirectCommandRead Access = 1 << iota
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
)

// AccessNone is the empty access mask.
const AccessNone Access = 0

var accessNames = []struct {
	bit  Access
	name string
}{
	{AccessIndirectCommandRead, "indirect_command_read"},
	{AccessIndexRead, "index_read"},
	{AccessVertexAttributeRead, "vertex_attribute_read"},
	{AccessUniformRead, "uniform_read"},
	{AccessShaderRead, "shader_read"},
	{AccessShaderWrite, "shader_write"},
	{AccessColorAttachmentRead, "color_attachment_read"},
	{AccessColorAttachmentWrite, "color_attachment_write"},
	{AccessDepthStencilRead, "depth_stencil_read"},
	{AccessDepthStencilWrite, "depth_stencil_write"},
	{AccessTransferRead, "transfer_read"},
	{AccessTransferWrite, "transfer_write"},
	{AccessHostRead, "host_read"},
	{AccessHostWrite, "host_write"},
}

func (a Access) String() string {
	if a == AccessNone {
		return "none"
	}
	var parts []string
	for _, an := range accessNames {
		if a&an.bit != 0 {
			parts = append(parts, an.name)
		}
	}
	return strings.Join(parts, "|")
}

// writeAccessMask covers every access bit that mutates memory.
const writeAccessMask = AccessShaderWrite | AccessColorAttachmentWrite |
	AccessDepthStencilWrite | AccessTransferWrite | AccessHostWrite

// IsWrite reports whether the mask contains any write access.
func (a Access) IsWrite() bool {
	return a&writeAccessMask != 0
}
