// Package manifest loads frame descriptions from TOML files.
//
// A manifest declares a frame's resources and passes in data, which lets
// the CLI compile and inspect frames offline against the recording
// device, with no shader code or GPU present. Recording callbacks cannot
// be expressed in data, so manifest passes record nothing.
package manifest

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/glasswing-gfx/framegraph/pkg/errors"
	"github.com/glasswing-gfx/framegraph/pkg/framegraph"
	"github.com/glasswing-gfx/framegraph/pkg/gpu"
	"github.com/glasswing-gfx/framegraph/pkg/passgraph"
	"github.com/glasswing-gfx/framegraph/pkg/registry"
)

// Manifest is one frame description.
type Manifest struct {
	Buffers []Buffer `toml:"buffers"`
	Images  []Image  `toml:"images"`
	Passes  []Pass   `toml:"passes"`
}

// Buffer declares a logical buffer.
type Buffer struct {
	Name      string   `toml:"name"`
	Size      uint64   `toml:"size"`
	Usage     []string `toml:"usage"`
	Residency string   `toml:"residency"`
}

// Image declares a logical image.
type Image struct {
	Name      string   `toml:"name"`
	Width     uint32   `toml:"width"`
	Height    uint32   `toml:"height"`
	Format    string   `toml:"format"`
	Usage     []string `toml:"usage"`
	Residency string   `toml:"residency"`
}

// Pass declares one pass and its accesses.
type Pass struct {
	Name      string   `toml:"name"`
	Queue     string   `toml:"queue"`
	DependsOn []string `toml:"depends_on"`
	Access    []Access `toml:"access"`
}

// Access binds a pass to a named resource.
type Access struct {
	Resource string   `toml:"resource"`
	Mode     string   `toml:"mode"`
	Stage    string   `toml:"stage"`
	Access   []string `toml:"access"`
	Layout   string   `toml:"layout"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDeclaration, err, "read manifest")
	}
	return Parse(data)
}

// Parse parses manifest TOML.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDeclaration, err, "parse manifest")
	}
	return &m, nil
}

// Apply declares the manifest's resources and passes on the engine, in
// manifest order. Names referenced before declaration fail the way any
// unknown handle does.
func (m *Manifest) Apply(e *framegraph.Engine) error {
	handles := make(map[string]registry.Handle)

	for _, b := range m.Buffers {
		usage, err := parseBufferUsage(b.Usage)
		if err != nil {
			return err
		}
		res, err := parseResidency(b.Residency)
		if err != nil {
			return err
		}
		h, err := e.DeclareBuffer(b.Name, gpu.BufferDesc{Size: b.Size, Usage: usage}, res)
		if err != nil {
			return err
		}
		handles[b.Name] = h
	}

	for _, img := range m.Images {
		format, err := parseFormat(img.Format)
		if err != nil {
			return err
		}
		usage, err := parseImageUsage(img.Usage)
		if err != nil {
			return err
		}
		res, err := parseResidency(img.Residency)
		if err != nil {
			return err
		}
		h, err := e.DeclareImage(img.Name, gpu.ImageDesc{
			Width: img.Width, Height: img.Height, Format: format, Usage: usage,
		}, res)
		if err != nil {
			return err
		}
		handles[img.Name] = h
	}

	passes := make(map[string]*passgraph.Pass)
	for _, p := range m.Passes {
		queue, err := parseQueue(p.Queue)
		if err != nil {
			return err
		}
		accesses, err := m.parseAccesses(p, handles)
		if err != nil {
			return err
		}
		pass, err := e.AddPass(p.Name, queue, accesses, nil)
		if err != nil {
			return err
		}
		passes[p.Name] = pass

		for _, dep := range p.DependsOn {
			earlier, ok := passes[dep]
			if !ok {
				return errors.New(errors.ErrCodeInvalidDeclaration,
					"pass %q depends on %q, which is not declared before it", p.Name, dep)
			}
			e.DependsOn(pass, earlier)
		}
	}
	return nil
}

func (m *Manifest) parseAccesses(p Pass, handles map[string]registry.Handle) ([]passgraph.Access, error) {
	var out []passgraph.Access
	for _, a := range p.Access {
		h, ok := handles[a.Resource]
		if !ok {
			return nil, errors.New(errors.ErrCodeUnknownResource,
				"pass %q references undeclared resource %q", p.Name, a.Resource)
		}
		mode, err := parseMode(a.Mode)
		if err != nil {
			return nil, err
		}
		stage, err := parseStage(a.Stage)
		if err != nil {
			return nil, err
		}
		access, err := parseAccessMask(a.Access)
		if err != nil {
			return nil, err
		}
		layout, err := parseLayout(a.Layout)
		if err != nil {
			return nil, err
		}
		out = append(out, passgraph.Access{
			Resource: h, Mode: mode, Stage: stage, Access: access, Layout: layout,
		})
	}
	return out, nil
}

func parseResidency(s string) (registry.Residency, error) {
	switch strings.ToLower(s) {
	case "", "transient":
		return registry.ResidencyTransient, nil
	case "persistent":
		return registry.ResidencyPersistent, nil
	}
	return 0, errors.New(errors.ErrCodeInvalidDeclaration, "unknown residency %q", s)
}

func parseQueue(s string) (gpu.QueueKind, error) {
	switch strings.ToLower(s) {
	case "", "graphics":
		return gpu.QueueGraphics, nil
	case "compute":
		return gpu.QueueCompute, nil
	case "transfer":
		return gpu.QueueTransfer, nil
	}
	return 0, errors.New(errors.ErrCodeInvalidDeclaration, "unknown queue %q", s)
}

func parseMode(s string) (passgraph.AccessMode, error) {
	switch strings.ToLower(s) {
	case "read":
		return passgraph.Read, nil
	case "write":
		return passgraph.Write, nil
	case "read_write", "readwrite":
		return passgraph.ReadWrite, nil
	}
	return 0, errors.New(errors.ErrCodeInvalidDeclaration, "unknown access mode %q", s)
}

func parseFormat(s string) (gpu.Format, error) {
	switch strings.ToLower(s) {
	case "rgba8_unorm":
		return gpu.FormatRGBA8Unorm, nil
	case "bgra8_unorm":
		return gpu.FormatBGRA8Unorm, nil
	case "rgba16_float":
		return gpu.FormatRGBA16Float, nil
	case "rgba32_float":
		return gpu.FormatRGBA32Float, nil
	case "r32_uint":
		return gpu.FormatR32Uint, nil
	case "d32_float":
		return gpu.FormatD32Float, nil
	}
	return gpu.FormatUndefined, errors.New(errors.ErrCodeInvalidDeclaration, "unknown format %q", s)
}

var bufferUsageNames = map[string]gpu.BufferUsage{
	"uniform":      gpu.BufferUsageUniform,
	"storage":      gpu.BufferUsageStorage,
	"index":        gpu.BufferUsageIndex,
	"vertex":       gpu.BufferUsageVertex,
	"indirect":     gpu.BufferUsageIndirect,
	"transfer_src": gpu.BufferUsageTransferSrc,
	"transfer_dst": gpu.BufferUsageTransferDst,
}

func parseBufferUsage(names []string) (gpu.BufferUsage, error) {
	var usage gpu.BufferUsage
	for _, n := range names {
		u, ok := bufferUsageNames[strings.ToLower(n)]
		if !ok {
			return 0, errors.New(errors.ErrCodeInvalidDeclaration, "unknown buffer usage %q", n)
		}
		usage |= u
	}
	return usage, nil
}

var imageUsageNames = map[string]gpu.ImageUsage{
	"sampled":                  gpu.ImageUsageSampled,
	"storage":                  gpu.ImageUsageStorage,
	"color_attachment":         gpu.ImageUsageColorAttachment,
	"depth_stencil_attachment": gpu.ImageUsageDepthStencilAttachment,
	"transfer_src":             gpu.ImageUsageTransferSrc,
	"transfer_dst":             gpu.ImageUsageTransferDst,
}

func parseImageUsage(names []string) (gpu.ImageUsage, error) {
	var usage gpu.ImageUsage
	for _, n := range names {
		u, ok := imageUsageNames[strings.ToLower(n)]
		if !ok {
			return 0, errors.New(errors.ErrCodeInvalidDeclaration, "unknown image usage %q", n)
		}
		usage |= u
	}
	return usage, nil
}

var stageNames = map[string]gpu.Stage{
	"top_of_pipe":             gpu.StageTopOfPipe,
	"draw_indirect":           gpu.StageDrawIndirect,
	"vertex_input":            gpu.StageVertexInput,
	"vertex_shader":           gpu.StageVertexShader,
	"fragment_shader":         gpu.StageFragmentShader,
	"early_fragment_tests":    gpu.StageEarlyFragmentTests,
	"late_fragment_tests":     gpu.StageLateFragmentTests,
	"color_attachment_output": gpu.StageColorAttachmentOutput,
	"compute_shader":          gpu.StageComputeShader,
	"transfer":                gpu.StageTransfer,
	"host":                    gpu.StageHost,
	"bottom_of_pipe":          gpu.StageBottomOfPipe,
}

func parseStage(s string) (gpu.Stage, error) {
	var stage gpu.Stage
	for _, n := range strings.Split(s, "|") {
		st, ok := stageNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, errors.New(errors.ErrCodeInvalidDeclaration, "unknown pipeline stage %q", n)
		}
		stage |= st
	}
	return stage, nil
}

var accessNames = map[string]gpu.Access{
	"indirect_command_read":   gpu.AccessIndirectCommandRead,
	"index_read":              gpu.AccessIndexRead,
	"vertex_attribute_read":   gpu.AccessVertexAttributeRead,
	"uniform_read":            gpu.AccessUniformRead,
	"shader_read":             gpu.AccessShaderRead,
	"shader_write":            gpu.AccessShaderWrite,
	"color_attachment_read":   gpu.AccessColorAttachmentRead,
	"color_attachment_write":  gpu.AccessColorAttachmentWrite,
	"depth_stencil_read":      gpu.AccessDepthStencilRead,
	"depth_stencil_write":     gpu.AccessDepthStencilWrite,
	"transfer_read":           gpu.AccessTransferRead,
	"transfer_write":          gpu.AccessTransferWrite,
	"host_read":               gpu.AccessHostRead,
	"host_write":              gpu.AccessHostWrite,
}

func parseAccessMask(names []string) (gpu.Access, error) {
	var access gpu.Access
	for _, n := range names {
		a, ok := accessNames[strings.ToLower(n)]
		if !ok {
			return 0, errors.New(errors.ErrCodeInvalidDeclaration, "unknown access flag %q", n)
		}
		access |= a
	}
	return access, nil
}

var layoutNames = map[string]gpu.ImageLayout{
	"":                         gpu.LayoutUndefined,
	"undefined":                gpu.LayoutUndefined,
	"general":                  gpu.LayoutGeneral,
	"color_attachment":         gpu.LayoutColorAttachment,
	"depth_stencil_attachment": gpu.LayoutDepthStencilAttachment,
	"depth_stencil_read_only":  gpu.LayoutDepthStencilReadOnly,
	"shader_read_only":         gpu.LayoutShaderReadOnly,
	"transfer_src":             gpu.LayoutTransferSrc,
	"transfer_dst":             gpu.LayoutTransferDst,
	"present":                  gpu.LayoutPresent,
}

func parseLayout(s string) (gpu.ImageLayout, error) {
	l, ok := layoutNames[strings.ToLower(s)]
	if !ok {
		return 0, errors.New(errors.ErrCodeInvalidDeclaration, "unknown image layout %q", s)
	}
	return l, nil
}
