// Package registry tracks the logical resources a frame declares.
//
// The registry owns resource identity and lifetime metadata only: no GPU
// memory is allocated here. Physical placement is deferred to the aliasing
// allocator, and GPU object binding to the executor. Transient resources
// are dropped at every frame reset and must be re-declared; persistent
// resources keep their handle, their physical binding and their image
// layout across frames until released.
package registry

import (
	"github.com/glasswing-gfx/framegraph/pkg/errors"
	"github.com/glasswing-gfx/framegraph/pkg/gpu"
)

// Handle identifies a logical resource within the engine. Handles are
// never reused: transient handles become invalid at frame reset, and a
// lookup through a stale handle fails with UNKNOWN_RESOURCE.
type Handle uint32

// InvalidHandle is the zero handle. No declared resource ever has it.
const InvalidHandle Handle = 0

// Kind distinguishes buffers from images.
type Kind int

const (
	KindBuffer Kind = iota
	KindImage
)

func (k Kind) String() string {
	if k == KindImage {
		return "image"
	}
	return "buffer"
}

// Residency classifies resource lifetime.
type Residency int

const (
	// ResidencyTransient resources live inside one frame and are
	// eligible for memory aliasing.
	ResidencyTransient Residency = iota
	// ResidencyPersistent resources span frames with caller-managed
	// lifetime and a stable physical binding.
	ResidencyPersistent
	// ResidencyExternal resources are imported each frame with a GPU
	// object owned by an outside collaborator, typically the acquired
	// swapchain image. The engine never allocates or destroys them.
	ResidencyExternal
)

func (r Residency) String() string {
	switch r {
	case ResidencyPersistent:
		return "persistent"
	case ResidencyExternal:
		return "external"
	}
	return "transient"
}

// Binding is the physical placement of a resource: a region of a device
// memory block plus the bound GPU object. Assigned by the allocator and
// executor, zero until then.
type Binding struct {
	Block  gpu.Block
	Offset uint64
	Size   uint64
	Buffer gpu.BufferHandle
	Image  gpu.ImageHandle
}

// Bound reports whether the resource has a physical placement.
func (b Binding) Bound() bool { return b.Block != 0 }

// Resource is one logical resource entry. Fields below Layout are mutable
// per-frame state updated by the planner and executor.
type Resource struct {
	Handle    Handle
	Name      string
	Kind      Kind
	Residency Residency

	Buffer gpu.BufferDesc // valid when Kind == KindBuffer
	Image  gpu.ImageDesc  // valid when Kind == KindImage

	// Layout is the image's current GPU-visible layout, updated as the
	// barrier plan is built. Persistent images carry it across frames;
	// transient images reset to Undefined.
	Layout gpu.ImageLayout

	// Binding is the current physical placement. Persistent bindings
	// survive frame resets.
	Binding Binding
}

// ByteSize returns the memory footprint used for placement decisions.
func (r *Resource) ByteSize() uint64 {
	if r.Kind == KindImage {
		return r.Image.ByteSize()
	}
	return r.Buffer.Size
}

// Registry is the frame's resource table. It is not safe for concurrent
// use; the engine's recording model is single-threaded per frame.
type Registry struct {
	resources map[Handle]*Resource
	byName    map[string]Handle
	order     []Handle // declaration order of the current frame
	next      Handle
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		resources: make(map[Handle]*Resource),
		byName:    make(map[string]Handle),
	}
}

// DeclareBuffer registers a logical buffer and reserves its slot in the
// frame's resource table.
func (r *Registry) DeclareBuffer(name string, desc gpu.BufferDesc, res Residency) (Handle, error) {
	if desc.Size == 0 {
		return InvalidHandle, errors.New(errors.ErrCodeInvalidDeclaration, "buffer %q has zero size", name)
	}
	return r.declare(&Resource{Name: name, Kind: KindBuffer, Residency: res, Buffer: desc})
}

// DeclareImage registers a logical image. Image layout starts Undefined.
func (r *Registry) DeclareImage(name string, desc gpu.ImageDesc, res Residency) (Handle, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return InvalidHandle, errors.New(errors.ErrCodeInvalidDeclaration, "image %q has zero extent", name)
	}
	if desc.Format == gpu.FormatUndefined {
		return InvalidHandle, errors.New(errors.ErrCodeInvalidDeclaration, "image %q has undefined format", name)
	}
	return r.declare(&Resource{Name: name, Kind: KindImage, Residency: res, Image: desc, Layout: gpu.LayoutUndefined})
}

// ImportImage registers an externally owned image for this frame only,
// carrying its already-bound GPU object and current layout. The entry is
// dropped at frame reset; the GPU object stays with its owner.
func (r *Registry) ImportImage(name string, desc gpu.ImageDesc, img gpu.ImageHandle, layout gpu.ImageLayout) (Handle, error) {
	if img == 0 {
		return InvalidHandle, errors.New(errors.ErrCodeInvalidDeclaration, "image %q imported without a GPU object", name)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return InvalidHandle, errors.New(errors.ErrCodeInvalidDeclaration, "image %q has zero extent", name)
	}
	if desc.Format == gpu.FormatUndefined {
		return InvalidHandle, errors.New(errors.ErrCodeInvalidDeclaration, "image %q has undefined format", name)
	}
	res := &Resource{Name: name, Kind: KindImage, Residency: ResidencyExternal, Image: desc, Layout: layout}
	res.Binding.Image = img
	return r.declare(res)
}

func (r *Registry) declare(res *Resource) (Handle, error) {
	if res.Name == "" {
		return InvalidHandle, errors.New(errors.ErrCodeInvalidDeclaration, "resource name must not be empty")
	}
	if _, exists := r.byName[res.Name]; exists {
		return InvalidHandle, errors.New(errors.ErrCodeInvalidDeclaration, "duplicate resource name %q", res.Name)
	}
	r.next++
	res.Handle = r.next
	r.resources[res.Handle] = res
	r.byName[res.Name] = res.Handle
	r.order = append(r.order, res.Handle)
	return res.Handle, nil
}

// Lookup resolves a handle. A handle that was never declared, or that
// belonged to a transient resource of an earlier frame, fails with
// UNKNOWN_RESOURCE.
func (r *Registry) Lookup(h Handle) (*Resource, error) {
	res, ok := r.resources[h]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownResource, "handle %d was not declared this frame", h)
	}
	return res, nil
}

// LookupName resolves a resource by its declared name.
func (r *Registry) LookupName(name string) (*Resource, error) {
	h, ok := r.byName[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownResource, "resource %q was not declared this frame", name)
	}
	return r.resources[h], nil
}

// Frame returns the current frame's resources in declaration order.
// Released resources leave a stale handle in the order until the next
// reset; skip them.
func (r *Registry) Frame() []*Resource {
	out := make([]*Resource, 0, len(r.order))
	for _, h := range r.order {
		if res, ok := r.resources[h]; ok {
			out = append(out, res)
		}
	}
	return out
}

// Release removes a persistent resource once the caller is done with it
// across frames. Releasing a transient resource is an error; they retire
// through Reset.
func (r *Registry) Release(h Handle) error {
	res, err := r.Lookup(h)
	if err != nil {
		return err
	}
	if res.Residency != ResidencyPersistent {
		return errors.New(errors.ErrCodeInvalidDeclaration, "resource %q is transient, released by frame reset", res.Name)
	}
	r.remove(res)
	return nil
}

// Reset retires all transient resources and starts the next frame's
// declaration order. Persistent resources keep handle, binding and layout.
// It returns the retired transient resources so the executor can destroy
// their bound GPU objects.
func (r *Registry) Reset() []*Resource {
	var retired []*Resource
	for _, h := range r.order {
		res := r.resources[h]
		if res == nil {
			continue
		}
		switch res.Residency {
		case ResidencyTransient:
			retired = append(retired, res)
			r.remove(res)
		case ResidencyExternal:
			// Imported objects go back to their owner untouched.
			r.remove(res)
		}
	}

	// Persistent resources re-enter the new frame's declaration order in
	// their original sequence, keeping plans deterministic.
	order := r.order[:0]
	for _, h := range r.order {
		if _, ok := r.resources[h]; ok {
			order = append(order, h)
		}
	}
	r.order = order
	return retired
}

func (r *Registry) remove(res *Resource) {
	delete(r.resources, res.Handle)
	delete(r.byName, res.Name)
}
