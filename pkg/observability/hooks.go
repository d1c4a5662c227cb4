// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about frame compilation, execution, and device memory.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach:
//   - Avoids import cycles (hooks are registered by main, not by libraries)
//   - Keeps the engine core dependency-free from observability frameworks
//   - Allows different backends (OpenTelemetry, Prometheus, DataDog, etc.)
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetCompileHooks(&myCompileHooks{})
//	    observability.SetFrameHooks(&myFrameHooks{})
//	    // ... run application
//	}
//
// The engine calls hooks to emit events:
//
//	observability.Compile().OnOrderStart(ctx, passCount)
//	// ... sort the graph ...
//	observability.Compile().OnOrderComplete(ctx, passCount, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Compile Hooks
// =============================================================================

// CompileHooks receives events from the per-frame compilation stages.
type CompileHooks interface {
	// Ordering events
	OnOrderStart(ctx context.Context, passCount int)
	OnOrderComplete(ctx context.Context, passCount int, duration time.Duration, err error)

	// Memory placement events
	OnAllocStart(ctx context.Context, resourceCount int)
	OnAllocComplete(ctx context.Context, blockCount int, bytesUsed uint64, duration time.Duration, err error)

	// Barrier planning events
	OnSyncStart(ctx context.Context, passCount int)
	OnSyncComplete(ctx context.Context, barrierCount int, duration time.Duration, err error)
}

// =============================================================================
// Frame Hooks
// =============================================================================

// FrameHooks receives events from frame execution.
type FrameHooks interface {
	// OnFrameStart records the beginning of a frame's execution.
	OnFrameStart(ctx context.Context, frameID string, passCount int)

	// OnFrameComplete records the end of a frame, submitted or aborted.
	OnFrameComplete(ctx context.Context, frameID string, duration time.Duration, err error)

	// OnSubmit records a queue submission.
	OnSubmit(ctx context.Context, queue string, bufferCount int)
}

// =============================================================================
// Memory Hooks
// =============================================================================

// MemoryHooks receives events from the transient-memory pool.
type MemoryHooks interface {
	// OnBlockAllocated records pool growth.
	OnBlockAllocated(ctx context.Context, size uint64, totalUsed uint64)

	// OnBlockReused records a transient resource aliasing into an
	// existing block.
	OnBlockReused(ctx context.Context, size uint64)

	// OnBudgetExceeded records a frame rejected by the budget ceiling.
	OnBudgetExceeded(ctx context.Context, requested, used, budget uint64)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopCompileHooks is a no-op implementation of CompileHooks.
type NoopCompileHooks struct{}

func (NoopCompileHooks) OnOrderStart(context.Context, int)                               {}
func (NoopCompileHooks) OnOrderComplete(context.Context, int, time.Duration, error)      {}
func (NoopCompileHooks) OnAllocStart(context.Context, int)                               {}
func (NoopCompileHooks) OnAllocComplete(context.Context, int, uint64, time.Duration, error) {
}
func (NoopCompileHooks) OnSyncStart(context.Context, int)                          {}
func (NoopCompileHooks) OnSyncComplete(context.Context, int, time.Duration, error) {}

// NoopFrameHooks is a no-op implementation of FrameHooks.
type NoopFrameHooks struct{}

func (NoopFrameHooks) OnFrameStart(context.Context, string, int)                  {}
func (NoopFrameHooks) OnFrameComplete(context.Context, string, time.Duration, error) {
}
func (NoopFrameHooks) OnSubmit(context.Context, string, int) {}

// NoopMemoryHooks is a no-op implementation of MemoryHooks.
type NoopMemoryHooks struct{}

func (NoopMemoryHooks) OnBlockAllocated(context.Context, uint64, uint64)     {}
func (NoopMemoryHooks) OnBlockReused(context.Context, uint64)                {}
func (NoopMemoryHooks) OnBudgetExceeded(context.Context, uint64, uint64, uint64) {
}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	compileHooks CompileHooks = NoopCompileHooks{}
	frameHooks   FrameHooks   = NoopFrameHooks{}
	memoryHooks  MemoryHooks  = NoopMemoryHooks{}
	hooksMu      sync.RWMutex
)

// SetCompileHooks registers custom compile hooks.
// This should be called once at application startup before any frames compile.
func SetCompileHooks(h CompileHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		compileHooks = h
	}
}

// SetFrameHooks registers custom frame hooks.
// This should be called once at application startup before any frames execute.
func SetFrameHooks(h FrameHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		frameHooks = h
	}
}

// SetMemoryHooks registers custom memory hooks.
// This should be called once at application startup before any allocation.
func SetMemoryHooks(h MemoryHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		memoryHooks = h
	}
}

// Compile returns the registered compile hooks.
func Compile() CompileHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return compileHooks
}

// Frame returns the registered frame hooks.
func Frame() FrameHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return frameHooks
}

// Memory returns the registered memory hooks.
func Memory() MemoryHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return memoryHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	compileHooks = NoopCompileHooks{}
	frameHooks = NoopFrameHooks{}
	memoryHooks = NoopMemoryHooks{}
}
