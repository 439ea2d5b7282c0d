package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/gamewindow/engine/core"
)

// Backend owns the GPU objects used to draw one frame. A failure that only
// needs the swapchain rebuilt is reported with core.ErrSwapchainDirty marked on
// the returned error.
type Backend interface {
	// ResetFenceAndCommandPool waits for the previous frame's fence and resets
	// the command pool so the command buffer can be re-recorded.
	ResetFenceAndCommandPool() error
	// ReconfigureSwapchain rebuilds the swapchain for the requested extent and
	// returns the extent actually in use.
	ReconfigureSwapchain(extent core.Extent2D) (core.Extent2D, error)
	// Render records, submits and presents one frame.
	Render(extent core.Extent2D, draws []PushConstants) error
	// Destroy releases every GPU object. Calling it twice is a no-op.
	Destroy() error
}

// SurfaceTracker is the renderer's view of the window: the size the swapchain
// should have.
type SurfaceTracker interface {
	SurfaceExtent() core.Extent2D
	UpdateSurfaceExtent(extent core.Extent2D)
}

// Renderer drives a Backend once per frame and decides when the swapchain has
// to be rebuilt.
type Renderer struct {
	backend Backend
	elapsed func() float64

	shouldConfigureSwapchain bool
	destroyed                bool

	FrameNumber uint64
}

// New wraps a backend. elapsed reports the animation time in seconds.
func New(backend Backend, elapsed func() float64) *Renderer {
	if elapsed == nil {
		elapsed = func() float64 { return 0 }
	}
	return &Renderer{
		backend:                  backend,
		elapsed:                  elapsed,
		shouldConfigureSwapchain: true,
	}
}

// Resize records the new surface size. The swapchain is rebuilt on the next
// frame.
func (r *Renderer) Resize(surface SurfaceTracker, extent core.Extent2D) {
	surface.UpdateSurfaceExtent(extent)
	r.shouldConfigureSwapchain = true
	core.LogDebug("surface resized to %s", extent)
}

// MarkDirty forces a swapchain rebuild on the next frame.
func (r *Renderer) MarkDirty() {
	r.shouldConfigureSwapchain = true
}

func (r *Renderer) SwapchainDirty() bool {
	return r.shouldConfigureSwapchain
}

// DrawFrame renders one frame. Transient swapchain failures skip the frame
// and return nil; any other error is fatal.
func (r *Renderer) DrawFrame(surface SurfaceTracker) error {
	if r.destroyed {
		return errors.New("renderer already destroyed")
	}

	extent := surface.SurfaceExtent()
	if extent.IsZero() {
		// minimised: nothing to present
		return nil
	}

	if err := r.backend.ResetFenceAndCommandPool(); err != nil {
		return errors.Wrap(err, "waiting for previous frame")
	}

	if r.shouldConfigureSwapchain {
		effective, err := r.backend.ReconfigureSwapchain(extent)
		if core.IsSwapchainDirty(err) {
			core.LogDebug("swapchain not configured: %s", err)
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "configuring swapchain")
		}
		if effective != extent {
			core.LogDebug("swapchain extent %s differs from requested %s", effective, extent)
		}
		surface.UpdateSurfaceExtent(effective)
		extent = effective
		r.shouldConfigureSwapchain = false
	}

	draws := Triangles(Animation(r.elapsed()))
	if err := r.backend.Render(extent, draws[:]); err != nil {
		if core.IsSwapchainDirty(err) {
			core.LogDebug("frame skipped: %s", err)
			r.shouldConfigureSwapchain = true
			return nil
		}
		return errors.Wrap(err, "rendering frame")
	}
	r.FrameNumber++
	return nil
}

// Shutdown destroys the backend once.
func (r *Renderer) Shutdown() error {
	if r.destroyed {
		return nil
	}
	r.destroyed = true
	return r.backend.Destroy()
}
