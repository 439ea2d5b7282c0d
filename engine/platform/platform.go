package platform

import (
	"math"
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/gamewindow/engine/core"
	"github.com/spaghettifunk/gamewindow/engine/settings"
)

const WindowTitle = "Game Window"

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// LogicalSize is measured in screen coordinates.
type LogicalSize struct {
	Width  float64
	Height float64
}

// PhysicalSize is measured in framebuffer pixels.
type PhysicalSize struct {
	Width  uint32
	Height uint32
}

// ToPhysical scales a logical size by the given content scale, rounding to the
// nearest pixel.
func (l LogicalSize) ToPhysical(scale float64) PhysicalSize {
	if scale <= 0 {
		scale = 1
	}
	return PhysicalSize{
		Width:  uint32(math.Round(l.Width * scale)),
		Height: uint32(math.Round(l.Height * scale)),
	}
}

func (p PhysicalSize) Extent() core.Extent2D {
	return core.Extent2D{Width: p.Width, Height: p.Height}
}

// CalcLogicalAndPhysicalSize derives the window sizes from the settings and the
// primary monitor content scale.
func CalcLogicalAndPhysicalSize(scale float64, s settings.Settings) (LogicalSize, PhysicalSize) {
	size := s.Graphics().WindowSize()
	logical := LogicalSize{Width: float64(size[0]), Height: float64(size[1])}
	return logical, logical.ToPhysical(scale)
}

// GameWindow owns the native window and the sizes derived from it. It must only
// be used from the main thread, except for RequestClose.
type GameWindow struct {
	window *glfw.Window
	events *core.EventSystem

	size      [2]uint16
	maximized bool
	logical   LogicalSize
	physical  PhysicalSize

	surfaceExtent core.Extent2D
}

// New initialises glfw and opens the window described by the settings. Window
// events are forwarded to the event system.
func New(s settings.Settings, events *core.EventSystem) (*GameWindow, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, errors.New("glfw reports no vulkan loader")
	}

	scale := float64(1)
	if monitor := glfw.GetPrimaryMonitor(); monitor != nil {
		x, _ := monitor.GetContentScale()
		scale = float64(x)
	}
	logical, physical := CalcLogicalAndPhysicalSize(scale, s)

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.
	glfw.WindowHint(glfw.ScaleToMonitor, glfw.True)
	glfw.WindowHint(glfw.Maximized, boolHint(s.Graphics().Maximized()))

	window, err := glfw.CreateWindow(int(logical.Width), int(logical.Height), WindowTitle, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "failed to create window")
	}

	gw := &GameWindow{
		window:    window,
		events:    events,
		size:      s.Graphics().WindowSize(),
		maximized: s.Graphics().Maximized(),
		logical:   logical,
		physical:  physical,
	}

	// The framebuffer may differ from the estimate (maximized, platform scaling).
	if fw, fh := window.GetFramebufferSize(); fw > 0 && fh > 0 {
		gw.physical = PhysicalSize{Width: uint32(fw), Height: uint32(fh)}
	}
	gw.surfaceExtent = gw.physical.Extent()

	window.SetCloseCallback(gw.closeCallback)
	window.SetKeyCallback(gw.keyCallback)
	window.SetFramebufferSizeCallback(gw.framebufferSizeCallback)
	window.SetContentScaleCallback(gw.contentScaleCallback)
	window.Show()

	core.LogInfo("Window created: logical %.0fx%.0f, physical %dx%d (scale %.2f)",
		logical.Width, logical.Height, gw.physical.Width, gw.physical.Height, scale)
	return gw, nil
}

// Shutdown destroys the window and terminates glfw.
func (gw *GameWindow) Shutdown() {
	if gw.window != nil {
		gw.window.Destroy()
		gw.window = nil
	}
	glfw.Terminate()
}

// PumpMessages processes pending window events and reports whether the window
// is still open.
func (gw *GameWindow) PumpMessages() bool {
	glfw.PollEvents()
	return !gw.window.ShouldClose()
}

// RequestClose asks the event loop to exit. Safe to call from any goroutine.
func (gw *GameWindow) RequestClose() {
	gw.window.SetShouldClose(true)
	glfw.PostEmptyEvent()
}

// ApplySettings resizes or (un)maximizes the window to match reloaded settings.
func (gw *GameWindow) ApplySettings(s settings.Settings) {
	g := s.Graphics()
	if g.WindowSize() != gw.size {
		gw.size = g.WindowSize()
		gw.window.SetSize(int(gw.size[0]), int(gw.size[1]))
	}
	if g.Maximized() != gw.maximized {
		gw.maximized = g.Maximized()
		if gw.maximized {
			gw.window.Maximize()
		} else {
			gw.window.Restore()
		}
	}
}

func (gw *GameWindow) Window() *glfw.Window {
	return gw.window
}

func (gw *GameWindow) Size() [2]uint16 {
	return gw.size
}

func (gw *GameWindow) Maximized() bool {
	return gw.maximized
}

func (gw *GameWindow) LogicalSize() LogicalSize {
	return gw.logical
}

func (gw *GameWindow) PhysicalSize() PhysicalSize {
	return gw.physical
}

func (gw *GameWindow) SurfaceExtent() core.Extent2D {
	return gw.surfaceExtent
}

func (gw *GameWindow) UpdateSurfaceExtent(extent core.Extent2D) {
	gw.surfaceExtent = extent
}

// RequiredInstanceExtensions lists the Vulkan instance extensions glfw needs to
// present to this window.
func (gw *GameWindow) RequiredInstanceExtensions() []string {
	return gw.window.GetRequiredInstanceExtensions()
}

// CreateSurface creates a VkSurfaceKHR for the window and returns its raw handle.
func (gw *GameWindow) CreateSurface(instance interface{}) (uintptr, error) {
	surface, err := gw.window.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, errors.Wrap(err, "vulkan surface creation failed")
	}
	return surface, nil
}

// InstanceProcAddr is the vkGetInstanceProcAddr exposed by glfw's loader.
func InstanceProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (gw *GameWindow) closeCallback(w *glfw.Window) {
	gw.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, gw, core.EventContext{})
}

func (gw *GameWindow) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Press {
		return
	}
	var ctx core.EventContext
	ctx.Data.U32[0] = uint32(key)
	gw.events.Fire(core.EVENT_CODE_KEY_PRESSED, gw, ctx)
}

func (gw *GameWindow) framebufferSizeCallback(w *glfw.Window, width, height int) {
	gw.physical = PhysicalSize{Width: uint32(max(width, 0)), Height: uint32(max(height, 0))}
	gw.events.Fire(core.EVENT_CODE_RESIZED, gw, ResizeContext(width, height))
}

func (gw *GameWindow) contentScaleCallback(w *glfw.Window, x, y float32) {
	width, height := w.GetFramebufferSize()
	gw.physical = PhysicalSize{Width: uint32(max(width, 0)), Height: uint32(max(height, 0))}
	ctx := ResizeContext(width, height)
	ctx.Data.F32[0] = x
	ctx.Data.F32[1] = y
	gw.events.Fire(core.EVENT_CODE_SCALE_CHANGED, gw, ctx)
}

// ResizeContext packs a framebuffer size into an event payload. Negative sizes
// are clamped to zero.
func ResizeContext(width, height int) core.EventContext {
	var ctx core.EventContext
	ctx.Data.U32[0] = uint32(max(width, 0))
	ctx.Data.U32[1] = uint32(max(height, 0))
	return ctx
}

// ExtentFromContext unpacks the size stored by ResizeContext.
func ExtentFromContext(ctx core.EventContext) core.Extent2D {
	return core.Extent2D{Width: ctx.Data.U32[0], Height: ctx.Data.U32[1]}
}

// IsEscape reports whether a key event payload carries the escape key.
func IsEscape(ctx core.EventContext) bool {
	return glfw.Key(ctx.Data.U32[0]) == glfw.KeyEscape
}

func boolHint(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}
