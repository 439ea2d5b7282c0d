package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/gamewindow/engine/core"
	"github.com/spaghettifunk/gamewindow/engine/platform"
	"github.com/spaghettifunk/gamewindow/engine/renderer"
	"github.com/spaghettifunk/gamewindow/engine/settings"
)

type fakeWindow struct {
	extent    core.Extent2D
	pumpsLeft int
	onPump    func()
	closed    atomic.Bool
	applied   []settings.Settings
	shutdowns int
}

func (w *fakeWindow) SurfaceExtent() core.Extent2D          { return w.extent }
func (w *fakeWindow) UpdateSurfaceExtent(e core.Extent2D) { w.extent = e }
func (w *fakeWindow) RequestClose()                         { w.closed.Store(true) }
func (w *fakeWindow) ApplySettings(s settings.Settings)     { w.applied = append(w.applied, s) }
func (w *fakeWindow) Shutdown()                             { w.shutdowns++ }

func (w *fakeWindow) PumpMessages() bool {
	if w.onPump != nil {
		w.onPump()
	}
	if w.closed.Load() || w.pumpsLeft <= 0 {
		return false
	}
	w.pumpsLeft--
	return true
}

type fakeBackend struct {
	renders  int
	resetErr error
	destroys int
}

func (b *fakeBackend) ResetFenceAndCommandPool() error { return b.resetErr }

func (b *fakeBackend) ReconfigureSwapchain(extent core.Extent2D) (core.Extent2D, error) {
	return extent, nil
}

func (b *fakeBackend) Render(extent core.Extent2D, draws []renderer.PushConstants) error {
	b.renders++
	return nil
}

func (b *fakeBackend) Destroy() error {
	b.destroys++
	return nil
}

func newTestApplication(pumps int) (*Application, *fakeWindow, *fakeBackend) {
	window := &fakeWindow{extent: core.Extent2D{Width: 1280, Height: 720}, pumpsLeft: pumps}
	backend := &fakeBackend{}
	app := newApplication(ApplicationConfig{Name: "test"}, core.NewEventSystem(), window, backend)
	return app, window, backend
}

func TestRunDrawsUntilWindowCloses(t *testing.T) {
	app, window, backend := newTestApplication(3)
	if app.Stage() != StageInitialized {
		t.Fatalf("stage = %d", app.Stage())
	}

	if err := app.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if backend.renders != 3 {
		t.Fatalf("renders = %d, want 3", backend.renders)
	}
	if backend.destroys != 1 || window.shutdowns != 1 {
		t.Fatalf("destroys = %d, window shutdowns = %d", backend.destroys, window.shutdowns)
	}
	if app.Stage() != StageStopped {
		t.Fatalf("stage = %d", app.Stage())
	}
}

func TestRunTwiceFails(t *testing.T) {
	app, _, _ := newTestApplication(1)
	if err := app.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := app.Run(context.Background()); err == nil {
		t.Fatal("second run should fail")
	}
}

func TestQuitEventStopsLoop(t *testing.T) {
	app, window, backend := newTestApplication(10)
	window.onPump = func() {
		app.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, window, core.EventContext{})
	}

	if err := app.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if backend.renders != 0 {
		t.Fatalf("renders = %d, want 0", backend.renders)
	}
}

func TestCancelledContextClosesWindow(t *testing.T) {
	app, window, backend := newTestApplication(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := app.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if backend.renders != 0 {
		t.Fatalf("renders = %d, want 0", backend.renders)
	}
	if !window.closed.Load() {
		t.Fatal("window close not requested")
	}
}

func TestFrameErrorStopsRun(t *testing.T) {
	app, window, backend := newTestApplication(10)
	backend.resetErr = core.ErrFenceTimeout

	err := app.Run(context.Background())
	if !errors.Is(err, core.ErrFenceTimeout) {
		t.Fatalf("err = %v", err)
	}
	if backend.destroys != 1 || window.shutdowns != 1 {
		t.Fatal("resources not released after a fatal frame")
	}
}

func TestEscapeRequestsClose(t *testing.T) {
	app, window, _ := newTestApplication(0)

	var ctx core.EventContext
	ctx.Data.U32[0] = uint32(glfw.KeyA)
	app.events.Fire(core.EVENT_CODE_KEY_PRESSED, window, ctx)
	if window.closed.Load() {
		t.Fatal("non escape key closed the window")
	}

	ctx.Data.U32[0] = uint32(glfw.KeyEscape)
	app.events.Fire(core.EVENT_CODE_KEY_PRESSED, window, ctx)
	if !window.closed.Load() {
		t.Fatal("escape did not close the window")
	}
}

func TestResizeEventUpdatesSurface(t *testing.T) {
	app, window, _ := newTestApplication(0)
	if err := app.renderer.DrawFrame(window); err != nil {
		t.Fatal(err)
	}
	if app.renderer.SwapchainDirty() {
		t.Fatal("swapchain should be clean after the first frame")
	}

	app.events.Fire(core.EVENT_CODE_RESIZED, window, platform.ResizeContext(800, 600))
	if window.extent != (core.Extent2D{Width: 800, Height: 600}) {
		t.Fatalf("extent = %v", window.extent)
	}
	if !app.renderer.SwapchainDirty() {
		t.Fatal("resize did not mark the swapchain dirty")
	}

	app.events.Fire(core.EVENT_CODE_SCALE_CHANGED, window, platform.ResizeContext(1600, 1200))
	if window.extent != (core.Extent2D{Width: 1600, Height: 1200}) {
		t.Fatalf("extent after scale change = %v", window.extent)
	}
}

func TestQueueSettingsKeepsNewest(t *testing.T) {
	app, window, _ := newTestApplication(0)
	first, err := settings.Parse([]byte("[graphics]\nwindow_size = [800, 600]\n"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := settings.Parse([]byte("[graphics]\nwindow_size = [1024, 768]\n"))
	if err != nil {
		t.Fatal(err)
	}

	app.QueueSettings(first)
	app.QueueSettings(second)
	app.applyPendingSettings()
	app.applyPendingSettings()

	if len(window.applied) != 1 {
		t.Fatalf("applied %d settings, want 1", len(window.applied))
	}
	if got := window.applied[0].Graphics().WindowSize(); got != [2]uint16{1024, 768} {
		t.Fatalf("applied window size %v", got)
	}
}

func TestShutdownRunsOnce(t *testing.T) {
	app, window, backend := newTestApplication(0)
	if err := app.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := app.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if backend.destroys != 1 || window.shutdowns != 1 {
		t.Fatalf("destroys = %d, window shutdowns = %d", backend.destroys, window.shutdowns)
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv(core.EnvValidation, "true")
	t.Setenv(core.EnvWatchSettings, "true")
	t.Setenv(core.EnvSettingsPath, "settings.toml")

	cfg := ConfigFromEnvironment()
	if !cfg.Validation || cfg.WatchSettingsPath != "settings.toml" || cfg.Name != platform.WindowTitle {
		t.Fatalf("config = %+v", cfg)
	}

	t.Setenv(core.EnvWatchSettings, "false")
	if cfg := ConfigFromEnvironment(); cfg.WatchSettingsPath != "" {
		t.Fatalf("watch path = %q", cfg.WatchSettingsPath)
	}
}
