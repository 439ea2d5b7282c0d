package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spaghettifunk/gamewindow/engine/core"
	"github.com/spaghettifunk/gamewindow/engine/platform"
	"github.com/spaghettifunk/gamewindow/engine/renderer"
	"github.com/spaghettifunk/gamewindow/engine/renderer/vulkan"
	"github.com/spaghettifunk/gamewindow/engine/settings"
)

type ApplicationConfig struct {
	// The application name reported to the Vulkan driver.
	Name string
	// Enables the Khronos validation layer when it is installed.
	Validation bool
	// Settings file to reload while running. Empty disables watching.
	WatchSettingsPath string
}

// ConfigFromEnvironment reads the application config from GAMEWINDOW_* variables.
func ConfigFromEnvironment() ApplicationConfig {
	cfg := ApplicationConfig{
		Name:       platform.WindowTitle,
		Validation: core.EnvBool(core.EnvValidation, false),
	}
	if core.EnvBool(core.EnvWatchSettings, false) {
		cfg.WatchSettingsPath = core.EnvString(core.EnvSettingsPath, "")
	}
	return cfg
}

// Window is the part of the platform window the run loop drives.
type Window interface {
	renderer.SurfaceTracker
	PumpMessages() bool
	RequestClose()
	ApplySettings(settings.Settings)
	Shutdown()
}

type Application struct {
	config       ApplicationConfig
	currentStage Stage

	events   *core.EventSystem
	window   Window
	renderer *renderer.Renderer
	clock    *core.Clock
	metrics  *core.FrameMetrics

	settingsUpdates chan settings.Settings
	quitRequested   bool
}

// New opens the window, sets up every Vulkan resource and registers the window
// event handlers. Nothing is drawn until Run.
func New(cfg ApplicationConfig, s settings.Settings) (*Application, error) {
	core.LogWith("session", uuid.NewString())

	events := core.NewEventSystem()
	window, err := platform.New(s, events)
	if err != nil {
		return nil, err
	}

	backend, err := vulkan.New(window, vulkan.Options{
		AppName:    cfg.Name,
		Validation: cfg.Validation,
	})
	if err != nil {
		window.Shutdown()
		return nil, errors.Wrap(err, "renderer initialization failed")
	}

	return newApplication(cfg, events, window, backend), nil
}

func newApplication(cfg ApplicationConfig, events *core.EventSystem, window Window, backend renderer.Backend) *Application {
	a := &Application{
		config:          cfg,
		currentStage:    StageBooting,
		events:          events,
		window:          window,
		clock:           core.NewClock(),
		metrics:         core.NewFrameMetrics(),
		settingsUpdates: make(chan settings.Settings, 1),
	}
	a.renderer = renderer.New(backend, a.clock.Elapsed)

	events.Register(core.EVENT_CODE_APPLICATION_QUIT, a, a.onQuit)
	events.Register(core.EVENT_CODE_KEY_PRESSED, a, a.onKey)
	events.Register(core.EVENT_CODE_RESIZED, a, a.onResized)
	events.Register(core.EVENT_CODE_SCALE_CHANGED, a, a.onResized)

	a.currentStage = StageInitialized
	core.LogInfo("%s initialized", cfg.Name)
	return a
}

func (a *Application) Stage() Stage {
	return a.currentStage
}

func (a *Application) onQuit(code core.SystemEventCode, sender, listenerInst interface{}, data core.EventContext) bool {
	core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
	a.quitRequested = true
	return true
}

func (a *Application) onKey(code core.SystemEventCode, sender, listenerInst interface{}, data core.EventContext) bool {
	if platform.IsEscape(data) {
		a.window.RequestClose()
		return true
	}
	return false
}

func (a *Application) onResized(code core.SystemEventCode, sender, listenerInst interface{}, data core.EventContext) bool {
	a.renderer.Resize(a.window, platform.ExtentFromContext(data))
	// Other listeners may care about the size too.
	return false
}
