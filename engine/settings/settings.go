package settings

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/gamewindow/engine/core"
)

const (
	DefaultWindowWidth  uint16 = 1280
	DefaultWindowHeight uint16 = 720
)

// Settings is the application configuration. It is built once at startup and
// replaced, never mutated, when reloaded.
type Settings struct {
	graphics GraphicsSettings
}

// GraphicsSettings describes the initial window.
type GraphicsSettings struct {
	windowSize [2]uint16
	maximized  bool
}

// file mirrors the optional settings.toml layout.
type file struct {
	Graphics struct {
		WindowSize []uint16 `toml:"window_size"`
		Maximized  *bool    `toml:"maximized"`
	} `toml:"graphics"`
}

func New() Settings {
	return Settings{
		graphics: NewGraphicsSettings(),
	}
}

func NewGraphicsSettings() GraphicsSettings {
	return GraphicsSettings{
		windowSize: [2]uint16{DefaultWindowWidth, DefaultWindowHeight},
		maximized:  false,
	}
}

// Load returns the default settings, overlaid with the file named by
// GAMEWINDOW_SETTINGS when that variable is set.
func Load() (Settings, error) {
	path := core.EnvString(core.EnvSettingsPath, "")
	if path == "" {
		return New(), nil
	}
	return LoadFrom(path)
}

// LoadFrom overlays the TOML file at path on the defaults. A missing file is not
// an error. The file is only ever read.
func LoadFrom(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			core.LogDebug("settings file %s not found, using defaults", path)
			return New(), nil
		}
		return Settings{}, errors.Wrapf(err, "reading settings %s", path)
	}
	s, err := Parse(data)
	if err != nil {
		return Settings{}, errors.Wrapf(err, "parsing settings %s", path)
	}
	return s, nil
}

// Parse overlays TOML data on the defaults. Zero or missing dimensions keep
// their default value.
func Parse(data []byte) (Settings, error) {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return Settings{}, err
	}

	s := New()
	switch len(f.Graphics.WindowSize) {
	case 0:
	case 2:
		if f.Graphics.WindowSize[0] != 0 {
			s.graphics.windowSize[0] = f.Graphics.WindowSize[0]
		}
		if f.Graphics.WindowSize[1] != 0 {
			s.graphics.windowSize[1] = f.Graphics.WindowSize[1]
		}
	default:
		return Settings{}, errors.Newf("graphics.window_size needs 2 values, got %d", len(f.Graphics.WindowSize))
	}
	if f.Graphics.Maximized != nil {
		s.graphics.maximized = *f.Graphics.Maximized
	}
	return s, nil
}

func (s Settings) Graphics() GraphicsSettings {
	return s.graphics
}

// WindowSize is the logical inner size of the window, width first.
func (g GraphicsSettings) WindowSize() [2]uint16 {
	return g.windowSize
}

func (g GraphicsSettings) Maximized() bool {
	return g.maximized
}
