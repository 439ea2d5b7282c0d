package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/gamewindow/engine/core"
)

func TestDefaults(t *testing.T) {
	s := New()
	if got := s.Graphics().WindowSize(); got != [2]uint16{1280, 720} {
		t.Fatalf("window size = %v", got)
	}
	if s.Graphics().Maximized() {
		t.Fatal("default should not be maximized")
	}
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	t.Setenv(core.EnvSettingsPath, "")
	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if s != New() {
		t.Fatalf("Load() = %+v, want defaults", s)
	}

	s, err = LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if s != New() {
		t.Fatalf("LoadFrom(missing) = %+v, want defaults", s)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		size      [2]uint16
		maximized bool
		wantErr   bool
	}{
		{name: "empty", data: "", size: [2]uint16{1280, 720}},
		{name: "full", data: "[graphics]\nwindow_size = [1920, 1080]\nmaximized = true\n", size: [2]uint16{1920, 1080}, maximized: true},
		{name: "zero width keeps default", data: "[graphics]\nwindow_size = [0, 600]\n", size: [2]uint16{1280, 600}},
		{name: "only maximized", data: "[graphics]\nmaximized = true\n", size: [2]uint16{1280, 720}, maximized: true},
		{name: "wrong arity", data: "[graphics]\nwindow_size = [800]\n", wantErr: true},
		{name: "negative", data: "[graphics]\nwindow_size = [-1, 600]\n", wantErr: true},
		{name: "garbage", data: "graphics = [", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := s.Graphics().WindowSize(); got != tt.size {
				t.Errorf("window size = %v, want %v", got, tt.size)
			}
			if got := s.Graphics().Maximized(); got != tt.maximized {
				t.Errorf("maximized = %v, want %v", got, tt.maximized)
			}
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte("[graphics]\nwindow_size = [800, 600]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(core.EnvSettingsPath, path)

	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Graphics().WindowSize(); got != [2]uint16{800, 600} {
		t.Fatalf("window size = %v", got)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	if err := os.WriteFile(path, []byte("[graphics]\nwindow_size = [800, 600]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Settings, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(s Settings) { reloaded <- s })
	}()

	// Give the watcher time to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case s := <-reloaded:
			if got := s.Graphics().WindowSize(); got != [2]uint16{1024, 768} {
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatal(err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte("[graphics]\nwindow_size = [1024, 768]\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("settings change was not observed")
		}
	}
}
