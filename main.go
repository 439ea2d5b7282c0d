/*
Opens a window and draws six animated triangles with Vulkan until the window
is closed.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/gamewindow/engine"
	"github.com/spaghettifunk/gamewindow/engine/core"
	"github.com/spaghettifunk/gamewindow/engine/settings"
)

func main() {
	if err := core.LoadEnvironment(); err != nil {
		core.LogFatal("environment: %s", err)
	}

	s, err := settings.Load()
	if err != nil {
		core.LogFatal("settings: %s", err)
	}

	app, err := engine.New(engine.ConfigFromEnvironment(), s)
	if err != nil {
		core.LogFatal("%+v", err)
	}

	// capture sigterm and other system calls
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := app.Run(ctx); err != nil {
		core.LogFatal("%+v", err)
	}
}
