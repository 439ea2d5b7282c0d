package engine

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/gamewindow/engine/core"
	"github.com/spaghettifunk/gamewindow/engine/settings"
	"golang.org/x/sync/errgroup"
)

type Stage uint8

const (
	// Application is in an uninitialized state
	StageUninitialized Stage = iota
	// Window and renderer are being created
	StageBooting
	// Everything is set up, nothing drawn yet
	StageInitialized
	// The frame loop is running
	StageRunning
	// Resources are being released
	StageShuttingDown
	// Every resource is gone
	StageStopped
)

// Run draws frames until the window is closed, the quit event fires or ctx is
// done. Background work (context cancellation, settings reload) runs in an
// errgroup and only reaches the main thread through RequestClose and a channel.
// Everything is torn down before Run returns.
func (a *Application) Run(ctx context.Context) error {
	if a.currentStage != StageInitialized {
		return errors.Newf("application cannot run from stage %d", a.currentStage)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		// The window outlives g.Wait below.
		a.window.RequestClose()
		return nil
	})
	if path := a.config.WatchSettingsPath; path != "" {
		g.Go(func() error {
			return settings.Watch(gctx, path, a.QueueSettings)
		})
	}

	runErr := a.loop(gctx)

	cancel()
	if err := g.Wait(); err != nil {
		runErr = errors.CombineErrors(runErr, errors.Wrap(err, "background task failed"))
	}
	return errors.CombineErrors(runErr, a.Shutdown())
}

func (a *Application) loop(ctx context.Context) error {
	a.currentStage = StageRunning
	a.clock.Start()
	a.clock.Update()
	lastTime := a.clock.Elapsed()

	for !a.quitRequested {
		if !a.window.PumpMessages() || a.quitRequested {
			break
		}
		if ctx.Err() != nil {
			break
		}
		a.applyPendingSettings()

		a.clock.Update()
		currentTime := a.clock.Elapsed()
		if err := a.renderer.DrawFrame(a.window); err != nil {
			core.LogError("frame %d failed: %s", a.renderer.FrameNumber, err)
			return err
		}

		if a.metrics.Update(currentTime - lastTime) {
			fps, frameMS := a.metrics.Frame()
			core.LogDebug("%.0f fps, %.2f ms/frame", fps, frameMS)
		}
		lastTime = currentTime
	}
	return nil
}

// QueueSettings hands reloaded settings to the main thread. Only the newest
// pending value is kept. Safe to call from any goroutine.
func (a *Application) QueueSettings(s settings.Settings) {
	for {
		select {
		case a.settingsUpdates <- s:
			return
		default:
		}
		select {
		case <-a.settingsUpdates:
		default:
		}
	}
}

func (a *Application) applyPendingSettings() {
	select {
	case s := <-a.settingsUpdates:
		a.window.ApplySettings(s)
	default:
	}
}

// Shutdown releases the renderer, destroys the window and clears every event
// registration. Calling it again is a no-op.
func (a *Application) Shutdown() error {
	if a.currentStage == StageShuttingDown || a.currentStage == StageStopped {
		return nil
	}
	a.currentStage = StageShuttingDown
	core.LogInfo("shutting down after %d frames", a.renderer.FrameNumber)

	err := a.renderer.Shutdown()
	a.window.Shutdown()
	a.events.Shutdown()

	a.currentStage = StageStopped
	return err
}
