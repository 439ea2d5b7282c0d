package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/gamewindow/engine/core"
)

// ReleaseStep destroys one group of GPU objects.
type ReleaseStep struct {
	Name    string
	Release func() error
}

// RunTeardown executes the steps in the given order. Children must come before
// their parents: the GPU API does not order destruction for us. A failing step
// does not stop the following ones; all failures are returned together.
func RunTeardown(steps []ReleaseStep) error {
	var result error
	for _, step := range steps {
		if step.Release == nil {
			continue
		}
		core.LogDebug("Destroying %s...", step.Name)
		if err := step.Release(); err != nil {
			core.LogError("destroying %s: %s", step.Name, err)
			result = errors.CombineErrors(result, errors.Wrapf(err, "destroying %s", step.Name))
		}
	}
	return result
}
