package core

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrSwapchainDirty marks transient acquire/present failures. The frame is
	// dropped and the swapchain is reconfigured on the next one.
	ErrSwapchainDirty = errors.New("swapchain out of date, reconfigure on next frame")
	ErrFenceTimeout   = errors.New("timed out waiting for submission fence")
	ErrNoQueueFamily  = errors.New("no compatible queue family found")
	ErrNoAdapter      = errors.New("no vulkan capable adapter found")
	ErrShaderCompile  = errors.New("failed to compile shader")
	ErrUnknown        = errors.New("unknown")
)

// MarkSwapchainDirty tags err so that errors.Is(err, ErrSwapchainDirty) holds.
func MarkSwapchainDirty(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrSwapchainDirty)
}

// IsSwapchainDirty reports whether err only asks for a swapchain reconfigure.
func IsSwapchainDirty(err error) bool {
	return errors.Is(err, ErrSwapchainDirty)
}
