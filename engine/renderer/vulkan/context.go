package vulkan

import (
	vk "github.com/goki/vulkan"
)

// VulkanContext holds the objects most helpers need: the instance, the surface
// and the device they were created from.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugCallback vk.DebugReportCallback

	Device *VulkanDevice

	// Colour format of the swapchain images, fixed for the life of the surface.
	SurfaceFormat vk.SurfaceFormat

	locks *VulkanLockPool
}

func newContext() *VulkanContext {
	return &VulkanContext{
		Device: &VulkanDevice{},
		locks:  NewVulkanLockPool(),
	}
}
