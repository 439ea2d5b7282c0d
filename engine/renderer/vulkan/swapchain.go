package vulkan

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/gamewindow/engine/core"
)

const (
	preferredImageCount = 3
	acquireTimeout      = time.Second
)

// FallbackSurfaceFormat is used when the surface reports no usable format.
var FallbackSurfaceFormat = vk.SurfaceFormat{
	Format:     vk.FormatR8g8b8a8Srgb,
	ColorSpace: vk.ColorSpaceSrgbNonlinear,
}

type VulkanSwapchain struct {
	Handle vk.Swapchain
	Extent core.Extent2D

	Images []vk.Image
	Views  []vk.ImageView

	// framebuffers used for on-screen rendering, one per image.
	Framebuffers []*VulkanFramebuffer
}

func isSrgb(format vk.Format) bool {
	switch format {
	case vk.FormatR8g8b8a8Srgb,
		vk.FormatB8g8r8a8Srgb,
		vk.FormatR8g8b8Srgb,
		vk.FormatB8g8r8Srgb:
		return true
	}
	return false
}

// ChooseSurfaceFormat returns the first sRGB format, else the first supported
// one, else FallbackSurfaceFormat.
func ChooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	var supported []vk.SurfaceFormat
	for _, f := range formats {
		if f.Format != vk.FormatUndefined {
			supported = append(supported, f)
		}
	}
	for _, f := range supported {
		if isSrgb(f.Format) {
			return f
		}
	}
	if len(supported) > 0 {
		return supported[0]
	}
	return FallbackSurfaceFormat
}

// ChooseSwapchainExtent uses the surface's current extent when it is defined,
// otherwise the requested extent clamped to the surface limits.
func ChooseSwapchainExtent(caps vk.SurfaceCapabilities, requested core.Extent2D) core.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return core.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height}
	}
	return core.Extent2D{
		Width:  Clamp(requested.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: Clamp(requested.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// ChooseImageCount asks for triple buffering when the surface allows it,
// otherwise one image more than the minimum. A MaxImageCount of zero means no
// upper limit.
func ChooseImageCount(caps vk.SurfaceCapabilities) uint32 {
	limit := caps.MaxImageCount
	if limit == 0 {
		limit = math.MaxUint32
	}
	if caps.MinImageCount <= preferredImageCount && preferredImageCount <= limit {
		return preferredImageCount
	}
	return Clamp(caps.MinImageCount+1, caps.MinImageCount, limit)
}

// ChooseCompositeAlpha prefers opaque composition.
func ChooseCompositeAlpha(supported vk.CompositeAlphaFlags) vk.CompositeAlphaFlagBits {
	for _, bit := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if supported&vk.CompositeAlphaFlags(bit) != 0 {
			return bit
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

// QuerySurfaceFormats lists the colour formats the surface supports.
func QuerySurfaceFormats(context *VulkanContext) ([]vk.SurfaceFormat, error) {
	physicalDevice := context.Device.PhysicalDevice
	var count uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, context.Surface, &count, nil)); err != nil {
		return nil, errors.Wrap(err, "querying surface formats")
	}
	if count == 0 {
		return nil, nil
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, context.Surface, &count, formats)); err != nil {
		return nil, errors.Wrap(err, "querying surface formats")
	}
	for i := range formats {
		formats[i].Deref()
	}
	return formats, nil
}

func querySurfaceCapabilities(context *VulkanContext) (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(context.Device.PhysicalDevice, context.Surface, &caps)); err != nil {
		return caps, errors.Wrap(err, "querying surface capabilities")
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

// SwapchainConfigure builds a swapchain for extent, retiring old (which may be
// nil) once the new one exists.
func SwapchainConfigure(context *VulkanContext, old *VulkanSwapchain, renderpass *VulkanRenderpass, requested core.Extent2D) (*VulkanSwapchain, error) {
	caps, err := querySurfaceCapabilities(context)
	if err != nil {
		return nil, err
	}

	extent := ChooseSwapchainExtent(caps, requested)
	if extent.IsZero() {
		return nil, core.MarkSwapchainDirty(errors.Newf("surface extent %s cannot back a swapchain", extent))
	}
	imageCount := ChooseImageCount(caps)

	var oldHandle vk.Swapchain
	if old != nil {
		oldHandle = old.Handle
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      context.SurfaceFormat.Format,
		ImageColorSpace:  context.SurfaceFormat.ColorSpace,
		ImageExtent:      vk.Extent2D{Width: extent.Width, Height: extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   ChooseCompositeAlpha(caps.SupportedCompositeAlpha),
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		OldSwapchain:     oldHandle,
	}

	swapchain := &VulkanSwapchain{Extent: extent}
	err = context.locks.SafeCall(SwapchainManagement, func() error {
		var handle vk.Swapchain
		if res := vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &handle); res != vk.Success {
			return errors.Newf("vkCreateSwapchainKHR failed with %s", VulkanResultString(res))
		}
		swapchain.Handle = handle
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The retired swapchain is no longer presentable; its images may still be
	// in use until the device is idle.
	if old != nil {
		vk.DeviceWaitIdle(context.Device.LogicalDevice)
		old.Destroy(context)
	}

	if err := swapchain.createViews(context); err != nil {
		swapchain.Destroy(context)
		return nil, err
	}
	if err := swapchain.regenerateFramebuffers(context, renderpass); err != nil {
		swapchain.Destroy(context)
		return nil, err
	}

	core.LogInfo("Swapchain configured: %s, %d images.", extent, len(swapchain.Images))
	return swapchain, nil
}

func (vs *VulkanSwapchain) createViews(context *VulkanContext) error {
	var count uint32
	if err := vk.Error(vk.GetSwapchainImages(context.Device.LogicalDevice, vs.Handle, &count, nil)); err != nil {
		return errors.Wrap(err, "getting swapchain images")
	}
	vs.Images = make([]vk.Image, count)
	if err := vk.Error(vk.GetSwapchainImages(context.Device.LogicalDevice, vs.Handle, &count, vs.Images)); err != nil {
		return errors.Wrap(err, "getting swapchain images")
	}

	vs.Views = make([]vk.ImageView, 0, count)
	for _, image := range vs.Images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   context.SurfaceFormat.Format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		var view vk.ImageView
		if res := vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &view); res != vk.Success {
			return errors.Newf("vkCreateImageView failed with %s", VulkanResultString(res))
		}
		vs.Views = append(vs.Views, view)
	}
	return nil
}

func (vs *VulkanSwapchain) regenerateFramebuffers(context *VulkanContext, renderpass *VulkanRenderpass) error {
	vs.Framebuffers = make([]*VulkanFramebuffer, 0, len(vs.Views))
	for _, view := range vs.Views {
		fb, err := FramebufferCreate(context, renderpass, vs.Extent.Width, vs.Extent.Height, []vk.ImageView{view})
		if err != nil {
			return err
		}
		vs.Framebuffers = append(vs.Framebuffers, fb)
	}
	return nil
}

// AcquireNextImageIndex returns the index of the next presentable image. Any
// failure is transient: the swapchain has to be rebuilt before the next frame.
func (vs *VulkanSwapchain) AcquireNextImageIndex(context *VulkanContext, imageAvailable vk.Semaphore) (uint32, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(context.Device.LogicalDevice, vs.Handle, uint64(acquireTimeout.Nanoseconds()), imageAvailable, vk.NullFence, &imageIndex)
	switch result {
	case vk.Success, vk.Suboptimal:
		return imageIndex, nil
	default:
		return 0, core.MarkSwapchainDirty(errors.Newf("vkAcquireNextImageKHR returned %s", VulkanResultString(result)))
	}
}

// Present queues imageIndex for display once renderComplete is signalled.
func (vs *VulkanSwapchain) Present(context *VulkanContext, renderComplete vk.Semaphore, imageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderComplete},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	var result vk.Result
	_ = context.locks.SafeQueueCall(context.Device.QueueFamilyIndex, func() error {
		result = vk.QueuePresent(context.Device.GraphicsQueue, &presentInfo)
		return nil
	})
	if result != vk.Success {
		return core.MarkSwapchainDirty(errors.Newf("vkQueuePresentKHR returned %s", VulkanResultString(result)))
	}
	return nil
}

// Destroy releases framebuffers, views and the swapchain, in that order. The
// images belong to the swapchain and go with it.
func (vs *VulkanSwapchain) Destroy(context *VulkanContext) {
	if vs == nil {
		return
	}
	for _, fb := range vs.Framebuffers {
		fb.Destroy(context)
	}
	vs.Framebuffers = nil

	for _, view := range vs.Views {
		vk.DestroyImageView(context.Device.LogicalDevice, view, context.Allocator)
	}
	vs.Views = nil
	vs.Images = nil

	if vs.Handle != nil {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		vs.Handle = nil
	}
}
