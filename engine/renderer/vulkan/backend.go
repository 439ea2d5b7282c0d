package vulkan

import (
	"runtime"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/gamewindow/engine/core"
	"github.com/spaghettifunk/gamewindow/engine/platform"
	"github.com/spaghettifunk/gamewindow/engine/renderer"
)

const (
	validationLayerName = "VK_LAYER_KHRONOS_validation"
	fenceTimeout        = time.Second

	// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	instanceCreateEnumeratePortability = 0x00000001
)

// ClearColor is the colour every frame starts from.
var ClearColor = [4]float32{0.0, 0.0, 0.0, 1.0}

// Window is what the backend needs from the platform layer.
type Window interface {
	RequiredInstanceExtensions() []string
	CreateSurface(instance interface{}) (uintptr, error)
}

type Options struct {
	AppName string
	// Enables VK_LAYER_KHRONOS_validation and routes its reports to the logger.
	Validation bool
}

// Resources owns every Vulkan object used to draw: one render pass, one
// pipeline, one command buffer and one fence. Frames are never overlapped.
type Resources struct {
	context *VulkanContext
	options Options

	renderPasses    []*VulkanRenderpass
	pipelineLayouts []vk.PipelineLayout
	pipelines       []vk.Pipeline

	commandBuffer *VulkanCommandBuffer

	submissionComplete *VulkanFence
	imageAcquired      vk.Semaphore
	renderingComplete  vk.Semaphore

	swapchain *VulkanSwapchain
}

// New builds the whole object graph for window. Partially created objects are
// released before an error is returned.
func New(window Window, options Options) (*Resources, error) {
	r := &Resources{
		context: newContext(),
		options: options,
	}
	if err := r.initialize(window); err != nil {
		if derr := r.Destroy(); derr != nil {
			core.LogError("cleanup after failed setup: %s", derr)
		}
		return nil, err
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return r, nil
}

func (r *Resources) initialize(window Window) error {
	procAddr := platform.InstanceProcAddr()
	if procAddr == nil {
		return errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize vk")
	}

	if err := r.createInstance(window.RequiredInstanceExtensions()); err != nil {
		return err
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateSurface(r.context.Instance)
	if err != nil {
		return err
	}
	r.context.Surface = vk.SurfaceFromPointer(surface)

	if err := SelectPhysicalDevice(r.context); err != nil {
		return err
	}
	if err := DeviceCreate(r.context); err != nil {
		return err
	}

	cb, err := NewVulkanCommandBuffer(r.context, r.context.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}
	r.commandBuffer = cb

	formats, err := QuerySurfaceFormats(r.context)
	if err != nil {
		return err
	}
	r.context.SurfaceFormat = ChooseSurfaceFormat(formats)
	core.LogDebug("Surface format: %d, colour space: %d", r.context.SurfaceFormat.Format, r.context.SurfaceFormat.ColorSpace)

	rp, err := RenderpassCreate(r.context, r.context.SurfaceFormat.Format, ClearColor)
	if err != nil {
		return err
	}
	r.renderPasses = append(r.renderPasses, rp)

	layout, err := NewPipelineLayout(r.context)
	if err != nil {
		return err
	}
	r.pipelineLayouts = append(r.pipelineLayouts, layout)

	pipeline, err := r.createPipeline(rp, layout)
	if err != nil {
		return err
	}
	r.pipelines = append(r.pipelines, pipeline)

	// Signalled so the first frame does not wait on a submission that never happened.
	fence, err := NewFence(r.context, true)
	if err != nil {
		return err
	}
	r.submissionComplete = fence

	if r.imageAcquired, err = r.createSemaphore(); err != nil {
		return err
	}
	if r.renderingComplete, err = r.createSemaphore(); err != nil {
		return err
	}
	return nil
}

func (r *Resources) createInstance(windowExtensions []string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(r.options.AppName),
		PEngineName:        VulkanSafeString("GameWindow"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{}, windowExtensions...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= instanceCreateEnumeratePortability
	}

	var layers []string
	if r.options.Validation {
		ok, err := instanceLayerAvailable(validationLayerName)
		if err != nil {
			return err
		}
		if ok {
			layers = append(layers, validationLayerName)
			extensions = append(extensions, vk.ExtDebugReportExtensionName)
		} else {
			core.LogWarn("Validation requested but %s is not installed.", validationLayerName)
		}
	}
	for _, ext := range extensions {
		core.LogDebug("Instance extension: %s", ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, r.context.Allocator, &instance); res != vk.Success {
		return errors.Newf("vkCreateInstance failed with %s", VulkanResultString(res))
	}
	r.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return errors.Wrap(err, "loading instance functions")
	}
	core.LogInfo("Vulkan Instance created.")

	if len(layers) > 0 {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(instance, &debugCreateInfo, r.context.Allocator, &dbg)); err != nil {
			return errors.Wrap(err, "vkCreateDebugReportCallbackEXT")
		}
		r.context.debugCallback = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func instanceLayerAvailable(name string) (bool, error) {
	var count uint32
	if err := vk.Error(vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return false, errors.Wrap(err, "enumerating instance layers")
	}
	layers := make([]vk.LayerProperties, count)
	if err := vk.Error(vk.EnumerateInstanceLayerProperties(&count, layers)); err != nil {
		return false, errors.Wrap(err, "enumerating instance layers")
	}
	for i := range layers {
		layers[i].Deref()
		if vk.ToString(layers[i].LayerName[:]) == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resources) createPipeline(rp *VulkanRenderpass, layout vk.PipelineLayout) (vk.Pipeline, error) {
	vertex, err := NewShaderStage(r.context, "vertex", renderer.VertexShaderSource, renderer.VertexEntryPoint, vk.ShaderStageVertexBit)
	if err != nil {
		return vk.NullPipeline, err
	}
	defer vertex.Destroy(r.context)

	fragment, err := NewShaderStage(r.context, "fragment", renderer.FragmentShaderSource, renderer.FragmentEntryPoint, vk.ShaderStageFragmentBit)
	if err != nil {
		return vk.NullPipeline, err
	}
	defer fragment.Destroy(r.context)

	return NewGraphicsPipeline(r.context, &VulkanPipelineConfig{
		Renderpass: rp,
		Layout:     layout,
		Stages: []vk.PipelineShaderStageCreateInfo{
			vertex.ShaderStageCreateInfo,
			fragment.ShaderStageCreateInfo,
		},
		CullMode:  vk.CullModeBackBit,
		FrontFace: vk.FrontFaceClockwise,
	})
}

func (r *Resources) createSemaphore() (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sem vk.Semaphore
	if res := vk.CreateSemaphore(r.context.Device.LogicalDevice, &semaphoreCreateInfo, r.context.Allocator, &sem); res != vk.Success {
		return vk.NullSemaphore, errors.Newf("vkCreateSemaphore failed with %s", VulkanResultString(res))
	}
	return sem, nil
}

// ResetFenceAndCommandPool waits for the previous submission and makes the
// command buffer recordable again. The fence itself is reset right before the
// next submit, so a frame dropped after this call leaves it signalled.
func (r *Resources) ResetFenceAndCommandPool() error {
	if err := r.submissionComplete.Wait(r.context, fenceTimeout); err != nil {
		return err
	}
	device := r.context.Device
	if res := vk.ResetCommandPool(device.LogicalDevice, device.GraphicsCommandPool, 0); res != vk.Success {
		return errors.Newf("vkResetCommandPool failed with %s", VulkanResultString(res))
	}
	r.commandBuffer.Reset()
	return nil
}

// ReconfigureSwapchain rebuilds the swapchain, its views and framebuffers and
// returns the extent the surface actually uses.
func (r *Resources) ReconfigureSwapchain(extent core.Extent2D) (core.Extent2D, error) {
	sc, err := SwapchainConfigure(r.context, r.swapchain, r.renderPasses[0], extent)
	if err != nil {
		if r.swapchain != nil && r.swapchain.Handle == nil {
			r.swapchain = nil
		}
		return core.Extent2D{}, err
	}
	r.swapchain = sc
	return sc.Extent, nil
}

// Render records, submits and presents one frame with one draw per entry in
// draws.
func (r *Resources) Render(extent core.Extent2D, draws []renderer.PushConstants) error {
	if r.swapchain == nil {
		return core.MarkSwapchainDirty(errors.New("no swapchain"))
	}

	imageIndex, err := r.swapchain.AcquireNextImageIndex(r.context, r.imageAcquired)
	if err != nil {
		return err
	}

	if err := r.record(extent, r.swapchain.Framebuffers[imageIndex].Handle, draws); err != nil {
		return err
	}
	if err := r.submit(); err != nil {
		return err
	}
	return r.swapchain.Present(r.context, r.renderingComplete, imageIndex)
}

func (r *Resources) record(extent core.Extent2D, framebuffer vk.Framebuffer, draws []renderer.PushConstants) error {
	cb := r.commandBuffer
	if err := cb.Begin(true); err != nil {
		return err
	}

	viewport := vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	vk.CmdSetViewport(cb.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(cb.Handle, 0, 1, []vk.Rect2D{scissor})

	rp := r.renderPasses[0]
	rp.Begin(cb, framebuffer, extent)
	vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointGraphics, r.pipelines[0])
	for i := range draws {
		vk.CmdPushConstants(
			cb.Handle,
			r.pipelineLayouts[0],
			vk.ShaderStageFlags(vk.ShaderStageVertexBit),
			0,
			renderer.PushConstantsSize,
			draws[i].Pointer(),
		)
		vk.CmdDraw(cb.Handle, 3, 1, 0, 0)
	}
	rp.End(cb)

	return cb.End()
}

func (r *Resources) submit() error {
	if err := r.submissionComplete.Reset(r.context); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{r.imageAcquired},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{r.commandBuffer.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{r.renderingComplete},
	}

	device := r.context.Device
	return r.context.locks.SafeQueueCall(device.QueueFamilyIndex, func() error {
		if res := vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, r.submissionComplete.Handle); res != vk.Success {
			return errors.Newf("vkQueueSubmit failed with %s", VulkanResultString(res))
		}
		r.commandBuffer.UpdateSubmitted()
		return nil
	})
}

// Destroy releases everything in reverse dependency order. Handles are nulled
// as they go, so a second call does nothing.
func (r *Resources) Destroy() error {
	return renderer.RunTeardown(r.teardownSteps())
}

func (r *Resources) teardownSteps() []renderer.ReleaseStep {
	ctx := r.context
	if ctx == nil {
		ctx = newContext()
		r.context = ctx
	}
	device := ctx.Device

	return []renderer.ReleaseStep{
		{Name: "pending work", Release: func() error {
			if device.LogicalDevice == nil {
				return nil
			}
			return vk.Error(vk.DeviceWaitIdle(device.LogicalDevice))
		}},
		{Name: "semaphores", Release: func() error {
			for _, sem := range []*vk.Semaphore{&r.imageAcquired, &r.renderingComplete} {
				if *sem != vk.NullSemaphore {
					vk.DestroySemaphore(device.LogicalDevice, *sem, ctx.Allocator)
					*sem = vk.NullSemaphore
				}
			}
			return nil
		}},
		{Name: "fence", Release: func() error {
			r.submissionComplete.Destroy(ctx)
			r.submissionComplete = nil
			return nil
		}},
		{Name: "pipelines", Release: func() error {
			for _, p := range r.pipelines {
				if p != vk.NullPipeline {
					vk.DestroyPipeline(device.LogicalDevice, p, ctx.Allocator)
				}
			}
			r.pipelines = nil
			return nil
		}},
		{Name: "pipeline layouts", Release: func() error {
			for _, l := range r.pipelineLayouts {
				if l != nil {
					vk.DestroyPipelineLayout(device.LogicalDevice, l, ctx.Allocator)
				}
			}
			r.pipelineLayouts = nil
			return nil
		}},
		{Name: "render passes", Release: func() error {
			for _, rp := range r.renderPasses {
				rp.Destroy(ctx)
			}
			r.renderPasses = nil
			return nil
		}},
		{Name: "command pool", Release: func() error {
			device.DestroyCommandPool(ctx)
			r.commandBuffer = nil
			return nil
		}},
		{Name: "swapchain", Release: func() error {
			r.swapchain.Destroy(ctx)
			r.swapchain = nil
			return nil
		}},
		{Name: "device", Release: func() error {
			device.Destroy(ctx)
			return nil
		}},
		{Name: "surface", Release: func() error {
			if ctx.Surface != vk.NullSurface {
				vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
				ctx.Surface = vk.NullSurface
			}
			return nil
		}},
		{Name: "debug messenger", Release: func() error {
			if ctx.debugCallback != vk.NullDebugReportCallback {
				vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugCallback, ctx.Allocator)
				ctx.debugCallback = vk.NullDebugReportCallback
			}
			return nil
		}},
		{Name: "instance", Release: func() error {
			if ctx.Instance != nil {
				vk.DestroyInstance(ctx.Instance, ctx.Allocator)
				ctx.Instance = nil
			}
			return nil
		}},
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
