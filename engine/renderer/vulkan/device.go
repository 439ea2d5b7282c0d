package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/gamewindow/engine/core"
)

const portabilitySubsetExtension = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	// Family used for both graphics and presentation.
	QueueFamilyIndex uint32
	GraphicsQueue    vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Name       string
}

// pickQueueFamily returns the first family with graphics support that can also
// present to the surface.
func pickQueueFamily(families []vk.QueueFamilyProperties, supportsPresent func(index uint32) bool) (uint32, bool) {
	for i := range families {
		if vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit == 0 {
			continue
		}
		if supportsPresent(uint32(i)) {
			return uint32(i), true
		}
	}
	return 0, false
}

// SelectPhysicalDevice picks the first adapter with a queue family that can
// both draw and present to the context's surface.
func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil)); err != nil {
		return errors.Wrap(err, "enumerating physical devices")
	}
	if physicalDeviceCount == 0 {
		return core.ErrNoAdapter
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices)); err != nil {
		return errors.Wrap(err, "enumerating physical devices")
	}

	for _, physicalDevice := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
		properties.Deref()
		name := vk.ToString(properties.DeviceName[:])

		var queueFamilyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, nil)
		queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, queueFamilies)
		for i := range queueFamilies {
			queueFamilies[i].Deref()
		}

		index, ok := pickQueueFamily(queueFamilies, func(i uint32) bool {
			var supported vk.Bool32
			if res := vk.GetPhysicalDeviceSurfaceSupport(physicalDevice, i, context.Surface, &supported); res != vk.Success {
				return false
			}
			return supported == vk.True
		})
		if !ok {
			core.LogDebug("Device '%s' has no graphics+present queue family, skipping.", name)
			continue
		}

		context.Device.PhysicalDevice = physicalDevice
		context.Device.QueueFamilyIndex = index
		context.Device.Properties = properties
		context.Device.Name = name

		core.LogInfo("Selected device: '%s' (%s).", name, deviceTypeName(properties.DeviceType))
		core.LogInfo(
			"Vulkan API version: %d.%d.%d",
			vk.Version(properties.ApiVersion).Major(),
			vk.Version(properties.ApiVersion).Minor(),
			vk.Version(properties.ApiVersion).Patch(),
		)
		core.LogDebug("Queue family index: %d", index)
		return nil
	}
	return core.ErrNoQueueFamily
}

func deviceTypeName(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	default:
		return "unknown"
	}
}

// DeviceCreate creates the logical device with one queue and the graphics
// command pool.
func DeviceCreate(context *VulkanContext) error {
	device := context.Device

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	portable, err := hasDeviceExtension(device.PhysicalDevice, portabilitySubsetExtension)
	if err != nil {
		return err
	}
	if portable {
		core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtension)
		extensionNames = append(extensionNames, portabilitySubsetExtension)
	}

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: device.QueueFamilyIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var logicalDevice vk.Device
	if res := vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logicalDevice); res != vk.Success {
		return errors.Newf("vkCreateDevice failed with %s", VulkanResultString(res))
	}
	device.LogicalDevice = logicalDevice
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, device.QueueFamilyIndex, 0, &queue)
	device.GraphicsQueue = queue

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.QueueFamilyIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &pool); res != vk.Success {
		return errors.Newf("vkCreateCommandPool failed with %s", VulkanResultString(res))
	}
	device.GraphicsCommandPool = pool
	core.LogDebug("Graphics command pool created.")
	return nil
}

func hasDeviceExtension(physicalDevice vk.PhysicalDevice, name string) (bool, error) {
	var count uint32
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, nil)); err != nil {
		return false, errors.Wrap(err, "enumerating device extensions")
	}
	if count == 0 {
		return false, nil
	}
	extensions := make([]vk.ExtensionProperties, count)
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, extensions)); err != nil {
		return false, errors.Wrap(err, "enumerating device extensions")
	}
	for i := range extensions {
		extensions[i].Deref()
		if vk.ToString(extensions[i].ExtensionName[:]) == name {
			return true, nil
		}
	}
	return false, nil
}

// DestroyCommandPool frees the pool and every command buffer allocated from it.
func (d *VulkanDevice) DestroyCommandPool(context *VulkanContext) {
	if d.GraphicsCommandPool != nil {
		vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, context.Allocator)
		d.GraphicsCommandPool = nil
	}
}

func (d *VulkanDevice) Destroy(context *VulkanContext) {
	d.GraphicsQueue = nil
	if d.LogicalDevice != nil {
		vk.DestroyDevice(d.LogicalDevice, context.Allocator)
		d.LogicalDevice = nil
	}
	// Physical devices are not destroyed.
	d.PhysicalDevice = nil
}
