package vulkan

import (
	"math"
	"strings"
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/gamewindow/engine/core"
)

func TestChooseSurfaceFormat(t *testing.T) {
	unorm := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	srgb := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	undefined := vk.SurfaceFormat{Format: vk.FormatUndefined}

	tests := []struct {
		name    string
		formats []vk.SurfaceFormat
		want    vk.SurfaceFormat
	}{
		{"srgb preferred", []vk.SurfaceFormat{unorm, srgb}, srgb},
		{"first supported", []vk.SurfaceFormat{unorm}, unorm},
		{"empty", nil, FallbackSurfaceFormat},
		{"only undefined", []vk.SurfaceFormat{undefined}, FallbackSurfaceFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChooseSurfaceFormat(tt.formats); got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestChooseSwapchainExtent(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: 800, Height: 600},
		MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
	}
	if got := ChooseSwapchainExtent(caps, core.Extent2D{Width: 1920, Height: 1080}); got != (core.Extent2D{Width: 800, Height: 600}) {
		t.Fatalf("current extent ignored: %v", got)
	}

	caps.CurrentExtent = vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32}
	if got := ChooseSwapchainExtent(caps, core.Extent2D{Width: 1920, Height: 1080}); got != (core.Extent2D{Width: 1920, Height: 1080}) {
		t.Fatalf("requested extent = %v", got)
	}
	if got := ChooseSwapchainExtent(caps, core.Extent2D{Width: 9000, Height: 0}); got != (core.Extent2D{Width: 4096, Height: 1}) {
		t.Fatalf("clamped extent = %v", got)
	}
}

func TestChooseImageCount(t *testing.T) {
	tests := []struct {
		min, max, want uint32
	}{
		{2, 0, 3},
		{2, 8, 3},
		{3, 3, 3},
		{1, 2, 2},
		{4, 0, 5},
		{4, 4, 4},
	}
	for _, tt := range tests {
		caps := vk.SurfaceCapabilities{MinImageCount: tt.min, MaxImageCount: tt.max}
		if got := ChooseImageCount(caps); got != tt.want {
			t.Errorf("min %d max %d: got %d, want %d", tt.min, tt.max, got, tt.want)
		}
	}
}

func TestChooseCompositeAlpha(t *testing.T) {
	if got := ChooseCompositeAlpha(vk.CompositeAlphaFlags(vk.CompositeAlphaInheritBit | vk.CompositeAlphaOpaqueBit)); got != vk.CompositeAlphaOpaqueBit {
		t.Fatalf("got %v", got)
	}
	if got := ChooseCompositeAlpha(vk.CompositeAlphaFlags(vk.CompositeAlphaInheritBit)); got != vk.CompositeAlphaInheritBit {
		t.Fatalf("got %v", got)
	}
}

func TestPickQueueFamily(t *testing.T) {
	families := []vk.QueueFamilyProperties{
		{QueueFlags: vk.QueueFlags(vk.QueueTransferBit)},
		{QueueFlags: vk.QueueFlags(vk.QueueGraphicsBit)},
		{QueueFlags: vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit)},
	}
	index, ok := pickQueueFamily(families, func(i uint32) bool { return i == 2 })
	if !ok || index != 2 {
		t.Fatalf("got %d, %v", index, ok)
	}
	if _, ok := pickQueueFamily(families, func(uint32) bool { return false }); ok {
		t.Fatal("family without present support accepted")
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 1, 3) != 3 || Clamp(0, 1, 3) != 1 || Clamp(2, 1, 3) != 2 {
		t.Fatal("int clamp")
	}
	if Clamp(0.5, 0.0, 1.0) != 0.5 {
		t.Fatal("float clamp")
	}
}

func TestVulkanSafeStrings(t *testing.T) {
	in := []string{"VK_KHR_surface", "already\x00", ""}
	out := VulkanSafeStrings(in)
	for i, s := range out {
		if !strings.HasSuffix(s, "\x00") || strings.Count(s, "\x00") != 1 {
			t.Fatalf("entry %d = %q", i, s)
		}
	}
	if in[0] != "VK_KHR_surface" {
		t.Fatal("input mutated")
	}
}

func TestVulkanResultString(t *testing.T) {
	if got := VulkanResultString(vk.ErrorOutOfDate); got != "VK_ERROR_OUT_OF_DATE_KHR" {
		t.Fatalf("got %s", got)
	}
	if got := VulkanResultString(vk.Result(-12345)); got != "VkResult(-12345)" {
		t.Fatalf("got %s", got)
	}
	if !VulkanResultIsSuccess(vk.Suboptimal) || VulkanResultIsSuccess(vk.ErrorDeviceLost) {
		t.Fatal("success classification")
	}
}

func TestLockPoolSerialises(t *testing.T) {
	pool := NewVulkanLockPool()
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SafeQueueCall(0, func() error {
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				inside--
				return nil
			})
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("queue calls overlapped: %d", maxSeen)
	}
}

func TestTeardownOrder(t *testing.T) {
	r := &Resources{}
	var names []string
	for _, step := range r.teardownSteps() {
		names = append(names, step.Name)
	}
	want := []string{
		"pending work",
		"semaphores",
		"fence",
		"pipelines",
		"pipeline layouts",
		"render passes",
		"command pool",
		"swapchain",
		"device",
		"surface",
		"debug messenger",
		"instance",
	}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("order = %v", names)
	}
}

func TestDestroyZeroValueIsNoop(t *testing.T) {
	r := &Resources{}
	if err := r.Destroy(); err != nil {
		t.Fatal(err)
	}
	if err := r.Destroy(); err != nil {
		t.Fatal(err)
	}
}
