package renderer

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// PushConstants is the per-draw block read by the vertex shader. The layout must
// match the PushConstants struct in VertexShaderSource.
type PushConstants struct {
	Color mgl32.Vec4
	Pos   mgl32.Vec2
	Scale mgl32.Vec2
}

// PushConstantsSize is the size in bytes of the push constant range.
const PushConstantsSize = uint32(unsafe.Sizeof(PushConstants{}))

// Pointer exposes the value for vkCmdPushConstants.
func (pc *PushConstants) Pointer() unsafe.Pointer {
	return unsafe.Pointer(pc)
}

// Words views the value as the 32-bit words uploaded to the GPU.
func (pc *PushConstants) Words() []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(pc)), PushConstantsSize/4)
}
