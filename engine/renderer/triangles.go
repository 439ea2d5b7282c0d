package renderer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// TriangleCount is the number of draws recorded every frame.
const TriangleCount = 6

var small = mgl32.Vec2{0.33, 0.33}

// Animation maps elapsed seconds to a value oscillating in [0, 1].
func Animation(elapsedSeconds float64) float32 {
	return float32(math.Sin(elapsedSeconds))*0.5 + 0.5
}

// Triangles returns the fixed draw list for the given animation value.
func Triangles(anim float32) [TriangleCount]PushConstants {
	return [TriangleCount]PushConstants{
		// Red triangle
		{
			Color: mgl32.Vec4{1.0, 0.0, 0.0, 1.0},
			Pos:   mgl32.Vec2{-0.5, -0.5},
			Scale: small,
		},
		// Green triangle
		{
			Color: mgl32.Vec4{0.0, 1.0, 0.0, 1.0},
			Pos:   mgl32.Vec2{0.0, -0.5},
			Scale: small,
		},
		// Blue triangle
		{
			Color: mgl32.Vec4{0.0, 0.0, 1.0, 1.0},
			Pos:   mgl32.Vec2{0.5, -0.5},
			Scale: small,
		},
		// Blue <-> cyan
		{
			Color: mgl32.Vec4{0.0, anim, 1.0, 1.0},
			Pos:   mgl32.Vec2{-0.5, 0.5},
			Scale: small,
		},
		// Down <-> up
		{
			Color: mgl32.Vec4{1.0, 1.0, 1.0, 1.0},
			Pos:   mgl32.Vec2{0.0, 0.5 - anim*0.5},
			Scale: small,
		},
		// Small <-> big
		{
			Color: mgl32.Vec4{1.0, 1.0, 1.0, 1.0},
			Pos:   mgl32.Vec2{0.5, 0.5},
			Scale: mgl32.Vec2{0.33 + anim*0.33, 0.33 + anim*0.33},
		},
	}
}
