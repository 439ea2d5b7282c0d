package renderer

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
	"github.com/spaghettifunk/gamewindow/engine/core"
)

const (
	VertexEntryPoint   = "vs_main"
	FragmentEntryPoint = "fs_main"
)

// VertexShaderSource places a unit triangle at pc.pos scaled by pc.scale.
const VertexShaderSource = `
struct PushConstants {
    color: vec4<f32>,
    pos: vec2<f32>,
    scale: vec2<f32>,
}

var<push_constant> pc: PushConstants;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) color: vec4<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> VertexOutput {
    var positions = array<vec2<f32>, 3>(
        vec2<f32>(0.0, -1.0),
        vec2<f32>(1.0, 1.0),
        vec2<f32>(-1.0, 1.0),
    );
    var out: VertexOutput;
    out.position = vec4<f32>(positions[index] * pc.scale + pc.pos, 0.0, 1.0);
    out.color = pc.color;
    return out;
}
`

// FragmentShaderSource writes the interpolated push constant colour.
const FragmentShaderSource = `
@fragment
fn fs_main(@location(0) color: vec4<f32>) -> @location(0) vec4<f32> {
    return color;
}
`

// CompileShader translates WGSL source into SPIR-V words.
func CompileShader(name, source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "compiling %s shader", name), core.ErrShaderCompile)
	}
	code, err := SpirvWords(spirvBytes)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s shader", name), core.ErrShaderCompile)
	}
	core.LogDebug("Compiled %s shader: %d words", name, len(code))
	return code, nil
}

// SpirvMagic is the first word of every SPIR-V module.
const SpirvMagic uint32 = 0x07230203

// SpirvWords converts a little-endian SPIR-V byte stream into words and checks
// the module header.
func SpirvWords(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("invalid SPIR-V length %d", len(b))
	}
	code := make([]uint32, len(b)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if code[0] != SpirvMagic {
		return nil, errors.Newf("invalid SPIR-V magic %#08x", code[0])
	}
	return code, nil
}

// SpirvBytes is the inverse of SpirvWords.
func SpirvBytes(code []uint32) []byte {
	b := make([]byte, len(code)*4)
	for i, w := range code {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}
