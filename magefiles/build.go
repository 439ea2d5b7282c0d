//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/spaghettifunk/gamewindow/engine/renderer"
)

const (
	binaryName = "gamewindow"
	shaderDir  = "build/shaders"
)

type Build mg.Namespace

// Builds the game binary into build/.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("mod", "download"), withStream()); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("build", "-o", filepath.Join("build", binaryName), "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Compiles the embedded WGSL shaders and writes the SPIR-V next to the binary.
func (Build) Shaders() error {
	return buildShaders()
}

func buildShaders() error {
	if err := os.MkdirAll(shaderDir, 0o755); err != nil {
		return err
	}
	sources := []struct {
		name, source string
	}{
		{"triangle.vert", renderer.VertexShaderSource},
		{"triangle.frag", renderer.FragmentShaderSource},
	}
	for _, s := range sources {
		words, err := renderer.CompileShader(s.name, s.source)
		if err != nil {
			return err
		}
		out := filepath.Join(shaderDir, s.name+".spv")
		if err := os.WriteFile(out, renderer.SpirvBytes(words), 0o644); err != nil {
			return err
		}
		fmt.Printf("%s: %d words\n", out, len(words))
	}
	return nil
}
