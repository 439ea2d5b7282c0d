package renderer

import (
	"math"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/gamewindow/engine/core"
)

type fakeSurface struct {
	extent core.Extent2D
}

func (s *fakeSurface) SurfaceExtent() core.Extent2D          { return s.extent }
func (s *fakeSurface) UpdateSurfaceExtent(e core.Extent2D) { s.extent = e }

type fakeBackend struct {
	calls       []string
	effective   *core.Extent2D
	reconfigure []core.Extent2D
	rendered    []core.Extent2D
	draws       []PushConstants
	renderErr   error
	resetErr    error
	destroys    int
}

func (b *fakeBackend) ResetFenceAndCommandPool() error {
	b.calls = append(b.calls, "reset")
	return b.resetErr
}

func (b *fakeBackend) ReconfigureSwapchain(extent core.Extent2D) (core.Extent2D, error) {
	b.calls = append(b.calls, "reconfigure")
	b.reconfigure = append(b.reconfigure, extent)
	if b.effective != nil {
		return *b.effective, nil
	}
	return extent, nil
}

func (b *fakeBackend) Render(extent core.Extent2D, draws []PushConstants) error {
	b.calls = append(b.calls, "render")
	b.rendered = append(b.rendered, extent)
	b.draws = draws
	err := b.renderErr
	b.renderErr = nil
	return err
}

func (b *fakeBackend) Destroy() error {
	b.destroys++
	return nil
}

func TestDrawFrameConfiguresOnFirstFrameOnly(t *testing.T) {
	backend := &fakeBackend{}
	surface := &fakeSurface{extent: core.Extent2D{Width: 1280, Height: 720}}
	r := New(backend, nil)

	for i := 0; i < 3; i++ {
		if err := r.DrawFrame(surface); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	want := "reset,reconfigure,render,reset,render,reset,render"
	if got := strings.Join(backend.calls, ","); got != want {
		t.Fatalf("calls = %s, want %s", got, want)
	}
	if r.FrameNumber != 3 {
		t.Fatalf("frame number = %d", r.FrameNumber)
	}
	if len(backend.draws) != TriangleCount {
		t.Fatalf("draws = %d", len(backend.draws))
	}
}

func TestDrawFrameRebuildsAfterResize(t *testing.T) {
	backend := &fakeBackend{}
	surface := &fakeSurface{extent: core.Extent2D{Width: 1280, Height: 720}}
	r := New(backend, nil)
	if err := r.DrawFrame(surface); err != nil {
		t.Fatal(err)
	}

	r.Resize(surface, core.Extent2D{Width: 1920, Height: 1080})
	if !r.SwapchainDirty() {
		t.Fatal("resize should mark the swapchain dirty")
	}
	if err := r.DrawFrame(surface); err != nil {
		t.Fatal(err)
	}
	if len(backend.reconfigure) != 2 || backend.reconfigure[1] != (core.Extent2D{Width: 1920, Height: 1080}) {
		t.Fatalf("reconfigure = %v", backend.reconfigure)
	}
	if r.SwapchainDirty() {
		t.Fatal("dirty flag should clear after reconfigure")
	}
}

func TestDrawFrameWritesBackEffectiveExtent(t *testing.T) {
	effective := core.Extent2D{Width: 1024, Height: 768}
	backend := &fakeBackend{effective: &effective}
	surface := &fakeSurface{extent: core.Extent2D{Width: 5000, Height: 5000}}
	r := New(backend, nil)

	if err := r.DrawFrame(surface); err != nil {
		t.Fatal(err)
	}
	if surface.extent != effective {
		t.Fatalf("surface extent = %v, want %v", surface.extent, effective)
	}
	if backend.rendered[0] != effective {
		t.Fatalf("rendered at %v", backend.rendered[0])
	}
}

func TestDrawFrameSkipsOnDirtySwapchain(t *testing.T) {
	backend := &fakeBackend{}
	surface := &fakeSurface{extent: core.Extent2D{Width: 800, Height: 600}}
	r := New(backend, nil)
	if err := r.DrawFrame(surface); err != nil {
		t.Fatal(err)
	}

	backend.renderErr = core.MarkSwapchainDirty(errors.New("out of date"))
	if err := r.DrawFrame(surface); err != nil {
		t.Fatalf("transient error should not surface: %v", err)
	}
	if !r.SwapchainDirty() {
		t.Fatal("failed present should mark the swapchain dirty")
	}
	if r.FrameNumber != 1 {
		t.Fatalf("skipped frame counted: %d", r.FrameNumber)
	}

	if err := r.DrawFrame(surface); err != nil {
		t.Fatal(err)
	}
	if len(backend.reconfigure) != 2 {
		t.Fatalf("expected rebuild after skip, got %d reconfigures", len(backend.reconfigure))
	}
}

func TestDrawFrameFatalError(t *testing.T) {
	backend := &fakeBackend{renderErr: errors.New("device lost")}
	surface := &fakeSurface{extent: core.Extent2D{Width: 800, Height: 600}}
	r := New(backend, nil)
	err := r.DrawFrame(surface)
	if err == nil || !strings.Contains(err.Error(), "device lost") {
		t.Fatalf("expected fatal error, got %v", err)
	}

	backend = &fakeBackend{resetErr: errors.Mark(errors.New("timeout"), core.ErrFenceTimeout)}
	r = New(backend, nil)
	if err := r.DrawFrame(surface); !errors.Is(err, core.ErrFenceTimeout) {
		t.Fatalf("expected fence timeout, got %v", err)
	}
}

func TestDrawFrameSkipsZeroExtent(t *testing.T) {
	backend := &fakeBackend{}
	surface := &fakeSurface{extent: core.Extent2D{Width: 0, Height: 720}}
	r := New(backend, nil)
	if err := r.DrawFrame(surface); err != nil {
		t.Fatal(err)
	}
	if len(backend.calls) != 0 {
		t.Fatalf("backend touched while minimised: %v", backend.calls)
	}
	if !r.SwapchainDirty() {
		t.Fatal("dirty flag should survive a skipped frame")
	}
}

func TestShutdownOnce(t *testing.T) {
	backend := &fakeBackend{}
	r := New(backend, nil)
	if err := r.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := r.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if backend.destroys != 1 {
		t.Fatalf("destroy called %d times", backend.destroys)
	}
	if err := r.DrawFrame(&fakeSurface{extent: core.Extent2D{Width: 1, Height: 1}}); err == nil {
		t.Fatal("draw after shutdown should fail")
	}
}

func TestAnimationRange(t *testing.T) {
	for _, sec := range []float64{0, 0.5, math.Pi / 2, math.Pi, 3 * math.Pi / 2, 100} {
		a := Animation(sec)
		if a < 0 || a > 1 {
			t.Fatalf("Animation(%v) = %v", sec, a)
		}
	}
	if Animation(0) != 0.5 {
		t.Fatalf("Animation(0) = %v", Animation(0))
	}
	if got := Animation(math.Pi / 2); math.Abs(float64(got)-1) > 1e-6 {
		t.Fatalf("Animation(pi/2) = %v", got)
	}
}

func TestTriangles(t *testing.T) {
	tris := Triangles(1)
	if tris[0].Color != (mgl32.Vec4{1, 0, 0, 1}) || tris[0].Pos != (mgl32.Vec2{-0.5, -0.5}) {
		t.Fatalf("red triangle = %+v", tris[0])
	}
	if tris[3].Color != (mgl32.Vec4{0, 1, 1, 1}) {
		t.Fatalf("cyan at anim=1: %+v", tris[3].Color)
	}
	if tris[4].Pos != (mgl32.Vec2{0, 0}) {
		t.Fatalf("moving triangle at anim=1: %+v", tris[4].Pos)
	}
	if !tris[5].Scale.ApproxEqual(mgl32.Vec2{0.66, 0.66}) {
		t.Fatalf("growing triangle at anim=1: %+v", tris[5].Scale)
	}

	tris = Triangles(0)
	if tris[3].Color != (mgl32.Vec4{0, 0, 1, 1}) {
		t.Fatalf("blue at anim=0: %+v", tris[3].Color)
	}
	if tris[4].Pos != (mgl32.Vec2{0, 0.5}) {
		t.Fatalf("moving triangle at anim=0: %+v", tris[4].Pos)
	}
}

func TestPushConstantsLayout(t *testing.T) {
	if PushConstantsSize != 32 {
		t.Fatalf("size = %d", PushConstantsSize)
	}
	pc := PushConstants{
		Color: mgl32.Vec4{1, 2, 3, 4},
		Pos:   mgl32.Vec2{5, 6},
		Scale: mgl32.Vec2{7, 8},
	}
	words := pc.Words()
	for i, w := range words {
		if got := math.Float32frombits(w); got != float32(i+1) {
			t.Fatalf("word %d = %v", i, got)
		}
	}
}

func TestSpirvWords(t *testing.T) {
	b := []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}
	words, err := SpirvWords(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 2 || words[0] != SpirvMagic || words[1] != 0x00010000 {
		t.Fatalf("words = %#v", words)
	}
	if got := SpirvBytes(words); string(got) != string(b) {
		t.Fatalf("round trip = %v", got)
	}
	if _, err := SpirvWords(b[:6]); err == nil {
		t.Fatal("expected length error")
	}
	if _, err := SpirvWords([]byte{1, 2, 3, 4}); err == nil {
		t.Fatal("expected magic error")
	}
}

func TestRunTeardownOrderAndErrors(t *testing.T) {
	var order []string
	step := func(name string, err error) ReleaseStep {
		return ReleaseStep{Name: name, Release: func() error {
			order = append(order, name)
			return err
		}}
	}
	err := RunTeardown([]ReleaseStep{
		step("semaphores", nil),
		step("fence", errors.New("boom")),
		{Name: "skipped"},
		step("device", errors.New("bang")),
		step("instance", nil),
	})
	if got := strings.Join(order, ","); got != "semaphores,fence,device,instance" {
		t.Fatalf("order = %s", got)
	}
	if err == nil || !strings.Contains(err.Error(), "fence") {
		t.Fatalf("err = %v", err)
	}
}
