package refrast

import (
	"errors"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	intImage "github.com/gogpu/conform/internal/image"
	"github.com/gogpu/gputypes"
)

var (
	red   = [4]float32{1, 0, 0, 1}
	green = [4]float32{0, 1, 0, 1}
	blue  = [4]float32{0, 0, 1, 1}
)

func cv(x, y, z float32, varyings ...float32) ClipVertex {
	return ClipVertex{Position: [4]float32{x, y, z, 1}, Varyings: varyings}
}

// fullScreenStrip covers the whole viewport with two CCW triangles at depth z.
func fullScreenStrip(z float32) []ClipVertex {
	return []ClipVertex{cv(-1, -1, z), cv(1, -1, z), cv(-1, 1, z), cv(1, 1, z)}
}

func newTestRenderer(t *testing.T, w, h, samples int) *Renderer {
	t.Helper()
	r, err := NewRenderer(w, h, samples)
	if err != nil {
		t.Fatalf("NewRenderer(%d, %d, %d): %v", w, h, samples, err)
	}
	return r
}

func mustDraw(t *testing.T, r *Renderer, st RenderState, topo gputypes.PrimitiveTopology, verts []ClipVertex, fs FragmentShader) Stats {
	t.Helper()
	stats, err := r.Draw(st, topo, verts, fs)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	return stats
}

func near(a, b uint8, tol int) bool {
	d := int(a) - int(b)
	return d >= -tol && d <= tol
}

func TestNewRendererErrors(t *testing.T) {
	tests := []struct {
		name    string
		w, h, s int
		want    error
	}{
		{"zero width", 0, 4, 1, ErrInvalidDimensions},
		{"negative height", 4, -1, 1, ErrInvalidDimensions},
		{"three samples", 4, 4, 3, ErrInvalidSampleCount},
		{"32 samples", 4, 4, 32, ErrInvalidSampleCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRenderer(tt.w, tt.h, tt.s); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDrawErrors(t *testing.T) {
	r := newTestRenderer(t, 4, 4, 1)
	st := DefaultRenderState(4, 4)

	if _, err := r.Draw(st, gputypes.PrimitiveTopologyTriangleList, fullScreenStrip(0), nil); !errors.Is(err, ErrNilShader) {
		t.Errorf("nil shader: err = %v", err)
	}
	for _, topo := range []gputypes.PrimitiveTopology{
		gputypes.PrimitiveTopologyPointList,
		gputypes.PrimitiveTopologyLineList,
		gputypes.PrimitiveTopologyLineStrip,
	} {
		if _, err := r.Draw(st, topo, fullScreenStrip(0), SolidColor(red)); !errors.Is(err, ErrUnsupportedTopology) {
			t.Errorf("%s: err = %v, want ErrUnsupportedTopology", topo, err)
		}
	}
}

func TestDrawFullScreenStrip(t *testing.T) {
	r := newTestRenderer(t, 8, 8, 1)
	stats := mustDraw(t, r, DefaultRenderState(8, 8), gputypes.PrimitiveTopologyTriangleStrip, fullScreenStrip(0), SolidColor(red))

	if stats.Primitives != 2 {
		t.Errorf("Primitives = %d, want 2", stats.Primitives)
	}
	// Each pixel is owned by exactly one of the two triangles.
	if stats.Fragments != 64 || stats.SamplesWritten != 64 {
		t.Errorf("Fragments = %d, SamplesWritten = %d, want 64", stats.Fragments, stats.SamplesWritten)
	}
	for y := range 8 {
		for x := range 8 {
			if got := r.Pixel(x, y); got != (color.NRGBA{255, 0, 0, 255}) {
				t.Fatalf("pixel (%d,%d) = %v", x, y, got)
			}
		}
	}
}

func TestDrawTriangleListIgnoresTrailingVertices(t *testing.T) {
	r := newTestRenderer(t, 4, 4, 1)
	verts := append(fullScreenStrip(0)[:3], cv(1, 1, 0))
	stats := mustDraw(t, r, DefaultRenderState(4, 4), gputypes.PrimitiveTopologyTriangleList, verts, SolidColor(red))
	if stats.Primitives != 1 {
		t.Errorf("Primitives = %d, want 1", stats.Primitives)
	}
}

func TestDrawCulling(t *testing.T) {
	// Clockwise in window space.
	cw := []ClipVertex{cv(-1, -1, 0), cv(-1, 1, 0), cv(1, -1, 0)}

	tests := []struct {
		name      string
		front     gputypes.FrontFace
		cull      gputypes.CullMode
		wantCull  int
		wantFace  FaceType
		wantDrawn bool
	}{
		{"ccw front, cull back", gputypes.FrontFaceCCW, gputypes.CullModeBack, 1, FaceBack, false},
		{"ccw front, cull none", gputypes.FrontFaceCCW, gputypes.CullModeNone, 0, FaceBack, true},
		{"cw front, cull back", gputypes.FrontFaceCW, gputypes.CullModeBack, 0, FaceFront, true},
		{"cw front, cull front", gputypes.FrontFaceCW, gputypes.CullModeFront, 1, FaceFront, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t, 8, 8, 1)
			st := DefaultRenderState(8, 8)
			st.FrontFace = tt.front
			st.CullMode = tt.cull

			var face FaceType = 255
			fs := ShaderFunc(func(f Fragment) ([4]float32, bool) {
				face = f.Face
				return red, false
			})
			stats := mustDraw(t, r, st, gputypes.PrimitiveTopologyTriangleList, cw, fs)
			if stats.Culled != tt.wantCull {
				t.Errorf("Culled = %d, want %d", stats.Culled, tt.wantCull)
			}
			if drawn := stats.Fragments > 0; drawn != tt.wantDrawn {
				t.Fatalf("drawn = %v, want %v", drawn, tt.wantDrawn)
			}
			if tt.wantDrawn && face != tt.wantFace {
				t.Errorf("Face = %v, want %v", face, tt.wantFace)
			}
		})
	}
}

func TestDrawDiscardsNonPositiveW(t *testing.T) {
	r := newTestRenderer(t, 4, 4, 1)
	verts := fullScreenStrip(0)[:3]
	verts[1].Position[3] = 0
	stats := mustDraw(t, r, DefaultRenderState(4, 4), gputypes.PrimitiveTopologyTriangleList, verts, SolidColor(red))
	if stats.Clipped != 1 || stats.Fragments != 0 {
		t.Errorf("stats = %+v, want one clipped primitive and no fragments", stats)
	}
}

func TestDrawDepthTest(t *testing.T) {
	r := newTestRenderer(t, 8, 8, 1)
	st := DefaultRenderState(8, 8)
	st.DepthCompare = gputypes.CompareFunctionLess
	st.DepthWrite = true

	mustDraw(t, r, st, gputypes.PrimitiveTopologyTriangleStrip, fullScreenStrip(0), SolidColor(red))
	if d := r.DepthAt(3, 3); math.Abs(float64(d)-0.5) > 1e-6 {
		t.Fatalf("DepthAt = %v, want 0.5", d)
	}

	stats := mustDraw(t, r, st, gputypes.PrimitiveTopologyTriangleStrip, fullScreenStrip(0.6), SolidColor(green))
	if stats.DepthFailed != 64 || stats.SamplesWritten != 0 {
		t.Errorf("farther draw: DepthFailed = %d, SamplesWritten = %d", stats.DepthFailed, stats.SamplesWritten)
	}
	if got := r.Pixel(2, 2); got.R != 255 || got.G != 0 {
		t.Errorf("pixel after failed draw = %v, want red", got)
	}

	stats = mustDraw(t, r, st, gputypes.PrimitiveTopologyTriangleStrip, fullScreenStrip(-0.6), SolidColor(blue))
	if stats.SamplesWritten != 64 {
		t.Errorf("nearer draw: SamplesWritten = %d, want 64", stats.SamplesWritten)
	}
	if got := r.Pixel(2, 2); got.B != 255 || got.R != 0 {
		t.Errorf("pixel after nearer draw = %v, want blue", got)
	}
	if d := r.DepthAt(2, 2); math.Abs(float64(d)-0.2) > 1e-6 {
		t.Errorf("DepthAt = %v, want 0.2", d)
	}
}

func TestDrawDepthRangeClampsFragments(t *testing.T) {
	r := newTestRenderer(t, 4, 4, 1)
	st := DefaultRenderState(4, 4)
	st.DepthRange = [2]float32{0.25, 0.75}
	st.DepthWrite = true

	var got float32
	fs := ShaderFunc(func(f Fragment) ([4]float32, bool) {
		got = f.Depth
		return red, false
	})
	mustDraw(t, r, st, gputypes.PrimitiveTopologyTriangleStrip, fullScreenStrip(1), fs)
	if math.Abs(float64(got)-0.75) > 1e-6 {
		t.Errorf("Fragment.Depth = %v, want 0.75", got)
	}
}

func TestDrawAlphaBlend(t *testing.T) {
	r := newTestRenderer(t, 4, 4, 1)
	r.Clear([4]float32{1, 1, 1, 1}, 1)

	bs := gputypes.BlendStateAlpha()
	st := DefaultRenderState(4, 4)
	st.Blend = &bs
	mustDraw(t, r, st, gputypes.PrimitiveTopologyTriangleStrip, fullScreenStrip(0), SolidColor([4]float32{1, 0, 0, 0.5}))

	got := r.Pixel(1, 1)
	if got.R != 255 || !near(got.G, 128, 1) || !near(got.B, 128, 1) || got.A != 255 {
		t.Errorf("blended pixel = %v, want ~(255,128,128,255)", got)
	}
}

func TestSRGBTarget(t *testing.T) {
	r := newTestRenderer(t, 4, 4, 1)
	r.SetSRGB(true)
	if !r.SRGB() {
		t.Fatal("SRGB() = false after SetSRGB(true)")
	}

	r.Clear([4]float32{0.5, 0, 1, 0.5}, 1)
	if got := r.Pixel(0, 0); got != (color.NRGBA{188, 0, 255, 128}) {
		t.Errorf("cleared pixel = %v, want (188,0,255,128)", got)
	}

	// Blending happens on linear values.
	r.Clear([4]float32{0, 0, 0, 1}, 1)
	bs := gputypes.BlendStateAlpha()
	st := DefaultRenderState(4, 4)
	st.Blend = &bs
	mustDraw(t, r, st, gputypes.PrimitiveTopologyTriangleStrip, fullScreenStrip(0), SolidColor{1, 1, 1, 0.5})
	if got := r.Pixel(1, 1); got != (color.NRGBA{188, 188, 188, 255}) {
		t.Errorf("blended pixel = %v, want (188,188,188,255)", got)
	}
}

func TestSRGBResolveIsLinear(t *testing.T) {
	r := newTestRenderer(t, 4, 4, 4)
	r.SetSRGB(true)
	r.Clear([4]float32{0, 0, 0, 1}, 1)
	st := DefaultRenderState(4, 4)
	st.SampleMask = 0b0011
	mustDraw(t, r, st, gputypes.PrimitiveTopologyTriangleStrip, fullScreenStrip(0), SolidColor{1, 1, 1, 1})

	if got := r.Pixel(2, 1); got != (color.NRGBA{188, 188, 188, 255}) {
		t.Errorf("resolved pixel = %v, want (188,188,188,255)", got)
	}
}

func TestBlendOperations(t *testing.T) {
	src := [4]float32{0.75, 0.5, 0.25, 0.5}
	dst := [4]float32{0.25, 0.5, 1, 1}
	k := [4]float32{0.5, 0.5, 0.5, 0.5}

	comp := func(sf, df gputypes.BlendFactor, op gputypes.BlendOperation) *gputypes.BlendState {
		c := gputypes.BlendComponent{SrcFactor: sf, DstFactor: df, Operation: op}
		return &gputypes.BlendState{Color: c, Alpha: c}
	}

	tests := []struct {
		name string
		bs   *gputypes.BlendState
		want [4]float32
	}{
		{"replace", comp(gputypes.BlendFactorOne, gputypes.BlendFactorZero, gputypes.BlendOperationAdd), src},
		{"add", comp(gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationAdd), [4]float32{1, 1, 1.25, 1.5}},
		{"subtract", comp(gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationSubtract), [4]float32{0.5, 0, -0.75, -0.5}},
		{"reverse subtract", comp(gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationReverseSubtract), [4]float32{-0.5, 0, 0.75, 0.5}},
		{"min ignores factors", comp(gputypes.BlendFactorZero, gputypes.BlendFactorZero, gputypes.BlendOperationMin), [4]float32{0.25, 0.5, 0.25, 0.5}},
		{"max", comp(gputypes.BlendFactorZero, gputypes.BlendFactorZero, gputypes.BlendOperationMax), [4]float32{0.75, 0.5, 1, 1}},
		{"dst color", comp(gputypes.BlendFactorDst, gputypes.BlendFactorZero, gputypes.BlendOperationAdd), [4]float32{0.1875, 0.25, 0.25, 0.5}},
		{"constant", comp(gputypes.BlendFactorConstant, gputypes.BlendFactorOneMinusConstant, gputypes.BlendOperationAdd), [4]float32{0.5, 0.5, 0.625, 0.75}},
		{"one minus dst alpha", comp(gputypes.BlendFactorOneMinusDstAlpha, gputypes.BlendFactorOne, gputypes.BlendOperationAdd), dst},
		{"src alpha saturated", comp(gputypes.BlendFactorSrcAlphaSaturated, gputypes.BlendFactorZero, gputypes.BlendOperationAdd), [4]float32{0, 0, 0, 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := blend(tt.bs, src, dst, k)
			for ch := range 4 {
				if math.Abs(float64(got[ch]-tt.want[ch])) > 1e-6 {
					t.Fatalf("blend = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestDepthPasses(t *testing.T) {
	tests := []struct {
		f    gputypes.CompareFunction
		a, b float32
		want bool
	}{
		{gputypes.CompareFunctionNever, 0, 1, false},
		{gputypes.CompareFunctionLess, 0.4, 0.5, true},
		{gputypes.CompareFunctionLess, 0.5, 0.5, false},
		{gputypes.CompareFunctionLessEqual, 0.5, 0.5, true},
		{gputypes.CompareFunctionEqual, 0.5, 0.5, true},
		{gputypes.CompareFunctionGreater, 0.5, 0.5, false},
		{gputypes.CompareFunctionGreaterEqual, 0.5, 0.5, true},
		{gputypes.CompareFunctionNotEqual, 0.5, 0.5, false},
		{gputypes.CompareFunctionAlways, 1, 0, true},
		{gputypes.CompareFunctionUndefined, 1, 0, true},
	}
	for _, tt := range tests {
		if got := depthPasses(tt.f, tt.a, tt.b); got != tt.want {
			t.Errorf("depthPasses(%v, %v, %v) = %v, want %v", tt.f, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDrawWriteMask(t *testing.T) {
	r := newTestRenderer(t, 4, 4, 1)
	r.Clear(blue, 1)
	st := DefaultRenderState(4, 4)
	st.WriteMask = gputypes.ColorWriteMaskRed
	mustDraw(t, r, st, gputypes.PrimitiveTopologyTriangleStrip, fullScreenStrip(0), SolidColor([4]float32{1, 1, 0, 0}))

	if got := r.Pixel(0, 0); got != (color.NRGBA{255, 0, 255, 255}) {
		t.Errorf("pixel = %v, want (255,0,255,255)", got)
	}
}

func TestDrawShaderDiscard(t *testing.T) {
	r := newTestRenderer(t, 8, 8, 1)
	fs := ShaderFunc(func(f Fragment) ([4]float32, bool) {
		return red, f.X < 4
	})
	stats := mustDraw(t, r, DefaultRenderState(8, 8), gputypes.PrimitiveTopologyTriangleStrip, fullScreenStrip(0), fs)
	if stats.Discarded != 32 || stats.SamplesWritten != 32 {
		t.Errorf("Discarded = %d, SamplesWritten = %d, want 32 and 32", stats.Discarded, stats.SamplesWritten)
	}
	if r.Pixel(3, 5).A != 0 || r.Pixel(4, 5).R != 255 {
		t.Errorf("discard boundary wrong: %v %v", r.Pixel(3, 5), r.Pixel(4, 5))
	}
}

func TestDrawVaryingInterpolation(t *testing.T) {
	r := newTestRenderer(t, 8, 8, 1)
	verts := []ClipVertex{
		cv(-1, -1, 0, 0, 0, 0, 1),
		cv(1, -1, 0, 1, 0, 0, 1),
		cv(-1, 1, 0, 0, 0, 0, 1),
		cv(1, 1, 0, 1, 0, 0, 1),
	}
	mustDraw(t, r, DefaultRenderState(8, 8), gputypes.PrimitiveTopologyTriangleStrip, verts, VaryingColor)

	// Red follows the pixel-centre x coordinate: (x + 0.5) / 8.
	for x := range 8 {
		want := uint8(float32(x)*255/8 + 255/16.0 + 0.5)
		for _, y := range []int{0, 7} {
			if got := r.Pixel(x, y); !near(got.R, want, 1) || got.A != 255 {
				t.Errorf("pixel (%d,%d) = %v, want R~%d", x, y, got, want)
			}
		}
	}
}

func TestDrawPerspectiveVaryings(t *testing.T) {
	r := newTestRenderer(t, 8, 8, 1)
	// The right edge is twice as far away; its varying should cover less
	// than half the screen.
	verts := []ClipVertex{
		{Position: [4]float32{-1, -1, 0, 1}, Varyings: []float32{0}},
		{Position: [4]float32{2, -2, 0, 2}, Varyings: []float32{1}},
		{Position: [4]float32{-1, 1, 0, 1}, Varyings: []float32{0}},
		{Position: [4]float32{2, 2, 0, 2}, Varyings: []float32{1}},
	}
	var mid float32
	fs := ShaderFunc(func(f Fragment) ([4]float32, bool) {
		if f.X == 4 && f.Y == 4 {
			mid = f.Varyings[0]
		}
		return red, false
	})
	mustDraw(t, r, DefaultRenderState(8, 8), gputypes.PrimitiveTopologyTriangleStrip, verts, fs)

	// Screen-space t = 4.5/8; perspective-correct value = (t/2) / ((1-t) + t/2).
	ts := 4.5 / 8.0
	want := (ts / 2) / ((1 - ts) + ts/2)
	if math.Abs(float64(mid)-want) > 1e-3 {
		t.Errorf("varying at centre = %v, want %v", mid, want)
	}
}

func TestDrawSampleMaskResolve(t *testing.T) {
	r := newTestRenderer(t, 4, 4, 4)
	st := DefaultRenderState(4, 4)
	st.SampleMask = 0b0011
	stats := mustDraw(t, r, st, gputypes.PrimitiveTopologyTriangleStrip, fullScreenStrip(0), SolidColor(red))

	if stats.SamplesWritten != 4*4*2 {
		t.Errorf("SamplesWritten = %d, want 32", stats.SamplesWritten)
	}
	if got := r.Pixel(2, 1); got != (color.NRGBA{128, 0, 0, 128}) {
		t.Errorf("resolved pixel = %v, want (128,0,0,128)", got)
	}
}

func TestDrawMultisampleEdge(t *testing.T) {
	r := newTestRenderer(t, 8, 8, 4)
	// Diagonal through the framebuffer: pixels on the diagonal are partially covered.
	verts := []ClipVertex{cv(-1, -1, 0), cv(1, -1, 0), cv(1, 1, 0)}
	mustDraw(t, r, DefaultRenderState(8, 8), gputypes.PrimitiveTopologyTriangleList, verts, SolidColor(red))

	partial := 0
	for i := range 8 {
		a := r.Pixel(i, i).A
		if a > 0 && a < 255 {
			partial++
		}
	}
	if partial == 0 {
		t.Error("no partially covered pixels on the diagonal")
	}
	if r.Pixel(7, 0).A != 255 || r.Pixel(0, 7).A != 0 {
		t.Errorf("interior/exterior pixels wrong: %v %v", r.Pixel(7, 0), r.Pixel(0, 7))
	}
}

func TestDrawViewport(t *testing.T) {
	r := newTestRenderer(t, 8, 8, 1)
	st := DefaultRenderState(8, 8)
	st.Viewport = Viewport{X: 6, Y: 6, Width: 4, Height: 4}
	stats := mustDraw(t, r, st, gputypes.PrimitiveTopologyTriangleStrip, fullScreenStrip(0), SolidColor(red))

	// Only the 2x2 part of the viewport inside the framebuffer is drawn.
	if stats.SamplesWritten != 4 {
		t.Errorf("SamplesWritten = %d, want 4", stats.SamplesWritten)
	}
	if r.Pixel(7, 7).R != 255 || r.Pixel(5, 5).A != 0 {
		t.Errorf("viewport pixels wrong: %v %v", r.Pixel(7, 7), r.Pixel(5, 5))
	}

	st.Viewport = Viewport{X: 20, Y: 0, Width: 4, Height: 4}
	if stats := mustDraw(t, r, st, gputypes.PrimitiveTopologyTriangleStrip, fullScreenStrip(0), SolidColor(red)); stats.Primitives != 0 {
		t.Errorf("off-screen viewport assembled %d primitives", stats.Primitives)
	}
}

func TestImageIsTopDown(t *testing.T) {
	r := newTestRenderer(t, 8, 8, 1)
	// Bottom half of the window.
	verts := []ClipVertex{cv(-1, -1, 0), cv(1, -1, 0), cv(-1, 0, 0), cv(1, 0, 0)}
	mustDraw(t, r, DefaultRenderState(8, 8), gputypes.PrimitiveTopologyTriangleStrip, verts, SolidColor(red))

	img, ok := r.Image().(*image.NRGBA)
	if !ok {
		t.Fatalf("Image() type = %T", r.Image())
	}
	if got := img.NRGBAAt(0, 7); got.R != 255 {
		t.Errorf("bottom image row = %v, want red", got)
	}
	if got := img.NRGBAAt(0, 0); got.A != 0 {
		t.Errorf("top image row = %v, want clear", got)
	}
	if r.Pixel(0, 0).R != 255 {
		t.Error("window pixel (0,0) should be red")
	}
}

func TestSavePNG(t *testing.T) {
	r := newTestRenderer(t, 4, 4, 1)
	r.Clear(green, 1)
	path := filepath.Join(t.TempDir(), "expected.png")
	if err := r.SavePNG(path); err != nil {
		t.Fatal(err)
	}
	buf, err := intImage.LoadImage(path)
	if err != nil {
		t.Fatal(err)
	}
	if rr, g, b, a := buf.GetRGBA(3, 3); rr != 0 || g != 255 || b != 0 || a != 255 {
		t.Errorf("saved pixel = (%d,%d,%d,%d)", rr, g, b, a)
	}
	if err := r.SavePNG(filepath.Join(t.TempDir(), "missing", "x.png")); err == nil {
		t.Error("SavePNG into a missing directory should fail")
	}
}

func TestAssembleStripWinding(t *testing.T) {
	tris, err := assemble(gputypes.PrimitiveTopologyTriangleStrip, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := [][3]int{{0, 1, 2}, {2, 1, 3}, {2, 3, 4}}
	if len(tris) != len(want) {
		t.Fatalf("got %d triangles, want %d", len(tris), len(want))
	}
	for i := range want {
		if tris[i] != want[i] {
			t.Errorf("triangle %d = %v, want %v", i, tris[i], want[i])
		}
	}
	if tris, _ := assemble(gputypes.PrimitiveTopologyTriangleStrip, 2); len(tris) != 0 {
		t.Errorf("two-vertex strip produced %d triangles", len(tris))
	}
}

func BenchmarkDrawFullScreen(b *testing.B) {
	r, _ := NewRenderer(256, 256, 4)
	st := DefaultRenderState(256, 256)
	verts := fullScreenStrip(0)
	for b.Loop() {
		_, _ = r.Draw(st, gputypes.PrimitiveTopologyTriangleStrip, verts, SolidColor(red))
	}
}
