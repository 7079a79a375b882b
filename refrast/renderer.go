package refrast

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/bits"

	"github.com/gogpu/conform"
	srgb "github.com/gogpu/conform/internal/color"
	intImage "github.com/gogpu/conform/internal/image"
	"github.com/gogpu/gputypes"
)

// Renderer errors.
var (
	// ErrInvalidDimensions is returned for a non-positive framebuffer size.
	ErrInvalidDimensions = errors.New("refrast: invalid dimensions")

	// ErrUnsupportedTopology is returned for point and line topologies.
	ErrUnsupportedTopology = errors.New("refrast: unsupported topology")

	// ErrNilShader is returned when Draw is called without a fragment shader.
	ErrNilShader = errors.New("refrast: nil fragment shader")
)

// packetBatch is the number of packets pulled from the rasterizer at once.
const packetBatch = 64

// ClipVertex is a vertex-shader output: a clip-space position and the
// varyings interpolated across the primitive.
type ClipVertex struct {
	Position [4]float32
	Varyings []float32
}

// Fragment is the input of a fragment shader invocation.
//
// Varyings is only valid for the duration of the Shade call.
type Fragment struct {
	X, Y        int // window coordinates, origin lower-left
	Depth       float32
	Face        FaceType
	Barycentric [3]float32
	Varyings    []float32
}

// FragmentShader computes the color of a fragment.
type FragmentShader interface {
	Shade(frag Fragment) (color [4]float32, discard bool)
}

// ShaderFunc adapts a function to the FragmentShader interface.
type ShaderFunc func(frag Fragment) ([4]float32, bool)

// Shade calls f(frag).
func (f ShaderFunc) Shade(frag Fragment) ([4]float32, bool) { return f(frag) }

// SolidColor shades every fragment with the same color.
type SolidColor [4]float32

// Shade returns c.
func (c SolidColor) Shade(Fragment) ([4]float32, bool) { return c, false }

// VaryingColor shades with the first four varyings as RGBA. Missing color
// channels are 0 and a missing alpha is 1.
var VaryingColor FragmentShader = ShaderFunc(func(frag Fragment) ([4]float32, bool) {
	out := [4]float32{0, 0, 0, 1}
	copy(out[:], frag.Varyings)
	return out, false
})

// RenderState is the fixed-function state of a draw call.
type RenderState struct {
	Viewport   Viewport
	DepthRange [2]float32 // near, far

	FrontFace      gputypes.FrontFace
	CullMode       gputypes.CullMode
	HorizontalFill HorizontalFill
	VerticalFill   VerticalFill

	DepthCompare gputypes.CompareFunction
	DepthWrite   bool

	// Blend is nil when blending is disabled.
	Blend         *gputypes.BlendState
	BlendConstant gputypes.Color
	WriteMask     gputypes.ColorWriteMask

	// SampleMask is ANDed with the coverage of every pixel. Bit s enables
	// sample s.
	SampleMask uint64
}

// DefaultRenderState returns the GL initial state for a framebuffer of the
// given size: full viewport, depth range [0, 1], counter-clockwise front
// faces, no culling, depth test off, blending off, all channels and samples
// enabled.
func DefaultRenderState(width, height int) RenderState {
	return RenderState{
		Viewport:       Viewport{Width: width, Height: height},
		DepthRange:     [2]float32{0, 1},
		FrontFace:      gputypes.FrontFaceCCW,
		CullMode:       gputypes.CullModeNone,
		HorizontalFill: FillLeft,
		VerticalFill:   FillBottom,
		DepthCompare:   gputypes.CompareFunctionAlways,
		WriteMask:      gputypes.ColorWriteMaskAll,
		SampleMask:     ^uint64(0),
	}
}

// Stats counts what happened to the primitives of a draw call.
type Stats struct {
	Primitives     int // assembled triangles
	Clipped        int // discarded for a vertex with w <= 0
	Culled         int
	Fragments      int // fragment shader invocations
	Discarded      int // fragments discarded by the shader
	DepthFailed    int // samples rejected by the depth test
	SamplesWritten int
}

// Renderer draws triangles into a multisampled RGBA8 color buffer and a
// float32 depth buffer using the reference rasterizer. Window coordinates
// have their origin at the lower-left corner.
//
// A Renderer is not safe for concurrent use.
type Renderer struct {
	width, height int
	samples       int

	// srgb marks an sRGB-encoded color target: blending and resolve work
	// on linear values, storage holds encoded RGB.
	srgb bool

	color []uint8   // RGBA per sample
	depth []float32 // per sample

	packets  []FragmentPacket
	zScratch []float32
	varyings []float32
}

// NewRenderer creates a renderer with a cleared framebuffer. samples must be
// 1, 2, 4, 8 or 16.
func NewRenderer(width, height, samples int) (*Renderer, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if _, ok := samplePattern(samples); !ok {
		return nil, ErrInvalidSampleCount
	}

	n := width * height * samples
	r := &Renderer{
		width:    width,
		height:   height,
		samples:  samples,
		color:    make([]uint8, n*4),
		depth:    make([]float32, n),
		packets:  make([]FragmentPacket, packetBatch),
		zScratch: make([]float32, packetBatch*4*samples),
	}
	r.Clear([4]float32{0, 0, 0, 0}, 1)
	return r, nil
}

// Width returns the framebuffer width.
func (r *Renderer) Width() int { return r.width }

// Height returns the framebuffer height.
func (r *Renderer) Height() int { return r.height }

// Samples returns the sample count per pixel.
func (r *Renderer) Samples() int { return r.samples }

// SetSRGB switches the color target between a unorm and an sRGB-encoded
// format. Shader outputs and clear colors are linear in both cases. The
// stored contents are not converted, so call Clear afterwards.
func (r *Renderer) SetSRGB(enabled bool) { r.srgb = enabled }

// SRGB reports whether the color target is sRGB-encoded.
func (r *Renderer) SRGB() bool { return r.srgb }

func (r *Renderer) encode(c [4]float32) [4]uint8 {
	if r.srgb {
		return [4]uint8{srgb.Encode8(c[0]), srgb.Encode8(c[1]), srgb.Encode8(c[2]), toUnorm8(c[3])}
	}
	return [4]uint8{toUnorm8(c[0]), toUnorm8(c[1]), toUnorm8(c[2]), toUnorm8(c[3])}
}

func (r *Renderer) decode(px []uint8) [4]float32 {
	if r.srgb {
		return [4]float32{srgb.Decode8(px[0]), srgb.Decode8(px[1]), srgb.Decode8(px[2]), fromUnorm8(px[3])}
	}
	return [4]float32{fromUnorm8(px[0]), fromUnorm8(px[1]), fromUnorm8(px[2]), fromUnorm8(px[3])}
}

// Clear sets every sample to the given color and depth.
func (r *Renderer) Clear(c [4]float32, depth float32) {
	px := r.encode(c)
	for i := 0; i < len(r.color); i += 4 {
		copy(r.color[i:i+4], px[:])
	}
	for i := range r.depth {
		r.depth[i] = depth
	}
}

// Draw rasterizes the primitives formed by verts with the given topology.
// Only triangle lists and strips are supported. Primitives with a vertex at
// w <= 0 are discarded instead of clipped.
func (r *Renderer) Draw(st RenderState, topology gputypes.PrimitiveTopology, verts []ClipVertex, fs FragmentShader) (Stats, error) {
	var stats Stats
	if fs == nil {
		return stats, ErrNilShader
	}
	tris, err := assemble(topology, len(verts))
	if err != nil {
		return stats, err
	}

	vp := st.Viewport
	area := image.Rect(vp.X, vp.Y, vp.X+vp.Width, vp.Y+vp.Height).
		Intersect(image.Rect(0, 0, r.width, r.height))
	if vp.Width <= 0 || vp.Height <= 0 || area.Empty() {
		conform.Logger().Debug("refrast: empty viewport", "viewport", fmt.Sprintf("%+v", vp))
		return stats, nil
	}

	rs := RasterizationState{
		Winding:             windingOf(st.FrontFace),
		HorizontalFill:      st.HorizontalFill,
		VerticalFill:        st.VerticalFill,
		ViewportOrientation: OrientationLowerLeft,
	}
	tr, err := NewTriangleRasterizer(Viewport{X: area.Min.X, Y: area.Min.Y, Width: area.Dx(), Height: area.Dy()}, r.samples, rs)
	if err != nil {
		return stats, err
	}

	for _, tri := range tris {
		stats.Primitives++
		a, b, c := &verts[tri[0]], &verts[tri[1]], &verts[tri[2]]
		if a.Position[3] <= 0 || b.Position[3] <= 0 || c.Position[3] <= 0 {
			stats.Clipped++
			continue
		}

		tr.Init(r.toWindow(&st, a), r.toWindow(&st, b), r.toWindow(&st, c))
		if culled(st.CullMode, tr.Face()) {
			stats.Culled++
			continue
		}
		r.drawTriangle(&st, tr, [3]*ClipVertex{a, b, c}, fs, &stats)
	}

	conform.Logger().Debug("refrast: draw",
		"topology", topology.String(),
		"primitives", stats.Primitives,
		"clipped", stats.Clipped,
		"culled", stats.Culled,
		"fragments", stats.Fragments,
		"samples_written", stats.SamplesWritten)
	return stats, nil
}

func (r *Renderer) drawTriangle(st *RenderState, tr *TriangleRasterizer, vs [3]*ClipVertex, fs FragmentShader, stats *Stats) {
	ns := r.samples
	perPacket := 4 * ns
	pixelBits := uint64(1)<<uint(ns) - 1
	zLo, zHi := min(st.DepthRange[0], st.DepthRange[1]), max(st.DepthRange[0], st.DepthRange[1])

	for {
		n := tr.Rasterize(r.packets, r.zScratch)
		if n == 0 {
			return
		}
		for k := range n {
			p := &r.packets[k]
			z := r.zScratch[k*perPacket : (k+1)*perPacket]

			for i := range 4 {
				cov := p.Coverage >> uint(i*ns) & pixelBits & st.SampleMask
				if cov == 0 {
					continue
				}
				x, y := p.Position.X+i%2, p.Position.Y+i/2

				bary := [3]float32{p.Barycentric[0][i], p.Barycentric[1][i], p.Barycentric[2][i]}
				frag := Fragment{
					X:           x,
					Y:           y,
					Depth:       clampf(z[i*ns+bits.TrailingZeros64(cov)], zLo, zHi),
					Face:        tr.Face(),
					Barycentric: bary,
					Varyings:    r.interpolate(vs, bary),
				}
				stats.Fragments++
				col, discard := fs.Shade(frag)
				if discard {
					stats.Discarded++
					continue
				}

				base := (y*r.width + x) * ns
				for s := range ns {
					if cov&(1<<uint(s)) == 0 {
						continue
					}
					d := clampf(z[i*ns+s], zLo, zHi)
					idx := base + s
					if !depthPasses(st.DepthCompare, d, r.depth[idx]) {
						stats.DepthFailed++
						continue
					}
					if st.DepthWrite {
						r.depth[idx] = d
					}
					r.writeColor(st, idx, col)
					stats.SamplesWritten++
				}
			}
		}
	}
}

// toWindow applies the perspective divide and the viewport transform.
func (r *Renderer) toWindow(st *RenderState, v *ClipVertex) Vertex {
	p := v.Position
	invW := 1 / p[3]
	vp := st.Viewport
	n, f := clampf(st.DepthRange[0], 0, 1), clampf(st.DepthRange[1], 0, 1)

	return Vertex{
		X: float32(vp.X) + (p[0]*invW+1)*float32(vp.Width)/2,
		Y: float32(vp.Y) + (p[1]*invW+1)*float32(vp.Height)/2,
		Z: n + (f-n)*(p[2]*invW+1)/2,
		W: invW,
	}
}

// interpolate blends the varyings of the three vertices with perspective
// correct barycentrics. Vertices with fewer varyings limit the result.
func (r *Renderer) interpolate(vs [3]*ClipVertex, b [3]float32) []float32 {
	n := min(len(vs[0].Varyings), len(vs[1].Varyings), len(vs[2].Varyings))
	if cap(r.varyings) < n {
		r.varyings = make([]float32, n)
	}
	out := r.varyings[:n]
	for i := range out {
		out[i] = b[0]*vs[0].Varyings[i] + b[1]*vs[1].Varyings[i] + b[2]*vs[2].Varyings[i]
	}
	return out
}

func (r *Renderer) writeColor(st *RenderState, idx int, src [4]float32) {
	px := r.color[idx*4 : idx*4+4]
	for ch := range src {
		src[ch] = clampf(src[ch], 0, 1)
	}

	out := src
	if st.Blend != nil {
		k := st.BlendConstant
		out = blend(st.Blend, src, r.decode(px), [4]float32{float32(k.R), float32(k.G), float32(k.B), float32(k.A)})
	}
	enc := r.encode(out)
	for ch := range 4 {
		if st.WriteMask&(1<<uint(ch)) != 0 {
			px[ch] = enc[ch]
		}
	}
}

// ColorBuffer resolves the samples of every pixel into an RGBA8 buffer.
// Row 0 of the buffer is the top of the window.
func (r *Renderer) ColorBuffer() *intImage.ImageBuf {
	buf, _ := intImage.NewImageBuf(r.width, r.height, intImage.FormatRGBA8)
	for y := range r.height {
		row := buf.RowBytes(r.height - 1 - y)
		for x := range r.width {
			px := r.resolve(x, y)
			copy(row[x*4:x*4+4], px[:])
		}
	}
	return buf
}

// Image returns the resolved color buffer as an *image.NRGBA, top row first.
func (r *Renderer) Image() image.Image {
	return r.ColorBuffer().ToStdImage()
}

// Pixel returns the resolved color at window coordinates (x, y).
// Out-of-range coordinates return transparent black.
func (r *Renderer) Pixel(x, y int) color.NRGBA {
	if x < 0 || x >= r.width || y < 0 || y >= r.height {
		return color.NRGBA{}
	}
	px := r.resolve(x, y)
	return color.NRGBA{R: px[0], G: px[1], B: px[2], A: px[3]}
}

// resolve averages the samples of a pixel, rounding to nearest. sRGB
// targets are averaged in linear space.
func (r *Renderer) resolve(x, y int) [4]uint8 {
	ns := r.samples
	base := (y*r.width + x) * ns * 4
	if ns == 1 {
		return [4]uint8(r.color[base : base+4])
	}
	if r.srgb {
		var sum [4]float32
		for s := range ns {
			c := r.decode(r.color[base+s*4 : base+s*4+4])
			for ch := range 4 {
				sum[ch] += c[ch]
			}
		}
		for ch := range 4 {
			sum[ch] /= float32(ns)
		}
		return r.encode(sum)
	}
	var sum [4]int
	for s := range ns {
		for ch := range 4 {
			sum[ch] += int(r.color[base+s*4+ch])
		}
	}
	var out [4]uint8
	for ch := range 4 {
		out[ch] = uint8((sum[ch] + ns/2) / ns)
	}
	return out
}

// DepthAt returns the depth of sample 0 at window coordinates (x, y).
func (r *Renderer) DepthAt(x, y int) float32 {
	if x < 0 || x >= r.width || y < 0 || y >= r.height {
		return 0
	}
	return r.depth[(y*r.width+x)*r.samples]
}

// SavePNG writes the resolved color buffer to a PNG file.
func (r *Renderer) SavePNG(path string) error {
	if err := r.ColorBuffer().SavePNG(path); err != nil {
		return fmt.Errorf("refrast: save %s: %w", path, err)
	}
	return nil
}

// assemble returns vertex index triples for the topology. Strips alternate
// the first two indices so every triangle keeps the winding of the first.
func assemble(topology gputypes.PrimitiveTopology, n int) ([][3]int, error) {
	switch topology {
	case gputypes.PrimitiveTopologyTriangleList:
		tris := make([][3]int, 0, n/3)
		for i := 0; i+2 < n; i += 3 {
			tris = append(tris, [3]int{i, i + 1, i + 2})
		}
		return tris, nil
	case gputypes.PrimitiveTopologyTriangleStrip:
		tris := make([][3]int, 0, max(n-2, 0))
		for i := 0; i+2 < n; i++ {
			if i%2 == 0 {
				tris = append(tris, [3]int{i, i + 1, i + 2})
			} else {
				tris = append(tris, [3]int{i + 1, i, i + 2})
			}
		}
		return tris, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTopology, topology)
	}
}

func windingOf(f gputypes.FrontFace) Winding {
	if f == gputypes.FrontFaceCW {
		return WindingCW
	}
	return WindingCCW
}

func culled(m gputypes.CullMode, f FaceType) bool {
	switch m {
	case gputypes.CullModeFront:
		return f == FaceFront
	case gputypes.CullModeBack:
		return f == FaceBack
	default:
		return false
	}
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
