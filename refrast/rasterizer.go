package refrast

import (
	"errors"
	"image"
)

// Rasterizer errors.
var (
	// ErrInvalidSampleCount is returned for sample counts other than 1, 2, 4, 8 or 16.
	ErrInvalidSampleCount = errors.New("refrast: invalid sample count")

	// ErrInvalidViewport is returned when the viewport has no area.
	ErrInvalidViewport = errors.New("refrast: invalid viewport")
)

// MaxSamples is the largest supported sample count. Four pixels of a packet
// times MaxSamples samples fill the 64-bit coverage mask.
const MaxSamples = 16

// Vertex is a triangle vertex in window coordinates.
type Vertex struct {
	X, Y float32 // window position in pixels
	Z    float32 // window depth
	W    float32 // reciprocal of clip-space w
}

// HorizontalFill selects which of the left or right edges of a triangle
// owns the pixels lying exactly on it.
type HorizontalFill uint8

const (
	// FillLeft makes left edges inclusive.
	FillLeft HorizontalFill = iota
	// FillRight makes right edges inclusive.
	FillRight
)

// VerticalFill selects whether horizontal top or bottom edges are inclusive.
type VerticalFill uint8

const (
	// FillBottom makes bottom edges inclusive.
	FillBottom VerticalFill = iota
	// FillTop makes top edges inclusive.
	FillTop
)

// Winding is the vertex order considered front-facing.
type Winding uint8

const (
	// WindingCCW treats counter-clockwise triangles as front-facing.
	WindingCCW Winding = iota
	// WindingCW treats clockwise triangles as front-facing.
	WindingCW
)

// ViewportOrientation is the location of the window-space origin.
type ViewportOrientation uint8

const (
	// OrientationLowerLeft is the GL convention: y grows upward.
	OrientationLowerLeft ViewportOrientation = iota
	// OrientationUpperLeft is the D3D/WebGPU convention: y grows downward.
	OrientationUpperLeft
)

// FaceType classifies a rasterized triangle.
type FaceType uint8

const (
	// FaceFront is a front-facing triangle.
	FaceFront FaceType = iota
	// FaceBack is a back-facing triangle.
	FaceBack
)

// String returns the face name.
func (f FaceType) String() string {
	if f == FaceFront {
		return "front"
	}
	return "back"
}

// RasterizationState configures fill rules and facing.
type RasterizationState struct {
	Winding             Winding
	HorizontalFill      HorizontalFill
	VerticalFill        VerticalFill
	ViewportOrientation ViewportOrientation
}

// DefaultRasterizationState returns the GL conventions: counter-clockwise
// front faces, inclusive left and bottom edges, lower-left origin.
func DefaultRasterizationState() RasterizationState {
	return RasterizationState{
		Winding:             WindingCCW,
		HorizontalFill:      FillLeft,
		VerticalFill:        FillBottom,
		ViewportOrientation: OrientationLowerLeft,
	}
}

// Viewport is the window rectangle primitives are rasterized into.
type Viewport struct {
	X, Y          int
	Width, Height int
}

// EdgeFunction is the line equation A*x + B*y + C in subpixel units.
// A point is inside a counter-clockwise oriented edge when the value is
// positive, or zero and the edge is inclusive.
type EdgeFunction struct {
	A, B, C   int64
	Inclusive bool
}

// Evaluate returns the edge value at subpixel position (x, y).
func (e EdgeFunction) Evaluate(x, y int64) int64 {
	return e.A*x + e.B*y + e.C
}

// InsideCCW reports whether an edge value is on the inner side.
func (e EdgeFunction) InsideCCW(v int64) bool {
	if e.Inclusive {
		return v >= 0
	}
	return v > 0
}

// flip reverses the orientation of the edge. Inclusiveness flips with it so
// shared edges keep exactly one owner.
func (e *EdgeFunction) flip() {
	e.A = -e.A
	e.B = -e.B
	e.C = -e.C
	e.Inclusive = !e.Inclusive
}

// newEdgeCCW builds the edge from (x0, y0) to (x1, y1) assuming the
// triangle is counter-clockwise.
func newEdgeCCW(hf HorizontalFill, vf VerticalFill, x0, y0, x1, y1 int64) EdgeFunction {
	xd := x1 - x0
	yd := y1 - y0

	var inclusive bool
	if yd == 0 {
		if vf == FillBottom {
			inclusive = xd >= 0
		} else {
			inclusive = xd <= 0
		}
	} else {
		if hf == FillLeft {
			inclusive = yd <= 0
		} else {
			inclusive = yd >= 0
		}
	}

	return EdgeFunction{
		A:         y0 - y1,
		B:         x1 - x0,
		C:         x0*y1 - y0*x1,
		Inclusive: inclusive,
	}
}

// FragmentPacket is a 2x2 quad of pixels produced by the rasterizer.
//
// Pixel i of the quad is at Position + (i%2, i/2). Coverage bit
// (i*numSamples + sample) is set when that sample is covered.
// Barycentric[v][i] is the perspective-correct weight of vertex v at pixel i.
type FragmentPacket struct {
	Position    image.Point
	Coverage    uint64
	Barycentric [3][4]float32
}

// CoverageBit returns the coverage mask bit for a quad pixel and sample.
func CoverageBit(numSamples, px, py, sample int) uint64 {
	return 1 << uint((py*2+px)*numSamples+sample)
}

// PixelCovered reports whether any sample of quad pixel i is covered.
func (p *FragmentPacket) PixelCovered(numSamples, i int) bool {
	mask := uint64(1)<<uint(numSamples) - 1
	return p.Coverage>>uint(i*numSamples)&mask != 0
}

// TriangleRasterizer scan-converts one triangle at a time into fragment
// packets. It holds per-triangle state set by Init and a cursor advanced by
// Rasterize. A TriangleRasterizer is not safe for concurrent use.
type TriangleRasterizer struct {
	viewport   Viewport
	numSamples int
	state      RasterizationState
	samples    []subpixelOffset

	v0, v1, v2 Vertex

	edge01, edge12, edge20 EdgeFunction

	face    FaceType
	bboxMin image.Point
	bboxMax image.Point
	cur     image.Point
	done    bool
}

// NewTriangleRasterizer creates a rasterizer for the viewport.
// numSamples must be 1, 2, 4, 8 or 16.
func NewTriangleRasterizer(vp Viewport, numSamples int, st RasterizationState) (*TriangleRasterizer, error) {
	if vp.Width <= 0 || vp.Height <= 0 {
		return nil, ErrInvalidViewport
	}
	pattern, ok := samplePattern(numSamples)
	if !ok {
		return nil, ErrInvalidSampleCount
	}
	return &TriangleRasterizer{
		viewport:   vp,
		numSamples: numSamples,
		state:      st,
		samples:    pattern,
		done:       true,
	}, nil
}

// NumSamples returns the sample count per pixel.
func (r *TriangleRasterizer) NumSamples() int { return r.numSamples }

// Face returns the facing of the triangle passed to the last Init.
func (r *TriangleRasterizer) Face() FaceType { return r.face }

// Bounds returns the viewport-clamped pixel bounding box of the current
// triangle. Max is inclusive.
func (r *TriangleRasterizer) Bounds() (lo, hi image.Point) { return r.bboxMin, r.bboxMax }

// Edges returns the oriented edge functions of the current triangle.
func (r *TriangleRasterizer) Edges() (e01, e12, e20 EdgeFunction) {
	return r.edge01, r.edge12, r.edge20
}

// Init sets up a new triangle and resets the packet cursor.
func (r *TriangleRasterizer) Init(v0, v1, v2 Vertex) {
	r.v0, r.v1, r.v2 = v0, v1, v2

	x0, y0 := ToSubpixel(v0.X), ToSubpixel(v0.Y)
	x1, y1 := ToSubpixel(v1.X), ToSubpixel(v1.Y)
	x2, y2 := ToSubpixel(v2.X), ToSubpixel(v2.Y)

	hf, vf := r.state.HorizontalFill, r.state.VerticalFill
	if r.state.Winding == WindingCCW {
		r.edge01 = newEdgeCCW(hf, vf, x0, y0, x1, y1)
		r.edge12 = newEdgeCCW(hf, vf, x1, y1, x2, y2)
		r.edge20 = newEdgeCCW(hf, vf, x2, y2, x0, y0)
	} else {
		r.edge01 = newEdgeCCW(hf, vf, x1, y1, x0, y0)
		r.edge12 = newEdgeCCW(hf, vf, x2, y2, x1, y1)
		r.edge20 = newEdgeCCW(hf, vf, x0, y0, x2, y2)
	}

	s := r.edge01.Evaluate(x2, y2)
	positive := s > 0

	front := positive
	if r.state.ViewportOrientation == OrientationUpperLeft {
		front = !front
	}
	if front {
		r.face = FaceFront
	} else {
		r.face = FaceBack
	}

	if s == 0 {
		// Zero-area triangles produce no fragments.
		r.done = true
		return
	}
	if !positive {
		r.edge01.flip()
		r.edge12.flip()
		r.edge20.flip()
	}

	xMin := min(x0, x1, x2)
	xMax := max(x0, x1, x2)
	yMin := min(y0, y1, y2)
	yMax := max(y0, y1, y2)

	r.bboxMin.X = floorSubpixelToPixel(xMin, hf == FillLeft)
	r.bboxMin.Y = floorSubpixelToPixel(yMin, vf == FillBottom)
	r.bboxMax.X = ceilSubpixelToPixel(xMax, hf == FillRight)
	r.bboxMax.Y = ceilSubpixelToPixel(yMax, vf == FillTop)

	wx0, wy0 := r.viewport.X, r.viewport.Y
	wx1 := wx0 + r.viewport.Width - 1
	wy1 := wy0 + r.viewport.Height - 1

	r.bboxMin.X = clampInt(r.bboxMin.X, wx0, wx1)
	r.bboxMin.Y = clampInt(r.bboxMin.Y, wy0, wy1)
	r.bboxMax.X = clampInt(r.bboxMax.X, wx0, wx1)
	r.bboxMax.Y = clampInt(r.bboxMax.Y, wy0, wy1)

	r.cur = r.bboxMin
	r.done = xMax < PixelToSubpixel(wx0) || xMin > PixelToSubpixel(wx1+1) ||
		yMax < PixelToSubpixel(wy0) || yMin > PixelToSubpixel(wy1+1)
}

// Rasterize writes up to len(dst) packets and returns how many were written.
// It resumes where the previous call stopped and returns 0 once the
// triangle is exhausted.
//
// When depth is non-nil it receives 4*NumSamples depth values per packet,
// indexed packet*4*NumSamples + pixel*NumSamples + sample. The number of
// packets is limited so the depth values fit.
func (r *TriangleRasterizer) Rasterize(dst []FragmentPacket, depth []float32) int {
	limit := len(dst)
	perPacket := 4 * r.numSamples
	if depth != nil && len(depth)/perPacket < limit {
		limit = len(depth) / perPacket
	}

	n := 0
	for n < limit && !r.done {
		x0, y0 := r.cur.X, r.cur.Y
		r.advance()

		var p FragmentPacket
		if r.shadeQuad(&p, x0, y0, depthSlice(depth, n, perPacket)) {
			dst[n] = p
			n++
		}
	}
	return n
}

// advance moves the cursor to the next quad.
func (r *TriangleRasterizer) advance() {
	r.cur.X += 2
	if r.cur.X > r.bboxMax.X {
		r.cur.X = r.bboxMin.X
		r.cur.Y += 2
		if r.cur.Y > r.bboxMax.Y {
			r.done = true
		}
	}
}

func depthSlice(depth []float32, packet, perPacket int) []float32 {
	if depth == nil {
		return nil
	}
	return depth[packet*perPacket : (packet+1)*perPacket]
}

// shadeQuad computes coverage, barycentrics and depth for the quad at
// (x0, y0). It returns false when no sample is covered.
func (r *TriangleRasterizer) shadeQuad(p *FragmentPacket, x0, y0 int, depth []float32) bool {
	vp := r.viewport
	outX1 := x0+1 == vp.X+vp.Width
	outY1 := y0+1 == vp.Y+vp.Height

	var coverage uint64
	for i := range 4 {
		px, py := i%2, i/2
		if (px == 1 && outX1) || (py == 1 && outY1) {
			continue
		}
		bx := PixelToSubpixel(x0 + px)
		by := PixelToSubpixel(y0 + py)
		for s, off := range r.samples {
			sx := bx + off.x
			sy := by + off.y
			if r.inside(sx, sy) {
				coverage |= CoverageBit(r.numSamples, px, py, s)
			}
		}
	}
	if coverage == 0 {
		return false
	}

	// Barycentrics are evaluated at pixel centers regardless of sample count.
	for i := range 4 {
		sx := PixelToSubpixel(x0+i%2) + SubpixelHalf
		sy := PixelToSubpixel(y0+i/2) + SubpixelHalf
		e01 := float64(r.edge01.Evaluate(sx, sy))
		e12 := float64(r.edge12.Evaluate(sx, sy))
		e20 := float64(r.edge20.Evaluate(sx, sy))

		b0 := e12 * float64(r.v0.W)
		b1 := e20 * float64(r.v1.W)
		b2 := e01 * float64(r.v2.W)
		sum := b0 + b1 + b2
		if sum == 0 {
			continue
		}
		p.Barycentric[0][i] = float32(b0 / sum)
		p.Barycentric[1][i] = float32(b1 / sum)
		p.Barycentric[2][i] = 1 - p.Barycentric[0][i] - p.Barycentric[1][i]
	}

	if depth != nil {
		r.fillDepth(depth, x0, y0)
	}

	p.Position = image.Point{X: x0, Y: y0}
	p.Coverage = coverage
	return true
}

// fillDepth interpolates window depth linearly at every sample of the quad
// using z = l0*(z0-z2) + l1*(z1-z2) + z2.
func (r *TriangleRasterizer) fillDepth(depth []float32, x0, y0 int) {
	za := float64(r.v0.Z - r.v2.Z)
	zb := float64(r.v1.Z - r.v2.Z)
	zc := float64(r.v2.Z)

	for i := range 4 {
		bx := PixelToSubpixel(x0 + i%2)
		by := PixelToSubpixel(y0 + i/2)
		for s, off := range r.samples {
			sx, sy := bx+off.x, by+off.y
			e01 := float64(r.edge01.Evaluate(sx, sy))
			e12 := float64(r.edge12.Evaluate(sx, sy))
			e20 := float64(r.edge20.Evaluate(sx, sy))
			sum := e01 + e12 + e20
			var z float64
			if sum != 0 {
				z = e12/sum*za + e20/sum*zb + zc
			} else {
				z = zc
			}
			depth[i*r.numSamples+s] = float32(z)
		}
	}
}

func (r *TriangleRasterizer) inside(x, y int64) bool {
	return r.edge01.InsideCCW(r.edge01.Evaluate(x, y)) &&
		r.edge12.InsideCCW(r.edge12.Evaluate(x, y)) &&
		r.edge20.InsideCCW(r.edge20.Evaluate(x, y))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
