// Package refrast is a software reference rasterizer that produces the
// expected images browser graphics tests are compared against.
//
// The rasterizer follows the conventions conformant GL and WebGPU
// implementations share: 8-bit subpixel precision, edge functions with a
// configurable top-left or bottom-left fill rule, and the standard 2, 4, 8
// and 16 sample patterns. Fragments are emitted in 2x2 quads with
// per-sample coverage, perspective-correct barycentrics and linear depth.
//
// # Rasterizer
//
// TriangleRasterizer scan-converts one window-space triangle at a time:
//
//	tr, _ := refrast.NewTriangleRasterizer(vp, 4, refrast.DefaultRasterizationState())
//	tr.Init(v0, v1, v2)
//	packets := make([]refrast.FragmentPacket, 64)
//	for n := tr.Rasterize(packets, nil); n > 0; n = tr.Rasterize(packets, nil) {
//		// consume packets[:n]
//	}
//
// # Renderer
//
// Renderer drives the rasterizer from clip-space vertices and applies the
// fixed-function stages: culling, depth test, blending, write masks and
// multisample resolve. State uses the github.com/gogpu/gputypes vocabulary.
//
//	r, _ := refrast.NewRenderer(64, 64, 1)
//	st := refrast.DefaultRenderState(64, 64)
//	r.Draw(st, gputypes.PrimitiveTopologyTriangleList, verts, refrast.VaryingColor)
//	r.SavePNG("expected.png")
package refrast
