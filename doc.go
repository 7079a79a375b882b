// Package conform is a toolkit for conformance testing of browser 3D
// graphics implementations.
//
// # Overview
//
// The module groups the Go side of a conformance harness:
//
//   - refrast: a reference triangle rasterizer (fixed-point edge functions,
//     configurable fill rules, perspective-correct barycentrics) plus a small
//     renderer that uses it to produce known-good images.
//   - imgcmp: pixel comparison utilities (per-channel thresholds, position
//     deviation tolerance, rectangle color checks, error masks).
//   - shader: a compilation wrapper around the naga WGSL compiler that logs
//     failures instead of aborting, mirroring how test pages treat compile
//     and link errors.
//   - internal/runner: serves a test suite over HTTP, launches browsers one
//     at a time and collects their POSTed results.
//   - cmd/conform: the command line front end for all of the above.
//
// # Quick Start
//
//	r, _ := refrast.NewRenderer(64, 64, 1)
//	r.Clear([4]float32{0, 0, 0, 1}, 1)
//	_, _ = r.Draw(refrast.DefaultRenderState(64, 64), gputypes.PrimitiveTopologyTriangleList, verts, shader)
//	res, _ := imgcmp.IntThresholdCompare("triangle", r.Image(), gpuImage, imgcmp.Threshold{R: 1, G: 1, B: 1, A: 1})
//	if !res.Passed() {
//	    _ = imgcmp.SaveMask("triangle-mask.png", res, 4)
//	}
//
// # Logging
//
// Nothing is logged by default. Call [SetLogger] once to enable logging for
// the whole module.
package conform

// Version information
const (
	// Version is the current version of the module
	Version = "0.3.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 3

	// VersionPatch is the patch version
	VersionPatch = 0
)
