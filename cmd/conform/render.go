package main

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/spf13/cobra"

	"github.com/gogpu/conform/refrast"
)

func newRenderCmd() *cobra.Command {
	var (
		out     string
		width   int
		height  int
		samples int
		sRGB    bool
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the built-in reference scene with the reference rasterizer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := renderScene(width, height, samples, sRGB)
			if err != nil {
				return err
			}
			if err := r.SavePNG(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%dx%d, %d samples)\n", out, width, height, samples)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "ref.png", "output PNG")
	cmd.Flags().IntVar(&width, "width", 256, "image width")
	cmd.Flags().IntVar(&height, "height", 256, "image height")
	cmd.Flags().IntVar(&samples, "samples", 1, "samples per pixel (1, 2, 4, 8 or 16)")
	cmd.Flags().BoolVar(&sRGB, "srgb", false, "render to an sRGB-encoded target")
	return cmd
}

// sceneClear is the background of the reference scene.
var sceneClear = [4]float32{0, 0, 0, 1}

// renderScene draws an RGB triangle and a yellow quad that slopes in depth
// through the triangle's plane, so the quad covers the triangle on its left
// half and disappears behind it on its right half.
func renderScene(width, height, samples int, sRGB bool) (*refrast.Renderer, error) {
	r, err := refrast.NewRenderer(width, height, samples)
	if err != nil {
		return nil, err
	}
	r.SetSRGB(sRGB)
	r.Clear(sceneClear, 1)

	st := refrast.DefaultRenderState(width, height)
	st.DepthCompare = gputypes.CompareFunctionLess
	st.DepthWrite = true

	triangle := []refrast.ClipVertex{
		{Position: [4]float32{-0.8, -0.8, 0, 1}, Varyings: []float32{1, 0, 0, 1}},
		{Position: [4]float32{0.8, -0.8, 0, 1}, Varyings: []float32{0, 1, 0, 1}},
		{Position: [4]float32{0, 0.8, 0, 1}, Varyings: []float32{0, 0, 1, 1}},
	}
	if _, err := r.Draw(st, gputypes.PrimitiveTopologyTriangleList, triangle, refrast.VaryingColor); err != nil {
		return nil, err
	}

	quad := []refrast.ClipVertex{
		{Position: [4]float32{-0.5, -0.5, -0.5, 1}},
		{Position: [4]float32{0.5, -0.5, 0.5, 1}},
		{Position: [4]float32{-0.5, 0.1, -0.5, 1}},
		{Position: [4]float32{0.5, 0.1, 0.5, 1}},
	}
	yellow := refrast.SolidColor{1, 1, 0, 1}
	if _, err := r.Draw(st, gputypes.PrimitiveTopologyTriangleStrip, quad, yellow); err != nil {
		return nil, err
	}
	return r, nil
}
