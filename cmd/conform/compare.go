package main

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gogpu/conform/imgcmp"
)

func newCompareCmd() *cobra.Command {
	var (
		threshold string
		deviation int
		maskPath  string
		zoom      int
		raw       string
	)

	cmd := &cobra.Command{
		Use:   "compare REFERENCE RESULT",
		Short: "Compare a result image against a reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			th, err := imgcmp.ParseThreshold(threshold)
			if err != nil {
				return err
			}
			ref, err := imgcmp.LoadImage(args[0])
			if err != nil {
				return err
			}
			var res image.Image
			if raw != "" {
				res, err = imgcmp.LoadRaw(args[1], raw)
			} else {
				res, err = imgcmp.LoadImage(args[1])
			}
			if err != nil {
				return err
			}

			result, err := imgcmp.PositionDeviationCompare(filepath.Base(args[1]), ref, res, th, deviation)
			if err != nil {
				return err
			}
			if maskPath != "" {
				if err := imgcmp.SaveMask(maskPath, result, zoom); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if result.Passed() {
				fmt.Fprintf(out, "PASS %s (%dx%d)\n", result.Name, result.Width, result.Height)
				return nil
			}
			d := result.MaxDiff
			fmt.Fprintf(out, "FAIL %s: %d of %d pixels differ, max diff %d,%d,%d,%d\n",
				result.Name, result.Mismatched, result.Width*result.Height, d[0], d[1], d[2], d[3])
			return errMismatch
		},
	}
	cmd.Flags().StringVarP(&threshold, "threshold", "t", "0", "per-channel tolerance, one value or r,g,b,a")
	cmd.Flags().IntVarP(&deviation, "deviation", "d", 0, "allowed position deviation in pixels")
	cmd.Flags().StringVarP(&maskPath, "mask", "m", "", "write the error mask to this PNG")
	cmd.Flags().IntVar(&zoom, "zoom", 1, "scale factor for the error mask")
	cmd.Flags().StringVar(&raw, "raw", "", "read RESULT as a raw readback dump with layout WxH:FORMAT[:stride=N][:flip]")
	return cmd
}
