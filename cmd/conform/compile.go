package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/conform/shader"
)

var errCompile = errors.New("shader compilation failed")

func newCompileCmd() *cobra.Command {
	var (
		glsl  bool
		stage string
		out   string
	)

	cmd := &cobra.Command{
		Use:   "compile SHADER.wgsl",
		Short: "Compile a WGSL shader to SPIR-V or GLSL ES 3.00",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := parseStage(stage)
			if err != nil {
				return err
			}
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			target := shader.TargetSPIRV
			if glsl {
				target = shader.TargetGLSLES300
			}
			res := shader.CompileWithOptions(string(src), shader.Options{Target: target, Stage: st})

			w := cmd.OutOrStdout()
			for _, ep := range res.EntryPoints {
				fmt.Fprintf(w, "entry point %s (%s)\n", ep.Name, ep.Stage)
			}
			if !res.OK {
				fmt.Fprintf(w, "info log:\n%s\n", res.InfoLog)
				return errCompile
			}

			switch target {
			case shader.TargetGLSLES300:
				if out != "" {
					return os.WriteFile(out, []byte(res.GLSL), 0o644)
				}
				fmt.Fprint(w, res.GLSL)
			default:
				fmt.Fprintf(w, "compiled %s: %d SPIR-V words\n", res.EntryPoint, len(shader.SPIRVWords(res.SPIRV)))
				if out != "" {
					return os.WriteFile(out, res.SPIRV, 0o644)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&glsl, "glsl", false, "emit GLSL ES 3.00 instead of SPIR-V")
	cmd.Flags().StringVar(&stage, "stage", "", "compile the first entry point of this stage (vertex, fragment, compute)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the output to this file")
	return cmd
}

func parseStage(s string) (shader.Stage, error) {
	switch strings.ToLower(s) {
	case "":
		return shader.StageNone, nil
	case "vertex", "vs":
		return shader.StageVertex, nil
	case "fragment", "fs":
		return shader.StageFragment, nil
	case "compute", "cs":
		return shader.StageCompute, nil
	default:
		return shader.StageNone, fmt.Errorf("unknown stage %q", s)
	}
}
