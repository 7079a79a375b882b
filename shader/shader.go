// Package shader compiles WGSL test shaders for the pages under test.
//
// Sources are compiled with naga to SPIR-V for WebGPU pages or to GLSL ES
// 3.00 for WebGL 2 pages. Compile failures are reported in the result's
// InfoLog and logged instead of being returned as errors, so a test page
// can record the failure and move on.
package shader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/glsl"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"

	"github.com/gogpu/conform"
)

// Stage is a shader pipeline stage.
type Stage = gputypes.ShaderStage

// Shader stages.
const (
	StageNone     = gputypes.ShaderStageNone
	StageVertex   = gputypes.ShaderStageVertex
	StageFragment = gputypes.ShaderStageFragment
	StageCompute  = gputypes.ShaderStageCompute
)

// Target selects the output language.
type Target uint8

const (
	// TargetSPIRV produces a SPIR-V 1.3 binary.
	TargetSPIRV Target = iota
	// TargetGLSLES300 produces GLSL ES 3.00 source for WebGL 2.
	TargetGLSLES300
)

// String returns the target name.
func (t Target) String() string {
	switch t {
	case TargetSPIRV:
		return "spirv"
	case TargetGLSLES300:
		return "glsl-es-300"
	default:
		return "unknown"
	}
}

// ErrNoEntryPoint is reported when a source has no entry point of the
// requested stage.
var ErrNoEntryPoint = errors.New("shader: no entry point for stage")

// EntryPoint is a shader entry point declared in a source.
type EntryPoint struct {
	Name  string
	Stage Stage
}

// CompileResult holds the output of one compilation.
type CompileResult struct {
	// Stage is the stage of the compiled entry point, or StageNone when
	// compilation failed before an entry point was chosen.
	Stage       Stage
	EntryPoint  string
	EntryPoints []EntryPoint

	SPIRV []byte
	GLSL  string

	InfoLog string
	OK      bool
}

// Options configures a compilation.
type Options struct {
	Target Target

	// Stage restricts compilation to the first entry point of this stage.
	// StageNone compiles the first entry point.
	Stage Stage

	// SkipValidation disables IR validation.
	SkipValidation bool
}

// Compile compiles every entry point of source for the target. For GLSL
// only the first entry point is emitted.
func Compile(source string, target Target) *CompileResult {
	return CompileWithOptions(source, Options{Target: target})
}

// CompileStage compiles the first entry point of the given stage.
func CompileStage(source string, stage Stage, target Target) *CompileResult {
	return CompileWithOptions(source, Options{Target: target, Stage: stage})
}

// CompileWithOptions compiles source as configured by opts. It never returns
// nil. On failure OK is false and InfoLog describes the problem.
func CompileWithOptions(source string, opts Options) *CompileResult {
	res := &CompileResult{}
	if err := compile(res, source, opts); err != nil {
		res.InfoLog = err.Error()
		conform.Logger().Warn("shader: compile failed",
			"target", opts.Target.String(),
			"stage", opts.Stage.String(),
			"log", res.InfoLog)
		return res
	}
	res.OK = true
	conform.Logger().Debug("shader: compiled",
		"target", opts.Target.String(),
		"entry_point", res.EntryPoint,
		"stage", res.Stage.String(),
		"spirv_bytes", len(res.SPIRV),
		"glsl_bytes", len(res.GLSL))
	return res
}

func compile(res *CompileResult, source string, opts Options) error {
	module, err := lower(source)
	if err != nil {
		return err
	}
	res.EntryPoints = entryPoints(module)

	ep, err := selectEntryPoint(res.EntryPoints, opts.Stage)
	if err != nil {
		return err
	}
	res.EntryPoint, res.Stage = ep.Name, ep.Stage

	if !opts.SkipValidation {
		issues, err := naga.Validate(module)
		if err != nil {
			return fmt.Errorf("validation: %w", err)
		}
		if len(issues) > 0 {
			msgs := make([]string, len(issues))
			for i := range issues {
				msgs[i] = issues[i].Error()
			}
			return fmt.Errorf("validation failed:\n%s", strings.Join(msgs, "\n"))
		}
	}

	switch opts.Target {
	case TargetSPIRV:
		code, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3})
		if err != nil {
			return err
		}
		res.SPIRV = code
	case TargetGLSLES300:
		gopts := glsl.Options{
			LangVersion:        glsl.VersionES300,
			EntryPoint:         ep.Name,
			ForceHighPrecision: true,
			WriterFlags:        glsl.WriterFlagAdjustCoordinateSpace,
		}
		if ep.Stage == StageVertex {
			gopts.WriterFlags |= glsl.WriterFlagForcePointSize
		}
		code, _, err := glsl.Compile(module, gopts)
		if err != nil {
			return fmt.Errorf("GLSL generation: %w", err)
		}
		res.GLSL = code
	default:
		return fmt.Errorf("unknown target %d", opts.Target)
	}
	return nil
}

func lower(source string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, err
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("lowering: %w", err)
	}
	return module, nil
}

// EntryPoints parses source and lists its entry points in declaration order.
func EntryPoints(source string) ([]EntryPoint, error) {
	module, err := lower(source)
	if err != nil {
		return nil, fmt.Errorf("shader: %w", err)
	}
	return entryPoints(module), nil
}

func entryPoints(module *ir.Module) []EntryPoint {
	eps := make([]EntryPoint, 0, len(module.EntryPoints))
	for _, ep := range module.EntryPoints {
		eps = append(eps, EntryPoint{Name: ep.Name, Stage: stageOf(ep.Stage)})
	}
	return eps
}

func selectEntryPoint(eps []EntryPoint, stage Stage) (EntryPoint, error) {
	for _, ep := range eps {
		if stage == StageNone || ep.Stage == stage {
			return ep, nil
		}
	}
	if stage == StageNone {
		return EntryPoint{}, fmt.Errorf("%w: source declares no entry points", ErrNoEntryPoint)
	}
	return EntryPoint{}, fmt.Errorf("%w: %s", ErrNoEntryPoint, stage)
}

// stageOf maps naga stages to WebGPU stages. Task and mesh stages have no
// WebGPU equivalent.
func stageOf(s ir.ShaderStage) Stage {
	switch s {
	case ir.StageVertex:
		return StageVertex
	case ir.StageFragment:
		return StageFragment
	case ir.StageCompute:
		return StageCompute
	default:
		return StageNone
	}
}

// SPIRVWords converts a SPIR-V binary to little-endian 32-bit words.
// Trailing bytes that do not form a whole word are dropped.
func SPIRVWords(code []byte) []uint32 {
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = uint32(code[i*4]) |
			uint32(code[i*4+1])<<8 |
			uint32(code[i*4+2])<<16 |
			uint32(code[i*4+3])<<24
	}
	return words
}
