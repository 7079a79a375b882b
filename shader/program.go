package shader

import (
	"fmt"
	"strings"

	"github.com/gogpu/conform"
)

// Program is a linked vertex and fragment shader pair.
type Program struct {
	Vertex   *CompileResult
	Fragment *CompileResult

	// InfoLog collects compile and link diagnostics for both stages.
	InfoLog string
}

// Link compiles vs as a vertex shader and fs as a fragment shader and checks
// that the pair forms a usable program. The Program is returned even when
// linking fails so callers can inspect the per-stage results.
func Link(vs, fs string, target Target) (*Program, bool) {
	p := &Program{
		Vertex:   CompileStage(vs, StageVertex, target),
		Fragment: CompileStage(fs, StageFragment, target),
	}

	var problems []string
	if !p.Vertex.OK {
		problems = append(problems, "vertex: "+p.Vertex.InfoLog)
	}
	if !p.Fragment.OK {
		problems = append(problems, "fragment: "+p.Fragment.InfoLog)
	}
	if len(problems) == 0 {
		conform.Logger().Debug("shader: linked",
			"target", target.String(),
			"vertex", p.Vertex.EntryPoint,
			"fragment", p.Fragment.EntryPoint)
		return p, true
	}

	p.InfoLog = fmt.Sprintf("link failed:\n%s", strings.Join(problems, "\n"))
	conform.Logger().Warn("shader: link failed", "target", target.String(), "log", p.InfoLog)
	return p, false
}

// OK reports whether both stages compiled.
func (p *Program) OK() bool {
	return p != nil && p.Vertex != nil && p.Fragment != nil && p.Vertex.OK && p.Fragment.OK
}
