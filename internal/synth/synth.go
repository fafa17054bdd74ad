// Package synth renders an ordered step list as a Python automation script
// for the autovnc runtime.
//
// Synthesize is pure: the same steps, name and description always produce
// byte-identical output. That property is what lets the boundary manager
// recognise an untouched generated region, so it is re-checked on every
// call.
package synth

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/autovnc/internal/ir"
	"github.com/roach88/autovnc/internal/steps"
)

// Shape of the generated source shared with the boundary manager and the
// validator.
const (
	EntryName      = "run"
	EntrySignature = "def run(vnc):"
	Receiver       = "vnc"
	Placeholder    = "pass"
	Indent         = "    "
	ImportLine     = "from autovnc import Keys"
	LibraryModule  = "autovnc"
	HeaderPrefix   = "AutoVNC Script: "
	// HarnessEnd is the last line of every generated region.
	HarnessEnd = Indent + Indent + Indent + "client.disconnect()"
)

// Harness environment variables.
const (
	EnvHost     = "VNC_HOST"
	EnvPort     = "VNC_PORT"
	EnvPassword = "VNC_PASSWORD"
	EnvHeadless = "AUTOVNC_HEADLESS"
)

// DefaultWaitThreshold is the delay_before above which an explicit wait is
// emitted.
const DefaultWaitThreshold = 0.1

// Options tune synthesis.
type Options struct {
	// WaitThreshold is the minimum delay_before, exclusive, that produces
	// a wait statement.
	WaitThreshold float64
	// DefaultHost and DefaultPort are the harness fallbacks when the
	// environment does not set them.
	DefaultHost string
	DefaultPort int
}

// DefaultOptions returns the standard options.
func DefaultOptions() Options {
	return Options{
		WaitThreshold: DefaultWaitThreshold,
		DefaultHost:   "localhost",
		DefaultPort:   5900,
	}
}

// InvariantViolation reports that synthesis was not deterministic. It is a
// programmer error and is raised with panic.
type InvariantViolation struct {
	Script string
	First  string
	Second string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("synthesis of %q is not idempotent (%d vs %d bytes)", e.Script, len(e.First), len(e.Second))
}

// Synthesizer renders scripts with fixed options.
type Synthesizer struct {
	opts Options
}

// New creates a Synthesizer. Zero option fields take their defaults.
func New(opts Options) *Synthesizer {
	def := DefaultOptions()
	if opts.WaitThreshold <= 0 {
		opts.WaitThreshold = def.WaitThreshold
	}
	if opts.DefaultHost == "" {
		opts.DefaultHost = def.DefaultHost
	}
	if opts.DefaultPort == 0 {
		opts.DefaultPort = def.DefaultPort
	}
	return &Synthesizer{opts: opts}
}

// Synthesize renders with DefaultOptions.
func Synthesize(list []ir.Step, name, description string) string {
	return New(DefaultOptions()).Synthesize(list, name, description)
}

// Synthesize renders the full script. Steps are emitted in Order.
//
// Panics with *InvariantViolation if two renderings of the same input
// differ.
func (s *Synthesizer) Synthesize(list []ir.Step, name, description string) string {
	first := s.render(list, name, description)
	second := s.render(list, name, description)
	if first != second {
		panic(&InvariantViolation{Script: name, First: first, Second: second})
	}
	return first
}

func (s *Synthesizer) render(list []ir.Step, name, description string) string {
	var b strings.Builder

	if description == "" {
		description = "No description"
	}
	b.WriteString(`"""` + "\n")
	b.WriteString(HeaderPrefix + docText(name) + "\n")
	b.WriteString("\n")
	b.WriteString(docText(description) + "\n")
	b.WriteString(`"""` + "\n")
	b.WriteString("\n")
	b.WriteString(ImportLine + "\n")
	b.WriteString("\n")
	b.WriteString("\n")
	b.WriteString(EntrySignature + "\n")

	ordered := steps.Sorted(list)
	if len(ordered) == 0 {
		b.WriteString(Indent + Placeholder + "\n")
	}
	for _, step := range ordered {
		for _, line := range s.StepLines(step) {
			b.WriteString(Indent + line + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString("\n")
	s.writeHarness(&b)
	return b.String()
}

func (s *Synthesizer) writeHarness(b *strings.Builder) {
	lines := []string{
		`if __name__ == "__main__":`,
		Indent + "import os",
		"",
		Indent + "from autovnc import ExecutionContext, VNCClient",
		"",
		Indent + "# Connection configuration",
		fmt.Sprintf(`%sHOST = os.environ.get("%s", %s)`, Indent, EnvHost, pyString(s.opts.DefaultHost)),
		fmt.Sprintf(`%sPORT = int(os.environ.get("%s", %d))`, Indent, EnvPort, s.opts.DefaultPort),
		fmt.Sprintf(`%sPASSWORD = os.environ.get("%s")`, Indent, EnvPassword),
		fmt.Sprintf(`%sHEADLESS = os.environ.get("%s") == "1"`, Indent, EnvHeadless),
		"",
		Indent + "client = VNCClient(HOST, PORT, password=PASSWORD)",
		Indent + "client.connect()",
		Indent + "try:",
		Indent + Indent + "run(ExecutionContext(client))",
		Indent + "finally:",
		Indent + Indent + "if HEADLESS:",
		HarnessEnd,
	}
	b.WriteString(strings.Join(lines, "\n"))
}

// StepLines returns the unindented lines for one step: an optional
// description comment, an optional wait, then the statement.
func (s *Synthesizer) StepLines(step ir.Step) []string {
	var lines []string
	if step.Description != "" {
		for _, l := range strings.Split(strings.TrimRight(step.Description, "\n"), "\n") {
			lines = append(lines, strings.TrimRight("# "+l, " "))
		}
	}
	if step.DelayBefore > s.opts.WaitThreshold {
		lines = append(lines, call("wait", pyFloat(step.DelayBefore)))
	}
	return append(lines, Statement(step))
}

// Snippet joins StepLines with newlines; it is what live insertion places
// into the entry function.
func (s *Synthesizer) Snippet(step ir.Step) string {
	return strings.Join(s.StepLines(step), "\n")
}

// Statement renders the single call for step.
func Statement(step ir.Step) string {
	switch step.Type {
	case ir.StepClick, ir.StepDoubleClick, ir.StepRightClick:
		return clickStatement(step)

	case ir.StepTypeText:
		args := []string{pyString(step.Text)}
		if len(step.Keys) > 0 {
			args = append(args, "["+strings.Join(keyArgs(step.Keys), ", ")+"]")
		}
		return call("type", args...)

	case ir.StepKeyPress:
		if len(step.Keys) == 0 {
			return skipped(step, "no keys")
		}
		return call("press", keyArgs(step.Keys)...)

	case ir.StepKeyCombo:
		if len(step.Keys) == 0 {
			return skipped(step, "no keys")
		}
		return call("key_combo", keyArgs(step.Keys)...)

	case ir.StepWaitForImage:
		if step.Template == "" {
			return skipped(step, "no template")
		}
		args := []string{pyString(step.Template), "timeout=" + pyFloat(step.EffectiveTimeout())}
		args = append(args, thresholdArg(step)...)
		if step.Region != nil {
			args = append(args, "region="+regionTuple(*step.Region))
		}
		if p, ok := step.Point(); ok {
			args = append(args, fmt.Sprintf("hint=(%d, %d)", p.X, p.Y))
		}
		return call("wait_for_image", args...)

	case ir.StepWaitForText:
		args := []string{pyString(step.Text), "timeout=" + pyFloat(step.EffectiveTimeout())}
		if step.Region != nil {
			args = append(args, "region="+regionTuple(*step.Region))
		}
		if step.CaseSensitive {
			args = append(args, "case_sensitive=True")
		}
		return call("wait_for_text", args...)

	case ir.StepWait:
		return call("wait", pyFloat(step.EffectiveDuration()))

	case ir.StepScreenshot:
		name := ir.DefaultScreenshotName
		if step.Text != "" {
			name = step.Text
		}
		return call("save_screenshot", pyString(name))

	case ir.StepDrag:
		if !step.HasPoint() || step.EndX == nil || step.EndY == nil {
			return skipped(step, "missing coordinates")
		}
		return call("drag", fmt.Sprint(*step.X), fmt.Sprint(*step.Y), fmt.Sprint(*step.EndX), fmt.Sprint(*step.EndY))

	case ir.StepScroll:
		dir := step.Direction
		if dir == "" {
			dir = ir.ScrollDown
		}
		args := []string{pyString(dir), fmt.Sprintf("clicks=%d", step.EffectiveClicks())}
		if p, ok := step.Point(); ok {
			args = append(args, fmt.Sprintf("x=%d", p.X), fmt.Sprintf("y=%d", p.Y))
		}
		return call("scroll", args...)
	}
	return skipped(step, "unsupported step type")
}

func clickStatement(step ir.Step) string {
	method := string(step.Type)
	if step.Template != "" {
		args := []string{pyString(step.Template), "timeout=" + pyFloat(step.EffectiveTimeout())}
		args = append(args, thresholdArg(step)...)
		if p, ok := step.Point(); ok {
			args = append(args, fmt.Sprintf("hint=(%d, %d)", p.X, p.Y))
		}
		return call(method, args...)
	}
	if p, ok := step.Point(); ok {
		return call(method, fmt.Sprint(p.X), fmt.Sprint(p.Y))
	}
	return skipped(step, "no target")
}

func thresholdArg(step ir.Step) []string {
	if step.Threshold == 0 || step.Threshold == ir.DefaultThreshold {
		return nil
	}
	return []string{"threshold=" + pyFloat(step.Threshold)}
}

func call(method string, args ...string) string {
	return Receiver + "." + method + "(" + strings.Join(args, ", ") + ")"
}

func skipped(step ir.Step, reason string) string {
	return fmt.Sprintf("# skipped %s step: %s", step.Type, reason)
}

func keyArgs(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		if name, ok := ir.KeyConstant(k); ok {
			out[i] = "Keys." + name
		} else {
			out[i] = pyString(k)
		}
	}
	return out
}

func regionTuple(r ir.Region) string {
	return fmt.Sprintf("(%d, %d, %d, %d)", r.X, r.Y, r.Width, r.Height)
}

// docText makes s safe inside a triple-quoted docstring.
func docText(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"""`, `\"\"\"`)
}

// DetectGeneratedLines returns the line count of the generated region at
// the start of text: everything up to the first HarnessEnd line. Returns 0
// when text does not open with a generated header or has no harness.
func DetectGeneratedLines(text string) int {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 || lines[0] != `"""` || !strings.HasPrefix(lines[1], HeaderPrefix) {
		return 0
	}
	for i, line := range lines {
		if line == HarnessEnd {
			return i + 1
		}
	}
	return 0
}

// LineCount returns the number of lines in text; "" has zero lines and a
// trailing newline does not start a new one.
func LineCount(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(text, "\n"), "\n") + 1
}
