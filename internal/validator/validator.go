// Package validator runs static, advisory checks over a script's combined
// source. Findings never block saving or resynthesis; callers decide how to
// surface them.
package validator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/autovnc/internal/boundary"
	"github.com/roach88/autovnc/internal/synth"
)

// Finding codes. Errors are E2xx, warnings W3xx, manual-region conflicts C4xx.
const (
	// Structure errors (E200-E209)
	ErrEmptySource        = "E201" // buffer is empty or whitespace only
	ErrUnclosedBracket    = "E202" // opening bracket never closed
	ErrUnexpectedBracket  = "E203" // closing bracket without a matching opener
	ErrUnterminatedString = "E204" // string literal runs to end of line or file

	// Style warnings (W300-W309)
	WarnNoEntryFunction = "W301" // no def run(vnc):
	WarnPrintDebugging  = "W302" // many print() calls

	// Manual-region conflicts (C400-C409)
	ConflictLibraryCall       = "C401" // direct vnc.* call in manual code
	ConflictDuplicateImport   = "C402" // manual import repeats a generated one
	ConflictEntryRedefinition = "C403" // manual code redefines the entry function
)

// PrintDebugThreshold is the number of print() calls at which
// WarnPrintDebugging is reported.
const PrintDebugThreshold = 5

// Severity ranks a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Finding is one advisory result.
type Finding struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	// Line is 1-based; 0 means the whole buffer.
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	if f.Line > 0 {
		return fmt.Sprintf("[%s] %s line %d: %s", f.Code, f.Severity, f.Line, f.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Code, f.Severity, f.Message)
}

// Report collects findings ordered by line, then code.
type Report struct {
	Findings []Finding `json:"findings"`
}

// Errors returns findings with SeverityError.
func (r Report) Errors() []Finding {
	return r.filter(func(f Finding) bool { return f.Severity == SeverityError })
}

// Warnings returns findings with SeverityWarning.
func (r Report) Warnings() []Finding {
	return r.filter(func(f Finding) bool { return f.Severity == SeverityWarning })
}

// Conflicts returns the manual-region findings (C4xx).
func (r Report) Conflicts() []Finding {
	return r.filter(func(f Finding) bool { return strings.HasPrefix(f.Code, "C") })
}

// HasHardConflict reports whether manual code redefines the entry function.
func (r Report) HasHardConflict() bool {
	return len(r.filter(func(f Finding) bool { return f.Code == ConflictEntryRedefinition })) > 0
}

// OK reports whether there are no errors.
func (r Report) OK() bool {
	return len(r.Errors()) == 0
}

func (r Report) filter(keep func(Finding) bool) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

var (
	printCall   = regexp.MustCompile(`(^|[^\w.])print\s*\(`)
	libraryCall = regexp.MustCompile(`(^|[^\w.])` + synth.Receiver + `\.\w+\s*\(`)
	fromImport  = regexp.MustCompile(`^from\s+([\w.]+)\s+import\s+(.+)$`)
	plainImport = regexp.MustCompile(`^import\s+(.+)$`)
)

// Validate checks text. generatedLines is the line count of the generated
// prefix; the conflict scan covers only the lines after it.
func Validate(text string, generatedLines int) Report {
	if strings.TrimSpace(text) == "" {
		return Report{Findings: []Finding{{
			Code:     ErrEmptySource,
			Severity: SeverityError,
			Message:  "source is empty",
		}}}
	}

	masked, findings := scan(text)

	lines := strings.Split(text, "\n")
	if generatedLines < 0 {
		generatedLines = 0
	}
	if generatedLines > len(lines) {
		generatedLines = len(lines)
	}
	code := strings.Split(masked, "\n")

	if _, ok := boundary.FindEntry(text); !ok {
		findings = append(findings, Finding{
			Code:     WarnNoEntryFunction,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("no entry function %q found", synth.EntrySignature),
		})
	}

	prints, firstPrint := 0, 0
	for i, l := range code {
		if printCall.MatchString(l) {
			if prints == 0 {
				firstPrint = i + 1
			}
			prints++
		}
	}
	if prints >= PrintDebugThreshold {
		findings = append(findings, Finding{
			Code:     WarnPrintDebugging,
			Severity: SeverityWarning,
			Line:     firstPrint,
			Message:  fmt.Sprintf("%d print() calls; prefer vnc.save_screenshot or logging", prints),
		})
	}

	findings = append(findings, scanManual(lines, code, generatedLines)...)

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Line != findings[j].Line {
			return findings[i].Line < findings[j].Line
		}
		return findings[i].Code < findings[j].Code
	})
	return Report{Findings: findings}
}

// scanManual reports conflicts between the manual region and the
// generated region.
func scanManual(lines, code []string, generatedLines int) []Finding {
	var findings []Finding

	imports := make(map[string]bool)
	entrySeen := false
	for i := 0; i < generatedLines; i++ {
		for _, k := range importKeys(code[i]) {
			imports[k] = true
		}
		if isTopLevelEntry(lines[i]) {
			entrySeen = true
		}
	}

	calls, firstCall := 0, 0
	for i := generatedLines; i < len(lines); i++ {
		line := lines[i]
		if libraryCall.MatchString(code[i]) {
			if calls == 0 {
				firstCall = i + 1
			}
			calls++
		}
		for _, k := range importKeys(code[i]) {
			if imports[k] {
				findings = append(findings, Finding{
					Code:     ConflictDuplicateImport,
					Severity: SeverityWarning,
					Line:     i + 1,
					Message:  fmt.Sprintf("%q is already imported by the generated code", k),
				})
			}
		}
		if isTopLevelEntry(line) {
			if entrySeen {
				findings = append(findings, Finding{
					Code:     ConflictEntryRedefinition,
					Severity: SeverityError,
					Line:     i + 1,
					Message:  fmt.Sprintf("manual code redefines %s(); the recorded steps will not run", synth.EntryName),
				})
			}
			entrySeen = true
		}
	}
	if calls > 0 {
		findings = append(findings, Finding{
			Code:     ConflictLibraryCall,
			Severity: SeverityInfo,
			Line:     firstCall,
			Message:  fmt.Sprintf("%d direct %s.* call(s) in manual code; keep them consistent with the recorded steps", calls, synth.Receiver),
		})
	}
	return findings
}

func isTopLevelEntry(line string) bool {
	return strings.HasPrefix(line, "def") && boundary.IsEntryHeader(line)
}

// importKeys returns one key per name imported by a top-level import
// statement: "module:name" for from-imports and "module" for plain imports.
// Aliases are ignored.
func importKeys(line string) []string {
	if line == "" || line[0] == ' ' || line[0] == '\t' {
		return nil
	}
	line = strings.TrimSpace(line)
	if m := fromImport.FindStringSubmatch(line); m != nil {
		names := strings.Trim(strings.TrimSpace(m[2]), "()")
		var keys []string
		for _, n := range strings.Split(names, ",") {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			keys = append(keys, m[1]+":"+strings.Fields(n)[0])
		}
		return keys
	}
	if m := plainImport.FindStringSubmatch(line); m != nil {
		var keys []string
		for _, n := range strings.Split(m[1], ",") {
			if f := strings.Fields(n); len(f) > 0 {
				keys = append(keys, f[0])
			}
		}
		return keys
	}
	return nil
}
