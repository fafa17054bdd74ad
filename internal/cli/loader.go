package cli

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	json "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/roach88/autovnc/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// StepFile is an authored list of steps. Steps without an id get one when
// the file is loaded into a model.
type StepFile struct {
	Name        string    `json:"name,omitempty" yaml:"name,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []ir.Step `json:"steps" yaml:"steps"`
}

// LoadError represents an error that occurred while loading a step file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
// Step validation uses the steps package codes (E101-E110).
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeReadFailed    = "E002" // File read error
	ErrCodeUnknownFormat = "E003" // Unsupported file extension
	ErrCodeParseFailed   = "E004" // YAML, JSON or CUE syntax error
	ErrCodeNotFound      = "E005" // Path or script not found
	ErrCodeSchema        = "E006" // CUE schema violation
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeStore         = "E008" // Script store error
	ErrCodeEjected       = "E009" // Script is ejected

	ErrCodeLintFailed = "E010" // Source has error findings
	ErrCodeTestFailed = "E_TEST_FAILED"
)

// LoadStepFile reads a step file. The format follows the extension:
// .yaml/.yml, .json or .cue. CUE files are unified with the #Script schema
// before decoding. A missing name defaults to the file's base name.
func LoadStepFile(path string) (*StepFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("step file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading step file: %v", err)}
	}

	var file *StepFile
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		file, err = parseYAMLSteps(data)
	case ".json":
		file, err = parseJSONSteps(data)
	case ".cue":
		file, err = parseCUESteps(path, data)
	default:
		return nil, &LoadError{Code: ErrCodeUnknownFormat, Message: fmt.Sprintf("unsupported step file extension %q", ext)}
	}
	if err != nil {
		return nil, err
	}

	if file.Name == "" {
		file.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return file, nil
}

func parseYAMLSteps(data []byte) (*StepFile, error) {
	var file StepFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing YAML: %v", err)}
	}
	return &file, nil
}

func parseJSONSteps(data []byte) (*StepFile, error) {
	var file StepFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing JSON: %v", err)}
	}
	return &file, nil
}

func parseCUESteps(path string, data []byte) (*StepFile, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(ErrCodeGeneric, err)
	}

	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(ErrCodeParseFailed, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Script")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}

	var file StepFile
	if err := unified.Decode(&file); err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}
	return &file, nil
}

// formatCUEError converts the first CUE error to a LoadError, keeping its
// source position.
func formatCUEError(code string, err error) *LoadError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}

	first := errs[0]
	loadErr := &LoadError{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		loadErr.Pos = positions[0]
	}
	return loadErr
}
