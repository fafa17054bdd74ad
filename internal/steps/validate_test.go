package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autovnc/internal/ir"
)

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name string
		step ir.Step
		code string
	}{
		{"click without target", ir.Step{Type: ir.StepClick}, ErrMissingTarget},
		{"click with only x", ir.Step{Type: ir.StepRightClick, X: ir.IntPtr(3)}, ErrMissingTarget},
		{"type without text or keys", ir.Step{Type: ir.StepTypeText}, ErrMissingText},
		{"key_press without keys", ir.Step{Type: ir.StepKeyPress}, ErrMissingKeys},
		{"key_combo without keys", ir.Step{Type: ir.StepKeyCombo}, ErrMissingKeys},
		{"wait_for_image without template", ir.Step{Type: ir.StepWaitForImage}, ErrMissingTemplate},
		{"wait_for_text blank", ir.Step{Type: ir.StepWaitForText, Text: "  "}, ErrMissingText},
		{"scroll bad direction", ir.Step{Type: ir.StepScroll, Direction: "sideways"}, ErrInvalidDirection},
		{"wait negative", ir.Step{Type: ir.StepWait, Duration: -1}, ErrInvalidRange},
		{"unknown type", ir.Step{Type: "hover"}, ErrInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.step)
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.code, errs[0].Code)
		})
	}
}

func TestValidate_ValidSteps(t *testing.T) {
	valid := []ir.Step{
		{Type: ir.StepClick, Template: "template.png"},
		{Type: ir.StepDoubleClick, X: ir.IntPtr(0), Y: ir.IntPtr(0)},
		{Type: ir.StepTypeText, Keys: []string{"enter"}},
		{Type: ir.StepTypeText, Text: "hello"},
		{Type: ir.StepKeyCombo, Keys: []string{"ctrl", "c"}},
		{Type: ir.StepWaitForImage, Template: "t.png", Region: &ir.Region{Width: 10, Height: 10}},
		{Type: ir.StepWaitForText, Text: "Ready"},
		{Type: ir.StepWait},
		{Type: ir.StepScreenshot},
		{Type: ir.StepScroll, Direction: ir.ScrollDown},
		{Type: ir.StepDrag, X: ir.IntPtr(1), Y: ir.IntPtr(2), EndX: ir.IntPtr(3), EndY: ir.IntPtr(4)},
	}
	for _, s := range valid {
		assert.Empty(t, Validate(s), "%s should be valid", s.Type)
	}
}

func TestValidate_DragReportsBothEnds(t *testing.T) {
	errs := Validate(ir.Step{Type: ir.StepDrag})
	require.Len(t, errs, 2)
	assert.Equal(t, "x", errs[0].Field)
	assert.Equal(t, "end_x", errs[1].Field)
}

func TestValidate_CommonFieldsCollected(t *testing.T) {
	s := ir.Step{
		Type:        ir.StepWaitForImage,
		Template:    "t.png",
		Threshold:   1.5,
		Timeout:     -2,
		DelayBefore: -1,
		Region:      &ir.Region{Width: 0, Height: 5},
	}
	errs := Validate(s)
	fields := make([]string, len(errs))
	for i, e := range errs {
		fields[i] = e.Field
	}
	assert.Equal(t, []string{"threshold", "timeout", "delay_before", "region"}, fields)
}

func TestValidateAll_IndexesAndDuplicates(t *testing.T) {
	list := []ir.Step{
		{ID: "a", Type: ir.StepWait},
		{ID: "a", Type: ir.StepWait},
		{Type: ir.StepWaitForImage},
	}
	errs := ValidateAll(list)
	require.Len(t, errs, 2)
	assert.Equal(t, "steps[1].id", errs[0].Field)
	assert.Equal(t, ErrDuplicateID, errs[0].Code)
	assert.Equal(t, "steps[2].template", errs[1].Field)
	assert.Equal(t, 2, errs[1].Index)
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "text", Message: "required", Code: ErrMissingText}
	assert.Equal(t, "[E103] text: required", e.Error())

	es := ValidationErrors{e, {Field: "keys", Message: "required", Code: ErrMissingKeys}}
	assert.Equal(t, "invalid step: [E103] text: required; [E104] keys: required", es.Error())
}
