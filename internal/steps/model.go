// Package steps maintains the canonical ordered list of steps for one
// script and validates steps before they enter it.
package steps

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/autovnc/internal/ir"
)

// ErrStepNotFound is returned when an id or position does not exist.
var ErrStepNotFound = errors.New("step not found")

// Model is the ordered step list of one script.
//
// INVARIANT: after every mutation, steps[i].Order == i for all i.
//
// Model is not safe for concurrent use; the capture session serializes
// access.
type Model struct {
	steps []ir.Step
	ids   ir.IDGenerator
}

// Option configures a Model.
type Option func(*Model)

// WithIDGenerator sets the generator used for steps that arrive without an
// id. Tests use a deterministic generator.
func WithIDGenerator(g ir.IDGenerator) Option {
	return func(m *Model) {
		m.ids = g
	}
}

// NewModel creates a model from an existing list. Steps are copied, sorted
// by their current Order (stable) and renumbered. Missing ids are assigned.
// The list is not validated; use Load for that.
func NewModel(list []ir.Step, opts ...Option) *Model {
	m := &Model{
		steps: make([]ir.Step, 0, len(list)),
		ids:   ir.RandomIDGenerator{},
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, s := range list {
		m.steps = append(m.steps, s.Clone())
	}
	sortByOrder(m.steps)
	for i := range m.steps {
		if m.steps[i].ID == "" {
			m.steps[i].ID = m.ids.Generate()
		}
	}
	m.renumber()
	return m
}

// Load validates every step and builds a model. Returns the full error list
// when any step is invalid.
func Load(list []ir.Step, opts ...Option) (*Model, error) {
	if errs := ValidateAll(list); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return NewModel(list, opts...), nil
}

// Len returns the number of steps.
func (m *Model) Len() int {
	return len(m.steps)
}

// Steps returns a deep copy of the list in order.
func (m *Model) Steps() []ir.Step {
	out := make([]ir.Step, len(m.steps))
	for i, s := range m.steps {
		out[i] = s.Clone()
	}
	return out
}

// Get returns the step with the given id.
func (m *Model) Get(id string) (ir.Step, bool) {
	if i := m.indexOf(id); i >= 0 {
		return m.steps[i].Clone(), true
	}
	return ir.Step{}, false
}

// Append validates s and adds it at the end. Returns the stored step (with
// id and order assigned) or ValidationErrors.
func (m *Model) Append(s ir.Step) (ir.Step, error) {
	return m.Insert(len(m.steps), s)
}

// Insert validates s and places it at position at (0..Len). Later steps
// shift down by one.
func (m *Model) Insert(at int, s ir.Step) (ir.Step, error) {
	if at < 0 || at > len(m.steps) {
		return ir.Step{}, fmt.Errorf("insert at %d: position out of range [0,%d]", at, len(m.steps))
	}
	if errs := Validate(s); len(errs) > 0 {
		return ir.Step{}, ValidationErrors(errs)
	}

	s = s.Clone()
	if s.ID == "" {
		s.ID = m.ids.Generate()
	} else if m.indexOf(s.ID) >= 0 {
		return ir.Step{}, ValidationErrors{{
			Field:   "id",
			Message: fmt.Sprintf("duplicate step id %q", s.ID),
			Code:    ErrDuplicateID,
		}}
	}

	m.steps = append(m.steps, ir.Step{})
	copy(m.steps[at+1:], m.steps[at:])
	m.steps[at] = s
	m.renumber()
	return m.steps[at].Clone(), nil
}

// Update replaces the step with the given id, keeping its position.
func (m *Model) Update(id string, s ir.Step) error {
	i := m.indexOf(id)
	if i < 0 {
		return fmt.Errorf("update %q: %w", id, ErrStepNotFound)
	}
	if errs := Validate(s); len(errs) > 0 {
		return ValidationErrors(errs)
	}
	s = s.Clone()
	s.ID = id
	m.steps[i] = s
	m.renumber()
	return nil
}

// Delete removes the step with the given id. Returns false if not found.
func (m *Model) Delete(id string) bool {
	i := m.indexOf(id)
	if i < 0 {
		return false
	}
	m.steps = append(m.steps[:i], m.steps[i+1:]...)
	m.renumber()
	return true
}

// Move relocates the step at position from to position to.
func (m *Model) Move(from, to int) error {
	n := len(m.steps)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("move %d -> %d: %w", from, to, ErrStepNotFound)
	}
	if from == to {
		return nil
	}
	s := m.steps[from]
	m.steps = append(m.steps[:from], m.steps[from+1:]...)
	m.steps = append(m.steps, ir.Step{})
	copy(m.steps[to+1:], m.steps[to:])
	m.steps[to] = s
	m.renumber()
	return nil
}

func (m *Model) indexOf(id string) int {
	for i := range m.steps {
		if m.steps[i].ID == id {
			return i
		}
	}
	return -1
}

// renumber restores the dense order invariant.
func (m *Model) renumber() {
	for i := range m.steps {
		m.steps[i].Order = i
	}
}

func sortByOrder(list []ir.Step) {
	slices.SortStableFunc(list, func(a, b ir.Step) int {
		return cmp.Compare(a.Order, b.Order)
	})
}

// Sorted returns a copy of list ordered by Order (stable).
func Sorted(list []ir.Step) []ir.Step {
	out := make([]ir.Step, len(list))
	copy(out, list)
	sortByOrder(out)
	return out
}
