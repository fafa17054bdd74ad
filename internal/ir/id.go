package ir

import (
	"strings"

	"github.com/google/uuid"
)

// stepIDLength is the number of hex characters kept from a random UUID.
const stepIDLength = 8

// IDGenerator produces step identifiers.
type IDGenerator interface {
	Generate() string
}

// RandomIDGenerator is the production IDGenerator backed by NewStepID.
type RandomIDGenerator struct{}

// Generate implements IDGenerator.
func (RandomIDGenerator) Generate() string {
	return NewStepID()
}

// NewStepID returns a short random step identifier.
func NewStepID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:stepIDLength]
}
