package ir

// Version constants for the stored script format and the synthesizer.
const (
	// FormatVersion is the stored script schema version.
	FormatVersion = "1"

	// SynthVersion identifies the code synthesizer output format.
	SynthVersion = "0.1.0"
)
