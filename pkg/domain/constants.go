package domain

// Reserved state keys written by the engine.
const (
	// KeyError holds the diagnostic message of the last tool failure.
	KeyError = "_error"
)

// DefaultMaxIterations is applied by wire decoders when a loop node omits its cap.
const DefaultMaxIterations = 10
