package lrng

import "fmt"

// HealthResult classifies a raw time stamp.
type HealthResult int

const (
	// HealthPass marks a sample that is mixed in and credited.
	HealthPass HealthResult = iota

	// HealthFailUse marks an unhealthy sample that is still mixed in but
	// carries no entropy credit.
	HealthFailUse

	// HealthFailDrop marks a sample that is discarded entirely.
	HealthFailDrop
)

// String returns the string representation of the result.
func (h HealthResult) String() string {
	switch h {
	case HealthPass:
		return "pass"
	case HealthFailUse:
		return "fail-use"
	case HealthFailDrop:
		return "fail-drop"
	default:
		return fmt.Sprintf("HealthResult(%d)", h)
	}
}

// HealthClassifier tests raw time stamps before they enter a collector. It
// is called on the event path and must not block.
type HealthClassifier interface {
	Classify(sample uint32) HealthResult
}

// HealthFunc adapts a function to HealthClassifier.
type HealthFunc func(sample uint32) HealthResult

// Classify calls f(sample).
func (f HealthFunc) Classify(sample uint32) HealthResult {
	return f(sample)
}

// passAll accepts every sample.
type passAll struct{}

func (passAll) Classify(uint32) HealthResult { return HealthPass }
