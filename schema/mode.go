package schema

import (
	"errors"
	"fmt"
	"strings"
)

// CompatibilityMode controls which earlier versions a new schema is checked against, and in which direction.
type CompatibilityMode string

const (
	// Backward: the new version can read data written with the previous version.
	Backward CompatibilityMode = "BACKWARD"
	// BackwardTransitive: the new version can read data written with every earlier version.
	BackwardTransitive CompatibilityMode = "BACKWARD_TRANSITIVE"
	// Forward: the previous version can read data written with the new version.
	Forward CompatibilityMode = "FORWARD"
	// ForwardTransitive: every earlier version can read data written with the new version.
	ForwardTransitive CompatibilityMode = "FORWARD_TRANSITIVE"
	// Full is Backward and Forward against the previous version.
	Full CompatibilityMode = "FULL"
	// FullTransitive is Backward and Forward against every earlier version.
	FullTransitive CompatibilityMode = "FULL_TRANSITIVE"
	// None disables compatibility checks.
	None CompatibilityMode = "NONE"
)

// DefaultMode is used when a registration does not name a mode.
const DefaultMode = Backward

// ErrUnknownMode is returned by ParseMode for unsupported values.
var ErrUnknownMode = errors.New("unknown compatibility mode")

// ParseMode parses a mode name case-insensitively. The empty string yields DefaultMode.
func ParseMode(s string) (CompatibilityMode, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultMode, nil
	}

	mode := CompatibilityMode(strings.ToUpper(strings.TrimSpace(s)))

	switch mode {
	case Backward, BackwardTransitive, Forward, ForwardTransitive, Full, FullTransitive, None:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

func (m CompatibilityMode) checksBackward() bool {
	return m == Backward || m == BackwardTransitive || m == Full || m == FullTransitive
}

func (m CompatibilityMode) checksForward() bool {
	return m == Forward || m == ForwardTransitive || m == Full || m == FullTransitive
}

func (m CompatibilityMode) transitive() bool {
	return m == BackwardTransitive || m == ForwardTransitive || m == FullTransitive
}
