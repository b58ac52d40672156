package policy

import (
	"fmt"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// ViolationError is a denied decision as an error. It matches eventstore.ErrPolicyViolation.
type ViolationError struct {
	Decision Decision
	Caller   string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", eventstore.ErrPolicyViolation.Error(), e.Decision.Policy, e.Decision.Reason)
}

func (e *ViolationError) Unwrap() error {
	return eventstore.ErrPolicyViolation
}
