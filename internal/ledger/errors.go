package ledger

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrDependencyViolation = errors.New("dependency violation")
	ErrUnknownTask         = errors.New("unknown task")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrCycle               = errors.New("circular dependency")
)

// DependencyViolation reports a transition attempted while some of the
// task's blocked_by entries were neither completed nor waived.
type DependencyViolation struct {
	TaskID      string
	Unsatisfied []string
}

func (e *DependencyViolation) Error() string {
	return fmt.Sprintf("dependency violation: task %s is blocked by %s", e.TaskID, strings.Join(e.Unsatisfied, ", "))
}

func (e *DependencyViolation) Is(target error) bool {
	return target == ErrDependencyViolation
}
