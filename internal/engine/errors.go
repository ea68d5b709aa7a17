package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dyluth/porta/pkg/blackboard"
)

// CycleError reports that the registered edge set is not a DAG.
// Stages lists the stages still inside a cycle, sorted by name.
type CycleError struct {
	Stages []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("stage graph contains a cycle involving: %s", strings.Join(e.Stages, ", "))
}

// UnknownFieldError reports a stage patch writing a field outside the
// stage's declared outputs.
type UnknownFieldError struct {
	Stage string
	Field blackboard.Field
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("stage %q wrote undeclared field %q", e.Stage, e.Field)
}

// DeadlockError reports that one or more terminal readiness flags never
// became true: either the wave limit was hit, or the run reached a fixed
// point with work left undone.
type DeadlockError struct {
	Waves   int
	Missing []blackboard.Field
}

func (e *DeadlockError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	sort.Strings(names)
	return fmt.Sprintf("pipeline deadlocked after %d waves; flags never set: %s",
		e.Waves, strings.Join(names, ", "))
}

// IsDeadlock returns true if the error is a DeadlockError.
func IsDeadlock(err error) bool {
	var de *DeadlockError
	return errors.As(err, &de)
}
