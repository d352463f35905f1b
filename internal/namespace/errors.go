package namespace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnsupportedKind means an operation was requested against a namespace
// kind it does not apply to.
var ErrUnsupportedKind = errors.New("operation does not apply to this namespace kind")

// OwnershipError lists every path in the validation set that does not
// resolve to the asserted owner. It is fatal for the requested operation;
// the caller must resolve ownership externally before retrying.
type OwnershipError struct {
	Owner     common.Address
	Violating []Path
}

func (e *OwnershipError) Error() string {
	paths := make([]string, len(e.Violating))
	for i, p := range e.Violating {
		paths[i] = p.String()
	}
	return fmt.Sprintf("address %s does not own: %s", e.Owner.Hex(), strings.Join(paths, ", "))
}

// DependentChildrenError blocks deletion or transfer of a node that still
// has live child applications; removing it would strand their role policies.
type DependentChildrenError struct {
	Path     Path
	Children []string
}

func (e *DependentChildrenError) Error() string {
	return fmt.Sprintf("namespace %s has dependent applications: %s", e.Path, strings.Join(e.Children, ", "))
}

// StepError reports which plan step failed. Steps already executed are not
// rolled back; the caller decides whether to resume, compensate, or abandon.
type StepError struct {
	Index       int
	Description string
	Err         error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Description, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
