package runtime

import (
	"errors"
	"fmt"

	errspkg "github.com/drblury/transflow/internal/runtime/errors"
	"github.com/drblury/transflow/internal/runtime/model"
)

// FaultCategory names the kind of engine fault that ended a decode.
type FaultCategory string

const (
	FaultAccelerator  FaultCategory = "accelerator"
	FaultMemory       FaultCategory = "memory"
	FaultRuntime      FaultCategory = "runtime"
	FaultUnclassified FaultCategory = "unclassified"
)

// AcceleratorFault and ErrOutOfMemory are re-exported for engines that only
// import this package.
type AcceleratorFault = model.AcceleratorFault

var ErrOutOfMemory = errspkg.ErrOutOfMemory

// Label is the operator-facing name of the category.
func (c FaultCategory) Label() string {
	switch c {
	case FaultAccelerator:
		return "accelerator runtime fault"
	case FaultMemory:
		return "memory exhaustion"
	case FaultRuntime:
		return "runtime error"
	default:
		return "unclassified fault"
	}
}

// FaultClassifier maps a fault cause (a returned error or a recovered panic
// value) to a category. It only changes how the fault is reported.
type FaultClassifier func(cause any) FaultCategory

// Fault is a classified decode failure.
type Fault struct {
	Category    FaultCategory
	Description string
	Cause       any
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s fault: %s", f.Category, f.Description)
}

func (f *Fault) Unwrap() error {
	if err, ok := f.Cause.(error); ok {
		return err
	}
	return nil
}

// DefaultFaultClassifier recognises accelerator faults and memory exhaustion
// anywhere in an error chain. Other errors, including runtime panics, are
// runtime faults. Non-error panic values are unclassified.
func DefaultFaultClassifier(cause any) FaultCategory {
	err, ok := cause.(error)
	if !ok {
		return FaultUnclassified
	}
	var accel *model.AcceleratorFault
	if errors.As(err, &accel) {
		return FaultAccelerator
	}
	if errors.Is(err, errspkg.ErrOutOfMemory) {
		return FaultMemory
	}
	return FaultRuntime
}

func newFault(cause any, classifier FaultClassifier) *Fault {
	if classifier == nil {
		classifier = DefaultFaultClassifier
	}
	category := classifier(cause)
	return &Fault{
		Category:    category,
		Description: describeFault(category, cause),
		Cause:       cause,
	}
}

func describeFault(category FaultCategory, cause any) string {
	if err, ok := cause.(error); ok {
		return err.Error()
	}
	if category == FaultUnclassified {
		return fmt.Sprintf("unknown fault (%T): %v", cause, cause)
	}
	return fmt.Sprint(cause)
}
