package model

import (
	"fmt"

	errspkg "github.com/drblury/transflow/internal/runtime/errors"
)

// ErrOutOfMemory is returned (or wrapped) by engines that ran out of host or
// device memory.
var ErrOutOfMemory = errspkg.ErrOutOfMemory

// AcceleratorFault reports a failure inside the accelerator runtime, such as a
// device kernel error or a lost device.
type AcceleratorFault struct {
	Device  string
	Code    int
	Message string
}

func (e *AcceleratorFault) Error() string {
	device := e.Device
	if device == "" {
		device = "unknown device"
	}
	return fmt.Sprintf("accelerator fault on %s (code %d): %s", device, e.Code, e.Message)
}
