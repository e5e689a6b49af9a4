package errors

import sterrors "errors"

var (
	ErrSearchRequired     = sterrors.New("transflow: search engine is required")
	ErrPrinterRequired    = sterrors.New("transflow: printer is required")
	ErrCollectorRequired  = sterrors.New("transflow: output collector is required")
	ErrEmitterRequired    = sterrors.New("transflow: emitter is required")
	ErrPublisherRequired  = sterrors.New("transflow: publisher is required")
	ErrTopicRequired      = sterrors.New("transflow: topic is required")
	ErrConfigRequired     = sterrors.New("transflow: configuration is required")
	ErrLoggerRequired     = sterrors.New("transflow: logger is required")
	ErrServiceRequired    = sterrors.New("transflow: service is required")
	ErrCollectorClosed    = sterrors.New("transflow: output collector is closed")
	ErrLineAlreadyWritten = sterrors.New("transflow: line number already written")
	ErrPositionalMismatch = sterrors.New("transflow: decoded results do not match batch positions")
	ErrOutOfMemory        = sterrors.New("transflow: out of memory")
	ErrBatchTooLarge      = sterrors.New("transflow: batch exceeds transport message size")
	ErrServiceClosed      = sterrors.New("transflow: service is closed")
)

// ConfigValidationError reports a configuration that failed Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "transflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil for a nil err.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
