package livefrag

import "errors"

// Sentinel errors for engine operations.
var (
	ErrCrossOrigin        = errors.New("livefrag: cross-origin URL rejected")
	ErrMalformedURL       = errors.New("livefrag: malformed URL")
	ErrDuplicateName      = errors.New("livefrag: name already registered")
	ErrEnvelope           = errors.New("livefrag: invalid response envelope")
	ErrTargetMissing      = errors.New("livefrag: action target not found")
	ErrControllerMissing  = errors.New("livefrag: no controller for element")
	ErrControllerDisposed = errors.New("livefrag: controller disposed")
)

// IsCrossOrigin checks if err is a cross-origin rejection.
func IsCrossOrigin(err error) bool {
	return errors.Is(err, ErrCrossOrigin)
}

// IsDuplicateName checks if err is a binder/feature registration conflict.
func IsDuplicateName(err error) bool {
	return errors.Is(err, ErrDuplicateName)
}

// IsEnvelopeError checks if err came from parsing a response envelope.
func IsEnvelopeError(err error) bool {
	return errors.Is(err, ErrEnvelope)
}
