// README: Error taxonomy shared by the dispatch core. Wrap with fmt.Errorf("%w: ...") and test with errors.Is.
package apperr

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConflict          = errors.New("conflict")
	ErrUnavailable       = errors.New("no driver available")
	ErrOracleTimeout     = errors.New("oracle call failed or timed out")
	ErrForbidden         = errors.New("actor not allowed")
	ErrPaymentFailed     = errors.New("payment failed")
)
