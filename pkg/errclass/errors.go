// Package errclass defines stable, machine-readable error classes for the
// transactional file-operation core.
package errclass

import "fmt"

// CoreError is a stable, machine-readable error class.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new CoreError with the same Code but a specific message.
func (e *CoreError) WithMessage(msg string) *CoreError {
	return &CoreError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new CoreError with a formatted message.
func (e *CoreError) WithMessagef(format string, args ...any) *CoreError {
	return &CoreError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Stable error classes.
//
// Persistence failures are always fatal: the logs are the system of record
// and silent loss is unacceptable. Integrity mismatches downgrade a reported
// success to failed rather than raising. Reversal failures are accumulated
// per file and never abort the batch.
var (
	ErrPersistence       = &CoreError{Code: "E_PERSISTENCE"}
	ErrIntegrity         = &CoreError{Code: "E_INTEGRITY"}
	ErrNotFound          = &CoreError{Code: "E_NOT_FOUND"}
	ErrLockConflict      = &CoreError{Code: "E_LOCK_CONFLICT"}
	ErrTransactionActive = &CoreError{Code: "E_TRANSACTION_ACTIVE"}
	ErrNoTransaction     = &CoreError{Code: "E_NO_TRANSACTION"}
	ErrAlreadyCompleted  = &CoreError{Code: "E_ALREADY_COMPLETED"}
	ErrReversalFailed    = &CoreError{Code: "E_REVERSAL_FAILED"}
	ErrNoSession         = &CoreError{Code: "E_NO_SESSION"}
	ErrNameInvalid       = &CoreError{Code: "E_NAME_INVALID"}
	ErrPathEscape        = &CoreError{Code: "E_PATH_ESCAPE"}
)
