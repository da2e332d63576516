package service

// ConflictError reports a request that collides with current state, such as
// an arrival for a plate that already has an open session.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ValidationError reports a request rejected before touching state.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func conflictf(msg string) error   { return &ConflictError{Message: msg} }
func validationf(msg string) error { return &ValidationError{Message: msg} }
