package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrStoreUnavailable  = errors.New("data store unavailable")
	ErrExternalService   = errors.New("external answer service failed")
	ErrFilterNotSpecific = errors.New("filter has no constraints")
)
