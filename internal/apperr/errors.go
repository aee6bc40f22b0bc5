package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrStorage  = errors.New("storage failure")
	ErrParse    = errors.New("malformed record")
)
