package models

import "errors"

// ErrInvalidParameter is returned when an analysis parameter is out of range.
// Callers wrap it with the offending parameter so errors.Is still matches.
var ErrInvalidParameter = errors.New("invalid parameter")
