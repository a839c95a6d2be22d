package console

import "errors"

// ErrValidation marks a request rejected before any remote call was
// attempted: a required field is missing or out of range. Wrapped errors
// carry the field-specific message.
var ErrValidation = errors.New("validation failed")
