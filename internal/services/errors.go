package services

import "errors"

// ErrInvalidPatch is returned when an update or delete request is malformed.
var ErrInvalidPatch = errors.New("invalid issue request")
