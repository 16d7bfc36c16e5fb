package store

import "errors"

var ErrNotFound = errors.New("configuration not found")
var ErrMalformedRecord = errors.New("malformed configuration record")
var ErrInvalidName = errors.New("invalid configuration name")
