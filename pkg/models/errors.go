package models

import "errors"

// ErrNotFound is wrapped by every package-level "not found" sentinel so callers
// in other packages can match it without importing the owner.
var ErrNotFound = errors.New("not found")
