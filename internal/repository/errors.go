package repository

import "errors"

// ErrLeaseLost is returned when a completion write finds the row no longer
// held by the lease it was claimed with, e.g. after lease expiry and reclaim.
var ErrLeaseLost = errors.New("lease no longer held")

var ErrNotFound = errors.New("not found")
