package domain

import "time"

// Lease tags the rows claimed by one tick invocation. Owner is the worker
// identity of the claiming process.
type Lease struct {
	ID        string
	Owner     string
	Now       time.Time
	ExpiresAt time.Time
}
