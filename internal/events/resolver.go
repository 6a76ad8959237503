package events

import "time"

// ResolverFinish is emitted after a field resolver returns.
type ResolverFinish struct {
	ObjectType string
	Field      string
	Start      time.Time
	Duration   time.Duration
	Err        error
}

// ResolveBatch is emitted after one depth of async fields is resolved.
type ResolveBatch struct {
	Size     int
	Duration time.Duration
}
