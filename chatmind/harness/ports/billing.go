package harnessports

import "context"

// UsageDeductor charges a user for genuinely new model calls. A no-op
// follow-up (text identical to the first pass) is never charged.
type UsageDeductor interface {
	Deduct(ctx context.Context, userID string, usage Usage, reason string) error
}
