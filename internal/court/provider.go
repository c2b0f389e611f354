package court

import (
	"context"
	"time"
)

// AvailabilitySource returns the open slots for a date. An empty snapshot is not an error.
type AvailabilitySource interface {
	Fetch(ctx context.Context, date time.Time, offset int) (Snapshot, error)
}

// OrderSubmitter tries to reserve one slot. Rejections come back as a Result;
// the error return is reserved for transient and auth failures.
type OrderSubmitter interface {
	Submit(ctx context.Context, slot Slot) (Result, error)
}

// Notifier pushes a human-readable message to the operator.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// BookingService is what the gym client provides.
type BookingService interface {
	AvailabilitySource
	OrderSubmitter
}
