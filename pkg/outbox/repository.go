package outbox

import "context"

// Repository persists outbox events
type Repository interface {
	Save(ctx context.Context, event *Event) error
	SaveAll(ctx context.Context, events []*Event) error
	FindPending(ctx context.Context, limit int) ([]*Event, error)
	MarkPublished(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, publishErr error) error
	CountPending(ctx context.Context) (int64, error)
	DeletePublishedBefore(ctx context.Context, olderThanDays int) (int64, error)
}
