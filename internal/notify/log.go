package notify

import (
	"context"
	"errors"

	"rentshare-backend/internal/domain"
	"rentshare-backend/internal/logger"
)

// LogNotifier writes notifications to the structured log. It is the default
// backend for local runs.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (LogNotifier) Notify(ctx context.Context, userID int32, event domain.EventType, payload map[string]string) error {
	logger.InfoContext(ctx, "Notification", "userID", userID, "event", event, "payload", payload)
	return nil
}

type notifier interface {
	Notify(ctx context.Context, userID int32, event domain.EventType, payload map[string]string) error
}

// Fanout delivers to every backend and joins their errors.
type Fanout []notifier

func (f Fanout) Notify(ctx context.Context, userID int32, event domain.EventType, payload map[string]string) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, userID, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
