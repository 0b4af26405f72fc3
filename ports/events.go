package ports

import (
	"context"

	"github.com/google/uuid"
)

// EventPublisher notifies downstream consumers about auth lifecycle events.
// Publishing is best effort: a failed publish never fails the request.
type EventPublisher interface {
	PublishLogin(ctx context.Context, publicKey string, userID uuid.UUID) error
	PublishLogout(ctx context.Context, publicKey string) error
}
