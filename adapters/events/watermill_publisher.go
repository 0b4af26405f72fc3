package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/lumenlearn/starpass/ports"
)

const (
	// LoginTopic carries events for every successful verification.
	LoginTopic = "starpass.login"

	// LogoutTopic carries logout notifications.
	LogoutTopic = "starpass.logout"
)

// LoginEvent is published after a successful envelope verification.
type LoginEvent struct {
	PublicKey string    `json:"public_key"`
	UserID    string    `json:"user_id"`
	At        time.Time `json:"at"`
}

// LogoutEvent is published when a session is explicitly ended.
type LogoutEvent struct {
	PublicKey string    `json:"public_key"`
	At        time.Time `json:"at"`
}

// WatermillPublisher implements the EventPublisher port over a Watermill
// message publisher.
type WatermillPublisher struct {
	publisher message.Publisher
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) PublishLogin(ctx context.Context, publicKey string, userID uuid.UUID) error {
	return p.publish(LoginTopic, LoginEvent{
		PublicKey: publicKey,
		UserID:    userID.String(),
		At:        time.Now().UTC(),
	})
}

func (p *WatermillPublisher) PublishLogout(ctx context.Context, publicKey string) error {
	return p.publish(LogoutTopic, LogoutEvent{
		PublicKey: publicKey,
		At:        time.Now().UTC(),
	})
}

func (p *WatermillPublisher) publish(topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
