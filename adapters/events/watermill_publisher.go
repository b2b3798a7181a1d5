package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/hexlane/authgate/core"
	"github.com/hexlane/authgate/ports"
)

const (
	TopicRegistered   = "authgate.registered"
	TopicLoginAttempt = "authgate.login_attempt"
	TopicLoggedIn     = "authgate.logged_in"
	TopicLogout       = "authgate.logout"
)

// RegisteredEvent represents a completed on-chain registration
type RegisteredEvent struct {
	Address  string    `json:"address"`
	Username string    `json:"username"`
	Role     core.Role `json:"role"`
	At       time.Time `json:"at"`
}

// LoginAttemptEvent represents a mined login transaction, successful or not
type LoginAttemptEvent struct {
	Address string    `json:"address"`
	Success bool      `json:"success"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// SessionEvent represents a logged-in or logout transition
type SessionEvent struct {
	Address string    `json:"address"`
	At      time.Time `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// PublishRegistered publishes a registration event
func (p *WatermillPublisher) PublishRegistered(ctx context.Context, addr common.Address, username string, role core.Role) error {
	return p.publish(TopicRegistered, RegisteredEvent{
		Address:  addr.Hex(),
		Username: username,
		Role:     role,
		At:       time.Now().UTC(),
	})
}

// PublishLoginAttempt publishes a login attempt event
func (p *WatermillPublisher) PublishLoginAttempt(ctx context.Context, addr common.Address, success bool, message string) error {
	return p.publish(TopicLoginAttempt, LoginAttemptEvent{
		Address: addr.Hex(),
		Success: success,
		Message: message,
		At:      time.Now().UTC(),
	})
}

// PublishLoggedIn publishes a logged-in event
func (p *WatermillPublisher) PublishLoggedIn(ctx context.Context, addr common.Address) error {
	return p.publish(TopicLoggedIn, SessionEvent{Address: addr.Hex(), At: time.Now().UTC()})
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, addr common.Address) error {
	return p.publish(TopicLogout, SessionEvent{Address: addr.Hex(), At: time.Now().UTC()})
}
