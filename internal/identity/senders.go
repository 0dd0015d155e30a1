package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

type LinkKind string

const (
	KindSignInLink    LinkKind = "signin_link"
	KindPasswordReset LinkKind = "password_reset"
)

// LinkMessage is an outbound mail carrying a one-time link.
type LinkMessage struct {
	Kind      LinkKind  `json:"kind"`
	Email     string    `json:"email"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LinkSender delivers sign-in and reset links to their owners.
type LinkSender interface {
	SendLink(ctx context.Context, msg LinkMessage) error
}

// LogLinkSender writes links to the process log. Development only.
type LogLinkSender struct{}

func (LogLinkSender) SendLink(_ context.Context, msg LinkMessage) error {
	log.Printf("Mail %s to %s: %s (expires %s)", msg.Kind, msg.Email, msg.Link, msg.ExpiresAt.Format(time.RFC3339))
	return nil
}

// Publisher publishes a message body to an exchange.
type Publisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// QueueLinkSender hands links to the mail worker over the message broker,
// routed as "mail.<kind>".
type QueueLinkSender struct {
	Publisher Publisher
	Exchange  string
}

func (s QueueLinkSender) SendLink(_ context.Context, msg LinkMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode mail message: %w", err)
	}
	if err := s.Publisher.Publish(s.Exchange, "mail."+string(msg.Kind), body); err != nil {
		return fmt.Errorf("failed to queue %s mail: %w", msg.Kind, err)
	}
	return nil
}
