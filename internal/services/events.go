package services

import (
	"encoding/json"
	"log"
)

// EventsExchange is the topic exchange marketplace events are published to.
const EventsExchange = "marketplace"

// EventPublisher publishes a message body to an exchange.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// publishEvent sends payload as a best-effort event. A nil publisher or a
// failed publish never fails the calling operation.
func publishEvent(pub EventPublisher, routingKey string, payload any) {
	if pub == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", routingKey, err)
		return
	}
	if err := pub.Publish(EventsExchange, routingKey, body); err != nil {
		log.Printf("Warning: Failed to publish %s event: %v", routingKey, err)
	}
}
