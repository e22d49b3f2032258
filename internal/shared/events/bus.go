package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
	"github.com/meridian-rcm/platform/internal/shared/config"
)

// Bus provides event publishing and subscription using KurrentDB. Case
// status changes and reconciliation exceptions flow through it to the
// presentation layer; streams are append-only, which also gives the
// revenue-cycle side an audit trail for free.
type Bus struct {
	client *esdb.Client
	prefix string
}

// NewBus creates a new event bus connected to KurrentDB
func NewBus(ctx context.Context, cfg config.KurrentDBConfig) (*Bus, error) {
	connString := buildConnectionString(cfg)

	settings, err := esdb.ParseConnectionString(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create KurrentDB client: %w", err)
	}

	return &Bus{client: client, prefix: "rcm"}, nil
}

// buildConnectionString creates the esdb:// connection string
func buildConnectionString(cfg config.KurrentDBConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	params := ""
	if cfg.Insecure {
		params = "?tls=false&tlsVerifyCert=false"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, params)
}

// Publish publishes an event to the bus
func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Stream name from event type: rcm.case.status_changed -> rcm-case-status_changed
	stream := fmt.Sprintf("%s-%s", b.prefix, strings.ReplaceAll(event.Type, ".", "-"))

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	esdbEvent := esdb.EventData{
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		EventID:     eventID,
	}

	_, err = b.client.AppendToStream(ctx, stream, esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdbEvent)

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe creates a catch-up subscription on $all filtered by event type
// pattern, e.g. "case.*" or "reconciliation.exception".
func (b *Bus) Subscribe(ctx context.Context, pattern string, handler Handler) error {
	sub, err := b.client.SubscribeToAll(ctx, esdb.SubscribeToAllOptions{
		From: esdb.End{},
		Filter: &esdb.SubscriptionFilter{
			Type:  esdb.EventFilterType,
			Regex: patternToRegex(pattern),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to pattern: %w", err)
	}

	go b.handleSubscription(ctx, sub, pattern, handler)
	return nil
}

// patternToRegex converts a simple wildcard pattern to regex
func patternToRegex(pattern string) string {
	result := make([]byte, 0, len(pattern)*2)
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '.':
			result = append(result, '\\', '.')
		case '*':
			result = append(result, '.', '*')
		default:
			result = append(result, pattern[i])
		}
	}
	return string(result)
}

// handleSubscription processes events from a catch-up subscription
func (b *Bus) handleSubscription(ctx context.Context, sub *esdb.Subscription, pattern string, handler Handler) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			subEvent := sub.Recv()
			if subEvent.EventAppeared == nil {
				if subEvent.SubscriptionDropped != nil {
					log.Printf("Subscription dropped: %v", subEvent.SubscriptionDropped.Error)
					return
				}
				time.Sleep(10 * time.Millisecond)
				continue
			}

			recorded := subEvent.EventAppeared.Event
			if recorded == nil {
				continue
			}

			// Skip system events
			if len(recorded.EventType) > 0 && recorded.EventType[0] == '$' {
				continue
			}

			if !matchesPattern(recorded.EventType, pattern) {
				continue
			}

			var event Event
			if err := json.Unmarshal(recorded.Data, &event); err != nil {
				log.Printf("Failed to decode event: %v", err)
				continue
			}
			if event.ID == "" {
				event.ID = recorded.EventID.String()
			}

			if err := handler(ctx, event); err != nil {
				log.Printf("Handler error for event %s: %v", event.ID, err)
			}
		}
	}
}

// matchesPattern checks if an event type matches a wildcard pattern
func matchesPattern(eventType, pattern string) bool {
	if pattern == "*" {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	typeParts := strings.Split(eventType, ".")

	for i, pp := range patternParts {
		if pp == "*" {
			return true
		}
		if i >= len(typeParts) {
			return false
		}
		if pp != typeParts[i] {
			return false
		}
	}

	return len(patternParts) == len(typeParts)
}

// Close closes the event bus connection
func (b *Bus) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// Health checks the KurrentDB connection
func (b *Bus) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := b.client.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)

	if err != nil {
		return fmt.Errorf("KurrentDB health check failed: %w", err)
	}
	defer stream.Close()

	return nil
}
