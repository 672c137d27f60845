// Package events defines the notifications emitted after a unit of work
// commits. Delivery is fire-and-forget.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	TopicUser    = "user_events"
	TopicProduct = "product_events"
)

const (
	UserRegistered = "user_registered"
	UserLoggedIn   = "user_logged_in"
	TokenRefreshed = "token_refreshed"
	RoleAssigned   = "role_assigned"
	ProductCreated = "product_created"
	ProductUpdated = "product_updated"
	ProductDeleted = "product_deleted"
)

type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
	Close() error
}

type UserEvent struct {
	Type     string    `json:"type"`
	UserID   uint      `json:"user_id"`
	Username string    `json:"username"`
	Role     string    `json:"role,omitempty"`
	At       time.Time `json:"at"`
}

type ProductEvent struct {
	Type      string    `json:"type"`
	ProductID string    `json:"product_id"`
	Name      string    `json:"name,omitempty"`
	SKU       string    `json:"sku,omitempty"`
	At        time.Time `json:"at"`
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishEvent(context.Context, string, string, any) error { return nil }
func (Nop) Close() error { return nil }

type Recorded struct {
	Topic string
	Key   string
	Event any
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
	Err    error
}

func (r *Recorder) PublishEvent(_ context.Context, topic, key string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, Recorded{Topic: topic, Key: key, Event: event})
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists the Type field of every recorded user or product event.
func (r *Recorder) Types() []string {
	var out []string
	for _, e := range r.Events() {
		switch ev := e.Event.(type) {
		case UserEvent:
			out = append(out, ev.Type)
		case ProductEvent:
			out = append(out, ev.Type)
		}
	}
	return out
}
