package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediavault/models"
	"mediavault/utils"
)

const (
	defaultSubscriberBuffer = 16
	publishTimeout          = 5 * time.Second
	receiveRetryDelay       = 2 * time.Second
)

// Hub fans events out to the sessions connected to this process.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	buffer      int
}

type subscriber struct {
	scopes map[models.Scope]bool
	ch     chan models.Event
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subscribers: make(map[string]*subscriber),
		buffer:      buffer,
	}
}

// Subscribe registers a session for the given scopes. Global events reach
// every subscriber regardless of scopes. The returned func unsubscribes and
// closes the channel; calling it again is a no-op.
func (h *Hub) Subscribe(scopes ...models.Scope) (<-chan models.Event, func()) {
	sub := &subscriber{
		scopes: make(map[models.Scope]bool, len(scopes)),
		ch:     make(chan models.Event, h.buffer),
	}
	for _, scope := range scopes {
		sub.scopes[scope] = true
	}

	id := uuid.NewString()
	h.mu.Lock()
	h.subscribers[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Deliver hands the event to every matching subscriber without blocking.
// Subscribers whose buffer is full miss it. Returns the number reached.
func (h *Hub) Deliver(env models.Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, sub := range h.subscribers {
		if !env.Scope.IsGlobal() && !sub.scopes[env.Scope] {
			continue
		}
		select {
		case sub.ch <- env.Event:
			delivered++
		default:
			utils.LogDebug("Dropping %s event for slow subscriber %s", env.Event.Type, id)
		}
	}
	return delivered
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broker moves envelopes between processes.
type Broker interface {
	Publish(ctx context.Context, env models.Envelope) error
	// Receive calls deliver for every envelope published elsewhere until ctx
	// is done or the transport fails.
	Receive(ctx context.Context, deliver func(models.Envelope)) error
}

// Notifier is what mutating services publish through.
type Notifier interface {
	Notify(ctx context.Context, eventType models.EventType, scope models.Scope, payload any)
}

// NotificationService delivers events to local sessions and publishes them
// through the broker for other processes. Delivery is best effort: errors
// are logged and never returned.
type NotificationService struct {
	hub    *Hub
	broker Broker
	origin string
}

func NewNotificationService(broker Broker, buffer int) *NotificationService {
	if broker == nil {
		broker = NewLocalBroker()
	}
	return &NotificationService{
		hub:    NewHub(buffer),
		broker: broker,
		origin: uuid.NewString(),
	}
}

func (s *NotificationService) Origin() string {
	return s.origin
}

func (s *NotificationService) Notify(ctx context.Context, eventType models.EventType, scope models.Scope, payload any) {
	if !scope.Valid() {
		utils.LogWarning("Dropping %s event with invalid scope %q", eventType, scope)
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		utils.LogError("Failed to encode event payload", err)
		return
	}

	if scope == "" {
		scope = models.GlobalScope
	}
	s.Relay(ctx, models.Envelope{
		Origin: s.origin,
		Scope:  scope,
		Event:  models.Event{Type: eventType, Payload: data},
	})
}

// Relay delivers an already built envelope locally and republishes it under
// this process's origin.
func (s *NotificationService) Relay(ctx context.Context, env models.Envelope) {
	env.Origin = s.origin
	delivered := s.hub.Deliver(env)
	utils.LogDebug("Event %s to %s delivered to %d local subscribers", env.Event.Type, env.Scope, delivered)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.broker.Publish(ctx, env); err != nil {
		utils.LogWarning("Failed to publish %s event: %v", env.Event.Type, err)
	}
}

func (s *NotificationService) Subscribe(scopes ...models.Scope) (<-chan models.Event, func()) {
	return s.hub.Subscribe(scopes...)
}

func (s *NotificationService) SubscriberCount() int {
	return s.hub.Len()
}

// Run drives the broker's receive side until ctx is done, reconnecting after
// transport errors.
func (s *NotificationService) Run(ctx context.Context) error {
	deliver := func(env models.Envelope) {
		if env.Origin == s.origin {
			return
		}
		if !env.Scope.Valid() {
			utils.LogDebug("Ignoring envelope with invalid scope %q", env.Scope)
			return
		}
		s.hub.Deliver(env)
	}

	for {
		err := s.broker.Receive(ctx, deliver)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			utils.LogWarning("Event broker receive failed, retrying in %v: %v", receiveRetryDelay, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(receiveRetryDelay):
		}
	}
}
