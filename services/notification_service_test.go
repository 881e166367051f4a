package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
)

type fakeBroker struct {
	mu        sync.Mutex
	published []models.Envelope
	incoming  chan models.Envelope
	err       error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{incoming: make(chan models.Envelope, 8)}
}

func (b *fakeBroker) Publish(ctx context.Context, env models.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, env)
	return b.err
}

func (b *fakeBroker) Receive(ctx context.Context, deliver func(models.Envelope)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-b.incoming:
			deliver(env)
		}
	}
}

func (b *fakeBroker) publishedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func receive(t *testing.T, ch <-chan models.Event) models.Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.Event{}
	}
}

func assertNoEvent(t *testing.T, ch <-chan models.Event) {
	t.Helper()
	select {
	case event := <-ch:
		t.Fatalf("unexpected event %s", event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_ScopedDelivery(t *testing.T) {
	hub := NewHub(4)
	alice, bob := primitive.NewObjectID(), primitive.NewObjectID()

	aliceCh, unsubscribeAlice := hub.Subscribe(models.UserScope(alice))
	defer unsubscribeAlice()
	bobCh, unsubscribeBob := hub.Subscribe(models.UserScope(bob))
	defer unsubscribeBob()

	delivered := hub.Deliver(models.Envelope{Scope: models.UserScope(alice), Event: models.Event{Type: models.EventRevokeAccess}})
	assert.Equal(t, 1, delivered)
	assert.Equal(t, models.EventRevokeAccess, receive(t, aliceCh).Type)
	assertNoEvent(t, bobCh)

	delivered = hub.Deliver(models.Envelope{Scope: models.GlobalScope, Event: models.Event{Type: models.EventGalleryRefresh}})
	assert.Equal(t, 2, delivered)
	assert.Equal(t, models.EventGalleryRefresh, receive(t, aliceCh).Type)
	assert.Equal(t, models.EventGalleryRefresh, receive(t, bobCh).Type)
}

func TestHub_DropsWhenBufferFull(t *testing.T) {
	hub := NewHub(1)
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	env := models.Envelope{Scope: models.GlobalScope, Event: models.Event{Type: models.EventGalleryRefresh}}
	assert.Equal(t, 1, hub.Deliver(env))
	assert.Equal(t, 0, hub.Deliver(env))

	receive(t, ch)
	assertNoEvent(t, ch)
}

func TestHub_UnsubscribeClosesOnce(t *testing.T) {
	hub := NewHub(1)
	ch, unsubscribe := hub.Subscribe()
	assert.Equal(t, 1, hub.Len())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, hub.Len())

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Deliver(models.Envelope{Scope: models.GlobalScope}))
}

func TestNotificationService_NotifyDeliversAndPublishes(t *testing.T) {
	broker := newFakeBroker()
	notifications := NewNotificationService(broker, 4)
	user := primitive.NewObjectID()

	ch, unsubscribe := notifications.Subscribe(models.UserScope(user))
	defer unsubscribe()

	notifications.Notify(context.Background(), models.EventRevokeAccess, models.UserScope(user), models.RevokeAccessPayload{FolderID: "f1"})

	event := receive(t, ch)
	assert.Equal(t, models.EventRevokeAccess, event.Type)
	var payload models.RevokeAccessPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "f1", payload.FolderID)

	require.Equal(t, 1, broker.publishedCount())
	assert.Equal(t, notifications.Origin(), broker.published[0].Origin)
	assert.Equal(t, models.UserScope(user), broker.published[0].Scope)
}

func TestNotificationService_InvalidScopeIsDropped(t *testing.T) {
	broker := newFakeBroker()
	notifications := NewNotificationService(broker, 4)
	ch, unsubscribe := notifications.Subscribe()
	defer unsubscribe()

	notifications.Notify(context.Background(), models.EventGalleryRefresh, models.Scope("room:42"), nil)

	assertNoEvent(t, ch)
	assert.Zero(t, broker.publishedCount())
}

func TestNotificationService_PublishFailureIsSwallowed(t *testing.T) {
	broker := newFakeBroker()
	broker.err = errors.New("bus down")
	notifications := NewNotificationService(broker, 4)
	ch, unsubscribe := notifications.Subscribe()
	defer unsubscribe()

	assert.NotPanics(t, func() {
		notifications.Notify(context.Background(), models.EventGalleryRefresh, models.GlobalScope, models.GalleryRefreshPayload{})
	})
	assert.Equal(t, models.EventGalleryRefresh, receive(t, ch).Type)
}

func TestNotificationService_RunSkipsOwnOrigin(t *testing.T) {
	broker := newFakeBroker()
	notifications := NewNotificationService(broker, 4)
	ch, unsubscribe := notifications.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- notifications.Run(ctx) }()

	broker.incoming <- models.Envelope{
		Origin: notifications.Origin(),
		Scope:  models.GlobalScope,
		Event:  models.Event{Type: models.EventPermissionUpdate},
	}
	broker.incoming <- models.Envelope{
		Origin: "another-instance",
		Scope:  models.GlobalScope,
		Event:  models.Event{Type: models.EventGalleryRefresh},
	}

	assert.Equal(t, models.EventGalleryRefresh, receive(t, ch).Type)
	assertNoEvent(t, ch)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
