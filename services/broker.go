package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gomodule/redigo/redis"

	"mediavault/models"
	"mediavault/utils"
)

// InternalTokenHeader authenticates relayed envelopes on /internal/notify.
const InternalTokenHeader = "X-Internal-Token"

// LocalBroker is used by single-process deployments; the hub already
// reaches every session, so there is nothing to carry.
type LocalBroker struct{}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{}
}

func (b *LocalBroker) Publish(ctx context.Context, env models.Envelope) error {
	return nil
}

func (b *LocalBroker) Receive(ctx context.Context, deliver func(models.Envelope)) error {
	<-ctx.Done()
	return nil
}

// RedisBroker shares envelopes between instances over a Redis channel.
type RedisBroker struct {
	url     string
	channel string
	pool    *redis.Pool
}

func NewRedisBroker(url, channel string) *RedisBroker {
	return &RedisBroker{
		url:     url,
		channel: channel,
		pool: &redis.Pool{
			MaxIdle:     4,
			IdleTimeout: 240 * time.Second,
			Dial: func() (redis.Conn, error) {
				return redis.DialURL(url)
			},
			TestOnBorrow: func(c redis.Conn, t time.Time) error {
				if time.Since(t) < time.Minute {
					return nil
				}
				_, err := c.Do("PING")
				return err
			},
		},
	}
}

func (b *RedisBroker) Publish(ctx context.Context, env models.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("PUBLISH", b.channel, data); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Receive holds a dedicated subscription connection. Cancelling ctx closes
// the connection, which unblocks the read loop.
func (b *RedisBroker) Receive(ctx context.Context, deliver func(models.Envelope)) error {
	conn, err := redis.DialURL(b.url)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer conn.Close()

	psc := redis.PubSubConn{Conn: conn}
	if err := psc.Subscribe(b.channel); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	utils.LogInfo("Subscribed to redis channel %s", b.channel)
	for {
		switch v := psc.Receive().(type) {
		case redis.Message:
			var env models.Envelope
			if err := json.Unmarshal(v.Data, &env); err != nil {
				utils.LogWarning("Ignoring malformed envelope on %s: %v", v.Channel, err)
				continue
			}
			deliver(env)
		case redis.Subscription:
			if v.Kind == "unsubscribe" && v.Count == 0 {
				return nil
			}
		case error:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("redis subscription failed: %w", v)
		}
	}
}

func (b *RedisBroker) Close() error {
	return b.pool.Close()
}

// HTTPBroker forwards envelopes to a serving instance's internal notify
// endpoint. It is publish only.
type HTTPBroker struct {
	url        string
	token      string
	httpClient *http.Client
}

func NewHTTPBroker(url, token string) *HTTPBroker {
	return &HTTPBroker{
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *HTTPBroker) Publish(ctx context.Context, env models.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set(InternalTokenHeader, b.token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify endpoint responded with status: %s", resp.Status)
	}
	return nil
}

func (b *HTTPBroker) Receive(ctx context.Context, deliver func(models.Envelope)) error {
	<-ctx.Done()
	return nil
}
