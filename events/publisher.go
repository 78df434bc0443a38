package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// HTTPPublisher publishes events by POSTing the envelope to a per-topic
// broker endpoint. The broker transport itself is external; this core
// only needs publish to return success or a retryable failure.
type HTTPPublisher struct {
	client   *http.Client
	baseURLs map[string]string // topic -> broker endpoint
}

func NewHTTPPublisher(client *http.Client, baseURLs map[string]string) *HTTPPublisher {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPPublisher{client: client, baseURLs: baseURLs}
}

func (p *HTTPPublisher) Publish(ctx context.Context, topic, eventType, eventID string, payload any) error {
	url, ok := p.baseURLs[topic]
	if !ok {
		return fmt.Errorf("events: no broker endpoint configured for topic %s", topic)
	}
	envelope := Envelope{EventID: eventID, EventType: eventType, Timestamp: time.Now().UTC(), Payload: payload}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("events: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("events: publish to %s: %w", topic, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("events: broker returned status %d for topic %s", resp.StatusCode, topic)
	}
	return nil
}

// InMemoryPublisher records published envelopes in memory, used by tests
// and by components that publish locally in-process rather than over HTTP.
type InMemoryPublisher struct {
	mu        sync.Mutex
	Published []Envelope
	FailNext  bool
}

func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{}
}

func (p *InMemoryPublisher) Publish(ctx context.Context, topic, eventType, eventID string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailNext {
		p.FailNext = false
		return fmt.Errorf("events: simulated publish failure for topic %s", topic)
	}
	p.Published = append(p.Published, Envelope{EventID: eventID, EventType: eventType, Timestamp: time.Now().UTC(), Payload: payload})
	return nil
}
